package treesitter

import (
	"bytes"
	"fmt"
	"path/filepath"
	"strings"

	sitter "github.com/tree-sitter/go-tree-sitter"
	tree_sitter_java "github.com/tree-sitter/tree-sitter-java/bindings/go"
	tree_sitter_python "github.com/tree-sitter/tree-sitter-python/bindings/go"

	"github.com/rohankatakam/defectlab/internal/errors"
	"github.com/rohankatakam/defectlab/internal/models"
)

// LanguageParser wraps tree-sitter parser with language-specific grammar
// IMPORTANT: Always call Close() to prevent memory leaks (CGO requirement)
type LanguageParser struct {
	parser   *sitter.Parser
	language *sitter.Language
	langName string
}

// NewLanguageParser creates a parser for the specified language
// Supported languages: java, python
func NewLanguageParser(lang string) (*LanguageParser, error) {
	parser := sitter.NewParser()
	if parser == nil {
		return nil, fmt.Errorf("failed to create tree-sitter parser")
	}

	var language *sitter.Language
	switch lang {
	case "java":
		language = sitter.NewLanguage(tree_sitter_java.Language())
	case "python":
		language = sitter.NewLanguage(tree_sitter_python.Language())
	default:
		parser.Close()
		return nil, fmt.Errorf("unsupported language: %s", lang)
	}

	if err := parser.SetLanguage(language); err != nil {
		parser.Close()
		return nil, fmt.Errorf("failed to set language %s: %w", lang, err)
	}

	return &LanguageParser{
		parser:   parser,
		language: language,
		langName: lang,
	}, nil
}

// Close releases parser resources (REQUIRED - CGO memory management)
func (lp *LanguageParser) Close() {
	if lp.parser != nil {
		lp.parser.Close()
	}
}

// Parse parses source code and returns the syntax tree
// Caller must call tree.Close() when done
func (lp *LanguageParser) Parse(code []byte) (*sitter.Tree, error) {
	tree := lp.parser.Parse(code, nil)
	if tree == nil {
		return nil, fmt.Errorf("failed to parse code")
	}
	return tree, nil
}

// DetectLanguage returns language identifier from file extension
func DetectLanguage(filePath string) string {
	langMap := map[string]string{
		".java": "java",
		".py":   "python",
		".pyi":  "python",
	}
	return langMap[strings.ToLower(filepath.Ext(filePath))]
}

// SourceParser turns source text into class and callable spans. A fresh
// tree-sitter parser is acquired for every call and released before it
// returns, so a SourceParser is safe for concurrent use.
type SourceParser struct{}

// NewSourceParser creates a source parser
func NewSourceParser() *SourceParser {
	return &SourceParser{}
}

// Parse extracts the primary type and all callables declared in src.
// Sources with syntax errors are rejected.
func (p *SourceParser) Parse(path string, src []byte) (*ParseResult, error) {
	lang := DetectLanguage(path)
	if lang == "" {
		return nil, errors.ParseError(fmt.Errorf("unsupported file type"), path)
	}

	lp, err := NewLanguageParser(lang)
	if err != nil {
		return nil, errors.ParseError(err, path)
	}
	defer lp.Close()

	tree, err := lp.Parse(src)
	if err != nil {
		return nil, errors.ParseError(err, path)
	}
	defer tree.Close()

	root := tree.RootNode()
	if root.HasError() {
		return nil, errors.ParseError(fmt.Errorf("syntax error"), path)
	}

	result := &ParseResult{Path: path, Language: lang}
	switch lang {
	case "java":
		extractJava(root, src, result)
	case "python":
		extractPython(root, src, result)
	}

	if result.Class.Name == "" {
		result.Class = models.Span{
			Name:      strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)),
			StartLine: 1,
			EndLine:   lineCount(src),
		}
	}

	return result, nil
}

// Methods returns the callable spans declared in src
func (p *SourceParser) Methods(path string, src []byte) ([]models.Span, error) {
	result, err := p.Parse(path, src)
	if err != nil {
		return nil, err
	}
	return result.Methods, nil
}

func lineCount(src []byte) int {
	if len(src) == 0 {
		return 0
	}
	n := bytes.Count(src, []byte("\n"))
	if src[len(src)-1] != '\n' {
		n++
	}
	return n
}
