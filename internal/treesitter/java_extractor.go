package treesitter

import (
	"path/filepath"
	"strings"

	sitter "github.com/tree-sitter/go-tree-sitter"

	"github.com/rohankatakam/defectlab/internal/models"
)

var javaTypeKinds = map[string]bool{
	"class_declaration":           true,
	"interface_declaration":       true,
	"enum_declaration":            true,
	"record_declaration":          true,
	"annotation_type_declaration": true,
}

// extractJava fills result with the primary type and every method and
// constructor found in the Java AST
func extractJava(root *sitter.Node, code []byte, result *ParseResult) {
	base := strings.TrimSuffix(filepath.Base(result.Path), filepath.Ext(result.Path))

	// top-level types
	var first models.Span
	for i := uint(0); i < root.NamedChildCount(); i++ {
		child := root.NamedChild(i)
		if child == nil || !javaTypeKinds[child.Kind()] {
			continue
		}
		span, ok := namedSpan(child, code)
		if !ok {
			continue
		}
		if first.Name == "" {
			first = span
		}
		if span.Name == base {
			result.Class = span
			break
		}
	}
	if result.Class.Name == "" {
		result.Class = first
	}

	var walk func(*sitter.Node)
	walk = func(node *sitter.Node) {
		if node == nil {
			return
		}

		switch node.Kind() {
		case "method_declaration", "constructor_declaration", "compact_constructor_declaration":
			if span, ok := namedSpan(node, code); ok {
				result.Methods = append(result.Methods, span)
			}
		}

		for i := uint(0); i < node.ChildCount(); i++ {
			walk(node.Child(i))
		}
	}

	walk(root)
}
