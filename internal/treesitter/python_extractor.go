package treesitter

import (
	"path/filepath"
	"strings"

	sitter "github.com/tree-sitter/go-tree-sitter"
)

// extractPython fills result with the top-level class named after the
// module, if any, and every function definition. Without such a class the
// module itself is the primary unit.
func extractPython(root *sitter.Node, code []byte, result *ParseResult) {
	base := strings.TrimSuffix(filepath.Base(result.Path), filepath.Ext(result.Path))

	for i := uint(0); i < root.NamedChildCount(); i++ {
		child := root.NamedChild(i)
		// decorated classes wrap the definition
		if child != nil && child.Kind() == "decorated_definition" {
			child = child.ChildByFieldName("definition")
		}
		if child == nil || child.Kind() != "class_definition" {
			continue
		}
		if span, ok := namedSpan(child, code); ok && span.Name == base {
			result.Class = span
			break
		}
	}

	var walk func(*sitter.Node)
	walk = func(node *sitter.Node) {
		if node == nil {
			return
		}

		if node.Kind() == "function_definition" {
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
