package treesitter

import (
	sitter "github.com/tree-sitter/go-tree-sitter"

	"github.com/rohankatakam/defectlab/internal/models"
)

// getNodeText extracts text from a node using byte offsets
func getNodeText(node *sitter.Node, code []byte) string {
	if node == nil {
		return ""
	}
	start := node.StartByte()
	end := node.EndByte()
	if int(end) > len(code) {
		end = uint(len(code))
	}
	return string(code[start:end])
}

// namedSpan returns the 1-based line span of node labelled with its name
// field, or false when the node has no name
func namedSpan(node *sitter.Node, code []byte) (models.Span, bool) {
	nameNode := node.ChildByFieldName("name")
	if nameNode == nil {
		return models.Span{}, false
	}
	return models.Span{
		Name:      getNodeText(nameNode, code),
		StartLine: int(node.StartPosition().Row) + 1,
		EndLine:   int(node.EndPosition().Row) + 1,
	}, true
}
