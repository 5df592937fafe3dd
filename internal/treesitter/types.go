package treesitter

import "github.com/rohankatakam/defectlab/internal/models"

// ParseResult holds the spans extracted from one source file
type ParseResult struct {
	Path     string
	Language string
	// Class is the file's primary type: the top-level type named after the
	// file, else the first top-level type, else the whole file
	Class models.Span
	// Methods lists every method and constructor, including those of nested
	// and anonymous types, in source order
	Methods []models.Span
}
