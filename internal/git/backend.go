// Package git provides read-only access to a project's history: commits,
// first-parent diffs measured in old/new line ranges, file blobs and churn.
package git

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/rohankatakam/defectlab/internal/errors"
	"github.com/rohankatakam/defectlab/internal/models"
)

// Backend is the version-control collaborator. Implementations never
// modify the repository.
type Backend interface {
	// Commits returns every reachable commit, oldest first
	Commits(ctx context.Context) ([]*models.Commit, error)
	// Diff returns per-file edits going from parent to commit
	Diff(ctx context.Context, parent, commit string) ([]models.FileDiff, error)
	// FileAt returns the content of path as of commit
	FileAt(ctx context.Context, commit, path string) ([]byte, error)
	// ListFiles returns the paths in commit's tree ending with ext
	ListFiles(ctx context.Context, commit, ext string) ([]string, error)
	// Stats returns per-file line churn of commit against its first parent
	Stats(ctx context.Context, commit string) ([]models.FileStat, error)
}

// Kind selects a Backend implementation
type Kind string

const (
	KindGoGit Kind = "gogit"
	KindCLI   Kind = "cli"
)

// Open returns the backend of the given kind rooted at repoPath
func Open(kind Kind, repoPath string) (Backend, error) {
	switch kind {
	case KindGoGit, "":
		return OpenRepository(repoPath)
	case KindCLI:
		return NewCLIBackend(repoPath)
	default:
		return nil, errors.ConfigErrorf("unknown vcs backend %q", kind)
	}
}

// HasExtension reports whether path ends with one of exts (case-insensitive)
func HasExtension(path string, exts []string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range exts {
		if ext == strings.ToLower(e) {
			return true
		}
	}
	return false
}

// countLines returns the number of lines in s, counting a trailing
// unterminated line
func countLines(s string) int {
	if s == "" {
		return 0
	}
	n := strings.Count(s, "\n")
	if !strings.HasSuffix(s, "\n") {
		n++
	}
	return n
}
