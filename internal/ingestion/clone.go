package ingestion

import (
	"context"
	"crypto/sha256"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	gogit "github.com/go-git/go-git/v5"
)

// IsRemote reports whether location names a remote repository rather than a
// local path
func IsRemote(location string) bool {
	return strings.HasPrefix(location, "https://") ||
		strings.HasPrefix(location, "http://") ||
		strings.HasPrefix(location, "git@") ||
		strings.HasPrefix(location, "ssh://")
}

// CloneRepository performs a full clone of url under reposDir/<repo-hash>/.
// An existing valid clone is reused. Full history is required, so the clone
// is never shallow.
func CloneRepository(ctx context.Context, url, reposDir string) (string, error) {
	repoPath := filepath.Join(reposDir, generateRepoHash(url))

	// Check if already cloned
	if _, err := os.Stat(repoPath); err == nil {
		if isValidGitRepo(repoPath) {
			return repoPath, nil
		}
		// Invalid repo, remove and re-clone
		os.RemoveAll(repoPath)
	}

	if err := os.MkdirAll(reposDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create repos directory: %w", err)
	}

	_, err := gogit.PlainCloneContext(ctx, repoPath, false, &gogit.CloneOptions{
		URL:  url,
		Tags: gogit.AllTags,
	})
	if err != nil {
		os.RemoveAll(repoPath)
		return "", fmt.Errorf("git clone %s failed: %w", url, err)
	}

	return repoPath, nil
}

// ResolveRepository returns a local path for location, cloning remote
// repositories into reposDir
func ResolveRepository(ctx context.Context, location, reposDir string) (string, error) {
	if !IsRemote(location) {
		if !isValidGitRepo(location) {
			return "", fmt.Errorf("%s is not a git repository", location)
		}
		return location, nil
	}
	return CloneRepository(ctx, location, reposDir)
}

// generateRepoHash creates a unique hash from repository URL
func generateRepoHash(url string) string {
	url = strings.TrimSuffix(url, "/")
	url = strings.TrimSuffix(url, ".git")

	h := sha256.New()
	h.Write([]byte(url))
	return fmt.Sprintf("%x", h.Sum(nil))[:16]
}

// isValidGitRepo checks if path holds a repository go-git can open
func isValidGitRepo(path string) bool {
	_, err := gogit.PlainOpenWithOptions(path, &gogit.PlainOpenOptions{DetectDotGit: false})
	return err == nil
}
