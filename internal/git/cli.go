package git

import (
	"context"
	"fmt"
	"os/exec"
	"sort"
	"strings"
	"time"

	"github.com/rohankatakam/defectlab/internal/errors"
	"github.com/rohankatakam/defectlab/internal/models"
)

const (
	fieldSep  = "\x1f"
	recordSep = "\x1e"
)

// CLIBackend is a Backend that shells out to the git binary
type CLIBackend struct {
	repoPath string
}

// NewCLIBackend checks that repoPath is a git work tree and returns a
// backend over it
func NewCLIBackend(repoPath string) (*CLIBackend, error) {
	b := &CLIBackend{repoPath: repoPath}
	if _, err := b.run(context.Background(), "rev-parse", "--git-dir"); err != nil {
		return nil, fmt.Errorf("not a git repository: %w", err)
	}
	return b, nil
}

// Commits returns every commit reachable from any ref, ordered by committer
// time
func (b *CLIBackend) Commits(ctx context.Context) ([]*models.Commit, error) {
	format := strings.Join([]string{"%H", "%P", "%an", "%ae", "%cI", "%B"}, "%x1f") + "%x1e"
	out, err := b.run(ctx, "log", "--all", "--pretty=format:"+format)
	if err != nil {
		return nil, errors.VCSError(err, "read commit log")
	}

	commits, err := parseLog(out)
	if err != nil {
		return nil, errors.VCSError(err, "parse commit log")
	}

	sortCommits(commits)
	return commits, nil
}

func parseLog(out string) ([]*models.Commit, error) {
	var commits []*models.Commit

	for _, record := range strings.Split(out, recordSep) {
		record = strings.TrimLeft(record, "\n")
		if record == "" {
			continue
		}

		fields := strings.SplitN(record, fieldSep, 6)
		if len(fields) != 6 {
			return nil, fmt.Errorf("malformed log record %q", record)
		}

		ts, err := time.Parse(time.RFC3339, fields[4])
		if err != nil {
			return nil, fmt.Errorf("commit %s: %w", fields[0], err)
		}

		commits = append(commits, &models.Commit{
			SHA:         fields[0],
			ParentSHAs:  strings.Fields(fields[1]),
			Author:      fields[2],
			AuthorEmail: fields[3],
			Timestamp:   ts,
			Message:     fields[5],
		})
	}

	return commits, nil
}

// Diff returns the edits going from parent to commit
func (b *CLIBackend) Diff(ctx context.Context, parent, commit string) ([]models.FileDiff, error) {
	out, err := b.run(ctx, "diff", "--unified=0", "--no-color", "--no-renames", "--no-ext-diff", parent, commit)
	if err != nil {
		return nil, errors.VCSErrorf(err, "diff %s..%s", parent, commit)
	}
	return ParseUnifiedDiff(out), nil
}

// FileAt returns the blob content of path in commit
func (b *CLIBackend) FileAt(ctx context.Context, commit, path string) ([]byte, error) {
	out, err := b.run(ctx, "show", commit+":"+path)
	if err != nil {
		return nil, errors.VCSErrorf(err, "file %s at %s", path, commit)
	}
	return []byte(out), nil
}

// ListFiles returns the tree paths of commit ending with ext, sorted
func (b *CLIBackend) ListFiles(ctx context.Context, commit, ext string) ([]string, error) {
	out, err := b.run(ctx, "ls-tree", "-r", "--name-only", commit)
	if err != nil {
		return nil, errors.VCSErrorf(err, "list files of %s", commit)
	}

	var paths []string
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if line != "" && strings.HasSuffix(line, ext) {
			paths = append(paths, line)
		}
	}
	sort.Strings(paths)
	return paths, nil
}

// Stats returns the per-file churn of commit against its first parent; a
// root commit is measured against the empty tree
func (b *CLIBackend) Stats(ctx context.Context, commit string) ([]models.FileStat, error) {
	parents, err := b.Parents(ctx, commit)
	if err != nil {
		return nil, err
	}

	var out string
	if len(parents) == 0 {
		out, err = b.run(ctx, "show", "--numstat", "--format=", "--no-renames", commit)
	} else {
		out, err = b.run(ctx, "diff", "--numstat", "--no-renames", parents[0], commit)
	}
	if err != nil {
		return nil, errors.VCSErrorf(err, "stats of %s", commit)
	}

	return parseNumstat(out), nil
}

// Parents returns the parent SHAs of a commit, empty for a root commit
func (b *CLIBackend) Parents(ctx context.Context, commit string) ([]string, error) {
	out, err := b.run(ctx, "log", "-1", "--format=%P", commit)
	if err != nil {
		return nil, errors.VCSErrorf(err, "parents of %s", commit)
	}

	parentString := strings.TrimSpace(out)
	if parentString == "" {
		return []string{}, nil
	}
	return strings.Fields(parentString), nil
}

func (b *CLIBackend) run(ctx context.Context, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = b.repoPath

	output, err := cmd.Output()
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			return "", fmt.Errorf("git %s: %w (stderr: %s)", args[0], err, strings.TrimSpace(string(exitErr.Stderr)))
		}
		return "", fmt.Errorf("git %s: %w", args[0], err)
	}
	return string(output), nil
}
