package git

import (
	"context"
	"sort"
	"strings"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	fdiff "github.com/go-git/go-git/v5/plumbing/format/diff"
	"github.com/go-git/go-git/v5/plumbing/object"

	"github.com/rohankatakam/defectlab/internal/errors"
	"github.com/rohankatakam/defectlab/internal/models"
)

// Repository is a Backend over an on-disk repository opened with go-git
type Repository struct {
	path string
	repo *gogit.Repository
}

// OpenRepository opens the repository at path
func OpenRepository(path string) (*Repository, error) {
	repo, err := gogit.PlainOpen(path)
	if err != nil {
		return nil, errors.VCSErrorf(err, "open repository %s", path)
	}
	return &Repository{path: path, repo: repo}, nil
}

// Commits returns every commit reachable from any ref, ordered by committer
// time
func (r *Repository) Commits(ctx context.Context) ([]*models.Commit, error) {
	iter, err := r.repo.Log(&gogit.LogOptions{All: true})
	if err != nil {
		return nil, errors.VCSError(err, "read commit log")
	}
	defer iter.Close()

	seen := make(map[plumbing.Hash]bool)
	var commits []*models.Commit

	err = iter.ForEach(func(c *object.Commit) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if seen[c.Hash] {
			return nil
		}
		seen[c.Hash] = true
		commits = append(commits, toModel(c))
		return nil
	})
	if err != nil {
		return nil, errors.VCSError(err, "walk commit log")
	}

	sortCommits(commits)
	return commits, nil
}

// Diff returns the edits going from parent to commit. Binary files are
// skipped.
func (r *Repository) Diff(ctx context.Context, parent, commit string) ([]models.FileDiff, error) {
	from, err := r.commit(parent)
	if err != nil {
		return nil, err
	}
	to, err := r.commit(commit)
	if err != nil {
		return nil, err
	}

	patch, err := from.PatchContext(ctx, to)
	if err != nil {
		return nil, errors.VCSErrorf(err, "diff %s..%s", parent, commit)
	}

	var diffs []models.FileDiff
	for _, fp := range patch.FilePatches() {
		if fp.IsBinary() {
			continue
		}

		var d models.FileDiff
		oldFile, newFile := fp.Files()
		if oldFile != nil {
			d.OldPath = oldFile.Path()
		}
		if newFile != nil {
			d.NewPath = newFile.Path()
		}
		d.Edits = chunksToEdits(fp.Chunks())

		if len(d.Edits) > 0 {
			diffs = append(diffs, d)
		}
	}

	return diffs, nil
}

// chunksToEdits folds consecutive delete/add chunks into edits with old and
// new line ranges
func chunksToEdits(chunks []fdiff.Chunk) []models.Edit {
	var (
		edits   []models.Edit
		oldLine = 1
		newLine = 1
		pending *models.Edit
	)

	flush := func() {
		if pending == nil {
			return
		}
		pending.OldEnd = oldLine - 1
		pending.NewEnd = newLine - 1
		edits = append(edits, *pending)
		pending = nil
	}

	for _, chunk := range chunks {
		n := countLines(chunk.Content())

		switch chunk.Type() {
		case fdiff.Equal:
			flush()
			oldLine += n
			newLine += n
		case fdiff.Delete:
			if pending == nil {
				pending = &models.Edit{OldStart: oldLine, NewStart: newLine}
			}
			oldLine += n
		case fdiff.Add:
			if pending == nil {
				pending = &models.Edit{OldStart: oldLine, NewStart: newLine}
			}
			newLine += n
		}
	}
	flush()

	return edits
}

// FileAt returns the blob content of path in commit
func (r *Repository) FileAt(ctx context.Context, commit, path string) ([]byte, error) {
	c, err := r.commit(commit)
	if err != nil {
		return nil, err
	}

	f, err := c.File(path)
	if err != nil {
		return nil, errors.VCSErrorf(err, "file %s at %s", path, commit)
	}

	contents, err := f.Contents()
	if err != nil {
		return nil, errors.VCSErrorf(err, "read %s at %s", path, commit)
	}
	return []byte(contents), nil
}

// ListFiles returns the tree paths of commit ending with ext, sorted
func (r *Repository) ListFiles(ctx context.Context, commit, ext string) ([]string, error) {
	c, err := r.commit(commit)
	if err != nil {
		return nil, err
	}

	iter, err := c.Files()
	if err != nil {
		return nil, errors.VCSErrorf(err, "tree of %s", commit)
	}
	defer iter.Close()

	var paths []string
	err = iter.ForEach(func(f *object.File) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if strings.HasSuffix(f.Name, ext) {
			paths = append(paths, f.Name)
		}
		return nil
	})
	if err != nil {
		return nil, errors.VCSErrorf(err, "list files of %s", commit)
	}

	sort.Strings(paths)
	return paths, nil
}

// Stats returns the per-file churn of commit against its first parent
func (r *Repository) Stats(ctx context.Context, commit string) ([]models.FileStat, error) {
	c, err := r.commit(commit)
	if err != nil {
		return nil, err
	}

	stats, err := c.StatsContext(ctx)
	if err != nil {
		return nil, errors.VCSErrorf(err, "stats of %s", commit)
	}

	out := make([]models.FileStat, 0, len(stats))
	for _, s := range stats {
		out = append(out, models.FileStat{Path: s.Name, Additions: s.Addition, Deletions: s.Deletion})
	}
	return out, nil
}

func (r *Repository) commit(sha string) (*object.Commit, error) {
	c, err := r.repo.CommitObject(plumbing.NewHash(sha))
	if err != nil {
		return nil, errors.VCSErrorf(err, "commit %s", sha)
	}
	return c, nil
}

func toModel(c *object.Commit) *models.Commit {
	parents := make([]string, 0, len(c.ParentHashes))
	for _, p := range c.ParentHashes {
		parents = append(parents, p.String())
	}
	return &models.Commit{
		SHA:         c.Hash.String(),
		Author:      c.Author.Name,
		AuthorEmail: c.Author.Email,
		Message:     c.Message,
		Timestamp:   c.Committer.When,
		ParentSHAs:  parents,
	}
}

// sortCommits orders commits by timestamp, breaking ties by SHA
func sortCommits(commits []*models.Commit) {
	sort.SliceStable(commits, func(i, j int) bool {
		if commits[i].Timestamp.Equal(commits[j].Timestamp) {
			return commits[i].SHA < commits[j].SHA
		}
		return commits[i].Timestamp.Before(commits[j].Timestamp)
	})
}
