// Package labeling marks methods as buggy in a ticket's injected release when
// the ticket's fixing commits edited them.
package labeling

import (
	"context"
	stderrors "errors"
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/rohankatakam/defectlab/internal/errors"
	"github.com/rohankatakam/defectlab/internal/git"
	"github.com/rohankatakam/defectlab/internal/models"
)

// Parser extracts callable spans from source text
type Parser interface {
	Methods(path string, src []byte) ([]models.Span, error)
}

// DefaultExtensions selects Java sources
var DefaultExtensions = []string{".java"}

var errRootCommit = stderrors.New("root commit has no parent")

// Result counts what one labeling pass did
type Result struct {
	Tickets        int `json:"tickets" yaml:"tickets"`
	Commits        int `json:"commits" yaml:"commits"`
	CommitsSkipped int `json:"commits_skipped" yaml:"commits_skipped"`
	RootCommits    int `json:"root_commits" yaml:"root_commits"`
	MethodsLabeled int `json:"methods_labeled" yaml:"methods_labeled"`
}

// touched maps a file path to the names of methods edited in it
type touched map[string]map[string]bool

type memoEntry struct {
	touched touched
	err     error
}

// Labeler runs diff-overlap labeling. Touched methods are memoised per
// commit, so repeated passes over the same tickets only hit the backend
// once per commit.
type Labeler struct {
	backend git.Backend
	parser  Parser
	exts    []string
	logger  logrus.FieldLogger
	memo    map[string]memoEntry
}

// NewLabeler creates a labeler over backend and parser. Empty exts selects
// DefaultExtensions.
func NewLabeler(backend git.Backend, parser Parser, exts []string, logger logrus.FieldLogger) *Labeler {
	if len(exts) == 0 {
		exts = DefaultExtensions
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Labeler{
		backend: backend,
		parser:  parser,
		exts:    exts,
		logger:  logger,
		memo:    make(map[string]memoEntry),
	}
}

// Overlaps reports whether the line ranges [a,b] and [c,d] share a line
func Overlaps(a, b, c, d int) bool {
	return max(a, c) <= min(b, d)
}

// Label resets every method of releases and marks as buggy the methods of
// each ticket's injected release that its fixing commits edited. Tickets
// whose injected release is not in releases are ignored. A commit that
// cannot be diffed or parsed is logged and skipped. Only context
// cancellation is returned as an error.
func (l *Labeler) Label(ctx context.Context, releases []*models.Release, tickets []*models.Ticket) (*Result, error) {
	targets := make(map[string]*models.Release, len(releases))
	for _, r := range releases {
		r.ResetBuggy()
		targets[r.VersionID] = r
	}

	res := &Result{}
	for _, t := range tickets {
		if !t.HasIV() || len(t.Commits) == 0 {
			continue
		}
		iv, ok := targets[t.InjectedVersion.VersionID]
		if !ok {
			continue
		}
		res.Tickets++

		for _, c := range t.Commits {
			if err := ctx.Err(); err != nil {
				return res, err
			}

			res.Commits++
			edited, err := l.touchedBy(ctx, c)
			if err != nil {
				if stderrors.Is(err, errRootCommit) {
					res.RootCommits++
					continue
				}
				res.CommitsSkipped++
				l.logger.WithFields(logrus.Fields{
					"ticket": t.Key,
					"commit": c.SHA,
				}).WithError(err).Warn("fixing commit skipped")
				continue
			}

			res.MethodsLabeled += mark(iv, edited)
		}
	}

	l.logger.WithFields(logrus.Fields{
		"releases":        len(releases),
		"tickets":         res.Tickets,
		"commits":         res.Commits,
		"commits_skipped": res.CommitsSkipped,
		"methods_labeled": res.MethodsLabeled,
	}).Debug("labeling pass finished")

	return res, nil
}

// mark flags the same-named methods of every touched class of release and
// returns the number of flags that changed
func mark(release *models.Release, edited touched) int {
	changed := 0
	for path, names := range edited {
		class := release.Class(path)
		if class == nil {
			continue
		}
		for _, m := range class.Methods {
			if names[m.Name] && !m.Buggy {
				m.Buggy = true
				changed++
			}
		}
	}
	return changed
}

func (l *Labeler) touchedBy(ctx context.Context, c *models.Commit) (touched, error) {
	if e, ok := l.memo[c.SHA]; ok {
		return e.touched, e.err
	}

	edited, err := l.compute(ctx, c)
	if ctx.Err() == nil {
		l.memo[c.SHA] = memoEntry{touched: edited, err: err}
	}
	return edited, err
}

// compute diffs c against its first parent and collects the names of the
// methods in the pre-change source whose span overlaps an edited range
func (l *Labeler) compute(ctx context.Context, c *models.Commit) (touched, error) {
	parent := c.FirstParent()
	if parent == "" {
		return nil, errRootCommit
	}

	diffs, err := l.backend.Diff(ctx, parent, c.SHA)
	if err != nil {
		return nil, errors.CommitError(err, c.SHA)
	}

	edited := make(touched)
	for _, d := range diffs {
		// added files have no pre-change methods
		if d.OldPath == "" || !git.HasExtension(d.OldPath, l.exts) {
			continue
		}

		src, err := l.backend.FileAt(ctx, parent, d.OldPath)
		if err != nil {
			return nil, errors.CommitError(err, c.SHA)
		}

		spans, err := l.parser.Methods(d.OldPath, src)
		if err != nil {
			return nil, errors.CommitError(err, c.SHA)
		}

		names := overlapping(spans, d.Edits)
		if len(names) > 0 {
			edited[d.Path()] = names
		}
	}

	return edited, nil
}

// overlapping returns the names of spans hit by any edit's old range
func overlapping(spans []models.Span, edits []models.Edit) map[string]bool {
	names := make(map[string]bool)
	for _, s := range spans {
		for _, e := range edits {
			c, d := e.OldRange()
			if Overlaps(s.StartLine, s.EndLine, c, d) {
				names[s.Name] = true
				break
			}
		}
	}
	return names
}

// BuggyMethods lists "path#method" keys of the buggy methods of releases,
// sorted. Useful for comparing labeling passes.
func BuggyMethods(releases []*models.Release) []string {
	var keys []string
	for _, r := range releases {
		for _, c := range r.Classes {
			for _, m := range c.Methods {
				if m.Buggy {
					keys = append(keys, r.Name+":"+c.Path+"#"+m.Name)
				}
			}
		}
	}
	sort.Strings(keys)
	return keys
}
