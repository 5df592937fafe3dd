// Package metrics computes historical class metrics per release from the
// commits that fall inside each release window.
package metrics

import (
	"context"
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/rohankatakam/defectlab/internal/errors"
	"github.com/rohankatakam/defectlab/internal/git"
	"github.com/rohankatakam/defectlab/internal/models"
)

// fileWindow accumulates the changes to one path inside one release
type fileWindow struct {
	revisions int
	authors   map[string]bool
	churn     int
	maxChurn  int
}

// Stats summarizes a collection pass
type Stats struct {
	Releases       int `json:"releases" yaml:"releases"`
	Commits        int `json:"commits" yaml:"commits"`
	CommitsSkipped int `json:"commits_skipped" yaml:"commits_skipped"`
}

// Collector fills the history metrics of release classes. LOC is left to
// the snapshot builder, which already holds the file content.
type Collector struct {
	backend git.Backend
	logger  logrus.FieldLogger
}

// NewCollector creates a collector reading churn from backend
func NewCollector(backend git.Backend, logger logrus.FieldLogger) *Collector {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Collector{backend: backend, logger: logger}
}

// Collect walks releases in order. For every class it records revisions,
// distinct authors and churn inside the release window, authors over the
// whole history so far, and the number of releases since the class first
// appeared. Releases must be ordered by index.
func (c *Collector) Collect(ctx context.Context, releases []*models.Release) (*Stats, error) {
	stats := &Stats{Releases: len(releases)}
	history := make(map[string]map[string]bool)
	firstSeen := make(map[string]int)

	for _, r := range releases {
		windows := make(map[string]*fileWindow)

		for _, commit := range r.Commits {
			if err := ctx.Err(); err != nil {
				return stats, err
			}
			stats.Commits++

			fileStats, err := c.backend.Stats(ctx, commit.SHA)
			if err != nil {
				if ctx.Err() != nil {
					return stats, ctx.Err()
				}
				stats.CommitsSkipped++
				c.logger.WithError(errors.CommitError(err, commit.SHA)).Warn("churn unavailable")
				continue
			}

			author := authorOf(commit)
			for _, fs := range fileStats {
				w := windows[fs.Path]
				if w == nil {
					w = &fileWindow{authors: make(map[string]bool)}
					windows[fs.Path] = w
				}
				w.revisions++
				w.authors[author] = true
				churn := fs.Additions + fs.Deletions
				w.churn += churn
				if churn > w.maxChurn {
					w.maxChurn = churn
				}

				if history[fs.Path] == nil {
					history[fs.Path] = make(map[string]bool)
				}
				history[fs.Path][author] = true
			}
		}

		for _, class := range r.Classes {
			if _, ok := firstSeen[class.Path]; !ok {
				firstSeen[class.Path] = r.Index
			}

			m := &class.Metrics
			m.AgeReleases = r.Index - firstSeen[class.Path]
			m.CumulativeAuthors = len(history[class.Path])
			m.Revisions, m.Authors, m.Churn, m.MaxChurn = 0, 0, 0, 0
			if w := windows[class.Path]; w != nil {
				m.Revisions = w.revisions
				m.Authors = len(w.authors)
				m.Churn = w.churn
				m.MaxChurn = w.maxChurn
			}
		}

		c.logger.WithFields(logrus.Fields{
			"release": r.Name,
			"commits": len(r.Commits),
			"files":   len(windows),
		}).Debug("release metrics collected")
	}

	return stats, nil
}

// authorOf identifies a commit author by email, falling back to the name
func authorOf(c *models.Commit) string {
	if c.AuthorEmail != "" {
		return c.AuthorEmail
	}
	return c.Author
}

// TopChurn returns up to n class paths of release ordered by churn, highest
// first
func TopChurn(r *models.Release, n int) []string {
	classes := append([]*models.ClassUnit(nil), r.Classes...)
	sort.SliceStable(classes, func(i, j int) bool {
		return classes[i].Metrics.Churn > classes[j].Metrics.Churn
	})
	var paths []string
	for i := 0; i < len(classes) && i < n; i++ {
		if classes[i].Metrics.Churn == 0 {
			break
		}
		paths = append(paths, classes[i].Path)
	}
	return paths
}
