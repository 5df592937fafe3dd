// Package linking attaches fixing commits to tickets by the ticket keys
// mentioned in commit messages.
package linking

import (
	"regexp"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/rohankatakam/defectlab/internal/models"
)

// keyRegex matches tracker keys such as PROJ-123. Word boundaries keep
// PROJ-12 from matching inside PROJ-123 or XPROJ-12.
var keyRegex = regexp.MustCompile(`\b([A-Z][A-Z0-9_]*-[0-9]+)\b`)

// ExtractKeys returns the distinct ticket keys of project mentioned in msg,
// in order of first mention
func ExtractKeys(project, msg string) []string {
	prefix := project + "-"
	var keys []string
	seen := make(map[string]bool)

	for _, match := range keyRegex.FindAllStringSubmatch(msg, -1) {
		key := match[1]
		if !strings.HasPrefix(key, prefix) || seen[key] {
			continue
		}
		seen[key] = true
		keys = append(keys, key)
	}
	return keys
}

// Stats summarizes a linking pass
type Stats struct {
	Commits       int `json:"commits" yaml:"commits"`
	LinkedCommits int `json:"linked_commits" yaml:"linked_commits"`
	Links         int `json:"links" yaml:"links"`
	TicketsLinked int `json:"tickets_linked" yaml:"tickets_linked"`
}

// Linker links commits to the tickets of one project
type Linker struct {
	project string
	logger  logrus.FieldLogger
}

// NewLinker creates a linker for project keys
func NewLinker(project string, logger logrus.FieldLogger) *Linker {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Linker{project: project, logger: logger}
}

// Link appends to each ticket every commit mentioning its key. Existing
// links are replaced. Each ticket's commits end up oldest first.
func (l *Linker) Link(tickets []*models.Ticket, commits []*models.Commit) *Stats {
	stats := &Stats{Commits: len(commits)}

	byKey := make(map[string]*models.Ticket, len(tickets))
	for _, t := range tickets {
		t.Commits = nil
		byKey[t.Key] = t
	}

	for _, c := range commits {
		linked := false
		for _, key := range ExtractKeys(l.project, c.Message) {
			t, ok := byKey[key]
			if !ok {
				continue
			}
			t.Commits = append(t.Commits, c)
			stats.Links++
			linked = true
		}
		if linked {
			stats.LinkedCommits++
		}
	}

	for _, t := range tickets {
		if len(t.Commits) == 0 {
			continue
		}
		stats.TicketsLinked++
		sort.SliceStable(t.Commits, func(i, j int) bool {
			return t.Commits[i].Timestamp.Before(t.Commits[j].Timestamp)
		})
	}

	l.logger.WithFields(logrus.Fields{
		"commits":        stats.Commits,
		"linked_commits": stats.LinkedCommits,
		"tickets":        len(tickets),
		"tickets_linked": stats.TicketsLinked,
	}).Info("linked commits to tickets")

	return stats
}
