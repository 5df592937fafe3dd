// Package timeline builds the ordered release sequence of a project and maps
// tracker tickets onto it.
package timeline

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rohankatakam/defectlab/internal/models"
)

// ReleaseRecord is a release as reported by the issue tracker
type ReleaseRecord struct {
	VersionID string
	Name      string
	Date      time.Time // zero when the tracker has no release date
}

// TicketRecord is a fixed bug as reported by the issue tracker
type TicketRecord struct {
	Key                string
	Created            time.Time
	Resolved           time.Time
	AffectedVersionIDs []string
}

// Source supplies releases and tickets for a named project
type Source interface {
	Releases(ctx context.Context, project string) ([]ReleaseRecord, error)
	Tickets(ctx context.Context, project string) ([]TicketRecord, error)
}

// Timeline is the date-ordered release sequence of one project.
// Releases[i].Index == i+1 always holds.
type Timeline struct {
	Project  string
	Releases []*models.Release

	byVersion map[string]*models.Release
}

// New drops undated and duplicate releases, sorts the rest by date and
// assigns contiguous indices starting at 1.
func New(project string, records []ReleaseRecord) *Timeline {
	seen := make(map[string]bool, len(records))
	releases := make([]*models.Release, 0, len(records))

	for _, rec := range records {
		if rec.Date.IsZero() || rec.VersionID == "" || seen[rec.VersionID] {
			continue
		}
		seen[rec.VersionID] = true
		releases = append(releases, &models.Release{
			Name:      rec.Name,
			Date:      rec.Date,
			VersionID: rec.VersionID,
		})
	}

	tl := &Timeline{Project: project, Releases: releases}
	tl.Reindex()
	return tl
}

// Reindex re-sorts releases by date and reassigns Index = rank
func (t *Timeline) Reindex() {
	sort.SliceStable(t.Releases, func(i, j int) bool {
		return t.Releases[i].Date.Before(t.Releases[j].Date)
	})

	t.byVersion = make(map[string]*models.Release, len(t.Releases))
	for i, r := range t.Releases {
		r.Index = i + 1
		t.byVersion[r.VersionID] = r
	}
}

// Len returns the number of releases
func (t *Timeline) Len() int {
	return len(t.Releases)
}

// ByIndex returns the release with the given 1-based index, or nil
func (t *Timeline) ByIndex(index int) *models.Release {
	if index < 1 || index > len(t.Releases) {
		return nil
	}
	return t.Releases[index-1]
}

// ByVersionID returns the release with the given tracker id, or nil
func (t *Timeline) ByVersionID(id string) *models.Release {
	return t.byVersion[id]
}

// UpTo returns releases with Index <= index
func (t *Timeline) UpTo(index int) []*models.Release {
	if index > len(t.Releases) {
		index = len(t.Releases)
	}
	if index < 1 {
		return nil
	}
	return t.Releases[:index]
}

// Between returns releases with from <= Index < to
func (t *Timeline) Between(from, to int) []*models.Release {
	if from < 1 {
		from = 1
	}
	if to > len(t.Releases)+1 {
		to = len(t.Releases) + 1
	}
	if from >= to {
		return nil
	}
	return t.Releases[from-1 : to-1]
}

// AffectedRange returns [iv, fv) as a fresh slice
func (t *Timeline) AffectedRange(iv, fv *models.Release) []*models.Release {
	if iv == nil || fv == nil {
		return nil
	}
	return append([]*models.Release(nil), t.Between(iv.Index, fv.Index)...)
}

// ActiveAt returns the first release whose date is not before ts: the
// release under development at that moment. Nil when ts is after the last
// release.
//
// Dates are compared as UTC calendar days. Trackers report release dates
// without a time of day, so anything stamped on a release's own day belongs
// to that release.
func (t *Timeline) ActiveAt(ts time.Time) *models.Release {
	d := calendarDay(ts)
	i := sort.Search(len(t.Releases), func(i int) bool {
		return !calendarDay(t.Releases[i].Date).Before(d)
	})
	if i == len(t.Releases) {
		return nil
	}
	return t.Releases[i]
}

func calendarDay(ts time.Time) time.Time {
	y, m, d := ts.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// AssignCommits distributes commits into release windows. Commits must be
// sorted by timestamp; commits after the last release stay unassigned.
// Returns the number of assigned commits.
func (t *Timeline) AssignCommits(commits []*models.Commit) int {
	for _, r := range t.Releases {
		r.Commits = nil
	}

	assigned := 0
	for _, c := range commits {
		r := t.ActiveAt(c.Timestamp)
		if r == nil {
			continue
		}
		r.Commits = append(r.Commits, c)
		assigned++
	}
	return assigned
}

// BuildTickets maps tracker tickets onto the timeline. Opening and fixed
// versions are left nil when the date falls after the last release;
// unknown affected version ids are ignored.
func (t *Timeline) BuildTickets(records []TicketRecord) []*models.Ticket {
	tickets := make([]*models.Ticket, 0, len(records))

	for _, rec := range records {
		ticket := &models.Ticket{
			Key:            rec.Key,
			CreationDate:   rec.Created,
			ResolutionDate: rec.Resolved,
			OpeningVersion: t.ActiveAt(rec.Created),
			FixedVersion:   t.ActiveAt(rec.Resolved),
		}

		for _, id := range rec.AffectedVersionIDs {
			if r := t.ByVersionID(id); r != nil {
				ticket.AffectedVersions = append(ticket.AffectedVersions, r)
			}
		}
		sort.Slice(ticket.AffectedVersions, func(i, j int) bool {
			return ticket.AffectedVersions[i].Index < ticket.AffectedVersions[j].Index
		})

		tickets = append(tickets, ticket)
	}

	return tickets
}

// Loader builds timelines and tickets from a Source
type Loader struct {
	Source Source
}

// NewLoader creates a loader over src
func NewLoader(src Source) *Loader {
	return &Loader{Source: src}
}

// Load fetches releases and tickets of project and maps them together
func (l *Loader) Load(ctx context.Context, project string) (*Timeline, []*models.Ticket, error) {
	releases, err := l.Source.Releases(ctx, project)
	if err != nil {
		return nil, nil, fmt.Errorf("fetch releases of %s: %w", project, err)
	}

	tl := New(project, releases)
	if tl.Len() == 0 {
		return nil, nil, fmt.Errorf("project %s has no dated releases", project)
	}

	records, err := l.Source.Tickets(ctx, project)
	if err != nil {
		return nil, nil, fmt.Errorf("fetch tickets of %s: %w", project, err)
	}

	return tl, tl.BuildTickets(records), nil
}
