package timeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rohankatakam/defectlab/internal/models"
)

func day(n int) time.Time {
	return time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, n)
}

func TestNewSortsAndReindexes(t *testing.T) {
	tl := New("PROJ", []ReleaseRecord{
		{VersionID: "30", Name: "3.0", Date: day(30)},
		{VersionID: "10", Name: "1.0", Date: day(10)},
		{VersionID: "xx", Name: "unreleased"},
		{VersionID: "20", Name: "2.0", Date: day(20)},
		{VersionID: "10", Name: "1.0-dup", Date: day(5)},
	})

	require.Equal(t, 3, tl.Len())
	for i, r := range tl.Releases {
		assert.Equal(t, i+1, r.Index)
		if i > 0 {
			assert.True(t, tl.Releases[i-1].Date.Before(r.Date))
		}
	}
	assert.Equal(t, "1.0", tl.ByIndex(1).Name)
	assert.Equal(t, "3.0", tl.ByVersionID("30").Name)
	assert.Nil(t, tl.ByIndex(0))
	assert.Nil(t, tl.ByIndex(4))
}

func TestActiveAt(t *testing.T) {
	tl := New("PROJ", []ReleaseRecord{
		{VersionID: "1", Date: day(10)},
		{VersionID: "2", Date: day(20)},
	})

	tests := []struct {
		name string
		ts   time.Time
		want int
	}{
		{"before first", day(1), 1},
		{"on release date", day(10), 1},
		{"late on release date", day(10).Add(23 * time.Hour), 1},
		{"release day in another zone", time.Date(2020, 1, 11, 1, 0, 0, 0, time.FixedZone("CET", 3600)), 1},
		{"day after release", day(11).Add(time.Minute), 2},
		{"inside second window", day(15), 2},
		{"late on last release date", day(20).Add(18 * time.Hour), 2},
		{"after last", day(21), 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := tl.ActiveAt(tt.ts)
			if tt.want == 0 {
				assert.Nil(t, r)
				return
			}
			require.NotNil(t, r)
			assert.Equal(t, tt.want, r.Index)
		})
	}
}

func TestAffectedRange(t *testing.T) {
	tl := New("PROJ", []ReleaseRecord{
		{VersionID: "1", Date: day(1)},
		{VersionID: "2", Date: day(2)},
		{VersionID: "3", Date: day(3)},
		{VersionID: "4", Date: day(4)},
	})

	av := tl.AffectedRange(tl.ByIndex(2), tl.ByIndex(4))
	require.Len(t, av, 2)
	assert.Equal(t, 2, av[0].Index)
	assert.Equal(t, 3, av[1].Index)

	assert.Empty(t, tl.AffectedRange(tl.ByIndex(3), tl.ByIndex(3)))
	assert.Nil(t, tl.AffectedRange(nil, tl.ByIndex(3)))
}

func TestAssignCommits(t *testing.T) {
	tl := New("PROJ", []ReleaseRecord{
		{VersionID: "1", Date: day(10)},
		{VersionID: "2", Date: day(20)},
	})

	commits := []*models.Commit{
		{SHA: "a", Timestamp: day(1)},
		{SHA: "b", Timestamp: day(10)},
		{SHA: "c", Timestamp: day(11)},
		{SHA: "d", Timestamp: day(25)},
	}

	assert.Equal(t, 3, tl.AssignCommits(commits))
	assert.Len(t, tl.ByIndex(1).Commits, 2)
	assert.Equal(t, "c", tl.ByIndex(2).LastCommit().SHA)
}

func TestBuildTickets(t *testing.T) {
	tl := New("PROJ", []ReleaseRecord{
		{VersionID: "1", Date: day(10)},
		{VersionID: "2", Date: day(20)},
		{VersionID: "3", Date: day(30)},
	})

	tickets := tl.BuildTickets([]TicketRecord{
		{Key: "PROJ-1", Created: day(12), Resolved: day(28), AffectedVersionIDs: []string{"2", "1", "missing"}},
		{Key: "PROJ-2", Created: day(12), Resolved: day(40)},
	})

	require.Len(t, tickets, 2)
	assert.Equal(t, 2, tickets[0].OpeningVersion.Index)
	assert.Equal(t, 3, tickets[0].FixedVersion.Index)
	require.Len(t, tickets[0].AffectedVersions, 2)
	assert.Equal(t, 1, tickets[0].AffectedVersions[0].Index)
	assert.True(t, tickets[0].Resolvable())

	assert.Nil(t, tickets[1].FixedVersion)
	assert.False(t, tickets[1].Resolvable())
}

type stubSource struct {
	releases []ReleaseRecord
	tickets  []TicketRecord
	err      error
}

func (s *stubSource) Releases(ctx context.Context, project string) ([]ReleaseRecord, error) {
	return s.releases, s.err
}

func (s *stubSource) Tickets(ctx context.Context, project string) ([]TicketRecord, error) {
	return s.tickets, nil
}

func TestLoaderLoad(t *testing.T) {
	src := &stubSource{
		releases: []ReleaseRecord{{VersionID: "1", Date: day(10)}},
		tickets:  []TicketRecord{{Key: "PROJ-1", Created: day(1), Resolved: day(2)}},
	}

	tl, tickets, err := NewLoader(src).Load(context.Background(), "PROJ")
	require.NoError(t, err)
	assert.Equal(t, 1, tl.Len())
	assert.Len(t, tickets, 1)

	_, _, err = NewLoader(&stubSource{}).Load(context.Background(), "EMPTY")
	assert.Error(t, err)

	boom := errors.New("boom")
	_, _, err = NewLoader(&stubSource{err: boom}).Load(context.Background(), "PROJ")
	assert.ErrorIs(t, err, boom)
}
