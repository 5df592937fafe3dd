package consistency

import (
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rohankatakam/defectlab/internal/models"
	"github.com/rohankatakam/defectlab/internal/timeline"
)

func day(n int) time.Time {
	return time.Date(2021, 3, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, n)
}

// fiveReleases returns R1..R5 dated on days 10, 20, ..., 50
func fiveReleases() *timeline.Timeline {
	var recs []timeline.ReleaseRecord
	for i := 1; i <= 5; i++ {
		recs = append(recs, timeline.ReleaseRecord{
			VersionID: string(rune('0' + i)),
			Name:      "R" + string(rune('0'+i)),
			Date:      day(i * 10),
		})
	}
	return timeline.New("PROJ", recs)
}

func newFilter(tl *timeline.Timeline) *Filter {
	logger, _ := test.NewNullLogger()
	return NewFilter(tl, logger)
}

func ticket(tl *timeline.Timeline, key string, created, resolved int, av ...int) *models.Ticket {
	t := &models.Ticket{
		Key:            key,
		CreationDate:   day(created),
		ResolutionDate: day(resolved),
		OpeningVersion: tl.ActiveAt(day(created)),
		FixedVersion:   tl.ActiveAt(day(resolved)),
	}
	for _, idx := range av {
		t.AffectedVersions = append(t.AffectedVersions, tl.ByIndex(idx))
	}
	return t
}

func TestApplyTrustsTrackerAffectedVersions(t *testing.T) {
	tl := fiveReleases()
	f := newFilter(tl)

	// OV=R3, FV=R5, AV starts at R1
	in := ticket(tl, "PROJ-1", 25, 45, 1, 2)

	kept, report := f.Apply([]*models.Ticket{in})
	require.Len(t, kept, 1)
	assert.Equal(t, 1, report.Trusted)

	got := kept[0]
	assert.Equal(t, 1, got.InjectedVersion.Index)
	assert.Equal(t, models.IVFromTracker, got.IVOrigin)
	require.Len(t, got.AffectedVersions, 4)
	assert.Equal(t, 4, got.AffectedVersions[3].Index)

	// input untouched
	assert.Nil(t, in.InjectedVersion)
	assert.Len(t, in.AffectedVersions, 2)
}

func TestApplyDropsInconsistentAffectedVersions(t *testing.T) {
	tl := fiveReleases()

	tests := []struct {
		name string
		tk   *models.Ticket
	}{
		// AV[0] equals OV (R3)
		{"av equals ov", ticket(tl, "PROJ-1", 25, 45, 3)},
		// AV[0]=R4 dated day 40, after creation on day 25
		{"av after creation", ticket(tl, "PROJ-2", 25, 45, 4)},
		// AV[0]=R5 dated day 50, not before resolution on day 45
		{"av not before resolution", ticket(tl, "PROJ-3", 5, 45, 5)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			kept, report := newFilter(tl).Apply([]*models.Ticket{tt.tk})
			assert.Empty(t, kept)
			assert.Equal(t, []string{tt.tk.Key}, report.Dropped[ReasonInconsistentAV])
		})
	}
}

func TestApplyStructuralRules(t *testing.T) {
	tl := fiveReleases()

	atFirst := ticket(tl, "PROJ-1", 5, 45)
	unresolved := ticket(tl, "PROJ-2", 25, 99)
	reversed := ticket(tl, "PROJ-3", 25, 45)
	reversed.OpeningVersion, reversed.FixedVersion = tl.ByIndex(5), tl.ByIndex(3)
	fine := ticket(tl, "PROJ-4", 25, 45)

	kept, report := newFilter(tl).Apply([]*models.Ticket{atFirst, unresolved, reversed, fine})

	require.Len(t, kept, 1)
	assert.Equal(t, "PROJ-4", kept[0].Key)
	assert.Equal(t, []string{"PROJ-1"}, report.Dropped[ReasonOpenedAtFirst])
	assert.Equal(t, []string{"PROJ-2"}, report.Dropped[ReasonUnresolved])
	assert.Equal(t, []string{"PROJ-3"}, report.Dropped[ReasonOpenedAfterFix])
	assert.Equal(t, 3, report.DroppedCount())
}

// estimated mimics a ticket whose injected version came from Proportion
func estimated(tl *timeline.Timeline, tk *models.Ticket, iv int) *models.Ticket {
	tk.InjectedVersion = tl.ByIndex(iv)
	tk.IVOrigin = models.IVEstimated
	tk.AffectedVersions = tl.AffectedRange(tk.InjectedVersion, tk.FixedVersion)
	return tk
}

func TestApplyDropsEstimatesAtOrAfterOpening(t *testing.T) {
	tl := fiveReleases()

	tests := []struct {
		name string
		tk   *models.Ticket
	}{
		// OV=R2, FV=R4, IV=R3: AV[0] dated day 30, after creation on day 15
		{"injected after opening", estimated(tl, ticket(tl, "PROJ-1", 15, 35), 3)},
		// OV=R3, FV=R5, IV=R3: AV[0] equals OV
		{"injected at opening", estimated(tl, ticket(tl, "PROJ-2", 25, 45), 3)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			kept, report := newFilter(tl).Apply([]*models.Ticket{tt.tk})
			assert.Empty(t, kept)
			assert.Equal(t, []string{tt.tk.Key}, report.Dropped[ReasonInconsistentAV])
		})
	}
}

func TestApplyKeepsEstimateBeforeOpening(t *testing.T) {
	tl := fiveReleases()
	tk := estimated(tl, ticket(tl, "PROJ-1", 25, 45), 2)

	kept, report := newFilter(tl).Apply([]*models.Ticket{tk})
	require.Len(t, kept, 1)
	assert.Equal(t, 1, report.Trusted)
	assert.Equal(t, 2, kept[0].InjectedVersion.Index)
	assert.Equal(t, models.IVEstimated, kept[0].IVOrigin)
	assert.Len(t, kept[0].AffectedVersions, 3)
}

func TestApplyKeepsEstimateWithEmptyAffectedRange(t *testing.T) {
	tl := fiveReleases()
	// OV=FV=R4 and IV=R4 leaves no affected release to check
	tk := estimated(tl, ticket(tl, "PROJ-1", 32, 38), 4)
	require.Empty(t, tk.AffectedVersions)

	kept, report := newFilter(tl).Apply([]*models.Ticket{tk})
	require.Len(t, kept, 1)
	assert.Zero(t, report.DroppedCount())
}

func TestApplyOnReleaseDay(t *testing.T) {
	tl := fiveReleases()
	// opened late on R2's own day, so OV=R2 and AV[0]=R2 equals it
	tk := &models.Ticket{
		Key:            "PROJ-1",
		CreationDate:   day(20).Add(15 * time.Hour),
		ResolutionDate: day(45),
	}
	tk.OpeningVersion = tl.ActiveAt(tk.CreationDate)
	tk.FixedVersion = tl.ActiveAt(tk.ResolutionDate)
	tk.AffectedVersions = []*models.Release{tl.ByIndex(2)}
	require.Equal(t, 2, tk.OpeningVersion.Index)

	kept, report := newFilter(tl).Apply([]*models.Ticket{tk})
	assert.Empty(t, kept)
	assert.Equal(t, []string{"PROJ-1"}, report.Dropped[ReasonInconsistentAV])
}

func TestApplyInvariantHoldsAfterSecondPass(t *testing.T) {
	tl := fiveReleases()
	f := newFilter(tl)

	var tickets []*models.Ticket
	for i := 0; i < 40; i++ {
		tickets = append(tickets, ticket(tl, "PROJ-"+string(rune('A'+i%26)), 5+i, 10+i*2, 1+i%5))
	}

	first, _ := f.Apply(tickets)
	second, report := f.Apply(first)
	assert.Equal(t, 2, report.Pass)

	for _, tk := range second {
		assert.LessOrEqual(t, tk.OpeningVersion.Index, tk.FixedVersion.Index)
		if tk.HasIV() {
			assert.LessOrEqual(t, tk.InjectedVersion.Index, tk.OpeningVersion.Index)
		}
	}
}

func TestRequireIV(t *testing.T) {
	tl := fiveReleases()
	with := ticket(tl, "PROJ-1", 25, 45)
	with.InjectedVersion = tl.ByIndex(2)
	without := ticket(tl, "PROJ-2", 25, 45)

	report := &Report{}
	kept := RequireIV([]*models.Ticket{with, without}, report)
	require.Len(t, kept, 1)
	assert.Equal(t, []string{"PROJ-2"}, report.Dropped[ReasonInjectedMissing])
}

func TestNewFilterDefaultsLogger(t *testing.T) {
	f := NewFilter(fiveReleases(), nil)
	assert.Equal(t, logrus.StandardLogger(), f.logger)
}
