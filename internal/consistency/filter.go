// Package consistency discards tickets whose version metadata contradicts
// itself and sets injected versions from trusted tracker data.
package consistency

import (
	"github.com/sirupsen/logrus"

	"github.com/rohankatakam/defectlab/internal/errors"
	"github.com/rohankatakam/defectlab/internal/models"
	"github.com/rohankatakam/defectlab/internal/timeline"
)

// Reason names why a ticket was dropped
type Reason string

const (
	ReasonInconsistentAV  Reason = "inconsistent_affected_versions"
	ReasonUnresolved      Reason = "unresolved_versions"
	ReasonOpenedAtFirst   Reason = "opened_at_first_release"
	ReasonOpenedAfterFix  Reason = "opened_after_fix"
	ReasonInjectedMissing Reason = "injected_version_missing"
)

// Report summarises one filter pass
type Report struct {
	Pass     int                 `json:"pass" yaml:"pass"`
	Input    int                 `json:"input" yaml:"input"`
	Kept     int                 `json:"kept" yaml:"kept"`
	Trusted int                 `json:"trusted" yaml:"trusted"`
	Dropped map[Reason][]string `json:"dropped,omitempty" yaml:"dropped,omitempty"`
}

// DroppedCount returns the number of dropped tickets over all reasons
func (r *Report) DroppedCount() int {
	n := 0
	for _, keys := range r.Dropped {
		n += len(keys)
	}
	return n
}

func (r *Report) drop(reason Reason, key string) {
	if r.Dropped == nil {
		r.Dropped = make(map[Reason][]string)
	}
	r.Dropped[reason] = append(r.Dropped[reason], key)
}

// Filter applies the consistency rules against one project's timeline
type Filter struct {
	timeline *timeline.Timeline
	logger   logrus.FieldLogger
	passes   int
}

// NewFilter creates a filter for tickets of tl
func NewFilter(tl *timeline.Timeline, logger logrus.FieldLogger) *Filter {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Filter{timeline: tl, logger: logger}
}

// Apply returns the tickets that survive the rules. Input tickets are not
// modified; survivors are copies carrying any injected version set here.
//
// The affected-versions rule runs on every resolvable ticket with affected
// versions, including those whose list was derived from an estimate. An
// estimate at or after the opening version therefore fails it and the
// ticket is dropped.
func (f *Filter) Apply(tickets []*models.Ticket) ([]*models.Ticket, *Report) {
	f.passes++
	report := &Report{Pass: f.passes, Input: len(tickets)}
	kept := make([]*models.Ticket, 0, len(tickets))

	for _, in := range tickets {
		t := in.Clone()

		if len(t.AffectedVersions) > 0 && t.Resolvable() {
			if !f.trustAffected(t) {
				f.dropped(report, ReasonInconsistentAV, t)
				continue
			}
			report.Trusted++
		}

		if reason, ok := f.check(t); !ok {
			f.dropped(report, reason, t)
			continue
		}

		kept = append(kept, t)
	}

	report.Kept = len(kept)
	f.logger.WithFields(logrus.Fields{
		"pass":    report.Pass,
		"input":   report.Input,
		"kept":    report.Kept,
		"trusted": report.Trusted,
		"dropped": report.DroppedCount(),
	}).Info("consistency filter applied")

	return kept, report
}

// trustAffected sets IV from the first affected version when it is dated
// before the fix, not after the opening, and differs from OV. An injected
// version that came from an estimate keeps its origin.
func (f *Filter) trustAffected(t *models.Ticket) bool {
	first := t.AffectedVersions[0]
	if !first.Date.Before(t.ResolutionDate) {
		return false
	}
	if first.Date.After(t.CreationDate) {
		return false
	}
	if first.Equal(t.OpeningVersion) {
		return false
	}

	t.InjectedVersion = first
	if t.IVOrigin != models.IVEstimated {
		t.IVOrigin = models.IVFromTracker
	}
	t.AffectedVersions = f.timeline.AffectedRange(first, t.FixedVersion)
	return true
}

func (f *Filter) check(t *models.Ticket) (Reason, bool) {
	switch {
	case !t.Resolvable():
		return ReasonUnresolved, false
	case t.OpeningVersion.Index <= 1:
		return ReasonOpenedAtFirst, false
	case t.OpeningVersion.Index > t.FixedVersion.Index:
		return ReasonOpenedAfterFix, false
	}
	return "", true
}

func (f *Filter) dropped(report *Report, reason Reason, t *models.Ticket) {
	report.drop(reason, t.Key)
	err := errors.TicketErrorf(t.Key, "ticket dropped: %s", reason)
	f.logger.WithField("ticket", t.Key).Debug(err.Error())
}

// RequireIV drops tickets that still have no injected version
func RequireIV(tickets []*models.Ticket, report *Report) []*models.Ticket {
	kept := make([]*models.Ticket, 0, len(tickets))
	for _, t := range tickets {
		if !t.HasIV() {
			if report != nil {
				report.drop(ReasonInjectedMissing, t.Key)
			}
			continue
		}
		kept = append(kept, t)
	}
	if report != nil {
		report.Kept = len(kept)
	}
	return kept
}
