// Package walkforward produces time-ordered training and testing snapshots
// over an expanding window of releases.
package walkforward

import (
	"context"
	"fmt"
	"math"

	"github.com/sirupsen/logrus"

	"github.com/rohankatakam/defectlab/internal/errors"
	"github.com/rohankatakam/defectlab/internal/labeling"
	"github.com/rohankatakam/defectlab/internal/models"
	"github.com/rohankatakam/defectlab/internal/timeline"
)

// DefaultFraction is the share of the timeline walked by default
const DefaultFraction = 0.4

// Bound returns round(n*f): iterations run for i = 1 .. Bound-1
func Bound(n int, f float64) int {
	return int(math.Round(float64(n) * f))
}

// TrainingTickets returns the tickets already fixed by release i+1, the
// labels available when training on releases 1..i
func TrainingTickets(tickets []*models.Ticket, i int) []*models.Ticket {
	var out []*models.Ticket
	for _, t := range tickets {
		if t.FixedVersion != nil && t.FixedVersion.Index <= i+1 {
			out = append(out, t)
		}
	}
	return out
}

// Scheduler drives labeling and persistence for each iteration
type Scheduler struct {
	project  string
	timeline *timeline.Timeline
	labeler  Labeler
	sink     Sink
	fraction float64
	logger   logrus.FieldLogger
	state    State
}

// NewScheduler creates a scheduler. A non-positive fraction selects
// DefaultFraction; fractions above 1 walk until the testing release runs
// out.
func NewScheduler(tl *timeline.Timeline, labeler Labeler, sink Sink, fraction float64, logger logrus.FieldLogger) *Scheduler {
	if fraction <= 0 {
		fraction = DefaultFraction
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Scheduler{
		project:  tl.Project,
		timeline: tl,
		labeler:  labeler,
		sink:     sink,
		fraction: fraction,
		logger:   logger,
		state:    StateRunning,
	}
}

// State returns the current run state
func (s *Scheduler) State() State {
	return s.state
}

// Run walks iterations i = 1 .. Bound-1. Iteration i labels releases 1..i
// with the tickets fixed by release i+1 for training, then release i+1 with
// every ticket for testing. A missing testing release ends the run. A sink
// failure skips the iteration. Only labeling errors (context cancellation)
// are returned.
func (s *Scheduler) Run(ctx context.Context, tickets []*models.Ticket) (*Summary, error) {
	s.state = StateRunning
	summary := &Summary{
		Releases: s.timeline.Len(),
		Bound:    Bound(s.timeline.Len(), s.fraction),
		Reason:   DoneExhausted,
	}

	for i := 1; i < summary.Bound; i++ {
		testing := s.timeline.ByIndex(i + 1)
		if testing == nil {
			summary.Reason = DoneNoTestingRelease
			break
		}

		outcome, err := s.iterate(ctx, i, testing, tickets)
		if err != nil {
			s.state = StateDone
			summary.Terminal = s.state
			return summary, err
		}
		if outcome.Skipped {
			summary.Skipped++
		}
		summary.Iterations = append(summary.Iterations, *outcome)
	}

	s.state = StateDone
	summary.Terminal = s.state
	s.logger.WithFields(logrus.Fields{
		"project":    s.project,
		"iterations": len(summary.Iterations),
		"skipped":    summary.Skipped,
		"reason":     summary.Reason,
	}).Info("walk-forward finished")

	return summary, nil
}

func (s *Scheduler) iterate(ctx context.Context, i int, testing *models.Release, tickets []*models.Ticket) (*IterationOutcome, error) {
	log := s.logger.WithField("iteration", i)
	outcome := &IterationOutcome{Iteration: i}

	train := s.timeline.UpTo(i)
	res, err := s.labeler.Label(ctx, train, TrainingTickets(tickets, i))
	if err != nil {
		return nil, fmt.Errorf("label training snapshot %d: %w", i, err)
	}
	outcome.Training = res
	trainSnap := s.snapshot(i, RoleTraining, train)

	test := []*models.Release{testing}
	res, err = s.labeler.Label(ctx, test, tickets)
	if err != nil {
		return nil, fmt.Errorf("label testing snapshot %d: %w", i, err)
	}
	outcome.Testing = res
	testSnap := s.snapshot(i, RoleTesting, test)
	log.WithField("buggy", labeling.BuggyMethods(test)).Debug("testing release labeled")

	outcome.TrainingRows, outcome.TrainingBugs = len(trainSnap.Rows), trainSnap.Buggy()
	outcome.TestingRows, outcome.TestingBugs = len(testSnap.Rows), testSnap.Buggy()

	for _, snap := range []*Snapshot{trainSnap, testSnap} {
		if err := s.sink.Write(ctx, snap); err != nil {
			iterErr := errors.IterationError(err, i).WithContext("role", string(snap.Role))
			log.WithError(iterErr).Error("snapshot not persisted")
			outcome.Skipped = true
			outcome.Error = iterErr.Error()
			return outcome, nil
		}
	}

	log.WithFields(logrus.Fields{
		"training_rows": outcome.TrainingRows,
		"training_bugs": outcome.TrainingBugs,
		"testing_rows":  outcome.TestingRows,
		"testing_bugs":  outcome.TestingBugs,
	}).Info("iteration written")

	return outcome, nil
}

// snapshot copies the current labels of releases into rows
func (s *Scheduler) snapshot(i int, role Role, releases []*models.Release) *Snapshot {
	snap := &Snapshot{Project: s.project, Iteration: i, Role: role}
	for _, r := range releases {
		snap.Releases = append(snap.Releases, r.Index)
		snap.Rows = append(snap.Rows, Rows(r)...)
	}
	return snap
}

// Rows flattens a release into one row per method
func Rows(r *models.Release) []Row {
	var rows []Row
	for _, c := range r.Classes {
		for _, m := range c.Methods {
			rows = append(rows, Row{
				ReleaseIndex: r.Index,
				ReleaseName:  r.Name,
				ClassPath:    c.Path,
				ClassName:    c.Name,
				Method:       m.Name,
				StartLine:    m.StartLine,
				EndLine:      m.EndLine,
				ClassMetrics: c.Metrics,
				Buggy:        m.Buggy,
			})
		}
	}
	return rows
}
