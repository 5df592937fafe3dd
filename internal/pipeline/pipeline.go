// Package pipeline runs a complete labeling job: it loads the release
// timeline and tickets of one project, estimates injected versions, snapshots
// the walked releases and hands them to the walk-forward scheduler.
package pipeline

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/rohankatakam/defectlab/internal/consistency"
	"github.com/rohankatakam/defectlab/internal/errors"
	"github.com/rohankatakam/defectlab/internal/git"
	"github.com/rohankatakam/defectlab/internal/ingestion"
	"github.com/rohankatakam/defectlab/internal/labeling"
	"github.com/rohankatakam/defectlab/internal/linking"
	"github.com/rohankatakam/defectlab/internal/metrics"
	"github.com/rohankatakam/defectlab/internal/models"
	"github.com/rohankatakam/defectlab/internal/proportion"
	"github.com/rohankatakam/defectlab/internal/storage"
	"github.com/rohankatakam/defectlab/internal/timeline"
	"github.com/rohankatakam/defectlab/internal/walkforward"
)

// Parser is the source parser used for both snapshots and labeling;
// *treesitter.SourceParser implements it
type Parser interface {
	ingestion.SourceParser
	labeling.Parser
}

// Options selects what a run does
type Options struct {
	Project          string
	Repository       string // recorded in the manifest only
	Panel            []string
	Threshold        int
	ColdStartWorkers int
	Fraction         float64
	Extensions       []string
	Workers          int
	ManifestPath     string // empty skips the manifest
}

// Pipeline wires the collaborators of one run
type Pipeline struct {
	opts    Options
	source  timeline.Source
	backend git.Backend
	parser  Parser
	sink    walkforward.Sink
	logger  *logrus.Logger
}

// New creates a pipeline. The backend, source and sink are owned by the
// caller.
func New(opts Options, source timeline.Source, backend git.Backend, parser Parser, sink walkforward.Sink, logger *logrus.Logger) *Pipeline {
	if opts.Fraction <= 0 {
		opts.Fraction = walkforward.DefaultFraction
	}
	if opts.Threshold < 1 {
		opts.Threshold = proportion.DefaultThreshold
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Pipeline{
		opts:    opts,
		source:  source,
		backend: backend,
		parser:  parser,
		sink:    sink,
		logger:  logger,
	}
}

// Manifest records what a run did
type Manifest struct {
	RunID           string                      `yaml:"run_id"`
	Project         string                      `yaml:"project"`
	Repository      string                      `yaml:"repository,omitempty"`
	StartedAt       time.Time                   `yaml:"started_at"`
	Duration        time.Duration               `yaml:"duration"`
	Releases        int                         `yaml:"releases"`
	Commits         int                         `yaml:"commits"`
	CommitsAssigned int                         `yaml:"commits_assigned"`
	Tickets         int                         `yaml:"tickets"`
	Linking         *linking.Stats              `yaml:"linking"`
	Filter          []*consistency.Report       `yaml:"filter"`
	ColdStart       *proportion.ColdStartResult `yaml:"cold_start"`
	Estimated       int                         `yaml:"estimated"`
	EstimatedCold   int                         `yaml:"estimated_cold"`
	Labeled         int                         `yaml:"labeled_tickets"`
	Build           *ingestion.BuildResult      `yaml:"build"`
	Metrics         *metrics.Stats              `yaml:"metrics"`
	WalkForward     *walkforward.Summary        `yaml:"walkforward"`
}

// Run executes the whole job. Errors returned here abort the run; per
// ticket, commit and iteration failures are logged and counted instead.
func (p *Pipeline) Run(ctx context.Context) (*Manifest, error) {
	manifest := &Manifest{
		RunID:      uuid.NewString(),
		Project:    p.opts.Project,
		Repository: p.opts.Repository,
		StartedAt:  time.Now().UTC(),
	}
	log := p.logger.WithFields(logrus.Fields{
		"project": p.opts.Project,
		"run_id":  manifest.RunID,
	})
	log.Info("starting labeling run")

	// Phase 1: releases and tickets of the target project
	loader := timeline.NewLoader(p.source)
	tl, tickets, err := loader.Load(ctx, p.opts.Project)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeExternal, errors.SeverityCritical, "load target project")
	}
	manifest.Releases = tl.Len()
	manifest.Tickets = len(tickets)

	// Phase 2: commits into release windows, then onto tickets
	commits, err := p.backend.Commits(ctx)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeVCS, errors.SeverityCritical, "read commit history")
	}
	manifest.Commits = len(commits)
	manifest.CommitsAssigned = tl.AssignCommits(commits)
	manifest.Linking = linking.NewLinker(p.opts.Project, log).Link(tickets, commits)

	// Phase 3: first consistency pass, trusting tracker affected versions
	filter := consistency.NewFilter(tl, log)
	kept, report := filter.Apply(tickets)
	manifest.Filter = append(manifest.Filter, report)

	// Phase 4: injected versions for the rest
	cold, err := proportion.ColdStart(ctx, loader, p.opts.Panel, p.opts.ColdStartWorkers, log)
	manifest.ColdStart = cold
	if err != nil {
		return manifest, err
	}
	kept, estimates := proportion.NewEstimator(tl, cold.P, p.opts.Threshold, log).Process(kept)
	manifest.Estimated = len(estimates)
	for _, est := range estimates {
		if est.ColdStart {
			manifest.EstimatedCold++
		}
	}

	// Phase 5: second pass over estimated versions
	kept, report = filter.Apply(kept)
	kept = consistency.RequireIV(kept, report)
	manifest.Filter = append(manifest.Filter, report)
	manifest.Labeled = len(kept)

	// Phase 6: snapshots and metrics of the releases the walk can reach
	walked := tl.UpTo(walkforward.Bound(tl.Len(), p.opts.Fraction))
	builder := ingestion.NewBuilder(&ingestion.BuilderConfig{
		Extensions: p.opts.Extensions,
		Workers:    p.opts.Workers,
	}, p.backend, p.parser, log)
	if manifest.Build, err = builder.Build(ctx, walked); err != nil {
		return manifest, err
	}
	if manifest.Metrics, err = metrics.NewCollector(p.backend, log).Collect(ctx, walked); err != nil {
		return manifest, err
	}
	if len(walked) > 0 {
		last := walked[len(walked)-1]
		log.WithFields(logrus.Fields{
			"release": last.Name,
			"classes": metrics.TopChurn(last, 5),
		}).Debug("highest churn classes")
	}

	// Phase 7: walk forward
	labeler := labeling.NewLabeler(p.backend, p.parser, p.opts.Extensions, log)
	scheduler := walkforward.NewScheduler(tl, labeler, p.sink, p.opts.Fraction, log)
	summary, err := scheduler.Run(ctx, kept)
	manifest.WalkForward = summary
	manifest.Duration = time.Since(manifest.StartedAt)
	if err != nil {
		return manifest, err
	}

	if p.opts.ManifestPath != "" {
		if err := storage.WriteManifest(p.opts.ManifestPath, manifest); err != nil {
			log.WithError(err).Warn("failed to write run manifest")
		}
	}

	log.WithFields(logrus.Fields{
		"duration":   manifest.Duration.String(),
		"releases":   manifest.Releases,
		"tickets":    manifest.Labeled,
		"iterations": len(summary.Iterations),
	}).Info("labeling run completed")

	return manifest, nil
}

// ColdStart computes the cold-start proportion of the reference panel alone
func ColdStart(ctx context.Context, source timeline.Source, panel []string, workers int, logger *logrus.Logger) (*proportion.ColdStartResult, error) {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return proportion.ColdStart(ctx, timeline.NewLoader(source), panel, workers, logger)
}

// ReleaseSummary describes one release of a project timeline
type ReleaseSummary struct {
	Index     int       `yaml:"index"`
	Name      string    `yaml:"name"`
	VersionID string    `yaml:"version_id"`
	Date      time.Time `yaml:"date"`
	Tickets   int       `yaml:"fixed_tickets"`
}

// Releases lists the dated releases of project with the number of tickets
// each one fixed
func Releases(ctx context.Context, source timeline.Source, project string) ([]ReleaseSummary, error) {
	tl, tickets, err := timeline.NewLoader(source).Load(ctx, project)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeExternal, errors.SeverityCritical, "load project")
	}

	fixed := make(map[int]int)
	for _, t := range tickets {
		if t.FixedVersion != nil {
			fixed[t.FixedVersion.Index]++
		}
	}

	out := make([]ReleaseSummary, 0, tl.Len())
	for _, r := range tl.Releases {
		out = append(out, summarize(r, fixed[r.Index]))
	}
	return out, nil
}

func summarize(r *models.Release, tickets int) ReleaseSummary {
	return ReleaseSummary{
		Index:     r.Index,
		Name:      r.Name,
		VersionID: r.VersionID,
		Date:      r.Date,
		Tickets:   tickets,
	}
}
