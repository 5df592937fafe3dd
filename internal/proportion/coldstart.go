package proportion

import (
	"context"
	stderrors "errors"
	"fmt"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/rohankatakam/defectlab/internal/consistency"
	"github.com/rohankatakam/defectlab/internal/errors"
	"github.com/rohankatakam/defectlab/internal/timeline"
)

// ErrNoColdStartSamples is returned when no panel project yields a ticket
// with a trusted injected version
var ErrNoColdStartSamples = stderrors.New("no cold start samples in reference panel")

// PanelResult is the contribution of one reference project
type PanelResult struct {
	Project string    `json:"project" yaml:"project"`
	Samples []float64 `json:"-" yaml:"-"`
	Count   int       `json:"count" yaml:"count"`
	Err     string    `json:"error,omitempty" yaml:"error,omitempty"`
}

// ColdStartResult is the pooled cold-start proportion
type ColdStartResult struct {
	P        float64       `json:"p" yaml:"p"`
	Samples  int           `json:"samples" yaml:"samples"`
	Projects []PanelResult `json:"projects" yaml:"projects"`
}

// ColdStart computes the mean P over the trusted tickets of every panel
// project. Projects are fetched concurrently with at most parallel in
// flight, but samples are pooled in panel order so the result does not
// depend on scheduling. A project that fails to load contributes nothing.
func ColdStart(ctx context.Context, loader *timeline.Loader, panel []string, parallel int, logger logrus.FieldLogger) (*ColdStartResult, error) {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	if parallel < 1 {
		parallel = 1
	}

	results := make([]PanelResult, len(panel))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(parallel)

	for i, project := range panel {
		i, project := i, project
		g.Go(func() error {
			results[i] = panelSamples(gctx, loader, project, logger)
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("cold start: %w", err)
	}

	out := &ColdStartResult{Projects: results}
	sum := 0.0
	for _, r := range results {
		for _, p := range r.Samples {
			sum += p
		}
		out.Samples += len(r.Samples)
	}

	if out.Samples == 0 {
		return out, errors.Wrap(ErrNoColdStartSamples, errors.ErrorTypeConfig, errors.SeverityCritical, "cold start").
			WithContext("panel", panel)
	}

	out.P = sum / float64(out.Samples)
	logger.WithFields(logrus.Fields{
		"p_cold":  out.P,
		"samples": out.Samples,
		"panel":   len(panel),
	}).Info("cold start proportion computed")

	return out, nil
}

func panelSamples(ctx context.Context, loader *timeline.Loader, project string, logger logrus.FieldLogger) PanelResult {
	res := PanelResult{Project: project}
	log := logger.WithField("project", project)

	tl, tickets, err := loader.Load(ctx, project)
	if err != nil {
		res.Err = err.Error()
		log.WithError(err).Warn("reference project skipped")
		return res
	}

	kept, report := consistency.NewFilter(tl, log).Apply(tickets)
	kept = consistency.RequireIV(kept, report)

	for _, t := range kept {
		res.Samples = append(res.Samples, TicketP(t))
	}
	res.Count = len(res.Samples)

	log.WithField("samples", res.Count).Debug("reference project sampled")
	return res
}
