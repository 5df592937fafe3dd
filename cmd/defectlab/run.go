package main

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/rohankatakam/defectlab/internal/config"
	"github.com/rohankatakam/defectlab/internal/git"
	"github.com/rohankatakam/defectlab/internal/ingestion"
	"github.com/rohankatakam/defectlab/internal/pipeline"
	"github.com/rohankatakam/defectlab/internal/storage"
	"github.com/rohankatakam/defectlab/internal/treesitter"
)

var runFlags struct {
	project   string
	repo      string
	panel     []string
	fraction  float64
	threshold int
	backend   string
	sink      string
	output    string
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Label a project's releases and write walk-forward datasets",
	Long: `Run the whole labeling job for one project:

  1. load releases and fixed bugs from Jira
  2. link fixing commits by ticket key
  3. filter inconsistent tickets and estimate missing injected versions
  4. snapshot the walked releases and collect class metrics
  5. label buggy methods and write one training and one testing dataset
     per walk-forward iteration

Examples:
  defectlab run --project BOOKKEEPER --repo https://github.com/apache/bookkeeper.git --panel AVRO,STORM
  defectlab run --sink both --output out/`,
	RunE: runRun,
}

func init() {
	f := runCmd.Flags()
	f.StringVarP(&runFlags.project, "project", "p", "", "tracker project key")
	f.StringVar(&runFlags.repo, "repo", "", "repository path or clone URL")
	f.StringSliceVar(&runFlags.panel, "panel", nil, "reference projects for the cold start")
	f.Float64Var(&runFlags.fraction, "fraction", 0, "share of releases to walk")
	f.IntVar(&runFlags.threshold, "threshold", 0, "known tickets needed before the project's own proportion is used")
	f.StringVar(&runFlags.backend, "backend", "", "vcs backend: gogit or cli")
	f.StringVar(&runFlags.sink, "sink", "", "dataset sink: csv, sql or both")
	f.StringVarP(&runFlags.output, "output", "o", "", "csv output directory")
}

// applyRunFlags copies explicitly set flags over the loaded configuration
func applyRunFlags(cmd *cobra.Command, c *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("project") {
		c.Project.Key = runFlags.project
	}
	if flags.Changed("repo") {
		c.Project.Repository = runFlags.repo
	}
	if flags.Changed("panel") {
		c.Proportion.Panel = runFlags.panel
	}
	if flags.Changed("fraction") {
		c.WalkForward.Fraction = runFlags.fraction
	}
	if flags.Changed("threshold") {
		c.Proportion.Threshold = runFlags.threshold
	}
	if flags.Changed("backend") {
		c.VCS.Backend = runFlags.backend
	}
	if flags.Changed("sink") {
		c.Sink.Type = runFlags.sink
	}
	if flags.Changed("output") {
		c.Sink.OutputDir = runFlags.output
	}
}

func runRun(cmd *cobra.Command, args []string) error {
	applyRunFlags(cmd, cfg)
	result := cfg.Validate(config.ValidationContextRun)
	for _, w := range result.Warnings {
		logger.Warn(w)
	}
	if err := result.Err(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	repoPath, err := ingestion.ResolveRepository(ctx, cfg.Project.Repository, cfg.VCS.ReposDir)
	if err != nil {
		return err
	}
	backend, err := git.Open(git.Kind(cfg.VCS.Backend), repoPath)
	if err != nil {
		return err
	}

	tracker, closeTracker, err := openTracker(ctx)
	if err != nil {
		return err
	}
	defer closeTracker()

	sinks, err := storage.OpenSinks(ctx, storage.SinkConfig{
		Type:      cfg.Sink.Type,
		OutputDir: cfg.Sink.OutputDir,
		Driver:    cfg.Sink.Driver,
		DSN:       cfg.Sink.DSN,
	}, cfg.Project.Key, logger)
	if err != nil {
		return err
	}
	defer sinks.Close()

	manifestDir := cfg.Sink.OutputDir
	if manifestDir == "" {
		manifestDir = "."
	}

	p := pipeline.New(pipeline.Options{
		Project:          cfg.Project.Key,
		Repository:       cfg.Project.Repository,
		Panel:            cfg.Proportion.Panel,
		Threshold:        cfg.Proportion.Threshold,
		ColdStartWorkers: cfg.Proportion.ColdStartWorkers,
		Fraction:         cfg.WalkForward.Fraction,
		Extensions:       cfg.Project.Extensions,
		Workers:          cfg.Ingestion.Workers,
		ManifestPath:     filepath.Join(manifestDir, cfg.Project.Key+"_manifest.yaml"),
	}, tracker, backend, treesitter.NewSourceParser(), sinks, logger.Logger)

	manifest, err := p.Run(ctx)
	if err != nil {
		return err
	}

	fmt.Printf("✓ %s: %d releases, %d labeled tickets, P_cold=%.3f\n",
		manifest.Project, manifest.Releases, manifest.Labeled, manifest.ColdStart.P)
	for _, it := range manifest.WalkForward.Iterations {
		status := "written"
		if it.Skipped {
			status = "skipped: " + it.Error
		}
		fmt.Printf("  iteration %d: train %d rows (%d buggy), test %d rows (%d buggy) %s\n",
			it.Iteration, it.TrainingRows, it.TrainingBugs, it.TestingRows, it.TestingBugs, status)
	}
	return nil
}
