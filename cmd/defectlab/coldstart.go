package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rohankatakam/defectlab/internal/config"
	"github.com/rohankatakam/defectlab/internal/pipeline"
)

var coldStartPanel []string

var coldStartCmd = &cobra.Command{
	Use:   "coldstart",
	Short: "Compute the cold-start proportion of the reference panel",
	Long: `Fetch every reference project, keep its tickets with trustworthy affected
versions and print the pooled mean proportion used before a project has
enough history of its own.`,
	RunE: runColdStart,
}

func init() {
	coldStartCmd.Flags().StringSliceVar(&coldStartPanel, "panel", nil, "reference projects (default: proportion.panel)")
}

func runColdStart(cmd *cobra.Command, args []string) error {
	if cmd.Flags().Changed("panel") {
		cfg.Proportion.Panel = coldStartPanel
	}
	if err := cfg.Validate(config.ValidationContextColdStart).Err(); err != nil {
		return err
	}

	ctx := cmd.Context()
	tracker, closeTracker, err := openTracker(ctx)
	if err != nil {
		return err
	}
	defer closeTracker()

	res, err := pipeline.ColdStart(ctx, tracker, cfg.Proportion.Panel, cfg.Proportion.ColdStartWorkers, logger.Logger)
	if res != nil {
		for _, p := range res.Projects {
			if p.Err != "" {
				fmt.Printf("  %-12s skipped: %s\n", p.Project, p.Err)
				continue
			}
			fmt.Printf("  %-12s %d samples\n", p.Project, p.Count)
		}
	}
	if err != nil {
		return err
	}

	fmt.Printf("P_cold = %.4f over %d samples\n", res.P, res.Samples)
	return nil
}
