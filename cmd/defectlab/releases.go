package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/rohankatakam/defectlab/internal/config"
	"github.com/rohankatakam/defectlab/internal/pipeline"
	"github.com/rohankatakam/defectlab/internal/walkforward"
)

var releasesProject string

var releasesCmd = &cobra.Command{
	Use:   "releases",
	Short: "List the dated releases of a project",
	RunE:  runReleases,
}

func init() {
	releasesCmd.Flags().StringVarP(&releasesProject, "project", "p", "", "tracker project key (default: project.key)")
}

func runReleases(cmd *cobra.Command, args []string) error {
	if cmd.Flags().Changed("project") {
		cfg.Project.Key = releasesProject
	}
	if err := cfg.Validate(config.ValidationContextReleases).Err(); err != nil {
		return err
	}

	ctx := cmd.Context()
	tracker, closeTracker, err := openTracker(ctx)
	if err != nil {
		return err
	}
	defer closeTracker()

	releases, err := pipeline.Releases(ctx, tracker, cfg.Project.Key)
	if err != nil {
		return err
	}

	bound := walkforward.Bound(len(releases), cfg.WalkForward.Fraction)
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "INDEX\tNAME\tDATE\tFIXED\tWALKED")
	for _, r := range releases {
		walked := ""
		if r.Index <= bound {
			walked = "✓"
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%d\t%s\n", r.Index, r.Name, r.Date.Format("2006-01-02"), r.Tickets, walked)
	}
	return w.Flush()
}
