package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/sells-group/sales-etl/internal/model"
	"github.com/sells-group/sales-etl/internal/pipeline"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run convert, transform and validate for every entity",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runStage(cmd, model.StageAll, nil)
	},
}

func init() {
	addEntityFlag(runCmd)
	rootCmd.AddCommand(runCmd)
}

func addEntityFlag(cmd *cobra.Command) {
	cmd.Flags().StringSlice("entity", nil, "entities to process (customer, invoice, product, region, shipping); default all")
}

// runStage executes one stage through the pipeline engine, recording the run in the
// store and printing a report table. setup, when non-nil, wires stage dependencies
// and returns a cleanup func.
func runStage(cmd *cobra.Command, stage model.Stage, setup func(*pipeline.Engine) (func(), error)) error {
	ctx := cmd.Context()
	entities, _ := cmd.Flags().GetStringSlice("entity")

	if err := cfg.Validate(configMode(stage)); err != nil {
		return err
	}

	st, err := initStore(ctx)
	if err != nil {
		return err
	}
	defer st.Close() //nolint:errcheck

	engine := pipeline.New(cfg, st)
	if setup != nil {
		cleanup, err := setup(engine)
		if err != nil {
			return err
		}
		defer cleanup()
	}

	run, err := engine.Run(ctx, stage, entities)
	if run != nil {
		formatReports(cmd.OutOrStdout(), run)
	}
	return err
}

// configMode maps a stage to the settings it must validate.
func configMode(stage model.Stage) string {
	switch stage {
	case model.StageFetch:
		return "fetch"
	case model.StageLoad:
		return "load"
	}
	return "pipeline"
}

// formatReports writes one line per entity report of a run.
func formatReports(out io.Writer, run *model.Run) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "Run %s (%s): %s\n", truncateID(run.ID), run.Stage, run.Status)
	_, _ = fmt.Fprintln(w, "STAGE\tENTITY\tSTATUS\tROWS_IN\tROWS_OUT\tDUPLICATES\tNOTES")
	for _, r := range run.Reports {
		notes := r.Error
		if notes == "" {
			notes = strings.Join(r.Warnings, "; ")
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%d\t%s\n",
			r.Stage, r.Entity, r.Status, r.RowsIn, r.RowsOut, r.DuplicateRows, notes)
	}
	_ = w.Flush()
}
