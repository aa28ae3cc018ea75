package main

import (
	"github.com/spf13/cobra"

	"github.com/sells-group/sales-etl/internal/model"
)

var transformCmd = &cobra.Command{
	Use:   "transform",
	Short: "Clean source CSV files into the transformed directory",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runStage(cmd, model.StageTransform, nil)
	},
}

func init() {
	addEntityFlag(transformCmd)
	rootCmd.AddCommand(transformCmd)
}
