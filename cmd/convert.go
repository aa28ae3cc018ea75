package main

import (
	"github.com/spf13/cobra"

	"github.com/sells-group/sales-etl/internal/model"
)

var convertCmd = &cobra.Command{
	Use:   "convert",
	Short: "Convert raw exports into source CSV files",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runStage(cmd, model.StageConvert, nil)
	},
}

func init() {
	addEntityFlag(convertCmd)
	rootCmd.AddCommand(convertCmd)
}
