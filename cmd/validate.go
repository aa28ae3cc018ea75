package main

import (
	"github.com/spf13/cobra"

	"github.com/sells-group/sales-etl/internal/model"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate transformed CSV files and copy passing ones to the validated directory",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runStage(cmd, model.StageValidate, nil)
	},
}

func init() {
	addEntityFlag(validateCmd)
	rootCmd.AddCommand(validateCmd)
}
