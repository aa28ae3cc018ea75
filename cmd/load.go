package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/sales-etl/internal/model"
	"github.com/sells-group/sales-etl/internal/pipeline"
	"github.com/sells-group/sales-etl/internal/store"
	"github.com/sells-group/sales-etl/internal/warehouse"
)

var loadCmd = &cobra.Command{
	Use:   "load",
	Short: "Load validated CSV files into the Postgres warehouse",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		return runStage(cmd, model.StageLoad, func(e *pipeline.Engine) (func(), error) {
			pool, err := store.NewPool(ctx, cfg.Warehouse.DatabaseURL, nil)
			if err != nil {
				return nil, eris.Wrap(err, "connect warehouse")
			}
			e.Loader = warehouse.New(pool, cfg.Warehouse.Schema)
			e.Keys = warehouse.KeysFor
			return pool.Close, nil
		})
	},
}

func init() {
	addEntityFlag(loadCmd)
	rootCmd.AddCommand(loadCmd)
}
