package main

import (
	"github.com/spf13/cobra"
	"golang.org/x/time/rate"

	"github.com/sells-group/sales-etl/internal/config"
	"github.com/sells-group/sales-etl/internal/fetcher"
	"github.com/sells-group/sales-etl/internal/model"
	"github.com/sells-group/sales-etl/internal/pipeline"
	"github.com/sells-group/sales-etl/internal/resilience"
)

var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Download raw exports from their configured http(s) or ftp URLs",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runStage(cmd, model.StageFetch, func(e *pipeline.Engine) (func(), error) {
			e.Acquirer = newRouter(cfg.Fetch)
			return func() {}, nil
		})
	},
}

func init() {
	addEntityFlag(fetchCmd)
	rootCmd.AddCommand(fetchCmd)
}

func newRouter(fc config.FetchConfig) *fetcher.Router {
	return &fetcher.Router{
		HTTP: fetcher.NewHTTPFetcher(fetcher.HTTPOptions{
			UserAgent:  fc.UserAgent,
			Timeout:    fc.Timeout(),
			MaxRetries: fc.MaxRetries,
			RateLimit:  rate.Limit(fc.RateLimit),
		}),
		FTP: fetcher.NewFTPFetcher(fetcher.FTPOptions{
			Timeout:  fc.Timeout(),
			User:     fc.FTPUser,
			Password: fc.FTPPassword,
			Retry:    resilience.RetryConfig{MaxAttempts: fc.MaxRetries},
		}),
	}
}
