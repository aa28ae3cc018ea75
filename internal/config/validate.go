package config

import (
	"strings"

	"github.com/rotisserie/eris"
)

// Validate checks the settings a command mode depends on. Modes are "pipeline",
// "fetch", "load" and "serve"; every problem is reported in one error.
func (c *Config) Validate(mode string) error {
	var errs []string

	switch mode {
	case "pipeline":
	case "fetch":
		if len(c.Fetch.URLs) == 0 {
			errs = append(errs, "fetch.urls is required")
		}
		if c.Fetch.MaxRetries < 1 {
			errs = append(errs, "fetch.max_retries must be >= 1")
		}
		if c.Fetch.RateLimit <= 0 {
			errs = append(errs, "fetch.rate_limit must be > 0")
		}
	case "load":
		if c.Warehouse.DatabaseURL == "" {
			errs = append(errs, "warehouse.database_url is required")
		}
		if c.Warehouse.Schema == "" {
			errs = append(errs, "warehouse.schema is required")
		}
	case "serve":
		if c.Server.Port <= 0 {
			errs = append(errs, "server.port must be > 0")
		}
		if c.Monitor.WebhookURL != "" {
			if c.Monitor.FailureRateThreshold <= 0 || c.Monitor.FailureRateThreshold > 1 {
				errs = append(errs, "monitor.failure_rate_threshold must be in (0, 1]")
			}
			if c.Monitor.LookbackWindowHours < 1 {
				errs = append(errs, "monitor.lookback_window_hours must be >= 1")
			}
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if c.Transform.CustomerIDWidth < 1 {
		errs = append(errs, "transform.customer_id_width must be >= 1")
	}
	if c.Transform.DateLayout == "" {
		errs = append(errs, "transform.date_layout is required")
	}
	switch c.Store.Driver {
	case "sqlite", "postgres":
	default:
		errs = append(errs, "store.driver must be sqlite or postgres")
	}
	if c.Store.DatabaseURL == "" {
		errs = append(errs, "store.database_url is required")
	}

	if len(errs) > 0 {
		return eris.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}
