package config

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/sells-group/sales-etl/internal/model"
	"github.com/sells-group/sales-etl/internal/transform"
)

// Config holds the full application configuration.
type Config struct {
	Paths     PathsConfig     `yaml:"paths" mapstructure:"paths"`
	Raw       RawConfig       `yaml:"raw" mapstructure:"raw"`
	Fetch     FetchConfig     `yaml:"fetch" mapstructure:"fetch"`
	Transform TransformConfig `yaml:"transform" mapstructure:"transform"`
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Warehouse WarehouseConfig `yaml:"warehouse" mapstructure:"warehouse"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Monitor   MonitorConfig   `yaml:"monitor" mapstructure:"monitor"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
	RulesFile string          `yaml:"rules_file" mapstructure:"rules_file"`
}

// PathsConfig locates the stage directories.
type PathsConfig struct {
	Raw         string `yaml:"raw" mapstructure:"raw"`
	Source      string `yaml:"source" mapstructure:"source"`
	Transformed string `yaml:"transformed" mapstructure:"transformed"`
	Validated   string `yaml:"validated" mapstructure:"validated"`
}

// RawConfig names the raw export file for each entity inside Paths.Raw.
type RawConfig struct {
	Customer string `yaml:"customer" mapstructure:"customer"`
	Invoice  string `yaml:"invoice" mapstructure:"invoice"`
	Product  string `yaml:"product" mapstructure:"product"`
	Region   string `yaml:"region" mapstructure:"region"`
	Shipping string `yaml:"shipping" mapstructure:"shipping"`
}

// File returns the raw file name configured for entity.
func (r RawConfig) File(entity string) string {
	switch entity {
	case model.EntityCustomer:
		return r.Customer
	case model.EntityInvoice:
		return r.Invoice
	case model.EntityProduct:
		return r.Product
	case model.EntityRegion:
		return r.Region
	case model.EntityShipping:
		return r.Shipping
	}
	return ""
}

// FetchConfig configures raw file acquisition. URLs maps entity name to an
// http(s) or ftp URL; a "#member" fragment selects a file inside a ZIP archive.
type FetchConfig struct {
	URLs        map[string]string `yaml:"urls" mapstructure:"urls"`
	UserAgent   string            `yaml:"user_agent" mapstructure:"user_agent"`
	TimeoutSecs int               `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MaxRetries  int               `yaml:"max_retries" mapstructure:"max_retries"`
	RateLimit   float64           `yaml:"rate_limit" mapstructure:"rate_limit"`
	FTPUser     string            `yaml:"ftp_user" mapstructure:"ftp_user"`
	FTPPassword string            `yaml:"ftp_password" mapstructure:"ftp_password"`
}

// Timeout returns TimeoutSecs as a duration.
func (f FetchConfig) Timeout() time.Duration {
	return time.Duration(f.TimeoutSecs) * time.Second
}

// TransformConfig configures the cleaning transforms.
type TransformConfig struct {
	CustomerIDWidth int                     `yaml:"customer_id_width" mapstructure:"customer_id_width"`
	DateLayout      string                  `yaml:"date_layout" mapstructure:"date_layout"`
	CountryAliases  []CountryAlias          `yaml:"country_aliases" mapstructure:"country_aliases"`
	RegionPatches   []transform.RegionPatch `yaml:"region_patches" mapstructure:"region_patches"`
}

// CountryAlias rewrites one country spelling to its canonical name. Aliases are
// a list rather than a map because viper lower-cases map keys.
type CountryAlias struct {
	From string `yaml:"from" mapstructure:"from"`
	To   string `yaml:"to" mapstructure:"to"`
}

// AliasMap returns the aliases keyed by From.
func (t TransformConfig) AliasMap() map[string]string {
	m := make(map[string]string, len(t.CountryAliases))
	for _, a := range t.CountryAliases {
		m[a.From] = a.To
	}
	return m
}

// DefaultCountryAliases returns the built-in country spellings.
func DefaultCountryAliases() []CountryAlias {
	return []CountryAlias{
		{From: "US", To: "United States"},
		{From: "USA", To: "United States"},
		{From: "United States of America", To: "United States"},
		{From: "UK", To: "United Kingdom"},
		{From: "NZ", To: "New Zealand"},
	}
}

// StoreConfig configures the run store backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// WarehouseConfig configures the Postgres export of validated tables.
type WarehouseConfig struct {
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	Schema      string `yaml:"schema" mapstructure:"schema"`
}

// ServerConfig configures the run report API.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// MonitorConfig configures run failure alerting while the server runs. Alerts
// are only delivered when WebhookURL is set.
type MonitorConfig struct {
	WebhookURL           string  `yaml:"webhook_url" mapstructure:"webhook_url"`
	FailureRateThreshold float64 `yaml:"failure_rate_threshold" mapstructure:"failure_rate_threshold"`
	MinFinishedRuns      int     `yaml:"min_finished_runs" mapstructure:"min_finished_runs"`
	LookbackWindowHours  int     `yaml:"lookback_window_hours" mapstructure:"lookback_window_hours"`
	CheckIntervalSecs    int     `yaml:"check_interval_secs" mapstructure:"check_interval_secs"`
	StaleRunMinutes      int     `yaml:"stale_run_minutes" mapstructure:"stale_run_minutes"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("SALESETL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("paths.raw", "data/raw")
	v.SetDefault("paths.source", "data/source")
	v.SetDefault("paths.transformed", "data/transformed")
	v.SetDefault("paths.validated", "data/validated")
	v.SetDefault("raw.customer", "cust.xlsx")
	v.SetDefault("raw.invoice", "invoice.xml")
	v.SetDefault("raw.product", "product.json")
	v.SetDefault("raw.region", "regiontxt")
	v.SetDefault("raw.shipping", "shippingaddress.csv")
	v.SetDefault("fetch.user_agent", "sales-etl/1.0")
	v.SetDefault("fetch.timeout_secs", 60)
	v.SetDefault("fetch.max_retries", 3)
	v.SetDefault("fetch.rate_limit", 5)
	v.SetDefault("fetch.ftp_user", "anonymous")
	v.SetDefault("fetch.ftp_password", "anonymous@")
	v.SetDefault("transform.customer_id_width", transform.DefaultCustomerIDWidth)
	v.SetDefault("transform.date_layout", "2/1/2006")
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "data/runs.db")
	v.SetDefault("warehouse.schema", "sales")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("monitor.failure_rate_threshold", 0.25)
	v.SetDefault("monitor.min_finished_runs", 4)
	v.SetDefault("monitor.lookback_window_hours", 24)
	v.SetDefault("monitor.check_interval_secs", 300)
	v.SetDefault("monitor.stale_run_minutes", 120)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	if cfg.RulesFile != "" {
		rules, err := LoadRules(cfg.RulesFile)
		if err != nil {
			return nil, err
		}
		rules.Apply(&cfg.Transform)
	}
	if len(cfg.Transform.CountryAliases) == 0 {
		cfg.Transform.CountryAliases = DefaultCountryAliases()
	}
	if len(cfg.Transform.RegionPatches) == 0 {
		cfg.Transform.RegionPatches = transform.DefaultRegionPatches()
	}

	return &cfg, nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
