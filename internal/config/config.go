package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/tariff-sync/internal/model"
)

// Config holds the full application configuration.
type Config struct {
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	WB        WBConfig        `yaml:"wb" mapstructure:"wb"`
	Sheets    SheetsConfig    `yaml:"sheets" mapstructure:"sheets"`
	Scheduler SchedulerConfig `yaml:"scheduler" mapstructure:"scheduler"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend. DatabaseURL wins over the
// discrete connection parts.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	SQLitePath  string `yaml:"sqlite_path" mapstructure:"sqlite_path"`
	Host        string `yaml:"host" mapstructure:"host"`
	Port        int    `yaml:"port" mapstructure:"port"`
	Name        string `yaml:"name" mapstructure:"name"`
	User        string `yaml:"user" mapstructure:"user"`
	Password    string `yaml:"password" mapstructure:"password"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
}

// WBConfig holds tariff API settings.
type WBConfig struct {
	BaseURL     string  `yaml:"base_url" mapstructure:"base_url"`
	APIKey      string  `yaml:"api_key" mapstructure:"api_key"`
	TimeoutSecs int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	RateLimit   float64 `yaml:"rate_limit" mapstructure:"rate_limit"`
}

// SheetsConfig holds spreadsheet export settings. ServiceAccount is either
// the credentials JSON or a path to it. Raw is a JSON or YAML list of
// destinations, used when Destinations is empty.
type SheetsConfig struct {
	ServiceAccount string                   `yaml:"service_account" mapstructure:"service_account"`
	Raw            string                   `yaml:"config" mapstructure:"config"`
	Destinations   []model.SheetDestination `yaml:"destinations" mapstructure:"destinations"`
	Concurrency    int                      `yaml:"concurrency" mapstructure:"concurrency"`
}

// SchedulerConfig holds task cadences.
type SchedulerConfig struct {
	TariffCron      string `yaml:"tariff_cron" mapstructure:"tariff_cron"`
	SheetsCron      string `yaml:"sheets_cron" mapstructure:"sheets_cron"`
	Timezone        string `yaml:"timezone" mapstructure:"timezone"`
	TaskTimeoutSecs int    `yaml:"task_timeout_secs" mapstructure:"task_timeout_secs"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port                int      `yaml:"port" mapstructure:"port"`
	AllowedOrigins      []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
	ShutdownTimeoutSecs int      `yaml:"shutdown_timeout_secs" mapstructure:"shutdown_timeout_secs"`
}

// LogConfig configures logging. File enables a rotating JSON log alongside
// stderr.
type LogConfig struct {
	Level      string `yaml:"level" mapstructure:"level"`
	Format     string `yaml:"format" mapstructure:"format"`
	File       string `yaml:"file" mapstructure:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb" mapstructure:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups" mapstructure:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days" mapstructure:"max_age_days"`
}

// legacyEnv maps config keys to the plain environment names accepted in
// addition to the TARIFF_ prefixed ones.
var legacyEnv = map[string]string{
	"store.database_url":     "DATABASE_URL",
	"store.host":             "DB_HOST",
	"store.port":             "DB_PORT",
	"store.name":             "DB_NAME",
	"store.user":             "DB_USER",
	"store.password":         "DB_PASSWORD",
	"wb.base_url":            "WB_API_BASE",
	"wb.api_key":             "WB_API_KEY",
	"sheets.service_account": "GOOGLE_SERVICE_ACCOUNT",
	"sheets.config":          "GOOGLE_SHEETS_CONFIG",
	"scheduler.tariff_cron":  "TARIFF_SYNC_CRON",
	"scheduler.sheets_cron":  "SHEETS_SYNC_CRON",
	"scheduler.timezone":     "TIMEZONE",
	"server.port":            "PORT",
	"log.level":              "LOG_LEVEL",
}

// Load reads .env, config.yaml and the environment, then validates.
func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("TARIFF")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, name := range legacyEnv {
		prefixed := "TARIFF_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, prefixed, name); err != nil {
			return nil, eris.Wrapf(err, "config: bind env %s", name)
		}
	}

	// Defaults
	v.SetDefault("store.driver", "postgres")
	v.SetDefault("store.sqlite_path", "tariffs.db")
	v.SetDefault("store.host", "postgres")
	v.SetDefault("store.port", 5432)
	v.SetDefault("store.name", "postgres")
	v.SetDefault("store.user", "postgres")
	v.SetDefault("store.password", "postgres")
	v.SetDefault("store.min_conns", 2)
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("wb.base_url", "https://common-api.wildberries.ru/api/v1/tariffs/box")
	v.SetDefault("wb.timeout_secs", 30)
	v.SetDefault("wb.rate_limit", 1.0)
	v.SetDefault("sheets.concurrency", 4)
	v.SetDefault("scheduler.tariff_cron", "0 * * * *")
	v.SetDefault("scheduler.sheets_cron", "0 */6 * * *")
	v.SetDefault("scheduler.timezone", "Europe/Moscow")
	v.SetDefault("scheduler.task_timeout_secs", 600)
	v.SetDefault("server.port", 3000)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("server.shutdown_timeout_secs", 30)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.max_size_mb", 100)
	v.SetDefault("log.max_backups", 5)
	v.SetDefault("log.max_age_days", 30)

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

	if len(cfg.Sheets.Destinations) == 0 && cfg.Sheets.Raw != "" {
		dests, err := ParseDestinations(cfg.Sheets.Raw)
		if err != nil {
			return nil, err
		}
		cfg.Sheets.Destinations = dests
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ParseDestinations decodes a JSON or YAML list of sheet destinations.
func ParseDestinations(raw string) ([]model.SheetDestination, error) {
	var dests []model.SheetDestination
	if err := yaml.Unmarshal([]byte(raw), &dests); err != nil {
		return nil, model.NewError(model.KindConfiguration, "config: destinations", eris.Wrap(err, "decode"))
	}
	for i, d := range dests {
		if err := validateDestination(d); err != nil {
			return nil, model.Errorf(model.KindConfiguration, "config: destinations", "entry %d: %v", i, err)
		}
	}
	return dests, nil
}

func validateDestination(d model.SheetDestination) error {
	if d.SpreadsheetID == "" {
		return eris.New("spreadsheetId is required")
	}
	switch d.DestinationKind() {
	case model.DestinationSheets:
		if d.SheetName == "" {
			return eris.New("sheetName is required")
		}
	case model.DestinationXLSX:
	default:
		return eris.Errorf("unknown kind %q", d.Kind)
	}
	return nil
}

// Validate checks store settings, cron expressions, timezone and
// destinations.
func (c *Config) Validate() error {
	const op = "config: validate"

	switch c.Store.Driver {
	case "postgres":
		if c.Store.DatabaseURL == "" && c.Store.Host == "" {
			return model.Errorf(model.KindConfiguration, op, "store.host or store.database_url is required")
		}
	case "sqlite":
		if c.Store.SQLitePath == "" {
			return model.Errorf(model.KindConfiguration, op, "store.sqlite_path is required")
		}
	default:
		return model.Errorf(model.KindConfiguration, op, "unknown store driver %q", c.Store.Driver)
	}

	for name, expr := range map[string]string{
		"scheduler.tariff_cron": c.Scheduler.TariffCron,
		"scheduler.sheets_cron": c.Scheduler.SheetsCron,
	} {
		if _, err := cron.ParseStandard(expr); err != nil {
			return model.Errorf(model.KindConfiguration, op, "%s: invalid cron expression %q: %v", name, expr, err)
		}
	}

	if _, err := c.Location(); err != nil {
		return err
	}

	for i, d := range c.Sheets.Destinations {
		if err := validateDestination(d); err != nil {
			return model.Errorf(model.KindConfiguration, op, "sheets.destinations[%d]: %v", i, err)
		}
	}
	return nil
}

// Location returns the scheduler timezone.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Scheduler.Timezone)
	if err != nil {
		return nil, model.Errorf(model.KindConfiguration, "config: timezone", "unknown timezone %q: %v", c.Scheduler.Timezone, err)
	}
	return loc, nil
}

// DSN returns the Postgres connection string, built from the discrete
// connection parts when no URL is configured.
func (s StoreConfig) DSN() string {
	if s.DatabaseURL != "" {
		return s.DatabaseURL
	}
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(s.User, s.Password),
		Host:   fmt.Sprintf("%s:%d", s.Host, s.Port),
		Path:   "/" + s.Name,
	}
	return u.String()
}

// HasSheets reports whether any Google Sheets destination is configured.
func (c *Config) HasSheets() bool {
	for _, d := range c.Sheets.Destinations {
		if d.DestinationKind() == model.DestinationSheets {
			return true
		}
	}
	return false
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	levelName := cfg.Level
	if levelName == "trace" {
		levelName = "debug"
	}
	level, err := zapcore.ParseLevel(levelName)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}

	if cfg.File != "" {
		sink := zapcore.AddSync(&lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   true,
		})
		fileCore := zapcore.NewCore(zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig()), sink, zapCfg.Level)
		logger = logger.WithOptions(zap.WrapCore(func(c zapcore.Core) zapcore.Core {
			return zapcore.NewTee(c, fileCore)
		}))
	}
	zap.ReplaceGlobals(logger)

	return nil
}
