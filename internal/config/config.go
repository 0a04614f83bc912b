// Package config loads the configuration of the eventstore binaries from defaults, an optional
// config file, EVENTSTORE_* environment variables, and bound command line flags, in ascending precedence.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix is the prefix of all environment variables, e.g. EVENTSTORE_LOG_LEVEL for log.level.
const EnvPrefix = "EVENTSTORE"

// Supported backends.
const (
	BackendSQLite = "sqlite"
	BackendPGX    = "pgx"
	BackendSQLDB  = "sqldb"
	BackendSQLX   = "sqlx"
)

// Supported log formats.
const (
	LogFormatText = "text"
	LogFormatJSON = "json"
)

// Keys of the configuration tree.
const (
	KeyBackend                 = "backend"
	KeyDSN                     = "dsn"
	KeyReplicaDSN              = "replica_dsn"
	KeyTable                   = "table"
	KeyLogLevel                = "log.level"
	KeyLogFormat               = "log.format"
	KeyLogFile                 = "log.file"
	KeyLogMaxSizeMB            = "log.max_size_mb"
	KeyLogMaxBackups           = "log.max_backups"
	KeyLogMaxAgeDays           = "log.max_age_days"
	KeyHTTPAddr                = "http.addr"
	KeyHTTPShutdownTimeout     = "http.shutdown_timeout"
	KeyHTTPStreamBuffer        = "http.stream_buffer"
	KeyTelemetryEnabled        = "telemetry.enabled"
	KeyTelemetryEndpoint       = "telemetry.endpoint"
	KeyTelemetryInsecure       = "telemetry.insecure"
	KeyTelemetryServiceName    = "telemetry.service_name"
	KeyTelemetryMetricInterval = "telemetry.metric_interval"
)

// Defaults.
const (
	DefaultBackend         = BackendSQLite
	DefaultDSN             = "file:eventstore.db?_busy_timeout=5000&_journal_mode=WAL"
	DefaultTable           = "events"
	DefaultLogLevel        = "info"
	DefaultLogFormat       = LogFormatText
	DefaultHTTPAddr        = ":8080"
	DefaultServiceName     = "eventstore"
	DefaultOTLPEndpoint    = "localhost:4317"
	defaultShutdownTimeout = 10 * time.Second
	defaultMetricInterval  = 15 * time.Second
	defaultStreamBuffer    = 64
	defaultLogMaxSizeMB    = 100
	defaultLogMaxBackups   = 5
	defaultLogMaxAgeDays   = 28
)

var (
	ErrReadingConfigFileFailed = errors.New("reading the config file failed")
	ErrDecodingConfigFailed    = errors.New("decoding the configuration failed")
	ErrInvalidConfig           = errors.New("invalid configuration")
)

// Config is the complete configuration of the binaries.
type Config struct {
	Backend    string          `mapstructure:"backend"`
	DSN        string          `mapstructure:"dsn"`
	ReplicaDSN string          `mapstructure:"replica_dsn"`
	Table      string          `mapstructure:"table"`
	Log        LogConfig       `mapstructure:"log"`
	HTTP       HTTPConfig      `mapstructure:"http"`
	Telemetry  TelemetryConfig `mapstructure:"telemetry"`
}

// LogConfig configures the slog logger. With File set, logs go to a rotating file instead of stderr.
type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
}

// HTTPConfig configures the serve command.
type HTTPConfig struct {
	Addr            string        `mapstructure:"addr"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	StreamBuffer    int           `mapstructure:"stream_buffer"`
}

// TelemetryConfig configures the OTLP gRPC exporters.
type TelemetryConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	Endpoint       string        `mapstructure:"endpoint"`
	Insecure       bool          `mapstructure:"insecure"`
	ServiceName    string        `mapstructure:"service_name"`
	MetricInterval time.Duration `mapstructure:"metric_interval"`
}

// New creates a viper instance with all defaults registered and the environment bound.
func New() *viper.Viper {
	v := viper.New()

	v.SetDefault(KeyBackend, DefaultBackend)
	v.SetDefault(KeyDSN, DefaultDSN)
	v.SetDefault(KeyReplicaDSN, "")
	v.SetDefault(KeyTable, DefaultTable)
	v.SetDefault(KeyLogLevel, DefaultLogLevel)
	v.SetDefault(KeyLogFormat, DefaultLogFormat)
	v.SetDefault(KeyLogFile, "")
	v.SetDefault(KeyLogMaxSizeMB, defaultLogMaxSizeMB)
	v.SetDefault(KeyLogMaxBackups, defaultLogMaxBackups)
	v.SetDefault(KeyLogMaxAgeDays, defaultLogMaxAgeDays)
	v.SetDefault(KeyHTTPAddr, DefaultHTTPAddr)
	v.SetDefault(KeyHTTPShutdownTimeout, defaultShutdownTimeout)
	v.SetDefault(KeyHTTPStreamBuffer, defaultStreamBuffer)
	v.SetDefault(KeyTelemetryEnabled, false)
	v.SetDefault(KeyTelemetryEndpoint, DefaultOTLPEndpoint)
	v.SetDefault(KeyTelemetryInsecure, true)
	v.SetDefault(KeyTelemetryServiceName, DefaultServiceName)
	v.SetDefault(KeyTelemetryMetricInterval, defaultMetricInterval)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return v
}

// Load reads the optional config file (YAML or TOML, by extension) and decodes and validates the result.
func Load(v *viper.Viper, configFile string) (Config, error) {
	if configFile != "" {
		v.SetConfigFile(configFile)

		if err := v.ReadInConfig(); err != nil {
			return Config{}, errors.Join(ErrReadingConfigFileFailed, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, errors.Join(ErrDecodingConfigFailed, err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// Validate checks the combination of settings.
func (c Config) Validate() error {
	var problems []error

	switch c.Backend {
	case BackendSQLite, BackendPGX, BackendSQLDB, BackendSQLX:
	default:
		problems = append(problems, fmt.Errorf("backend %q must be one of sqlite|pgx|sqldb|sqlx", c.Backend))
	}

	if strings.TrimSpace(c.DSN) == "" {
		problems = append(problems, errors.New("dsn must not be empty"))
	}

	if c.ReplicaDSN != "" && c.Backend != BackendPGX {
		problems = append(problems, errors.New("replica_dsn is only supported by the pgx backend"))
	}

	if strings.TrimSpace(c.Table) == "" {
		problems = append(problems, errors.New("table must not be empty"))
	}

	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		problems = append(problems, fmt.Errorf("log.level %q must be one of debug|info|warn|error", c.Log.Level))
	}

	switch c.Log.Format {
	case LogFormatText, LogFormatJSON:
	default:
		problems = append(problems, fmt.Errorf("log.format %q must be one of text|json", c.Log.Format))
	}

	if c.HTTP.StreamBuffer < 1 {
		problems = append(problems, errors.New("http.stream_buffer must be positive"))
	}

	if c.Telemetry.Enabled && c.Telemetry.Endpoint == "" {
		problems = append(problems, errors.New("telemetry.endpoint must not be empty when telemetry is enabled"))
	}

	if len(problems) > 0 {
		return errors.Join(append([]error{ErrInvalidConfig}, problems...)...)
	}

	return nil
}
