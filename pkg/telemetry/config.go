package telemetry

import (
	"maps"
	"strings"

	"github.com/argus-labs/sledgehammer/pkg/telemetry/sentry"
	"github.com/caarlos0/env/v11"
	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"
)

// Config is read from the environment. Options passed to New take precedence.
type Config struct {
	// Enabled when false disables tracing. Logging is always on.
	Enabled bool `env:"OTEL_ENABLED" envDefault:"false"`

	// Endpoint is the OTLP collector endpoint.
	Endpoint string `env:"OTEL_ENDPOINT" envDefault:"localhost:4317"`

	// TraceSampleRate is the sampling rate for traces (0.0 to 1.0).
	TraceSampleRate float64 `env:"OTEL_TRACE_SAMPLE_RATE" envDefault:"1.0"`

	// Log level ("debug", "info", "warn", "error").
	LogLevel string `env:"OTEL_LOG_LEVEL" envDefault:"info"`

	// Log format ("json", "pretty").
	LogFormat string `env:"OTEL_LOG_FORMAT" envDefault:"pretty"`

	SentryDsn string `env:"OTEL_SENTRY_DSN"`

	// SentryENV separates development and production reports (DEV/PROD).
	SentryENV string `env:"OTEL_SENTRY_ENV"`
}

func loadConfig() (Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return cfg, eris.Wrap(err, "failed to parse telemetry config")
	}
	if err := cfg.validate(); err != nil {
		return cfg, eris.Wrap(err, "failed to validate telemetry config")
	}
	return cfg, nil
}

func (cfg *Config) validate() error {
	if _, err := zerolog.ParseLevel(strings.ToLower(cfg.LogLevel)); err != nil {
		return eris.Errorf("invalid log level: %s (must be 'debug', 'info', 'warn', or 'error')", cfg.LogLevel)
	}
	if ParseLogFormat(cfg.LogFormat) == LogFormatUndefined {
		return eris.Errorf("invalid log format: %s (must be 'json' or 'pretty')", cfg.LogFormat)
	}
	if cfg.Enabled && cfg.Endpoint == "" {
		return eris.New("OTLP endpoint cannot be empty when tracing is enabled")
	}
	if cfg.TraceSampleRate < 0.0 || cfg.TraceSampleRate > 1.0 {
		return eris.New("trace sample rate must be between 0.0 and 1.0")
	}
	return nil
}

func (cfg *Config) toOptions() Options {
	return Options{
		Enabled:         cfg.Enabled,
		Endpoint:        cfg.Endpoint,
		LogLevel:        strings.ToLower(cfg.LogLevel),
		LogFormat:       ParseLogFormat(cfg.LogFormat),
		TraceSampleRate: cfg.TraceSampleRate,
		SentryOptions: sentry.Options{
			Dsn:         cfg.SentryDsn,
			Environment: cfg.SentryENV,
		},
	}
}

type Options struct {
	ServiceName     string
	ServiceVersion  string
	Enabled         bool
	Endpoint        string
	LogLevel        string
	LogFormat       LogFormat
	TraceSampleRate float64

	SentryOptions sentry.Options
}

// apply overrides the environment-derived options with the non-zero fields of override.
// Enabled can only be turned on this way.
func (opt *Options) apply(override Options) {
	if override.ServiceName != "" {
		opt.ServiceName = override.ServiceName
	}
	if override.ServiceVersion != "" {
		opt.ServiceVersion = override.ServiceVersion
	}
	if override.Enabled {
		opt.Enabled = true
	}
	if override.Endpoint != "" {
		opt.Endpoint = override.Endpoint
	}
	if override.LogLevel != "" {
		opt.LogLevel = override.LogLevel
	}
	if override.LogFormat != LogFormatUndefined {
		opt.LogFormat = override.LogFormat
	}
	if override.TraceSampleRate != 0.0 {
		opt.TraceSampleRate = override.TraceSampleRate
	}
	if override.SentryOptions.Release != "" {
		opt.SentryOptions.Release = override.SentryOptions.Release
	}
	if len(override.SentryOptions.Tags) > 0 {
		opt.SentryOptions.Tags = maps.Clone(override.SentryOptions.Tags)
	}
}

func (opt *Options) validate() error {
	if opt.ServiceName == "" {
		return eris.New("service name cannot be empty")
	}
	if opt.Enabled && opt.Endpoint == "" {
		return eris.New("endpoint cannot be empty")
	}
	if _, err := zerolog.ParseLevel(opt.LogLevel); err != nil {
		return eris.Errorf("invalid log level: %s", opt.LogLevel)
	}
	if opt.LogFormat == LogFormatUndefined {
		return eris.New("log format must be specified")
	}
	if opt.TraceSampleRate < 0.0 || opt.TraceSampleRate > 1.0 {
		return eris.New("trace sample rate must be between 0.0 and 1.0")
	}
	return nil
}

// LogFormat represents the log output format.
type LogFormat uint8

const (
	LogFormatUndefined LogFormat = iota // Zero value
	LogFormatJSON                       // Structured JSON lines
	LogFormatPretty                     // Human-readable console output
)

func (f LogFormat) String() string {
	switch f {
	case LogFormatJSON:
		return "json"
	case LogFormatPretty:
		return "pretty"
	case LogFormatUndefined:
	}
	return "undefined"
}

// ParseLogFormat converts a string to a LogFormat.
func ParseLogFormat(s string) LogFormat {
	switch strings.ToLower(s) {
	case "json":
		return LogFormatJSON
	case "pretty":
		return LogFormatPretty
	default:
		return LogFormatUndefined
	}
}
