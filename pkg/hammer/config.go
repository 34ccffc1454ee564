package hammer

import (
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/rotisserie/eris"
)

// Config holds the engine settings. LoadConfig reads it from the environment.
type Config struct {
	// Ticks per second driven by the host loop.
	TickRate float64 `env:"HAMMER_TICK_RATE" envDefault:"20"`

	// Service name used for logs, traces and metrics.
	ServiceName string `env:"HAMMER_SERVICE_NAME" envDefault:"sledgehammer"`

	// Directory of scripted plugins. Empty disables scripting.
	PluginDir string `env:"HAMMER_PLUGIN_DIR"`

	// Number of log records kept in memory for /log. 0 disables the history.
	LogHistory int `env:"HAMMER_LOG_HISTORY" envDefault:"256"`

	// Whether commands and events are logged when the caller does not say.
	LogCommands bool `env:"HAMMER_LOG_COMMANDS" envDefault:"true"`
	LogEvents   bool `env:"HAMMER_LOG_EVENTS" envDefault:"true"`

	// DogStatsD address. Empty disables metrics.
	StatsdAddress string `env:"HAMMER_STATSD_ADDRESS"`

	// Release named in error reports. Empty uses <service>@<version>.
	Release string `env:"HAMMER_RELEASE"`

	// Tags added to every error report and trace resource, as key:value,key:value.
	ReportTags map[string]string `env:"HAMMER_REPORT_TAGS"`
}

// LoadConfig reads the engine configuration from environment variables.
func LoadConfig() (Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return cfg, eris.Wrap(err, "failed to parse engine config")
	}
	if err := cfg.validate(); err != nil {
		return cfg, eris.Wrap(err, "failed to validate engine config")
	}
	return cfg, nil
}

func (cfg *Config) validate() error {
	if cfg.TickRate <= 0 {
		return eris.New("tick rate must be positive")
	}
	if cfg.ServiceName == "" {
		return eris.New("service name cannot be empty")
	}
	if cfg.LogHistory < 0 {
		return eris.New("log history cannot be negative")
	}
	return nil
}

// ReportRelease is the release to tag error reports with for a build of version.
func (cfg *Config) ReportRelease(version string) string {
	if cfg.Release != "" {
		return cfg.Release
	}
	return cfg.ServiceName + "@" + version
}

// TickInterval is the time between two updates at the configured tick rate.
func (cfg *Config) TickInterval() time.Duration {
	return time.Duration(float64(time.Second) / cfg.TickRate)
}
