// internal/config/config.go
package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	homedir "github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

// Config holds the entire application configuration.
type Config struct {
	Logger   LoggerConfig   `mapstructure:"logger" yaml:"logger"`
	Browser  BrowserConfig  `mapstructure:"browser" yaml:"browser"`
	Engine   EngineConfig   `mapstructure:"engine" yaml:"engine"`
	Planner  PlannerConfig  `mapstructure:"planner" yaml:"planner"`
	Feedback FeedbackConfig `mapstructure:"feedback" yaml:"feedback"`
	Recorder RecorderConfig `mapstructure:"recorder" yaml:"recorder"`
}

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string `mapstructure:"level" yaml:"level"`
	Format      string `mapstructure:"format" yaml:"format"`
	AddSource   bool   `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int    `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int    `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int    `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool   `mapstructure:"compress" yaml:"compress"`
}

// BrowserConfig holds settings for the browser attachment.
type BrowserConfig struct {
	Headless          bool          `mapstructure:"headless" yaml:"headless"`
	RemoteURL         string        `mapstructure:"remote_url" yaml:"remote_url"`
	NavigationTimeout time.Duration `mapstructure:"navigation_timeout" yaml:"navigation_timeout"`
	Args              []string      `mapstructure:"args" yaml:"args"`
}

// EngineConfig tunes the plan loop: budgets, settle delays, and the diff
// relevance thresholds. The thresholds are empirically chosen and deliberately
// configurable rather than fixed invariants.
type EngineConfig struct {
	OuterRetryBudget  int           `mapstructure:"outer_retry_budget" yaml:"outer_retry_budget"`
	InnerReplanBudget int           `mapstructure:"inner_replan_budget" yaml:"inner_replan_budget"`
	SettleDelay       time.Duration `mapstructure:"settle_delay" yaml:"settle_delay"`
	ResumeDelay       time.Duration `mapstructure:"resume_delay" yaml:"resume_delay"`

	// Diff relevance: a diff is relevant when 2*added+changed >= VolumeThreshold.
	VolumeThreshold int `mapstructure:"volume_threshold" yaml:"volume_threshold"`

	// ConfirmKeywords mark steps that look like a "confirm" action during
	// post-interaction filtering. Locale-specific policy, not a fixed rule.
	ConfirmKeywords []string `mapstructure:"confirm_keywords" yaml:"confirm_keywords"`

	// Default per-action step timeouts, applied when the planner omits one.
	StepTimeouts StepTimeoutConfig `mapstructure:"step_timeouts" yaml:"step_timeouts"`
}

// StepTimeoutConfig carries the default timeout per action family.
type StepTimeoutConfig struct {
	Click    time.Duration `mapstructure:"click" yaml:"click"`
	Input    time.Duration `mapstructure:"input" yaml:"input"`
	Scroll   time.Duration `mapstructure:"scroll" yaml:"scroll"`
	Navigate time.Duration `mapstructure:"navigate" yaml:"navigate"`
}

// PlannerConfig points at the external planner service.
type PlannerConfig struct {
	Endpoint       string        `mapstructure:"endpoint" yaml:"endpoint"`
	RequestTimeout time.Duration `mapstructure:"request_timeout" yaml:"request_timeout"`
	RateLimit      float64       `mapstructure:"rate_limit" yaml:"rate_limit"`
	RateBurst      int           `mapstructure:"rate_burst" yaml:"rate_burst"`
}

// FeedbackConfig points at the telemetry sink for plan results.
type FeedbackConfig struct {
	Endpoint       string        `mapstructure:"endpoint" yaml:"endpoint"`
	RequestTimeout time.Duration `mapstructure:"request_timeout" yaml:"request_timeout"`
}

// RecorderConfig controls the session-scoped snapshot/diff recording.
type RecorderConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Path    string `mapstructure:"path" yaml:"path"`
}

// SetDefaults initializes default values for all configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "axpilot")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)

	// -- Browser --
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.remote_url", "")
	v.SetDefault("browser.navigation_timeout", "90s")

	// -- Engine --
	v.SetDefault("engine.outer_retry_budget", 3)
	v.SetDefault("engine.inner_replan_budget", 1)
	v.SetDefault("engine.settle_delay", "600ms")
	v.SetDefault("engine.resume_delay", "1s")
	v.SetDefault("engine.volume_threshold", 4)
	v.SetDefault("engine.confirm_keywords", []string{"search", "find", "go", "submit", "apply", "continue"})
	v.SetDefault("engine.step_timeouts.click", "4s")
	v.SetDefault("engine.step_timeouts.input", "5s")
	v.SetDefault("engine.step_timeouts.scroll", "3s")
	v.SetDefault("engine.step_timeouts.navigate", "6s")

	// -- Planner --
	v.SetDefault("planner.endpoint", "http://127.0.0.1:8790/plan")
	v.SetDefault("planner.request_timeout", "15s")
	v.SetDefault("planner.rate_limit", 4.0)
	v.SetDefault("planner.rate_burst", 2)

	// -- Feedback --
	v.SetDefault("feedback.endpoint", "")
	v.SetDefault("feedback.request_timeout", "5s")

	// -- Recorder --
	v.SetDefault("recorder.enabled", false)
	v.SetDefault("recorder.path", "")
}

// NewDefaultConfig creates a configuration struct populated with defaults.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		// Cannot happen with the defaults above.
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// Load reads configuration into the global viper instance so later flag
// bindings keep the right precedence (flag > env > file > default), then
// unmarshals and validates it. With no explicit path it searches
// $HOME/.axpilot and the working directory for a config.yaml; a missing file
// falls back to defaults, an explicit path that cannot be read is an error.
func Load(path string) (*Config, error) {
	v := viper.GetViper()
	SetDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		if home, err := homedir.Dir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".axpilot"))
		}
		v.AddConfigPath(".")
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix("AXPILOT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects configurations the engine cannot run with.
func (c *Config) Validate() error {
	if c.Engine.OuterRetryBudget < 1 {
		return fmt.Errorf("engine.outer_retry_budget must be >= 1, got %d", c.Engine.OuterRetryBudget)
	}
	if c.Engine.InnerReplanBudget < 0 {
		return fmt.Errorf("engine.inner_replan_budget must be >= 0, got %d", c.Engine.InnerReplanBudget)
	}
	if c.Engine.VolumeThreshold < 1 {
		return fmt.Errorf("engine.volume_threshold must be >= 1, got %d", c.Engine.VolumeThreshold)
	}
	if c.Planner.Endpoint == "" {
		return fmt.Errorf("planner.endpoint must be set")
	}
	return nil
}

// StepTimeout returns the configured default timeout for an action family.
func (c *EngineConfig) StepTimeout(action string) time.Duration {
	switch action {
	case "input", "input_select":
		return c.StepTimeouts.Input
	case "scroll":
		return c.StepTimeouts.Scroll
	case "navigate", "history_back", "history_forward", "reload":
		return c.StepTimeouts.Navigate
	default:
		return c.StepTimeouts.Click
	}
}
