package config

import (
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Defaults applied to zero-valued fields after parsing.
const (
	DefaultWindowMinutes       = 60
	DefaultPollIntervalSeconds = 10
	DefaultMaxAttempts         = 30
	DefaultSchedulerMinutes    = 15
	DefaultPort                = 8420
	DefaultReportsDir          = "reports"
	DefaultBinary              = "az"
	DefaultUsername            = "ops"
)

// Load reads, defaults, and validates a YAML config file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	applyDefaults(&cfg)
	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns a runnable rehearsal-mode configuration: local provider,
// one simulated target, no auth secret (login disabled until one is set).
func Default() *Config {
	cfg := &Config{
		Provider: ProviderConfig{
			Kind:          "local",
			ResourceGroup: "rehearsal",
			LocalTargets:  []string{"localhost"},
		},
		Scheduler: SchedulerConfig{Enabled: true},
		Notify:    NotifyConfig{Enabled: true},
	}
	applyDefaults(cfg)
	return cfg
}

func applyDefaults(cfg *Config) {
	if cfg.Provider.Binary == "" {
		cfg.Provider.Binary = DefaultBinary
	}
	if cfg.Health.WindowMinutes == 0 {
		cfg.Health.WindowMinutes = DefaultWindowMinutes
	}
	if cfg.Remediation.PollIntervalSeconds == 0 {
		cfg.Remediation.PollIntervalSeconds = DefaultPollIntervalSeconds
	}
	if cfg.Remediation.MaxAttempts == 0 {
		cfg.Remediation.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.Scheduler.IntervalMinutes == 0 {
		cfg.Scheduler.IntervalMinutes = DefaultSchedulerMinutes
	}
	if cfg.HTTP.Port == 0 {
		cfg.HTTP.Port = DefaultPort
	}
	if cfg.Reports.Dir == "" {
		cfg.Reports.Dir = DefaultReportsDir
	}
	if cfg.Auth.Username == "" {
		cfg.Auth.Username = DefaultUsername
	}
}

// Validate checks structural constraints plus the cross-field rules the
// tags cannot express.
func Validate(cfg *Config) error {
	if err := validator.New().Struct(cfg); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if cfg.Provider.Kind == "local" && len(cfg.Provider.LocalTargets) == 0 {
		return fmt.Errorf("config: local provider needs at least one entry in local_targets")
	}
	if cfg.HTTP.TLSEnabled && (cfg.HTTP.TLSCert == "" || cfg.HTTP.TLSKey == "") {
		return fmt.Errorf("config: tls_enabled requires tls_cert and tls_key")
	}
	return nil
}
