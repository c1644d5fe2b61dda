// Package config loads and validates the warden configuration file. Every
// knob the old script bundle kept in shell globals lives here instead and is
// passed explicitly to the components that need it.
package config

import "time"

type Config struct {
	Provider    ProviderConfig    `yaml:"provider" validate:"required"`
	Health      HealthConfig      `yaml:"health"`
	Remediation RemediationConfig `yaml:"remediation"`
	Scheduler   SchedulerConfig   `yaml:"scheduler"`
	Reports     ReportsConfig     `yaml:"reports"`
	Notify      NotifyConfig      `yaml:"notify"`
	HTTP        HTTPConfig        `yaml:"http"`
	Auth        AuthConfig        `yaml:"auth"`
}

// ProviderConfig selects and parameterizes the cloud backend.
type ProviderConfig struct {
	Kind          string   `yaml:"kind" validate:"required,oneof=azcli local"`
	Binary        string   `yaml:"binary"`
	ResourceGroup string   `yaml:"resource_group" validate:"required"`
	Workspace     string   `yaml:"workspace"`
	LocalTargets  []string `yaml:"local_targets"`
}

// HealthConfig sets the assessment look-back window.
type HealthConfig struct {
	WindowMinutes int `yaml:"window_minutes" validate:"gte=0"`
}

func (h HealthConfig) Window() time.Duration {
	return time.Duration(h.WindowMinutes) * time.Minute
}

// RemediationConfig makes the stop/start confirmation polling explicit.
type RemediationConfig struct {
	PollIntervalSeconds int `yaml:"poll_interval_seconds" validate:"gte=0"`
	MaxAttempts         int `yaml:"max_attempts" validate:"gte=0"`
}

func (r RemediationConfig) PollInterval() time.Duration {
	return time.Duration(r.PollIntervalSeconds) * time.Second
}

// SchedulerConfig drives the periodic fleet check.
type SchedulerConfig struct {
	Enabled         bool `yaml:"enabled"`
	IntervalMinutes int  `yaml:"interval_minutes" validate:"gte=0"`
	Remediate       bool `yaml:"remediate"`
}

func (s SchedulerConfig) Interval() time.Duration {
	return time.Duration(s.IntervalMinutes) * time.Minute
}

// ReportsConfig locates the JSON report output directory.
type ReportsConfig struct {
	Dir string `yaml:"dir"`
}

// NotifyConfig wires the outbound chat webhook.
type NotifyConfig struct {
	WebhookURL string `yaml:"webhook_url" validate:"omitempty,url"`
	Enabled    bool   `yaml:"enabled"`
}

// HTTPConfig configures the API listener.
type HTTPConfig struct {
	Port       int    `yaml:"port" validate:"gte=0,lte=65535"`
	TLSEnabled bool   `yaml:"tls_enabled"`
	TLSCert    string `yaml:"tls_cert"`
	TLSKey     string `yaml:"tls_key"`
	NATMapping bool   `yaml:"nat_mapping"`
}

// AuthConfig holds the single operator credential. PasswordHash is a bcrypt
// hash; JWTSecret signs session tokens and must be set in production.
type AuthConfig struct {
	Username     string `yaml:"username"`
	PasswordHash string `yaml:"password_hash"`
	JWTSecret    string `yaml:"jwt_secret"`
}
