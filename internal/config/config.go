package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	// General
	Environment string `envconfig:"ENVIRONMENT" default:"development"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`
	ListenAddr  string `envconfig:"LISTEN_ADDR" default:":8080"`

	// Storage
	DBPath string `envconfig:"DB_PATH" default:"console.db"`

	// Policy files (optional — compiled-in defaults apply when unset)
	RolesPath      string `envconfig:"ROLES_PATH"`
	ActionsPath    string `envconfig:"ACTIONS_PATH"`
	PolicyPath     string `envconfig:"POLICY_PATH"`
	PrincipalsPath string `envconfig:"PRINCIPALS_PATH"`

	// Approval workflow
	ApprovalWindow time.Duration `envconfig:"APPROVAL_WINDOW" default:"30m"`
	ExecTimeout    time.Duration `envconfig:"EXEC_TIMEOUT" default:"5m"`
	SweepSchedule  string        `envconfig:"SWEEP_SCHEDULE" default:"@every 1m"`

	// Audit retention. Zero keeps the trail forever; a positive window prunes
	// entries older than the window once a day.
	AuditRetention time.Duration `envconfig:"AUDIT_RETENTION" default:"0"`

	// API auth
	AuthMode  string `envconfig:"AUTH_MODE" default:"jwt"` // "jwt" or "header" (dev only)
	JWTSecret string `envconfig:"JWT_SECRET"`

	// Slack notifications (optional — console runs silently without them)
	SlackBotToken string `envconfig:"SLACK_BOT_TOKEN"`
	SlackChannel  string `envconfig:"SLACK_CHANNEL" default:"#support-approvals"`

	// HTTP hardening
	RateLimitRPS int    `envconfig:"RATE_LIMIT_RPS" default:"100"`
	CORSOrigins  string `envconfig:"CORS_ORIGINS"`
}

// SlackEnabled returns true if a Slack bot token is configured.
func (c *Config) SlackEnabled() bool {
	return c.SlackBotToken != ""
}

// CORSOriginList returns the parsed list of allowed CORS origins.
// Returns nil if not configured (fail-closed — no cross-origin callers).
func (c *Config) CORSOriginList() []string {
	if c.CORSOrigins == "" {
		return nil
	}
	parts := strings.Split(c.CORSOrigins, ",")
	origins := make([]string, 0, len(parts))
	for _, o := range parts {
		o = strings.TrimSpace(o)
		if o != "" {
			origins = append(origins, o)
		}
	}
	return origins
}

// Validate checks invariants that envconfig defaults cannot express.
func (c *Config) Validate() error {
	switch strings.ToLower(c.AuthMode) {
	case "jwt":
		if c.JWTSecret == "" {
			return fmt.Errorf("AUTH_MODE=jwt requires JWT_SECRET")
		}
	case "header":
		if c.Environment == "production" {
			return fmt.Errorf("AUTH_MODE=header is not allowed in production")
		}
	default:
		return fmt.Errorf("unknown AUTH_MODE %q, expected jwt or header", c.AuthMode)
	}
	if c.ApprovalWindow <= 0 {
		return fmt.Errorf("APPROVAL_WINDOW must be positive")
	}
	if c.ExecTimeout <= 0 {
		return fmt.Errorf("EXEC_TIMEOUT must be positive")
	}
	return nil
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}
