package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Config holds all pipeline configuration
type Config struct {
	General       GeneralConfig       `toml:"general"`
	Agent         AgentConfig         `toml:"agent"`
	Policy        PolicyConfig        `toml:"policy"`
	Store         StoreConfig         `toml:"store"`
	Notifications NotificationsConfig `toml:"notifications"`
	Release       ReleaseConfig       `toml:"release"`
	Maintenance   MaintenanceConfig   `toml:"maintenance"`
	Web           WebConfig           `toml:"web"`
}

// GeneralConfig holds settings for the managed source tree and the poll loop
type GeneralConfig struct {
	RepoRoot         string `toml:"repo_root"`
	MainBranch       string `toml:"main_branch"`
	Remote           string `toml:"remote"`
	SiteBaseURL      string `toml:"site_base_url"`
	PollIntervalSecs int    `toml:"poll_interval_secs"`
	DatabasePath     string `toml:"database_path"`
	IntakeDir        string `toml:"intake_dir"`
}

// AgentConfig holds settings for the code-generation agent subprocess
type AgentConfig struct {
	Binary          string   `toml:"binary"`
	Model           string   `toml:"model"`
	MaxTurns        int      `toml:"max_turns"`
	TimeoutSecs     int      `toml:"timeout_secs"`
	AllowedTools    []string `toml:"allowed_tools"`
	DisallowedTools []string `toml:"disallowed_tools"`
}

// PolicyConfig holds the risk gate settings
type PolicyConfig struct {
	ForbiddenPaths []string `toml:"forbidden_paths"`
}

// StoreConfig holds the work item store connection
type StoreConfig struct {
	URL        string `toml:"url"`
	ServiceKey string `toml:"service_key"`
	Table      string `toml:"table"`
}

// NotificationsConfig holds notification settings
type NotificationsConfig struct {
	Desktop         bool   `toml:"desktop"`
	SlackWebhook    string `toml:"slack_webhook"`
	ReviewerWebhook string `toml:"reviewer_webhook"`
}

// ReleaseConfig bounds the wait for the external versioning stamp
type ReleaseConfig struct {
	TagPrefix string `toml:"tag_prefix"`
	WaitSecs  int    `toml:"wait_secs"`
	PollSecs  int    `toml:"poll_secs"`
}

// MaintenanceConfig drives the janitor sweeps
type MaintenanceConfig struct {
	Cron           string `toml:"cron"`
	StaleAfterMins int    `toml:"stale_after_mins"`
	PruneAfterDays int    `toml:"prune_after_days"`
	KeepLedgerDays int    `toml:"keep_ledger_days"`
}

// WebConfig holds status server settings
type WebConfig struct {
	Enabled bool   `toml:"enabled"`
	Port    int    `toml:"port"`
	Host    string `toml:"host"`
}

// Default returns a Config with sensible defaults
func Default() *Config {
	home, _ := os.UserHomeDir()
	return &Config{
		General: GeneralConfig{
			MainBranch:       "main",
			Remote:           "origin",
			PollIntervalSecs: 60,
			DatabasePath:     filepath.Join(home, ".shipbot", "shipbot.db"),
		},
		Agent: AgentConfig{
			Binary:      "claude",
			Model:       "claude-sonnet-4-20250514",
			MaxTurns:    40,
			TimeoutSecs: 900,
			AllowedTools: []string{
				"Read", "Write", "Edit", "Glob", "Grep",
			},
			DisallowedTools: []string{
				"Bash(git push:*)", "Bash(git merge:*)", "WebSearch",
			},
		},
		Policy: PolicyConfig{
			ForbiddenPaths: []string{
				".github/**",
				".env*",
				"**/auth/**",
				"lib/supabase*",
				"middleware.*",
				"package.json",
				"vercel.json",
			},
		},
		Store: StoreConfig{
			Table: "work_items",
		},
		Notifications: NotificationsConfig{
			Desktop: true,
		},
		Release: ReleaseConfig{
			TagPrefix: "v",
			WaitSecs:  90,
			PollSecs:  10,
		},
		Maintenance: MaintenanceConfig{
			Cron:           "0 4 * * *",
			StaleAfterMins: 60,
			PruneAfterDays: 14,
			KeepLedgerDays: 180,
		},
		Web: WebConfig{
			Enabled: false,
			Port:    8080,
			Host:    "127.0.0.1",
		},
	}
}

// Load reads configuration from a TOML file, falling back to defaults.
// Secrets may come from the environment instead of the file.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnv()
			return cfg, nil
		}
		return nil, err
	}

	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	cfg.General.RepoRoot = ExpandPath(cfg.General.RepoRoot)
	cfg.General.DatabasePath = ExpandPath(cfg.General.DatabasePath)
	cfg.General.IntakeDir = ExpandPath(cfg.General.IntakeDir)

	cfg.applyEnv()
	return cfg, nil
}

// applyEnv overlays secret-bearing settings from the environment so they
// can stay out of the config file.
func (c *Config) applyEnv() {
	if v := os.Getenv("SUPABASE_URL"); v != "" {
		c.Store.URL = v
	}
	if v := os.Getenv("SUPABASE_SERVICE_ROLE_KEY"); v != "" {
		c.Store.ServiceKey = v
	}
	if v := os.Getenv("SHIPBOT_SLACK_WEBHOOK"); v != "" {
		c.Notifications.SlackWebhook = v
	}
	if v := os.Getenv("SHIPBOT_REVIEWER_WEBHOOK"); v != "" {
		c.Notifications.ReviewerWebhook = v
	}
}

// Validate checks the settings a daemon run cannot do without
func (c *Config) Validate() error {
	if c.General.RepoRoot == "" {
		return fmt.Errorf("general.repo_root is required")
	}
	if c.Store.URL == "" {
		return fmt.Errorf("store.url is required (or set SUPABASE_URL)")
	}
	if c.Store.ServiceKey == "" {
		return fmt.Errorf("store.service_key is required (or set SUPABASE_SERVICE_ROLE_KEY)")
	}
	if c.General.PollIntervalSecs < 1 {
		return fmt.Errorf("general.poll_interval_secs must be at least 1")
	}
	if c.Agent.TimeoutSecs < 1 {
		return fmt.Errorf("agent.timeout_secs must be at least 1")
	}
	return nil
}

// PollInterval returns the poll loop interval as a duration
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.General.PollIntervalSecs) * time.Second
}

// AgentTimeout returns the per-invocation wall clock bound
func (c *Config) AgentTimeout() time.Duration {
	return time.Duration(c.Agent.TimeoutSecs) * time.Second
}

// ExpandPath expands ~ to the user's home directory
func ExpandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, _ := os.UserHomeDir()
		return filepath.Join(home, path[2:])
	}
	return path
}

// DefaultConfigPath returns the default config file location
func DefaultConfigPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "shipbot", "config.toml")
}
