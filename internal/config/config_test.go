package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoad_Defaults(t *testing.T) {
	cfg := Default()

	if cfg.General.MainBranch != "main" {
		t.Errorf("MainBranch = %q, want main", cfg.General.MainBranch)
	}
	if cfg.General.PollIntervalSecs != 60 {
		t.Errorf("PollIntervalSecs = %d, want 60", cfg.General.PollIntervalSecs)
	}
	if cfg.Agent.Binary != "claude" {
		t.Errorf("Agent.Binary = %q, want claude", cfg.Agent.Binary)
	}
	if cfg.Agent.TimeoutSecs != 900 {
		t.Errorf("Agent.TimeoutSecs = %d, want 900", cfg.Agent.TimeoutSecs)
	}
	if len(cfg.Policy.ForbiddenPaths) == 0 {
		t.Error("default forbidden paths should not be empty")
	}
	if cfg.Web.Enabled {
		t.Error("web server should be disabled by default")
	}
}

func TestLoad_FromFile(t *testing.T) {
	t.Setenv("SUPABASE_URL", "")
	t.Setenv("SUPABASE_SERVICE_ROLE_KEY", "")
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.toml")

	content := `
[general]
repo_root = "/srv/site"
poll_interval_secs = 30

[agent]
timeout_secs = 120

[policy]
forbidden_paths = ["secrets/**"]

[store]
url = "https://example.supabase.co"
service_key = "key"
`
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatal(err)
	}

	if cfg.General.RepoRoot != "/srv/site" {
		t.Errorf("RepoRoot = %q, want /srv/site", cfg.General.RepoRoot)
	}
	if cfg.General.PollIntervalSecs != 30 {
		t.Errorf("PollIntervalSecs = %d, want 30", cfg.General.PollIntervalSecs)
	}
	if cfg.Agent.TimeoutSecs != 120 {
		t.Errorf("Agent.TimeoutSecs = %d, want 120", cfg.Agent.TimeoutSecs)
	}
	if len(cfg.Policy.ForbiddenPaths) != 1 || cfg.Policy.ForbiddenPaths[0] != "secrets/**" {
		t.Errorf("ForbiddenPaths = %v, want [secrets/**]", cfg.Policy.ForbiddenPaths)
	}
	// untouched sections keep defaults
	if cfg.General.MainBranch != "main" {
		t.Errorf("MainBranch = %q, want default main", cfg.General.MainBranch)
	}
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Agent.Binary != "claude" {
		t.Errorf("Agent.Binary = %q, want claude", cfg.Agent.Binary)
	}
}

func TestLoad_EnvOverlay(t *testing.T) {
	t.Setenv("SUPABASE_URL", "https://env.supabase.co")
	t.Setenv("SUPABASE_SERVICE_ROLE_KEY", "env-key")

	cfg, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Store.URL != "https://env.supabase.co" {
		t.Errorf("Store.URL = %q, want env value", cfg.Store.URL)
	}
	if cfg.Store.ServiceKey != "env-key" {
		t.Errorf("Store.ServiceKey = %q, want env value", cfg.Store.ServiceKey)
	}
}

func TestValidate(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err == nil {
		t.Error("Validate() should fail without repo_root")
	}

	cfg.General.RepoRoot = "/srv/site"
	cfg.Store.URL = "https://example.supabase.co"
	cfg.Store.ServiceKey = "key"
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() error = %v, want nil", err)
	}

	cfg.Agent.TimeoutSecs = 0
	if err := cfg.Validate(); err == nil {
		t.Error("Validate() should reject zero agent timeout")
	}
}

func TestExpandPath(t *testing.T) {
	home, _ := os.UserHomeDir()

	tests := []struct {
		input string
		want  string
	}{
		{"~/test", filepath.Join(home, "test")},
		{"/absolute/path", "/absolute/path"},
		{"relative", "relative"},
	}

	for _, tt := range tests {
		got := ExpandPath(tt.input)
		if got != tt.want {
			t.Errorf("ExpandPath(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}
