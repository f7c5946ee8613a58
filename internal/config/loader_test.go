package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/crystaldolphin/chatbridge/internal/config/backend"
)

// clearEnv blanks every override so the host environment cannot leak in.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		EnvServerURL, EnvAgent, EnvModel, EnvFeishuAppID, EnvFeishuAppSecret,
		EnvFeishuRequireMention, EnvTelegramToken, EnvSlackBotToken, EnvSlackAppToken,
		EnvSessionDir, EnvLogLevel,
	} {
		t.Setenv(k, "")
	}
}

func writeConfig(t *testing.T, dir string, v any) string {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal config: %v", err)
	}
	path := filepath.Join(dir, "config.json")
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoad_NonExistent(t *testing.T) {
	clearEnv(t)
	cfg, err := Load(filepath.Join(t.TempDir(), "missing", "config.json"))
	if err != nil {
		t.Fatalf("expected no error for missing file, got: %v", err)
	}
	if cfg.Backend.ServerURL != backend.DefaultServerURL {
		t.Errorf("expected default server url %q, got %q", backend.DefaultServerURL, cfg.Backend.ServerURL)
	}
	if cfg.Bridge.ThrottleMs != 500 || cfg.Bridge.ReconnectDelayMs != 3000 {
		t.Errorf("unexpected timing defaults: %+v", cfg.Bridge)
	}
}

func TestLoad_ValidConfig(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	path := writeConfig(t, dir, map[string]any{
		"backend": map[string]any{
			"serverUrl": "http://agent:4096",
			"model":     "anthropic/claude-sonnet",
		},
		"channels": map[string]any{
			"feishu": map[string]any{"enabled": true, "appId": "cli_x", "requireMention": true},
		},
	})

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Backend.ServerURL != "http://agent:4096" {
		t.Errorf("expected server url %q, got %q", "http://agent:4096", cfg.Backend.ServerURL)
	}
	if cfg.Backend.Model != "anthropic/claude-sonnet" {
		t.Errorf("expected model, got %q", cfg.Backend.Model)
	}
	if !cfg.Channels.Feishu.Enabled || !cfg.Channels.Feishu.RequireMention {
		t.Errorf("feishu settings not applied: %+v", cfg.Channels.Feishu)
	}
	if cfg.Channels.Feishu.Domain == "" {
		t.Error("unset feishu domain should keep its default")
	}
}

func TestLoad_YAML(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yml := "backend:\n  agent: research\nbridge:\n  throttleMs: 250\n  texts:\n    placeholder: Thinking...\n"
	if err := os.WriteFile(path, []byte(yml), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Backend.Agent != "research" {
		t.Errorf("expected agent research, got %q", cfg.Backend.Agent)
	}
	if cfg.Bridge.ThrottleMs != 250 {
		t.Errorf("expected throttle 250, got %d", cfg.Bridge.ThrottleMs)
	}
	if cfg.Bridge.Texts.Placeholder != "Thinking..." {
		t.Errorf("expected placeholder override, got %q", cfg.Bridge.Texts.Placeholder)
	}
	if cfg.Bridge.ReconnectDelayMs != 3000 {
		t.Errorf("unset reconnect delay should keep default, got %d", cfg.Bridge.ReconnectDelayMs)
	}
}

func TestLoad_InvalidJSON(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	if err := os.WriteFile(path, []byte("{not valid json"), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("expected no error for invalid JSON (falls back to default), got: %v", err)
	}
	if cfg.Backend.ServerURL != backend.DefaultServerURL {
		t.Errorf("expected default server url, got %q", cfg.Backend.ServerURL)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv(EnvServerURL, "http://10.0.0.2:4096")
	t.Setenv(EnvModel, "openai/gpt-4o")
	t.Setenv(EnvFeishuAppID, "cli_a")
	t.Setenv(EnvFeishuAppSecret, "s3cret")
	t.Setenv(EnvFeishuRequireMention, "true")

	cfg, err := Load(filepath.Join(t.TempDir(), "config.json"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Backend.ServerURL != "http://10.0.0.2:4096" || cfg.Backend.Model != "openai/gpt-4o" {
		t.Errorf("backend overrides not applied: %+v", cfg.Backend)
	}
	fs := cfg.Channels.Feishu
	if !fs.Enabled || fs.AppID != "cli_a" || fs.AppSecret != "s3cret" || !fs.RequireMention {
		t.Errorf("feishu overrides not applied: %+v", fs)
	}
	if cfg.Channels.Telegram.Enabled {
		t.Error("telegram should stay disabled without a token")
	}
}

func TestLoad_DotEnvNextToConfig(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	os.Unsetenv(EnvAgent) // restored by the t.Setenv cleanup in clearEnv
	env := "# comment\nexport RESEARCH_AGENT=\"planner\"\n"
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte(env), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(filepath.Join(dir, "config.json"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Backend.Agent != "planner" {
		t.Errorf("expected agent from .env, got %q", cfg.Backend.Agent)
	}
}

func TestLoadDotEnv_DoesNotOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	if err := os.WriteFile(path, []byte("BRIDGE_DOTENV_KEEP=file\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("BRIDGE_DOTENV_KEEP", "process")

	if err := LoadDotEnv(path); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := os.Getenv("BRIDGE_DOTENV_KEEP"); got != "process" {
		t.Errorf("expected existing value to win, got %q", got)
	}
}

func TestLoadDotEnv_Malformed(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	if err := os.WriteFile(path, []byte("NOVALUE\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := LoadDotEnv(path); err == nil {
		t.Fatal("expected error for line without '='")
	}
}

func TestSave_RoundTrip(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")

	original := DefaultConfig()
	original.Backend.Agent = "research"
	original.Bridge.ThrottleMs = 1234

	if err := Save(&original, path); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded.Backend.Agent != original.Backend.Agent {
		t.Errorf("agent mismatch: got %q, want %q", loaded.Backend.Agent, original.Backend.Agent)
	}
	if loaded.Bridge.ThrottleMs != original.Bridge.ThrottleMs {
		t.Errorf("throttle mismatch: got %d, want %d", loaded.Bridge.ThrottleMs, original.Bridge.ThrottleMs)
	}
}

func TestSave_YAMLRoundTrip(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.yml")
	original := DefaultConfig()
	original.Channels.Slack.Enabled = true

	if err := Save(&original, path); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if !loaded.Channels.Slack.Enabled {
		t.Error("slack enabled flag lost in YAML round trip")
	}
}

func TestSave_FilePermissions(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")

	cfg := DefaultConfig()
	if err := Save(&cfg, path); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat failed: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Errorf("expected permissions 0600, got %04o", perm)
	}
}

func TestSave_CreatesDirectory(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "dir", "config.json")

	cfg := DefaultConfig()
	if err := Save(&cfg, path); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("file not created: %v", err)
	}
}

func TestSessionDirPath(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home dir")
	}
	cfg := DefaultConfig()
	want := filepath.Join(home, ".openresearch", "bridge")
	if got := cfg.SessionDirPath(); got != want {
		t.Errorf("expected %q, got %q", want, got)
	}

	cfg.Bridge.SessionDir = "/var/lib/bridge"
	if got := cfg.SessionDirPath(); got != "/var/lib/bridge" {
		t.Errorf("absolute dir changed: %q", got)
	}
}
