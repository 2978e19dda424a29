package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func useTempDir(t *testing.T) string {
	t.Helper()
	tmpDir := t.TempDir()
	origConfigDir := configDir
	configDir = func() (string, error) {
		return tmpDir, nil
	}
	t.Cleanup(func() { configDir = origConfigDir })
	return tmpDir
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg == nil {
		t.Fatal("DefaultConfig returned nil")
	}

	if cfg.Relational.Driver != "mysql" {
		t.Errorf("expected driver mysql, got %s", cfg.Relational.Driver)
	}

	if cfg.Relational.Port != 3306 {
		t.Errorf("expected port 3306, got %d", cfg.Relational.Port)
	}

	if cfg.Model.ChatModel != "qwen2.5:32b" {
		t.Errorf("unexpected chat model %s", cfg.Model.ChatModel)
	}

	if cfg.Model.CodeModel != "qwen2.5-coder:32b" {
		t.Errorf("unexpected code model %s", cfg.Model.CodeModel)
	}

	if cfg.Pipeline.MaxAttempts != 5 {
		t.Errorf("expected MaxAttempts 5, got %d", cfg.Pipeline.MaxAttempts)
	}

	if cfg.Settings.MaxHistorySize != 100 {
		t.Errorf("expected MaxHistorySize 100, got %d", cfg.Settings.MaxHistorySize)
	}

	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should be valid: %v", err)
	}
}

func TestConfigSaveAndLoad(t *testing.T) {
	tmpDir := useTempDir(t)

	cfg := DefaultConfig()
	cfg.Relational.Driver = "postgres"
	cfg.Relational.Service = "analytics"
	cfg.Relational.Password = "secret"
	cfg.Model.APIKey = "sk-test"
	cfg.Settings.MaxHistorySize = 200

	if err := cfg.Save(); err != nil {
		t.Fatalf("failed to save config: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(tmpDir, "config.json"))
	if err != nil {
		t.Fatalf("failed to read saved config: %v", err)
	}
	if strings.Contains(string(data), "secret") || strings.Contains(string(data), "sk-test") {
		t.Error("secrets must not be written to the config file")
	}

	loaded, err := Load()
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	if loaded.Relational.Service != "analytics" {
		t.Errorf("expected service 'analytics', got '%s'", loaded.Relational.Service)
	}

	if loaded.Relational.Password != "" {
		t.Error("password should not round-trip through the file")
	}

	if loaded.Settings.MaxHistorySize != 200 {
		t.Errorf("expected MaxHistorySize 200, got %d", loaded.Settings.MaxHistorySize)
	}
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	useTempDir(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Pipeline.MaxAttempts != 5 {
		t.Errorf("expected defaults, got MaxAttempts %d", cfg.Pipeline.MaxAttempts)
	}
}

func TestLoadPartialFileKeepsDefaults(t *testing.T) {
	tmpDir := useTempDir(t)

	partial := map[string]any{"pipeline": map[string]any{"max_attempts": 3}}
	data, _ := json.Marshal(partial)
	if err := os.WriteFile(filepath.Join(tmpDir, "config.json"), data, 0600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Pipeline.MaxAttempts != 3 {
		t.Errorf("expected MaxAttempts 3, got %d", cfg.Pipeline.MaxAttempts)
	}
	if cfg.Model.ChatModel != "qwen2.5:32b" {
		t.Errorf("expected default chat model, got %s", cfg.Model.ChatModel)
	}
}

func TestLoadInvalidJSON(t *testing.T) {
	tmpDir := useTempDir(t)
	if err := os.WriteFile(filepath.Join(tmpDir, "config.json"), []byte("{"), 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(); err == nil {
		t.Error("expected error for invalid JSON")
	}
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"MYSQL_HOST":               "db.internal",
		"MYSQL_PORT":               "3307",
		"MYSQL_PASSWORD":           "pw",
		"MONGODB_URI":              "mongodb://mongo:27017",
		"OLLAMA_API_URL":           "http://gpu:11434",
		"OLLAMA_CODE_MODEL":        "sqlcoder",
		"NL2SQL_MAX_ATTEMPTS":      "3",
		"NL2SQL_MODEL_TEMPERATURE": "0.2",
		"NL2SQL_LOG_LEVEL":         "debug",
		"MYSQL_USER":               "",
	}
	lookup := func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}

	cfg := DefaultConfig()
	if err := cfg.ApplyEnv(lookup); err != nil {
		t.Fatalf("ApplyEnv failed: %v", err)
	}

	if cfg.Relational.Host != "db.internal" || cfg.Relational.Port != 3307 {
		t.Errorf("unexpected relational endpoint %s:%d", cfg.Relational.Host, cfg.Relational.Port)
	}
	if cfg.Relational.Password != "pw" {
		t.Error("expected password from environment")
	}
	if cfg.Relational.User != "root" {
		t.Errorf("empty variable should not override, got user %q", cfg.Relational.User)
	}
	if cfg.Document.URI != "mongodb://mongo:27017" {
		t.Errorf("unexpected mongo uri %s", cfg.Document.URI)
	}
	if cfg.Model.BaseURL != "http://gpu:11434" || cfg.Model.CodeModel != "sqlcoder" {
		t.Errorf("unexpected model config %+v", cfg.Model)
	}
	if cfg.Model.Temperature != 0.2 {
		t.Errorf("expected temperature 0.2, got %v", cfg.Model.Temperature)
	}
	if cfg.Pipeline.MaxAttempts != 3 {
		t.Errorf("expected MaxAttempts 3, got %d", cfg.Pipeline.MaxAttempts)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("expected debug level, got %s", cfg.Log.Level)
	}
}

func TestApplyEnvInvalidNumber(t *testing.T) {
	lookup := func(k string) (string, bool) {
		if k == "MYSQL_PORT" {
			return "abc", true
		}
		return "", false
	}

	cfg := DefaultConfig()
	err := cfg.ApplyEnv(lookup)
	if err == nil || !strings.Contains(err.Error(), "MYSQL_PORT") {
		t.Errorf("expected MYSQL_PORT error, got %v", err)
	}
	if cfg.Relational.Port != 3306 {
		t.Errorf("port should be unchanged, got %d", cfg.Relational.Port)
	}
}

func TestLoadEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(path, []byte("NL2SQL_TEST_ENV_FILE=from-file\n"), 0600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("NL2SQL_TEST_ENV_FILE", "")
	os.Unsetenv("NL2SQL_TEST_ENV_FILE")

	if err := LoadEnvFile(path, filepath.Join(t.TempDir(), "missing.env")); err != nil {
		t.Fatalf("LoadEnvFile failed: %v", err)
	}
	if got := os.Getenv("NL2SQL_TEST_ENV_FILE"); got != "from-file" {
		t.Errorf("expected value from file, got %q", got)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"unknown driver", func(c *Config) { c.Relational.Driver = "oracle" }, "relational.driver"},
		{"sqlite without path", func(c *Config) { c.Relational.Driver = "sqlite" }, "relational.path"},
		{"sqlite with path", func(c *Config) { c.Relational.Driver = "sqlite"; c.Relational.Path = "x.db" }, ""},
		{"postgres service", func(c *Config) { c.Relational.Driver = "postgres"; c.Relational.Host = ""; c.Relational.Service = "svc" }, ""},
		{"anthropic without key", func(c *Config) { c.Model.Provider = "anthropic" }, "ANTHROPIC_API_KEY"},
		{"unknown provider", func(c *Config) { c.Model.Provider = "openai" }, "model.provider"},
		{"zero attempts", func(c *Config) { c.Pipeline.MaxAttempts = 0 }, "max_attempts"},
		{"bad level", func(c *Config) { c.Log.Level = "loud" }, "log.level"},
		{"document disabled", func(c *Config) { c.Document.URI = ""; c.Document.Database = "" }, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestDurations(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Pipeline.QueryTimeout() != 30*time.Second {
		t.Errorf("unexpected query timeout %v", cfg.Pipeline.QueryTimeout())
	}
	if cfg.Model.Timeout() != 120*time.Second {
		t.Errorf("unexpected model timeout %v", cfg.Model.Timeout())
	}
}

func TestConfigPath(t *testing.T) {
	path, err := ConfigPath()
	if err != nil {
		t.Fatalf("ConfigPath failed: %v", err)
	}

	if !filepath.IsAbs(path) {
		t.Error("expected absolute path")
	}

	if !strings.Contains(path, "kartoza-nl2sql") {
		t.Error("path should contain 'kartoza-nl2sql'")
	}

	if !strings.Contains(path, "config.json") {
		t.Error("path should contain 'config.json'")
	}
}
