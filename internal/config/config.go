package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config represents the application configuration
type Config struct {
	Relational RelationalConfig `json:"relational"`
	Document   DocumentConfig   `json:"document"`
	Model      ModelConfig      `json:"model"`
	Pipeline   PipelineConfig   `json:"pipeline"`
	Log        LogConfig        `json:"log"`
	Server     ServerConfig     `json:"server"`
	Settings   Settings         `json:"settings"`
}

// RelationalConfig describes the SQL database. Password is only ever read
// from the environment.
type RelationalConfig struct {
	Driver   string `json:"driver"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"-"`
	Database string `json:"database"`
	// Service names a pg_service.conf entry (postgres only)
	Service string `json:"service,omitempty"`
	// Path is the database file (sqlite only)
	Path    string `json:"path,omitempty"`
	SSLMode string `json:"sslmode,omitempty"`
}

// DocumentConfig describes the MongoDB database. An empty URI disables the
// document store.
type DocumentConfig struct {
	URI      string `json:"uri"`
	Database string `json:"database"`
	User     string `json:"user,omitempty"`
	Password string `json:"-"`
}

// ModelConfig selects the model provider and the chat and code models
type ModelConfig struct {
	Provider    string  `json:"provider"`
	BaseURL     string  `json:"base_url"`
	APIKey      string  `json:"-"`
	ChatModel   string  `json:"chat_model"`
	CodeModel   string  `json:"code_model"`
	MaxTokens   int     `json:"max_tokens"`
	Temperature float64 `json:"temperature"`
	TimeoutSec  int     `json:"timeout_sec"`
}

// PipelineConfig bounds the query pipeline
type PipelineConfig struct {
	MaxAttempts     int `json:"max_attempts"`
	QueryTimeoutSec int `json:"query_timeout_sec"`
	ModelTimeoutSec int `json:"model_timeout_sec"`
}

// LogConfig configures logging. An empty Dir disables the log file.
type LogConfig struct {
	Level string `json:"level"`
	Dir   string `json:"dir,omitempty"`
}

// ServerConfig configures the HTTP API
type ServerConfig struct {
	Addr string `json:"addr"`
}

// Settings contains user preferences
type Settings struct {
	MaxHistorySize int    `json:"max_history_size"`
	DefaultStore   string `json:"default_store"`
}

// DefaultConfig returns a new config with default values
func DefaultConfig() *Config {
	return &Config{
		Relational: RelationalConfig{
			Driver:   "mysql",
			Host:     "127.0.0.1",
			Port:     3306,
			User:     "root",
			Database: "movies",
		},
		Document: DocumentConfig{
			URI:      "mongodb://localhost:27017",
			Database: "movies",
		},
		Model: ModelConfig{
			Provider:   "ollama",
			BaseURL:    "http://localhost:11434",
			ChatModel:  "qwen2.5:32b",
			CodeModel:  "qwen2.5-coder:32b",
			MaxTokens:  4096,
			TimeoutSec: 120,
		},
		Pipeline: PipelineConfig{
			MaxAttempts:     5,
			QueryTimeoutSec: 30,
			ModelTimeoutSec: 120,
		},
		Log: LogConfig{
			Level: "info",
		},
		Server: ServerConfig{
			Addr: ":8080",
		},
		Settings: Settings{
			MaxHistorySize: 100,
			DefaultStore:   "relational",
		},
	}
}

// configDir is swapped out by tests
var configDir = ConfigDir

// ConfigDir returns the configuration directory path
func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "kartoza-nl2sql"), nil
}

// ConfigPath returns the configuration file path
func ConfigPath() (string, error) {
	dir, err := configDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.json"), nil
}

// Dir returns the directory holding the configuration and history files
func Dir() (string, error) {
	return configDir()
}

// Load loads the configuration from disk. A missing file yields the
// defaults; fields absent from the file keep their default values.
func Load() (*Config, error) {
	path, err := ConfigPath()
	if err != nil {
		return nil, err
	}

	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, err
	}

	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return cfg, nil
}

// Save saves the configuration to disk. Secrets are never written.
func (c *Config) Save() error {
	dir, err := configDir()
	if err != nil {
		return err
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	path, err := ConfigPath()
	if err != nil {
		return err
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0600)
}

// LoadEnvFile loads variables from .env files into the process
// environment without overriding variables that are already set. Missing
// files are ignored.
func LoadEnvFile(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if _, err := os.Stat(p); err != nil {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			return fmt.Errorf("load %s: %w", p, err)
		}
	}
	return nil
}

// ApplyEnv overlays environment variables on the configuration. lookup is
// usually os.LookupEnv.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	var errs []error

	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	num := func(key string, dst *int) {
		v, ok := lookup(key)
		if !ok || v == "" {
			return
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: invalid integer %q", key, v))
			return
		}
		*dst = n
	}
	float := func(key string, dst *float64) {
		v, ok := lookup(key)
		if !ok || v == "" {
			return
		}
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: invalid number %q", key, v))
			return
		}
		*dst = f
	}

	str("NL2SQL_DB_DRIVER", &c.Relational.Driver)
	str("MYSQL_HOST", &c.Relational.Host)
	num("MYSQL_PORT", &c.Relational.Port)
	str("MYSQL_USER", &c.Relational.User)
	str("MYSQL_PASSWORD", &c.Relational.Password)
	str("MYSQL_DATABASE", &c.Relational.Database)
	str("NL2SQL_PG_SERVICE", &c.Relational.Service)
	str("NL2SQL_SQLITE_PATH", &c.Relational.Path)
	str("NL2SQL_SSLMODE", &c.Relational.SSLMode)

	str("MONGODB_URI", &c.Document.URI)
	str("MONGODB_DATABASE", &c.Document.Database)
	str("MONGODB_USER", &c.Document.User)
	str("MONGODB_PASSWORD", &c.Document.Password)

	str("NL2SQL_MODEL_PROVIDER", &c.Model.Provider)
	str("OLLAMA_API_URL", &c.Model.BaseURL)
	str("OLLAMA_CHAT_MODEL", &c.Model.ChatModel)
	str("OLLAMA_CODE_MODEL", &c.Model.CodeModel)
	str("ANTHROPIC_API_KEY", &c.Model.APIKey)
	num("NL2SQL_MODEL_MAX_TOKENS", &c.Model.MaxTokens)
	float("NL2SQL_MODEL_TEMPERATURE", &c.Model.Temperature)

	num("NL2SQL_MAX_ATTEMPTS", &c.Pipeline.MaxAttempts)
	num("NL2SQL_QUERY_TIMEOUT_SEC", &c.Pipeline.QueryTimeoutSec)
	num("NL2SQL_MODEL_TIMEOUT_SEC", &c.Pipeline.ModelTimeoutSec)

	str("NL2SQL_LOG_LEVEL", &c.Log.Level)
	str("NL2SQL_LOG_DIR", &c.Log.Dir)
	str("NL2SQL_LISTEN_ADDR", &c.Server.Addr)

	return errors.Join(errs...)
}

// Validate checks the configuration for values the application cannot use
func (c *Config) Validate() error {
	var errs []error

	switch c.Relational.Driver {
	case "mysql", "postgres":
		if c.Relational.Service == "" && c.Relational.Host == "" {
			errs = append(errs, errors.New("relational.host is required"))
		}
	case "sqlite":
		if c.Relational.Path == "" {
			errs = append(errs, errors.New("relational.path is required for sqlite"))
		}
	default:
		errs = append(errs, fmt.Errorf("relational.driver %q is not one of mysql, postgres, sqlite", c.Relational.Driver))
	}

	if c.Document.URI != "" && c.Document.Database == "" {
		errs = append(errs, errors.New("document.database is required when document.uri is set"))
	}

	switch c.Model.Provider {
	case "ollama":
	case "anthropic":
		if c.Model.APIKey == "" {
			errs = append(errs, errors.New("ANTHROPIC_API_KEY is required for the anthropic provider"))
		}
	default:
		errs = append(errs, fmt.Errorf("model.provider %q is not one of ollama, anthropic", c.Model.Provider))
	}
	if c.Model.ChatModel == "" || c.Model.CodeModel == "" {
		errs = append(errs, errors.New("model.chat_model and model.code_model are required"))
	}

	if c.Pipeline.MaxAttempts < 1 {
		errs = append(errs, errors.New("pipeline.max_attempts must be at least 1"))
	}
	if c.Pipeline.QueryTimeoutSec < 0 || c.Pipeline.ModelTimeoutSec < 0 {
		errs = append(errs, errors.New("pipeline timeouts cannot be negative"))
	}

	switch strings.ToLower(c.Log.Level) {
	case "", "debug", "info", "warn", "warning", "error":
	default:
		errs = append(errs, fmt.Errorf("log.level %q is not one of debug, info, warn, error", c.Log.Level))
	}

	return errors.Join(errs...)
}

// QueryTimeout bounds each query execution
func (p PipelineConfig) QueryTimeout() time.Duration {
	return time.Duration(p.QueryTimeoutSec) * time.Second
}

// ModelTimeout bounds each model call
func (p PipelineConfig) ModelTimeout() time.Duration {
	return time.Duration(p.ModelTimeoutSec) * time.Second
}

// Timeout is the HTTP client timeout for model requests
func (m ModelConfig) Timeout() time.Duration {
	return time.Duration(m.TimeoutSec) * time.Second
}
