package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/n0madic/go-appforge/internal/types"
)

const (
	DefaultBaseURL      = "https://api.deepseek.com/v1"
	DefaultModel        = "deepseek-chat"
	DefaultGitHubAPIURL = "https://api.github.com"
	DefaultDBPath       = "appforge.db"
	DefaultTimeout      = 2 * time.Minute
)

// ServerConfig holds all process configuration. It is loaded once at startup
// and passed down; nothing reads the environment after that.
type ServerConfig struct {
	Host        string `yaml:"host"`
	Port        int    `yaml:"port"`
	Verbose     bool   `yaml:"verbose"`
	Debug       bool   `yaml:"debug"`
	AccessToken string `yaml:"access_token"`

	APIKey           string               `yaml:"api_key"`
	BaseURL          string               `yaml:"base_url"`
	Timeout          time.Duration        `yaml:"timeout"`
	Sampling         types.SamplingParams `yaml:"sampling"`
	SystemPromptFile string               `yaml:"system_prompt_file"`

	DBPath string `yaml:"db_path"`

	GitHubToken  string `yaml:"github_token"`
	GitHubAPIURL string `yaml:"github_api_url"`
}

// Error is a configuration problem that must stop the process before any
// request is served.
type Error struct {
	Key     string
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("configuration error: %s (%s)", e.Message, e.Key)
}

// Defaults returns the built-in configuration.
func Defaults() *ServerConfig {
	return &ServerConfig{
		Host:    "127.0.0.1",
		Port:    8000,
		BaseURL: DefaultBaseURL,
		Timeout: DefaultTimeout,
		Sampling: types.SamplingParams{
			Model:            DefaultModel,
			Temperature:      0.7,
			MaxTokens:        4000,
			TopP:             1,
			FrequencyPenalty: 0,
			PresencePenalty:  0,
		},
		DBPath:       DefaultDBPath,
		GitHubAPIURL: DefaultGitHubAPIURL,
	}
}

// DefaultFromEnv creates a ServerConfig with defaults from environment variables.
func DefaultFromEnv() *ServerConfig {
	cfg := Defaults()
	cfg.applyEnv()
	return cfg
}

// Load reads an optional .env file from the working directory, then the YAML
// file at path (if any), then the environment. Later sources win.
func Load(path string) (*ServerConfig, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		slog.Warn("failed to read .env file", "error", err)
	}

	cfg := Defaults()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}
	cfg.applyEnv()
	return cfg, nil
}

func (c *ServerConfig) applyEnv() {
	c.Debug = envBool("APPFORGE_DEBUG", c.Debug)
	c.Verbose = envBool("APPFORGE_VERBOSE", c.Verbose)
	c.AccessToken = envString("APPFORGE_ACCESS_TOKEN", c.AccessToken)

	c.APIKey = envString("DEEPSEEK_API_KEY", c.APIKey)
	c.APIKey = envString("APPFORGE_API_KEY", c.APIKey)
	c.BaseURL = envString("APPFORGE_BASE_URL", c.BaseURL)
	c.Timeout = envDuration("APPFORGE_TIMEOUT", c.Timeout)
	c.SystemPromptFile = envString("APPFORGE_SYSTEM_PROMPT_FILE", c.SystemPromptFile)

	c.Sampling.Model = envString("APPFORGE_MODEL", c.Sampling.Model)
	c.Sampling.Temperature = envFloat("APPFORGE_TEMPERATURE", c.Sampling.Temperature)
	c.Sampling.MaxTokens = int64(envInt("APPFORGE_MAX_TOKENS", int(c.Sampling.MaxTokens)))
	c.Sampling.TopP = envFloat("APPFORGE_TOP_P", c.Sampling.TopP)
	c.Sampling.FrequencyPenalty = envFloat("APPFORGE_FREQUENCY_PENALTY", c.Sampling.FrequencyPenalty)
	c.Sampling.PresencePenalty = envFloat("APPFORGE_PRESENCE_PENALTY", c.Sampling.PresencePenalty)

	c.DBPath = envString("APPFORGE_DB_PATH", c.DBPath)

	c.GitHubToken = envString("GITHUB_ACCESS_TOKEN", c.GitHubToken)
	c.GitHubAPIURL = envString("GITHUB_API_URL", c.GitHubAPIURL)
}

// ProviderTimeout is the provider call deadline; a non-positive Timeout
// falls back to DefaultTimeout.
func (c *ServerConfig) ProviderTimeout() time.Duration {
	if c.Timeout <= 0 {
		return DefaultTimeout
	}
	return c.Timeout
}

// Validate checks what the provider transport needs. A missing credential is
// fatal at startup rather than a per-request failure.
func (c *ServerConfig) Validate() error {
	if strings.TrimSpace(c.APIKey) == "" {
		return &Error{Key: "APPFORGE_API_KEY", Message: "provider API key is not configured"}
	}
	if strings.TrimSpace(c.BaseURL) == "" {
		return &Error{Key: "APPFORGE_BASE_URL", Message: "provider base URL is empty"}
	}
	if strings.TrimSpace(c.Sampling.Model) == "" {
		return &Error{Key: "APPFORGE_MODEL", Message: "model name is empty"}
	}
	if c.Sampling.MaxTokens <= 0 {
		return &Error{Key: "APPFORGE_MAX_TOKENS", Message: "max tokens must be positive"}
	}
	if c.Sampling.Temperature < 0 || c.Sampling.Temperature > 2 {
		return &Error{Key: "APPFORGE_TEMPERATURE", Message: "temperature must be between 0 and 2"}
	}
	if c.Sampling.TopP < 0 || c.Sampling.TopP > 1 {
		return &Error{Key: "APPFORGE_TOP_P", Message: "top_p must be between 0 and 1"}
	}
	return nil
}

// ValidateGitHub checks what the repository publisher needs.
func (c *ServerConfig) ValidateGitHub() error {
	if strings.TrimSpace(c.GitHubToken) == "" {
		return &Error{Key: "GITHUB_ACCESS_TOKEN", Message: "GitHub token is not configured"}
	}
	return nil
}

// LoadSystemPrompt returns the contents of SystemPromptFile, or "" when unset.
func (c *ServerConfig) LoadSystemPrompt() (string, error) {
	if c.SystemPromptFile == "" {
		return "", nil
	}
	data, err := os.ReadFile(c.SystemPromptFile)
	if err != nil {
		return "", &Error{Key: "APPFORGE_SYSTEM_PROMPT_FILE", Message: err.Error()}
	}
	return string(data), nil
}

func envString(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func envBool(key string, def bool) bool {
	v, ok := os.LookupEnv(key)
	if !ok {
		return def
	}
	v = strings.ToLower(strings.TrimSpace(v))
	return v == "1" || v == "true" || v == "yes" || v == "on"
}

func envInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		slog.Warn("ignoring invalid integer env value", "key", key, "value", v)
		return def
	}
	return n
}

func envFloat(key string, def float64) float64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		slog.Warn("ignoring invalid float env value", "key", key, "value", v)
		return def
	}
	return f
}

func envDuration(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		slog.Warn("ignoring invalid duration env value", "key", key, "value", v)
		return def
	}
	return d
}
