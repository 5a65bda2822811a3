package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

type ServerConfig struct {
	Port string `toml:"port"`
	Mode string `toml:"mode"` // gin mode: debug | release | test
}

type LLMConfig struct {
	Provider string `toml:"provider"`
	Model    string `toml:"model"`
	APIKey   string `toml:"api_key"`
	BaseURL  string `toml:"base_url"`
}

// ResilienceConfig controls timeout/retry policy for LLM calls.
// MaxRetries is the retry count, so total attempts = MaxRetries + 1.
type ResilienceConfig struct {
	TimeoutMS   int `toml:"timeout_ms"`
	MaxRetries  int `toml:"max_retries"`
	BaseDelayMS int `toml:"base_delay_ms"`
}

type DatabaseConfig struct {
	Path string `toml:"path"`
}

type RateLimitConfig struct {
	ContradictionMaxRequests int `toml:"contradiction_max_requests"`
	ContradictionWindowMS    int `toml:"contradiction_window_ms"`
}

type PromptsConfig struct {
	DistillSystem string `toml:"distill_system"`
	Contradiction string `toml:"contradiction"`
}

// AuthConfig maps bearer tokens to user ids. This is the stand-in for a real
// identity provider; only the user id it yields matters downstream.
type AuthConfig struct {
	Tokens map[string]string `toml:"tokens"`
}

type Config struct {
	Server     ServerConfig     `toml:"server"`
	LLM        LLMConfig        `toml:"llm"`
	Resilience ResilienceConfig `toml:"resilience"`
	Database   DatabaseConfig   `toml:"database"`
	RateLimit  RateLimitConfig  `toml:"ratelimit"`
	Prompts    PromptsConfig    `toml:"prompts"`
	Auth       AuthConfig       `toml:"auth"`
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file '%s': %w", path, err)
	}

	var cfg Config
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse TOML: %w", err)
	}

	cfg.applyDefaults()
	return &cfg, nil
}

// Default returns a config with defaults only, used when no config file exists.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.Server.Port == "" {
		c.Server.Port = "8080"
	}
	if c.Server.Mode == "" {
		c.Server.Mode = "release"
	}
	if c.LLM.Provider == "" {
		c.LLM.Provider = "gemini"
	}
	if c.LLM.Model == "" {
		c.LLM.Model = "gemini-1.5-flash"
	}
	if c.Resilience.TimeoutMS == 0 {
		c.Resilience.TimeoutMS = 30000
	}
	if c.Resilience.MaxRetries == 0 {
		c.Resilience.MaxRetries = 2
	}
	if c.Resilience.BaseDelayMS == 0 {
		c.Resilience.BaseDelayMS = 750
	}
	if c.Database.Path == "" {
		c.Database.Path = "./data/noesis.db"
	}
	if c.RateLimit.ContradictionMaxRequests == 0 {
		c.RateLimit.ContradictionMaxRequests = 5
	}
	if c.RateLimit.ContradictionWindowMS == 0 {
		c.RateLimit.ContradictionWindowMS = 300000
	}
}

// ApplyEnvOverrides lets deployment environments override file values.
func (c *Config) ApplyEnvOverrides() {
	if v := os.Getenv("PORT"); v != "" {
		c.Server.Port = v
	}
	if v := os.Getenv("GIN_MODE"); v != "" {
		c.Server.Mode = v
	}
	if v := os.Getenv("LLM_PROVIDER"); v != "" {
		c.LLM.Provider = v
	}
	if v := os.Getenv("LLM_MODEL"); v != "" {
		c.LLM.Model = v
	}
	if v := os.Getenv("LLM_API_KEY"); v != "" {
		c.LLM.APIKey = v
	}
	if v := os.Getenv("GEMINI_API_KEY"); v != "" && c.LLM.APIKey == "" {
		c.LLM.APIKey = v
	}
	if v := os.Getenv("LLM_BASE_URL"); v != "" {
		c.LLM.BaseURL = v
	}
	if v := os.Getenv("DATABASE_PATH"); v != "" {
		c.Database.Path = v
	}
	if v, ok := envInt("GEMINI_TIMEOUT_MS"); ok {
		c.Resilience.TimeoutMS = v
	}
	if v, ok := envInt("GEMINI_MAX_RETRIES"); ok {
		c.Resilience.MaxRetries = v
	}
	if v, ok := envInt("GEMINI_BACKOFF_BASE_MS"); ok {
		c.Resilience.BaseDelayMS = v
	}
	if v, ok := envInt("CONTRADICTION_RATE_LIMIT_MAX_REQUESTS"); ok {
		c.RateLimit.ContradictionMaxRequests = v
	}
	if v, ok := envInt("CONTRADICTION_RATE_LIMIT_WINDOW_MS"); ok {
		c.RateLimit.ContradictionWindowMS = v
	}
	// Single-user deployments set one token instead of an [auth.tokens] table.
	if v := os.Getenv("AUTH_TOKEN"); v != "" {
		if c.Auth.Tokens == nil {
			c.Auth.Tokens = make(map[string]string)
		}
		c.Auth.Tokens[v] = "local"
	}
}

func envInt(name string) (int, bool) {
	v := os.Getenv(name)
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}

// Validate checks for fatal configuration problems. A missing LLM credential
// is a startup failure, never a per-request one.
func (c *Config) Validate() error {
	provider := strings.ToLower(c.LLM.Provider)
	switch provider {
	case "gemini", "openai", "claude", "ollama":
	default:
		return fmt.Errorf("unsupported llm provider: %s", c.LLM.Provider)
	}
	if provider != "ollama" && c.LLM.APIKey == "" {
		return fmt.Errorf("llm api key is not configured (set LLM_API_KEY or GEMINI_API_KEY)")
	}
	if len(c.Auth.Tokens) == 0 {
		return fmt.Errorf("no auth tokens configured (set [auth.tokens] or AUTH_TOKEN)")
	}
	return nil
}

func (c *Config) LLMTimeout() time.Duration {
	return time.Duration(c.Resilience.TimeoutMS) * time.Millisecond
}

func (c *Config) LLMBaseDelay() time.Duration {
	return time.Duration(c.Resilience.BaseDelayMS) * time.Millisecond
}

func (c *Config) ContradictionWindow() time.Duration {
	return time.Duration(c.RateLimit.ContradictionWindowMS) * time.Millisecond
}
