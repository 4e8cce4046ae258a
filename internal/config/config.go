// Package config provides application configuration.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Port            string
	GRPCPort        string
	FrontendURL     string
	AllowedOrigins  []string
	DBPath          string
	ChatTimeout     time.Duration
	LLM             LLMConfig
	Coach           CoachConfig
	Auth            AuthConfig
	RateLimit       RateLimitConfig
	ConversationLog ConversationLogConfig
}

// LLMConfig selects the language model provider.
type LLMConfig struct {
	Provider    string // "openai", "openrouter" or "gemini"
	Model       string
	APIKey      string
	BaseURL     string
	Temperature float32
}

// CoachConfig tunes the agent loop.
type CoachConfig struct {
	RecentProgressLimit int
	SystemPromptPath    string
}

// AuthConfig configures JWT verification. An empty JWKSURL enables anonymous
// development identities.
type AuthConfig struct {
	JWKSURL       string
	Issuer        string
	Audience      string
	RequiredScope string
}

// RateLimitConfig bounds chat requests per user.
type RateLimitConfig struct {
	RequestsPerMinute int
	Burst             int
}

// ConversationLogConfig controls NDJSON conversation logging.
type ConversationLogConfig struct {
	Enabled       bool
	Dir           string
	GlobalEnabled bool
	GlobalPath    string
	QueueSize     int
	MaxOpenFiles  int
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	queueSize := getEnvInt("CONVERSATION_LOG_QUEUE_SIZE", 1000)
	if queueSize <= 0 {
		queueSize = 1000
	}

	provider := strings.ToLower(getEnv("LLM_PROVIDER", "openai"))
	cfg := &Config{
		Port:        getEnv("PORT", "8080"),
		GRPCPort:    getEnv("GRPC_PORT", "9090"),
		FrontendURL: getEnv("FRONTEND_URL", ""),
		DBPath:      getEnv("DB_PATH", "./data/coach.db"),
		ChatTimeout: getEnvDuration("CHAT_REQUEST_TIMEOUT", 2*time.Minute),
		LLM: LLMConfig{
			Provider:    provider,
			Model:       getEnv("LLM_MODEL", defaultModel(provider)),
			APIKey:      getEnv("LLM_API_KEY", providerKey(provider)),
			BaseURL:     getEnv("LLM_BASE_URL", ""),
			Temperature: float32(getEnvFloat("LLM_TEMPERATURE", 0.7)),
		},
		Coach: CoachConfig{
			RecentProgressLimit: getEnvInt("COACH_RECENT_PROGRESS_LIMIT", 5),
			SystemPromptPath:    getEnv("COACH_SYSTEM_PROMPT_PATH", ""),
		},
		Auth: AuthConfig{
			JWKSURL:       getEnv("AUTH_JWKS_URL", ""),
			Issuer:        getEnv("AUTH_ISSUER", ""),
			Audience:      getEnv("AUTH_AUDIENCE", ""),
			RequiredScope: getEnv("AUTH_REQUIRED_SCOPE", ""),
		},
		RateLimit: RateLimitConfig{
			RequestsPerMinute: getEnvInt("CHAT_RATE_LIMIT_PER_MINUTE", 20),
			Burst:             getEnvInt("CHAT_RATE_LIMIT_BURST", 5),
		},
		ConversationLog: ConversationLogConfig{
			Enabled:       getEnvBool("CONVERSATION_LOG_ENABLED", true),
			Dir:           getEnv("CONVERSATION_LOG_DIR", "./data/logs/conversations"),
			GlobalEnabled: getEnvBool("CONVERSATION_LOG_GLOBAL_ENABLED", false),
			GlobalPath:    getEnv("CONVERSATION_LOG_GLOBAL_PATH", "./data/logs/conversations/all.ndjson"),
			QueueSize:     queueSize,
			MaxOpenFiles:  getEnvInt("CONVERSATION_LOG_MAX_OPEN_FILES", 64),
		},
	}
	cfg.AllowedOrigins = splitList(getEnv("ALLOWED_ORIGINS", cfg.FrontendURL))

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}
	if c.DBPath == "" {
		return fmt.Errorf("DB_PATH cannot be empty")
	}
	switch c.LLM.Provider {
	case "openai", "openrouter", "gemini":
	default:
		return fmt.Errorf("LLM_PROVIDER must be one of openai, openrouter, gemini (got %q)", c.LLM.Provider)
	}
	if c.LLM.Model == "" {
		return fmt.Errorf("LLM_MODEL cannot be empty")
	}
	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		return fmt.Errorf("LLM_TEMPERATURE must be between 0 and 2")
	}
	if c.ChatTimeout <= 0 {
		return fmt.Errorf("CHAT_REQUEST_TIMEOUT must be > 0")
	}
	if c.Coach.RecentProgressLimit <= 0 {
		return fmt.Errorf("COACH_RECENT_PROGRESS_LIMIT must be > 0")
	}
	if c.RateLimit.RequestsPerMinute <= 0 || c.RateLimit.Burst <= 0 {
		return fmt.Errorf("CHAT_RATE_LIMIT_PER_MINUTE and CHAT_RATE_LIMIT_BURST must be > 0")
	}
	if c.Auth.JWKSURL == "" && c.Auth.RequiredScope != "" {
		return fmt.Errorf("AUTH_REQUIRED_SCOPE requires AUTH_JWKS_URL")
	}
	if c.ConversationLog.Dir == "" {
		return fmt.Errorf("CONVERSATION_LOG_DIR cannot be empty")
	}
	if c.ConversationLog.GlobalPath == "" {
		return fmt.Errorf("CONVERSATION_LOG_GLOBAL_PATH cannot be empty")
	}
	if c.ConversationLog.QueueSize <= 0 {
		return fmt.Errorf("CONVERSATION_LOG_QUEUE_SIZE must be > 0")
	}
	if c.ConversationLog.MaxOpenFiles <= 0 {
		return fmt.Errorf("CONVERSATION_LOG_MAX_OPEN_FILES must be > 0")
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.FrontendURL == "" ||
		strings.Contains(c.FrontendURL, "localhost") ||
		strings.Contains(c.FrontendURL, "127.0.0.1")
}

// AuthEnabled reports whether requests must carry a verified JWT.
func (c *Config) AuthEnabled() bool {
	return c.Auth.JWKSURL != ""
}

func defaultModel(provider string) string {
	switch provider {
	case "gemini":
		return "gemini-2.5-flash"
	case "openrouter":
		return "openai/gpt-4o-mini"
	default:
		return "gpt-4o-mini"
	}
}

func providerKey(provider string) string {
	switch provider {
	case "gemini":
		return os.Getenv("GOOGLE_API_KEY")
	case "openrouter":
		return os.Getenv("OPENROUTER_API_KEY")
	default:
		return os.Getenv("OPENAI_API_KEY")
	}
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

func getEnvFloat(key string, fallback float64) float64 {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(value), 32)
	if err != nil {
		return fallback
	}
	return f
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return d
}
