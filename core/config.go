package core

import (
	"crypto/tls"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"
)

// Composition strategies accepted by COMPOSE_STRATEGY.
const (
	StrategySequential = "sequential"
	StrategySingleCall = "single_call"
)

// Config holds all configuration values
type Config struct {
	// Synthesis service
	SynthesisAPIKey      string
	SynthesisBaseURL     string
	SynthesisModel       string
	SynthesisTemperature float64
	SynthesisModalities  []string

	// Timeouts and limits
	CallTimeout    time.Duration // Bound on every remote call (fetch or synthesis)
	RequestTimeout time.Duration // Bound on one dispatched message
	MaxImageBytes  int64
	MaxRetries     int // 0 disables retries
	RetryDelay     time.Duration

	// Cache
	CacheDBPath        string
	CacheMaxAge        time.Duration
	CacheSweepInterval time.Duration

	// Pipeline
	ComposeStrategy string

	// Server Configuration
	Host                 string
	Port                 int
	APIPasswordHash      string  // bcrypt hash; empty disables auth
	APIRateLimit         float64 // requests per second; 0 disables limiting
	AllowSelfSignedCerts bool
}

// parseListEnv parses a comma-separated environment variable.
// Returns the default value if not set or empty. Each element is trimmed.
func parseListEnv(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	var result []string
	for _, part := range strings.Split(value, ",") {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	if len(result) == 0 {
		return defaultValue
	}
	return result
}

// LoadConfig loads configuration from environment variables with sensible defaults.
// Only the synthesis API key is required.
func LoadConfig() (*Config, error) {
	apiKey := os.Getenv("SYNTHESIS_API_KEY")
	if apiKey == "" {
		return nil, ErrMissingConfig("SYNTHESIS_API_KEY")
	}

	baseURL := strings.TrimRight(GetEnvOrDefault("SYNTHESIS_BASE_URL", "https://openrouter.ai/api/v1"), "/")
	if err := ValidateServerURL(baseURL); err != nil {
		return nil, ErrInvalidServerURL(baseURL, err.Error())
	}

	temperature := ParseFloat64Env("SYNTHESIS_TEMPERATURE", 0.2)
	if temperature < 0 || temperature > 2 {
		return nil, fmt.Errorf("SYNTHESIS_TEMPERATURE must be between 0 and 2, got %.2f", temperature)
	}

	// 60s per call covers slow image models without letting a hung call stall a request
	callTimeout := ParseDurationEnv("CALL_TIMEOUT", 60)
	requestTimeout := ParseDurationEnv("REQUEST_TIMEOUT", 600)
	if callTimeout <= 0 || requestTimeout <= 0 {
		return nil, fmt.Errorf("CALL_TIMEOUT and REQUEST_TIMEOUT must be positive")
	}

	// 20MB covers product photography; larger bodies are rejected by the fetcher
	maxImageBytes := ParseBytesEnv("MAX_IMAGE_BYTES", 20*BytesPerMB)
	if maxImageBytes <= 0 {
		return nil, fmt.Errorf("MAX_IMAGE_BYTES must be positive, got %d", maxImageBytes)
	}

	maxRetries := ParseIntEnv("MAX_RETRIES", 0)
	if maxRetries < 0 || maxRetries > 10 {
		return nil, fmt.Errorf("MAX_RETRIES must be between 0 and 10, got %d", maxRetries)
	}

	strategy := strings.ToLower(GetEnvOrDefault("COMPOSE_STRATEGY", StrategySequential))
	if strategy != StrategySequential && strategy != StrategySingleCall {
		return nil, fmt.Errorf("COMPOSE_STRATEGY must be %q or %q, got %q", StrategySequential, StrategySingleCall, strategy)
	}

	port := ParseIntEnv("PORT", 3000)
	if port < 1 || port > 65535 {
		return nil, fmt.Errorf("PORT must be between 1 and 65535, got %d", port)
	}

	return &Config{
		SynthesisAPIKey:      apiKey,
		SynthesisBaseURL:     baseURL,
		SynthesisModel:       GetEnvOrDefault("SYNTHESIS_MODEL", "google/gemini-2.5-flash-image-preview"),
		SynthesisTemperature: temperature,
		SynthesisModalities:  parseListEnv("SYNTHESIS_MODALITIES", []string{"image", "text"}),

		CallTimeout:    callTimeout,
		RequestTimeout: requestTimeout,
		MaxImageBytes:  maxImageBytes,
		MaxRetries:     maxRetries,
		RetryDelay:     ParseDurationEnv("RETRY_DELAY", 2),

		CacheDBPath:        GetEnvOrDefault("CACHE_DB_PATH", "./data/tryon_cache.db"),
		CacheMaxAge:        time.Duration(ParseIntEnv("CACHE_MAX_AGE_HOURS", 24)) * time.Hour,
		CacheSweepInterval: time.Duration(ParseIntEnv("CACHE_SWEEP_INTERVAL_HOURS", 6)) * time.Hour,

		ComposeStrategy: strategy,

		Host:                 GetEnvOrDefault("HOST", "127.0.0.1"),
		Port:                 port,
		APIPasswordHash:      os.Getenv("API_PASSWORD_HASH"),
		APIRateLimit:         ParseFloat64Env("API_RATE_LIMIT", 5),
		AllowSelfSignedCerts: ParseBoolEnv("ALLOW_SELF_SIGNED_CERTS", false),
	}, nil
}

// ListenAddr returns the host:port the API server binds to.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// GetHTTPClient returns an HTTP client configured with TLS settings based on AllowSelfSignedCerts
// This should be used for all HTTP requests to external APIs to ensure TLS configuration is respected
func GetHTTPClient(cfg *Config, timeout time.Duration) *http.Client {
	client := &http.Client{
		Timeout: timeout,
	}

	if cfg != nil && cfg.AllowSelfSignedCerts {
		client.Transport = &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		}
	}

	return client
}

// GetDefaultHTTPClient returns an HTTP client bounded by the configured call timeout.
func GetDefaultHTTPClient(cfg *Config) *http.Client {
	timeout := 60 * time.Second
	if cfg != nil && cfg.CallTimeout > 0 {
		timeout = cfg.CallTimeout
	}
	return GetHTTPClient(cfg, timeout)
}
