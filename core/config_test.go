package core

import (
	"strings"
	"testing"
	"time"
)

// clearConfigEnv blanks every variable LoadConfig reads.
func clearConfigEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"SYNTHESIS_API_KEY", "SYNTHESIS_BASE_URL", "SYNTHESIS_MODEL", "SYNTHESIS_TEMPERATURE",
		"SYNTHESIS_MODALITIES", "CALL_TIMEOUT", "REQUEST_TIMEOUT", "MAX_IMAGE_BYTES",
		"MAX_RETRIES", "RETRY_DELAY", "CACHE_DB_PATH", "CACHE_MAX_AGE_HOURS",
		"CACHE_SWEEP_INTERVAL_HOURS", "COMPOSE_STRATEGY", "HOST", "PORT",
		"API_PASSWORD_HASH", "API_RATE_LIMIT", "ALLOW_SELF_SIGNED_CERTS",
	} {
		t.Setenv(key, "")
	}
}

func TestLoadConfig_Defaults(t *testing.T) {
	clearConfigEnv(t)
	t.Setenv("SYNTHESIS_API_KEY", "sk-test")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() error: %v", err)
	}
	if cfg.SynthesisBaseURL != "https://openrouter.ai/api/v1" {
		t.Errorf("SynthesisBaseURL = %q", cfg.SynthesisBaseURL)
	}
	if cfg.SynthesisTemperature != 0.2 {
		t.Errorf("SynthesisTemperature = %v, want 0.2", cfg.SynthesisTemperature)
	}
	if strings.Join(cfg.SynthesisModalities, ",") != "image,text" {
		t.Errorf("SynthesisModalities = %v", cfg.SynthesisModalities)
	}
	if cfg.CallTimeout != 60*time.Second || cfg.RequestTimeout != 10*time.Minute {
		t.Errorf("timeouts = %v / %v", cfg.CallTimeout, cfg.RequestTimeout)
	}
	if cfg.MaxImageBytes != 20*BytesPerMB {
		t.Errorf("MaxImageBytes = %d", cfg.MaxImageBytes)
	}
	if cfg.MaxRetries != 0 {
		t.Errorf("MaxRetries = %d, want 0", cfg.MaxRetries)
	}
	if cfg.CacheMaxAge != 24*time.Hour {
		t.Errorf("CacheMaxAge = %v", cfg.CacheMaxAge)
	}
	if cfg.ComposeStrategy != StrategySequential {
		t.Errorf("ComposeStrategy = %q", cfg.ComposeStrategy)
	}
	if cfg.ListenAddr() != "127.0.0.1:3000" {
		t.Errorf("ListenAddr() = %q", cfg.ListenAddr())
	}
}

func TestLoadConfig_Overrides(t *testing.T) {
	clearConfigEnv(t)
	t.Setenv("SYNTHESIS_API_KEY", "sk-test")
	t.Setenv("SYNTHESIS_BASE_URL", "https://gateway.example.com/v1/")
	t.Setenv("SYNTHESIS_MODALITIES", "image")
	t.Setenv("MAX_IMAGE_BYTES", "5MB")
	t.Setenv("MAX_RETRIES", "2")
	t.Setenv("COMPOSE_STRATEGY", "SINGLE_CALL")
	t.Setenv("PORT", "9000")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() error: %v", err)
	}
	if cfg.SynthesisBaseURL != "https://gateway.example.com/v1" {
		t.Errorf("SynthesisBaseURL = %q, want trailing slash trimmed", cfg.SynthesisBaseURL)
	}
	if len(cfg.SynthesisModalities) != 1 || cfg.SynthesisModalities[0] != "image" {
		t.Errorf("SynthesisModalities = %v", cfg.SynthesisModalities)
	}
	if cfg.MaxImageBytes != 5*BytesPerMB || cfg.MaxRetries != 2 || cfg.Port != 9000 {
		t.Errorf("overrides not applied: %+v", cfg)
	}
	if cfg.ComposeStrategy != StrategySingleCall {
		t.Errorf("ComposeStrategy = %q", cfg.ComposeStrategy)
	}
}

func TestLoadConfig_Invalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"missing api key", map[string]string{}},
		{"bad url", map[string]string{"SYNTHESIS_BASE_URL": "ftp://example.com"}},
		{"temperature", map[string]string{"SYNTHESIS_TEMPERATURE": "3"}},
		{"retries", map[string]string{"MAX_RETRIES": "11"}},
		{"strategy", map[string]string{"COMPOSE_STRATEGY": "parallel"}},
		{"port", map[string]string{"PORT": "70000"}},
		{"call timeout", map[string]string{"CALL_TIMEOUT": "0"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearConfigEnv(t)
			if tt.name != "missing api key" {
				t.Setenv("SYNTHESIS_API_KEY", "sk-test")
			}
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			if _, err := LoadConfig(); err == nil {
				t.Error("LoadConfig() = nil error")
			}
		})
	}
}

func TestGetHTTPClient(t *testing.T) {
	c := GetHTTPClient(&Config{}, 5*time.Second)
	if c.Timeout != 5*time.Second || c.Transport != nil {
		t.Errorf("default client = %+v", c)
	}
	insecure := GetHTTPClient(&Config{AllowSelfSignedCerts: true}, 0)
	if insecure.Transport == nil {
		t.Error("self-signed client has no custom transport")
	}
}
