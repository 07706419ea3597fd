package core

import (
	"errors"
	"fmt"
)

// ConfigError represents a configuration-related error with actionable instructions.
type ConfigError struct {
	Code    string // Error code for programmatic handling
	Message string // Human-readable error message
	Action  string // Actionable instruction for resolution
}

func (e *ConfigError) Error() string {
	if e.Action != "" {
		return fmt.Sprintf("%s. %s", e.Message, e.Action)
	}
	return e.Message
}

// Error codes for configuration errors
const (
	ErrCodeEnvFileMissing      = "ENV_FILE_MISSING"
	ErrCodeInvalidServerURL    = "INVALID_SERVER_URL"
	ErrCodeMissingAuth         = "MISSING_AUTH"
	ErrCodeServerUnreachable   = "SERVER_UNREACHABLE"
	ErrCodeMissingConfig       = "MISSING_CONFIG"
	ErrCodeInvalidPasswordHash = "INVALID_PASSWORD_HASH"
	ErrCodeInsufficientDisk    = "INSUFFICIENT_DISK"
)

// ErrEnvFileMissing returns an error for missing .env file
func ErrEnvFileMissing(path string) *ConfigError {
	return &ConfigError{
		Code:    ErrCodeEnvFileMissing,
		Message: fmt.Sprintf("Configuration file not found: %s", path),
		Action:  "Copy example.env to .env and configure the required values",
	}
}

// ErrInvalidServerURL returns an error for invalid synthesis endpoint format
func ErrInvalidServerURL(url string, reason string) *ConfigError {
	return &ConfigError{
		Code:    ErrCodeInvalidServerURL,
		Message: fmt.Sprintf("Invalid SYNTHESIS_BASE_URL '%s': %s", url, reason),
		Action:  "Set SYNTHESIS_BASE_URL to a valid URL (e.g., https://openrouter.ai/api/v1)",
	}
}

// ErrMissingAuth returns an error for missing authentication credentials
func ErrMissingAuth(service string) *ConfigError {
	return &ConfigError{
		Code:    ErrCodeMissingAuth,
		Message: fmt.Sprintf("Missing authentication credentials for %s", service),
		Action:  "Set SYNTHESIS_API_KEY in your .env file",
	}
}

// ErrServerUnreachable returns an error when the synthesis endpoint cannot be reached
func ErrServerUnreachable(url string, reason string) *ConfigError {
	return &ConfigError{
		Code:    ErrCodeServerUnreachable,
		Message: fmt.Sprintf("Cannot connect to server at %s: %s", url, reason),
		Action:  "Check SYNTHESIS_BASE_URL and network access. For self-signed certificates, set ALLOW_SELF_SIGNED_CERTS=true",
	}
}

// ErrMissingConfig returns an error for missing required configuration
func ErrMissingConfig(varName string) *ConfigError {
	return &ConfigError{
		Code:    ErrCodeMissingConfig,
		Message: fmt.Sprintf("Missing required configuration: %s", varName),
		Action:  fmt.Sprintf("Set %s in your .env file", varName),
	}
}

// ErrInvalidPasswordHash returns an error when API_PASSWORD_HASH is not a bcrypt hash
func ErrInvalidPasswordHash(reason string) *ConfigError {
	return &ConfigError{
		Code:    ErrCodeInvalidPasswordHash,
		Message: fmt.Sprintf("API_PASSWORD_HASH is not a valid bcrypt hash: %s", reason),
		Action:  "Generate one with `htpasswd -bnBC 10 \"\" <password> | tr -d ':\\n'` or leave it empty to disable auth",
	}
}

// ErrInsufficientDisk returns an error when the cache directory is nearly full
func ErrInsufficientDisk(path string, reason string) *ConfigError {
	return &ConfigError{
		Code:    ErrCodeInsufficientDisk,
		Message: fmt.Sprintf("Not enough free space for the image cache at %s: %s", path, reason),
		Action:  "Free disk space or point CACHE_DB_PATH at a larger volume",
	}
}

// IsConfigError checks if an error is a ConfigError and returns it if so
func IsConfigError(err error) (*ConfigError, bool) {
	var configErr *ConfigError
	if errors.As(err, &configErr) {
		return configErr, true
	}
	return nil, false
}

// GetErrorCode extracts the error code from an error if it's a ConfigError
func GetErrorCode(err error) string {
	if configErr, ok := IsConfigError(err); ok {
		return configErr.Code
	}
	return ""
}
