package logging

import (
	"regexp"
	"strconv"
	"strings"
)

// RedactedPlaceholder is the string used to replace sensitive data
const RedactedPlaceholder = "[REDACTED]"

// maxDataURLPrefix is how much of an inline image is kept in log output.
const maxDataURLPrefix = 48

// sensitivePatterns contains compiled regex patterns for detecting secrets.
// Cache keys are SHA-256 hex digests, so no generic hex pattern is listed.
var sensitivePatterns = []*regexp.Regexp{
	// OpenAI and OpenRouter keys
	regexp.MustCompile(`(?i)(sk-[a-zA-Z0-9_-]{20,})`),
	// Google API keys
	regexp.MustCompile(`(?i)(AIza[a-zA-Z0-9_-]{35})`),
	regexp.MustCompile(`(?i)(bearer\s+[a-zA-Z0-9._-]{20,})`),
	// bcrypt hashes (API_PASSWORD_HASH)
	regexp.MustCompile(`(\$2[aby]\$[0-9]{2}\$[./A-Za-z0-9]{53})`),
	regexp.MustCompile(`(?i)(password\s*[:=]\s*[^\s,;]{8,})`),
	regexp.MustCompile(`(?i)(api_key\s*[:=]\s*[^\s,;]{8,})`),
	regexp.MustCompile(`(?i)(token\s*[:=]\s*[^\s,;]{8,})`),
}

// dataURLPattern matches an inline base64 image so it can be shortened.
var dataURLPattern = regexp.MustCompile(`data:image/[a-zA-Z0-9.+-]+;base64,[A-Za-z0-9+/=]+`)

// sensitiveFieldNames are field-name fragments whose values are never logged.
var sensitiveFieldNames = []string{
	"SYNTHESIS_API_KEY",
	"API_PASSWORD",
	"AUTHORIZATION",
	"PASSWORD",
	"SECRET",
	"TOKEN",
	"API_KEY",
	"APIKEY",
}

// RedactSensitiveData scans a string value, redacts secrets and shortens
// inline images.
//
// This is a pure function with no side effects.
//
// Example:
//
//	RedactSensitiveData("key sk-or-v1-abcdefghijklmnopqrstuvwx") // "key [REDACTED]"
func RedactSensitiveData(value string) string {
	if value == "" {
		return value
	}

	result := value
	for _, pattern := range sensitivePatterns {
		result = pattern.ReplaceAllString(result, RedactedPlaceholder)
	}
	return TruncateDataURLs(result)
}

// TruncateDataURLs replaces every inline base64 image with its first few
// characters and the original length.
func TruncateDataURLs(value string) string {
	if !strings.Contains(value, "data:image/") {
		return value
	}
	return dataURLPattern.ReplaceAllStringFunc(value, func(m string) string {
		if len(m) <= maxDataURLPrefix {
			return m
		}
		return m[:maxDataURLPrefix] + "...(" + strconv.Itoa(len(m)) + " chars)"
	})
}

// IsSensitiveField returns true if the field name indicates sensitive data.
//
// Example:
//
//	IsSensitiveField("authorization") // true
//	IsSensitiveField("cache_key")     // false
func IsSensitiveField(fieldName string) bool {
	upperName := strings.ToUpper(fieldName)
	for _, fragment := range sensitiveFieldNames {
		if strings.Contains(upperName, fragment) {
			return true
		}
	}
	return false
}

// ContainsSensitiveData returns true if the value matches any secret pattern.
func ContainsSensitiveData(value string) bool {
	for _, pattern := range sensitivePatterns {
		if pattern.MatchString(value) {
			return true
		}
	}
	return false
}
