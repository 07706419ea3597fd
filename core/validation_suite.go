package core

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
	"golang.org/x/crypto/bcrypt"
)

// ValidationStep represents a single validation step with its status.
type ValidationStep struct {
	Name    string
	Status  StepStatus
	Message string
	Error   error
	Latency time.Duration
}

// StepStatus represents the status of a validation step.
type StepStatus int

const (
	StepPending StepStatus = iota
	StepRunning
	StepPassed
	StepFailed
	StepWarning
	StepSkipped
)

// String returns the string representation of a step status.
func (s StepStatus) String() string {
	switch s {
	case StepPending:
		return "pending"
	case StepRunning:
		return "running"
	case StepPassed:
		return "passed"
	case StepFailed:
		return "failed"
	case StepWarning:
		return "warning"
	case StepSkipped:
		return "skipped"
	default:
		return "unknown"
	}
}

// SuiteResult represents the complete result of validation suite execution.
type SuiteResult struct {
	Steps       []ValidationStep
	TotalSteps  int
	PassedSteps int
	FailedSteps int
	Warnings    int
	Duration    time.Duration
	Success     bool
}

// checkOutcome is what a single check reports back to the suite.
type checkOutcome struct {
	status  StepStatus
	message string
	err     error
}

// ValidationSuite runs the startup checks and prints a colored report.
//
// Checks run against the environment rather than a loaded Config so that a
// broken setting is reported with an actionable message before LoadConfig
// rejects it.
type ValidationSuite struct {
	output               io.Writer
	envPath              string
	allowSelfSignedCerts bool
	checkConnectivity    bool
	timeout              time.Duration
	showProgress         bool
	failFast             bool
}

// NewValidationSuite creates a new ValidationSuite with default settings.
func NewValidationSuite() *ValidationSuite {
	return &ValidationSuite{
		output:       os.Stdout,
		envPath:      ".env",
		timeout:      10 * time.Second,
		showProgress: true,
	}
}

// WithOutput sets the output writer for progress messages.
func (s *ValidationSuite) WithOutput(w io.Writer) *ValidationSuite {
	s.output = w
	return s
}

// WithAllowSelfSignedCerts configures whether to allow self-signed certificates.
func (s *ValidationSuite) WithAllowSelfSignedCerts(allow bool) *ValidationSuite {
	s.allowSelfSignedCerts = allow
	return s
}

// WithConnectivityCheck enables the network probe of the synthesis endpoint.
func (s *ValidationSuite) WithConnectivityCheck(enabled bool) *ValidationSuite {
	s.checkConnectivity = enabled
	return s
}

// WithTimeout sets the timeout for network operations.
func (s *ValidationSuite) WithTimeout(timeout time.Duration) *ValidationSuite {
	s.timeout = timeout
	return s
}

// WithShowProgress enables or disables progress output.
func (s *ValidationSuite) WithShowProgress(show bool) *ValidationSuite {
	s.showProgress = show
	return s
}

// WithFailFast stops validation on first failure if enabled.
func (s *ValidationSuite) WithFailFast(failFast bool) *ValidationSuite {
	s.failFast = failFast
	return s
}

// WithEnvPath sets a custom path for the .env file.
func (s *ValidationSuite) WithEnvPath(path string) *ValidationSuite {
	s.envPath = path
	return s
}

// Validate runs all validation checks in sequence with progress output.
func (s *ValidationSuite) Validate() SuiteResult {
	startTime := time.Now()

	if s.showProgress {
		s.printHeader("Try-On Backend Configuration Validation")
	}

	checks := []struct {
		name string
		fn   func() checkOutcome
	}{
		{"Environment File", s.checkEnvFile},
		{"Synthesis API Key", s.checkAPIKey},
		{"Synthesis Endpoint", s.checkEndpointURL},
		{"API Password Hash", s.checkPasswordHash},
		{"Cache Storage", s.checkCacheStorage},
	}

	steps := make([]ValidationStep, 0, len(checks)+1)
	for _, check := range checks {
		step := s.runStep(check.name, check.fn)
		steps = append(steps, step)
		if s.failFast && step.Status == StepFailed {
			return s.finish(steps, startTime)
		}
	}

	if s.checkConnectivity {
		if hasAllPassed(steps) {
			steps = append(steps, s.runStep("Synthesis Connectivity", s.checkEndpointReachable))
		} else {
			step := ValidationStep{
				Name:    "Synthesis Connectivity",
				Status:  StepSkipped,
				Message: "Skipped due to configuration errors",
			}
			if s.showProgress {
				s.printStep(step)
			}
			steps = append(steps, step)
		}
	}

	return s.finish(steps, startTime)
}

func (s *ValidationSuite) finish(steps []ValidationStep, startTime time.Time) SuiteResult {
	result := buildResult(steps, startTime)
	if s.showProgress {
		s.printSummary(result)
	}
	return result
}

// checkEnvFile warns when .env is absent; plain environment variables are enough.
func (s *ValidationSuite) checkEnvFile() checkOutcome {
	if _, err := os.Stat(s.envPath); err != nil {
		return checkOutcome{StepWarning, "No .env file, using process environment", ErrEnvFileMissing(s.envPath)}
	}
	return checkOutcome{StepPassed, "Environment file found", nil}
}

func (s *ValidationSuite) checkAPIKey() checkOutcome {
	if strings.TrimSpace(os.Getenv("SYNTHESIS_API_KEY")) == "" {
		return checkOutcome{StepFailed, "SYNTHESIS_API_KEY required", ErrMissingAuth("synthesis")}
	}
	return checkOutcome{StepPassed, "Synthesis API key configured", nil}
}

func (s *ValidationSuite) checkEndpointURL() checkOutcome {
	baseURL := os.Getenv("SYNTHESIS_BASE_URL")
	if baseURL == "" {
		return checkOutcome{StepPassed, "Using default endpoint", nil}
	}
	if err := ValidateServerURL(baseURL); err != nil {
		return checkOutcome{StepFailed, "Invalid endpoint URL", ErrInvalidServerURL(baseURL, err.Error())}
	}
	return checkOutcome{StepPassed, "Endpoint URL valid", nil}
}

func (s *ValidationSuite) checkPasswordHash() checkOutcome {
	hash := os.Getenv("API_PASSWORD_HASH")
	if hash == "" {
		return checkOutcome{StepWarning, "API auth disabled", nil}
	}
	if _, err := bcrypt.Cost([]byte(hash)); err != nil {
		return checkOutcome{StepFailed, "Password hash unreadable", ErrInvalidPasswordHash(err.Error())}
	}
	return checkOutcome{StepPassed, "API auth enabled", nil}
}

func (s *ValidationSuite) checkCacheStorage() checkOutcome {
	dbPath := GetEnvOrDefault("CACHE_DB_PATH", "./data/tryon_cache.db")
	if err := CheckDiskSpace(dbPath, MinCacheFreeBytes); err != nil {
		return checkOutcome{StepFailed, "Cache volume too small", ErrInsufficientDisk(dbPath, err.Error())}
	}
	return checkOutcome{StepPassed, "Cache volume has free space", nil}
}

// checkEndpointReachable probes the synthesis endpoint. Any HTTP response
// counts as reachable since most endpoints reject unauthenticated HEADs.
func (s *ValidationSuite) checkEndpointReachable() checkOutcome {
	baseURL := strings.TrimRight(GetEnvOrDefault("SYNTHESIS_BASE_URL", "https://openrouter.ai/api/v1"), "/")

	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, baseURL, nil)
	if err != nil {
		return checkOutcome{StepFailed, "Failed to create request", ErrServerUnreachable(baseURL, err.Error())}
	}

	client := GetHTTPClient(&Config{AllowSelfSignedCerts: s.allowSelfSignedCerts}, s.timeout)
	start := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		return checkOutcome{StepWarning, "Endpoint not reachable yet", ErrServerUnreachable(baseURL, err.Error())}
	}
	resp.Body.Close()

	return checkOutcome{StepPassed, fmt.Sprintf("HTTP %d (latency: %v)", resp.StatusCode, time.Since(start).Round(time.Millisecond)), nil}
}

// runStep executes a validation step with timing and progress output.
func (s *ValidationSuite) runStep(name string, fn func() checkOutcome) ValidationStep {
	if s.showProgress {
		s.printStepStart(name)
	}

	startTime := time.Now()
	outcome := fn()
	step := ValidationStep{
		Name:    name,
		Status:  outcome.status,
		Message: outcome.message,
		Error:   outcome.err,
		Latency: time.Since(startTime),
	}

	if s.showProgress {
		s.printStep(step)
	}
	return step
}

// hasAllPassed checks that no step has failed.
func hasAllPassed(steps []ValidationStep) bool {
	for _, step := range steps {
		if step.Status == StepFailed {
			return false
		}
	}
	return true
}

// buildResult creates a SuiteResult from completed steps.
func buildResult(steps []ValidationStep, startTime time.Time) SuiteResult {
	result := SuiteResult{
		Steps:      steps,
		TotalSteps: len(steps),
		Duration:   time.Since(startTime),
		Success:    true,
	}

	for _, step := range steps {
		switch step.Status {
		case StepPassed:
			result.PassedSteps++
		case StepFailed:
			result.FailedSteps++
			result.Success = false
		case StepWarning:
			result.Warnings++
		}
	}

	return result
}

func (s *ValidationSuite) printHeader(title string) {
	fmt.Fprintln(s.output)
	color.New(color.FgCyan, color.Bold).Fprintf(s.output, "━━━ %s ━━━\n", title)
	fmt.Fprintln(s.output)
}

func (s *ValidationSuite) printStepStart(name string) {
	fmt.Fprintf(s.output, "  ◌ %s...", name)
}

// printStep prints a completed validation step with status indicator.
func (s *ValidationSuite) printStep(step ValidationStep) {
	var icon string
	var clr *color.Color

	switch step.Status {
	case StepPassed:
		icon, clr = "✓", color.New(color.FgGreen)
	case StepFailed:
		icon, clr = "✗", color.New(color.FgRed)
	case StepWarning:
		icon, clr = "!", color.New(color.FgYellow)
	case StepSkipped:
		icon, clr = "○", color.New(color.FgHiBlack)
	default:
		icon, clr = "?", color.New(color.FgWhite)
	}

	fmt.Fprintf(s.output, "\r")
	clr.Fprintf(s.output, "  %s %s", icon, step.Name)
	if step.Message != "" {
		color.New(color.FgHiBlack).Fprintf(s.output, " - %s", step.Message)
	}
	fmt.Fprintln(s.output)

	if step.Status == StepFailed && step.Error != nil {
		color.New(color.FgRed).Fprintf(s.output, "    └─ %s\n", step.Error.Error())
	}
}

func (s *ValidationSuite) printSummary(result SuiteResult) {
	fmt.Fprintln(s.output)

	if result.Success {
		successColor := color.New(color.FgGreen, color.Bold)
		successColor.Fprintf(s.output, "━━━ Validation Passed ")
		color.New(color.FgHiBlack).Fprintf(s.output, "(%d/%d checks passed in %v)",
			result.PassedSteps, result.TotalSteps, result.Duration.Round(time.Millisecond))
		successColor.Fprintln(s.output, " ━━━")
	} else {
		failColor := color.New(color.FgRed, color.Bold)
		failColor.Fprintf(s.output, "━━━ Validation Failed ")
		color.New(color.FgHiBlack).Fprintf(s.output, "(%d passed, %d failed)",
			result.PassedSteps, result.FailedSteps)
		failColor.Fprintln(s.output, " ━━━")
	}

	fmt.Fprintln(s.output)
}

// GetFirstError returns the first error from failed steps, or nil if all passed.
func (r SuiteResult) GetFirstError() error {
	for _, step := range r.Steps {
		if step.Status == StepFailed && step.Error != nil {
			return step.Error
		}
	}
	return nil
}

// Summary returns a human-readable summary string.
func (r SuiteResult) Summary() string {
	var sb strings.Builder
	if r.Success {
		sb.WriteString("Validation Passed: ")
	} else {
		sb.WriteString("Validation Failed: ")
	}
	sb.WriteString(fmt.Sprintf("%d/%d checks passed", r.PassedSteps, r.TotalSteps))
	if r.FailedSteps > 0 {
		sb.WriteString(fmt.Sprintf(", %d failed", r.FailedSteps))
	}
	if r.Warnings > 0 {
		sb.WriteString(fmt.Sprintf(", %d warnings", r.Warnings))
	}
	sb.WriteString(fmt.Sprintf(" (took %v)", r.Duration.Round(time.Millisecond)))
	return sb.String()
}
