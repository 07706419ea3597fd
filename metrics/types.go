// Package metrics provides pure data types for generation metrics.
// This file contains type definitions with no behavior.
package metrics

import "time"

// TaskRecord is one completed pipeline run: an outfit generation or a
// standalone product extraction.
type TaskRecord struct {
	// ID is the correlation ID of the run
	ID string `json:"id"`

	// Type identifies the kind of run (see TaskType constants)
	Type string `json:"type"`

	// Status is TaskStatusSuccess or TaskStatusError
	Status string `json:"status"`

	// Strategy is the composition strategy ("sequential", "single_call")
	Strategy string `json:"strategy,omitempty"`

	// ItemCount is the number of apparel items requested
	ItemCount int `json:"item_count"`

	// ExtractionCalls, CompositionCalls and FetchCalls count remote calls
	// made by the run
	ExtractionCalls  int `json:"extraction_calls"`
	CompositionCalls int `json:"composition_calls"`
	FetchCalls       int `json:"fetch_calls"`

	// CacheHits counts items served from the cache without any remote call
	CacheHits int `json:"cache_hits"`

	// Fallbacks counts items composed from the raw image after a failed extraction
	Fallbacks int `json:"fallbacks"`

	StartTime time.Time     `json:"start_time"`
	Duration  time.Duration `json:"duration"`

	// FailedStep and ErrorMsg are set when Status is TaskStatusError
	FailedStep string `json:"failed_step,omitempty"`
	ErrorMsg   string `json:"error_msg,omitempty"`
}

// RemoteCalls returns the total number of remote calls made by the run.
func (r TaskRecord) RemoteCalls() int {
	return r.ExtractionCalls + r.CompositionCalls + r.FetchCalls
}

// TaskMetrics represents aggregated statistics.
type TaskMetrics struct {
	TotalProcessed int64                       `json:"total_processed"`
	TotalSuccess   int64                       `json:"total_success"`
	TotalErrors    int64                       `json:"total_errors"`
	ByType         map[string]*TaskTypeMetrics `json:"by_type"`
}

// TaskTypeMetrics represents statistics for a specific task type.
type TaskTypeMetrics struct {
	Count       int64         `json:"count"`
	SuccessRate float64       `json:"success_rate"`
	AvgDuration time.Duration `json:"avg_duration"`

	// AvgRemoteCalls is the mean number of remote calls per run
	AvgRemoteCalls float64 `json:"avg_remote_calls"`

	// CacheHitRate is the percentage of items served from cache (0-100)
	CacheHitRate float64 `json:"cache_hit_rate"`
}

// SystemStatus represents the overall system health and status.
type SystemStatus struct {
	Health    string        `json:"health"`
	Version   string        `json:"version"`
	Uptime    time.Duration `json:"uptime"`
	LastCheck time.Time     `json:"last_check"`
}

// Snapshot is everything the getMetrics message returns.
type Snapshot struct {
	System SystemStatus `json:"system"`
	Tasks  TaskMetrics  `json:"tasks"`
	Recent []TaskRecord `json:"recent"`
}

// Status constants for TaskRecord
const (
	TaskStatusSuccess = "success"
	TaskStatusError   = "error"
)

// Health constants for SystemStatus
const (
	SystemHealthRunning  = "running"
	SystemHealthDegraded = "degraded"
)

// Task type constants
const (
	TaskTypeGenerateOutfit = "generate_outfit"
	TaskTypeExtractProduct = "extract_product"
)
