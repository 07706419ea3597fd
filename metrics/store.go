package metrics

import (
	"sync"
	"time"
)

// Recorder is implemented by anything that accepts finished task records.
// The outfit service depends on this rather than on MetricsStore.
type Recorder interface {
	RecordTask(task TaskRecord)
}

// MetricsStore keeps a fixed-size history of recent task records plus
// running aggregates.
//
// Usage:
//
//	store := NewMetricsStore(DefaultStoreConfig(), time.Now())
//	store.RecordTask(record)
//	snapshot := store.Snapshot(20)
type MetricsStore struct {
	mu sync.RWMutex

	// Ring buffer of recent tasks
	taskHistory []TaskRecord
	taskCap     int
	taskHead    int
	taskSize    int

	totalTasks   int64
	totalSuccess int64
	totalErrors  int64
	taskByType   map[string]*taskTypeStats

	// Errors in a row; used for health
	consecutiveErrors int
	degradedAt        int

	startTime time.Time
	version   string
}

type taskTypeStats struct {
	count         int64
	successCount  int64
	totalDuration time.Duration
	remoteCalls   int64
	items         int64
	cacheHits     int64
}

// StoreConfig configures the MetricsStore behavior.
type StoreConfig struct {
	// TaskHistoryCapacity is the max number of tasks to retain in history
	TaskHistoryCapacity int
	// Version is the application version string
	Version string
	// DegradedAfter is how many consecutive failed tasks mark the system
	// degraded. 0 disables.
	DegradedAfter int
}

// DefaultStoreConfig returns a default configuration.
func DefaultStoreConfig() StoreConfig {
	return StoreConfig{
		TaskHistoryCapacity: 100,
		Version:             "0.0.0",
		DegradedAfter:       5,
	}
}

// NewMetricsStore creates a MetricsStore. startTime is used for uptime.
func NewMetricsStore(config StoreConfig, startTime time.Time) *MetricsStore {
	capacity := config.TaskHistoryCapacity
	if capacity < 1 {
		capacity = 100
	}
	if config.DegradedAfter < 0 {
		config.DegradedAfter = 0
	}

	return &MetricsStore{
		taskHistory: make([]TaskRecord, capacity),
		taskCap:     capacity,
		taskByType:  make(map[string]*taskTypeStats),
		startTime:   startTime,
		version:     config.Version,
		degradedAt:  config.DegradedAfter,
	}
}

// RecordTask logs a completed task.
func (s *MetricsStore) RecordTask(task TaskRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.taskHistory[s.taskHead] = task
	s.taskHead = (s.taskHead + 1) % s.taskCap
	if s.taskSize < s.taskCap {
		s.taskSize++
	}

	s.totalTasks++
	switch task.Status {
	case TaskStatusSuccess:
		s.totalSuccess++
		s.consecutiveErrors = 0
	case TaskStatusError:
		s.totalErrors++
		s.consecutiveErrors++
	}

	stats, ok := s.taskByType[task.Type]
	if !ok {
		stats = &taskTypeStats{}
		s.taskByType[task.Type] = stats
	}
	stats.count++
	if task.Status == TaskStatusSuccess {
		stats.successCount++
	}
	stats.totalDuration += task.Duration
	stats.remoteCalls += int64(task.RemoteCalls())
	stats.items += int64(task.ItemCount)
	stats.cacheHits += int64(task.CacheHits)
}

// GetTaskMetrics returns aggregated statistics.
func (s *MetricsStore) GetTaskMetrics() TaskMetrics {
	s.mu.RLock()
	defer s.mu.RUnlock()

	metrics := TaskMetrics{
		TotalProcessed: s.totalTasks,
		TotalSuccess:   s.totalSuccess,
		TotalErrors:    s.totalErrors,
		ByType:         make(map[string]*TaskTypeMetrics),
	}

	for taskType, stats := range s.taskByType {
		m := &TaskTypeMetrics{Count: stats.count}
		if stats.count > 0 {
			m.SuccessRate = float64(stats.successCount) / float64(stats.count) * 100
			m.AvgDuration = stats.totalDuration / time.Duration(stats.count)
			m.AvgRemoteCalls = float64(stats.remoteCalls) / float64(stats.count)
		}
		if stats.items > 0 {
			m.CacheHitRate = float64(stats.cacheHits) / float64(stats.items) * 100
		}
		metrics.ByType[taskType] = m
	}

	return metrics
}

// GetRecentTasks returns up to limit most recent records, oldest first.
func (s *MetricsStore) GetRecentTasks(limit int) []TaskRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 || s.taskSize == 0 {
		return []TaskRecord{}
	}
	if limit > s.taskSize {
		limit = s.taskSize
	}

	result := make([]TaskRecord, limit)
	for i := 0; i < limit; i++ {
		idx := (s.taskHead - limit + i + s.taskCap) % s.taskCap
		result[i] = s.taskHistory[idx]
	}
	return result
}

// GetSystemStatus reports degraded after DegradedAfter failures in a row.
func (s *MetricsStore) GetSystemStatus() SystemStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()

	health := SystemHealthRunning
	if s.degradedAt > 0 && s.consecutiveErrors >= s.degradedAt {
		health = SystemHealthDegraded
	}

	return SystemStatus{
		Health:    health,
		Version:   s.version,
		Uptime:    time.Since(s.startTime),
		LastCheck: time.Now(),
	}
}

// Snapshot returns status, aggregates and the recent history in one value.
func (s *MetricsStore) Snapshot(recent int) Snapshot {
	return Snapshot{
		System: s.GetSystemStatus(),
		Tasks:  s.GetTaskMetrics(),
		Recent: s.GetRecentTasks(recent),
	}
}

var _ Recorder = (*MetricsStore)(nil)
