package outfit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"tryon_backend/imagedata"
	"tryon_backend/logging"
	"tryon_backend/metrics"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// GenerateRequest asks for one outfit.
type GenerateRequest struct {
	BasePhotoRef string `json:"basePhotoRef"`
	Items        []Item `json:"items"`
}

// GenerateResult is a finished outfit.
type GenerateResult struct {
	CorrelationID string            `json:"correlationId"`
	Image         imagedata.Payload `json:"-"`
	ImageDataURL  string            `json:"image"`
	Format        string            `json:"format"`
	ItemCount     int               `json:"itemCount"`
	DurationMS    int64             `json:"durationMs"`
}

// ExtractResult is a standalone product extraction.
type ExtractResult struct {
	CorrelationID string            `json:"correlationId"`
	Image         imagedata.Payload `json:"-"`
	ImageDataURL  string            `json:"image"`
	Format        string            `json:"format"`
	DurationMS    int64             `json:"durationMs"`
}

// Service is the entry point for callers. Each call gets a correlation ID
// that tags its log lines, progress events and metrics record.
type Service struct {
	composer *Composer
	recorder metrics.Recorder
	reporter ProgressReporter
	logger   *logging.Logger
	newID    func() string
}

// NewService creates a Service. recorder and reporter may be nil.
func NewService(composer *Composer, recorder metrics.Recorder, reporter ProgressReporter, logger *logging.Logger) *Service {
	if logger == nil {
		logger = logging.NewNop()
	}
	if reporter == nil {
		reporter = nopReporter{}
	}
	return &Service{
		composer: composer,
		recorder: recorder,
		reporter: reporter,
		logger:   logger.Named("outfit"),
		newID:    uuid.NewString,
	}
}

// GenerateOutfit composes req.Items onto the base photo in order.
// On failure the returned result still carries the correlation ID.
func (s *Service) GenerateOutfit(ctx context.Context, req GenerateRequest) (GenerateResult, error) {
	id := s.newID()
	log := s.logger.With(zap.String("correlation_id", id))
	log.Info("Outfit generation started",
		zap.Int("items", len(req.Items)),
		zap.String("strategy", s.composer.Strategy()),
	)

	start := time.Now()
	t := &tally{}
	image, err := s.composer.Compose(ctx, req.BasePhotoRef, req.Items,
		WithProgress(stampReporter{id: id, next: s.reporter}),
		withTally(t),
		withLogger(log),
	)
	duration := time.Since(start)

	record := metrics.TaskRecord{
		ID:               id,
		Type:             metrics.TaskTypeGenerateOutfit,
		Strategy:         s.composer.Strategy(),
		ItemCount:        len(req.Items),
		ExtractionCalls:  t.extractionCalls,
		CompositionCalls: t.compositionCalls,
		FetchCalls:       t.fetchCalls,
		CacheHits:        t.cacheHits,
		Fallbacks:        t.fallbacks,
		StartTime:        start,
		Duration:         duration,
	}
	result := GenerateResult{CorrelationID: id, ItemCount: len(req.Items), DurationMS: duration.Milliseconds()}

	if err != nil {
		record.Status = metrics.TaskStatusError
		record.ErrorMsg = err.Error()
		var compErr *CompositionError
		if errors.As(err, &compErr) {
			record.FailedStep = string(compErr.Step)
		}
		s.record(record)
		return result, err
	}

	record.Status = metrics.TaskStatusSuccess
	s.record(record)

	result.Image = image
	result.ImageDataURL = image.DataURL()
	result.Format = image.Format.String()
	log.Info("Outfit generation finished",
		zap.Duration("duration", duration),
		zap.Int("remote_calls", record.RemoteCalls()),
		zap.Int("cache_hits", t.cacheHits),
	)
	return result, nil
}

// ExtractProduct runs the composer's extractor for a single item, warming
// the cache for later outfit requests.
func (s *Service) ExtractProduct(ctx context.Context, item Item) (ExtractResult, error) {
	id := s.newID()
	log := s.logger.With(zap.String("correlation_id", id))

	start := time.Now()
	t := &tally{}
	run := &composeRun{Composer: s.composer, opts: composeOptions{reporter: nopReporter{}, tally: t, logger: log}}
	image, err := run.extract(ctx, item)
	duration := time.Since(start)

	record := metrics.TaskRecord{
		ID:              id,
		Type:            metrics.TaskTypeExtractProduct,
		ItemCount:       1,
		ExtractionCalls: t.extractionCalls,
		FetchCalls:      t.fetchCalls,
		CacheHits:       t.cacheHits,
		StartTime:       start,
		Duration:        duration,
	}
	result := ExtractResult{CorrelationID: id, DurationMS: duration.Milliseconds()}

	if err == nil {
		if err = ctx.Err(); err != nil {
			err = fmt.Errorf("extract %q: %w", item.DisplayName(), err)
		}
	}
	if err != nil {
		record.Status = metrics.TaskStatusError
		record.FailedStep = string(StepExtract)
		record.ErrorMsg = err.Error()
		s.record(record)
		log.Warn("Product extraction failed", zap.Error(err))
		return result, err
	}

	record.Status = metrics.TaskStatusSuccess
	s.record(record)

	result.Image = image
	result.ImageDataURL = image.DataURL()
	result.Format = image.Format.String()
	return result, nil
}

// Strategy returns the composition strategy in use.
func (s *Service) Strategy() string {
	return s.composer.Strategy()
}

func (s *Service) record(r metrics.TaskRecord) {
	if s.recorder != nil {
		s.recorder.RecordTask(r)
	}
}
