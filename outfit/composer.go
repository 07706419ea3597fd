package outfit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"tryon_backend/core"
	"tryon_backend/imagedata"
	"tryon_backend/logging"
	"tryon_backend/synthesis"

	"go.uber.org/zap"
)

// ComposerConfig configures a Composer.
type ComposerConfig struct {
	// Strategy is core.StrategySequential (default) or core.StrategySingleCall.
	Strategy string
	// Retry applies to every remote call the composer makes itself.
	Retry RetryPolicy
}

// ComposeOption customizes a single Compose call.
type ComposeOption func(*composeOptions)

type composeOptions struct {
	reporter ProgressReporter
	tally    *tally
	logger   *logging.Logger
}

// WithProgress sends progress events for this call to r.
func WithProgress(r ProgressReporter) ComposeOption {
	return func(o *composeOptions) {
		if r != nil {
			o.reporter = r
		}
	}
}

// withTally counts the remote calls made by this request.
func withTally(t *tally) ComposeOption {
	return func(o *composeOptions) {
		o.tally = t
	}
}

// withLogger replaces the composer logger for one call.
func withLogger(l *logging.Logger) ComposeOption {
	return func(o *composeOptions) {
		if l != nil {
			o.logger = l
		}
	}
}

// tally counts remote calls for one request.
type tally struct {
	extractionCalls  int
	compositionCalls int
	fetchCalls       int
	cacheHits        int
	fallbacks        int
}

// Composer dresses a base photo in an ordered list of items.
//
// With the sequential strategy each item is applied to the output of the
// previous step, one synthesis call per item. The single-call strategy
// sends every garment in one request.
//
// A request produces either a final image or a *CompositionError; partial
// results are never returned. Remote calls already in flight finish even if
// the request context is cancelled, and the cancellation is observed before
// the next step starts.
//
// Thread Safety: Composer is safe for concurrent use; requests share no
// state other than the extractor and its cache.
type Composer struct {
	fetcher   Fetcher
	extractor ProductExtractor
	invoker   Invoker
	strategy  string
	retry     RetryPolicy
	logger    *logging.Logger
}

// NewComposer creates a Composer.
func NewComposer(fetcher Fetcher, extractor ProductExtractor, invoker Invoker, cfg ComposerConfig, logger *logging.Logger) *Composer {
	if logger == nil {
		logger = logging.NewNop()
	}
	strategy := cfg.Strategy
	if strategy != core.StrategySingleCall {
		strategy = core.StrategySequential
	}
	return &Composer{
		fetcher:   fetcher,
		extractor: extractor,
		invoker:   invoker,
		strategy:  strategy,
		retry:     cfg.Retry,
		logger:    logger.Named("composer"),
	}
}

// Strategy returns the composition strategy in use.
func (c *Composer) Strategy() string {
	return c.strategy
}

// Compose runs the pipeline for one request.
func (c *Composer) Compose(ctx context.Context, basePhotoRef string, items []Item, opts ...ComposeOption) (imagedata.Payload, error) {
	o := composeOptions{reporter: nopReporter{}, tally: &tally{}, logger: c.logger}
	for _, opt := range opts {
		opt(&o)
	}
	run := &composeRun{Composer: c, opts: o, total: len(items)}

	if len(items) == 0 {
		return run.fail(&CompositionError{Index: -1, Step: StepValidate, Err: ErrNoItems})
	}
	for i, item := range items {
		if err := item.Validate(); err != nil {
			return run.fail(&CompositionError{Index: i, Item: item, Step: StepValidate, Err: err})
		}
	}

	// Calls outlive the request context so a cancelled request never
	// leaves a half-finished call behind; cancellation is checked between steps
	callCtx := context.WithoutCancel(ctx)

	run.report(StepBasePhoto, -1, Item{}, "")
	base, err := withRetry(ctx, c.retry, func() (imagedata.Payload, error) {
		o.tally.fetchCalls++
		return c.fetcher.Fetch(callCtx, basePhotoRef)
	})
	if err != nil {
		return run.fail(&CompositionError{Index: -1, Step: StepBasePhoto, Err: err})
	}

	var result imagedata.Payload
	if c.strategy == core.StrategySingleCall {
		result, err = run.singleCall(ctx, callCtx, base, items)
	} else {
		result, err = run.sequential(ctx, callCtx, base, items)
	}
	if err != nil {
		return run.fail(err)
	}

	if err := ctx.Err(); err != nil {
		// The caller is gone; a finished image is still not delivered
		return run.fail(&CompositionError{Index: -1, Step: StepCompose, Err: err})
	}

	run.report(StepDone, -1, Item{}, "")
	o.logger.Info("Outfit composed",
		zap.String("strategy", c.strategy),
		zap.Int("items", len(items)),
		zap.String("format", result.Format.String()),
		zap.Int("bytes", result.Size()),
	)
	return result.WithSourceRef(""), nil
}

// composeRun carries the per-request state of one Compose call.
type composeRun struct {
	*Composer
	opts  composeOptions
	total int
}

func (r *composeRun) sequential(ctx, callCtx context.Context, base imagedata.Payload, items []Item) (imagedata.Payload, error) {
	current := base
	for i, item := range items {
		if err := ctx.Err(); err != nil {
			return imagedata.Payload{}, &CompositionError{Index: i, Item: item, Step: StepExtract, Err: err}
		}
		r.report(StepExtract, i, item, "")
		garment, err := r.itemImage(ctx, callCtx, i, item)
		if err != nil {
			return imagedata.Payload{}, err
		}

		if err := ctx.Err(); err != nil {
			return imagedata.Payload{}, &CompositionError{Index: i, Item: item, Step: StepCompose, Err: err}
		}
		r.report(StepCompose, i, item, "")
		req := synthesis.Request{
			Instruction: compositionInstruction(item),
			Attachments: []synthesis.Attachment{
				{Label: labelPerson, Payload: current},
				{Label: garmentLabel(item), Payload: garment},
			},
		}
		start := time.Now()
		next, err := withRetry(ctx, r.retry, func() (imagedata.Payload, error) {
			r.opts.tally.compositionCalls++
			return r.invoker.Invoke(callCtx, req)
		})
		if err != nil {
			return imagedata.Payload{}, &CompositionError{Index: i, Item: item, Step: StepCompose, Err: err}
		}
		r.opts.logger.Debug("Item composed",
			zap.Int("index", i),
			zap.String("item", item.DisplayName()),
			zap.Duration("duration", time.Since(start)),
		)
		current = next
	}
	return current, nil
}

func (r *composeRun) singleCall(ctx, callCtx context.Context, base imagedata.Payload, items []Item) (imagedata.Payload, error) {
	attachments := make([]synthesis.Attachment, 0, len(items)+1)
	attachments = append(attachments, synthesis.Attachment{Label: labelPerson, Payload: base})
	for i, item := range items {
		if err := ctx.Err(); err != nil {
			return imagedata.Payload{}, &CompositionError{Index: i, Item: item, Step: StepExtract, Err: err}
		}
		r.report(StepExtract, i, item, "")
		garment, err := r.itemImage(ctx, callCtx, i, item)
		if err != nil {
			return imagedata.Payload{}, err
		}
		attachments = append(attachments, synthesis.Attachment{Label: garmentLabel(item), Payload: garment})
	}

	if err := ctx.Err(); err != nil {
		return imagedata.Payload{}, &CompositionError{Index: -1, Step: StepCompose, Err: err}
	}
	r.report(StepCompose, -1, Item{}, "")
	req := synthesis.Request{Instruction: singleCallInstruction(items), Attachments: attachments}
	result, err := withRetry(ctx, r.retry, func() (imagedata.Payload, error) {
		r.opts.tally.compositionCalls++
		return r.invoker.Invoke(callCtx, req)
	})
	if err != nil {
		return imagedata.Payload{}, &CompositionError{Index: -1, Step: StepCompose, Err: err}
	}
	return result, nil
}

// itemImage returns the extracted product image, falling back to the raw
// product photo when extraction fails.
func (r *composeRun) itemImage(ctx, callCtx context.Context, index int, item Item) (imagedata.Payload, error) {
	garment, err := r.extract(callCtx, item)
	if err == nil {
		return garment, nil
	}

	var extErr *ExtractionError
	if !errors.As(err, &extErr) {
		return imagedata.Payload{}, &CompositionError{Index: index, Item: item, Step: StepExtract, Err: err}
	}

	r.opts.logger.Warn("Extraction failed, using raw product image",
		zap.Int("index", index),
		zap.String("item", item.DisplayName()),
		zap.Error(err),
	)
	r.opts.tally.fallbacks++
	r.report(StepExtract, index, item, "extraction failed, using raw product image")

	raw, fetchErr := withRetry(ctx, r.retry, func() (imagedata.Payload, error) {
		r.opts.tally.fetchCalls++
		return r.fetcher.Fetch(callCtx, item.ImageRef)
	})
	if fetchErr != nil {
		return imagedata.Payload{}, &CompositionError{
			Index: index,
			Item:  item,
			Step:  StepExtract,
			Err:   fmt.Errorf("%w (raw fallback: %w)", err, fetchErr),
		}
	}
	return raw, nil
}

// extract calls the extractor and records how the result was produced.
func (r *composeRun) extract(ctx context.Context, item Item) (imagedata.Payload, error) {
	t := r.opts.tally
	res, err := r.extractor.ExtractDetailed(ctx, item)
	if err != nil {
		t.extractionCalls++
		return imagedata.Payload{}, err
	}
	switch res.Source {
	case SourceCache:
		t.cacheHits++
	case SourceCachedRaw:
		t.extractionCalls++
	default:
		t.fetchCalls++
		t.extractionCalls++
	}
	return res.Payload, nil
}

func (r *composeRun) report(step Step, index int, item Item, msg string) {
	event := ProgressEvent{
		Step:    step,
		Index:   index,
		Total:   r.total,
		Message: msg,
		Time:    time.Now().UTC(),
	}
	if index >= 0 {
		event.Item = item.DisplayName()
	}
	r.opts.reporter.Report(event)
}

func (r *composeRun) fail(err error) (imagedata.Payload, error) {
	var compErr *CompositionError
	if errors.As(err, &compErr) {
		r.report(StepFailed, compErr.Index, compErr.Item, compErr.Error())
	} else {
		r.report(StepFailed, -1, Item{}, err.Error())
	}
	r.opts.logger.Warn("Outfit composition failed", zap.Error(err))
	return imagedata.Payload{}, err
}
