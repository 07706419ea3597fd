package outfit

import (
	"context"
	"errors"
	"strings"

	"tryon_backend/imagecache"
	"tryon_backend/imagedata"
	"tryon_backend/logging"
	"tryon_backend/synthesis"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// ExtractSource records how an extraction was satisfied.
type ExtractSource string

const (
	SourceCache     ExtractSource = "cache"      // extracted entry, no remote call
	SourceCachedRaw ExtractSource = "cached_raw" // raw entry, extraction call only
	SourceRemote    ExtractSource = "remote"     // fetch and extraction call
)

// Extraction is a clean product image and where it came from.
type Extraction struct {
	Payload imagedata.Payload
	Source  ExtractSource
}

// Extractor turns a product photo into a clean, isolated product image.
//
// Flow for one item:
//  1. Cache hit with an extracted entry: returned as is.
//  2. Cache hit with a raw entry (an earlier extraction failed): the fetch is
//     skipped and only the extraction call is retried.
//  3. Miss: fetch, store the raw image, then call the model.
//  4. Success overwrites the entry with the extracted image.
//
// Cache failures are logged and never fail an extraction. Concurrent
// extractions of the same reference and item name share one run; a
// different name gets its own run because the name is part of the prompt.
//
// Thread Safety: Extractor is safe for concurrent use.
type Extractor struct {
	cache   Cache
	fetcher Fetcher
	invoker Invoker
	retry   RetryPolicy
	group   singleflight.Group
	logger  *logging.Logger
}

// NewExtractor creates an Extractor.
func NewExtractor(cache Cache, fetcher Fetcher, invoker Invoker, retry RetryPolicy, logger *logging.Logger) *Extractor {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Extractor{
		cache:   cache,
		fetcher: fetcher,
		invoker: invoker,
		retry:   retry,
		logger:  logger.Named("extractor"),
	}
}

// Extract returns the clean product image for item, or an *ExtractionError.
func (e *Extractor) Extract(ctx context.Context, item Item) (imagedata.Payload, error) {
	res, err := e.ExtractDetailed(ctx, item)
	return res.Payload, err
}

// ExtractDetailed is Extract plus the source of the result.
func (e *Extractor) ExtractDetailed(ctx context.Context, item Item) (Extraction, error) {
	if err := item.Validate(); err != nil {
		return Extraction{}, &ExtractionError{Item: item, Err: err}
	}

	// Shared runs must not die with whichever caller started them
	runCtx := context.WithoutCancel(ctx)
	key := flightKey(item)

	v, err, shared := e.group.Do(key, func() (any, error) {
		return e.run(runCtx, item)
	})
	if shared {
		e.logger.Debug("Joined in-flight extraction", zap.String("key", key))
	}
	if err != nil {
		var extErr *ExtractionError
		if errors.As(err, &extErr) && extErr.Item != item {
			return Extraction{}, &ExtractionError{Item: item, Err: extErr.Err}
		}
		return Extraction{}, err
	}
	return v.(Extraction), nil
}

// flightKey identifies runs that may be shared: same cache entry and same
// prompt.
func flightKey(item Item) string {
	return imagecache.KeyFor(item.ImageRef) + "|" + strings.ToLower(strings.TrimSpace(item.Name))
}

func (e *Extractor) run(ctx context.Context, item Item) (Extraction, error) {
	ref := item.ImageRef
	log := e.logger.With(zap.String("item", item.DisplayName()), zap.String("ref", ref))

	entry, hit, err := e.cache.Get(ctx, ref)
	if err != nil {
		log.Warn("Cache lookup failed, treating as miss", zap.Error(err))
		hit = false
	}
	if hit && entry.Variant == imagecache.VariantExtracted {
		log.Debug("Extracted image served from cache")
		return Extraction{Payload: entry.Payload, Source: SourceCache}, nil
	}

	var raw imagedata.Payload
	source := SourceRemote
	if hit {
		raw = entry.Payload
		source = SourceCachedRaw
		log.Debug("Raw image served from cache, retrying extraction")
	} else {
		raw, err = withRetry(ctx, e.retry, func() (imagedata.Payload, error) {
			return e.fetcher.Fetch(ctx, ref)
		})
		if err != nil {
			return Extraction{}, &ExtractionError{Item: item, Err: err}
		}
		if err := e.cache.Put(ctx, ref, raw, imagecache.WithVariant(imagecache.VariantRaw)); err != nil {
			log.Warn("Failed to cache raw image", zap.Error(err))
		}
	}

	req := synthesis.Request{
		Instruction: extractionInstruction(item),
		Attachments: []synthesis.Attachment{{Label: labelProduct, Payload: raw}},
	}
	extracted, err := withRetry(ctx, e.retry, func() (imagedata.Payload, error) {
		return e.invoker.Invoke(ctx, req)
	})
	if err != nil {
		log.Warn("Product extraction failed", zap.Error(err))
		return Extraction{}, &ExtractionError{Item: item, Err: err}
	}
	extracted = extracted.WithSourceRef(ref)

	if err := e.cache.Put(ctx, ref, extracted, imagecache.WithVariant(imagecache.VariantExtracted)); err != nil {
		log.Warn("Failed to cache extracted image", zap.Error(err))
	}

	log.Info("Product extracted",
		zap.String("source", string(source)),
		zap.String("format", extracted.Format.String()),
	)
	return Extraction{Payload: extracted, Source: source}, nil
}
