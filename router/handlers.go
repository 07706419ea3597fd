package router

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"tryon_backend/core"
	"tryon_backend/imagecache"
	"tryon_backend/metrics"
	"tryon_backend/outfit"
)

// Message types
const (
	TypeGenerateOutfit  = "generateOutfit"
	TypeExtractProduct  = "extractProduct"
	TypeGetCacheStats   = "getCacheStats"
	TypeClearCache      = "clearCache"
	TypeInvalidateCache = "invalidateCache"
	TypeGetMetrics      = "getMetrics"
	TypePing            = "ping"
)

// defaultRecentTasks is the number of task records getMetrics returns when
// the request does not say.
const defaultRecentTasks = 20

// Outfits is the subset of *outfit.Service the handlers use.
type Outfits interface {
	GenerateOutfit(ctx context.Context, req outfit.GenerateRequest) (outfit.GenerateResult, error)
	ExtractProduct(ctx context.Context, item outfit.Item) (outfit.ExtractResult, error)
	Strategy() string
}

// CacheAdmin is the subset of *imagecache.Cache the handlers use.
type CacheAdmin interface {
	Stats(ctx context.Context) (imagecache.Stats, error)
	ClearAll(ctx context.Context) (int, error)
	InvalidateOlderThan(ctx context.Context, maxAge time.Duration) (int, error)
}

// MetricsSource is the subset of *metrics.MetricsStore the handlers use.
type MetricsSource interface {
	Snapshot(recent int) metrics.Snapshot
}

// Services are the collaborators behind the message table.
type Services struct {
	Outfits     Outfits
	Cache       CacheAdmin
	Metrics     MetricsSource
	CacheMaxAge time.Duration
}

// InvalidateCacheData is the data of an invalidateCache message.
type InvalidateCacheData struct {
	// MaxAgeHours overrides the configured maximum age when positive
	MaxAgeHours float64 `json:"maxAgeHours,omitempty"`
}

// GetMetricsData is the data of a getMetrics message.
type GetMetricsData struct {
	Recent int `json:"recent,omitempty"`
}

// RemovedResult reports how many cache entries an operation removed.
type RemovedResult struct {
	Removed int `json:"removed"`
}

// PingResult answers a ping.
type PingResult struct {
	Pong     bool      `json:"pong"`
	Version  string    `json:"version"`
	Strategy string    `json:"strategy,omitempty"`
	Time     time.Time `json:"time"`
}

// Register installs the handler for every message type.
func Register(r *Router, s Services) {
	r.Handle(TypeGenerateOutfit, generateOutfit(s.Outfits))
	r.Handle(TypeExtractProduct, extractProduct(s.Outfits))
	r.Handle(TypeGetCacheStats, func(ctx context.Context, _ json.RawMessage) (any, error) {
		return s.Cache.Stats(ctx)
	})
	r.Handle(TypeClearCache, func(ctx context.Context, _ json.RawMessage) (any, error) {
		n, err := s.Cache.ClearAll(ctx)
		if err != nil {
			return nil, err
		}
		return RemovedResult{Removed: n}, nil
	})
	r.Handle(TypeInvalidateCache, invalidateCache(s.Cache, s.CacheMaxAge))
	r.Handle(TypeGetMetrics, func(ctx context.Context, data json.RawMessage) (any, error) {
		req, err := Decode[GetMetricsData](data)
		if err != nil {
			return nil, err
		}
		if req.Recent <= 0 {
			req.Recent = defaultRecentTasks
		}
		return s.Metrics.Snapshot(req.Recent), nil
	})
	r.Handle(TypePing, func(ctx context.Context, _ json.RawMessage) (any, error) {
		res := PingResult{Pong: true, Version: core.GetVersion(), Time: time.Now().UTC()}
		if s.Outfits != nil {
			res.Strategy = s.Outfits.Strategy()
		}
		return res, nil
	})
}

func generateOutfit(svc Outfits) HandlerFunc {
	return func(ctx context.Context, data json.RawMessage) (any, error) {
		req, err := Decode[outfit.GenerateRequest](data)
		if err != nil {
			return nil, err
		}
		if strings.TrimSpace(req.BasePhotoRef) == "" {
			return nil, fmt.Errorf("%w: basePhotoRef is required", ErrBadRequest)
		}
		res, err := svc.GenerateOutfit(ctx, req)
		if err != nil {
			// The correlation ID still identifies the failed run
			return map[string]string{"correlationId": res.CorrelationID}, err
		}
		return res, nil
	}
}

func extractProduct(svc Outfits) HandlerFunc {
	return func(ctx context.Context, data json.RawMessage) (any, error) {
		item, err := Decode[outfit.Item](data)
		if err != nil {
			return nil, err
		}
		if err := item.Validate(); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrBadRequest, err)
		}
		res, err := svc.ExtractProduct(ctx, item)
		if err != nil {
			return map[string]string{"correlationId": res.CorrelationID}, err
		}
		return res, nil
	}
}

func invalidateCache(cache CacheAdmin, defaultMaxAge time.Duration) HandlerFunc {
	return func(ctx context.Context, data json.RawMessage) (any, error) {
		req, err := Decode[InvalidateCacheData](data)
		if err != nil {
			return nil, err
		}
		maxAge := defaultMaxAge
		if req.MaxAgeHours > 0 {
			maxAge = time.Duration(req.MaxAgeHours * float64(time.Hour))
		}
		n, err := cache.InvalidateOlderThan(ctx, maxAge)
		if err != nil {
			return nil, err
		}
		return RemovedResult{Removed: n}, nil
	}
}

// OutfitErrorDetail maps outfit pipeline errors to an ErrorDetail.
func OutfitErrorDetail(err error) *ErrorDetail {
	var compErr *outfit.CompositionError
	if errors.As(err, &compErr) {
		d := &ErrorDetail{Step: string(compErr.Step)}
		if compErr.Index >= 0 {
			idx := compErr.Index
			d.ItemIndex = &idx
			d.ItemName = compErr.Item.DisplayName()
		}
		return d
	}
	var extErr *outfit.ExtractionError
	if errors.As(err, &extErr) {
		return &ErrorDetail{Step: string(outfit.StepExtract), ItemName: extErr.Item.DisplayName()}
	}
	return nil
}
