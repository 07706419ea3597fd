// Package outfit implements the progressive outfit pipeline: product image
// extraction with caching, then sequential composition of each item onto
// the user's photo.
//
// The package is organised as:
//   - item.go, errors.go: data and error types
//   - extractor.go: cached product extraction with raw fallback state
//   - composer.go: the per-request state machine
//   - service.go: the caller-facing entry point with correlation IDs,
//     progress events and metrics
package outfit

import (
	"context"
	"fmt"
	"strings"

	"tryon_backend/imagecache"
	"tryon_backend/imagedata"
	"tryon_backend/synthesis"
)

// Item is one apparel item. The order of a slice of Items is the
// composition order.
type Item struct {
	Name     string `json:"name"`
	ImageRef string `json:"imageRef"`
}

// Validate checks that the item names an image.
func (i Item) Validate() error {
	if strings.TrimSpace(i.ImageRef) == "" {
		return fmt.Errorf("item %q has no image reference", i.Name)
	}
	return nil
}

// DisplayName returns the name, or a placeholder for unnamed items.
func (i Item) DisplayName() string {
	if name := strings.TrimSpace(i.Name); name != "" {
		return name
	}
	return "apparel item"
}

// Fetcher resolves an image reference. *imagefetch.Fetcher implements it.
type Fetcher interface {
	Fetch(ctx context.Context, ref string) (imagedata.Payload, error)
}

// Invoker performs one synthesis call. *synthesis.Client implements it.
type Invoker interface {
	Invoke(ctx context.Context, req synthesis.Request) (imagedata.Payload, error)
}

// Cache is the subset of *imagecache.Cache the extractor uses.
type Cache interface {
	Get(ctx context.Context, ref string) (imagecache.Entry, bool, error)
	Put(ctx context.Context, ref string, payload imagedata.Payload, opts ...imagecache.PutOption) error
}

// ProductExtractor produces a clean product image for an item.
// *Extractor implements it.
type ProductExtractor interface {
	Extract(ctx context.Context, item Item) (imagedata.Payload, error)
	ExtractDetailed(ctx context.Context, item Item) (Extraction, error)
}
