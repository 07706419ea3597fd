// Package imagecache is the durable content cache for product images.
//
// Entries are keyed by a hash of the source reference and written through
// to a Store on every Put; there is no in-memory layer, so every Get is a
// store read. Entries carry a creation time and are expired by
// InvalidateOlderThan, usually driven by the sweeper.
package imagecache

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"tryon_backend/imagedata"
	"tryon_backend/logging"

	"go.uber.org/zap"
)

// DefaultMaxAge is the retention used when a caller passes maxAge <= 0.
const DefaultMaxAge = 24 * time.Hour

// Cache stores image payloads by source reference.
//
// Thread Safety: Cache is safe for concurrent use; consistency comes from
// the Store (last writer wins).
type Cache struct {
	store  Store
	logger *logging.Logger
	now    func() time.Time
}

// Option configures a Cache.
type Option func(*Cache)

// WithClock replaces time.Now. Tests use it to control entry ages.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) {
		c.now = now
	}
}

// PutOption configures a single Put.
type PutOption func(*Entry)

// WithVariant sets the entry variant. The default is VariantRaw.
func WithVariant(v Variant) PutOption {
	return func(e *Entry) {
		e.Variant = v
	}
}

// New creates a Cache over store.
func New(store Store, logger *logging.Logger, opts ...Option) *Cache {
	if logger == nil {
		logger = logging.NewNop()
	}
	c := &Cache{
		store:  store,
		logger: logger.Named("cache"),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get looks up the entry for ref.
//
// A stored entry that cannot be decoded, or whose payload does not validate
// as an image, is deleted and reported as a miss. Store failures are returned
// as errors and are never reported as a miss.
func (c *Cache) Get(ctx context.Context, ref string) (Entry, bool, error) {
	key := KeyFor(ref)

	values, err := c.store.Get(ctx, key)
	if err != nil {
		return Entry{}, false, fmt.Errorf("cache read %s: %w", key, err)
	}

	raw, ok := values[key]
	if !ok {
		return Entry{}, false, nil
	}

	entry, err := decodeEntry(raw)
	if err != nil {
		c.logger.Warn("Removing corrupt cache entry",
			zap.String("key", key),
			zap.String("ref", ref),
			zap.Error(err),
		)
		if _, rmErr := c.store.RemoveIfUnchanged(ctx, map[string]json.RawMessage{key: raw}); rmErr != nil {
			c.logger.Error("Failed to remove corrupt cache entry",
				zap.String("key", key),
				zap.Error(rmErr),
			)
		}
		return Entry{}, false, nil
	}

	entry.Key = key
	return entry, true, nil
}

// Put stores payload under ref with the current time, overwriting any
// existing entry.
func (c *Cache) Put(ctx context.Context, ref string, payload imagedata.Payload, opts ...PutOption) error {
	if err := imagedata.Validate(payload); err != nil {
		return fmt.Errorf("cache put: %w", err)
	}

	entry := Entry{
		Key:       KeyFor(ref),
		SourceRef: ref,
		Payload:   payload,
		Variant:   VariantRaw,
		CreatedAt: c.now().UTC(),
	}
	for _, opt := range opts {
		opt(&entry)
	}

	raw, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("cache encode %s: %w", entry.Key, err)
	}

	if err := c.store.Set(ctx, map[string]json.RawMessage{entry.Key: raw}); err != nil {
		return fmt.Errorf("cache write %s: %w", entry.Key, err)
	}

	c.logger.Debug("Cache entry stored",
		zap.String("key", entry.Key),
		zap.String("variant", string(entry.Variant)),
		zap.Int("size_bytes", len(raw)),
	)
	return nil
}

// Remove deletes the entry for ref, if any.
func (c *Cache) Remove(ctx context.Context, ref string) error {
	key := KeyFor(ref)
	if err := c.store.Remove(ctx, key); err != nil {
		return fmt.Errorf("cache remove %s: %w", key, err)
	}
	return nil
}

// InvalidateOlderThan deletes every entry created strictly before
// now - maxAge and returns how many were removed. An entry exactly maxAge
// old is kept. Undecodable entries are removed as well.
//
// Deletion is conditional on the value read by the scan, so an entry
// rewritten while the sweep runs is kept and not counted.
func (c *Cache) InvalidateOlderThan(ctx context.Context, maxAge time.Duration) (int, error) {
	if maxAge <= 0 {
		maxAge = DefaultMaxAge
	}

	all, err := c.store.GetAll(ctx)
	if err != nil {
		return 0, fmt.Errorf("cache scan: %w", err)
	}

	cutoff := c.now().Add(-maxAge)
	expired := make(map[string]json.RawMessage)
	for key, raw := range all {
		if !IsCacheKey(key) {
			continue
		}
		var meta entryMeta
		if err := json.Unmarshal(raw, &meta); err != nil || meta.CreatedAt.Before(cutoff) {
			expired[key] = raw
		}
	}

	if len(expired) == 0 {
		return 0, nil
	}
	removed, err := c.store.RemoveIfUnchanged(ctx, expired)
	if err != nil {
		return 0, fmt.Errorf("cache expire: %w", err)
	}

	c.logger.Info("Expired cache entries removed",
		zap.Int("removed", removed),
		zap.Int("rewritten", len(expired)-removed),
		zap.Duration("max_age", maxAge),
	)
	return removed, nil
}

// ClearAll deletes every cache entry and returns how many were removed.
// Keys that do not belong to the cache are left alone.
func (c *Cache) ClearAll(ctx context.Context) (int, error) {
	all, err := c.store.GetAll(ctx)
	if err != nil {
		return 0, fmt.Errorf("cache scan: %w", err)
	}

	keys := make([]string, 0, len(all))
	for key := range all {
		if IsCacheKey(key) {
			keys = append(keys, key)
		}
	}
	if len(keys) == 0 {
		return 0, nil
	}

	if err := c.store.Remove(ctx, keys...); err != nil {
		return 0, fmt.Errorf("cache clear: %w", err)
	}

	c.logger.Info("Cache cleared", zap.Int("removed", len(keys)))
	return len(keys), nil
}

// EntryStats describes one entry in a Stats report.
type EntryStats struct {
	Key       string        `json:"key"`
	SourceRef string        `json:"source_ref"`
	Variant   Variant       `json:"variant"`
	Age       time.Duration `json:"-"`
	AgeMS     int64         `json:"age_ms"`
	SizeBytes int           `json:"size_bytes"`
}

// Stats summarizes the cache contents.
type Stats struct {
	Count                   int          `json:"count"`
	EstimatedTotalSizeBytes int          `json:"estimated_total_size_bytes"`
	Entries                 []EntryStats `json:"entries"`
}

// Stats reports every decodable entry, oldest first. Sizes are the length
// of the stored encoding.
func (c *Cache) Stats(ctx context.Context) (Stats, error) {
	all, err := c.store.GetAll(ctx)
	if err != nil {
		return Stats{}, fmt.Errorf("cache scan: %w", err)
	}

	now := c.now()
	stats := Stats{Entries: make([]EntryStats, 0, len(all))}
	for key, raw := range all {
		if !IsCacheKey(key) {
			continue
		}
		var meta entryMeta
		if err := json.Unmarshal(raw, &meta); err != nil {
			continue
		}
		age := now.Sub(meta.CreatedAt)
		stats.Entries = append(stats.Entries, EntryStats{
			Key:       key,
			SourceRef: meta.SourceRef,
			Variant:   meta.Variant,
			Age:       age,
			AgeMS:     age.Milliseconds(),
			SizeBytes: len(raw),
		})
		stats.EstimatedTotalSizeBytes += len(raw)
	}
	stats.Count = len(stats.Entries)

	sort.Slice(stats.Entries, func(i, j int) bool {
		return stats.Entries[i].Age > stats.Entries[j].Age
	})
	return stats, nil
}

// entryMeta decodes everything but the payload, which is the expensive part.
type entryMeta struct {
	SourceRef string    `json:"source_ref"`
	Variant   Variant   `json:"variant"`
	CreatedAt time.Time `json:"created_at"`
}

// decodeEntry decodes and validates a stored entry.
func decodeEntry(raw json.RawMessage) (Entry, error) {
	var entry Entry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return Entry{}, fmt.Errorf("decode: %w", err)
	}
	if entry.CreatedAt.IsZero() {
		return Entry{}, fmt.Errorf("decode: missing created_at")
	}
	if entry.Variant != VariantRaw && entry.Variant != VariantExtracted {
		return Entry{}, fmt.Errorf("decode: unknown variant %q", entry.Variant)
	}
	if err := imagedata.Validate(entry.Payload); err != nil {
		return Entry{}, fmt.Errorf("invalid payload: %w", err)
	}
	return entry, nil
}
