package imagecache

import (
	"net/url"
	"strings"
	"time"

	"tryon_backend/core"
	"tryon_backend/imagedata"
)

// KeyPrefix marks cache entries in a store that may hold other data.
const KeyPrefix = "img_"

// Variant records which stage produced a cached payload.
type Variant string

const (
	// VariantRaw is the image as fetched. A raw entry means extraction has
	// not succeeded yet for this reference.
	VariantRaw Variant = "raw"

	// VariantExtracted is the cleaned product image.
	VariantExtracted Variant = "extracted"
)

// Entry is one cached image.
type Entry struct {
	Key       string            `json:"key"`
	SourceRef string            `json:"source_ref"`
	Payload   imagedata.Payload `json:"payload"`
	Variant   Variant           `json:"variant"`
	CreatedAt time.Time         `json:"created_at"`
}

// Age returns how old the entry is at now.
func (e Entry) Age(now time.Time) time.Duration {
	return now.Sub(e.CreatedAt)
}

// KeyFor derives the cache key for an image reference: KeyPrefix followed
// by the SHA-256 hex digest of the normalized reference.
//
// The key is a function of the reference, not of the image content, so two
// URLs serving identical bytes get separate entries.
//
// Example:
//
//	KeyFor("HTTPS://Shop.Example/a.png#zoom") == KeyFor("https://shop.example/a.png")
func KeyFor(ref string) string {
	return KeyPrefix + core.ComputeSHA256FromString(NormalizeRef(ref))
}

// NormalizeRef trims whitespace, lowercases the scheme and host of URLs and
// drops any fragment. Path and query are case-sensitive and kept as is.
// Data URLs are only trimmed.
func NormalizeRef(ref string) string {
	ref = strings.TrimSpace(ref)
	if ref == "" || imagedata.IsDataURL(ref) {
		return ref
	}

	u, err := url.Parse(ref)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return ref
	}
	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""
	u.RawFragment = ""
	return u.String()
}

// IsCacheKey reports whether key was produced by KeyFor.
func IsCacheKey(key string) bool {
	return strings.HasPrefix(key, KeyPrefix)
}
