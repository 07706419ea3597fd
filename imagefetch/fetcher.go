// Package imagefetch turns an image reference (remote URL or data URL) into a
// self-contained imagedata.Payload.
//
// fetcher.go implements the Fetcher, which composes:
//   - core.Config: for HTTP/TLS configuration and limits
//   - imagedata: for format resolution and data-URL decoding
//
// The fetcher never touches the cache; callers decide what to store.
package imagefetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"tryon_backend/core"
	"tryon_backend/imagedata"
	"tryon_backend/logging"

	"go.uber.org/zap"
)

// Sentinel causes carried inside *FetchError.
var (
	ErrEmptyRef          = errors.New("image reference is empty")
	ErrUnsupportedScheme = errors.New("unsupported image reference scheme")
	ErrTooLarge          = errors.New("image exceeds size limit")
	ErrEmptyBody         = errors.New("image response body is empty")
)

// FetchError reports a failed fetch. StatusCode is zero for transport
// failures, timeouts and local decoding errors.
type FetchError struct {
	Ref        string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	ref := logging.TruncateDataURLs(e.Ref)
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s: HTTP %d", ref, e.StatusCode)
	}
	return fmt.Sprintf("fetch %s: %v", ref, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// Config holds configuration for the Fetcher.
type Config struct {
	// HTTPClient performs downloads (optional).
	// If nil, a client without TLS overrides is created.
	HTTPClient *http.Client

	// CallTimeout bounds a single fetch, including reading the body.
	// Default: 60 seconds
	CallTimeout time.Duration

	// MaxImageBytes bounds the response body.
	// Default: 20 MB
	MaxImageBytes int64

	// UserAgent is sent with every request. Some CDNs refuse Go's default.
	UserAgent string
}

// DefaultConfig returns sensible defaults for fetching product images.
func DefaultConfig() Config {
	return Config{
		CallTimeout:   60 * time.Second,
		MaxImageBytes: 20 * core.BytesPerMB,
		UserAgent:     "tryon-backend/1.0",
	}
}

// ConfigFromCore derives fetcher settings from the application config.
func ConfigFromCore(cfg *core.Config) Config {
	out := DefaultConfig()
	out.HTTPClient = core.GetHTTPClient(cfg, 0) // the per-call context carries the deadline
	if cfg.CallTimeout > 0 {
		out.CallTimeout = cfg.CallTimeout
	}
	if cfg.MaxImageBytes > 0 {
		out.MaxImageBytes = cfg.MaxImageBytes
	}
	return out
}

// Fetcher downloads images and tags them with a format.
//
// Format precedence: a Content-Type naming a known image type, then the
// reference's path suffix, then DefaultFormat. The resolved tag replaces
// whatever the bytes were encoded as; nothing is re-encoded.
//
// Thread Safety: Fetcher is safe for concurrent use.
type Fetcher struct {
	client    *http.Client
	timeout   time.Duration
	maxBytes  int64
	userAgent string
	logger    *logging.Logger
}

// New creates a Fetcher. Zero-valued fields in cfg fall back to DefaultConfig.
//
// Example:
//
//	fetcher := imagefetch.New(imagefetch.ConfigFromCore(cfg), logger)
//	payload, err := fetcher.Fetch(ctx, "https://shop.example/jacket.webp")
func New(cfg Config, logger *logging.Logger) *Fetcher {
	def := DefaultConfig()
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{}
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = def.CallTimeout
	}
	if cfg.MaxImageBytes <= 0 {
		cfg.MaxImageBytes = def.MaxImageBytes
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = def.UserAgent
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	return &Fetcher{
		client:    cfg.HTTPClient,
		timeout:   cfg.CallTimeout,
		maxBytes:  cfg.MaxImageBytes,
		userAgent: cfg.UserAgent,
		logger:    logger.Named("fetcher"),
	}
}

// Fetch resolves ref into a payload.
//
// data: references are decoded locally. http(s) references are downloaded
// with a GET bounded by the call timeout; any non-2xx status, transport
// error or timeout is returned as *FetchError.
func (f *Fetcher) Fetch(ctx context.Context, ref string) (imagedata.Payload, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return imagedata.Payload{}, &FetchError{Ref: ref, Err: ErrEmptyRef}
	}

	if imagedata.IsDataURL(ref) {
		return f.decodeInline(ref)
	}

	u, err := url.Parse(ref)
	if err != nil {
		return imagedata.Payload{}, &FetchError{Ref: ref, Err: err}
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return imagedata.Payload{}, &FetchError{Ref: ref, Err: fmt.Errorf("%w: %q", ErrUnsupportedScheme, u.Scheme)}
	}

	return f.download(ctx, ref)
}

// decodeInline handles data: references. The embedded MIME type counts as
// the declared Content-Type.
func (f *Fetcher) decodeInline(ref string) (imagedata.Payload, error) {
	data, embedded, err := imagedata.ParseDataURL(ref)
	if err != nil {
		return imagedata.Payload{}, &FetchError{Ref: ref, Err: err}
	}
	if int64(len(data)) > f.maxBytes {
		return imagedata.Payload{}, &FetchError{Ref: ref, Err: ErrTooLarge}
	}

	format := embedded
	if format == "" {
		format = imagedata.DefaultFormat
	}
	return imagedata.Payload{Data: data, Format: format, SourceRef: ref}, nil
}

// download performs the HTTP GET.
func (f *Fetcher) download(ctx context.Context, ref string) (imagedata.Payload, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ref, nil)
	if err != nil {
		return imagedata.Payload{}, &FetchError{Ref: ref, Err: err}
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "image/*")

	start := time.Now()
	resp, err := f.client.Do(req)
	if err != nil {
		f.logger.Warn("Image download failed",
			zap.String("ref", ref),
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err),
		)
		return imagedata.Payload{}, &FetchError{Ref: ref, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		// Drain a little so the connection can be reused
		_, _ = io.CopyN(io.Discard, resp.Body, 4096)
		f.logger.Warn("Image download rejected",
			zap.String("ref", ref),
			zap.Int("status", resp.StatusCode),
		)
		return imagedata.Payload{}, &FetchError{
			Ref:        ref,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("unexpected status %s", resp.Status),
		}
	}

	if resp.ContentLength > f.maxBytes {
		return imagedata.Payload{}, &FetchError{Ref: ref, Err: ErrTooLarge}
	}

	// Read one byte past the limit to detect oversized bodies
	data, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes+1))
	if err != nil {
		return imagedata.Payload{}, &FetchError{Ref: ref, Err: fmt.Errorf("read body: %w", err)}
	}
	if int64(len(data)) > f.maxBytes {
		return imagedata.Payload{}, &FetchError{Ref: ref, Err: ErrTooLarge}
	}
	if len(data) == 0 {
		return imagedata.Payload{}, &FetchError{Ref: ref, Err: ErrEmptyBody}
	}

	contentType := resp.Header.Get("Content-Type")
	format := imagedata.ResolveFormat(contentType, ref)

	f.logger.Debug("Image downloaded",
		zap.String("ref", ref),
		zap.String("content_type", contentType),
		zap.String("format", format.String()),
		zap.String("size", core.FormatBytes(int64(len(data)))),
		zap.Duration("elapsed", time.Since(start)),
	)

	return imagedata.Payload{Data: data, Format: format, SourceRef: ref}, nil
}
