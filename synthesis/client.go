// Package synthesis is the client for the remote multimodal model that
// performs product extraction and outfit composition.
//
// client.go implements the Client, which composes:
//   - request.go: chat-completions body built from go-openai types
//   - response.go: the image parse chain
//   - a Resolver (the image fetcher) for remote image links in responses
package synthesis

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"tryon_backend/core"
	"tryon_backend/imagedata"
	"tryon_backend/logging"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

// Resolver turns an image reference returned by the model into a payload.
// *imagefetch.Fetcher implements it.
type Resolver interface {
	Fetch(ctx context.Context, ref string) (imagedata.Payload, error)
}

// DefaultTemperature is used when Config.Temperature is nil.
const DefaultTemperature = 0.2

// Config holds configuration for the Client.
type Config struct {
	// APIKey is sent as a bearer token (required)
	APIKey string

	// BaseURL is the API root; requests go to BaseURL + "/chat/completions" (required)
	BaseURL string

	// Model is the model identifier (required)
	Model string

	// Temperature is the default sampling temperature. nil selects
	// DefaultTemperature; a pointer to 0 requests deterministic sampling.
	Temperature *float32

	// Modalities is sent as the top-level "modalities" field when non-empty.
	Modalities []string

	// HTTPClient performs requests (optional)
	HTTPClient *http.Client

	// CallTimeout bounds one Invoke, including resolving a remote result.
	// Default: 60 seconds
	CallTimeout time.Duration

	// MaxResponseBytes bounds the response body. Default: 64 MB
	MaxResponseBytes int64
}

// ConfigFromCore derives client settings from the application config.
func ConfigFromCore(cfg *core.Config) Config {
	temperature := float32(cfg.SynthesisTemperature)
	return Config{
		APIKey:      cfg.SynthesisAPIKey,
		BaseURL:     cfg.SynthesisBaseURL,
		Model:       cfg.SynthesisModel,
		Temperature: &temperature,
		Modalities:  cfg.SynthesisModalities,
		HTTPClient:  core.GetHTTPClient(cfg, 0),
		CallTimeout: cfg.CallTimeout,
	}
}

// Client calls the synthesis endpoint and returns the generated image.
//
// Thread Safety: Client is safe for concurrent use.
type Client struct {
	http        *http.Client
	endpoint    string
	apiKey      string
	model       string
	temperature float32
	modalities  []string
	timeout     time.Duration
	maxBytes    int64
	resolver    Resolver
	logger      *logging.Logger
}

// New creates a Client. resolver is used for responses that link to an
// image instead of inlining it.
//
// Returns an error if the API key, model or base URL is missing or invalid.
func New(cfg Config, resolver Resolver, logger *logging.Logger) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("synthesis: API key is required")
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("synthesis: model is required")
	}
	if err := core.ValidateServerURL(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("synthesis: invalid base URL: %w", err)
	}
	if resolver == nil {
		return nil, fmt.Errorf("synthesis: resolver is required")
	}

	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{}
	}
	temperature := float32(DefaultTemperature)
	if cfg.Temperature != nil {
		if *cfg.Temperature < 0 || *cfg.Temperature > 2 {
			return nil, fmt.Errorf("synthesis: temperature must be between 0 and 2, got %.2f", *cfg.Temperature)
		}
		temperature = *cfg.Temperature
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = 60 * time.Second
	}
	if cfg.MaxResponseBytes <= 0 {
		cfg.MaxResponseBytes = 64 * core.BytesPerMB
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	return &Client{
		http:        cfg.HTTPClient,
		endpoint:    strings.TrimRight(cfg.BaseURL, "/") + "/chat/completions",
		apiKey:      cfg.APIKey,
		model:       cfg.Model,
		temperature: temperature,
		modalities:  cfg.Modalities,
		timeout:     cfg.CallTimeout,
		maxBytes:    cfg.MaxResponseBytes,
		resolver:    resolver,
		logger:      logger.Named("synthesis"),
	}, nil
}

// Model returns the configured model identifier.
func (c *Client) Model() string {
	return c.model
}

// Invoke sends one request and returns the generated image.
//
// Errors:
//   - *ServiceError for transport failures, timeouts and non-2xx responses
//   - *NoImageInResponseError when the response carries no usable image
//   - the resolver's error when the model linked to an image that could not
//     be fetched
func (c *Client) Invoke(ctx context.Context, req Request) (imagedata.Payload, error) {
	if err := req.Validate(); err != nil {
		return imagedata.Payload{}, err
	}

	body, err := buildChatRequest(c.model, c.temperature, c.modalities, req)
	if err != nil {
		return imagedata.Payload{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	raw, err := c.post(ctx, body)
	if err != nil {
		c.logger.Warn("Synthesis call failed",
			zap.Int("attachments", len(req.Attachments)),
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err),
		)
		return imagedata.Payload{}, err
	}

	var resp chatResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return imagedata.Payload{}, &NoImageInResponseError{Err: fmt.Errorf("decode response: %w", err)}
	}

	found, text, ok := findImageReference(resp)
	if !ok {
		c.logger.Warn("Synthesis response has no image",
			zap.String("text", truncateBody(text, 200)),
		)
		return imagedata.Payload{}, &NoImageInResponseError{Text: truncateBody(text, 500)}
	}

	payload, err := c.resolve(ctx, found.ref)
	if err != nil {
		return imagedata.Payload{}, err
	}

	c.logger.Debug("Synthesis call succeeded",
		zap.String("model", c.model),
		zap.Int("attachments", len(req.Attachments)),
		zap.String("image_source", found.source),
		zap.String("format", payload.Format.String()),
		zap.String("size", core.FormatBytes(int64(payload.Size()))),
		zap.Duration("elapsed", time.Since(start)),
	)
	return payload, nil
}

// post sends the body and returns the raw 2xx response.
func (c *Client) post(ctx context.Context, body []byte) ([]byte, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, &ServiceError{Err: fmt.Errorf("create request: %w", err)}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	httpResp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, &ServiceError{Err: err}
	}
	defer httpResp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(httpResp.Body, c.maxBytes))
	if err != nil {
		return nil, &ServiceError{Err: fmt.Errorf("read response: %w", err)}
	}

	if httpResp.StatusCode < 200 || httpResp.StatusCode > 299 {
		return nil, &ServiceError{
			StatusCode: httpResp.StatusCode,
			Body:       truncateBody(string(raw), maxErrorBody),
			Message:    providerMessage(raw),
		}
	}
	return raw, nil
}

// resolve turns a found reference into a payload. Inline images are
// decoded here; links go through the resolver.
func (c *Client) resolve(ctx context.Context, ref string) (imagedata.Payload, error) {
	if !imagedata.IsDataURL(ref) {
		payload, err := c.resolver.Fetch(ctx, ref)
		if err != nil {
			return imagedata.Payload{}, fmt.Errorf("resolve generated image: %w", err)
		}
		return payload, nil
	}

	payload, err := imagedata.FromDataURL(ref, imagedata.DefaultFormat)
	if err != nil {
		return imagedata.Payload{}, &NoImageInResponseError{Err: err}
	}
	if err := imagedata.Validate(payload); err != nil {
		return imagedata.Payload{}, &NoImageInResponseError{Err: err}
	}
	return payload, nil
}

// providerMessage extracts the error message from an OpenAI-style error
// body, or "" when the body has another shape.
func providerMessage(raw []byte) string {
	var errResp openai.ErrorResponse
	if err := json.Unmarshal(raw, &errResp); err != nil || errResp.Error == nil {
		return ""
	}
	return errResp.Error.Message
}
