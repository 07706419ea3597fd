package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"tryon_backend/core"
	"tryon_backend/outfit"
	"tryon_backend/router"

	"golang.org/x/crypto/bcrypt"
)

func newTestRouter() *router.Router {
	r := router.New(nil, router.WithTimeout(200*time.Millisecond))
	r.Handle("echo", func(ctx context.Context, data json.RawMessage) (any, error) {
		return map[string]string{"echo": string(data)}, nil
	})
	r.Handle("compose", func(ctx context.Context, data json.RawMessage) (any, error) {
		return nil, &outfit.CompositionError{Index: 1, Step: outfit.StepCompose, Err: errors.New("service unavailable")}
	})
	r.Handle("abandoned", func(ctx context.Context, data json.RawMessage) (any, error) {
		return nil, &outfit.CompositionError{Index: 0, Step: outfit.StepCompose, Err: context.Canceled}
	})
	r.Handle("slow", func(ctx context.Context, data json.RawMessage) (any, error) {
		time.Sleep(2 * time.Second)
		return "late", nil
	})
	r.Handle("broken", func(ctx context.Context, data json.RawMessage) (any, error) {
		return nil, errors.New("disk full")
	})
	r.Handle("strict", func(ctx context.Context, data json.RawMessage) (any, error) {
		_, err := router.Decode[struct{ N int }](data)
		return nil, err
	})
	return r
}

func postMessage(t *testing.T, h http.Handler, body string, header http.Header) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/messages", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range header {
		req.Header[k] = v
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHandleMessage_Success(t *testing.T) {
	s := NewServer(DefaultConfig(), newTestRouter(), nil, nil)
	rec := postMessage(t, s.Handler(), `{"type":"echo","data":{"a":1}}`, nil)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200; body %s", rec.Code, rec.Body)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}
	var resp struct {
		Type string            `json:"type"`
		OK   bool              `json:"ok"`
		Data map[string]string `json:"data"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !resp.OK || resp.Type != "echo" || resp.Data["echo"] != `{"a":1}` {
		t.Errorf("response = %+v", resp)
	}
}

func TestHandleMessage_StatusMapping(t *testing.T) {
	s := NewServer(DefaultConfig(), newTestRouter(), nil, nil)
	tests := []struct {
		name string
		body string
		want int
	}{
		{"unknown type", `{"type":"nope"}`, http.StatusBadRequest},
		{"bad data", `{"type":"strict","data":{"N":"x"}}`, http.StatusBadRequest},
		{"composition failure", `{"type":"compose"}`, http.StatusBadGateway},
		{"abandoned by client", `{"type":"abandoned"}`, 499},
		{"timeout", `{"type":"slow"}`, http.StatusGatewayTimeout},
		{"internal", `{"type":"broken"}`, http.StatusInternalServerError},
		{"malformed json", `{"type":`, http.StatusBadRequest},
		{"missing type", `{"data":{}}`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := postMessage(t, s.Handler(), tt.body, nil)
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d; body %s", rec.Code, tt.want, rec.Body)
			}
		})
	}
}

func TestHandleMessage_ShuttingDown(t *testing.T) {
	tr := &closedTracker{}
	r := router.New(nil, router.WithTracker(tr))
	r.Handle("echo", func(ctx context.Context, data json.RawMessage) (any, error) { return nil, nil })
	s := NewServer(DefaultConfig(), r, nil, nil)

	rec := postMessage(t, s.Handler(), `{"type":"echo"}`, nil)
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}
}

type closedTracker struct{}

func (closedTracker) Start() bool { return false }
func (closedTracker) Done()       {}

func TestHandleMessage_BodyTooLarge(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxBodyBytes = 16
	s := NewServer(cfg, newTestRouter(), nil, nil)

	rec := postMessage(t, s.Handler(), `{"type":"echo","data":"`+strings.Repeat("x", 64)+`"}`, nil)
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("status = %d, want 413", rec.Code)
	}
}

func TestHandleMessage_MethodNotAllowed(t *testing.T) {
	s := NewServer(DefaultConfig(), newTestRouter(), nil, nil)
	req := httptest.NewRequest(http.MethodGet, "/api/messages", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want 405", rec.Code)
	}
}

func TestPasswordAuth(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret"), bcrypt.MinCost)
	if err != nil {
		t.Fatal(err)
	}
	cfg := DefaultConfig()
	cfg.PasswordHash = string(hash)
	s := NewServer(cfg, newTestRouter(), nil, nil)
	h := s.Handler()

	if rec := postMessage(t, h, `{"type":"echo"}`, nil); rec.Code != http.StatusUnauthorized {
		t.Errorf("no password: status = %d, want 401", rec.Code)
	}
	wrong := http.Header{"Authorization": {"Bearer nope"}}
	if rec := postMessage(t, h, `{"type":"echo"}`, wrong); rec.Code != http.StatusUnauthorized {
		t.Errorf("wrong password: status = %d, want 401", rec.Code)
	}
	right := http.Header{"Authorization": {"Bearer s3cret"}}
	if rec := postMessage(t, h, `{"type":"echo"}`, right); rec.Code != http.StatusOK {
		t.Errorf("right password: status = %d, want 200", rec.Code)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/messages?token=s3cret", strings.NewReader(`{"type":"echo"}`))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("query token: status = %d, want 200", rec.Code)
	}

	// health stays open
	req = httptest.NewRequest(http.MethodGet, "/health", nil)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("health: status = %d, want 200", rec.Code)
	}
}

func TestRateLimit(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RateLimit = 1 // burst 2
	s := NewServer(cfg, newTestRouter(), nil, nil)
	h := s.Handler()

	for i := 0; i < 2; i++ {
		if rec := postMessage(t, h, `{"type":"echo"}`, nil); rec.Code != http.StatusOK {
			t.Fatalf("request %d: status = %d, want 200", i+1, rec.Code)
		}
	}
	rec := postMessage(t, h, `{"type":"echo"}`, nil)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("third request: status = %d, want 429", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Error("429 without Retry-After")
	}

	other := http.Header{"X-Forwarded-For": {"10.0.0.9"}}
	if rec := postMessage(t, h, `{"type":"echo"}`, other); rec.Code != http.StatusOK {
		t.Errorf("other client: status = %d, want 200", rec.Code)
	}
}

func TestHealth(t *testing.T) {
	b := NewBroadcaster(DefaultBroadcasterConfig(), nil)
	s := NewServer(DefaultConfig(), newTestRouter(), b, nil)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	var got HealthResponse
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Status != "ok" || got.Version == "" || got.Clients != 0 {
		t.Errorf("health = %+v", got)
	}
}

func TestConfigFromCore(t *testing.T) {
	if def := DefaultConfig(); def.WriteTimeout <= router.DefaultTimeout {
		t.Errorf("default WriteTimeout %v does not cover router.DefaultTimeout", def.WriteTimeout)
	}

	cfg := ConfigFromCore(&core.Config{
		Host:            "0.0.0.0",
		Port:            9090,
		RequestTimeout:  2 * time.Minute,
		APIPasswordHash: "$2a$hash",
		APIRateLimit:    5,
	})
	if cfg.Addr != "0.0.0.0:9090" {
		t.Errorf("Addr = %q", cfg.Addr)
	}
	if cfg.WriteTimeout != 2*time.Minute+30*time.Second {
		t.Errorf("WriteTimeout = %v", cfg.WriteTimeout)
	}
	if cfg.PasswordHash != "$2a$hash" || cfg.RateLimit != 5 {
		t.Errorf("auth/limit not carried: %+v", cfg)
	}
}

func TestServer_StartShutdown(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Addr = "127.0.0.1:0"
	s := NewServer(cfg, newTestRouter(), NewBroadcaster(DefaultBroadcasterConfig(), nil), nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	errc := make(chan error, 1)
	go func() { errc <- s.Start(ctx) }()

	time.Sleep(50 * time.Millisecond)
	shutdownCtx, stop := context.WithTimeout(context.Background(), time.Second)
	defer stop()
	if err := s.Shutdown(shutdownCtx); err != nil {
		t.Fatalf("Shutdown() error: %v", err)
	}
	select {
	case err := <-errc:
		if err != nil {
			t.Errorf("Start() = %v, want nil after Shutdown", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Start did not return after Shutdown")
	}
}
