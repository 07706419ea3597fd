package api

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"tryon_backend/logging"

	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestClientIP(t *testing.T) {
	tests := []struct {
		name   string
		header map[string]string
		remote string
		want   string
	}{
		{"forwarded", map[string]string{"X-Forwarded-For": "203.0.113.7, 10.0.0.1"}, "10.0.0.1:5000", "203.0.113.7"},
		{"real ip", map[string]string{"X-Real-IP": "198.51.100.4"}, "10.0.0.1:5000", "198.51.100.4"},
		{"remote addr", nil, "192.0.2.9:41234", "192.0.2.9"},
		{"no port", nil, "192.0.2.9", "192.0.2.9"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			r.RemoteAddr = tt.remote
			for k, v := range tt.header {
				r.Header.Set(k, v)
			}
			if got := clientIP(r); got != tt.want {
				t.Errorf("clientIP() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestLogRequests(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	logger := logging.FromCore(core, false, "")

	h := logRequests(logger, []string{"/health"}, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/missing":
			http.NotFound(w, r)
		case "/boom":
			w.WriteHeader(http.StatusInternalServerError)
		default:
			_, _ = w.Write([]byte("ok"))
		}
	}))

	for _, path := range []string{"/health", "/ok", "/missing", "/boom"} {
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}

	entries := logs.All()
	if len(entries) != 3 {
		t.Fatalf("logged %d requests, want 3 (health skipped)", len(entries))
	}
	wantLevels := []zapcore.Level{zapcore.InfoLevel, zapcore.WarnLevel, zapcore.ErrorLevel}
	for i, e := range entries {
		if e.Level != wantLevels[i] {
			t.Errorf("entry %d level = %v, want %v", i, e.Level, wantLevels[i])
		}
	}
	if got := entries[0].ContextMap()["bytes"]; got != int64(2) {
		t.Errorf("bytes = %v, want 2", got)
	}
}

func TestStatusRecorder_FirstStatusWins(t *testing.T) {
	rec := &statusRecorder{ResponseWriter: httptest.NewRecorder(), status: http.StatusOK}
	rec.WriteHeader(http.StatusAccepted)
	rec.WriteHeader(http.StatusTeapot)
	if rec.status != http.StatusAccepted {
		t.Errorf("status = %d, want 202", rec.status)
	}
}

func TestClientLimiter_Cleanup(t *testing.T) {
	l := newClientLimiter(1)
	l.get("192.0.2.1")
	l.get("192.0.2.2")

	if n := l.cleanup(time.Now()); n != 0 {
		t.Errorf("cleanup(now) removed %d, want 0", n)
	}
	if n := l.cleanup(time.Now().Add(l.idle + time.Second)); n != 2 {
		t.Errorf("cleanup(later) removed %d, want 2", n)
	}
	if len(l.visitors) != 0 {
		t.Errorf("visitors = %d after cleanup", len(l.visitors))
	}
}

func TestNewClientLimiter_Burst(t *testing.T) {
	tests := []struct {
		rate  float64
		burst int
	}{
		{0.2, 1},
		{1, 2},
		{2.5, 5},
	}
	for _, tt := range tests {
		if got := newClientLimiter(tt.rate).burst; got != tt.burst {
			t.Errorf("burst(%v) = %d, want %d", tt.rate, got, tt.burst)
		}
	}
}
