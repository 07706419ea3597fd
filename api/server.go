// Package api serves the message router over HTTP.
//
// Routes:
//   - POST /api/messages dispatches one router.Request and answers with its
//     router.Response
//   - GET /ws streams outfit progress events
//   - GET /health reports liveness without authentication
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"tryon_backend/core"
	"tryon_backend/logging"
	"tryon_backend/outfit"
	"tryon_backend/router"

	"go.uber.org/zap"
)

// Config configures a Server.
type Config struct {
	Addr            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
	PasswordHash    string  // bcrypt hash; empty disables auth
	RateLimit       float64 // requests per second per client; 0 disables
	MaxBodyBytes    int64
	LogSkipPaths    []string
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Addr:            "127.0.0.1:8080",
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    10*time.Minute + 30*time.Second,
		IdleTimeout:     120 * time.Second,
		ShutdownTimeout: 30 * time.Second,
		MaxBodyBytes:    64 << 20,
		LogSkipPaths:    []string{"/health"},
	}
}

// ConfigFromCore derives a server Config from application config. The write
// timeout leaves room for the slowest dispatched message.
func ConfigFromCore(cfg *core.Config) Config {
	c := DefaultConfig()
	c.Addr = cfg.ListenAddr()
	if cfg.RequestTimeout > 0 {
		c.WriteTimeout = cfg.RequestTimeout + 30*time.Second
	}
	c.PasswordHash = cfg.APIPasswordHash
	c.RateLimit = cfg.APIRateLimit
	return c
}

// Server is the HTTP front end.
type Server struct {
	cfg         Config
	httpServer  *http.Server
	router      *router.Router
	broadcaster *Broadcaster
	limiter     *clientLimiter
	logger      *logging.Logger
}

// NewServer wires routes and middleware. broadcaster may be nil, in which
// case /ws is not served.
func NewServer(cfg Config, r *router.Router, broadcaster *Broadcaster, logger *logging.Logger) *Server {
	if logger == nil {
		logger = logging.NewNop()
	}
	def := DefaultConfig()
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = def.MaxBodyBytes
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = def.ShutdownTimeout
	}

	s := &Server{
		cfg:         cfg,
		router:      r,
		broadcaster: broadcaster,
		logger:      logger.Named("api"),
	}
	if cfg.RateLimit > 0 {
		s.limiter = newClientLimiter(cfg.RateLimit)
	}

	s.httpServer = &http.Server{
		Addr:         cfg.Addr,
		Handler:      s.routes(),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
	return s
}

func (s *Server) routes() http.Handler {
	protected := http.NewServeMux()
	protected.HandleFunc("POST /api/messages", s.handleMessage)
	if s.broadcaster != nil {
		protected.Handle("GET /ws", s.broadcaster)
	}

	var guarded http.Handler = requirePassword(s.cfg.PasswordHash, s.logger, protected)
	if s.limiter != nil {
		guarded = s.limiter.middleware(guarded)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.Handle("/", guarded)

	return logRequests(s.logger, s.cfg.LogSkipPaths, mux)
}

// Handler returns the full handler chain.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start serves until the listener fails or Shutdown is called. The
// broadcaster and the rate limiter cleanup run until ctx is done.
func (s *Server) Start(ctx context.Context) error {
	if s.broadcaster != nil {
		go s.broadcaster.Run(ctx)
	}
	if s.limiter != nil {
		go s.limiter.run(ctx, time.Minute)
	}

	s.logger.Info("HTTP server listening",
		zap.String("addr", s.cfg.Addr),
		zap.Bool("auth", s.cfg.PasswordHash != ""),
		zap.Float64("rate_limit", s.cfg.RateLimit),
	)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// Shutdown stops accepting connections and drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.ShutdownTimeout)
		defer cancel()
	}
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleMessage(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxBodyBytes)

	var req router.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Type == "" {
		writeError(w, http.StatusBadRequest, "missing message type")
		return
	}

	resp := s.router.Dispatch(r.Context(), req)
	writeJSON(w, statusFor(resp), resp)
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	Clients int    `json:"clients"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{Status: "ok", Version: core.GetVersion()}
	if s.broadcaster != nil {
		resp.Clients = s.broadcaster.ClientCount()
	}
	writeJSON(w, http.StatusOK, resp)
}

// statusFor maps a dispatch outcome to an HTTP status.
func statusFor(resp router.Response) int {
	if resp.OK {
		return http.StatusOK
	}
	err := resp.Err()
	var compErr *outfit.CompositionError
	var extErr *outfit.ExtractionError
	switch {
	case errors.Is(err, router.ErrUnknownType), errors.Is(err, router.ErrBadRequest):
		return http.StatusBadRequest
	case errors.Is(err, router.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, router.ErrShuttingDown):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.Canceled):
		// client went away; checked before pipeline errors that wrap it
		return 499
	case errors.As(err, &compErr), errors.As(err, &extErr):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type errorBody struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorBody{Error: msg})
}
