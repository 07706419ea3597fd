// Package router dispatches typed request messages to handlers.
//
// A message is a JSON envelope {"type": ..., "data": ...}. Each type maps to
// one HandlerFunc in the router's table; Dispatch bounds every handler with
// a timeout and always answers with a Response.
package router

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"tryon_backend/logging"

	"go.uber.org/zap"
)

// Dispatch errors
var (
	ErrUnknownType  = errors.New("unknown message type")
	ErrTimeout      = errors.New("message handling timed out")
	ErrBadRequest   = errors.New("invalid message data")
	ErrShuttingDown = errors.New("server is shutting down")
)

// DefaultTimeout bounds a dispatch when none is configured.
const DefaultTimeout = 10 * time.Minute

// Request is an incoming message.
type Request struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Response answers one Request. Data may be set on failure when the handler
// returned partial information such as a correlation ID.
type Response struct {
	Type   string        `json:"type"`
	OK     bool          `json:"ok"`
	Data   any           `json:"data,omitempty"`
	Error  string        `json:"error,omitempty"`
	Detail *ErrorDetail  `json:"detail,omitempty"`
	Took   time.Duration `json:"-"`
	err    error
}

// Err returns the error behind a failed response.
func (r Response) Err() error {
	return r.err
}

// ErrorDetail describes where an outfit request failed.
type ErrorDetail struct {
	Step      string `json:"step,omitempty"`
	ItemIndex *int   `json:"itemIndex,omitempty"`
	ItemName  string `json:"itemName,omitempty"`
}

// HandlerFunc handles the data of one message type.
type HandlerFunc func(ctx context.Context, data json.RawMessage) (any, error)

// Tracker admits operations while the process is running.
// *shutdown.OperationTracker implements it.
type Tracker interface {
	Start() bool
	Done()
}

// DetailFunc extracts failure details from a handler error.
type DetailFunc func(err error) *ErrorDetail

// Router maps message types to handlers.
//
// Thread Safety: Handle may be called concurrently with Dispatch.
type Router struct {
	mu       sync.RWMutex
	handlers map[string]HandlerFunc
	timeout  time.Duration
	tracker  Tracker
	detail   DetailFunc
	logger   *logging.Logger
}

// Option configures a Router.
type Option func(*Router)

// WithTimeout sets the per-dispatch timeout.
func WithTimeout(d time.Duration) Option {
	return func(r *Router) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// WithTracker rejects messages once the tracker is closed and lets shutdown
// wait for in-flight handlers.
func WithTracker(t Tracker) Option {
	return func(r *Router) {
		r.tracker = t
	}
}

// WithErrorDetail attaches structured failure details to error responses.
func WithErrorDetail(fn DetailFunc) Option {
	return func(r *Router) {
		r.detail = fn
	}
}

// New creates an empty Router.
func New(logger *logging.Logger, opts ...Option) *Router {
	if logger == nil {
		logger = logging.NewNop()
	}
	r := &Router{
		handlers: make(map[string]HandlerFunc),
		timeout:  DefaultTimeout,
		logger:   logger.Named("router"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Handle registers h for msgType, replacing any previous handler.
func (r *Router) Handle(msgType string, h HandlerFunc) {
	r.mu.Lock()
	r.handlers[msgType] = h
	r.mu.Unlock()
}

// Types returns the registered message types in sorted order.
func (r *Router) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	types := make([]string, 0, len(r.handlers))
	for t := range r.handlers {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// Timeout returns the per-dispatch timeout.
func (r *Router) Timeout() time.Duration {
	return r.timeout
}

type outcome struct {
	data any
	err  error
}

// Dispatch runs the handler for req. When the timeout fires first the
// handler's context is cancelled and its eventual result is discarded.
func (r *Router) Dispatch(ctx context.Context, req Request) Response {
	start := time.Now()
	log := r.logger.With(zap.String("type", req.Type))

	r.mu.RLock()
	h, ok := r.handlers[req.Type]
	r.mu.RUnlock()
	if !ok {
		return r.failure(req, nil, fmt.Errorf("%w: %q", ErrUnknownType, req.Type), start)
	}

	if r.tracker != nil {
		if !r.tracker.Start() {
			return r.failure(req, nil, ErrShuttingDown, start)
		}
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	done := make(chan outcome, 1)
	go func() {
		if r.tracker != nil {
			defer r.tracker.Done()
		}
		defer func() {
			if p := recover(); p != nil {
				log.Error("Handler panicked", zap.Any("panic", p))
				done <- outcome{err: fmt.Errorf("handler panicked: %v", p)}
			}
		}()
		data, err := h(ctx, req.Data)
		done <- outcome{data: data, err: err}
	}()

	select {
	case out := <-done:
		if out.err != nil {
			return r.failure(req, out.data, out.err, start)
		}
		took := time.Since(start)
		log.Debug("Message handled", zap.Duration("duration", took))
		return Response{Type: req.Type, OK: true, Data: out.data, Took: took}

	case <-ctx.Done():
		err := ErrTimeout
		if !errors.Is(ctx.Err(), context.DeadlineExceeded) {
			err = ctx.Err()
		}
		log.Warn("Message handling abandoned",
			zap.Duration("timeout", r.timeout),
			zap.Error(ctx.Err()),
		)
		return r.failure(req, nil, err, start)
	}
}

func (r *Router) failure(req Request, data any, err error, start time.Time) Response {
	resp := Response{
		Type:  req.Type,
		Data:  data,
		Error: err.Error(),
		Took:  time.Since(start),
		err:   err,
	}
	if r.detail != nil {
		resp.Detail = r.detail(err)
	}
	r.logger.Info("Message failed",
		zap.String("type", req.Type),
		zap.Duration("duration", resp.Took),
		zap.Error(err),
	)
	return resp
}

// Decode unmarshals data into a value of type T, reporting ErrBadRequest on
// malformed input.
func Decode[T any](data json.RawMessage) (T, error) {
	var v T
	if len(data) == 0 {
		return v, nil
	}
	if err := json.Unmarshal(data, &v); err != nil {
		return v, fmt.Errorf("%w: %v", ErrBadRequest, err)
	}
	return v, nil
}
