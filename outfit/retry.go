package outfit

import (
	"context"
	"errors"
	"net/http"
	"time"

	"tryon_backend/imagefetch"
	"tryon_backend/synthesis"
)

// RetryPolicy bounds retries of a single remote call. The zero value makes
// one attempt.
//
// Only *imagefetch.FetchError and *synthesis.ServiceError are retried, and
// of those, client errors other than 408 and 429 are not.
type RetryPolicy struct {
	// MaxAttempts is the total number of attempts; values below 1 mean 1.
	MaxAttempts int
	// Delay is the pause between attempts.
	Delay time.Duration
}

// NoRetry makes exactly one attempt.
var NoRetry = RetryPolicy{MaxAttempts: 1}

// attempts returns the effective attempt count.
func (p RetryPolicy) attempts() int {
	if p.MaxAttempts < 1 {
		return 1
	}
	return p.MaxAttempts
}

// Retryable reports whether err is worth another attempt.
func Retryable(err error) bool {
	var fetchErr *imagefetch.FetchError
	if errors.As(err, &fetchErr) {
		return retryableStatus(fetchErr.StatusCode)
	}
	var svcErr *synthesis.ServiceError
	if errors.As(err, &svcErr) {
		return retryableStatus(svcErr.StatusCode)
	}
	return false
}

// retryableStatus treats transport failures (status 0), 408, 429 and 5xx
// as transient.
func retryableStatus(status int) bool {
	switch {
	case status == 0:
		return true
	case status == http.StatusRequestTimeout, status == http.StatusTooManyRequests:
		return true
	case status >= 500:
		return true
	default:
		return false
	}
}

// withRetry runs fn until it succeeds, returns a non-retryable error, or
// the attempts run out. The wait between attempts is cut short when ctx is
// done; the last error is returned in that case.
func withRetry[T any](ctx context.Context, p RetryPolicy, fn func() (T, error)) (T, error) {
	var (
		result T
		err    error
	)
	for attempt := 1; attempt <= p.attempts(); attempt++ {
		result, err = fn()
		if err == nil || !Retryable(err) || attempt == p.attempts() {
			return result, err
		}

		if p.Delay > 0 {
			timer := time.NewTimer(p.Delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return result, err
			case <-timer.C:
			}
		} else if ctx.Err() != nil {
			return result, err
		}
	}
	return result, err
}
