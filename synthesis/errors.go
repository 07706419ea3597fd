package synthesis

import (
	"fmt"
	"strings"

	"tryon_backend/logging"
)

// maxErrorBody bounds how much of a failed response is kept on ServiceError.
const maxErrorBody = 2048

// ServiceError reports a failed call to the synthesis endpoint.
//
// StatusCode is zero for transport failures and timeouts; Err then holds the
// cause. For non-2xx responses Body holds the (truncated) response body and
// Message the provider's error message when one could be decoded.
type ServiceError struct {
	StatusCode int
	Body       string
	Message    string
	Err        error
}

func (e *ServiceError) Error() string {
	switch {
	case e.StatusCode != 0 && e.Message != "":
		return fmt.Sprintf("synthesis service: HTTP %d: %s", e.StatusCode, e.Message)
	case e.StatusCode != 0:
		return fmt.Sprintf("synthesis service: HTTP %d", e.StatusCode)
	default:
		return fmt.Sprintf("synthesis service: %v", e.Err)
	}
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

// NoImageInResponseError is returned when a successful response carries no
// usable image. Text is the (truncated) textual reply, useful when the model
// refused or answered in prose.
type NoImageInResponseError struct {
	Text string
	Err  error
}

func (e *NoImageInResponseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("synthesis response contains no usable image: %v", e.Err)
	}
	if e.Text != "" {
		return fmt.Sprintf("synthesis response contains no image (model said: %q)", e.Text)
	}
	return "synthesis response contains no image"
}

func (e *NoImageInResponseError) Unwrap() error {
	return e.Err
}

// truncateBody shortens a response body for error reporting.
func truncateBody(body string, max int) string {
	body = strings.TrimSpace(logging.TruncateDataURLs(body))
	if len(body) <= max {
		return body
	}
	return body[:max] + "..."
}
