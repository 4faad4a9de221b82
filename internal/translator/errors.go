package translator

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

var (
	// ErrRateLimited is returned when the upstream quota was exceeded (HTTP 429).
	ErrRateLimited = errors.New("rate limited")
	// ErrRequestFailed covers transport errors, timeouts and non-2xx answers.
	ErrRequestFailed = errors.New("request failed")
	// ErrMalformedResponse is returned when the answer has an unexpected shape.
	ErrMalformedResponse = errors.New("malformed response")
)

// FailureKind is the classification of a translation error.
type FailureKind int

const (
	FailureNone FailureKind = iota
	FailureRateLimited
	FailureRequest
	FailureMalformed
)

func (k FailureKind) String() string {
	switch k {
	case FailureNone:
		return "ok"
	case FailureRateLimited:
		return "rate_limited"
	case FailureRequest:
		return "request_failed"
	case FailureMalformed:
		return "malformed_response"
	default:
		return "unknown"
	}
}

// Classify maps err onto one of the three failure kinds. Errors that wrap
// none of the sentinels, including context deadlines, count as request
// failures.
func Classify(err error) FailureKind {
	switch {
	case err == nil:
		return FailureNone
	case errors.Is(err, ErrRateLimited):
		return FailureRateLimited
	case errors.Is(err, ErrMalformedResponse):
		return FailureMalformed
	default:
		return FailureRequest
	}
}

// statusError converts a non-2xx HTTP response into a classified error.
func statusError(service string, resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
	msg := strings.TrimSpace(string(body))

	if resp.StatusCode == http.StatusTooManyRequests {
		return fmt.Errorf("%s: status %d: %w", service, resp.StatusCode, ErrRateLimited)
	}
	if msg == "" {
		return fmt.Errorf("%s: status %d: %w", service, resp.StatusCode, ErrRequestFailed)
	}
	return fmt.Errorf("%s: status %d: %s: %w", service, resp.StatusCode, msg, ErrRequestFailed)
}
