package vision

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// RequestError is a provider HTTP failure normalized by a ModelClient so the
// gateway can classify it without knowing the backend.
type RequestError struct {
	StatusCode int
	// RetryAfter is the provider-requested wait, zero when absent.
	RetryAfter time.Duration
	Body       string
}

func (e *RequestError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("model request failed with status %d: %s", e.StatusCode, e.Body)
	}
	return fmt.Sprintf("model request failed with status %d", e.StatusCode)
}

// FatalError aborts the whole gateway call: the failure is global (bad
// credentials, bad configuration) and no other model would fare better.
type FatalError struct {
	Model string
	Err   error
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("fatal gateway error on model %s: %v", e.Model, e.Err)
}

func (e *FatalError) Unwrap() error { return e.Err }

// ExhaustedError reports that every ranked model ran out of retries. It
// carries the last observed cause.
type ExhaustedError struct {
	Attempts int
	LastErr  error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("all models exhausted after %d attempts: %v", e.Attempts, e.LastErr)
}

func (e *ExhaustedError) Unwrap() error { return e.LastErr }

// attempt outcomes
type outcome int

const (
	outcomeSuccess outcome = iota
	// outcomeRetry: back off and re-attempt on the same model.
	outcomeRetry
	// outcomeNextModel: this model cannot serve the request (bad payload
	// for it, unknown model id); retrying it won't help.
	outcomeNextModel
	// outcomeAbort: global failure, stop the whole call.
	outcomeAbort
)

func (o outcome) String() string {
	switch o {
	case outcomeSuccess:
		return "success"
	case outcomeRetry:
		return "retryable_failure"
	case outcomeNextModel:
		return "model_failure"
	default:
		return "fatal_failure"
	}
}

// classify maps an attempt error to the gateway state machine transition.
// Connection errors, timeouts, 429, and 5xx are retryable; 400-class payload
// problems skip to the next model; credential failures abort the call.
func classify(err error) outcome {
	var reqErr *RequestError
	if errors.As(err, &reqErr) {
		switch {
		case reqErr.StatusCode == http.StatusTooManyRequests:
			return outcomeRetry
		case reqErr.StatusCode >= 500:
			return outcomeRetry
		case reqErr.StatusCode == http.StatusUnauthorized,
			reqErr.StatusCode == http.StatusForbidden:
			return outcomeAbort
		default:
			// 400, 404, 422 and friends: a retry with the same payload
			// cannot succeed, but another model might.
			return outcomeNextModel
		}
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return outcomeRetry
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return outcomeRetry
	}

	// Unrecognized transport failures are treated as transient.
	return outcomeRetry
}

// retryAfter extracts a provider-requested delay, if the error carries one.
func retryAfter(err error) time.Duration {
	var reqErr *RequestError
	if errors.As(err, &reqErr) {
		return reqErr.RetryAfter
	}
	return 0
}

// ParseRetryAfter converts a Retry-After header value into a wait duration.
// Both forms from RFC 9110 are accepted: delay seconds and an HTTP date.
// Absent, malformed, or already-elapsed values yield zero. Backends use this
// when they populate RequestError.RetryAfter.
func ParseRetryAfter(header string) time.Duration {
	header = strings.TrimSpace(header)
	if header == "" {
		return 0
	}

	if secs, err := strconv.Atoi(header); err == nil {
		if secs <= 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}

	if at, err := http.ParseTime(header); err == nil {
		if d := time.Until(at); d > 0 {
			return d
		}
	}
	return 0
}
