package vision

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/mealmetrics/mealmetrics/internal/imageprep"
)

// GatewayOptions tunes the retry/backoff state machine. Retry counts live on
// the individual ModelSpec so the end-to-end worst case stays bounded.
type GatewayOptions struct {
	// BaseDelay is the first backoff wait; it doubles per attempt.
	BaseDelay time.Duration
	// MaxDelay caps the backoff regardless of attempt count or any
	// provider-requested wait.
	MaxDelay time.Duration
}

// DefaultGatewayOptions returns the production retry tuning.
func DefaultGatewayOptions() GatewayOptions {
	return GatewayOptions{
		BaseDelay: 500 * time.Millisecond,
		MaxDelay:  15 * time.Second,
	}
}

// Gateway sends a prepared payload to a ranked list of models, retrying
// transient failures with exponential backoff and failing over to the next
// model when one is exhausted or rejects the request outright.
type Gateway struct {
	models []ModelSpec
	opts   GatewayOptions
	logger *slog.Logger
}

func NewGateway(models []ModelSpec, opts GatewayOptions, logger *slog.Logger) (*Gateway, error) {
	if len(models) == 0 {
		return nil, fmt.Errorf("gateway requires at least one model")
	}
	if opts.BaseDelay <= 0 {
		opts.BaseDelay = DefaultGatewayOptions().BaseDelay
	}
	if opts.MaxDelay < opts.BaseDelay {
		opts.MaxDelay = DefaultGatewayOptions().MaxDelay
	}
	return &Gateway{models: models, opts: opts, logger: logger}, nil
}

// Analyze walks the ranked model list until one attempt succeeds. It returns
// the raw model text on success, *FatalError when the failure is global
// (credentials, configuration), or *ExhaustedError once every model ran out
// of retries. Cancelling ctx abandons the in-flight attempt; partial replies
// are discarded.
func (g *Gateway) Analyze(ctx context.Context, payload *imageprep.Payload, prompt string) (string, error) {
	callID := uuid.NewString()

	var lastErr error
	totalAttempts := 0

	for _, spec := range g.models {
	attempts:
		for attempt := 0; attempt <= spec.MaxRetries; attempt++ {
			if err := ctx.Err(); err != nil {
				return "", err
			}
			totalAttempts++

			attemptCtx, cancel := context.WithTimeout(ctx, spec.Timeout)
			start := time.Now()
			raw, err := spec.Client.Generate(attemptCtx, spec.Name, payload, prompt)
			cancel()
			latency := time.Since(start)

			if err == nil {
				g.logger.Info("model attempt",
					"call_id", callID, "model", spec.Name,
					"attempt", attempt+1, "outcome", outcomeSuccess.String(),
					"latency_ms", latency.Milliseconds())
				return raw, nil
			}

			lastErr = err
			if ctx.Err() != nil {
				// The caller went away; the attempt error is just noise.
				return "", ctx.Err()
			}

			out := classify(err)
			g.logger.Warn("model attempt",
				"call_id", callID, "model", spec.Name,
				"attempt", attempt+1, "outcome", out.String(),
				"latency_ms", latency.Milliseconds(), "error", err)

			switch out {
			case outcomeAbort:
				return "", &FatalError{Model: spec.Name, Err: err}
			case outcomeNextModel:
				break attempts
			case outcomeRetry:
				if attempt == spec.MaxRetries {
					break attempts
				}
				if err := g.wait(ctx, attempt, err); err != nil {
					return "", err
				}
			}
		}
	}

	return "", &ExhaustedError{Attempts: totalAttempts, LastErr: lastErr}
}

// wait sleeps for the backoff of the given attempt, honoring any
// provider-requested delay. It returns early with ctx.Err() on cancellation.
func (g *Gateway) wait(ctx context.Context, attempt int, cause error) error {
	// The shift is clamped so extreme retry counts saturate at MaxDelay
	// instead of overflowing the duration.
	shift := uint(attempt)
	if shift > 20 {
		shift = 20
	}
	delay := g.opts.BaseDelay << shift
	if delay <= 0 || delay > g.opts.MaxDelay {
		delay = g.opts.MaxDelay
	}
	if ra := retryAfter(cause); ra > delay {
		delay = ra
	}
	if delay > g.opts.MaxDelay {
		delay = g.opts.MaxDelay
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
