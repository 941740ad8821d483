package agentloop

import (
	"context"
	"math/rand"
	"time"

	"golang.org/x/time/rate"

	"github.com/agentrt/browseragent/chatmodel"
)

// isRetryable classifies an LLM call error per §4.6's retry policy:
// rate limits and 5xx/network provider errors are retried; anything
// else counts as one step failure.
func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	switch e := err.(type) {
	case *chatmodel.ModelRateLimitError:
		return true
	case *chatmodel.ModelProviderError:
		return e.StatusCode == 0 || e.StatusCode == 429 || e.StatusCode >= 500
	case *chatmodel.ModelAbortError:
		return false
	default:
		return false
	}
}

// backoff computes the exponential-backoff-plus-jitter delay for retry
// attempt n (0-indexed), capped at maxDelay.
func backoff(n int, base, maxDelay time.Duration) time.Duration {
	d := base << uint(n)
	if d <= 0 || d > maxDelay {
		d = maxDelay
	}
	jitter := time.Duration(rand.Int63n(int64(d) / 2 + 1))
	return d/2 + jitter
}

// newRetryLimiter builds the token bucket that paces retry attempts: one
// token regenerates every baseDelay, with a burst of 1 so successive
// retries are spaced at least one interval apart, regardless of how the
// exponential backoff below also grows. The bucket starts full, so the
// first retry it paces takes its token without waiting.
func newRetryLimiter(baseDelay time.Duration) *rate.Limiter {
	if baseDelay <= 0 {
		baseDelay = time.Second
	}
	return rate.NewLimiter(rate.Every(baseDelay), 1)
}

// invokeWithRetry calls model.Invoke, retrying transient errors up to
// maxRetries times. Each attempt after the first waits on limiter (a
// token bucket with its own pace, independent of baseDelay) and an additional
// exponential-backoff+jitter sleep, honoring ctx cancellation throughout.
func invokeWithRetry(ctx context.Context, model chatmodel.Model, msgs []chatmodel.Message, opts chatmodel.InvokeOptions, maxRetries int, limiter *rate.Limiter, baseDelay, maxDelay time.Duration) (*chatmodel.Completion, error) {
	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			if err := limiter.Wait(ctx); err != nil {
				return nil, err
			}
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff(attempt-1, baseDelay, maxDelay)):
			}
		}
		completion, err := model.Invoke(ctx, msgs, opts)
		if err == nil {
			return completion, nil
		}
		lastErr = err
		if !isRetryable(err) || attempt == maxRetries {
			return nil, err
		}
	}
	return nil, lastErr
}
