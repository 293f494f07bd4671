package modeladapter

import (
	"context"
	"math/rand/v2"
	"time"

	"edsl/pkg/execerr"
	"edsl/pkg/model"
)

// retryPolicy is the exponential-backoff-with-jitter schedule applied around
// every adapter's provider call (spec §4.6: "retries on transient errors
// (429, 5xx, connection reset) with exponential backoff and bounded retry
// count; permanent errors ... fail immediately without retry").
type retryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

var defaultRetryPolicy = retryPolicy{
	MaxAttempts: 4,
	BaseDelay:   500 * time.Millisecond,
	MaxDelay:    20 * time.Second,
}

// WithRetry wraps client with defaultRetryPolicy's retry schedule, classifying
// errors via execerr.AsProviderError/ProviderErrorKind to decide whether a
// given failure is worth retrying.
func WithRetry(client model.Client) model.Client {
	return &retryingClient{inner: client, policy: defaultRetryPolicy}
}

type retryingClient struct {
	inner  model.Client
	policy retryPolicy
}

func (c *retryingClient) Call(ctx context.Context, identity model.Identity, req model.Request) (*model.RawResponse, error) {
	var lastErr error
	for attempt := 0; attempt < c.policy.MaxAttempts; attempt++ {
		resp, err := c.inner.Call(ctx, identity, req)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if !isRetryable(err) {
			return nil, err
		}
		if attempt == c.policy.MaxAttempts-1 {
			break
		}
		delay := backoffDelay(c.policy, attempt)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}
	return nil, lastErr
}

func isRetryable(err error) bool {
	pe, ok := execerr.AsProviderError(err)
	if !ok {
		return false
	}
	return pe.Retryable
}

// backoffDelay computes 2^attempt * BaseDelay, capped at MaxDelay, with full
// jitter (a random value in [0, delay], both ends inclusive) to avoid synchronized retry storms
// across a scheduler's worker pool.
func backoffDelay(p retryPolicy, attempt int) time.Duration {
	d := p.BaseDelay << attempt
	if d > p.MaxDelay || d <= 0 {
		d = p.MaxDelay
	}
	return time.Duration(rand.Int64N(int64(d) + 1))
}
