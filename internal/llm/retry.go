package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// RetryPolicy bounds how an Invoker retries failed calls. Rate-limited
// failures wait RateLimitBase plus RateLimitStep per consecutive rate-limited
// retry; all other failures back off exponentially between MinWait and
// MaxWait.
type RetryPolicy struct {
	MaxAttempts   int
	MinWait       time.Duration
	MaxWait       time.Duration
	RateLimitBase time.Duration
	RateLimitStep time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:   5,
		MinWait:       10 * time.Second,
		MaxWait:       120 * time.Second,
		RateLimitBase: 30 * time.Second,
		RateLimitStep: 5 * time.Second,
	}
}

// Invoker wraps a Client with retry behaviour. It is the single place where
// transient provider failures are absorbed; every model-invoking step goes
// through it. The rate-limit counter persists across calls so repeated
// throttling keeps growing the wait.
type Invoker struct {
	client Client
	policy RetryPolicy

	mu            sync.Mutex
	rateLimitHits int
}

func NewInvoker(client Client, policy RetryPolicy) *Invoker {
	if policy.MaxAttempts <= 0 {
		policy = DefaultRetryPolicy()
	}
	return &Invoker{client: client, policy: policy}
}

// Invoke executes one chat call, retrying per the policy. The last error is
// returned wrapped after attempts are exhausted.
func (inv *Invoker) Invoke(ctx context.Context, req *Request) (*Response, error) {
	wait := inv.policy.MinWait
	var lastErr error

	for attempt := 0; attempt < inv.policy.MaxAttempts; attempt++ {
		resp, err := inv.client.Chat(ctx, req)
		if err == nil {
			inv.resetRateLimit()
			return resp, nil
		}
		lastErr = err

		if attempt == inv.policy.MaxAttempts-1 {
			break
		}

		var delay time.Duration
		if IsRateLimited(err) {
			hits := inv.bumpRateLimit()
			delay = inv.policy.RateLimitBase + time.Duration(hits-1)*inv.policy.RateLimitStep
			slog.Warn("rate limit detected, backing off",
				"model", req.Model, "wait", delay, "error", err)
		} else {
			delay = wait
			wait = min(wait*2, inv.policy.MaxWait)
			slog.Debug("model call failed, retrying",
				"model", req.Model, "attempt", attempt+1, "wait", delay, "error", err)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}

	return nil, fmt.Errorf("invoke %s after %d attempts: %w", req.Model, inv.policy.MaxAttempts, lastErr)
}

// InvokeStructured executes a schema-constrained call and unmarshals the
// response into out. Parse failures consume additional attempts, up to
// retries in total.
func (inv *Invoker) InvokeStructured(ctx context.Context, req *Request, out any, retries int) error {
	if retries <= 0 {
		retries = 1
	}
	var lastErr error
	for attempt := 0; attempt < retries; attempt++ {
		resp, err := inv.Invoke(ctx, req)
		if err != nil {
			return err
		}
		if err := json.Unmarshal([]byte(resp.Content), out); err != nil {
			lastErr = fmt.Errorf("parse structured output: %w", err)
			slog.Debug("structured output parse failed, retrying",
				"model", req.Model, "attempt", attempt+1, "error", err)
			continue
		}
		return nil
	}
	return lastErr
}

func (inv *Invoker) bumpRateLimit() int {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	inv.rateLimitHits++
	return inv.rateLimitHits
}

func (inv *Invoker) resetRateLimit() {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	inv.rateLimitHits = 0
}
