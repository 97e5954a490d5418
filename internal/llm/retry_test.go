package llm

import (
	"context"
	"errors"
	"testing"
	"time"
)

// fakeClient returns scripted errors before succeeding.
type fakeClient struct {
	errs  []error
	calls int
	resp  *Response
}

func (f *fakeClient) Chat(ctx context.Context, req *Request) (*Response, error) {
	f.calls++
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		return nil, err
	}
	if f.resp != nil {
		return f.resp, nil
	}
	return &Response{Content: "ok"}, nil
}

func testPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:   5,
		MinWait:       time.Millisecond,
		MaxWait:       4 * time.Millisecond,
		RateLimitBase: time.Millisecond,
		RateLimitStep: time.Millisecond,
	}
}

func TestInvokeRetriesTransientFailure(t *testing.T) {
	client := &fakeClient{errs: []error{
		errors.New("connection reset"),
		&ProviderError{Status: 500, Message: "internal", Err: ErrServer},
	}}
	inv := NewInvoker(client, testPolicy())

	resp, err := inv.Invoke(context.Background(), &Request{Model: "gpt-4.1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Content != "ok" {
		t.Errorf("expected ok, got %q", resp.Content)
	}
	if client.calls != 3 {
		t.Errorf("expected 3 calls, got %d", client.calls)
	}
}

func TestInvokeExhaustsAttempts(t *testing.T) {
	boom := errors.New("boom")
	client := &fakeClient{errs: []error{boom, boom, boom, boom, boom, boom}}
	inv := NewInvoker(client, testPolicy())

	_, err := inv.Invoke(context.Background(), &Request{Model: "gpt-4.1"})
	if err == nil {
		t.Fatal("expected error after exhausted attempts")
	}
	if !errors.Is(err, boom) {
		t.Errorf("expected last error to be wrapped, got %v", err)
	}
	if client.calls != 5 {
		t.Errorf("expected exactly 5 attempts, got %d", client.calls)
	}
}

func TestInvokeRateLimitCounterPersists(t *testing.T) {
	limited := &ProviderError{Status: 429, Message: "slow down", Err: ErrRateLimited}
	client := &fakeClient{errs: []error{limited}}
	inv := NewInvoker(client, testPolicy())

	if _, err := inv.Invoke(context.Background(), &Request{Model: "gpt-4.1"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// Success resets the consecutive counter.
	if inv.rateLimitHits != 0 {
		t.Errorf("expected rate limit counter reset after success, got %d", inv.rateLimitHits)
	}

	client.errs = []error{limited, limited}
	if _, err := inv.Invoke(context.Background(), &Request{Model: "gpt-4.1"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if client.calls != 5 {
		t.Errorf("expected 5 total calls, got %d", client.calls)
	}
}

func TestInvokeRespectsContextCancellation(t *testing.T) {
	client := &fakeClient{errs: []error{errors.New("flaky")}}
	policy := testPolicy()
	policy.MinWait = time.Minute // force a long sleep before the retry

	inv := NewInvoker(client, policy)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := inv.Invoke(ctx, &Request{Model: "gpt-4.1"})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded, got %v", err)
	}
}

func TestInvokeStructured(t *testing.T) {
	client := &fakeClient{resp: &Response{Content: `{"research_brief":"analyze 7203"}`}}
	inv := NewInvoker(client, testPolicy())

	var out struct {
		ResearchBrief string `json:"research_brief"`
	}
	err := inv.InvokeStructured(context.Background(), &Request{Model: "gpt-4.1"}, &out, 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.ResearchBrief != "analyze 7203" {
		t.Errorf("expected brief, got %q", out.ResearchBrief)
	}
}

func TestInvokeStructuredRetriesParseFailures(t *testing.T) {
	client := &fakeClient{resp: &Response{Content: "not json"}}
	inv := NewInvoker(client, testPolicy())

	var out map[string]any
	err := inv.InvokeStructured(context.Background(), &Request{Model: "gpt-4.1"}, &out, 3)
	if err == nil {
		t.Fatal("expected parse error")
	}
	if client.calls != 3 {
		t.Errorf("expected 3 attempts, got %d", client.calls)
	}
}
