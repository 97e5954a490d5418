package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/mfujita/kabuto/internal/config"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *HTTPClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewHTTPClient(config.LLMConfig{BaseURL: srv.URL, APIKey: "test-key"})
}

func TestChatParsesToolCalls(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("unexpected auth header %q", got)
		}

		var req wireRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if len(req.Tools) != 1 || req.Tools[0].Function.Name != "web_search" {
			t.Errorf("expected web_search tool bound, got %+v", req.Tools)
		}

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"model": "gpt-4.1",
			"choices": [{"message": {
				"content": "",
				"tool_calls": [{"id": "call_1", "type": "function",
					"function": {"name": "web_search", "arguments": "{\"query\":\"toyota earnings\"}"}}]
			}}],
			"usage": {"prompt_tokens": 10, "completion_tokens": 5, "total_tokens": 15}
		}`))
	})

	resp, err := client.Chat(context.Background(), &Request{
		Model:    "gpt-4.1",
		Messages: []Message{{Role: RoleUser, Content: "research toyota"}},
		Tools:    []ToolDef{{Name: "web_search", Description: "search", Parameters: json.RawMessage(`{}`)}},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(resp.ToolCalls) != 1 {
		t.Fatalf("expected 1 tool call, got %d", len(resp.ToolCalls))
	}
	tc := resp.ToolCalls[0]
	if tc.ID != "call_1" || tc.Name != "web_search" {
		t.Errorf("unexpected tool call %+v", tc)
	}
	var args struct {
		Query string `json:"query"`
	}
	if err := json.Unmarshal(tc.Arguments, &args); err != nil {
		t.Fatalf("arguments not valid json: %v", err)
	}
	if args.Query != "toyota earnings" {
		t.Errorf("unexpected query %q", args.Query)
	}
}

func TestChatNormalizesRateLimit(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"message":"Rate limit reached","type":"requests","code":"rate_limit_exceeded"}}`))
	})

	_, err := client.Chat(context.Background(), &Request{Model: "gpt-4.1", Messages: []Message{{Role: RoleUser, Content: "hi"}}})
	if !errors.Is(err, ErrRateLimited) {
		t.Errorf("expected ErrRateLimited, got %v", err)
	}

	var pe *ProviderError
	if !errors.As(err, &pe) {
		t.Fatalf("expected *ProviderError, got %T", err)
	}
	if pe.Status != http.StatusTooManyRequests || pe.Code != "rate_limit_exceeded" {
		t.Errorf("unexpected provider error %+v", pe)
	}
}

func TestChatNormalizesContextLength(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"message":"maximum context length exceeded","type":"invalid_request_error","code":"context_length_exceeded"}}`))
	})

	_, err := client.Chat(context.Background(), &Request{Model: "gpt-4.1", Messages: []Message{{Role: RoleUser, Content: "hi"}}})
	if !errors.Is(err, ErrContextLength) {
		t.Errorf("expected ErrContextLength, got %v", err)
	}
}

func TestChatStructuredOutputFormat(t *testing.T) {
	var sawFormat bool
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var raw map[string]any
		_ = json.NewDecoder(r.Body).Decode(&raw)
		if _, ok := raw["response_format"]; ok {
			sawFormat = true
		}
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"{\"research_brief\":\"b\"}"}}]}`))
	})

	schema := &ResponseSchema{Name: "research_brief", Schema: json.RawMessage(`{"type":"object"}`)}
	resp, err := client.Chat(context.Background(), &Request{
		Model:    "gpt-4.1",
		Messages: []Message{{Role: RoleUser, Content: "hi"}},
		Schema:   schema,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !sawFormat {
		t.Error("expected response_format in request payload")
	}
	if resp.Content == "" {
		t.Error("expected content")
	}
}
