package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/mfujita/kabuto/internal/config"
)

// Client is the interface the orchestration layer invokes models through.
// Implementations must be safe for concurrent use.
type Client interface {
	Chat(ctx context.Context, req *Request) (*Response, error)
}

// HTTPClient talks to an OpenAI-compatible chat-completions endpoint.
// Any provider exposing that wire shape (OpenAI, Azure, Ollama, vLLM) works.
type HTTPClient struct {
	baseURL string
	apiKey  string
	httpc   *http.Client
}

func NewHTTPClient(cfg config.LLMConfig) *HTTPClient {
	return &HTTPClient{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		httpc:   &http.Client{Timeout: 5 * time.Minute},
	}
}

// Wire types for the chat-completions endpoint.

type wireToolCall struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	Function struct {
		Name      string `json:"name"`
		Arguments string `json:"arguments"`
	} `json:"function"`
}

type wireMessage struct {
	Role       string         `json:"role"`
	Content    string         `json:"content"`
	Name       string         `json:"name,omitempty"`
	ToolCalls  []wireToolCall `json:"tool_calls,omitempty"`
	ToolCallID string         `json:"tool_call_id,omitempty"`
}

type wireTool struct {
	Type     string  `json:"type"`
	Function ToolDef `json:"function"`
}

type wireRequest struct {
	Model          string        `json:"model"`
	Messages       []wireMessage `json:"messages"`
	MaxTokens      int           `json:"max_tokens,omitempty"`
	Tools          []wireTool    `json:"tools,omitempty"`
	ResponseFormat any           `json:"response_format,omitempty"`
}

type wireResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Content   string         `json:"content"`
			ToolCalls []wireToolCall `json:"tool_calls"`
		} `json:"message"`
	} `json:"choices"`
	Usage Usage `json:"usage"`
}

type wireError struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    any    `json:"code"`
	} `json:"error"`
}

func (c *HTTPClient) Chat(ctx context.Context, req *Request) (*Response, error) {
	wr := wireRequest{
		Model:     req.Model,
		MaxTokens: req.MaxTokens,
	}
	for _, m := range req.Messages {
		wm := wireMessage{
			Role:       string(m.Role),
			Content:    m.Content,
			Name:       m.Name,
			ToolCallID: m.ToolCallID,
		}
		for _, tc := range m.ToolCalls {
			wtc := wireToolCall{ID: tc.ID, Type: "function"}
			wtc.Function.Name = tc.Name
			wtc.Function.Arguments = string(tc.Arguments)
			wm.ToolCalls = append(wm.ToolCalls, wtc)
		}
		wr.Messages = append(wr.Messages, wm)
	}
	for _, t := range req.Tools {
		wr.Tools = append(wr.Tools, wireTool{Type: "function", Function: t})
	}
	if req.Schema != nil {
		wr.ResponseFormat = map[string]any{
			"type": "json_schema",
			"json_schema": map[string]any{
				"name":   req.Schema.Name,
				"schema": req.Schema.Schema,
				"strict": true,
			},
		}
	}

	payload, err := json.Marshal(wr)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpc.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("chat request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var we wireError
		_ = json.Unmarshal(body, &we)
		code := ""
		switch v := we.Error.Code.(type) {
		case string:
			code = v
		case float64:
			code = fmt.Sprintf("%d", int(v))
		}
		if code == "" {
			code = we.Error.Type
		}
		return nil, normalizeError(resp.StatusCode, code, we.Error.Message)
	}

	var wresp wireResponse
	if err := json.Unmarshal(body, &wresp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if len(wresp.Choices) == 0 {
		return nil, fmt.Errorf("chat response has no choices")
	}

	out := &Response{
		Model:   wresp.Model,
		Content: wresp.Choices[0].Message.Content,
		Usage:   wresp.Usage,
	}
	for _, wtc := range wresp.Choices[0].Message.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, ToolCall{
			ID:        wtc.ID,
			Name:      wtc.Function.Name,
			Arguments: json.RawMessage(wtc.Function.Arguments),
		})
	}
	return out, nil
}
