package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/mfujita/kabuto/internal/config"
)

const searchDescription = "Search the web for general information: industry context, news, competitor landscape, anything not covered by the financial data tools."

const defaultTavilyURL = "https://api.tavily.com/search"

// SearchResult is one hit returned by a search provider.
type SearchResult struct {
	Title   string
	URL     string
	Snippet string
}

// SearchTool queries the Tavily API and renders the top hits as text.
type SearchTool struct {
	apiKey    string
	depth     string
	endpoint  string
	baseDelay time.Duration
	httpc     *http.Client
}

func NewSearchTool(cfg config.SearchConfig) *SearchTool {
	depth := cfg.Depth
	if depth == "" {
		depth = "basic"
	}
	return &SearchTool{
		apiKey:    cfg.APIKey,
		depth:     depth,
		endpoint:  defaultTavilyURL,
		baseDelay: time.Second,
		httpc:     &http.Client{Timeout: 30 * time.Second},
	}
}

func (s *SearchTool) Name() string        { return "web_search" }
func (s *SearchTool) Description() string { return searchDescription }

func (s *SearchTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"query": {"type": "string", "description": "Search query"}
		},
		"required": ["query"]
	}`)
}

func (s *SearchTool) Invoke(ctx context.Context, args json.RawMessage) (string, error) {
	var in struct {
		Query string `json:"query"`
	}
	if err := json.Unmarshal(args, &in); err != nil {
		return "", fmt.Errorf("web_search: invalid arguments: %w", err)
	}
	if strings.TrimSpace(in.Query) == "" {
		return "", errors.New("web_search: empty query")
	}

	results, err := s.search(ctx, in.Query)
	if err != nil {
		return "", err
	}
	if len(results) == 0 {
		return "No results found for: " + in.Query, nil
	}

	var b strings.Builder
	for i, r := range results {
		fmt.Fprintf(&b, "%d. %s\n%s\n%s\n\n", i+1, r.Title, r.URL, r.Snippet)
	}
	return strings.TrimRight(b.String(), "\n"), nil
}

func (s *SearchTool) search(ctx context.Context, query string) ([]SearchResult, error) {
	if strings.TrimSpace(s.apiKey) == "" {
		return nil, errors.New("web_search: API key is missing")
	}

	payload, err := json.Marshal(map[string]any{
		"query":   query,
		"api_key": s.apiKey,
		"depth":   s.depth,
	})
	if err != nil {
		return nil, err
	}

	var resp *http.Response
	delay := s.baseDelay
	for {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err = s.httpc.Do(req)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode != http.StatusTooManyRequests {
			break
		}
		resp.Body.Close()

		// Back off and retry on 429, doubling the delay each time up to 30s.
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
		if delay < 30*time.Second {
			delay *= 2
		}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("web_search: http %d", resp.StatusCode)
	}

	var out struct {
		Results []struct {
			Title   string `json:"title"`
			URL     string `json:"url"`
			Content string `json:"content"`
		} `json:"results"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}

	results := make([]SearchResult, 0, len(out.Results))
	for _, r := range out.Results {
		results = append(results, SearchResult{Title: r.Title, URL: r.URL, Snippet: r.Content})
		if len(results) >= 5 {
			break
		}
	}
	return results, nil
}
