// Package jquants is a thin client for the J-Quants equity data API.
// All calls go through an injected Limiter so tools sharing one client
// keep a minimum interval between upstream requests.
package jquants

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/mfujita/kabuto/internal/config"
)

type Client struct {
	baseURL      string
	refreshToken string
	limiter      Limiter
	httpc        *http.Client

	mu      sync.Mutex
	idToken string
}

func NewClient(cfg config.JQuantsConfig, limiter Limiter) *Client {
	if limiter == nil {
		limiter = NewIntervalLimiter(cfg.MinInterval)
	}
	return &Client{
		baseURL:      cfg.BaseURL,
		refreshToken: cfg.RefreshToken,
		limiter:      limiter,
		httpc:        &http.Client{Timeout: 30 * time.Second},
	}
}

// Statements returns the financial statements for a listed company.
// A zero year means all available periods.
func (c *Client) Statements(ctx context.Context, code string, year int) (map[string]any, error) {
	params := url.Values{"code": {code}}
	if year > 0 {
		params.Set("year", strconv.Itoa(year))
	}
	return c.get(ctx, "/v1/fins/statements", params)
}

// DailyQuotes returns daily price quotes for a company over a date range.
// Empty from/to fetch whatever the API considers current.
func (c *Client) DailyQuotes(ctx context.Context, code, from, to string) (map[string]any, error) {
	params := url.Values{"code": {code}}
	if from != "" {
		params.Set("from", from)
	}
	if to != "" {
		params.Set("to", to)
	}
	return c.get(ctx, "/v1/prices/daily_quotes", params)
}

// ListedInfo returns issuer metadata (name, sector, market segment).
func (c *Client) ListedInfo(ctx context.Context, code string) (map[string]any, error) {
	return c.get(ctx, "/v1/listed/info", url.Values{"code": {code}})
}

// Announcement returns upcoming earnings announcement dates.
func (c *Client) Announcement(ctx context.Context, code string) (map[string]any, error) {
	return c.get(ctx, "/v1/fins/announcement", url.Values{"code": {code}})
}

func (c *Client) get(ctx context.Context, path string, params url.Values) (map[string]any, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	token, err := c.token(ctx)
	if err != nil {
		return nil, err
	}

	u := c.baseURL + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("jquants %s: %w", path, err)
	}

	if resp.StatusCode == http.StatusUnauthorized {
		// Token expired mid-session, refresh once and retry.
		resp.Body.Close()
		c.mu.Lock()
		c.idToken = ""
		c.mu.Unlock()
		token, err = c.token(ctx)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", "Bearer "+token)
		resp, err = c.httpc.Do(req)
		if err != nil {
			return nil, fmt.Errorf("jquants %s: %w", path, err)
		}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("jquants %s: read body: %w", path, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("jquants %s: status %d: %s", path, resp.StatusCode, string(body))
	}

	var data map[string]any
	if err := json.Unmarshal(body, &data); err != nil {
		return nil, fmt.Errorf("jquants %s: decode: %w", path, err)
	}
	pruned, _ := PruneEmpty(data).(map[string]any)
	return pruned, nil
}

func (c *Client) token(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.idToken != "" {
		return c.idToken, nil
	}
	if c.refreshToken == "" {
		return "", fmt.Errorf("jquants: refresh token not configured")
	}

	u := c.baseURL + "/v1/token/auth_refresh?refreshtoken=" + url.QueryEscape(c.refreshToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, nil)
	if err != nil {
		return "", err
	}
	resp, err := c.httpc.Do(req)
	if err != nil {
		return "", fmt.Errorf("jquants auth: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("jquants auth: read body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("jquants auth: status %d: %s", resp.StatusCode, string(body))
	}

	var out struct {
		IDToken string `json:"idToken"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return "", fmt.Errorf("jquants auth: decode: %w", err)
	}
	if out.IDToken == "" {
		return "", fmt.Errorf("jquants auth: empty id token in response")
	}
	c.idToken = out.IDToken
	return c.idToken, nil
}

// PruneEmpty strips nil values, empty strings, empty slices and empty maps
// recursively. API responses carry many blank fields that only waste model
// context.
func PruneEmpty(v any) any {
	switch val := v.(type) {
	case map[string]any:
		cleaned := make(map[string]any, len(val))
		for k, item := range val {
			pruned := PruneEmpty(item)
			if !isEmpty(pruned) {
				cleaned[k] = pruned
			}
		}
		return cleaned
	case []any:
		cleaned := make([]any, 0, len(val))
		for _, item := range val {
			pruned := PruneEmpty(item)
			if !isEmpty(pruned) {
				cleaned = append(cleaned, pruned)
			}
		}
		return cleaned
	default:
		return v
	}
}

func isEmpty(v any) bool {
	switch val := v.(type) {
	case nil:
		return true
	case string:
		return val == ""
	case map[string]any:
		return len(val) == 0
	case []any:
		return len(val) == 0
	}
	return false
}
