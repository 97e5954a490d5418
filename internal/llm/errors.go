package llm

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Sentinel errors for provider failures, matched with errors.Is.
var (
	ErrRateLimited   = errors.New("rate limited")
	ErrContextLength = errors.New("context length exceeded")
	ErrBadRequest    = errors.New("bad request")
	ErrUnauthorized  = errors.New("unauthorized")
	ErrServer        = errors.New("server error")
)

// ProviderError is a normalized provider failure carrying the HTTP status and
// the provider's error code/message, wrapping one of the sentinels above.
type ProviderError struct {
	Status  int
	Code    string
	Message string
	Err     error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("llm provider: %s (status %d, code %s)", e.Message, e.Status, e.Code)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

func normalizeError(status int, code, message string) error {
	var sentinel error
	switch {
	case status == http.StatusTooManyRequests:
		sentinel = ErrRateLimited
	case code == "context_length_exceeded" || code == "string_above_max_length":
		sentinel = ErrContextLength
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		sentinel = ErrUnauthorized
	case status == http.StatusBadRequest || status == http.StatusNotFound:
		sentinel = ErrBadRequest
	default:
		sentinel = ErrServer
	}

	if message == "" {
		message = http.StatusText(status)
	}

	return &ProviderError{Status: status, Code: code, Message: message, Err: sentinel}
}

// rateLimitIndicators are matched case-insensitively against error text for
// providers that do not surface a clean 429.
var rateLimitIndicators = []string{
	"rate_limit_exceeded",
	"rate limit",
	"too many requests",
	"429",
	"quota exceeded",
	"tokens per min",
}

// IsRateLimited reports whether err looks like a provider rate limit, either
// by sentinel or by error text.
func IsRateLimited(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrRateLimited) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, ind := range rateLimitIndicators {
		if strings.Contains(msg, ind) {
			return true
		}
	}
	return false
}

var tokenLimitIndicators = []string{
	"context_length_exceeded",
	"context length",
	"maximum context",
	"token limit",
	"prompt is too long",
	"input is too long",
}

// IsTokenLimitExceeded reports whether err was caused by exceeding the
// model's context window, as opposed to any other failure.
func IsTokenLimitExceeded(err error, model string) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrContextLength) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, ind := range tokenLimitIndicators {
		if strings.Contains(msg, ind) {
			return true
		}
	}
	_ = model
	return false
}

// modelTokenLimits maps known model identifiers to their context window in
// tokens. Prefix-matched so dated snapshots resolve too.
var modelTokenLimits = map[string]int{
	"gpt-4.1":       1047576,
	"gpt-4.1-mini":  1047576,
	"gpt-4o":        128000,
	"gpt-4o-mini":   128000,
	"o3":            200000,
	"o4-mini":       200000,
	"claude-opus":   200000,
	"claude-sonnet": 200000,
	"claude-haiku":  200000,
}

// ModelTokenLimit returns the context window for a model identifier, or 0 if
// the model is unknown.
func ModelTokenLimit(model string) int {
	if limit, ok := modelTokenLimits[model]; ok {
		return limit
	}
	// Longest-prefix match for versioned identifiers.
	best := ""
	for name := range modelTokenLimits {
		if strings.HasPrefix(model, name) && len(name) > len(best) {
			best = name
		}
	}
	if best != "" {
		return modelTokenLimits[best]
	}
	return 0
}
