package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/mfujita/kabuto/internal/jquants"
)

const (
	statementsDescription = "Fetch financial statements (net sales, operating profit, profit, equity, EPS and more) for a listed Japanese company by its 4-digit code. Up to five fiscal years of data are available."
	priceDescription      = "Fetch recent daily stock prices for a listed Japanese company by its 4-digit code. Run this first for any stock analysis; investment judgment needs the current price."
)

// StatementsTool exposes J-Quants financial statements to the model.
type StatementsTool struct {
	api *jquants.Client
}

func NewStatementsTool(api *jquants.Client) *StatementsTool {
	return &StatementsTool{api: api}
}

func (t *StatementsTool) Name() string        { return "get_financial_statements" }
func (t *StatementsTool) Description() string { return statementsDescription }

func (t *StatementsTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"code": {"type": "string", "description": "4-digit company code, e.g. 7203"},
			"year": {"type": "integer", "description": "Fiscal year, omit for all available periods"}
		},
		"required": ["code"]
	}`)
}

func (t *StatementsTool) Invoke(ctx context.Context, args json.RawMessage) (string, error) {
	var in struct {
		Code string `json:"code"`
		Year int    `json:"year"`
	}
	if err := json.Unmarshal(args, &in); err != nil {
		return "", fmt.Errorf("get_financial_statements: invalid arguments: %w", err)
	}
	if err := validateCode(in.Code); err != nil {
		return "", err
	}

	data, err := t.api.Statements(ctx, in.Code, in.Year)
	if err != nil {
		return "", err
	}
	return toJSON(data), nil
}

// PriceTool exposes recent daily quotes to the model.
type PriceTool struct {
	api *jquants.Client
	now func() time.Time
}

func NewPriceTool(api *jquants.Client) *PriceTool {
	return &PriceTool{api: api, now: time.Now}
}

func (t *PriceTool) Name() string        { return "get_recent_stock_price" }
func (t *PriceTool) Description() string { return priceDescription }

func (t *PriceTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"code": {"type": "string", "description": "4-digit company code, e.g. 7203"}
		},
		"required": ["code"]
	}`)
}

func (t *PriceTool) Invoke(ctx context.Context, args json.RawMessage) (string, error) {
	var in struct {
		Code string `json:"code"`
	}
	if err := json.Unmarshal(args, &in); err != nil {
		return "", fmt.Errorf("get_recent_stock_price: invalid arguments: %w", err)
	}
	if err := validateCode(in.Code); err != nil {
		return "", err
	}

	// Ten calendar days back covers the last trading week over weekends
	// and holidays.
	end := t.now()
	start := end.AddDate(0, 0, -10)
	data, err := t.api.DailyQuotes(ctx, in.Code, start.Format("2006-01-02"), end.Format("2006-01-02"))
	if err != nil {
		return "", err
	}
	data["requested_code"] = in.Code
	data["date_range"] = fmt.Sprintf("%s to %s", start.Format("2006-01-02"), end.Format("2006-01-02"))
	return toJSON(data), nil
}

func validateCode(code string) error {
	if len(code) != 4 {
		return fmt.Errorf("invalid company code %q: must be a 4-digit number, e.g. 7203", code)
	}
	if _, err := strconv.Atoi(code); err != nil {
		return fmt.Errorf("invalid company code %q: must be a 4-digit number, e.g. 7203", code)
	}
	return nil
}
