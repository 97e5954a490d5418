package tools

import (
	"context"
	"strconv"
	"time"

	"github.com/mfujita/kabuto/internal/jquants"
)

// asFloat converts API values that arrive as strings or numbers.
func asFloat(v any) (float64, bool) {
	switch val := v.(type) {
	case float64:
		return val, true
	case int:
		return float64(val), true
	case string:
		if val == "" {
			return 0, false
		}
		f, err := strconv.ParseFloat(val, 64)
		if err != nil {
			return 0, false
		}
		return f, true
	}
	return 0, false
}

func statementList(data map[string]any) []map[string]any {
	raw, _ := data["statements"].([]any)
	out := make([]map[string]any, 0, len(raw))
	for _, item := range raw {
		if m, ok := item.(map[string]any); ok {
			out = append(out, m)
		}
	}
	return out
}

func stringField(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return s
}

// latestStatement picks the statement with the greatest DisclosedDate.
func latestStatement(stmts []map[string]any) map[string]any {
	var best map[string]any
	var bestDate string
	for _, s := range stmts {
		if d := stringField(s, "DisclosedDate"); best == nil || d > bestDate {
			best, bestDate = s, d
		}
	}
	return best
}

// selectStatement filters by period type and fiscal year end, then picks
// the latest disclosure. Empty period and zero year fall back to the
// newest statement of any kind.
func selectStatement(stmts []map[string]any, period string, year int) map[string]any {
	if period == "" && year == 0 {
		return latestStatement(stmts)
	}
	var filtered []map[string]any
	for _, s := range stmts {
		if period != "" && stringField(s, "TypeOfCurrentPeriod") != period {
			continue
		}
		if year != 0 {
			end := stringField(s, "CurrentFiscalYearEndDate")
			if len(end) < 4 {
				continue
			}
			endYear, err := strconv.Atoi(end[:4])
			if err != nil || endYear != year {
				continue
			}
		}
		filtered = append(filtered, s)
	}
	return latestStatement(filtered)
}

// annualStatement prefers FY data, falling back to statements with no
// period type at all (some filings omit it).
func annualStatement(stmts []map[string]any, year int) map[string]any {
	if s := selectStatement(stmts, "FY", year); s != nil {
		return s
	}
	var untyped []map[string]any
	for _, s := range stmts {
		if _, ok := s["TypeOfCurrentPeriod"]; !ok {
			untyped = append(untyped, s)
		}
	}
	return latestStatement(untyped)
}

// latestClose picks the close price of the newest daily quote.
func latestClose(data map[string]any) (float64, bool) {
	raw, _ := data["daily_quotes"].([]any)
	var best map[string]any
	var bestDate string
	for _, item := range raw {
		q, ok := item.(map[string]any)
		if !ok {
			continue
		}
		if d := stringField(q, "Date"); best == nil || d > bestDate {
			best, bestDate = q, d
		}
	}
	if best == nil {
		return 0, false
	}
	return asFloat(best["Close"])
}

// periodEndPrice fetches the close nearest to the statement's period end
// date, looking one week back to land on a trading day.
func periodEndPrice(ctx context.Context, api *jquants.Client, stmt map[string]any, code string) (float64, bool) {
	periodEnd := stringField(stmt, "CurrentPeriodEndDate")
	if periodEnd == "" {
		return 0, false
	}
	end, err := time.Parse("2006-01-02", periodEnd)
	if err != nil {
		return 0, false
	}
	start := end.AddDate(0, 0, -7)
	data, err := api.DailyQuotes(ctx, code, start.Format("2006-01-02"), end.Format("2006-01-02"))
	if err != nil {
		return 0, false
	}
	return latestClose(data)
}

func round2(f float64) float64 {
	if f < 0 {
		return float64(int64(f*100-0.5)) / 100
	}
	return float64(int64(f*100+0.5)) / 100
}
