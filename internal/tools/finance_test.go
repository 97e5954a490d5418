package tools

import "testing"

func TestAsFloat(t *testing.T) {
	tests := []struct {
		in   any
		want float64
		ok   bool
	}{
		{"123.45", 123.45, true},
		{"0", 0, true},
		{float64(7), 7, true},
		{"", 0, false},
		{"abc", 0, false},
		{nil, 0, false},
		{[]any{}, 0, false},
	}
	for _, tt := range tests {
		got, ok := asFloat(tt.in)
		if got != tt.want || ok != tt.ok {
			t.Errorf("asFloat(%#v) = (%v, %v), want (%v, %v)", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}

func sampleStatements() []map[string]any {
	return []map[string]any{
		{"TypeOfCurrentPeriod": "1Q", "DisclosedDate": "2025-08-01", "CurrentFiscalYearEndDate": "2026-03-31"},
		{"TypeOfCurrentPeriod": "FY", "DisclosedDate": "2025-05-10", "CurrentFiscalYearEndDate": "2025-03-31"},
		{"TypeOfCurrentPeriod": "FY", "DisclosedDate": "2024-05-11", "CurrentFiscalYearEndDate": "2024-03-31"},
	}
}

func TestSelectStatement(t *testing.T) {
	stmts := sampleStatements()

	latest := selectStatement(stmts, "", 0)
	if stringField(latest, "DisclosedDate") != "2025-08-01" {
		t.Errorf("latest pick = %v", latest)
	}

	fy := selectStatement(stmts, "FY", 0)
	if stringField(fy, "DisclosedDate") != "2025-05-10" {
		t.Errorf("FY pick = %v", fy)
	}

	fy2024 := selectStatement(stmts, "FY", 2024)
	if stringField(fy2024, "CurrentFiscalYearEndDate") != "2024-03-31" {
		t.Errorf("FY 2024 pick = %v", fy2024)
	}

	if got := selectStatement(stmts, "3Q", 0); got != nil {
		t.Errorf("expected nil for missing period, got %v", got)
	}
	if got := selectStatement(nil, "", 0); got != nil {
		t.Errorf("expected nil for empty input, got %v", got)
	}
}

func TestAnnualStatementFallsBackToUntyped(t *testing.T) {
	stmts := []map[string]any{
		{"DisclosedDate": "2025-05-10", "NetSales": "900"},
		{"TypeOfCurrentPeriod": "1Q", "DisclosedDate": "2025-08-01"},
	}
	got := annualStatement(stmts, 0)
	if got == nil || stringField(got, "NetSales") != "900" {
		t.Errorf("fallback pick = %v", got)
	}
}

func TestLatestClose(t *testing.T) {
	data := map[string]any{
		"daily_quotes": []any{
			map[string]any{"Date": "2025-08-28", "Close": "2500.5"},
			map[string]any{"Date": "2025-08-29", "Close": "2510"},
			map[string]any{"Date": "2025-08-27", "Close": "2490"},
		},
	}
	got, ok := latestClose(data)
	if !ok || got != 2510 {
		t.Errorf("latestClose = (%v, %v), want (2510, true)", got, ok)
	}

	if _, ok := latestClose(map[string]any{}); ok {
		t.Error("expected no close for empty data")
	}
}

func TestRound2(t *testing.T) {
	tests := []struct {
		in, want float64
	}{
		{1.006, 1.01},
		{41.421356, 41.42},
		{-1.234, -1.23},
		{0, 0},
	}
	for _, tt := range tests {
		if got := round2(tt.in); got != tt.want {
			t.Errorf("round2(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestValidateCode(t *testing.T) {
	for _, good := range []string{"7203", "0001"} {
		if err := validateCode(good); err != nil {
			t.Errorf("validateCode(%q) = %v", good, err)
		}
	}
	for _, bad := range []string{"", "72", "72035", "72a3", "七二零三"} {
		if err := validateCode(bad); err == nil {
			t.Errorf("validateCode(%q) should fail", bad)
		}
	}
}
