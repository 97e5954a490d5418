package tools

import "strings"

// NormalizePeriod canonicalizes a reporting period label. Annual, 4Q and
// Q4 all mean the full fiscal year and map to FY; 1Q/2Q/3Q pass through.
// Unrecognized labels are returned unchanged so the caller can surface
// them in its own error reporting. The function is idempotent.
func NormalizePeriod(period string) string {
	if period == "" {
		return ""
	}
	switch strings.ToUpper(strings.TrimSpace(period)) {
	case "ANNUAL", "FY", "4Q", "Q4":
		return "FY"
	case "1Q":
		return "1Q"
	case "2Q":
		return "2Q"
	case "3Q":
		return "3Q"
	}
	return period
}
