package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/mfujita/kabuto/internal/jquants"
)

const growthDescription = "Growth analysis for a listed Japanese company over multiple fiscal years: revenue/profit/EPS CAGR, year-over-year growth rates, trend stability, growth consistency, a 100-point growth score and an investment timing view."

// GrowthTool analyzes multi-year growth trends from annual or quarterly
// statements.
type GrowthTool struct {
	api *jquants.Client
	now func() time.Time
}

func NewGrowthTool(api *jquants.Client) *GrowthTool {
	return &GrowthTool{api: api, now: time.Now}
}

func (t *GrowthTool) Name() string        { return "analyze_growth_potential" }
func (t *GrowthTool) Description() string { return growthDescription }

func (t *GrowthTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"code": {"type": "string", "description": "4-digit company code"},
			"analysis_years": {"type": "integer", "description": "Number of fiscal years to analyze, default 3"},
			"quarter": {"type": "string", "description": "Reporting period to compare across years: 1Q, 2Q, 3Q, FY or Annual (default)"}
		},
		"required": ["code"]
	}`)
}

type yearMetrics struct {
	Year            int      `json:"year"`
	PeriodType      string   `json:"period_type"`
	NetSales        *float64 `json:"net_sales,omitempty"`
	OperatingProfit *float64 `json:"operating_profit,omitempty"`
	Profit          *float64 `json:"profit,omitempty"`
	TotalAssets     *float64 `json:"total_assets,omitempty"`
	Equity          *float64 `json:"equity,omitempty"`
	EPS             *float64 `json:"eps,omitempty"`
	ROE             *float64 `json:"roe,omitempty"`
	OperatingMargin *float64 `json:"operating_margin,omitempty"`
}

func (m *yearMetrics) metric(name string) *float64 {
	switch name {
	case "net_sales":
		return m.NetSales
	case "profit":
		return m.Profit
	case "eps":
		return m.EPS
	}
	return nil
}

func (t *GrowthTool) Invoke(ctx context.Context, args json.RawMessage) (string, error) {
	var in struct {
		Code          string `json:"code"`
		AnalysisYears int    `json:"analysis_years"`
		Quarter       string `json:"quarter"`
	}
	if err := json.Unmarshal(args, &in); err != nil {
		return "", fmt.Errorf("analyze_growth_potential: invalid arguments: %w", err)
	}
	if err := validateCode(in.Code); err != nil {
		return "", err
	}
	if in.AnalysisYears <= 0 {
		in.AnalysisYears = 3
	}
	if in.Quarter == "" {
		in.Quarter = "Annual"
	}
	period := NormalizePeriod(in.Quarter)

	currentYear := t.now().Year()
	var years []yearMetrics
	for i := 0; i < in.AnalysisYears; i++ {
		year := currentYear - i
		data, err := t.api.Statements(ctx, in.Code, year)
		if err != nil {
			return "", err
		}
		stmts := statementList(data)
		stmt := selectStatement(stmts, period, year)
		if stmt == nil && period == "FY" {
			stmt = annualStatement(stmts, 0)
		}
		if stmt != nil {
			years = append(years, collectMetrics(year, stmt))
		}
	}
	if len(years) == 0 {
		return "", fmt.Errorf("growth analysis needs at least one year of %s data for %s", period, in.Code)
	}
	sort.Slice(years, func(i, j int) bool { return years[i].Year < years[j].Year })

	result := evaluateGrowth(years)
	result["code"] = in.Code
	result["analysis_period"] = fmt.Sprintf("%d-%d", years[0].Year, years[len(years)-1].Year)
	result["quarter"] = period
	return toJSON(result), nil
}

func collectMetrics(year int, stmt map[string]any) yearMetrics {
	m := yearMetrics{
		Year:            year,
		PeriodType:      stringField(stmt, "TypeOfCurrentPeriod"),
		NetSales:        fptr(stmt["NetSales"]),
		OperatingProfit: fptr(stmt["OperatingProfit"]),
		Profit:          fptr(stmt["Profit"]),
		TotalAssets:     fptr(stmt["TotalAssets"]),
		Equity:          fptr(stmt["Equity"]),
		EPS:             fptr(stmt["EarningsPerShare"]),
	}
	if m.Profit != nil && m.Equity != nil && *m.Equity > 0 {
		roe := *m.Profit / *m.Equity * 100
		m.ROE = &roe
	}
	if m.OperatingProfit != nil && m.NetSales != nil && *m.NetSales > 0 {
		margin := *m.OperatingProfit / *m.NetSales * 100
		m.OperatingMargin = &margin
	}
	return m
}

func fptr(v any) *float64 {
	f, ok := asFloat(v)
	if !ok {
		return nil
	}
	return &f
}

func evaluateGrowth(years []yearMetrics) map[string]any {
	growthMetrics := map[string]any{}

	// CAGR over the full span, per metric with positive endpoints.
	if len(years) >= 2 {
		first, last := years[0], years[len(years)-1]
		span := last.Year - first.Year
		if span > 0 {
			for _, name := range []string{"net_sales", "profit", "eps"} {
				fv, lv := first.metric(name), last.metric(name)
				if fv != nil && lv != nil && *fv > 0 && *lv > 0 {
					cagr := (math.Pow(*lv / *fv, 1/float64(span)) - 1) * 100
					growthMetrics[name+"_cagr"] = round2(cagr)
				}
			}
		}

		// Latest-year growth, with a duplicate-data check against the
		// prior year (forecast rows sometimes repeat actuals verbatim).
		latest, previous := years[len(years)-1], years[len(years)-2]
		duplicate := true
		for _, name := range []string{"net_sales", "profit"} {
			cv, pv := latest.metric(name), previous.metric(name)
			if cv == nil || pv == nil || *cv != *pv {
				duplicate = false
			}
			if cv != nil && pv != nil && *pv != 0 {
				growthMetrics["latest_"+name+"_growth"] = round2((*cv - *pv) / *pv * 100)
			}
		}
		if duplicate {
			growthMetrics["latest_data_warning"] = fmt.Sprintf(
				"warning: %d figures are identical to %d, possibly duplicated or forecast data",
				latest.Year, previous.Year)
		}
	} else {
		growthMetrics["data_note"] = "only one year of data, growth rates unavailable"
	}

	yearlyGrowth := yearOverYearGrowth(years)
	trend := map[string]any{}
	analyzeSeriesTrend(trend, "revenue", values(years, "net_sales"))
	analyzeSeriesTrend(trend, "profit", values(years, "profit"))
	analyzeROETrend(trend, years)
	consistency := analyzeConsistency(trend, years)
	quality := analyzeQuality(years)

	score, rating := scoreGrowth(growthMetrics, trend, quality)

	outlook := map[string]string{}
	revenueCAGR, _ := growthMetrics["net_sales_cagr"].(float64)
	switch {
	case revenueCAGR > 10 && consistency == "high consistency":
		outlook["growth_sustainability"] = "high"
	case revenueCAGR > 5:
		outlook["growth_sustainability"] = "moderate"
	default:
		outlook["growth_sustainability"] = "low"
	}
	if trend["revenue_trend"] == "stable acceleration" && quality["profitability_trend"] == "improving" {
		outlook["acceleration_potential"] = "high"
	} else {
		outlook["acceleration_potential"] = "limited"
	}

	var timing string
	switch {
	case score >= 70 && trend["revenue_trend"] == "stable acceleration":
		timing = "excellent entry point"
	case score >= 60:
		timing = "good entry point"
	case score >= 40:
		timing = "consider carefully"
	default:
		timing = "wait"
	}

	var catalysts []string
	profitCAGR, _ := growthMetrics["profit_cagr"].(float64)
	if revenueCAGR > 15 {
		catalysts = append(catalysts, "high revenue growth rate")
	}
	if profitCAGR > revenueCAGR {
		catalysts = append(catalysts, "profit growing faster than revenue")
	}
	if quality["profitability_trend"] == "improving" {
		catalysts = append(catalysts, "sustained margin improvement")
	}

	var risks []string
	if consistency == "very unstable" || consistency == "somewhat unstable" {
		risks = append(risks, "unstable growth pattern")
	}
	if trend["profit_trend"] == "stable contraction" || trend["profit_trend"] == "unstable contraction" {
		risks = append(risks, "profit contraction trend")
	}
	if quality["profitability_trend"] == "deteriorating" {
		risks = append(risks, "deteriorating profitability")
	}

	return map[string]any{
		"growth_metrics":      growthMetrics,
		"yearly_growth_rates": yearlyGrowth,
		"growth_trend":        trend,
		"growth_quality":      quality,
		"future_outlook":      outlook,
		"growth_score": map[string]any{
			"total_score":   score,
			"max_score":     100,
			"growth_rating": rating,
		},
		"investment_timing": timing,
		"growth_catalysts":  catalysts,
		"growth_risks":      risks,
		"yearly_data":       years,
	}
}

func values(years []yearMetrics, metric string) []float64 {
	var out []float64
	for i := range years {
		if v := years[i].metric(metric); v != nil {
			out = append(out, *v)
		}
	}
	return out
}

func yearOverYearGrowth(years []yearMetrics) []map[string]any {
	var out []map[string]any
	for i := 1; i < len(years); i++ {
		cur, prev := years[i], years[i-1]
		entry := map[string]any{
			"year":          cur.Year,
			"previous_year": prev.Year,
		}
		duplicate := true
		hasAny := false
		for _, name := range []string{"net_sales", "profit", "eps"} {
			cv, pv := cur.metric(name), prev.metric(name)
			if cv == nil || pv == nil || *cv != *pv {
				duplicate = false
			}
			if cv != nil && pv != nil && *pv != 0 {
				entry[name+"_growth_rate"] = round2((*cv - *pv) / *pv * 100)
				hasAny = true
				if *cv == *pv {
					entry[name+"_growth_note"] = fmt.Sprintf("note: %d and %d values are identical, possibly duplicated data", cur.Year, prev.Year)
				}
			}
		}
		if cur.ROE != nil && prev.ROE != nil && *prev.ROE != 0 {
			entry["roe_growth_rate"] = round2((*cur.ROE - *prev.ROE) / *prev.ROE * 100)
		}
		if duplicate {
			entry["data_warning"] = fmt.Sprintf("warning: %d figures are identical to %d, possibly duplicated or forecast data", cur.Year, prev.Year)
		}
		if hasAny {
			out = append(out, entry)
		}
	}
	return out
}

// analyzeSeriesTrend classifies a value series as accelerating, slowing
// or steady, qualified by growth-rate volatility (standard deviation).
func analyzeSeriesTrend(trend map[string]any, label string, vals []float64) {
	if len(vals) < 2 {
		return
	}
	var rates []float64
	for i := 1; i < len(vals); i++ {
		if vals[i-1] > 0 {
			rates = append(rates, (vals[i]/vals[i-1]-1)*100)
		}
	}
	if len(rates) == 0 {
		return
	}
	avg := mean(rates)

	if len(rates) < 3 {
		if avg > 0 {
			trend[label+"_trend"] = "steady growth"
		} else {
			trend[label+"_trend"] = "declining"
		}
		trend[label+"_analysis"] = map[string]any{
			"average_growth_rate": round2(avg),
			"yearly_growth_rates": roundAll(rates),
		}
		return
	}

	recent := mean(rates[len(rates)-2:])
	early := mean(rates[:2])
	std := stddev(rates, avg)

	// Profit series are inherently noisier, so the thresholds widen.
	shift, tight, mid := 2.0, 5.0, 8.0
	if label == "profit" {
		shift, tight, mid = 3.0, 8.0, 12.0
	}

	var verdict string
	switch {
	case recent > early+shift:
		if std < tight {
			verdict = "stable acceleration"
		} else {
			verdict = "unstable acceleration"
		}
	case recent < early-shift:
		if std < tight {
			verdict = "stable contraction"
		} else {
			verdict = "unstable contraction"
		}
	default:
		switch {
		case std < tight*0.6:
			verdict = "steady growth"
		case std < mid:
			verdict = "somewhat unstable"
		default:
			verdict = "very unstable"
		}
	}
	trend[label+"_trend"] = verdict
	trend[label+"_analysis"] = map[string]any{
		"average_growth_rate": round2(avg),
		"recent_average":      round2(recent),
		"early_average":       round2(early),
		"volatility":          round2(std),
		"yearly_growth_rates": roundAll(rates),
	}
}

func analyzeROETrend(trend map[string]any, years []yearMetrics) {
	var roes []float64
	for i := range years {
		if years[i].ROE != nil {
			roes = append(roes, *years[i].ROE)
		}
	}
	if len(roes) < 2 {
		return
	}
	if len(roes) == 2 {
		if roes[1] > roes[0] {
			trend["roe_trend"] = "improving"
		} else {
			trend["roe_trend"] = "deteriorating"
		}
		return
	}

	var changes []float64
	for i := 1; i < len(roes); i++ {
		changes = append(changes, roes[i]-roes[i-1])
	}
	avg := mean(changes)
	switch {
	case avg > 1:
		trend["roe_trend"] = "sustained ROE improvement"
	case avg > 0:
		trend["roe_trend"] = "gradual ROE improvement"
	case avg > -1:
		trend["roe_trend"] = "flat ROE"
	default:
		trend["roe_trend"] = "deteriorating ROE"
	}
	trend["roe_analysis"] = map[string]any{
		"average_change": round2(avg),
		"roe_values":     roundAll(roes),
	}
}

// analyzeConsistency counts growth vs decline periods per metric (2%
// dead band) and builds a weighted overall consistency verdict, revenue
// weighted 60% and profit 40%.
func analyzeConsistency(trend map[string]any, years []yearMetrics) string {
	detail := map[string]any{}
	growthRatios := map[string]float64{}

	for _, name := range []string{"net_sales", "profit", "eps"} {
		vals := values(years, name)
		if len(vals) < 3 {
			continue
		}
		var grown, declined, flat int
		for i := 1; i < len(vals); i++ {
			if vals[i-1] <= 0 {
				continue
			}
			change := (vals[i] - vals[i-1]) / vals[i-1]
			switch {
			case change > 0.02:
				grown++
			case change < -0.02:
				declined++
			default:
				flat++
			}
		}
		total := len(vals) - 1
		growthRatio := float64(grown) / float64(total)
		declineRatio := float64(declined) / float64(total)
		growthRatios[name] = growthRatio

		var level string
		switch {
		case growthRatio >= 0.8:
			level = "very consistent growth"
		case growthRatio >= 0.6:
			level = "mostly consistent growth"
		case growthRatio >= 0.4:
			level = "somewhat unstable growth"
		case declineRatio >= 0.5:
			level = "declining"
		default:
			level = "very unstable"
		}
		detail[name+"_consistency"] = map[string]any{
			"level":         level,
			"growth_ratio":  round2(growthRatio),
			"decline_ratio": round2(declineRatio),
			"periods": map[string]int{
				"growth": grown, "decline": declined, "flat": flat, "total": total,
			},
		}
	}

	var verdict string
	if len(detail) > 0 {
		overall := growthRatios["net_sales"]*0.6 + growthRatios["profit"]*0.4
		switch {
		case overall >= 0.75:
			verdict = "very high consistency"
		case overall >= 0.6:
			verdict = "high consistency"
		case overall >= 0.4:
			verdict = "moderate consistency"
		case overall >= 0.25:
			verdict = "somewhat unstable"
		default:
			verdict = "very unstable"
		}
		trend["consistency_analysis"] = detail
		trend["overall_consistency_score"] = round2(overall)
	} else {
		// Too few data points for the full analysis, fall back to a raw
		// count of growth periods over revenue and profit.
		var grown, total int
		for _, name := range []string{"net_sales", "profit"} {
			vals := values(years, name)
			for i := 1; i < len(vals); i++ {
				total++
				if vals[i] > vals[i-1] {
					grown++
				}
			}
		}
		if total > 0 {
			rate := float64(grown) / float64(total)
			switch {
			case rate >= 0.8:
				verdict = "high consistency"
			case rate >= 0.6:
				verdict = "moderate consistency"
			default:
				verdict = "unstable"
			}
		}
	}
	if verdict != "" {
		trend["consistency"] = verdict
	}
	return verdict
}

func analyzeQuality(years []yearMetrics) map[string]string {
	quality := map[string]string{}

	var margins []float64
	for i := range years {
		if years[i].OperatingMargin != nil {
			margins = append(margins, *years[i].OperatingMargin)
		}
	}
	if len(margins) >= 2 {
		if margins[len(margins)-1] > margins[0] {
			quality["profitability_trend"] = "improving"
		} else {
			quality["profitability_trend"] = "deteriorating"
		}
	}

	var roas []float64
	for i := range years {
		m := years[i]
		if m.Profit != nil && m.TotalAssets != nil && *m.TotalAssets > 0 {
			roas = append(roas, *m.Profit / *m.TotalAssets*100)
		}
	}
	if len(roas) >= 2 {
		if roas[len(roas)-1] > roas[0] {
			quality["efficiency_trend"] = "improving"
		} else {
			quality["efficiency_trend"] = "deteriorating"
		}
	}
	return quality
}

// scoreGrowth computes the 100-point growth score: CAGR up to 40,
// consistency up to 20, quality improvement up to 20, acceleration up
// to 20.
func scoreGrowth(metrics map[string]any, trend map[string]any, quality map[string]string) (int, string) {
	score := 0

	revenueCAGR, _ := metrics["net_sales_cagr"].(float64)
	profitCAGR, _ := metrics["profit_cagr"].(float64)
	switch {
	case revenueCAGR > 15:
		score += 20
	case revenueCAGR > 10:
		score += 15
	case revenueCAGR > 5:
		score += 10
	}
	switch {
	case profitCAGR > 20:
		score += 20
	case profitCAGR > 15:
		score += 15
	case profitCAGR > 10:
		score += 10
	}

	switch trend["consistency"] {
	case "very high consistency", "high consistency":
		score += 20
	case "moderate consistency":
		score += 12
	}

	if quality["profitability_trend"] == "improving" {
		score += 10
	}
	if quality["efficiency_trend"] == "improving" {
		score += 10
	}

	if trend["revenue_trend"] == "stable acceleration" || trend["revenue_trend"] == "unstable acceleration" {
		score += 10
	}
	if trend["profit_trend"] == "stable acceleration" || trend["profit_trend"] == "unstable acceleration" {
		score += 10
	}

	var rating string
	switch {
	case score >= 80:
		rating = "high growth"
	case score >= 60:
		rating = "growing"
	case score >= 40:
		rating = "stable growth"
	default:
		rating = "slowing"
	}
	return score, rating
}

func mean(vals []float64) float64 {
	var sum float64
	for _, v := range vals {
		sum += v
	}
	return sum / float64(len(vals))
}

func stddev(vals []float64, avg float64) float64 {
	var variance float64
	for _, v := range vals {
		variance += (v - avg) * (v - avg)
	}
	return math.Sqrt(variance / float64(len(vals)))
}

func roundAll(vals []float64) []float64 {
	out := make([]float64, len(vals))
	for i, v := range vals {
		out[i] = round2(v)
	}
	return out
}
