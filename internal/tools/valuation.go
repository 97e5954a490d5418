package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mfujita/kabuto/internal/jquants"
)

const valuationDescription = "Comprehensive valuation analysis for a listed Japanese company: PER, PBR, ROE, ROA, margins, equity ratio, a 100-point investment attractiveness score, risk factors and a recommendation. Optionally scoped to a quarter (1Q, 2Q, 3Q, FY, Annual) and fiscal year."

// ValuationTool judges how attractively a stock is priced relative to
// its latest (or requested) financial statement.
type ValuationTool struct {
	api *jquants.Client
	now func() time.Time
}

func NewValuationTool(api *jquants.Client) *ValuationTool {
	return &ValuationTool{api: api, now: time.Now}
}

func (t *ValuationTool) Name() string        { return "analyze_stock_valuation" }
func (t *ValuationTool) Description() string { return valuationDescription }

func (t *ValuationTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"code": {"type": "string", "description": "4-digit company code"},
			"quarter": {"type": "string", "description": "Reporting period: 1Q, 2Q, 3Q, FY or Annual"},
			"year": {"type": "integer", "description": "Fiscal year, e.g. 2025"}
		},
		"required": ["code"]
	}`)
}

func (t *ValuationTool) Invoke(ctx context.Context, args json.RawMessage) (string, error) {
	var in struct {
		Code    string `json:"code"`
		Quarter string `json:"quarter"`
		Year    int    `json:"year"`
	}
	if err := json.Unmarshal(args, &in); err != nil {
		return "", fmt.Errorf("analyze_stock_valuation: invalid arguments: %w", err)
	}
	if err := validateCode(in.Code); err != nil {
		return "", err
	}

	period := NormalizePeriod(in.Quarter)

	data, err := t.api.Statements(ctx, in.Code, in.Year)
	if err != nil {
		return "", err
	}
	stmt := selectStatement(statementList(data), period, in.Year)
	if stmt == nil {
		return "", fmt.Errorf("no financial statement found for %s (quarter=%q year=%d)", in.Code, in.Quarter, in.Year)
	}

	price, ok := periodEndPrice(ctx, t.api, stmt, in.Code)
	if !ok {
		// No period-end quote, use the most recent close instead.
		end := t.now()
		start := end.AddDate(0, 0, -10)
		quotes, err := t.api.DailyQuotes(ctx, in.Code, start.Format("2006-01-02"), end.Format("2006-01-02"))
		if err != nil {
			return "", err
		}
		price, ok = latestClose(quotes)
	}
	if !ok {
		return "", fmt.Errorf("no stock price data available for %s", in.Code)
	}

	result := evaluateValuation(stmt, price, period != "")
	result["code"] = in.Code
	result["analysis_date"] = t.now().Format("2006-01-02")
	result["period"] = fmt.Sprintf("%s - %s",
		stringField(stmt, "CurrentPeriodStartDate"), stringField(stmt, "CurrentPeriodEndDate"))
	return toJSON(result), nil
}

// evaluateValuation computes the fundamental ratios, assessments, score,
// risks and recommendation from one statement and a reference price.
func evaluateValuation(stmt map[string]any, price float64, quarterScoped bool) map[string]any {
	netSales, hasSales := asFloat(stmt["NetSales"])
	operatingProfit, hasOp := asFloat(stmt["OperatingProfit"])
	profit, hasProfit := asFloat(stmt["Profit"])
	totalAssets, hasAssets := asFloat(stmt["TotalAssets"])
	equity, hasEquity := asFloat(stmt["Equity"])
	eps, hasEPS := asFloat(stmt["EarningsPerShare"])
	bps, hasBPS := asFloat(stmt["BookValuePerShare"])

	ratios := map[string]float64{}

	if hasEPS && eps > 0 {
		ratios["per"] = round2(price / eps)
	}
	if hasBPS && bps > 0 {
		ratios["pbr"] = round2(price / bps)
	} else if hasEquity && hasEPS && hasProfit && profit != 0 {
		// Derive BPS from equity and share count implied by profit/EPS.
		shares := profit / eps
		ratios["pbr"] = round2(price / (equity / shares))
	}
	if hasProfit && hasEquity && equity > 0 {
		roe := profit / equity * 100
		ratios["roe_percentage"] = round2(roe)
		if quarterScoped {
			// Quarterly statements carry cumulative figures, annualize them.
			switch stringField(stmt, "TypeOfCurrentPeriod") {
			case "1Q":
				ratios["roe_percentage_annualized"] = round2(roe * 4)
			case "2Q":
				ratios["roe_percentage_annualized"] = round2(roe * 2)
			case "3Q":
				ratios["roe_percentage_annualized"] = round2(roe * 4 / 3)
			}
		}
	}
	if hasProfit && hasAssets && totalAssets > 0 {
		ratios["roa_percentage"] = round2(profit / totalAssets * 100)
	}
	if hasOp && hasSales && netSales > 0 {
		ratios["operating_margin_percentage"] = round2(operatingProfit / netSales * 100)
	}
	if hasProfit && hasSales && netSales > 0 {
		ratios["net_margin_percentage"] = round2(profit / netSales * 100)
	}
	if hasEquity && hasAssets && totalAssets > 0 {
		ratios["equity_ratio_percentage"] = round2(equity / totalAssets * 100)
	}

	assessment := map[string]string{}
	if per, ok := ratios["per"]; ok {
		switch {
		case per < 10:
			assessment["per_assessment"] = "undervalued"
		case per > 25:
			assessment["per_assessment"] = "overvalued"
		default:
			assessment["per_assessment"] = "fair"
		}
	}
	if pbr, ok := ratios["pbr"]; ok {
		switch {
		case pbr < 1:
			assessment["pbr_assessment"] = "undervalued"
		case pbr > 3:
			assessment["pbr_assessment"] = "overvalued"
		default:
			assessment["pbr_assessment"] = "fair"
		}
	}
	roeValue, hasROE := effectiveROE(ratios)
	if hasROE {
		switch {
		case roeValue > 15:
			assessment["roe_assessment"] = "excellent"
		case roeValue > 10:
			assessment["roe_assessment"] = "good"
		default:
			assessment["roe_assessment"] = "room to improve"
		}
	}

	undervalued, overvalued := 0, 0
	for _, v := range assessment {
		switch v {
		case "undervalued":
			undervalued++
		case "overvalued":
			overvalued++
		}
	}
	switch {
	case undervalued >= 2:
		assessment["overall_valuation"] = "undervalued"
	case overvalued >= 2:
		assessment["overall_valuation"] = "overvalued"
	default:
		assessment["overall_valuation"] = "fair"
	}

	score := scoreAttractiveness(ratios)

	var risks []string
	if ratios["per"] > 30 {
		risks = append(risks, "high PER: growth already priced in, downside risk")
	}
	if pbr, ok := ratios["pbr"]; ok && pbr < 0.8 {
		risks = append(risks, "very low PBR: market may expect deteriorating results")
	}
	if er, ok := ratios["equity_ratio_percentage"]; ok && er < 30 {
		risks = append(risks, "low equity ratio: weak financial stability")
	}
	if om, ok := ratios["operating_margin_percentage"]; ok && om < 5 {
		risks = append(risks, "low operating margin: weak profitability")
	}

	total := score["total_score"].(int)
	var recommendation string
	switch {
	case total >= 80:
		recommendation = "strongly recommended"
	case total >= 60:
		recommendation = "recommended"
	case total >= 40:
		recommendation = "neutral"
	default:
		recommendation = "not recommended"
	}

	var insights []string
	if per, ok := ratios["per"]; ok && per < 15 && hasROE && roeValue > 12 {
		insights = append(insights, "attractive combination of low valuation and high ROE")
	}
	if om, ok := ratios["operating_margin_percentage"]; ok && om > 15 {
		insights = append(insights, "high operating margin suggests a competitive moat")
	}
	if er, ok := ratios["equity_ratio_percentage"]; ok && er > 60 {
		insights = append(insights, "strong balance sheet, good downside resilience")
	}

	return map[string]any{
		"stock_price":               price,
		"fundamental_metrics":       ratios,
		"valuation_assessment":      assessment,
		"investment_score":          score,
		"risk_factors":              risks,
		"investment_recommendation": recommendation,
		"key_insights":              insights,
	}
}

func effectiveROE(ratios map[string]float64) (float64, bool) {
	if v, ok := ratios["roe_percentage_annualized"]; ok {
		return v, true
	}
	v, ok := ratios["roe_percentage"]
	return v, ok
}

// scoreAttractiveness computes the 100-point investment attractiveness
// score: PER up to 25, PBR up to 20, ROE up to 25, equity ratio up to 15,
// operating margin up to 15.
func scoreAttractiveness(ratios map[string]float64) map[string]any {
	score := 0
	details := map[string]any{}

	if per, ok := ratios["per"]; ok {
		var pts int
		switch {
		case per < 10:
			pts = 25
		case per < 15:
			pts = 20
		case per < 25:
			pts = 10
		}
		score += pts
		details["per_score"] = pts
	}
	if pbr, ok := ratios["pbr"]; ok {
		var pts int
		switch {
		case pbr < 1:
			pts = 20
		case pbr < 1.5:
			pts = 15
		case pbr < 3:
			pts = 8
		}
		score += pts
		details["pbr_score"] = pts
	}
	if roe, ok := effectiveROE(ratios); ok {
		var pts int
		switch {
		case roe > 20:
			pts = 25
		case roe > 15:
			pts = 20
		case roe > 10:
			pts = 12
		}
		score += pts
		details["roe_score"] = pts
	}
	if er, ok := ratios["equity_ratio_percentage"]; ok {
		pts := 5
		switch {
		case er > 50:
			pts = 15
		case er > 30:
			pts = 10
		}
		score += pts
		details["stability_score"] = pts
	}
	if om, ok := ratios["operating_margin_percentage"]; ok {
		pts := 5
		switch {
		case om > 15:
			pts = 15
		case om > 8:
			pts = 10
		}
		score += pts
		details["profitability_score"] = pts
	}

	var rating string
	switch {
	case score >= 80:
		rating = "very attractive"
	case score >= 60:
		rating = "attractive"
	case score >= 40:
		rating = "moderately attractive"
	default:
		rating = "unattractive"
	}

	return map[string]any{
		"total_score":    score,
		"max_score":      100,
		"overall_rating": rating,
		"score_details":  details,
	}
}
