package tools

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/mfujita/kabuto/internal/config"
	"github.com/mfujita/kabuto/internal/jquants"
)

func TestResolveFailsWithoutExternalTools(t *testing.T) {
	cfg := &config.Config{}

	if _, err := Resolve(cfg, nil); err == nil {
		t.Fatal("expected error for empty tool set")
	}
}

func TestResolveSearchOnly(t *testing.T) {
	cfg := &config.Config{Search: config.SearchConfig{Provider: "tavily", APIKey: "tvly-test"}}

	set, err := Resolve(cfg, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []string{"think_tool", "research_complete", "web_search"}
	if got := names(set); !equal(got, want) {
		t.Errorf("tool set %v, want %v", got, want)
	}
}

func TestResolveFullSet(t *testing.T) {
	cfg := &config.Config{
		Search:  config.SearchConfig{Provider: "tavily", APIKey: "tvly-test"},
		JQuants: config.JQuantsConfig{BaseURL: "http://127.0.0.1:0", RefreshToken: "r"},
	}
	api := jquants.NewClient(cfg.JQuants, jquants.NewIntervalLimiter(0))

	set, err := Resolve(cfg, api)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []string{
		"think_tool", "research_complete", "web_search",
		"get_financial_statements", "get_recent_stock_price",
		"analyze_stock_valuation", "analyze_growth_potential",
	}
	if got := names(set); !equal(got, want) {
		t.Errorf("tool set %v, want %v", got, want)
	}

	defs := Defs(set)
	if len(defs) != len(set) {
		t.Fatalf("expected %d defs, got %d", len(set), len(defs))
	}
	for i, d := range defs {
		if d.Name != set[i].Name() {
			t.Errorf("def %d name %q does not match tool %q", i, d.Name, set[i].Name())
		}
		var schema map[string]any
		if err := json.Unmarshal(d.Parameters, &schema); err != nil {
			t.Errorf("tool %s schema is not valid json: %v", d.Name, err)
		}
	}

	if ByName(set, "web_search") == nil {
		t.Error("ByName failed to find web_search")
	}
	if ByName(set, "nope") != nil {
		t.Error("ByName returned a tool for an unknown name")
	}
}

func TestThinkToolEchoesReflection(t *testing.T) {
	out, err := ThinkTool{}.Invoke(context.Background(), json.RawMessage(`{"reflection": "I should check revenue first"}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "Reflection recorded: I should check revenue first" {
		t.Errorf("unexpected output %q", out)
	}
}

func TestThinkToolRejectsBadArguments(t *testing.T) {
	if _, err := (ThinkTool{}).Invoke(context.Background(), json.RawMessage(`not json`)); err == nil {
		t.Fatal("expected error for invalid arguments")
	}
}

func TestResearchCompleteTool(t *testing.T) {
	out, err := ResearchCompleteTool{}.Invoke(context.Background(), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out, "complete") {
		t.Errorf("unexpected output %q", out)
	}
}

func names(set []Tool) []string {
	out := make([]string, len(set))
	for i, tool := range set {
		out[i] = tool.Name()
	}
	return out
}

func equal(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
