package pricing_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/signalnine/gauntlet/internal/pricing"
	"github.com/signalnine/gauntlet/internal/result"
)

func abs(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}

func TestLoadPricing(t *testing.T) {
	dir := t.TempDir()
	content := `anthropic:
  claude-opus-4-6:
    input: 0.015
    output: 0.075
openai:
  codex-max:
    input: 0.01
    output: 0.03
`
	path := filepath.Join(dir, "pricing.yaml")
	os.WriteFile(path, []byte(content), 0o644)

	table, err := pricing.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	cost := table.Cost("anthropic", "claude-opus-4-6", 1000, 500)
	want := 0.0525
	if abs(cost-want) > 0.001 {
		t.Errorf("got %f, want %f", cost, want)
	}
}

func TestCostUnknownModel(t *testing.T) {
	table := &pricing.Table{}
	cost := table.Cost("unknown", "unknown", 1000, 500)
	if cost != 0 {
		t.Errorf("expected 0 for unknown model, got %f", cost)
	}
}

func TestUsageCost(t *testing.T) {
	table := &pricing.Table{Providers: map[string]map[string]pricing.ModelPricing{
		"anthropic": {
			"claude-3-7-sonnet-latest": {Input: 0.003, Output: 0.015, CacheRead: 0.0003},
		},
	}}
	u := result.TokenUsage{
		InputTokens:              2000,
		OutputTokens:             1000,
		CacheReadInputTokens:     10000,
		CacheCreationInputTokens: 1000,
	}
	// 2*0.003 + 1*0.015 + 10*0.0003 + 1*0.003 (cache write falls back to input)
	want := 0.006 + 0.015 + 0.003 + 0.003
	if got := table.UsageCost("anthropic", "claude-3-7-sonnet-latest", u); abs(got-want) > 1e-9 {
		t.Errorf("got %f, want %f", got, want)
	}
	if !table.Known("anthropic", "claude-3-7-sonnet-latest") || table.Known("openai", "gpt-4o") {
		t.Error("Known returned the wrong answer")
	}

	var nilTable *pricing.Table
	if nilTable.UsageCost("anthropic", "x", u) != 0 {
		t.Error("nil table should price everything at zero")
	}
}
