// Package pricing estimates token costs from a per-provider price table.
package pricing

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/signalnine/gauntlet/internal/result"
)

// ModelPricing holds USD prices per 1K tokens. Cache prices default to the
// input price when unset.
type ModelPricing struct {
	Input      float64 `yaml:"input"`
	Output     float64 `yaml:"output"`
	CacheRead  float64 `yaml:"cache_read"`
	CacheWrite float64 `yaml:"cache_write"`
}

type Table struct {
	Providers map[string]map[string]ModelPricing
}

func Load(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading pricing file: %w", err)
	}
	var providers map[string]map[string]ModelPricing
	if err := yaml.Unmarshal(data, &providers); err != nil {
		return nil, fmt.Errorf("parsing pricing file: %w", err)
	}
	return &Table{Providers: providers}, nil
}

func (t *Table) lookup(provider, model string) (ModelPricing, bool) {
	if t == nil || t.Providers == nil {
		return ModelPricing{}, false
	}
	models, ok := t.Providers[provider]
	if !ok {
		return ModelPricing{}, false
	}
	p, ok := models[model]
	return p, ok
}

// Known reports whether the table has a price for model.
func (t *Table) Known(provider, model string) bool {
	_, ok := t.lookup(provider, model)
	return ok
}

// Cost calculates total cost for a request. Prices are per 1K tokens.
func (t *Table) Cost(provider, model string, inputTokens, outputTokens int) float64 {
	p, ok := t.lookup(provider, model)
	if !ok {
		return 0
	}
	return (float64(inputTokens)/1000.0)*p.Input + (float64(outputTokens)/1000.0)*p.Output
}

// UsageCost prices a run's token usage including prompt cache traffic.
func (t *Table) UsageCost(provider, model string, u result.TokenUsage) float64 {
	p, ok := t.lookup(provider, model)
	if !ok {
		return 0
	}
	cacheRead, cacheWrite := p.CacheRead, p.CacheWrite
	if cacheRead == 0 {
		cacheRead = p.Input
	}
	if cacheWrite == 0 {
		cacheWrite = p.Input
	}
	return t.Cost(provider, model, u.InputTokens, u.OutputTokens) +
		(float64(u.CacheReadInputTokens)/1000.0)*cacheRead +
		(float64(u.CacheCreationInputTokens)/1000.0)*cacheWrite
}
