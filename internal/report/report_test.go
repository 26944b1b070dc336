package report_test

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fatih/color"
	"github.com/signalnine/gauntlet/internal/example"
	"github.com/signalnine/gauntlet/internal/metrics"
	"github.com/signalnine/gauntlet/internal/pricing"
	"github.com/signalnine/gauntlet/internal/report"
	"github.com/signalnine/gauntlet/internal/result"
	"github.com/signalnine/gauntlet/internal/runner"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	color.NoColor = true
}

func liveResults() []runner.Result {
	defs := []*example.Definition{{Name: "parser"}, {Name: "cli-flag"}}
	instances := example.Expand(defs, 1, example.Layout{RunDir: "/runs/2025-01-01_00-00-00"})

	tools := metrics.NewToolMetrics()
	tools.InsertUse("edit_file", true)
	tools.InsertUse("terminal", false)

	return []runner.Result{
		{
			Instance: instances[0],
			Output:   &result.RunOutput{ToolMetrics: tools, TokenUsage: result.TokenUsage{InputTokens: 1000, OutputTokens: 500}},
			Rounds: []runner.RoundOutcome{
				{Output: &result.JudgeOutput{Round: 0, Diff: result.JudgeResponse{Score: 8}, Thread: &result.JudgeResponse{Score: 6}}},
				{Err: errors.New("no score")},
				{Output: &result.JudgeOutput{Round: 2, Diff: result.JudgeResponse{Score: 10}}},
			},
		},
		{Instance: instances[1], RunErr: errors.New("agent exited with code 1")},
	}
}

func TestRender(t *testing.T) {
	results := liveResults()
	summary := runner.Aggregate(results)
	table := &pricing.Table{Providers: map[string]map[string]pricing.ModelPricing{
		"anthropic": {"claude-3-7-sonnet-latest": {Input: 0.003, Output: 0.015}},
	}}

	var buf bytes.Buffer
	report.Render(&buf, results, summary, report.Options{Pricing: table, Provider: "anthropic", Model: "claude-3-7-sonnet-latest"})
	out := buf.String()

	for _, want := range []string{
		"EVAL RESULTS",
		"│ Judge │ Diff │ Thread │",
		"│   1   │  8   │   6    │",
		"│   2   │ N/A  │  N/A   │ no score",
		"│   3   │  10  │  N/A   │",
		"FAILED cli-flag | agent exited with code 1",
		"> /runs/2025-01-01_00-00-00/parser",
		"1 examples failed to run!",
		"Average code diff score: 9.00",
		"Average thread score: 6.00",
		"Agent tokens: 1000 input, 500 output",
		"Estimated agent cost: $0.01",
		"CUMULATIVE TOOL METRICS",
	} {
		assert.Contains(t, out, want)
	}
	// submission order
	assert.Less(t, strings.Index(out, "parser"), strings.Index(out, "cli-flag"))

	var again bytes.Buffer
	report.Render(&again, results, runner.Aggregate(results), report.Options{Pricing: table, Provider: "anthropic", Model: "claude-3-7-sonnet-latest"})
	assert.Equal(t, out, again.String())
}

func TestRenderNoScores(t *testing.T) {
	results := liveResults()[1:]
	var buf bytes.Buffer
	report.Render(&buf, results, runner.Aggregate(results), report.Options{})
	out := buf.String()
	assert.NotContains(t, out, "Average code diff score")
	assert.NotContains(t, out, "Average thread score")
	assert.NotContains(t, out, "Estimated agent cost")
}

func writeStoredRun(t *testing.T) string {
	t.Helper()
	runDir := filepath.Join(t.TempDir(), "2025-01-01_00-00-00")
	require.NoError(t, os.MkdirAll(runDir, 0o755))
	require.NoError(t, result.WriteRunInfo(runDir, &result.RunInfo{Model: "claude-3-7-sonnet-latest", Provider: "anthropic"}))

	good := filepath.Join(runDir, "parser")
	require.NoError(t, result.WriteRunOutput(good, &result.RunOutput{
		ToolMetrics:       metrics.NewToolMetrics(),
		TokenUsage:        result.TokenUsage{InputTokens: 2000, OutputTokens: 1000},
		DiagnosticsBefore: 4,
		DiagnosticsAfter:  1,
	}))
	for round, score := range []int{6, 9, 8} {
		require.NoError(t, result.WriteJudgeOutput(good, &result.JudgeOutput{Round: round, Diff: result.JudgeResponse{Score: score}}))
	}

	// setup ran but the agent never produced output
	require.NoError(t, os.MkdirAll(filepath.Join(runDir, "cli-flag"), 0o755))

	usage := `{"provider":"anthropic","model":"claude-3-7-sonnet-latest","input_tokens":1000,"output_tokens":1000}` + "\n"
	require.NoError(t, os.WriteFile(filepath.Join(runDir, result.JudgeUsageFile), []byte(usage), 0o644))
	return runDir
}

func writePricing(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pricing.yaml")
	content := "anthropic:\n  claude-3-7-sonnet-latest:\n    input: 0.003\n    output: 0.015\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestGenerateTable(t *testing.T) {
	runDir := writeStoredRun(t)

	var buf bytes.Buffer
	require.NoError(t, report.Generate(runDir, "table", &buf, writePricing(t)))
	out := buf.String()
	assert.Contains(t, out, "parser")
	assert.Contains(t, out, "7.67")
	assert.Contains(t, out, "8.00")
	assert.Contains(t, out, "4 -> 1")
	assert.Contains(t, out, "cli-flag")
	assert.Contains(t, out, "failed: 1")
	assert.Contains(t, out, "judge cost: $0.02")
}

func TestGenerateMarkdown(t *testing.T) {
	runDir := writeStoredRun(t)

	var buf bytes.Buffer
	require.NoError(t, report.Generate(runDir, "markdown", &buf))
	out := buf.String()
	assert.True(t, strings.HasPrefix(out, "| Instance |"))
	assert.Contains(t, out, "| cli-flag | failed | 0 | N/A |")
}

func TestGenerateJSON(t *testing.T) {
	runDir := writeStoredRun(t)

	var buf bytes.Buffer
	require.NoError(t, report.Generate(runDir, "json", &buf, writePricing(t)))

	var summary report.RunSummary
	require.NoError(t, json.Unmarshal(buf.Bytes(), &summary))
	assert.Equal(t, "claude-3-7-sonnet-latest", summary.Model)
	assert.Equal(t, 1, summary.Failures)
	require.Len(t, summary.Instances, 2)

	// instance dirs are sorted by name
	assert.Equal(t, "cli-flag", summary.Instances[0].Name)
	parser := summary.Instances[1]
	assert.Equal(t, 3, parser.Rounds)
	assert.Nil(t, parser.MeanThreadScore)
	require.NotNil(t, parser.MedianDiffScore)
	assert.InDelta(t, 8.0, *parser.MedianDiffScore, 1e-9)
	assert.InDelta(t, 0.021, parser.CostUSD, 1e-9)
}
