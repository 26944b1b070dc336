package result

import "github.com/signalnine/gauntlet/internal/metrics"

type TokenUsage struct {
	InputTokens              int `json:"input_tokens"`
	OutputTokens             int `json:"output_tokens"`
	CacheCreationInputTokens int `json:"cache_creation_input_tokens,omitempty"`
	CacheReadInputTokens     int `json:"cache_read_input_tokens,omitempty"`
}

func (u TokenUsage) Total() int {
	return u.InputTokens + u.OutputTokens + u.CacheCreationInputTokens + u.CacheReadInputTokens
}

// RunOutput is what one agent run produced. It is written once and never mutated.
type RunOutput struct {
	ToolMetrics       metrics.ToolMetrics `json:"tool_metrics"`
	ResponseCount     int                 `json:"response_count"`
	TokenUsage        TokenUsage          `json:"token_usage"`
	DiagnosticsBefore int                 `json:"diagnostics_before"`
	DiagnosticsAfter  int                 `json:"diagnostics_after"`
	DurationS         int                 `json:"duration_s"`
	Diff              string              `json:"-"`
	Thread            string              `json:"-"`
}

type JudgeResponse struct {
	Analysis string `json:"analysis"`
	Score    int    `json:"score"`
}

// JudgeOutput is one judge round. Thread is nil when the example has no
// thread criteria.
type JudgeOutput struct {
	Round  int            `json:"round"`
	Diff   JudgeResponse  `json:"diff"`
	Thread *JudgeResponse `json:"thread,omitempty"`
}
