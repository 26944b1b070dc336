package runner

import (
	"github.com/signalnine/gauntlet/internal/example"
	"github.com/signalnine/gauntlet/internal/metrics"
	"github.com/signalnine/gauntlet/internal/result"
	"github.com/signalnine/gauntlet/internal/telemetry"
)

// EvalRecord is the property set of an eval-completed event.
type EvalRecord struct {
	CohortID           string              `json:"cohort_id"`
	ExampleName        string              `json:"example_name"`
	Round              int                 `json:"round"`
	DiffScore          int                 `json:"diff_score"`
	DiffAnalysis       string              `json:"diff_analysis"`
	ThreadScore        *int                `json:"thread_score"`
	ThreadAnalysis     *string             `json:"thread_analysis"`
	ToolMetrics        metrics.ToolMetrics `json:"tool_metrics"`
	ResponseCount      int                 `json:"response_count"`
	TokenUsage         result.TokenUsage   `json:"token_usage"`
	Model              string              `json:"model"`
	ModelProvider      string              `json:"model_provider"`
	RepositoryURL      string              `json:"repository_url"`
	RepositoryRevision string              `json:"repository_revision"`
	DiagnosticsBefore  int                 `json:"diagnostics_before"`
	DiagnosticsAfter   int                 `json:"diagnostics_after"`
	CommitID           string              `json:"commit_id"`
}

func (s *Scheduler) newRecord(inst *example.Instance, out *result.RunOutput, jo *result.JudgeOutput) EvalRecord {
	rec := EvalRecord{
		CohortID:           inst.CohortID(),
		ExampleName:        inst.Name,
		Round:              jo.Round,
		DiffScore:          jo.Diff.Score,
		DiffAnalysis:       jo.Diff.Analysis,
		ToolMetrics:        out.ToolMetrics,
		ResponseCount:      out.ResponseCount,
		TokenUsage:         out.TokenUsage,
		Model:              s.Model.ID,
		ModelProvider:      s.Model.Provider,
		RepositoryURL:      inst.Base.URL,
		RepositoryRevision: inst.Base.Revision,
		DiagnosticsBefore:  out.DiagnosticsBefore,
		DiagnosticsAfter:   out.DiagnosticsAfter,
		CommitID:           s.CommitID,
	}
	if jo.Thread != nil {
		score, analysis := jo.Thread.Score, jo.Thread.Analysis
		rec.ThreadScore = &score
		rec.ThreadAnalysis = &analysis
	}
	return rec
}

// record emits the round's event. Sink errors are logged by the client and
// never fail the round.
func (s *Scheduler) record(inst *example.Instance, out *result.RunOutput, jo *result.JudgeOutput) {
	if s.Telemetry == nil {
		return
	}
	_ = s.Telemetry.Event(telemetry.EventEvalCompleted, s.newRecord(inst, out, jo))
}
