package runner

import "github.com/signalnine/gauntlet/internal/metrics"

// Aggregate folds completed results into a summary. It runs after every unit
// has finished, so it needs no synchronization.
func Aggregate(results []Result) *metrics.Summary {
	s := metrics.NewSummary()
	for _, r := range results {
		if r.Failed() || r.Output == nil {
			s.ErrorCount++
			continue
		}
		s.Tools.Merge(r.Output.ToolMetrics)
		s.InputTokens += r.Output.TokenUsage.InputTokens
		s.OutputTokens += r.Output.TokenUsage.OutputTokens
		for _, round := range r.Rounds {
			if round.Err != nil || round.Output == nil {
				continue
			}
			s.DiffScores = append(s.DiffScores, float64(round.Output.Diff.Score))
			if round.Output.Thread != nil {
				s.ThreadScores = append(s.ThreadScores, float64(round.Output.Thread.Score))
			}
		}
	}
	return s
}
