package metrics

import "slices"

// Mean computes the arithmetic mean of values. ok is false for empty input.
func Mean(values []float64) (mean float64, ok bool) {
	if len(values) == 0 {
		return 0, false
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values)), true
}

// Median returns the middle value of values, averaging the two middle values
// for even lengths. ok is false for empty input.
func Median(values []float64) (median float64, ok bool) {
	if len(values) == 0 {
		return 0, false
	}
	sorted := slices.Clone(values)
	slices.Sort(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 0 {
		return (sorted[mid-1] + sorted[mid]) / 2, true
	}
	return sorted[mid], true
}

// Summary is the post-run fold over every instance outcome.
type Summary struct {
	ErrorCount   int
	DiffScores   []float64
	ThreadScores []float64
	Tools        ToolMetrics
	InputTokens  int
	OutputTokens int
}

func NewSummary() *Summary {
	return &Summary{Tools: NewToolMetrics()}
}

func (s *Summary) AverageDiffScore() (float64, bool) {
	return Mean(s.DiffScores)
}

func (s *Summary) AverageThreadScore() (float64, bool) {
	return Mean(s.ThreadScores)
}
