// Package report prints eval results: the live summary at the end of a run
// and summaries of stored run directories.
package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/mattn/go-runewidth"

	"github.com/signalnine/gauntlet/internal/metrics"
	"github.com/signalnine/gauntlet/internal/pricing"
	"github.com/signalnine/gauntlet/internal/runner"
)

const headerWidth = 40

// Options adds token cost estimates to the live summary.
type Options struct {
	Pricing  *pricing.Table
	Provider string
	Model    string
}

// Render prints every result in submission order followed by the summary.
func Render(w io.Writer, results []runner.Result, summary *metrics.Summary, opts Options) {
	printHeader(w, "EVAL RESULTS")

	nameWidth := 0
	for _, r := range results {
		nameWidth = max(nameWidth, r.Instance.NameWidth)
	}

	for _, r := range results {
		printHeader(w, r.Instance.Name)
		if r.Failed() {
			fmt.Fprintf(w, "FAILED %s%v\n", r.Instance.LogPrefix(), r.RunErr)
		} else {
			writeRounds(w, r.Rounds)
			fmt.Fprintln(w, r.Output.ToolMetrics.String())
		}
		fmt.Fprintf(w, "%s    > %s\n", strings.Repeat(" ", nameWidth), r.Instance.OutputDir)
	}

	writeSummary(w, summary, opts)
}

func writeRounds(w io.Writer, rounds []runner.RoundOutcome) {
	fmt.Fprintln(w, "┌───────┬──────┬────────┐")
	fmt.Fprintln(w, "│ Judge │ Diff │ Thread │")
	fmt.Fprintln(w, "├───────┼──────┼────────┤")
	for i, round := range rounds {
		diff, thread, note := "N/A", "N/A", ""
		if round.Err != nil {
			note = " " + round.Err.Error()
		} else {
			diff = fmt.Sprint(round.Output.Diff.Score)
			if round.Output.Thread != nil {
				thread = fmt.Sprint(round.Output.Thread.Score)
			}
		}
		fmt.Fprintf(w, "│%s│%s│%s│%s\n", center(fmt.Sprint(i+1), 7), center(diff, 6), center(thread, 8), note)
	}
	fmt.Fprintln(w, "└───────┴──────┴────────┘")
}

func writeSummary(w io.Writer, s *metrics.Summary, opts Options) {
	if s.ErrorCount > 0 {
		fmt.Fprintf(w, "\n%d examples failed to run!\n", s.ErrorCount)
	}

	diffAvg, haveDiff := s.AverageDiffScore()
	if haveDiff {
		fmt.Fprintf(w, "\nAverage code diff score: %.2f\n", diffAvg)
	}
	// Thread scores only exist for examples with thread criteria.
	if threadAvg, ok := s.AverageThreadScore(); ok && haveDiff {
		fmt.Fprintf(w, "\nAverage thread score: %.2f\n", threadAvg)
	}

	if s.InputTokens > 0 || s.OutputTokens > 0 {
		fmt.Fprintf(w, "\nAgent tokens: %d input, %d output\n", s.InputTokens, s.OutputTokens)
		if opts.Pricing.Known(opts.Provider, opts.Model) {
			cost := opts.Pricing.Cost(opts.Provider, opts.Model, s.InputTokens, s.OutputTokens)
			fmt.Fprintf(w, "Estimated agent cost: $%.2f\n", cost)
		}
	}

	printHeader(w, "CUMULATIVE TOOL METRICS")
	fmt.Fprintln(w, s.Tools.String())
}

func printHeader(w io.Writer, header string) {
	rule := strings.Repeat("=", headerWidth)
	fmt.Fprintf(w, "\n%s\n%s\n%s\n\n", rule, center(header, headerWidth), rule)
}

// center pads s with spaces to width display columns, extra space on the right.
func center(s string, width int) string {
	pad := width - runewidth.StringWidth(s)
	if pad <= 0 {
		return s
	}
	left := pad / 2
	return strings.Repeat(" ", left) + s + strings.Repeat(" ", pad-left)
}
