package report

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/signalnine/gauntlet/internal/metrics"
	"github.com/signalnine/gauntlet/internal/pricing"
	"github.com/signalnine/gauntlet/internal/provider"
	"github.com/signalnine/gauntlet/internal/result"
)

type InstanceSummary struct {
	Name              string   `json:"name"`
	Failed            bool     `json:"failed"`
	Rounds            int      `json:"rounds"`
	MeanDiffScore     *float64 `json:"mean_diff_score"`
	MedianDiffScore   *float64 `json:"median_diff_score"`
	MeanThreadScore   *float64 `json:"mean_thread_score"`
	DiagnosticsBefore int      `json:"diagnostics_before"`
	DiagnosticsAfter  int      `json:"diagnostics_after"`
	Tokens            int      `json:"tokens"`
	CostUSD           float64  `json:"cost_usd"`
}

type RunSummary struct {
	RunDir       string            `json:"run_dir"`
	Model        string            `json:"model,omitempty"`
	Instances    []InstanceSummary `json:"instances"`
	Failures     int               `json:"failures"`
	MeanDiff     *float64          `json:"mean_diff_score"`
	MeanThread   *float64          `json:"mean_thread_score"`
	JudgeCostUSD float64           `json:"judge_cost_usd"`
}

// Generate reads the instance directories of a stored run and writes a summary
// in the given format (table, markdown or json).
func Generate(runDir, format string, w io.Writer, pricingPath ...string) error {
	var table *pricing.Table
	if len(pricingPath) > 0 && pricingPath[0] != "" {
		t, err := pricing.Load(pricingPath[0])
		if err != nil {
			return err
		}
		table = t
	}

	summary, err := Summarize(runDir, table)
	if err != nil {
		return err
	}

	switch format {
	case "markdown":
		return writeMarkdown(summary, w)
	case "json":
		return writeJSON(summary, w)
	default:
		return writeTable(summary, w)
	}
}

// Summarize collects per-instance results of runDir. Instance directories
// without a run output count as failed runs.
func Summarize(runDir string, table *pricing.Table) (*RunSummary, error) {
	dirs, err := result.InstanceDirs(runDir)
	if err != nil {
		return nil, err
	}

	summary := &RunSummary{RunDir: runDir}
	info, err := result.ReadRunInfo(runDir)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("reading run info", "run", runDir, "err", err)
	}
	if info == nil {
		info = &result.RunInfo{}
	}
	summary.Model = info.Model

	var allDiff, allThread []float64
	for _, dir := range dirs {
		s := InstanceSummary{Name: filepath.Base(dir)}
		out, err := result.ReadRunOutput(dir)
		if err != nil {
			s.Failed = true
			summary.Failures++
			summary.Instances = append(summary.Instances, s)
			continue
		}
		judged, err := result.ReadJudgeOutputs(dir)
		if err != nil {
			slog.Warn("skipping unreadable judge outputs", "instance", s.Name, "err", err)
		}

		var diff, thread []float64
		for _, j := range judged {
			diff = append(diff, float64(j.Diff.Score))
			if j.Thread != nil {
				thread = append(thread, float64(j.Thread.Score))
			}
		}
		s.Rounds = len(judged)
		s.MeanDiffScore = optional(metrics.Mean(diff))
		s.MedianDiffScore = optional(metrics.Median(diff))
		s.MeanThreadScore = optional(metrics.Mean(thread))
		s.DiagnosticsBefore = out.DiagnosticsBefore
		s.DiagnosticsAfter = out.DiagnosticsAfter
		s.Tokens = out.TokenUsage.Total()
		s.CostUSD = table.UsageCost(info.Provider, info.Model, out.TokenUsage)

		allDiff = append(allDiff, diff...)
		allThread = append(allThread, thread...)
		summary.Instances = append(summary.Instances, s)
	}
	summary.MeanDiff = optional(metrics.Mean(allDiff))
	summary.MeanThread = optional(metrics.Mean(allThread))

	if records, err := provider.ParseUsageLogs(filepath.Join(runDir, result.JudgeUsageFile)); err == nil {
		for _, r := range records {
			summary.JudgeCostUSD += table.Cost(r.Provider, r.Model, r.InputTokens, r.OutputTokens)
		}
	}
	return summary, nil
}

func optional(v float64, ok bool) *float64 {
	if !ok {
		return nil
	}
	return &v
}

func formatScore(v *float64) string {
	if v == nil {
		return "N/A"
	}
	return fmt.Sprintf("%.2f", *v)
}

func status(s InstanceSummary) string {
	if s.Failed {
		return "failed"
	}
	return "ok"
}

func writeTable(summary *RunSummary, w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "INSTANCE\tSTATUS\tROUNDS\tDIFF\tMEDIAN DIFF\tTHREAD\tDIAGNOSTICS\tTOKENS\tCOST")
	fmt.Fprintln(tw, strings.Repeat("-", 100))
	for _, s := range summary.Instances {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\t%s\t%d -> %d\t%d\t$%.2f\n",
			s.Name, status(s), s.Rounds, formatScore(s.MeanDiffScore), formatScore(s.MedianDiffScore),
			formatScore(s.MeanThreadScore), s.DiagnosticsBefore, s.DiagnosticsAfter, s.Tokens, s.CostUSD)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(w, "\nfailed: %d  mean diff: %s  mean thread: %s  judge cost: $%.2f\n",
		summary.Failures, formatScore(summary.MeanDiff), formatScore(summary.MeanThread), summary.JudgeCostUSD)
	return nil
}

func writeMarkdown(summary *RunSummary, w io.Writer) error {
	fmt.Fprintln(w, "| Instance | Status | Rounds | Diff | Median Diff | Thread | Diagnostics | Tokens | Cost |")
	fmt.Fprintln(w, "|---|---|---|---|---|---|---|---|---|")
	for _, s := range summary.Instances {
		fmt.Fprintf(w, "| %s | %s | %d | %s | %s | %s | %d → %d | %d | $%.2f |\n",
			s.Name, status(s), s.Rounds, formatScore(s.MeanDiffScore), formatScore(s.MedianDiffScore),
			formatScore(s.MeanThreadScore), s.DiagnosticsBefore, s.DiagnosticsAfter, s.Tokens, s.CostUSD)
	}
	fmt.Fprintf(w, "\n**Failed:** %d · **Mean diff:** %s · **Mean thread:** %s · **Judge cost:** $%.2f\n",
		summary.Failures, formatScore(summary.MeanDiff), formatScore(summary.MeanThread), summary.JudgeCostUSD)
	return nil
}

func writeJSON(summary *RunSummary, w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(summary)
}
