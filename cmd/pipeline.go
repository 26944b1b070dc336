package cmd

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/signalnine/gauntlet/internal/example"
	"github.com/signalnine/gauntlet/internal/metrics"
	"github.com/signalnine/gauntlet/internal/pricing"
	"github.com/signalnine/gauntlet/internal/repocache"
	"github.com/signalnine/gauntlet/internal/report"
	"github.com/signalnine/gauntlet/internal/result"
	"github.com/signalnine/gauntlet/internal/runner"
)

// evalPipeline is `gauntlet run` once configuration is resolved: select,
// prepare repositories, set up worktrees, schedule, aggregate and report.
type evalPipeline struct {
	ExamplesDir  string
	RunsDir      string
	WorktreesDir string
	Filters      []string
	Languages    []string
	Repetitions  int

	// Resolve runs after selection and before anything is written to disk.
	Resolve func(ctx context.Context) error
	// Open builds the scheduler for a freshly created run directory.
	Open func(runDir string, instances []*example.Instance) (*runner.Scheduler, error)

	Repos    *repocache.Cache
	Preparer runner.Preparer
	Pricing  *pricing.Table
	Out      io.Writer
}

// run returns a nil summary when no example matched.
func (p *evalPipeline) run(ctx context.Context) (*metrics.Summary, error) {
	sel, err := example.Select(p.ExamplesDir, p.Filters, p.Languages)
	if err != nil {
		return nil, err
	}
	for _, name := range sel.Skipped {
		fmt.Fprintf(p.Out, "Skipping %s: language not in %v\n", name, p.Languages)
	}
	if len(sel.Definitions) == 0 {
		fmt.Fprintln(p.Out, "No examples to run.")
		return nil, nil
	}

	if p.Resolve != nil {
		if err := p.Resolve(ctx); err != nil {
			return nil, err
		}
	}

	runDir, err := result.CreateRunDir(p.RunsDir, time.Now())
	if err != nil {
		return nil, err
	}
	instances := example.Expand(sel.Definitions, p.Repetitions, example.Layout{
		RunDir:       runDir,
		WorktreesDir: p.WorktreesDir,
	})
	sched, err := p.Open(runDir, instances)
	if err != nil {
		return nil, err
	}
	fmt.Fprintf(p.Out, "Logging to %s\n", runDir)

	if err := p.Repos.Prepare(ctx, repositoryURLs(instances)); err != nil {
		return nil, fmt.Errorf("preparing repositories: %w", err)
	}
	if err := runner.SetupAll(ctx, p.Preparer, instances, p.Out); err != nil {
		return nil, err
	}

	results := sched.Schedule(ctx, instances)
	summary := runner.Aggregate(results)

	fmt.Fprintln(p.Out)
	report.Render(p.Out, results, summary, report.Options{
		Pricing:  p.Pricing,
		Provider: sched.Model.Provider,
		Model:    sched.Model.ID,
	})
	return summary, nil
}
