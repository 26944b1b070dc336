package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/signalnine/gauntlet/internal/example"
	"github.com/signalnine/gauntlet/internal/judge"
	"github.com/signalnine/gauntlet/internal/result"
	"github.com/signalnine/gauntlet/internal/runner"
	"github.com/spf13/cobra"
)

var (
	flagRejudgeRounds      int
	flagRejudgeConcurrency int
	flagJudgeModel         string
)

func newRejudgeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rejudge [run-dir]",
		Short: "Run more judge rounds over a stored run",
		Long: "Judge the stored output of every instance in a run directory again. New rounds " +
			"are numbered after the existing ones; failed rounds are reported and skipped.",
		Args: cobra.MaximumNArgs(1),
		RunE: runRejudge,
	}
	cmd.Flags().IntVar(&flagRejudgeRounds, "rounds", 0, "judge rounds per instance (default from config)")
	cmd.Flags().StringVar(&flagJudgeModel, "judge-model", "", "judge model id (default from config or the stored run)")
	cmd.Flags().IntVar(&flagRejudgeConcurrency, "concurrency", 0, "max instances judged at once (default from config)")
	return cmd
}

func runRejudge(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	loadSecrets(cfg)

	runDir, err := resolveRunDir(cfg.Paths.Runs, args)
	if err != nil {
		return err
	}
	rounds := cfg.Defaults.JudgeRounds()
	if cmd.Flags().Changed("rounds") {
		rounds = flagRejudgeRounds
	}
	if rounds < 1 {
		return fmt.Errorf("--rounds must be at least 1")
	}
	concurrency := cfg.Defaults.Concurrency
	if cmd.Flags().Changed("concurrency") {
		concurrency = flagRejudgeConcurrency
	}
	if concurrency < 1 {
		return fmt.Errorf("--concurrency must be at least 1")
	}

	ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt)
	defer stop()

	info, err := result.ReadRunInfo(runDir)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return err
		}
		slog.Warn("run has no run info", "run", runDir)
		info = &result.RunInfo{}
	}

	instances, err := storedInstances(cfg.Paths.Examples, runDir, cfg.Paths.Worktrees)
	if err != nil {
		return err
	}
	if len(instances) == 0 {
		fmt.Println("No stored instances to judge.")
		return nil
	}

	client := newProviderClient(cfg)
	judgeModel := firstNonEmpty(flagJudgeModel, cfg.Provider.JudgeModel, info.JudgeModel, info.Model)
	if judgeModel == "" {
		return fmt.Errorf("no judge model configured")
	}
	if judgeModel, err = client.ResolveModel(ctx, judgeModel); err != nil {
		return fmt.Errorf("resolving judge model: %w", err)
	}
	client.UsageLog = filepath.Join(runDir, result.JudgeUsageFile)

	tel, closeTelemetry := newTelemetry(cfg, runDir)
	defer closeTelemetry()

	sched := &runner.Scheduler{
		Judge:       &judge.LLM{Client: client, Model: judgeModel},
		JudgeRounds: rounds,
		Telemetry:   tel,
		Model:       runner.Model{ID: info.Model, Provider: info.Provider},
		CommitID:    info.CommitID,
		Out:         os.Stdout,
	}

	var failed int
	outcomes := make([][]runner.RoundOutcome, len(instances))
	jobs := make([]runner.Job, len(instances))
	for i, inst := range instances {
		jobs[i] = func(ctx context.Context) error {
			out, err := result.ReadRunOutput(inst.OutputDir)
			if err != nil {
				fmt.Printf("%sNo stored run output, skipping\n", inst.LogPrefix())
				return nil
			}
			existing, err := result.ReadJudgeOutputs(inst.OutputDir)
			if err != nil {
				return fmt.Errorf("reading judge outputs of %s: %w", inst.Name, err)
			}
			fmt.Printf("%sJudging (%d rounds)\n", inst.LogPrefix(), rounds)
			outcomes[i] = sched.Rejudge(ctx, inst, out, nextRound(existing))
			return nil
		}
	}
	for i, err := range runner.RunPool(ctx, concurrency, jobs) {
		if err != nil {
			fmt.Printf("%sFAILED %v\n", instances[i].LogPrefix(), err)
		}
	}

	for i, inst := range instances {
		for _, o := range outcomes[i] {
			if o.Err != nil {
				failed++
				continue
			}
			fmt.Printf("%sRound %d: diff %d%s\n", inst.LogPrefix(), o.Output.Round+1, o.Output.Diff.Score, threadNote(o.Output))
		}
	}

	if tel != nil {
		flushCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		tel.Flush(flushCtx)
		cancel()
	}
	if failed > 0 {
		fmt.Printf("\n%d judge rounds failed\n", failed)
	}
	return nil
}

// storedInstances rebuilds the instances whose output directories exist in runDir.
func storedInstances(examplesDir, runDir, worktreesDir string) ([]*example.Instance, error) {
	dirs, err := example.List(examplesDir)
	if err != nil {
		return nil, err
	}
	var defs []*example.Definition
	for _, dir := range dirs {
		def, err := example.Load(dir)
		if err != nil {
			slog.Warn("skipping invalid example", "example", filepath.Base(dir), "error", err)
			continue
		}
		defs = append(defs, def)
	}

	outDirs, err := result.InstanceDirs(runDir)
	if err != nil {
		return nil, err
	}
	names := make([]string, len(outDirs))
	for i, d := range outDirs {
		names[i] = filepath.Base(d)
	}
	instances, missing := example.Restore(defs, names, example.Layout{RunDir: runDir, WorktreesDir: worktreesDir})
	for _, name := range missing {
		fmt.Printf("Skipping %s: no matching example\n", name)
	}
	return instances, nil
}

// nextRound is the first round index after the stored ones.
func nextRound(existing []*result.JudgeOutput) int {
	next := 0
	for _, jo := range existing {
		next = max(next, jo.Round+1)
	}
	return next
}

func threadNote(jo *result.JudgeOutput) string {
	if jo.Thread == nil {
		return ""
	}
	return fmt.Sprintf(", thread %d", jo.Thread.Score)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
