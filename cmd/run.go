package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/signalnine/gauntlet/internal/agent"
	"github.com/signalnine/gauntlet/internal/config"
	"github.com/signalnine/gauntlet/internal/diagnostics"
	"github.com/signalnine/gauntlet/internal/docker"
	"github.com/signalnine/gauntlet/internal/example"
	"github.com/signalnine/gauntlet/internal/gitops"
	"github.com/signalnine/gauntlet/internal/judge"
	"github.com/signalnine/gauntlet/internal/pricing"
	"github.com/signalnine/gauntlet/internal/provider"
	"github.com/signalnine/gauntlet/internal/repocache"
	"github.com/signalnine/gauntlet/internal/result"
	"github.com/signalnine/gauntlet/internal/runner"
	"github.com/signalnine/gauntlet/internal/telemetry"
	"github.com/signalnine/gauntlet/internal/workspace"
	"github.com/spf13/cobra"
)

var (
	flagModel             string
	flagLanguages         []string
	flagRepetitions       int
	flagJudgeRepetitions  int
	flagConcurrency       int
	flagFailOnError       bool
	flagCleanupAggressive bool
)

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run [example-filter...]",
		Short: "Run the agent over matching examples and judge the results",
		Long: "Run the agent over every example whose name contains one of the filters " +
			"(all examples when none are given), judge each run and print a summary.",
		RunE: runEval,
	}
	cmd.Flags().StringVar(&flagModel, "model", config.DefaultModel, "agent model id")
	cmd.Flags().StringSliceVar(&flagLanguages, "languages", []string{"rs", "ts"}, "language tags to include")
	cmd.Flags().IntVar(&flagRepetitions, "repetitions", config.DefaultRepetitions, "runs per example")
	cmd.Flags().IntVar(&flagJudgeRepetitions, "judge-repetitions", config.DefaultJudgeRepetitions, "judge rounds per run")
	cmd.Flags().IntVar(&flagConcurrency, "concurrency", config.DefaultConcurrency, "max concurrent agent runs")
	cmd.Flags().BoolVar(&flagFailOnError, "fail-on-error", false, "exit non-zero when any example failed to run")
	cmd.Flags().BoolVar(&flagCleanupAggressive, "cleanup-aggressive", false, "remove all gauntlet Docker artifacts after run")
	return cmd
}

// runSettings are the run parameters after flags are applied over config defaults.
type runSettings struct {
	Model            string
	Languages        []string
	Repetitions      int
	JudgeRepetitions int
	Concurrency      int
}

// resolveSettings applies the flags the user set explicitly on top of d.
func resolveSettings(cmd *cobra.Command, d config.Defaults) (runSettings, error) {
	s := runSettings{
		Model:            d.Model,
		Languages:        d.Languages,
		Repetitions:      d.Repetitions,
		JudgeRepetitions: d.JudgeRounds(),
		Concurrency:      d.Concurrency,
	}
	flags := cmd.Flags()
	if flags.Changed("model") {
		s.Model = flagModel
	}
	if flags.Changed("languages") {
		s.Languages = flagLanguages
	}
	if flags.Changed("repetitions") {
		s.Repetitions = flagRepetitions
	}
	if flags.Changed("judge-repetitions") {
		s.JudgeRepetitions = flagJudgeRepetitions
	}
	if flags.Changed("concurrency") {
		s.Concurrency = flagConcurrency
	}

	switch {
	case s.Repetitions < 1:
		return s, fmt.Errorf("--repetitions must be at least 1")
	case s.JudgeRepetitions < 0:
		return s, fmt.Errorf("--judge-repetitions must not be negative")
	case s.Concurrency < 1:
		return s, fmt.Errorf("--concurrency must be at least 1")
	case len(s.Languages) == 0:
		return s, fmt.Errorf("--languages must name at least one language")
	}
	return s, nil
}

func runEval(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	settings, err := resolveSettings(cmd, cfg.Defaults)
	if err != nil {
		return err
	}
	loadSecrets(cfg)

	ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt)
	defer stop()

	client := newProviderClient(cfg)
	var model, judgeModel string
	var tel *telemetry.Client
	closeTelemetry := func() {}
	defer func() { closeTelemetry() }()

	repos := repocache.New(cfg.Paths.Repos)
	repos.Notify = func(url string, status repocache.Status) {
		fmt.Printf("Repository %s: %s\n", url, status)
	}

	p := &evalPipeline{
		ExamplesDir:  cfg.Paths.Examples,
		RunsDir:      cfg.Paths.Runs,
		WorktreesDir: cfg.Paths.Worktrees,
		Filters:      args,
		Languages:    settings.Languages,
		Repetitions:  settings.Repetitions,
		Resolve: func(ctx context.Context) error {
			var err error
			if model, err = client.ResolveModel(ctx, settings.Model); err != nil {
				return fmt.Errorf("resolving model: %w", err)
			}
			judgeModel = model
			if cfg.Provider.JudgeModel != "" {
				if judgeModel, err = client.ResolveModel(ctx, cfg.Provider.JudgeModel); err != nil {
					return fmt.Errorf("resolving judge model: %w", err)
				}
			}
			return nil
		},
		Open: func(runDir string, instances []*example.Instance) (*runner.Scheduler, error) {
			client.UsageLog = filepath.Join(runDir, result.JudgeUsageFile)
			commitID := gitops.CurrentCommit(ctx, ".")
			if err := result.WriteRunInfo(runDir, newRunInfo(settings, model, client.Name(), judgeModel, commitID, instances)); err != nil {
				return nil, err
			}
			tel, closeTelemetry = newTelemetry(cfg, runDir)
			return &runner.Scheduler{
				Agent:       newAgent(cfg, model, client),
				Judge:       &judge.LLM{Client: client, Model: judgeModel},
				Concurrency: settings.Concurrency,
				JudgeRounds: settings.JudgeRepetitions,
				Telemetry:   tel,
				Model:       runner.Model{ID: model, Provider: client.Name()},
				CommitID:    commitID,
				Out:         os.Stdout,
			}, nil
		},
		Repos:    repos,
		Preparer: workspace.NewPreparer(repos),
		Pricing:  loadPricing(cfg),
		Out:      os.Stdout,
	}

	summary, err := p.run(ctx)
	if err != nil || summary == nil {
		return err
	}

	if tel != nil {
		flushCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		tel.Flush(flushCtx)
		cancel()
	}

	if flagCleanupAggressive {
		cleanupDocker()
	}

	if flagFailOnError && summary.ErrorCount > 0 {
		return fmt.Errorf("%d examples failed to run", summary.ErrorCount)
	}
	return nil
}

func newRunInfo(s runSettings, model, providerName, judgeModel, commitID string, instances []*example.Instance) *result.RunInfo {
	info := &result.RunInfo{
		StartedAt:        time.Now().UTC(),
		Model:            model,
		Provider:         providerName,
		JudgeModel:       judgeModel,
		CommitID:         commitID,
		Repetitions:      s.Repetitions,
		JudgeRepetitions: s.JudgeRepetitions,
		Concurrency:      s.Concurrency,
	}
	for _, inst := range instances {
		info.Instances = append(info.Instances, inst.Name)
	}
	return info
}

func repositoryURLs(instances []*example.Instance) []string {
	urls := make([]string, 0, len(instances))
	for _, inst := range instances {
		urls = append(urls, inst.Base.URL)
	}
	return repocache.DistinctURLs(urls)
}

func newAgent(cfg *config.Config, model string, client *provider.Client) *agent.Docker {
	return &agent.Docker{
		Image:           cfg.Agent.Image,
		Adapter:         cfg.Agent.Adapter,
		Env:             cfg.Agent.Env,
		Timeout:         time.Duration(cfg.Agent.TimeoutMinutes) * time.Minute,
		CPULimit:        cfg.Agent.CPULimit,
		MemoryLimit:     cfg.Agent.MemoryMB * 1024 * 1024,
		Model:           model,
		ProviderBaseURL: client.BaseURL,
		APIKeyEnv:       cfg.Provider.APIKeyEnv,
		APIKey:          client.APIKey,
		Diagnostics:     diagnostics.NewCounter(cfg.Diagnostics.Image),
		Container:       docker.RunContainer,
	}
}

// newTelemetry returns nil when telemetry is disabled. The returned func
// closes the run's event file.
func newTelemetry(cfg *config.Config, runDir string) (*telemetry.Client, func()) {
	if !cfg.Telemetry.Enabled {
		return nil, func() {}
	}
	tel := telemetry.New()
	var err error
	if tel.SystemID, err = telemetry.GetOrCreateID(filepath.Join(cfg.Telemetry.IDDir, telemetry.SystemIDFile)); err != nil {
		slog.Warn("telemetry system id unavailable", "error", err)
	}
	if tel.InstallationID, err = telemetry.GetOrCreateID(filepath.Join(cfg.Telemetry.IDDir, telemetry.InstallationIDFile)); err != nil {
		slog.Warn("telemetry installation id unavailable", "error", err)
	}

	closeFn := func() {}
	file, err := telemetry.NewFileSink(filepath.Join(runDir, result.TelemetryFile))
	if err != nil {
		slog.Warn("telemetry file unavailable", "error", err)
	} else {
		tel.AddSink(file)
		closeFn = func() { file.Close() }
	}
	if cfg.Telemetry.Endpoint != "" {
		tel.AddSink(telemetry.NewHTTPSink(cfg.Telemetry.Endpoint))
	}
	return tel, closeFn
}

func loadPricing(cfg *config.Config) *pricing.Table {
	if cfg.Pricing.File == "" {
		return nil
	}
	table, err := pricing.Load(cfg.Pricing.File)
	if err != nil {
		slog.Warn("pricing unavailable", "file", cfg.Pricing.File, "error", err)
		return nil
	}
	return table
}

func cleanupDocker() {
	fmt.Println("Cleaning up Docker artifacts...")
	run := func(args ...string) {
		cmd := newExecCmd(args...)
		cmd.Run()
	}
	run("docker", "container", "prune", "-f", "--filter", "label=gauntlet=true")
	run("docker", "image", "prune", "-f")
}

func newExecCmd(args ...string) *exec.Cmd {
	return exec.Command(args[0], args[1:]...)
}
