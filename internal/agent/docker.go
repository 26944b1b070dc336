// Package agent runs the coding agent against a prepared worktree inside a
// container and collects what it produced.
package agent

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/signalnine/gauntlet/internal/docker"
	"github.com/signalnine/gauntlet/internal/example"
	"github.com/signalnine/gauntlet/internal/gitops"
	"github.com/signalnine/gauntlet/internal/result"
)

// DiagnosticsCounter counts diagnostics in a worktree.
type DiagnosticsCounter interface {
	Count(ctx context.Context, workDir, cmd string) (int, error)
}

type Docker struct {
	Image       string
	Adapter     string
	Env         map[string]string
	Timeout     time.Duration
	CPULimit    float64
	MemoryLimit int64

	Model           string
	ProviderBaseURL string
	APIKeyEnv       string
	APIKey          string

	Diagnostics DiagnosticsCounter
	Container   docker.ContainerFunc
}

// Run counts diagnostics, runs the adapter container, captures the diff and
// counts diagnostics again. A container that exits non-zero or times out is
// a failed run.
func (d *Docker) Run(ctx context.Context, inst *example.Instance) (*result.RunOutput, error) {
	worktree, err := filepath.Abs(inst.WorktreeDir)
	if err != nil {
		return nil, fmt.Errorf("resolving worktree: %w", err)
	}
	outputDir, err := filepath.Abs(inst.OutputDir)
	if err != nil {
		return nil, fmt.Errorf("resolving output dir: %w", err)
	}
	adapter, err := filepath.Abs(d.Adapter)
	if err != nil {
		return nil, fmt.Errorf("resolving adapter path: %w", err)
	}

	before, err := d.Diagnostics.Count(ctx, worktree, inst.Base.DiagnosticsCmd)
	if err != nil {
		return nil, fmt.Errorf("counting diagnostics before run: %w", err)
	}

	logFile, err := os.Create(filepath.Join(outputDir, result.AgentLogFile))
	if err != nil {
		return nil, fmt.Errorf("creating agent log: %w", err)
	}
	defer logFile.Close()

	res, err := d.Container(ctx, &docker.RunOpts{
		Image:   d.Image,
		Command: []string{"bash", "/adapter.sh"},
		WorkDir: worktree,
		Env:     d.env(),
		Timeout: d.Timeout,
		ExtraMounts: []docker.Mount{
			{Source: adapter, Target: "/adapter.sh", ReadOnly: true},
			{Source: filepath.Join(outputDir, result.PromptFile), Target: "/task.md", ReadOnly: true},
			{Source: outputDir, Target: "/output"},
		},
		CPULimit:    d.CPULimit,
		MemoryLimit: d.MemoryLimit,
		UserID:      fmt.Sprintf("%d:%d", os.Getuid(), os.Getgid()),
		TTY:         true,
		Logs:        logFile,
	})
	if err != nil {
		return nil, fmt.Errorf("running container: %w", err)
	}
	if res.TimedOut {
		return nil, fmt.Errorf("agent timed out after %s", d.Timeout)
	}
	if res.ExitCode != 0 {
		return nil, fmt.Errorf("agent exited with code %d, see %s", res.ExitCode, logFile.Name())
	}

	diff, err := gitops.New(worktree).CaptureChanges(ctx)
	if err != nil {
		return nil, fmt.Errorf("capturing changes: %w", err)
	}

	after, err := d.Diagnostics.Count(ctx, worktree, inst.Base.DiagnosticsCmd)
	if err != nil {
		return nil, fmt.Errorf("counting diagnostics after run: %w", err)
	}

	out, err := result.ReadRunOutput(outputDir)
	if err != nil {
		return nil, fmt.Errorf("reading adapter output: %w", err)
	}
	out.Diff = string(diff)
	out.DiagnosticsBefore = before
	out.DiagnosticsAfter = after
	if out.DurationS == 0 {
		out.DurationS = int(res.Duration.Seconds())
	}
	if err := result.WriteRunOutput(outputDir, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (d *Docker) env() map[string]string {
	// The provider may be running on the host.
	baseURL := strings.Replace(d.ProviderBaseURL, "localhost", "host.docker.internal", 1)
	env := map[string]string{
		"TASK_DIR":          "/workspace",
		"TASK_DESCRIPTION":  "/task.md",
		"OUTPUT_DIR":        "/output",
		"MODEL":             d.Model,
		"PROVIDER_BASE_URL": baseURL,
	}
	if d.APIKeyEnv != "" && d.APIKey != "" {
		env[d.APIKeyEnv] = d.APIKey
	}
	for k, v := range d.Env {
		env[k] = v
	}
	return env
}
