package docker_test

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/signalnine/gauntlet/internal/docker"
)

func requireDocker(t *testing.T) {
	t.Helper()
	if os.Getenv("GAUNTLET_DOCKER_TESTS") == "" {
		t.Skip("set GAUNTLET_DOCKER_TESTS=1 to run Docker tests")
	}
}

func TestRunContainer(t *testing.T) {
	requireDocker(t)
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	workDir := t.TempDir()
	os.WriteFile(filepath.Join(workDir, "task.md"), []byte("test task"), 0o644)

	var logs bytes.Buffer
	result, err := docker.RunContainer(ctx, &docker.RunOpts{
		Image:   "alpine:latest",
		Command: []string{"sh", "-c", "echo hello > /workspace/output.txt; echo done"},
		WorkDir: workDir,
		Env:     map[string]string{"TASK_DIR": "/workspace"},
		Timeout: 30 * time.Second,
		TTY:     true,
		Logs:    &logs,
	})
	if err != nil {
		t.Fatalf("RunContainer: %v", err)
	}
	if !result.Succeeded() {
		t.Errorf("expected success, got exit %d timedOut=%v", result.ExitCode, result.TimedOut)
	}
	content, err := os.ReadFile(filepath.Join(workDir, "output.txt"))
	if err != nil {
		t.Fatalf("reading output: %v", err)
	}
	if string(content) != "hello\n" {
		t.Errorf("output: got %q, want %q", content, "hello\n")
	}
	if !strings.Contains(logs.String(), "done") {
		t.Errorf("logs missing output: %q", logs.String())
	}
}

func TestRunContainerTimeout(t *testing.T) {
	requireDocker(t)
	ctx := context.Background()
	workDir := t.TempDir()

	result, err := docker.RunContainer(ctx, &docker.RunOpts{
		Image:   "alpine:latest",
		Command: []string{"sleep", "300"},
		WorkDir: workDir,
		Timeout: 2 * time.Second,
	})
	if err != nil {
		t.Fatalf("RunContainer: %v", err)
	}
	if !result.TimedOut {
		t.Error("expected timeout")
	}
	if result.ExitCode != docker.TimeoutExitCode {
		t.Errorf("exit code: got %d, want %d", result.ExitCode, docker.TimeoutExitCode)
	}
}

func TestRunContainerCrash(t *testing.T) {
	requireDocker(t)
	ctx := context.Background()
	workDir := t.TempDir()

	result, err := docker.RunContainer(ctx, &docker.RunOpts{
		Image:   "alpine:latest",
		Command: []string{"sh", "-c", "exit 1"},
		WorkDir: workDir,
		Timeout: 10 * time.Second,
	})
	if err != nil {
		t.Fatalf("RunContainer: %v", err)
	}
	if result.ExitCode != 1 || result.Succeeded() {
		t.Errorf("exit code: got %d, want 1", result.ExitCode)
	}
}
