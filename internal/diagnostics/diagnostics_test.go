package diagnostics_test

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/signalnine/gauntlet/internal/diagnostics"
	"github.com/signalnine/gauntlet/internal/docker"
)

func TestCountDiagnostics(t *testing.T) {
	tests := []struct {
		name   string
		output string
		want   int
	}{
		{"empty", "", 0},
		{"rustc", "error[E0308]: mismatched types\n  --> src/main.rs:2:5\nwarning: unused variable: `x`\n", 2},
		{"tsc", "src/a.ts(3,1): error TS2304: Cannot find name 'foo'.\nFound 1 error.\n", 1},
		{"gcc style", "main.c:3:5: warning: unused\nmain.c:9:1: error: expected ';'\n", 2},
		{"clean", "Finished dev [unoptimized] target(s) in 0.5s\n", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := diagnostics.CountDiagnostics(tt.output); got != tt.want {
				t.Errorf("CountDiagnostics = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestCounterEmptyCommand(t *testing.T) {
	c := &diagnostics.Counter{Run: func(context.Context, *docker.RunOpts) (*docker.RunResult, error) {
		t.Fatal("container should not run for an empty command")
		return nil, nil
	}}
	n, err := c.Count(context.Background(), t.TempDir(), "  ")
	if err != nil || n != 0 {
		t.Errorf("got %d, %v", n, err)
	}
}

func TestCounterCount(t *testing.T) {
	var gotOpts *docker.RunOpts
	c := &diagnostics.Counter{Image: "rust:latest", Run: func(_ context.Context, opts *docker.RunOpts) (*docker.RunResult, error) {
		gotOpts = opts
		io.WriteString(opts.Logs, "error: one\nwarning: two\n")
		return &docker.RunResult{ExitCode: 101}, nil
	}}
	n, err := c.Count(context.Background(), "/tmp/wt", "cargo check")
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if n != 2 {
		t.Errorf("got %d diagnostics, want 2", n)
	}
	if gotOpts.Image != "rust:latest" || gotOpts.WorkDir != "/tmp/wt" || gotOpts.Command[2] != "cargo check" {
		t.Errorf("unexpected opts: %+v", gotOpts)
	}
}

func TestCounterErrors(t *testing.T) {
	c := &diagnostics.Counter{Run: func(context.Context, *docker.RunOpts) (*docker.RunResult, error) {
		return nil, errors.New("no daemon")
	}}
	if _, err := c.Count(context.Background(), "/tmp", "make lint"); err == nil {
		t.Error("expected error")
	}

	c.Run = func(context.Context, *docker.RunOpts) (*docker.RunResult, error) {
		return &docker.RunResult{TimedOut: true, ExitCode: docker.TimeoutExitCode}, nil
	}
	if _, err := c.Count(context.Background(), "/tmp", "make lint"); err == nil {
		t.Error("expected timeout error")
	}
}
