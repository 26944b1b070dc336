// Package diagnostics counts compiler and linter diagnostics in a worktree.
package diagnostics

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/signalnine/gauntlet/internal/docker"
)

type Counter struct {
	Image string
	Run   docker.ContainerFunc
}

func NewCounter(image string) *Counter {
	return &Counter{Image: image, Run: docker.RunContainer}
}

// Count runs cmd against workDir in the diagnostics image and returns the
// number of diagnostics it printed. A non-zero exit is expected from most
// checkers and is not an error. An empty cmd counts nothing.
func (c *Counter) Count(ctx context.Context, workDir, cmd string) (int, error) {
	if strings.TrimSpace(cmd) == "" {
		return 0, nil
	}
	var out bytes.Buffer
	res, err := c.Run(ctx, &docker.RunOpts{
		Image:   c.Image,
		Command: []string{"sh", "-c", cmd},
		WorkDir: workDir,
		TTY:     true,
		Logs:    &out,
	})
	if err != nil {
		return 0, fmt.Errorf("running diagnostics: %w", err)
	}
	if res.TimedOut {
		return 0, fmt.Errorf("diagnostics timed out")
	}
	return CountDiagnostics(out.String()), nil
}

// CountDiagnostics counts lines shaped like compiler or linter errors and warnings.
func CountDiagnostics(output string) int {
	total := 0
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if strings.Contains(line, ": error") || strings.Contains(line, ": warning") ||
			strings.HasPrefix(line, "error") || strings.HasPrefix(line, "warning") ||
			strings.Contains(line, "Error:") || strings.Contains(line, "Warning:") {
			total++
		}
	}
	return total
}
