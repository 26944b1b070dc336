package result

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/signalnine/gauntlet/internal/example"
)

const (
	RunOutputFile = "run-output.json"
	DiffFile      = "diff.patch"
	ThreadFile    = "thread.md"
	PromptFile    = "prompt.md"
	AgentLogFile  = "agent.log"
)

// CreateRunDir creates a timestamped run directory under runsDir and points
// runsDir/latest at it.
func CreateRunDir(runsDir string, now time.Time) (string, error) {
	runDir := filepath.Join(runsDir, now.Format(example.CohortTimeFormat))
	runDir, err := filepath.Abs(runDir)
	if err != nil {
		return "", fmt.Errorf("resolving run dir: %w", err)
	}
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return "", fmt.Errorf("creating run dir: %w", err)
	}
	latest := filepath.Join(runsDir, "latest")
	os.Remove(latest)
	if err := os.Symlink(runDir, latest); err != nil {
		return "", fmt.Errorf("creating latest symlink: %w", err)
	}
	return runDir, nil
}

func JudgeFile(round int) string {
	return fmt.Sprintf("judge-%d.json", round)
}

func JudgeMarkdownFile(round int) string {
	return fmt.Sprintf("judge-%d.md", round)
}

// WriteRunOutput stores out in dir along with its diff and thread transcript.
func WriteRunOutput(dir string, out *RunOutput) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating output dir: %w", err)
	}
	if err := writeJSON(filepath.Join(dir, RunOutputFile), out); err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(dir, DiffFile), []byte(out.Diff), 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", DiffFile, err)
	}
	if out.Thread != "" {
		if err := os.WriteFile(filepath.Join(dir, ThreadFile), []byte(out.Thread), 0o644); err != nil {
			return fmt.Errorf("writing %s: %w", ThreadFile, err)
		}
	}
	return nil
}

// ReadRunOutput loads a RunOutput written by WriteRunOutput. A missing
// thread transcript is not an error.
func ReadRunOutput(dir string) (*RunOutput, error) {
	var out RunOutput
	if err := readJSON(filepath.Join(dir, RunOutputFile), &out); err != nil {
		return nil, err
	}
	diff, err := os.ReadFile(filepath.Join(dir, DiffFile))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("reading %s: %w", DiffFile, err)
	}
	out.Diff = string(diff)
	thread, err := os.ReadFile(filepath.Join(dir, ThreadFile))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("reading %s: %w", ThreadFile, err)
	}
	out.Thread = string(thread)
	return &out, nil
}

func WriteJudgeOutput(dir string, out *JudgeOutput) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating output dir: %w", err)
	}
	return writeJSON(filepath.Join(dir, JudgeFile(out.Round)), out)
}

// ReadJudgeOutputs loads every judge-<round>.json in dir, ordered by round.
func ReadJudgeOutputs(dir string) ([]*JudgeOutput, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "judge-*.json"))
	if err != nil {
		return nil, err
	}
	var outs []*JudgeOutput
	for _, p := range paths {
		var out JudgeOutput
		if err := readJSON(p, &out); err != nil {
			return nil, err
		}
		outs = append(outs, &out)
	}
	sort.Slice(outs, func(i, j int) bool { return outs[i].Round < outs[j].Round })
	return outs, nil
}

// InstanceDirs returns the instance output directories of a run, sorted by name.
func InstanceDirs(runDir string) ([]string, error) {
	entries, err := os.ReadDir(runDir)
	if err != nil {
		return nil, fmt.Errorf("reading run dir: %w", err)
	}
	var dirs []string
	for _, e := range entries {
		if e.IsDir() && !strings.HasPrefix(e.Name(), ".") {
			dirs = append(dirs, filepath.Join(runDir, e.Name()))
		}
	}
	sort.Strings(dirs)
	return dirs, nil
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling %s: %w", filepath.Base(path), err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", filepath.Base(path), err)
	}
	return nil
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", filepath.Base(path), err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("parsing %s: %w", filepath.Base(path), err)
	}
	return nil
}
