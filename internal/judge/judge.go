// Package judge grades agent runs with a language model.
package judge

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/signalnine/gauntlet/internal/example"
	"github.com/signalnine/gauntlet/internal/result"
)

var ErrNoScore = errors.New("judge response has no <score> tag")

// Completer is the slice of the provider client the judge needs.
type Completer interface {
	Complete(ctx context.Context, model, prompt string) (string, error)
}

// LLM grades the diff of every run and, when the example has thread
// criteria, the agent's transcript.
type LLM struct {
	Client Completer
	Model  string
}

func (j *LLM) Judge(ctx context.Context, inst *example.Instance, out *result.RunOutput, round int) (*result.JudgeOutput, error) {
	diffPrompt := DiffPrompt(inst.Prompt, inst.DiffCriteria, out.Diff)
	diffReply, err := j.Client.Complete(ctx, j.Model, diffPrompt)
	if err != nil {
		return nil, fmt.Errorf("judging diff: %w", err)
	}
	diff, err := ParseResponse(diffReply)
	if err != nil {
		return nil, fmt.Errorf("judging diff: %w", err)
	}

	jo := &result.JudgeOutput{Round: round, Diff: diff}
	var threadReply string
	if inst.HasThreadCriteria() {
		threadReply, err = j.Client.Complete(ctx, j.Model, ThreadPrompt(inst.Prompt, inst.ThreadCriteria, out.Thread))
		if err != nil {
			return nil, fmt.Errorf("judging thread: %w", err)
		}
		thread, err := ParseResponse(threadReply)
		if err != nil {
			return nil, fmt.Errorf("judging thread: %w", err)
		}
		jo.Thread = &thread
	}

	if inst.OutputDir != "" {
		if err := writeTranscript(inst.OutputDir, round, diffReply, threadReply); err != nil {
			return nil, err
		}
		if err := result.WriteJudgeOutput(inst.OutputDir, jo); err != nil {
			return nil, err
		}
	}
	return jo, nil
}

func writeTranscript(dir string, round int, diffReply, threadReply string) error {
	var b strings.Builder
	fmt.Fprintf(&b, "# Judge round %d\n\n## Diff\n\n%s\n", round+1, strings.TrimSpace(diffReply))
	if threadReply != "" {
		fmt.Fprintf(&b, "\n## Thread\n\n%s\n", strings.TrimSpace(threadReply))
	}
	path := filepath.Join(dir, result.JudgeMarkdownFile(round))
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		return fmt.Errorf("writing judge transcript: %w", err)
	}
	return nil
}
