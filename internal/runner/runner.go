// Package runner drives prepared instances through setup, the agent run and
// the judge rounds, then folds the outcomes into a summary.
package runner

import (
	"context"

	"github.com/signalnine/gauntlet/internal/example"
	"github.com/signalnine/gauntlet/internal/result"
)

// Preparer readies an instance's working tree before anything runs.
type Preparer interface {
	Setup(ctx context.Context, inst *example.Instance) error
}

// Agent performs one agent run against a prepared instance.
type Agent interface {
	Run(ctx context.Context, inst *example.Instance) (*result.RunOutput, error)
}

// Judge grades one round of a completed run.
type Judge interface {
	Judge(ctx context.Context, inst *example.Instance, out *result.RunOutput, round int) (*result.JudgeOutput, error)
}

// RoundOutcome is either a judge output or the error that round failed with.
type RoundOutcome struct {
	Output *result.JudgeOutput
	Err    error
}

// Result is the outcome of one instance. When RunErr is set, Output is nil
// and no rounds were attempted.
type Result struct {
	Instance *example.Instance
	RunErr   error
	Output   *result.RunOutput
	Rounds   []RoundOutcome
}

func (r *Result) Failed() bool {
	return r.RunErr != nil
}
