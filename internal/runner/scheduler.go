package runner

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/signalnine/gauntlet/internal/example"
	"github.com/signalnine/gauntlet/internal/result"
	"github.com/signalnine/gauntlet/internal/telemetry"
)

// Model identifies the agent model recorded with every eval event.
type Model struct {
	ID       string
	Provider string
}

// Scheduler runs instances with at most Concurrency agent runs in flight.
// A unit holds its slot through judging, but judge rounds themselves are
// not bounded.
type Scheduler struct {
	Agent       Agent
	Judge       Judge
	Concurrency int
	JudgeRounds int

	// Telemetry receives one event per successful round. Nil disables it.
	Telemetry *telemetry.Client
	Model     Model
	CommitID  string

	Out io.Writer
}

// Schedule runs every instance to completion. Results are in submission order.
func (s *Scheduler) Schedule(ctx context.Context, instances []*example.Instance) []Result {
	out := s.Out
	if out == nil {
		out = io.Discard
	}
	w := &lockedWriter{w: out}

	results := make([]Result, len(instances))
	jobs := make([]Job, len(instances))
	for i, inst := range instances {
		results[i] = Result{Instance: inst}
		jobs[i] = func(ctx context.Context) error {
			results[i] = s.runUnit(ctx, inst, w)
			return nil
		}
	}

	for i, err := range RunPool(ctx, s.Concurrency, jobs) {
		if err != nil {
			results[i].RunErr = err
		}
	}
	return results
}

func (s *Scheduler) runUnit(ctx context.Context, inst *example.Instance, w io.Writer) Result {
	res := Result{Instance: inst}
	prefix := inst.LogPrefix()

	fmt.Fprintf(w, "%sRunning agent\n", prefix)
	out, err := s.Agent.Run(ctx, inst)
	if err != nil {
		fmt.Fprintf(w, "%sRun failed: %v\n", prefix, err)
		res.RunErr = err
		return res
	}
	res.Output = out

	if s.JudgeRounds > 0 {
		fmt.Fprintf(w, "%sJudging (%d rounds)\n", prefix, s.JudgeRounds)
	}
	res.Rounds = s.judgeAll(ctx, inst, out, 0, w)
	return res
}

// Rejudge runs JudgeRounds more rounds over a stored output, numbering them
// from first. It is not bounded by Concurrency.
func (s *Scheduler) Rejudge(ctx context.Context, inst *example.Instance, out *result.RunOutput, first int) []RoundOutcome {
	w := s.Out
	if w == nil {
		w = io.Discard
	}
	return s.judgeAll(ctx, inst, out, first, &lockedWriter{w: w})
}

// judgeAll launches every round at once and waits for all of them. A failed
// round does not stop its siblings.
func (s *Scheduler) judgeAll(ctx context.Context, inst *example.Instance, out *result.RunOutput, first int, w io.Writer) []RoundOutcome {
	rounds := make([]RoundOutcome, max(s.JudgeRounds, 0))
	var wg sync.WaitGroup
	for i := range rounds {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			rounds[i] = s.judgeRound(ctx, inst, out, first+i, w)
		}(i)
	}
	wg.Wait()
	return rounds
}

func (s *Scheduler) judgeRound(ctx context.Context, inst *example.Instance, out *result.RunOutput, round int, w io.Writer) RoundOutcome {
	jo, err := s.Judge.Judge(ctx, inst, out, round)
	if err != nil {
		fmt.Fprintf(w, "%sJudge round %d failed: %v\n", inst.LogPrefix(), round+1, err)
		return RoundOutcome{Err: err}
	}
	s.record(inst, out, jo)
	return RoundOutcome{Output: jo}
}

type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}
