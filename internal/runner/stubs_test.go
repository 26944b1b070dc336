package runner_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/signalnine/gauntlet/internal/example"
	"github.com/signalnine/gauntlet/internal/metrics"
	"github.com/signalnine/gauntlet/internal/result"
	"github.com/signalnine/gauntlet/internal/telemetry"
)

// timeline records ordered events from concurrent stubs.
type timeline struct {
	mu     sync.Mutex
	events []string
}

func (tl *timeline) add(format string, args ...any) {
	tl.mu.Lock()
	defer tl.mu.Unlock()
	tl.events = append(tl.events, fmt.Sprintf(format, args...))
}

func (tl *timeline) index(event string) int {
	tl.mu.Lock()
	defer tl.mu.Unlock()
	for i, e := range tl.events {
		if e == event {
			return i
		}
	}
	return -1
}

type stubAgent struct {
	delay    map[string]time.Duration
	fail     map[string]bool
	timeline *timeline

	inFlight    atomic.Int32
	maxInFlight atomic.Int32
	calls       atomic.Int32
}

func (a *stubAgent) Run(ctx context.Context, inst *example.Instance) (*result.RunOutput, error) {
	a.calls.Add(1)
	n := a.inFlight.Add(1)
	defer a.inFlight.Add(-1)
	for {
		cur := a.maxInFlight.Load()
		if n <= cur || a.maxInFlight.CompareAndSwap(cur, n) {
			break
		}
	}
	if a.timeline != nil {
		a.timeline.add("run:%s", inst.Name)
	}
	if d := a.delay[inst.Name]; d > 0 {
		time.Sleep(d)
	}
	if a.fail[inst.Name] {
		return nil, errors.New("agent crashed")
	}
	tm := metrics.NewToolMetrics()
	tm.InsertUse("edit_file", true)
	tm.InsertUse("terminal", inst.Name != "flaky")
	return &result.RunOutput{
		ToolMetrics:   tm,
		ResponseCount: 4,
		TokenUsage:    result.TokenUsage{InputTokens: 100, OutputTokens: 10},
		Diff:          "diff --git a/x b/x",
	}, nil
}

type stubJudge struct {
	failRounds map[int]bool
	score      int
	timeline   *timeline
	// waitFor blocks each call until this many rounds have started.
	waitFor int32

	started atomic.Int32
	calls   atomic.Int32
	byName  sync.Map
}

func (j *stubJudge) Judge(ctx context.Context, inst *example.Instance, out *result.RunOutput, round int) (*result.JudgeOutput, error) {
	j.calls.Add(1)
	n, _ := j.byName.LoadOrStore(inst.Name, new(atomic.Int32))
	n.(*atomic.Int32).Add(1)

	j.started.Add(1)
	if j.waitFor > 0 {
		deadline := time.Now().Add(2 * time.Second)
		for j.started.Load() < j.waitFor {
			if time.Now().After(deadline) {
				return nil, errors.New("rounds did not overlap")
			}
			time.Sleep(time.Millisecond)
		}
	}
	if j.timeline != nil {
		j.timeline.add("judge:%s:%d", inst.Name, round)
	}
	if j.failRounds[round] {
		return nil, fmt.Errorf("no score in round %d", round)
	}
	jo := &result.JudgeOutput{
		Round: round,
		Diff:  result.JudgeResponse{Analysis: "fine", Score: j.score},
	}
	if inst.HasThreadCriteria() {
		jo.Thread = &result.JudgeResponse{Analysis: "ok", Score: j.score - 1}
	}
	return jo, nil
}

func (j *stubJudge) callsFor(name string) int32 {
	n, ok := j.byName.Load(name)
	if !ok {
		return 0
	}
	return n.(*atomic.Int32).Load()
}

type stubPreparer struct {
	failAt string
	seen   []string
}

func (p *stubPreparer) Setup(ctx context.Context, inst *example.Instance) error {
	p.seen = append(p.seen, inst.Name)
	if inst.Name == p.failAt {
		return errors.New("worktree add failed")
	}
	return nil
}

type recordingSink struct {
	mu     sync.Mutex
	events []telemetry.Event
	err    error
}

func (s *recordingSink) Emit(ev telemetry.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
	return s.err
}

func (s *recordingSink) Flush(context.Context) error { return nil }

func makeInstances(runDir string, repetitions int, names ...string) []*example.Instance {
	defs := make([]*example.Definition, len(names))
	for i, name := range names {
		defs[i] = &example.Definition{
			Name:         name,
			Base:         example.Base{URL: "https://github.com/acme/" + name, Revision: "abc123", LanguageExtension: "rs"},
			Prompt:       "do the thing",
			DiffCriteria: "is it done",
		}
	}
	return example.Expand(defs, repetitions, example.Layout{RunDir: runDir, WorktreesDir: "/tmp/worktrees"})
}
