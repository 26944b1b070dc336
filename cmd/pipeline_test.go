package cmd

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/signalnine/gauntlet/internal/example"
	"github.com/signalnine/gauntlet/internal/metrics"
	"github.com/signalnine/gauntlet/internal/repocache"
	"github.com/signalnine/gauntlet/internal/result"
	"github.com/signalnine/gauntlet/internal/runner"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testRepoURL = "https://example/repo.git"

// countingAgent records how many runs started and the peak number in flight.
type countingAgent struct {
	calls    atomic.Int32
	inFlight atomic.Int32
	peak     atomic.Int32
}

func (a *countingAgent) Run(_ context.Context, inst *example.Instance) (*result.RunOutput, error) {
	a.calls.Add(1)
	n := a.inFlight.Add(1)
	defer a.inFlight.Add(-1)
	for {
		p := a.peak.Load()
		if n <= p || a.peak.CompareAndSwap(p, n) {
			break
		}
	}
	return &result.RunOutput{ToolMetrics: metrics.NewToolMetrics(), Diff: "+" + inst.Name}, nil
}

type countingJudge struct {
	calls atomic.Int32
}

func (j *countingJudge) Judge(_ context.Context, _ *example.Instance, _ *result.RunOutput, round int) (*result.JudgeOutput, error) {
	j.calls.Add(1)
	return &result.JudgeOutput{Round: round, Diff: result.JudgeResponse{Score: 7}}, nil
}

type stubPreparer struct {
	mu    sync.Mutex
	names []string
	err   error
}

func (p *stubPreparer) Setup(_ context.Context, inst *example.Instance) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.names = append(p.names, inst.Name)
	return p.err
}

// cachedRepos reports every path as prepared with the given origin.
type cachedRepos struct {
	origin string
}

func (cachedRepos) Exists(string) bool { return true }

func (cachedRepos) Init(context.Context, string, string) error {
	return errors.New("unexpected init")
}

func (r cachedRepos) Origin(context.Context, string) (string, error) {
	return r.origin, nil
}

type pipelineFixture struct {
	root     string
	agent    *countingAgent
	judge    *countingJudge
	preparer *stubPreparer
	out      bytes.Buffer
}

func newPipelineFixture(t *testing.T, names ...string) *pipelineFixture {
	t.Helper()
	f := &pipelineFixture{
		root:     t.TempDir(),
		agent:    &countingAgent{},
		judge:    &countingJudge{},
		preparer: &stubPreparer{},
	}
	for _, name := range names {
		writeTestExample(t, filepath.Join(f.root, "examples"), name)
	}
	return f
}

func (f *pipelineFixture) pipeline(filters []string, reps, judgeRounds, concurrency int, origin string) *evalPipeline {
	return &evalPipeline{
		ExamplesDir:  filepath.Join(f.root, "examples"),
		RunsDir:      filepath.Join(f.root, "runs"),
		WorktreesDir: filepath.Join(f.root, "worktrees"),
		Filters:      filters,
		Languages:    []string{"rs"},
		Repetitions:  reps,
		Open: func(string, []*example.Instance) (*runner.Scheduler, error) {
			return &runner.Scheduler{
				Agent:       f.agent,
				Judge:       f.judge,
				Concurrency: concurrency,
				JudgeRounds: judgeRounds,
				Out:         &f.out,
			}, nil
		},
		Repos:    &repocache.Cache{Root: filepath.Join(f.root, "repos"), Ops: cachedRepos{origin: origin}},
		Preparer: f.preparer,
		Out:      &f.out,
	}
}

func TestPipelineRendersOneTablePerInstance(t *testing.T) {
	f := newPipelineFixture(t, "foo_a", "bar_b")

	summary, err := f.pipeline([]string{"foo"}, 2, 3, 1, testRepoURL).run(context.Background())
	require.NoError(t, err)
	require.NotNil(t, summary)

	assert.EqualValues(t, 2, f.agent.calls.Load())
	assert.EqualValues(t, 1, f.agent.peak.Load())
	assert.EqualValues(t, 6, f.judge.calls.Load())
	assert.Equal(t, []string{"foo_a-0", "foo_a-1"}, f.preparer.names)
	assert.Zero(t, summary.ErrorCount)

	out := f.out.String()
	rendered := out[strings.Index(out, "EVAL RESULTS"):]
	assert.Equal(t, 2, strings.Count(rendered, "┌───────┬"))
	assert.Equal(t, 2, strings.Count(rendered, "│   3   │"))
	assert.NotContains(t, rendered, "│   4   │")
	var headers []string
	for _, line := range strings.Split(rendered, "\n") {
		if trimmed := strings.TrimSpace(line); strings.HasPrefix(trimmed, "foo_a-") {
			headers = append(headers, trimmed)
		}
	}
	assert.Equal(t, []string{"foo_a-0", "foo_a-1"}, headers)
	assert.NotContains(t, out, "bar_b")
	assert.Contains(t, out, "Average code diff score: 7.00")
}

func TestPipelineOriginMismatchRunsNothing(t *testing.T) {
	f := newPipelineFixture(t, "foo_a")

	_, err := f.pipeline(nil, 2, 1, 2, "https://example/elsewhere.git").run(context.Background())
	require.ErrorIs(t, err, repocache.ErrOriginMismatch)

	assert.Zero(t, f.agent.calls.Load())
	assert.Zero(t, f.judge.calls.Load())
	assert.Empty(t, f.preparer.names)
}

func TestPipelineSetupFailureRunsNothing(t *testing.T) {
	f := newPipelineFixture(t, "foo_a", "foo_b")
	f.preparer.err = errors.New("worktree add failed")

	_, err := f.pipeline(nil, 1, 1, 2, testRepoURL).run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "setting up foo_a")

	assert.Equal(t, []string{"foo_a"}, f.preparer.names)
	assert.Zero(t, f.agent.calls.Load())
	assert.Zero(t, f.judge.calls.Load())
}

func TestPipelineResolveFailureWritesNothing(t *testing.T) {
	f := newPipelineFixture(t, "foo_a")
	p := f.pipeline(nil, 1, 1, 1, testRepoURL)
	p.Resolve = func(context.Context) error { return errors.New("unknown model") }

	_, err := p.run(context.Background())
	require.EqualError(t, err, "unknown model")
	assert.NoDirExists(t, p.RunsDir)
	assert.Zero(t, f.agent.calls.Load())
}

func TestPipelineNoMatchStopsCleanly(t *testing.T) {
	f := newPipelineFixture(t, "foo_a")

	summary, err := f.pipeline([]string{"nothing"}, 1, 1, 1, testRepoURL).run(context.Background())
	require.NoError(t, err)
	assert.Nil(t, summary)
	assert.Contains(t, f.out.String(), "No examples to run.")
	_, statErr := os.Stat(filepath.Join(f.root, "runs"))
	assert.True(t, os.IsNotExist(statErr))
}
