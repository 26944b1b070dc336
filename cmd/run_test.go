package cmd

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/signalnine/gauntlet/internal/config"
	"github.com/signalnine/gauntlet/internal/example"
	"github.com/signalnine/gauntlet/internal/result"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveSettings(t *testing.T) {
	judgeRounds := 5
	defaults := config.Defaults{
		Model:            "cfg-model",
		Languages:        []string{"go"},
		Repetitions:      2,
		JudgeRepetitions: &judgeRounds,
		Concurrency:      4,
	}

	tests := []struct {
		name string
		args []string
		want runSettings
	}{
		{
			name: "config defaults when no flags set",
			want: runSettings{Model: "cfg-model", Languages: []string{"go"}, Repetitions: 2, JudgeRepetitions: 5, Concurrency: 4},
		},
		{
			name: "flags override",
			args: []string{"--model", "flag-model", "--languages", "rs,ts", "--concurrency", "1", "--judge-repetitions", "0"},
			want: runSettings{Model: "flag-model", Languages: []string{"rs", "ts"}, Repetitions: 2, JudgeRepetitions: 0, Concurrency: 1},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd := newRunCmd()
			require.NoError(t, cmd.ParseFlags(tt.args))
			got, err := resolveSettings(cmd, defaults)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestResolveSettingsRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"zero concurrency", []string{"--concurrency", "0"}},
		{"zero repetitions", []string{"--repetitions", "0"}},
		{"negative judge rounds", []string{"--judge-repetitions", "-1"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd := newRunCmd()
			require.NoError(t, cmd.ParseFlags(tt.args))
			_, err := resolveSettings(cmd, config.Default().Defaults)
			assert.Error(t, err)
		})
	}
}

func TestRepositoryURLsAreDistinct(t *testing.T) {
	defs := []*example.Definition{
		{Name: "a", Base: example.Base{URL: "https://git/one"}},
		{Name: "b", Base: example.Base{URL: "https://git/two"}},
		{Name: "c", Base: example.Base{URL: "https://git/one"}},
	}
	instances := example.Expand(defs, 2, example.Layout{})
	assert.Equal(t, []string{"https://git/one", "https://git/two"}, repositoryURLs(instances))
}

func TestNewRunInfo(t *testing.T) {
	instances := example.Expand([]*example.Definition{{Name: "foo"}}, 2, example.Layout{})
	s := runSettings{Repetitions: 2, JudgeRepetitions: 3, Concurrency: 10}
	info := newRunInfo(s, "m", "anthropic", "j", "deadbeef", instances)

	assert.Equal(t, []string{"foo-0", "foo-1"}, info.Instances)
	assert.Equal(t, "j", info.JudgeModel)
	assert.Equal(t, 3, info.JudgeRepetitions)
	assert.False(t, info.StartedAt.IsZero())
}

func TestNewTelemetryDisabled(t *testing.T) {
	cfg := config.Default()
	cfg.Telemetry.Enabled = false
	tel, closeFn := newTelemetry(cfg, t.TempDir())
	defer closeFn()
	assert.Nil(t, tel)
}

func TestNewTelemetryWritesIDs(t *testing.T) {
	cfg := config.Default()
	cfg.Telemetry.IDDir = t.TempDir()
	runDir := t.TempDir()

	tel, closeFn := newTelemetry(cfg, runDir)
	defer closeFn()
	require.NotNil(t, tel)
	assert.NotEmpty(t, tel.SystemID)
	assert.NotEmpty(t, tel.InstallationID)
	assert.NotEqual(t, tel.SystemID, tel.InstallationID)

	require.NoError(t, tel.Event("test", map[string]int{"n": 1}))
	data, err := os.ReadFile(filepath.Join(runDir, result.TelemetryFile))
	require.NoError(t, err)
	assert.Contains(t, string(data), `"n":1`)
}

func TestNextRound(t *testing.T) {
	assert.Equal(t, 0, nextRound(nil))
	assert.Equal(t, 3, nextRound([]*result.JudgeOutput{{Round: 0}, {Round: 2}, {Round: 1}}))
}

func TestFirstNonEmpty(t *testing.T) {
	assert.Equal(t, "b", firstNonEmpty("", "b", "c"))
	assert.Equal(t, "", firstNonEmpty("", ""))
}

func TestResolveRunDirFollowsLatest(t *testing.T) {
	runs := t.TempDir()
	runDir, err := result.CreateRunDir(runs, time.Now())
	require.NoError(t, err)

	got, err := resolveRunDir(runs, nil)
	require.NoError(t, err)
	want, err := filepath.EvalSymlinks(runDir)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	_, err = resolveRunDir(runs, []string{filepath.Join(runs, "missing")})
	assert.Error(t, err)
}

func TestSetupLogging(t *testing.T) {
	assert.NoError(t, setupLogging("debug"))
	assert.NoError(t, setupLogging("WARN"))
	assert.Error(t, setupLogging("loud"))
}
