package cmd

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/signalnine/gauntlet/internal/example"
	"github.com/signalnine/gauntlet/internal/result"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fakeProvider(t *testing.T, score int) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/models", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"data": []map[string]string{{"id": "judge-model"}}})
	})
	mux.HandleFunc("/v1/chat/completions", func(w http.ResponseWriter, r *http.Request) {
		reply := fmt.Sprintf("<analysis>looks right</analysis>\n<score>%d</score>", score)
		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{{"message": map[string]string{"content": reply}}},
			"usage":   map[string]int{"prompt_tokens": 50, "completion_tokens": 5},
		})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func writeTestExample(t *testing.T, root, name string) {
	t.Helper()
	dir := filepath.Join(root, name)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	files := map[string]string{
		example.BaseFile:         "url: https://example/repo.git\nrevision: abc123\nlanguage_extension: rs\n",
		example.PromptFile:       "Add a greeting",
		example.DiffCriteriaFile: "- prints hello",
	}
	for file, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, file), []byte(content), 0o644))
	}
}

func TestRejudgeAppendsRounds(t *testing.T) {
	srv := fakeProvider(t, 8)
	root := t.TempDir()
	examples := filepath.Join(root, "examples")
	runDir := filepath.Join(root, "runs", "2025-01-01_00-00-00")
	writeTestExample(t, examples, "greet")

	require.NoError(t, result.WriteRunInfo(mkdir(t, runDir), &result.RunInfo{Model: "judge-model", Provider: "openai"}))
	instDir := filepath.Join(runDir, "greet")
	require.NoError(t, result.WriteRunOutput(instDir, &result.RunOutput{Diff: "+hello"}))
	require.NoError(t, result.WriteJudgeOutput(instDir, &result.JudgeOutput{Round: 0, Diff: result.JudgeResponse{Score: 3}}))
	// A run that failed has an output dir but no run output.
	mkdir(t, filepath.Join(runDir, "greet-1"))

	cfgPath := filepath.Join(root, "gauntlet.yaml")
	cfg := fmt.Sprintf(`paths:
  examples: %s
  runs: %s
provider:
  base_url: %s
  api_key_env: GAUNTLET_TEST_KEY
telemetry:
  enabled: false
`, examples, filepath.Join(root, "runs"), srv.URL)
	require.NoError(t, os.WriteFile(cfgPath, []byte(cfg), 0o644))
	t.Setenv("GAUNTLET_TEST_KEY", "secret")

	rootCmd := NewRootCmd()
	rootCmd.SetArgs([]string{"--config", cfgPath, "rejudge", runDir, "--rounds", "2"})
	require.NoError(t, rootCmd.Execute())

	judged, err := result.ReadJudgeOutputs(instDir)
	require.NoError(t, err)
	require.Len(t, judged, 3)
	assert.Equal(t, 3, judged[0].Diff.Score)
	assert.Equal(t, 1, judged[1].Round)
	assert.Equal(t, 8, judged[2].Diff.Score)
	assert.FileExists(t, filepath.Join(instDir, result.JudgeMarkdownFile(2)))
	assert.FileExists(t, filepath.Join(runDir, result.JudgeUsageFile))
}

func mkdir(t *testing.T, dir string) string {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0o755))
	return dir
}
