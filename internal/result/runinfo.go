package result

import (
	"path/filepath"
	"time"
)

const (
	RunInfoFile    = "run.json"
	TelemetryFile  = "telemetry.jsonl"
	JudgeUsageFile = "judge-usage.jsonl"
)

// RunInfo describes one invocation and is written at the top of its run directory.
type RunInfo struct {
	StartedAt        time.Time `json:"started_at"`
	Model            string    `json:"model"`
	Provider         string    `json:"provider"`
	JudgeModel       string    `json:"judge_model"`
	CommitID         string    `json:"commit_id,omitempty"`
	Repetitions      int       `json:"repetitions"`
	JudgeRepetitions int       `json:"judge_repetitions"`
	Concurrency      int       `json:"concurrency"`
	Instances        []string  `json:"instances"`
}

func WriteRunInfo(runDir string, info *RunInfo) error {
	return writeJSON(filepath.Join(runDir, RunInfoFile), info)
}

func ReadRunInfo(runDir string) (*RunInfo, error) {
	var info RunInfo
	if err := readJSON(filepath.Join(runDir, RunInfoFile), &info); err != nil {
		return nil, err
	}
	return &info, nil
}
