package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Paths       Paths       `yaml:"paths"`
	Defaults    Defaults    `yaml:"defaults"`
	Agent       Agent       `yaml:"agent"`
	Diagnostics Diagnostics `yaml:"diagnostics"`
	Provider    Provider    `yaml:"provider"`
	Secrets     Secrets     `yaml:"secrets"`
	Telemetry   Telemetry   `yaml:"telemetry"`
	Pricing     Pricing     `yaml:"pricing"`
}

type Paths struct {
	Examples  string `yaml:"examples"`
	Repos     string `yaml:"repos"`
	Worktrees string `yaml:"worktrees"`
	Runs      string `yaml:"runs"`
}

// Defaults holds the values used by `gauntlet run` when the matching flag is not set.
type Defaults struct {
	Model            string   `yaml:"model"`
	Languages        []string `yaml:"languages"`
	Repetitions      int      `yaml:"repetitions"`
	JudgeRepetitions *int     `yaml:"judge_repetitions"`
	Concurrency      int      `yaml:"concurrency"`
}

type Agent struct {
	Image          string            `yaml:"image"`
	Adapter        string            `yaml:"adapter"`
	Env            map[string]string `yaml:"env"`
	TimeoutMinutes int               `yaml:"timeout_minutes"`
	CPULimit       float64           `yaml:"cpu_limit"`
	MemoryMB       int64             `yaml:"memory_mb"`
}

type Diagnostics struct {
	Image string `yaml:"image"`
}

type Provider struct {
	BaseURL    string `yaml:"base_url"`
	APIKeyEnv  string `yaml:"api_key_env"`
	JudgeModel string `yaml:"judge_model"`
}

type Secrets struct {
	EnvFile string `yaml:"env_file"`
}

type Telemetry struct {
	Enabled  bool   `yaml:"enabled"`
	Endpoint string `yaml:"endpoint"`
	IDDir    string `yaml:"id_dir"`
}

type Pricing struct {
	File string `yaml:"file"`
}

const (
	DefaultModel            = "claude-3-7-sonnet-latest"
	DefaultRepetitions      = 1
	DefaultJudgeRepetitions = 3
	DefaultConcurrency      = 10
)

// Default returns the configuration used when no config file exists.
func Default() *Config {
	cfg := &Config{Telemetry: Telemetry{Enabled: true}}
	applyDefaults(cfg)
	return cfg
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}
	cfg := &Config{Telemetry: Telemetry{Enabled: true}}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	applyDefaults(cfg)
	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// LoadOrDefault loads path, falling back to Default when the file does not
// exist and the caller did not ask for it explicitly.
func LoadOrDefault(path string, explicit bool) (*Config, error) {
	cfg, err := Load(path)
	if err == nil {
		return cfg, nil
	}
	if !explicit && errors.Is(err, os.ErrNotExist) {
		return Default(), nil
	}
	return nil, err
}

// JudgeRounds returns the configured judge round count.
func (d Defaults) JudgeRounds() int {
	if d.JudgeRepetitions == nil {
		return DefaultJudgeRepetitions
	}
	return *d.JudgeRepetitions
}

func applyDefaults(cfg *Config) {
	p := &cfg.Paths
	if p.Examples == "" {
		p.Examples = "examples"
	}
	if p.Repos == "" {
		p.Repos = ".gauntlet/repos"
	}
	if p.Worktrees == "" {
		p.Worktrees = ".gauntlet/worktrees"
	}
	if p.Runs == "" {
		p.Runs = "runs"
	}

	d := &cfg.Defaults
	if d.Model == "" {
		d.Model = DefaultModel
	}
	if len(d.Languages) == 0 {
		d.Languages = []string{"rs", "ts"}
	}
	if d.Repetitions == 0 {
		d.Repetitions = DefaultRepetitions
	}
	if d.Concurrency == 0 {
		d.Concurrency = DefaultConcurrency
	}

	if cfg.Agent.Image == "" {
		cfg.Agent.Image = "gauntlet-agent:latest"
	}
	if cfg.Agent.Adapter == "" {
		cfg.Agent.Adapter = "adapters/agent-ws/run.sh"
	}
	if cfg.Agent.TimeoutMinutes == 0 {
		cfg.Agent.TimeoutMinutes = 30
	}
	if cfg.Diagnostics.Image == "" {
		cfg.Diagnostics.Image = cfg.Agent.Image
	}

	if cfg.Provider.BaseURL == "" {
		cfg.Provider.BaseURL = "https://api.anthropic.com"
	}
	if cfg.Provider.APIKeyEnv == "" {
		cfg.Provider.APIKeyEnv = "ANTHROPIC_API_KEY"
	}
	if cfg.Telemetry.IDDir == "" {
		cfg.Telemetry.IDDir = ".gauntlet"
	}
}

func validate(cfg *Config) error {
	if cfg.Defaults.Repetitions < 1 {
		return fmt.Errorf("defaults.repetitions must be at least 1")
	}
	if cfg.Defaults.JudgeRounds() < 0 {
		return fmt.Errorf("defaults.judge_repetitions must not be negative")
	}
	if cfg.Defaults.Concurrency < 1 {
		return fmt.Errorf("defaults.concurrency must be at least 1")
	}
	if cfg.Agent.TimeoutMinutes < 0 {
		return fmt.Errorf("agent.timeout_minutes must not be negative")
	}
	for i, lang := range cfg.Defaults.Languages {
		if lang == "" {
			return fmt.Errorf("defaults.languages[%d] is empty", i)
		}
	}
	return nil
}
