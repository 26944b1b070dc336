// Package example loads benchmark example definitions from disk and turns them
// into the scheduled instances a run executes.
package example

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"
)

const (
	BaseFile           = "base.yaml"
	PromptFile         = "prompt.md"
	DiffCriteriaFile   = "diff_criteria.md"
	ThreadCriteriaFile = "thread_criteria.md"
)

// Base is the contents of an example's base.yaml.
type Base struct {
	URL               string `yaml:"url"`
	Revision          string `yaml:"revision"`
	LanguageExtension string `yaml:"language_extension"`
	RequireLSP        bool   `yaml:"require_lsp"`
	DiagnosticsCmd    string `yaml:"diagnostics_cmd"`
}

// Definition is an example as found on disk. It is not modified after Load.
type Definition struct {
	Name           string
	Dir            string
	Base           Base
	Prompt         string
	DiffCriteria   string
	ThreadCriteria string
}

// HasThreadCriteria reports whether runs of this example get a thread score.
func (d *Definition) HasThreadCriteria() bool {
	return d.ThreadCriteria != ""
}

func Load(dir string) (*Definition, error) {
	data, err := os.ReadFile(filepath.Join(dir, BaseFile))
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", BaseFile, err)
	}
	var base Base
	if err := yaml.Unmarshal(data, &base); err != nil {
		return nil, fmt.Errorf("parsing %s in %s: %w", BaseFile, dir, err)
	}
	if base.URL == "" {
		return nil, fmt.Errorf("example %s: url is required", dir)
	}
	if base.Revision == "" {
		return nil, fmt.Errorf("example %s: revision is required", dir)
	}

	prompt, err := os.ReadFile(filepath.Join(dir, PromptFile))
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", PromptFile, err)
	}
	diffCriteria, err := os.ReadFile(filepath.Join(dir, DiffCriteriaFile))
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", DiffCriteriaFile, err)
	}
	threadCriteria, err := os.ReadFile(filepath.Join(dir, ThreadCriteriaFile))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("reading %s: %w", ThreadCriteriaFile, err)
	}

	return &Definition{
		Name:           filepath.Base(dir),
		Dir:            dir,
		Base:           base,
		Prompt:         string(prompt),
		DiffCriteria:   string(diffCriteria),
		ThreadCriteria: string(threadCriteria),
	}, nil
}

// List returns every example directory under root, sorted by name.
func List(root string) ([]string, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("reading examples dir: %w", err)
	}
	var dirs []string
	for _, e := range entries {
		if e.IsDir() {
			dirs = append(dirs, filepath.Join(root, e.Name()))
		}
	}
	sort.Strings(dirs)
	return dirs, nil
}
