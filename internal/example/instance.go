package example

import (
	"path/filepath"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/mattn/go-runewidth"
)

// CohortTimeFormat is used for run directory names and as the cohort id
// fallback.
const CohortTimeFormat = "2006-01-02_15-04-05"

// Instance is one (example, repetition) pair: the unit the scheduler runs.
type Instance struct {
	*Definition

	Repetition int
	Name       string

	Color     color.Attribute
	NameWidth int

	RunDir      string
	OutputDir   string
	WorktreeDir string
}

// LogPrefix is the colored, padded name printed before progress lines.
func (i *Instance) LogPrefix() string {
	return color.New(i.Color).Sprint(i.PaddedName()) + " | "
}

func (i *Instance) PaddedName() string {
	pad := i.NameWidth - runewidth.StringWidth(i.Name)
	if pad < 0 {
		pad = 0
	}
	return i.Name + strings.Repeat(" ", pad)
}

// CohortID groups all judge telemetry of one run invocation.
func (i *Instance) CohortID() string {
	if i.RunDir != "" {
		if name := filepath.Base(i.RunDir); name != "." && name != string(filepath.Separator) {
			return name
		}
	}
	return time.Now().Format(CohortTimeFormat)
}
