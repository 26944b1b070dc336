package example

import (
	"fmt"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/fatih/color"
	"github.com/mattn/go-runewidth"
)

// Palette is cycled over instances by their position in the run.
var Palette = []color.Attribute{
	color.FgRed,
	color.FgGreen,
	color.FgYellow,
	color.FgBlue,
	color.FgMagenta,
	color.FgCyan,
	color.FgHiRed,
	color.FgHiGreen,
	color.FgHiYellow,
	color.FgHiBlue,
	color.FgHiMagenta,
	color.FgHiCyan,
}

// Selection is the result of filtering the examples root.
type Selection struct {
	Definitions []*Definition
	// Skipped names examples that matched the name filter but whose language
	// tag is missing or not allowed.
	Skipped []string
}

// MatchesName reports whether name contains any of filters. No filters match everything.
func MatchesName(name string, filters []string) bool {
	if len(filters) == 0 {
		return true
	}
	for _, f := range filters {
		if strings.Contains(name, f) {
			return true
		}
	}
	return false
}

// Select loads the examples under root whose names match filters and whose
// language tag is in languages.
func Select(root string, filters, languages []string) (*Selection, error) {
	dirs, err := List(root)
	if err != nil {
		return nil, err
	}
	sel := &Selection{}
	for _, dir := range dirs {
		if !MatchesName(filepath.Base(dir), filters) {
			continue
		}
		def, err := Load(dir)
		if err != nil {
			return nil, fmt.Errorf("loading example %s: %w", filepath.Base(dir), err)
		}
		lang := def.Base.LanguageExtension
		if lang == "" || !slices.Contains(languages, lang) {
			sel.Skipped = append(sel.Skipped, def.Name)
			continue
		}
		sel.Definitions = append(sel.Definitions, def)
	}
	return sel, nil
}

// Layout holds the directories instance paths are derived from.
type Layout struct {
	RunDir       string
	WorktreesDir string
}

// Expand yields repetitions instances per definition, in definition order,
// and assigns each its color and the shared name padding.
func Expand(defs []*Definition, repetitions int, layout Layout) []*Instance {
	var instances []*Instance
	for _, def := range defs {
		for rep := 0; rep < repetitions; rep++ {
			name := def.Name
			if repetitions > 1 {
				name = fmt.Sprintf("%s-%d", def.Name, rep)
			}
			instances = append(instances, &Instance{
				Definition:  def,
				Repetition:  rep,
				Name:        name,
				RunDir:      layout.RunDir,
				OutputDir:   filepath.Join(layout.RunDir, name),
				WorktreeDir: filepath.Join(layout.WorktreesDir, name),
			})
		}
	}
	decorate(instances)
	return instances
}

// Restore rebuilds the instances of a stored run from their names. Names
// that match no definition are returned in missing.
func Restore(defs []*Definition, names []string, layout Layout) (instances []*Instance, missing []string) {
	byName := make(map[string]*Definition, len(defs))
	for _, def := range defs {
		byName[def.Name] = def
	}
	for _, name := range names {
		def, rep, ok := lookupInstance(byName, name)
		if !ok {
			missing = append(missing, name)
			continue
		}
		instances = append(instances, &Instance{
			Definition:  def,
			Repetition:  rep,
			Name:        name,
			RunDir:      layout.RunDir,
			OutputDir:   filepath.Join(layout.RunDir, name),
			WorktreeDir: filepath.Join(layout.WorktreesDir, name),
		})
	}
	decorate(instances)
	return instances, missing
}

// lookupInstance resolves "name" or "name-<rep>" to its definition. An exact
// match wins so examples whose names end in a number still resolve.
func lookupInstance(byName map[string]*Definition, name string) (*Definition, int, bool) {
	if def, ok := byName[name]; ok {
		return def, 0, true
	}
	i := strings.LastIndexByte(name, '-')
	if i <= 0 {
		return nil, 0, false
	}
	rep, err := strconv.Atoi(name[i+1:])
	if err != nil || rep < 0 {
		return nil, 0, false
	}
	def, ok := byName[name[:i]]
	return def, rep, ok
}

func decorate(instances []*Instance) {
	width := 0
	for _, inst := range instances {
		width = max(width, runewidth.StringWidth(inst.Name))
	}
	for i, inst := range instances {
		inst.Color = Palette[i%len(Palette)]
		inst.NameWidth = width
	}
}
