package cmd

import (
	"fmt"
	"path/filepath"
	"slices"

	"github.com/signalnine/gauntlet/internal/example"
	"github.com/spf13/cobra"
)

func newListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list [example-filter...]",
		Short: "List available examples",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			languages := cfg.Defaults.Languages
			if cmd.Flags().Changed("languages") {
				languages = flagListLanguages
			}

			dirs, err := example.List(cfg.Paths.Examples)
			if err != nil {
				return err
			}
			fmt.Println("Examples:")
			for _, dir := range dirs {
				if !example.MatchesName(filepath.Base(dir), args) {
					continue
				}
				def, err := example.Load(dir)
				if err != nil {
					fmt.Printf("  - %s (invalid: %v)\n", filepath.Base(dir), err)
					continue
				}
				fmt.Printf("  - %s [%s] %s@%s%s\n", def.Name, languageLabel(def), def.Base.URL, def.Base.Revision, skipNote(def, languages))
			}
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&flagListLanguages, "languages", nil, "language tags to include (default from config)")
	return cmd
}

var flagListLanguages []string

func languageLabel(def *example.Definition) string {
	if def.Base.LanguageExtension == "" {
		return "?"
	}
	return def.Base.LanguageExtension
}

func skipNote(def *example.Definition, languages []string) string {
	if def.Base.LanguageExtension == "" || !slices.Contains(languages, def.Base.LanguageExtension) {
		return " (skipped)"
	}
	return ""
}
