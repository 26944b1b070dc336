package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/signalnine/gauntlet/internal/report"
	"github.com/spf13/cobra"
)

var flagFormat string

func newReportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "report [run-dir]",
		Short: "Generate summary from stored results",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			runDir, err := resolveRunDir(cfg.Paths.Runs, args)
			if err != nil {
				return err
			}
			return report.Generate(runDir, flagFormat, os.Stdout, cfg.Pricing.File)
		},
	}
	cmd.Flags().StringVar(&flagFormat, "format", "table", "output format (table, markdown, json)")
	return cmd
}

// resolveRunDir returns args[0], or the latest run under runsDir.
func resolveRunDir(runsDir string, args []string) (string, error) {
	runDir := filepath.Join(runsDir, "latest")
	if len(args) > 0 {
		runDir = args[0]
	}
	resolved, err := filepath.EvalSymlinks(runDir)
	if err != nil {
		return "", fmt.Errorf("resolving run dir: %w", err)
	}
	return resolved, nil
}
