// Package cmd provides the vigil command-line interface.
package cmd

import (
	"fmt"
	"os"

	"vigil/core"
	"vigil/detect"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	successColor = color.New(color.FgGreen, color.Bold)
	errorColor   = color.New(color.FgRed, color.Bold)
	infoColor    = color.New(color.FgCyan)
)

var rulesDir string

// NewRulesCommand builds the `rules` command group.
func NewRulesCommand() *cobra.Command {
	rulesCmd := &cobra.Command{
		Use:   "rules",
		Short: "Manage correlation rules",
	}
	rulesCmd.PersistentFlags().StringVar(&rulesDir, "dir", "./rules", "Directory of YAML rule files")

	lintCmd := &cobra.Command{
		Use:   "lint",
		Short: "Validate rule files without loading them into an engine",
		RunE:  runLint,
	}
	rulesCmd.AddCommand(lintCmd)

	return rulesCmd
}

func runLint(cmd *cobra.Command, _ []string) error {
	logger := zap.NewNop().Sugar()
	loader := detect.NewRuleLoader(rulesDir, core.NewSnapshotStore(), logger)

	rules, err := loader.ReadAll()
	if err != nil {
		errorColor.Fprintf(os.Stderr, "✗ %v\n", err)
		return fmt.Errorf("rule validation failed")
	}

	enabled := 0
	for _, r := range rules {
		if r.Enabled {
			enabled++
		}
		marker := infoColor.Sprint("•")
		fmt.Fprintf(cmd.OutOrStdout(), "%s %s (%s, severity=%s, enabled=%t)\n",
			marker, r.ID, r.Name, r.Severity, r.Enabled)
	}

	successColor.Fprintf(cmd.OutOrStdout(), "✓ %d rules valid (%d enabled)\n", len(rules), enabled)
	return nil
}
