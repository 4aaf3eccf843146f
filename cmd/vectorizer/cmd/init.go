package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/vectorizer-project/vectorizer/configs"
	"github.com/vectorizer-project/vectorizer/internal/output"
)

func newInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Write a starter .vectorizer.yaml in the current directory",
		RunE: func(c *cobra.Command, args []string) error {
			return runInit(c)
		},
	}
}

func runInit(cmd *cobra.Command) error {
	out := output.New(cmd.OutOrStdout())
	wd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("init: %w", err)
	}
	return generateProjectConfig(out, wd)
}

// generateProjectConfig writes .vectorizer.yaml from the embedded project
// config template, unless a .vectorizer.yaml or .vectorizer.yml already
// exists in projectRoot.
func generateProjectConfig(out *output.Writer, projectRoot string) error {
	yamlPath := filepath.Join(projectRoot, ".vectorizer.yaml")
	if _, err := os.Stat(yamlPath); err == nil {
		out.Status("ℹ️ ", "existing .vectorizer.yaml preserved")
		return nil
	}
	ymlPath := filepath.Join(projectRoot, ".vectorizer.yml")
	if _, err := os.Stat(ymlPath); err == nil {
		out.Status("ℹ️ ", "existing .vectorizer.yml found, skipping template")
		return nil
	}
	if err := os.WriteFile(yamlPath, []byte(configs.ProjectConfigTemplate), 0o644); err != nil {
		return fmt.Errorf("failed to write .vectorizer.yaml: %w", err)
	}
	out.Statusf("📝", "created %s", yamlPath)
	return nil
}
