package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/vectorizer-project/vectorizer/configs"
	"github.com/vectorizer-project/vectorizer/internal/config"
	"github.com/vectorizer-project/vectorizer/internal/output"
)

func newConfigCmd() *cobra.Command {
	cfgCmd := &cobra.Command{
		Use:   "config",
		Short: "Manage the user configuration file",
	}

	cfgCmd.AddCommand(newConfigInitCmd())
	cfgCmd.AddCommand(newConfigShowCmd())
	cfgCmd.AddCommand(newConfigPathCmd())

	return cfgCmd
}

func newConfigInitCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create or upgrade the user configuration file",
		RunE: func(c *cobra.Command, args []string) error {
			return runConfigInit(c, force)
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "merge newly added defaults into an existing config")
	return cmd
}

func newConfigShowCmd() *cobra.Command {
	var jsonOutput bool
	var source string
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print the effective or a single-layer configuration",
		RunE: func(c *cobra.Command, args []string) error {
			return runConfigShow(c, jsonOutput, source)
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "print as JSON instead of YAML")
	cmd.Flags().StringVar(&source, "source", "merged", "merged | user | project | defaults")
	return cmd
}

func newConfigPathCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Print the path to the user configuration file",
		RunE: func(c *cobra.Command, args []string) error {
			fmt.Fprintln(c.OutOrStdout(), config.GetUserConfigPath())
			return nil
		},
	}
}

func runConfigInit(cmd *cobra.Command, force bool) error {
	out := output.New(cmd.OutOrStdout())
	configPath := config.GetUserConfigPath()

	if !config.UserConfigExists() {
		if err := os.MkdirAll(config.GetUserConfigDir(), 0o755); err != nil {
			return fmt.Errorf("config init: creating config directory: %w", err)
		}
		if err := os.WriteFile(configPath, []byte(configs.UserConfigTemplate), 0o644); err != nil {
			return fmt.Errorf("config init: writing config: %w", err)
		}
		out.Successf("created %s", configPath)
		return nil
	}

	if !force {
		out.Status("ℹ️ ", fmt.Sprintf("%s already exists; pass --force to merge in newly added defaults", configPath))
		return nil
	}

	return runConfigUpgrade(out, configPath)
}

// runConfigUpgrade backs up the existing user config, fills in any fields
// that were added to the schema since it was written, and reports what
// changed.
func runConfigUpgrade(out *output.Writer, configPath string) error {
	backupPath, err := config.BackupUserConfig()
	if err != nil {
		return fmt.Errorf("config init: backing up existing config: %w", err)
	}
	if backupPath != "" {
		out.Statusf("📦", "backed up existing config to %s", backupPath)
	}

	existingCfg, err := config.LoadUserConfig()
	if err != nil {
		return fmt.Errorf("config init: loading existing config: %w", err)
	}
	if existingCfg == nil {
		existingCfg = config.NewConfig()
	}

	added := existingCfg.MergeNewDefaults()
	if err := existingCfg.WriteYAML(configPath); err != nil {
		return fmt.Errorf("config init: writing merged config: %w", err)
	}

	if len(added) == 0 {
		out.Success("config already has every current default field")
		return nil
	}
	out.Successf("merged %d new default field(s) into %s", len(added), configPath)
	for _, field := range added {
		out.Status("  +", field)
	}
	return nil
}

func runConfigShow(cmd *cobra.Command, jsonOutput bool, source string) error {
	var cfgToShow *config.Config

	switch source {
	case "defaults":
		cfgToShow = config.NewConfig()
	case "user":
		userCfg, err := config.LoadUserConfig()
		if err != nil {
			return fmt.Errorf("config show: loading user config: %w", err)
		}
		if userCfg == nil {
			return fmt.Errorf("config show: no user config at %s", config.GetUserConfigPath())
		}
		cfgToShow = userCfg
	case "project":
		root, err := config.FindProjectRoot(".")
		if err != nil {
			return fmt.Errorf("config show: finding project root: %w", err)
		}
		loaded, err := config.Load(root)
		if err != nil {
			return fmt.Errorf("config show: loading project config: %w", err)
		}
		cfgToShow = loaded
	case "merged":
		cfgToShow = cfg
	default:
		return fmt.Errorf("config show: unknown --source %q (want merged, user, project, or defaults)", source)
	}

	if jsonOutput {
		data, err := json.MarshalIndent(cfgToShow, "", "  ")
		if err != nil {
			return fmt.Errorf("config show: marshaling JSON: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(data))
		return nil
	}

	data, err := yaml.Marshal(cfgToShow)
	if err != nil {
		return fmt.Errorf("config show: marshaling YAML: %w", err)
	}
	fmt.Fprint(cmd.OutOrStdout(), string(data))
	return nil
}
