package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"termcoder/internal/config"
)

// =============================================================================
// CONFIG COMMANDS
// =============================================================================

var configForce bool

// configCmd inspects and initializes configuration
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect or create the workspace configuration",
	Long: `Inspect or create .termcoder/config.yaml.

Subcommands:
  show     - Print the effective configuration (keys redacted)
  init     - Write a default config file
  path     - Print the config file location
  validate - Check the configuration`,
	RunE: runConfigShow,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	RunE:  runConfigShow,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default config file",
	RunE:  runConfigInit,
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print the config file location",
	RunE: func(cmd *cobra.Command, args []string) error {
		_, path, _, err := loadConfig()
		if err != nil {
			return err
		}
		fmt.Println(path)
		return nil
	},
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check the configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, path, _, err := loadConfig()
		if err != nil {
			return err
		}
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		fmt.Printf("✅ %s is valid\n", path)
		return nil
	},
}

func init() {
	configInitCmd.Flags().BoolVarP(&configForce, "force", "f", false, "Overwrite an existing config file")
	configCmd.AddCommand(configShowCmd, configInitCmd, configPathCmd, configValidateCmd)
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, path, _, err := loadConfig()
	if err != nil {
		return err
	}
	data, err := yaml.Marshal(redacted(cfg))
	if err != nil {
		return err
	}
	fmt.Printf("# %s\n%s", path, data)
	return nil
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	_, path, _, err := loadConfig()
	if err != nil {
		return err
	}
	if _, err := os.Stat(path); err == nil && !configForce {
		return fmt.Errorf("%s already exists (use --force to overwrite)", path)
	}
	if err := config.DefaultConfig().Save(path); err != nil {
		return err
	}
	fmt.Printf("✅ Wrote %s\n", path)
	return nil
}

// redacted copies cfg with secrets masked.
func redacted(cfg *config.Config) config.Config {
	out := *cfg
	if out.LLM.APIKey != "" {
		out.LLM.APIKey = "***"
	}
	if out.Embedding.GenAIAPIKey != "" {
		out.Embedding.GenAIAPIKey = "***"
	}
	return out
}
