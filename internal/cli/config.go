package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/ppiankov/claimwatch/internal/config"
)

// configCmd represents the config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage claimwatch configuration",
	Long: `Manage claimwatch configuration files and settings.

Configuration hierarchy (highest to lowest priority):
1. CLI flags
2. Environment variables (CLAIMWATCH_*, OPENAI_API_KEY, NEWS_API_KEY, ...)
3. .env file
4. Config file (~/.claimwatch/config.yaml)
5. Defaults`,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the effective configuration with secrets masked",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		redacted := config.Redacted(*appConfig)

		if jsonOutput {
			return printJSON(out, redacted)
		}

		if configUsed != "" {
			stderr("Configuration file: %s\n\n", configUsed)
		} else {
			stderr("No configuration file found (using defaults and environment)\n\n")
		}

		yamlData, err := yaml.Marshal(redacted)
		if err != nil {
			return fmt.Errorf("marshal config: %w", err)
		}

		printBanner(out, "Current Configuration")
		fmt.Fprintln(out, string(yamlData))
		fmt.Fprintln(out, banner)
		fmt.Fprintln(out)
		fmt.Fprintln(out, "Configuration hierarchy (highest to lowest priority):")
		fmt.Fprintln(out, "  1. CLI flags")
		fmt.Fprintf(out, "  2. Environment variables (%s_*, OPENAI_API_KEY, NEWS_API_KEY, ...)\n", config.EnvPrefix)
		fmt.Fprintln(out, "  3. .env file")
		fmt.Fprintln(out, "  4. Config file (~/.claimwatch/config.yaml)")
		fmt.Fprintln(out, "  5. Defaults")
		fmt.Fprintln(out)
		return nil
	},
}

var configInitCmd = &cobra.Command{
	Use:         "init",
	Short:       "Write a default configuration file",
	Long:        `Create a default configuration file at --config, or ~/.claimwatch/config.yaml. An existing file is never overwritten.`,
	Args:        cobra.NoArgs,
	Annotations: map[string]string{skipConfigAnnotation: "true"},
	RunE: func(cmd *cobra.Command, args []string) error {
		path := cfgFile
		if path == "" {
			p, err := config.DefaultPath()
			if err != nil {
				return err
			}
			path = p
		}

		if err := config.WriteDefault(path); err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "✓ Created default configuration: %s\n", path)
		fmt.Fprintf(out, "\nTo view the configuration:\n")
		fmt.Fprintf(out, "  claimwatch config show\n")
		fmt.Fprintf(out, "\nAPI keys are best kept in the environment or a .env file:\n")
		fmt.Fprintf(out, "  export OPENAI_API_KEY=sk-...\n")
		fmt.Fprintf(out, "  export NEWS_API_KEY=...\n")
		fmt.Fprintln(out)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configInitCmd)
}
