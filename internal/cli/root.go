package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ppiankov/claimwatch/internal/config"
	"github.com/ppiankov/claimwatch/internal/logging"
	"github.com/ppiankov/claimwatch/internal/model"
)

// Version is set at build time with -ldflags "-X .../internal/cli.Version=..."
var Version = "v0.1.0-dev"

// skipConfigAnnotation marks commands that run without loading configuration
const skipConfigAnnotation = "claimwatch/skip-config"

var (
	cfgFile  string
	envFile  string
	dbDSN    string
	logLevel string
	verbose  bool

	// appConfig is loaded once in PersistentPreRunE
	appConfig  *model.Config
	configUsed string
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "claimwatch",
	Short: "claimwatch - brand mention monitoring with verifiable fact-check verdicts",
	Long: `claimwatch collects public mentions of tracked companies, prioritises them,
fact-checks the risky ones with an LLM oracle and alerts the company by email
when a claim is judged False or Misleading.

Every verdict is appended to a SHA-256 hash-chained ledger that can be
re-verified at any time with 'claimwatch ledger verify'.`,
	SilenceErrors:     true,
	SilenceUsage:      true,
	PersistentPreRunE: loadConfig,
}

// Execute runs the root command
func Execute() error {
	defer logging.Sync()
	return rootCmd.Execute()
}

// versionCmd represents the version command
var versionCmd = &cobra.Command{
	Use:         "version",
	Short:       "Print version information",
	Annotations: map[string]string{skipConfigAnnotation: "true"},
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "claimwatch %s\n", Version)
	},
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: $HOME/.claimwatch/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", "", "dotenv file (default: ./.env when present)")
	rootCmd.PersistentFlags().StringVar(&dbDSN, "db", "", "database DSN, overrides database.dsn")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	// Add subcommands
	rootCmd.AddCommand(versionCmd)
}

// loadConfig builds the configuration and the process logger. Flags are
// applied last so they win over every other source.
func loadConfig(cmd *cobra.Command, args []string) error {
	if cmd.Annotations[skipConfigAnnotation] == "true" {
		return nil
	}

	cfg, used, err := config.Load(config.Options{File: cfgFile, EnvFile: envFile})
	if err != nil {
		return err
	}

	if dbDSN != "" {
		cfg.Database.DSN = dbDSN
		cfg.Database.Driver = "sqlite"
		if config.IsPostgresDSN(dbDSN) {
			cfg.Database.Driver = "postgres"
		}
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	if verbose {
		cfg.Logging.Level = "debug"
	}

	log, err := logging.Init(cfg.Logging)
	if err != nil {
		return fmt.Errorf("initialize logger: %w", err)
	}
	if used != "" {
		log.Debug("using config file", zap.String("path", used))
	}

	appConfig = cfg
	configUsed = used
	return nil
}

// exitError carries a process exit code out of a command
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

// ExitCode maps an Execute error to a process exit code
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var ee *exitError
	if errors.As(err, &ee) {
		return ee.code
	}
	return 1
}

func stderr(format string, a ...interface{}) {
	fmt.Fprintf(os.Stderr, format, a...)
}
