package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	serveHost      string
	servePort      int
	serveNoWatch   bool
	serveNoCollect bool

	watchOnce     bool
	watchInterval time.Duration
	watchCollect  bool
)

// serveCmd runs the API together with the background jobs
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API, the watchdog and periodic collection",
	Long: `Serve starts the operator HTTP API and, unless disabled, the background jobs:

- the watchdog, which analyses new High priority posts of tracked companies
  every watchdog.interval and alerts on False or Misleading verdicts
- periodic collection from every configured source every collection.interval

Example:
  claimwatch serve --port 8080
  claimwatch serve --no-collect`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

// watchCmd runs the background jobs without the API
var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Run the watchdog loop (and optionally collection) in the foreground",
	Long: `Watch runs the watchdog without the HTTP API.

With --once a single cycle runs and its report is printed.

Example:
  claimwatch watch
  claimwatch watch --once
  claimwatch watch --interval 30s --collect`,
	Args: cobra.NoArgs,
	RunE: runWatch,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(watchCmd)

	serveCmd.Flags().StringVar(&serveHost, "host", "", "listen host, overrides api.host")
	serveCmd.Flags().IntVar(&servePort, "port", 0, "listen port, overrides api.port")
	serveCmd.Flags().BoolVar(&serveNoWatch, "no-watchdog", false, "disable the watchdog loop")
	serveCmd.Flags().BoolVar(&serveNoCollect, "no-collect", false, "disable periodic collection")

	watchCmd.Flags().BoolVar(&watchOnce, "once", false, "run a single cycle and exit")
	watchCmd.Flags().DurationVar(&watchInterval, "interval", 0, "polling interval, overrides watchdog.interval")
	watchCmd.Flags().BoolVar(&watchCollect, "collect", false, "also run periodic collection")
}

func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := *appConfig
	if serveHost != "" {
		cfg.API.Host = serveHost
	}
	if servePort != 0 {
		cfg.API.Port = servePort
	}
	if serveNoWatch {
		cfg.Watchdog.Enabled = false
	}
	if serveNoCollect {
		cfg.Collection.Enabled = false
	}

	ctx, stop := signalContext(cmd.Context())
	defer stop()

	a, err := newApp(ctx, &cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	sched := a.scheduler()
	sched.Go("api", a.server().Run)

	a.log.Info("claimwatch serving",
		zap.String("version", Version),
		zap.String("address", fmt.Sprintf("%s:%d", cfg.API.Host, cfg.API.Port)),
		zap.Bool("watchdog", cfg.Watchdog.Enabled),
		zap.Bool("collection", cfg.Collection.Enabled),
	)
	return sched.Run(ctx)
}

func runWatch(cmd *cobra.Command, args []string) error {
	cfg := *appConfig
	if watchInterval > 0 {
		cfg.Watchdog.Interval = watchInterval
	}
	cfg.Watchdog.Enabled = true
	cfg.Collection.Enabled = watchCollect

	ctx, stop := signalContext(cmd.Context())
	defer stop()

	a, err := newApp(ctx, &cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	if watchOnce {
		report := a.watchdog.RunCycle(ctx)
		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), report)
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Cycle %s (%s)\n", report.ID, report.Duration.Round(time.Millisecond))
		fmt.Fprintf(out, "  Companies: %d\n", report.Companies)
		fmt.Fprintf(out, "  Pending:   %d\n", report.Pending)
		fmt.Fprintf(out, "  Processed: %d\n", report.Processed)
		fmt.Fprintf(out, "  Skipped:   %d\n", report.Skipped)
		fmt.Fprintf(out, "  Failed:    %d\n", report.Failed)
		fmt.Fprintf(out, "  Notified:  %d\n", report.Notified)
		return nil
	}

	return a.scheduler().Run(ctx)
}
