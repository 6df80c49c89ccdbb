package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	str2duration "github.com/xhit/go-str2duration/v2"

	"github.com/unvoidf/sigscan"
	"github.com/unvoidf/sigscan/pkg/config"
	"github.com/unvoidf/sigscan/pkg/metrics"
	"github.com/unvoidf/sigscan/pkg/storage"
)

// Command line flags
var (
	summaryPeriod string
)

func main() {
	rootCmd := &cobra.Command{
		Use:     "sigscan",
		Short:   "Crypto futures signal scanner and Telegram alert bot",
		Version: "1.0.0",
	}

	rootCmd.AddCommand(buildRunCmd())
	rootCmd.AddCommand(buildSummaryCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func buildRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Start the scanner service",
		RunE:  runService,
	}
}

func buildSummaryCmd() *cobra.Command {
	summaryCmd := &cobra.Command{
		Use:   "summary",
		Short: "Generate a performance summary from the local database",
		RunE:  runSummary,
	}

	summaryCmd.Flags().StringVarP(&summaryPeriod, "period", "p", "24h", "Report period (e.g. 24h, 7d)")

	return summaryCmd
}

func runService(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("configuration: %w", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := sigscan.New(ctx, cfg)
	if err != nil {
		return err
	}

	return app.Run(ctx)
}

// runSummary computes a fresh summary over the requested period and
// prints it as a table, without touching Telegram or the exchange.
func runSummary(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("configuration: %w", err)
	}

	period, err := str2duration.ParseDuration(summaryPeriod)
	if err != nil {
		return fmt.Errorf("invalid period %q: %w", summaryPeriod, err)
	}

	repo, err := storage.NewSQLiteRepository(cfg.DatabasePath, sigscan.DefaultLog)
	if err != nil {
		return err
	}
	defer repo.Close()

	summary, err := metrics.NewManager(sigscan.DefaultLog, repo).GenerateSummary(cmd.Context(), period)
	if err != nil {
		return err
	}
	if summary == nil {
		fmt.Printf("No signals in the last %s.\n", period)
		return nil
	}

	metrics.RenderTable(os.Stdout, summary)
	return nil
}
