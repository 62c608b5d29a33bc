// Package cli implements the timely command-line client.
package cli

import (
	"context"
	"encoding/json"
	"os"

	"github.com/spf13/cobra"

	"github.com/Bhavikpatel576/timely/internal/bootstrap"
	"github.com/Bhavikpatel576/timely/internal/config"
	"github.com/Bhavikpatel576/timely/internal/domain"
)

var (
	jsonOutput bool
	verbose    bool
	fromDate   string
	toDate     string
)

// openApp is swapped by tests.
var openApp = func(ctx context.Context, tweak func(*config.Config), opts bootstrap.Options) (*bootstrap.App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if !verbose {
		cfg.LogLevel = "warn"
	}
	if tweak != nil {
		tweak(&cfg)
	}
	return bootstrap.Open(ctx, cfg, cfg.NewLogger(os.Stderr), opts)
}

var rootCmd = &cobra.Command{
	Use:   "timely",
	Short: "Query and classify tracked activity",
	Long: `timely - where did the time go
  - summaries, trends and focus reports over any date range
  - rules that map apps, sites and titles to categories`,
	SilenceUsage: true,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "print JSON instead of tables")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log at the configured level instead of warn")
	rootCmd.PersistentFlags().StringVar(&fromDate, "from", "", "first day of the range (YYYY-MM-DD, default today)")
	rootCmd.PersistentFlags().StringVar(&toDate, "to", "", "last day of the range (YYYY-MM-DD, default today)")
}

func withService(cmd *cobra.Command, fn func(ctx context.Context, svc *domain.Service) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	app, err := openApp(ctx, nil, bootstrap.Options{})
	if err != nil {
		return err
	}
	defer app.Close()
	return fn(ctx, app.Service)
}

func period(svc *domain.Service) domain.Period {
	return svc.Period(fromDate, toDate)
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
