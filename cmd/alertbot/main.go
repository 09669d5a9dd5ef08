package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"stockalert/internal/app"
	"stockalert/internal/config"
)

// version is set with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var cfgPath string
	root := &cobra.Command{
		Use:           "alertbot",
		Short:         "Telegram alerts for NSE filings, news and price thresholds",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().StringVarP(&cfgPath, "config", "c", "./config.json", "path to config file (json or yaml)")

	root.AddCommand(newRunCmd(&cfgPath), newCheckConfigCmd(&cfgPath), newVersionCmd())
	return root
}

func newRunCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the bot until SIGINT or SIGTERM",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			a, err := app.New(*cfgPath)
			if err != nil {
				return fmt.Errorf("init: %w", err)
			}
			if err := a.Start(ctx); err != nil {
				stopCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
				defer stop()
				_ = a.Stop(stopCtx, app.StopFatalError)
				return fmt.Errorf("start: %w", err)
			}

			reason := app.StopSignal
			select {
			case <-ctx.Done():
			case <-a.Done():
				reason = app.StopFatalError
			}

			stopCtx, stop := context.WithTimeout(context.Background(), 10*time.Second)
			defer stop()
			_ = a.Stop(stopCtx, reason)
			if reason == app.StopFatalError {
				return a.Err()
			}
			return nil
		},
	}
}

func newCheckConfigCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "check-config",
		Short: "Validate the config file and print the effective schedule",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.NewConfigManager(*cfgPath).Load()
			if err != nil {
				return err
			}
			poll, floored := cfg.PollInterval()
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "config ok: %s\n", *cfgPath)
			fmt.Fprintf(out, "  storage:    %s %s\n", cfg.Storage.Driver, cfg.Storage.Path)
			fmt.Fprintf(out, "  poll:       %s", poll)
			if floored {
				fmt.Fprint(out, " (raised to floor)")
			}
			fmt.Fprintln(out)
			fmt.Fprintf(out, "  digest at:  %s %s\n", cfg.Alerts.DigestAt, cfg.Location())
			fmt.Fprintf(out, "  feeds:      %s\n", strings.Join(enabledFeeds(cfg), ", "))
			return nil
		},
	}
}

func enabledFeeds(cfg *config.Config) []string {
	var out []string
	if cfg.Feeds.Filings.Enabled {
		out = append(out, "filings")
	}
	if cfg.Feeds.News.Enabled && cfg.Feeds.News.APIKey != "" {
		out = append(out, "news")
	}
	if cfg.Feeds.Quotes.APIKey != "" {
		out = append(out, "quotes")
	}
	if len(out) == 0 {
		out = append(out, "none")
	}
	return out
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "alertbot", version)
		},
	}
}
