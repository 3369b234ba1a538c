package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"AssistChat/internal/chatbot"
	"AssistChat/internal/config"
)

var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

type options struct {
	configPath string
	flags      *config.Config
}

func newRootCmd() *cobra.Command {
	return buildRootCmd(&options{flags: config.Default()})
}

func buildRootCmd(opts *options) *cobra.Command {
	flags := opts.flags

	cmd := &cobra.Command{
		Use:           "assistchat",
		Short:         "Chat with a remote assistant from the terminal",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(opts.configPath)
			if err != nil {
				return err
			}
			applyFlags(cmd, cfg, flags)

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			bot, err := chatbot.NewChatBot(ctx, cfg, version)
			if err != nil {
				return fmt.Errorf("failed to initialize chatbot: %w", err)
			}
			return bot.Run(ctx)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.configPath, "config", "", "Path to a TOML config file (default ~/.assistchat/config.toml)")
	f.StringVar(&flags.Endpoint, "endpoint", flags.Endpoint, "Assistant endpoint (http, https, ws or wss)")
	f.IntVar(&flags.TimeoutSecs, "timeout", flags.TimeoutSecs, "Seconds to wait for a reply")
	f.IntVar(&flags.FollowThreshold, "follow-threshold", flags.FollowThreshold, "Rows from the bottom that still count as following")
	f.StringVar(&flags.GlamourStyle, "style", flags.GlamourStyle, "Markdown style (auto|dark|light|notty|path)")
	f.StringVar(&flags.LogDir, "log-dir", flags.LogDir, "Directory for log files")
	f.StringVar(&flags.DBPath, "db", flags.DBPath, "SQLite exchange journal path")
	f.BoolVar(&flags.Journal, "journal", flags.Journal, "Record exchange outcomes in the journal")
	f.BoolVar(&flags.Telemetry, "telemetry", flags.Telemetry, "Export OpenTelemetry traces and metrics to the log directory")
	f.BoolVar(&flags.Debug, "debug", flags.Debug, "Enable debug logging")
	f.BoolVar(&flags.Plain, "plain", flags.Plain, "Use the line-mode REPL instead of the full-screen view")

	return cmd
}

// applyFlags copies explicitly set flags over the loaded config
func applyFlags(cmd *cobra.Command, cfg, flags *config.Config) {
	f := cmd.Flags()
	if f.Changed("endpoint") {
		cfg.Endpoint = flags.Endpoint
	}
	if f.Changed("timeout") {
		cfg.TimeoutSecs = flags.TimeoutSecs
	}
	if f.Changed("follow-threshold") {
		cfg.FollowThreshold = flags.FollowThreshold
	}
	if f.Changed("style") {
		cfg.GlamourStyle = flags.GlamourStyle
	}
	if f.Changed("log-dir") {
		cfg.LogDir = flags.LogDir
	}
	if f.Changed("db") {
		cfg.DBPath = flags.DBPath
	}
	if f.Changed("journal") {
		cfg.Journal = flags.Journal
	}
	if f.Changed("telemetry") {
		cfg.Telemetry = flags.Telemetry
	}
	if f.Changed("debug") {
		cfg.Debug = flags.Debug
	}
	if f.Changed("plain") {
		cfg.Plain = flags.Plain
	}
}
