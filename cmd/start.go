package cmd

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"sombot/internal/bot"
	"sombot/internal/config"
)

var startChannel string

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Connect to chat and run the bot",
	Long: `Connect to Twitch chat and run the bot until interrupted.

Requires a stored token; run 'sombot auth' first. The token is
refreshed automatically in the background for as long as the bot runs.`,
	RunE: runStart,
}

func init() {
	startCmd.Flags().StringVar(&startChannel, "channel", "", "Channel to join (overrides configuration)")
	rootCmd.AddCommand(startCmd)
}

func runStart(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load("")
	if err != nil {
		return err
	}
	if startChannel != "" {
		cfg.Channel = startChannel
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	b, err := bot.New(cfg, newManager(cfg), bot.Options{})
	if err != nil {
		return err
	}
	return b.Run(ctx)
}
