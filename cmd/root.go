package cmd

import (
	"errors"
	"os"

	"github.com/spf13/cobra"

	"sombot/internal/oauth"
	"sombot/pkg/logging"
)

// Exit codes for CLI commands. These follow common conventions so wrappers
// and service managers can react to authentication problems specifically.
const (
	// ExitCodeSuccess indicates successful execution.
	ExitCodeSuccess = 0
	// ExitCodeError indicates a general error.
	ExitCodeError = 1
	// ExitCodeAuthRequired indicates authentication is required but not available.
	ExitCodeAuthRequired = 2
	// ExitCodeAuthFailed indicates the OAuth device-code flow failed.
	ExitCodeAuthFailed = 3
)

var verbose bool

// rootCmd represents the base command for the sombot application.
var rootCmd = &cobra.Command{
	Use:   "sombot",
	Short: "A Twitch chat bot with device-code authentication",
	Long: `sombot connects to a Twitch channel, greets first-time chatters,
and answers chat commands. It authenticates via the OAuth device-code
flow, so it can run on headless machines without a browser.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level := logging.LevelInfo
		if verbose {
			level = logging.LevelDebug
		}
		logging.Init(level, os.Stderr)
	},
}

// SetVersion sets the version for the root command. Called from main to
// inject the build-time version.
func SetVersion(v string) {
	rootCmd.Version = v
}

// Execute is the main entry point for the CLI application.
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "sombot version %s\n" .Version}}`)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(getExitCode(err))
	}
}

// getExitCode maps error types to semantic exit codes.
func getExitCode(err error) int {
	switch {
	case errors.Is(err, oauth.ErrAuthenticationRequired),
		errors.Is(err, oauth.ErrNeedsReauthorization):
		return ExitCodeAuthRequired
	case errors.Is(err, oauth.ErrAuthorizationDenied),
		errors.Is(err, oauth.ErrAuthorizationExpired):
		return ExitCodeAuthFailed
	}

	var perr *oauth.ProviderError
	if errors.As(err, &perr) {
		return ExitCodeAuthFailed
	}
	return ExitCodeError
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
}
