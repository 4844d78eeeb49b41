package cmd

import (
	"fmt"
	"time"

	"github.com/briandowns/spinner"
	"github.com/spf13/cobra"

	"sombot/internal/config"
	"sombot/internal/oauth"
)

var authForce bool

var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Authenticate with Twitch using the device-code flow",
	Long: `Authenticate with Twitch using the OAuth device-code flow.

A short code is displayed; enter it at the verification page on any
device with a browser. The resulting token is stored in the data
directory and refreshed automatically while the bot runs.

Use --force to discard the current token and authorize again, for
example after the required scopes change.`,
	RunE: runAuth,
}

var authStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the current authentication state",
	RunE:  runAuthStatus,
}

var authLogoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Discard the stored token",
	RunE:  runAuthLogout,
}

func init() {
	authCmd.Flags().BoolVar(&authForce, "force", false, "Re-authenticate even if a valid token exists")
	authCmd.AddCommand(authStatusCmd)
	authCmd.AddCommand(authLogoutCmd)
	rootCmd.AddCommand(authCmd)
}

// newManager builds the OAuth manager from the loaded configuration, with a
// prompt that prints the user code and waits with a spinner.
func newManager(cfg config.Config) *oauth.Manager {
	return oauth.NewManager(oauth.Config{
		ClientID:  cfg.ClientID,
		Scopes:    cfg.Scopes,
		TokenPath: cfg.TokenPath(),
		Prompt: func(userCode, verificationURI string) {
			fmt.Println()
			fmt.Printf("  Open %s\n", verificationURI)
			fmt.Printf("  and enter the code: %s\n", userCode)
			fmt.Println()

			activeSpinner = spinner.New(spinner.CharSets[14], 100*time.Millisecond)
			activeSpinner.Suffix = " Waiting for approval..."
			activeSpinner.Start()
		},
	})
}

func runAuth(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load("")
	if err != nil {
		return err
	}

	m := newManager(cfg)

	if !authForce {
		if st := m.Status(); st.State == oauth.StateAuthenticated {
			fmt.Println("Already authenticated. Use --force to re-authenticate.")
			return nil
		}
	}

	err = m.Authorize(cmd.Context(), authForce)

	// Authorize may finish before the prompt ever ran (e.g. device request
	// failed), so only a started spinner is stopped.
	stopSpinners()

	if err != nil {
		return err
	}

	st := m.Status()
	fmt.Println("Authentication successful.")
	fmt.Printf("Token stored at %s (expires %s)\n", st.TokenPath, st.ExpiresAt.Format(time.RFC1123))
	return nil
}

// activeSpinner is the spinner started by the auth prompt, if any.
var activeSpinner *spinner.Spinner

func stopSpinners() {
	if activeSpinner != nil {
		activeSpinner.Stop()
		activeSpinner = nil
	}
}

func runAuthStatus(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load("")
	if err != nil {
		return err
	}

	m := newManager(cfg)
	st := m.Status()

	fmt.Printf("State:      %s\n", st.State)
	fmt.Printf("Token file: %s\n", st.TokenPath)
	if st.State != oauth.StateAuthenticated {
		fmt.Println("\nRun 'sombot auth' to authenticate.")
		return nil
	}

	fmt.Printf("Scopes:     %v\n", st.Scope)
	fmt.Printf("Obtained:   %s\n", st.ObtainedAt.Format(time.RFC1123))
	fmt.Printf("Expires:    %s", st.ExpiresAt.Format(time.RFC1123))
	if remaining := time.Until(st.ExpiresAt); remaining > 0 {
		fmt.Printf(" (in %s)", remaining.Round(time.Minute))
	} else {
		fmt.Printf(" (expired, will refresh on next use)")
	}
	fmt.Println()
	if !st.HasRefreshToken {
		fmt.Println("\nNo refresh token held; re-authentication will be needed at expiry.")
	}
	return nil
}

func runAuthLogout(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load("")
	if err != nil {
		return err
	}

	m := newManager(cfg)
	if st := m.Status(); st.State != oauth.StateAuthenticated {
		fmt.Println("Not authenticated; nothing to discard.")
		return nil
	}

	if err := m.Logout(); err != nil {
		return fmt.Errorf("failed to remove token: %w", err)
	}
	fmt.Println("Token discarded.")
	return nil
}
