package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"sombot/internal/config"
)

var genEnvPath string

var genEnvCmd = &cobra.Command{
	Use:   "gen-env",
	Short: "Generate a sample .env file",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.WriteEnvTemplate(genEnvPath); err != nil {
			return err
		}
		fmt.Printf("Sample environment file written to %s\n", genEnvPath)
		fmt.Println("Fill in your Twitch credentials, then run 'sombot auth'.")
		return nil
	},
}

func init() {
	genEnvCmd.Flags().StringVar(&genEnvPath, "output", ".env", "Where to write the sample file")
	rootCmd.AddCommand(genEnvCmd)
}
