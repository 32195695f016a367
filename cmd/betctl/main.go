// betctl is a command-line client for the SocialBets API.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var Version = "dev"

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "betctl",
		Short:         "Create, join and resolve SocialBets wagers",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().String("api", envOrDefault("SOCIALBETS_API_URL", "http://localhost:8080"), "API base URL")
	cmd.PersistentFlags().String("key", os.Getenv("SOCIALBETS_PRIVATE_KEY"), "hex private key used to sign actions")

	cmd.AddCommand(
		betIDCmd(),
		getCmd(),
		dueCmd(),
		createCmd(),
		participateCmd(),
		voteCmd(),
		mediateCmd(),
		crankCmd(),
		feeCmd(),
		balanceCmd(),
		withdrawCmd(),
	)
	return cmd
}

func envOrDefault(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}
