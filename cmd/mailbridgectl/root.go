// Package main is an operator CLI for the mail bridge. It re-runs stored
// messages through the same pipeline the Lambda function uses.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	configPath string
	envFile    string
)

var rootCmd = &cobra.Command{
	Use:   "mailbridgectl",
	Short: "Operate the email to Discourse bridge",
	Long: `mailbridgectl re-processes inbound emails already stored in S3,
using the same configuration and pipeline as the Lambda function.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to YAML configuration file (optional)")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "path to a .env file loaded before the environment (optional)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
