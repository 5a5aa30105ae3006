package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/shineum/mail-to-discourse/internal/app"
	"github.com/shineum/mail-to-discourse/internal/bridge"
	"github.com/shineum/mail-to-discourse/internal/logging"
)

var dryRun bool

var replayCmd = &cobra.Command{
	Use:   "replay <messageId>...",
	Short: "Re-run stored messages through the bridge",
	Long: `Fetch each message from the configured bucket and process it exactly as
the Lambda function would. With --dry-run, notifications are printed to
stdout instead of being sent through SES; forum calls are still made.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runReplay,
}

func init() {
	replayCmd.Flags().BoolVar(&dryRun, "dry-run", false, "print notifications instead of sending them")
	rootCmd.AddCommand(replayCmd)
}

func runReplay(cmd *cobra.Command, args []string) error {
	cfg, err := app.LoadConfig(envFile, configPath)
	if err != nil {
		return err
	}

	logging.Setup(os.Stderr, cfg.Logging.Level)

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	sender, err := app.SelectNotifier(ctx, cfg, dryRun)
	if err != nil {
		return err
	}
	b, err := app.NewBridge(ctx, cfg, sender)
	if err != nil {
		return err
	}

	records := make([]bridge.Record, 0, len(args))
	for _, id := range args {
		records = append(records, bridge.Record{MessageID: id})
	}

	results := b.HandleBatch(ctx, records)
	printResults(cmd.OutOrStdout(), results)

	if failed := countFailed(results); failed > 0 {
		return fmt.Errorf("%d of %d messages were not delivered", failed, len(results))
	}
	return nil
}

func printResults(w io.Writer, results []bridge.Result) {
	for _, r := range results {
		line := fmt.Sprintf("%s\t%s", r.Record.MessageID, r.Outcome)
		if r.PostID != 0 {
			line += fmt.Sprintf("\tpost=%d", r.PostID)
		}
		if r.Err != nil {
			line += "\terror=" + r.Err.Error()
		}
		if r.NotifyErr != nil {
			line += "\tnotify_error=" + r.NotifyErr.Error()
		}
		fmt.Fprintln(w, line)
	}
}

func countFailed(results []bridge.Result) int {
	n := 0
	for _, r := range results {
		if r.Outcome != bridge.Delivered && r.Outcome != bridge.NoContent {
			n++
		}
	}
	return n
}
