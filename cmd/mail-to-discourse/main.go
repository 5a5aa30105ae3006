// Package main is the AWS Lambda entry point for the mail bridge. It is
// invoked by an SES receipt rule after the S3 action stored the message.
package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"

	"github.com/shineum/mail-to-discourse/internal/app"
	"github.com/shineum/mail-to-discourse/internal/bridge"
	"github.com/shineum/mail-to-discourse/internal/logging"
)

func main() {
	cfg, err := app.LoadConfig(os.Getenv("ENV_FILE"), os.Getenv("CONFIG_FILE"))
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logging.Setup(os.Stdout, cfg.Logging.Level)

	ctx := context.Background()
	sender, err := app.SelectNotifier(ctx, cfg, false)
	if err != nil {
		slog.Error("failed to set up notifier", "error", err)
		os.Exit(1)
	}

	b, err := app.NewBridge(ctx, cfg, sender)
	if err != nil {
		slog.Error("failed to set up bridge", "error", err)
		os.Exit(1)
	}

	lambda.Start(newHandler(b))
}

// batchHandler is the part of bridge.Bridge the Lambda handler needs.
type batchHandler interface {
	HandleBatch(ctx context.Context, records []bridge.Record) []bridge.Result
}

// newHandler returns the Lambda handler. Per-record failures are reported
// through notifications, so the invocation itself always succeeds.
func newHandler(b batchHandler) func(context.Context, events.SimpleEmailEvent) error {
	return func(ctx context.Context, event events.SimpleEmailEvent) error {
		records := recordsFromEvent(event)
		slog.InfoContext(ctx, "received SES event", "records", len(records))

		results := b.HandleBatch(ctx, records)

		notifyFailures := 0
		for _, r := range results {
			if r.NotifyErr != nil {
				notifyFailures++
			}
		}
		slog.InfoContext(ctx, "batch complete",
			"records", len(results),
			"outcomes", bridge.Summarize(results),
			"notify_failures", notifyFailures,
		)
		return nil
	}
}

func recordsFromEvent(event events.SimpleEmailEvent) []bridge.Record {
	records := make([]bridge.Record, 0, len(event.Records))
	for _, r := range event.Records {
		records = append(records, bridge.Record{
			MessageID: r.SES.Mail.MessageID,
			Source:    r.SES.Mail.Source,
		})
	}
	return records
}
