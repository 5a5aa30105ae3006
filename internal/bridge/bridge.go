// Package bridge turns inbound emails into forum posts. Each record runs
// through fetch, parse, user lookup, attachment upload and post creation.
// Every failure ends as an Outcome, and the notification to relay is
// derived from that Outcome alone.
package bridge

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/shineum/mail-to-discourse/internal/config"
	"github.com/shineum/mail-to-discourse/internal/discourse"
	"github.com/shineum/mail-to-discourse/internal/logging"
	"github.com/shineum/mail-to-discourse/internal/notifier"
	"github.com/shineum/mail-to-discourse/internal/parser"
)

// MailSource fetches raw messages. An empty result with a nil error means
// the stored object has no body.
type MailSource interface {
	Fetch(ctx context.Context, messageID string) ([]byte, error)
}

// Forum is the subset of the Discourse API the pipeline uses.
type Forum interface {
	FindUsersByEmail(ctx context.Context, address string) ([]discourse.User, error)
	UploadFile(ctx context.Context, username string, file discourse.File) (*discourse.Upload, error)
	CreatePost(ctx context.Context, username string, post discourse.Post) (*discourse.CreatedPost, error)
}

// Bridge wires the pipeline collaborators together.
type Bridge struct {
	cfg    *config.Config
	source MailSource
	forum  Forum
	sender notifier.Sender
	logger *slog.Logger
}

// Option customizes a Bridge.
type Option func(*Bridge)

// WithLogger overrides the default slog logger.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Bridge) {
		b.logger = logger
	}
}

// New creates a Bridge. cfg must already be validated.
func New(cfg *config.Config, source MailSource, forum Forum, sender notifier.Sender, opts ...Option) *Bridge {
	b := &Bridge{
		cfg:    cfg,
		source: source,
		forum:  forum,
		sender: sender,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// HandleBatch processes records strictly in order, each to completion before
// the next starts. A failing record never stops the batch.
func (b *Bridge) HandleBatch(ctx context.Context, records []Record) []Result {
	results := make([]Result, 0, len(records))
	for _, rec := range records {
		results = append(results, b.ProcessRecord(ctx, rec))
	}
	return results
}

// ProcessRecord runs the pipeline for one record and relays the notification
// its outcome calls for.
func (b *Bridge) ProcessRecord(ctx context.Context, rec Record) Result {
	res := Result{Record: rec, TraceID: uuid.NewString()}
	ctx = logging.WithAttrs(ctx,
		slog.String("trace_id", res.TraceID),
		slog.String("message_id", rec.MessageID),
	)

	b.run(ctx, &res)

	if res.Err != nil {
		b.logger.ErrorContext(ctx, "record failed", "outcome", res.Outcome.String(), "error", res.Err)
	} else {
		b.logger.InfoContext(ctx, "record processed", "outcome", res.Outcome.String(), "post_id", res.PostID)
	}

	if msg := NotificationFor(b.cfg, res); msg != nil {
		if err := b.sender.Send(ctx, msg); err != nil {
			res.NotifyErr = err
			b.logger.ErrorContext(ctx, "failed to relay notification",
				"outcome", res.Outcome.String(),
				"notifier", b.sender.Name(),
				"error", err,
			)
		} else {
			res.Notified = true
		}
	}

	return res
}

// run fills res.Outcome, res.Err and the fields gathered along the way.
func (b *Bridge) run(ctx context.Context, res *Result) {
	defer func() {
		if r := recover(); r != nil {
			res.Err = fmt.Errorf("panic while processing record: %v", r)
			if res.Mail == nil {
				res.Outcome = ParseFailed
			} else {
				res.Outcome = PostFailed
			}
		}
	}()

	messageID := res.Record.MessageID

	raw, err := b.source.Fetch(ctx, messageID)
	if err != nil {
		res.Outcome, res.Err = ParseFailed, err
		return
	}
	if len(raw) == 0 {
		b.logger.InfoContext(ctx, "missing body from email, returning early")
		res.Outcome = NoContent
		return
	}

	mail, err := parser.Parse(bytes.NewReader(raw))
	if err != nil {
		res.Outcome, res.Err = ParseFailed, err
		return
	}
	res.Mail = mail

	sender := mail.Sender()
	b.logger.InfoContext(ctx, "retrieving user", "sender", sender)
	users, err := b.forum.FindUsersByEmail(ctx, sender)
	if err != nil {
		res.Outcome, res.Err = LookupFailed, err
		return
	}
	if len(users) == 0 {
		b.logger.WarnContext(ctx, "no matching forum user", "sender", sender)
		res.Outcome = NoMatch
		return
	}
	res.Username = users[0].Username

	b.logger.InfoContext(ctx, "uploading attachments",
		"username", res.Username,
		"attachments", len(mail.Attachments),
	)
	uploads, err := b.uploadAttachments(ctx, res.Username, mail.Attachments)
	if err != nil {
		res.Outcome, res.Err = UploadIncomplete, err
		return
	}

	created, err := b.publish(ctx, mail, res.Username, uploads, messageID)
	if err != nil {
		res.Outcome, res.Err = PostFailed, err
		return
	}
	res.PostID = created.ID
	res.Outcome = Delivered
}
