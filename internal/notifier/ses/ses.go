// Package ses implements a notifier.Sender that relays emails via AWS SES v2.
package ses

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	sesv2 "github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"
	"github.com/emersion/go-message"
	"github.com/emersion/go-message/mail"

	"github.com/shineum/mail-to-discourse/internal/email"
)

// MaxRawMessageBytes is the SES limit for a raw message, headers included.
const MaxRawMessageBytes = 10485760

// SESProviderConfig holds the configuration for creating a SESProvider.
type SESProviderConfig struct {
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	FromAddress     string
	FromName        string
}

// SESProvider sends notifications via the AWS SES v2 API as raw MIME
// messages so passthrough attachments keep their content id and disposition.
type SESProvider struct {
	from     email.Address
	client   SendEmailAPI
	maxBytes int
	now      func() time.Time
}

// SendEmailAPI is the interface for the SES v2 SendEmail operation.
// Used for testing with mock implementations.
type SendEmailAPI interface {
	SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

// New creates a new SESProvider with the given configuration.
func New(ctx context.Context, cfg SESProviderConfig) (*SESProvider, error) {
	awsCfg, err := loadAWSConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}

	return NewWithClient(email.Address{Name: cfg.FromName, Address: cfg.FromAddress}, sesv2.NewFromConfig(awsCfg)), nil
}

// loadAWSConfig uses the static key pair when both halves are set and the
// default credential chain otherwise.
func loadAWSConfig(ctx context.Context, cfg SESProviderConfig) (aws.Config, error) {
	var opts []func(*awsconfig.LoadOptions) error

	opts = append(opts, awsconfig.WithRegion(cfg.Region))

	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return awsCfg, nil
}

// NewWithClient creates a SESProvider with a custom client, used for testing.
func NewWithClient(from email.Address, client SendEmailAPI) *SESProvider {
	return &SESProvider{
		from:     from,
		client:   client,
		maxBytes: MaxRawMessageBytes,
		now:      time.Now,
	}
}

// Send delivers an email message via AWS SES v2. When the message with its
// attachments exceeds the SES size limit it is sent without them.
func (s *SESProvider) Send(ctx context.Context, msg *email.Email) error {
	raw, err := buildRawMessage(s.from, msg, true, s.now())
	if err != nil {
		return fmt.Errorf("failed to build raw message: %w", err)
	}

	if len(raw) > s.maxBytes && len(msg.Attachments) > 0 {
		slog.WarnContext(ctx, "notification exceeds SES size limit, dropping attachments",
			"size", len(raw),
			"limit", s.maxBytes,
			"attachments", len(msg.Attachments),
		)
		raw, err = buildRawMessage(s.from, msg, false, s.now())
		if err != nil {
			return fmt.Errorf("failed to build raw message: %w", err)
		}
	}

	input := &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(s.from.Address),
		Destination: &types.Destination{
			ToAddresses: email.Addresses(msg.To),
			CcAddresses: email.Addresses(msg.Cc),
		},
		Content: &types.EmailContent{
			Raw: &types.RawMessage{
				Data: raw,
			},
		},
	}

	out, err := s.client.SendEmail(ctx, input)
	if err != nil {
		return fmt.Errorf("SES SendEmail failed: %w", err)
	}

	if out != nil {
		slog.DebugContext(ctx, "notification sent via SES",
			"ses_message_id", aws.ToString(out.MessageId),
			"subject", msg.Subject,
		)
	}
	return nil
}

// Name returns the provider name.
func (s *SESProvider) Name() string {
	return "ses"
}

// buildRawMessage renders msg as multipart/mixed. The body is a single text
// or html part, or multipart/alternative when both are present.
func buildRawMessage(from email.Address, msg *email.Email, withAttachments bool, now time.Time) ([]byte, error) {
	var h mail.Header
	h.SetDate(now)
	h.SetAddressList("From", []*mail.Address{{Name: from.Name, Address: from.Address}})
	h.SetAddressList("To", toMailAddresses(msg.To))
	if len(msg.Cc) > 0 {
		h.SetAddressList("Cc", toMailAddresses(msg.Cc))
	}
	h.SetSubject(msg.Subject)
	if err := h.GenerateMessageID(); err != nil {
		return nil, fmt.Errorf("failed to generate message id: %w", err)
	}
	h.SetContentType("multipart/mixed", nil)

	var buf bytes.Buffer
	mw, err := message.CreateWriter(&buf, h.Header)
	if err != nil {
		return nil, fmt.Errorf("failed to create writer: %w", err)
	}

	if err := writeBody(mw, msg); err != nil {
		return nil, err
	}

	if withAttachments {
		for _, att := range msg.Attachments {
			if err := writeAttachment(mw, att); err != nil {
				return nil, err
			}
		}
	}

	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("failed to close writer: %w", err)
	}
	return buf.Bytes(), nil
}

func writeBody(mw *message.Writer, msg *email.Email) error {
	text := msg.TextBody
	if text == "" && msg.HtmlBody == "" {
		text = "(no content)"
	}

	if text != "" && msg.HtmlBody != "" {
		var altHeader message.Header
		altHeader.SetContentType("multipart/alternative", nil)
		aw, err := mw.CreatePart(altHeader)
		if err != nil {
			return fmt.Errorf("failed to create alternative part: %w", err)
		}
		if err := writeTextPart(aw, "text/plain", text); err != nil {
			return err
		}
		if err := writeTextPart(aw, "text/html", msg.HtmlBody); err != nil {
			return err
		}
		if err := aw.Close(); err != nil {
			return fmt.Errorf("failed to close alternative part: %w", err)
		}
		return nil
	}

	if text != "" {
		return writeTextPart(mw, "text/plain", text)
	}
	return writeTextPart(mw, "text/html", msg.HtmlBody)
}

func writeTextPart(parent *message.Writer, mediaType, content string) error {
	var ph message.Header
	ph.SetContentType(mediaType, map[string]string{"charset": "utf-8"})
	ph.Set("Content-Transfer-Encoding", "quoted-printable")

	pw, err := parent.CreatePart(ph)
	if err != nil {
		return fmt.Errorf("failed to create %s part: %w", mediaType, err)
	}
	if _, err := io.WriteString(pw, content); err != nil {
		return fmt.Errorf("failed to write %s part: %w", mediaType, err)
	}
	return pw.Close()
}

func writeAttachment(mw *message.Writer, att email.Attachment) error {
	contentType := att.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	disposition := att.Disposition
	if disposition != "inline" {
		disposition = "attachment"
	}

	var ah message.Header
	if att.Filename != "" {
		ah.SetContentType(contentType, map[string]string{"name": att.Filename})
		ah.SetContentDisposition(disposition, map[string]string{"filename": att.Filename})
	} else {
		ah.SetContentType(contentType, nil)
		ah.SetContentDisposition(disposition, nil)
	}
	if att.ContentID != "" {
		ah.Set("Content-Id", "<"+att.ContentID+">")
	}
	ah.Set("Content-Transfer-Encoding", "base64")

	pw, err := mw.CreatePart(ah)
	if err != nil {
		return fmt.Errorf("failed to create attachment part: %w", err)
	}
	if _, err := pw.Write(att.Content); err != nil {
		return fmt.Errorf("failed to write attachment %q: %w", att.Filename, err)
	}
	return pw.Close()
}

func toMailAddresses(list []email.Address) []*mail.Address {
	out := make([]*mail.Address, 0, len(list))
	for _, a := range list {
		out = append(out, &mail.Address{Name: a.Name, Address: a.Address})
	}
	return out
}
