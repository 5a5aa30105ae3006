// Package stdout implements a notifier.Sender that prints notifications to
// standard output instead of relaying them. Used for dry runs.
package stdout

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/shineum/mail-to-discourse/internal/email"
)

const separator = "========================================\n"

// Provider prints notification messages in a human-readable format.
type Provider struct {
	// writer is the output destination, defaulting to os.Stdout.
	writer io.Writer
	from   email.Address
}

// New creates a new stdout Provider that writes to os.Stdout.
func New(from email.Address) *Provider {
	return &Provider{writer: os.Stdout, from: from}
}

// NewWithWriter creates a new stdout Provider that writes to the given writer.
// This is useful for testing.
func NewWithWriter(from email.Address, w io.Writer) *Provider {
	return &Provider{writer: w, from: from}
}

// Send prints the notification. It fails only if the writer does.
func (p *Provider) Send(_ context.Context, msg *email.Email) error {
	var b strings.Builder

	b.WriteString(separator)
	b.WriteString(fmt.Sprintf("From: %s\n", formatAddress(p.from)))
	b.WriteString(fmt.Sprintf("To: %s\n", strings.Join(email.Addresses(msg.To), ", ")))

	if len(msg.Cc) > 0 {
		b.WriteString(fmt.Sprintf("Cc: %s\n", strings.Join(email.Addresses(msg.Cc), ", ")))
	}

	b.WriteString(fmt.Sprintf("Subject: %s\n", msg.Subject))
	b.WriteString("Body:\n")

	body := msg.TextBody
	if body == "" {
		body = msg.HtmlBody
	}
	b.WriteString(body + "\n")

	if len(msg.Attachments) > 0 {
		attachments := make([]string, 0, len(msg.Attachments))
		for _, att := range msg.Attachments {
			name := att.Filename
			if name == "" {
				name = "cid:" + att.ContentID
			}
			attachments = append(attachments, fmt.Sprintf("%s (%s, %s)", name, att.Disposition, formatSize(len(att.Content))))
		}
		b.WriteString(fmt.Sprintf("Attachments: %s\n", strings.Join(attachments, ", ")))
	}

	b.WriteString(separator)

	if _, err := fmt.Fprint(p.writer, b.String()); err != nil {
		return fmt.Errorf("failed to write notification: %w", err)
	}
	return nil
}

// Name returns the provider name.
func (p *Provider) Name() string {
	return "stdout"
}

func formatAddress(a email.Address) string {
	if a.Name == "" {
		return a.Address
	}
	return fmt.Sprintf("%s <%s>", a.Name, a.Address)
}

// formatSize formats a byte count into a human-readable string.
func formatSize(bytes int) string {
	const (
		kb = 1024
		mb = kb * 1024
	)

	switch {
	case bytes >= mb:
		return fmt.Sprintf("%.1f MB", float64(bytes)/float64(mb))
	case bytes >= kb:
		return fmt.Sprintf("%.1f KB", float64(bytes)/float64(kb))
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}
