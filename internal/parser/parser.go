// Package parser turns raw RFC 5322 messages into email.Email values.
package parser

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/emersion/go-message"
	_ "github.com/emersion/go-message/charset"
	"github.com/emersion/go-message/mail"

	"github.com/shineum/mail-to-discourse/internal/email"
)

// ErrNoSender is returned when a message carries no usable From address.
var ErrNoSender = errors.New("message has no sender address")

// Parse reads a raw message and extracts headers, the first text/plain and
// text/html bodies, and every attachment. Inline non-text parts (such as
// embedded images) are kept as attachments with an "inline" disposition.
// Parts in unknown charsets are logged and kept with their raw bytes.
func Parse(r io.Reader) (*email.Email, error) {
	mr, err := mail.CreateReader(r)
	if err != nil && !message.IsUnknownCharset(err) {
		return nil, fmt.Errorf("failed to parse message: %w", err)
	}
	if err != nil {
		slog.Warn("unknown charset in message header", "error", err)
	}
	defer mr.Close()

	result := &email.Email{
		From: parseAddressList(mr.Header, "From"),
		To:   parseAddressList(mr.Header, "To"),
		Cc:   parseAddressList(mr.Header, "Cc"),
	}
	if result.Sender() == "" {
		return nil, ErrNoSender
	}

	if result.Subject, err = mr.Header.Subject(); err != nil {
		slog.Warn("failed to decode subject, using raw value", "error", err)
		result.Subject = mr.Header.Get("Subject")
	}
	result.MessageID, _ = mr.Header.MessageID()

	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil && !message.IsUnknownCharset(err) {
			return nil, fmt.Errorf("failed to read next part: %w", err)
		}
		if err != nil {
			slog.Warn("part has unknown charset, keeping undecoded body", "error", err)
		}

		switch h := part.Header.(type) {
		case *mail.InlineHeader:
			if err := parseInlinePart(part, h, result); err != nil {
				return nil, err
			}
		case *mail.AttachmentHeader:
			att, err := parseAttachmentPart(part, h)
			if err != nil {
				return nil, err
			}
			result.Attachments = append(result.Attachments, att)
		}
	}

	return result, nil
}

// parseInlinePart fills the text and html bodies from inline parts. Only the
// first part of each kind is kept. Other inline parts become attachments.
func parseInlinePart(part *mail.Part, h *mail.InlineHeader, result *email.Email) error {
	mediaType, params, err := h.ContentType()
	if err != nil {
		slog.Warn("failed to parse part content type, treating as plain text",
			"content_type", h.Get("Content-Type"),
			"error", err,
		)
		mediaType = "text/plain"
	}

	content, err := io.ReadAll(part.Body)
	if err != nil {
		return fmt.Errorf("failed to read %s part: %w", mediaType, err)
	}

	switch mediaType {
	case "text/plain":
		if result.TextBody == "" {
			result.TextBody = string(content)
		}
		return nil
	case "text/html":
		if result.HtmlBody == "" {
			result.HtmlBody = string(content)
		}
		return nil
	}

	filename := ""
	if _, dispParams, err := h.ContentDisposition(); err == nil {
		filename = dispParams["filename"]
	}
	if filename == "" {
		filename = params["name"]
	}
	contentID := contentID(h.Header)
	if filename == "" && contentID == "" {
		slog.Warn("unrecognized inline MIME part, skipping",
			"content_type", mediaType,
		)
		return nil
	}

	result.Attachments = append(result.Attachments, email.Attachment{
		Filename:    filename,
		ContentType: mediaType,
		Disposition: "inline",
		ContentID:   contentID,
		Content:     content,
	})
	return nil
}

func parseAttachmentPart(part *mail.Part, h *mail.AttachmentHeader) (email.Attachment, error) {
	filename, err := h.Filename()
	if err != nil {
		slog.Warn("failed to decode attachment filename", "error", err)
	}

	mediaType, _, err := h.ContentType()
	if err != nil {
		mediaType = "application/octet-stream"
	}

	content, err := io.ReadAll(part.Body)
	if err != nil {
		return email.Attachment{}, fmt.Errorf("failed to read attachment %q: %w", filename, err)
	}

	return email.Attachment{
		Filename:    filename,
		ContentType: mediaType,
		Disposition: "attachment",
		ContentID:   contentID(h.Header),
		Content:     content,
	}, nil
}

func contentID(h message.Header) string {
	return strings.Trim(strings.TrimSpace(h.Get("Content-Id")), "<>")
}

func parseAddressList(h mail.Header, key string) []email.Address {
	list, err := h.AddressList(key)
	if err != nil {
		slog.Warn("failed to parse address list", "header", key, "error", err)
		return nil
	}

	addrs := make([]email.Address, 0, len(list))
	for _, a := range list {
		addrs = append(addrs, email.Address{Name: a.Name, Address: a.Address})
	}
	return addrs
}
