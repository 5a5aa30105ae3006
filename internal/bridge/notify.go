package bridge

import (
	"log/slog"

	"jaytaylor.com/html2text"

	"github.com/shineum/mail-to-discourse/internal/config"
	"github.com/shineum/mail-to-discourse/internal/email"
)

const noMatchNotice = "Hello, thanks for your report. The report was not auto-entered " +
	"because your email is not registered. We will reach out soon!"

// NotificationFor returns the email to relay for res, or nil when the
// outcome needs none. The returned email depends only on cfg and res. A
// failed HTML to text conversion is logged and the HTML is used as text.
func NotificationFor(cfg *config.Config, res Result) *email.Email {
	operator := []email.Address{{Address: cfg.Notify.OperatorAddress}}

	switch res.Outcome {
	case Delivered, NoContent:
		return nil

	case ParseFailed:
		return parseFailure(operator, res)

	case NoMatch:
		if res.Mail == nil {
			return parseFailure(operator, res)
		}
		return &email.Email{
			To:          append([]email.Address(nil), res.Mail.From...),
			Cc:          operator,
			Subject:     "Email not matching forum user - " + res.Mail.Subject,
			TextBody:    noMatchNotice,
			HtmlBody:    res.Mail.HtmlBody,
			Attachments: res.Mail.Attachments,
		}

	case LookupFailed, UploadIncomplete, PostFailed:
		if res.Mail == nil {
			return parseFailure(operator, res)
		}
		return &email.Email{
			To:          operator,
			Subject:     "Failed to send to discourse: " + res.Mail.Subject,
			TextBody:    plainText(res.Mail),
			HtmlBody:    res.Mail.HtmlBody,
			Attachments: res.Mail.Attachments,
		}
	}

	return nil
}

func parseFailure(operator []email.Address, res Result) *email.Email {
	msg := "unknown error"
	if res.Err != nil {
		msg = res.Err.Error()
	}
	return &email.Email{
		To:       operator,
		Subject:  "Failed to parse: " + res.Record.MessageID,
		TextBody: "Error: " + msg,
	}
}

// plainText returns the text body, deriving it from the HTML body when the
// message had none.
func plainText(mail *email.Email) string {
	if mail.TextBody != "" || mail.HtmlBody == "" {
		return mail.TextBody
	}
	text, err := html2text.FromString(mail.HtmlBody, html2text.Options{})
	if err != nil {
		slog.Warn("failed to convert html body to text", "error", err)
		return mail.HtmlBody
	}
	return text
}
