// Package email defines the core email data model shared by the parser,
// the forum pipeline and the notification relay.
package email

// Email represents a parsed email message with all its components.
type Email struct {
	From        []Address
	To          []Address
	Cc          []Address
	Subject     string
	TextBody    string
	HtmlBody    string
	Attachments []Attachment
	MessageID   string
}

// Address is a single mailbox with an optional display name.
type Address struct {
	Name    string
	Address string
}

// Attachment represents a file attached to an email message.
type Attachment struct {
	Filename    string
	ContentType string
	// Disposition is either "attachment" or "inline".
	Disposition string
	// ContentID is the Content-Id header without angle brackets.
	ContentID string
	Content   []byte
}

// Sender returns the first From address, or "" when the message has none.
func (e *Email) Sender() string {
	if len(e.From) == 0 {
		return ""
	}
	return e.From[0].Address
}

// Addresses flattens an address list into bare email addresses.
func Addresses(list []Address) []string {
	if len(list) == 0 {
		return nil
	}
	out := make([]string, 0, len(list))
	for _, a := range list {
		if a.Address != "" {
			out = append(out, a.Address)
		}
	}
	return out
}
