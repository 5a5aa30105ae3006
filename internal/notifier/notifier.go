// Package notifier defines the interface for relaying notification emails.
package notifier

import (
	"context"

	"github.com/shineum/mail-to-discourse/internal/email"
)

// Sender is the interface that notification relays must implement.
// The message From field is ignored; each relay sends from its own
// configured address.
type Sender interface {
	// Send delivers an email message through this relay.
	// It returns an error if the delivery fails.
	Send(ctx context.Context, msg *email.Email) error

	// Name returns the human-readable name of this relay.
	Name() string
}
