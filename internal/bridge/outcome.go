package bridge

import (
	"github.com/shineum/mail-to-discourse/internal/email"
)

// Outcome is what happened to one inbound record.
type Outcome int

const (
	// Delivered means the post was created.
	Delivered Outcome = iota
	// NoContent means the stored object had no body; nothing was done.
	NoContent
	// ParseFailed covers storage and MIME parsing failures.
	ParseFailed
	// NoMatch means no active forum user has the sender's address.
	NoMatch
	// LookupFailed means the forum user listing returned an error.
	LookupFailed
	// UploadIncomplete means at least one attachment upload failed.
	UploadIncomplete
	// PostFailed means the forum rejected the post.
	PostFailed
)

var outcomeNames = map[Outcome]string{
	Delivered:        "delivered",
	NoContent:        "no_content",
	ParseFailed:      "parse_failed",
	NoMatch:          "no_match",
	LookupFailed:     "lookup_failed",
	UploadIncomplete: "upload_incomplete",
	PostFailed:       "post_failed",
}

func (o Outcome) String() string {
	if name, ok := outcomeNames[o]; ok {
		return name
	}
	return "unknown"
}

// Record is one inbound notification.
type Record struct {
	MessageID string
	// Source is the envelope sender reported by SES. Informational only.
	Source string
}

// Result is the per-record report produced by the dispatcher.
type Result struct {
	Record  Record
	TraceID string
	Outcome Outcome
	// Mail is nil unless the message was parsed.
	Mail *email.Email
	Err  error
	// Username is the forum account the mail was attributed to.
	Username string
	// PostID is set when Outcome is Delivered.
	PostID int64
	// Notified is true when a notification was relayed successfully.
	Notified  bool
	NotifyErr error
}

// Summarize counts results per outcome name.
func Summarize(results []Result) map[string]int {
	counts := make(map[string]int, len(outcomeNames))
	for _, r := range results {
		counts[r.Outcome.String()]++
	}
	return counts
}
