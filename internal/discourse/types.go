package discourse

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnexpectedStatus matches every *APIError via errors.Is.
var ErrUnexpectedStatus = errors.New("unexpected discourse response status")

// User is an active forum account returned by the admin user listing.
type User struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
}

// Upload is the metadata returned by POST /uploads.
type Upload struct {
	ID               int64   `json:"id"`
	URL              string  `json:"url"`
	OriginalFilename string  `json:"original_filename"`
	Filesize         int64   `json:"filesize"`
	Width            int     `json:"width"`
	Height           int     `json:"height"`
	ThumbnailWidth   int     `json:"thumbnail_width"`
	ThumbnailHeight  int     `json:"thumbnail_height"`
	Extension        string  `json:"extension"`
	ShortURL         string  `json:"short_url"`
	ShortPath        string  `json:"short_path"`
	RetainHours      *int    `json:"retain_hours"`
	HumanFilesize    string  `json:"human_filesize"`
	// DominantColor is only reported for images.
	DominantColor *string `json:"dominant_color"`
}

// IsImage reports whether the forum treated the upload as an image.
func (u Upload) IsImage() bool {
	return u.DominantColor != nil
}

// File is a single attachment to upload.
type File struct {
	Filename    string
	ContentType string
	Content     []byte
}

// Post describes a new topic.
type Post struct {
	Title    string
	Category string
	Raw      string
	// ExternalID is sent only when non-empty.
	ExternalID string
}

// CreatedPost is the subset of the POST /posts response we log.
type CreatedPost struct {
	ID      int64 `json:"id"`
	TopicID int64 `json:"topic_id"`
}

// errorResponse is the JSON error body Discourse returns on failures.
type errorResponse struct {
	Errors    []string `json:"errors"`
	ErrorType string   `json:"error_type"`
}

// APIError is returned for any non-200 response.
type APIError struct {
	Op         string
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("discourse %s failed (HTTP %d): %s", e.Op, e.StatusCode, e.Message)
}

// Is makes errors.Is(err, ErrUnexpectedStatus) true for API errors.
func (e *APIError) Is(target error) bool {
	return target == ErrUnexpectedStatus
}

// newAPIError prefers the decoded error list over the raw body.
func newAPIError(op string, status int, body []byte, decoded *errorResponse) *APIError {
	msg := strings.TrimSpace(string(body))
	if decoded != nil && len(decoded.Errors) > 0 {
		msg = strings.Join(decoded.Errors, "; ")
	}
	if len(msg) > 512 {
		msg = msg[:512] + "..."
	}
	return &APIError{Op: op, StatusCode: status, Message: msg}
}
