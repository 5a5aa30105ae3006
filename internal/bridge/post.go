package bridge

import (
	"context"
	"fmt"
	"strings"

	"github.com/shineum/mail-to-discourse/internal/discourse"
	"github.com/shineum/mail-to-discourse/internal/email"
)

// buildPostBody renders the post markdown: the HTML body (or the text body
// when there is no HTML) followed by one reference line per upload. Images
// are embedded, everything else is linked.
func buildPostBody(mail *email.Email, uploads []discourse.Upload) string {
	content := mail.HtmlBody
	if content == "" {
		content = mail.TextBody
	}

	lines := make([]string, 0, len(uploads))
	for _, u := range uploads {
		lines = append(lines, uploadLine(u))
	}

	return "Email:\n" + content + "\n" + strings.Join(lines, "\n\n")
}

func uploadLine(u discourse.Upload) string {
	if u.IsImage() {
		return fmt.Sprintf("![%s](%s)", u.OriginalFilename, u.URL)
	}
	return fmt.Sprintf("[%s](%s)", u.OriginalFilename, u.URL)
}

func (b *Bridge) postTitle(mail *email.Email) string {
	return b.cfg.Discourse.TitlePrefix + mail.Subject
}

// publish creates the post as username.
func (b *Bridge) publish(ctx context.Context, mail *email.Email, username string, uploads []discourse.Upload, messageID string) (*discourse.CreatedPost, error) {
	post := discourse.Post{
		Title:    b.postTitle(mail),
		Category: b.cfg.Discourse.Category,
		Raw:      buildPostBody(mail, uploads),
	}
	if b.cfg.Discourse.IncludeExternalID {
		post.ExternalID = messageID
	}

	b.logger.InfoContext(ctx, "creating post", "username", username, "title", post.Title)
	created, err := b.forum.CreatePost(ctx, username, post)
	if err != nil {
		return nil, fmt.Errorf("create post: %w", err)
	}
	if created == nil {
		return nil, fmt.Errorf("create post: empty response")
	}

	b.logger.InfoContext(ctx, "successfully created post",
		"post_id", created.ID,
		"topic_id", created.TopicID,
	)
	return created, nil
}
