package bridge

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/hashicorp/go-multierror"

	"github.com/shineum/mail-to-discourse/internal/discourse"
	"github.com/shineum/mail-to-discourse/internal/email"
)

// ErrIncompleteUploads is returned when any attachment failed to upload.
var ErrIncompleteUploads = errors.New("incomplete uploads")

// uploadAttachments uploads every attachment concurrently and waits for all
// of them to settle. Each goroutine owns one slot of uploads/errs, so no
// locking is needed. Any failure fails the whole set.
func (b *Bridge) uploadAttachments(ctx context.Context, username string, attachments []email.Attachment) ([]discourse.Upload, error) {
	if len(attachments) == 0 {
		return nil, nil
	}

	uploads := make([]*discourse.Upload, len(attachments))
	errs := make([]error, len(attachments))

	var wg sync.WaitGroup
	for i, att := range attachments {
		wg.Add(1)
		go func(i int, att email.Attachment) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					errs[i] = fmt.Errorf("panic during upload: %v", r)
				}
			}()
			uploads[i], errs[i] = b.forum.UploadFile(ctx, username, discourse.File{
				Filename:    att.Filename,
				ContentType: att.ContentType,
				Content:     att.Content,
			})
		}(i, att)
	}
	wg.Wait()

	var merr *multierror.Error
	for i, err := range errs {
		if err == nil && uploads[i] == nil {
			err = errors.New("empty upload response")
		}
		if err == nil {
			continue
		}
		b.logger.WarnContext(ctx, "failed upload",
			"index", i,
			"filename", attachments[i].Filename,
			"error", err,
		)
		merr = multierror.Append(merr, fmt.Errorf("attachment %d (%q): %w", i, attachments[i].Filename, err))
	}
	if merr != nil {
		return nil, fmt.Errorf("%w: %d of %d failed: %w", ErrIncompleteUploads, merr.Len(), len(attachments), merr.ErrorOrNil())
	}

	result := make([]discourse.Upload, 0, len(uploads))
	ids := make([]string, 0, len(uploads))
	for _, u := range uploads {
		result = append(result, *u)
		ids = append(ids, strconv.FormatInt(u.ID, 10))
	}
	b.logger.InfoContext(ctx, "processed uploads",
		"count", len(result),
		"ids", strings.Join(ids, ","),
	)
	return result, nil
}
