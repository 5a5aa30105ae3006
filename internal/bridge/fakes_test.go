package bridge

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/shineum/mail-to-discourse/internal/config"
	"github.com/shineum/mail-to-discourse/internal/discourse"
	"github.com/shineum/mail-to-discourse/internal/email"
)

// eventLog records calls across fakes in order.
type eventLog struct {
	mu     sync.Mutex
	events []string
}

func (l *eventLog) add(e string) {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, e)
}

func (l *eventLog) list() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.events...)
}

type fakeSource struct {
	objects map[string][]byte
	errs    map[string]error
	delay   time.Duration
	log     *eventLog
}

func (s *fakeSource) Fetch(_ context.Context, messageID string) ([]byte, error) {
	s.log.add("fetch:" + messageID)
	if s.delay > 0 {
		time.Sleep(s.delay)
	}
	if err, ok := s.errs[messageID]; ok {
		return nil, err
	}
	return s.objects[messageID], nil
}

type fakeForum struct {
	mu sync.Mutex

	users     map[string][]discourse.User
	lookupErr error
	// failUploads names attachment filenames whose upload fails.
	failUploads map[string]bool
	// images names filenames the forum reports with a dominant color.
	images  map[string]bool
	postErr error
	panicOn string

	lookups      []string
	uploads      []discourse.File
	uploadUsers  []string
	posts        []discourse.Post
	postUsers    []string
	nextUploadID int64
	log          *eventLog
}

func (f *fakeForum) FindUsersByEmail(_ context.Context, address string) ([]discourse.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.panicOn == "lookup" {
		panic("lookup exploded")
	}
	f.lookups = append(f.lookups, address)
	if f.lookupErr != nil {
		return nil, f.lookupErr
	}
	return f.users[address], nil
}

func (f *fakeForum) UploadFile(_ context.Context, username string, file discourse.File) (*discourse.Upload, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.uploads = append(f.uploads, file)
	f.uploadUsers = append(f.uploadUsers, username)
	if f.failUploads[file.Filename] {
		return nil, &discourse.APIError{Op: "upload", StatusCode: 422, Message: "rejected"}
	}
	f.nextUploadID++
	u := &discourse.Upload{
		ID:               f.nextUploadID,
		URL:              "/uploads/default/original/" + file.Filename,
		OriginalFilename: file.Filename,
		Filesize:         int64(len(file.Content)),
	}
	if f.images[file.Filename] {
		color := "A0B0C0"
		u.DominantColor = &color
	}
	return u, nil
}

func (f *fakeForum) CreatePost(_ context.Context, username string, post discourse.Post) (*discourse.CreatedPost, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.log.add("post:" + post.Title)
	f.posts = append(f.posts, post)
	f.postUsers = append(f.postUsers, username)
	if f.postErr != nil {
		return nil, f.postErr
	}
	return &discourse.CreatedPost{ID: int64(100 + len(f.posts)), TopicID: int64(len(f.posts))}, nil
}

func (f *fakeForum) calls() (lookups, uploads, posts int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.lookups), len(f.uploads), len(f.posts)
}

type recordingSender struct {
	mu   sync.Mutex
	sent []*email.Email
	err  error
}

func (s *recordingSender) Send(_ context.Context, msg *email.Email) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, msg)
	return s.err
}

func (s *recordingSender) Name() string { return "recording" }

var errStorage = errors.New("access denied")

func testConfig() *config.Config {
	return &config.Config{
		Storage: config.StorageConfig{Bucket: "inbound-mail", KeyPrefix: "email/", Region: "us-east-1"},
		Discourse: config.DiscourseConfig{
			Host:           "https://forum.example.org",
			APIKey:         "key",
			Category:       "7",
			SystemUsername: "system",
			TitlePrefix:    "This is a public report by email: ",
		},
		Notify: config.NotifyConfig{
			OperatorAddress: "ops@example.org",
			FromAddress:     "bridge@example.org",
			FromName:        "Discourse",
		},
		Logging: config.LoggingConfig{Level: "debug"},
	}
}

const plainMail = "From: Alice <alice@example.com>\r\n" +
	"To: reports@example.org\r\n" +
	"Subject: Pothole on Main St\r\n" +
	"Message-Id: <plain@example.com>\r\n" +
	"Content-Type: text/plain; charset=utf-8\r\n" +
	"\r\n" +
	"There is a pothole.\r\n"

// mailWithAttachments has an HTML body, an inline PNG and a PDF.
const mailWithAttachments = "From: Alice <alice@example.com>\r\n" +
	"To: reports@example.org\r\n" +
	"Subject: Broken light\r\n" +
	"Message-Id: <att@example.com>\r\n" +
	"MIME-Version: 1.0\r\n" +
	"Content-Type: multipart/mixed; boundary=\"outer\"\r\n" +
	"\r\n" +
	"--outer\r\n" +
	"Content-Type: text/html; charset=utf-8\r\n" +
	"\r\n" +
	"<p>The light is <b>out</b>.</p>\r\n" +
	"--outer\r\n" +
	"Content-Type: image/png\r\n" +
	"Content-Disposition: attachment; filename=\"A.png\"\r\n" +
	"Content-Transfer-Encoding: base64\r\n" +
	"\r\n" +
	"iVBORw0KGgo=\r\n" +
	"--outer\r\n" +
	"Content-Type: application/pdf\r\n" +
	"Content-Disposition: attachment; filename=\"B.pdf\"\r\n" +
	"Content-Transfer-Encoding: base64\r\n" +
	"\r\n" +
	"JVBERi0xLjQ=\r\n" +
	"--outer\r\n" +
	"Content-Type: text/plain\r\n" +
	"Content-Disposition: attachment; filename=\"C.txt\"\r\n" +
	"\r\n" +
	"notes\r\n" +
	"--outer--\r\n"

var alice = []discourse.User{{ID: 12, Username: "alice"}}
