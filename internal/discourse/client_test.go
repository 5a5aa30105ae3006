package discourse

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/shineum/mail-to-discourse/internal/logging"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	return NewWithHTTPClient(ClientConfig{
		Host:           server.URL + "/",
		APIKey:         "test-key",
		SystemUsername: "system",
	}, server.Client())
}

func TestFindUsersByEmail(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			t.Errorf("Method: got %q, want GET", r.Method)
		}
		if r.URL.Path != "/admin/users/list/active.json" {
			t.Errorf("Path: got %q", r.URL.Path)
		}
		if got := r.URL.Query().Get("email"); got != "alice+reports@example.com" {
			t.Errorf("email query: got %q, want %q", got, "alice+reports@example.com")
		}
		if r.Header.Get("Api-Key") != "test-key" {
			t.Errorf("Api-Key: got %q, want %q", r.Header.Get("Api-Key"), "test-key")
		}
		if r.Header.Get("Api-Username") != "system" {
			t.Errorf("Api-Username: got %q, want %q", r.Header.Get("Api-Username"), "system")
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[{"id": 12, "username": "alice"}, {"id": 40, "username": "alice2"}]`))
	})

	users, err := client.FindUsersByEmail(context.Background(), "alice+reports@example.com")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(users) != 2 {
		t.Fatalf("users: got %d, want 2", len(users))
	}
	if users[0].ID != 12 || users[0].Username != "alice" {
		t.Errorf("users[0]: got %+v", users[0])
	}
}

func TestFindUsersByEmail_NoMatches(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[]`))
	})

	users, err := client.FindUsersByEmail(context.Background(), "nobody@example.com")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(users) != 0 {
		t.Errorf("users: got %d, want 0", len(users))
	}
}

func TestFindUsersByEmail_Forbidden(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(`{"errors":["You are not permitted to view the requested resource."],"error_type":"invalid_access"}`))
	})

	_, err := client.FindUsersByEmail(context.Background(), "alice@example.com")
	if !errors.Is(err, ErrUnexpectedStatus) {
		t.Fatalf("error: got %v, want ErrUnexpectedStatus", err)
	}

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("error should be *APIError, got %T", err)
	}
	if apiErr.StatusCode != http.StatusForbidden {
		t.Errorf("StatusCode: got %d, want %d", apiErr.StatusCode, http.StatusForbidden)
	}
	if !strings.Contains(apiErr.Message, "not permitted") {
		t.Errorf("Message: got %q", apiErr.Message)
	}
}

func TestUploadFile(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/uploads" {
			t.Errorf("request: got %s %s", r.Method, r.URL.Path)
		}
		if r.Header.Get("Api-Username") != "alice" {
			t.Errorf("Api-Username: got %q, want %q", r.Header.Get("Api-Username"), "alice")
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("ParseMultipartForm: %v", err)
			return
		}
		if got := r.FormValue("type"); got != "composer" {
			t.Errorf("type: got %q, want %q", got, "composer")
		}
		if got := r.FormValue("synchronous"); got != "true" {
			t.Errorf("synchronous: got %q, want %q", got, "true")
		}

		f, header, err := r.FormFile("file")
		if err != nil {
			t.Errorf("FormFile: %v", err)
			return
		}
		defer f.Close()
		content, _ := io.ReadAll(f)
		if string(content) != "PNGDATA" {
			t.Errorf("file content: got %q", string(content))
		}
		if header.Filename != `photo "1".png` {
			t.Errorf("filename: got %q", header.Filename)
		}
		if got := header.Header.Get("Content-Type"); got != "image/png" {
			t.Errorf("part Content-Type: got %q, want %q", got, "image/png")
		}

		json.NewEncoder(w).Encode(map[string]any{
			"id":                7,
			"url":               "/uploads/default/original/1X/abc.png",
			"original_filename": `photo "1".png`,
			"filesize":          7,
			"dominant_color":    "AABBCC",
		})
	})

	upload, err := client.UploadFile(context.Background(), "alice", File{
		Filename:    `photo "1".png`,
		ContentType: "image/png",
		Content:     []byte("PNGDATA"),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if upload.ID != 7 {
		t.Errorf("ID: got %d, want 7", upload.ID)
	}
	if !upload.IsImage() {
		t.Error("IsImage: got false, want true")
	}
	if upload.URL != "/uploads/default/original/1X/abc.png" {
		t.Errorf("URL: got %q", upload.URL)
	}
}

func TestUploadFile_DefaultsFilename(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("ParseMultipartForm: %v", err)
			return
		}
		_, header, err := r.FormFile("file")
		if err != nil {
			t.Errorf("FormFile: %v", err)
			return
		}
		if header.Filename != "attachment" {
			t.Errorf("filename: got %q, want %q", header.Filename, "attachment")
		}
		if got := header.Header.Get("Content-Type"); got != "application/octet-stream" {
			t.Errorf("part Content-Type: got %q", got)
		}
		w.Write([]byte(`{"id": 1, "url": "/u/1", "original_filename": "attachment", "dominant_color": null}`))
	})

	upload, err := client.UploadFile(context.Background(), "alice", File{Content: []byte("x")})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if upload.IsImage() {
		t.Error("IsImage: got true, want false for null dominant_color")
	}
}

func TestUploadFile_ServerError(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		w.Write([]byte("not json at all"))
	})

	_, err := client.UploadFile(context.Background(), "alice", File{Filename: "a.txt", Content: []byte("x")})
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("error should be *APIError, got %v", err)
	}
	if apiErr.Op != "upload" {
		t.Errorf("Op: got %q, want %q", apiErr.Op, "upload")
	}
	if apiErr.Message != "not json at all" {
		t.Errorf("Message: got %q", apiErr.Message)
	}
}

func TestCreatePost(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		externalID string
	}{
		{name: "without external id"},
		{name: "with external id", externalID: "msg-0001"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				if r.Method != http.MethodPost || r.URL.Path != "/posts" {
					t.Errorf("request: got %s %s", r.Method, r.URL.Path)
				}
				if r.Header.Get("Api-Username") != "alice" {
					t.Errorf("Api-Username: got %q", r.Header.Get("Api-Username"))
				}
				if err := r.ParseForm(); err != nil {
					t.Errorf("ParseForm: %v", err)
					return
				}
				want := map[string]string{
					"title":     "Report: pothole",
					"category":  "7",
					"archetype": "regular",
					"unlisted":  "true",
					"raw":       "Email:\nbody\n",
				}
				for k, v := range want {
					if got := r.PostForm.Get(k); got != v {
						t.Errorf("%s: got %q, want %q", k, got, v)
					}
				}
				_, hasExternal := r.PostForm["external_id"]
				if hasExternal != (tt.externalID != "") {
					t.Errorf("external_id present: got %v, want %v", hasExternal, tt.externalID != "")
				}
				if tt.externalID != "" && r.PostForm.Get("external_id") != tt.externalID {
					t.Errorf("external_id: got %q, want %q", r.PostForm.Get("external_id"), tt.externalID)
				}
				w.Write([]byte(`{"id": 100, "topic_id": 55}`))
			})

			created, err := client.CreatePost(context.Background(), "alice", Post{
				Title:      "Report: pothole",
				Category:   "7",
				Raw:        "Email:\nbody\n",
				ExternalID: tt.externalID,
			})
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if created.ID != 100 || created.TopicID != 55 {
				t.Errorf("created: got %+v", created)
			}
		})
	}
}

func TestCreatePost_RejectsNonOK(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		// 201 is still treated as a failure; the forum answers 200 on success.
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"id": 1}`))
	})

	_, err := client.CreatePost(context.Background(), "alice", Post{Title: "t", Category: "1", Raw: "r"})
	if !errors.Is(err, ErrUnexpectedStatus) {
		t.Fatalf("error: got %v, want ErrUnexpectedStatus", err)
	}
}

func TestUploadFile_NumericRetainHours(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"id": 9, "url": "/uploads/x.pdf", "original_filename": "x.pdf", "retain_hours": 24, "dominant_color": null}`))
	})

	upload, err := client.UploadFile(context.Background(), "alice", File{Filename: "x.pdf", Content: []byte("pdf")})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if upload.RetainHours == nil || *upload.RetainHours != 24 {
		t.Errorf("RetainHours: got %v, want 24", upload.RetainHours)
	}
	if upload.IsImage() {
		t.Error("IsImage: got true, want false")
	}
}

// Not parallel: swaps the default logger.
func TestFailureLogCarriesContextAttrs(t *testing.T) {
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(logging.New(&buf, "info"))
	t.Cleanup(func() { slog.SetDefault(prev) })

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"errors": ["boom"]}`))
	})

	ctx := logging.WithAttrs(context.Background(), slog.String("trace_id", "t-42"))
	if _, err := client.FindUsersByEmail(ctx, "alice@example.com"); err == nil {
		t.Fatal("expected an error")
	}

	out := buf.String()
	if !strings.Contains(out, "failure in discourse response") || !strings.Contains(out, `"trace_id":"t-42"`) {
		t.Errorf("log output missing trace id: %s", out)
	}
}
