// Package discourse is a minimal client for the three Discourse API calls the
// bridge needs: user lookup by email, file upload and post creation.
package discourse

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
	"time"
)

// ClientConfig holds the configuration for creating a Client.
type ClientConfig struct {
	// Host includes the protocol, e.g. https://forum.example.org.
	Host           string
	APIKey         string
	SystemUsername string
	Timeout        time.Duration
}

// Client talks to the Discourse REST API with an admin API key.
// Every request acts as a username via the Api-Username header.
type Client struct {
	host           string
	apiKey         string
	systemUsername string
	httpClient     *http.Client
}

// New creates a new Client with the given configuration.
func New(cfg ClientConfig) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return NewWithHTTPClient(cfg, &http.Client{Timeout: timeout})
}

// NewWithHTTPClient creates a Client with a custom HTTP client, used for testing.
func NewWithHTTPClient(cfg ClientConfig, httpClient *http.Client) *Client {
	system := cfg.SystemUsername
	if system == "" {
		system = "system"
	}
	return &Client{
		host:           strings.TrimRight(cfg.Host, "/"),
		apiKey:         cfg.APIKey,
		systemUsername: system,
		httpClient:     httpClient,
	}
}

// FindUsersByEmail lists active users matching the address. The order is
// whatever the forum returns.
func (c *Client) FindUsersByEmail(ctx context.Context, address string) ([]User, error) {
	endpoint := c.host + "/admin/users/list/active.json?email=" + url.QueryEscape(address)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	var users []User
	if err := c.do(req, c.systemUsername, "user lookup", &users); err != nil {
		return nil, err
	}
	return users, nil
}

// UploadFile uploads one file synchronously on behalf of username.
func (c *Client) UploadFile(ctx context.Context, username string, file File) (*Upload, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	if err := writer.WriteField("type", "composer"); err != nil {
		return nil, fmt.Errorf("failed to write form field: %w", err)
	}
	if err := writer.WriteField("synchronous", "true"); err != nil {
		return nil, fmt.Errorf("failed to write form field: %w", err)
	}

	filename := file.Filename
	if filename == "" {
		filename = "attachment"
	}
	contentType := file.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	partHeader := make(textproto.MIMEHeader)
	partHeader.Set("Content-Disposition",
		fmt.Sprintf(`form-data; name="file"; filename="%s"`, quoteEscaper.Replace(filename)))
	partHeader.Set("Content-Type", contentType)

	part, err := writer.CreatePart(partHeader)
	if err != nil {
		return nil, fmt.Errorf("failed to create file part: %w", err)
	}
	if _, err := part.Write(file.Content); err != nil {
		return nil, fmt.Errorf("failed to write file part: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to finish multipart body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.host+"/uploads", &buf)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	var upload Upload
	if err := c.do(req, username, "upload", &upload); err != nil {
		return nil, err
	}
	return &upload, nil
}

// CreatePost creates an unlisted regular topic on behalf of username.
func (c *Client) CreatePost(ctx context.Context, username string, post Post) (*CreatedPost, error) {
	form := url.Values{
		"title":     {post.Title},
		"category":  {post.Category},
		"archetype": {"regular"},
		"unlisted":  {"true"},
		"raw":       {post.Raw},
	}
	if post.ExternalID != "" {
		form.Set("external_id", post.ExternalID)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.host+"/posts", strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	var created CreatedPost
	if err := c.do(req, username, "create post", &created); err != nil {
		return nil, err
	}
	return &created, nil
}

// do sends the request with auth headers and decodes a 200 JSON body into out.
func (c *Client) do(req *http.Request, username, op string, out any) error {
	req.Header.Set("Api-Key", c.apiKey)
	req.Header.Set("Api-Username", username)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("discourse %s request failed: %w", op, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read discourse %s response: %w", op, err)
	}

	if resp.StatusCode != http.StatusOK {
		var decoded errorResponse
		apiErr := newAPIError(op, resp.StatusCode, body, nil)
		if jsonErr := json.Unmarshal(body, &decoded); jsonErr == nil {
			apiErr = newAPIError(op, resp.StatusCode, body, &decoded)
		}
		slog.ErrorContext(req.Context(), "failure in discourse response",
			"op", op,
			"status", resp.StatusCode,
			"error_type", decoded.ErrorType,
			"body", apiErr.Message,
		)
		return apiErr
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to decode discourse %s response: %w", op, err)
	}
	return nil
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")
