package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
	"time"

	"github.com/blacktop/newpost/internal/logutil"
	"github.com/google/uuid"
	"github.com/hashicorp/go-cleanhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const (
	// CreatePostPath is the backend route that accepts new posts.
	CreatePostPath = "/api/createPost"

	defaultTimeout  = 30 * time.Second
	maxResponseSize = 1 << 20
	userAgent       = "newpost/1"
)

// Multipart field names understood by the backend.
const (
	FieldTitle   = "title"
	FieldContent = "content"
	FieldUserID  = "userId"
	FieldImage   = "image"
)

// File is an in-memory upload.
type File struct {
	Name        string
	ContentType string
	Data        []byte
}

// Payload is the body of a single create-post request.
type Payload struct {
	Title   string
	Content string
	UserID  string
	Image   File
}

// Response is the decoded JSON body returned by the backend.
type Response struct {
	StatusCode int
	RequestID  string
	Message    string
	Raw        map[string]any
}

// StatusError reports a completed request whose status was not 2xx.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("backend returned %d: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("backend returned %d %s", e.Code, http.StatusText(e.Code))
}

// DecodeError reports a completed request whose body was not JSON.
type DecodeError struct {
	Code int
	Err  error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("backend returned %d with an unreadable body: %v", e.Code, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Options configures a Client.
type Options struct {
	BaseURL string
	Timeout time.Duration
	// Cookie is forwarded verbatim so the backend sees the logged-in session.
	Cookie  string
	Tracing bool
	// HTTPClient overrides the pooled client, mostly for tests.
	HTTPClient *http.Client
}

// Client talks to the posting backend.
type Client struct {
	base   *url.URL
	http   *http.Client
	cookie string
}

// New constructs a Client for the backend at opts.BaseURL.
func New(opts Options) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/"))
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("parse base url: %q is not absolute", opts.BaseURL)
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = cleanhttp.DefaultPooledClient()
		httpClient.Timeout = defaultTimeout
		if opts.Timeout > 0 {
			httpClient.Timeout = opts.Timeout
		}
	}
	if opts.Tracing {
		transport := httpClient.Transport
		if transport == nil {
			transport = http.DefaultTransport
		}
		httpClient.Transport = otelhttp.NewTransport(transport)
	}

	return &Client{base: base, http: httpClient, cookie: strings.TrimSpace(opts.Cookie)}, nil
}

// URL resolves a backend path against the base URL.
func (c *Client) URL(path string) string {
	u := *c.base
	u.Path = strings.TrimRight(u.Path, "/") + "/" + strings.TrimLeft(path, "/")
	return u.String()
}

// Close releases idle connections held by the client.
func (c *Client) Close() {
	c.http.CloseIdleConnections()
}

// CreatePost submits p as multipart/form-data. Exactly one request is made;
// failures are never retried.
func (c *Client) CreatePost(ctx context.Context, p Payload) (*Response, error) {
	body, contentType, err := EncodePayload(p)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.URL(CreatePostPath), body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")
	requestID := c.decorate(req)

	logutil.Debug("submitting post",
		FieldTitle, p.Title,
		FieldContent, fmt.Sprintf("%d bytes", len(p.Content)),
		FieldUserID, p.UserID,
		FieldImage, fmt.Sprintf("%s (%s, %d bytes)", p.Image.Name, p.Image.ContentType, len(p.Image.Data)),
		"request_id", requestID,
	)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("post %s: %w", CreatePostPath, err)
	}
	defer resp.Body.Close()

	out := &Response{StatusCode: resp.StatusCode, RequestID: requestID}
	// a body that is not JSON fails the request whatever the status
	if err := decodeBody(resp.Body, out); err != nil {
		logutil.Debugf("response body not decoded: status=%d err=%v", resp.StatusCode, err)
		return out, &DecodeError{Code: resp.StatusCode, Err: err}
	}
	logutil.Debug("backend response", "status", resp.StatusCode, "message", out.Message, "request_id", requestID)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return out, &StatusError{Code: resp.StatusCode, Message: out.Message}
	}
	return out, nil
}

// Refresh re-fetches a server-rendered page bypassing caches.
func (c *Client) Refresh(ctx context.Context, path string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.URL(path), nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Cache-Control", "no-cache")
	c.decorate(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("refresh %s: %w", path, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseSize))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &StatusError{Code: resp.StatusCode}
	}
	return nil
}

func (c *Client) decorate(req *http.Request) string {
	requestID := uuid.NewString()
	req.Header.Set("X-Request-Id", requestID)
	req.Header.Set("User-Agent", userAgent)
	if c.cookie != "" {
		req.Header.Set("Cookie", c.cookie)
	}
	return requestID
}

// EncodePayload renders p as a multipart body with the title, content,
// userId and image parts, in that order.
func EncodePayload(p Payload) (io.Reader, string, error) {
	buf := &bytes.Buffer{}
	w := multipart.NewWriter(buf)

	fields := []struct{ name, value string }{
		{FieldTitle, p.Title},
		{FieldContent, p.Content},
		{FieldUserID, p.UserID},
	}
	for _, f := range fields {
		if err := w.WriteField(f.name, f.value); err != nil {
			return nil, "", fmt.Errorf("write %s: %w", f.name, err)
		}
	}

	contentType := p.Image.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	name := p.Image.Name
	if name == "" {
		name = "image"
	}
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`, FieldImage, quoteEscaper.Replace(name)))
	header.Set("Content-Type", contentType)
	part, err := w.CreatePart(header)
	if err != nil {
		return nil, "", fmt.Errorf("write %s: %w", FieldImage, err)
	}
	if _, err := part.Write(p.Image.Data); err != nil {
		return nil, "", fmt.Errorf("write %s: %w", FieldImage, err)
	}

	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("close multipart: %w", err)
	}
	return buf, w.FormDataContentType(), nil
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func decodeBody(r io.Reader, out *Response) error {
	data, err := io.ReadAll(io.LimitReader(r, maxResponseSize))
	if err != nil {
		return fmt.Errorf("read body: %w", err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return errors.New("empty body")
	}

	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("decode body: %w", err)
	}
	out.Raw = raw
	if msg, ok := raw["message"].(string); ok {
		out.Message = msg
	}
	return nil
}
