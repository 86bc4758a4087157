package netop

import (
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/SteelMorgan/evtc-log-uploader/internal/observability"
)

// maxBodySize caps how much of a response body is kept
const maxBodySize = 4 << 20

// RequestIDHeader carries the upload attempt id
const RequestIDHeader = "X-Request-Id"

// File is a multipart file part streamed from disk
type File struct {
	Field string
	Path  string
}

// Response is a fully read HTTP response
type Response struct {
	StatusCode int
	Body       []byte
}

// Client performs the uploader's outbound HTTP calls
type Client struct {
	http      *http.Client
	userAgent string
}

// NewClient creates a client whose requests time out after timeout
func NewClient(timeout time.Duration, userAgent string) *Client {
	return &Client{
		http:      &http.Client{Timeout: timeout},
		userAgent: userAgent,
	}
}

// Get sends a GET request
func (c *Client) Get(ctx context.Context, rawURL string, query url.Values) (Response, error) {
	target, err := withQuery(rawURL, query)
	if err != nil {
		return Response{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return Response{}, fmt.Errorf("failed to build request: %w", err)
	}
	return c.do(ctx, req)
}

// Post sends a multipart/form-data POST with the given fields and files.
// Files are streamed so large logs are never held in memory.
func (c *Client) Post(ctx context.Context, rawURL string, query url.Values, fields map[string]string, files []File) (Response, error) {
	target, err := withQuery(rawURL, query)
	if err != nil {
		return Response{}, err
	}

	for _, f := range files {
		if _, err := os.Stat(f.Path); err != nil {
			return Response{}, fmt.Errorf("failed to open upload file: %w", err)
		}
	}

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		pw.CloseWithError(writeMultipart(mw, fields, files))
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, pr)
	if err != nil {
		pr.Close()
		return Response{}, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.do(ctx, req)
	pr.Close()
	return resp, err
}

func writeMultipart(mw *multipart.Writer, fields map[string]string, files []File) error {
	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		if err := mw.WriteField(name, fields[name]); err != nil {
			return err
		}
	}

	for _, f := range files {
		if err := copyFilePart(mw, f); err != nil {
			return err
		}
	}

	return mw.Close()
}

func copyFilePart(mw *multipart.Writer, f File) error {
	src, err := os.Open(f.Path)
	if err != nil {
		return err
	}
	defer src.Close()

	part, err := mw.CreateFormFile(f.Field, filepath.Base(f.Path))
	if err != nil {
		return err
	}
	_, err = io.Copy(part, src)
	return err
}

func (c *Client) do(ctx context.Context, req *http.Request) (resp Response, err error) {
	ctx, span := observability.StartSpan(ctx, "netop", req.Method+" "+req.URL.Path,
		attribute.String("http.method", req.Method),
		attribute.String("http.url", req.URL.Redacted()),
	)
	defer func() {
		span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))
		observability.EndSpan(span, err)
	}()
	req = req.WithContext(ctx)

	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	if id := observability.AttemptID(ctx); id != "" {
		req.Header.Set(RequestIDHeader, id)
	}

	httpResp, err := c.http.Do(req)
	if err != nil {
		return Response{}, fmt.Errorf("request failed: %w", err)
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(httpResp.Body, maxBodySize))
	if err != nil {
		return Response{StatusCode: httpResp.StatusCode}, fmt.Errorf("failed to read response: %w", err)
	}

	return Response{StatusCode: httpResp.StatusCode, Body: body}, nil
}

func withQuery(rawURL string, query url.Values) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("invalid url %q: %w", rawURL, err)
	}
	if len(query) > 0 {
		q := u.Query()
		for key, values := range query {
			for _, v := range values {
				q.Add(key, v)
			}
		}
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}
