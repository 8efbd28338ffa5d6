package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"mvdown/internal/config"
	"mvdown/internal/logging"
	"mvdown/internal/services"
)

const (
	defaultTimeout       = 15 * time.Second
	defaultSubmitTimeout = 30 * time.Second
	defaultUserAgent     = "mvdown/0.1.0"
	maxErrorBody         = 2048
)

// APIError is a non-2xx answer from the backend.
type APIError struct {
	Method string
	Path   string
	Status int
	Body   string
}

func (e *APIError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s %s returned %d", e.Method, e.Path, e.Status)
	}
	return fmt.Sprintf("%s %s returned %d: %s", e.Method, e.Path, e.Status, e.Body)
}

// Detail extracts the server's error text, preferring the FastAPI style
// {"detail": ...} body and falling back to the raw excerpt.
func (e *APIError) Detail() string {
	var payload map[string]any
	if json.Unmarshal([]byte(e.Body), &payload) == nil {
		for _, key := range []string{"detail", "error", "message"} {
			if s, ok := payload[key].(string); ok && strings.TrimSpace(s) != "" {
				return strings.TrimSpace(s)
			}
		}
	}
	return e.Body
}

// Options configures a Client.
type Options struct {
	BaseURL       string
	Timeout       time.Duration
	SubmitTimeout time.Duration
	UserAgent     string
	HTTPClient    *http.Client
	Logger        *slog.Logger
}

// Client talks to one backend instance.
type Client struct {
	base          *url.URL
	http          *http.Client
	timeout       time.Duration
	submitTimeout time.Duration
	userAgent     string
	logger        *slog.Logger
}

// New constructs a client. A bare host:port base URL is treated as http.
func New(opts Options) (*Client, error) {
	raw := strings.TrimSpace(opts.BaseURL)
	if raw == "" {
		return nil, services.Wrap(services.ErrConfiguration, "backend", "parse base url", "server url is empty", nil)
	}
	if !strings.Contains(raw, "://") {
		raw = "http://" + raw
	}
	base, err := url.Parse(raw)
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "backend", "parse base url", raw, err)
	}
	base.RawQuery = ""
	base.Fragment = ""
	if !strings.HasSuffix(base.Path, "/") {
		base.Path += "/"
	}

	c := &Client{
		base:          base,
		http:          opts.HTTPClient,
		timeout:       opts.Timeout,
		submitTimeout: opts.SubmitTimeout,
		userAgent:     strings.TrimSpace(opts.UserAgent),
		logger:        logging.NewComponentLogger(opts.Logger, "backend"),
	}
	if c.http == nil {
		// Per-call contexts bound short requests; file bodies may take much longer.
		c.http = &http.Client{}
	}
	if c.timeout <= 0 {
		c.timeout = defaultTimeout
	}
	if c.submitTimeout <= 0 {
		c.submitTimeout = defaultSubmitTimeout
	}
	if c.userAgent == "" {
		c.userAgent = defaultUserAgent
	}
	return c, nil
}

// NewFromConfig constructs a client from application config.
func NewFromConfig(cfg *config.Config, logger *slog.Logger) (*Client, error) {
	if cfg == nil {
		return nil, services.Wrap(services.ErrConfiguration, "backend", "configure", "config is nil", nil)
	}
	return New(Options{
		BaseURL:       cfg.Server.URL,
		Timeout:       cfg.RequestTimeout(),
		SubmitTimeout: cfg.SubmitTimeout(),
		UserAgent:     cfg.Server.UserAgent,
		Logger:        logger,
	})
}

// BaseURL returns the normalized backend base URL without a trailing slash.
func (c *Client) BaseURL() string {
	return strings.TrimSuffix(c.base.String(), "/")
}

// Formats asks the backend which formats are available for mediaURL.
func (c *Client) Formats(ctx context.Context, mediaURL string) (FormatResponse, error) {
	var out FormatResponse
	err := c.doJSON(ctx, c.timeout, http.MethodPost, "api/formats", FormatRequest{URL: mediaURL}, &out)
	return out, err
}

// SubmitDownload starts a server-side job. The response must carry a job id.
func (c *Client) SubmitDownload(ctx context.Context, req DownloadRequest) (DownloadResponse, error) {
	var out DownloadResponse
	if err := c.doJSON(ctx, c.submitTimeout, http.MethodPost, "api/download", req, &out); err != nil {
		return DownloadResponse{}, err
	}
	out.DownloadID = strings.TrimSpace(out.DownloadID)
	if out.DownloadID == "" {
		return DownloadResponse{}, errors.New("backend accepted the download but returned no download_id")
	}
	return out, nil
}

// Files lists finished files on the server. Both a bare JSON array and an
// object with a "files" array are accepted.
func (c *Client) Files(ctx context.Context) ([]FileItem, error) {
	var raw json.RawMessage
	if err := c.doJSON(ctx, c.timeout, http.MethodGet, "api/files", nil, &raw); err != nil {
		return nil, err
	}
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		var wrapped struct {
			Files []FileItem `json:"files"`
		}
		if err := json.Unmarshal(trimmed, &wrapped); err != nil {
			return nil, fmt.Errorf("decode file list: %w", err)
		}
		return wrapped.Files, nil
	}
	var files []FileItem
	if len(trimmed) > 0 && !bytes.Equal(trimmed, []byte("null")) {
		if err := json.Unmarshal(trimmed, &files); err != nil {
			return nil, fmt.Errorf("decode file list: %w", err)
		}
	}
	return files, nil
}

// DeleteFile removes one file from the server.
func (c *Client) DeleteFile(ctx context.Context, name string) (DeleteResponse, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return DeleteResponse{}, services.Wrap(services.ErrValidation, "backend", "delete file", "file name is empty", nil)
	}
	var out DeleteResponse
	err := c.doJSON(ctx, c.timeout, http.MethodDelete, "api/files/"+url.PathEscape(name), nil, &out)
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound {
		return out, services.Wrap(services.ErrNotFound, "backend", "delete file", name, err)
	}
	return out, err
}

// DeleteAllFiles removes every file from the server.
func (c *Client) DeleteAllFiles(ctx context.Context) (DeleteAllResponse, error) {
	var out DeleteAllResponse
	err := c.doJSON(ctx, c.timeout, http.MethodDelete, "api/files", nil, &out)
	return out, err
}

// Health reports backend status.
func (c *Client) Health(ctx context.Context) (HealthResponse, error) {
	var out HealthResponse
	err := c.doJSON(ctx, c.timeout, http.MethodGet, "health", nil, &out)
	return out, err
}

// FileURL returns the public download URL for a finished file.
func (c *Client) FileURL(name string) string {
	return c.base.ResolveReference(&url.URL{Path: "downloads/" + name}).String()
}

// ResolveURL makes a server-relative link such as "/downloads/x.mp3" absolute.
func (c *Client) ResolveURL(ref string) string {
	ref = strings.TrimSpace(ref)
	parsed, err := url.Parse(ref)
	if err != nil || ref == "" {
		return ""
	}
	if parsed.IsAbs() {
		return parsed.String()
	}
	parsed.Path = strings.TrimPrefix(parsed.Path, "/")
	parsed.RawPath = strings.TrimPrefix(parsed.RawPath, "/")
	return c.base.ResolveReference(parsed).String()
}

// OpenFile starts streaming a file body. The caller must close the reader.
// size is -1 when the server does not report a length.
func (c *Client) OpenFile(ctx context.Context, fileURL string) (io.ReadCloser, int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fileURL, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("build file request: %w", err)
	}
	c.decorate(ctx, req)
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("get %s: %w", fileURL, err)
	}
	if resp.StatusCode >= 300 {
		defer resp.Body.Close()
		excerpt, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		apiErr := &APIError{Method: http.MethodGet, Path: req.URL.Path, Status: resp.StatusCode, Body: strings.TrimSpace(string(excerpt))}
		if resp.StatusCode == http.StatusNotFound {
			return nil, 0, services.Wrap(services.ErrNotFound, "backend", "open file", req.URL.Path, apiErr)
		}
		return nil, 0, apiErr
	}
	return resp.Body, resp.ContentLength, nil
}

func (c *Client) decorate(ctx context.Context, req *http.Request) {
	req.Header.Set("User-Agent", c.userAgent)
	requestID, ok := services.RequestIDFromContext(ctx)
	if !ok {
		requestID = uuid.NewString()
	}
	req.Header.Set("X-Request-ID", requestID)
}

func (c *Client) doJSON(ctx context.Context, timeout time.Duration, method, path string, body any, out any) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode %s body: %w", path, err)
		}
		reader = bytes.NewReader(payload)
	}

	ref, err := url.Parse(path)
	if err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	endpoint := c.base.ResolveReference(ref)
	req, err := http.NewRequestWithContext(ctx, method, endpoint.String(), reader)
	if err != nil {
		return fmt.Errorf("build %s request: %w", path, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	c.decorate(ctx, req)

	started := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return services.Wrap(services.ErrTimeout, "backend", method+" "+endpoint.Path, fmt.Sprintf("no answer within %s", timeout), err)
		}
		return fmt.Errorf("%s %s: %w", method, endpoint.Path, err)
	}
	defer resp.Body.Close()

	c.logger.Debug("backend request",
		logging.String("method", method),
		logging.String("path", endpoint.Path),
		logging.Int("status", resp.StatusCode),
		logging.Duration("elapsed", time.Since(started)),
		logging.String(logging.FieldCorrelationID, req.Header.Get("X-Request-ID")),
	)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		excerpt, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &APIError{Method: method, Path: endpoint.Path, Status: resp.StatusCode, Body: strings.TrimSpace(string(excerpt))}
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", endpoint.Path, err)
	}
	return nil
}

// IsUnavailable reports whether err means the backend could not be reached.
func IsUnavailable(err error) bool {
	if err == nil {
		return false
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Err != nil {
		err = urlErr.Err
	}
	var opErr *net.OpError
	return errors.As(err, &opErr)
}
