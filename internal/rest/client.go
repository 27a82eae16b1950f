package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/matheus3301/inbox/internal/metrics"
	"go.uber.org/zap"
)

var (
	// ErrNotFound matches a 404 response.
	ErrNotFound = errors.New("not found")
	// ErrUnauthorized matches a 401 response.
	ErrUnauthorized = errors.New("unauthorized")
)

// StatusError is returned for any non-2xx response.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	body := e.Body
	if len(body) > 200 {
		body = body[:200] + "..."
	}
	if body == "" {
		return fmt.Sprintf("api returned status %d", e.Code)
	}
	return fmt.Sprintf("api returned status %d: %s", e.Code, body)
}

// Is maps status codes onto the sentinel errors.
func (e *StatusError) Is(target error) bool {
	switch target {
	case ErrNotFound:
		return e.Code == http.StatusNotFound
	case ErrUnauthorized:
		return e.Code == http.StatusUnauthorized
	}
	return false
}

// Options configures a Client.
type Options struct {
	BaseURL    string
	Token      string
	Timeout    time.Duration
	HTTPClient *http.Client
	Metrics    *metrics.Metrics
	Logger     *zap.Logger
	Now        func() time.Time
}

// Client is a typed client for the inbox REST API.
type Client struct {
	baseURL *url.URL
	token   string
	http    *http.Client
	metrics *metrics.Metrics
	log     *zap.Logger
	now     func() time.Time
}

// New creates a client for the API rooted at opts.BaseURL.
func New(opts Options) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(opts.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("base url %q must be absolute", opts.BaseURL)
	}
	hc := opts.HTTPClient
	if hc == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		hc = &http.Client{Timeout: timeout}
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Client{
		baseURL: base,
		token:   opts.Token,
		http:    hc,
		metrics: opts.Metrics,
		log:     log,
		now:     now,
	}, nil
}

func (c *Client) endpoint(path string, query url.Values) string {
	u := *c.baseURL
	u.Path = c.baseURL.Path + path
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}
	return u.String()
}

// request is one API call. body is JSON-encoded unless it is an io.Reader,
// in which case contentType must be set.
type request struct {
	op          string
	method      string
	path        string
	query       url.Values
	body        any
	contentType string
	size        int64
}

// do performs the request and returns the raw response body.
func (c *Client) do(ctx context.Context, r request) ([]byte, error) {
	start := time.Now()
	defer c.metrics.ObserveREST(r.op, start)

	var reader io.Reader
	contentType := r.contentType
	switch b := r.body.(type) {
	case nil:
	case io.Reader:
		reader = b
	default:
		data, err := json.Marshal(b)
		if err != nil {
			return nil, fmt.Errorf("%s: marshal request: %w", r.op, err)
		}
		reader = bytes.NewReader(data)
		contentType = "application/json"
	}

	req, err := http.NewRequestWithContext(ctx, r.method, c.endpoint(r.path, r.query), reader)
	if err != nil {
		return nil, fmt.Errorf("%s: create request: %w", r.op, err)
	}
	if r.size > 0 {
		req.ContentLength = r.size
	}
	req.Header.Set("Accept", "application/json")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: send request: %w", r.op, err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%s: read response: %w", r.op, err)
	}
	c.log.Debug("api request",
		zap.String("op", r.op),
		zap.String("method", r.method),
		zap.String("path", r.path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("took", time.Since(start)),
	)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%s: %w", r.op, &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(data))})
	}
	return data, nil
}

// decodeObject decodes a single object that may be wrapped in {"data": ...}.
func decodeObject(data []byte, out any) error {
	var env struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(data, &env); err == nil && len(env.Data) > 0 && env.Data[0] == '{' {
		data = env.Data
	}
	return json.Unmarshal(data, out)
}

func pathID(id string) string {
	return url.PathEscape(id)
}
