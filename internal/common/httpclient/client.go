package httpclient

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const defaultMaxBody = 512 << 20

// ResponseInfo carries response details.
type ResponseInfo struct {
	StatusCode int
	Headers    http.Header
	Body       []byte
	Duration   time.Duration
}

// OK reports a 2xx status.
func (r ResponseInfo) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// Request describes one call relative to the client's base URL.
type Request struct {
	Method      string
	Path        string
	Query       url.Values
	Headers     map[string]string
	Body        []byte
	ContentType string
}

// Client wraps HTTP requests to the grading backend and the judge admin API.
type Client struct {
	baseURL string
	http    *http.Client
	maxBody int64
}

func New(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		maxBody: defaultMaxBody,
	}
}

// NewWithHTTPClient uses hc for transport, mainly for tests.
func NewWithHTTPClient(baseURL string, hc *http.Client) *Client {
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), http: hc, maxBody: defaultMaxBody}
}

func (c *Client) BaseURL() string {
	return c.baseURL
}

func (c *Client) SetBaseURL(baseURL string) {
	c.baseURL = strings.TrimRight(baseURL, "/")
}

func (c *Client) SetTimeout(timeout time.Duration) {
	if timeout > 0 {
		c.http.Timeout = timeout
	}
}

// SetMaxBody caps how many response bytes are read; larger bodies fail.
func (c *Client) SetMaxBody(n int64) {
	if n > 0 {
		c.maxBody = n
	}
}

func (c *Client) Do(ctx context.Context, r Request) (ResponseInfo, error) {
	var info ResponseInfo

	var reader io.Reader
	if len(r.Body) > 0 {
		reader = bytes.NewReader(r.Body)
	}
	target := c.baseURL + r.Path
	if len(r.Query) > 0 {
		target += "?" + r.Query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, r.Method, target, reader)
	if err != nil {
		return info, fmt.Errorf("build request failed: %w", err)
	}
	contentType := r.ContentType
	if contentType == "" && reader != nil {
		contentType = "application/json"
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	for k, v := range r.Headers {
		if v != "" {
			req.Header.Set(k, v)
		}
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	info.Duration = time.Since(start)
	if err != nil {
		return info, fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	info.StatusCode = resp.StatusCode
	info.Headers = resp.Header
	bodyBytes, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBody+1))
	if err != nil {
		return info, fmt.Errorf("read response body failed: %w", err)
	}
	if int64(len(bodyBytes)) > c.maxBody {
		return info, fmt.Errorf("response body exceeds %d bytes", c.maxBody)
	}
	info.Body = bodyBytes
	return info, nil
}
