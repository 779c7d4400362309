// Package httpclient is a small JSON-over-HTTP client shared by remote judges.
package httpclient

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	appErr "coderunner/pkg/errors"
)

const maxBodyBytes = 8 << 20

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

// Client sends requests to one base URL with a fixed set of headers.
// It is safe for concurrent use.
type Client struct {
	baseURL string
	headers map[string]string
	http    *http.Client
}

// New creates a client. timeout bounds every single request.
func New(baseURL string, timeout time.Duration, headers map[string]string) *Client {
	copied := make(map[string]string, len(headers))
	for k, v := range headers {
		copied[k] = v
	}
	return &Client{
		baseURL: baseURL,
		headers: copied,
		http:    &http.Client{Timeout: timeout},
	}
}

// Do sends body as JSON to path and returns the raw response. Non-2xx
// statuses are not errors; transport failures are.
func (c *Client) Do(ctx context.Context, method, path string, body []byte) (ResponseInfo, error) {
	var info ResponseInfo

	var reader io.Reader
	if len(body) > 0 {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, fmt.Sprintf("%s%s", c.baseURL, path), reader)
	if err != nil {
		return info, appErr.Wrapf(err, appErr.RemoteJudgeError, "build request failed")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	for k, v := range c.headers {
		if v != "" {
			req.Header.Set(k, v)
		}
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	info.Duration = time.Since(start)
	if err != nil {
		if isTimeout(err) {
			return info, appErr.Wrapf(err, appErr.RemoteTimeout, "request timed out")
		}
		return info, appErr.Wrapf(err, appErr.RemoteJudgeError, "request failed")
	}
	defer func() { _ = resp.Body.Close() }()

	info.StatusCode = resp.StatusCode
	info.Headers = resp.Header
	bodyBytes, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return info, appErr.Wrapf(err, appErr.RemoteBadResponse, "read response body failed")
	}
	info.Body = bodyBytes
	return info, nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
