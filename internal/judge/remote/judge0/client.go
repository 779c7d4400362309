// Package judge0 talks to a Judge0 compatible remote judging service using
// the submit then poll protocol.
package judge0

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"coderunner/internal/judge/remote/httpclient"
	"coderunner/internal/judge/sandbox/classify"
	appErr "coderunner/pkg/errors"
	"coderunner/pkg/utils/logger"

	"github.com/zeromicro/go-zero/core/breaker"
	"go.uber.org/zap"
)

const (
	DefaultBaseURL        = "https://judge0-ce.p.rapidapi.com"
	DefaultKeyHeader      = "X-RapidAPI-Key"
	DefaultHostHeader     = "X-RapidAPI-Host"
	DefaultPollInterval   = time.Second
	DefaultMaxAttempts    = 30
	DefaultRequestTimeout = 10 * time.Second

	resultFields = "stdout,stderr,status,time,memory,compile_output,message,exit_code,exit_signal"
)

// Config holds remote judge settings.
type Config struct {
	BaseURL string `yaml:"baseURL"`
	APIKey  string `yaml:"apiKey"`
	// KeyHeader carries APIKey. HostHeader carries the host of BaseURL and
	// is omitted when empty.
	KeyHeader  string `yaml:"keyHeader"`
	HostHeader string `yaml:"hostHeader"`

	PollInterval time.Duration `yaml:"pollInterval"`
	MaxAttempts  int           `yaml:"maxAttempts"`
	// MaxPollInterval enables exponential backoff between polls when it is
	// larger than PollInterval.
	MaxPollInterval time.Duration `yaml:"maxPollInterval"`
	RequestTimeout  time.Duration `yaml:"requestTimeout"`
	BreakerName     string        `yaml:"breakerName"`
}

func (c Config) withDefaults() Config {
	c.BaseURL = normalizeBaseURL(c.BaseURL)
	if c.KeyHeader == "" {
		c.KeyHeader = DefaultKeyHeader
	}
	if c.PollInterval <= 0 {
		c.PollInterval = DefaultPollInterval
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = DefaultMaxAttempts
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = DefaultRequestTimeout
	}
	if c.BreakerName == "" {
		c.BreakerName = "judge0"
	}
	return c
}

// normalizeBaseURL accepts both the service root and the submissions endpoint.
func normalizeBaseURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		raw = DefaultBaseURL
	}
	if i := strings.Index(raw, "?"); i >= 0 {
		raw = raw[:i]
	}
	raw = strings.TrimRight(raw, "/")
	raw = strings.TrimSuffix(raw, "/submissions")
	return strings.TrimRight(raw, "/")
}

// SubmitRequest is one unit of work. Expected output is never sent: output
// comparison always happens locally.
type SubmitRequest struct {
	LanguageID  int
	SourceCode  string
	Stdin       string
	TimeLimit   time.Duration
	MemoryLimit int64 // KB
}

type submitPayload struct {
	SourceCode   string  `json:"source_code"`
	LanguageID   int     `json:"language_id"`
	Stdin        string  `json:"stdin"`
	CPUTimeLimit float64 `json:"cpu_time_limit,omitempty"`
	MemoryLimit  int64   `json:"memory_limit,omitempty"`
}

type status struct {
	ID          int    `json:"id"`
	Description string `json:"description"`
}

type submissionPayload struct {
	Token         string  `json:"token"`
	Stdout        *string `json:"stdout"`
	Stderr        *string `json:"stderr"`
	CompileOutput *string `json:"compile_output"`
	Message       *string `json:"message"`
	Status        status  `json:"status"`
	Time          *string `json:"time"`
	Memory        *int64  `json:"memory"`
	ExitCode      *int    `json:"exit_code"`
	ExitSignal    *int    `json:"exit_signal"`
}

// Result is a decoded submission state.
type Result struct {
	Token         string
	StatusID      int
	Description   string
	Stdout        string
	Stderr        string
	CompileOutput string
	Message       string
	Time          time.Duration
	MemoryKB      int64
	ExitCode      int
	ExitSignal    int
}

// Finished reports whether the status is terminal.
func (r Result) Finished() bool {
	return classify.Finished(r.StatusID)
}

// Client submits code and polls for results. It is safe for concurrent use.
type Client struct {
	cfg  Config
	http *httpclient.Client
	brk  breaker.Breaker
	// sleep is replaced in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewClient builds a client from configuration.
func NewClient(cfg Config) (*Client, error) {
	cfg = cfg.withDefaults()
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, appErr.ValidationError("judge0.apiKey", "required")
	}
	parsed, err := url.Parse(cfg.BaseURL)
	if err != nil || parsed.Host == "" {
		return nil, appErr.Newf(appErr.InvalidValue, "invalid judge0 base url: %s", cfg.BaseURL)
	}
	headers := map[string]string{cfg.KeyHeader: cfg.APIKey}
	if cfg.HostHeader != "" {
		headers[cfg.HostHeader] = parsed.Host
	}
	return &Client{
		cfg:   cfg,
		http:  httpclient.New(cfg.BaseURL, cfg.RequestTimeout, headers),
		brk:   breaker.NewBreaker(breaker.WithName(cfg.BreakerName)),
		sleep: sleepContext,
	}, nil
}

// Submit creates a submission and returns its token.
func (c *Client) Submit(ctx context.Context, req SubmitRequest) (string, error) {
	payload := submitPayload{
		SourceCode:  encode(req.SourceCode),
		LanguageID:  req.LanguageID,
		Stdin:       encode(req.Stdin),
		MemoryLimit: req.MemoryLimit,
	}
	if req.TimeLimit > 0 {
		payload.CPUTimeLimit = req.TimeLimit.Seconds()
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", appErr.Wrapf(err, appErr.RemoteJudgeError, "encode submission failed")
	}

	resp, err := c.call(ctx, http.MethodPost, "/submissions?base64_encoded=true&wait=false", body)
	if err != nil {
		return "", err
	}
	if !resp.OK() {
		return "", appErr.Newf(appErr.RemoteRejectedSubmit, "remote judge rejected submission: status %d: %s", resp.StatusCode, snippet(resp.Body))
	}
	var out submissionPayload
	if err := json.Unmarshal(resp.Body, &out); err != nil {
		return "", appErr.Wrapf(err, appErr.RemoteBadResponse, "decode submission response failed")
	}
	if out.Token == "" {
		return "", appErr.New(appErr.RemoteBadResponse).WithMessage("remote judge returned no token")
	}
	return out.Token, nil
}

// Get fetches the current state of a submission.
func (c *Client) Get(ctx context.Context, token string) (Result, error) {
	path := fmt.Sprintf("/submissions/%s?base64_encoded=true&fields=%s", url.PathEscape(token), resultFields)
	resp, err := c.call(ctx, http.MethodGet, path, nil)
	if err != nil {
		return Result{}, err
	}
	if !resp.OK() {
		return Result{}, appErr.Newf(appErr.RemoteBadResponse, "poll submission failed: status %d: %s", resp.StatusCode, snippet(resp.Body))
	}
	var out submissionPayload
	if err := json.Unmarshal(resp.Body, &out); err != nil {
		return Result{}, appErr.Wrapf(err, appErr.RemoteBadResponse, "decode submission failed")
	}
	res, err := out.decode()
	if err != nil {
		return Result{}, err
	}
	res.Token = token
	return res, nil
}

// Wait polls until the submission reaches a terminal status or the attempt
// ceiling is exhausted.
func (c *Client) Wait(ctx context.Context, token string) (Result, error) {
	for attempt := 0; attempt < c.cfg.MaxAttempts; attempt++ {
		if err := c.sleep(ctx, c.pollDelay(attempt)); err != nil {
			return Result{}, appErr.Wrapf(err, appErr.RemoteTimeout, "request timed out")
		}
		res, err := c.Get(ctx, token)
		if err != nil {
			return Result{}, err
		}
		if res.Finished() {
			return res, nil
		}
		logger.Debug(ctx, "remote submission pending",
			zap.String("token", token),
			zap.Int("attempt", attempt+1),
			zap.Int("status_id", res.StatusID),
		)
	}
	logger.Warn(ctx, "remote submission poll exhausted", zap.String("token", token), zap.Int("attempts", c.cfg.MaxAttempts))
	return Result{}, appErr.New(appErr.RemoteTimeout).WithMessage("request timed out")
}

// Execute submits and waits.
func (c *Client) Execute(ctx context.Context, req SubmitRequest) (Result, error) {
	token, err := c.Submit(ctx, req)
	if err != nil {
		return Result{}, err
	}
	return c.Wait(ctx, token)
}

// call runs one request through the circuit breaker. Only transport level
// failures and 5xx answers count against the remote.
func (c *Client) call(ctx context.Context, method, path string, body []byte) (httpclient.ResponseInfo, error) {
	var resp httpclient.ResponseInfo
	err := c.brk.DoWithAcceptable(func() error {
		var err error
		resp, err = c.http.Do(ctx, method, path, body)
		if err != nil {
			return err
		}
		if resp.StatusCode >= http.StatusInternalServerError {
			return appErr.Newf(appErr.RemoteBadResponse, "remote judge error: status %d: %s", resp.StatusCode, snippet(resp.Body))
		}
		return nil
	}, func(err error) bool {
		return err == nil || errors.Is(err, context.Canceled)
	})
	if errors.Is(err, breaker.ErrServiceUnavailable) {
		return resp, appErr.Wrapf(err, appErr.RemoteCircuitOpen, "remote judge unavailable")
	}
	return resp, err
}

// pollDelay doubles the interval per attempt up to MaxPollInterval.
func (c *Client) pollDelay(attempt int) time.Duration {
	base, max := c.cfg.PollInterval, c.cfg.MaxPollInterval
	if max <= base {
		return base
	}
	delay := base
	for i := 0; i < attempt; i++ {
		if delay > max/2 {
			return max
		}
		delay *= 2
	}
	return delay
}

func (p submissionPayload) decode() (Result, error) {
	res := Result{StatusID: p.Status.ID, Description: p.Status.Description}
	fields := []struct {
		name string
		src  *string
		dst  *string
	}{
		{"stdout", p.Stdout, &res.Stdout},
		{"stderr", p.Stderr, &res.Stderr},
		{"compile_output", p.CompileOutput, &res.CompileOutput},
		{"message", p.Message, &res.Message},
	}
	for _, f := range fields {
		if f.src == nil {
			continue
		}
		decoded, err := decode(*f.src)
		if err != nil {
			return Result{}, appErr.Wrapf(err, appErr.RemoteBadResponse, "decode %s failed", f.name)
		}
		*f.dst = decoded
	}
	if p.Time != nil {
		if secs, err := strconv.ParseFloat(*p.Time, 64); err == nil {
			res.Time = time.Duration(secs * float64(time.Second))
		}
	}
	if p.Memory != nil {
		res.MemoryKB = *p.Memory
	}
	if p.ExitCode != nil {
		res.ExitCode = *p.ExitCode
	}
	if p.ExitSignal != nil {
		res.ExitSignal = *p.ExitSignal
	}
	return res, nil
}

func encode(s string) string {
	return base64.StdEncoding.EncodeToString([]byte(s))
}

// decode tolerates the line breaks Judge0 inserts into long base64 values.
func decode(s string) (string, error) {
	cleaned := strings.NewReplacer("\n", "", "\r", "").Replace(s)
	data, err := base64.StdEncoding.DecodeString(cleaned)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func snippet(body []byte) string {
	const max = 256
	s := strings.TrimSpace(string(body))
	if len(s) > max {
		return s[:max] + "..."
	}
	return s
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
