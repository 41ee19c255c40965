package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/jpillora/backoff"
	"github.com/thetakeaway/takeaway/src/config"
	"github.com/thetakeaway/takeaway/src/logging"
	"github.com/thetakeaway/takeaway/src/oops"
	"github.com/thetakeaway/takeaway/src/perf"
	"github.com/thetakeaway/takeaway/src/utils"
)

const (
	anthropicVersion = "2023-06-01"

	// Anthropic's "overloaded" status.
	statusOverloaded = 529
)

var ErrNoAPIKey = errors.New("no LLM API key is configured")

// A client for the Anthropic Messages API. Safe for concurrent use.
type Client struct {
	cfg        config.LLMConfig
	httpClient *http.Client
	boff       backoff.Backoff
	sleep      func(ctx context.Context, d time.Duration) error
}

type Option func(*Client)

func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// Overrides the delay between retries. Tests use this to avoid sleeping.
func WithRetryDelay(min, max time.Duration) Option {
	return func(c *Client) {
		c.boff.Min = min
		c.boff.Max = max
	}
}

func NewClient(cfg config.LLMConfig, opts ...Option) *Client {
	cfg.BaseUrl = strings.TrimSuffix(utils.OrDefault(cfg.BaseUrl, "https://api.anthropic.com"), "/")
	cfg.MaxTokens = utils.OrDefault(cfg.MaxTokens, 4096)
	cfg.Timeout = utils.OrDefault(cfg.Timeout, 2*time.Minute)

	c := &Client{
		cfg:        cfg,
		httpClient: &http.Client{},
		boff: backoff.Backoff{
			Min:    1 * time.Second,
			Max:    20 * time.Second,
			Factor: 2,
			Jitter: true,
		},
		sleep: utils.SleepContext,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) Model() string {
	return c.cfg.Model
}

type messagesRequest struct {
	Model     string    `json:"model"`
	MaxTokens int       `json:"max_tokens"`
	Messages  []message `json:"messages"`
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type messagesResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
	Usage      struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

type errorResponse struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// A non-2xx response from the API.
type StatusError struct {
	StatusCode int
	Type       string
	Message    string
	RetryAfter time.Duration
}

func (e *StatusError) Error() string {
	if e.Type != "" {
		return fmt.Sprintf("LLM API returned %d (%s): %s", e.StatusCode, e.Type, e.Message)
	}
	return fmt.Sprintf("LLM API returned %d: %s", e.StatusCode, e.Message)
}

func (e *StatusError) Temporary() bool {
	switch e.StatusCode {
	case http.StatusRequestTimeout, http.StatusTooManyRequests, statusOverloaded:
		return true
	}
	return e.StatusCode >= http.StatusInternalServerError
}

type Completion struct {
	Text       string
	StopReason string
	Truncated  bool // the model hit max_tokens
	Attempts   int
}

/*
Sends a single user message and returns the text of the reply. Rate limits,
overload, and server errors are retried up to MaxRetries times with
exponential backoff, honoring Retry-After. The whole call, retries included,
is bounded by the configured timeout.
*/
func (c *Client) Complete(ctx context.Context, prompt string) (Completion, error) {
	if c.cfg.ApiKey == "" {
		return Completion{}, ErrNoAPIKey
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	p := perf.ExtractPerf(ctx)
	p.StartBlock("LLM", "Messages API")
	defer p.EndBlock()

	logger := logging.ExtractLogger(ctx)

	body, err := json.Marshal(messagesRequest{
		Model:     c.cfg.Model,
		MaxTokens: c.cfg.MaxTokens,
		Messages:  []message{{Role: "user", Content: prompt}},
	})
	if err != nil {
		return Completion{}, oops.New(err, "failed to encode LLM request")
	}

	boff := c.boff
	for attempt := 1; ; attempt++ {
		completion, err := c.send(ctx, body)
		if err == nil {
			completion.Attempts = attempt
			return completion, nil
		}

		delay, retry := c.retryDelay(ctx, err, &boff)
		if !retry || attempt > c.cfg.MaxRetries {
			return Completion{}, err
		}

		logger.Warn().
			Err(err).
			Int("attempt", attempt).
			Dur("delay", delay).
			Msg("LLM request failed; retrying")

		if err := c.sleep(ctx, delay); err != nil {
			return Completion{}, oops.New(ctx.Err(), "gave up waiting to retry LLM request")
		}
	}
}

func (c *Client) retryDelay(ctx context.Context, err error, boff *backoff.Backoff) (time.Duration, bool) {
	if ctx.Err() != nil {
		return 0, false
	}

	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		if !statusErr.Temporary() {
			return 0, false
		}
		next := boff.Duration()
		if statusErr.RetryAfter > 0 {
			return min(statusErr.RetryAfter, boff.Max), true
		}
		return next, true
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return boff.Duration(), true
	}

	return 0, false
}

func (c *Client) send(ctx context.Context, body []byte) (Completion, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseUrl+"/v1/messages", bytes.NewReader(body))
	if err != nil {
		return Completion{}, oops.New(err, "failed to create LLM request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.cfg.ApiKey)
	req.Header.Set("anthropic-version", anthropicVersion)

	res, err := c.httpClient.Do(req)
	if err != nil {
		return Completion{}, oops.New(err, "LLM request failed")
	}
	defer res.Body.Close()

	resBody, err := io.ReadAll(io.LimitReader(res.Body, 10*1024*1024))
	if err != nil {
		return Completion{}, oops.New(err, "failed to read LLM response")
	}

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		statusErr := &StatusError{
			StatusCode: res.StatusCode,
			Message:    utils.Truncate(strings.TrimSpace(string(resBody)), 500),
			RetryAfter: parseRetryAfter(res.Header.Get("Retry-After")),
		}
		var errRes errorResponse
		if json.Unmarshal(resBody, &errRes) == nil && errRes.Error.Message != "" {
			statusErr.Type = errRes.Error.Type
			statusErr.Message = errRes.Error.Message
		}
		return Completion{}, statusErr
	}

	var parsed messagesResponse
	if err := json.Unmarshal(resBody, &parsed); err != nil {
		return Completion{}, oops.New(err, "failed to decode LLM response envelope")
	}

	var text strings.Builder
	for _, block := range parsed.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	if text.Len() == 0 {
		return Completion{}, oops.New(nil, "LLM response had no text content (stop reason %q)", parsed.StopReason)
	}

	logging.ExtractLogger(ctx).Debug().
		Int("inputTokens", parsed.Usage.InputTokens).
		Int("outputTokens", parsed.Usage.OutputTokens).
		Str("stopReason", parsed.StopReason).
		Msg("LLM response received")

	return Completion{
		Text:       text.String(),
		StopReason: parsed.StopReason,
		Truncated:  parsed.StopReason == "max_tokens",
	}, nil
}

// Accepts either delay-seconds or an HTTP date.
func parseRetryAfter(value string) time.Duration {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0
	}
	if secs, err := strconv.Atoi(value); err == nil {
		if secs < 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(value); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}
