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

	"github.com/jonboulle/clockwork"

	"meetcap/internal/retry"
	"meetcap/internal/services"
)

const (
	defaultBaseURL   = "https://generativelanguage.googleapis.com/v1beta/openai/chat/completions"
	defaultTimeout   = 2 * time.Minute
	defaultAttempts  = 5
	defaultBaseDelay = time.Second
	defaultMaxDelay  = 10 * time.Second
	maxResponseBytes = 8 << 20
)

// Config captures the runtime settings required to talk to the LLM.
type Config struct {
	APIKey         string
	BaseURL        string
	Model          string
	Referer        string
	Title          string
	Temperature    float64
	TimeoutSeconds int
}

// Client sends chat completions.
type Client struct {
	cfg        Config
	httpClient *http.Client
	clock      clockwork.Clock

	attempts  int
	baseDelay time.Duration
	maxDelay  time.Duration
}

// Option customizes the client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithRetryMaxAttempts sets how many requests one call may make.
func WithRetryMaxAttempts(attempts int) Option {
	return func(c *Client) {
		if attempts > 0 {
			c.attempts = attempts
		}
	}
}

// WithRetryBackoff overrides the retry backoff delays.
func WithRetryBackoff(baseDelay, maxDelay time.Duration) Option {
	return func(c *Client) {
		c.baseDelay = baseDelay
		c.maxDelay = maxDelay
	}
}

// WithClock sets the clock retry waits run on.
func WithClock(clock clockwork.Clock) Option {
	return func(c *Client) {
		if clock != nil {
			c.clock = clock
		}
	}
}

// NewClient constructs a client. An empty BaseURL selects the Gemini
// OpenAI-compatible endpoint.
func NewClient(cfg Config, opts ...Option) *Client {
	cfg.APIKey = strings.TrimSpace(cfg.APIKey)
	cfg.BaseURL = strings.TrimSpace(cfg.BaseURL)
	cfg.Model = strings.TrimSpace(cfg.Model)
	cfg.Referer = strings.TrimSpace(cfg.Referer)
	cfg.Title = strings.TrimSpace(cfg.Title)
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	timeout := defaultTimeout
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	c := &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: timeout},
		clock:      clockwork.NewRealClock(),
		attempts:   defaultAttempts,
		baseDelay:  defaultBaseDelay,
		maxDelay:   defaultMaxDelay,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Model returns the configured model name.
func (c *Client) Model() string { return c.cfg.Model }

// Complete sends one system/user prompt pair and returns the reply text.
func (c *Client) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	systemPrompt = strings.TrimSpace(systemPrompt)
	userPrompt = strings.TrimSpace(userPrompt)
	if systemPrompt == "" || userPrompt == "" {
		return "", services.Wrap(services.ErrValidation, "llm", "complete", "system and user prompts are required", nil)
	}
	return c.send(ctx, "complete", request{
		Model: c.cfg.Model,
		Messages: []message{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userPrompt},
		},
		Temperature: c.cfg.Temperature,
	})
}

// HealthCheck asks for a one-word reply to prove the key and model work.
func (c *Client) HealthCheck(ctx context.Context) error {
	reply, err := c.send(ctx, "health", request{
		Model: c.cfg.Model,
		Messages: []message{
			{Role: "system", Content: "You are a health check. Reply with the single word OK."},
			{Role: "user", Content: "ping"},
		},
	})
	if err != nil {
		return err
	}
	if !strings.Contains(strings.ToUpper(reply), "OK") {
		return services.Wrap(services.ErrExternalTool, "llm", "health", "unexpected reply: "+snippet([]byte(reply)), nil)
	}
	return nil
}

type request struct {
	Model       string    `json:"model"`
	Messages    []message `json:"messages"`
	Temperature float64   `json:"temperature"`
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type response struct {
	Choices []struct {
		FinishReason string `json:"finish_reason"`
		Message      struct {
			Content string `json:"content"`
			Refusal string `json:"refusal"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// attemptError is a failed request and whether another attempt may help.
type attemptError struct {
	err        error
	retryable  bool
	retryAfter time.Duration
}

func (c *Client) send(ctx context.Context, op string, payload request) (string, error) {
	if c.cfg.APIKey == "" {
		return "", services.Wrap(services.ErrConfiguration, "llm", op, "llm.api_key is not set", nil)
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("llm %s: encode request: %w", op, err)
	}

	var last attemptError
	for attempt := 1; attempt <= c.attempts; attempt++ {
		reply, failure := c.sendOnce(ctx, op, body)
		if failure == nil {
			return reply, nil
		}
		last = *failure
		if !last.retryable || attempt == c.attempts {
			break
		}
		delay := last.retryAfter
		if delay <= 0 {
			delay = c.backoff(attempt)
		}
		if err := retry.Sleep(ctx, c.clock, delay); err != nil {
			return "", err
		}
	}
	return "", last.err
}

func (c *Client) sendOnce(ctx context.Context, op string, body []byte) (string, *attemptError) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL, bytes.NewReader(body))
	if err != nil {
		return "", &attemptError{err: services.Wrap(services.ErrConfiguration, "llm", op, "bad base_url "+c.cfg.BaseURL, err)}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	if c.cfg.Referer != "" {
		req.Header.Set("HTTP-Referer", c.cfg.Referer)
	}
	if c.cfg.Title != "" {
		req.Header.Set("X-Title", c.cfg.Title)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", &attemptError{err: ctxErr}
		}
		var netErr net.Error
		return "", &attemptError{
			err:       services.Wrap(services.ErrTransient, "llm", op, "request failed", err),
			retryable: errors.As(err, &netErr),
		}
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return "", &attemptError{err: services.Wrap(services.ErrTransient, "llm", op, "read response", err), retryable: true}
	}

	if resp.StatusCode != http.StatusOK {
		retryable := resp.StatusCode == http.StatusRequestTimeout ||
			resp.StatusCode == http.StatusTooManyRequests ||
			resp.StatusCode >= http.StatusInternalServerError
		marker := services.ErrExternalTool
		if retryable {
			marker = services.ErrTransient
		}
		wait, _ := parseRetryAfter(resp.Header.Get("Retry-After"), c.clock.Now())
		return "", &attemptError{
			err:        services.Wrap(marker, "llm", op, fmt.Sprintf("http %d: %s", resp.StatusCode, snippet(raw)), nil),
			retryable:  retryable,
			retryAfter: c.capDelay(wait),
		}
	}

	var parsed response
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", &attemptError{err: services.Wrap(services.ErrExternalTool, "llm", op, "decode response: "+snippet(raw), err)}
	}
	if parsed.Error != nil && parsed.Error.Message != "" {
		return "", &attemptError{err: services.Wrap(services.ErrExternalTool, "llm", op, parsed.Error.Message, nil)}
	}
	if len(parsed.Choices) == 0 {
		return "", &attemptError{err: services.Wrap(services.ErrExternalTool, "llm", op, "no choices in response", nil), retryable: true}
	}
	choice := parsed.Choices[0]
	content := strings.TrimSpace(choice.Message.Content)
	if content == "" {
		detail := fmt.Sprintf("empty reply (finish_reason=%q", choice.FinishReason)
		if choice.Message.Refusal != "" {
			detail += fmt.Sprintf(", refusal=%q", choice.Message.Refusal)
		}
		return "", &attemptError{
			err:       services.Wrap(services.ErrExternalTool, "llm", op, detail+")", nil),
			retryable: choice.Message.Refusal == "",
		}
	}
	return content, nil
}

func (c *Client) backoff(attempt int) time.Duration {
	delay := c.baseDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if c.maxDelay > 0 && delay >= c.maxDelay {
			break
		}
	}
	return c.capDelay(delay)
}

func (c *Client) capDelay(delay time.Duration) time.Duration {
	if c.maxDelay > 0 && delay > c.maxDelay {
		return c.maxDelay
	}
	return delay
}

// parseRetryAfter accepts either delay-seconds or an HTTP date.
func parseRetryAfter(value string, now time.Time) (time.Duration, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, false
	}
	if secs, err := strconv.Atoi(value); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second, true
	}
	if at, err := http.ParseTime(value); err == nil {
		if d := at.Sub(now); d > 0 {
			return d, true
		}
		return 0, true
	}
	return 0, false
}

func snippet(body []byte) string {
	text := strings.Join(strings.Fields(string(body)), " ")
	if len(text) > 200 {
		return text[:200] + "..."
	}
	return text
}
