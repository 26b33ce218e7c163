package deepgram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"meetcap/internal/services"
)

const (
	defaultEndpoint = "https://api.deepgram.com/v1/listen"
	defaultModel    = "nova-2"
	defaultLanguage = "en-US"
	defaultTimeout  = 15 * time.Minute
)

// Config captures the settings for one Deepgram client.
type Config struct {
	APIKey   string
	Endpoint string
	Model    string
	Language string
	Timeout  time.Duration
}

// Client transcribes audio files with Deepgram.
type Client struct {
	cfg        Config
	httpClient *http.Client
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

// NewClient constructs a Deepgram client. Empty fields fall back to nova-2,
// en-US and the public endpoint.
func NewClient(cfg Config, opts ...Option) *Client {
	cfg.APIKey = strings.TrimSpace(cfg.APIKey)
	if strings.TrimSpace(cfg.Endpoint) == "" {
		cfg.Endpoint = defaultEndpoint
	}
	if strings.TrimSpace(cfg.Model) == "" {
		cfg.Model = defaultModel
	}
	if strings.TrimSpace(cfg.Language) == "" {
		cfg.Language = defaultLanguage
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	c := &Client{cfg: cfg, httpClient: &http.Client{Timeout: cfg.Timeout}}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Name identifies the backend in logs.
func (c *Client) Name() string { return "deepgram" }

// Model returns the configured model.
func (c *Client) Model() string { return c.cfg.Model }

type listenResponse struct {
	Results struct {
		Channels []struct {
			Alternatives []struct {
				Transcript string  `json:"transcript"`
				Confidence float64 `json:"confidence"`
			} `json:"alternatives"`
		} `json:"channels"`
	} `json:"results"`
	ErrMsg string `json:"err_msg"`
}

// Transcribe uploads the audio at path and returns the first alternative of
// the first channel.
func (c *Client) Transcribe(ctx context.Context, path string) (string, error) {
	if c.cfg.APIKey == "" {
		return "", services.Wrap(services.ErrConfiguration, "deepgram", "transcribe", "transcription.deepgram_api_key is not set", nil)
	}
	file, err := os.Open(path)
	if err != nil {
		return "", services.Wrap(services.ErrNotFound, "deepgram", "open audio", path, err)
	}
	defer file.Close()

	endpoint, err := url.Parse(c.cfg.Endpoint)
	if err != nil {
		return "", services.Wrap(services.ErrConfiguration, "deepgram", "parse endpoint", c.cfg.Endpoint, err)
	}
	query := endpoint.Query()
	query.Set("model", c.cfg.Model)
	query.Set("language", c.cfg.Language)
	query.Set("smart_format", "true")
	endpoint.RawQuery = query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint.String(), file)
	if err != nil {
		return "", fmt.Errorf("deepgram: new request: %w", err)
	}
	req.Header.Set("Authorization", "Token "+c.cfg.APIKey)
	req.Header.Set("Content-Type", contentType(path))
	if info, statErr := file.Stat(); statErr == nil {
		req.ContentLength = info.Size()
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return "", err
		}
		return "", services.Wrap(services.ErrTransient, "deepgram", "transcribe", "request failed", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<20))
	if err != nil {
		return "", services.Wrap(services.ErrTransient, "deepgram", "transcribe", "read response", err)
	}
	if resp.StatusCode != http.StatusOK {
		marker := services.ErrExternalTool
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= http.StatusInternalServerError {
			marker = services.ErrTransient
		}
		return "", services.Wrap(marker, "deepgram", "transcribe",
			fmt.Sprintf("http %d: %s", resp.StatusCode, snippet(body)), nil)
	}

	var parsed listenResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", services.Wrap(services.ErrExternalTool, "deepgram", "decode response", snippet(body), err)
	}
	if len(parsed.Results.Channels) == 0 || len(parsed.Results.Channels[0].Alternatives) == 0 {
		return "", services.Wrap(services.ErrExternalTool, "deepgram", "decode response", "no transcript alternatives", nil)
	}
	return parsed.Results.Channels[0].Alternatives[0].Transcript, nil
}

func contentType(path string) string {
	lower := strings.ToLower(path)
	switch {
	case strings.HasSuffix(lower, ".mp3"):
		return "audio/mpeg"
	case strings.HasSuffix(lower, ".wav"):
		return "audio/wav"
	case strings.HasSuffix(lower, ".mp4"):
		return "video/mp4"
	default:
		return "application/octet-stream"
	}
}

func snippet(body []byte) string {
	text := strings.Join(strings.Fields(string(body)), " ")
	if len(text) > 200 {
		return text[:200] + "..."
	}
	return text
}
