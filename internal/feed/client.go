package feed

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"meetcap/internal/logging"
	"meetcap/internal/services"
)

const (
	defaultHTTPTimeout = 30 * time.Second
	maxErrorBody       = 512
)

// Meeting is one scheduled meeting as published by the feed.
type Meeting struct {
	StartTime time.Time
	Link      string
	TaskID    string
	Username  string
}

type meetingRecord struct {
	StartTime string `json:"start_time"`
	Link      string `json:"google_meeting_link"`
	TaskID    string `json:"taskId"`
	Username  string `json:"username"`
}

// Report carries post-processing results back to the server.
type Report struct {
	Username           string `json:"username"`
	TaskID             string `json:"task_id"`
	RawTranscript      string `json:"raw_transcript"`
	AdjustedTranscript string `json:"adjusted_transcript"`
	MinutesAndTasks    string `json:"meeting_minutes_and_tasks"`
}

// StatusError is returned when the server answers with a non-2xx status.
type StatusError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	body := strings.TrimSpace(e.Body)
	if body == "" {
		return fmt.Sprintf("%s: http %d", e.Op, e.StatusCode)
	}
	return fmt.Sprintf("%s: http %d: %s", e.Op, e.StatusCode, body)
}

// Client is an HTTP client for the feed server.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
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

// WithTimeout sets the per-request timeout on the default HTTP client.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.httpClient = &http.Client{Timeout: timeout}
		}
	}
}

// WithLogger attaches a logger used for skipped records.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logging.NewComponentLogger(logger, "feed")
		}
	}
}

// NewClient constructs a client for the server rooted at baseURL.
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		httpClient: &http.Client{Timeout: defaultHTTPTimeout},
		logger:     logging.NewComponentLogger(logging.NewNop(), "feed"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Fetch lists the scheduled meetings. Records that cannot be parsed are
// skipped with a warning; transport and status failures are returned as
// services.ErrSchedulerFetch.
func (c *Client) Fetch(ctx context.Context) ([]Meeting, error) {
	if c.baseURL == "" {
		return nil, services.Wrap(services.ErrConfiguration, "feed", "fetch", "server api not configured", nil)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/meeting-records", nil)
	if err != nil {
		return nil, services.Wrap(services.ErrSchedulerFetch, "feed", "fetch", "build request", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, services.Wrap(services.ErrSchedulerFetch, "feed", "fetch", "request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, services.Wrap(services.ErrSchedulerFetch, "feed", "fetch", "unexpected status", statusError("fetch meetings", resp))
	}

	var records []meetingRecord
	if err := json.NewDecoder(resp.Body).Decode(&records); err != nil {
		return nil, services.Wrap(services.ErrSchedulerFetch, "feed", "fetch", "decode response", err)
	}

	meetings := make([]Meeting, 0, len(records))
	for _, rec := range records {
		m, err := rec.meeting()
		if err != nil {
			logging.WarnWithContext(c.logger, "skipping feed record", "feed_record_invalid",
				logging.String(logging.FieldTaskID, rec.TaskID),
				logging.Error(err),
				logging.String(logging.FieldImpact, "meeting will not be recorded"),
				logging.String(logging.FieldErrorHint, "check start_time and google_meeting_link on the server"),
			)
			continue
		}
		meetings = append(meetings, m)
	}
	return meetings, nil
}

// Claim deletes the meeting record so that it is not dispatched again.
// A failure is returned as services.ErrClaimRace.
func (c *Client) Claim(ctx context.Context, taskID string) error {
	taskID = strings.TrimSpace(taskID)
	if taskID == "" {
		return services.Wrap(services.ErrValidation, "feed", "claim", "task id is required", nil)
	}
	endpoint := c.baseURL + "/delete-meeting-record/" + url.PathEscape(taskID)
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, endpoint, nil)
	if err != nil {
		return services.Wrap(services.ErrClaimRace, "feed", "claim", "build request", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return services.Wrap(services.ErrClaimRace, "feed", "claim", "request failed", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return services.Wrap(services.ErrClaimRace, "feed", "claim", taskID, statusError("claim meeting", resp))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

// SendReport posts post-processing results for a task.
func (c *Client) SendReport(ctx context.Context, report Report) error {
	if c.baseURL == "" {
		return services.Wrap(services.ErrConfiguration, "feed", "report", "server api not configured", nil)
	}
	body, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/update-meeting-info", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build report request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return services.Wrap(services.ErrTransient, "feed", "report", "request failed", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return services.Wrap(services.ErrExternalTool, "feed", "report", "unexpected status", statusError("report results", resp))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

func statusError(op string, resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return &StatusError{Op: op, StatusCode: resp.StatusCode, Body: string(data)}
}

var naiveLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04",
	"2006-01-02 15:04",
}

// ParseStartTime parses an ISO-8601 timestamp. Values without an offset are
// taken as UTC.
func ParseStartTime(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, errors.New("start_time is empty")
	}
	if t, err := time.Parse(time.RFC3339Nano, raw); err == nil {
		return t.UTC(), nil
	}
	for _, layout := range naiveLayouts {
		if t, err := time.ParseInLocation(layout, raw, time.UTC); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("start_time %q is not ISO-8601", raw)
}

func (r meetingRecord) meeting() (Meeting, error) {
	start, err := ParseStartTime(r.StartTime)
	if err != nil {
		return Meeting{}, err
	}
	link := strings.TrimSpace(r.Link)
	if link == "" {
		return Meeting{}, errors.New("google_meeting_link is empty")
	}
	return Meeting{
		StartTime: start,
		Link:      link,
		TaskID:    strings.TrimSpace(r.TaskID),
		Username:  strings.TrimSpace(r.Username),
	}, nil
}
