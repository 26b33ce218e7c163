package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory and bind address configuration.
type Paths struct {
	StorageDir string `toml:"storage_dir"`
	StateDir   string `toml:"state_dir"`
	LogDir     string `toml:"log_dir"`
	APIBind    string `toml:"api_bind"`
	APIToken   string `toml:"api_token"`
}

// Feed contains configuration for the scheduling/reporting server API.
type Feed struct {
	ServerAPI      string `toml:"server_api"`
	RequestTimeout int    `toml:"request_timeout"`
}

// Scheduler contains configuration for the dispatch loop.
type Scheduler struct {
	Enabled        bool `toml:"enabled"`
	PollInterval   int  `toml:"poll_interval"`
	DispatchWindow int  `toml:"dispatch_window"`
}

// Session contains configuration for a single capture session.
type Session struct {
	MaxWaitMinutes  int    `toml:"max_wait_minutes"`
	MonitorInterval int    `toml:"monitor_interval"`
	ExpectedDomain  string `toml:"expected_domain"`
}

// Audio contains configuration for the virtual PulseAudio routing graph.
type Audio struct {
	UseSudo           bool `toml:"use_sudo"`
	ResetDaemon       bool `toml:"reset_daemon"`
	LoopbackLatencyMs int  `toml:"loopback_latency_ms"`
}

// Browser contains configuration for the automated Chrome session.
type Browser struct {
	ChromePath    string `toml:"chrome_path"`
	Headless      bool   `toml:"headless"`
	WindowWidth   int    `toml:"window_width"`
	WindowHeight  int    `toml:"window_height"`
	DisplayName   string `toml:"display_name"`
	JoinAttempts  int    `toml:"join_attempts"`
	JoinInterval  int    `toml:"join_interval"`
	LaunchTimeout int    `toml:"launch_timeout"`
	Email         string `toml:"email"`
	Password      string `toml:"password"`
}

// Capture contains configuration for the ffmpeg screen and audio recorder.
type Capture struct {
	Display          string `toml:"display"`
	VideoSize        string `toml:"video_size"`
	Framerate        int    `toml:"framerate"`
	AudioSource      string `toml:"audio_source"`
	AudioFilter      string `toml:"audio_filter"`
	QuitTimeout      int    `toml:"quit_timeout"`
	TerminateTimeout int    `toml:"terminate_timeout"`
	VerifyTimeout    int    `toml:"verify_timeout"`
}

// Transcription contains configuration for speech-to-text backends.
type Transcription struct {
	Backend             string `toml:"backend"`
	DeepgramAPIKey      string `toml:"deepgram_api_key"`
	DeepgramBaseURL     string `toml:"deepgram_base_url"`
	DeepgramModel       string `toml:"deepgram_model"`
	Language            string `toml:"language"`
	TimeoutSeconds      int    `toml:"timeout_seconds"`
	WhisperXModel       string `toml:"whisperx_model"`
	WhisperXCUDAEnabled bool   `toml:"whisperx_cuda_enabled"`
}

// LLM contains connection settings for the transcript clean-up and minutes model.
type LLM struct {
	APIKey         string  `toml:"api_key"`
	BaseURL        string  `toml:"base_url"`
	Model          string  `toml:"model"`
	Referer        string  `toml:"referer"`
	Title          string  `toml:"title"`
	Temperature    float64 `toml:"temperature"`
	TimeoutSeconds int     `toml:"timeout_seconds"`
}

// Processing contains configuration for the post-capture pipeline.
type Processing struct {
	Enabled       bool `toml:"enabled"`
	ReportResults bool `toml:"report_results"`
}

// Archive contains configuration for uploading finished session artifacts.
type Archive struct {
	Enabled         bool   `toml:"enabled"`
	Provider        string `toml:"provider"`
	Bucket          string `toml:"bucket"`
	Region          string `toml:"region"`
	Endpoint        string `toml:"endpoint"`
	Prefix          string `toml:"prefix"`
	UsePathStyle    bool   `toml:"use_path_style"`
	AccessKeyID     string `toml:"access_key_id"`
	SecretAccessKey string `toml:"secret_access_key"`
	LocalDir        string `toml:"local_dir"`
}

// Notifications contains configuration for ntfy push notifications.
type Notifications struct {
	NtfyTopic       string `toml:"ntfy_topic"`
	RequestTimeout  int    `toml:"request_timeout"`
	SessionStart    bool   `toml:"session_start"`
	SessionComplete bool   `toml:"session_complete"`
	Errors          bool   `toml:"errors"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format        string `toml:"format"`
	Level         string `toml:"level"`
	RetentionDays int    `toml:"retention_days"`
}

// Config encapsulates all configuration values for meetcap.
//
// Configuration sections by subsystem:
//   - Paths: session storage, ledger state, logs, and API bind address
//   - Feed: the server API that publishes meeting records and receives results
//   - Scheduler: feed polling cadence and dispatch window
//   - Session: monitoring deadline and cadence
//   - Audio, Browser, Capture: the three external systems a session drives
//   - Transcription, LLM, Processing: post-capture transcript pipeline
//   - Archive: artifact upload
//   - Notifications: ntfy push notification settings
//   - Logging: log format, level, and retention
type Config struct {
	Paths         Paths         `toml:"paths"`
	Feed          Feed          `toml:"feed"`
	Scheduler     Scheduler     `toml:"scheduler"`
	Session       Session       `toml:"session"`
	Audio         Audio         `toml:"audio"`
	Browser       Browser       `toml:"browser"`
	Capture       Capture       `toml:"capture"`
	Transcription Transcription `toml:"transcription"`
	LLM           LLM           `toml:"llm"`
	Processing    Processing    `toml:"processing"`
	Archive       Archive       `toml:"archive"`
	Notifications Notifications `toml:"notifications"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/meetcap/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath("~/.config/meetcap/config.toml")
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("meetcap.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for daemon operation.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.StorageDir, c.Paths.StateDir, c.Paths.LogDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	if c.Archive.Enabled && c.Archive.Provider == ArchiveProviderLocal {
		if err := os.MkdirAll(c.Archive.LocalDir, 0o755); err != nil {
			return fmt.Errorf("create archive directory %q: %w", c.Archive.LocalDir, err)
		}
	}
	return nil
}

// FFmpegBinary returns the ffmpeg executable name used for capture and verification.
func (c *Config) FFmpegBinary() string {
	return "ffmpeg"
}

// PactlBinary returns the PulseAudio control executable name.
func (c *Config) PactlBinary() string {
	return "pactl"
}

// ChromeBinary returns the configured Chrome executable, or an empty string to
// let the browser driver discover one on PATH.
func (c *Config) ChromeBinary() string {
	return strings.TrimSpace(c.Browser.ChromePath)
}

// LedgerPath returns the sqlite ledger location.
func (c *Config) LedgerPath() string {
	return filepath.Join(c.Paths.StateDir, "ledger.db")
}

// LockPath returns the daemon single-instance lock location.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.StateDir, "meetcap.lock")
}

// PIDPath returns the daemon PID file location.
func (c *Config) PIDPath() string {
	return filepath.Join(c.Paths.StateDir, "meetcap.pid")
}

// SessionDir returns the per-meeting storage directory.
func (c *Config) SessionDir(meetingID string) string {
	return filepath.Join(c.Paths.StorageDir, meetingID)
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
