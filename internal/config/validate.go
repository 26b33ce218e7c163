package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateFeed(); err != nil {
		return err
	}
	if err := c.validateTimings(); err != nil {
		return err
	}
	if err := c.validateCapture(); err != nil {
		return err
	}
	if err := c.validateTranscription(); err != nil {
		return err
	}
	if err := c.validateArchive(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateFeed() error {
	if c.Feed.ServerAPI == "" {
		if !c.Scheduler.Enabled {
			return nil
		}
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			defaultPath = "~/.config/meetcap/config.toml"
		}
		return fmt.Errorf("feed.server_api is required when the scheduler is enabled. Set SERVER_API env var or edit %s (create with 'meetcap config init')", defaultPath)
	}
	parsed, err := url.Parse(c.Feed.ServerAPI)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		return fmt.Errorf("feed.server_api must be an http(s) URL, got %q", c.Feed.ServerAPI)
	}
	return nil
}

func (c *Config) validateTimings() error {
	if err := ensurePositiveMap(map[string]int{
		"feed.request_timeout":          c.Feed.RequestTimeout,
		"scheduler.poll_interval":       c.Scheduler.PollInterval,
		"scheduler.dispatch_window":     c.Scheduler.DispatchWindow,
		"session.max_wait_minutes":      c.Session.MaxWaitMinutes,
		"session.monitor_interval":      c.Session.MonitorInterval,
		"browser.join_attempts":         c.Browser.JoinAttempts,
		"browser.join_interval":         c.Browser.JoinInterval,
		"browser.launch_timeout":        c.Browser.LaunchTimeout,
		"browser.window_width":          c.Browser.WindowWidth,
		"browser.window_height":         c.Browser.WindowHeight,
		"notifications.request_timeout": c.Notifications.RequestTimeout,
	}); err != nil {
		return err
	}
	if c.Audio.LoopbackLatencyMs < 0 {
		return errors.New("audio.loopback_latency_ms must be >= 0")
	}
	return nil
}

func (c *Config) validateCapture() error {
	if err := ensurePositiveMap(map[string]int{
		"capture.framerate":         c.Capture.Framerate,
		"capture.quit_timeout":      c.Capture.QuitTimeout,
		"capture.terminate_timeout": c.Capture.TerminateTimeout,
		"capture.verify_timeout":    c.Capture.VerifyTimeout,
	}); err != nil {
		return err
	}
	if !strings.Contains(c.Capture.VideoSize, "x") {
		return fmt.Errorf("capture.video_size must look like WIDTHxHEIGHT, got %q", c.Capture.VideoSize)
	}
	return nil
}

func (c *Config) validateTranscription() error {
	switch c.Transcription.Backend {
	case TranscriberDeepgram, TranscriberWhisperX:
	default:
		return fmt.Errorf("transcription.backend must be %q or %q, got %q", TranscriberDeepgram, TranscriberWhisperX, c.Transcription.Backend)
	}
	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		return errors.New("llm.temperature must be between 0 and 2")
	}
	return nil
}

func (c *Config) validateArchive() error {
	if !c.Archive.Enabled {
		return nil
	}
	switch c.Archive.Provider {
	case ArchiveProviderS3:
		if c.Archive.Bucket == "" {
			return errors.New("archive.bucket must be set when archive.provider is s3")
		}
		if c.Archive.Region == "" {
			return errors.New("archive.region must be set when archive.provider is s3")
		}
		if (c.Archive.AccessKeyID == "") != (c.Archive.SecretAccessKey == "") {
			return errors.New("archive.access_key_id and archive.secret_access_key must be set together")
		}
	case ArchiveProviderLocal:
		if strings.TrimSpace(c.Archive.LocalDir) == "" {
			return errors.New("archive.local_dir must be set when archive.provider is local")
		}
	default:
		return fmt.Errorf("archive.provider must be %q or %q, got %q", ArchiveProviderS3, ArchiveProviderLocal, c.Archive.Provider)
	}
	return nil
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
