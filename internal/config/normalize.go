package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeFeed()
	c.normalizeSession()
	c.normalizeBrowser()
	c.normalizeCapture()
	c.normalizeTranscription()
	c.normalizeLLM()
	if err := c.normalizeArchive(); err != nil {
		return err
	}
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.StorageDir) == "" {
		c.Paths.StorageDir = defaultStorageDir
	}
	if c.Paths.StorageDir, err = expandPath(c.Paths.StorageDir); err != nil {
		return fmt.Errorf("paths.storage_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.StateDir) == "" {
		c.Paths.StateDir = defaultStateDir
	}
	if c.Paths.StateDir, err = expandPath(c.Paths.StateDir); err != nil {
		return fmt.Errorf("paths.state_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	c.Paths.APIBind = strings.TrimSpace(c.Paths.APIBind)
	if c.Paths.APIBind == "" {
		c.Paths.APIBind = defaultAPIBind
	}
	c.Paths.APIToken = strings.TrimSpace(c.Paths.APIToken)
	if c.Paths.APIToken == "" {
		if value, ok := os.LookupEnv("MEETCAP_API_TOKEN"); ok {
			c.Paths.APIToken = strings.TrimSpace(value)
		}
	}
	return nil
}

func (c *Config) normalizeFeed() {
	c.Feed.ServerAPI = strings.TrimSpace(c.Feed.ServerAPI)
	if c.Feed.ServerAPI == "" {
		if value, ok := os.LookupEnv("SERVER_API"); ok {
			c.Feed.ServerAPI = strings.TrimSpace(value)
		}
	}
	c.Feed.ServerAPI = strings.TrimRight(c.Feed.ServerAPI, "/")
	if c.Feed.RequestTimeout <= 0 {
		c.Feed.RequestTimeout = defaultFeedRequestTimeout
	}
}

func (c *Config) normalizeSession() {
	// The environment variable overrides the file value; deployments set it per container.
	if value, ok := os.LookupEnv("MAX_WAITING_TIME_IN_MINUTES"); ok {
		if minutes, err := strconv.Atoi(strings.TrimSpace(value)); err == nil && minutes > 0 {
			c.Session.MaxWaitMinutes = minutes
		}
	}
	c.Session.ExpectedDomain = strings.ToLower(strings.TrimSpace(c.Session.ExpectedDomain))
	if c.Session.ExpectedDomain == "" {
		c.Session.ExpectedDomain = defaultExpectedDomain
	}
}

func (c *Config) normalizeBrowser() {
	c.Browser.ChromePath = strings.TrimSpace(c.Browser.ChromePath)
	c.Browser.DisplayName = strings.TrimSpace(c.Browser.DisplayName)
	if c.Browser.DisplayName == "" {
		c.Browser.DisplayName = defaultDisplayName
	}
	if c.Browser.Email == "" {
		if value, ok := os.LookupEnv("GMAIL_USER_EMAIL"); ok {
			c.Browser.Email = strings.TrimSpace(value)
		}
	}
	if c.Browser.Password == "" {
		if value, ok := os.LookupEnv("GMAIL_USER_PASSWORD"); ok {
			c.Browser.Password = value
		}
	}
	c.Browser.Email = strings.TrimSpace(c.Browser.Email)
}

func (c *Config) normalizeCapture() {
	c.Capture.Display = strings.TrimSpace(c.Capture.Display)
	if c.Capture.Display == "" {
		if value, ok := os.LookupEnv("DISPLAY"); ok && strings.TrimSpace(value) != "" {
			c.Capture.Display = strings.TrimSpace(value)
		} else {
			c.Capture.Display = defaultCaptureDisplay
		}
	}
	c.Capture.VideoSize = strings.TrimSpace(c.Capture.VideoSize)
	if c.Capture.VideoSize == "" {
		c.Capture.VideoSize = defaultCaptureVideoSize
	}
	c.Capture.AudioSource = strings.TrimSpace(c.Capture.AudioSource)
	if c.Capture.AudioSource == "" {
		c.Capture.AudioSource = defaultCaptureAudioSource
	}
	c.Capture.AudioFilter = strings.TrimSpace(c.Capture.AudioFilter)
}

func (c *Config) normalizeTranscription() {
	c.Transcription.Backend = strings.ToLower(strings.TrimSpace(c.Transcription.Backend))
	if c.Transcription.Backend == "" {
		c.Transcription.Backend = defaultTranscriptionBackend
	}
	c.Transcription.DeepgramAPIKey = strings.TrimSpace(c.Transcription.DeepgramAPIKey)
	if c.Transcription.DeepgramAPIKey == "" {
		if value, ok := os.LookupEnv("DEEPGRAM_API_KEY"); ok {
			c.Transcription.DeepgramAPIKey = strings.TrimSpace(value)
		}
	}
	c.Transcription.DeepgramBaseURL = strings.TrimSpace(c.Transcription.DeepgramBaseURL)
	if c.Transcription.DeepgramBaseURL == "" {
		c.Transcription.DeepgramBaseURL = defaultDeepgramBaseURL
	}
	c.Transcription.DeepgramModel = strings.TrimSpace(c.Transcription.DeepgramModel)
	if c.Transcription.DeepgramModel == "" {
		c.Transcription.DeepgramModel = defaultDeepgramModel
	}
	c.Transcription.Language = strings.TrimSpace(c.Transcription.Language)
	if c.Transcription.Language == "" {
		c.Transcription.Language = defaultTranscriptionLanguage
	}
	if c.Transcription.TimeoutSeconds <= 0 {
		c.Transcription.TimeoutSeconds = defaultTranscriptionTimeout
	}
	c.Transcription.WhisperXModel = strings.TrimSpace(c.Transcription.WhisperXModel)
	if c.Transcription.WhisperXModel == "" {
		c.Transcription.WhisperXModel = defaultWhisperXModel
	}
}

func (c *Config) normalizeLLM() {
	c.LLM.BaseURL = strings.TrimSpace(c.LLM.BaseURL)
	if c.LLM.BaseURL == "" {
		c.LLM.BaseURL = defaultLLMBaseURL
	}
	c.LLM.Model = strings.TrimSpace(c.LLM.Model)
	if c.LLM.Model == "" {
		c.LLM.Model = defaultLLMModel
	}
	c.LLM.Referer = strings.TrimSpace(c.LLM.Referer)
	if c.LLM.Referer == "" {
		c.LLM.Referer = defaultLLMReferer
	}
	c.LLM.Title = strings.TrimSpace(c.LLM.Title)
	if c.LLM.Title == "" {
		c.LLM.Title = defaultLLMTitle
	}
	if c.LLM.TimeoutSeconds <= 0 {
		c.LLM.TimeoutSeconds = defaultLLMTimeoutSeconds
	}
	c.LLM.APIKey = strings.TrimSpace(c.LLM.APIKey)
	if c.LLM.APIKey == "" {
		if value, ok := os.LookupEnv("GOOGLE_API_KEY"); ok {
			c.LLM.APIKey = strings.TrimSpace(value)
		} else if value, ok := os.LookupEnv("OPENROUTER_API_KEY"); ok {
			c.LLM.APIKey = strings.TrimSpace(value)
		}
	}
}

func (c *Config) normalizeArchive() error {
	c.Archive.Provider = strings.ToLower(strings.TrimSpace(c.Archive.Provider))
	if c.Archive.Provider == "" {
		c.Archive.Provider = ArchiveProviderS3
	}
	c.Archive.Bucket = strings.TrimSpace(c.Archive.Bucket)
	c.Archive.Region = strings.TrimSpace(c.Archive.Region)
	c.Archive.Endpoint = strings.TrimSpace(c.Archive.Endpoint)
	c.Archive.Prefix = strings.Trim(strings.TrimSpace(c.Archive.Prefix), "/")
	if strings.TrimSpace(c.Archive.LocalDir) == "" {
		c.Archive.LocalDir = defaultArchiveLocalDir
	}
	var err error
	if c.Archive.LocalDir, err = expandPath(c.Archive.LocalDir); err != nil {
		return fmt.Errorf("archive.local_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	if c.Logging.RetentionDays < 0 {
		c.Logging.RetentionDays = 0
	}
}
