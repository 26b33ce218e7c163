package config

const (
	defaultStorageDir             = "~/.local/share/meetcap/storage"
	defaultStateDir               = "~/.local/share/meetcap"
	defaultLogDir                 = "~/.local/share/meetcap/logs"
	defaultArchiveLocalDir        = "~/.local/share/meetcap/archive"
	defaultAPIBind                = "127.0.0.1:5001"
	defaultFeedRequestTimeout     = 30
	defaultSchedulerPollInterval  = 60
	defaultSchedulerWindow        = 120
	defaultMaxWaitMinutes         = 60
	defaultMonitorInterval        = 30
	defaultExpectedDomain         = "meet.google.com"
	defaultLoopbackLatencyMs      = 1
	defaultWindowWidth            = 1920
	defaultWindowHeight           = 1080
	defaultDisplayName            = "Meet Recorder"
	defaultJoinAttempts           = 5
	defaultJoinInterval           = 5
	defaultBrowserLaunchTimeout   = 60
	defaultCaptureDisplay         = ":99"
	defaultCaptureVideoSize       = "1920x1080"
	defaultCaptureFramerate       = 30
	defaultCaptureAudioSource     = "MeetingOutput.monitor"
	defaultCaptureAudioFilter     = "highpass=f=200,lowpass=f=3000"
	defaultCaptureQuitTimeout     = 30
	defaultCaptureTerminate       = 10
	defaultCaptureVerifyTimeout   = 900
	defaultTranscriptionBackend   = TranscriberDeepgram
	defaultDeepgramBaseURL        = "https://api.deepgram.com/v1/listen"
	defaultDeepgramModel          = "nova-2"
	defaultTranscriptionLanguage  = "en-US"
	defaultTranscriptionTimeout   = 900
	defaultWhisperXModel          = "large-v3"
	defaultLLMBaseURL             = "https://generativelanguage.googleapis.com/v1beta/openai/chat/completions"
	defaultLLMModel               = "gemini-2.0-flash"
	defaultLLMReferer             = "https://github.com/meetcap/meetcap"
	defaultLLMTitle               = "meetcap"
	defaultLLMTemperature         = 0.5
	defaultLLMTimeoutSeconds      = 120
	defaultArchivePrefix          = "meetcap"
	defaultNotifyRequestTimeout   = 10
	defaultLogFormat              = "console"
	defaultLogLevel               = "info"
	defaultLogRetentionDays       = 30
	defaultNotificationsAllEvents = true
)

// Transcription backends.
const (
	TranscriberDeepgram = "deepgram"
	TranscriberWhisperX = "whisperx"
)

// Archive providers.
const (
	ArchiveProviderS3    = "s3"
	ArchiveProviderLocal = "local"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			StorageDir: defaultStorageDir,
			StateDir:   defaultStateDir,
			LogDir:     defaultLogDir,
			APIBind:    defaultAPIBind,
		},
		Feed: Feed{
			RequestTimeout: defaultFeedRequestTimeout,
		},
		Scheduler: Scheduler{
			Enabled:        true,
			PollInterval:   defaultSchedulerPollInterval,
			DispatchWindow: defaultSchedulerWindow,
		},
		Session: Session{
			MaxWaitMinutes:  defaultMaxWaitMinutes,
			MonitorInterval: defaultMonitorInterval,
			ExpectedDomain:  defaultExpectedDomain,
		},
		Audio: Audio{
			LoopbackLatencyMs: defaultLoopbackLatencyMs,
		},
		Browser: Browser{
			WindowWidth:   defaultWindowWidth,
			WindowHeight:  defaultWindowHeight,
			DisplayName:   defaultDisplayName,
			JoinAttempts:  defaultJoinAttempts,
			JoinInterval:  defaultJoinInterval,
			LaunchTimeout: defaultBrowserLaunchTimeout,
		},
		Capture: Capture{
			Display:          defaultCaptureDisplay,
			VideoSize:        defaultCaptureVideoSize,
			Framerate:        defaultCaptureFramerate,
			AudioSource:      defaultCaptureAudioSource,
			AudioFilter:      defaultCaptureAudioFilter,
			QuitTimeout:      defaultCaptureQuitTimeout,
			TerminateTimeout: defaultCaptureTerminate,
			VerifyTimeout:    defaultCaptureVerifyTimeout,
		},
		Transcription: Transcription{
			Backend:         defaultTranscriptionBackend,
			DeepgramBaseURL: defaultDeepgramBaseURL,
			DeepgramModel:   defaultDeepgramModel,
			Language:        defaultTranscriptionLanguage,
			TimeoutSeconds:  defaultTranscriptionTimeout,
			WhisperXModel:   defaultWhisperXModel,
		},
		LLM: LLM{
			BaseURL:        defaultLLMBaseURL,
			Model:          defaultLLMModel,
			Referer:        defaultLLMReferer,
			Title:          defaultLLMTitle,
			Temperature:    defaultLLMTemperature,
			TimeoutSeconds: defaultLLMTimeoutSeconds,
		},
		Processing: Processing{
			Enabled:       true,
			ReportResults: true,
		},
		Archive: Archive{
			Provider: ArchiveProviderS3,
			Prefix:   defaultArchivePrefix,
			LocalDir: defaultArchiveLocalDir,
		},
		Notifications: Notifications{
			RequestTimeout:  defaultNotifyRequestTimeout,
			SessionStart:    defaultNotificationsAllEvents,
			SessionComplete: defaultNotificationsAllEvents,
			Errors:          defaultNotificationsAllEvents,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetentionDays,
		},
	}
}
