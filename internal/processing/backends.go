package processing

import (
	"time"

	"meetcap/internal/config"
	"meetcap/internal/services/deepgram"
	"meetcap/internal/services/llm"
	"meetcap/internal/services/whisperx"
)

// NewTranscriber builds the backend named by transcription.backend.
func NewTranscriber(cfg *config.Config) Transcriber {
	if cfg == nil {
		return deepgram.NewClient(deepgram.Config{})
	}
	t := cfg.Transcription
	if t.Backend == config.TranscriberWhisperX {
		return whisperx.New(whisperx.Config{
			Model:       t.WhisperXModel,
			CUDAEnabled: t.WhisperXCUDAEnabled,
			Language:    t.Language,
		})
	}
	return deepgram.NewClient(deepgram.Config{
		APIKey:   t.DeepgramAPIKey,
		Endpoint: t.DeepgramBaseURL,
		Model:    t.DeepgramModel,
		Language: t.Language,
		Timeout:  time.Duration(t.TimeoutSeconds) * time.Second,
	})
}

// NewCompleter builds the chat client from the llm section.
func NewCompleter(cfg *config.Config) *llm.Client {
	if cfg == nil {
		return llm.NewClient(llm.Config{})
	}
	return llm.NewClient(llm.Config{
		APIKey:         cfg.LLM.APIKey,
		BaseURL:        cfg.LLM.BaseURL,
		Model:          cfg.LLM.Model,
		Referer:        cfg.LLM.Referer,
		Title:          cfg.LLM.Title,
		Temperature:    cfg.LLM.Temperature,
		TimeoutSeconds: cfg.LLM.TimeoutSeconds,
	})
}
