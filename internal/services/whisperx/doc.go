// Package whisperx is the local transcription backend. It runs WhisperX via
// uvx and reads back the JSON segments it writes next to the audio.
package whisperx
