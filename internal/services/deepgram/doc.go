// Package deepgram uploads recorded meeting audio to Deepgram's pre-recorded
// transcription endpoint and returns the transcript text.
package deepgram
