// Package llm is the chat-completions client that cleans up meeting
// transcripts and drafts minutes.
//
// Any OpenAI-compatible endpoint works. The default is Gemini's compatible
// surface; OpenRouter needs only a different base_url, and the Referer/Title
// headers it uses for attribution are always sent.
//
// Requests that fail with 408, 429, 5xx, a network error, or an empty reply
// are retried with exponential backoff (1s doubling to 10s, five attempts).
// A Retry-After header overrides the computed delay. Other failures return
// immediately, classified with the services error markers.
package llm
