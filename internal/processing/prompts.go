package processing

import "strings"

// CleanupPrompt asks the model for a readable transcript and a short summary.
const CleanupPrompt = `You are an intelligent assistant specializing in meeting transcription and summarization. Your task is to process a raw transcript of a meeting and produce two outputs:

Cleaned Transcript

Remove filler words, false starts, repetitions, and irrelevant small talk.

Correct grammar and punctuation while preserving the original speaker's intent and tone.

Attribute speaker names clearly if provided.

Organize the transcript into readable paragraphs with appropriate line breaks.

Minimal Summary

Write a brief, high-level summary (3-5 bullet points) capturing the most important discussion topics, decisions made, and any next steps.

Avoid excessive detail. Keep it concise and clear.

Focus on clarity, professionalism, and readability in both outputs. The cleaned transcript should be easy to scan, and the summary should serve as a quick reference for anyone who missed the meeting.`

// MinutesSystemPrompt frames the minutes request.
const MinutesSystemPrompt = "You write meeting minutes and task lists from meeting transcripts."

const minutesTemplate = `Generate meeting minutes and a list of tasks based on the provided context.

Context:
{context}

Meeting Minutes:
- Key points discussed
- Decisions made

Task List:
- Actionable items with assignees and deadlines`

// MinutesPrompt fills the minutes template with the adjusted transcript.
func MinutesPrompt(context string) string {
	return strings.Replace(minutesTemplate, "{context}", strings.TrimSpace(context), 1)
}
