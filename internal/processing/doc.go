// Package processing turns a finished capture into transcripts and minutes.
//
// A Pipeline runs once per session that produced a recording:
//
//  1. extract recordings/audio.mp3 from the video with ffmpeg;
//  2. transcribe it with the configured backend (Deepgram or WhisperX);
//  3. fold the transcript to ASCII and ask the LLM for a cleaned transcript;
//  4. ask the LLM for meeting minutes and a task list;
//  5. write transcripts/{raw_transcript,adjusted_transcript,meeting_minutes_and_tasks}.txt;
//  6. report the texts to the meeting server and archive the artifacts when
//     those are configured.
//
// Any failure stops the pipeline. The session outcome is never changed by it.
package processing
