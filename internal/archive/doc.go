// Package archive copies finished session artifacts (recording, extracted
// audio, transcripts) to long-term storage.
//
// Two providers exist: an S3-compatible bucket through the AWS SDK's upload
// manager, and a local or mounted directory. Object keys are
// <prefix>/<meetingId>/<subdir>/<file>, mirroring the session layout.
package archive
