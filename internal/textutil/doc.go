// Package textutil provides small text helpers shared by the transcript
// pipeline and the archive uploader: ASCII folding of transcripts and
// filesystem-safe tokens for object keys.
package textutil
