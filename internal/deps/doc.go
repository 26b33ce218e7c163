// Package deps checks that the external programs meetcap drives (ffmpeg,
// pactl, Chrome, uvx) are installed.
package deps
