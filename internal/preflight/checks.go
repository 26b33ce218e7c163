package preflight

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"golang.org/x/sys/unix"

	"meetcap/internal/config"
	"meetcap/internal/deps"
	"meetcap/internal/feed"
	"meetcap/internal/services/llm"
	"meetcap/internal/services/whisperx"
)

// CheckLLM verifies that the LLM API is reachable and the key is valid.
// It uses a 30-second timeout and a single attempt (no retries).
func CheckLLM(ctx context.Context, name string, cfg config.LLM) Result {
	if cfg.APIKey == "" {
		return Result{Name: name, Detail: "API key missing"}
	}

	checkCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	client := llm.NewClient(llm.Config{
		APIKey:  cfg.APIKey,
		BaseURL: cfg.BaseURL,
		Model:   cfg.Model,
		Referer: cfg.Referer,
		Title:   cfg.Title,
	}, llm.WithRetryMaxAttempts(1))

	if err := client.HealthCheck(checkCtx); err != nil {
		return Result{Name: name, Detail: summarizeNetError(err)}
	}
	return Result{Name: name, Passed: true, Detail: "API reachable"}
}

// CheckFeed verifies that the meeting server answers the record listing.
func CheckFeed(ctx context.Context, serverAPI string) Result {
	const name = "Server API"

	base := strings.TrimRight(strings.TrimSpace(serverAPI), "/")
	if base == "" {
		return Result{Name: name, Detail: "missing server_api"}
	}

	checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	meetings, err := feed.NewClient(base, feed.WithTimeout(5*time.Second)).Fetch(checkCtx)
	if err != nil {
		var statusErr *feed.StatusError
		if errors.As(err, &statusErr) {
			return Result{Name: name, Detail: fmt.Sprintf("record listing failed (%d)", statusErr.StatusCode)}
		}
		return Result{Name: name, Detail: summarizeNetError(err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("Reachable (%d upcoming records)", len(meetings))}
}

// CheckTranscription verifies the configured speech-to-text backend can run.
// The deepgram check only validates that a key is present so doctor runs do
// not bill the account.
func CheckTranscription(cfg config.Transcription) Result {
	const name = "Transcription"

	switch cfg.Backend {
	case config.TranscriberWhisperX:
		status := deps.CheckBinaries([]deps.Requirement{{Name: "uvx", Command: whisperx.UVXCommand}})[0]
		if !status.Available {
			return Result{Name: name, Detail: "whisperx: " + status.Detail}
		}
		return Result{Name: name, Passed: true, Detail: "whisperx via uvx"}
	default:
		if strings.TrimSpace(cfg.DeepgramAPIKey) == "" {
			return Result{Name: name, Detail: "deepgram: API key missing"}
		}
		return Result{Name: name, Passed: true, Detail: "deepgram key configured"}
	}
}

// CheckCredentials reports whether Google sign-in is configured. Without
// credentials the browser joins as a guest, which some meetings refuse.
func CheckCredentials(cfg config.Browser) Result {
	const name = "Google sign-in"

	email := strings.TrimSpace(cfg.Email)
	switch {
	case email == "" && cfg.Password == "":
		return Result{Name: name, Passed: true, Detail: "not configured (guest join)"}
	case email == "":
		return Result{Name: name, Detail: "password set without email"}
	case cfg.Password == "":
		return Result{Name: name, Detail: "email set without password"}
	default:
		return Result{Name: name, Passed: true, Detail: email}
	}
}

// CheckArchive validates the archive destination.
func CheckArchive(cfg config.Archive) Result {
	const name = "Archive"

	if !cfg.Enabled {
		return Result{Name: name, Passed: true, Detail: "Disabled"}
	}
	switch cfg.Provider {
	case config.ArchiveProviderLocal:
		dir := cfg.LocalDir
		if _, err := os.Stat(dir); errors.Is(err, os.ErrNotExist) {
			return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (created on first upload)", dir)}
		}
		check := CheckDirectoryAccess(name, dir)
		return check
	case config.ArchiveProviderS3:
		if strings.TrimSpace(cfg.Bucket) == "" {
			return Result{Name: name, Detail: "s3: missing bucket"}
		}
		detail := "s3://" + cfg.Bucket
		if cfg.Endpoint != "" {
			detail += " via " + cfg.Endpoint
		}
		return Result{Name: name, Passed: true, Detail: detail}
	default:
		return Result{Name: name, Detail: fmt.Sprintf("unknown provider %q", cfg.Provider)}
	}
}

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// CheckSystemDeps evaluates all external programs for the given config.
// Both the daemon and the doctor command use this so the requirement list
// lives in one place.
func CheckSystemDeps(cfg *config.Config) []deps.Status {
	requirements := []deps.Requirement{
		{
			Name:        "FFmpeg",
			Command:     cfg.FFmpegBinary(),
			Description: "Records the screen and extracts audio",
		},
		{
			Name:        "pactl",
			Command:     cfg.PactlBinary(),
			Description: "Creates the virtual audio sink and loopback",
		},
	}
	if cfg.Audio.UseSudo {
		requirements = append(requirements, deps.Requirement{
			Name:        "sudo",
			Command:     "sudo",
			Description: "Runs pactl with elevated privileges",
		})
	}
	if cfg.Audio.ResetDaemon {
		requirements = append(requirements, deps.Requirement{
			Name:        "pulseaudio",
			Command:     "pulseaudio",
			Description: "Restarts the sound server before routing",
			Optional:    true,
		})
	}
	if cfg.Processing.Enabled && cfg.Transcription.Backend == config.TranscriberWhisperX {
		requirements = append(requirements, deps.Requirement{
			Name:        "uvx",
			Command:     whisperx.UVXCommand,
			Description: "Runs WhisperX transcription",
		})
	}
	statuses := deps.CheckBinaries(requirements)
	return append(statuses, deps.CheckChrome(cfg.ChromeBinary()))
}

// summarizeNetError produces a human-readable summary for connectivity failures.
func summarizeNetError(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "health check timed out (API unresponsive)"
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "health check timed out (API unreachable)"
	}
	return err.Error()
}
