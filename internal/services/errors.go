package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrExternalTool  = errors.New("external tool error")
	ErrValidation    = errors.New("validation error")
	ErrConfiguration = errors.New("configuration error")
	ErrNotFound      = errors.New("not found")
	ErrTimeout       = errors.New("timeout")
	ErrTransient     = errors.New("transient failure")
)

// Session failure markers. The first five abort a session; the rest are
// recorded and the session continues toward teardown.
var (
	ErrAudioSetup         = errors.New("audio setup error")
	ErrBrowserInit        = errors.New("browser init error")
	ErrAuth               = errors.New("authentication error")
	ErrJoin               = errors.New("join error")
	ErrCaptureStart       = errors.New("capture start error")
	ErrCaptureStopTimeout = errors.New("capture stop timeout")
	ErrVerification       = errors.New("verification error")
	ErrInspection         = errors.New("monitoring inspection error")
	ErrSchedulerFetch     = errors.New("scheduler fetch error")
	ErrClaimRace          = errors.New("claim race")
)

// Wrap builds an error message that includes stage context while tagging it with
// the provided marker for later classification. The marker should be one of the
// exported sentinel errors above.
func Wrap(marker error, stage, operation, message string, err error) error {
	detail := buildDetail(stage, operation, message)
	if marker == nil {
		marker = ErrTransient
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// IsFatal reports whether err carries a marker that ends a session before
// monitoring can begin.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	for _, marker := range []error{ErrAudioSetup, ErrBrowserInit, ErrAuth, ErrJoin, ErrCaptureStart} {
		if errors.Is(err, marker) {
			return true
		}
	}
	return false
}

// Kind returns a short machine-friendly label for the marker carried by err.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrAudioSetup):
		return "audio_setup"
	case errors.Is(err, ErrBrowserInit):
		return "browser_init"
	case errors.Is(err, ErrAuth):
		return "auth"
	case errors.Is(err, ErrJoin):
		return "join"
	case errors.Is(err, ErrCaptureStart):
		return "capture_start"
	case errors.Is(err, ErrCaptureStopTimeout):
		return "capture_stop_timeout"
	case errors.Is(err, ErrVerification):
		return "verification"
	case errors.Is(err, ErrInspection):
		return "inspection"
	case errors.Is(err, ErrSchedulerFetch):
		return "scheduler_fetch"
	case errors.Is(err, ErrClaimRace):
		return "claim_race"
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrConfiguration):
		return "configuration"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrTimeout):
		return "timeout"
	case errors.Is(err, ErrExternalTool):
		return "external_tool"
	default:
		return "transient"
	}
}

func buildDetail(stage, operation, message string) string {
	parts := make([]string, 0, 3)
	if stage = strings.TrimSpace(stage); stage != "" {
		parts = append(parts, stage)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
