package browser

import (
	"context"
	"errors"
)

// Strategy selects how a Query's selector is interpreted.
type Strategy int

const (
	ByCSS Strategy = iota
	ByXPath
	ByName
	ByID
)

func (s Strategy) String() string {
	switch s {
	case ByCSS:
		return "css"
	case ByXPath:
		return "xpath"
	case ByName:
		return "name"
	case ByID:
		return "id"
	default:
		return "unknown"
	}
}

// Query describes one candidate element. Label is used for logs only.
type Query struct {
	Label    string
	Strategy Strategy
	Selector string
}

// Element is a visible match returned by a Driver. Handle is owned by the
// driver that produced it.
type Element struct {
	Query  Query
	Handle any
}

// Permission names a browser permission granted to the meeting origin.
type Permission string

const (
	PermissionGeolocation             Permission = "geolocation"
	PermissionAudioCapture            Permission = "audioCapture"
	PermissionDisplayCapture          Permission = "displayCapture"
	PermissionVideoCapture            Permission = "videoCapture"
	PermissionVideoCapturePanTiltZoom Permission = "videoCapturePanTiltZoom"
)

// MeetingPermissions is granted up front because nothing answers native
// permission prompts in an unattended session.
var MeetingPermissions = []Permission{
	PermissionGeolocation,
	PermissionAudioCapture,
	PermissionDisplayCapture,
	PermissionVideoCapture,
	PermissionVideoCapturePanTiltZoom,
}

// ErrForeignElement is returned when an Element produced by another driver is
// passed back in.
var ErrForeignElement = errors.New("element does not belong to this driver")

// Driver is the UI-automation capability a Session consumes.
type Driver interface {
	Open(ctx context.Context, url string) error
	GrantPermissions(ctx context.Context, origin string, perms []Permission) error
	// FindVisible returns ok=false when nothing visible matches. Absence is
	// not an error.
	FindVisible(ctx context.Context, q Query) (Element, bool, error)
	Click(ctx context.Context, el Element) error
	Type(ctx context.Context, el Element, text string) error
	// Submit presses Enter inside el.
	Submit(ctx context.Context, el Element) error
	Screenshot(ctx context.Context) ([]byte, error)
	CurrentURL(ctx context.Context) (string, error)
	VisibleText(ctx context.Context) (string, error)
	Close() error
}

// Launcher starts a browser and returns a Driver bound to it.
type Launcher interface {
	Launch(ctx context.Context) (Driver, error)
}

// LauncherFunc adapts a function to Launcher.
type LauncherFunc func(ctx context.Context) (Driver, error)

// Launch calls f.
func (f LauncherFunc) Launch(ctx context.Context) (Driver, error) { return f(ctx) }

// FirstVisible tries queries in order and returns the first visible match.
// A query that errors is skipped; the last such error is returned only when
// no query matched.
func FirstVisible(ctx context.Context, d Driver, queries []Query) (Element, bool, error) {
	var lastErr error
	for _, q := range queries {
		if err := ctx.Err(); err != nil {
			return Element{}, false, err
		}
		el, ok, err := d.FindVisible(ctx, q)
		if err != nil {
			lastErr = err
			continue
		}
		if ok {
			return el, true, nil
		}
	}
	return Element{}, false, lastErr
}
