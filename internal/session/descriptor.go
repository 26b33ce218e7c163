package session

import (
	"errors"
	"fmt"
	"net/url"
	"path"
	"regexp"
	"strings"
	"time"
)

// ErrInvalidLink is returned for meeting links without a usable path segment.
var ErrInvalidLink = errors.New("invalid meeting link")

var meetingIDPattern = regexp.MustCompile(`^[A-Za-z0-9._-]+$`)

// Descriptor identifies one meeting occurrence. It is immutable once a
// session starts.
type Descriptor struct {
	MeetingID   string
	Link        string
	Username    string
	TaskID      string
	StorageRoot string
	CreatedAt   time.Time
}

// MeetingIDFromLink returns the last path segment of link, ignoring any query
// or fragment. The result is used as a directory name, so it is restricted to
// a safe character set.
func MeetingIDFromLink(link string) (string, error) {
	link = strings.TrimSpace(link)
	if link == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidLink)
	}
	u, err := url.Parse(link)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidLink, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("%w: %q is not an http(s) URL", ErrInvalidLink, link)
	}
	id := path.Base(strings.TrimRight(u.Path, "/"))
	if id == "" || id == "." || id == ".." || id == "/" || !meetingIDPattern.MatchString(id) {
		return "", fmt.Errorf("%w: no meeting id in %q", ErrInvalidLink, link)
	}
	return id, nil
}

// NewDescriptor derives the meeting id from link and fills the descriptor.
func NewDescriptor(link, username, taskID, storageRoot string, now time.Time) (Descriptor, error) {
	id, err := MeetingIDFromLink(link)
	if err != nil {
		return Descriptor{}, err
	}
	return Descriptor{
		MeetingID:   id,
		Link:        strings.TrimSpace(link),
		Username:    strings.TrimSpace(username),
		TaskID:      strings.TrimSpace(taskID),
		StorageRoot: storageRoot,
		CreatedAt:   now.UTC(),
	}, nil
}
