package ytdown

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

// watchBase resolves relative inputs like "/watch?v=..." the same way the
// browser would.
const watchBase = "https://www.youtube.com"

const shortLinkHost = "youtu.be"

var (
	videoIDPattern  = regexp.MustCompile(`^[A-Za-z0-9_-]{11}$`)
	videoIDStripper = regexp.MustCompile(`[^A-Za-z0-9_-]`)
)

// A VideoID is the canonical 11-character video reference. A zero VideoID is
// never produced by ParseVideoID or ExtractVideoID.
type VideoID string

// ParseVideoID validates that s is exactly 11 characters of [A-Za-z0-9_-].
func ParseVideoID(s string) (VideoID, error) {
	if !videoIDPattern.MatchString(s) {
		return "", fmt.Errorf("%w: %q", ErrInvalidReference, s)
	}
	return VideoID(s), nil
}

func (id VideoID) String() string {
	return string(id)
}

// WatchURL returns the canonical watch-page URL for the video.
func (id VideoID) WatchURL() string {
	return fmt.Sprintf("%s/watch?v=%s", watchBase, id)
}

// ExtractVideoID pulls a VideoID out of arbitrary user input: a raw ID, a full
// watch URL, a youtu.be short link, a /shorts/ URL or an /embed/ URL. It is
// total: any input either yields a valid VideoID or ok == false, never a panic.
func ExtractVideoID(input string) (VideoID, bool) {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return "", false
	}

	if videoIDPattern.MatchString(trimmed) {
		return VideoID(trimmed), true
	}

	base, err := url.Parse(watchBase)
	if err != nil {
		return "", false
	}
	ref, err := url.Parse(trimmed)
	if err != nil {
		return "", false
	}
	u := base.ResolveReference(ref)

	if v := u.Query().Get("v"); v != "" {
		return sanitizeVideoID(v)
	}
	if u.Hostname() == shortLinkHost {
		return sanitizeVideoID(pathSegment(u.Path, 0))
	}
	if strings.HasPrefix(u.Path, "/shorts/") {
		return sanitizeVideoID(pathSegment(u.Path, 1))
	}
	if strings.HasPrefix(u.Path, "/embed/") {
		return sanitizeVideoID(pathSegment(u.Path, 1))
	}

	return "", false
}

// sanitizeVideoID strips every character outside the identifier alphabet and
// accepts the result only if exactly 11 characters remain.
func sanitizeVideoID(candidate string) (VideoID, bool) {
	clean := videoIDStripper.ReplaceAllString(candidate, "")
	if len(clean) != 11 {
		return "", false
	}
	return VideoID(clean), true
}

func pathSegment(path string, n int) string {
	segments := strings.Split(strings.TrimPrefix(path, "/"), "/")
	if n >= len(segments) {
		return ""
	}
	return segments[n]
}
