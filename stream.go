package ytdown

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// StreamKind classifies which tracks a candidate URL serves.
type StreamKind int

const (
	// StreamProgressive serves both video and audio from a single URL.
	StreamProgressive StreamKind = iota
	// StreamVideoOnly serves video with no audio track.
	StreamVideoOnly
	// StreamAudioOnly serves audio with no video track.
	StreamAudioOnly
)

func (k StreamKind) String() string {
	switch k {
	case StreamProgressive:
		return "progressive"
	case StreamVideoOnly:
		return "video-only"
	case StreamAudioOnly:
		return "audio-only"
	default:
		return "unknown"
	}
}

// A StreamCandidate is one playable rendition returned by a provider. It only
// lives for the duration of a single resolution call.
type StreamCandidate struct {
	URL      string
	Quality  string
	Format   string
	MimeType string
	Bitrate  int64
	Kind     StreamKind
	// AudioURL is the companion audio track for a video-only candidate whose
	// provider supplied one; the files must be merged externally.
	AudioURL string
}

// MergeRequired reports whether downloading this candidate produces a
// video-only file that needs the companion AudioURL merged in afterwards.
func (s StreamCandidate) MergeRequired() bool {
	return s.Kind == StreamVideoOnly && s.AudioURL != ""
}

// QualityLabel is the user-facing quality string, falling back through the
// provider's alternative naming.
func (s StreamCandidate) QualityLabel() string {
	if s.Quality != "" {
		return s.Quality
	}
	if s.Format != "" {
		return s.Format
	}
	return "unknown"
}

// Eligible reports whether the candidate can be handed to a plain file
// download: it has a URL and the URL is not an adaptive manifest.
func (s StreamCandidate) Eligible() bool {
	return s.URL != "" && !IsManifestURL(s.URL)
}

// IsManifestURL detects adaptive-manifest URLs (chunked playlists), which
// cannot be downloaded as a single file.
func IsManifestURL(u string) bool {
	return u != "" && (strings.Contains(u, ".m3u8") || strings.Contains(u, "manifest"))
}

var (
	resolutionPattern = regexp.MustCompile(`(\d{3,4})`)
	frameRatePattern  = regexp.MustCompile(`(?i)(\d{2})fps?`)
)

// QualityScore derives the numeric ranking key from a quality label:
// resolution scaled by 10 plus frame rate, so "720p 60fps" scores 7260 and
// "1080p 30fps" (10830) still beats "720p 60fps". Labels with no parseable
// resolution, such as "audio only", score 0 and sort last.
func QualityScore(label string) int {
	if label == "" {
		return 0
	}
	base := 0
	if m := resolutionPattern.FindStringSubmatch(label); m != nil {
		base, _ = strconv.Atoi(m[1])
	}
	fps := 0
	if m := frameRatePattern.FindStringSubmatch(label); m != nil {
		fps, _ = strconv.Atoi(m[1])
	}
	return base*10 + fps
}

// SortCandidates orders candidates best-first: quality score, then bitrate,
// then plain progressive candidates ahead of merge-required ones on a full
// tie.
func SortCandidates(candidates []StreamCandidate) {
	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if sa, sb := QualityScore(a.QualityLabel()), QualityScore(b.QualityLabel()); sa != sb {
			return sa > sb
		}
		if a.Bitrate != b.Bitrate {
			return a.Bitrate > b.Bitrate
		}
		return !a.MergeRequired() && b.MergeRequired()
	})
}
