// Package helper is the first-party localhost provider: an HTTP service
// implementing the stream-list contract (plus the direct-download fallback)
// on top of an in-process media extractor, so the highest-priority entry of
// the default provider stack actually exists.
package helper

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/kkdai/youtube/v2"
	"go.uber.org/zap"

	"github.com/ytdown/ytdown"
)

var ErrNoDirectStream = errors.New("no direct single-file stream available")

// Stream is one rendition in the wire payload. The JSON shape matches what
// the piped-style public instances return, so the resolver treats the helper
// like any other provider.
type Stream struct {
	URL       string `json:"url"`
	Format    string `json:"format"`
	Quality   string `json:"quality"`
	MimeType  string `json:"mimeType"`
	Bitrate   int    `json:"bitrate"`
	FPS       int    `json:"fps,omitempty"`
	Width     int    `json:"width,omitempty"`
	Height    int    `json:"height,omitempty"`
	VideoOnly bool   `json:"videoOnly"`
	// AudioURL accompanies video-only entries: the best audio rendition to
	// merge in externally.
	AudioURL string `json:"audioUrl,omitempty"`
}

type StreamList struct {
	Title        string   `json:"title"`
	Uploader     string   `json:"uploader"`
	Duration     int      `json:"duration"`
	ThumbnailURL string   `json:"thumbnailUrl"`
	VideoStreams []Stream `json:"videoStreams"`
	AudioStreams []Stream `json:"audioStreams"`
}

type DirectDownload struct {
	Success     bool   `json:"success"`
	DownloadURL string `json:"downloadUrl"`
	Title       string `json:"title"`
	VideoID     string `json:"videoId"`
	Quality     string `json:"quality"`
	Format      string `json:"format"`
}

type Preview struct {
	Success   bool   `json:"success"`
	Title     string `json:"title"`
	Duration  string `json:"duration"`
	VideoID   string `json:"videoId"`
	IsPreview bool   `json:"isPreview"`
}

// An Extractor resolves a video ID into the helper's payload shapes. The
// server depends on this interface so handler tests can use a fake.
type Extractor interface {
	Streams(ctx context.Context, id ytdown.VideoID) (*StreamList, error)
	DirectDownload(ctx context.Context, id ytdown.VideoID, quality, format string) (*DirectDownload, error)
	Preview(ctx context.Context, id ytdown.VideoID) (*Preview, error)
}

// YouTubeExtractor backs the helper with an in-process youtube client
// instead of shelling out to an external media-info tool.
type YouTubeExtractor struct {
	client *youtube.Client
	log    *zap.SugaredLogger
}

var _ Extractor = (*YouTubeExtractor)(nil)

func NewYouTubeExtractor() *YouTubeExtractor {
	return &YouTubeExtractor{
		client: &youtube.Client{},
		log:    zap.S().Named("extractor"),
	}
}

func (e *YouTubeExtractor) Streams(ctx context.Context, id ytdown.VideoID) (*StreamList, error) {
	video, err := e.client.GetVideoContext(ctx, id.WatchURL())
	if err != nil {
		return nil, err
	}

	list := &StreamList{
		Title:    video.Title,
		Uploader: video.Author,
		Duration: int(video.Duration.Seconds()),
	}
	if len(video.Thumbnails) > 0 {
		list.ThumbnailURL = video.Thumbnails[len(video.Thumbnails)-1].URL
	}

	for i := range video.Formats {
		format := video.Formats[i]
		stream, ok := e.convertFormat(ctx, video, &format)
		if !ok {
			continue
		}
		if strings.HasPrefix(stream.MimeType, "audio/") {
			list.AudioStreams = append(list.AudioStreams, stream)
		} else {
			list.VideoStreams = append(list.VideoStreams, stream)
		}
	}

	attachBestAudio(list)
	sortVideoStreams(list.VideoStreams)
	return list, nil
}

func (e *YouTubeExtractor) DirectDownload(ctx context.Context, id ytdown.VideoID, quality, format string) (*DirectDownload, error) {
	video, err := e.client.GetVideoContext(ctx, id.WatchURL())
	if err != nil {
		return nil, err
	}

	best, err := pickDirectFormat(video.Formats, quality, format)
	if err != nil {
		return nil, err
	}
	streamURL, err := e.client.GetStreamURLContext(ctx, video, best)
	if err != nil {
		return nil, err
	}
	if streamURL == "" || ytdown.IsManifestURL(streamURL) {
		return nil, ErrNoDirectStream
	}

	label := quality
	if best.Height > 0 {
		label = fmt.Sprintf("%dp", best.Height)
	}
	return &DirectDownload{
		Success:     true,
		DownloadURL: streamURL,
		Title:       video.Title,
		VideoID:     id.String(),
		Quality:     label,
		Format:      format,
	}, nil
}

func (e *YouTubeExtractor) Preview(ctx context.Context, id ytdown.VideoID) (*Preview, error) {
	video, err := e.client.GetVideoContext(ctx, id.WatchURL())
	if err != nil {
		return nil, err
	}
	seconds := int(video.Duration.Seconds())
	return &Preview{
		Success:   true,
		Title:     video.Title,
		Duration:  fmt.Sprintf("%d:%02d", seconds/60, seconds%60),
		VideoID:   id.String(),
		IsPreview: true,
	}, nil
}

// convertFormat resolves one format's direct URL and reshapes it. Formats
// with no usable single-file URL are skipped.
func (e *YouTubeExtractor) convertFormat(ctx context.Context, video *youtube.Video, format *youtube.Format) (Stream, bool) {
	streamURL, err := e.client.GetStreamURLContext(ctx, video, format)
	if err != nil || streamURL == "" || ytdown.IsManifestURL(streamURL) {
		if err != nil {
			e.log.Debugw("skipping format", "itag", format.ItagNo, "error", err)
		}
		return Stream{}, false
	}

	mimeType := strings.TrimSpace(strings.SplitN(format.MimeType, ";", 2)[0])
	hasVideo := strings.HasPrefix(mimeType, "video/")
	hasAudio := format.AudioChannels > 0

	stream := Stream{
		URL:       streamURL,
		Format:    strconv.Itoa(format.ItagNo),
		MimeType:  mimeType,
		Bitrate:   format.Bitrate,
		FPS:       format.FPS,
		Width:     format.Width,
		Height:    format.Height,
		VideoOnly: hasVideo && !hasAudio,
	}

	switch {
	case hasVideo:
		stream.Quality = videoQualityLabel(format)
	case hasAudio:
		stream.Quality = audioQualityLabel(format)
	default:
		return Stream{}, false
	}
	return stream, true
}

func videoQualityLabel(format *youtube.Format) string {
	if format.Height > 0 {
		fps := format.FPS
		if fps == 0 {
			fps = 30
		}
		return fmt.Sprintf("%dp %dfps", format.Height, fps)
	}
	if format.QualityLabel != "" {
		return format.QualityLabel
	}
	return format.Quality
}

func audioQualityLabel(format *youtube.Format) string {
	if format.Bitrate > 0 {
		return fmt.Sprintf("%dkbps", format.Bitrate/1000)
	}
	return "audio"
}

// attachBestAudio pairs every video-only rendition with the highest-bitrate
// audio stream so callers can merge the two files externally.
func attachBestAudio(list *StreamList) {
	var best *Stream
	for i := range list.AudioStreams {
		if best == nil || list.AudioStreams[i].Bitrate > best.Bitrate {
			best = &list.AudioStreams[i]
		}
	}
	if best == nil {
		return
	}
	for i := range list.VideoStreams {
		if list.VideoStreams[i].VideoOnly {
			list.VideoStreams[i].AudioURL = best.URL
		}
	}
}

// sortVideoStreams orders progressive renditions first, then by resolution
// and frame rate descending.
func sortVideoStreams(streams []Stream) {
	sort.SliceStable(streams, func(i, j int) bool {
		a, b := streams[i], streams[j]
		if a.VideoOnly != b.VideoOnly {
			return !a.VideoOnly
		}
		if a.Height != b.Height {
			return a.Height > b.Height
		}
		return a.FPS > b.FPS
	})
}

// pickDirectFormat selects the best single-file format with both tracks,
// honoring a "720p"-style height cap and preferring the requested container.
func pickDirectFormat(formats youtube.FormatList, quality, container string) (*youtube.Format, error) {
	maxHeight := 0
	if quality != "" && quality != "best" {
		if h, err := strconv.Atoi(strings.TrimSuffix(quality, "p")); err == nil {
			maxHeight = h
		}
	}

	var best *youtube.Format
	better := func(candidate *youtube.Format) bool {
		if best == nil {
			return true
		}
		candidateMatch := container != "" && strings.Contains(candidate.MimeType, container)
		bestMatch := container != "" && strings.Contains(best.MimeType, container)
		if candidateMatch != bestMatch {
			return candidateMatch
		}
		if candidate.Height != best.Height {
			return candidate.Height > best.Height
		}
		return candidate.Bitrate > best.Bitrate
	}

	for i := range formats {
		f := &formats[i]
		if f.AudioChannels == 0 || !strings.HasPrefix(f.MimeType, "video/") {
			continue
		}
		if maxHeight > 0 && f.Height > maxHeight {
			continue
		}
		if better(f) {
			best = f
		}
	}
	if best == nil {
		return nil, ErrNoDirectStream
	}
	return best, nil
}
