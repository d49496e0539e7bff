package ytdown

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"
)

// DefaultRequestTimeout bounds each provider request. Up to five providers
// may be tried sequentially, so the worst-case resolution latency is roughly
// five times this value.
const DefaultRequestTimeout = 15 * time.Second

const snippetLimit = 140

// requestHeaders signal JSON preference and disable caching, matching what
// the piped-style instances expect.
var requestHeaders = map[string]string{
	"Accept":          "application/json, text/plain, */*",
	"Accept-Language": "en-US,en;q=0.9",
	"Cache-Control":   "no-cache",
	"Pragma":          "no-cache",
}

// StreamsPayload is the stream-list contract response: a title plus the list
// of video renditions. Fields this engine does not use are ignored.
type StreamsPayload struct {
	Title        string          `json:"title"`
	VideoStreams []PayloadStream `json:"videoStreams"`
}

// PayloadStream is one entry of a provider's videoStreams list.
type PayloadStream struct {
	URL       string  `json:"url"`
	Quality   string  `json:"quality"`
	Format    string  `json:"format"`
	MimeType  string  `json:"mimeType"`
	Bitrate   float64 `json:"bitrate"`
	VideoOnly bool    `json:"videoOnly"`
	AudioOnly bool    `json:"audioOnly"`
	// AudioURL is the helper's companion audio track for video-only entries.
	AudioURL string `json:"audioUrl"`
}

// Candidate converts the wire entry into the closed-set stream model.
func (ps PayloadStream) Candidate() StreamCandidate {
	kind := StreamProgressive
	switch {
	case ps.AudioOnly:
		kind = StreamAudioOnly
	case ps.VideoOnly:
		kind = StreamVideoOnly
	}
	return StreamCandidate{
		URL:      ps.URL,
		Quality:  ps.Quality,
		Format:   ps.Format,
		MimeType: ps.MimeType,
		Bitrate:  int64(ps.Bitrate),
		Kind:     kind,
		AudioURL: ps.AudioURL,
	}
}

// DirectDownloadPayload is the local helper's direct-download response.
type DirectDownloadPayload struct {
	Success     bool   `json:"success"`
	DownloadURL string `json:"downloadUrl"`
	Title       string `json:"title"`
	VideoID     string `json:"videoId"`
	Quality     string `json:"quality"`
	Format      string `json:"format"`
}

// Client performs the HTTP side of the provider contract: endpoint
// construction, the fixed header set, and the success/JSON checks.
type Client struct {
	http *http.Client
	log  *zap.SugaredLogger
}

type ClientOption func(*Client)

// WithTimeout overrides the per-request ceiling.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		c.http.Timeout = d
	}
}

// WithHTTPClient replaces the underlying http.Client entirely.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.http = hc
	}
}

func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		http: &http.Client{Timeout: DefaultRequestTimeout},
		log:  zap.S().Named("client"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// RequestStream queries one provider for the stream list of id. It returns
// the parsed payload and the resolved endpoint for diagnostics. Failures are
// classified: endpoint construction (ErrTemplateMissingPlaceholder), transport
// errors, HTTPError for non-2xx and NonJSONError for unparseable bodies.
func (c *Client) RequestStream(ctx context.Context, provider ProviderSpec, id VideoID) (*StreamsPayload, string, error) {
	endpoint, err := provider.Endpoint(id)
	if err != nil {
		return nil, "", err
	}

	body, err := c.get(ctx, endpoint)
	if err != nil {
		return nil, endpoint, err
	}

	var payload StreamsPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, endpoint, &NonJSONError{Snippet: summarize(string(body))}
	}
	return &payload, endpoint, nil
}

// RequestDirectDownload queries the local helper's alternate endpoint for a
// single-file download URL, used when the stream list had no progressive
// entries.
func (c *Client) RequestDirectDownload(ctx context.Context, provider ProviderSpec, id VideoID) (*DirectDownloadPayload, error) {
	base := strings.Replace(provider.Template, "/api/v1/streams/"+TemplatePlaceholder, "", 1)
	endpoint := fmt.Sprintf("%s/api/v1/download/%s?quality=best&format=mp4", base, id)

	body, err := c.get(ctx, endpoint)
	if err != nil {
		return nil, err
	}

	var payload DirectDownloadPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, &NonJSONError{Snippet: summarize(string(body))}
	}
	return &payload, nil
}

// get issues the GET request and reads the entire body before interpreting
// anything, so that non-JSON error bodies can still be summarized.
func (c *Client) get(ctx context.Context, endpoint string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	for name, value := range requestHeaders {
		req.Header.Set(name, value)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.log.Debugw("provider returned error status", "endpoint", endpoint, "status", resp.StatusCode)
		return nil, &HTTPError{
			Status:     resp.StatusCode,
			StatusText: http.StatusText(resp.StatusCode),
			Snippet:    summarize(string(body)),
		}
	}
	return body, nil
}

var whitespaceRun = regexp.MustCompile(`\s+`)

// summarize collapses whitespace and truncates to snippetLimit characters,
// marking truncation with an ellipsis.
func summarize(text string) string {
	collapsed := strings.TrimSpace(whitespaceRun.ReplaceAllString(text, " "))
	if len(collapsed) <= snippetLimit {
		return collapsed
	}
	return collapsed[:snippetLimit-3] + "..."
}
