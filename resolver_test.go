package ytdown

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"

	assert_ "github.com/stretchr/testify/assert"
)

// rewriteHost redirects every request to a test server while preserving the
// original URL's host for provider classification.
type rewriteHost struct {
	target string
}

func (t rewriteHost) RoundTrip(req *http.Request) (*http.Response, error) {
	target, err := url.Parse(t.target)
	if err != nil {
		return nil, err
	}
	out := req.Clone(req.Context())
	out.URL.Scheme = target.Scheme
	out.URL.Host = target.Host
	return http.DefaultTransport.RoundTrip(out)
}

func streamsJSON(entries ...string) string {
	return `{"title":"A Video","videoStreams":[` + strings.Join(entries, ",") + `]}`
}

func newProviderServer(t *testing.T, handler http.HandlerFunc) (*httptest.Server, ProviderSpec, *int32) {
	t.Helper()
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		handler(w, r)
	}))
	t.Cleanup(server.Close)
	return server, ProviderSpec{Label: server.URL, Template: templateFor(server)}, &calls
}

func TestResolverSequentialShortCircuit(t *testing.T) {
	assert := assert_.New(t)

	_, failing, failingCalls := newProviderServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	_, winning, winningCalls := newProviderServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(streamsJSON(`{"url":"https://cdn.example/v.mp4","quality":"720p 30fps"}`)))
	})
	_, never, neverCalls := newProviderServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(streamsJSON(`{"url":"https://cdn.example/other.mp4","quality":"1080p 60fps"}`)))
	})

	resolver := NewResolver(NewClient(), NoStore{})
	resolved, err := resolver.fetchFromStack(context.Background(), testVideoID,
		[]ProviderSpec{failing, winning, never})
	assert.NoError(err)
	assert.Equal("https://cdn.example/v.mp4", resolved.DownloadURL)
	assert.Equal(winning.Label, resolved.Provider.Label)

	assert.EqualValues(1, atomic.LoadInt32(failingCalls))
	assert.EqualValues(1, atomic.LoadInt32(winningCalls))
	assert.EqualValues(0, atomic.LoadInt32(neverCalls), "later providers must not be queried after a success")
}

func TestResolverErrorAggregation(t *testing.T) {
	assert := assert_.New(t)

	_, p1, _ := newProviderServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("bad gateway"))
	})
	_, p2, _ := newProviderServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("not json"))
	})
	_, p3, _ := newProviderServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(streamsJSON())) // empty stream list
	})

	resolver := NewResolver(NewClient(), NoStore{})
	_, err := resolver.fetchFromStack(context.Background(), testVideoID, []ProviderSpec{p1, p2, p3})

	var allFailed *AllProvidersError
	assert.ErrorAs(err, &allFailed)
	assert.Len(allFailed.Failures, 3)
	assert.Equal(p1.Label, allFailed.Failures[0].Provider)
	assert.Equal(p2.Label, allFailed.Failures[1].Provider)
	assert.Equal(p3.Label, allFailed.Failures[2].Provider)

	msg := err.Error()
	assert.Contains(msg, "HTTP 502")
	assert.Contains(msg, "response is not JSON")
	assert.Contains(msg, ErrNoEligibleStreams.Error())
	// Reasons appear in provider-stack order.
	assert.Less(strings.Index(msg, p1.Label), strings.Index(msg, p2.Label))
	assert.Less(strings.Index(msg, p2.Label), strings.Index(msg, p3.Label))
}

func TestResolverEmptyStack(t *testing.T) {
	assert := assert_.New(t)
	resolver := NewResolver(NewClient(), NoStore{})
	_, err := resolver.fetchFromStack(context.Background(), testVideoID, nil)
	assert.ErrorIs(err, ErrNoProviders)
}

func TestResolverRanking(t *testing.T) {
	assert := assert_.New(t)

	_, provider, _ := newProviderServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(streamsJSON(
			`{"url":"https://cdn.example/720p60.mp4","quality":"720p 60fps","bitrate":2000}`,
			`{"url":"https://cdn.example/1080p30.mp4","quality":"1080p 30fps","bitrate":1000,"mimeType":"video/mp4"}`,
			`{"url":"https://cdn.example/videoonly.webm","quality":"2160p 60fps","videoOnly":true}`,
			`{"url":"https://cdn.example/hls.m3u8","quality":"4320p 60fps"}`,
		)))
	})

	resolver := NewResolver(NewClient(), NoStore{})
	resolved, err := resolver.fetchFromStack(context.Background(), testVideoID, []ProviderSpec{provider})
	assert.NoError(err)
	// Video-only and manifest entries are filtered before ranking.
	assert.Equal("https://cdn.example/1080p30.mp4", resolved.DownloadURL)
	assert.Equal("1080p 30fps", resolved.Quality)
	assert.Equal("video/mp4", resolved.MimeType)
	assert.Equal("A Video", resolved.Title)
}

func TestResolverDirectDownloadFallback(t *testing.T) {
	assert := assert_.New(t)

	t.Run("local helper falls back and wins", func(t *testing.T) {
		var downloadCalls int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if strings.HasPrefix(r.URL.Path, "/api/v1/download/") {
				atomic.AddInt32(&downloadCalls, 1)
				_, _ = w.Write([]byte(`{"success":true,"downloadUrl":"https://cdn.example/direct.mp4","title":"Direct","quality":"720p"}`))
				return
			}
			_, _ = w.Write([]byte(streamsJSON(`{"url":"https://cdn.example/vo.mp4","quality":"1080p 30fps","videoOnly":true}`)))
		}))
		defer server.Close()

		// httptest binds to 127.0.0.1, so the provider counts as the local helper.
		provider := ProviderSpec{Label: "localhost (yt-dlp)", Template: templateFor(server)}
		assert.True(provider.IsLocalHelper())

		resolver := NewResolver(NewClient(), NoStore{})
		resolved, err := resolver.fetchFromStack(context.Background(), testVideoID, []ProviderSpec{provider})
		assert.NoError(err)
		assert.EqualValues(1, atomic.LoadInt32(&downloadCalls))
		assert.Equal("https://cdn.example/direct.mp4", resolved.DownloadURL)
		assert.Equal("Direct", resolved.Title)
		assert.Equal("720p", resolved.Quality)
		assert.Equal("video/mp4", resolved.MimeType)
	})

	t.Run("unusable fallback recorded as no eligible streams", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if strings.HasPrefix(r.URL.Path, "/api/v1/download/") {
				_, _ = w.Write([]byte(`{"success":true,"downloadUrl":"https://cdn.example/stream.m3u8"}`))
				return
			}
			_, _ = w.Write([]byte(streamsJSON()))
		}))
		defer server.Close()

		provider := ProviderSpec{Label: "localhost (yt-dlp)", Template: templateFor(server)}
		resolver := NewResolver(NewClient(), NoStore{})
		_, err := resolver.fetchFromStack(context.Background(), testVideoID, []ProviderSpec{provider})

		var allFailed *AllProvidersError
		assert.ErrorAs(err, &allFailed)
		assert.ErrorIs(allFailed.Failures[0].Reason, ErrNoEligibleStreams)
	})

	t.Run("public provider never falls back", func(t *testing.T) {
		var downloadCalls int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if strings.HasPrefix(r.URL.Path, "/api/v1/download/") {
				atomic.AddInt32(&downloadCalls, 1)
			}
			_, _ = w.Write([]byte(streamsJSON()))
		}))
		defer server.Close()

		// Route a non-localhost template to the test server so the provider
		// does not count as the local helper.
		provider := ProviderSpec{
			Label:    "piped.example",
			Template: "http://piped.example/api/v1/streams/" + TemplatePlaceholder,
		}
		assert.False(provider.IsLocalHelper())

		client := NewClient(WithHTTPClient(&http.Client{Transport: rewriteHost{target: server.URL}}))
		resolver := NewResolver(client, NoStore{})
		_, err := resolver.fetchFromStack(context.Background(), testVideoID, []ProviderSpec{provider})
		assert.Error(err)
		assert.EqualValues(0, atomic.LoadInt32(&downloadCalls))
	})
}

func TestResolverFetchFromTemplate(t *testing.T) {
	assert := assert_.New(t)

	_, provider, calls := newProviderServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(streamsJSON(`{"url":"https://cdn.example/v.mp4","quality":"480p 30fps"}`)))
	})

	resolver := NewResolver(NewClient(), NoStore{})
	resolved, err := resolver.FetchFromTemplate(context.Background(), testVideoID, provider.Template)
	assert.NoError(err)
	assert.Equal("custom (temporary)", resolved.Provider.Label)
	assert.Equal("480p 30fps", resolved.Quality)
	assert.EqualValues(1, atomic.LoadInt32(calls))
}
