package ytdown

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	assert_ "github.com/stretchr/testify/assert"
)

type fakeTrigger struct {
	requests []DownloadRequest
	err      error
}

func (t *fakeTrigger) Download(_ context.Context, req DownloadRequest) (DownloadID, error) {
	t.requests = append(t.requests, req)
	if t.err != nil {
		return "", t.err
	}
	return "download-1", nil
}

func TestSanitizeTitle(t *testing.T) {
	assert := assert_.New(t)

	assert.Equal("My Video Name", SanitizeTitle("My: Video/Name"))
	assert.Equal("a b", SanitizeTitle(`a <>:"/\|?* b`))
	assert.Equal("", SanitizeTitle(`<>:"/\|?*`))
	assert.Equal("", SanitizeTitle("   "))
	assert.Equal("plain title", SanitizeTitle("plain title"))
}

func TestGuessExtension(t *testing.T) {
	assert := assert_.New(t)

	assert.Equal("mp4", GuessExtension(""))
	assert.Equal("mp4", GuessExtension("video/mp4"))
	assert.Equal("mp4", GuessExtension("video/mp4; codecs=avc1"))
	assert.Equal("webm", GuessExtension("video/webm"))
	assert.Equal("3gpp", GuessExtension("video/3gpp"))
	assert.Equal("mp4", GuessExtension("garbage"))
}

func TestComposeFilename(t *testing.T) {
	assert := assert_.New(t)
	fixedNow := func() time.Time { return time.Unix(1700000000, 0) }

	t.Run("normal title", func(t *testing.T) {
		name := composeFilename(&ResolvedStream{
			Title:    "My: Video/Name",
			Quality:  "720p 30fps",
			MimeType: "video/mp4",
		}, testVideoID, fixedNow)
		assert.Equal("My Video Name (720p 30fps).mp4", name)
	})

	t.Run("empty title falls back to the video id", func(t *testing.T) {
		name := composeFilename(&ResolvedStream{Quality: "720p"}, testVideoID, fixedNow)
		assert.Equal("dQw4w9WgXcQ (720p).mp4", name)
	})

	t.Run("hostile-only title falls back to a generated name", func(t *testing.T) {
		name := composeFilename(&ResolvedStream{Title: `<>:*?`, Quality: "720p"}, testVideoID, fixedNow)
		assert.Equal("youtube-video-1700000000 (720p).mp4", name)
	})

	t.Run("missing quality labeled video", func(t *testing.T) {
		name := composeFilename(&ResolvedStream{Title: "Something"}, testVideoID, fixedNow)
		assert.Equal("Something (video).mp4", name)
	})
}

func TestHandleDownloadRequest(t *testing.T) {
	assert := assert_.New(t)

	t.Run("invalid reference fails before any network call", func(t *testing.T) {
		_, provider, calls := newProviderServer(t, func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(streamsJSON(`{"url":"https://cdn.example/v.mp4","quality":"720p"}`)))
		})

		trigger := &fakeTrigger{}
		packager := NewPackager(NewResolver(NewClient(), NoStore{}), trigger)

		_, err := packager.HandleDownloadRequest(context.Background(), "not a video", DownloadOptions{
			SaveAs:   true,
			Override: provider.Template,
		})
		assert.ErrorIs(err, ErrInvalidReference)
		assert.EqualValues(0, *calls)
		assert.Empty(trigger.requests)
	})

	t.Run("success composes filename and invokes trigger", func(t *testing.T) {
		_, provider, _ := newProviderServer(t, func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"title":"My: Video","videoStreams":[{"url":"https://cdn.example/v.mp4","quality":"1080p 60fps","mimeType":"video/webm"}]}`))
		})

		trigger := &fakeTrigger{}
		packager := NewPackager(NewResolver(NewClient(), NoStore{}), trigger)

		receipt, err := packager.HandleDownloadRequest(context.Background(), "dQw4w9WgXcQ", DownloadOptions{
			SaveAs:   true,
			Override: provider.Template,
		})
		assert.NoError(err)
		assert.Equal(DownloadID("download-1"), receipt.DownloadID)
		assert.Equal("My Video (1080p 60fps).webm", receipt.Filename)
		assert.Equal("1080p 60fps", receipt.Quality)
		assert.Equal("custom (temporary)", receipt.Provider)

		assert.Len(trigger.requests, 1)
		assert.Equal("https://cdn.example/v.mp4", trigger.requests[0].URL)
		assert.True(trigger.requests[0].SaveAs)
	})

	t.Run("trigger failure wrapped", func(t *testing.T) {
		_, provider, _ := newProviderServer(t, func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(streamsJSON(`{"url":"https://cdn.example/v.mp4","quality":"720p"}`)))
		})

		boom := errors.New("disk full")
		packager := NewPackager(NewResolver(NewClient(), NoStore{}), &fakeTrigger{err: boom})

		_, err := packager.HandleDownloadRequest(context.Background(), "dQw4w9WgXcQ", DownloadOptions{
			Override: provider.Template,
		})
		var triggerErr *DownloadTriggerError
		assert.ErrorAs(err, &triggerErr)
		assert.ErrorIs(err, boom)
	})
}

func TestCheckProvider(t *testing.T) {
	assert := assert_.New(t)

	t.Run("valid template resolves against only that provider", func(t *testing.T) {
		_, provider, calls := newProviderServer(t, func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(streamsJSON(`{"url":"https://cdn.example/v.mp4","quality":"720p 30fps"}`)))
		})

		packager := NewPackager(NewResolver(NewClient(), NoStore{}), nil)
		result, err := packager.CheckProvider(context.Background(), "https://youtu.be/dQw4w9WgXcQ", provider.Template)
		assert.NoError(err)
		assert.Equal("custom (temporary)", result.Provider)
		assert.Equal("720p 30fps", result.Quality)
		assert.EqualValues(1, *calls)
	})

	t.Run("template without placeholder rejected", func(t *testing.T) {
		packager := NewPackager(NewResolver(NewClient(), NoStore{}), nil)
		_, err := packager.CheckProvider(context.Background(), "dQw4w9WgXcQ", "https://example.com/api")
		assert.ErrorIs(err, ErrTemplateMissingPlaceholder)
	})

	t.Run("invalid reference rejected", func(t *testing.T) {
		packager := NewPackager(NewResolver(NewClient(), NoStore{}), nil)
		_, err := packager.CheckProvider(context.Background(), "???", "https://example.com/api/{videoId}")
		assert.ErrorIs(err, ErrInvalidReference)
	})
}
