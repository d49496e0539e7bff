package ytdown

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"
)

// A DownloadID is the opaque handle returned by a DownloadTrigger.
type DownloadID string

// A DownloadRequest is what gets handed to the external download mechanism.
type DownloadRequest struct {
	URL      string
	Filename string
	// SaveAs asks the trigger to prompt for (or otherwise negotiate) the save
	// location instead of writing blindly to the default target.
	SaveAs bool
}

// A DownloadTrigger begins a download of a URL with a suggested filename. It
// is an external collaborator: the packager only consumes this interface.
type DownloadTrigger interface {
	Download(ctx context.Context, req DownloadRequest) (DownloadID, error)
}

// DownloadOptions are the caller-supplied knobs of HandleDownloadRequest.
type DownloadOptions struct {
	SaveAs bool
	// Override is a one-shot provider template tried ahead of the stack.
	Override string
}

// DefaultDownloadOptions prompt for the save location.
func DefaultDownloadOptions() DownloadOptions {
	return DownloadOptions{SaveAs: true}
}

// A DownloadReceipt is returned to the caller for user feedback.
type DownloadReceipt struct {
	DownloadID DownloadID
	Filename   string
	Quality    string
	Provider   string
}

// A ProviderCheck is the result of a diagnostic single-template resolution.
type ProviderCheck struct {
	Provider string
	Quality  string
}

// Packager turns a winning stream into a filename and hands it to the
// download trigger.
type Packager struct {
	resolver *Resolver
	trigger  DownloadTrigger
	now      func() time.Time
	log      *zap.SugaredLogger
}

func NewPackager(resolver *Resolver, trigger DownloadTrigger) *Packager {
	return &Packager{
		resolver: resolver,
		trigger:  trigger,
		now:      time.Now,
		log:      zap.S().Named("packager"),
	}
}

// HandleDownloadRequest is the primary caller-facing operation: normalize the
// raw input, resolve the best stream, compose a filename and start the
// download. Input validation happens before any network call.
func (p *Packager) HandleDownloadRequest(ctx context.Context, rawInput string, opts DownloadOptions) (*DownloadReceipt, error) {
	id, ok := ExtractVideoID(rawInput)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrInvalidReference, rawInput)
	}

	resolved, err := p.resolver.FetchBestStream(ctx, id, opts.Override)
	if err != nil {
		return nil, err
	}

	filename := composeFilename(resolved, id, p.now)

	downloadID, err := p.trigger.Download(ctx, DownloadRequest{
		URL:      resolved.DownloadURL,
		Filename: filename,
		SaveAs:   opts.SaveAs,
	})
	if err != nil {
		return nil, &DownloadTriggerError{Err: err}
	}

	p.log.Infow("download started",
		"download_id", downloadID, "filename", filename, "provider", resolved.Provider.Name())
	return &DownloadReceipt{
		DownloadID: downloadID,
		Filename:   filename,
		Quality:    resolved.Quality,
		Provider:   resolved.Provider.Name(),
	}, nil
}

// CheckProvider resolves rawInput against only the given template, for
// diagnosing a candidate provider before saving it. The template must contain
// the placeholder; legacy tolerance only applies to persisted values.
func (p *Packager) CheckProvider(ctx context.Context, rawInput, template string) (*ProviderCheck, error) {
	id, ok := ExtractVideoID(rawInput)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrInvalidReference, rawInput)
	}

	normalized, ok := NormalizeTemplate(template, false)
	if !ok {
		return nil, ErrTemplateMissingPlaceholder
	}

	resolved, err := p.resolver.FetchFromTemplate(ctx, id, normalized)
	if err != nil {
		return nil, err
	}
	return &ProviderCheck{
		Provider: resolved.Provider.Name(),
		Quality:  resolved.Quality,
	}, nil
}

var (
	hostileChars = regexp.MustCompile(`[<>:"/\\|?*]+`)
	spaceRun     = regexp.MustCompile(`\s+`)
)

// SanitizeTitle replaces path-hostile characters with spaces and collapses
// whitespace. The result may be empty; callers supply the fallback.
func SanitizeTitle(title string) string {
	cleaned := hostileChars.ReplaceAllString(title, " ")
	return strings.TrimSpace(spaceRun.ReplaceAllString(cleaned, " "))
}

// GuessExtension maps a stream media type onto a container extension,
// defaulting to mp4 for anything unrecognizable.
func GuessExtension(mimeType string) string {
	if mimeType == "" {
		return "mp4"
	}
	if strings.Contains(mimeType, "mp4") {
		return "mp4"
	}
	if strings.Contains(mimeType, "webm") {
		return "webm"
	}
	parts := strings.SplitN(mimeType, "/", 2)
	if len(parts) == 2 && parts[1] != "" {
		// Drop codec parameters like "video/webm; codecs=vp9".
		return strings.TrimSpace(strings.SplitN(parts[1], ";", 2)[0])
	}
	return "mp4"
}

func composeFilename(resolved *ResolvedStream, id VideoID, now func() time.Time) string {
	raw := resolved.Title
	if raw == "" {
		raw = id.String()
	}
	title := SanitizeTitle(raw)
	if title == "" {
		title = fmt.Sprintf("youtube-video-%d", now().Unix())
	}

	quality := resolved.Quality
	if quality == "" {
		quality = "video"
	}

	base := fmt.Sprintf("%s (%s)", title, quality)
	if ext := GuessExtension(resolved.MimeType); ext != "" {
		return base + "." + ext
	}
	return base
}
