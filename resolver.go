package ytdown

import (
	"context"

	"github.com/hashicorp/go-multierror"
	"go.uber.org/zap"
)

// A ResolvedStream is the winning download candidate of one resolution call.
type ResolvedStream struct {
	DownloadURL string
	Title       string
	Quality     string
	MimeType    string
	Provider    ProviderSpec
}

// Resolver walks an ordered provider stack until one yields a downloadable
// stream. The walk is strictly sequential: stack order is preference order,
// and at most one provider request is in flight per resolution call.
type Resolver struct {
	client *Client
	store  TemplateStore
	log    *zap.SugaredLogger
}

func NewResolver(client *Client, store TemplateStore) *Resolver {
	if client == nil {
		client = NewClient()
	}
	if store == nil {
		store = NoStore{}
	}
	return &Resolver{
		client: client,
		store:  store,
		log:    zap.S().Named("resolver"),
	}
}

// FetchBestStream resolves id against the full provider stack, optionally
// fronted by a one-shot template override.
func (r *Resolver) FetchBestStream(ctx context.Context, id VideoID, override string) (*ResolvedStream, error) {
	return r.fetchFromStack(ctx, id, BuildProviderStack(r.store, override))
}

// FetchFromTemplate resolves id against exactly one provider template,
// bypassing the built-in stack. Used for diagnostic provider checks. The
// template must already be normalized.
func (r *Resolver) FetchFromTemplate(ctx context.Context, id VideoID, template string) (*ResolvedStream, error) {
	provider := ProviderSpec{Label: "custom (temporary)", Template: template}
	return r.fetchFromStack(ctx, id, []ProviderSpec{provider})
}

func (r *Resolver) fetchFromStack(ctx context.Context, id VideoID, providers []ProviderSpec) (*ResolvedStream, error) {
	var failures []ProviderFailure
	var agg *multierror.Error

	for _, provider := range providers {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		resolved, err := r.tryProvider(ctx, provider, id)
		if err == nil {
			r.log.Infow("provider succeeded",
				"provider", provider.Name(), "quality", resolved.Quality)
			return resolved, nil
		}

		r.log.Warnw("provider failed", "provider", provider.Name(), "error", err)
		failures = append(failures, ProviderFailure{Provider: provider.Name(), Reason: err})
		agg = multierror.Append(agg, multierror.Prefix(err, provider.Name()+":"))
	}

	if len(failures) > 0 {
		return nil, &AllProvidersError{Failures: failures, wrapped: agg.ErrorOrNil()}
	}
	return nil, ErrNoProviders
}

// tryProvider queries one provider and selects its best progressive stream,
// falling back to the local helper's direct-download endpoint when the stream
// list had nothing usable.
func (r *Resolver) tryProvider(ctx context.Context, provider ProviderSpec, id VideoID) (*ResolvedStream, error) {
	payload, endpoint, err := r.client.RequestStream(ctx, provider, id)
	if err != nil {
		return nil, err
	}
	r.log.Debugw("got stream list", "endpoint", endpoint, "streams", len(payload.VideoStreams))

	var candidates []StreamCandidate
	for _, ps := range payload.VideoStreams {
		c := ps.Candidate()
		if c.Kind == StreamProgressive && c.Eligible() {
			candidates = append(candidates, c)
		}
	}

	if len(candidates) == 0 {
		if provider.IsLocalHelper() {
			if resolved := r.tryDirectDownload(ctx, provider, id); resolved != nil {
				return resolved, nil
			}
		}
		return nil, ErrNoEligibleStreams
	}

	SortCandidates(candidates)
	best := candidates[0]

	return &ResolvedStream{
		DownloadURL: best.URL,
		Title:       payload.Title,
		Quality:     best.QualityLabel(),
		MimeType:    best.MimeType,
		Provider:    provider,
	}, nil
}

// tryDirectDownload is best-effort: any failure just means this provider is
// given up on, so it only logs.
func (r *Resolver) tryDirectDownload(ctx context.Context, provider ProviderSpec, id VideoID) *ResolvedStream {
	payload, err := r.client.RequestDirectDownload(ctx, provider, id)
	if err != nil {
		r.log.Debugw("direct download attempt failed", "provider", provider.Name(), "error", err)
		return nil
	}
	if !payload.Success || payload.DownloadURL == "" || IsManifestURL(payload.DownloadURL) {
		r.log.Debugw("direct download unusable", "provider", provider.Name())
		return nil
	}

	quality := payload.Quality
	if quality == "" {
		quality = "unknown"
	}
	return &ResolvedStream{
		DownloadURL: payload.DownloadURL,
		Title:       payload.Title,
		Quality:     quality,
		MimeType:    "video/mp4",
		Provider:    provider,
	}
}
