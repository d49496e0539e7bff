package ytdown

import (
	"net/url"
	"strings"

	"github.com/samber/lo"
)

// TemplatePlaceholder is the token in a provider template that gets replaced
// with the percent-encoded video ID.
const TemplatePlaceholder = "{videoId}"

// A ProviderSpec is one candidate endpoint implementing the stream-list
// contract. Template must contain TemplatePlaceholder to be usable.
type ProviderSpec struct {
	Label    string
	Template string
}

// Name is the display name for user-facing messages and diagnostics.
func (p ProviderSpec) Name() string {
	if p.Label != "" {
		return p.Label
	}
	return p.Template
}

// Endpoint substitutes the percent-encoded id into the template. It errors
// if the template lacks the placeholder.
func (p ProviderSpec) Endpoint(id VideoID) (string, error) {
	if !strings.Contains(p.Template, TemplatePlaceholder) {
		return "", ErrTemplateMissingPlaceholder
	}
	return strings.Replace(p.Template, TemplatePlaceholder, url.QueryEscape(id.String()), 1), nil
}

// IsLocalHelper reports whether the provider is the first-party local helper
// service, which additionally implements the direct-download fallback contract.
func (p ProviderSpec) IsLocalHelper() bool {
	return strings.Contains(p.Template, "localhost") || strings.Contains(p.Template, "127.0.0.1")
}

// DefaultProviders is the built-in provider stack, in priority order. The
// local helper goes first so a running `ytdown serve` always wins over the
// public instances.
var DefaultProviders = []ProviderSpec{
	{Label: "localhost (yt-dlp)", Template: "http://localhost:3500/api/v1/streams/{videoId}"},
	{Label: "piped.video", Template: "https://piped.video/api/v1/streams/{videoId}"},
	{Label: "pipedapi.kavin.rocks", Template: "https://pipedapi.kavin.rocks/api/v1/streams/{videoId}"},
	{Label: "piped.projectsegfau.lt", Template: "https://piped.projectsegfau.lt/api/v1/streams/{videoId}"},
	{Label: "piped.syncpundit.io", Template: "https://piped.syncpundit.io/api/v1/streams/{videoId}"},
}

// NormalizeTemplate validates a raw provider template. A trimmed template
// containing the placeholder is returned unchanged. With allowLegacy set, a
// template without the placeholder (the pre-placeholder settings format, a
// bare API base URL) gets the placeholder appended as a new path segment.
// Anything else is rejected.
func NormalizeTemplate(raw string, allowLegacy bool) (string, bool) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", false
	}
	if strings.Contains(trimmed, TemplatePlaceholder) {
		return trimmed, true
	}
	if allowLegacy {
		return strings.TrimRight(trimmed, "/") + "/" + TemplatePlaceholder, true
	}
	return "", false
}

// A TemplateStore provides the persisted provider template override. Reads
// must not fail: a missing or malformed value is reported as ok == false.
type TemplateStore interface {
	Template() (template string, ok bool)
}

// NoStore is a TemplateStore with no persisted override.
type NoStore struct{}

func (NoStore) Template() (string, bool) { return "", false }

// BuildProviderStack assembles the ordered list of providers to try: the
// one-shot override first, then the persisted override, then the built-in
// defaults. Duplicate templates are dropped, first occurrence wins.
func BuildProviderStack(store TemplateStore, override string) []ProviderSpec {
	if store == nil {
		store = NoStore{}
	}
	var stack []ProviderSpec

	push := func(p ProviderSpec) {
		if !lo.SomeBy(stack, func(existing ProviderSpec) bool { return existing.Template == p.Template }) {
			stack = append(stack, p)
		}
	}

	if tpl, ok := NormalizeTemplate(override, false); ok {
		push(ProviderSpec{Label: "custom (temporary)", Template: tpl})
	}
	if tpl, ok := store.Template(); ok {
		push(ProviderSpec{Label: "custom (saved)", Template: tpl})
	}
	for _, candidate := range DefaultProviders {
		push(candidate)
	}

	return stack
}
