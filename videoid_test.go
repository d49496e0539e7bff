package ytdown

import (
	"testing"

	assert_ "github.com/stretchr/testify/assert"
)

func TestExtractVideoID(t *testing.T) {
	assert := assert_.New(t)

	for _, tc := range []struct {
		name  string
		input string
		want  string
		ok    bool
	}{
		{"raw id", "dQw4w9WgXcQ", "dQw4w9WgXcQ", true},
		{"raw id with surrounding space", "  dQw4w9WgXcQ\n", "dQw4w9WgXcQ", true},
		{"watch url", "https://www.youtube.com/watch?v=dQw4w9WgXcQ&t=10", "dQw4w9WgXcQ", true},
		{"watch url without scheme host", "/watch?v=dQw4w9WgXcQ", "dQw4w9WgXcQ", true},
		{"short link", "https://youtu.be/dQw4w9WgXcQ", "dQw4w9WgXcQ", true},
		{"short link with extra path", "https://youtu.be/dQw4w9WgXcQ/extra", "dQw4w9WgXcQ", true},
		{"shorts url", "https://www.youtube.com/shorts/dQw4w9WgXcQ", "dQw4w9WgXcQ", true},
		{"embed url", "https://www.youtube.com/embed/dQw4w9WgXcQ", "dQw4w9WgXcQ", true},
		{"query param with junk", "https://www.youtube.com/watch?v=dQw4w9WgXcQ%21", "dQw4w9WgXcQ", true},
		{"not a url", "not a url at all", "", false},
		{"empty", "", "", false},
		{"whitespace only", "   ", "", false},
		{"id too short", "abc123", "", false},
		{"id too long", "dQw4w9WgXcQQQ", "", false},
		{"unrelated url", "https://example.com/some/page", "", false},
		{"shorts with bad id", "https://www.youtube.com/shorts/nope", "", false},
	} {
		t.Run(tc.name, func(t *testing.T) {
			id, ok := ExtractVideoID(tc.input)
			assert.Equal(tc.ok, ok)
			assert.Equal(tc.want, id.String())
		})
	}
}

func TestParseVideoID(t *testing.T) {
	assert := assert_.New(t)

	id, err := ParseVideoID("abc-DEF_123")
	assert.NoError(err)
	assert.Equal("abc-DEF_123", id.String())
	assert.Equal("https://www.youtube.com/watch?v=abc-DEF_123", id.WatchURL())

	for _, bad := range []string{"", "short", "exactly12chars", "has spaces!", "dQw4w9WgXc@"} {
		_, err := ParseVideoID(bad)
		assert.ErrorIs(err, ErrInvalidReference, "input %q", bad)
	}
}
