package settings

import (
	"path/filepath"
	"testing"

	assert_ "github.com/stretchr/testify/assert"
	"go.etcd.io/bbolt"

	"github.com/ytdown/ytdown"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "settings.db"))
	if err != nil {
		t.Fatalf("failed to open settings store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestTemplateRoundTrip(t *testing.T) {
	assert := assert_.New(t)
	store := openTestStore(t)

	_, ok := store.Template()
	assert.False(ok)

	assert.NoError(store.SetTemplate("https://example.com/api/{videoId}"))
	tpl, ok := store.Template()
	assert.True(ok)
	assert.Equal("https://example.com/api/{videoId}", tpl)

	assert.NoError(store.ClearTemplate())
	_, ok = store.Template()
	assert.False(ok)
}

func TestSetTemplateRejectsMissingPlaceholder(t *testing.T) {
	assert := assert_.New(t)
	store := openTestStore(t)

	err := store.SetTemplate("https://example.com/api")
	assert.ErrorIs(err, ytdown.ErrTemplateMissingPlaceholder)
	_, ok := store.Template()
	assert.False(ok)
}

// Values persisted before the placeholder format was introduced are bare API
// base URLs; reads normalize them instead of dropping them.
func TestLegacyValueNormalizedOnRead(t *testing.T) {
	assert := assert_.New(t)
	store := openTestStore(t)

	err := store.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(Buckets.Settings).Put(Keys.ProviderTemplate, []byte("https://legacy.example/api/"))
	})
	assert.NoError(err)

	tpl, ok := store.Template()
	assert.True(ok)
	assert.Equal("https://legacy.example/api/{videoId}", tpl)
}
