// Package settings is the persisted configuration of the resolver: a single
// user-chosen provider template override, stored in a bbolt file. The
// resolution path only ever reads it, and reads never fail: a missing or
// malformed value just means "no override".
package settings

import (
	"strings"

	"go.etcd.io/bbolt"
	"go.uber.org/zap"

	"github.com/ytdown/ytdown"
)

var Buckets = struct {
	Settings []byte
}{
	Settings: []byte("settings"),
}

var Keys = struct {
	ProviderTemplate []byte
}{
	ProviderTemplate: []byte("stream_provider_template"),
}

type Store struct {
	db  *bbolt.DB
	log *zap.SugaredLogger
}

var _ ytdown.TemplateStore = (*Store)(nil)

func Open(path string) (*Store, error) {
	db, err := bbolt.Open(path, 0600, nil)
	if err != nil {
		return nil, err
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(Buckets.Settings)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db, log: zap.S().Named("settings")}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Template returns the persisted override, normalized with legacy tolerance:
// values saved before the placeholder format existed are bare API base URLs
// and get the placeholder appended. Any read failure is reported as absence.
func (s *Store) Template() (string, bool) {
	var raw string
	err := s.db.View(func(tx *bbolt.Tx) error {
		if value := tx.Bucket(Buckets.Settings).Get(Keys.ProviderTemplate); value != nil {
			raw = string(value)
		}
		return nil
	})
	if err != nil {
		s.log.Warnw("failed to read provider template", "error", err)
		return "", false
	}
	return ytdown.NormalizeTemplate(raw, true)
}

// SetTemplate persists a new override. The raw value must normalize under the
// strict rule; legacy tolerance is a read-side concession only.
func (s *Store) SetTemplate(raw string) error {
	normalized, ok := ytdown.NormalizeTemplate(raw, false)
	if !ok {
		return ytdown.ErrTemplateMissingPlaceholder
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(Buckets.Settings).Put(Keys.ProviderTemplate, []byte(strings.TrimSpace(normalized)))
	})
}

// ClearTemplate removes the persisted override.
func (s *Store) ClearTemplate() error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(Buckets.Settings).Delete(Keys.ProviderTemplate)
	})
}
