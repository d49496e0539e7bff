// Package history records completed downloads so the CLI can list what was
// fetched, when, and through which provider. It never stores resolved stream
// URLs, which expire quickly and are re-resolved on demand.
package history

import (
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"moul.io/zapgorm2"

	"github.com/ytdown/ytdown"
)

type Record struct {
	ID        string `gorm:"primaryKey"`
	VideoID   string `gorm:"index"`
	Filename  string
	Provider  string
	Quality   string
	CreatedAt time.Time
}

type Store struct {
	db *gorm.DB
}

func Open(path string, logger *zap.Logger) (*Store, error) {
	gormLogger := zapgorm2.New(logger.Named("gorm"))
	gormLogger.SetAsDefault()
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{Logger: gormLogger})
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&Record{}); err != nil {
		return nil, err
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Add records one completed download.
func (s *Store) Add(id ytdown.VideoID, receipt *ytdown.DownloadReceipt) error {
	return s.db.Create(&Record{
		ID:       uuid.NewString(),
		VideoID:  id.String(),
		Filename: receipt.Filename,
		Provider: receipt.Provider,
		Quality:  receipt.Quality,
	}).Error
}

// List returns the most recent records, newest first.
func (s *Store) List(limit int) ([]Record, error) {
	var records []Record
	query := s.db.Order("created_at DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&records).Error; err != nil {
		return nil, err
	}
	return records, nil
}
