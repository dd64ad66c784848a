// Package database manages the transcript store, a SQLite database through
// GORM with a single append-only table of spoken words.
package database

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Transcript is one recognized word with its absolute timestamp and the
// diarization speaker label it was attributed to.
type Transcript struct {
	TS      time.Time `gorm:"column:ts;index"`
	Speaker int       `gorm:"column:speaker"`
	Word    string    `gorm:"column:word"`
}

// TableName keeps the historical table name.
func (Transcript) TableName() string {
	return "speech"
}

// DB wraps the GORM connection.
type DB struct {
	*gorm.DB
	log *slog.Logger
}

// Open opens (or creates) the SQLite database at path and migrates the
// schema. Use ":memory:" for tests.
func Open(path string, log *slog.Logger) (*DB, error) {
	if log == nil {
		log = slog.Default()
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger:                 logger.Default.LogMode(logger.Silent),
		SkipDefaultTransaction: true,
	})
	if err != nil {
		return nil, fmt.Errorf("opening database %s: %w", path, err)
	}
	if err := db.AutoMigrate(&Transcript{}); err != nil {
		return nil, fmt.Errorf("migrating database: %w", err)
	}

	return &DB{DB: db, log: log}, nil
}

// Close releases the underlying connection.
func (d *DB) Close() error {
	sqlDB, err := d.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// TranscriptStore reads and writes the speech table.
type TranscriptStore struct {
	db *DB
}

// NewTranscriptStore returns a store over db.
func NewTranscriptStore(db *DB) *TranscriptStore {
	return &TranscriptStore{db: db}
}

// ReplaceRange deletes every word in [from, to) and inserts words in one
// transaction. Re-fetching a recognition result is idempotent.
func (s *TranscriptStore) ReplaceRange(from, to time.Time, words []Transcript) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("ts >= ? AND ts < ?", from, to).Delete(&Transcript{}).Error; err != nil {
			return fmt.Errorf("clearing transcript range: %w", err)
		}
		if len(words) == 0 {
			return nil
		}
		if err := tx.CreateInBatches(words, 500).Error; err != nil {
			return fmt.Errorf("inserting transcripts: %w", err)
		}
		return nil
	})
}

// Query returns the words spoken in [from, to) ordered by timestamp.
func (s *TranscriptStore) Query(from, to time.Time) ([]Transcript, error) {
	var words []Transcript
	err := s.db.
		Where("ts >= ? AND ts < ?", from, to).
		Order("ts").
		Find(&words).Error
	if err != nil {
		return nil, fmt.Errorf("querying transcripts: %w", err)
	}
	return words, nil
}
