// Package history keeps an audit log of every servo command in SQLite.
package history

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/teslashibe/markerservo/pkg/pipeline"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const (
	// MemoryPath opens a private in-memory database.
	MemoryPath = ":memory:"

	DefaultLimit = 50
	MaxLimit     = 1000
)

var ErrClosed = errors.New("history: store closed")

// CommandRecord is the persisted form of one transition.
type CommandRecord struct {
	ID        string    `gorm:"primaryKey;size:36" json:"id"`
	RunID     string    `gorm:"index;size:36" json:"run_id"`
	Seq       uint64    `json:"seq"`
	Command   string    `gorm:"size:16" json:"command"`
	Angle     int       `json:"angle"`
	MarkerIDs string    `json:"marker_ids"` // comma separated
	Delivered bool      `json:"delivered"`
	Error     string    `json:"error,omitempty"`
	At        time.Time `gorm:"index" json:"at"`
}

// IDs parses MarkerIDs back into integers, skipping malformed entries.
func (r CommandRecord) IDs() []int {
	if r.MarkerIDs == "" {
		return nil
	}
	parts := strings.Split(r.MarkerIDs, ",")
	ids := make([]int, 0, len(parts))
	for _, p := range parts {
		id, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	return ids
}

func joinIDs(ids []int) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.Itoa(id)
	}
	return strings.Join(parts, ",")
}

// Store persists command records. Safe for concurrent use.
type Store struct {
	db     *gorm.DB
	path   string
	logger *slog.Logger
}

// Open opens (creating if needed) the SQLite database at path and migrates
// the schema.
func Open(path string, log *slog.Logger) (*Store, error) {
	if path == "" {
		path = MemoryPath
	}
	if log == nil {
		log = slog.Default()
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		SkipDefaultTransaction: true,
		Logger:                 logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("history: open %s: %w", path, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("history: %w", err)
	}
	// Every pooled connection to :memory: would be its own database
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(&CommandRecord{}); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("history: migrate: %w", err)
	}

	log.Info("command history opened", "path", path)
	return &Store{db: db, path: path, logger: log}, nil
}

// Record stores a transition. It implements pipeline.Sink.
func (s *Store) Record(ctx context.Context, t pipeline.Transition) error {
	rec := CommandRecord{
		ID:        uuid.NewString(),
		RunID:     t.RunID,
		Seq:       t.Seq,
		Command:   t.Command.String(),
		Angle:     t.Command.Angle(),
		MarkerIDs: joinIDs(t.MarkerIDs),
		Delivered: t.Delivered(),
		Error:     t.ErrorText(),
		At:        t.At.UTC(),
	}
	if err := s.db.WithContext(ctx).Create(&rec).Error; err != nil {
		return fmt.Errorf("history: record: %w", err)
	}
	return nil
}

// Recent returns up to limit records, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]CommandRecord, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}

	var recs []CommandRecord
	err := s.db.WithContext(ctx).
		Order("at desc").
		Order("seq desc").
		Limit(limit).
		Find(&recs).Error
	if err != nil {
		return nil, fmt.Errorf("history: query: %w", err)
	}
	return recs, nil
}

// Count returns the number of stored records.
func (s *Store) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.WithContext(ctx).Model(&CommandRecord{}).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("history: count: %w", err)
	}
	return n, nil
}

// Path returns the database location.
func (s *Store) Path() string {
	return s.path
}

// Close releases the database.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	if err := sqlDB.Close(); err != nil {
		return fmt.Errorf("history: close: %w", err)
	}
	s.logger.Info("command history closed", "path", s.path)
	return nil
}

var _ pipeline.Sink = (*Store)(nil)
