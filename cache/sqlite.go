package cache

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/scipunch/feedsorter/item"
)

//go:embed schema.sql
var schemaSQL string

// SQLiteStore keeps cache entries in a sqlite database
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteStore opens (and creates if needed) the cache database at the given path
func NewSQLiteStore(dbPath string, opts ...Option) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open cache database: %w", err)
	}

	s, err := NewSQLiteStoreFromDB(db, opts...)
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// NewSQLiteStoreFromDB initializes the cache schema on an already opened database
func NewSQLiteStoreFromDB(db *sql.DB, opts ...Option) (*SQLiteStore, error) {
	// sqlite allows one writer; a single connection serialises writes per process
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schemaSQL); err != nil {
		return nil, fmt.Errorf("failed to initialize cache schema: %w", err)
	}

	o := buildOptions(opts)
	return &SQLiteStore{db: db, now: o.now}, nil
}

// Get returns the cached entry for a source
func (s *SQLiteStore) Get(ctx context.Context, id string) (Entry, bool, error) {
	var entry Entry

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return entry, false, fmt.Errorf("%w: begin read: %w", ErrStoreUnavailable, err)
	}
	defer tx.Rollback()

	var writtenAt int64
	err = tx.QueryRowContext(ctx,
		"SELECT etag, written_at FROM feed_cache WHERE source_id = ?", id,
	).Scan(&entry.ETag, &writtenAt)
	if err == sql.ErrNoRows {
		return entry, false, nil
	}
	if err != nil {
		slog.Warn("feed cache read error", "error", err, "source", truncate(id, 50))
		return entry, false, fmt.Errorf("%w: read entry: %w", ErrStoreUnavailable, err)
	}
	entry.WrittenAt = time.UnixMilli(writtenAt).UTC()

	rows, err := tx.QueryContext(ctx, `
		SELECT published_at, author, text, link FROM feed_cache_item
		WHERE source_id = ? ORDER BY position
	`, id)
	if err != nil {
		return entry, false, fmt.Errorf("%w: read items: %w", ErrStoreUnavailable, err)
	}
	defer rows.Close()

	entry.Items = []item.Item{}
	for rows.Next() {
		var it item.Item
		var publishedAt int64
		if err := rows.Scan(&publishedAt, &it.Author, &it.Text, &it.Link); err != nil {
			return entry, false, fmt.Errorf("%w: scan item: %w", ErrStoreUnavailable, err)
		}
		it.Timestamp = time.UnixMilli(publishedAt).UTC()
		entry.Items = append(entry.Items, it)
	}
	if err := rows.Err(); err != nil {
		return entry, false, fmt.Errorf("%w: iterate items: %w", ErrStoreUnavailable, err)
	}

	return entry, true, nil
}

// Put replaces the cached entry for a source in a single transaction
func (s *SQLiteStore) Put(ctx context.Context, id string, entry Entry) error {
	now := s.now().UnixMilli()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin write: %w", ErrStoreUnavailable, err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT OR REPLACE INTO feed_cache (source_id, etag, written_at)
		VALUES (?, ?, ?)
	`, id, entry.ETag, now); err != nil {
		slog.Warn("feed cache write error", "error", err, "source", truncate(id, 50))
		return fmt.Errorf("%w: write entry: %w", ErrStoreUnavailable, err)
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM feed_cache_item WHERE source_id = ?", id); err != nil {
		return fmt.Errorf("%w: drop items: %w", ErrStoreUnavailable, err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO feed_cache_item (source_id, position, published_at, author, text, link)
		VALUES (?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("%w: prepare items: %w", ErrStoreUnavailable, err)
	}
	defer stmt.Close()

	for i, it := range entry.Items {
		if _, err := stmt.ExecContext(ctx, id, i, it.Timestamp.UnixMilli(), it.Author, it.Text, it.Link); err != nil {
			return fmt.Errorf("%w: write item %d: %w", ErrStoreUnavailable, i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit: %w", ErrStoreUnavailable, err)
	}
	return nil
}

// Touch refreshes the write time of an existing entry. Missing entries are left absent.
func (s *SQLiteStore) Touch(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE feed_cache SET written_at = ? WHERE source_id = ?",
		s.now().UnixMilli(), id,
	)
	if err != nil {
		slog.Warn("feed cache touch error", "error", err, "source", truncate(id, 50))
		return fmt.Errorf("%w: touch entry: %w", ErrStoreUnavailable, err)
	}
	return nil
}

// Age returns how long ago the entry for a source was last written
func (s *SQLiteStore) Age(ctx context.Context, id string) (time.Duration, bool, error) {
	var writtenAt int64
	err := s.db.QueryRowContext(ctx,
		"SELECT written_at FROM feed_cache WHERE source_id = ?", id,
	).Scan(&writtenAt)
	if err == sql.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("%w: read age: %w", ErrStoreUnavailable, err)
	}
	return s.now().Sub(time.UnixMilli(writtenAt)), true, nil
}

// Clear removes all cache entries
func (s *SQLiteStore) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM feed_cache_item"); err != nil {
		return fmt.Errorf("failed to clear cached items: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, "DELETE FROM feed_cache"); err != nil {
		return fmt.Errorf("failed to clear cache entries: %w", err)
	}
	return nil
}

// Stats returns cache statistics
func (s *SQLiteStore) Stats(ctx context.Context) (Stats, error) {
	var stats Stats

	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM feed_cache").Scan(&stats.Entries)
	if err != nil {
		return stats, err
	}

	err = s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM feed_cache_item").Scan(&stats.Items)
	if err != nil {
		return stats, err
	}

	var oldest sql.NullInt64
	err = s.db.QueryRowContext(ctx, "SELECT MIN(written_at) FROM feed_cache").Scan(&oldest)
	if err != nil && err != sql.ErrNoRows {
		return stats, err
	}
	if oldest.Valid && oldest.Int64 > 0 {
		stats.OldestWrite = time.UnixMilli(oldest.Int64).UTC()
	}

	return stats, nil
}

// Close closes the cache database
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
