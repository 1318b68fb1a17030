// Package archive keeps the durable record of every track ever downloaded,
// backed by SQLite. Jobs are ephemeral; this is what makes a re-run of the same
// playlist skip work it already did.
package archive

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"cadence/internal/config"
)

// Entry is one archived track.
type Entry struct {
	ID           int64
	TrackID      string
	Title        string
	Artist       string
	FilePath     string
	DownloadedAt time.Time
}

// Store manages archive persistence backed by SQLite.
type Store struct {
	db   *sql.DB
	path string
}

const schema = `
CREATE TABLE IF NOT EXISTS archive_tracks (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    track_id TEXT NOT NULL UNIQUE,
    title TEXT,
    artist TEXT,
    file_path TEXT,
    downloaded_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_archive_downloaded_at ON archive_tracks(downloaded_at);
`

// Open initializes or connects to the archive database.
func Open(cfg *config.Config) (*Store, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}

	dbPath := filepath.Join(cfg.Paths.LogDir, "archive.db")
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &Store{db: db, path: dbPath}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Contains reports whether a track has already been archived.
func (s *Store) Contains(ctx context.Context, trackID string) (bool, error) {
	row := s.db.QueryRowContext(ctx, `SELECT 1 FROM archive_tracks WHERE track_id = ?`, trackID)
	var one int
	err := row.Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("archive lookup: %w", err)
	}
	return true, nil
}

// Record inserts or refreshes an archive entry for a track.
func (s *Store) Record(ctx context.Context, entry Entry) error {
	if entry.TrackID == "" {
		return errors.New("track id is required")
	}
	stamp := entry.DownloadedAt
	if stamp.IsZero() {
		stamp = time.Now().UTC()
	}
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO archive_tracks (track_id, title, artist, file_path, downloaded_at)
         VALUES (?, ?, ?, ?, ?)
         ON CONFLICT(track_id) DO UPDATE SET
             title = excluded.title, artist = excluded.artist,
             file_path = excluded.file_path, downloaded_at = excluded.downloaded_at`,
		entry.TrackID,
		nullableString(entry.Title),
		nullableString(entry.Artist),
		nullableString(entry.FilePath),
		stamp.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("record track: %w", err)
	}
	return nil
}

// List returns all archived tracks ordered by download time.
func (s *Store) List(ctx context.Context) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, track_id, title, artist, file_path, downloaded_at FROM archive_tracks ORDER BY downloaded_at`)
	if err != nil {
		return nil, fmt.Errorf("list archive: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// Remove deletes a track from the archive so it can be downloaded again.
func (s *Store) Remove(ctx context.Context, trackID string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM archive_tracks WHERE track_id = ?`, trackID)
	if err != nil {
		return false, fmt.Errorf("remove track: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected > 0, nil
}

// Count returns the number of archived tracks.
func (s *Store) Count(ctx context.Context) (int, error) {
	row := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM archive_tracks`)
	var count int
	if err := row.Scan(&count); err != nil {
		return 0, fmt.Errorf("count archive: %w", err)
	}
	return count, nil
}

func scanEntry(scanner interface{ Scan(dest ...any) error }) (Entry, error) {
	var (
		id       int64
		trackID  string
		title    sql.NullString
		artist   sql.NullString
		filePath sql.NullString
		stampRaw string
	)
	if err := scanner.Scan(&id, &trackID, &title, &artist, &filePath, &stampRaw); err != nil {
		return Entry{}, err
	}
	entry := Entry{
		ID:       id,
		TrackID:  trackID,
		Title:    title.String,
		Artist:   artist.String,
		FilePath: filePath.String,
	}
	if stamp, err := time.Parse(time.RFC3339Nano, stampRaw); err == nil {
		entry.DownloadedAt = stamp
	}
	return entry, nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}
