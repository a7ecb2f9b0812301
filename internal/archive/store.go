// Package archive persists completed captures in SQLite so finished
// meetings remain queryable after their sessions are gone.
package archive

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/meetscribe/meetscribe/internal/platform"
)

// ErrNotFound is returned when no archived capture matches.
var ErrNotFound = errors.New("archived capture not found")

// Record is one completed capture.
type Record struct {
	SessionID       string            `json:"session_id"`
	MeetingID       string            `json:"meeting_id"`
	Platform        platform.Platform `json:"platform"`
	VideoPath       string            `json:"video_path,omitempty"`
	AudioPath       string            `json:"audio_path,omitempty"`
	DurationSeconds float64           `json:"duration_seconds"`
	FrameCount      int               `json:"frame_count"`
	SegmentCount    int               `json:"segment_count"`
	Transcript      string            `json:"transcript"`
	Recovered       bool              `json:"recovered"`
	EndedAt         time.Time         `json:"ended_at"`
	CreatedAt       time.Time         `json:"created_at"`
}

// Store wraps the SQLite connection holding the captures table.
type Store struct {
	db     *sql.DB
	path   string
	logger *slog.Logger
}

// Open opens (creating if needed) the archive database at path.
func Open(path string) (*Store, error) {
	logger := slog.Default().With("component", "archive")

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	connStr := fmt.Sprintf("file:%s?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000&_foreign_keys=ON", path)
	db, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := &Store{db: db, path: path, logger: logger}
	if err := s.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	logger.Info("Archive opened", "path", path)
	return s, nil
}

func (s *Store) initSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS captures (
			session_id TEXT PRIMARY KEY,
			meeting_id TEXT NOT NULL,
			platform TEXT NOT NULL,
			video_path TEXT NOT NULL DEFAULT '',
			audio_path TEXT NOT NULL DEFAULT '',
			duration_seconds REAL NOT NULL,
			frame_count INTEGER NOT NULL DEFAULT 0,
			segment_count INTEGER NOT NULL DEFAULT 0,
			transcript TEXT NOT NULL DEFAULT '',
			recovered INTEGER NOT NULL DEFAULT 0,
			ended_at INTEGER NOT NULL,
			created_at INTEGER NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_captures_meeting ON captures(meeting_id, ended_at);
		CREATE INDEX IF NOT EXISTS idx_captures_ended_at ON captures(ended_at);
	`)
	return err
}

// Insert adds a completed capture.
func (s *Store) Insert(ctx context.Context, rec *Record) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	if rec.EndedAt.IsZero() {
		rec.EndedAt = rec.CreatedAt
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO captures (
			session_id, meeting_id, platform, video_path, audio_path,
			duration_seconds, frame_count, segment_count, transcript,
			recovered, ended_at, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		rec.SessionID,
		rec.MeetingID,
		string(rec.Platform),
		rec.VideoPath,
		rec.AudioPath,
		rec.DurationSeconds,
		rec.FrameCount,
		rec.SegmentCount,
		rec.Transcript,
		rec.Recovered,
		rec.EndedAt.Unix(),
		rec.CreatedAt.Unix(),
	)
	return err
}

// Get retrieves an archived capture by session id.
func (s *Store) Get(ctx context.Context, sessionID string) (*Record, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT session_id, meeting_id, platform, video_path, audio_path,
			   duration_seconds, frame_count, segment_count, transcript,
			   recovered, ended_at, created_at
		FROM captures WHERE session_id = ?
	`, sessionID)

	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, sessionID)
	}
	return rec, err
}

// List returns up to limit archived captures, most recently ended first.
// A non-empty meetingID restricts the listing to that meeting.
func (s *Store) List(ctx context.Context, meetingID string, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 100
	}

	query := `
		SELECT session_id, meeting_id, platform, video_path, audio_path,
			   duration_seconds, frame_count, segment_count, transcript,
			   recovered, ended_at, created_at
		FROM captures`
	args := []any{}
	if meetingID != "" {
		query += " WHERE meeting_id = ?"
		args = append(args, meetingID)
	}
	query += " ORDER BY ended_at DESC, session_id LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, *rec)
	}
	return records, rows.Err()
}

// Delete removes an archived capture. Artifacts on disk are untouched.
func (s *Store) Delete(ctx context.Context, sessionID string) error {
	result, err := s.db.ExecContext(ctx, "DELETE FROM captures WHERE session_id = ?", sessionID)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, sessionID)
	}
	return nil
}

// Health checks the database connection.
func (s *Store) Health(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *Store) Close() error {
	s.logger.Info("Closing archive")
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*Record, error) {
	var rec Record
	var p string
	var recovered int
	var endedAt, createdAt int64

	err := row.Scan(
		&rec.SessionID,
		&rec.MeetingID,
		&p,
		&rec.VideoPath,
		&rec.AudioPath,
		&rec.DurationSeconds,
		&rec.FrameCount,
		&rec.SegmentCount,
		&rec.Transcript,
		&recovered,
		&endedAt,
		&createdAt,
	)
	if err != nil {
		return nil, err
	}

	rec.Platform = platform.Platform(p)
	rec.Recovered = recovered != 0
	rec.EndedAt = time.Unix(endedAt, 0).UTC()
	rec.CreatedAt = time.Unix(createdAt, 0).UTC()
	return &rec, nil
}
