// Package history persists search and download activity to SQLite so the
// CLI can show what was fetched, when, and from where.
package history

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite" // SQLite driver

	"github.com/shelfstream/shelfstream/internal/books"
)

//go:embed migrations/*.sql
var embedMigrations embed.FS

// SearchEvent is one recorded search.
type SearchEvent struct {
	ID          string    `json:"id"`
	Query       string    `json:"query"`
	Platforms   []string  `json:"platforms"`
	ResultCount int       `json:"resultCount"`
	Error       string    `json:"error,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

// DownloadEvent is one recorded download attempt.
type DownloadEvent struct {
	ID        string    `json:"id"`
	Platform  string    `json:"platform"`
	BookID    string    `json:"bookId,omitempty"`
	Title     string    `json:"title,omitempty"`
	FilePath  string    `json:"filePath,omitempty"`
	FileSize  int64     `json:"fileSize"`
	Success   bool      `json:"success"`
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// Store is the SQLite-backed history store.
type Store struct {
	conn *sql.DB
	path string
}

// Open opens (creating if needed) the history database at path and runs
// pending migrations.
func Open(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create history directory: %w", err)
	}

	dsn := fmt.Sprintf("%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)", path)
	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open history database: %w", err)
	}

	// SQLite only supports one writer.
	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)

	if err := conn.PingContext(context.Background()); err != nil {
		conn.Close()
		return nil, fmt.Errorf("ping history database: %w", err)
	}

	store := &Store{conn: conn, path: path}
	if err := store.migrate(); err != nil {
		conn.Close()
		return nil, err
	}
	return store, nil
}

func (s *Store) migrate() error {
	goose.SetBaseFS(embedMigrations)
	goose.SetLogger(goose.NopLogger())

	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("set goose dialect: %w", err)
	}
	if err := goose.Up(s.conn, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.conn != nil {
		return s.conn.Close()
	}
	return nil
}

// RecordSearch stores a completed search and returns its event ID.
func (s *Store) RecordSearch(ctx context.Context, query string, platforms []books.Platform, resultCount int, searchErr error) (string, error) {
	id := uuid.NewString()

	names := make([]string, len(platforms))
	for i, platform := range platforms {
		names[i] = string(platform)
	}

	errText := ""
	if searchErr != nil {
		errText = searchErr.Error()
	}

	_, err := s.conn.ExecContext(ctx,
		`INSERT INTO search_events (id, query, platforms, result_count, error, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		id, query, strings.Join(names, ","), resultCount, nullable(errText), time.Now().UTC())
	if err != nil {
		return "", fmt.Errorf("record search: %w", err)
	}
	return id, nil
}

// RecordDownload stores a download outcome and returns its event ID.
func (s *Store) RecordDownload(ctx context.Context, info books.DownloadInfo, title string, result *books.DownloadResult) (string, error) {
	id := uuid.NewString()

	var filePath, errText string
	var fileSize int64
	success := false
	if result != nil {
		filePath = result.FilePath
		fileSize = result.Size
		success = result.Success
		errText = result.Error
	}

	_, err := s.conn.ExecContext(ctx,
		`INSERT INTO download_events (id, platform, book_id, title, file_path, file_size, success, error, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, string(info.Platform), nullable(info.BookID), nullable(title),
		nullable(filePath), fileSize, boolToInt(success), nullable(errText), time.Now().UTC())
	if err != nil {
		return "", fmt.Errorf("record download: %w", err)
	}
	return id, nil
}

// RecentSearches returns the latest searches, newest first.
func (s *Store) RecentSearches(ctx context.Context, limit int) ([]SearchEvent, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.conn.QueryContext(ctx,
		`SELECT id, query, platforms, result_count, COALESCE(error, ''), created_at
		 FROM search_events ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list searches: %w", err)
	}
	defer rows.Close()

	var events []SearchEvent
	for rows.Next() {
		var ev SearchEvent
		var platforms string
		if err := rows.Scan(&ev.ID, &ev.Query, &platforms, &ev.ResultCount, &ev.Error, &ev.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan search event: %w", err)
		}
		if platforms != "" {
			ev.Platforms = strings.Split(platforms, ",")
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

// RecentDownloads returns the latest download attempts, newest first.
func (s *Store) RecentDownloads(ctx context.Context, limit int) ([]DownloadEvent, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.conn.QueryContext(ctx,
		`SELECT id, platform, COALESCE(book_id, ''), COALESCE(title, ''), COALESCE(file_path, ''),
		        file_size, success, COALESCE(error, ''), created_at
		 FROM download_events ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list downloads: %w", err)
	}
	defer rows.Close()

	var events []DownloadEvent
	for rows.Next() {
		var ev DownloadEvent
		var success int
		if err := rows.Scan(&ev.ID, &ev.Platform, &ev.BookID, &ev.Title, &ev.FilePath,
			&ev.FileSize, &success, &ev.Error, &ev.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan download event: %w", err)
		}
		ev.Success = success != 0
		events = append(events, ev)
	}
	return events, rows.Err()
}

// Prune deletes events older than the retention window.
func (s *Store) Prune(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-olderThan)

	var total int64
	for _, table := range []string{"search_events", "download_events"} {
		res, err := s.conn.ExecContext(ctx,
			fmt.Sprintf("DELETE FROM %s WHERE created_at < ?", table), cutoff)
		if err != nil {
			return total, fmt.Errorf("prune %s: %w", table, err)
		}
		if n, err := res.RowsAffected(); err == nil {
			total += n
		}
	}
	return total, nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
