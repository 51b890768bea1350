package store

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"sync"

	_ "github.com/mattn/go-sqlite3"

	"github.com/flalad/chat-room/internal/models"
)

// SQLiteStore persists the message log in a local SQLite database.
type SQLiteStore struct {
	db        *sql.DB
	mu        sync.Mutex // serializes appends so seq order matches ID order
	retention int
}

// NewSQLiteStore creates a new SQLite store.
// If dbPath is empty, defaults to "./data/chat.db".
func NewSQLiteStore(ctx context.Context, dbPath string, retention int) (*SQLiteStore, error) {
	if dbPath == "" {
		dbPath = "./data/chat.db"
	}
	if retention <= 0 {
		retention = DefaultRetention
	}

	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, err
	}

	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}

	store := &SQLiteStore{db: db, retention: retention}

	if err := store.initSchema(ctx); err != nil {
		return nil, err
	}

	return store, nil
}

// initSchema creates tables if they don't exist.
func (s *SQLiteStore) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS messages (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT UNIQUE NOT NULL,
		kind TEXT NOT NULL DEFAULT 'text',
		username TEXT,
		content TEXT,
		file_url TEXT,
		file_name TEXT,
		file_mime TEXT,
		file_size INTEGER,
		file_backend TEXT,
		created_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_messages_created_at ON messages(created_at);
	`

	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Ping checks the database connection.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Append stamps the message and inserts it, then trims rows beyond the
// retention cap.
func (s *SQLiteStore) Append(ctx context.Context, msg *models.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stamp(msg)

	var fileURL, fileName, fileMime, fileBackend *string
	var fileSize *int64
	if msg.File != nil {
		fileURL = &msg.File.URL
		fileName = &msg.File.Name
		fileMime = &msg.File.MimeType
		fileSize = &msg.File.Size
		fileBackend = &msg.File.Backend
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO messages (id, kind, username, content, file_url, file_name, file_mime, file_size, file_backend, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, msg.ID, msg.Kind, msg.Author, msg.Content, fileURL, fileName, fileMime, fileSize, fileBackend, msg.CreatedAt)
	if err != nil {
		return err
	}

	// Best-effort retention trim; old history is not an audit log.
	_, _ = s.db.ExecContext(ctx, `
		DELETE FROM messages
		WHERE seq <= (SELECT MAX(seq) FROM messages) - ?
	`, s.retention)

	return nil
}

// Recent returns the newest limit messages, oldest first.
func (s *SQLiteStore) Recent(ctx context.Context, limit int) ([]models.Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, kind, username, content, file_url, file_name, file_mime, file_size, file_backend, created_at
		FROM messages
		ORDER BY seq DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	messages, err := scanSQLMessages(rows)
	if err != nil {
		return nil, err
	}
	reverseMessages(messages)
	return messages, nil
}

// Delta returns messages strictly after afterID, oldest first. An unknown
// cursor degrades to Recent.
func (s *SQLiteStore) Delta(ctx context.Context, afterID string, limit int) ([]models.Message, error) {
	if afterID == "" {
		return s.Recent(ctx, limit)
	}

	var afterSeq int64
	err := s.db.QueryRowContext(ctx, `SELECT seq FROM messages WHERE id = ?`, afterID).Scan(&afterSeq)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return s.Recent(ctx, limit)
		}
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, kind, username, content, file_url, file_name, file_mime, file_size, file_backend, created_at
		FROM messages
		WHERE seq > ?
		ORDER BY seq ASC
		LIMIT ?
	`, afterSeq, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanSQLMessages(rows)
}

// Clear purges all messages and returns the number removed.
func (s *SQLiteStore) Clear(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM messages`)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// scanSQLMessages reads message rows produced by the shared column list.
func scanSQLMessages(rows *sql.Rows) ([]models.Message, error) {
	var messages []models.Message
	for rows.Next() {
		var msg models.Message
		var author, content sql.NullString
		var fileURL, fileName, fileMime, fileBackend sql.NullString
		var fileSize sql.NullInt64

		err := rows.Scan(
			&msg.ID,
			&msg.Kind,
			&author,
			&content,
			&fileURL,
			&fileName,
			&fileMime,
			&fileSize,
			&fileBackend,
			&msg.CreatedAt,
		)
		if err != nil {
			return nil, err
		}

		msg.Author = author.String
		msg.Content = content.String
		if fileURL.Valid {
			msg.File = &models.FileInfo{
				URL:      fileURL.String,
				Name:     fileName.String,
				MimeType: fileMime.String,
				Size:     fileSize.Int64,
				Backend:  fileBackend.String,
			}
		}
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

func reverseMessages(msgs []models.Message) {
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
}
