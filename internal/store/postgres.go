package store

import (
	"context"
	"errors"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/flalad/chat-room/internal/models"
)

// PostgresStore persists the message log in PostgreSQL.
type PostgresStore struct {
	pool      *pgxpool.Pool
	mu        sync.Mutex // serializes appends so seq order matches ID order
	retention int
}

// NewPostgresStore creates a new PostgreSQL store with a connection pool.
func NewPostgresStore(ctx context.Context, databaseURL string, retention int) (*PostgresStore, error) {
	if retention <= 0 {
		retention = DefaultRetention
	}

	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, err
	}

	if err := pool.Ping(ctx); err != nil {
		return nil, err
	}

	store := &PostgresStore{pool: pool, retention: retention}

	if err := store.initSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return store, nil
}

// initSchema creates the messages table if it doesn't exist.
func (s *PostgresStore) initSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS messages (
			seq BIGSERIAL PRIMARY KEY,
			id TEXT UNIQUE NOT NULL,
			kind TEXT NOT NULL DEFAULT 'text',
			username TEXT,
			content TEXT,
			file_url TEXT,
			file_name TEXT,
			file_mime TEXT,
			file_size BIGINT,
			file_backend TEXT,
			created_at TIMESTAMPTZ NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_messages_created_at ON messages(created_at);
	`)
	return err
}

// Close closes the database connection pool.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

// Ping checks the database connection.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Append stamps the message and inserts it, then trims rows beyond the
// retention cap.
func (s *PostgresStore) Append(ctx context.Context, msg *models.Message) error {
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

	_, err := s.pool.Exec(ctx, `
		INSERT INTO messages (id, kind, username, content, file_url, file_name, file_mime, file_size, file_backend, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, msg.ID, msg.Kind, msg.Author, msg.Content, fileURL, fileName, fileMime, fileSize, fileBackend, msg.CreatedAt)
	if err != nil {
		return err
	}

	// Best-effort retention trim; old history is not an audit log.
	_, _ = s.pool.Exec(ctx, `
		DELETE FROM messages
		WHERE seq <= (SELECT MAX(seq) FROM messages) - $1
	`, s.retention)

	return nil
}

// Recent returns the newest limit messages, oldest first.
func (s *PostgresStore) Recent(ctx context.Context, limit int) ([]models.Message, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, kind, username, content, file_url, file_name, file_mime, file_size, file_backend, created_at
		FROM messages
		ORDER BY seq DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	messages, err := scanPgxMessages(rows)
	if err != nil {
		return nil, err
	}
	reverseMessages(messages)
	return messages, nil
}

// Delta returns messages strictly after afterID, oldest first. An unknown
// cursor degrades to Recent.
func (s *PostgresStore) Delta(ctx context.Context, afterID string, limit int) ([]models.Message, error) {
	if afterID == "" {
		return s.Recent(ctx, limit)
	}

	var afterSeq int64
	err := s.pool.QueryRow(ctx, `SELECT seq FROM messages WHERE id = $1`, afterID).Scan(&afterSeq)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return s.Recent(ctx, limit)
		}
		return nil, err
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id, kind, username, content, file_url, file_name, file_mime, file_size, file_backend, created_at
		FROM messages
		WHERE seq > $1
		ORDER BY seq ASC
		LIMIT $2
	`, afterSeq, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanPgxMessages(rows)
}

// Clear purges all messages and returns the number removed.
func (s *PostgresStore) Clear(ctx context.Context) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM messages`)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func scanPgxMessages(rows pgx.Rows) ([]models.Message, error) {
	var messages []models.Message
	for rows.Next() {
		var msg models.Message
		var author, content *string
		var fileURL, fileName, fileMime, fileBackend *string
		var fileSize *int64

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

		if author != nil {
			msg.Author = *author
		}
		if content != nil {
			msg.Content = *content
		}
		if fileURL != nil {
			msg.File = &models.FileInfo{URL: *fileURL}
			if fileName != nil {
				msg.File.Name = *fileName
			}
			if fileMime != nil {
				msg.File.MimeType = *fileMime
			}
			if fileSize != nil {
				msg.File.Size = *fileSize
			}
			if fileBackend != nil {
				msg.File.Backend = *fileBackend
			}
		}
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}
