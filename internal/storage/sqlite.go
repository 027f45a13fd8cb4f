package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"

	"github.com/hyperjump/kotae/internal/models"
)

// ErrNoManifest is returned when the store has no manifest row, e.g. an interrupted build.
var ErrNoManifest = errors.New("index manifest missing")

// SQLiteStorage implements ChunkStore using SQLite.
type SQLiteStorage struct {
	db *sqlx.DB
}

type manifestRow struct {
	BuildID        string    `db:"build_id"`
	EmbeddingModel string    `db:"embedding_model"`
	Dimensions     int       `db:"dimensions"`
	ChunkCount     int       `db:"chunk_count"`
	CreatedAt      time.Time `db:"created_at"`
}

// NewSQLiteStorage opens or creates a SQLite database at dbPath and initializes the schema.
// Parent directories are created if they do not exist.
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := sqlx.Connect("sqlite3", sqliteDSN(dbPath, "rwc"))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Rollback journal keeps the whole store in one file so it can be renamed into place.
	if _, err := db.Exec("PRAGMA journal_mode=DELETE"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to set journal mode: %w", err)
	}

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteStorage{db: db}, nil
}

// OpenSQLiteStorage opens an existing store read-only. Nothing is created or migrated.
func OpenSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	if _, err := os.Stat(dbPath); err != nil {
		return nil, err
	}
	db, err := sqlx.Connect("sqlite3", sqliteDSN(dbPath, "ro"))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return &SQLiteStorage{db: db}, nil
}

// sqliteDSN builds a SQLite URI so characters such as '?', '#' and '%' in the path
// stay part of the file name.
func sqliteDSN(dbPath, mode string) string {
	if abs, err := filepath.Abs(dbPath); err == nil {
		dbPath = abs
	}
	u := url.URL{Scheme: "file", Path: filepath.ToSlash(dbPath), RawQuery: "mode=" + mode}
	return u.String()
}

func initSchema(db *sqlx.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS index_manifest (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		build_id TEXT NOT NULL,
		embedding_model TEXT NOT NULL,
		dimensions INTEGER NOT NULL,
		chunk_count INTEGER NOT NULL,
		created_at TIMESTAMP NOT NULL
	);

	CREATE TABLE IF NOT EXISTS chunks (
		id TEXT PRIMARY KEY,
		seq INTEGER NOT NULL UNIQUE,
		source_file TEXT NOT NULL,
		page INTEGER,
		content TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_chunks_source_file ON chunks(source_file);
	`
	_, err := db.Exec(schema)
	return err
}

// WriteManifest replaces the manifest row.
func (s *SQLiteStorage) WriteManifest(ctx context.Context, m *Manifest) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO index_manifest (id, build_id, embedding_model, dimensions, chunk_count, created_at)
		 VALUES (1, ?, ?, ?, ?, ?)`,
		m.BuildID, m.EmbeddingModel, m.Dimensions, m.ChunkCount, m.CreatedAt.UTC(),
	)
	return err
}

// Manifest returns the manifest row, or ErrNoManifest.
func (s *SQLiteStorage) Manifest(ctx context.Context) (*Manifest, error) {
	var row manifestRow
	err := s.db.GetContext(ctx, &row,
		`SELECT build_id, embedding_model, dimensions, chunk_count, created_at
		 FROM index_manifest WHERE id = 1`,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoManifest
	}
	if err != nil {
		return nil, err
	}
	return &Manifest{
		BuildID:        row.BuildID,
		EmbeddingModel: row.EmbeddingModel,
		Dimensions:     row.Dimensions,
		ChunkCount:     row.ChunkCount,
		CreatedAt:      row.CreatedAt,
	}, nil
}

// BatchCreateChunks inserts multiple chunks in a transaction.
func (s *SQLiteStorage) BatchCreateChunks(ctx context.Context, chunks []models.Chunk) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO chunks (id, seq, source_file, page, content) VALUES (?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, chunk := range chunks {
		var page sql.NullInt64
		if chunk.Page != nil {
			page = sql.NullInt64{Int64: int64(*chunk.Page), Valid: true}
		}
		if _, err := stmt.ExecContext(ctx, chunk.ID, chunk.Seq, chunk.SourceFile, page, chunk.Text); err != nil {
			return fmt.Errorf("insert chunk %s: %w", chunk.ID, err)
		}
	}
	return tx.Commit()
}

// ListChunks returns every chunk ordered by seq.
func (s *SQLiteStorage) ListChunks(ctx context.Context) ([]models.Chunk, error) {
	var chunks []models.Chunk
	if err := s.db.SelectContext(ctx, &chunks,
		`SELECT id, seq, source_file, page, content FROM chunks ORDER BY seq`,
	); err != nil {
		return nil, err
	}
	return chunks, nil
}

// CountChunks returns the total number of chunks.
func (s *SQLiteStorage) CountChunks(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM chunks`)
	return count, err
}

// Close closes the database connection.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}
