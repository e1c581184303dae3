// Package sqlite keeps the vector index in a single SQLite file and scores
// queries with cosine similarity in Go.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/kirillkom/testgen-assistant/internal/core/domain"
	"github.com/kirillkom/testgen-assistant/internal/core/ports"
)

const driverName = "sqlite"

const schema = `
CREATE TABLE IF NOT EXISTS chunks (
	id          TEXT PRIMARY KEY,
	ordinal     INTEGER NOT NULL,
	source_path TEXT NOT NULL,
	chunk_type  TEXT NOT NULL,
	content     TEXT NOT NULL,
	vector      BLOB NOT NULL
);
CREATE TABLE IF NOT EXISTS index_meta (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);`

// Store allows one build at a time; every build shares the same staging file.
type Store struct {
	path string

	mu       sync.Mutex
	building bool
}

func NewStore(path string) *Store {
	if path == "" {
		path = "./data/code_index.db"
	}
	return &Store{path: path}
}

func (s *Store) Exists(_ context.Context) (bool, error) {
	info, err := os.Stat(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("stat index file: %w", err)
	}
	return info.Mode().IsRegular(), nil
}

// Open loads every stored vector into memory; the index is read-only after that.
func (s *Store) Open(ctx context.Context) (ports.VectorIndex, error) {
	exists, err := s.Exists(ctx)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, domain.WrapError(domain.ErrIndexNotFound, "open sqlite index", fmt.Errorf("%s", s.path))
	}

	db, err := sql.Open(driverName, s.path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite index: %w", err)
	}
	defer db.Close()

	rows, err := db.QueryContext(ctx, `SELECT id, source_path, chunk_type, content, vector FROM chunks ORDER BY ordinal`)
	if err != nil {
		return nil, fmt.Errorf("load sqlite index: %w", err)
	}
	defer rows.Close()

	idx := &Index{}
	for rows.Next() {
		var (
			entry entry
			blob  []byte
			kind  string
		)
		if err := rows.Scan(&entry.doc.ID, &entry.doc.SourcePath, &kind, &entry.doc.Content, &blob); err != nil {
			return nil, fmt.Errorf("scan sqlite index row: %w", err)
		}
		entry.doc.ChunkType = domain.ChunkType(kind)
		entry.vector = deserializeVector(blob)
		if idx.dimension == 0 {
			idx.dimension = len(entry.vector)
		}
		idx.entries = append(idx.entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sqlite index: %w", err)
	}

	slog.Info("sqlite_index_loaded", "path", s.path, "documents", len(idx.entries))
	return idx, nil
}

func (s *Store) NewBuild(ctx context.Context) (ports.IndexBuild, error) {
	s.mu.Lock()
	if s.building {
		s.mu.Unlock()
		return nil, domain.WrapError(domain.ErrTemporary, "new sqlite build", errors.New("another index build is in progress"))
	}
	s.building = true
	s.mu.Unlock()

	build, err := s.newBuild(ctx)
	if err != nil {
		s.endBuild()
		return nil, err
	}
	return build, nil
}

func (s *Store) newBuild(ctx context.Context) (*Build, error) {
	staging := s.path + ".building"
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return nil, fmt.Errorf("create index dir: %w", err)
	}
	if err := removeDatabase(staging); err != nil {
		return nil, fmt.Errorf("remove stale staging index: %w", err)
	}

	db, err := sql.Open(driverName, staging)
	if err != nil {
		return nil, fmt.Errorf("open staging index: %w", err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		_ = removeDatabase(staging)
		return nil, fmt.Errorf("create index schema: %w", err)
	}
	return &Build{store: s, staging: staging, db: db}, nil
}

func (s *Store) endBuild() {
	s.mu.Lock()
	s.building = false
	s.mu.Unlock()
}

type Build struct {
	store   *Store
	staging string
	db      *sql.DB

	count     int
	dimension int

	finish sync.Once
}

func (b *Build) release() {
	b.finish.Do(b.store.endBuild)
}

func (b *Build) AddDocuments(ctx context.Context, docs []domain.IndexedDocument) error {
	if len(docs) == 0 {
		return nil
	}
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin insert: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO chunks (id, ordinal, source_path, chunk_type, content, vector)
		VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, doc := range docs {
		if b.dimension == 0 {
			b.dimension = len(doc.Vector)
		}
		if len(doc.Vector) == 0 || len(doc.Vector) != b.dimension {
			return domain.WrapError(domain.ErrProvider, "add documents",
				fmt.Errorf("vector dimension %d, index dimension %d", len(doc.Vector), b.dimension))
		}
		if _, err := stmt.ExecContext(ctx,
			doc.ID,
			b.count,
			doc.Chunk.SourcePath,
			string(doc.Chunk.Type),
			doc.Chunk.Content,
			serializeVector(doc.Vector),
		); err != nil {
			return fmt.Errorf("insert chunk: %w", err)
		}
		b.count++
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit insert: %w", err)
	}
	return nil
}

// Persist records build metadata and renames the staging file over the index.
func (b *Build) Persist(ctx context.Context) (ports.VectorIndex, error) {
	defer b.release()
	meta := map[string]string{
		"chunk_count": fmt.Sprint(b.count),
		"dimension":   fmt.Sprint(b.dimension),
		"created_at":  time.Now().UTC().Format(time.RFC3339),
	}
	for key, value := range meta {
		if _, err := b.db.ExecContext(ctx, `INSERT OR REPLACE INTO index_meta (key, value) VALUES (?, ?)`, key, value); err != nil {
			return nil, fmt.Errorf("write index meta: %w", err)
		}
	}
	if err := b.db.Close(); err != nil {
		return nil, fmt.Errorf("close staging index: %w", err)
	}
	if err := os.Rename(b.staging, b.store.path); err != nil {
		return nil, fmt.Errorf("publish index file: %w", err)
	}
	return b.store.Open(ctx)
}

func (b *Build) Discard(_ context.Context) error {
	defer b.release()
	_ = b.db.Close()
	if err := removeDatabase(b.staging); err != nil {
		return fmt.Errorf("discard staging index: %w", err)
	}
	return nil
}

func removeDatabase(path string) error {
	for _, p := range []string{path, path + "-journal", path + "-wal", path + "-shm"} {
		if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
	}
	return nil
}
