package pgvector

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"regexp"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pgvector/pgvector-go"

	"github.com/kirillkom/testgen-assistant/internal/core/domain"
	"github.com/kirillkom/testgen-assistant/internal/core/ports"
)

const publishLockKey int64 = 2026101801

var identifierPattern = regexp.MustCompile(`^[a-z_][a-z0-9_]{0,50}$`)

func OpenDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql open: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return db, nil
}

// Store builds into "<table>_build" and renames it over the live table.
type Store struct {
	db    *sql.DB
	table string
}

func NewStore(db *sql.DB, table string) (*Store, error) {
	if table == "" {
		table = "code_chunks"
	}
	if !identifierPattern.MatchString(table) {
		return nil, domain.WrapError(domain.ErrInvalidInput, "pgvector store", fmt.Errorf("invalid table name %q", table))
	}
	return &Store{db: db, table: table}, nil
}

func (s *Store) stagingTable() string {
	return s.table + "_build"
}

func (s *Store) Exists(ctx context.Context) (bool, error) {
	var exists bool
	if err := s.db.QueryRowContext(ctx, `SELECT to_regclass($1) IS NOT NULL`, s.table).Scan(&exists); err != nil {
		return false, fmt.Errorf("check index table: %w", err)
	}
	return exists, nil
}

func (s *Store) Open(ctx context.Context) (ports.VectorIndex, error) {
	exists, err := s.Exists(ctx)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, domain.WrapError(domain.ErrIndexNotFound, "open pgvector index", fmt.Errorf("table %s", s.table))
	}
	return &Index{db: s.db, table: s.table}, nil
}

func (s *Store) NewBuild(ctx context.Context) (ports.IndexBuild, error) {
	if _, err := s.db.ExecContext(ctx, `CREATE EXTENSION IF NOT EXISTS vector`); err != nil {
		return nil, fmt.Errorf("ensure vector extension: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, fmt.Sprintf(`DROP TABLE IF EXISTS %s`, s.stagingTable())); err != nil {
		return nil, fmt.Errorf("drop stale staging table: %w", err)
	}
	return &Build{store: s}, nil
}

type Build struct {
	store     *Store
	created   bool
	dimension int
	count     int
}

func (b *Build) ensureTable(ctx context.Context, dimension int) error {
	if b.created {
		return nil
	}
	query := fmt.Sprintf(`
CREATE TABLE %s (
	id TEXT PRIMARY KEY,
	ordinal INTEGER NOT NULL,
	source_path TEXT NOT NULL,
	chunk_type TEXT NOT NULL,
	content TEXT NOT NULL,
	embedding vector(%d) NOT NULL
)`, b.store.stagingTable(), dimension)
	if _, err := b.store.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("create staging table: %w", err)
	}
	b.created = true
	b.dimension = dimension
	return nil
}

func (b *Build) AddDocuments(ctx context.Context, docs []domain.IndexedDocument) error {
	if len(docs) == 0 {
		return nil
	}
	if err := b.ensureTable(ctx, len(docs[0].Vector)); err != nil {
		return err
	}

	tx, err := b.store.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin insert tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	query := fmt.Sprintf(`
INSERT INTO %s (id, ordinal, source_path, chunk_type, content, embedding)
VALUES ($1, $2, $3, $4, $5, $6)`, b.store.stagingTable())
	for _, doc := range docs {
		if len(doc.Vector) != b.dimension {
			return domain.WrapError(domain.ErrProvider, "add documents",
				fmt.Errorf("vector dimension %d, index dimension %d", len(doc.Vector), b.dimension))
		}
		if _, err := tx.ExecContext(ctx, query,
			doc.ID,
			b.count,
			doc.Chunk.SourcePath,
			string(doc.Chunk.Type),
			doc.Chunk.Content,
			pgvector.NewVector(doc.Vector),
		); err != nil {
			return fmt.Errorf("insert chunk: %w", err)
		}
		b.count++
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit insert tx: %w", err)
	}
	return nil
}

func (b *Build) Persist(ctx context.Context) (ports.VectorIndex, error) {
	if !b.created {
		return nil, domain.WrapError(domain.ErrNoChunks, "persist pgvector index", fmt.Errorf("table %s is empty", b.store.stagingTable()))
	}
	tx, err := b.store.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin publish tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, publishLockKey); err != nil {
		return nil, fmt.Errorf("acquire publish lock: %w", err)
	}
	statements := []string{
		fmt.Sprintf(`DROP TABLE IF EXISTS %s`, b.store.table),
		fmt.Sprintf(`ALTER TABLE %s RENAME TO %s`, b.store.stagingTable(), b.store.table),
		fmt.Sprintf(`ALTER INDEX %s_pkey RENAME TO %s_pkey`, b.store.stagingTable(), b.store.table),
	}
	for _, stmt := range statements {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return nil, fmt.Errorf("publish index table: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit publish tx: %w", err)
	}

	slog.Info("pgvector_index_published", "table", b.store.table, "rows", b.count, "dimension", b.dimension)
	return &Index{db: b.store.db, table: b.store.table}, nil
}

func (b *Build) Discard(ctx context.Context) error {
	if _, err := b.store.db.ExecContext(ctx, fmt.Sprintf(`DROP TABLE IF EXISTS %s`, b.store.stagingTable())); err != nil {
		return fmt.Errorf("drop staging table: %w", err)
	}
	return nil
}

type Index struct {
	db    *sql.DB
	table string
}

func (i *Index) Query(ctx context.Context, queryVector []float32, k int, scoreThreshold float64) ([]domain.RetrievedDocument, error) {
	if k <= 0 {
		return nil, nil
	}
	query := fmt.Sprintf(`
SELECT id, content, source_path, chunk_type, 1 - (embedding <=> $1) AS score
FROM %s
WHERE 1 - (embedding <=> $1) >= $2
ORDER BY embedding <=> $1
LIMIT $3`, i.table)

	rows, err := i.db.QueryContext(ctx, query, pgvector.NewVector(queryVector), scoreThreshold, k)
	if err != nil {
		return nil, fmt.Errorf("query index: %w", err)
	}
	defer rows.Close()

	out := make([]domain.RetrievedDocument, 0, k)
	for rows.Next() {
		var (
			doc  domain.RetrievedDocument
			kind string
		)
		if err := rows.Scan(&doc.ID, &doc.Content, &doc.SourcePath, &kind, &doc.Score); err != nil {
			return nil, fmt.Errorf("scan index row: %w", err)
		}
		doc.ChunkType = domain.ChunkType(kind)
		out = append(out, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate index rows: %w", err)
	}
	return out, nil
}

func (i *Index) Close() error {
	return nil
}
