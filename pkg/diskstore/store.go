// Package diskstore implements the on-disk storage backend over SQLite:
// one row per (entity, term) pair with a serialized entity blob and a
// vector column, an FTS5 full-text index over terms for fuzzy
// shortlisting, and an in-memory IVF index over vectors built past a
// row-count threshold. Unlike memstore, this backend can serve hybrid
// fuzz+semantic queries by merging both strategies on the shared score
// scale.
package diskstore

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	_ "modernc.org/sqlite" // SQLite driver

	"github.com/liliang-cn/fuzzmatch/internal/encoding"
	"github.com/liliang-cn/fuzzmatch/pkg/batch"
	"github.com/liliang-cn/fuzzmatch/pkg/entity"
	"github.com/liliang-cn/fuzzmatch/pkg/index"
	"github.com/liliang-cn/fuzzmatch/pkg/storage"
)

// Config configures an on-disk store.
type Config struct {
	storage.Options

	// Path is the SQLite database file.
	Path string

	// Vocabulary names this store's tables, so several vocabularies can
	// share one database file.
	Vocabulary string

	// Source streams the initial entities during Prepare. Optional.
	Source entity.Source

	// BatchSize bounds how many entities are converted and encoded per
	// write-path flush.
	BatchSize int

	// IndexThreshold is the row count above which the IVF vector index
	// is built; below it a linear scan is cheaper than the index.
	IndexThreshold int

	// QueryCacheSize bounds the LRU cache of query results. Zero uses
	// the default; negative disables the cache.
	QueryCacheSize int
}

// DefaultConfig returns a disk store configuration with defaults filled
// in.
func DefaultConfig(path string) Config {
	return Config{
		Options:        storage.DefaultOptions(),
		Path:           path,
		Vocabulary:     "vocab",
		BatchSize:      100,
		IndexThreshold: 256,
		QueryCacheSize: 512,
	}
}

var vocabularyPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Store is the on-disk backend.
type Store struct {
	mu       sync.RWMutex
	cfg      Config
	db       *sql.DB
	prepared bool
	closed   bool

	ann        *index.IVF
	queryCache *lru.Cache[string, *entity.MatchResult]
}

// New creates an on-disk store. The database is not touched until
// Prepare runs, either explicitly or through the first Add or Get.
func New(cfg Config) (*Store, error) {
	cfg.Options.Normalize()
	if err := cfg.Options.Validate(true); err != nil {
		return nil, err
	}
	if cfg.Path == "" {
		return nil, storage.WrapError("init", fmt.Errorf("database path cannot be empty"))
	}
	if cfg.Vocabulary == "" {
		cfg.Vocabulary = "vocab"
	}
	if !vocabularyPattern.MatchString(cfg.Vocabulary) {
		return nil, storage.WrapError("init", fmt.Errorf("invalid vocabulary name %q", cfg.Vocabulary))
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.IndexThreshold <= 0 {
		cfg.IndexThreshold = 256
	}

	s := &Store{cfg: cfg}
	if cfg.QueryCacheSize >= 0 {
		size := cfg.QueryCacheSize
		if size == 0 {
			size = 512
		}
		cache, err := lru.New[string, *entity.MatchResult](size)
		if err != nil {
			return nil, storage.WrapError("init", err)
		}
		s.queryCache = cache
	}
	return s, nil
}

func (s *Store) entitiesTable() string { return s.cfg.Vocabulary + "_entities" }
func (s *Store) termsTable() string    { return s.cfg.Vocabulary + "_terms" }
func (s *Store) ftsTable() string      { return s.cfg.Vocabulary + "_terms_fts" }

// Prepare opens the database, creates the schema, loads the source if
// the vocabulary is empty, and builds the vector index when warranted.
// Idempotent; a concurrent first call builds once.
func (s *Store) Prepare(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.prepareLocked(ctx)
}

func (s *Store) prepareLocked(ctx context.Context) error {
	if s.closed {
		return storage.WrapError("prepare", storage.ErrStoreClosed)
	}
	if s.prepared {
		return nil
	}

	if err := s.open(); err != nil {
		return storage.WrapError("prepare", err)
	}

	if err := s.createTables(ctx); err != nil {
		s.dropTables(ctx)
		return storage.WrapError("prepare", fmt.Errorf("%w: %v", storage.ErrIndexBuild, err))
	}

	// Mark prepared before loading: the write path below re-enters
	// through BulkInsert.
	s.prepared = true

	empty, err := s.isEmpty(ctx)
	if err != nil {
		s.prepared = false
		return storage.WrapError("prepare", err)
	}

	if empty && s.cfg.Source != nil {
		var embedder storage.Embedder
		if s.cfg.SearchFlag.IsSemanticOK() {
			embedder = s.cfg.Embedder
		}
		s.mu.Unlock()
		_, err := batch.Load(ctx, s, s.cfg.Source, s.cfg.BatchSize, embedder, s.cfg.Logger)
		s.mu.Lock()
		if err != nil {
			// A partially-built vocabulary would poison retries, so the
			// tables are dropped wholesale.
			s.dropTables(ctx)
			s.prepared = false
			return storage.WrapError("prepare", fmt.Errorf("%w: %v", storage.ErrIndexBuild, err))
		}
	}

	if err := s.buildVectorIndex(ctx); err != nil {
		s.dropTables(ctx)
		s.prepared = false
		return storage.WrapError("prepare", fmt.Errorf("%w: %v", storage.ErrIndexBuild, err))
	}

	return nil
}

// open connects to SQLite with the pragmas the store relies on.
// WAL for read concurrency, busy_timeout so writers wait on locks,
// foreign keys for cascading term deletes.
func (s *Store) open() error {
	if s.db != nil {
		return nil
	}
	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000", s.cfg.Path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(10)

	if _, err := db.Exec("PRAGMA foreign_keys = ON;"); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to enable foreign keys: %w", err)
	}
	s.db = db
	return nil
}

// createTables creates the vocabulary's entity and term tables, and the
// FTS5 mirror with sync triggers when fuzzy search is enabled.
func (s *Store) createTables(ctx context.Context) error {
	ddl := fmt.Sprintf(`
	CREATE TABLE IF NOT EXISTS %[1]s (
		name TEXT NOT NULL,
		label TEXT NOT NULL DEFAULT '',
		aliases TEXT,
		meta TEXT,
		priority INTEGER,
		PRIMARY KEY (name, label)
	);

	CREATE TABLE IF NOT EXISTS %[2]s (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		label TEXT NOT NULL DEFAULT '',
		term TEXT NOT NULL,
		norm_term TEXT NOT NULL,
		entity TEXT NOT NULL,
		is_alias INTEGER NOT NULL DEFAULT 0,
		vector BLOB,
		FOREIGN KEY (name, label) REFERENCES %[1]s(name, label) ON DELETE CASCADE
	);

	CREATE UNIQUE INDEX IF NOT EXISTS idx_%[2]s_term ON %[2]s(name, label, term);
	CREATE INDEX IF NOT EXISTS idx_%[2]s_exact ON %[2]s(term);
	CREATE INDEX IF NOT EXISTS idx_%[2]s_norm ON %[2]s(norm_term);
	`, s.entitiesTable(), s.termsTable())

	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("failed to create tables: %w", err)
	}

	if s.cfg.SearchFlag.IsFuzzOK() {
		fts := fmt.Sprintf(`
		CREATE VIRTUAL TABLE IF NOT EXISTS %[1]s USING fts5(term, content='%[2]s', content_rowid='rowid');

		CREATE TRIGGER IF NOT EXISTS %[2]s_ai AFTER INSERT ON %[2]s BEGIN
		  INSERT INTO %[1]s(rowid, term) VALUES (new.rowid, new.term);
		END;
		CREATE TRIGGER IF NOT EXISTS %[2]s_ad AFTER DELETE ON %[2]s BEGIN
		  INSERT INTO %[1]s(%[1]s, rowid, term) VALUES('delete', old.rowid, old.term);
		END;
		CREATE TRIGGER IF NOT EXISTS %[2]s_au AFTER UPDATE ON %[2]s BEGIN
		  INSERT INTO %[1]s(%[1]s, rowid, term) VALUES('delete', old.rowid, old.term);
		  INSERT INTO %[1]s(rowid, term) VALUES (new.rowid, new.term);
		END;
		`, s.ftsTable(), s.termsTable())
		if _, err := s.db.ExecContext(ctx, fts); err != nil {
			return fmt.Errorf("failed to create full-text index: %w", err)
		}
	}
	return nil
}

// dropTables removes the vocabulary's tables so a failed build does not
// leave a corrupt artifact behind.
func (s *Store) dropTables(ctx context.Context) {
	stmts := []string{
		fmt.Sprintf("DROP TRIGGER IF EXISTS %s_ai", s.termsTable()),
		fmt.Sprintf("DROP TRIGGER IF EXISTS %s_ad", s.termsTable()),
		fmt.Sprintf("DROP TRIGGER IF EXISTS %s_au", s.termsTable()),
		fmt.Sprintf("DROP TABLE IF EXISTS %s", s.ftsTable()),
		fmt.Sprintf("DROP TABLE IF EXISTS %s", s.termsTable()),
		fmt.Sprintf("DROP TABLE IF EXISTS %s", s.entitiesTable()),
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			s.cfg.Logger.Warn("cleanup failed", "stmt", stmt, "error", err)
		}
	}
	s.ann = nil
	if s.queryCache != nil {
		s.queryCache.Purge()
	}
}

func (s *Store) isEmpty(ctx context.Context) (bool, error) {
	var count int
	query := fmt.Sprintf("SELECT COUNT(*) FROM %s", s.termsTable())
	if err := s.db.QueryRowContext(ctx, query).Scan(&count); err != nil {
		return false, fmt.Errorf("failed to count terms: %w", err)
	}
	return count == 0, nil
}

// buildVectorIndex trains the IVF index over all stored vectors when
// semantic search is on and the vocabulary is large enough for an ANN
// structure to pay for itself. Partition counts are sized here, once,
// never per query.
func (s *Store) buildVectorIndex(ctx context.Context) error {
	if !s.cfg.SearchFlag.IsSemanticOK() {
		return nil
	}

	query := fmt.Sprintf("SELECT id, vector FROM %s WHERE vector IS NOT NULL", s.termsTable())
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return fmt.Errorf("failed to read vectors: %w", err)
	}
	defer rows.Close()

	var ids []string
	var vectors [][]float32
	for rows.Next() {
		var id string
		var blob []byte
		if err := rows.Scan(&id, &blob); err != nil {
			return fmt.Errorf("failed to scan vector row: %w", err)
		}
		vec, err := encoding.DecodeVector(blob)
		if err != nil {
			return fmt.Errorf("corrupt vector for term %s: %w", id, err)
		}
		ids = append(ids, id)
		vectors = append(vectors, vec)
	}
	if err := rows.Err(); err != nil {
		return err
	}

	if len(vectors) <= s.cfg.IndexThreshold {
		s.ann = nil
		return nil
	}

	ann := index.NewIVF(len(vectors[0]), index.PartitionCount(len(vectors)))
	if err := ann.Train(vectors); err != nil {
		return fmt.Errorf("failed to train vector index: %w", err)
	}
	for i, id := range ids {
		if err := ann.Add(id, vectors[i]); err != nil {
			return fmt.Errorf("failed to index vector: %w", err)
		}
	}
	s.ann = ann
	s.cfg.Logger.Info("vector index built", "vectors", len(vectors), "partitions", index.PartitionCount(len(vectors)))
	return nil
}

// Stats reports entity and term counts for the vocabulary.
func (s *Store) Stats(ctx context.Context) (entities, terms int, err error) {
	s.mu.Lock()
	if err := s.prepareLocked(ctx); err != nil {
		s.mu.Unlock()
		return 0, 0, err
	}
	s.mu.Unlock()

	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.db.QueryRowContext(ctx,
		fmt.Sprintf("SELECT COUNT(*) FROM %s", s.entitiesTable())).Scan(&entities); err != nil {
		return 0, 0, storage.WrapError("stats", err)
	}
	if err := s.db.QueryRowContext(ctx,
		fmt.Sprintf("SELECT COUNT(*) FROM %s", s.termsTable())).Scan(&terms); err != nil {
		return 0, 0, storage.WrapError("stats", err)
	}
	return entities, terms, nil
}

// Close releases the database handle. Further calls fail with
// ErrStoreClosed.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
