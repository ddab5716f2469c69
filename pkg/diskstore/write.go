package diskstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/liliang-cn/fuzzmatch/internal/encoding"
	"github.com/liliang-cn/fuzzmatch/pkg/batch"
	"github.com/liliang-cn/fuzzmatch/pkg/entity"
	"github.com/liliang-cn/fuzzmatch/pkg/storage"
)

// Add inserts a single entity and its terms. Vectors are computed
// inline when semantic search is enabled; use the batch loader for bulk
// ingestion instead.
func (s *Store) Add(ctx context.Context, e *entity.Entity) error {
	if e == nil || e.Value == "" {
		return storage.WrapError("add", fmt.Errorf("entity value cannot be empty"))
	}
	s.mu.Lock()
	if err := s.prepareLocked(ctx); err != nil {
		s.mu.Unlock()
		return err
	}
	s.mu.Unlock()

	terms := e.Terms()
	rows := make([]batch.TermRow, 0, len(terms))
	for i, term := range terms {
		row := batch.TermRow{
			EntityValue: e.Value,
			Label:       e.Label,
			Term:        term,
			IsAlias:     i > 0,
			Entity:      e,
		}
		if s.cfg.SearchFlag.IsSemanticOK() && s.cfg.Embedder != nil {
			vec, err := s.cfg.Embedder.Embed(ctx, term)
			if err != nil {
				return storage.WrapError("add", err)
			}
			row.Vector = vec
		}
		rows = append(rows, row)
	}

	if err := s.BulkInsert(ctx, []*entity.Entity{e}, rows); err != nil {
		return err
	}
	return nil
}

// BulkInsert writes one flush of entities and term rows in a single
// transaction. Entities upsert on (name, label); duplicate terms for
// the same entity are ignored rather than erroring, which gives merge
// semantics across repeated loads. Implements batch.Sink.
func (s *Store) BulkInsert(ctx context.Context, entities []*entity.Entity, rows []batch.TermRow) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return storage.WrapError("bulk_insert", storage.ErrStoreClosed)
	}
	if !s.prepared {
		return storage.WrapError("bulk_insert", fmt.Errorf("store is not prepared"))
	}
	if len(entities) == 0 && len(rows) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return storage.WrapError("bulk_insert", fmt.Errorf("failed to begin transaction: %w", err))
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = s.insertEntities(ctx, tx, entities); err != nil {
		return storage.WrapError("bulk_insert", err)
	}
	if err = s.insertTerms(ctx, tx, rows); err != nil {
		return storage.WrapError("bulk_insert", err)
	}

	if err = tx.Commit(); err != nil {
		return storage.WrapError("bulk_insert", fmt.Errorf("failed to commit: %w", err))
	}

	// Stored rows changed under any cached query result.
	if s.queryCache != nil {
		s.queryCache.Purge()
	}

	if s.ann != nil {
		for _, row := range rows {
			if row.Vector == nil {
				continue
			}
			if addErr := s.ann.Add(termRowID(&row), row.Vector); addErr != nil {
				s.cfg.Logger.Warn("vector index add failed", "term", row.Term, "error", addErr)
			}
		}
	}
	return nil
}

func (s *Store) insertEntities(ctx context.Context, tx *sql.Tx, entities []*entity.Entity) error {
	if len(entities) == 0 {
		return nil
	}
	query := fmt.Sprintf(`
		INSERT INTO %s (name, label, aliases, meta, priority)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(name, label) DO UPDATE SET
			aliases = excluded.aliases,
			meta = excluded.meta,
			priority = excluded.priority
	`, s.entitiesTable())
	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return fmt.Errorf("failed to prepare entity insert: %w", err)
	}
	defer stmt.Close()

	for _, e := range entities {
		prev, err := s.loadEntity(ctx, tx, e.Value, e.Label)
		if err != nil {
			return err
		}
		if prev != nil {
			if s.cfg.Duplicate == entity.DuplicateReject {
				return fmt.Errorf("%w: %s", storage.ErrDuplicateEntity, e.Value)
			}
			// Callers hold the same pointer the term rows reference, so
			// the merged state must land back in e.
			prev.Merge(e)
			*e = *prev
			if err := s.refreshTermBlobs(ctx, tx, e); err != nil {
				return err
			}
		}
		aliases, err := json.Marshal(e.Aliases)
		if err != nil {
			return fmt.Errorf("failed to encode aliases: %w", err)
		}
		meta, err := json.Marshal(e.Meta)
		if err != nil {
			return fmt.Errorf("failed to encode meta: %w", err)
		}
		var priority any
		if e.Priority != nil {
			priority = *e.Priority
		}
		if _, err := stmt.ExecContext(ctx, e.Value, e.Label, string(aliases), string(meta), priority); err != nil {
			return fmt.Errorf("failed to insert entity %s: %w", e.Value, err)
		}
	}
	return nil
}

// loadEntity reads an existing entity row for duplicate detection and
// merging. Returns nil when the row does not exist.
func (s *Store) loadEntity(ctx context.Context, tx *sql.Tx, value, label string) (*entity.Entity, error) {
	query := fmt.Sprintf("SELECT aliases, meta, priority FROM %s WHERE name = ? AND label = ?", s.entitiesTable())
	var aliasJSON, metaJSON string
	var priority sql.NullInt64
	err := tx.QueryRowContext(ctx, query, value, label).Scan(&aliasJSON, &metaJSON, &priority)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read entity %s: %w", value, err)
	}
	prev := &entity.Entity{Value: value, Label: label}
	if aliasJSON != "" {
		if err := json.Unmarshal([]byte(aliasJSON), &prev.Aliases); err != nil {
			return nil, fmt.Errorf("failed to decode aliases for %s: %w", value, err)
		}
	}
	if metaJSON != "" {
		if err := json.Unmarshal([]byte(metaJSON), &prev.Meta); err != nil {
			return nil, fmt.Errorf("failed to decode meta for %s: %w", value, err)
		}
	}
	if priority.Valid {
		p := int(priority.Int64)
		prev.Priority = &p
	}
	return prev, nil
}

// refreshTermBlobs rewrites the stored entity on every existing term
// row after a merge, so terms from earlier inserts resolve to the merged
// state.
func (s *Store) refreshTermBlobs(ctx context.Context, tx *sql.Tx, e *entity.Entity) error {
	blob, err := e.MarshalBlob()
	if err != nil {
		return fmt.Errorf("failed to encode merged entity %s: %w", e.Value, err)
	}
	query := fmt.Sprintf("UPDATE %s SET entity = ? WHERE name = ? AND label = ?", s.termsTable())
	if _, err := tx.ExecContext(ctx, query, string(blob), e.Value, e.Label); err != nil {
		return fmt.Errorf("failed to refresh terms for %s: %w", e.Value, err)
	}
	return nil
}

func (s *Store) insertTerms(ctx context.Context, tx *sql.Tx, rows []batch.TermRow) error {
	if len(rows) == 0 {
		return nil
	}
	query := fmt.Sprintf(`
		INSERT INTO %s (id, name, label, term, norm_term, entity, is_alias, vector)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(name, label, term) DO UPDATE SET
			entity = excluded.entity,
			vector = COALESCE(excluded.vector, vector)
	`, s.termsTable())
	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return fmt.Errorf("failed to prepare term insert: %w", err)
	}
	defer stmt.Close()

	for i := range rows {
		row := &rows[i]
		blob, err := row.Entity.MarshalBlob()
		if err != nil {
			return fmt.Errorf("failed to encode entity for term %q: %w", row.Term, err)
		}
		var vec []byte
		if row.Vector != nil {
			vec, err = encoding.EncodeVector(row.Vector)
			if err != nil {
				return fmt.Errorf("failed to encode vector for term %q: %w", row.Term, err)
			}
		}
		isAlias := 0
		if row.IsAlias {
			isAlias = 1
		}
		norm := s.cfg.NormalizeKey(row.Term)
		if _, err := stmt.ExecContext(ctx, termRowID(row), row.EntityValue, row.Label,
			row.Term, norm, string(blob), isAlias, vec); err != nil {
			return fmt.Errorf("failed to insert term %q: %w", row.Term, err)
		}
	}
	return nil
}

// termRowID returns the row's stable identifier, minting one when the
// batch layer did not.
func termRowID(row *batch.TermRow) string {
	if row.ID != "" {
		return row.ID
	}
	row.ID = uuid.NewString()
	return row.ID
}
