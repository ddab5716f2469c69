// Package batch implements the batched write path: raw entity records
// are buffered in fixed-size chunks, each chunk's terms are embedded in
// a single encoder call, and the resulting entity and term rows are
// flushed to storage one transaction per chunk. Peak memory stays
// bounded by one batch regardless of input size.
package batch

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/liliang-cn/fuzzmatch/pkg/entity"
	"github.com/liliang-cn/fuzzmatch/pkg/storage"
)

// TermRow is one (entity, term) pair ready for insertion. ID is a
// stable row identifier the sink can reuse as a vector-index key.
type TermRow struct {
	ID          string
	EntityValue string
	Label       string
	Term        string
	IsAlias     bool
	Vector      []float32
	Entity      *entity.Entity
}

// Sink receives one flushed batch atomically. Implementations are
// expected to wrap the insert in a single transaction; a failed flush
// must leave storage in its pre-flush state.
type Sink interface {
	BulkInsert(ctx context.Context, entities []*entity.Entity, terms []TermRow) error
}

// Batch buffers raw records until full, then converts them to entity and
// term rows with vectors computed in one encoder call per batch.
type Batch struct {
	size     int
	embedder storage.Embedder
	buffer   []any
}

// New creates a batch of the given size. The embedder may be nil when no
// semantic index is being built.
func New(size int, embedder storage.Embedder) *Batch {
	if size <= 0 {
		size = 100
	}
	return &Batch{size: size, embedder: embedder}
}

// Add buffers one raw record: a string, a slice, a record map, or an
// *Entity.
func (b *Batch) Add(record any) {
	b.buffer = append(b.buffer, record)
}

// IsFull reports whether the batch has reached its size.
func (b *Batch) IsFull() bool {
	return len(b.buffer) >= b.size
}

// Len returns the number of buffered records.
func (b *Batch) Len() int {
	return len(b.buffer)
}

// Complete converts the buffered records to entities and term rows,
// computes vectors for all terms of the whole batch in one encoder
// call, zips them back onto the rows, and resets the buffer.
func (b *Batch) Complete(ctx context.Context) ([]*entity.Entity, []TermRow, error) {
	if len(b.buffer) == 0 {
		return nil, nil, nil
	}

	entities := make([]*entity.Entity, 0, len(b.buffer))
	var terms []TermRow

	for _, record := range b.buffer {
		e, err := entity.Convert(record)
		if err != nil {
			return nil, nil, fmt.Errorf("batch: %w", err)
		}
		entities = append(entities, e)

		terms = append(terms, TermRow{
			ID:          uuid.NewString(),
			EntityValue: e.Value,
			Label:       e.Label,
			Term:        e.Value,
			Entity:      e,
		})
		for _, alias := range e.Aliases {
			terms = append(terms, TermRow{
				ID:          uuid.NewString(),
				EntityValue: e.Value,
				Label:       e.Label,
				Term:        alias,
				IsAlias:     true,
				Entity:      e,
			})
		}
	}

	if b.embedder != nil {
		texts := make([]string, len(terms))
		for i := range terms {
			texts[i] = terms[i].Term
		}
		vectors, err := b.embedder.EmbedBatch(ctx, texts)
		if err != nil {
			return nil, nil, fmt.Errorf("batch: encode terms: %w", err)
		}
		if len(vectors) != len(terms) {
			return nil, nil, fmt.Errorf("batch: encoder returned %d vectors for %d terms", len(vectors), len(terms))
		}
		for i := range terms {
			terms[i].Vector = vectors[i]
		}
	}

	b.buffer = b.buffer[:0]
	return entities, terms, nil
}

// Load drives the batched write loop: every record from src is buffered,
// full batches are flushed into dst, and the remainder is flushed at
// end-of-stream. Returns the number of flushes performed.
func Load(ctx context.Context, dst Sink, src entity.Source, size int, embedder storage.Embedder, logger storage.Logger) (int, error) {
	if logger == nil {
		logger = storage.NewNoopLogger()
	}

	b := New(size, embedder)
	flushes := 0

	flush := func() error {
		entities, terms, err := b.Complete(ctx)
		if err != nil {
			return err
		}
		if len(entities) == 0 {
			return nil
		}
		flushID := uuid.New().String()
		if err := dst.BulkInsert(ctx, entities, terms); err != nil {
			logger.Error("batch flush failed", "flush", flushID, "entities", len(entities), "error", err)
			return err
		}
		flushes++
		logger.Debug("batch flushed", "flush", flushID, "entities", len(entities), "terms", len(terms))
		return nil
	}

	err := src.Each(func(e *entity.Entity) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		b.Add(e)
		if b.IsFull() {
			return flush()
		}
		return nil
	})
	if err != nil {
		return flushes, err
	}

	if err := flush(); err != nil {
		return flushes, err
	}
	return flushes, nil
}

// StorageSink adapts any Storage to the Sink contract by adding entities
// one at a time. Backends with a native bulk path implement Sink
// directly instead.
type StorageSink struct {
	Storage storage.Storage
}

// BulkInsert adds each entity in turn. Vectors on the term rows are
// ignored; the backend computes its own.
func (s StorageSink) BulkInsert(ctx context.Context, entities []*entity.Entity, _ []TermRow) error {
	for _, e := range entities {
		if err := s.Storage.Add(ctx, e); err != nil {
			return err
		}
	}
	return nil
}
