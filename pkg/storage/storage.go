// Package storage defines the contract shared by every entity-resolution
// backend: the Storage interface, the options common to all backends,
// the collaborator interfaces (embedder, scorer), and the lookup
// pipeline that turns raw match results into resolved entities under the
// configured not-found policy.
package storage

import (
	"context"
	"strings"

	"github.com/liliang-cn/fuzzmatch/pkg/entity"
	"github.com/liliang-cn/fuzzmatch/pkg/scorer"
)

// Storage is the closed contract every backend implements. Add inserts
// one entity's name, alias, fuzzy and semantic index entries per the
// active search flags. Get is a pure query and must not mutate index
// state. Prepare builds indices lazily; the first Add or Get invokes it
// and repeat calls are no-ops.
type Storage interface {
	Add(ctx context.Context, e *entity.Entity) error
	Get(ctx context.Context, key string) (*entity.MatchResult, error)
	Prepare(ctx context.Context) error
	Close() error
}

// Embedder converts text to vectors. Any embedding model the caller
// wants to plug in implements this.
type Embedder interface {
	// Embed converts a single text string into a vector.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch converts multiple texts into vectors in a single call.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dim returns the dimension of vectors produced by this embedder.
	Dim() int
}

// Options configures a backend. Zero values are filled in by Normalize.
type Options struct {
	// CaseSensitive disables the lower-casing of keys and terms.
	CaseSensitive bool

	// Limit is the top-K candidate count per strategy.
	Limit int

	// MinScore is the similarity threshold a candidate must meet to be
	// chosen. Matches scoring exactly MinScore are accepted.
	MinScore float64

	// SearchFlag selects which strategies the backend builds and tries.
	SearchFlag entity.SearchFlag

	// Tiebreaker decides among equally-ranked candidates.
	Tiebreaker entity.TiebreakerMode

	// NotFound decides behavior when nothing clears MinScore.
	NotFound entity.NotFoundMode

	// Duplicate decides what a second Add of the same value does.
	Duplicate entity.DuplicateMode

	// Scorer computes fuzzy similarity. Defaults to token-sort ratio.
	Scorer scorer.Scorer

	// Embedder computes vectors for semantic search. Required when
	// SearchFlag enables semantic matching.
	Embedder Embedder

	// Logger receives operational messages. Defaults to a no-op logger.
	Logger Logger
}

// DefaultOptions returns the options every backend starts from.
func DefaultOptions() Options {
	return Options{
		Limit:      10,
		MinScore:   80.0,
		SearchFlag: entity.DefaultSearch,
		Tiebreaker: entity.TiebreakerRaise,
		NotFound:   entity.NotFoundRaise,
		Duplicate:  entity.DuplicateMerge,
	}
}

// Normalize fills zero values with defaults.
func (o *Options) Normalize() {
	if o.Limit <= 0 {
		o.Limit = 10
	}
	if o.MinScore <= 0 {
		o.MinScore = 80.0
	}
	if o.SearchFlag == 0 {
		o.SearchFlag = entity.DefaultSearch
	}
	if o.Tiebreaker == "" {
		o.Tiebreaker = entity.TiebreakerRaise
	}
	if o.NotFound == "" {
		o.NotFound = entity.NotFoundRaise
	}
	if o.Duplicate == "" {
		o.Duplicate = entity.DuplicateMerge
	}
	if o.Scorer == nil {
		o.Scorer = scorer.NewTokenSortRatio()
	}
	if o.Logger == nil {
		o.Logger = NewNoopLogger()
	}
}

// Validate checks the collaborator requirements implied by the search
// flags. Backends that cannot serve hybrid search pass allowHybrid=false
// to reject the combination at construction time.
func (o *Options) Validate(allowHybrid bool) error {
	if !allowHybrid && o.SearchFlag.IsHybrid() {
		return WrapError("options", ErrHybridUnsupported)
	}
	if o.SearchFlag.IsSemanticOK() && o.Embedder == nil {
		return WrapError("options", ErrDependencyMissing)
	}
	return nil
}

// NormalizeKey trims the key and lowercases it unless the options are
// case sensitive.
func (o *Options) NormalizeKey(key string) string {
	key = strings.TrimSpace(key)
	if o.CaseSensitive {
		return key
	}
	return strings.ToLower(key)
}
