package fuzzmatch

import (
	"context"
	"fmt"
	"sync"

	"github.com/liliang-cn/fuzzmatch/pkg/diskstore"
	"github.com/liliang-cn/fuzzmatch/pkg/entity"
	"github.com/liliang-cn/fuzzmatch/pkg/memstore"
	"github.com/liliang-cn/fuzzmatch/pkg/scorer"
	"github.com/liliang-cn/fuzzmatch/pkg/storage"
)

// Config configures a resolver.
type Config struct {
	// Path is the SQLite database file. Empty selects the in-memory
	// backend.
	Path string

	// Vocabulary names the table set inside the database file, so
	// several vocabularies can share one file. Defaults to "vocab".
	Vocabulary string

	// Search selects which strategies are built and tried. Defaults to
	// name plus alias search.
	Search entity.SearchFlag

	// CaseSensitive disables key and term lower-casing.
	CaseSensitive bool

	// MinScore is the similarity threshold on the 0 to 100 scale a
	// candidate must meet to resolve. Defaults to 80.
	MinScore float64

	// Limit is the top-K candidate count per strategy. Defaults to 10.
	Limit int

	// Tiebreaker decides among equally-ranked candidates.
	Tiebreaker entity.TiebreakerMode

	// NotFound decides behavior when nothing clears MinScore.
	NotFound entity.NotFoundMode

	// Duplicate decides what adding an existing entity value does.
	Duplicate entity.DuplicateMode

	// Source streams the initial entities on first use. Optional.
	Source entity.Source

	// CacheDir enables the on-disk embedding cache for the in-memory
	// backend.
	CacheDir string

	// ModelID identifies the embedding model in cache keys.
	ModelID string

	// BatchSize bounds entities per write-path flush for the on-disk
	// backend. Defaults to 100.
	BatchSize int
}

// DefaultConfig returns a resolver configuration with defaults filled
// in. An empty path selects the in-memory backend.
func DefaultConfig(path string) Config {
	return Config{
		Path:       path,
		Vocabulary: "vocab",
		Search:     entity.DefaultSearch,
		MinScore:   80.0,
		Limit:      10,
		Tiebreaker: entity.TiebreakerRaise,
		NotFound:   entity.NotFoundRaise,
		Duplicate:  entity.DuplicateMerge,
		BatchSize:  100,
	}
}

// Option is a functional option for configuring the resolver.
type Option func(*Resolver)

// WithEmbedder plugs in the embedding model. Required when Search
// enables semantic matching.
func WithEmbedder(e storage.Embedder) Option {
	return func(r *Resolver) {
		r.embedder = e
	}
}

// WithScorer overrides the fuzzy string scorer. The default is the
// token-sort ratio.
func WithScorer(s scorer.Scorer) Option {
	return func(r *Resolver) {
		r.scorer = s
	}
}

// WithLogger routes operational messages somewhere other than the
// default no-op logger.
func WithLogger(l storage.Logger) Option {
	return func(r *Resolver) {
		r.logger = l
	}
}

// Resolver maps keys to entities over one vocabulary.
type Resolver struct {
	cfg      Config
	store    storage.Storage
	lookup   *storage.Lookup
	embedder storage.Embedder
	scorer   scorer.Scorer
	logger   storage.Logger
}

// Open creates a resolver over the configured backend. The backend is
// prepared lazily; the first Resolve, Match or Add builds the indices.
func Open(cfg Config, opts ...Option) (*Resolver, error) {
	r := &Resolver{cfg: cfg}
	for _, opt := range opts {
		opt(r)
	}

	options := storage.Options{
		CaseSensitive: cfg.CaseSensitive,
		Limit:         cfg.Limit,
		MinScore:      cfg.MinScore,
		SearchFlag:    cfg.Search,
		Tiebreaker:    cfg.Tiebreaker,
		NotFound:      cfg.NotFound,
		Duplicate:     cfg.Duplicate,
		Scorer:        r.scorer,
		Embedder:      r.embedder,
		Logger:        r.logger,
	}

	var (
		store storage.Storage
		err   error
	)
	if cfg.Path == "" {
		store, err = memstore.New(memstore.Config{
			Options:  options,
			Source:   cfg.Source,
			CacheDir: cfg.CacheDir,
			ModelID:  cfg.ModelID,
		})
	} else {
		diskCfg := diskstore.DefaultConfig(cfg.Path)
		diskCfg.Options = options
		diskCfg.Source = cfg.Source
		if cfg.Vocabulary != "" {
			diskCfg.Vocabulary = cfg.Vocabulary
		}
		if cfg.BatchSize > 0 {
			diskCfg.BatchSize = cfg.BatchSize
		}
		store, err = diskstore.New(diskCfg)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create store: %w", err)
	}

	r.store = store
	r.lookup = storage.NewLookup(store, options)
	return r, nil
}

// Resolve maps a key to its entity under the configured not-found
// policy.
func (r *Resolver) Resolve(ctx context.Context, key string) (*entity.Entity, error) {
	return r.lookup.Resolve(ctx, key)
}

// Match returns the full match result for a key, with the winning
// choice computed under the threshold and tiebreaker.
func (r *Resolver) Match(ctx context.Context, key string) (*entity.MatchResult, error) {
	return r.lookup.Match(ctx, key)
}

// Get returns the raw match result without choosing a winner.
func (r *Resolver) Get(ctx context.Context, key string) (*entity.MatchResult, error) {
	return r.store.Get(ctx, key)
}

// Add inserts one entity into the vocabulary.
func (r *Resolver) Add(ctx context.Context, e *entity.Entity) error {
	return r.store.Add(ctx, e)
}

// Prepare builds the vocabulary's indices eagerly instead of on first
// use.
func (r *Resolver) Prepare(ctx context.Context) error {
	return r.store.Prepare(ctx)
}

// Storage exposes the underlying backend.
func (r *Resolver) Storage() storage.Storage {
	return r.store
}

// Close releases the backend.
func (r *Resolver) Close() error {
	return r.store.Close()
}

// Registry holds one resolver per named vocabulary.
type Registry struct {
	mu        sync.RWMutex
	resolvers map[string]*Resolver
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{resolvers: make(map[string]*Resolver)}
}

// Register adds a resolver under a name. Re-registering a name replaces
// the previous resolver without closing it.
func (g *Registry) Register(name string, r *Resolver) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.resolvers[name] = r
}

// Lookup returns the resolver registered under a name.
func (g *Registry) Lookup(name string) (*Resolver, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	r, ok := g.resolvers[name]
	return r, ok
}

// Resolve resolves a key through the named vocabulary.
func (g *Registry) Resolve(ctx context.Context, name, key string) (*entity.Entity, error) {
	r, ok := g.Lookup(name)
	if !ok {
		return nil, fmt.Errorf("no vocabulary registered under %q", name)
	}
	return r.Resolve(ctx, key)
}

// Close closes every registered resolver, returning the first error.
func (g *Registry) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	var first error
	for name, r := range g.resolvers {
		if err := r.Close(); err != nil && first == nil {
			first = err
		}
		delete(g.resolvers, name)
	}
	return first
}
