// Package memstore implements the in-memory storage backend: hash maps
// for exact name and alias lookup, parallel term arrays for fuzzy
// scoring, and a lazily-built embedding matrix for brute-force cosine
// kNN. Fuzzy and semantic search cannot be combined in this backend.
package memstore

import (
	"context"
	"fmt"
	"sync"

	"github.com/liliang-cn/fuzzmatch/pkg/embcache"
	"github.com/liliang-cn/fuzzmatch/pkg/entity"
	"github.com/liliang-cn/fuzzmatch/pkg/index"
	"github.com/liliang-cn/fuzzmatch/pkg/storage"
)

// record ties a stored term to its owning entity.
type record struct {
	entity  *entity.Entity
	term    string
	isAlias bool
}

// Config configures an in-memory store.
type Config struct {
	storage.Options

	// Source streams the initial entities during Prepare. Optional;
	// entities can also arrive through Add.
	Source entity.Source

	// CacheDir enables the on-disk embedding cache when non-empty.
	CacheDir string

	// ModelID identifies the embedding model in cache keys. Only
	// consulted when CacheDir is set.
	ModelID string
}

// Store is the in-memory backend. One Store owns its maps and arrays
// exclusively; concurrent readers are safe once no writer is active.
type Store struct {
	mu       sync.RWMutex
	cfg      Config
	prepared bool
	closed   bool

	byName  map[string][]record
	byAlias map[string][]record

	// Parallel arrays for fuzzy and semantic scoring. terms holds the
	// scorer-cleaned form; rawTerms the original.
	terms    []string
	rawTerms []string
	entities []*entity.Entity
	isAlias  []bool

	embeddings [][]float32
	cache      *embcache.Cache
}

// New creates an in-memory store. Hybrid search is rejected here: this
// backend short-circuits on the first non-empty strategy and cannot
// merge fuzzy with semantic results.
func New(cfg Config) (*Store, error) {
	cfg.Options.Normalize()
	if err := cfg.Options.Validate(false); err != nil {
		return nil, err
	}

	s := &Store{
		cfg:     cfg,
		byName:  make(map[string][]record),
		byAlias: make(map[string][]record),
	}

	if cfg.CacheDir != "" {
		cache, err := embcache.New(cfg.CacheDir)
		if err != nil {
			return nil, storage.WrapError("init", err)
		}
		s.cache = cache
	}
	return s, nil
}

// Prepare streams the source into the store. Idempotent and safe for a
// concurrent first call; the winner builds, the rest wait on the lock
// and observe prepared.
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
	s.prepared = true

	if s.cfg.Source == nil {
		return nil
	}
	err := s.cfg.Source.Each(func(e *entity.Entity) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		return s.addLocked(e)
	})
	if err != nil {
		return storage.WrapError("prepare", err)
	}
	s.cfg.Logger.Debug("memstore prepared", "terms", len(s.terms))
	return nil
}

// Add inserts one entity's index entries per the active search flags.
func (s *Store) Add(ctx context.Context, e *entity.Entity) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.prepareLocked(ctx); err != nil {
		return err
	}
	if err := s.addLocked(e); err != nil {
		return storage.WrapError("add", err)
	}
	return nil
}

func (s *Store) addLocked(e *entity.Entity) error {
	if e == nil || e.Value == "" {
		return fmt.Errorf("entity has no value")
	}

	existing := s.lookupOwner(e.Value)
	if existing != nil {
		if s.cfg.Duplicate == entity.DuplicateReject {
			return fmt.Errorf("%w: %q", storage.ErrDuplicateEntity, e.Value)
		}
		existing.Merge(e)
		s.indexAliases(existing, e.Aliases)
		return nil
	}

	if s.cfg.SearchFlag.IsNameOK() {
		key := s.cfg.NormalizeKey(e.Value)
		s.byName[key] = append(s.byName[key], record{entity: e, term: e.Value})
	}
	if s.cfg.SearchFlag.IsAliasOK() {
		for _, alias := range e.Aliases {
			key := s.cfg.NormalizeKey(alias)
			s.byAlias[key] = append(s.byAlias[key], record{entity: e, term: alias, isAlias: true})
		}
	}
	if s.cfg.SearchFlag.IsFuzzOrSemanticOK() {
		s.appendTerm(e, e.Value, false)
		for _, alias := range e.Aliases {
			s.appendTerm(e, alias, true)
		}
		// New terms invalidate the lazily-built matrix.
		s.embeddings = nil
	}
	return nil
}

// lookupOwner finds the already-stored entity with the given value, if
// any, so duplicate adds can merge into it.
func (s *Store) lookupOwner(value string) *entity.Entity {
	key := s.cfg.NormalizeKey(value)
	for _, rec := range s.byName[key] {
		if rec.entity.Value == value {
			return rec.entity
		}
	}
	for _, e := range s.entities {
		if e.Value == value {
			return e
		}
	}
	return nil
}

// indexAliases adds alias index entries that a merge introduced.
func (s *Store) indexAliases(owner *entity.Entity, aliases []string) {
	for _, alias := range aliases {
		key := s.cfg.NormalizeKey(alias)
		indexed := false
		for _, rec := range s.byAlias[key] {
			if rec.entity == owner {
				indexed = true
				break
			}
		}
		if indexed {
			continue
		}
		if s.cfg.SearchFlag.IsAliasOK() {
			s.byAlias[key] = append(s.byAlias[key], record{entity: owner, term: alias, isAlias: true})
		}
		if s.cfg.SearchFlag.IsFuzzOrSemanticOK() {
			s.appendTerm(owner, alias, true)
			s.embeddings = nil
		}
	}
}

func (s *Store) appendTerm(e *entity.Entity, term string, isAlias bool) {
	s.terms = append(s.terms, s.cfg.Scorer.Clean(term))
	s.rawTerms = append(s.rawTerms, term)
	s.entities = append(s.entities, e)
	s.isAlias = append(s.isAlias, isAlias)
}

// Get resolves candidates for a key, trying strategies in the fixed
// order name, alias, fuzzy, semantic. The first strategy with a
// non-empty result wins; results are never combined across strategies.
func (s *Store) Get(ctx context.Context, key string) (*entity.MatchResult, error) {
	s.mu.Lock()
	if err := s.prepareLocked(ctx); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	s.mu.Unlock()

	if s.cfg.SearchFlag.IsSemanticOK() {
		// The matrix build mutates state, so it runs before taking the
		// read lock for the query itself.
		if err := s.ensureEmbeddings(ctx); err != nil {
			return nil, err
		}
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, storage.WrapError("get", storage.ErrStoreClosed)
	}

	result := &entity.MatchResult{}
	normKey := s.cfg.NormalizeKey(key)

	if s.cfg.SearchFlag.IsNameOK() {
		for _, rec := range s.byName[normKey] {
			result.Append(entity.Match{Key: key, Entity: rec.entity, Term: rec.term, Score: 100.0})
		}
	}
	if result.Empty() && s.cfg.SearchFlag.IsAliasOK() {
		for _, rec := range s.byAlias[normKey] {
			result.Append(entity.Match{Key: key, Entity: rec.entity, Term: rec.term, IsAlias: true, Score: 100.0})
		}
	}
	if result.Empty() && s.cfg.SearchFlag.IsFuzzOK() {
		s.getByFuzz(key, result)
	}
	if result.Empty() && s.cfg.SearchFlag.IsSemanticOK() {
		if err := s.getBySemantic(ctx, key, result); err != nil {
			return nil, err
		}
	}
	return result, nil
}

// getByFuzz cleans the key the same way stored terms were cleaned and
// scores it against all of them.
func (s *Store) getByFuzz(key string, result *entity.MatchResult) {
	for _, scored := range s.cfg.Scorer.Extract(key, s.terms, s.cfg.Limit) {
		result.Append(entity.Match{
			Key:     key,
			Entity:  s.entities[scored.Index],
			Term:    s.rawTerms[scored.Index],
			IsAlias: s.isAlias[scored.Index],
			Score:   scored.Score,
		})
	}
}

// getBySemantic embeds the key and takes the top-K rows of the matrix by
// cosine similarity, rescaled onto the 0-100 score scale.
func (s *Store) getBySemantic(ctx context.Context, key string, result *entity.MatchResult) error {
	if len(s.embeddings) == 0 {
		return nil
	}

	query, err := s.cfg.Embedder.Embed(ctx, key)
	if err != nil {
		return storage.WrapError("semantic", err)
	}

	type candidate struct {
		idx int
		sim float64
	}
	candidates := make([]candidate, len(s.embeddings))
	for i, row := range s.embeddings {
		candidates[i] = candidate{i, index.CosineSimilarity(query, row)}
	}
	// Selection sort of the top-K: K is small and the slice is walked
	// once per pick.
	limit := s.cfg.Limit
	if limit > len(candidates) {
		limit = len(candidates)
	}
	for i := 0; i < limit; i++ {
		best := i
		for j := i + 1; j < len(candidates); j++ {
			if candidates[j].sim > candidates[best].sim {
				best = j
			}
		}
		candidates[i], candidates[best] = candidates[best], candidates[i]

		c := candidates[i]
		result.Append(entity.Match{
			Key:     key,
			Entity:  s.entities[c.idx],
			Term:    s.rawTerms[c.idx],
			IsAlias: s.isAlias[c.idx],
			Score:   index.RescaleCosine(c.sim),
		})
	}
	return nil
}

// ensureEmbeddings batch-encodes all stored terms once, consulting the
// content-hash cache first when one is configured.
func (s *Store) ensureEmbeddings(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.embeddings != nil || len(s.terms) == 0 {
		return nil
	}

	var cacheKey string
	if s.cache != nil {
		cacheKey = embcache.Key(s.cfg.ModelID, s.rawTerms)
		if matrix, ok, err := s.cache.Load(cacheKey); err != nil {
			return storage.WrapError("embeddings", err)
		} else if ok && len(matrix) == len(s.rawTerms) {
			s.cfg.Logger.Debug("embedding cache hit", "key", cacheKey)
			s.embeddings = matrix
			return nil
		}
	}

	matrix, err := s.cfg.Embedder.EmbedBatch(ctx, s.rawTerms)
	if err != nil {
		return storage.WrapError("embeddings", err)
	}
	if len(matrix) != len(s.rawTerms) {
		return storage.WrapError("embeddings",
			fmt.Errorf("encoder returned %d vectors for %d terms", len(matrix), len(s.rawTerms)))
	}
	s.embeddings = matrix

	if s.cache != nil {
		if err := s.cache.Store(cacheKey, matrix); err != nil {
			s.cfg.Logger.Warn("embedding cache store failed", "error", err)
		}
	}
	return nil
}

// Stats reports entity and term counts.
func (s *Store) Stats() (entities, terms int) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[string]bool)
	for _, recs := range s.byName {
		for _, rec := range recs {
			seen[rec.entity.Value] = true
		}
	}
	for _, e := range s.entities {
		seen[e.Value] = true
	}
	return len(seen), len(s.terms)
}

// Close releases the store. Further calls fail with ErrStoreClosed.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
