package diskstore

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"

	"github.com/liliang-cn/fuzzmatch/internal/encoding"
	"github.com/liliang-cn/fuzzmatch/pkg/entity"
	"github.com/liliang-cn/fuzzmatch/pkg/index"
	"github.com/liliang-cn/fuzzmatch/pkg/storage"
)

// Get looks up a key through the search cascade: exact term, normalized
// term, fuzzy shortlist via the full-text index, then semantic vector
// search. The first strategy with matches wins, except in hybrid mode
// where fuzzy and semantic results are merged by best score per entity.
func (s *Store) Get(ctx context.Context, key string) (*entity.MatchResult, error) {
	if key == "" {
		return &entity.MatchResult{}, nil
	}

	s.mu.Lock()
	if err := s.prepareLocked(ctx); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	s.mu.Unlock()

	norm := s.cfg.NormalizeKey(key)

	if s.queryCache != nil {
		if cached, ok := s.queryCache.Get(norm); ok {
			// Choice is per-call state, so hand out a fresh result over
			// the shared match slice.
			return &entity.MatchResult{Matches: cached.Matches}, nil
		}
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, storage.WrapError("get", storage.ErrStoreClosed)
	}

	result := &entity.MatchResult{}

	matches, err := s.getExact(ctx, key, key)
	if err != nil {
		return nil, storage.WrapError("get", err)
	}
	if len(matches) == 0 && norm != key {
		matches, err = s.getNorm(ctx, key, norm)
		if err != nil {
			return nil, storage.WrapError("get", err)
		}
	}

	if len(matches) == 0 && s.cfg.SearchFlag.IsHybrid() {
		matches, err = s.getHybrid(ctx, key, norm)
		if err != nil {
			return nil, storage.WrapError("get", err)
		}
	} else {
		if len(matches) == 0 && s.cfg.SearchFlag.IsFuzzOK() {
			matches, err = s.getByFuzz(ctx, key, norm)
			if err != nil {
				return nil, storage.WrapError("get", err)
			}
		}
		if len(matches) == 0 && s.cfg.SearchFlag.IsSemanticOK() {
			matches, err = s.getBySemantic(ctx, key)
			if err != nil {
				return nil, storage.WrapError("get", err)
			}
		}
	}

	for _, m := range matches {
		result.Append(m)
	}

	if s.queryCache != nil {
		s.queryCache.Add(norm, &entity.MatchResult{Matches: result.Matches})
	}
	return result, nil
}

// getExact matches the raw key against stored terms verbatim.
func (s *Store) getExact(ctx context.Context, key, term string) ([]entity.Match, error) {
	query := fmt.Sprintf(
		"SELECT term, entity, is_alias FROM %s WHERE term = ?%s LIMIT ?",
		s.termsTable(), s.aliasFilter())
	return s.queryMatches(ctx, key, query, term, s.cfg.Limit)
}

// getNorm matches the case-folded key against the normalized term
// column, covering case-insensitive exact hits.
func (s *Store) getNorm(ctx context.Context, key, norm string) ([]entity.Match, error) {
	query := fmt.Sprintf(
		"SELECT term, entity, is_alias FROM %s WHERE norm_term = ?%s LIMIT ?",
		s.termsTable(), s.aliasFilter())
	return s.queryMatches(ctx, key, query, norm, s.cfg.Limit)
}

func (s *Store) aliasFilter() string {
	if s.cfg.SearchFlag.IsAliasOK() {
		return ""
	}
	return " AND is_alias = 0"
}

// queryMatches runs an exact-style query and assigns the exact-match
// score to every row.
func (s *Store) queryMatches(ctx context.Context, key, query string, args ...any) ([]entity.Match, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query terms: %w", err)
	}
	defer rows.Close()

	var matches []entity.Match
	for rows.Next() {
		m, err := scanMatch(rows, key)
		if err != nil {
			return nil, err
		}
		m.Score = 100
		matches = append(matches, m)
	}
	return matches, rows.Err()
}

func scanMatch(rows *sql.Rows, key string) (entity.Match, error) {
	var term, blob string
	var isAlias int
	if err := rows.Scan(&term, &blob, &isAlias); err != nil {
		return entity.Match{}, fmt.Errorf("failed to scan term row: %w", err)
	}
	e, err := entity.UnmarshalBlob([]byte(blob))
	if err != nil {
		return entity.Match{}, fmt.Errorf("corrupt entity blob for term %q: %w", term, err)
	}
	return entity.Match{
		Key:     key,
		Entity:  e,
		Term:    term,
		IsAlias: isAlias != 0,
	}, nil
}

// getByFuzz shortlists candidates through the full-text index and
// rescores them with the configured string scorer. The FTS query is a
// prefix-OR of the key's tokens so near-misses still produce a
// shortlist.
func (s *Store) getByFuzz(ctx context.Context, key, norm string) ([]entity.Match, error) {
	match := ftsQuery(s.cfg.Scorer.Clean(norm))
	if match == "" {
		return nil, nil
	}

	query := fmt.Sprintf(`
		SELECT t.term, t.entity, t.is_alias
		FROM %s f
		JOIN %s t ON t.rowid = f.rowid
		WHERE %s MATCH ?
		ORDER BY rank
		LIMIT ?`, s.ftsTable(), s.termsTable(), s.ftsTable())

	// Shortlist wider than the final limit so rescoring can reorder.
	rows, err := s.db.QueryContext(ctx, query, match, s.cfg.Limit*5)
	if err != nil {
		return nil, fmt.Errorf("failed to query full-text index: %w", err)
	}
	defer rows.Close()

	var candidates []entity.Match
	var terms []string
	for rows.Next() {
		m, err := scanMatch(rows, key)
		if err != nil {
			return nil, err
		}
		candidates = append(candidates, m)
		// The scorer expects cleaned choices.
		terms = append(terms, s.cfg.Scorer.Clean(m.Term))
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	scored := s.cfg.Scorer.Extract(key, terms, s.cfg.Limit)
	matches := make([]entity.Match, 0, len(scored))
	for _, sc := range scored {
		m := candidates[sc.Index]
		m.Score = sc.Score
		matches = append(matches, m)
	}
	return matches, nil
}

// ftsQuery builds an FTS5 MATCH expression from cleaned query tokens:
// each token is quoted and prefix-expanded, joined with OR.
func ftsQuery(cleaned string) string {
	tokens := strings.Fields(cleaned)
	if len(tokens) == 0 {
		return ""
	}
	parts := make([]string, 0, len(tokens))
	for _, tok := range tokens {
		parts = append(parts, fmt.Sprintf(`"%s"*`, strings.ReplaceAll(tok, `"`, `""`)))
	}
	return strings.Join(parts, " OR ")
}

// getBySemantic embeds the key and ranks stored vectors by cosine
// similarity, through the IVF index when one was built and by linear
// scan otherwise. Similarities are rescaled onto the match score range.
func (s *Store) getBySemantic(ctx context.Context, key string) ([]entity.Match, error) {
	if s.cfg.Embedder == nil {
		return nil, storage.ErrDependencyMissing
	}
	queryVec, err := s.cfg.Embedder.Embed(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("failed to embed key: %w", err)
	}
	if err := encoding.ValidateVector(queryVec); err != nil {
		return nil, fmt.Errorf("encoder returned invalid vector: %w", err)
	}

	if s.ann != nil {
		return s.semanticViaIndex(ctx, key, queryVec)
	}
	return s.semanticViaScan(ctx, key, queryVec)
}

func (s *Store) semanticViaIndex(ctx context.Context, key string, queryVec []float32) ([]entity.Match, error) {
	ids, sims, err := s.ann.Search(queryVec, s.cfg.Limit)
	if err != nil {
		return nil, fmt.Errorf("vector index search failed: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	placeholders := strings.Repeat("?,", len(ids))
	placeholders = placeholders[:len(placeholders)-1]
	query := fmt.Sprintf(
		"SELECT id, term, entity, is_alias FROM %s WHERE id IN (%s)",
		s.termsTable(), placeholders)

	args := make([]any, len(ids))
	simByID := make(map[string]float64, len(ids))
	for i, id := range ids {
		args[i] = id
		simByID[id] = sims[i]
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch index candidates: %w", err)
	}
	defer rows.Close()

	var matches []entity.Match
	for rows.Next() {
		var id, term, blob string
		var isAlias int
		if err := rows.Scan(&id, &term, &blob, &isAlias); err != nil {
			return nil, fmt.Errorf("failed to scan candidate row: %w", err)
		}
		e, err := entity.UnmarshalBlob([]byte(blob))
		if err != nil {
			return nil, fmt.Errorf("corrupt entity blob for term %q: %w", term, err)
		}
		matches = append(matches, entity.Match{
			Key:     key,
			Entity:  e,
			Term:    term,
			IsAlias: isAlias != 0,
			Score:   index.RescaleCosine(simByID[id]),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	sort.SliceStable(matches, func(i, j int) bool { return matches[i].Score > matches[j].Score })
	return matches, nil
}

func (s *Store) semanticViaScan(ctx context.Context, key string, queryVec []float32) ([]entity.Match, error) {
	query := fmt.Sprintf(
		"SELECT term, entity, is_alias, vector FROM %s WHERE vector IS NOT NULL",
		s.termsTable())
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to scan vectors: %w", err)
	}
	defer rows.Close()

	var matches []entity.Match
	for rows.Next() {
		var term, blob string
		var isAlias int
		var vecBlob []byte
		if err := rows.Scan(&term, &blob, &isAlias, &vecBlob); err != nil {
			return nil, fmt.Errorf("failed to scan vector row: %w", err)
		}
		vec, err := encoding.DecodeVector(vecBlob)
		if err != nil {
			return nil, fmt.Errorf("corrupt vector for term %q: %w", term, err)
		}
		sim := index.CosineSimilarity(queryVec, vec)
		e, err := entity.UnmarshalBlob([]byte(blob))
		if err != nil {
			return nil, fmt.Errorf("corrupt entity blob for term %q: %w", term, err)
		}
		matches = append(matches, entity.Match{
			Key:     key,
			Entity:  e,
			Term:    term,
			IsAlias: isAlias != 0,
			Score:   index.RescaleCosine(sim),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.SliceStable(matches, func(i, j int) bool { return matches[i].Score > matches[j].Score })
	if len(matches) > s.cfg.Limit {
		matches = matches[:s.cfg.Limit]
	}
	return matches, nil
}

// getHybrid runs fuzzy and semantic search and merges their results,
// keeping the best score each entity earned from either strategy.
func (s *Store) getHybrid(ctx context.Context, key, norm string) ([]entity.Match, error) {
	fuzz, err := s.getByFuzz(ctx, key, norm)
	if err != nil {
		return nil, err
	}
	sem, err := s.getBySemantic(ctx, key)
	if err != nil {
		return nil, err
	}

	type slot struct {
		match entity.Match
		order int
	}
	best := make(map[string]slot, len(fuzz)+len(sem))
	order := 0
	consider := func(m entity.Match) {
		id := m.Entity.Value + "\x00" + m.Entity.Label
		cur, ok := best[id]
		if !ok {
			best[id] = slot{match: m, order: order}
			order++
			return
		}
		if m.Score > cur.match.Score {
			cur.match = m
			best[id] = cur
		}
	}
	for _, m := range fuzz {
		consider(m)
	}
	for _, m := range sem {
		consider(m)
	}

	merged := make([]slot, 0, len(best))
	for _, sl := range best {
		merged = append(merged, sl)
	}
	sort.Slice(merged, func(i, j int) bool {
		if merged[i].match.Score != merged[j].match.Score {
			return merged[i].match.Score > merged[j].match.Score
		}
		return merged[i].order < merged[j].order
	})

	matches := make([]entity.Match, 0, len(merged))
	for _, sl := range merged {
		matches = append(matches, sl.match)
	}
	if len(matches) > s.cfg.Limit {
		matches = matches[:s.cfg.Limit]
	}
	return matches, nil
}
