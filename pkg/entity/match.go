package entity

import "sort"

// Match is one candidate resolution of a query key.
type Match struct {
	// Key is the original query string.
	Key string `json:"key"`

	// Entity is the candidate resolution.
	Entity *Entity `json:"entity"`

	// Term is the stored term that produced this candidate: the
	// canonical name, an alias, or a fuzzily-matched alias.
	Term string `json:"term,omitempty"`

	// IsAlias reports whether Term was an alias rather than the name.
	IsAlias bool `json:"is_alias,omitempty"`

	// Score is the similarity on a 0-100 scale; 100 is exact equality.
	// Fuzzy and semantic scores are normalized onto the same scale so
	// all strategies rank comparably.
	Score float64 `json:"score"`
}

// rank orders matches by descending score, then entity rank.
func (m *Match) rank() (float64, int) {
	return -m.Score, m.Entity.Rank()
}

// Less orders matches by (-score, entity rank, entity value): highest
// similarity first, then entity priority, then value.
func (m *Match) Less(other *Match) bool {
	ms, mr := m.rank()
	os, or := other.rank()
	if ms != os {
		return ms < os
	}
	if mr != or {
		return mr < or
	}
	return m.Entity.Value < other.Entity.Value
}

// sameRank reports whether two matches tie on score and entity rank.
func (m *Match) sameRank(other *Match) bool {
	ms, mr := m.rank()
	os, or := other.rank()
	return ms == os && mr == or
}

// MatchResult is the ranked candidate set for one lookup, plus the
// chosen winner once Choose has run. An empty Matches slice is valid and
// means nothing was found.
type MatchResult struct {
	Matches []Match `json:"matches"`
	Choice  *Match  `json:"choice,omitempty"`
}

// Append adds a candidate to the result.
func (r *MatchResult) Append(m Match) {
	r.Matches = append(r.Matches, m)
}

// Empty reports whether no candidates were collected.
func (r *MatchResult) Empty() bool {
	return r == nil || len(r.Matches) == 0
}

// Entity returns the winning entity, or nil if no choice was made.
func (r *MatchResult) Entity() *Entity {
	if r == nil || r.Choice == nil {
		return nil
	}
	return r.Choice.Entity
}

// Choose filters candidates below minScore, sorts the survivors best
// first, and selects the winner. When multiple survivors tie with the
// best by rank (not raw score) across distinct entities, the tiebreaker
// decides: raise makes no choice, lesser keeps the best (lowest value),
// greater takes the last of the tied set. Choose is idempotent: it
// always recomputes the choice from Matches alone.
func (r *MatchResult) Choose(minScore float64, tiebreaker TiebreakerMode) {
	r.Choice = nil

	allowed := make([]*Match, 0, len(r.Matches))
	for i := range r.Matches {
		if r.Matches[i].Score >= minScore {
			allowed = append(allowed, &r.Matches[i])
		}
	}
	sort.SliceStable(allowed, func(i, j int) bool {
		return allowed[i].Less(allowed[j])
	})

	switch {
	case len(allowed) == 0:
	case len(allowed) == 1:
		r.Choice = allowed[0]
	default:
		first := allowed[0]
		var tied []*Match
		for _, m := range allowed[1:] {
			if m.sameRank(first) && !m.Entity.Equal(first.Entity) {
				tied = append(tied, m)
			}
		}

		switch {
		case len(tied) == 0:
			r.Choice = first
		case tiebreaker == TiebreakerLesser:
			r.Choice = first
		case tiebreaker == TiebreakerGreater:
			r.Choice = tied[len(tied)-1]
		}
	}
}

// NearMisses returns up to limit of the best candidates, for not-found
// diagnostics.
func (r *MatchResult) NearMisses(limit int) []Match {
	if r == nil || len(r.Matches) == 0 {
		return nil
	}
	sorted := append([]Match(nil), r.Matches...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Less(&sorted[j])
	})
	if limit > 0 && len(sorted) > limit {
		sorted = sorted[:limit]
	}
	return sorted
}
