package storage

import (
	"context"

	"github.com/liliang-cn/fuzzmatch/pkg/entity"
)

// Lookup runs the resolution pipeline over a Storage: query, choose a
// winner under the configured threshold and tiebreaker, and apply the
// not-found policy.
type Lookup struct {
	storage Storage
	opts    Options
}

// NewLookup wires a lookup pipeline to a prepared or lazily-preparing
// storage backend.
func NewLookup(s Storage, opts Options) *Lookup {
	opts.Normalize()
	return &Lookup{storage: s, opts: opts}
}

// Match queries the backend and computes the winning choice. The result
// may have no choice when nothing cleared the threshold or the
// tiebreaker refused to decide.
func (l *Lookup) Match(ctx context.Context, key string) (*entity.MatchResult, error) {
	result, err := l.storage.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	result.Choose(l.opts.MinScore, l.opts.Tiebreaker)
	return result, nil
}

// Resolve maps a key to its entity under the not-found policy: raise
// returns a KeyNotFoundError carrying near-miss diagnostics, none
// returns (nil, nil), and allow synthesizes a pass-through entity whose
// value is the original key.
func (l *Lookup) Resolve(ctx context.Context, key string) (*entity.Entity, error) {
	result, err := l.Match(ctx, key)
	if err != nil {
		return nil, err
	}

	if result.Choice != nil {
		return result.Choice.Entity, nil
	}

	switch l.opts.NotFound {
	case entity.NotFoundAllow:
		return &entity.Entity{Value: key}, nil
	case entity.NotFoundNone:
		return nil, nil
	default:
		// Candidates above the threshold but no choice means the
		// tiebreaker refused to decide.
		ambiguous := false
		for _, m := range result.Matches {
			if m.Score >= l.opts.MinScore {
				ambiguous = true
				break
			}
		}
		return nil, &KeyNotFoundError{
			Key:        key,
			NearMisses: result.NearMisses(l.opts.Limit),
			Ambiguous:  ambiguous,
		}
	}
}
