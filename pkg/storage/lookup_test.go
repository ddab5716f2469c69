package storage

import (
	"context"
	"errors"
	"testing"

	"github.com/liliang-cn/fuzzmatch/pkg/entity"
)

// fakeStorage serves canned match results keyed by query string.
type fakeStorage struct {
	results map[string]*entity.MatchResult
}

func (f *fakeStorage) Add(context.Context, *entity.Entity) error { return nil }
func (f *fakeStorage) Prepare(context.Context) error             { return nil }
func (f *fakeStorage) Close() error                              { return nil }

func (f *fakeStorage) Get(_ context.Context, key string) (*entity.MatchResult, error) {
	if r, ok := f.results[key]; ok {
		return r, nil
	}
	return &entity.MatchResult{}, nil
}

func fixture() *fakeStorage {
	return &fakeStorage{results: map[string]*entity.MatchResult{
		"dog": {Matches: []entity.Match{
			{Key: "dog", Entity: &entity.Entity{Value: "dog"}, Term: "dog", Score: 100},
		}},
		"dag": {Matches: []entity.Match{
			{Key: "dag", Entity: &entity.Entity{Value: "dog"}, Term: "dog", Score: 75},
		}},
		"tie": {Matches: []entity.Match{
			{Key: "tie", Entity: &entity.Entity{Value: "alpha"}, Term: "alpha", Score: 90},
			{Key: "tie", Entity: &entity.Entity{Value: "beta"}, Term: "beta", Score: 90},
		}},
	}}
}

func TestLookupMatch(t *testing.T) {
	l := NewLookup(fixture(), Options{MinScore: 80})

	result, err := l.Match(context.Background(), "dog")
	if err != nil {
		t.Fatalf("Match failed: %v", err)
	}
	if result.Entity() == nil || result.Entity().Value != "dog" {
		t.Errorf("expected dog, got %v", result.Entity())
	}

	result, err = l.Match(context.Background(), "dag")
	if err != nil {
		t.Fatalf("Match failed: %v", err)
	}
	if result.Choice != nil {
		t.Errorf("below-threshold match must not be chosen: %v", result.Choice)
	}
	if result.Empty() {
		t.Error("the near miss should still be reported")
	}
}

func TestLookupResolve(t *testing.T) {
	t.Run("Found", func(t *testing.T) {
		l := NewLookup(fixture(), Options{MinScore: 80})
		e, err := l.Resolve(context.Background(), "dog")
		if err != nil {
			t.Fatalf("Resolve failed: %v", err)
		}
		if e.Value != "dog" {
			t.Errorf("expected dog, got %q", e.Value)
		}
	})

	t.Run("RaisePolicy", func(t *testing.T) {
		l := NewLookup(fixture(), Options{MinScore: 80, NotFound: entity.NotFoundRaise})
		_, err := l.Resolve(context.Background(), "dag")
		if !errors.Is(err, ErrKeyNotFound) {
			t.Fatalf("expected ErrKeyNotFound, got %v", err)
		}
		var kerr *KeyNotFoundError
		if !errors.As(err, &kerr) {
			t.Fatal("expected a KeyNotFoundError")
		}
		if len(kerr.NearMisses) != 1 || kerr.NearMisses[0].Entity.Value != "dog" {
			t.Errorf("near misses should carry the close candidate: %+v", kerr.NearMisses)
		}
		if kerr.Ambiguous {
			t.Error("a below-threshold miss is not ambiguous")
		}
	})

	t.Run("NonePolicy", func(t *testing.T) {
		l := NewLookup(fixture(), Options{MinScore: 80, NotFound: entity.NotFoundNone})
		e, err := l.Resolve(context.Background(), "dag")
		if err != nil || e != nil {
			t.Errorf("none policy must return (nil, nil), got (%v, %v)", e, err)
		}
	})

	t.Run("AllowPolicy", func(t *testing.T) {
		l := NewLookup(fixture(), Options{MinScore: 80, NotFound: entity.NotFoundAllow})
		e, err := l.Resolve(context.Background(), "dag")
		if err != nil {
			t.Fatalf("Resolve failed: %v", err)
		}
		if e == nil || e.Value != "dag" {
			t.Errorf("allow policy must pass the key through, got %v", e)
		}
	})

	t.Run("AmbiguousTie", func(t *testing.T) {
		l := NewLookup(fixture(), Options{MinScore: 80, NotFound: entity.NotFoundRaise})
		_, err := l.Resolve(context.Background(), "tie")
		if !errors.Is(err, ErrAmbiguous) {
			t.Fatalf("expected ErrAmbiguous, got %v", err)
		}
		if !errors.Is(err, ErrKeyNotFound) {
			t.Error("ambiguity is also a not-found failure")
		}
	})

	t.Run("TieResolvedByLesser", func(t *testing.T) {
		l := NewLookup(fixture(), Options{
			MinScore:   80,
			Tiebreaker: entity.TiebreakerLesser,
		})
		e, err := l.Resolve(context.Background(), "tie")
		if err != nil {
			t.Fatalf("Resolve failed: %v", err)
		}
		if e.Value != "alpha" {
			t.Errorf("lesser tiebreaker must choose alpha, got %q", e.Value)
		}
	})
}

func TestOptionsValidate(t *testing.T) {
	t.Run("HybridRejected", func(t *testing.T) {
		o := Options{SearchFlag: entity.HybridSearch}
		o.Normalize()
		if err := o.Validate(false); !errors.Is(err, ErrHybridUnsupported) {
			t.Errorf("expected ErrHybridUnsupported, got %v", err)
		}
	})

	t.Run("SemanticNeedsEmbedder", func(t *testing.T) {
		o := Options{SearchFlag: entity.SemanticSearch}
		o.Normalize()
		if err := o.Validate(true); !errors.Is(err, ErrDependencyMissing) {
			t.Errorf("expected ErrDependencyMissing, got %v", err)
		}
	})

	t.Run("Defaults", func(t *testing.T) {
		o := Options{}
		o.Normalize()
		if o.Limit != 10 || o.MinScore != 80.0 || o.SearchFlag != entity.DefaultSearch {
			t.Errorf("unexpected defaults: %+v", o)
		}
		if o.Scorer == nil || o.Logger == nil {
			t.Error("scorer and logger must default to non-nil")
		}
	})
}

func TestNormalizeKey(t *testing.T) {
	o := Options{}
	if got := o.NormalizeKey("  Ulan Bator "); got != "ulan bator" {
		t.Errorf("NormalizeKey = %q", got)
	}
	o.CaseSensitive = true
	if got := o.NormalizeKey(" Ulan Bator "); got != "Ulan Bator" {
		t.Errorf("case-sensitive NormalizeKey = %q", got)
	}
}
