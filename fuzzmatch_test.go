package fuzzmatch

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/liliang-cn/fuzzmatch/pkg/diskstore"
	"github.com/liliang-cn/fuzzmatch/pkg/entity"
	"github.com/liliang-cn/fuzzmatch/pkg/memstore"
	"github.com/liliang-cn/fuzzmatch/pkg/storage"
)

func TestOpenSelectsBackend(t *testing.T) {
	t.Run("Memory", func(t *testing.T) {
		r, err := Open(DefaultConfig(""))
		if err != nil {
			t.Fatalf("Open failed: %v", err)
		}
		defer r.Close()
		if _, ok := r.Storage().(*memstore.Store); !ok {
			t.Errorf("empty path must select the in-memory backend, got %T", r.Storage())
		}
	})

	t.Run("Disk", func(t *testing.T) {
		r, err := Open(DefaultConfig(filepath.Join(t.TempDir(), "x.db")))
		if err != nil {
			t.Fatalf("Open failed: %v", err)
		}
		defer r.Close()
		if _, ok := r.Storage().(*diskstore.Store); !ok {
			t.Errorf("a path must select the on-disk backend, got %T", r.Storage())
		}
	})
}

func TestResolverEndToEnd(t *testing.T) {
	cfg := DefaultConfig("")
	cfg.Search = entity.FuzzSearch
	cfg.Source = entity.SliceSource{
		entity.New("harpy eagle", "harpy"),
		entity.New("bald eagle"),
	}

	r, err := Open(cfg)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer r.Close()
	ctx := context.Background()

	t.Run("ExactResolve", func(t *testing.T) {
		e, err := r.Resolve(ctx, "harpy")
		if err != nil {
			t.Fatalf("Resolve failed: %v", err)
		}
		if e.Value != "harpy eagle" {
			t.Errorf("expected harpy eagle, got %q", e.Value)
		}
	})

	t.Run("FuzzyResolve", func(t *testing.T) {
		e, err := r.Resolve(ctx, "harpy eagl")
		if err != nil {
			t.Fatalf("Resolve failed: %v", err)
		}
		if e.Value != "harpy eagle" {
			t.Errorf("expected harpy eagle, got %q", e.Value)
		}
	})

	t.Run("NotFoundRaises", func(t *testing.T) {
		_, err := r.Resolve(ctx, "qqqqqqqq")
		if !errors.Is(err, storage.ErrKeyNotFound) {
			t.Errorf("expected ErrKeyNotFound, got %v", err)
		}
	})

	t.Run("MatchExposesCandidates", func(t *testing.T) {
		result, err := r.Match(ctx, "harpy eagl")
		if err != nil {
			t.Fatalf("Match failed: %v", err)
		}
		if result.Empty() || result.Choice == nil {
			t.Errorf("expected a chosen match, got %+v", result)
		}
	})

	t.Run("AddThenResolve", func(t *testing.T) {
		if err := r.Add(ctx, entity.New("osprey", "fish hawk")); err != nil {
			t.Fatalf("Add failed: %v", err)
		}
		e, err := r.Resolve(ctx, "fish hawk")
		if err != nil {
			t.Fatalf("Resolve failed: %v", err)
		}
		if e.Value != "osprey" {
			t.Errorf("expected osprey, got %q", e.Value)
		}
	})
}

func TestRegistry(t *testing.T) {
	reg := NewRegistry()
	defer reg.Close()
	ctx := context.Background()

	animals, err := Open(Config{Search: entity.AliasSearch, MinScore: 80, Limit: 10,
		Source: entity.SliceSource{entity.New("Dog", "puppy")}})
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	fruits, err := Open(Config{Search: entity.AliasSearch, MinScore: 80, Limit: 10,
		Source: entity.SliceSource{entity.New("Apple")}})
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	reg.Register("animals", animals)
	reg.Register("fruits", fruits)

	e, err := reg.Resolve(ctx, "animals", "puppy")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if e.Value != "Dog" {
		t.Errorf("expected Dog, got %q", e.Value)
	}

	if _, err := reg.Resolve(ctx, "vehicles", "car"); err == nil {
		t.Error("unknown vocabulary must error")
	}

	if _, ok := reg.Lookup("fruits"); !ok {
		t.Error("registered resolver must be found")
	}
}
