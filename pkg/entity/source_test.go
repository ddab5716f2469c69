package entity

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	return path
}

func collect(t *testing.T, src Source) []*Entity {
	t.Helper()
	var out []*Entity
	if err := src.Each(func(e *Entity) error {
		out = append(out, e)
		return nil
	}); err != nil {
		t.Fatalf("Each failed: %v", err)
	}
	return out
}

func TestFileSource(t *testing.T) {
	t.Run("JSONL", func(t *testing.T) {
		path := writeFile(t, "fruits.jsonl",
			`{"value": "Apple", "aliases": ["apfel"], "priority": 2}

{"value": "Banana", "color": "yellow"}
`)
		got := collect(t, NewFileSource(path))
		if len(got) != 2 {
			t.Fatalf("expected 2 entities, got %d", len(got))
		}
		if got[0].Value != "Apple" || !got[0].HasAlias("apfel") || *got[0].Priority != 2 {
			t.Errorf("unexpected first entity: %+v", got[0])
		}
		if color, _ := got[1].MetaValue("color"); color != "yellow" {
			t.Errorf("unknown column must land in meta, got %v", color)
		}
	})

	t.Run("CSV", func(t *testing.T) {
		path := writeFile(t, "animals.csv",
			"value,label,aliases,priority\nDog,ANIMAL,puppy|hound,3\nCat,ANIMAL,,\n")
		got := collect(t, NewFileSource(path))
		if len(got) != 2 {
			t.Fatalf("expected 2 entities, got %d", len(got))
		}
		if !reflect.DeepEqual(got[0].Aliases, []string{"puppy", "hound"}) {
			t.Errorf("aliases must split on the pipe, got %v", got[0].Aliases)
		}
		if got[0].Priority == nil || *got[0].Priority != 3 {
			t.Errorf("expected priority 3, got %v", got[0].Priority)
		}
		if got[1].Value != "Cat" || len(got[1].Aliases) != 0 || got[1].Priority != nil {
			t.Errorf("empty cells must stay unset: %+v", got[1])
		}
	})

	t.Run("TSV", func(t *testing.T) {
		path := writeFile(t, "cities.tsv", "value\tlabel\nUlan Bator\tGPE\n")
		got := collect(t, NewFileSource(path))
		if len(got) != 1 || got[0].Value != "Ulan Bator" || got[0].Label != "GPE" {
			t.Errorf("unexpected entities: %+v", got)
		}
	})

	t.Run("Txt", func(t *testing.T) {
		path := writeFile(t, "names.txt", "alpha\n\nbeta\n")
		got := collect(t, NewFileSource(path))
		if len(got) != 2 || got[0].Value != "alpha" || got[1].Value != "beta" {
			t.Errorf("unexpected entities: %+v", got)
		}
	})

	t.Run("UnsupportedExtension", func(t *testing.T) {
		src := NewFileSource("data.parquet")
		if err := src.Each(func(*Entity) error { return nil }); err == nil {
			t.Error("expected error for unsupported file type")
		}
	})

	t.Run("BadPriority", func(t *testing.T) {
		path := writeFile(t, "bad.csv", "value,priority\nx,high\n")
		if err := NewFileSource(path).Each(func(*Entity) error { return nil }); err == nil {
			t.Error("expected error for non-numeric priority")
		}
	})
}

func TestFilterLabel(t *testing.T) {
	src := SliceSource{
		{Value: "Dog", Label: "ANIMAL"},
		{Value: "Paris", Label: "GPE"},
		{Value: "Cat", Label: "ANIMAL"},
	}
	got := collect(t, FilterLabel(src, "ANIMAL"))
	if len(got) != 2 || got[0].Value != "Dog" || got[1].Value != "Cat" {
		t.Errorf("unexpected filtered entities: %+v", got)
	}
}

func TestSourceCallbackError(t *testing.T) {
	stop := errors.New("stop")
	src := SliceSource{{Value: "a"}, {Value: "b"}}
	seen := 0
	err := src.Each(func(*Entity) error {
		seen++
		return stop
	})
	if !errors.Is(err, stop) || seen != 1 {
		t.Errorf("callback error must stop the walk: err=%v seen=%d", err, seen)
	}
}
