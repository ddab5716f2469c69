package entity

import (
	"reflect"
	"testing"
)

func intPtr(v int) *int { return &v }

func TestConvert(t *testing.T) {
	t.Run("String", func(t *testing.T) {
		e, err := Convert("grape")
		if err != nil {
			t.Fatalf("Convert failed: %v", err)
		}
		if e.Value != "grape" || len(e.Aliases) != 0 {
			t.Errorf("unexpected entity: %+v", e)
		}
	})

	t.Run("StringSlice", func(t *testing.T) {
		e, err := Convert([]string{"harpy eagle", "harpy", "harpia"})
		if err != nil {
			t.Fatalf("Convert failed: %v", err)
		}
		if e.Value != "harpy eagle" {
			t.Errorf("expected value 'harpy eagle', got %q", e.Value)
		}
		if !reflect.DeepEqual(e.Aliases, []string{"harpy", "harpia"}) {
			t.Errorf("unexpected aliases: %v", e.Aliases)
		}
	})

	t.Run("AnySlice", func(t *testing.T) {
		e, err := Convert([]any{"dog", "puppy"})
		if err != nil {
			t.Fatalf("Convert failed: %v", err)
		}
		if e.Value != "dog" || !e.HasAlias("puppy") {
			t.Errorf("unexpected entity: %+v", e)
		}
	})

	t.Run("RecordMap", func(t *testing.T) {
		e, err := Convert(map[string]any{
			"value":    "Dog",
			"label":    "ANIMAL",
			"aliases":  []any{"puppy", "hound"},
			"priority": 5,
			"legs":     4,
		})
		if err != nil {
			t.Fatalf("Convert failed: %v", err)
		}
		if e.Value != "Dog" || e.Label != "ANIMAL" {
			t.Errorf("unexpected entity: %+v", e)
		}
		if e.Priority == nil || *e.Priority != 5 {
			t.Errorf("expected priority 5, got %v", e.Priority)
		}
		if legs, ok := e.MetaValue("legs"); !ok || legs != 4 {
			t.Errorf("expected legs=4 in meta, got %v", legs)
		}
	})

	t.Run("NameKey", func(t *testing.T) {
		e, err := Convert(map[string]any{"name": "Cat"})
		if err != nil {
			t.Fatalf("Convert failed: %v", err)
		}
		if e.Value != "Cat" {
			t.Errorf("expected value from name key, got %q", e.Value)
		}
	})

	t.Run("FloatPriority", func(t *testing.T) {
		// JSON decoding produces float64 numbers.
		e, err := Convert(map[string]any{"value": "x", "priority": float64(3)})
		if err != nil {
			t.Fatalf("Convert failed: %v", err)
		}
		if e.Priority == nil || *e.Priority != 3 {
			t.Errorf("expected priority 3, got %v", e.Priority)
		}
	})

	t.Run("Passthrough", func(t *testing.T) {
		in := &Entity{Value: "x"}
		e, err := Convert(in)
		if err != nil {
			t.Fatalf("Convert failed: %v", err)
		}
		if e != in {
			t.Error("expected pointer passthrough")
		}
	})

	t.Run("Invalid", func(t *testing.T) {
		for _, item := range []any{42, []string{}, map[string]any{"label": "X"}} {
			if _, err := Convert(item); err == nil {
				t.Errorf("expected error for %v", item)
			}
		}
	})
}

func TestEntityRank(t *testing.T) {
	t.Run("NilPriorityIsZero", func(t *testing.T) {
		e := &Entity{Value: "x"}
		if e.Rank() != 0 {
			t.Errorf("expected rank 0, got %d", e.Rank())
		}
	})

	t.Run("HigherPrioritySortsFirst", func(t *testing.T) {
		low := &Entity{Value: "a"}
		high := &Entity{Value: "b", Priority: intPtr(10)}
		if !high.Less(low) {
			t.Error("higher priority should order before nil priority")
		}
	})

	t.Run("NegativePrioritySortsLast", func(t *testing.T) {
		neg := &Entity{Value: "a", Priority: intPtr(-1)}
		zero := &Entity{Value: "b"}
		if !zero.Less(neg) {
			t.Error("nil priority should order before negative priority")
		}
	})

	t.Run("ValueBreaksTies", func(t *testing.T) {
		a := &Entity{Value: "apple"}
		b := &Entity{Value: "banana"}
		if !a.Less(b) || b.Less(a) {
			t.Error("equal ranks should order by value")
		}
	})
}

func TestEntityEqual(t *testing.T) {
	a := &Entity{Value: "dog", Label: "ANIMAL"}
	b := &Entity{Value: "dog", Label: "PET", Aliases: []string{"puppy"}}
	if !a.Equal(b) {
		t.Error("entities with the same value should be equal")
	}
	if a.Equal(&Entity{Value: "cat"}) {
		t.Error("entities with different values should not be equal")
	}
	if a.Equal(nil) {
		t.Error("nil should never be equal")
	}
}

func TestEntityMerge(t *testing.T) {
	t.Run("UnionsAliases", func(t *testing.T) {
		a := &Entity{Value: "dog", Aliases: []string{"puppy"}}
		a.Merge(&Entity{Value: "dog", Aliases: []string{"hound", "puppy"}})
		if !reflect.DeepEqual(a.Aliases, []string{"puppy", "hound"}) {
			t.Errorf("unexpected aliases after merge: %v", a.Aliases)
		}
	})

	t.Run("SkipsValueAsAlias", func(t *testing.T) {
		a := &Entity{Value: "dog"}
		a.Merge(&Entity{Value: "dog", Aliases: []string{"dog", "pup"}})
		if a.HasAlias("dog") {
			t.Error("canonical value must not become an alias")
		}
	})

	t.Run("HigherPriorityWins", func(t *testing.T) {
		a := &Entity{Value: "x", Priority: intPtr(1)}
		a.Merge(&Entity{Value: "x", Priority: intPtr(5)})
		if *a.Priority != 5 {
			t.Errorf("expected priority 5, got %d", *a.Priority)
		}
		a.Merge(&Entity{Value: "x", Priority: intPtr(2)})
		if *a.Priority != 5 {
			t.Errorf("lower priority must not overwrite, got %d", *a.Priority)
		}
	})

	t.Run("MetaFillsGapsOnly", func(t *testing.T) {
		a := &Entity{Value: "x", Meta: map[string]any{"color": "red"}}
		a.Merge(&Entity{Value: "x", Meta: map[string]any{"color": "blue", "size": "L"}})
		if v, _ := a.MetaValue("color"); v != "red" {
			t.Errorf("existing meta must win, got %v", v)
		}
		if v, _ := a.MetaValue("size"); v != "L" {
			t.Errorf("missing meta must be copied, got %v", v)
		}
	})
}

func TestEntityTerms(t *testing.T) {
	e := &Entity{Value: "harpy eagle", Aliases: []string{"harpy", "harpia"}}
	got := e.Terms()
	want := []string{"harpy eagle", "harpy", "harpia"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Terms() = %v, want %v", got, want)
	}
}

func TestBlobRoundTrip(t *testing.T) {
	e := &Entity{
		Value:    "Dog",
		Label:    "ANIMAL",
		Aliases:  []string{"puppy"},
		Meta:     map[string]any{"legs": float64(4)},
		Priority: intPtr(2),
	}
	blob, err := e.MarshalBlob()
	if err != nil {
		t.Fatalf("MarshalBlob failed: %v", err)
	}
	got, err := UnmarshalBlob(blob)
	if err != nil {
		t.Fatalf("UnmarshalBlob failed: %v", err)
	}
	if !reflect.DeepEqual(e, got) {
		t.Errorf("round trip mismatch:\n  in:  %+v\n  out: %+v", e, got)
	}

	if _, err := UnmarshalBlob([]byte("{broken")); err == nil {
		t.Error("expected error for corrupt blob")
	}
}
