package entity

import "testing"

func match(value string, score float64, priority *int) Match {
	return Match{
		Key:    "q",
		Entity: &Entity{Value: value, Priority: priority},
		Term:   value,
		Score:  score,
	}
}

func TestChoose(t *testing.T) {
	t.Run("SingleWinner", func(t *testing.T) {
		r := &MatchResult{}
		r.Append(match("apple", 95, nil))
		r.Append(match("banana", 85, nil))
		r.Choose(80, TiebreakerRaise)
		if r.Entity() == nil || r.Entity().Value != "apple" {
			t.Errorf("expected apple, got %v", r.Entity())
		}
	})

	t.Run("ThresholdBoundaryInclusive", func(t *testing.T) {
		r := &MatchResult{}
		r.Append(match("exact", 80, nil))
		r.Choose(80, TiebreakerRaise)
		if r.Choice == nil {
			t.Error("a match scoring exactly the threshold must be chosen")
		}
	})

	t.Run("BelowThresholdNoChoice", func(t *testing.T) {
		r := &MatchResult{}
		r.Append(match("close", 79.9, nil))
		r.Choose(80, TiebreakerRaise)
		if r.Choice != nil {
			t.Errorf("expected no choice, got %v", r.Choice)
		}
	})

	t.Run("TieRaiseMakesNoChoice", func(t *testing.T) {
		r := &MatchResult{}
		r.Append(match("c", 90, nil))
		r.Append(match("a", 90, nil))
		r.Append(match("d", 90, nil))
		r.Choose(80, TiebreakerRaise)
		if r.Choice != nil {
			t.Errorf("raise must refuse tied candidates, got %v", r.Choice)
		}
	})

	t.Run("TieLesserTakesSmallestValue", func(t *testing.T) {
		r := &MatchResult{}
		r.Append(match("c", 90, nil))
		r.Append(match("a", 90, nil))
		r.Append(match("d", 90, nil))
		r.Choose(80, TiebreakerLesser)
		if r.Entity() == nil || r.Entity().Value != "a" {
			t.Errorf("expected a, got %v", r.Entity())
		}
	})

	t.Run("TieGreaterTakesLargestValue", func(t *testing.T) {
		r := &MatchResult{}
		r.Append(match("c", 90, nil))
		r.Append(match("a", 90, nil))
		r.Append(match("d", 90, nil))
		r.Choose(80, TiebreakerGreater)
		if r.Entity() == nil || r.Entity().Value != "d" {
			t.Errorf("expected d, got %v", r.Entity())
		}
	})

	t.Run("PriorityBreaksScoreTie", func(t *testing.T) {
		r := &MatchResult{}
		r.Append(match("low", 90, nil))
		r.Append(match("high", 90, intPtr(10)))
		r.Choose(80, TiebreakerRaise)
		if r.Entity() == nil || r.Entity().Value != "high" {
			t.Errorf("priority must break the tie, got %v", r.Entity())
		}
	})

	t.Run("SameEntityTwiceIsNotATie", func(t *testing.T) {
		// The same entity reached through its name and an alias ties on
		// rank but is one logical entity, so raise still chooses it.
		e := &Entity{Value: "dog", Aliases: []string{"hound"}}
		r := &MatchResult{}
		r.Append(Match{Key: "q", Entity: e, Term: "dog", Score: 90})
		r.Append(Match{Key: "q", Entity: e, Term: "hound", IsAlias: true, Score: 90})
		r.Choose(80, TiebreakerRaise)
		if r.Entity() == nil || r.Entity().Value != "dog" {
			t.Errorf("duplicate entity must not raise, got %v", r.Entity())
		}
	})

	t.Run("Idempotent", func(t *testing.T) {
		r := &MatchResult{}
		r.Append(match("apple", 95, nil))
		r.Choose(80, TiebreakerRaise)
		first := r.Choice
		r.Choose(80, TiebreakerRaise)
		if r.Choice != first {
			t.Error("repeat Choose must recompute to the same winner")
		}
		r.Choose(99, TiebreakerRaise)
		if r.Choice != nil {
			t.Error("a stricter threshold must clear the previous choice")
		}
	})

	t.Run("EmptyResult", func(t *testing.T) {
		r := &MatchResult{}
		r.Choose(80, TiebreakerRaise)
		if r.Choice != nil || !r.Empty() {
			t.Error("empty result must stay empty")
		}
	})
}

func TestNearMisses(t *testing.T) {
	r := &MatchResult{}
	r.Append(match("banana", 60, nil))
	r.Append(match("apple", 75, nil))
	r.Append(match("cherry", 50, nil))

	misses := r.NearMisses(2)
	if len(misses) != 2 {
		t.Fatalf("expected 2 near misses, got %d", len(misses))
	}
	if misses[0].Entity.Value != "apple" || misses[1].Entity.Value != "banana" {
		t.Errorf("unexpected order: %v, %v", misses[0].Entity.Value, misses[1].Entity.Value)
	}

	if got := (&MatchResult{}).NearMisses(5); got != nil {
		t.Errorf("expected nil for empty result, got %v", got)
	}
}
