package scorer

import "testing"

func TestClean(t *testing.T) {
	cases := []struct{ in, want string }{
		{"Hello, World!", "hello world"},
		{"  spaced   out  ", "spaced out"},
		{"a1-b2_c3", "a1 b2 c3"},
		{"", ""},
		{"---", ""},
	}
	for _, c := range cases {
		if got := Clean(c.in); got != c.want {
			t.Errorf("Clean(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestLevenshtein(t *testing.T) {
	cases := []struct {
		a, b string
		want int
	}{
		{"", "", 0},
		{"abc", "", 3},
		{"", "abc", 3},
		{"kitten", "sitting", 3},
		{"flaw", "lawn", 2},
		{"same", "same", 0},
	}
	for _, c := range cases {
		if got := levenshtein(c.a, c.b); got != c.want {
			t.Errorf("levenshtein(%q, %q) = %d, want %d", c.a, c.b, got, c.want)
		}
	}
}

func TestTokenSortRatio(t *testing.T) {
	s := NewTokenSortRatio()

	t.Run("ExactScores100", func(t *testing.T) {
		got := s.Extract("harpy eagle", []string{"harpy eagle"}, 1)
		if got[0].Score != 100 {
			t.Errorf("expected 100, got %f", got[0].Score)
		}
	})

	t.Run("WordOrderIgnored", func(t *testing.T) {
		got := s.Extract("eagle harpy", []string{"harpy eagle"}, 1)
		if got[0].Score != 100 {
			t.Errorf("token sort must ignore word order, got %f", got[0].Score)
		}
	})

	t.Run("TopKOrdering", func(t *testing.T) {
		got := s.Extract("grape", []string{"grappa", "grape", "apple"}, 2)
		if len(got) != 2 {
			t.Fatalf("expected 2 results, got %d", len(got))
		}
		if got[0].Term != "grape" || got[0].Index != 1 {
			t.Errorf("best match should be grape at index 1, got %+v", got[0])
		}
		if got[1].Term != "grappa" {
			t.Errorf("second match should be grappa, got %+v", got[1])
		}
		if got[0].Score <= got[1].Score {
			t.Errorf("scores must descend: %f then %f", got[0].Score, got[1].Score)
		}
	})

	t.Run("NearMissScoresBelow100", func(t *testing.T) {
		got := s.Extract("harpy eagl", []string{"harpy eagle"}, 1)
		if got[0].Score >= 100 || got[0].Score < 80 {
			t.Errorf("one-character miss should score in the high band, got %f", got[0].Score)
		}
	})
}

func TestRatio(t *testing.T) {
	r := NewRatio()
	got := r.Extract("eagle harpy", []string{"harpy eagle"}, 1)
	if got[0].Score == 100 {
		t.Error("plain ratio must be order sensitive")
	}
	got = r.Extract("abc", []string{"abc"}, 1)
	if got[0].Score != 100 {
		t.Errorf("identical strings must score 100, got %f", got[0].Score)
	}
}
