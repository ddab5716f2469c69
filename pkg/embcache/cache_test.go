package embcache

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func TestKey(t *testing.T) {
	t.Run("OrderIndependent", func(t *testing.T) {
		a := Key("model-v1", []string{"dog", "cat"})
		b := Key("model-v1", []string{"cat", "dog"})
		if a != b {
			t.Error("term order must not change the key")
		}
	})

	t.Run("ModelDiscriminates", func(t *testing.T) {
		a := Key("model-v1", []string{"dog"})
		b := Key("model-v2", []string{"dog"})
		if a == b {
			t.Error("different models must hash differently")
		}
	})

	t.Run("TermsDiscriminate", func(t *testing.T) {
		a := Key("m", []string{"dog"})
		b := Key("m", []string{"dog", "cat"})
		if a == b {
			t.Error("different term sets must hash differently")
		}
	})
}

func TestCacheRoundTrip(t *testing.T) {
	c, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	matrix := [][]float32{{1, 2, 3}, {4, 5, 6}}
	key := Key("m", []string{"a", "b"})

	if _, ok, err := c.Load(key); err != nil || ok {
		t.Fatalf("expected clean miss, got ok=%v err=%v", ok, err)
	}

	if err := c.Store(key, matrix); err != nil {
		t.Fatalf("Store failed: %v", err)
	}

	got, ok, err := c.Load(key)
	if err != nil || !ok {
		t.Fatalf("expected hit, got ok=%v err=%v", ok, err)
	}
	if !reflect.DeepEqual(got, matrix) {
		t.Errorf("round trip mismatch: %v", got)
	}
}

func TestCorruptEntryIsAMiss(t *testing.T) {
	dir := t.TempDir()
	c, err := New(dir)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	key := Key("m", []string{"a"})
	if err := os.WriteFile(filepath.Join(dir, key+".vec"), []byte("garbage"), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	if _, ok, err := c.Load(key); err != nil || ok {
		t.Errorf("corrupt entry must read as a miss, got ok=%v err=%v", ok, err)
	}
}

func TestNewCreatesDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "cache")
	if _, err := New(dir); err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if _, err := os.Stat(dir); err != nil {
		t.Errorf("cache directory was not created: %v", err)
	}

	if _, err := New(""); err == nil {
		t.Error("empty directory must be rejected")
	}
}
