package storage

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/liliang-cn/fuzzmatch/pkg/entity"
)

func TestStoreError(t *testing.T) {
	t.Run("WrapsWithOp", func(t *testing.T) {
		err := WrapError("get", ErrStoreClosed)
		if !strings.Contains(err.Error(), "get") {
			t.Errorf("error should carry the operation: %v", err)
		}
		if !errors.Is(err, ErrStoreClosed) {
			t.Error("wrapped sentinel must match via errors.Is")
		}
	})

	t.Run("NilPassthrough", func(t *testing.T) {
		if WrapError("get", nil) != nil {
			t.Error("wrapping nil must return nil")
		}
	})

	t.Run("UnwrapChain", func(t *testing.T) {
		inner := fmt.Errorf("outer: %w", ErrIndexBuild)
		err := WrapError("prepare", inner)
		if !errors.Is(err, ErrIndexBuild) {
			t.Error("deeply wrapped sentinel must still match")
		}
	})
}

func TestKeyNotFoundError(t *testing.T) {
	t.Run("MatchesSentinel", func(t *testing.T) {
		err := &KeyNotFoundError{Key: "dag"}
		if !errors.Is(err, ErrKeyNotFound) {
			t.Error("must match ErrKeyNotFound")
		}
		if errors.Is(err, ErrAmbiguous) {
			t.Error("non-ambiguous failure must not match ErrAmbiguous")
		}
	})

	t.Run("AmbiguousMatchesBoth", func(t *testing.T) {
		err := &KeyNotFoundError{Key: "x", Ambiguous: true}
		if !errors.Is(err, ErrKeyNotFound) || !errors.Is(err, ErrAmbiguous) {
			t.Error("ambiguous failure must match both sentinels")
		}
	})

	t.Run("MessageListsNearMisses", func(t *testing.T) {
		err := &KeyNotFoundError{
			Key: "dag",
			NearMisses: []entity.Match{
				{Entity: &entity.Entity{Value: "dog"}, Score: 75},
			},
		}
		msg := err.Error()
		if !strings.Contains(msg, "dag") || !strings.Contains(msg, "dog") {
			t.Errorf("message should name the key and near misses: %s", msg)
		}
	})
}
