package storage

import (
	"errors"
	"fmt"
	"strings"

	"github.com/liliang-cn/fuzzmatch/pkg/entity"
)

// Common errors
var (
	// ErrKeyNotFound is returned when no candidate clears the score
	// threshold under the raise not-found policy.
	ErrKeyNotFound = errors.New("key not found")

	// ErrAmbiguous is returned when multiple equally-ranked candidates
	// tie and the tiebreaker policy is raise.
	ErrAmbiguous = errors.New("ambiguous tie between candidates")

	// ErrDependencyMissing is returned when a required collaborator,
	// such as an embedder for semantic search, was not provided.
	ErrDependencyMissing = errors.New("required dependency missing")

	// ErrIndexBuild is returned when on-disk table or index
	// construction fails partway.
	ErrIndexBuild = errors.New("index build failed")

	// ErrStoreClosed is returned when using a closed store.
	ErrStoreClosed = errors.New("store is closed")

	// ErrHybridUnsupported is returned when a backend that cannot
	// combine fuzzy and semantic search is constructed with both.
	ErrHybridUnsupported = errors.New("hybrid fuzz+semantic search not supported by this backend")

	// ErrDuplicateEntity is returned when the same value is added twice
	// under the reject duplicate policy.
	ErrDuplicateEntity = errors.New("duplicate entity")
)

// StoreError wraps errors with operation context.
type StoreError struct {
	Op  string // Operation name
	Err error  // Underlying error
}

// Error implements the error interface.
func (e *StoreError) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("fuzzmatch: %v", e.Err)
	}
	return fmt.Sprintf("fuzzmatch: %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error.
func (e *StoreError) Unwrap() error {
	return e.Err
}

// Is checks if the error matches the target.
func (e *StoreError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// WrapError wraps an error with operation context.
func WrapError(op string, err error) error {
	if err == nil {
		return nil
	}
	return &StoreError{Op: op, Err: err}
}

// KeyNotFoundError carries the unresolved key and its best near misses
// so callers can produce an actionable diagnostic. It matches
// ErrKeyNotFound via errors.Is.
type KeyNotFoundError struct {
	Key        string
	NearMisses []entity.Match
	Ambiguous  bool
}

// Error implements the error interface.
func (e *KeyNotFoundError) Error() string {
	var b strings.Builder
	if e.Ambiguous {
		fmt.Fprintf(&b, "fuzzmatch: %q is ambiguous", e.Key)
	} else {
		fmt.Fprintf(&b, "fuzzmatch: %q could not be resolved", e.Key)
	}
	if len(e.NearMisses) > 0 {
		b.WriteString(", near misses:")
		for _, m := range e.NearMisses {
			fmt.Fprintf(&b, " %s (%.1f)", m.Entity.Value, m.Score)
		}
	}
	return b.String()
}

// Is matches ErrKeyNotFound always, and ErrAmbiguous when the failure
// came from an unresolved tie. Ambiguity is handled the same way as not
// found under the raise policy.
func (e *KeyNotFoundError) Is(target error) bool {
	if target == ErrKeyNotFound {
		return true
	}
	return e.Ambiguous && target == ErrAmbiguous
}
