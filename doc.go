// Package fuzzmatch resolves free-form strings to known entities.
//
// fuzzmatch is a 100% pure Go library for entity resolution: it maps
// misspelled, reordered, aliased or merely similar strings onto a
// vocabulary of canonical entities. Vocabularies live in memory or in a
// single SQLite database file using modernc.org/sqlite (no CGO
// required), with FTS5 powering the fuzzy candidate shortlist and an
// IVF vector index powering semantic search at scale.
//
// # Key Features
//
//   - Search cascade - exact name, alias, fuzzy string similarity and
//     semantic vector similarity, tried in order with the first
//     non-empty strategy winning.
//   - Shared score scale - every strategy scores candidates on 0-100,
//     so one threshold governs all of them.
//   - Tie and miss policies - ambiguous ties can raise, and unresolved
//     keys can raise, return nil, or pass through unchanged.
//   - Pluggable encoder - bring any embedding model by implementing the
//     storage.Embedder interface.
//   - Batched ingestion - large vocabularies stream in fixed-size
//     batches with one encoder call per batch.
//
// # Quick Start
//
//	import (
//	    "context"
//	    "github.com/liliang-cn/fuzzmatch"
//	    "github.com/liliang-cn/fuzzmatch/pkg/entity"
//	)
//
//	func main() {
//	    cfg := fuzzmatch.DefaultConfig("") // in-memory
//	    cfg.Search = entity.FuzzSearch
//	    cfg.Source = entity.SliceSource{
//	        entity.New("harpy eagle", "harpy", "harpia harpyja"),
//	        entity.New("bald eagle"),
//	    }
//
//	    r, _ := fuzzmatch.Open(cfg)
//	    defer r.Close()
//
//	    e, _ := r.Resolve(context.Background(), "harpy eagl")
//	    _ = e // harpy eagle
//	}
//
// # On-Disk Vocabularies
//
// Pass a database path to persist the vocabulary. Several vocabularies
// can share one file:
//
//	cfg := fuzzmatch.DefaultConfig("entities.db")
//	cfg.Vocabulary = "animals"
//	cfg.Source = entity.NewFileSource("animals.csv")
//
//	r, err := fuzzmatch.Open(cfg)
//
// # Semantic and Hybrid Search
//
// Semantic search needs an embedder; the on-disk backend can also run
// fuzzy and semantic search together and merge the results:
//
//	cfg.Search = entity.HybridSearch
//	r, err := fuzzmatch.Open(cfg, fuzzmatch.WithEmbedder(myEmbedder))
//
// # Not-Found Policies
//
// When nothing clears the threshold, the configured policy decides:
//
//	cfg.NotFound = entity.NotFoundRaise // error with near misses (default)
//	cfg.NotFound = entity.NotFoundNone  // (nil, nil)
//	cfg.NotFound = entity.NotFoundAllow // pass the key through as an entity
//
// For lower-level control, use the backends directly: pkg/memstore and
// pkg/diskstore both implement the storage.Storage contract.
package fuzzmatch
