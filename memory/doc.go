// Package memory holds the curated exemplar store of the learning loop.
//
// A memory is a past interaction whose evaluation cleared the curation
// threshold, embedded and stored so future queries can retrieve it as
// few-shot context. Memories are permanent: the store is append-only
// with no update or delete path.
//
// Architecture:
//   - Store: vector storage backend (chromem-go embedded for local use,
//     a hosted index in production)
//   - Embedder: text-to-vector conversion (OpenAI hosted, ONNX local,
//     mock for tests)
//   - Curator: reflection.complete subscriber that decides promotion
//
// Integration:
//   - CURATE phase: Curator consumes reflection.complete and promotes
//     or discards the interaction
//   - RETRIEVE phase: the retrieval package queries the Store for
//     similar, sufficiently high-quality memories
package memory
