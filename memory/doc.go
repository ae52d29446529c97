// Package memory is the long-term recall subsystem: it turns completed
// exchanges into embedded chunks and scores them back out of the vector
// store when a later turn needs them.
//
// Architecture:
//   - Store: vector storage backend (chromem-go locally, pgvector for
//     production deployments)
//   - Embedder: text-to-vector conversion (local ONNX model, or a provider
//     API behind the same interface)
//   - Manager: orchestrates the write path and the retrieval engine
//
// Retrieval blends semantic similarity with recency decay, applies an
// adaptive top-K cutoff at the first natural gap in the score distribution,
// and reinforces whatever it returns by advancing lastAccessedAt. Using a
// memory is what keeps it warm; an external maintenance job demotes and
// eventually drops what goes unused.
//
// Every operation here is best-effort relative to the conversational turn:
// the assistant must always be able to answer, even memory-blind.
package memory
