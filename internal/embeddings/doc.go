// Package embeddings turns chunk text into vectors for the vector store.
//
// Two providers exist: "hash", a deterministic feature-hashing embedder
// that needs no model and is the default, and "tei", an HTTP client for a
// Text Embeddings Inference server. NewProvider picks one from config.
package embeddings
