// Package provider implements context production: a registry of named
// providers and the composer that fans them out concurrently and merges
// their results into a deterministic per-turn State. The built-in providers
// cover character identity, wall-clock time, recent conversation history and
// retrieval-augmented knowledge.
package provider
