package models

import "fmt"

// IndexLoadError means the corpus root could not be read at all. It is
// fatal to Load; nothing about the journal can be served.
type IndexLoadError struct {
	Root string
	Err  error
}

func (e *IndexLoadError) Error() string {
	return fmt.Sprintf("load index for %s: %v", e.Root, e.Err)
}

func (e *IndexLoadError) Unwrap() error { return e.Err }

// EntryReadError means a single entry file was unreadable or
// unparseable. The entry is skipped and the index proceeds.
type EntryReadError struct {
	Path string
	Err  error
}

func (e *EntryReadError) Error() string {
	return fmt.Sprintf("read entry %s: %v", e.Path, e.Err)
}

func (e *EntryReadError) Unwrap() error { return e.Err }

// EmbeddingBackendError wraps a failure talking to the external
// embedding service. Query paths degrade to lexical-only or no-context
// rather than surfacing it to the chat flow.
type EmbeddingBackendError struct {
	Provider string
	Err      error
}

func (e *EmbeddingBackendError) Error() string {
	return fmt.Sprintf("embedding backend %s: %v", e.Provider, e.Err)
}

func (e *EmbeddingBackendError) Unwrap() error { return e.Err }

// StaleEmbeddingModelError means the persisted vector snapshot was
// produced by a different embedding model (or dimensionality) than the
// configured backend. Vector search stays disabled until a full
// regeneration completes; lexical search is unaffected.
type StaleEmbeddingModelError struct {
	IndexedModel    string
	IndexedDims     int
	ConfiguredModel string
	ConfiguredDims  int
}

func (e *StaleEmbeddingModelError) Error() string {
	return fmt.Sprintf("vector snapshot built with %s (%d dims), backend configured for %s (%d dims): regeneration required",
		e.IndexedModel, e.IndexedDims, e.ConfiguredModel, e.ConfiguredDims)
}
