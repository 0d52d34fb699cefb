package util

import "errors"

var (
	// A document that yields no text fails alone; the rest of the batch
	// keeps going.
	ErrNoExtractableText = errors.New("no extractable text found in document")

	// ErrModelUnavailable means the embedding model could not be reached at
	// all. It aborts the whole embedding run; nothing partial is persisted
	// for the failed run.
	ErrModelUnavailable = errors.New("embedding model unavailable")

	// Index artifact errors. Stale is recovered by a rebuild and never
	// reaches a caller; corrupt requires a full rebuild from the store.
	ErrIndexStale   = errors.New("index artifact stale")
	ErrIndexCorrupt = errors.New("index artifact corrupt")

	ErrQuotaExhausted = errors.New("provider quota exhausted")
	ErrRateLimited    = errors.New("provider rate limited")
	ErrTransient      = errors.New("transient provider error")
	ErrPermanent      = errors.New("permanent provider error")
	ErrContextTooLong = errors.New("context too long")
)
