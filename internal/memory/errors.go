package memory

import (
	"errors"

	"github.com/evermemo/evermemo/internal/recall"
)

var (
	// ErrExtraction wraps extraction failures during ingestion. Nothing is
	// persisted when extraction fails.
	ErrExtraction = errors.New("memory extraction failed")

	// ErrEmbedding wraps embedding failures during ingestion. Nothing is
	// persisted when embedding fails.
	ErrEmbedding = errors.New("memory embedding failed")

	// ErrIndexUnavailable surfaces a broken retrieval index.
	ErrIndexUnavailable = recall.ErrIndexUnavailable
)
