// Package apperr defines the sentinel errors shared across layers.
package apperr

import "errors"

var (
	ErrNotFound      = errors.New("not found")
	ErrConflict      = errors.New("conflict")
	ErrInvalidInput  = errors.New("invalid input")
	ErrInvalidConfig = errors.New("invalid configuration")
	ErrEmbedding     = errors.New("embedding failed")
	ErrGeneration    = errors.New("generation failed")
	ErrRetrieval     = errors.New("retrieval failed")
)
