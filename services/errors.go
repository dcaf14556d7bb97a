package services

import (
	"errors"
	"fmt"
)

// ErrModelNotReady signals that a query arrived before the process had a
// working embedder and index, mirroring the single-fragment error stream the
// query endpoint emits in that state.
var ErrModelNotReady = errors.New("models or index not initialized, ingest a document first")

// DecodeError marks input that could not be parsed as a document. The HTTP
// layer maps it to a client error.
type DecodeError struct {
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("failed to decode document: %v", e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// CollaboratorError wraps a failure of an external model collaborator (the
// embedding sidecar or the generation backend). The HTTP layer maps it to a
// bad-gateway response.
type CollaboratorError struct {
	Op  string
	Err error
}

func (e *CollaboratorError) Error() string {
	return fmt.Sprintf("%s collaborator failed: %v", e.Op, e.Err)
}

func (e *CollaboratorError) Unwrap() error { return e.Err }

// IndexError wraps a failure of the vector index backend.
type IndexError struct {
	Op  string
	Err error
}

func (e *IndexError) Error() string {
	return fmt.Sprintf("vector index %s failed: %v", e.Op, e.Err)
}

func (e *IndexError) Unwrap() error { return e.Err }
