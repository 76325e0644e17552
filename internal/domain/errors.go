package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a referenced session does not exist.
	ErrNotFound = errors.New("session not found")
	// ErrEmptyInput is returned when no usable content could be extracted.
	ErrEmptyInput = errors.New("no readable content in input")
	// ErrNotReady is returned when a question is asked before any documents were processed.
	ErrNotReady = errors.New("knowledge base not ready: upload and process documents first")
	// ErrDimensionMismatch is returned when vectors do not match the knowledge base dimension.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
)

// UpstreamError wraps a failure of an extraction, embedding, index or
// completion collaborator. It is never retried internally.
type UpstreamError struct {
	Op  string
	Err error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

// Upstream wraps err as an UpstreamError unless it already is one or is nil.
func Upstream(op string, err error) error {
	if err == nil {
		return nil
	}
	var ue *UpstreamError
	if errors.As(err, &ue) {
		return err
	}
	return &UpstreamError{Op: op, Err: err}
}

// IsUpstream reports whether err is (or wraps) an UpstreamError.
func IsUpstream(err error) bool {
	var ue *UpstreamError
	return errors.As(err, &ue)
}
