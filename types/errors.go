package types

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvoiceNotFound is returned by store lookups for unknown invoice ids.
var ErrInvoiceNotFound = errors.New("invoice not found")

// ExtractionIncompleteError marks a document whose required fields are
// missing or below the confidence threshold. The document is skipped and
// the rest of the batch continues.
type ExtractionIncompleteError struct {
	SourceFile string
	Field      string
	Reason     string
}

func (e *ExtractionIncompleteError) Error() string {
	return fmt.Sprintf("extraction incomplete for %s: field %q %s", e.SourceFile, e.Field, e.Reason)
}

// SchemaConflictError reports that the index exists with a different
// schema. Never migrated silently; the operator has to reset the index.
type SchemaConflictError struct {
	IndexName string
	Detail    string
}

func (e *SchemaConflictError) Error() string {
	return fmt.Sprintf("index %q exists with a conflicting schema: %s", e.IndexName, e.Detail)
}

// GenerationUnavailableError wraps transient failures of the generation
// backend. Retryable.
type GenerationUnavailableError struct {
	Err error
}

func (e *GenerationUnavailableError) Error() string {
	return fmt.Sprintf("generation backend unavailable: %v", e.Err)
}

func (e *GenerationUnavailableError) Unwrap() error {
	return e.Err
}

// GroundingViolationError reports an answer citing invoice ids that were
// not part of the grounding context. Never silently trusted.
type GroundingViolationError struct {
	UnknownIDs []string
}

func (e *GroundingViolationError) Error() string {
	return fmt.Sprintf("answer cites invoices outside the grounding context: %s", strings.Join(e.UnknownIDs, ", "))
}

// UnsupportedGenerationParameterError reports that the generation backend
// rejected a request parameter. Retried once with the adapted parameter
// before being surfaced.
type UnsupportedGenerationParameterError struct {
	Param string
	Err   error
}

func (e *UnsupportedGenerationParameterError) Error() string {
	return fmt.Sprintf("generation backend rejected parameter %q: %v", e.Param, e.Err)
}

func (e *UnsupportedGenerationParameterError) Unwrap() error {
	return e.Err
}

// IsExtractionIncomplete reports whether err is an ExtractionIncompleteError.
func IsExtractionIncomplete(err error) bool {
	var e *ExtractionIncompleteError
	return errors.As(err, &e)
}

// IsSchemaConflict reports whether err is a SchemaConflictError.
func IsSchemaConflict(err error) bool {
	var e *SchemaConflictError
	return errors.As(err, &e)
}

// IsGenerationUnavailable reports whether err is a GenerationUnavailableError.
func IsGenerationUnavailable(err error) bool {
	var e *GenerationUnavailableError
	return errors.As(err, &e)
}

// IsGroundingViolation reports whether err is a GroundingViolationError.
func IsGroundingViolation(err error) bool {
	var e *GroundingViolationError
	return errors.As(err, &e)
}
