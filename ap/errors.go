/*
errors.go - Centralized error types for the AP engine

PURPOSE:
  Business-rule failures (price mismatch, missing item, duplicate) are never
  errors; they are FAIL entries in the match trace. Everything in this file
  is an infrastructure or client error.

ERROR CATEGORIES:
  1. Lookup errors - Missing invoice, PO, GRN, job
  2. Validation errors - Bad status strings, illegal transitions, bad payloads
  3. Extraction errors - The document-understanding service failed

SEE ALSO:
  - status.go: Raises ErrInvalidStatus
  - store/sqlite: Maps constraint violations to ErrDuplicateDocument
  - api/handlers.go: Maps these to HTTP status codes
*/
package ap

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrNotFound is returned when a referenced record doesn't exist.
	ErrNotFound = errors.New("not found")

	// ErrDuplicateDocument is returned when a PO or GRN number is already stored.
	ErrDuplicateDocument = errors.New("duplicate document number")

	// ErrDuplicateRule is returned when an equivalent automation rule exists.
	ErrDuplicateRule = errors.New("equivalent automation rule already exists")

	ErrInvalidStatus     = errors.New("invalid status")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrInvalidDate       = errors.New("invalid date")
	ErrInvalidInput      = errors.New("invalid input")

	// ErrInvalidPayload is returned when extracted JSON fails boundary validation.
	ErrInvalidPayload = errors.New("invalid extraction payload")

	// ErrUnknownDocumentType is returned for a document_type outside the known set.
	ErrUnknownDocumentType = errors.New("unknown document type")

	// ErrExtractionFailed is returned when the extraction service cannot process a file.
	ErrExtractionFailed = errors.New("extraction failed")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// NotFoundError names the missing entity.
type NotFoundError struct {
	Entity string
	Key    string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Entity, e.Key)
}

func (e *NotFoundError) Unwrap() error {
	return ErrNotFound
}

// TransitionError reports an illegal status change.
type TransitionError struct {
	InvoiceRowID int64
	From         Status
	To           Status
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("invoice %d: cannot move from %s to %s", e.InvoiceRowID, e.From, e.To)
}

func (e *TransitionError) Unwrap() error {
	return ErrInvalidTransition
}

// ExtractionError carries the service's error message for a single file.
type ExtractionError struct {
	Filename string
	Message  string
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extraction failed for %s: %s", e.Filename, e.Message)
}

func (e *ExtractionError) Unwrap() error {
	return ErrExtractionFailed
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidStatus) ||
		errors.Is(err, ErrInvalidTransition) ||
		errors.Is(err, ErrInvalidDate) ||
		errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, ErrInvalidPayload)
}

// IsConflict returns true if the error is a uniqueness violation.
func IsConflict(err error) bool {
	return errors.Is(err, ErrDuplicateDocument) ||
		errors.Is(err, ErrDuplicateRule)
}

// IsNotFound returns true if the error indicates a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
