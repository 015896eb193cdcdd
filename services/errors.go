package services

import "errors"

// Sentinel errors surfaced to the HTTP boundary. Validation problems are
// reported as plain errors by the boundary itself and never persisted as
// document state.
var (
	// ErrNotFound means no document record exists for the identity.
	ErrNotFound = errors.New("document not found")

	// ErrAlreadyProcessing is the conflict signal for a dispatch attempt
	// against a document whose conversion is already in flight.
	ErrAlreadyProcessing = errors.New("document is already being processed")

	// ErrAlreadyCompleted is returned when dispatch is attempted on a
	// completed document; an explicit retry is required first.
	ErrAlreadyCompleted = errors.New("document is already completed; retry it to reprocess")

	// ErrConverterUnavailable signals that the primary converter's runtime
	// dependency is missing. It routes the job to the fallback converter
	// and is never a job failure by itself.
	ErrConverterUnavailable = errors.New("primary converter unavailable")
)
