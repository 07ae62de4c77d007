package errors

import (
	"errors"
	"fmt"
)

// Common error types for categorization and handling

var (
	// ErrRetrievalUnavailable indicates the document index or store is not ready
	ErrRetrievalUnavailable = errors.New("retrieval unavailable")

	// ErrTranscription indicates the speech-to-text provider failed
	ErrTranscription = errors.New("transcription failed")

	// ErrGeneration indicates the text-generation provider failed
	ErrGeneration = errors.New("generation failed")

	// ErrSynthesis indicates the speech-synthesis provider failed
	ErrSynthesis = errors.New("synthesis failed")

	// ErrMissingInput indicates a merit calculation was attempted without required marks
	ErrMissingInput = errors.New("missing input")

	// ErrInvalidSession indicates the caller referenced an expired or unknown session
	ErrInvalidSession = errors.New("invalid session")

	// ErrInvalidInput indicates invalid user input
	ErrInvalidInput = errors.New("invalid input")
)

// WrapError wraps an error with context message
func WrapError(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// WrapErrorf wraps an error with formatted context message
func WrapErrorf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	message := fmt.Sprintf(format, args...)
	return fmt.Errorf("%s: %w", message, err)
}

// IsTranscription checks if error came from the speech-to-text provider
func IsTranscription(err error) bool {
	return errors.Is(err, ErrTranscription)
}

// IsGeneration checks if error came from the text-generation provider
func IsGeneration(err error) bool {
	return errors.Is(err, ErrGeneration)
}

// IsMissingInput checks if error is a missing merit input error
func IsMissingInput(err error) bool {
	return errors.Is(err, ErrMissingInput)
}

// IsInvalidSession checks if error is an unknown/expired session error
func IsInvalidSession(err error) bool {
	return errors.Is(err, ErrInvalidSession)
}
