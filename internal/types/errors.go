package types

import (
	"errors"
	"fmt"
)

// ErrorCode classifies pipeline failures.
type ErrorCode string

const (
	ErrValidation     ErrorCode = "VALIDATION_FAILED"     // bad input file, malformed edit payload
	ErrProcessing     ErrorCode = "PROCESSING_FAILED"     // layout analysis / OCR failure
	ErrTranslation    ErrorCode = "TRANSLATION_FAILED"    // translation provider failure after retries
	ErrReconstruction ErrorCode = "RECONSTRUCTION_FAILED" // font / rendering failure
	ErrStorage        ErrorCode = "STORAGE_FAILED"        // blob read/write failure
	ErrCancelled      ErrorCode = "CANCELLED"             // task cancelled by the caller
)

// Stage identifies the pipeline stage an error originated from.
type Stage string

const (
	StageConversion     Stage = "conversion"
	StageAnalysis       Stage = "analysis"
	StageExtraction     Stage = "extraction"
	StageTranslation    Stage = "translation"
	StageReconstruction Stage = "reconstruction"
	StageStorage        Stage = "storage"
)

// TaskError is the error type carried through the pipeline. Page is 0-based;
// -1 means the error is not tied to a single page.
type TaskError struct {
	Code    ErrorCode
	Stage   Stage
	Message string
	Details string
	Page    int
	Cause   error
}

// Error implements the error interface
func (e *TaskError) Error() string {
	msg := fmt.Sprintf("[%s] %s", e.Code, e.Message)
	if e.Stage != "" {
		msg = fmt.Sprintf("[%s] %s: %s", e.Code, e.Stage, e.Message)
	}
	if e.Page >= 0 {
		msg = fmt.Sprintf("%s (page %d)", msg, e.Page)
	}
	if e.Cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

// Unwrap returns the underlying cause
func (e *TaskError) Unwrap() error {
	return e.Cause
}

// NewValidationError creates a validation error. Validation failures are
// rejected synchronously; no task is created and no edit is applied.
func NewValidationError(message string, cause error) *TaskError {
	return &TaskError{Code: ErrValidation, Message: message, Page: -1, Cause: cause}
}

// NewProcessingError creates a processing error for the given stage and page.
func NewProcessingError(stage Stage, page int, message string, cause error) *TaskError {
	return &TaskError{Code: ErrProcessing, Stage: stage, Message: message, Page: page, Cause: cause}
}

// NewTranslationError creates a translation error
func NewTranslationError(message string, cause error) *TaskError {
	return &TaskError{Code: ErrTranslation, Stage: StageTranslation, Message: message, Page: -1, Cause: cause}
}

// NewReconstructionError creates a reconstruction error for the given page
func NewReconstructionError(page int, message string, cause error) *TaskError {
	return &TaskError{Code: ErrReconstruction, Stage: StageReconstruction, Message: message, Page: page, Cause: cause}
}

// NewStorageError creates a storage error. The message must stay generic;
// storage internals are not surfaced over the API boundary.
func NewStorageError(message string, cause error) *TaskError {
	return &TaskError{Code: ErrStorage, Stage: StageStorage, Message: message, Page: -1, Cause: cause}
}

// NewCancelledError creates a cancellation error
func NewCancelledError(message string) *TaskError {
	return &TaskError{Code: ErrCancelled, Message: message, Page: -1}
}

// IsCode reports whether err is a TaskError with the given code.
func IsCode(err error, code ErrorCode) bool {
	var te *TaskError
	if errors.As(err, &te) {
		return te.Code == code
	}
	return false
}
