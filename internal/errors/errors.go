// Package errors provides structured error types for OptiView. All errors
// carry a category, code, and message so the CLI and the HTTP layer can map
// failures to user-facing responses without string matching.
package errors

import (
	"errors"
	"fmt"
)

// ErrorCategory classifies errors by the contract they break.
type ErrorCategory string

const (
	// ErrCategorySchema covers malformed or inconsistent problem definitions.
	ErrCategorySchema ErrorCategory = "SCHEMA"

	// ErrCategoryDataFormat covers malformed iteration tables.
	ErrCategoryDataFormat ErrorCategory = "DATA_FORMAT"

	// ErrCategorySelection covers invalid user selections against a loaded study.
	ErrCategorySelection ErrorCategory = "SELECTION"

	// ErrCategoryStorage covers object storage failures.
	ErrCategoryStorage ErrorCategory = "STORAGE"

	// ErrCategoryNotFound covers lookups of sessions, snapshots, or objects
	// that do not exist.
	ErrCategoryNotFound ErrorCategory = "NOT_FOUND"

	// ErrCategoryInternal covers everything that should not happen.
	ErrCategoryInternal ErrorCategory = "INTERNAL"
)

// Error codes for each category.
const (
	// Schema codes
	CodeMissingRoleKey    = "MISSING_ROLE_KEY"
	CodeMalformedVariable = "MALFORMED_VARIABLE"
	CodeInvalidSize       = "INVALID_SIZE"
	CodeDuplicateName     = "DUPLICATE_NAME"

	// Data format codes
	CodeRowArity         = "ROW_ARITY"
	CodeBadNumericCell   = "BAD_NUMERIC_CELL"
	CodeBlankCell        = "BLANK_CELL"
	CodeMixedColumnKind  = "MIXED_COLUMN_KIND"
	CodeRaggedArray      = "RAGGED_ARRAY"
	CodeDuplicateColumn  = "DUPLICATE_COLUMN"
	CodeColumnCollision  = "COLUMN_COLLISION"
	CodeMissingColumn    = "MISSING_COLUMN"
	CodeWidthMismatch    = "WIDTH_MISMATCH"
	CodeEmptyTable       = "EMPTY_TABLE"
	CodeTableTooLarge    = "TABLE_TOO_LARGE"

	// Selection and session codes
	CodeTooFewObjectives = "TOO_FEW_OBJECTIVES"
	CodeUnknownColumn    = "UNKNOWN_COLUMN"
	CodeNotSelectable    = "NOT_SELECTABLE"
	CodeRowOutOfRange    = "ROW_OUT_OF_RANGE"
	CodeNoStudyLoaded    = "NO_STUDY_LOADED"
	CodeSessionLimit     = "SESSION_LIMIT"
	CodeBadFormat        = "BAD_FORMAT"

	// Storage codes
	CodeUploadFailed   = "UPLOAD_FAILED"
	CodeDownloadFailed = "DOWNLOAD_FAILED"
	CodeSnapshotWrite  = "SNAPSHOT_WRITE"
	CodeSnapshotRead   = "SNAPSHOT_READ"

	// Not-found codes
	CodeObjectNotFound   = "OBJECT_NOT_FOUND"
	CodeSessionNotFound  = "SESSION_NOT_FOUND"
	CodeSnapshotNotFound = "SNAPSHOT_NOT_FOUND"

	// Internal codes
	CodeUnexpected = "UNEXPECTED"
)

// Error is the structured error type used throughout the system.
type Error struct {
	Category ErrorCategory
	Code     string
	Message  string
	Details  map[string]interface{}
	Cause    error
}

// Error returns a formatted error string.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s:%s] %s: %v", e.Category, e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s:%s] %s", e.Category, e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As compatibility.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether the target matches this error's category and code.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return e.Category == t.Category && e.Code == t.Code
	}
	return false
}

// New creates a new Error.
func New(category ErrorCategory, code, message string) *Error {
	return &Error{
		Category: category,
		Code:     code,
		Message:  message,
	}
}

// Newf creates a new Error with a formatted message.
func Newf(category ErrorCategory, code, format string, args ...interface{}) *Error {
	return New(category, code, fmt.Sprintf(format, args...))
}

// Wrap creates a new Error wrapping an existing error.
func Wrap(category ErrorCategory, code, message string, cause error) *Error {
	return &Error{
		Category: category,
		Code:     code,
		Message:  message,
		Cause:    cause,
	}
}

// WithDetails returns a copy of the error with additional details.
func (e *Error) WithDetails(details map[string]interface{}) *Error {
	cp := *e
	cp.Details = details
	return &cp
}

// GetCategory extracts the error category from an error chain.
// Returns empty string if the chain holds no *Error.
func GetCategory(err error) ErrorCategory {
	var oe *Error
	if errors.As(err, &oe) {
		return oe.Category
	}
	return ""
}

// GetCode extracts the error code from an error chain.
// Returns empty string if the chain holds no *Error.
func GetCode(err error) string {
	var oe *Error
	if errors.As(err, &oe) {
		return oe.Code
	}
	return ""
}

// IsSchemaError reports whether the error chain carries a schema failure.
func IsSchemaError(err error) bool {
	return GetCategory(err) == ErrCategorySchema
}

// IsDataFormatError reports whether the error chain carries a table format failure.
func IsDataFormatError(err error) bool {
	return GetCategory(err) == ErrCategoryDataFormat
}

// IsSelectionError reports whether the error chain carries a selection failure.
func IsSelectionError(err error) bool {
	return GetCategory(err) == ErrCategorySelection
}

// IsNotFound reports whether the error chain carries a not-found failure.
func IsNotFound(err error) bool {
	return GetCategory(err) == ErrCategoryNotFound
}

// Convenience constructors for the core taxonomy.

func NewSchemaError(code, message string) *Error {
	return New(ErrCategorySchema, code, message)
}

func NewDataFormatError(code, message string) *Error {
	return New(ErrCategoryDataFormat, code, message)
}

func NewSelectionError(code, message string) *Error {
	return New(ErrCategorySelection, code, message)
}

func NewStorageError(code, message string, cause error) *Error {
	return Wrap(ErrCategoryStorage, code, message, cause)
}

func NewNotFoundError(code, message string) *Error {
	return New(ErrCategoryNotFound, code, message)
}

func NewInternalError(message string, cause error) *Error {
	return Wrap(ErrCategoryInternal, CodeUnexpected, message, cause)
}
