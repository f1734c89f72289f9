// Package errors provides structured error handling for pkms.
//
// Error codes follow the pattern ERR_XXX_DESCRIPTION where:
//   - 1XX: Configuration errors
//   - 2XX: IO errors (file, disk, index database)
//   - 4XX: Validation errors (malformed input, never retried)
//   - 5XX: Internal errors
//   - 6XX: Not-found errors (well-formed request, absent resource)
package errors

// Category defines error categories for classification.
type Category string

const (
	// CategoryConfig indicates configuration-related errors.
	CategoryConfig Category = "CONFIG"
	// CategoryIO indicates file and disk I/O errors.
	CategoryIO Category = "IO"
	// CategoryValidation indicates malformed input.
	CategoryValidation Category = "VALIDATION"
	// CategoryInternal indicates unexpected internal errors.
	CategoryInternal Category = "INTERNAL"
	// CategoryNotFound indicates a lookup that found nothing.
	CategoryNotFound Category = "NOT_FOUND"
)

// Severity defines error severity levels.
type Severity string

const (
	// SeverityFatal indicates unrecoverable error, must abort.
	SeverityFatal Severity = "FATAL"
	// SeverityError indicates operation failed but can continue.
	SeverityError Severity = "ERROR"
	// SeverityWarning indicates degraded operation, continuing.
	SeverityWarning Severity = "WARNING"
	// SeverityInfo indicates informational only.
	SeverityInfo Severity = "INFO"
)

// Error codes organized by category.
const (
	// Config errors (100-199)
	ErrCodeConfigNotFound   = "ERR_101_CONFIG_NOT_FOUND"
	ErrCodeConfigInvalid    = "ERR_102_CONFIG_INVALID"
	ErrCodeUnknownComponent = "ERR_104_UNKNOWN_COMPONENT"

	// IO errors (200-299)
	ErrCodeFileNotFound   = "ERR_201_FILE_NOT_FOUND"
	ErrCodeFilePermission = "ERR_202_FILE_PERMISSION"
	ErrCodeCorruptIndex   = "ERR_205_CORRUPT_INDEX"
	ErrCodeWriterLocked   = "ERR_207_WRITER_LOCKED"
	ErrCodeIndexNotFound  = "ERR_208_INDEX_NOT_FOUND"

	// Validation errors (400-499)
	ErrCodeInvalidInput       = "ERR_401_INVALID_INPUT"
	ErrCodeInvalidSegment     = "ERR_402_INVALID_SEGMENT"
	ErrCodeInvalidURI         = "ERR_403_INVALID_URI"
	ErrCodeInvalidResourceURI = "ERR_404_INVALID_RESOURCE_URI"
	ErrCodeUnsupportedScheme  = "ERR_405_UNSUPPORTED_SCHEME"
	ErrCodeInvalidPath        = "ERR_406_INVALID_PATH"
	ErrCodeInvalidFilename    = "ERR_407_INVALID_FILENAME"

	// Internal errors (500-599)
	ErrCodeInternal          = "ERR_501_INTERNAL"
	ErrCodeSearchFailed      = "ERR_503_SEARCH_FAILED"
	ErrCodeIndexFailed       = "ERR_505_INDEX_FAILED"
	ErrCodeUpsertFailed      = "ERR_506_UPSERT_FAILED"
	ErrCodeNestedTransaction = "ERR_507_NESTED_TRANSACTION"
	ErrCodeStoreClosed       = "ERR_508_STORE_CLOSED"

	// Not-found errors (600-699)
	ErrCodeRecordNotFound       = "ERR_601_RECORD_NOT_FOUND"
	ErrCodeNoMatchingCollection = "ERR_602_NO_MATCHING_COLLECTION"
)

// categoryFromCode extracts category from error code.
func categoryFromCode(code string) Category {
	if len(code) < 7 {
		return CategoryInternal
	}

	// Extract numeric portion (e.g., "101" from "ERR_101_CONFIG_NOT_FOUND")
	switch code[4] {
	case '1':
		return CategoryConfig
	case '2':
		return CategoryIO
	case '4':
		return CategoryValidation
	case '6':
		return CategoryNotFound
	default:
		return CategoryInternal
	}
}

// severityFromCode determines severity based on error code.
func severityFromCode(code string) Severity {
	switch code {
	case ErrCodeCorruptIndex, ErrCodeNestedTransaction, ErrCodeStoreClosed:
		return SeverityFatal
	}

	if isRetryableCode(code) {
		return SeverityWarning
	}

	return SeverityError
}

// isRetryableCode checks if an error code represents a retryable error.
func isRetryableCode(code string) bool {
	return code == ErrCodeWriterLocked
}
