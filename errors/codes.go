package errors

// ErrorCategory classifies errors by how the caller should treat them.
type ErrorCategory string

const (
	// CategoryTransient indicates a condition that may clear up on its own.
	CategoryTransient ErrorCategory = "transient"

	// CategoryPermanent indicates a failure that repeating the call will not fix.
	CategoryPermanent ErrorCategory = "permanent"

	// CategoryResource indicates that capacity (admission, quota) was not available.
	CategoryResource ErrorCategory = "resource"

	// CategoryInternal indicates a bug or an unexpected failure inside a work item.
	CategoryInternal ErrorCategory = "internal"
)

// String returns the string representation of the category.
func (c ErrorCategory) String() string {
	return string(c)
}

// IsRetryable returns true if errors in this category may succeed on retry.
// The supervisor never retries; this is informational for callers.
func (c ErrorCategory) IsRetryable() bool {
	switch c {
	case CategoryTransient, CategoryResource:
		return true
	default:
		return false
	}
}

// ErrorCode identifies a specific failure.
type ErrorCode string

const (
	ErrCodeInvalidArgument   ErrorCode = "INVALID_ARGUMENT"   // Nil or malformed input
	ErrCodeCancelled         ErrorCode = "CANCELLED"          // Context cancelled while waiting
	ErrCodeExecutionFailed   ErrorCode = "EXECUTION_FAILED"   // Work item body failed
	ErrCodeAdmissionRejected ErrorCode = "ADMISSION_REJECTED" // Gate closed
	ErrCodeDrainTimeout      ErrorCode = "DRAIN_TIMEOUT"      // Drain window elapsed
	ErrCodeClosed            ErrorCode = "CLOSED"             // Component already closed
	ErrCodeTimeout           ErrorCode = "TIMEOUT"            // Deadline exceeded
	ErrCodeUnauthorized      ErrorCode = "UNAUTHORIZED"       // Request failed authentication
	ErrCodeAlreadyStarted    ErrorCode = "ALREADY_STARTED"    // Start called twice
	ErrCodeNotFound          ErrorCode = "NOT_FOUND"          // Lookup missed
	ErrCodePanic             ErrorCode = "PANIC"              // Recovered from panic
	ErrCodeInternal          ErrorCode = "INTERNAL"           // Anything unclassified
)

// String returns the string representation of the error code.
func (c ErrorCode) String() string {
	return string(c)
}

// DefaultCategory returns the category an error with this code gets unless
// overridden with WithCategory.
func (c ErrorCode) DefaultCategory() ErrorCategory {
	switch c {
	case ErrCodeDrainTimeout, ErrCodeTimeout:
		return CategoryTransient
	case ErrCodeInvalidArgument, ErrCodeCancelled, ErrCodeClosed, ErrCodeUnauthorized,
		ErrCodeAlreadyStarted, ErrCodeNotFound:
		return CategoryPermanent
	case ErrCodeAdmissionRejected:
		return CategoryResource
	default:
		return CategoryInternal
	}
}

var codeDescriptions = map[ErrorCode]string{
	ErrCodeInvalidArgument:   "invalid argument",
	ErrCodeCancelled:         "operation cancelled",
	ErrCodeExecutionFailed:   "work item execution failed",
	ErrCodeAdmissionRejected: "admission rejected",
	ErrCodeDrainTimeout:      "drain timeout exceeded",
	ErrCodeClosed:            "already closed",
	ErrCodeTimeout:           "operation timed out",
	ErrCodeUnauthorized:      "authentication required",
	ErrCodeAlreadyStarted:    "already started",
	ErrCodeNotFound:          "not found",
	ErrCodePanic:             "recovered from panic",
	ErrCodeInternal:          "internal error",
}

// Description returns a human-readable description for the error code.
func (c ErrorCode) Description() string {
	if desc, ok := codeDescriptions[c]; ok {
		return desc
	}
	return "unknown error"
}
