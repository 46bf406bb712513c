// # Error Codes Reference
//
// This file defines user-friendly error messages with codes for support reference.
// When users encounter errors, they can quote the error code to support staff
// for faster diagnosis.
//
// Error codes are grouped by category:
//
// # Validation Errors (VAL001-VAL099)
//
//	VAL001 - Invalid fields: One or more fields failed validation
//	         Action: Correct the highlighted fields and submit again
//	         Match: *ValidationFailedError
//
//	VAL002 - Rejected by store: The student store rejected some values
//	         Action: Correct the highlighted fields and submit again
//	         Match: *RemoteError with field errors
//
//	VAL003 - Unknown sort: The requested sort column does not exist
//	         Action: Choose one of the listed columns
//	         Match: ErrUnknownSortKey, ErrUnknownDirection
//
// # Import Errors (IMP001-IMP099)
//
//	IMP001 - Missing column: A required column is missing from the CSV
//	         Action: Download the template and compare the header row
//	         Match: *DocumentStructureError
//
//	IMP002 - Import busy: Another import is in progress
//	         Action: Wait for it to finish and try again
//	         Match: ErrTooManyImports
//
//	IMP003 - Import not found: No import report with this id
//	         Action: Reports are kept for recent imports only
//	         Patterns: "import not found"
//
// # Remote Store Errors (REM001-REM099)
//
//	REM001 - Store unreachable: Unable to connect to the student store
//	         Patterns: "connection refused", "no such host"
//
//	REM002 - Connection reset: The connection was interrupted
//	         Patterns: "connection reset", "broken pipe"
//
//	REM003 - Timeout: The student store did not respond in time
//	         Patterns: "deadline exceeded", "timeout"
//
//	REM004 - Not found: The student does not exist
//	         Match: ErrNotFound
//
//	REM005 - Stale data: The change was saved but the list could not be refreshed
//	         Match: ErrStaleWorkingSet
//
//	REM006 - Listing too long: The store kept reporting more pages
//	         Match: ErrTooManyPages
//
//	REM007 - Store error: The student store returned an error
//	         Match: *RemoteError
//
// # File Errors (FILE001-FILE099)
//
//	FILE001 - File too large: File exceeds the maximum size
//	FILE002 - Empty file: The uploaded file has no header row
//	FILE003 - No file: No file was selected
//
// # Rate Limiting (RATE001)
//
//	RATE001 - Rate limited: Too many requests
//
// # Default Error (ERR000)
//
//	ERR000 - Unknown error: An unexpected error occurred
//
// # Matching
//
// Typed errors are matched first with errors.As / errors.Is, in the order
// listed in typedMatchers. Remaining errors are matched against
// errorPatterns case-insensitively with strings.Contains; the first match
// wins.
//
// When a user reports ERR000, check the application logs for the original
// technical error.

package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// UserMessage provides user-friendly error information with actionable guidance.
type UserMessage struct {
	Message string `json:"message"` // What happened (user-friendly)
	Action  string `json:"action"`  // What to do about it
	Code    string `json:"code"`    // Error code for support reference
}

var (
	msgInvalidFields = UserMessage{
		Message: "Some fields are invalid",
		Action:  "Correct the highlighted fields and submit again",
		Code:    "VAL001",
	}
	msgRejectedByStore = UserMessage{
		Message: "The student store rejected some values",
		Action:  "Correct the highlighted fields and submit again",
		Code:    "VAL002",
	}
	msgUnknownSort = UserMessage{
		Message: "The requested sort column does not exist",
		Action:  "Choose one of the listed columns",
		Code:    "VAL003",
	}
	msgMissingColumn = UserMessage{
		Message: "A required column is missing from the CSV",
		Action:  "Download the template and compare the header row",
		Code:    "IMP001",
	}
	msgImportBusy = UserMessage{
		Message: "Another import is in progress",
		Action:  "Wait for it to finish and try again",
		Code:    "IMP002",
	}
	msgNotFound = UserMessage{
		Message: "Student not found",
		Action:  "The student may have been deleted. Refresh the list",
		Code:    "REM004",
	}
	msgStale = UserMessage{
		Message: "The change was saved but the list could not be refreshed",
		Action:  "Reload the list in a few moments",
		Code:    "REM005",
	}
	msgTooManyPages = UserMessage{
		Message: "The student store kept reporting more pages",
		Action:  "Check the store's paging and try again",
		Code:    "REM006",
	}
	msgRemote = UserMessage{
		Message: "The student store returned an error",
		Action:  "Please try again",
		Code:    "REM007",
	}
	msgEmptyFile = UserMessage{
		Message: "The uploaded file has no header row",
		Action:  "Please upload a CSV file with a header and data rows",
		Code:    "FILE002",
	}
)

// typedMatchers run before the text patterns. Order matters: a
// *RemoteError wrapping ErrNotFound must report REM004, not REM007.
var typedMatchers = []func(error) (UserMessage, bool){
	func(err error) (UserMessage, bool) {
		var v *ValidationFailedError
		return msgInvalidFields, errors.As(err, &v)
	},
	func(err error) (UserMessage, bool) {
		var d *DocumentStructureError
		if !errors.As(err, &d) {
			return UserMessage{}, false
		}
		if d.Empty {
			return msgEmptyFile, true
		}
		return msgMissingColumn, true
	},
	func(err error) (UserMessage, bool) {
		return msgImportBusy, errors.Is(err, ErrTooManyImports)
	},
	func(err error) (UserMessage, bool) {
		return msgUnknownSort, errors.Is(err, ErrUnknownSortKey) || errors.Is(err, ErrUnknownDirection)
	},
	func(err error) (UserMessage, bool) {
		return msgStale, errors.Is(err, ErrStaleWorkingSet)
	},
	func(err error) (UserMessage, bool) {
		return msgNotFound, errors.Is(err, ErrNotFound)
	},
	func(err error) (UserMessage, bool) {
		return msgTooManyPages, errors.Is(err, ErrTooManyPages)
	},
	func(err error) (UserMessage, bool) {
		var r *RemoteError
		if !errors.As(err, &r) {
			return UserMessage{}, false
		}
		if len(r.Fields) > 0 {
			return msgRejectedByStore, true
		}
		// Transport failures fall through to the text patterns.
		if r.StatusCode == 0 {
			return UserMessage{}, false
		}
		return msgRemote, true
	},
	func(err error) (UserMessage, bool) {
		return UserMessage{
			Message: "Request was cancelled",
			Action:  "Please try again",
			Code:    "ERR001",
		}, errors.Is(err, context.Canceled)
	},
}

// errorPattern defines a pattern to match and its corresponding user message.
type errorPattern struct {
	pattern string
	msg     UserMessage
}

// errorPatterns maps technical error text (case-insensitive) to user messages.
// The first matching pattern wins, so more specific patterns come first.
var errorPatterns = []errorPattern{
	// =========================================================================
	// Remote store connectivity (REM001-REM003)
	// =========================================================================
	{
		pattern: "connection refused",
		msg: UserMessage{
			Message: "Unable to connect to the student store",
			Action:  "Please try again in a few moments",
			Code:    "REM001",
		},
	},
	{
		pattern: "no such host",
		msg: UserMessage{
			Message: "Unable to connect to the student store",
			Action:  "Check the store address in the configuration",
			Code:    "REM001",
		},
	},
	{
		pattern: "connection reset",
		msg: UserMessage{
			Message: "The connection to the student store was interrupted",
			Action:  "Please try again",
			Code:    "REM002",
		},
	},
	{
		pattern: "broken pipe",
		msg: UserMessage{
			Message: "The connection to the student store was interrupted",
			Action:  "Please try again",
			Code:    "REM002",
		},
	},
	{
		pattern: "deadline exceeded",
		msg: UserMessage{
			Message: "The student store did not respond in time",
			Action:  "Try again later or import a smaller file",
			Code:    "REM003",
		},
	},
	{
		pattern: "timeout",
		msg: UserMessage{
			Message: "The student store did not respond in time",
			Action:  "Try again later or import a smaller file",
			Code:    "REM003",
		},
	},

	// =========================================================================
	// Import (IMP003)
	// =========================================================================
	{
		pattern: "import not found",
		msg: UserMessage{
			Message: "Import report not found",
			Action:  "Reports are kept for recent imports only",
			Code:    "IMP003",
		},
	},

	// =========================================================================
	// File Errors (FILE001-FILE003)
	// =========================================================================
	{
		pattern: "file too large",
		msg: UserMessage{
			Message: "File exceeds the maximum size limit",
			Action:  "Split the file into smaller files",
			Code:    "FILE001",
		},
	},
	{
		pattern: "no file provided",
		msg: UserMessage{
			Message: "No file was selected",
			Action:  "Please select a CSV file to import",
			Code:    "FILE003",
		},
	},

	// =========================================================================
	// Rate Limiting (RATE001)
	// =========================================================================
	{
		pattern: "rate limit",
		msg: UserMessage{
			Message: "Too many requests",
			Action:  "Please wait a moment before trying again",
			Code:    "RATE001",
		},
	},
}

// defaultMessage is returned when nothing matches (ERR000).
var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Please try again or contact support",
	Code:    "ERR000",
}

// MapError converts a technical error to a user-friendly message.
//
// Example:
//
//	msg := MapError(&ValidationFailedError{Errors: errs})
//	// msg.Code == "VAL001"
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}

	for _, match := range typedMatchers {
		if msg, ok := match(err); ok {
			return msg
		}
	}

	errStr := strings.ToLower(err.Error())
	for _, ep := range errorPatterns {
		if strings.Contains(errStr, ep.pattern) {
			return ep.msg
		}
	}

	return defaultMessage
}

// FormatUserError creates a formatted error string for display.
// The format is: "Message (Code: XXX). Action"
func FormatUserError(err error) string {
	msg := MapError(err)
	if msg.Message == "" {
		return ""
	}
	return fmt.Sprintf("%s (Code: %s). %s", msg.Message, msg.Code, msg.Action)
}

// IsUserFacing reports whether err maps to a specific message rather than
// the ERR000 fallback.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}
	return MapError(err).Code != defaultMessage.Code
}

// UserError pairs a technical error with its user-facing message.
type UserError struct {
	Technical error       // Original technical error for logging
	User      UserMessage // User-friendly message for display
}

func (e *UserError) Error() string {
	return e.User.Message
}

func (e *UserError) Unwrap() error {
	return e.Technical
}

// NewUserError maps err to a UserError. Returns nil if err is nil.
func NewUserError(err error) *UserError {
	if err == nil {
		return nil
	}
	return &UserError{
		Technical: err,
		User:      MapError(err),
	}
}

// FieldErrorsOf extracts field-level errors from a validation or store
// error, or nil when err carries none.
func FieldErrorsOf(err error) FieldErrors {
	var v *ValidationFailedError
	if errors.As(err, &v) {
		return v.Errors
	}
	var r *RemoteError
	if errors.As(err, &r) && len(r.Fields) > 0 {
		return r.FieldErrors()
	}
	return nil
}
