// Error codes reference.
//
// This file defines user-friendly error messages with codes for support reference.
// When users encounter errors, they can quote the error code to support staff
// for faster diagnosis.
//
// # File Errors (FILE001-FILE099)
//
//	FILE001 - File too large: File exceeds the maximum size limit
//	          Patterns: "file too large"
//	FILE002 - Unreadable file: File is not a readable spreadsheet
//	          Patterns: "not a spreadsheet", "corrupt"
//	FILE003 - Legacy format: Old .xls workbooks are not supported
//	          Patterns: "legacy xls"
//	FILE004 - No file: No file was selected
//	          Patterns: "no file provided"
//	FILE005 - Empty file: The file has no header row
//	          Patterns: "empty file"
//	FILE006 - Parse failure: Generic decode failure
//	          Patterns: "parse error"
//
// # Configuration Errors (CFG001-CFG099)
//
//	CFG001 - Missing parameters: Required shared parameters are not set
//	         Patterns: "missing required parameters"
//	CFG002 - Inputs locked: Parameters cannot change during an upload
//	         Patterns: "inputs are locked"
//	CFG003 - Invalid parameters: Parameter payload could not be decoded
//	         Patterns: "invalid parameters"
//
// # Upload Errors (UPL001-UPL099)
//
//	UPL001 - No data: The file has no data rows
//	         Patterns: "no data to upload"
//	UPL002 - System busy: Too many uploads in progress
//	         Patterns: "too many uploads"
//	UPL003 - Session expired: Import session not found
//	         Patterns: "session not found"
//	UPL004 - Request cancelled: Request was cancelled
//	         Patterns: "context canceled"
//	UPL005 - Request timeout: Request timed out
//	         Patterns: "context deadline exceeded"
//	UPL006 - Wrong step: The action is not available right now
//	         Patterns: "invalid transition"
//	UPL007 - File replaced: Another file was selected during parsing
//	         Patterns: "file replaced"
//
// # Transport Errors (TRN001-TRN099)
//
//	TRN001 - Connection refused: The pharmacy API is unreachable
//	         Patterns: "connection refused"
//	TRN002 - Timeout: The pharmacy API did not answer in time
//	         Patterns: "timeout"
//	TRN003 - Batch failed: A batch could not be delivered
//	         Patterns: "transport error"
//
// # Kind Errors (KND001-KND099)
//
//	KND001 - Unknown import kind
//	         Patterns: "unknown import kind"
//
// # Rate Limiting (RATE001-RATE099)
//
//	RATE001 - Rate limited: Too many requests
//	          Patterns: "rate limit"
//
// # Default Error (ERR000)
//
//	ERR000 - Unknown error: An unexpected error occurred
//
// # Pattern Matching
//
// Error patterns are matched case-insensitively using strings.Contains.
// The first matching pattern wins, so more specific patterns are listed
// before general ones.

package core

import (
	"fmt"
	"strings"
)

// UserMessage provides user-friendly error information with actionable guidance.
type UserMessage struct {
	Message string // What happened (user-friendly)
	Action  string // What to do about it
	Code    string // Error code for support reference
}

type errorPattern struct {
	pattern string
	msg     UserMessage
}

// errorPatterns maps technical error patterns (case-insensitive) to user messages.
// The first matching pattern wins, so order matters.
var errorPatterns = []errorPattern{
	// File errors
	{
		pattern: "file too large",
		msg: UserMessage{
			Message: "File exceeds the maximum size limit",
			Action:  "Split the spreadsheet into smaller files",
			Code:    "FILE001",
		},
	},
	{
		pattern: "legacy xls",
		msg: UserMessage{
			Message: "Old Excel 97-2003 workbooks are not supported",
			Action:  "Save the file as .xlsx or .csv and try again",
			Code:    "FILE003",
		},
	},
	{
		pattern: "not a spreadsheet",
		msg: UserMessage{
			Message: "The file is not a readable spreadsheet",
			Action:  "Upload an .xlsx or .csv file, ideally built from the template",
			Code:    "FILE002",
		},
	},
	{
		pattern: "corrupt",
		msg: UserMessage{
			Message: "The file is not a readable spreadsheet",
			Action:  "Upload an .xlsx or .csv file, ideally built from the template",
			Code:    "FILE002",
		},
	},
	{
		pattern: "no file provided",
		msg: UserMessage{
			Message: "No file was selected",
			Action:  "Please select a spreadsheet to import",
			Code:    "FILE004",
		},
	},
	{
		pattern: "empty file",
		msg: UserMessage{
			Message: "The file has no header row",
			Action:  "Download the template and fill it in",
			Code:    "FILE005",
		},
	},
	{
		pattern: "parse error",
		msg: UserMessage{
			Message: "The file could not be read",
			Action:  "Check the file format and try again",
			Code:    "FILE006",
		},
	},

	// Configuration errors
	{
		pattern: "missing required parameters",
		msg: UserMessage{
			Message: "Required import settings are missing",
			Action:  "Choose the country (and other required settings) before selecting a file",
			Code:    "CFG001",
		},
	},
	{
		pattern: "inputs are locked",
		msg: UserMessage{
			Message: "Settings cannot change while an upload is running",
			Action:  "Wait for the upload to finish",
			Code:    "CFG002",
		},
	},
	{
		pattern: "invalid parameters",
		msg: UserMessage{
			Message: "Import settings could not be read",
			Action:  "Check the submitted settings",
			Code:    "CFG003",
		},
	},

	// Upload errors
	{
		pattern: "no data to upload",
		msg: UserMessage{
			Message: "There is no data to upload",
			Action:  "Select a file that has at least one data row",
			Code:    "UPL001",
		},
	},
	{
		pattern: "too many uploads",
		msg: UserMessage{
			Message: "System is busy processing other imports",
			Action:  "Please wait a moment and try again",
			Code:    "UPL002",
		},
	},
	{
		pattern: "session not found",
		msg: UserMessage{
			Message: "Import session not found",
			Action:  "The session may have expired. Please start a new import",
			Code:    "UPL003",
		},
	},
	{
		pattern: "context canceled",
		msg: UserMessage{
			Message: "Request was cancelled",
			Action:  "Please try again",
			Code:    "UPL004",
		},
	},
	{
		pattern: "context deadline exceeded",
		msg: UserMessage{
			Message: "Request timed out",
			Action:  "Please try again",
			Code:    "UPL005",
		},
	},
	{
		pattern: "invalid transition",
		msg: UserMessage{
			Message: "This action is not available at this step",
			Action:  "Restart the import if you need to change the file or settings",
			Code:    "UPL006",
		},
	},
	{
		pattern: "file replaced",
		msg: UserMessage{
			Message: "Another file was selected while this one was being read",
			Action:  "Check the session and select the file again if needed",
			Code:    "UPL007",
		},
	},

	// Transport errors
	{
		pattern: "connection refused",
		msg: UserMessage{
			Message: "The pharmacy API is unreachable",
			Action:  "Please try again in a few moments",
			Code:    "TRN001",
		},
	},
	{
		pattern: "timeout",
		msg: UserMessage{
			Message: "The pharmacy API did not answer in time",
			Action:  "Please try again later",
			Code:    "TRN002",
		},
	},
	{
		pattern: "transport error",
		msg: UserMessage{
			Message: "A batch could not be delivered",
			Action:  "Restart the import to retry the failed rows",
			Code:    "TRN003",
		},
	},

	// Kind errors
	{
		pattern: "unknown import kind",
		msg: UserMessage{
			Message: "Unknown import type",
			Action:  "This import type is not configured",
			Code:    "KND001",
		},
	},

	// Rate limiting
	{
		pattern: "rate limit",
		msg: UserMessage{
			Message: "Too many requests",
			Action:  "Please wait a moment before trying again",
			Code:    "RATE001",
		},
	},
}

// defaultMessage is returned when no pattern matches (ERR000).
var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Please try again or contact support",
	Code:    "ERR000",
}

// MapError converts a technical error to a user-friendly message.
// It returns the first matching pattern, or the ERR000 fallback.
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
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

// IsUserFacing reports whether err matches a known pattern rather than the
// ERR000 fallback.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}
	return MapError(err).Code != defaultMessage.Code
}

// UserError wraps a technical error with a user-friendly message.
// The original error is preserved for logging.
type UserError struct {
	Technical error
	User      UserMessage
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
