package errors

import (
	"errors"
	"fmt"
)

// ErrorCode represents a unique error code for stable testing
type ErrorCode string

// Error codes for different error categories
const (
	// General errors
	ErrUnknown      ErrorCode = "UNKNOWN"
	ErrInternal     ErrorCode = "INTERNAL"
	ErrInvalidInput ErrorCode = "INVALID_INPUT"
	ErrNotFound     ErrorCode = "NOT_FOUND"

	// Configuration errors
	ErrConfigLoad  ErrorCode = "CONFIG_LOAD"
	ErrConfigParse ErrorCode = "CONFIG_PARSE"
	ErrConfigValid ErrorCode = "CONFIG_INVALID"

	// Installation pipeline errors
	ErrPrefixCreate    ErrorCode = "PREFIX_CREATE"
	ErrDetectInstalled ErrorCode = "DETECT_INSTALLED"
	ErrTransaction     ErrorCode = "TRANSACTION"
	ErrPreProcess      ErrorCode = "PRE_PROCESS"
	ErrUnlink          ErrorCode = "UNLINK"
	ErrFetch           ErrorCode = "FETCH"
	ErrLink            ErrorCode = "LINK"
	ErrIO              ErrorCode = "IO"
	ErrCancelled       ErrorCode = "CANCELLED"
	ErrPostProcess     ErrorCode = "POST_PROCESS"

	// Cache and download errors
	ErrDownload      ErrorCode = "DOWNLOAD"
	ErrHashMismatch  ErrorCode = "HASH_MISMATCH"
	ErrArchive       ErrorCode = "ARCHIVE"
	ErrCacheValidate ErrorCode = "CACHE_VALIDATE"

	// Script errors
	ErrLinkScript ErrorCode = "LINK_SCRIPT"
)

// Detail keys shared across packages
const (
	DetailFileName = "file_name"
	DetailPath     = "path"
	DetailPackage  = "package"
)

// Error represents a structured error with code and details
type Error struct {
	Code    ErrorCode
	Message string
	Details map[string]interface{}
	Wrapped error
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Wrapped != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Wrapped)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap implements the errors.Unwrap interface
func (e *Error) Unwrap() error {
	return e.Wrapped
}

// Is implements errors.Is interface
func (e *Error) Is(target error) bool {
	var targetErr *Error
	if errors.As(target, &targetErr) {
		return e.Code == targetErr.Code
	}
	return false
}

// New creates a new Error with the given code and message
func New(code ErrorCode, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Details: make(map[string]interface{}),
	}
}

// Newf creates a new Error with a formatted message
func Newf(code ErrorCode, format string, args ...interface{}) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Details: make(map[string]interface{}),
	}
}

// Wrap wraps an existing error with an Error
func Wrap(err error, code ErrorCode, message string) *Error {
	if err == nil {
		return nil
	}
	return &Error{
		Code:    code,
		Message: message,
		Details: make(map[string]interface{}),
		Wrapped: err,
	}
}

// Wrapf wraps an existing error with a formatted message
func Wrapf(err error, code ErrorCode, format string, args ...interface{}) *Error {
	if err == nil {
		return nil
	}
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Details: make(map[string]interface{}),
		Wrapped: err,
	}
}

// WithDetail adds a detail to the error
func (e *Error) WithDetail(key string, value interface{}) *Error {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// WithDetails adds multiple details to the error
func (e *Error) WithDetails(details map[string]interface{}) *Error {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	for k, v := range details {
		e.Details[k] = v
	}
	return e
}

// IsErrorCode checks if an error has a specific error code
func IsErrorCode(err error, code ErrorCode) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// GetErrorCode returns the error code from an error, or ErrUnknown if not an Error
func GetErrorCode(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ErrUnknown
}

// GetErrorDetails returns the details from an error, or nil if not an Error
func GetErrorDetails(err error) map[string]interface{} {
	var e *Error
	if errors.As(err, &e) {
		return e.Details
	}
	return nil
}

// FileName returns the package archive name attached to a per-package error,
// or "" when none was recorded.
func FileName(err error) string {
	if name, ok := GetErrorDetails(err)[DetailFileName].(string); ok {
		return name
	}
	return ""
}

// ForPackage wraps err with code and tags it with the package file name.
func ForPackage(err error, code ErrorCode, fileName string) *Error {
	if err == nil {
		return nil
	}
	return Wrapf(err, code, "%s", fileName).WithDetail(DetailFileName, fileName)
}
