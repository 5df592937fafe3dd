package errors

import (
	stderrors "errors"
	"fmt"
	"runtime"
	"strings"
)

// ErrorType represents the category of error
type ErrorType int

const (
	// Configuration errors - missing or unusable run configuration, abort the run
	ErrorTypeConfig ErrorType = iota
	// Ticket errors - a single ticket cannot be resolved and is dropped
	ErrorTypeTicket
	// Commit errors - a single fixing commit could not be diffed or parsed
	ErrorTypeCommit
	// Iteration errors - one walk-forward iteration could not be persisted
	ErrorTypeIteration
	// VCS errors - version-control backend failures
	ErrorTypeVCS
	// Parse errors - source text could not be parsed into callable spans
	ErrorTypeParse
	// External errors - issue tracker or other remote service failures
	ErrorTypeExternal
	// Storage errors - dataset sink and cache failures
	ErrorTypeStorage
	// Internal errors - unexpected internal state
	ErrorTypeInternal
)

// Severity represents how critical an error is
type Severity int

const (
	// SeverityLow - the item is skipped, the run continues
	SeverityLow Severity = iota
	// SeverityMedium - a unit of work is lost but the run continues
	SeverityMedium
	// SeverityHigh - significant issue, may impact functionality
	SeverityHigh
	// SeverityCritical - stops the run
	SeverityCritical
)

// Error represents a structured error with context
type Error struct {
	Type       ErrorType
	Severity   Severity
	Message    string
	Cause      error
	Context    map[string]interface{}
	StackTrace string
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap returns the underlying cause
func (e *Error) Unwrap() error {
	return e.Cause
}

// WithContext adds context to the error
func (e *Error) WithContext(key string, value interface{}) *Error {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// Is checks if this error matches the target error type
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Type == t.Type
}

// IsFatal returns true if this error should stop execution
func (e *Error) IsFatal() bool {
	return e.Severity == SeverityCritical
}

// DetailedString returns a detailed error message with context
func (e *Error) DetailedString() string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("[%s] [%s] %s\n",
		severityString(e.Severity),
		typeString(e.Type),
		e.Message))

	if e.Cause != nil {
		sb.WriteString(fmt.Sprintf("Caused by: %v\n", e.Cause))
	}

	if len(e.Context) > 0 {
		sb.WriteString("Context:\n")
		for k, v := range e.Context {
			sb.WriteString(fmt.Sprintf("  %s: %v\n", k, v))
		}
	}

	if e.StackTrace != "" {
		sb.WriteString(fmt.Sprintf("Stack trace:\n%s\n", e.StackTrace))
	}

	return sb.String()
}

func typeString(t ErrorType) string {
	switch t {
	case ErrorTypeConfig:
		return "CONFIG"
	case ErrorTypeTicket:
		return "TICKET"
	case ErrorTypeCommit:
		return "COMMIT"
	case ErrorTypeIteration:
		return "ITERATION"
	case ErrorTypeVCS:
		return "VCS"
	case ErrorTypeParse:
		return "PARSE"
	case ErrorTypeExternal:
		return "EXTERNAL"
	case ErrorTypeStorage:
		return "STORAGE"
	case ErrorTypeInternal:
		return "INTERNAL"
	default:
		return "UNKNOWN"
	}
}

func severityString(s Severity) string {
	switch s {
	case SeverityLow:
		return "LOW"
	case SeverityMedium:
		return "MEDIUM"
	case SeverityHigh:
		return "HIGH"
	case SeverityCritical:
		return "CRITICAL"
	default:
		return "UNKNOWN"
	}
}

// captureStackTrace captures the current stack trace
func captureStackTrace(skip int) string {
	var sb strings.Builder
	for i := skip; i < skip+10; i++ {
		pc, file, line, ok := runtime.Caller(i)
		if !ok {
			break
		}
		fn := runtime.FuncForPC(pc)
		if fn == nil {
			break
		}
		sb.WriteString(fmt.Sprintf("  %s:%d %s\n", file, line, fn.Name()))
	}
	return sb.String()
}

// New creates a new error with the given type, severity, and message
func New(errType ErrorType, severity Severity, message string) *Error {
	return &Error{
		Type:       errType,
		Severity:   severity,
		Message:    message,
		Context:    make(map[string]interface{}),
		StackTrace: captureStackTrace(2),
	}
}

// Wrap wraps an existing error with additional context
func Wrap(err error, errType ErrorType, severity Severity, message string) *Error {
	if err == nil {
		return nil
	}

	return &Error{
		Type:       errType,
		Severity:   severity,
		Message:    message,
		Cause:      err,
		Context:    make(map[string]interface{}),
		StackTrace: captureStackTrace(2),
	}
}

// ConfigError creates a configuration error
func ConfigError(message string) *Error {
	return New(ErrorTypeConfig, SeverityCritical, message)
}

// ConfigErrorf creates a configuration error with formatting
func ConfigErrorf(format string, args ...interface{}) *Error {
	return New(ErrorTypeConfig, SeverityCritical, fmt.Sprintf(format, args...))
}

// TicketErrorf records why a ticket was dropped
func TicketErrorf(key string, format string, args ...interface{}) *Error {
	return New(ErrorTypeTicket, SeverityLow, fmt.Sprintf(format, args...)).WithContext("ticket", key)
}

// CommitError wraps a failure that makes one fixing commit unusable
func CommitError(err error, sha string) *Error {
	return Wrap(err, ErrorTypeCommit, SeverityLow, "skipping commit "+shortSHA(sha)).WithContext("commit", sha)
}

// IterationError wraps a failure that loses one walk-forward iteration
func IterationError(err error, iteration int) *Error {
	return Wrap(err, ErrorTypeIteration, SeverityMedium, fmt.Sprintf("iteration %d skipped", iteration)).
		WithContext("iteration", iteration)
}

// VCSError wraps a version-control backend error
func VCSError(err error, message string) *Error {
	return Wrap(err, ErrorTypeVCS, SeverityHigh, message)
}

// VCSErrorf wraps a version-control backend error with formatting
func VCSErrorf(err error, format string, args ...interface{}) *Error {
	return Wrap(err, ErrorTypeVCS, SeverityHigh, fmt.Sprintf(format, args...))
}

// ParseError wraps a source parsing failure
func ParseError(err error, path string) *Error {
	return Wrap(err, ErrorTypeParse, SeverityLow, "parse "+path).WithContext("path", path)
}

// ExternalErrorf wraps an external service error with formatting
func ExternalErrorf(err error, format string, args ...interface{}) *Error {
	return Wrap(err, ErrorTypeExternal, SeverityHigh, fmt.Sprintf(format, args...))
}

// StorageError wraps a storage error
func StorageError(err error, message string) *Error {
	return Wrap(err, ErrorTypeStorage, SeverityMedium, message)
}

// IsFatal checks if an error is fatal (should stop execution)
func IsFatal(err error) bool {
	if err == nil {
		return false
	}

	var e *Error
	if stderrors.As(err, &e) {
		return e.IsFatal()
	}

	return false
}

// GetType returns the type of an error
func GetType(err error) ErrorType {
	if err == nil {
		return ErrorTypeInternal
	}

	var e *Error
	if stderrors.As(err, &e) {
		return e.Type
	}

	return ErrorTypeInternal
}

func shortSHA(sha string) string {
	if len(sha) > 10 {
		return sha[:10]
	}
	return sha
}
