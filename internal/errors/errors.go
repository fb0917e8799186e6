// Package errors provides centralized error definitions and error handling utilities
// for poolminer. It defines domain-specific errors, semantic error types,
// error constructors with context wrapping, and error classification helpers.
//
// # Error Types
//
// Domain-specific errors represent errors from specific subsystems:
//   - LinkError: wireless association failures reported by the connectivity manager
//   - SessionError: pool session failures, tagged with the protocol phase
//   - StorageError: persistent storage initialization and ledger failures
//
// Semantic errors represent common error conditions:
//   - ValidationError: invalid input or configuration
//   - TimeoutError: operation timed out
//
// # Usage
//
//	err := errors.NewSessionError(errors.PhaseJobReceive, "read job", errors.ErrRemoteClosed).
//		WithEndpoint("10.0.0.2:3333")
//
//	if errors.Is(err, errors.ErrRemoteClosed) { ... }
//
//	var sessErr *errors.SessionError
//	if errors.As(err, &sessErr) { log.Warn("dropped", "phase", sessErr.Phase) }
//
// # Error Classification
//
// Errors can be classified by severity and behavior:
//   - Retryable: transient errors that may succeed on retry
//   - UserFacing: errors safe to display to users (vs internal errors)
//   - Severity: Debug, Info, Warning, Error, Critical
package errors

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Re-export standard library functions for convenience.
// This allows callers to import only this package for all error handling.
var (
	Is     = errors.Is
	As     = errors.As
	Unwrap = errors.Unwrap
	New    = errors.New
	Join   = errors.Join
)

// Severity represents the severity level of an error.
type Severity int

const (
	// SeverityDebug is for errors that are useful for debugging but not critical.
	SeverityDebug Severity = iota
	// SeverityInfo is for informational errors that don't indicate a problem.
	SeverityInfo
	// SeverityWarning is for errors that might indicate a problem but aren't critical.
	SeverityWarning
	// SeverityError is for errors that indicate a real problem.
	SeverityError
	// SeverityCritical is for errors that require immediate attention.
	SeverityCritical
)

// String returns the string representation of the severity level.
func (s Severity) String() string {
	switch s {
	case SeverityDebug:
		return "debug"
	case SeverityInfo:
		return "info"
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	case SeverityCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// -----------------------------------------------------------------------------
// Sentinel Errors
// -----------------------------------------------------------------------------

// Link-related sentinel errors
var (
	// ErrLinkFailed indicates that the association retry budget was exhausted.
	ErrLinkFailed = New("link association failed")
	// ErrLinkUndetermined indicates that Connect returned without a terminal outcome.
	ErrLinkUndetermined = New("link outcome undetermined")
	// ErrRadioUnavailable indicates that the radio driver could not be started.
	ErrRadioUnavailable = New("radio unavailable")
)

// Pool session sentinel errors
var (
	// ErrRemoteClosed indicates that the pool closed the connection (a zero-length read).
	ErrRemoteClosed = New("connection closed by pool")
	// ErrShortWrite indicates that a request was only partially written.
	ErrShortWrite = New("short write")
	// ErrMalformedRecord indicates a record that does not match the wire format.
	ErrMalformedRecord = New("malformed record")
	// ErrRecordTooLong indicates a record exceeding the configured maximum size.
	ErrRecordTooLong = New("record exceeds maximum size")
	// ErrUnexpectedAck indicates a share acknowledgement other than OK or FAIL.
	ErrUnexpectedAck = New("unexpected share acknowledgement")
	// ErrSeedTooLong indicates a job seed that does not fit the candidate buffer.
	ErrSeedTooLong = New("job seed exceeds candidate buffer")
)

// Storage sentinel errors
var (
	// ErrStorageVersion indicates a storage schema newer than this build supports.
	ErrStorageVersion = New("storage schema version not supported")
	// ErrStorageCorrupted indicates storage that could not be read as a database.
	ErrStorageCorrupted = New("storage corrupted")
)

// General sentinel errors
var (
	// ErrTimeout indicates that an operation timed out.
	ErrTimeout = New("operation timed out")
	// ErrInvalidInput indicates that input validation failed.
	ErrInvalidInput = New("invalid input")
)

// -----------------------------------------------------------------------------
// Base Error Interface
// -----------------------------------------------------------------------------

// MinerError is the base interface for all poolminer errors.
// It extends the standard error interface with additional methods for
// error handling and classification.
type MinerError interface {
	error

	// Unwrap returns the underlying error, if any.
	Unwrap() error

	// Is reports whether this error matches the target error.
	Is(target error) bool

	// Severity returns the severity level of this error.
	Severity() Severity

	// IsRetryable returns true if the error is transient and the operation
	// may succeed on retry.
	IsRetryable() bool

	// IsUserFacing returns true if the error message is safe to display
	// to end users.
	IsUserFacing() bool
}

// -----------------------------------------------------------------------------
// Base Error Implementation
// -----------------------------------------------------------------------------

// baseError provides common functionality for all error types.
type baseError struct {
	message    string
	cause      error
	severity   Severity
	retryable  bool
	userFacing bool
}

// Error returns the error message.
func (e *baseError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.message, e.cause)
	}
	return e.message
}

// Unwrap returns the underlying error.
func (e *baseError) Unwrap() error {
	return e.cause
}

// Is checks if this error matches the target.
func (e *baseError) Is(target error) bool {
	if e.cause != nil {
		return errors.Is(e.cause, target)
	}
	return false
}

// Severity returns the error severity.
func (e *baseError) Severity() Severity {
	return e.severity
}

// IsRetryable returns whether the error is retryable.
func (e *baseError) IsRetryable() bool {
	return e.retryable
}

// IsUserFacing returns whether the error is safe to show users.
func (e *baseError) IsUserFacing() bool {
	return e.userFacing
}

// -----------------------------------------------------------------------------
// Domain-Specific Errors
// -----------------------------------------------------------------------------

// LinkError represents a failure of the wireless link.
//
// Example:
//
//	err := errors.NewLinkError("association budget exhausted", errors.ErrLinkFailed).
//		WithSSID("shop-floor").WithAttempts(11)
type LinkError struct {
	baseError
	SSID     string
	Attempts int
}

// NewLinkError creates a new LinkError. Link errors are terminal for the
// Connect call that produced them; the caller decides whether to retry.
func NewLinkError(message string, cause error) *LinkError {
	return &LinkError{
		baseError: baseError{
			message:    message,
			cause:      cause,
			severity:   SeverityCritical,
			retryable:  false,
			userFacing: true,
		},
	}
}

// WithSSID adds the network name to the error context.
func (e *LinkError) WithSSID(ssid string) *LinkError {
	e.SSID = ssid
	return e
}

// WithAttempts records how many association attempts were made.
func (e *LinkError) WithAttempts(n int) *LinkError {
	e.Attempts = n
	return e
}

// Error returns the formatted error message.
func (e *LinkError) Error() string {
	var parts []string
	if e.SSID != "" {
		parts = append(parts, fmt.Sprintf("ssid=%s", e.SSID))
	}
	if e.Attempts > 0 {
		parts = append(parts, fmt.Sprintf("attempts=%d", e.Attempts))
	}

	prefix := "link error"
	if len(parts) > 0 {
		prefix = fmt.Sprintf("link error [%s]", strings.Join(parts, ", "))
	}

	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, e.message, e.cause)
	}
	return fmt.Sprintf("%s: %s", prefix, e.message)
}

// Is checks if this error matches the target.
func (e *LinkError) Is(target error) bool {
	if _, ok := target.(*LinkError); ok {
		return true
	}
	return e.baseError.Is(target)
}

// Phase names the step of the pool session in which an error occurred.
type Phase string

// Session phases, in protocol order.
const (
	PhaseConnect    Phase = "connect"
	PhaseHandshake  Phase = "handshake"
	PhaseJobRequest Phase = "job_request"
	PhaseJobReceive Phase = "job_receive"
	PhaseSearch     Phase = "search"
	PhaseSubmit     Phase = "submit"
)

// SessionError represents a failure of one pool session iteration.
// Session errors are always retryable: the session loop reconnects.
//
// Example:
//
//	err := errors.NewSessionError(errors.PhaseHandshake, "read banner", io.ErrUnexpectedEOF)
//	err = err.WithEndpoint("pool.local:3333").WithSessionID("6f1c")
//	fmt.Println(err) // "session error [phase=handshake, endpoint=pool.local:3333, session=6f1c]: read banner: unexpected EOF"
type SessionError struct {
	baseError
	Phase     Phase
	Endpoint  string
	SessionID string
}

// NewSessionError creates a new SessionError for the given phase.
func NewSessionError(phase Phase, message string, cause error) *SessionError {
	return &SessionError{
		baseError: baseError{
			message:    message,
			cause:      cause,
			severity:   SeverityWarning,
			retryable:  true,
			userFacing: true,
		},
		Phase: phase,
	}
}

// WithEndpoint adds the pool endpoint to the error context.
func (e *SessionError) WithEndpoint(endpoint string) *SessionError {
	e.Endpoint = endpoint
	return e
}

// WithSessionID adds the session attempt ID to the error context.
func (e *SessionError) WithSessionID(id string) *SessionError {
	e.SessionID = id
	return e
}

// WithSeverity sets the error severity.
func (e *SessionError) WithSeverity(s Severity) *SessionError {
	e.severity = s
	return e
}

// Error returns the formatted error message.
func (e *SessionError) Error() string {
	var parts []string
	if e.Phase != "" {
		parts = append(parts, fmt.Sprintf("phase=%s", e.Phase))
	}
	if e.Endpoint != "" {
		parts = append(parts, fmt.Sprintf("endpoint=%s", e.Endpoint))
	}
	if e.SessionID != "" {
		parts = append(parts, fmt.Sprintf("session=%s", e.SessionID))
	}

	prefix := "session error"
	if len(parts) > 0 {
		prefix = fmt.Sprintf("session error [%s]", strings.Join(parts, ", "))
	}

	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, e.message, e.cause)
	}
	return fmt.Sprintf("%s: %s", prefix, e.message)
}

// Is checks if this error matches the target.
func (e *SessionError) Is(target error) bool {
	if _, ok := target.(*SessionError); ok {
		return true
	}
	return e.baseError.Is(target)
}

// StorageError represents errors from persistent storage.
type StorageError struct {
	baseError
	Path string
}

// NewStorageError creates a new StorageError.
func NewStorageError(message string, cause error) *StorageError {
	return &StorageError{
		baseError: baseError{
			message:    message,
			cause:      cause,
			severity:   SeverityError,
			retryable:  false,
			userFacing: true,
		},
	}
}

// WithPath adds the storage path to the error context.
func (e *StorageError) WithPath(path string) *StorageError {
	e.Path = path
	return e
}

// Error returns the formatted error message.
func (e *StorageError) Error() string {
	prefix := "storage error"
	if e.Path != "" {
		prefix = fmt.Sprintf("storage error [path=%s]", e.Path)
	}
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, e.message, e.cause)
	}
	return fmt.Sprintf("%s: %s", prefix, e.message)
}

// Is checks if this error matches the target.
func (e *StorageError) Is(target error) bool {
	if _, ok := target.(*StorageError); ok {
		return true
	}
	return e.baseError.Is(target)
}

// -----------------------------------------------------------------------------
// Semantic Errors
// -----------------------------------------------------------------------------

// ValidationError represents invalid input or state.
//
// Example:
//
//	err := errors.NewValidationError("identity cannot be empty")
//	err = err.WithField("pool.identity").WithValue("")
type ValidationError struct {
	baseError
	Field string
	Value any
}

// NewValidationError creates a new ValidationError.
func NewValidationError(message string) *ValidationError {
	return &ValidationError{
		baseError: baseError{
			message:    message,
			severity:   SeverityWarning,
			retryable:  false,
			userFacing: true,
		},
	}
}

// WithField adds a field name to the error context.
func (e *ValidationError) WithField(field string) *ValidationError {
	e.Field = field
	return e
}

// WithValue adds the invalid value to the error context.
func (e *ValidationError) WithValue(value any) *ValidationError {
	e.Value = value
	return e
}

// WithCause adds a cause to the error.
func (e *ValidationError) WithCause(cause error) *ValidationError {
	e.cause = cause
	return e
}

// Error returns the formatted error message.
func (e *ValidationError) Error() string {
	var parts []string
	if e.Field != "" {
		parts = append(parts, fmt.Sprintf("field=%s", e.Field))
	}
	if e.Value != nil {
		parts = append(parts, fmt.Sprintf("value=%v", e.Value))
	}

	prefix := "validation error"
	if len(parts) > 0 {
		prefix = fmt.Sprintf("validation error [%s]", strings.Join(parts, ", "))
	}

	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, e.message, e.cause)
	}
	return fmt.Sprintf("%s: %s", prefix, e.message)
}

// Is checks if this error matches the target.
func (e *ValidationError) Is(target error) bool {
	if _, ok := target.(*ValidationError); ok {
		return true
	}
	if errors.Is(target, ErrInvalidInput) {
		return true
	}
	return e.baseError.Is(target)
}

// TimeoutError represents an operation that timed out.
//
// Example:
//
//	err := errors.NewTimeoutError("waiting for link outcome", 30*time.Second)
//	fmt.Println(err) // "timeout error: waiting for link outcome (timeout: 30s)"
type TimeoutError struct {
	baseError
	Operation string
	Duration  time.Duration
}

// NewTimeoutError creates a new TimeoutError.
func NewTimeoutError(operation string, duration time.Duration) *TimeoutError {
	return &TimeoutError{
		baseError: baseError{
			message:    operation,
			severity:   SeverityWarning,
			retryable:  true,
			userFacing: true,
		},
		Operation: operation,
		Duration:  duration,
	}
}

// WithCause adds a cause to the error.
func (e *TimeoutError) WithCause(cause error) *TimeoutError {
	e.cause = cause
	return e
}

// Error returns the formatted error message.
func (e *TimeoutError) Error() string {
	base := fmt.Sprintf("timeout error: %s (timeout: %s)", e.Operation, e.Duration)
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", base, e.cause)
	}
	return base
}

// Is checks if this error matches the target.
func (e *TimeoutError) Is(target error) bool {
	if _, ok := target.(*TimeoutError); ok {
		return true
	}
	if errors.Is(target, ErrTimeout) {
		return true
	}
	return e.baseError.Is(target)
}

// -----------------------------------------------------------------------------
// Error Classification Helpers
// -----------------------------------------------------------------------------

// IsRetryable returns true if the error represents a transient condition
// that may succeed on retry. This checks for:
//   - Errors implementing MinerError with IsRetryable() returning true
//   - Errors wrapping ErrTimeout
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var minerErr MinerError
	if As(err, &minerErr) {
		return minerErr.IsRetryable()
	}

	return Is(err, ErrTimeout)
}

// IsUserFacing returns true if the error message is safe to display to end users.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}

	var minerErr MinerError
	if As(err, &minerErr) {
		return minerErr.IsUserFacing()
	}
	return false
}

// GetSeverity returns the severity level of the error.
// Returns SeverityError for errors that don't implement MinerError.
func GetSeverity(err error) Severity {
	if err == nil {
		return SeverityDebug
	}

	var minerErr MinerError
	if As(err, &minerErr) {
		return minerErr.Severity()
	}

	return SeverityError
}

// PhaseOf returns the session phase recorded in err, or "" if err carries none.
func PhaseOf(err error) Phase {
	var sessionErr *SessionError
	if As(err, &sessionErr) {
		return sessionErr.Phase
	}
	return ""
}

// -----------------------------------------------------------------------------
// Convenience Constructors
// -----------------------------------------------------------------------------

// Wrap wraps an error with additional context message.
// Unlike fmt.Errorf with %w, this returns nil for a nil err.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}
