package errors

import (
	stderrors "errors"
	"fmt"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// ErrorCode represents internal error codes for index operations
type ErrorCode int

const (
	// Success
	ErrCodeOK ErrorCode = 0

	// Index conflicts: the write was well formed but rejected by the index
	ErrCodeNonMonotonicContext ErrorCode = 1000
	ErrCodeValueAlreadyOwned   ErrorCode = 1001

	// Client errors
	ErrCodeInvalidArgument ErrorCode = 2000
	ErrCodeInvalidKey      ErrorCode = 2001
	ErrCodeInvalidValue    ErrorCode = 2002
	ErrCodeKeyTooLarge     ErrorCode = 2003
	ErrCodeValueTooLarge   ErrorCode = 2004

	// Server errors
	ErrCodeInternal ErrorCode = 3000
)

var codeNames = map[ErrorCode]string{
	ErrCodeOK:                  "ok",
	ErrCodeNonMonotonicContext: "non_monotonic_context",
	ErrCodeValueAlreadyOwned:   "value_already_owned",
	ErrCodeInvalidArgument:     "invalid_argument",
	ErrCodeInvalidKey:          "invalid_key",
	ErrCodeInvalidValue:        "invalid_value",
	ErrCodeKeyTooLarge:         "key_too_large",
	ErrCodeValueTooLarge:       "value_too_large",
	ErrCodeInternal:            "internal",
}

// String returns the snake_case name used in logs, metrics labels and scripts
func (c ErrorCode) String() string {
	if name, ok := codeNames[c]; ok {
		return name
	}
	return fmt.Sprintf("code_%d", int(c))
}

// Sentinels for errors.Is matching. Any IndexError with the same code matches.
var (
	ErrNonMonotonicContext = &IndexError{Code: ErrCodeNonMonotonicContext, Message: "context is not after the latest recorded context"}
	ErrValueAlreadyOwned   = &IndexError{Code: ErrCodeValueAlreadyOwned, Message: "value already has a live owner"}
)

// IndexError represents a structured error with code and context
type IndexError struct {
	Code    ErrorCode
	Message string
	Details map[string]interface{}
	Cause   error
}

// Error implements the error interface
func (e *IndexError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap returns the underlying error
func (e *IndexError) Unwrap() error {
	return e.Cause
}

// Is reports whether target is an IndexError carrying the same code
func (e *IndexError) Is(target error) bool {
	t, ok := target.(*IndexError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// ToGRPCStatus converts IndexError to gRPC status
func (e *IndexError) ToGRPCStatus() *status.Status {
	return status.New(e.toGRPCCode(), e.Error())
}

// toGRPCCode maps internal error codes to gRPC codes
func (e *IndexError) toGRPCCode() codes.Code {
	switch e.Code {
	case ErrCodeOK:
		return codes.OK
	case ErrCodeNonMonotonicContext:
		return codes.FailedPrecondition
	case ErrCodeValueAlreadyOwned:
		return codes.AlreadyExists
	case ErrCodeInvalidArgument, ErrCodeInvalidKey, ErrCodeInvalidValue,
		ErrCodeKeyTooLarge, ErrCodeValueTooLarge:
		return codes.InvalidArgument
	default:
		return codes.Internal
	}
}

// NewIndexError creates a new IndexError
func NewIndexError(code ErrorCode, message string, cause error) *IndexError {
	return &IndexError{
		Code:    code,
		Message: message,
		Details: make(map[string]interface{}),
		Cause:   cause,
	}
}

// WithDetail adds a detail to the error
func (e *IndexError) WithDetail(key string, value interface{}) *IndexError {
	e.Details[key] = value
	return e
}

// NonMonotonicContext reports a write whose context does not come strictly
// after the latest context already recorded for the history.
func NonMonotonicContext(latest, attempted interface{}) *IndexError {
	return NewIndexError(ErrCodeNonMonotonicContext,
		fmt.Sprintf("context %v is not after latest context %v", attempted, latest), nil).
		WithDetail("latest", latest).
		WithDetail("attempted", attempted)
}

// ValueAlreadyOwned reports a no-overwrite write of a value that is live
// under owner.
func ValueAlreadyOwned(value, owner interface{}) *IndexError {
	return NewIndexError(ErrCodeValueAlreadyOwned,
		fmt.Sprintf("value %v is already owned by key %v", value, owner), nil).
		WithDetail("value", value).
		WithDetail("owner", owner)
}

func InvalidArgument(message string, cause error) *IndexError {
	return NewIndexError(ErrCodeInvalidArgument, message, cause)
}

func InvalidKey(key, reason string) *IndexError {
	return NewIndexError(ErrCodeInvalidKey, fmt.Sprintf("invalid key '%s': %s", key, reason), nil).
		WithDetail("key", key).
		WithDetail("reason", reason)
}

func InvalidValue(value, reason string) *IndexError {
	return NewIndexError(ErrCodeInvalidValue, fmt.Sprintf("invalid value '%s': %s", value, reason), nil).
		WithDetail("value", value).
		WithDetail("reason", reason)
}

func KeyTooLarge(size, maxSize int) *IndexError {
	return NewIndexError(ErrCodeKeyTooLarge, fmt.Sprintf("key size %d exceeds maximum %d", size, maxSize), nil).
		WithDetail("size", size).
		WithDetail("max_size", maxSize)
}

func ValueTooLarge(size, maxSize int) *IndexError {
	return NewIndexError(ErrCodeValueTooLarge, fmt.Sprintf("value size %d exceeds maximum %d", size, maxSize), nil).
		WithDetail("size", size).
		WithDetail("max_size", maxSize)
}

func InternalError(message string, cause error) *IndexError {
	return NewIndexError(ErrCodeInternal, message, cause)
}

// IsIndexError checks if an error is, or wraps, an IndexError
func IsIndexError(err error) bool {
	var ie *IndexError
	return stderrors.As(err, &ie)
}

// StatusOf returns the gRPC status of err: OK for nil, the mapped status for
// an IndexError anywhere in the chain, Internal for anything else.
func StatusOf(err error) *status.Status {
	if err == nil {
		return status.New(codes.OK, "")
	}
	var ie *IndexError
	if stderrors.As(err, &ie) {
		return ie.ToGRPCStatus()
	}
	return status.New(codes.Internal, err.Error())
}

// GetCode extracts the error code from an error. nil maps to ErrCodeOK and
// foreign errors to ErrCodeInternal.
func GetCode(err error) ErrorCode {
	if err == nil {
		return ErrCodeOK
	}
	var ie *IndexError
	if stderrors.As(err, &ie) {
		return ie.Code
	}
	return ErrCodeInternal
}
