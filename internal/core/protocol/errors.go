package protocol

import (
	"errors"
	"time"
)

// Core protocol errors
var (
	// Codec errors

	ErrUsageFault         = errors.New("codec usage fault")
	ErrTypeMismatch       = errors.New("unexpected value type")
	ErrEndOfContainer     = errors.New("read past end of container")
	ErrNoKeyPending       = errors.New("map value read without a key")
	ErrRootAlreadyWritten = errors.New("root value already written")
	ErrEncodingFailed     = errors.New("byte encoding failed")
	ErrDecodingFailed     = errors.New("byte decoding failed")

	// Wire type errors

	ErrUnsupportedDataType = errors.New("unsupported item component data type")
	ErrMalformedKey        = errors.New("malformed component key")
	ErrMalformedMessage    = errors.New("malformed object message")
	ErrMalformedPatch      = errors.New("malformed object patch")

	// Entity errors

	ErrEntityNotFound      = errors.New("entity not found")
	ErrPropertyNotFound    = errors.New("no registered property for key")
	ErrComponentNotFound   = errors.New("component not found")
	ErrUnsupportedValue    = errors.New("unsupported replicated value")
	ErrInvalidVectorLength = errors.New("float array length is not a vector")

	// Hub errors

	ErrHubClosed         = errors.New("hub is closed")
	ErrHubNotConnected   = errors.New("hub is not connected")
	ErrInvocationFailed  = errors.New("hub invocation failed")
	ErrInvocationTimeout = errors.New("hub invocation timeout")
	ErrUnknownMethod     = errors.New("unknown hub method")

	// Election errors

	ErrScopeNotRegistered = errors.New("scope not registered")
	ErrNotScopeLeader     = errors.New("local client is not the scope leader")

	// Configuration errors

	ErrInvalidConfig = errors.New("invalid configuration")

	// Generic errors

	ErrNotImplemented = errors.New("not implemented")
	ErrInternalError  = errors.New("internal error")
	ErrUnknownError   = errors.New("unknown error")
)

// ErrorCode represents a numeric error code for efficient error handling
type ErrorCode int

const (
	// Success

	ErrorCodeSuccess ErrorCode = 0

	// Codec error codes (1000-1999)

	ErrorCodeUsageFault         ErrorCode = 1001
	ErrorCodeTypeMismatch       ErrorCode = 1002
	ErrorCodeEndOfContainer     ErrorCode = 1003
	ErrorCodeNoKeyPending       ErrorCode = 1004
	ErrorCodeRootAlreadyWritten ErrorCode = 1005
	ErrorCodeEncodingFailed     ErrorCode = 1006
	ErrorCodeDecodingFailed     ErrorCode = 1007

	// Wire type error codes (2000-2999)

	ErrorCodeUnsupportedDataType ErrorCode = 2001
	ErrorCodeMalformedKey        ErrorCode = 2002
	ErrorCodeMalformedMessage    ErrorCode = 2003
	ErrorCodeMalformedPatch      ErrorCode = 2004

	// Entity error codes (3000-3999)

	ErrorCodeEntityNotFound      ErrorCode = 3001
	ErrorCodePropertyNotFound    ErrorCode = 3002
	ErrorCodeComponentNotFound   ErrorCode = 3003
	ErrorCodeUnsupportedValue    ErrorCode = 3004
	ErrorCodeInvalidVectorLength ErrorCode = 3005

	// Hub error codes (4000-4999)

	ErrorCodeHubClosed         ErrorCode = 4001
	ErrorCodeHubNotConnected   ErrorCode = 4002
	ErrorCodeInvocationFailed  ErrorCode = 4003
	ErrorCodeInvocationTimeout ErrorCode = 4004
	ErrorCodeUnknownMethod     ErrorCode = 4005

	// Election error codes (5000-5999)

	ErrorCodeScopeNotRegistered ErrorCode = 5001
	ErrorCodeNotScopeLeader     ErrorCode = 5002

	// Configuration error codes (6000-6999)

	ErrorCodeInvalidConfig ErrorCode = 6001

	// Generic error codes (9000-9999)

	ErrorCodeNotImplemented ErrorCode = 9001
	ErrorCodeInternalError  ErrorCode = 9003
	ErrorCodeUnknownError   ErrorCode = 9999
)

// Error represents a protocol-specific error with additional context
type Error struct {
	Code      ErrorCode
	Message   string
	Cause     error
	Context   map[string]interface{}
	Timestamp int64
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// NewProtocolError creates a new protocol error
func NewProtocolError(code ErrorCode, message string, cause error) *Error {
	return &Error{
		Code:      code,
		Message:   message,
		Cause:     cause,
		Context:   make(map[string]interface{}),
		Timestamp: time.Now().Unix(),
	}
}

// WithContext adds context to the error
func (e *Error) WithContext(key string, value interface{}) *Error {
	e.Context[key] = value
	return e
}

// IsTemporary reports whether retrying the operation may succeed.
func (e *Error) IsTemporary() bool {
	switch e.Code {
	case ErrorCodeHubNotConnected,
		ErrorCodeInvocationFailed,
		ErrorCodeInvocationTimeout:
		return true
	default:
		return false
	}
}

// IsFatal reports whether the error invalidates the whole message being
// encoded or decoded. Codec and wire faults are fatal for that message only.
func (e *Error) IsFatal() bool {
	switch e.Code {
	case ErrorCodeUsageFault,
		ErrorCodeTypeMismatch,
		ErrorCodeEndOfContainer,
		ErrorCodeNoKeyPending,
		ErrorCodeRootAlreadyWritten,
		ErrorCodeUnsupportedDataType,
		ErrorCodeMalformedKey,
		ErrorCodeMalformedMessage,
		ErrorCodeMalformedPatch:
		return true
	default:
		return false
	}
}

// Error mapping from standard errors to error codes
var errorCodeMap = map[error]ErrorCode{
	ErrUsageFault:         ErrorCodeUsageFault,
	ErrTypeMismatch:       ErrorCodeTypeMismatch,
	ErrEndOfContainer:     ErrorCodeEndOfContainer,
	ErrNoKeyPending:       ErrorCodeNoKeyPending,
	ErrRootAlreadyWritten: ErrorCodeRootAlreadyWritten,
	ErrEncodingFailed:     ErrorCodeEncodingFailed,
	ErrDecodingFailed:     ErrorCodeDecodingFailed,

	ErrUnsupportedDataType: ErrorCodeUnsupportedDataType,
	ErrMalformedKey:        ErrorCodeMalformedKey,
	ErrMalformedMessage:    ErrorCodeMalformedMessage,
	ErrMalformedPatch:      ErrorCodeMalformedPatch,

	ErrEntityNotFound:      ErrorCodeEntityNotFound,
	ErrPropertyNotFound:    ErrorCodePropertyNotFound,
	ErrComponentNotFound:   ErrorCodeComponentNotFound,
	ErrUnsupportedValue:    ErrorCodeUnsupportedValue,
	ErrInvalidVectorLength: ErrorCodeInvalidVectorLength,

	ErrHubClosed:         ErrorCodeHubClosed,
	ErrHubNotConnected:   ErrorCodeHubNotConnected,
	ErrInvocationFailed:  ErrorCodeInvocationFailed,
	ErrInvocationTimeout: ErrorCodeInvocationTimeout,
	ErrUnknownMethod:     ErrorCodeUnknownMethod,

	ErrScopeNotRegistered: ErrorCodeScopeNotRegistered,
	ErrNotScopeLeader:     ErrorCodeNotScopeLeader,

	ErrInvalidConfig: ErrorCodeInvalidConfig,

	ErrNotImplemented: ErrorCodeNotImplemented,
	ErrInternalError:  ErrorCodeInternalError,
	ErrUnknownError:   ErrorCodeUnknownError,
}

// GetErrorCode returns the error code for a given error
func GetErrorCode(err error) ErrorCode {
	if code, exists := errorCodeMap[err]; exists {
		return code
	}

	var protocolErr *Error
	if errors.As(err, &protocolErr) {
		return protocolErr.Code
	}

	for sentinel, code := range errorCodeMap {
		if errors.Is(err, sentinel) {
			return code
		}
	}

	return ErrorCodeUnknownError
}

// WrapError wraps a standard error into a ProtocolError
func WrapError(err error, message string) *Error {
	code := GetErrorCode(err)
	return NewProtocolError(code, message, err)
}
