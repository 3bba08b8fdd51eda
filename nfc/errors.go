package nfc

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorCode represents a specific type of NFC error for programmatic handling.
type ErrorCode int

const (
	// Radio errors (100-199)
	ErrCodeNoDevice ErrorCode = iota + 100
	ErrCodeRadioBusy
	ErrCodeRequestPending
	ErrCodeRequestCancelled
	ErrCodeNoTag
	ErrCodeReadFailed
)

// NFCError provides structured error information for programmatic handling.
type NFCError struct {
	Code    ErrorCode
	Op      string // Operation that failed (e.g., "Start", "RequestTechnology")
	Message string // Human-readable message
	Cause   error  // Underlying error
}

func (e *NFCError) Error() string {
	var sb strings.Builder
	if e.Op != "" {
		sb.WriteString(e.Op)
		sb.WriteString(": ")
	}
	sb.WriteString(e.Message)
	if e.Cause != nil {
		sb.WriteString(": ")
		sb.WriteString(e.Cause.Error())
	}
	return sb.String()
}

func (e *NFCError) Unwrap() error {
	return e.Cause
}

func (e *NFCError) Is(target error) bool {
	if t, ok := target.(*NFCError); ok {
		return e.Code == t.Code
	}
	return false
}

// NewNoDeviceError creates an error for a radio that could not be started.
func NewNoDeviceError(op string, cause error) *NFCError {
	return &NFCError{
		Code:    ErrCodeNoDevice,
		Op:      op,
		Message: "no NFC device available",
		Cause:   cause,
	}
}

// NewRadioBusyError creates an error for an acquisition of a radio that is already held.
func NewRadioBusyError(op string) *NFCError {
	return &NFCError{
		Code:    ErrCodeRadioBusy,
		Op:      op,
		Message: "radio is held by another scan session",
	}
}

// NewCancelledError creates an error for a technology request that was cancelled.
func NewCancelledError(op string, cause error) *NFCError {
	return &NFCError{
		Code:    ErrCodeRequestCancelled,
		Op:      op,
		Message: "technology request cancelled",
		Cause:   cause,
	}
}

// NewReadError creates an error for a failed tag poll.
func NewReadError(op string, cause error) *NFCError {
	return &NFCError{
		Code:    ErrCodeReadFailed,
		Op:      op,
		Message: "read failed",
		Cause:   cause,
	}
}

// IsRadioBusyError checks if an error indicates the radio is already held.
func IsRadioBusyError(err error) bool {
	return GetErrorCode(err) == ErrCodeRadioBusy
}

// IsCancelledError checks if an error indicates a cancelled technology request.
func IsCancelledError(err error) bool {
	return GetErrorCode(err) == ErrCodeRequestCancelled
}

// IsNoDeviceError checks if an error indicates that no device could be used.
func IsNoDeviceError(err error) bool {
	return GetErrorCode(err) == ErrCodeNoDevice
}

// GetErrorCode extracts the ErrorCode from an error if it's an NFCError.
// Returns 0 if the error is not an NFCError.
func GetErrorCode(err error) ErrorCode {
	var nfcErr *NFCError
	if errors.As(err, &nfcErr) {
		return nfcErr.Code
	}
	return 0
}

// Errorf creates an NFCError with a formatted message.
func Errorf(code ErrorCode, op, format string, args ...interface{}) *NFCError {
	return &NFCError{
		Code:    code,
		Op:      op,
		Message: fmt.Sprintf(format, args...),
	}
}
