package nfc

import (
	"errors"
	"fmt"
	"testing"
)

func TestNFCError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *NFCError
		expected string
	}{
		{
			name:     "with op and message",
			err:      NewRadioBusyError("Acquire"),
			expected: "Acquire: radio is held by another scan session",
		},
		{
			name:     "with op, message, and cause",
			err:      NewReadError("RequestTechnology", errors.New("connection lost")),
			expected: "RequestTechnology: read failed: connection lost",
		},
		{
			name: "message only",
			err: &NFCError{
				Code:    ErrCodeNoTag,
				Message: "no tag detected",
			},
			expected: "no tag detected",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.expected {
				t.Errorf("NFCError.Error() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestNFCError_Unwrap(t *testing.T) {
	cause := errors.New("underlying error")
	err := NewNoDeviceError("Start", cause)

	if !errors.Is(err, cause) {
		t.Error("errors.Is should find the cause")
	}
}

func TestNFCError_Is(t *testing.T) {
	err := fmt.Errorf("scan: %w", NewCancelledError("RequestTechnology", nil))

	if !errors.Is(err, &NFCError{Code: ErrCodeRequestCancelled}) {
		t.Error("errors.Is should match on code through wrapping")
	}
	if errors.Is(err, &NFCError{Code: ErrCodeRadioBusy}) {
		t.Error("errors.Is should not match a different code")
	}
}

func TestErrorPredicates(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		busy      bool
		cancelled bool
		noDevice  bool
	}{
		{"nil", nil, false, false, false},
		{"plain error", errors.New("boom"), false, false, false},
		{"busy", NewRadioBusyError("Acquire"), true, false, false},
		{"cancelled", NewCancelledError("RequestTechnology", nil), false, true, false},
		{"no device", NewNoDeviceError("Start", nil), false, false, true},
		{"wrapped busy", fmt.Errorf("open: %w", NewRadioBusyError("Acquire")), true, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRadioBusyError(tt.err); got != tt.busy {
				t.Errorf("IsRadioBusyError() = %v, want %v", got, tt.busy)
			}
			if got := IsCancelledError(tt.err); got != tt.cancelled {
				t.Errorf("IsCancelledError() = %v, want %v", got, tt.cancelled)
			}
			if got := IsNoDeviceError(tt.err); got != tt.noDevice {
				t.Errorf("IsNoDeviceError() = %v, want %v", got, tt.noDevice)
			}
		})
	}
}

func TestErrorf(t *testing.T) {
	err := Errorf(ErrCodeNoTag, "GetTag", "no tag after %d polls", 3)
	if err.Error() != "GetTag: no tag after 3 polls" {
		t.Errorf("unexpected message %q", err.Error())
	}
	if GetErrorCode(err) != ErrCodeNoTag {
		t.Errorf("unexpected code %d", GetErrorCode(err))
	}
}
