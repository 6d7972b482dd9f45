package errors

import (
	"errors"
	"testing"
)

func TestNewError(t *testing.T) {
	err := NewError(10001, "test error")

	if err.Code != 10001 {
		t.Errorf("Expected code 10001, got %d", err.Code)
	}
	if err.Message != "test error" {
		t.Errorf("Expected message 'test error', got '%s'", err.Message)
	}
	if err.Err != nil {
		t.Error("Expected Err to be nil")
	}
}

func TestAppError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *AppError
		expected string
	}{
		{
			name:     "without wrapped error",
			err:      NewError(11001, "test error"),
			expected: "[11001] test error",
		},
		{
			name:     "with wrapped error",
			err:      NewError(11001, "test error").Wrap(errors.New("original error")),
			expected: "[11001] test error: original error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.expected {
				t.Errorf("Expected '%s', got '%s'", tt.expected, got)
			}
		})
	}
}

func TestAppError_WrapUnwrap(t *testing.T) {
	originalErr := errors.New("original error")
	appErr := ErrSendFailed.Wrap(originalErr)

	if appErr.Code != CodeSendFailed {
		t.Errorf("Expected code %d, got %d", CodeSendFailed, appErr.Code)
	}
	if errors.Unwrap(appErr) != originalErr {
		t.Error("Expected unwrapped error to be the original error")
	}
	if ErrSendFailed.Err != nil {
		t.Error("Wrap must not mutate the predefined error")
	}
}

func TestIs(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		target   *AppError
		expected bool
	}{
		{"same error", ErrRecipientNotFound, ErrRecipientNotFound, true},
		{"wrapped same error", ErrRecipientNotFound.Wrap(errors.New("wrapped")), ErrRecipientNotFound, true},
		{"fmt wrapped", fmtWrap(ErrAuthRequired), ErrAuthRequired, true},
		{"different error", ErrSendFailed, ErrRecipientNotFound, false},
		{"non-app error", errors.New("standard error"), ErrRecipientNotFound, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Is(tt.err, tt.target); got != tt.expected {
				t.Errorf("Expected %v, got %v", tt.expected, got)
			}
		})
	}
}

func fmtWrap(err error) error {
	return &wrapped{err: err}
}

type wrapped struct{ err error }

func (w *wrapped) Error() string { return "outer: " + w.err.Error() }
func (w *wrapped) Unwrap() error { return w.err }

func TestGetCodeAndMessage(t *testing.T) {
	if got := GetCode(ErrMessageLoadFailed); got != CodeMessageLoadFailed {
		t.Errorf("Expected %d, got %d", CodeMessageLoadFailed, got)
	}
	if got := GetCode(errors.New("x")); got != CodeServerError {
		t.Errorf("Expected %d, got %d", CodeServerError, got)
	}
	if got := GetMessage(ErrRecipientNotFound); got != "Recipient not found" {
		t.Errorf("Expected 'Recipient not found', got '%s'", got)
	}
	if got := GetMessage(errors.New("x")); got != "Internal error" {
		t.Errorf("Expected 'Internal error', got '%s'", got)
	}
}

func TestIsLoadError(t *testing.T) {
	loadErrors := []*AppError{ErrAuthRequired, ErrRecipientNotFound, ErrConversationCreateFailed, ErrMessageLoadFailed}
	for _, err := range loadErrors {
		if !IsLoadError(err) {
			t.Errorf("Expected %s to be a load error", err.Message)
		}
	}
	for _, err := range []*AppError{ErrSendFailed, ErrReadAckFailed, ErrSubscriptionError} {
		if IsLoadError(err) {
			t.Errorf("Expected %s not to be a load error", err.Message)
		}
	}
}

func TestPredefinedErrors(t *testing.T) {
	predefinedErrors := map[*AppError]int{
		ErrAuthRequired:             CodeAuthRequired,
		ErrTokenInvalid:             CodeTokenInvalid,
		ErrTokenExpired:             CodeTokenExpired,
		ErrRecipientNotFound:        CodeRecipientNotFound,
		ErrConversationCreateFailed: CodeConversationCreateFailed,
		ErrMessageLoadFailed:        CodeMessageLoadFailed,
		ErrNoConversation:           CodeNoConversation,
		ErrSendFailed:               CodeSendFailed,
		ErrReadAckFailed:            CodeReadAckFailed,
		ErrSubscriptionError:        CodeSubscriptionError,
		ErrDeleteFailed:             CodeDeleteFailed,
		ErrNotMessageOwner:          CodeNotMessageOwner,
		ErrInvalidParams:            CodeInvalidParams,
		ErrServerError:              CodeServerError,
	}

	for err, expectedCode := range predefinedErrors {
		if err.Code != expectedCode {
			t.Errorf("Error %s: expected code %d, got %d", err.Message, expectedCode, err.Code)
		}
	}
}
