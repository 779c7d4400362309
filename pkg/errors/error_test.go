package errors_test

import (
	"errors"
	"fmt"
	"testing"

	. "coderunner/pkg/errors"
)

func TestErrorCode_Message(t *testing.T) {
	tests := []struct {
		code ErrorCode
		want string
	}{
		{Success, "Success"},
		{LanguageNotSupported, "Programming language not supported"},
		{InvalidParams, "Invalid parameters"},
		{RemoteTimeout, "request timed out"},
		{ErrorCode(99999), "Unknown error"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := tt.code.Message(); got != tt.want {
				t.Errorf("Message() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestErrorCode_HTTPStatus(t *testing.T) {
	tests := []struct {
		code       ErrorCode
		wantStatus int
	}{
		{Success, 200},
		{InvalidParams, 400},
		{ValidationFailed, 400},
		{LanguageNotSupported, 400},
		{NotFound, 404},
		{TooManyRequests, 429},
		{RemoteCircuitOpen, 503},
		{RemoteTimeout, 504},
		{JudgeSystemError, 500},
	}

	for _, tt := range tests {
		t.Run(tt.code.Message(), func(t *testing.T) {
			if got := tt.code.HTTPStatus(); got != tt.wantStatus {
				t.Errorf("HTTPStatus() = %v, want %v", got, tt.wantStatus)
			}
		})
	}
}

func TestNewf(t *testing.T) {
	err := Newf(LanguageNotSupported, "Unsupported language: %s", "cobol")

	want := "Unsupported language: cobol"
	if err.Error() != want {
		t.Errorf("Error() = %v, want %v", err.Error(), want)
	}
	if err.Code != LanguageNotSupported {
		t.Errorf("Code = %v, want %v", err.Code, LanguageNotSupported)
	}
}

func TestWrap(t *testing.T) {
	originalErr := errors.New("connection refused")
	wrappedErr := Wrap(originalErr, RemoteJudgeError)

	if wrappedErr.Code != RemoteJudgeError {
		t.Errorf("Code = %v, want %v", wrappedErr.Code, RemoteJudgeError)
	}
	if wrappedErr.Unwrap() != originalErr {
		t.Error("Unwrap() should return original error")
	}
	if Wrap(nil, RemoteJudgeError) != nil {
		t.Error("Wrap(nil) should return nil")
	}
}

func TestGetCodeThroughFmtWrap(t *testing.T) {
	inner := New(SandboxProvisionError)
	outer := fmt.Errorf("prepare: %w", inner)

	if got := GetCode(outer); got != SandboxProvisionError {
		t.Fatalf("GetCode() = %v, want %v", got, SandboxProvisionError)
	}
	if !Is(outer, SandboxProvisionError) {
		t.Fatal("Is() should see the code through fmt wrapping")
	}
}

func TestGetCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorCode
	}{
		{name: "nil error", err: nil, want: Success},
		{name: "custom error", err: New(RemoteBadResponse), want: RemoteBadResponse},
		{name: "standard error", err: errors.New("standard error"), want: InternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := GetCode(tt.err); got != tt.want {
				t.Errorf("GetCode() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDescribe(t *testing.T) {
	if got := Describe(nil); got != "" {
		t.Fatalf("Describe(nil) = %q", got)
	}
	if got := Describe(errors.New("boom")); got != "boom" {
		t.Fatalf("Describe(plain) = %q", got)
	}
	wrapped := Wrapf(errors.New("dial tcp: refused"), RemoteJudgeError, "submit failed")
	if got := Describe(wrapped); got != "submit failed: dial tcp: refused" {
		t.Fatalf("Describe(wrapped) = %q", got)
	}
	if got := Describe(New(RemoteTimeout)); got != "request timed out" {
		t.Fatalf("Describe(coded) = %q", got)
	}
}

func TestValidationError(t *testing.T) {
	err := ValidationError("language", "required")
	if err.Code != ValidationFailed {
		t.Error("ValidationError should use ValidationFailed code")
	}
	if err.Details["field"] != "language" {
		t.Error("Field detail not set")
	}
	if err.Error() != "language required" {
		t.Errorf("Error() = %q", err.Error())
	}
}
