package core

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestMapError(t *testing.T) {
	tests := []struct {
		name        string
		err         error
		wantCode    string
		wantMessage string
	}{
		{
			name:        "nil error returns empty",
			err:         nil,
			wantCode:    "",
			wantMessage: "",
		},
		{
			name:        "size limit sentinel",
			err:         fmt.Errorf("ingest: %w", ErrSizeLimitExceeded),
			wantCode:    "FILE001",
			wantMessage: "File exceeds the maximum upload size",
		},
		{
			name:        "validation reason replaces generic message",
			err:         reject(ErrTooManyPages, "PDF exceeds page limit (%d/%d)", 12, 10),
			wantCode:    "DOC002",
			wantMessage: "PDF exceeds page limit (12/10)",
		},
		{
			name:        "wrapped validation error still matches",
			err:         fmt.Errorf("classify: %w", reject(ErrPixelLimitExceeded, "image has 90000000 pixels")),
			wantCode:    "IMG001",
			wantMessage: "image has 90000000 pixels",
		},
		{
			name:        "server busy",
			err:         ErrServerBusy,
			wantCode:    "BUSY001",
			wantMessage: "Another conversion is running",
		},
		{
			name:        "context deadline",
			err:         fmt.Errorf("analyze: %w", context.DeadlineExceeded),
			wantCode:    "UPL003",
			wantMessage: "Request timed out",
		},
		{
			name:        "plain text pattern",
			err:         errors.New("no file provided"),
			wantCode:    "FILE004",
			wantMessage: "No file was selected",
		},
		{
			name:        "case insensitive pattern",
			err:         errors.New("RATE LIMIT exceeded"),
			wantCode:    "RATE001",
			wantMessage: "Too many requests",
		},
		{
			name:        "unknown error returns default",
			err:         errors.New("some random internal error"),
			wantCode:    "ERR000",
			wantMessage: "An unexpected error occurred",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MapError(tt.err)
			if got.Code != tt.wantCode {
				t.Errorf("MapError() code = %q, want %q", got.Code, tt.wantCode)
			}
			if got.Message != tt.wantMessage {
				t.Errorf("MapError() message = %q, want %q", got.Message, tt.wantMessage)
			}
		})
	}
}

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{ErrSizeLimitExceeded, http.StatusRequestEntityTooLarge},
		{ErrUnsupportedType, http.StatusUnsupportedMediaType},
		{reject(ErrEncryptedDocument, "password required"), http.StatusUnprocessableEntity},
		{ErrServerBusy, http.StatusServiceUnavailable},
		{ErrUploadNotFound, http.StatusNotFound},
		{errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			if got := HTTPStatus(tt.err); got != tt.want {
				t.Errorf("HTTPStatus() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestFormatUserError(t *testing.T) {
	result := FormatUserError(ErrServerBusy)

	expected := "Another conversion is running (Code: BUSY001). Please wait a moment and try again"
	if result != expected {
		t.Errorf("FormatUserError() = %q, want %q", result, expected)
	}
}

func TestIsUserFacing(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{
			name: "nil error is not user facing",
			err:  nil,
			want: false,
		},
		{
			name: "sentinel is user facing",
			err:  ErrCorruptDocument,
			want: true,
		},
		{
			name: "unknown error is not user facing",
			err:  errors.New("random internal error xyz"),
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := IsUserFacing(tt.err)
			if got != tt.want {
				t.Errorf("IsUserFacing() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestMapError_WrappedSentinelKeepsReason(t *testing.T) {
	err := fmt.Errorf("convert page 3: %w", &ValidationError{Kind: ErrInvalidPageIndex, Reason: "page 4 of 3 requested"})

	got := MapError(err)
	if got.Code != "PAGE001" {
		t.Errorf("MapError() code = %q, want PAGE001", got.Code)
	}
	if got.Message != "page 4 of 3 requested" {
		t.Errorf("MapError() message = %q, want the validation reason", got.Message)
	}
	if !errors.Is(err, ErrInvalidPageIndex) {
		t.Error("errors.Is should reach the sentinel through the wrap")
	}
}
