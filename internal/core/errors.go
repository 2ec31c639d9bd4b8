package core

import (
	"errors"
	"fmt"
)

// Sentinel errors for the conversion pipeline. Callers match with errors.Is;
// the wrapped message carries the specific limit or rule that was violated.
var (
	ErrUnsupportedType       = errors.New("unsupported file type")
	ErrSizeLimitExceeded     = errors.New("file too large")
	ErrEmptyFile             = errors.New("empty file")
	ErrCorruptDocument       = errors.New("corrupt or unreadable file")
	ErrEncryptedDocument     = errors.New("encrypted document")
	ErrTooManyPages          = errors.New("too many pages")
	ErrActiveContentRejected = errors.New("active content rejected")
	ErrPixelLimitExceeded    = errors.New("pixel limit exceeded")
	ErrInvalidPageIndex      = errors.New("invalid page index")
	ErrAnalysisFailed        = errors.New("analysis failed")
	ErrServerBusy            = errors.New("server busy")
	ErrRenderFailed          = errors.New("render failed")
	ErrUploadNotFound        = errors.New("upload not found")
	ErrResultNotFound        = errors.New("result not found")
)

// ValidationError is a rejection at the validation boundary. Reason is safe
// to show to the user and always names the violated limit.
type ValidationError struct {
	Kind   error
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Reason == "" {
		return e.Kind.Error()
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Reason)
}

func (e *ValidationError) Unwrap() error {
	return e.Kind
}

// reject builds a ValidationError with a formatted reason.
func reject(kind error, format string, args ...any) error {
	return &ValidationError{Kind: kind, Reason: fmt.Sprintf(format, args...)}
}

// Reason returns the user-displayable reason of a ValidationError, or "".
func Reason(err error) string {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve.Reason
	}
	return ""
}
