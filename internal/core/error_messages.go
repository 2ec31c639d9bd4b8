package core

// error_messages.go maps errors to coded messages users can quote back.
//
//	FILE001 too large           FILE002 unsupported type    FILE003 unreadable
//	FILE004 no file             FILE005 empty
//	DOC001  encrypted PDF       DOC002  too many pages      DOC003  active content
//	IMG001  pixel ceiling       PAGE001 no such page
//	ANA001  analysis failed     BUSY001 analyzer busy       RND001  render failed
//	UPL001  upload gone         UPL002  cancelled           UPL003  timed out
//	UPL004  result gone         RATE001 rate limited        ERR000  anything else
//
// Sentinels are tried first with errors.Is in table order, then plain text
// substrings. ERR000 means the logs hold the real cause.

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// UserMessage is what a user sees for an error: what happened, what to do
// next and a code to quote.
type UserMessage struct {
	Message string `json:"message"`
	Action  string `json:"action"`
	Code    string `json:"code"`
}

// errorKind maps a sentinel error to its user message and HTTP status.
type errorKind struct {
	target error
	status int
	msg    UserMessage
}

// errorPattern matches lowercased error text.
type errorPattern struct {
	pattern string
	msg     UserMessage
}

var errorKinds = []errorKind{
	// =========================================================================
	// File Errors (FILE001-FILE005)
	// =========================================================================
	{
		target: ErrSizeLimitExceeded,
		status: http.StatusRequestEntityTooLarge,
		msg: UserMessage{
			Message: "File exceeds the maximum upload size",
			Action:  "Upload a smaller file (20MB or less)",
			Code:    "FILE001",
		},
	},
	{
		target: ErrUnsupportedType,
		status: http.StatusUnsupportedMediaType,
		msg: UserMessage{
			Message: "Unsupported file type",
			Action:  "Upload a PNG, JPG, JPEG, WEBP or PDF file",
			Code:    "FILE002",
		},
	},
	{
		target: ErrCorruptDocument,
		status: http.StatusUnprocessableEntity,
		msg: UserMessage{
			Message: "The file could not be read",
			Action:  "Re-export or re-scan the document and try again",
			Code:    "FILE003",
		},
	},
	{
		target: ErrEmptyFile,
		status: http.StatusBadRequest,
		msg: UserMessage{
			Message: "The uploaded file is empty",
			Action:  "Please upload a file with content",
			Code:    "FILE005",
		},
	},

	// =========================================================================
	// Document and Image Errors (DOC001-DOC003, IMG001, PAGE001)
	// =========================================================================
	{
		target: ErrEncryptedDocument,
		status: http.StatusUnprocessableEntity,
		msg: UserMessage{
			Message: "The PDF is password protected",
			Action:  "Remove the password and upload again",
			Code:    "DOC001",
		},
	},
	{
		target: ErrTooManyPages,
		status: http.StatusUnprocessableEntity,
		msg: UserMessage{
			Message: "The PDF exceeds the page limit",
			Action:  "Split the PDF into smaller documents",
			Code:    "DOC002",
		},
	},
	{
		target: ErrActiveContentRejected,
		status: http.StatusUnprocessableEntity,
		msg: UserMessage{
			Message: "The PDF contains scripts or automatic actions",
			Action:  "Print the document to a new PDF and upload that",
			Code:    "DOC003",
		},
	},
	{
		target: ErrPixelLimitExceeded,
		status: http.StatusUnprocessableEntity,
		msg: UserMessage{
			Message: "The image resolution is too large",
			Action:  "Downscale the image and try again",
			Code:    "IMG001",
		},
	},
	{
		target: ErrInvalidPageIndex,
		status: http.StatusBadRequest,
		msg: UserMessage{
			Message: "The requested page does not exist",
			Action:  "Choose a page within the document",
			Code:    "PAGE001",
		},
	},

	// =========================================================================
	// Conversion Errors (ANA001, BUSY001, RND001)
	// =========================================================================
	{
		target: ErrServerBusy,
		status: http.StatusServiceUnavailable,
		msg: UserMessage{
			Message: "Another conversion is running",
			Action:  "Please wait a moment and try again",
			Code:    "BUSY001",
		},
	},
	{
		target: ErrAnalysisFailed,
		status: http.StatusBadGateway,
		msg: UserMessage{
			Message: "The table could not be recognised",
			Action:  "Try a clearer image or crop to the table",
			Code:    "ANA001",
		},
	},
	{
		target: ErrRenderFailed,
		status: http.StatusInternalServerError,
		msg: UserMessage{
			Message: "The spreadsheet could not be produced",
			Action:  "Please try again or contact support",
			Code:    "RND001",
		},
	},

	// =========================================================================
	// Session Errors (UPL001-UPL004)
	// =========================================================================
	{
		target: ErrUploadNotFound,
		status: http.StatusNotFound,
		msg: UserMessage{
			Message: "Upload not found",
			Action:  "The upload may have expired. Please upload the file again",
			Code:    "UPL001",
		},
	},
	{
		target: context.Canceled,
		status: 499,
		msg: UserMessage{
			Message: "Request was cancelled",
			Action:  "Please try again",
			Code:    "UPL002",
		},
	},
	{
		target: context.DeadlineExceeded,
		status: http.StatusGatewayTimeout,
		msg: UserMessage{
			Message: "Request timed out",
			Action:  "Try a smaller file or try again later",
			Code:    "UPL003",
		},
	},
	{
		target: ErrResultNotFound,
		status: http.StatusNotFound,
		msg: UserMessage{
			Message: "Result not found",
			Action:  "The result may have expired. Please convert again",
			Code:    "UPL004",
		},
	},
}

// errorPatterns catch errors that arrive as plain text, for example from the
// HTTP layer before the core is involved.
var errorPatterns = []errorPattern{
	{
		pattern: "no file provided",
		msg: UserMessage{
			Message: "No file was selected",
			Action:  "Please select an image or PDF to upload",
			Code:    "FILE004",
		},
	},
	{
		pattern: "request body too large",
		msg: UserMessage{
			Message: "File exceeds the maximum upload size",
			Action:  "Upload a smaller file (20MB or less)",
			Code:    "FILE001",
		},
	},
	{
		pattern: "rate limit",
		msg: UserMessage{
			Message: "Too many requests",
			Action:  "Please wait a moment before trying again",
			Code:    "RATE001",
		},
	},
}

// defaultMessage is returned when nothing matches (ERR000).
var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Please try again or contact support",
	Code:    "ERR000",
}

// MapError picks the message for err. A ValidationError's reason replaces
// the generic text so the user sees which limit was hit, e.g. DOC002 with
// "PDF exceeds page limit (12/10)".
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}

	for _, k := range errorKinds {
		if errors.Is(err, k.target) {
			msg := k.msg
			if reason := Reason(err); reason != "" {
				msg.Message = reason
			}
			return msg
		}
	}

	errStr := strings.ToLower(err.Error())
	for _, ep := range errorPatterns {
		if strings.Contains(errStr, ep.pattern) {
			return ep.msg
		}
	}

	return defaultMessage
}

// HTTPStatus returns the status code a handler should use for err.
func HTTPStatus(err error) int {
	for _, k := range errorKinds {
		if errors.Is(err, k.target) {
			return k.status
		}
	}
	return http.StatusInternalServerError
}

// FormatUserError renders err as "Message (Code: XXX). Action".
func FormatUserError(err error) string {
	msg := MapError(err)
	if msg.Message == "" {
		return ""
	}
	return fmt.Sprintf("%s (Code: %s). %s", msg.Message, msg.Code, msg.Action)
}

// IsUserFacing reports whether err maps to a specific code rather than ERR000.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}
	return MapError(err).Code != defaultMessage.Code
}
