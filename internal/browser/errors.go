package browser

import (
	"errors"
	"fmt"
	"strings"
)

const (
	CodeValidation     = "VALIDATION"
	CodeSessionLost    = "SESSION_LOST"
	CodeNavFailure     = "NAV_FAILURE"
	CodeEvalFailure    = "EVAL_FAILURE"
	CodeEvalTimeout    = "EVAL_TIMEOUT"
	CodeCDPUnavailable = "CDP_UNAVAILABLE"
)

// CodedError is a typed error used for stable error mapping across the
// crawler and the status API.
type CodedError struct {
	Code    string
	Message string
	Cause   error
}

func (e *CodedError) Error() string {
	if e.Cause == nil {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
}

func (e *CodedError) Unwrap() error { return e.Cause }

func newError(code, msg string, cause error) error {
	return &CodedError{Code: code, Message: msg, Cause: cause}
}

// transientHints are substrings in error causes that indicate the tab or the
// browser connection is gone rather than the evaluated script having failed.
var transientHints = []string{
	"context canceled",
	"target closed",
	"target crashed",
	"session closed",
	"websocket",
	"connection reset",
	"broken pipe",
	"eof",
	"connection refused",
	"connection closed",
	"detached from target",
}

// IsSessionLost reports whether err means the page session cannot be used
// anymore. Callers treat this as fatal for the current page only.
func IsSessionLost(err error) bool {
	if err == nil {
		return false
	}
	var coded *CodedError
	if errors.As(err, &coded) && coded.Code == CodeSessionLost {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, hint := range transientHints {
		if strings.Contains(msg, hint) {
			return true
		}
	}
	return false
}

// IsTimeout reports whether err is an evaluation or wait timeout.
func IsTimeout(err error) bool {
	var coded *CodedError
	return errors.As(err, &coded) && coded.Code == CodeEvalTimeout
}
