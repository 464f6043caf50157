package chat

import (
	"errors"
	"fmt"
)

// ErrorCode classifies exchange failures for callers and transports.
type ErrorCode string

const (
	// CodeInvalidRequest is rejected before any state mutation.
	CodeInvalidRequest ErrorCode = "invalid_request"
	// CodeUpstreamTimeout means the provider missed the hard deadline.
	CodeUpstreamTimeout ErrorCode = "upstream_timeout"
	// CodeUpstreamRejected means the provider returned an error status.
	CodeUpstreamRejected ErrorCode = "upstream_rejected"
	// CodeUpstreamMalformed means a success response had no extractable reply.
	CodeUpstreamMalformed ErrorCode = "upstream_malformed"
	CodeInternal          ErrorCode = "internal_error"
)

// Error wraps a failure with its classification. Upstream codes imply the
// user's own turn was already committed to history.
type Error struct {
	Code   ErrorCode
	Reason string
	Err    error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err == nil {
		return fmt.Sprintf("chat: %s (%s)", e.Code, e.Reason)
	}
	return fmt.Sprintf("chat: %s (%s): %v", e.Code, e.Reason, e.Err)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func newError(code ErrorCode, reason string, err error) *Error {
	return &Error{Code: code, Reason: reason, Err: err}
}

// CodeOf extracts the classification from an exchange error, defaulting to
// internal_error for unclassified failures.
func CodeOf(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}
