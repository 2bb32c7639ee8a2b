package odata

import (
	"fmt"
	"unicode/utf8"
)

// ErrorKind classifies failures produced by this package.
type ErrorKind string

const (
	KindInvalidArgument   ErrorKind = "InvalidArgument"
	KindTransportError    ErrorKind = "TransportError"
	KindRequestFailed     ErrorKind = "RequestFailed"
	KindMalformedResponse ErrorKind = "MalformedResponse"
)

// MaxErrorBodyBytes bounds how much of an upstream body is kept on an Error.
const MaxErrorBodyBytes = 1024

// Error is returned by the query builder and the data source client.
type Error struct {
	Kind       ErrorKind
	Message    string
	StatusCode int    // upstream HTTP status, 0 when no response was received
	Body       string // truncated upstream body
	Cause      error
}

func (e *Error) Error() string {
	switch {
	case e.StatusCode != 0 && e.Body != "":
		return fmt.Sprintf("%s: %s (status %d): %s", e.Kind, e.Message, e.StatusCode, e.Body)
	case e.StatusCode != 0:
		return fmt.Sprintf("%s: %s (status %d)", e.Kind, e.Message, e.StatusCode)
	case e.Cause != nil:
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// ErrorKind returns the machine-checkable kind.
func (e *Error) ErrorKind() string {
	return string(e.Kind)
}

// HTTPStatus returns the upstream status code, or 0.
func (e *Error) HTTPStatus() int {
	return e.StatusCode
}

// ErrorBody returns the truncated upstream body, if any.
func (e *Error) ErrorBody() string {
	return e.Body
}

func newInvalidArgument(format string, args ...any) *Error {
	return &Error{Kind: KindInvalidArgument, Message: fmt.Sprintf(format, args...)}
}

func newTransportError(cause error) *Error {
	return &Error{Kind: KindTransportError, Message: "request to data source failed", Cause: cause}
}

func newRequestFailed(status int, body []byte) *Error {
	return &Error{
		Kind:       KindRequestFailed,
		Message:    "data source request failed",
		StatusCode: status,
		Body:       truncate(body),
	}
}

func newMalformedResponse(status int, body []byte) *Error {
	return &Error{
		Kind:       KindMalformedResponse,
		Message:    "data source returned a body that is not valid JSON",
		StatusCode: status,
		Body:       truncate(body),
	}
}

func truncate(body []byte) string {
	if len(body) <= MaxErrorBodyBytes {
		return string(body)
	}
	// back off so the cut does not split a rune
	end := MaxErrorBodyBytes
	for end > 0 && !utf8.RuneStart(body[end]) {
		end--
	}
	return string(body[:end]) + "...(truncated)"
}
