package mcp

import (
	"errors"

	"sap-mcp-sse/internal/jsonrpc"
)

// KindInternalError is reported for errors that carry no kind of their own.
const KindInternalError = "InternalError"

// ErrorData is the data member of a failed tools/call response.
type ErrorData struct {
	ErrorKind  string `json:"error_kind"`
	Message    string `json:"message"`
	StatusCode int    `json:"status_code,omitempty"`
	Body       string `json:"body,omitempty"`
}

type kindError interface {
	error
	ErrorKind() string
}

type statusError interface {
	HTTPStatus() int
}

type bodyError interface {
	ErrorBody() string
}

// toolError converts a handler error into a JSON-RPC error. Caller mistakes
// map to invalid params, everything else to internal error.
func toolError(err error) *jsonrpc.Error {
	data := ErrorData{ErrorKind: KindInternalError, Message: err.Error()}

	var ke kindError
	if errors.As(err, &ke) {
		data.ErrorKind = ke.ErrorKind()
		data.Message = ke.Error()
	}
	var se statusError
	if errors.As(err, &se) {
		data.StatusCode = se.HTTPStatus()
	}
	var be bodyError
	if errors.As(err, &be) {
		data.Body = be.ErrorBody()
	}

	code := jsonrpc.InternalError
	switch data.ErrorKind {
	case "InvalidArgument", "ToolNotFound":
		code = jsonrpc.InvalidParams
	}

	return jsonrpc.NewError(code, data.Message, data)
}
