package tools

import "fmt"

// Error kinds reported by the registry.
const (
	KindInvalidArgument = "InvalidArgument"
	KindToolNotFound    = "ToolNotFound"
)

// Error represents a tool resolution or argument binding error.
type Error struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
	// Param names the offending parameter for InvalidArgument.
	Param string `json:"param,omitempty"`
}

func (e *Error) Error() string {
	return e.Message
}

// ErrorKind returns the machine-checkable kind.
func (e *Error) ErrorKind() string {
	return e.Kind
}

func newInvalidArgument(param, format string, args ...any) *Error {
	return &Error{Kind: KindInvalidArgument, Message: fmt.Sprintf(format, args...), Param: param}
}

func newToolNotFound(name string) *Error {
	return &Error{Kind: KindToolNotFound, Message: fmt.Sprintf("tool not found: %s", name)}
}
