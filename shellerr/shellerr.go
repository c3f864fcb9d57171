// Package shellerr defines the structured error values shared by all
// shell runtime components.
//
// Errors carry a stable two-level code (namespace + detail), a human
// readable message, and an optional context map. Codes are part of the
// wire format: they serialise as {code: [namespace, detail], message,
// context} when crossing the subscriber boundary and must not change
// between releases.
//
// Two usage patterns are supported:
//
//  1. Code checks: shellerr.HasCode(err, shellerr.VFSNotFound)
//  2. Structured extraction: use errors.As to obtain *shellerr.Error
//     and inspect Context.
//
// All constructors return *Error, which implements the error interface
// and Unwrap() for compatibility with errors.Is and errors.As.
package shellerr

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Code is a stable two-level error tag, e.g. {vfs not_found}.
type Code struct {
	Namespace string
	Detail    string
}

// String returns the canonical "namespace.detail" form.
func (c Code) String() string {
	return c.Namespace + "." + c.Detail
}

// VFS namespace codes.
var (
	VFSNotFound      = Code{"vfs", "not_found"}
	VFSNotADirectory = Code{"vfs", "not_a_directory"}
	VFSExists        = Code{"vfs", "exists"}
	VFSIO            = Code{"vfs", "io"}
	VFSNoMount       = Code{"vfs", "no_mount"}
	VFSPathMounted   = Code{"vfs", "path_already_mounted"}
	VFSBadAdapter    = Code{"vfs", "invalid_adapter_config"}
)

// Shell namespace codes.
var (
	ShellUnknownCommand   = Code{"shell", "unknown_command"}
	ShellEmptyCommand     = Code{"shell", "empty_command"}
	ShellChainedCommand   = Code{"shell", "chained_command"}
	ShellValidation       = Code{"shell", "validation"}
	ShellBusy             = Code{"shell", "busy"}
	ShellNetworkBlocked   = Code{"shell", "network_blocked"}
	ShellUnclosedQuote    = Code{"shell", "unclosed_quote"}
	ShellDanglingEscape   = Code{"shell", "dangling_escape"}
	ShellBadOperatorPos   = Code{"shell", "invalid_operator_position"}
	ShellTrailingOperator = Code{"shell", "trailing_operator"}
)

// Command namespace codes.
var (
	CommandExitCode    = Code{"command", "exit_code"}
	CommandTimeout     = Code{"command", "timeout"}
	CommandOutputLimit = Code{"command", "output_limit_exceeded"}
	CommandCrashed     = Code{"command", "crashed"}
)

// Session namespace codes.
var (
	SessionNotFound = Code{"session", "not_found"}
)

// Error is a structured error value with a stable code and optional
// key/value context.
type Error struct {
	Code    Code
	Message string
	Context map[string]string
	Err     error // wrapped cause, may be nil
}

// New creates an error with the given code and message.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Newf creates an error with a formatted message.
func Newf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates an error with the given code whose message and cause
// come from err.
func Wrap(code Code, err error) *Error {
	return &Error{Code: code, Message: err.Error(), Err: err}
}

// WithContext returns e with the key/value pair added. The receiver is
// mutated and returned to allow chaining at construction sites.
func (e *Error) WithContext(key, value string) *Error {
	if e.Context == nil {
		e.Context = make(map[string]string)
	}
	e.Context[key] = value
	return e
}

// Error implements the error interface.
func (e *Error) Error() string {
	if len(e.Context) == 0 {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}

	keys := make([]string, 0, len(e.Context))
	for k := range e.Context {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + "=" + e.Context[k]
	}
	return fmt.Sprintf("%s: %s [%s]", e.Code, e.Message, strings.Join(parts, " "))
}

// Unwrap allows errors.Is and errors.As to reach the cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// MarshalJSON implements the wire format used at the subscriber
// boundary: {"code": ["vfs", "not_found"], "message": ..., "context": {...}}.
func (e *Error) MarshalJSON() ([]byte, error) {
	ctx := e.Context
	if ctx == nil {
		ctx = map[string]string{}
	}
	return json.Marshal(struct {
		Code    [2]string         `json:"code"`
		Message string            `json:"message"`
		Context map[string]string `json:"context"`
	}{
		Code:    [2]string{e.Code.Namespace, e.Code.Detail},
		Message: e.Message,
		Context: ctx,
	})
}

// CodeOf extracts the code from err, or the zero Code if err is not a
// *Error anywhere in its chain.
func CodeOf(err error) Code {
	var se *Error
	if errors.As(err, &se) {
		return se.Code
	}
	return Code{}
}

// HasCode reports whether err carries the given code.
func HasCode(err error, code Code) bool {
	return CodeOf(err) == code
}

// ContextValue returns the context value for key from the first *Error
// in err's chain, or "" if absent.
func ContextValue(err error, key string) string {
	var se *Error
	if errors.As(err, &se) {
		return se.Context[key]
	}
	return ""
}
