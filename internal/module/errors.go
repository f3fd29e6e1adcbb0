package module

import (
	"errors"
	"strings"
)

// Sentinel kinds for the failures a run can report. Match them with
// errors.Is; use errors.As with *Error to recover the module and record.
var (
	ErrReadiness        = errors.New("not ready")
	ErrOption           = errors.New("invalid option")
	ErrMalformedPayload = errors.New("malformed payload")
	ErrExecution        = errors.New("execution failed")
	ErrWrite            = errors.New("write failed")
)

// Error attributes a failure to a module and, when known, a record.
type Error struct {
	Kind   error
	Module string
	Record string
	Err    error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Module)
	if e.Record != "" {
		b.WriteString(": record ")
		b.WriteString(e.Record)
	}
	b.WriteString(": ")
	b.WriteString(e.Kind.Error())
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

// Unwrap exposes both the kind and the cause to errors.Is and errors.As.
func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// ReadinessError reports missing external data for a module.
func ReadinessError(moduleID string, err error) error {
	return &Error{Kind: ErrReadiness, Module: moduleID, Err: err}
}

// OptionError reports an invalid configuration value for a module.
func OptionError(moduleID string, err error) error {
	return &Error{Kind: ErrOption, Module: moduleID, Err: err}
}

// MalformedPayload reports a cached payload that cannot be reconstructed.
func MalformedPayload(moduleID, recordID string, err error) error {
	return &Error{Kind: ErrMalformedPayload, Module: moduleID, Record: recordID, Err: err}
}

// ExecutionError reports a failed fresh computation.
func ExecutionError(moduleID, recordID string, err error) error {
	return &Error{Kind: ErrExecution, Module: moduleID, Record: recordID, Err: err}
}

// WriteError reports a failure while writing a result's outputs.
func WriteError(moduleID, recordID string, err error) error {
	return &Error{Kind: ErrWrite, Module: moduleID, Record: recordID, Err: err}
}

