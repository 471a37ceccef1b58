// Package dderr unifies the core's error taxonomy into a single retcode
// enumeration plus a process-level fatal hook. The source this project is
// derived from carried the same responsibility split across two files
// (dds_err.c and dds_err_check.c); this package treats it as one module.
package dderr

import (
	"errors"
	"fmt"
)

// Retcode is the DDS return-code enumeration. Positive entity handles and
// SUCCESS (0) live outside this type; Retcode only enumerates the negative
// space an operation can fail with.
type Retcode int

const (
	OK Retcode = iota
	Error
	Unsupported
	BadParameter
	PreconditionNotMet
	OutOfResources
	NotEnabled
	ImmutablePolicy
	InconsistentPolicy
	AlreadyDeleted
	Timeout
	NoData
	IllegalOperation
	NotAllowedBySecurity
)

var names = map[Retcode]string{
	OK:                    "OK",
	Error:                 "ERROR",
	Unsupported:           "UNSUPPORTED",
	BadParameter:          "BAD_PARAMETER",
	PreconditionNotMet:    "PRECONDITION_NOT_MET",
	OutOfResources:        "OUT_OF_RESOURCES",
	NotEnabled:            "NOT_ENABLED",
	ImmutablePolicy:       "IMMUTABLE_POLICY",
	InconsistentPolicy:    "INCONSISTENT_POLICY",
	AlreadyDeleted:        "ALREADY_DELETED",
	Timeout:               "TIMEOUT",
	NoData:                "NO_DATA",
	IllegalOperation:      "ILLEGAL_OPERATION",
	NotAllowedBySecurity:  "NOT_ALLOWED_BY_SECURITY",
}

func (r Retcode) String() string {
	if s, ok := names[r]; ok {
		return s
	}
	return fmt.Sprintf("RETCODE(%d)", int(r))
}

// AsInt32 returns the public-API encoding of this retcode: a strictly
// negative int32, per spec.md §6 ("zero is SUCCESS... negative values are
// -retcode"). OK itself is never returned this way from the API surface.
func (r Retcode) AsInt32() int32 {
	return -int32(r)
}

// Error wraps a Retcode with a human-readable cause. It implements the
// standard error interface so internal callers can use errors.Is/As while
// the public API façade (pkg/ddsc) still degrades it to a signed int32.
type Error struct {
	Code  Retcode
	Cause error
}

func New(code Retcode, format string, args ...any) *Error {
	return &Error{Code: code, Cause: fmt.Errorf(format, args...)}
}

func Wrap(code Retcode, err error) *Error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Cause: err}
}

func (e *Error) Error() string {
	if e.Cause == nil {
		return e.Code.String()
	}
	return fmt.Sprintf("%s: %v", e.Code, e.Cause)
}

func (e *Error) Unwrap() error { return e.Cause }

// Is allows errors.Is(err, dderr.AlreadyDeleted) style checks against the
// sentinel retcode values by wrapping them as *Error with a nil cause.
func (e *Error) Is(target error) bool {
	var te *Error
	if errors.As(target, &te) {
		return te.Code == e.Code
	}
	return false
}

// Sentinel returns a reusable *Error for a bare retcode, useful as an
// errors.Is target: dderr.Is(err, dderr.AlreadyDeleted).
func Sentinel(code Retcode) *Error { return &Error{Code: code} }

// Is reports whether err carries the given retcode anywhere in its chain.
func Is(err error, code Retcode) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// Code extracts the Retcode from err, or Error if err does not carry one.
func Code(err error) Retcode {
	if err == nil {
		return OK
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return Error
}

// FatalHook is invoked on allocation failure or other unrecoverable error in
// the hot path after partial state mutation (spec.md §7, "Fatal errors").
// The default aborts the process; applications may install a replacement,
// e.g. for graceful shutdown in tests.
type FatalHook func(context string, err error)

var fatalHook FatalHook = defaultFatalHook

func defaultFatalHook(context string, err error) {
	panic(fmt.Sprintf("ddscore: fatal error in %s: %v", context, err))
}

// SetFatalHook installs a replacement fatal hook. Not safe to call
// concurrently with Fatal; intended for process-startup configuration.
func SetFatalHook(h FatalHook) {
	if h == nil {
		h = defaultFatalHook
	}
	fatalHook = h
}

// Fatal invokes the installed fatal hook. It is the only path in the core
// that may terminate the process; no other operation panics or throws
// across the API boundary.
func Fatal(context string, err error) {
	fatalHook(context, err)
}
