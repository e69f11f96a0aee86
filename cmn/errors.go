// Package cmn provides common low-level types shared across the cluster
// runtime: configuration, the error taxonomy, and a handful of small enums.
package cmn

import (
	"fmt"

	"github.com/pkg/errors"
)

// Code is a stable error-code identifier (spec §7); never reassign a value
// once shipped, a peer version may log it.
type Code int

const (
	_ Code = iota
	TransportBadAuth
	TransportOversize
	TransportClosed
	ProtocolUnknownCommand
	ProtocolTaskNotFound
	SyncPermissionDenied
	SyncStaleAgentInfo
	SyncClientKeysOnMaster
	ApplyError
	DispatchUnknownFunction
	DispatchNoSolverNode
)

var codeNames = map[Code]string{
	TransportBadAuth:        "TransportBadAuth",
	TransportOversize:       "TransportOversize",
	TransportClosed:         "TransportClosed",
	ProtocolUnknownCommand:  "ProtocolUnknownCommand",
	ProtocolTaskNotFound:    "ProtocolTaskNotFound",
	SyncPermissionDenied:    "SyncPermissionDenied",
	SyncStaleAgentInfo:      "SyncStaleAgentInfo",
	SyncClientKeysOnMaster:  "SyncClientKeysOnMaster",
	ApplyError:              "ApplyError",
	DispatchUnknownFunction: "DispatchUnknownFunction",
	DispatchNoSolverNode:    "DispatchNoSolverNode",
}

func (c Code) String() string {
	if s, ok := codeNames[c]; ok {
		return s
	}
	return fmt.Sprintf("Code(%d)", int(c))
}

// Error pairs a stable Code with a human-readable message and an optional
// cause, matching spec §7's "(code, message) tuples; codes are stable
// identifiers, not language types".
type Error struct {
	Code    Code
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

func NewError(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

func WrapError(code Code, cause error, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), Cause: errors.WithStack(cause)}
}

// CodeOf extracts the Code carried by err, if any, walking wrapped causes.
func CodeOf(err error) (Code, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Code, true
	}
	return 0, false
}

// Is reports whether err (or any wrapped cause) carries exactly code.
func Is(err error, code Code) bool {
	c, ok := CodeOf(err)
	return ok && c == code
}
