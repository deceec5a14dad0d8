package db

import (
	"errors"
	"fmt"
)

// --------------------------------------------------------------------------
// Error Kinds
// --------------------------------------------------------------------------

// ErrorKind classifies an Error. The protocol error code is carried as data
// on the Error itself, the kind only decides how the error is surfaced.
type ErrorKind uint8

const (
	KindDomain         ErrorKind = iota // protocol-level failure with a numeric code
	KindSilentNotFound                  // expected absence, logged at debug level only
	KindUnknownCommand                  // command name is not supported
	KindInternal                        // anything else
)

func (k ErrorKind) String() string {
	switch k {
	case KindDomain:
		return "Domain"
	case KindSilentNotFound:
		return "SilentNotFound"
	case KindUnknownCommand:
		return "UnknownCommand"
	case KindInternal:
		return "Internal"
	default:
		return "Unknown"
	}
}

// --------------------------------------------------------------------------
// Protocol Codes
// --------------------------------------------------------------------------

const (
	CodeInternalError      = 1
	CodeBadValue           = 2
	CodeIllegalOperation   = 20
	CodeNamespaceNotFound  = 26
	CodeNamespaceExists    = 48
	CodeCommandNotFound    = 59
	CodeDuplicateKey       = 11000
	CodeNamespaceTooLong   = 10080
	CodeReservedNamespace  = 10093
	CodeSystemUpdate       = 10156
	CodeSystemDelete       = 12050
	CodeInvalidNamespace   = 16256
	CodeSystemInsert       = 16459
	CodeImmutableField     = 16837
	CodeInvalidRegexOption = 51108
)

// --------------------------------------------------------------------------
// Error Type
// --------------------------------------------------------------------------

// Error is the error type returned by every database component.
type Error struct {
	Kind ErrorKind
	Code int
	Msg  string
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("%s (code %d): %s", e.Kind, e.Code, e.Msg)
}

// NewError creates a new domain error with the given code and message.
func NewError(code int, format string, args ...any) *Error {
	return &Error{Kind: KindDomain, Code: code, Msg: fmt.Sprintf(format, args...)}
}

// AsError unwraps err into an *Error. Errors of any other type are reported
// as internal errors so callers can always render a code and a message.
func AsError(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return &Error{Kind: KindInternal, Code: CodeInternalError, Msg: err.Error()}
}

// IsSilent reports whether err is an expected "not found" condition.
func IsSilent(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == KindSilentNotFound
}

// --------------------------------------------------------------------------
// Constructors
// --------------------------------------------------------------------------

func ErrNamespaceTooLong(max int) *Error {
	return NewError(CodeNamespaceTooLong, "ns name too long, max size is %d", max)
}

func ErrInvalidNamespace(ns string) *Error {
	return NewError(CodeInvalidNamespace, "Invalid ns [%s]", ns)
}

func ErrReservedNamespace() *Error {
	return NewError(CodeReservedNamespace, "cannot insert into reserved $ collection")
}

func ErrSystemInsert() *Error {
	return NewError(CodeSystemInsert, "attempt to insert in system namespace")
}

func ErrSystemDelete() *Error {
	return NewError(CodeSystemDelete, "cannot delete from system namespace")
}

func ErrSystemUpdate() *Error {
	return NewError(CodeSystemUpdate, "cannot update system collection")
}

func ErrSystemDrop(ns string) *Error {
	return NewError(CodeIllegalOperation, "can't drop system ns %s", ns)
}

func ErrNamespaceExists(ns string) *Error {
	return NewError(CodeNamespaceExists, "collection already exists: %s", ns)
}

func ErrImmutableID() *Error {
	return NewError(CodeImmutableField, "The _id field cannot be changed")
}

// ErrDuplicateKey renders the classic E11000 message for a unique index violation.
func ErrDuplicateKey(ns, index string, key any) *Error {
	return NewError(CodeDuplicateKey, "E11000 duplicate key error index: %s.$%s  dup key: { : %v }", ns, index, key)
}

func ErrInvalidArgument(format string, args ...any) *Error {
	return NewError(CodeBadValue, format, args...)
}

func ErrInvalidRegexOption(flag rune) *Error {
	return NewError(CodeInvalidRegexOption, "unknown pattern flag: '%c'", flag)
}

// ErrNamespaceNotFound is the silent error returned when a command targets a
// collection that does not exist.
func ErrNamespaceNotFound() *Error {
	return &Error{Kind: KindSilentNotFound, Code: CodeNamespaceNotFound, Msg: "ns not found"}
}

func ErrNoSuchCommand(name string) *Error {
	return &Error{Kind: KindUnknownCommand, Code: CodeCommandNotFound, Msg: fmt.Sprintf("no such cmd: %s", name)}
}

func NewInternalError(format string, args ...any) *Error {
	return &Error{Kind: KindInternal, Code: CodeInternalError, Msg: fmt.Sprintf(format, args...)}
}
