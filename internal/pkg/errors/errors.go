package errors

import (
	goerrors "errors"
	"fmt"
	"sort"
	"strings"
)

//Kind is the category of a domain error
type Kind int

const (
	//KindNotFound - a referenced segment, survey, report or defect type is missing
	KindNotFound Kind = iota
	//KindValidation - malformed input such as a too short reason
	KindValidation
	//KindConflict - duplicate records, blocked deletions, locked observations or concurrent writes
	KindConflict
	//KindInvalidTransition - the report status does not allow the requested transition
	KindInvalidTransition
	//KindAccess - the actor lacks the role required for the transition
	KindAccess
	//KindInternal - unexpected storage failures
	KindInternal
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "NOT_FOUND"
	case KindValidation:
		return "VALIDATION"
	case KindConflict:
		return "CONFLICT"
	case KindInvalidTransition:
		return "INVALID_TRANSITION"
	case KindAccess:
		return "ACCESS"
	case KindInternal:
		return "INTERNAL"
	default:
		return "UNKNOWN"
	}
}

//Error is a typed, recoverable error returned to callers
type Error struct {
	Kind    Kind
	Message string
	Cause   error
	Context map[string]interface{}
}

func (e *Error) Error() string {
	var sb strings.Builder
	sb.WriteString(e.Message)

	if len(e.Context) > 0 {
		keys := make([]string, 0, len(e.Context))
		for k := range e.Context {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		sb.WriteString(" (")
		for i, k := range keys {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(fmt.Sprintf("%s=%v", k, e.Context[k]))
		}
		sb.WriteString(")")
	}

	if e.Cause != nil {
		sb.WriteString(": ")
		sb.WriteString(e.Cause.Error())
	}

	return sb.String()
}

//Unwrap returns the underlying cause
func (e *Error) Unwrap() error {
	return e.Cause
}

//Is matches any *Error of the same kind
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

//WithContext adds a key to the error context
func (e *Error) WithContext(key string, value interface{}) *Error {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

//WithCause attaches the error that triggered this one
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

func newError(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

//NotFound creates an error for a missing entity
func NotFound(entity, id string) *Error {
	return newError(KindNotFound, "%s not found", entity).WithContext("id", id)
}

//Validation creates an error for malformed input
func Validation(format string, args ...interface{}) *Error {
	return newError(KindValidation, format, args...)
}

//Conflict creates an error for a write that clashes with stored state
func Conflict(format string, args ...interface{}) *Error {
	return newError(KindConflict, format, args...)
}

//InvalidTransition creates an error for a denied status transition
func InvalidTransition(format string, args ...interface{}) *Error {
	return newError(KindInvalidTransition, format, args...)
}

//Access creates an error for an actor lacking a required role
func Access(format string, args ...interface{}) *Error {
	return newError(KindAccess, format, args...)
}

//Internal reports an unexpected failure. The cause is logged by the caller and
//never attached, so storage details do not leak.
func Internal(operation string) *Error {
	return &Error{Kind: KindInternal, Message: operation + " failed"}
}

//KindOf returns the kind of a typed error, or KindInternal for anything else
func KindOf(err error) Kind {
	var e *Error
	if goerrors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

func isKind(err error, kind Kind) bool {
	var e *Error
	return goerrors.As(err, &e) && e.Kind == kind
}

//IsNotFound reports whether err is a NotFound error
func IsNotFound(err error) bool { return isKind(err, KindNotFound) }

//IsValidation reports whether err is a Validation error
func IsValidation(err error) bool { return isKind(err, KindValidation) }

//IsConflict reports whether err is a Conflict error
func IsConflict(err error) bool { return isKind(err, KindConflict) }

//IsInvalidTransition reports whether err is an InvalidTransition error
func IsInvalidTransition(err error) bool { return isKind(err, KindInvalidTransition) }

//IsAccess reports whether err is an Access error
func IsAccess(err error) bool { return isKind(err, KindAccess) }
