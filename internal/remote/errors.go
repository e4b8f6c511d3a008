package remote

import (
	"errors"
	"fmt"
)

// Violation is the constraint a rejected write broke.
type Violation string

// Violation codes. ViolationNone marks a rejection the store did not classify.
const (
	ViolationNone       Violation = ""
	ViolationForeignKey Violation = "foreign_key"
	ViolationUnique     Violation = "unique"
	ViolationNotNull    Violation = "not_null"
	ViolationCheck      Violation = "check"
	ViolationNotFound   Violation = "not_found"
)

var causes = map[Violation]string{
	ViolationForeignKey: "One or more selected values are invalid. Please check your selections.",
	ViolationUnique:     "A record with the same value already exists.",
	ViolationNotNull:    "A required value is missing.",
	ViolationCheck:      "One or more values are out of range.",
	ViolationNotFound:   "The record no longer exists.",
}

// Cause returns the human-readable explanation of a violation, or "" when there is
// none.
func (v Violation) Cause() string {
	return causes[v]
}

// ErrUnreachable marks failures where the store could not be reached or did not
// answer in time. Such a write may or may not have been applied.
var ErrUnreachable = errors.New("remote store unreachable")

// Error is a failed remote operation.
type Error struct {
	Op        string
	Table     string
	Violation Violation
	Message   string
	Err       error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.Violation != ViolationNone {
		return fmt.Sprintf("%s %s: %s violation: %s", e.Op, e.Table, e.Violation, msg)
	}
	return fmt.Sprintf("%s %s: %s", e.Op, e.Table, msg)
}

func (e *Error) Unwrap() error { return e.Err }

// Rejected returns an error for a write the store refused.
func Rejected(op, table string, v Violation, err error) *Error {
	e := &Error{Op: op, Table: table, Violation: v, Err: err}
	if err != nil {
		e.Message = err.Error()
	}
	return e
}

// Unreachable returns an error for an operation that never got an answer.
func Unreachable(op, table string, err error) *Error {
	return &Error{
		Op:    op,
		Table: table,
		Err:   fmt.Errorf("%w: %w", ErrUnreachable, err),
	}
}

// NotFound returns an error for an operation addressing a missing row.
func NotFound(op, table string, id int64) *Error {
	return &Error{
		Op:        op,
		Table:     table,
		Violation: ViolationNotFound,
		Message:   fmt.Sprintf("no row with id %d", id),
	}
}

// IsUnreachable reports whether err is a transport failure.
func IsUnreachable(err error) bool {
	return errors.Is(err, ErrUnreachable)
}

// ViolationOf returns the violation carried by err, if any.
func ViolationOf(err error) (Violation, bool) {
	var re *Error
	if errors.As(err, &re) && !IsUnreachable(err) {
		return re.Violation, true
	}
	return ViolationNone, false
}
