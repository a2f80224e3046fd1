package protocol

import (
	"errors"
	"fmt"
)

// Error exposes methods useful for categorizing errors.
type Error interface {
	error

	// MayHaveSucceeded returns true if the Error was triggered by a command that might have been
	// executed. For example, if the radio stack does not report a completion before the deadline,
	// then the client cannot tell if the command took effect. (Not all timeouts mean the command
	// MayHaveSucceeded, so the common Timeout() error interface is not appropriate here).
	MayHaveSucceeded() bool

	// Temporary returns true if the Error might be the result of a transient condition. For
	// example, a slot is busy while a previous operation of the same kind is outstanding.
	Temporary() bool
}

var (
	// ErrStackRejected indicates the radio stack refused to accept a command (invalid argument,
	// stack not ready, ...). No completion will follow.
	ErrStackRejected = NewError("radio stack rejected command", false, false)
	// ErrStackFailure indicates the stack accepted a command but completed it with a non-success
	// status. Use errors.As with *StackError to retrieve the status.
	ErrStackFailure = NewError("radio stack reported failure", false, false)
	// ErrSlotBusy indicates an operation of the same kind is already outstanding. The caller
	// must wait for it to resolve before retrying.
	ErrSlotBusy = NewError("an operation of the same kind is already in progress", false, true)
	// ErrTimeout indicates the stack did not report a completion in time. The command may still
	// complete later; such a completion is discarded.
	ErrTimeout = NewError("timed out waiting for radio stack completion", true, true)
	// ErrUnroutable indicates a completion arrived with no matching waiter. It is only reported
	// through diagnostics and is never returned to a caller.
	ErrUnroutable = errors.New("completion has no pending request")
	// ErrAlreadyRegistered indicates the application id is already bound to an interface.
	ErrAlreadyRegistered = NewError("application already registered", false, false)
	// ErrNotInitialized indicates an operation was attempted before the stack was brought up.
	ErrNotInitialized = NewError("radio stack not initialized", false, false)
	// ErrClosed indicates the peripheral has been shut down.
	ErrClosed = NewError("peripheral closed", false, false)
	// ErrBadResponse indicates a malformed reply from a remote peripheral proxy.
	ErrBadResponse = errors.New("invalid response")
)

type CommandError struct {
	Err               error
	PossibleSuccess   bool
	PossibleTemporary bool
}

func NewError(message string, mayHaveSucceeded bool, temporary bool) error {
	return &CommandError{Err: errors.New(message), PossibleSuccess: mayHaveSucceeded, PossibleTemporary: temporary}
}

func (e *CommandError) Error() string {
	return e.Err.Error()
}

func (e *CommandError) Unwrap() error {
	return e.Err
}

func (e *CommandError) MayHaveSucceeded() bool {
	return e.PossibleSuccess
}

func (e *CommandError) Temporary() bool {
	return e.PossibleTemporary
}

// StatusCode is implemented by stack outcome codes.
type StatusCode interface {
	fmt.Stringer
	OK() bool
	Transient() bool
}

// StackError describes a command the radio stack either refused to accept (Status is nil and
// Err holds the backend error) or completed with a non-success Status.
type StackError struct {
	Op     string
	Status StatusCode
	Err    error
}

func (e *StackError) Error() string {
	if e.Status != nil {
		return fmt.Sprintf("%s: stack reported %s", e.Op, e.Status)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: stack rejected command: %s", e.Op, e.Err)
	}
	return fmt.Sprintf("%s: stack rejected command", e.Op)
}

func (e *StackError) Unwrap() []error {
	if e.Status != nil {
		return []error{ErrStackFailure}
	}
	if e.Err != nil {
		return []error{ErrStackRejected, e.Err}
	}
	return []error{ErrStackRejected}
}

func (e *StackError) MayHaveSucceeded() bool {
	return false
}

func (e *StackError) Temporary() bool {
	if e.Status != nil {
		return e.Status.Transient()
	}
	return Temporary(e.Err)
}

// MayHaveSucceeded returns true if err is an Error that indicates the command may have been
// executed but the client did not receive a confirmation from the stack.
func MayHaveSucceeded(err error) bool {
	var commErr Error
	if errors.As(err, &commErr) && commErr.MayHaveSucceeded() {
		return true
	}
	return false
}

// Temporary returns true if err is an Error that indicates the command failed due to possibly
// transient conditions that do not require user action to resolve.
func Temporary(err error) bool {
	var commErr Error
	if errors.As(err, &commErr) && commErr.Temporary() {
		return true
	}
	return false
}

// ShouldRetry returns true if the client should retry to issue the command that triggered an error.
func ShouldRetry(err error) bool {
	if err == nil {
		return false
	}
	var e Error
	if errors.As(err, &e) {
		if e.MayHaveSucceeded() {
			return false
		}
		if e.Temporary() {
			return true
		}
	}
	return false
}
