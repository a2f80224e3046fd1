package protocol_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/periph-ble/ble-command/pkg/protocol"
	"github.com/periph-ble/ble-command/pkg/stack"
)

func TestRetriableError(t *testing.T) {
	type params struct {
		err         error
		shouldRetry bool
		mayHave     bool
	}
	testCases := []params{
		{err: nil},
		{err: errors.New("plain error")},
		{err: protocol.ErrSlotBusy, shouldRetry: true},
		{err: protocol.ErrTimeout, mayHave: true},
		{err: protocol.ErrStackRejected},
		{err: protocol.ErrAlreadyRegistered},
		{err: fmt.Errorf("wrapped: %w", protocol.ErrSlotBusy), shouldRetry: true},
		{err: &protocol.StackError{Op: "start advertising", Status: stack.StatusBusy}, shouldRetry: true},
		{err: &protocol.StackError{Op: "start advertising", Status: stack.StatusNotReady}, shouldRetry: true},
		{err: &protocol.StackError{Op: "start advertising", Status: stack.StatusParamInvalid}},
		{err: &protocol.StackError{Op: "register application", Err: errors.New("invalid app id")}},
		{err: &protocol.CommandError{Err: context.Canceled, PossibleSuccess: true}, mayHave: true},
	}
	for _, test := range testCases {
		if retry := protocol.ShouldRetry(test.err); retry != test.shouldRetry {
			t.Errorf("ShouldRetry(%v) = %v, expected %v", test.err, retry, test.shouldRetry)
		}
		if mayHave := protocol.MayHaveSucceeded(test.err); mayHave != test.mayHave {
			t.Errorf("MayHaveSucceeded(%v) = %v, expected %v", test.err, mayHave, test.mayHave)
		}
	}
}

func TestStackErrorCategories(t *testing.T) {
	failure := &protocol.StackError{Op: "configure advertising data", Status: stack.StatusFail}
	if !errors.Is(failure, protocol.ErrStackFailure) {
		t.Errorf("Expected %s to be a stack failure", failure)
	}
	if errors.Is(failure, protocol.ErrStackRejected) {
		t.Errorf("Did not expect %s to be a rejection", failure)
	}

	cause := errors.New("stack not enabled")
	rejected := &protocol.StackError{Op: "start advertising", Err: cause}
	if !errors.Is(rejected, protocol.ErrStackRejected) {
		t.Errorf("Expected %s to be a rejection", rejected)
	}
	if !errors.Is(rejected, cause) {
		t.Errorf("Expected %s to wrap its cause", rejected)
	}

	var stackErr *protocol.StackError
	if !errors.As(fmt.Errorf("outer: %w", failure), &stackErr) || stackErr.Status != stack.StatusFail {
		t.Errorf("Expected to recover status from wrapped error")
	}
}
