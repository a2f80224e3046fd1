// Package waiter correlates asynchronous radio stack completions with the goroutines blocked on
// the commands that triggered them.
//
// A Slot holds at most one outstanding Waiter; a Keyed registry holds at most one per key. The
// completing side never blocks: a completion removes the waiter under the lock, then signals it
// through a one-element buffered channel after the lock is dropped.
package waiter

import (
	"context"
	"fmt"
	"time"

	"github.com/periph-ble/ble-command/pkg/protocol"
)

var (
	// ErrBusy is returned by Reserve when the slot or key already has a pending waiter, or is
	// quarantined after a waiter gave up.
	ErrBusy = protocol.ErrSlotBusy
	// ErrUnroutable is returned by Complete when there is no pending waiter.
	ErrUnroutable = protocol.ErrUnroutable
	// ErrLate is returned by Complete when there is no pending waiter but a previous waiter was
	// released without a result recently enough that the completion is most likely its own.
	ErrLate = fmt.Errorf("late completion: %w", ErrUnroutable)
	// ErrAborted is returned by Wait when the waiter was aborted before a result arrived.
	ErrAborted = protocol.ErrClosed
)

// now is replaced in tests.
var now = time.Now

// Waiter is a one-shot rendezvous between the goroutine that issued a command and the callback
// that reports its completion.
type Waiter[T any] struct {
	ch         chan T
	aborted    chan struct{}
	reservedAt time.Time
}

func newWaiter[T any]() *Waiter[T] {
	return &Waiter[T]{
		ch:         make(chan T, 1),
		aborted:    make(chan struct{}),
		reservedAt: now(),
	}
}

// Done returns a channel that receives the result exactly once.
func (w *Waiter[T]) Done() <-chan T {
	return w.ch
}

// Wait blocks until the result arrives, w is aborted or ctx expires. On expiry it returns
// ctx.Err(); the caller is then responsible for releasing w.
func (w *Waiter[T]) Wait(ctx context.Context) (T, error) {
	select {
	case result := <-w.ch:
		return result, nil
	case <-w.aborted:
		var zero T
		return zero, ErrAborted
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// ReservedAt returns the time w was created.
func (w *Waiter[T]) ReservedAt() time.Time {
	return w.reservedAt
}

// signal must only be called by the goroutine that removed w from its container, so the buffer
// is always empty.
func (w *Waiter[T]) signal(result T) {
	select {
	case w.ch <- result:
	default:
	}
}

// abort has the same contract as signal.
func (w *Waiter[T]) abort() {
	close(w.aborted)
}
