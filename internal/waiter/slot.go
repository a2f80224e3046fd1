package waiter

import (
	"sync"
	"time"
)

// Slot holds at most one pending Waiter. The zero value is ready to use.
type Slot[T any] struct {
	lock             sync.Mutex
	pending          *Waiter[T]
	quarantinedUntil time.Time
}

// Reserve installs a new Waiter. It fails with ErrBusy if another waiter is pending or the slot
// is quarantined.
func (s *Slot[T]) Reserve() (*Waiter[T], error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.pending != nil || now().Before(s.quarantinedUntil) {
		return nil, ErrBusy
	}
	s.quarantinedUntil = time.Time{}
	s.pending = newWaiter[T]()
	return s.pending, nil
}

// Complete removes the pending waiter and hands it result. If no waiter is pending it returns
// ErrLate when the slot is quarantined (and lifts the quarantine) or ErrUnroutable otherwise.
func (s *Slot[T]) Complete(result T) error {
	s.lock.Lock()
	w := s.pending
	if w == nil {
		late := now().Before(s.quarantinedUntil)
		s.quarantinedUntil = time.Time{}
		s.lock.Unlock()
		if late {
			return ErrLate
		}
		return ErrUnroutable
	}
	s.pending = nil
	s.lock.Unlock()

	w.signal(result)
	return nil
}

// Release removes w if it is still the pending waiter and reports whether it did. A positive
// quarantine keeps the slot closed to new reservations until a completion arrives or the period
// elapses.
func (s *Slot[T]) Release(w *Waiter[T], quarantine time.Duration) bool {
	s.lock.Lock()
	defer s.lock.Unlock()
	if w == nil || s.pending != w {
		return false
	}
	s.pending = nil
	if quarantine > 0 {
		s.quarantinedUntil = now().Add(quarantine)
	}
	return true
}

// Abort removes the pending waiter, if any, and fails its Wait with ErrAborted.
func (s *Slot[T]) Abort() bool {
	s.lock.Lock()
	w := s.pending
	s.pending = nil
	s.lock.Unlock()
	if w == nil {
		return false
	}
	w.abort()
	return true
}

// Pending returns true if a waiter is outstanding.
func (s *Slot[T]) Pending() bool {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.pending != nil
}

// Quarantined returns true if the slot is refusing reservations after a waiter gave up.
func (s *Slot[T]) Quarantined() bool {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.pending == nil && now().Before(s.quarantinedUntil)
}
