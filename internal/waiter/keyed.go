package waiter

import (
	"sync"
	"time"
)

// Keyed holds at most one pending Waiter per key. Waiters under different keys are independent.
type Keyed[K comparable, T any] struct {
	lock        sync.Mutex
	pending     map[K]*Waiter[T]
	quarantined map[K]time.Time
}

func NewKeyed[K comparable, T any]() *Keyed[K, T] {
	return &Keyed[K, T]{
		pending:     make(map[K]*Waiter[T]),
		quarantined: make(map[K]time.Time),
	}
}

// quarantineActive must be called with k.lock held. Expired entries are removed.
func (k *Keyed[K, T]) quarantineActive(key K) bool {
	until, ok := k.quarantined[key]
	if !ok {
		return false
	}
	if now().Before(until) {
		return true
	}
	delete(k.quarantined, key)
	return false
}

// Reserve installs a new Waiter under key. It fails with ErrBusy if key already has a pending
// waiter or is quarantined.
func (k *Keyed[K, T]) Reserve(key K) (*Waiter[T], error) {
	k.lock.Lock()
	defer k.lock.Unlock()
	if _, ok := k.pending[key]; ok || k.quarantineActive(key) {
		return nil, ErrBusy
	}
	w := newWaiter[T]()
	k.pending[key] = w
	return w, nil
}

// Complete removes the waiter pending under key and hands it result. See Slot.Complete for the
// errors returned when nothing is pending.
func (k *Keyed[K, T]) Complete(key K, result T) error {
	k.lock.Lock()
	w, ok := k.pending[key]
	if !ok {
		late := k.quarantineActive(key)
		delete(k.quarantined, key)
		k.lock.Unlock()
		if late {
			return ErrLate
		}
		return ErrUnroutable
	}
	delete(k.pending, key)
	k.lock.Unlock()

	w.signal(result)
	return nil
}

// Release removes w from key if it is still pending there. See Slot.Release.
func (k *Keyed[K, T]) Release(key K, w *Waiter[T], quarantine time.Duration) bool {
	k.lock.Lock()
	defer k.lock.Unlock()
	if w == nil || k.pending[key] != w {
		return false
	}
	delete(k.pending, key)
	if quarantine > 0 {
		k.quarantined[key] = now().Add(quarantine)
	}
	return true
}

// AbortAll removes every pending waiter, fails their Waits with ErrAborted and returns how many
// there were.
func (k *Keyed[K, T]) AbortAll() int {
	k.lock.Lock()
	pending := k.pending
	k.pending = make(map[K]*Waiter[T])
	k.lock.Unlock()
	for _, w := range pending {
		w.abort()
	}
	return len(pending)
}

// Pending returns the number of outstanding waiters.
func (k *Keyed[K, T]) Pending() int {
	k.lock.Lock()
	defer k.lock.Unlock()
	return len(k.pending)
}

// Keys returns the keys that have an outstanding waiter.
func (k *Keyed[K, T]) Keys() []K {
	k.lock.Lock()
	defer k.lock.Unlock()
	keys := make([]K, 0, len(k.pending))
	for key := range k.pending {
		keys = append(keys, key)
	}
	return keys
}
