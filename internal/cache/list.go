// Package cache implements the ordered, atomically-replaceable sequence
// abstraction described in spec.md §4.3 and §9 ("Global list helpers →
// ordered sequence abstraction"). It replaces the C source's intrusive
// doubly-linked list with a plain Go slice guarded by a mutex; callers
// never see a partially-replaced list.
package cache

import "sync"

// List is an ordered collection of comparable values (in practice, pointers
// to immutable records such as *libteam.Port or *libteam.Option) that
// supports atomic whole-list replacement and cursor-style iteration.
//
// The zero value is an empty, ready-to-use List.
type List[T comparable] struct {
	mu    sync.RWMutex
	items []T
}

// Replace atomically swaps the entire contents of the list. Any goroutine
// already iterating via Next or Snapshot continues to observe the
// pre-Replace contents for calls already in flight; every call after
// Replace returns observes the new contents. No mixture of old and new
// entries is ever visible.
func (l *List[T]) Replace(items []T) {
	l.mu.Lock()
	l.items = items
	l.mu.Unlock()
}

// Snapshot returns a copy of the list's current contents in kernel delivery
// order.
func (l *List[T]) Snapshot() []T {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]T, len(l.items))
	copy(out, l.items)
	return out
}

// Len reports the number of entries currently in the list.
func (l *List[T]) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.items)
}

// Next implements the cursor iteration used by GetNextPort/GetNextOption:
// passing the zero value of T (nil, for pointer types) returns the first
// entry; passing an entry returns its successor; passing the last entry, or
// an entry no longer present (because a refresh replaced the list), returns
// the zero value and ok=false.
func (l *List[T]) Next(prev T) (next T, ok bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var zero T
	if prev == zero {
		if len(l.items) == 0 {
			return zero, false
		}
		return l.items[0], true
	}

	for i, it := range l.items {
		if it == prev {
			if i+1 < len(l.items) {
				return l.items[i+1], true
			}
			return zero, false
		}
	}
	return zero, false
}
