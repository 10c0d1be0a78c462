// Package dispatch implements the two-phase "mark, then fire" change
// handler protocol from spec.md §4.4: after a refresh of class C, every
// handler whose declared class is C or ALL is marked pending; a later fire
// sweep invokes each pending handler exactly once, in registration order,
// and clears pending. This is what gives a pump that produces several
// same-class refreshes (a burst of multicast messages) exactly one handler
// invocation per class, not one per message.
package dispatch

import (
	"golang.org/x/sys/unix"
)

// Class identifies which cache a handler wants to hear about.
type Class uint8

const (
	// ClassPort matches handlers interested in port-list refreshes.
	ClassPort Class = iota
	// ClassOption matches handlers interested in option-list refreshes.
	ClassOption
	// ClassAll matches handlers interested in either.
	ClassAll
)

func (c Class) matches(fired Class) bool {
	return c == ClassAll || c == fired
}

// Func is invoked once per registered handler per fire sweep that matches
// its class. data is the opaque user pointer supplied at registration.
type Func func(data any)

// registration is the dispatcher's private bookkeeping record for one
// registered handler (spec.md's HandlerRegistration).
type registration struct {
	identity any // caller-supplied handler identity, compared by ==
	class    Class
	fn       Func
	data     any
	pending  bool
}

// Registry is the handle's change-handler registry. It is not
// internally synchronized beyond what is needed to make Mark/Fire safe to
// call from the same goroutine that drives process_event; per spec.md §5
// the handle as a whole is single-threaded cooperative, so Registry does
// not add its own locking.
type Registry struct {
	regs []*registration
}

// Register appends a new handler registration with pending=false. It fails
// with unix.EEXIST if identity is already registered, matching spec.md
// §4.4. identity is typically the *ChangeHandler pointer itself.
func (r *Registry) Register(identity any, class Class, fn Func, data any) error {
	for _, reg := range r.regs {
		if reg.identity == identity {
			return unix.EEXIST
		}
	}
	r.regs = append(r.regs, &registration{
		identity: identity,
		class:    class,
		fn:       fn,
		data:     data,
	})
	return nil
}

// Unregister removes the registration for identity, if any. Unregistering
// an unknown handler is a silent no-op, per spec.md §4.4.
func (r *Registry) Unregister(identity any) {
	for i, reg := range r.regs {
		if reg.identity == identity {
			r.regs = append(r.regs[:i], r.regs[i+1:]...)
			return
		}
	}
}

// Mark sets pending=true on every registration whose class matches fired.
// Call once per successful refresh.
func (r *Registry) Mark(fired Class) {
	for _, reg := range r.regs {
		if reg.class.matches(fired) {
			reg.pending = true
		}
	}
}

// Fire walks the registry in registration order and, for every registration
// with pending=true whose class matches fired, invokes its callback exactly
// once and clears pending. Call with ClassAll to fire every pending handler
// regardless of class, as process_event does after a drain.
func (r *Registry) Fire(fired Class) {
	for _, reg := range r.regs {
		if reg.pending && (fired == ClassAll || reg.class.matches(fired)) {
			reg.pending = false
			reg.fn(reg.data)
		}
	}
}

// Reset clears every registration. Called from Handle.Free so that change
// handler registrations do not outlive the handle — the original C source
// omits this, which spec.md §9/§11 flags as a likely leak.
func (r *Registry) Reset() {
	r.regs = nil
}

// Len reports the number of currently registered handlers. Exposed for
// tests.
func (r *Registry) Len() int {
	return len(r.regs)
}
