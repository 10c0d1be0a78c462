package libteam

import "github.com/cyphermox/libteam/internal/dispatch"

// ChangeClass selects which cache refreshes a ChangeHandler wants to hear
// about.
type ChangeClass = dispatch.Class

// The three change classes a handler can be registered for.
const (
	ChangeClassPort   = dispatch.ClassPort
	ChangeClassOption = dispatch.ClassOption
	ChangeClassAll    = dispatch.ClassAll
)

// ChangeHandlerFunc is invoked when a refresh of a matching class completes.
// data is whatever was passed to RegisterChangeHandler, carried alongside
// the handler rather than captured in a closure, so the handler can be
// written without one if the caller prefers plain functions.
type ChangeHandlerFunc func(h *Handle, data any)

// ChangeHandler is a caller-registered callback. Its identity (the pointer
// itself) is what RegisterChangeHandler/UnregisterChangeHandler use to find
// it in the registry; a ChangeHandler must not be registered twice
// concurrently on the same handle.
type ChangeHandler struct {
	Class ChangeClass
	Func  ChangeHandlerFunc
	Data  any
}
