// Package linkname implements the link-name helper described in spec.md
// §4.6: translating between a network interface's name and its kernel
// ifindex, as used by callers that know a team device only by name (Init
// takes an ifindex) and by the port list (which only carries indices).
//
// It is a thin wrapper over github.com/vishvananda/netlink's route-netlink
// link lookups, kept in its own package so the root package never imports
// vishvananda/netlink directly. Per spec.md's Data Model, the handle holds
// exactly one route-netlink socket alongside its two generic-netlink
// sockets; Resolver holds that socket lazily, opening it on first lookup
// and keeping it for the Resolver's lifetime rather than dialing per call.
package linkname

import (
	"github.com/vishvananda/netlink"
	"golang.org/x/sys/unix"
)

// Resolver looks up interface names and indices over one route-netlink
// socket, opened lazily on first use. The zero value is ready to use;
// Close releases the socket, if one was ever opened.
type Resolver struct {
	handle *netlink.Handle
}

// connect returns the resolver's route-netlink handle, dialing it on first
// call.
func (r *Resolver) connect() (*netlink.Handle, error) {
	if r.handle == nil {
		h, err := netlink.NewHandle()
		if err != nil {
			return nil, err
		}
		r.handle = h
	}
	return r.handle, nil
}

// ToIndex resolves name to its current ifindex. It returns unix.ENODEV if
// no such interface exists.
func (r *Resolver) ToIndex(name string) (uint32, error) {
	h, err := r.connect()
	if err != nil {
		return 0, err
	}
	link, err := h.LinkByName(name)
	if err != nil {
		if _, ok := err.(netlink.LinkNotFoundError); ok {
			return 0, unix.ENODEV
		}
		return 0, err
	}
	return uint32(link.Attrs().Index), nil
}

// ToName resolves ifindex to its current interface name. It returns
// unix.ENODEV if no such interface exists.
func (r *Resolver) ToName(ifindex uint32) (string, error) {
	h, err := r.connect()
	if err != nil {
		return "", err
	}
	link, err := h.LinkByIndex(int(ifindex))
	if err != nil {
		if _, ok := err.(netlink.LinkNotFoundError); ok {
			return "", unix.ENODEV
		}
		return "", err
	}
	return link.Attrs().Name, nil
}

// Close releases the route-netlink socket, if one was opened. It is safe
// to call on a Resolver that never made a lookup, and more than once.
func (r *Resolver) Close() {
	if r.handle != nil {
		r.handle.Close()
		r.handle = nil
	}
}
