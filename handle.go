// Package libteam is a user-space control library for the kernel "team"
// link-aggregation network device. It mediates between an application and
// the kernel driver over the generic-netlink "team" family, keeping a live
// local mirror of the device's port roster and tunable options and
// delivering change notifications driven by kernel multicast events.
//
// The library does not create or destroy team devices, does not enslave or
// release ports, and does not interpret option semantics — it is a typed
// key/value conduit plus a cache.
package libteam

import (
	"context"
	"errors"
	"log/slog"

	"github.com/mdlayher/genetlink"
	"github.com/mdlayher/netlink"
	pkgerrors "github.com/pkg/errors"
	"golang.org/x/sys/unix"

	"github.com/cyphermox/libteam/internal/cache"
	"github.com/cyphermox/libteam/internal/dispatch"
	"github.com/cyphermox/libteam/internal/linkname"
	"github.com/cyphermox/libteam/internal/nlsock"
	"github.com/cyphermox/libteam/internal/wire"
)

// transport is the seam between Handle and the netlink socket it drives.
// *nlsock.Socket satisfies it; tests substitute a fake that replays canned
// genetlink.Message values instead of talking to a real kernel.
type transport interface {
	Exchange(req genetlink.Message, flags netlink.HeaderFlags, onValid func(genetlink.Message) nlsock.Verdict) error
	DrainOne(onMessage func(genetlink.Message)) error
	JoinGroup(groupName string) error
	LeaveGroup(groupName string) error
	Fd() (int, error)
	Close() error
}

// dialTeam opens and resolves one generic-netlink socket against the team
// family. It is a package variable so tests can replace it; tests that
// preset a Handle's cmd/evt fields directly never invoke it.
var dialTeam = func() (transport, error) {
	return nlsock.Dial(wire.FamilyName)
}

// Handle is a long-lived object owning the command socket, the event
// socket, the link-name resolver, the port/option caches and the change
// handler registry for one team device. The zero value is not usable;
// construct with Alloc.
//
// Handle is not internally synchronized beyond the mutex guarding each cache
// list; the handler registry has no locking. A process using it from multiple threads
// must serialize externally, and a handler callback must not re-enter
// ProcessEvent on the same handle.
type Handle struct {
	logger *slog.Logger

	cmd transport
	evt transport
	lnk linkname.Resolver

	ifindex uint32

	ports    cache.List[*Port]
	options  cache.List[*Option]
	handlers dispatch.Registry

	initialized bool
}

// Alloc allocates a Handle with empty caches and no connected sockets. It
// never fails: socket creation and family resolution are deferred to Init,
// per the lazy-connect design this library follows for all of its netlink
// state. logger may be nil, in which case a discarding logger is used.
func Alloc(logger *slog.Logger) *Handle {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(discardWriter{}, nil))
	}
	return &Handle{logger: logger}
}

// Init binds h to ifindex: connects the command and event sockets,
// resolves the team family and its change_event multicast group, joins the
// event socket to that group, and performs the initial port and option
// refreshes. ifindex must be nonzero.
//
// On any failure, all resources acquired so far are released (via Free)
// before Init returns, so the handle remains safe to Free again or to
// discard.
func (h *Handle) Init(ctx context.Context, ifindex uint32) error {
	if ifindex == 0 {
		h.logger.Warn("team: init rejected zero ifindex")
		return unix.ENOENT
	}

	if h.cmd == nil {
		cmd, err := dialTeam()
		if err != nil {
			h.logger.Error("team: command socket connect failed", slog.Any("err", err))
			h.Free()
			return dialErrno(err)
		}
		h.cmd = cmd
	}

	if h.evt == nil {
		evt, err := dialTeam()
		if err != nil {
			h.logger.Error("team: event socket connect failed", slog.Any("err", err))
			h.Free()
			return dialErrno(err)
		}
		h.evt = evt
	}

	if err := h.evt.JoinGroup(wire.ChangeEventGroup); err != nil {
		h.logger.Error("team: join change_event group failed", slog.Any("err", err))
		h.Free()
		return unix.EINVAL
	}

	h.ifindex = ifindex

	if err := h.refreshPorts(); err != nil {
		h.logger.Error("team: initial port refresh failed", slog.Any("err", err))
		h.Free()
		return unix.EINVAL
	}
	if err := h.refreshOptions(); err != nil {
		h.logger.Error("team: initial option refresh failed", slog.Any("err", err))
		h.Free()
		return unix.EINVAL
	}

	h.initialized = true
	return nil
}

// dialErrno maps a transport dial failure to the errno spec.md §7
// prescribes: resolve failures surface as -ENOENT (the team family isn't
// registered), anything else as -ENOTSUP (the socket itself couldn't be
// opened).
func dialErrno(err error) error {
	if errors.Is(err, unix.ENOENT) {
		return unix.ENOENT
	}
	return unix.ENOTSUP
}

// Free releases every resource the handle owns: both sockets, the cached
// port and option lists, and the change handler registry. It is safe to
// call after Alloc alone, after a failed Init, or more than once.
func (h *Handle) Free() {
	if h.cmd != nil {
		if err := h.cmd.Close(); err != nil {
			h.logger.Warn("team: command socket close failed", slog.Any("err", err))
		}
		h.cmd = nil
	}
	if h.evt != nil {
		if err := h.evt.Close(); err != nil {
			h.logger.Warn("team: event socket close failed", slog.Any("err", err))
		}
		h.evt = nil
	}
	h.lnk.Close()
	h.ports.Replace(nil)
	h.options.Replace(nil)
	h.handlers.Reset()
	h.initialized = false
}

// EventFd returns the event socket's file descriptor, for external
// poll-loop integration. It is exposed read-only: callers must never
// read from, write to, or close it directly.
func (h *Handle) EventFd() (int, error) {
	if h.evt == nil {
		return -1, unix.EINVAL
	}
	return h.evt.Fd()
}

// ProcessEvent drains exactly one multicast datagram from the event socket,
// applies it to the relevant cache, and runs one ALL-class fire sweep —
// so every handler left pending by the drain (regardless of class) is
// invoked exactly once. It must not be called from within a handler
// callback running on the same handle.
func (h *Handle) ProcessEvent() error {
	if h.evt == nil {
		return unix.EINVAL
	}

	var drainErr error
	err := h.evt.DrainOne(func(msg genetlink.Message) {
		if err := h.applyIncoming(msg); err != nil {
			drainErr = err
		}
	})
	if err != nil {
		return err
	}
	if drainErr != nil {
		return drainErr
	}

	h.handlers.Fire(dispatch.ClassAll)
	return nil
}

// CheckEvents performs a non-blocking check of the event socket and calls
// ProcessEvent once per readiness, draining while the socket stays
// readable. It retries on EINTR, per spec.md §4.4.
func (h *Handle) CheckEvents() error {
	fd, err := h.EventFd()
	if err != nil {
		return err
	}

	for {
		readable, err := selectReadable(fd)
		if err != nil {
			if errors.Is(err, unix.EINTR) {
				continue
			}
			return err
		}
		if !readable {
			return nil
		}
		if err := h.ProcessEvent(); err != nil {
			return err
		}
	}
}

func selectReadable(fd int) (bool, error) {
	var set unix.FdSet
	set.Bits[fd/64] |= 1 << uint(fd%64)
	timeout := unix.Timeval{Sec: 0, Usec: 0}

	n, err := unix.Select(fd+1, &set, nil, nil, &timeout)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// applyIncoming decodes one unsolicited message and folds it into the
// matching cache list, marking handlers of that class pending. A message
// carrying a foreign team ifindex (wire.ErrWrongIfindex) is silently
// ignored, per the cross-talk filter in spec.md §4.2.
func (h *Handle) applyIncoming(msg genetlink.Message) error {
	switch msg.Header.Command {
	case wire.CmdPortListGet:
		ports, err := wire.DecodePortList(msg, h.ifindex, h.logger)
		if err != nil {
			if errors.Is(err, wire.ErrWrongIfindex) {
				return nil
			}
			return err
		}
		h.ports.Replace(toPorts(ports))
		h.handlers.Mark(dispatch.ClassPort)
	case wire.CmdOptionsGet:
		opts, err := wire.DecodeOptionList(msg, h.ifindex, h.logger)
		if err != nil {
			if errors.Is(err, wire.ErrWrongIfindex) {
				return nil
			}
			return err
		}
		h.options.Replace(toOptions(opts))
		h.handlers.Mark(dispatch.ClassOption)
	}
	return nil
}

func (h *Handle) refreshPorts() error {
	req, err := wire.EncodePortListGet(h.ifindex)
	if err != nil {
		return pkgerrors.Wrap(err, "team: encode port list get")
	}

	var (
		decoded []wire.PortAttrs
		got     bool
	)
	err = h.cmd.Exchange(req, 0, func(reply genetlink.Message) nlsock.Verdict {
		ports, derr := wire.DecodePortList(reply, h.ifindex, h.logger)
		if derr == nil {
			decoded, got = ports, true
		}
		return nlsock.VerdictContinue
	})
	if err != nil {
		return err
	}
	if !got {
		return nil
	}

	h.ports.Replace(toPorts(decoded))
	h.handlers.Mark(dispatch.ClassPort)
	h.handlers.Fire(dispatch.ClassPort)
	return nil
}

func (h *Handle) refreshOptions() error {
	req, err := wire.EncodeOptionsGet(h.ifindex)
	if err != nil {
		return pkgerrors.Wrap(err, "team: encode options get")
	}

	var (
		decoded []wire.OptionAttrs
		got     bool
	)
	err = h.cmd.Exchange(req, 0, func(reply genetlink.Message) nlsock.Verdict {
		opts, derr := wire.DecodeOptionList(reply, h.ifindex, h.logger)
		if derr == nil {
			decoded, got = opts, true
		}
		return nlsock.VerdictContinue
	})
	if err != nil {
		return err
	}
	if !got {
		return nil
	}

	h.options.Replace(dedupOptions(decoded, h.logger))
	h.handlers.Mark(dispatch.ClassOption)
	h.handlers.Fire(dispatch.ClassOption)
	return nil
}

func dedupOptions(attrs []wire.OptionAttrs, logger *slog.Logger) []*Option {
	seen := make(map[string]bool, len(attrs))
	out := make([]*Option, 0, len(attrs))
	for _, a := range attrs {
		if seen[a.Name] {
			if logger != nil {
				logger.Warn("team: duplicate option name in refresh, keeping first", slog.String("name", a.Name))
			}
			continue
		}
		seen[a.Name] = true
		out = append(out, newOption(a))
	}
	return out
}

func toPorts(attrs []wire.PortAttrs) []*Port {
	out := make([]*Port, len(attrs))
	for i, a := range attrs {
		out[i] = newPort(a)
	}
	return out
}

func toOptions(attrs []wire.OptionAttrs) []*Option {
	return dedupOptions(attrs, nil)
}

// GetNextPort implements cursor iteration over the port list: passing nil
// returns the first entry; passing an entry returns its successor; passing
// the last entry, or one no longer present because a refresh replaced the
// list, returns nil.
func (h *Handle) GetNextPort(prev *Port) *Port {
	next, ok := h.ports.Next(prev)
	if !ok {
		return nil
	}
	return next
}

// GetNextOption implements cursor iteration over the option list, with the
// same semantics as GetNextPort.
func (h *Handle) GetNextOption(prev *Option) *Option {
	next, ok := h.options.Next(prev)
	if !ok {
		return nil
	}
	return next
}

// RegisterChangeHandler adds handler to the dispatcher, pending=false.
// It returns unix.EEXIST if handler is already registered.
func (h *Handle) RegisterChangeHandler(handler *ChangeHandler) error {
	return h.handlers.Register(handler, handler.Class, func(data any) {
		handler.Func(h, data)
	}, handler.Data)
}

// UnregisterChangeHandler removes handler from the dispatcher. Unregistering
// a handler that was never registered, or already removed, is a no-op.
func (h *Handle) UnregisterChangeHandler(handler *ChangeHandler) {
	h.handlers.Unregister(handler)
}

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }
