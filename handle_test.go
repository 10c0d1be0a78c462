package libteam

import (
	"context"
	"log/slog"
	"testing"

	"github.com/mdlayher/genetlink"
	"github.com/mdlayher/netlink"
	"golang.org/x/sys/unix"

	"github.com/cyphermox/libteam/internal/nlsock"
	"github.com/cyphermox/libteam/internal/wire"
)

// Raw netlink attribute type codes for option payloads, as carried in
// TEAM_ATTR_OPTION_TYPE. These mirror the kernel's NLA_U32/NLA_STRING
// values and are duplicated here (rather than imported) because the wire
// package keeps them unexported.
const (
	nlaU32    = 3
	nlaString = 5
)

// fakeTransport is an in-memory transport double replaying canned
// genetlink.Message batches, one batch per Exchange/DrainOne call, in call
// order — modeled on the teacher's fakeTransport test double.
type fakeTransport struct {
	exchangeReplies [][]genetlink.Message
	exchangeCalls   int

	drainBatches [][]genetlink.Message
	drainCalls   int

	joinErr  error
	joined   []string
	closeErr error
	closed   bool
	fd       int
}

func (f *fakeTransport) Exchange(_ genetlink.Message, _ netlink.HeaderFlags, onValid func(genetlink.Message) nlsock.Verdict) error {
	if f.exchangeCalls >= len(f.exchangeReplies) {
		f.exchangeCalls++
		return nil
	}
	batch := f.exchangeReplies[f.exchangeCalls]
	f.exchangeCalls++
	for _, m := range batch {
		if onValid(m) == nlsock.VerdictStop {
			break
		}
	}
	return nil
}

func (f *fakeTransport) DrainOne(onMessage func(genetlink.Message)) error {
	if f.drainCalls >= len(f.drainBatches) {
		f.drainCalls++
		return nil
	}
	batch := f.drainBatches[f.drainCalls]
	f.drainCalls++
	for _, m := range batch {
		onMessage(m)
	}
	return nil
}

func (f *fakeTransport) JoinGroup(group string) error {
	f.joined = append(f.joined, group)
	return f.joinErr
}
func (f *fakeTransport) LeaveGroup(string) error { return nil }
func (f *fakeTransport) Fd() (int, error)        { return f.fd, nil }
func (f *fakeTransport) Close() error            { f.closed = true; return f.closeErr }

func newTestHandle(cmd, evt *fakeTransport) *Handle {
	h := Alloc(slog.Default())
	h.cmd = cmd
	h.evt = evt
	return h
}

type testPort struct {
	ifindex uint32
	speed   uint32
	duplex  uint8
	changed bool
	linkUp  bool
}

func portListMessage(t *testing.T, ifindex uint32, ports []testPort) genetlink.Message {
	t.Helper()
	enc := netlink.NewAttributeEncoder()
	enc.Uint32(wire.AttrTeamIfindex, ifindex)
	enc.Nested(wire.AttrListPort, func(lenc *netlink.AttributeEncoder) error {
		for _, p := range ports {
			lenc.Nested(wire.AttrItemPort, func(ienc *netlink.AttributeEncoder) error {
				ienc.Uint32(wire.AttrPortIfindex, p.ifindex)
				if p.changed {
					ienc.Uint8(wire.AttrPortChanged, 1)
				}
				if p.linkUp {
					ienc.Uint8(wire.AttrPortLinkup, 1)
				}
				ienc.Uint32(wire.AttrPortSpeed, p.speed)
				ienc.Uint8(wire.AttrPortDuplex, p.duplex)
				return nil
			})
		}
		return nil
	})
	b, err := enc.Encode()
	if err != nil {
		t.Fatalf("encode port list message: %v", err)
	}
	return genetlink.Message{
		Header: genetlink.Header{Command: wire.CmdPortListGet, Version: 1},
		Data:   b,
	}
}

type testOption struct {
	name    string
	typ     wire.OptionType
	u32     uint32
	str     string
	changed bool
}

func optionListMessage(t *testing.T, ifindex uint32, opts []testOption) genetlink.Message {
	t.Helper()
	enc := netlink.NewAttributeEncoder()
	enc.Uint32(wire.AttrTeamIfindex, ifindex)
	enc.Nested(wire.AttrListOption, func(lenc *netlink.AttributeEncoder) error {
		for _, o := range opts {
			lenc.Nested(wire.AttrItemOption, func(ienc *netlink.AttributeEncoder) error {
				ienc.String(wire.AttrOptionName, o.name)
				if o.changed {
					ienc.Uint8(wire.AttrOptionChanged, 1)
				}
				switch o.typ {
				case wire.OptionTypeU32:
					ienc.Uint32(wire.AttrOptionType, nlaU32)
					ienc.Uint32(wire.AttrOptionData, o.u32)
				case wire.OptionTypeString:
					ienc.Uint32(wire.AttrOptionType, nlaString)
					ienc.String(wire.AttrOptionData, o.str)
				}
				return nil
			})
		}
		return nil
	})
	b, err := enc.Encode()
	if err != nil {
		t.Fatalf("encode option list message: %v", err)
	}
	return genetlink.Message{
		Header: genetlink.Header{Command: wire.CmdOptionsGet, Version: 1},
		Data:   b,
	}
}

// S1 — Initial sync.
func TestInit_InitialSync(t *testing.T) {
	const ifindex = 7

	ports := []testPort{
		{ifindex: 11, speed: 1000, duplex: 1, linkUp: true},
		{ifindex: 12, speed: 100, duplex: 0, linkUp: false},
	}
	opts := []testOption{
		{name: "mode", typ: wire.OptionTypeString, str: "activebackup"},
		{name: "activeport", typ: wire.OptionTypeU32, u32: 11},
	}

	cmd := &fakeTransport{
		exchangeReplies: [][]genetlink.Message{
			{portListMessage(t, ifindex, ports)},
			{optionListMessage(t, ifindex, opts)},
		},
	}
	evt := &fakeTransport{}
	h := newTestHandle(cmd, evt)

	if err := h.Init(context.Background(), ifindex); err != nil {
		t.Fatalf("Init: %v", err)
	}
	defer h.Free()

	var seen []uint32
	for p := h.GetNextPort(nil); p != nil; p = h.GetNextPort(p) {
		seen = append(seen, p.IfIndex())
	}
	if len(seen) != 2 || seen[0] != 11 || seen[1] != 12 {
		t.Fatalf("port order = %v, want [11 12]", seen)
	}

	mode, err := h.GetModeName()
	if err != nil || mode != "activebackup" {
		t.Fatalf("GetModeName() = %q, %v, want activebackup, nil", mode, err)
	}

	active, err := h.GetActivePort()
	if err != nil || active != 11 {
		t.Fatalf("GetActivePort() = %d, %v, want 11, nil", active, err)
	}
}

// S2 — Cross-ifindex filter.
func TestProcessEvent_CrossIfindexFilter(t *testing.T) {
	const ifindex = 7

	cmd := &fakeTransport{
		exchangeReplies: [][]genetlink.Message{
			{portListMessage(t, ifindex, []testPort{{ifindex: 11}})},
			{optionListMessage(t, ifindex, nil)},
		},
	}
	evt := &fakeTransport{
		drainBatches: [][]genetlink.Message{
			{portListMessage(t, 99, []testPort{{ifindex: 55}})},
		},
	}
	h := newTestHandle(cmd, evt)
	if err := h.Init(context.Background(), ifindex); err != nil {
		t.Fatalf("Init: %v", err)
	}
	defer h.Free()

	fired := false
	handler := &ChangeHandler{Class: ChangeClassAll, Func: func(*Handle, any) { fired = true }}
	if err := h.RegisterChangeHandler(handler); err != nil {
		t.Fatalf("RegisterChangeHandler: %v", err)
	}

	if err := h.ProcessEvent(); err != nil {
		t.Fatalf("ProcessEvent: %v", err)
	}

	if fired {
		t.Fatalf("handler fired on cross-ifindex message")
	}
	if p := h.GetNextPort(nil); p == nil || p.IfIndex() != 11 {
		t.Fatalf("cache mutated by cross-ifindex message")
	}
}

// S3 — Duplicate name.
func TestInit_DuplicateOptionName(t *testing.T) {
	const ifindex = 7

	opts := []testOption{
		{name: "mode", typ: wire.OptionTypeString, str: "roundrobin"},
		{name: "mode", typ: wire.OptionTypeString, str: "activebackup"},
	}
	cmd := &fakeTransport{
		exchangeReplies: [][]genetlink.Message{
			{portListMessage(t, ifindex, nil)},
			{optionListMessage(t, ifindex, opts)},
		},
	}
	evt := &fakeTransport{}
	h := newTestHandle(cmd, evt)

	fireCount := 0
	handler := &ChangeHandler{Class: ChangeClassOption, Func: func(*Handle, any) { fireCount++ }}
	if err := h.RegisterChangeHandler(handler); err != nil {
		t.Fatalf("RegisterChangeHandler: %v", err)
	}

	if err := h.Init(context.Background(), ifindex); err != nil {
		t.Fatalf("Init: %v", err)
	}
	defer h.Free()

	n := 0
	for o := h.GetNextOption(nil); o != nil; o = h.GetNextOption(o) {
		n++
	}
	if n != 1 {
		t.Fatalf("option list length = %d, want 1", n)
	}
	mode, _ := h.GetModeName()
	if mode != "roundrobin" {
		t.Fatalf("GetModeName() = %q, want first entry roundrobin", mode)
	}
	if fireCount != 1 {
		t.Fatalf("handler fired %d times, want 1", fireCount)
	}
}

// S4 — Set round-trip.
func TestSetActivePort_EncodesRequest(t *testing.T) {
	const ifindex = 7

	cmd := &fakeTransport{
		exchangeReplies: [][]genetlink.Message{
			{portListMessage(t, ifindex, nil)},
			{optionListMessage(t, ifindex, []testOption{{name: "activeport", typ: wire.OptionTypeU32, u32: 11}})},
			nil, // the SetActivePort exchange itself: empty ack
		},
	}
	evt := &fakeTransport{}
	h := newTestHandle(cmd, evt)
	if err := h.Init(context.Background(), ifindex); err != nil {
		t.Fatalf("Init: %v", err)
	}
	defer h.Free()

	if err := h.SetActivePort(42); err != nil {
		t.Fatalf("SetActivePort: %v", err)
	}

	active, err := h.GetActivePort()
	if err != nil || active != 11 {
		t.Fatalf("GetActivePort() = %d, %v, want unchanged 11 until echoed by an event", active, err)
	}
}

// S5 — Two-phase dispatch.
func TestProcessEvent_TwoPhaseDispatch(t *testing.T) {
	const ifindex = 7

	cmd := &fakeTransport{
		exchangeReplies: [][]genetlink.Message{
			{portListMessage(t, ifindex, []testPort{{ifindex: 11}})},
			{optionListMessage(t, ifindex, nil)},
		},
	}
	evt := &fakeTransport{
		drainBatches: [][]genetlink.Message{
			{
				portListMessage(t, ifindex, []testPort{{ifindex: 21}}),
				portListMessage(t, ifindex, []testPort{{ifindex: 22}}),
			},
		},
	}
	h := newTestHandle(cmd, evt)
	if err := h.Init(context.Background(), ifindex); err != nil {
		t.Fatalf("Init: %v", err)
	}
	defer h.Free()

	portFires, allFires := 0, 0
	hp := &ChangeHandler{Class: ChangeClassPort, Func: func(*Handle, any) { portFires++ }}
	ha := &ChangeHandler{Class: ChangeClassAll, Func: func(*Handle, any) { allFires++ }}
	if err := h.RegisterChangeHandler(hp); err != nil {
		t.Fatalf("register port handler: %v", err)
	}
	if err := h.RegisterChangeHandler(ha); err != nil {
		t.Fatalf("register all handler: %v", err)
	}

	if err := h.ProcessEvent(); err != nil {
		t.Fatalf("ProcessEvent: %v", err)
	}

	if portFires != 1 {
		t.Fatalf("port handler fired %d times, want 1", portFires)
	}
	if allFires != 1 {
		t.Fatalf("all handler fired %d times, want 1", allFires)
	}
}

// S6 — Init failure rollback.
func TestInit_FamilyResolveFailureRollsBack(t *testing.T) {
	h := Alloc(slog.Default())

	orig := dialTeam
	dialTeam = func() (transport, error) { return nil, unix.ENOENT }
	defer func() { dialTeam = orig }()

	err := h.Init(context.Background(), 7)
	if err != unix.ENOENT {
		t.Fatalf("Init() error = %v, want ENOENT", err)
	}

	// Free must be safe and idempotent after a failed Init.
	h.Free()
	h.Free()
}

func TestRegisterChangeHandler_DuplicateRejected(t *testing.T) {
	h := newTestHandle(&fakeTransport{}, &fakeTransport{})
	handler := &ChangeHandler{Class: ChangeClassAll, Func: func(*Handle, any) {}}

	if err := h.RegisterChangeHandler(handler); err != nil {
		t.Fatalf("first register: %v", err)
	}
	if err := h.RegisterChangeHandler(handler); err != unix.EEXIST {
		t.Fatalf("duplicate register error = %v, want EEXIST", err)
	}
}

func TestUnregisterChangeHandler_UnknownIsNoop(t *testing.T) {
	h := newTestHandle(&fakeTransport{}, &fakeTransport{})
	handler := &ChangeHandler{Class: ChangeClassAll, Func: func(*Handle, any) {}}
	h.UnregisterChangeHandler(handler) // must not panic
}

func TestFree_SafeAfterAllocAlone(t *testing.T) {
	h := Alloc(nil)
	h.Free()
	h.Free()
}

func TestInit_ZeroIfindexRejected(t *testing.T) {
	h := newTestHandle(&fakeTransport{}, &fakeTransport{})
	if err := h.Init(context.Background(), 0); err != unix.ENOENT {
		t.Fatalf("Init(0) error = %v, want ENOENT", err)
	}
}
