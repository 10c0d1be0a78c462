package libteam

import "github.com/cyphermox/libteam/internal/wire"

// Port is an immutable snapshot of one team member interface, as decoded
// from a TEAM_CMD_PORT_LIST_GET reply. A Port is never mutated after
// construction; a refresh replaces the handle's whole port list with freshly
// decoded Port values rather than updating one in place.
type Port struct {
	ifIndex uint32
	changed bool
	linkUp  bool
	speed   uint32
	duplex  uint8
}

func newPort(a wire.PortAttrs) *Port {
	return &Port{
		ifIndex: a.IfIndex,
		changed: a.Changed,
		linkUp:  a.LinkUp,
		speed:   a.Speed,
		duplex:  a.Duplex,
	}
}

// IfIndex returns the port's kernel interface index. This is the port's
// natural key within a handle's port list.
func (p *Port) IfIndex() uint32 { return p.ifIndex }

// Speed returns the port's link speed in Mbps, as last reported by the
// kernel.
func (p *Port) Speed() uint32 { return p.speed }

// Duplex returns the port's duplex setting (0 = half, 1 = full).
func (p *Port) Duplex() uint8 { return p.duplex }

// IsChanged reports the kernel's transient "changed in this notification"
// bit. It is not a local dirty flag and is only meaningful on the
// notification that carried it.
func (p *Port) IsChanged() bool { return p.changed }

// IsLinkUp reports whether the port's underlying link was up at last
// refresh.
func (p *Port) IsLinkUp() bool { return p.linkUp }
