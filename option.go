package libteam

import "github.com/cyphermox/libteam/internal/wire"

// OptionType tags an Option's payload shape.
type OptionType = wire.OptionType

// The two option payload shapes the kernel team family supports.
const (
	OptionTypeU32    = wire.OptionTypeU32
	OptionTypeString = wire.OptionTypeString
)

// Option is an immutable snapshot of one team device tunable, as decoded
// from a TEAM_CMD_OPTIONS_GET reply. Names are unique within a handle's
// option list; on refresh a duplicate name is dropped with a log line and
// the first occurrence wins.
type Option struct {
	name    string
	typ     OptionType
	changed bool
	u32     uint32
	str     string
}

func newOption(a wire.OptionAttrs) *Option {
	return &Option{
		name:    a.Name,
		typ:     a.Type,
		changed: a.Changed,
		u32:     a.U32,
		str:     a.Str,
	}
}

// Name returns the option's name, e.g. "mode" or "activeport". This is the
// option's natural key within a handle's option list.
func (o *Option) Name() string { return o.name }

// Type reports whether the option's value is a U32 or a STRING.
func (o *Option) Type() OptionType { return o.typ }

// IsChanged reports the kernel's transient "changed in this notification"
// bit.
func (o *Option) IsChanged() bool { return o.changed }

// ValueU32 returns the option's value as a uint32. Calling it on a STRING
// option returns 0.
func (o *Option) ValueU32() uint32 { return o.u32 }

// ValueString returns the option's value as a string. Calling it on a U32
// option returns "".
func (o *Option) ValueString() string { return o.str }
