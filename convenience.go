package libteam

import (
	"github.com/mdlayher/genetlink"
	pkgerrors "github.com/pkg/errors"
	"golang.org/x/sys/unix"

	"github.com/cyphermox/libteam/internal/nlsock"
	"github.com/cyphermox/libteam/internal/wire"
)

// modeOptionName and activePortOptionName are the two named conveniences
// spec.md §4.5 calls out as pure aliases over the generic option interface.
const (
	modeOptionName       = "mode"
	activePortOptionName = "activeport"
)

// GetOptionByName does a linear scan of the option list for name. It
// returns nil if no such option exists.
func (h *Handle) GetOptionByName(name string) *Option {
	for opt := h.GetNextOption(nil); opt != nil; opt = h.GetNextOption(opt) {
		if opt.Name() == name {
			return opt
		}
	}
	return nil
}

// GetModeName returns the current value of the "mode" STRING option. It
// returns unix.ENOENT if the option is not present or is not a STRING.
func (h *Handle) GetModeName() (string, error) {
	opt := h.GetOptionByName(modeOptionName)
	if opt == nil || opt.Type() != OptionTypeString {
		return "", unix.ENOENT
	}
	return opt.ValueString(), nil
}

// SetModeName sets the "mode" option. The cache is not updated until the
// kernel echoes the change via a change_event notification.
func (h *Handle) SetModeName(mode string) error {
	return h.SetOptionValueByNameString(modeOptionName, mode)
}

// GetActivePort returns the current value of the "activeport" U32 option,
// the ifindex of the port presently selected as active. It returns
// unix.ENOENT if the option is not present or is not a U32.
func (h *Handle) GetActivePort() (uint32, error) {
	opt := h.GetOptionByName(activePortOptionName)
	if opt == nil || opt.Type() != OptionTypeU32 {
		return 0, unix.ENOENT
	}
	return opt.ValueU32(), nil
}

// SetActivePort sets the "activeport" option to ifindex. The cache is not
// updated until the kernel echoes the change via a change_event
// notification.
func (h *Handle) SetActivePort(ifindex uint32) error {
	return h.SetOptionValueByNameU32(activePortOptionName, ifindex)
}

// SetOptionValueByNameU32 encodes and sends a TEAM_CMD_OPTIONS_SET request
// setting a U32 option. It does not update the local cache.
func (h *Handle) SetOptionValueByNameU32(name string, value uint32) error {
	return h.setOption(name, wire.OptionTypeU32, value, "")
}

// SetOptionValueByNameString encodes and sends a TEAM_CMD_OPTIONS_SET
// request setting a STRING option. It does not update the local cache.
func (h *Handle) SetOptionValueByNameString(name, value string) error {
	return h.setOption(name, wire.OptionTypeString, 0, value)
}

func (h *Handle) setOption(name string, typ wire.OptionType, u32Value uint32, strValue string) error {
	if h.cmd == nil {
		return unix.EINVAL
	}

	req, err := wire.EncodeOptionSet(h.ifindex, name, typ, u32Value, strValue)
	if err != nil {
		return pkgerrors.Wrap(err, "team: encode option set")
	}

	return h.cmd.Exchange(req, 0, func(genetlink.Message) nlsock.Verdict {
		return nlsock.VerdictContinue
	})
}

// IfName2IfIndex resolves a network interface name to its kernel ifindex,
// via a route-netlink link lookup that only connects on first use.
func (h *Handle) IfName2IfIndex(name string) (uint32, error) {
	return h.lnk.ToIndex(name)
}

// IfIndex2IfName resolves a kernel ifindex to its current network interface
// name, via a route-netlink link lookup that only connects on first use.
func (h *Handle) IfIndex2IfName(ifindex uint32) (string, error) {
	return h.lnk.ToName(ifindex)
}
