package wire

import (
	"github.com/mdlayher/genetlink"
	"github.com/mdlayher/netlink"
	"golang.org/x/sys/unix"
)

// EncodeOptionSet builds a TEAM_CMD_OPTIONS_SET request setting a single
// option, per spec.md §4.2: TEAM_ATTR_TEAM_IFINDEX, then a
// TEAM_ATTR_LIST_OPTION nest containing exactly one TEAM_ATTR_ITEM_OPTION
// with NAME, TYPE, and DATA. Only OptionTypeU32 and OptionTypeString are
// encodable; any other tag yields unix.ENOENT.
func EncodeOptionSet(ifindex uint32, name string, typ OptionType, u32Value uint32, strValue string) (genetlink.Message, error) {
	enc := netlink.NewAttributeEncoder()
	enc.Uint32(AttrTeamIfindex, ifindex)
	enc.Nested(AttrListOption, func(nenc *netlink.AttributeEncoder) error {
		nenc.Nested(AttrItemOption, func(ienc *netlink.AttributeEncoder) error {
			ienc.String(AttrOptionName, name)
			switch typ {
			case OptionTypeU32:
				ienc.Uint32(AttrOptionType, uint32(nlaU32))
				ienc.Uint32(AttrOptionData, u32Value)
			case OptionTypeString:
				ienc.Uint32(AttrOptionType, uint32(nlaString))
				ienc.String(AttrOptionData, strValue)
			default:
				return unix.ENOENT
			}
			return nil
		})
		return nil
	})

	b, err := enc.Encode()
	if err != nil {
		return genetlink.Message{}, err
	}

	return genetlink.Message{
		Header: genetlink.Header{
			Command: CmdOptionsSet,
			Version: 1,
		},
		Data: b,
	}, nil
}

// EncodePortListGet builds a TEAM_CMD_PORT_LIST_GET request for ifindex.
func EncodePortListGet(ifindex uint32) (genetlink.Message, error) {
	return encodeIfindexOnly(CmdPortListGet, ifindex)
}

// EncodeOptionsGet builds a TEAM_CMD_OPTIONS_GET request for ifindex.
func EncodeOptionsGet(ifindex uint32) (genetlink.Message, error) {
	return encodeIfindexOnly(CmdOptionsGet, ifindex)
}

func encodeIfindexOnly(cmd uint8, ifindex uint32) (genetlink.Message, error) {
	enc := netlink.NewAttributeEncoder()
	enc.Uint32(AttrTeamIfindex, ifindex)
	b, err := enc.Encode()
	if err != nil {
		return genetlink.Message{}, err
	}
	return genetlink.Message{
		Header: genetlink.Header{Command: cmd, Version: 1},
		Data:   b,
	}, nil
}
