// Package wire encodes and decodes the generic-netlink attribute layout of
// the kernel "team" family. Attribute and command identifiers below are
// transcribed from <linux/if_team.h> as exercised by the reference libteam
// C client; names mirror the kernel's TEAM_ATTR_*/TEAM_CMD_* constants.
package wire

// FamilyName is the generic-netlink family name registered by the kernel
// team driver.
const FamilyName = "team"

// ChangeEventGroup is the multicast group name carrying unsolicited
// port/option refresh notifications.
const ChangeEventGroup = "change_event"

// Command identifiers (TEAM_CMD_*).
const (
	CmdNoop uint8 = iota
	CmdOptionsSet
	CmdOptionsGet
	CmdPortListGet
)

// Top-level attribute identifiers (TEAM_ATTR_*).
const (
	attrUnspec uint16 = iota
	AttrTeamIfindex
	AttrListOption
	AttrListPort
)

// Option item attribute identifiers (TEAM_ATTR_OPTION_*), nested under one
// TEAM_ATTR_ITEM_OPTION entry inside AttrListOption.
const (
	attrOptionUnspec uint16 = iota
	AttrOptionName
	AttrOptionChanged
	AttrOptionType
	AttrOptionData
	attrOptionRemoved // unused by this client; kernel-only bookkeeping attr
	AttrOptionPort
	AttrOptionArrayIndex
)

// AttrItemOption is the nest wrapping a single option entry within
// AttrListOption.
const AttrItemOption uint16 = 1

// Port item attribute identifiers (TEAM_ATTR_PORT_*), nested under one
// TEAM_ATTR_ITEM_PORT entry inside AttrListPort.
const (
	attrPortUnspec uint16 = iota
	AttrPortIfindex
	AttrPortChanged
	AttrPortLinkup
	AttrPortSpeed
	AttrPortDuplex
)

// AttrItemPort is the nest wrapping a single port entry within AttrListPort.
const AttrItemPort uint16 = 1

// Netlink-level option type codes carried in AttrOptionType. These are the
// kernel's NLA_U32/NLA_STRING type tags, not libteam's own OptionType enum;
// decodeOptionItem in decode.go translates between the two.
const (
	nlaU32    uint16 = 3
	nlaString uint16 = 5
)

// OptionType is the library-level type tag for an Option's payload.
type OptionType uint8

const (
	// OptionTypeU32 marks an Option whose payload is a uint32.
	OptionTypeU32 OptionType = iota
	// OptionTypeString marks an Option whose payload is a string.
	OptionTypeString
)

func (t OptionType) String() string {
	switch t {
	case OptionTypeU32:
		return "u32"
	case OptionTypeString:
		return "string"
	default:
		return "unknown"
	}
}
