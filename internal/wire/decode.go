package wire

import (
	"log/slog"

	"github.com/mdlayher/genetlink"
	"github.com/mdlayher/netlink"
	"github.com/mdlayher/netlink/nlenc"
	"github.com/pkg/errors"
)

// ErrWrongIfindex is returned by the decoders when the message's
// TEAM_ATTR_TEAM_IFINDEX does not match the ifindex the caller is
// interested in. Callers treat this as "skip silently", per the
// cross-talk filter described for the port/option list decoders.
var ErrWrongIfindex = errors.New("wire: message addressed to a different team ifindex")

// DecodePortList decodes a TEAM_CMD_PORT_LIST_GET reply (request or
// unsolicited) addressed to ifindex. It returns ErrWrongIfindex if the
// message's team ifindex attribute does not match, and logs+skips any
// individual port entry missing its required TEAM_ATTR_PORT_IFINDEX.
func DecodePortList(msg genetlink.Message, ifindex uint32, logger *slog.Logger) ([]PortAttrs, error) {
	ad, err := netlink.NewAttributeDecoder(msg.Data)
	if err != nil {
		return nil, errors.Wrap(err, "wire: new attribute decoder")
	}

	var (
		haveIfindex bool
		ports       []PortAttrs
	)

	for ad.Next() {
		switch ad.Type() {
		case AttrTeamIfindex:
			haveIfindex = true
			if ad.Uint32() != ifindex {
				return nil, ErrWrongIfindex
			}
		case AttrListPort:
			ad.Nested(func(lad *netlink.AttributeDecoder) error {
				for lad.Next() {
					if lad.Type() != AttrItemPort {
						continue
					}
					p, ok := decodePortItem(lad, logger)
					if ok {
						ports = append(ports, p)
					}
				}
				return lad.Err()
			})
		}
	}
	if err := ad.Err(); err != nil {
		return nil, errors.Wrap(err, "wire: decode port list")
	}
	if !haveIfindex {
		return nil, ErrWrongIfindex
	}
	return ports, nil
}

// decodePortItem decodes one TEAM_ATTR_ITEM_PORT nest. It returns ok=false
// and logs a warning if the required TEAM_ATTR_PORT_IFINDEX is missing.
func decodePortItem(lad *netlink.AttributeDecoder, logger *slog.Logger) (p PortAttrs, ok bool) {
	lad.Nested(func(iad *netlink.AttributeDecoder) error {
		for iad.Next() {
			switch iad.Type() {
			case AttrPortIfindex:
				p.IfIndex = iad.Uint32()
				ok = true
			case AttrPortChanged:
				p.Changed = true
			case AttrPortLinkup:
				p.LinkUp = true
			case AttrPortSpeed:
				p.Speed = iad.Uint32()
			case AttrPortDuplex:
				p.Duplex = iad.Uint8()
			}
		}
		return iad.Err()
	})
	if !ok && logger != nil {
		logger.Warn("wire: port entry missing required ifindex attribute, skipping")
	}
	return p, ok
}

// DecodeOptionList decodes a TEAM_CMD_OPTIONS_GET reply (request or
// unsolicited) addressed to ifindex. Entries missing name, type, or data are
// skipped with a log line; entries carrying an unrecognized netlink type
// code are skipped the same way. The caller is responsible for the
// duplicate-name dedup described in spec.md invariant 3.3 (first wins).
func DecodeOptionList(msg genetlink.Message, ifindex uint32, logger *slog.Logger) ([]OptionAttrs, error) {
	ad, err := netlink.NewAttributeDecoder(msg.Data)
	if err != nil {
		return nil, errors.Wrap(err, "wire: new attribute decoder")
	}

	var (
		haveIfindex bool
		opts        []OptionAttrs
	)

	for ad.Next() {
		switch ad.Type() {
		case AttrTeamIfindex:
			haveIfindex = true
			if ad.Uint32() != ifindex {
				return nil, ErrWrongIfindex
			}
		case AttrListOption:
			ad.Nested(func(lad *netlink.AttributeDecoder) error {
				for lad.Next() {
					if lad.Type() != AttrItemOption {
						continue
					}
					o, ok := decodeOptionItem(lad, logger)
					if ok {
						opts = append(opts, o)
					}
				}
				return lad.Err()
			})
		}
	}
	if err := ad.Err(); err != nil {
		return nil, errors.Wrap(err, "wire: decode option list")
	}
	if !haveIfindex {
		return nil, ErrWrongIfindex
	}
	return opts, nil
}

// decodeOptionItem decodes one TEAM_ATTR_ITEM_OPTION nest.
func decodeOptionItem(lad *netlink.AttributeDecoder, logger *slog.Logger) (o OptionAttrs, ok bool) {
	var (
		haveName, haveType, haveData bool
		nlType                       uint16
		rawData                      []byte
	)

	lad.Nested(func(iad *netlink.AttributeDecoder) error {
		for iad.Next() {
			switch iad.Type() {
			case AttrOptionName:
				o.Name = iad.String()
				haveName = true
			case AttrOptionChanged:
				o.Changed = true
			case AttrOptionType:
				nlType = uint16(iad.Uint32())
				haveType = true
			case AttrOptionData:
				rawData = iad.Bytes()
				haveData = true
			}
		}
		return iad.Err()
	})

	if !haveName || !haveType || !haveData {
		if logger != nil {
			logger.Warn("wire: option entry missing a required attribute, skipping",
				slog.Bool("have_name", haveName),
				slog.Bool("have_type", haveType),
				slog.Bool("have_data", haveData),
			)
		}
		return o, false
	}

	switch nlType {
	case nlaU32:
		o.Type = OptionTypeU32
		if len(rawData) >= 4 {
			o.U32 = nlenc.Uint32(rawData)
		}
	case nlaString:
		o.Type = OptionTypeString
		o.Str = stripTrailingNul(rawData)
	default:
		if logger != nil {
			logger.Warn("wire: option entry has unknown netlink type, skipping",
				slog.String("name", o.Name), slog.Uint64("nl_type", uint64(nlType)))
		}
		return o, false
	}

	return o, true
}

func stripTrailingNul(b []byte) string {
	if n := len(b); n > 0 && b[n-1] == 0 {
		b = b[:n-1]
	}
	return string(b)
}
