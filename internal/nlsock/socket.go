// Package nlsock implements the transport adapter described in spec.md
// §4.1: a thin wrapper over a generic netlink socket that resolves the
// "team" family, joins/leaves its change-event multicast group, exposes the
// underlying file descriptor for EventFd, and runs the request/reply pump
// that spec.md's in-flight-counter model describes.
//
// It deliberately talks to *netlink.Conn rather than the higher-level
// genetlink.Conn: the handle needs the raw file descriptor for check_events,
// and needs to walk the NLMSG_DONE/ack/error sequence itself rather than
// have it hidden behind a single Execute call.
package nlsock

import (
	"github.com/mdlayher/genetlink"
	"github.com/mdlayher/netlink"
	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// genlCtrlFamilyID is GENL_ID_CTRL: the well-known family id of the generic
// netlink controller, used to resolve every other family by name.
const genlCtrlFamilyID = 0x10

const (
	ctrlCmdGetFamily = 3

	ctrlAttrFamilyID    = 1
	ctrlAttrFamilyName  = 2
	ctrlAttrMcastGroups = 7

	ctrlAttrMcastGrpName = 1
	ctrlAttrMcastGrpID   = 2
)

// Verdict tells Exchange whether the pump should keep reading after
// handling one valid message.
type Verdict int

const (
	// VerdictContinue tells the pump to keep reading; more parts of a
	// multipart reply, or more queued unrelated events, may follow.
	VerdictContinue Verdict = iota
	// VerdictStop tells the pump the caller got what it needed.
	VerdictStop
)

// Socket is a generic netlink socket bound to the "team" family.
type Socket struct {
	conn     *netlink.Conn
	familyID uint16
}

// Dial opens a generic netlink socket and resolves familyName (normally
// "team") to its numeric family id. It returns unix.ENOENT if the kernel
// has no such family registered — i.e. the team module is not loaded.
func Dial(familyName string) (*Socket, error) {
	conn, err := netlink.Dial(unix.NETLINK_GENERIC, nil)
	if err != nil {
		return nil, errors.Wrap(err, "nlsock: dial netlink_generic")
	}

	s := &Socket{conn: conn}
	id, err := s.resolveFamily(familyName)
	if err != nil {
		conn.Close()
		return nil, err
	}
	s.familyID = id
	return s, nil
}

// FamilyID returns the resolved numeric family id.
func (s *Socket) FamilyID() uint16 {
	return s.familyID
}

// Close releases the underlying socket.
func (s *Socket) Close() error {
	return s.conn.Close()
}

// Fd exposes the underlying socket descriptor for use with select/poll, per
// spec.md's EventFd operation. The returned value is only valid for the
// lifetime of the Socket; callers must not close it themselves.
func (s *Socket) Fd() (int, error) {
	raw, err := s.conn.SyscallConn()
	if err != nil {
		return -1, errors.Wrap(err, "nlsock: syscall conn")
	}

	var fd int
	if err := raw.Control(func(rawFd uintptr) {
		fd = int(rawFd)
	}); err != nil {
		return -1, errors.Wrap(err, "nlsock: control")
	}
	return fd, nil
}

// JoinGroup joins the named multicast group of the bound family, e.g.
// "change_event" for unsolicited port/option change notifications.
func (s *Socket) JoinGroup(groupName string) error {
	id, err := s.resolveGroup(groupName)
	if err != nil {
		return err
	}
	return errors.Wrap(s.conn.JoinGroup(id), "nlsock: join group")
}

// LeaveGroup leaves the named multicast group.
func (s *Socket) LeaveGroup(groupName string) error {
	id, err := s.resolveGroup(groupName)
	if err != nil {
		return err
	}
	return errors.Wrap(s.conn.LeaveGroup(id), "nlsock: leave group")
}

// Exchange sends req to the bound family and pumps replies until onValid
// returns VerdictStop, a multipart sequence's NLMSG_DONE is reached, or the
// kernel returns a netlink error (translated to its unix.Errno).
//
// onValid is invoked once per genetlink reply belonging to this exchange;
// messages whose sequence number differs from the request's (unrelated
// traffic interleaved on the same socket) are skipped.
func (s *Socket) Exchange(req genetlink.Message, flags netlink.HeaderFlags, onValid func(genetlink.Message) Verdict) error {
	greq, err := req.MarshalBinary()
	if err != nil {
		return errors.Wrap(err, "nlsock: marshal request")
	}

	nreq := netlink.Message{
		Header: netlink.Header{
			Type:  netlink.HeaderType(s.familyID),
			Flags: netlink.HeaderFlagsRequest | netlink.HeaderFlagsAcknowledge | flags,
		},
		Data: greq,
	}

	sent, err := s.conn.Send(nreq)
	if err != nil {
		return errors.Wrap(err, "nlsock: send")
	}

	for {
		msgs, err := s.conn.Receive()
		if err != nil {
			return errors.Wrap(err, "nlsock: receive")
		}

		for _, m := range msgs {
			if m.Header.Sequence != sent.Header.Sequence {
				// Not a reply to this request.
				continue
			}
			switch m.Header.Type {
			case netlink.HeaderTypeError:
				errno := unpackError(m.Data)
				if errno == 0 {
					// Bare ack for a request with no payload reply.
					return nil
				}
				return errno
			case netlink.HeaderTypeDone:
				return nil
			}

			var gm genetlink.Message
			if err := (&gm).UnmarshalBinary(m.Data); err != nil {
				return errors.Wrap(err, "nlsock: unmarshal reply")
			}

			if onValid(gm) == VerdictStop {
				return nil
			}
		}
	}
}

// DrainOne performs one receive on the socket (normally yielding multicast
// change-event notifications) without sending anything, and passes every
// generic netlink message in what it received to onMessage. Callers are expected to have already confirmed readability via
// select/poll on Fd.
func (s *Socket) DrainOne(onMessage func(genetlink.Message)) error {
	msgs, err := s.conn.Receive()
	if err != nil {
		return errors.Wrap(err, "nlsock: receive")
	}
	for _, m := range msgs {
		if m.Header.Type == netlink.HeaderTypeError || m.Header.Type == netlink.HeaderTypeDone {
			continue
		}
		var gm genetlink.Message
		if err := (&gm).UnmarshalBinary(m.Data); err != nil {
			return errors.Wrap(err, "nlsock: unmarshal notification")
		}
		onMessage(gm)
	}
	return nil
}

func unpackError(data []byte) unix.Errno {
	if len(data) < 4 {
		return 0
	}
	errno := int32(nativeEndianUint32(data))
	if errno >= 0 {
		return 0
	}
	return unix.Errno(-errno)
}

func nativeEndianUint32(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}

func (s *Socket) resolveFamily(name string) (uint16, error) {
	var id uint16
	var found bool

	req := genetlink.Message{
		Header: genetlink.Header{Command: ctrlCmdGetFamily, Version: 1},
	}
	enc := netlink.NewAttributeEncoder()
	enc.String(ctrlAttrFamilyName, name)
	b, err := enc.Encode()
	if err != nil {
		return 0, errors.Wrap(err, "nlsock: encode family lookup")
	}
	req.Data = b

	greq, err := req.MarshalBinary()
	if err != nil {
		return 0, errors.Wrap(err, "nlsock: marshal family lookup")
	}

	nreq := netlink.Message{
		Header: netlink.Header{
			Type:  netlink.HeaderType(genlCtrlFamilyID),
			Flags: netlink.HeaderFlagsRequest | netlink.HeaderFlagsAcknowledge,
		},
		Data: greq,
	}

	if _, err := s.conn.Send(nreq); err != nil {
		return 0, errors.Wrap(err, "nlsock: send family lookup")
	}

	for !found {
		msgs, err := s.conn.Receive()
		if err != nil {
			return 0, errors.Wrap(err, "nlsock: receive family lookup")
		}
		for _, m := range msgs {
			if m.Header.Type == netlink.HeaderTypeError {
				if errno := unpackError(m.Data); errno != 0 {
					return 0, unix.ENOENT
				}
				continue
			}
			if m.Header.Type == netlink.HeaderTypeDone {
				break
			}

			var gm genetlink.Message
			if err := (&gm).UnmarshalBinary(m.Data); err != nil {
				return 0, errors.Wrap(err, "nlsock: unmarshal family lookup reply")
			}
			ad, err := netlink.NewAttributeDecoder(gm.Data)
			if err != nil {
				return 0, errors.Wrap(err, "nlsock: decode family lookup reply")
			}
			for ad.Next() {
				if ad.Type() == ctrlAttrFamilyID {
					id = ad.Uint16()
					found = true
				}
			}
			if err := ad.Err(); err != nil {
				return 0, errors.Wrap(err, "nlsock: decode family lookup attrs")
			}
		}
	}

	if !found {
		return 0, unix.ENOENT
	}
	return id, nil
}

func (s *Socket) resolveGroup(groupName string) (uint32, error) {
	req := genetlink.Message{
		Header: genetlink.Header{Command: ctrlCmdGetFamily, Version: 1},
	}
	enc := netlink.NewAttributeEncoder()
	enc.Uint16(ctrlAttrFamilyID, s.familyID)
	b, err := enc.Encode()
	if err != nil {
		return 0, errors.Wrap(err, "nlsock: encode group lookup")
	}
	req.Data = b

	greq, err := req.MarshalBinary()
	if err != nil {
		return 0, errors.Wrap(err, "nlsock: marshal group lookup")
	}

	nreq := netlink.Message{
		Header: netlink.Header{
			Type:  netlink.HeaderType(genlCtrlFamilyID),
			Flags: netlink.HeaderFlagsRequest | netlink.HeaderFlagsAcknowledge,
		},
		Data: greq,
	}

	if _, err := s.conn.Send(nreq); err != nil {
		return 0, errors.Wrap(err, "nlsock: send group lookup")
	}

	var id uint32
	var found bool
	for !found {
		msgs, err := s.conn.Receive()
		if err != nil {
			return 0, errors.Wrap(err, "nlsock: receive group lookup")
		}
		for _, m := range msgs {
			if m.Header.Type == netlink.HeaderTypeError {
				if errno := unpackError(m.Data); errno != 0 {
					return 0, unix.ENOENT
				}
				continue
			}
			if m.Header.Type == netlink.HeaderTypeDone {
				break
			}
			var gm genetlink.Message
			if err := (&gm).UnmarshalBinary(m.Data); err != nil {
				return 0, errors.Wrap(err, "nlsock: unmarshal group lookup reply")
			}
			ad, err := netlink.NewAttributeDecoder(gm.Data)
			if err != nil {
				return 0, errors.Wrap(err, "nlsock: decode group lookup reply")
			}
			for ad.Next() {
				if ad.Type() == ctrlAttrMcastGroups {
					ad.Nested(func(gad *netlink.AttributeDecoder) error {
						for gad.Next() {
							gad.Nested(func(iad *netlink.AttributeDecoder) error {
								var name string
								var gid uint32
								for iad.Next() {
									switch iad.Type() {
									case ctrlAttrMcastGrpName:
										name = iad.String()
									case ctrlAttrMcastGrpID:
										gid = iad.Uint32()
									}
								}
								if name == groupName {
									id = gid
									found = true
								}
								return iad.Err()
							})
						}
						return gad.Err()
					})
				}
			}
			if err := ad.Err(); err != nil {
				return 0, errors.Wrap(err, "nlsock: decode group lookup attrs")
			}
		}
	}

	if !found {
		return 0, unix.ENOENT
	}
	return id, nil
}
