// Package protocol implements the wire format for netjam's UDP media path:
// the fixed 12-byte packet header (Packet) and the XOR-group forward error
// correction payload (FecPacket) that rides inside FEC-typed packets.
package protocol

import (
	"encoding/binary"
	"errors"
)

// HeaderSize is the fixed length of a packet header, before the payload.
const HeaderSize = 12

// ProtocolVersion is the only version this codec accepts.
const ProtocolVersion = 1

// Type identifies the kind of payload carried by a packet.
type Type uint8

const (
	TypeAudio     Type = 0x01
	TypeFEC       Type = 0x02
	TypeControl   Type = 0x03
	TypeKeepAlive Type = 0x04
)

// Flag bits. Undefined bits are ignored on decode for forward compatibility.
const (
	FlagEncrypted uint16 = 1 << 0
	FlagHasFEC    uint16 = 1 << 1
)

// ErrInvalidPacket is returned by Decode when the bytes do not form a valid packet.
var ErrInvalidPacket = errors.New("protocol: invalid packet")

// Packet is a parsed media-path datagram.
type Packet struct {
	Type      Type
	Sequence  uint32
	Timestamp uint32
	Flags     uint16
	Payload   []byte
}

// Encrypted reports whether FlagEncrypted is set.
func (p *Packet) Encrypted() bool { return p.Flags&FlagEncrypted != 0 }

// HasFEC reports whether FlagHasFEC is set.
func (p *Packet) HasFEC() bool { return p.Flags&FlagHasFEC != 0 }

func validType(t Type) bool {
	switch t {
	case TypeAudio, TypeFEC, TypeControl, TypeKeepAlive:
		return true
	default:
		return false
	}
}

// Encode writes p as exactly HeaderSize+len(p.Payload) bytes.
func Encode(p *Packet) []byte {
	buf := make([]byte, HeaderSize+len(p.Payload))
	buf[0] = ProtocolVersion
	buf[1] = byte(p.Type)
	binary.BigEndian.PutUint32(buf[2:6], p.Sequence)
	binary.BigEndian.PutUint32(buf[6:10], p.Timestamp)
	binary.BigEndian.PutUint16(buf[10:12], p.Flags)
	copy(buf[HeaderSize:], p.Payload)
	return buf
}

// Decode parses b into a Packet. It rejects undersized buffers, a version
// other than ProtocolVersion, and any type outside the defined set.
// The returned Packet's Payload aliases b; copy it if b will be reused.
func Decode(b []byte) (*Packet, error) {
	if len(b) < HeaderSize {
		return nil, ErrInvalidPacket
	}
	if b[0] != ProtocolVersion {
		return nil, ErrInvalidPacket
	}
	t := Type(b[1])
	if !validType(t) {
		return nil, ErrInvalidPacket
	}
	p := &Packet{
		Type:      t,
		Sequence:  binary.BigEndian.Uint32(b[2:6]),
		Timestamp: binary.BigEndian.Uint32(b[6:10]),
		Flags:     binary.BigEndian.Uint16(b[10:12]),
		Payload:   b[HeaderSize:],
	}
	return p, nil
}
