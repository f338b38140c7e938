package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Frame constants
const (
	FrameSync    = 0x7e
	FrameVersion = 0x01

	// MinFrameSize is a frame with an empty op and payload:
	// sync + version + kind + 4-byte seq + op length + 2-byte length + checksum
	MinFrameSize = 11

	MaxOpLen       = 64
	MaxPayloadSize = 0xFFFF
)

// Kind is the frame direction and role.
type Kind byte

const (
	KindRequest  Kind = 0x01 // client to bridge, one chip command
	KindResponse Kind = 0x02 // bridge to client, result of the request with the same seq
	KindEvent    Kind = 0x03 // bridge to client, unsolicited chip event
)

func (k Kind) String() string {
	switch k {
	case KindRequest:
		return "request"
	case KindResponse:
		return "response"
	case KindEvent:
		return "event"
	default:
		return fmt.Sprintf("Kind(0x%02x)", byte(k))
	}
}

// Parse errors
var (
	ErrShortFrame = errors.New("frame too short")
	ErrBadSync    = errors.New("bad sync byte")
	ErrVersion    = errors.New("unsupported frame version")
	ErrChecksum   = errors.New("checksum mismatch")
	ErrLength     = errors.New("length field does not match frame size")
)

// Frame is one bridge message. Each websocket binary message carries exactly
// one frame.
//
//	[0]      0x7e         sync
//	[1]      0x01         version
//	[2]      kind
//	[3-6]    seq          little-endian uint32
//	[7]      n            op length
//	[8..]    op           n bytes
//	[+2]     length       payload length, little-endian uint16
//	[..]     payload      JSON
//	[last]   checksum     XOR of all preceding bytes
type Frame struct {
	Kind    Kind
	Seq     uint32
	Op      string
	Payload []byte
}

// MarshalBinary encodes the frame.
func (f *Frame) MarshalBinary() ([]byte, error) {
	if len(f.Op) > MaxOpLen {
		return nil, fmt.Errorf("op too long: %d bytes (max %d)", len(f.Op), MaxOpLen)
	}
	if len(f.Payload) > MaxPayloadSize {
		return nil, fmt.Errorf("payload too large: %d bytes (max %d)", len(f.Payload), MaxPayloadSize)
	}

	buf := make([]byte, 0, MinFrameSize+len(f.Op)+len(f.Payload))
	buf = append(buf, FrameSync, FrameVersion, byte(f.Kind))
	buf = binary.LittleEndian.AppendUint32(buf, f.Seq)
	buf = append(buf, byte(len(f.Op)))
	buf = append(buf, f.Op...)
	buf = binary.LittleEndian.AppendUint16(buf, uint16(len(f.Payload)))
	buf = append(buf, f.Payload...)
	buf = append(buf, Checksum(buf))
	return buf, nil
}

// ParseFrame decodes and validates one frame.
func ParseFrame(data []byte) (*Frame, error) {
	if len(data) < MinFrameSize {
		return nil, fmt.Errorf("%w: %d bytes (minimum %d)", ErrShortFrame, len(data), MinFrameSize)
	}
	if data[0] != FrameSync {
		return nil, fmt.Errorf("%w: 0x%02x", ErrBadSync, data[0])
	}
	if data[1] != FrameVersion {
		return nil, fmt.Errorf("%w: 0x%02x", ErrVersion, data[1])
	}

	body, sum := data[:len(data)-1], data[len(data)-1]
	if got := Checksum(body); got != sum {
		return nil, fmt.Errorf("%w: computed 0x%02x, frame says 0x%02x", ErrChecksum, got, sum)
	}

	f := &Frame{
		Kind: Kind(data[2]),
		Seq:  binary.LittleEndian.Uint32(data[3:7]),
	}

	opLen := int(data[7])
	off := 8 + opLen
	if off+2 > len(body) {
		return nil, fmt.Errorf("%w: op length %d", ErrLength, opLen)
	}
	f.Op = string(data[8:off])

	payloadLen := int(binary.LittleEndian.Uint16(data[off : off+2]))
	off += 2
	if off+payloadLen != len(body) {
		return nil, fmt.Errorf("%w: payload length %d, %d bytes left", ErrLength, payloadLen, len(body)-off)
	}
	if payloadLen > 0 {
		f.Payload = append([]byte(nil), data[off:off+payloadLen]...)
	}
	return f, nil
}

// Checksum is the XOR of data.
func Checksum(data []byte) byte {
	var sum byte
	for _, b := range data {
		sum ^= b
	}
	return sum
}

// String returns a debug representation of the frame.
func (f *Frame) String() string {
	return fmt.Sprintf("Frame{kind=%s, seq=%d, op=%q, payload=%d bytes}",
		f.Kind, f.Seq, f.Op, len(f.Payload))
}
