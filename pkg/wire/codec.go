// Package wire implements the ABX request and packet frame formats.
//
// Requests are two bytes: a call type followed by a payload byte. Packets are
// fixed 17-byte frames:
//
//	symbol(4, ASCII) side(1) quantity(4, int32 BE) price(4, int32 BE) sequence(4, int32 BE)
package wire

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/shubham-shewale/abx-client/pkg/models"
)

const (
	FrameSize   = 17
	RequestSize = 2
	SymbolSize  = 4

	CallStreamAll byte = 1
	CallResend    byte = 2

	// MaxResendSequence is the largest sequence a resend request can address.
	MaxResendSequence = 255
)

var (
	ErrConnection = errors.New("connection error")
	ErrShortRead  = errors.New("short read")
	ErrDecode     = errors.New("decode error")
)

// EncodeStreamAllRequest builds the request that replays every packet.
func EncodeStreamAllRequest() [RequestSize]byte {
	return [RequestSize]byte{CallStreamAll, 0}
}

// EncodeResendRequest builds a resend request for seq. The protocol carries
// the sequence in a single byte, so seq is truncated to its low 8 bits and
// values above MaxResendSequence alias onto lower ones.
func EncodeResendRequest(seq int32) [RequestSize]byte {
	return [RequestSize]byte{CallResend, byte(seq)}
}

// ResendAddressable reports whether seq survives the resend truncation.
func ResendAddressable(seq int32) bool {
	return seq >= 0 && seq <= MaxResendSequence
}

// DecodePacket parses one frame. The frame must be exactly FrameSize bytes.
func DecodePacket(frame []byte) (models.Packet, error) {
	if len(frame) != FrameSize {
		return models.Packet{}, fmt.Errorf("%w: frame is %d bytes, want %d", ErrDecode, len(frame), FrameSize)
	}
	for i := 0; i < SymbolSize; i++ {
		if frame[i] > 0x7f {
			return models.Packet{}, fmt.Errorf("%w: non-ASCII symbol byte 0x%02x at offset %d", ErrDecode, frame[i], i)
		}
	}

	return models.Packet{
		Symbol:   string(frame[0:4]),
		Side:     models.Side(frame[4]),
		Quantity: int32(binary.BigEndian.Uint32(frame[5:9])),
		Price:    int32(binary.BigEndian.Uint32(frame[9:13])),
		Sequence: int32(binary.BigEndian.Uint32(frame[13:17])),
	}, nil
}

// EncodePacket is the inverse of DecodePacket.
func EncodePacket(p models.Packet) ([FrameSize]byte, error) {
	var frame [FrameSize]byte
	if len(p.Symbol) != SymbolSize {
		return frame, fmt.Errorf("symbol %q must be %d bytes", p.Symbol, SymbolSize)
	}
	for i := 0; i < SymbolSize; i++ {
		if p.Symbol[i] > 0x7f {
			return frame, fmt.Errorf("symbol %q is not ASCII", p.Symbol)
		}
	}

	copy(frame[0:4], p.Symbol)
	frame[4] = byte(p.Side)
	binary.BigEndian.PutUint32(frame[5:9], uint32(p.Quantity))
	binary.BigEndian.PutUint32(frame[9:13], uint32(p.Price))
	binary.BigEndian.PutUint32(frame[13:17], uint32(p.Sequence))
	return frame, nil
}
