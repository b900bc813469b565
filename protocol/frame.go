package protocol

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
)

// Opcodes for WebSocket frames
const (
	OpcodeContinuation byte = 0x0
	OpcodeText         byte = 0x1
	OpcodeBinary       byte = 0x2
	OpcodeClose        byte = 0x8
	OpcodePing         byte = 0x9
	OpcodePong         byte = 0xA
)

const (
	finBit  byte = 0x80
	maskBit byte = 0x80

	// MaxShortPayload is the largest payload that fits the 7-bit length field
	MaxShortPayload = 125

	extended16 = 126
	extended64 = 127
)

// Frame is a decoded WebSocket frame
type Frame struct {
	Fin     bool
	Opcode  byte
	Masked  bool
	MaskKey [4]byte
	Payload []byte
}

// OpcodeName converts an opcode to its string representation
func OpcodeName(opcode byte) string {
	switch opcode {
	case OpcodeContinuation:
		return "continuation"
	case OpcodeText:
		return "text"
	case OpcodeBinary:
		return "binary"
	case OpcodeClose:
		return "close"
	case OpcodePing:
		return "ping"
	case OpcodePong:
		return "pong"
	default:
		return "unknown"
	}
}

// EncodeTextFrame creates a masked final text frame:
// [0x81][0x80|len][mask(4)][payload ^ mask]
// Only payloads that fit the 7-bit length are supported.
func EncodeTextFrame(payload []byte) ([]byte, error) {
	var mask [4]byte
	if _, err := rand.Read(mask[:]); err != nil {
		return nil, newError(KindTransport, "mask", err)
	}
	return encodeTextFrameWithMask(payload, mask)
}

func encodeTextFrameWithMask(payload []byte, mask [4]byte) ([]byte, error) {
	if len(payload) > MaxShortPayload {
		return nil, ErrPayloadTooLarge
	}

	frame := make([]byte, 2+4+len(payload))
	frame[0] = finBit | OpcodeText
	frame[1] = maskBit | byte(len(payload))
	copy(frame[2:6], mask[:])

	for i, b := range payload {
		frame[6+i] = b ^ mask[i%4]
	}

	return frame, nil
}

// DecodeFrame parses one server frame from the head of raw and returns it
// with the number of bytes consumed. Server frames must not be masked.
// Returns ErrIncomplete if raw does not yet hold the whole frame.
func DecodeFrame(raw []byte) (*Frame, int, error) {
	return decodeFrame(raw, false)
}

// DecodeAnyFrame is DecodeFrame without the unmasked-server-frame check.
// Masked payloads are unmasked.
func DecodeAnyFrame(raw []byte) (*Frame, int, error) {
	return decodeFrame(raw, true)
}

func decodeFrame(raw []byte, allowMasked bool) (*Frame, int, error) {
	if len(raw) < 2 {
		return nil, 0, ErrIncomplete
	}

	f := &Frame{
		Fin:    raw[0]&finBit != 0,
		Opcode: raw[0] & 0x0F,
		Masked: raw[1]&maskBit != 0,
	}
	if f.Masked && !allowMasked {
		return nil, 0, ErrMaskedFrame
	}

	length := int(raw[1] &^ maskBit)
	offset := 2

	switch length {
	case extended16:
		if len(raw) < offset+2 {
			return nil, 0, ErrIncomplete
		}
		length = int(binary.BigEndian.Uint16(raw[offset:]))
		offset += 2
	case extended64:
		return nil, 0, ErrUnsupportedLength
	}

	if f.Masked {
		if len(raw) < offset+4 {
			return nil, 0, ErrIncomplete
		}
		copy(f.MaskKey[:], raw[offset:offset+4])
		offset += 4
	}

	total := offset + length
	if len(raw) < total {
		return nil, 0, ErrIncomplete
	}

	f.Payload = make([]byte, length)
	copy(f.Payload, raw[offset:total])
	if f.Masked {
		for i := range f.Payload {
			f.Payload[i] ^= f.MaskKey[i%4]
		}
	}

	return f, total, nil
}

func (f *Frame) String() string {
	return fmt.Sprintf("%s fin=%t masked=%t len=%d", OpcodeName(f.Opcode), f.Fin, f.Masked, len(f.Payload))
}
