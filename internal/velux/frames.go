package velux

import (
	"fmt"
)

// The KLF200 API wraps every message in a transport frame that is then
// SLIP-encoded (RFC 1055) on the wire:
//
//	raw  = ProtocolID(1) | Length(1) | Command(2, big-endian) | Data(n) | Checksum(1)
//	wire = END | slip-escape(raw) | END
//
// Length counts Command+Data plus the checksum byte. The checksum is the
// XOR of all preceding bytes (ProtocolID through Data).

// SLIP special characters (RFC 1055).
const (
	slipEnd    = 0xC0
	slipEsc    = 0xDB
	slipEscEnd = 0xDC
	slipEscEsc = 0xDD
)

// protocolID is the only protocol identifier the KLF200 uses.
const protocolID = 0x00

// maxFrameSize bounds a decoded transport frame. The largest KLF200
// message (GW_GET_ALL_NODES_INFORMATION_NTF) is 124 data bytes.
const maxFrameSize = 255

// Frame is a decoded KLF200 transport frame.
type Frame struct {
	// Command is the GW_* command code.
	Command uint16

	// Data is the command payload.
	Data []byte
}

// EncodeFrame builds the raw (pre-SLIP) byte form of a frame.
func EncodeFrame(f Frame) []byte {
	length := len(f.Data) + 3 // command(2) + checksum(1)
	raw := make([]byte, 0, length+2)
	raw = append(raw, protocolID, byte(length))
	raw = append(raw, byte(f.Command>>8), byte(f.Command))
	raw = append(raw, f.Data...)
	raw = append(raw, checksum(raw))
	return raw
}

// DecodeFrame parses a raw (un-SLIPped) transport frame.
func DecodeFrame(raw []byte) (Frame, error) {
	const minFrame = 5 // protocol + length + command(2) + checksum
	if len(raw) < minFrame {
		return Frame{}, fmt.Errorf("%w: frame too short (%d bytes)", ErrBadFrame, len(raw))
	}
	if raw[0] != protocolID {
		return Frame{}, fmt.Errorf("%w: unexpected protocol id 0x%02X", ErrBadFrame, raw[0])
	}

	length := int(raw[1])
	if len(raw) != length+2 {
		return Frame{}, fmt.Errorf("%w: length field %d does not match frame size %d",
			ErrBadFrame, length, len(raw))
	}

	body := raw[:len(raw)-1]
	if checksum(body) != raw[len(raw)-1] {
		return Frame{}, fmt.Errorf("%w: checksum mismatch", ErrBadFrame)
	}

	command := uint16(raw[2])<<8 | uint16(raw[3])
	data := make([]byte, len(raw)-minFrame)
	copy(data, raw[4:len(raw)-1])

	return Frame{Command: command, Data: data}, nil
}

// checksum computes the XOR checksum over the given bytes.
func checksum(data []byte) byte {
	var crc byte
	for _, b := range data {
		crc ^= b
	}
	return crc
}

// slipEncode wraps raw bytes into a SLIP frame, escaping END and ESC.
func slipEncode(raw []byte) []byte {
	out := make([]byte, 0, len(raw)+2)
	out = append(out, slipEnd)
	for _, b := range raw {
		switch b {
		case slipEnd:
			out = append(out, slipEsc, slipEscEnd)
		case slipEsc:
			out = append(out, slipEsc, slipEscEsc)
		default:
			out = append(out, b)
		}
	}
	out = append(out, slipEnd)
	return out
}

// slipDecode unescapes the content between two SLIP END delimiters.
// The input must not include the delimiters themselves.
func slipDecode(encoded []byte) ([]byte, error) {
	out := make([]byte, 0, len(encoded))
	for i := 0; i < len(encoded); i++ {
		b := encoded[i]
		if b != slipEsc {
			out = append(out, b)
			continue
		}

		i++
		if i >= len(encoded) {
			return nil, fmt.Errorf("%w: dangling SLIP escape", ErrBadFrame)
		}
		switch encoded[i] {
		case slipEscEnd:
			out = append(out, slipEnd)
		case slipEscEsc:
			out = append(out, slipEsc)
		default:
			return nil, fmt.Errorf("%w: invalid SLIP escape 0x%02X", ErrBadFrame, encoded[i])
		}
	}
	return out, nil
}
