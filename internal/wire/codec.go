package wire

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/cansys/udp-can-bridge/internal/can"
	"github.com/cansys/udp-can-bridge/internal/metrics"
)

// FrameSize is the fixed on-the-wire size of one encoded CAN frame.
const FrameSize = 13

// Wire layout, big-endian identifier:
//
//	[0]     info: bit7 extended-ID, bit6 remote-request, bits3-0 DLC (0..8)
//	[1:5]   CAN identifier (29 bits used when extended, else 11)
//	[5:13]  payload, zero-padded past DLC
const (
	infoExtended = 0x80
	infoRemote   = 0x40
	infoLenMask  = 0x0F
)

// ErrInvalidLength is returned when the info byte encodes a DLC outside 0..8.
var ErrInvalidLength = errors.New("wire: invalid length")

// ErrTruncated is returned when fewer than FrameSize bytes are available.
var ErrTruncated = errors.New("wire: truncated frame")

// Decode parses one 13-byte wire unit into a CAN frame.
// Only the first DLC payload bytes are copied; trailing padding is ignored.
func Decode(b []byte) (can.Frame, error) {
	var f can.Frame
	if len(b) < FrameSize {
		metrics.IncMalformed()
		return f, fmt.Errorf("wire decode: %w (%d bytes)", ErrTruncated, len(b))
	}
	info := b[0]
	dlc := info & infoLenMask
	if dlc > 8 {
		metrics.IncMalformed()
		return f, fmt.Errorf("wire decode: %w (%d)", ErrInvalidLength, dlc)
	}
	raw := binary.BigEndian.Uint32(b[1:5])
	if info&infoExtended != 0 {
		f.CANID = (raw & can.CAN_EFF_MASK) | can.CAN_EFF_FLAG
	} else {
		f.CANID = raw & can.CAN_SFF_MASK
	}
	if info&infoRemote != 0 {
		f.CANID |= can.CAN_RTR_FLAG
	}
	f.Len = dlc
	copy(f.Data[:dlc], b[5:5+dlc])
	return f, nil
}

// Encode writes the 13-byte wire form of f into b.
// A DLC above 8 is clamped; encoding never fails for a valid buffer.
func Encode(f can.Frame, b []byte) error {
	if len(b) < FrameSize {
		return fmt.Errorf("wire encode: buffer too small (%d)", len(b))
	}
	dlc := f.Len
	if dlc > 8 {
		dlc = 8
	}
	info := dlc & infoLenMask
	var id uint32
	if f.CANID&can.CAN_EFF_FLAG != 0 {
		info |= infoExtended
		id = f.CANID & can.CAN_EFF_MASK
	} else {
		id = f.CANID & can.CAN_SFF_MASK
	}
	if f.CANID&can.CAN_RTR_FLAG != 0 {
		info |= infoRemote
	}
	b[0] = info
	binary.BigEndian.PutUint32(b[1:5], id)
	for i := 5; i < FrameSize; i++ {
		b[i] = 0
	}
	copy(b[5:5+dlc], f.Data[:dlc])
	return nil
}

// Append appends the wire form of f to dst and returns the extended slice.
func Append(dst []byte, f can.Frame) []byte {
	var buf [FrameSize]byte
	_ = Encode(f, buf[:])
	return append(dst, buf[:]...)
}

// EncodeBatch packs frames into a single datagram payload.
func EncodeBatch(frames []can.Frame) []byte {
	if len(frames) == 0 {
		return nil
	}
	out := make([]byte, 0, len(frames)*FrameSize)
	for _, f := range frames {
		out = Append(out, f)
	}
	return out
}

// DecodeBatch walks the leading whole 13-byte units of a datagram payload and
// invokes onFrame for each unit that decodes cleanly. It returns the number
// of decode attempts, the number of discarded tail bytes, and the first
// decode error encountered (decoding continues past per-unit errors).
func DecodeBatch(payload []byte, onFrame func(can.Frame)) (attempts, tail int, firstErr error) {
	off := 0
	for off+FrameSize <= len(payload) {
		f, err := Decode(payload[off : off+FrameSize])
		attempts++
		off += FrameSize
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		onFrame(f)
	}
	return attempts, len(payload) - off, firstErr
}
