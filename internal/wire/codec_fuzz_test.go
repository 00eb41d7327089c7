package wire

import (
	"testing"

	"github.com/cansys/udp-can-bridge/internal/can"
)

// FuzzDecodeBatch ensures arbitrary datagram payloads never panic the
// decoder and that every accepted frame re-encodes to valid wire bytes.
func FuzzDecodeBatch(f *testing.F) {
	f.Add(EncodeBatch([]can.Frame{{CANID: 0x123, Len: 8, Data: [8]byte{0, 1, 2, 3, 4, 5, 6, 7}}}))
	f.Add(EncodeBatch([]can.Frame{
		{CANID: 0x1ABCDE | can.CAN_EFF_FLAG, Len: 3, Data: [8]byte{9, 8, 7}},
		{CANID: 0x7FF | can.CAN_RTR_FLAG, Len: 0},
	}))
	f.Add([]byte{0x09, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0}) // invalid dlc
	f.Add([]byte{1, 2, 3})                                   // bare tail
	f.Fuzz(func(t *testing.T, data []byte) {
		_, _, _ = DecodeBatch(data, func(fr can.Frame) {
			if fr.Len > 8 {
				t.Fatalf("accepted frame with dlc %d", fr.Len)
			}
			var buf [FrameSize]byte
			if err := Encode(fr, buf[:]); err != nil {
				t.Fatalf("re-encode failed: %v", err)
			}
			if _, err := Decode(buf[:]); err != nil {
				t.Fatalf("re-decode failed: %v", err)
			}
		})
	})
}
