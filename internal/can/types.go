package can

// SocketCAN flag bits for can_id (same values as <linux/can.h>)
const (
	CAN_EFF_FLAG = 0x80000000
	CAN_RTR_FLAG = 0x40000000
	CAN_ERR_FLAG = 0x20000000
	CAN_SFF_MASK = 0x7FF
	CAN_EFF_MASK = 0x1FFFFFFF
)

// Frame is a classic CAN frame as it crosses the bridge.
// CANID carries EFF/RTR/ERR flags in its upper bits like SocketCAN.
// Len is payload length (0..8); only the first Len bytes of Data are valid.
type Frame struct {
	CANID uint32
	Len   uint8
	Data  [8]byte
}

// ID returns the routable identifier: 29 bits for extended frames,
// 11 bits otherwise, with all flag bits stripped.
func (f Frame) ID() uint32 {
	if f.CANID&CAN_EFF_FLAG != 0 {
		return f.CANID & CAN_EFF_MASK
	}
	return f.CANID & CAN_SFF_MASK
}

// Extended reports whether the frame uses a 29-bit identifier.
func (f Frame) Extended() bool { return f.CANID&CAN_EFF_FLAG != 0 }

// Remote reports whether the frame is a remote transmission request.
func (f Frame) Remote() bool { return f.CANID&CAN_RTR_FLAG != 0 }

func (f Frame) CopyShallow() Frame { // handy for tests
	var g Frame
	g.CANID, g.Len = f.CANID, f.Len
	copy(g.Data[:], f.Data[:])
	return g
}
