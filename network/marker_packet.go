package network

// marker payload: {type, 0, data}. type 1 is a data marker whose data
// byte distinguishes break (1) from reset (2); type 0 is a legacy break.
const (
	markerTypeBreak uint8 = 1
	markerTypeReset uint8 = 2
)

type MarkerPacket struct {
	Packet
	markerData uint8
	markerType uint8
}

func (pck *MarkerPacket) bytes() []byte {
	if pck.sessionCtx.UsesBigLength() {
		return []byte{0, 0, 0, 0xB, 0xC, 0x20, 0, 0, pck.markerType, 0, pck.markerData}
	}
	return []byte{0, 0xB, 0, 0, 0xC, 0x20, 0, 0, pck.markerType, 0, pck.markerData}
}

func newMarkerPacket(markerData uint8, sessionCtx *SessionContext) *MarkerPacket {
	return &MarkerPacket{
		Packet: Packet{
			sessionCtx: sessionCtx,
			dataOffset: 0,
			length:     0xB,
			packetType: MARKER,
			flag:       0x20,
		},
		markerType: 1,
		markerData: markerData,
	}
}

func newMarkerPacketFromData(packetData []byte, sessionCtx *SessionContext) *MarkerPacket {
	if len(packetData) != 0xB {
		return nil
	}
	pck := MarkerPacket{
		Packet: Packet{
			sessionCtx: sessionCtx,
			dataOffset: 0,
			length:     packetLength(packetData, sessionCtx),
			packetType: PacketType(packetData[4]),
			flag:       packetData[5],
		},
		markerType: packetData[8],
		markerData: packetData[10],
	}
	if pck.packetType != MARKER {
		return nil
	}
	return &pck
}

// isReset reports whether this marker acknowledges a break.
func (pck *MarkerPacket) isReset() bool {
	return pck.markerType == 1 && pck.markerData == markerTypeReset
}
