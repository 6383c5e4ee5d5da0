package network

import "encoding/binary"

type ConnectPacket struct {
	Packet
	buffer []byte
}

// connect data longer than 230 bytes does not fit the CONNECT packet;
// the length field is zeroed and the payload follows in a DATA packet.
const maxConnectData = 230

func (pck *ConnectPacket) bytes() []byte {
	output := pck.Packet.bytes()
	binary.BigEndian.PutUint16(output[8:], pck.sessionCtx.Version)
	binary.BigEndian.PutUint16(output[10:], pck.sessionCtx.LoVersion)
	binary.BigEndian.PutUint16(output[12:], pck.sessionCtx.Options)
	binary.BigEndian.PutUint16(output[14:], uint16(pck.sessionCtx.SessionDataUnit))
	binary.BigEndian.PutUint16(output[16:], uint16(pck.sessionCtx.TransportDataUnit))
	output[18] = 79
	output[19] = 152
	binary.BigEndian.PutUint16(output[22:], pck.sessionCtx.Histone)
	binary.BigEndian.PutUint16(output[24:], uint16(len(pck.buffer)))
	binary.BigEndian.PutUint16(output[26:], pck.Packet.dataOffset)
	output[32] = pck.sessionCtx.ACFL0
	output[33] = pck.sessionCtx.ACFL1
	binary.BigEndian.PutUint32(output[50:], pck.sessionCtx.SessionDataUnit)
	binary.BigEndian.PutUint32(output[54:], pck.sessionCtx.TransportDataUnit)
	if len(pck.buffer) <= maxConnectData {
		output = append(output, pck.buffer...)
	}
	return output
}

func newConnectPacket(sessionCtx *SessionContext, connectData string, redirect bool) *ConnectPacket {
	length := uint32(len(connectData))
	if length > maxConnectData {
		length = 0
	}
	length += 58

	sessionCtx.Histone = 1
	sessionCtx.ACFL0 = 4
	sessionCtx.ACFL1 = 4
	flag := uint8(0)
	if redirect {
		flag = 2
	}
	return &ConnectPacket{
		Packet: Packet{
			sessionCtx: sessionCtx,
			dataOffset: 58,
			length:     length,
			packetType: CONNECT,
			flag:       flag,
		},
		buffer: []byte(connectData),
	}
}

// needsDataPacket reports whether the connect data overflowed and must
// be sent separately.
func (pck *ConnectPacket) needsDataPacket() bool {
	return len(pck.buffer) > maxConnectData
}
