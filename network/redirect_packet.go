package network

import (
	"encoding/binary"
)

// flag bit 2 on a REDIRECT means the payload carries both the new
// address and the connect data to replay, separated by NUL.
type RedirectPacket struct {
	Packet
	redirectAddr  string
	reconnectData string
}

func newRedirectPacketFromData(packetData []byte) *RedirectPacket {
	if len(packetData) < 10 {
		return nil
	}
	return &RedirectPacket{
		Packet: Packet{
			dataOffset: 10,
			length:     uint32(binary.BigEndian.Uint16(packetData)),
			packetType: PacketType(packetData[4]),
			flag:       packetData[5],
		},
	}
}
