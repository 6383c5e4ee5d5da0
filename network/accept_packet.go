package network

import (
	"encoding/binary"
)

type AcceptPacket struct {
	Packet
	buffer []byte
}

func newAcceptPacketFromData(packetData []byte, ctx *SessionContext) *AcceptPacket {
	if len(packetData) < 32 {
		return nil
	}
	reconAddStart := binary.BigEndian.Uint16(packetData[28:])
	reconAddLen := binary.BigEndian.Uint16(packetData[30:])
	reconAdd := ""
	if reconAddStart != 0 && reconAddLen != 0 && uint16(len(packetData)) > (reconAddStart+reconAddLen) {
		reconAdd = string(packetData[reconAddStart:(reconAddStart + reconAddLen)])
	}
	ctx.Version = binary.BigEndian.Uint16(packetData[8:])
	ctx.NegotiatedOptions = binary.BigEndian.Uint16(packetData[10:])
	ctx.SessionDataUnit = uint32(binary.BigEndian.Uint16(packetData[12:]))
	ctx.TransportDataUnit = uint32(binary.BigEndian.Uint16(packetData[14:]))
	ctx.Histone = binary.BigEndian.Uint16(packetData[16:])
	ctx.ReconAddr = reconAdd
	ctx.ACFL0 = packetData[22]
	ctx.ACFL1 = packetData[23]
	pck := AcceptPacket{
		Packet: Packet{
			sessionCtx: ctx,
			dataOffset: binary.BigEndian.Uint16(packetData[20:]),
			length:     uint32(binary.BigEndian.Uint16(packetData)),
			packetType: PacketType(packetData[4]),
			flag:       packetData[5],
		},
	}
	if int(pck.dataOffset) <= len(packetData) {
		pck.buffer = packetData[int(pck.dataOffset):]
	}
	if ctx.Version >= 315 {
		if len(packetData) >= 40 {
			ctx.SessionDataUnit = binary.BigEndian.Uint32(packetData[32:])
			ctx.TransportDataUnit = binary.BigEndian.Uint32(packetData[36:])
		}
		if len(packetData) >= 44 {
			ctx.AcceptFlags = binary.BigEndian.Uint32(packetData[40:])
		}
	}
	if pck.flag&1 > 0 && pck.length >= 16 {
		// trailing SID block
		pck.length -= 16
		if int(pck.length) <= len(packetData) {
			ctx.SID = packetData[int(pck.length):]
		}
	}
	if ctx.TransportDataUnit < ctx.SessionDataUnit {
		ctx.SessionDataUnit = ctx.TransportDataUnit
	}
	if binary.BigEndian.Uint16(packetData[18:]) != uint16(len(pck.buffer)) {
		return nil
	}
	return &pck
}
