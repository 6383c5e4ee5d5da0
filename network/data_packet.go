package network

import (
	"bytes"
	"encoding/binary"
	"errors"
)

type DataPacket struct {
	Packet
	dataFlag uint16
	buffer   []byte
}

func (pck *DataPacket) bytes() []byte {
	output := pck.Packet.bytes()
	binary.BigEndian.PutUint16(output[8:], pck.dataFlag)
	ret := bytes.NewBuffer(output)
	if len(pck.buffer) > 0 {
		ret.Write(pck.buffer)
	}
	return ret.Bytes()
}

func newDataPacket(initialData []byte, sessionCtx *SessionContext) *DataPacket {
	return &DataPacket{
		Packet: Packet{
			sessionCtx: sessionCtx,
			dataOffset: 0xA,
			length:     uint32(len(initialData)) + 0xA,
			packetType: DATA,
			flag:       0,
		},
		dataFlag: 0,
		buffer:   initialData,
	}
}

func newDataPacketFromData(packetData []byte, sessionCtx *SessionContext) (*DataPacket, error) {
	if len(packetData) < 0xA || PacketType(packetData[4]) != DATA {
		return nil, errors.New("the packet received is not data packet")
	}
	return &DataPacket{
		Packet: Packet{
			sessionCtx: sessionCtx,
			dataOffset: 0xA,
			length:     packetLength(packetData, sessionCtx),
			packetType: PacketType(packetData[4]),
			flag:       packetData[5],
		},
		dataFlag: binary.BigEndian.Uint16(packetData[8:]),
		buffer:   packetData[10:],
	}, nil
}
