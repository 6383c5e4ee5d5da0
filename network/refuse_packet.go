package network

import (
	"encoding/binary"
	"regexp"
	"strconv"
	"strings"
)

type RefusePacket struct {
	Packet
	Err          OracleError
	SystemReason uint8
	UserReason   uint8
	message      string
}

func newRefusePacketFromData(packetData []byte) *RefusePacket {
	if len(packetData) < 12 {
		return nil
	}
	dataLen := binary.BigEndian.Uint16(packetData[10:])
	var message string
	if uint16(len(packetData)) >= 12+dataLen {
		message = string(packetData[12 : 12+dataLen])
	}
	pck := &RefusePacket{
		Packet: Packet{
			dataOffset: 12,
			length:     uint32(binary.BigEndian.Uint16(packetData)),
			packetType: PacketType(packetData[4]),
			flag:       0,
		},
		SystemReason: packetData[9],
		UserReason:   packetData[8],
		message:      message,
	}
	pck.extractErrCode()
	return pck
}

var errExtractRegexp = regexp.MustCompile(`\(\s*ERR\s*=\s*([0-9]+)\s*\)`)
var codeExtractRegexp = regexp.MustCompile(`CODE\s*=\s*([0-9]+)`)

// extractErrCode digs the ORA code out of the refuse payload; servers
// wrap it as (ERR=nnnn) or (ERROR=(CODE=nnnn)...). 12564 (connection
// refused) is the fallback.
func (pck *RefusePacket) extractErrCode() {
	pck.Err = *NewOracleError(12564)
	if len(pck.message) == 0 {
		return
	}
	msg := strings.ToUpper(pck.message)
	matches := errExtractRegexp.FindStringSubmatch(msg)
	if len(matches) != 2 {
		matches = codeExtractRegexp.FindStringSubmatch(msg)
	}
	if len(matches) == 2 {
		if errCode, err := strconv.ParseInt(matches[1], 10, 32); err == nil {
			pck.Err = *NewOracleError(int(errCode))
		}
	}
}
