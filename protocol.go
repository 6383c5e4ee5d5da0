package orathin

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/orathin/orathin/configurations"
	"github.com/orathin/orathin/network"
)

// TCPNego carries the protocol-message exchange: driver banner against
// server banner, charsets, and the compile/runtime capability vectors
// everything downstream keys off.
type TCPNego struct {
	MessageCode           uint8
	ProtocolServerVersion uint8
	ProtocolServerString  string
	OracleVersion         int
	ServerCharset         int
	ServerFlags           uint8
	CharsetElem           int
	ServernCharset        int
	ServerCompileTimeCaps []byte
	ServerRuntimeCaps     []byte
}

const driverBanner = "orathin\x00"

func newTCPNego(session *network.Session) (*TCPNego, error) {
	session.ResetBuffer()
	session.PutBytes(1, 6, 5, 4, 3, 2, 1, 0)
	session.PutBytes([]byte(driverBanner)...)
	err := session.Write()
	if err != nil {
		return nil, err
	}
	result := TCPNego{}
	result.MessageCode, err = session.GetByte()
	if err != nil {
		return nil, err
	}
	if result.MessageCode != 1 {
		return nil, fmt.Errorf("message code error: received code %d and expected code is 1", result.MessageCode)
	}
	result.ProtocolServerVersion, err = session.GetByte()
	if err != nil {
		return nil, err
	}
	switch result.ProtocolServerVersion {
	case 4:
		result.OracleVersion = 7230
	case 5:
		result.OracleVersion = 8030
	case 6:
		result.OracleVersion = 8100
	default:
		return nil, fmt.Errorf("unsupported server protocol version: %d", result.ProtocolServerVersion)
	}
	if _, err = session.GetByte(); err != nil {
		return nil, err
	}
	result.ProtocolServerString, err = session.GetNullTermString(50)
	if err != nil {
		return nil, err
	}
	// the charset block keeps the pre-capability little-endian layout
	result.ServerCharset, err = session.GetInt(2, false, false)
	if err != nil {
		return nil, err
	}
	result.ServerFlags, err = session.GetByte()
	if err != nil {
		return nil, err
	}
	result.CharsetElem, err = session.GetInt(2, false, false)
	if err != nil {
		return nil, err
	}
	if result.CharsetElem > 0 {
		if _, err = session.GetBytes(result.CharsetElem * 5); err != nil {
			return nil, err
		}
	}
	len1, err := session.GetInt(2, false, true)
	if err != nil {
		return nil, err
	}
	numArray, err := session.GetBytes(len1)
	if err != nil {
		return nil, err
	}
	if len(numArray) > 6 {
		num3 := int(6 + (numArray[5]) + (numArray[6]))
		if num3+5 <= len(numArray) {
			result.ServernCharset = int(binary.BigEndian.Uint16(numArray[(num3 + 3):(num3 + 5)]))
		}
	}
	len2, err := session.GetByte()
	if err != nil {
		return nil, err
	}
	result.ServerCompileTimeCaps, err = session.GetBytes(int(len2))
	if err != nil {
		return nil, err
	}
	len3, err := session.GetByte()
	if err != nil {
		return nil, err
	}
	result.ServerRuntimeCaps, err = session.GetBytes(int(len3))
	if err != nil {
		return nil, err
	}
	if len(result.ServerCompileTimeCaps) > 15 && result.ServerCompileTimeCaps[15]&1 != 0 {
		session.HasEOSCapability = true
	}
	if len(result.ServerCompileTimeCaps) > 16 && result.ServerCompileTimeCaps[16]&1 != 0 {
		session.HasFSAPCapability = true
	}
	return &result, nil
}

// negoFromCookie rebuilds the protocol exchange result from a cached
// endpoint cookie, skipping the round trip entirely.
func negoFromCookie(cookie *configurations.ConnectionCookie, session *network.Session) *TCPNego {
	result := &TCPNego{
		MessageCode:           1,
		ProtocolServerVersion: cookie.ProtocolVersion,
		ProtocolServerString:  cookie.ServerBanner,
		OracleVersion:         8100,
		ServerCharset:         cookie.CharsetID,
		ServernCharset:        cookie.NCharsetID,
		ServerFlags:           cookie.Flags,
		ServerCompileTimeCaps: cookie.CompileTimeCaps,
		ServerRuntimeCaps:     cookie.RuntimeCaps,
	}
	if len(result.ServerCompileTimeCaps) > 15 && result.ServerCompileTimeCaps[15]&1 != 0 {
		session.HasEOSCapability = true
	}
	if len(result.ServerCompileTimeCaps) > 16 && result.ServerCompileTimeCaps[16]&1 != 0 {
		session.HasFSAPCapability = true
	}
	return result
}

func (nego *TCPNego) saveCookie(cookie *configurations.ConnectionCookie) {
	cookie.ProtocolVersion = nego.ProtocolServerVersion
	cookie.ServerBanner = nego.ProtocolServerString
	cookie.CharsetID = nego.ServerCharset
	cookie.NCharsetID = nego.ServernCharset
	cookie.Flags = nego.ServerFlags
	cookie.CompileTimeCaps = nego.ServerCompileTimeCaps
	cookie.RuntimeCaps = nego.ServerRuntimeCaps
	cookie.Populated = true
}

// DataTypeNego advertises every type pair the driver will bind or
// fetch and absorbs the server's timezone block in the response.
type DataTypeNego struct {
	MessageCode        uint8
	Server             *TCPNego
	TypeAndRep         []int16
	RuntimeTypeAndRep  []int16
	DataTypeRepFor1100 int16
	CompileTimeCaps    []byte
	RuntimeCap         []byte
	DBTimeZone         []byte
}

const bufferGrow int = 2369

func (nego *DataTypeNego) addTypeRep(dty, ndty, rep int16) {
	if nego.TypeAndRep == nil {
		nego.TypeAndRep = make([]int16, bufferGrow)
	}
	if len(nego.TypeAndRep) < int(nego.TypeAndRep[0]+4) {
		nego.TypeAndRep = append(nego.TypeAndRep, make([]int16, bufferGrow)...)
	}
	index := nego.TypeAndRep[0]
	nego.TypeAndRep[index] = dty
	nego.TypeAndRep[index+1] = ndty
	if ndty == 0 {
		nego.TypeAndRep[0] = index + 2
	} else {
		nego.TypeAndRep[index+2] = rep
		nego.TypeAndRep[index+3] = 0
		nego.TypeAndRep[0] = index + 4
	}
}

// supportedTypes lists the native type numbers the driver exchanges;
// each entry negotiates identity conversion at representation 1 except
// NUMBER and DATE which ask for the versioned representation.
var supportedTypes = []struct{ dty, rep int16 }{
	{1, 1}, {2, 10}, {8, 1}, {12, 10}, {23, 1}, {24, 1}, {25, 1}, {26, 1},
	{27, 1}, {28, 1}, {29, 1}, {30, 1}, {31, 1}, {32, 1}, {33, 1}, {10, 1},
	{11, 1}, {40, 1}, {41, 1}, {94, 1}, {95, 1}, {96, 1}, {97, 1}, {100, 1},
	{101, 1}, {102, 1}, {104, 1}, {108, 1}, {109, 1}, {110, 1}, {112, 1},
	{113, 1}, {114, 1}, {116, 1}, {117, 1}, {119, 1}, {120, 1}, {127, 1},
	{155, 1}, {156, 1}, {172, 1}, {178, 1}, {179, 1}, {180, 1}, {181, 1},
	{182, 1}, {183, 1}, {186, 1}, {187, 1}, {188, 1}, {189, 1}, {190, 1},
	{208, 1}, {231, 1}, {232, 1}, {252, 1}, {290, 1}, {291, 1}, {292, 1},
	{293, 1}, {294, 1},
}

func buildTypeNego(nego *TCPNego, session *network.Session) (*DataTypeNego, error) {
	result := DataTypeNego{
		MessageCode: 2,
		Server:      nego,
		TypeAndRep:  make([]int16, bufferGrow),
		CompileTimeCaps: []byte{
			6, 1, 0, 0, 10, 1, 1, 6,
			1, 1, 1, 1, 1, 1, 0, 0x29,
			0x90, 3, 7, 3, 0, 1, 0, 0x6B,
			1, 0, 5, 1, 0, 0, 0, 0,
			0, 0, 0, 0, 1, 2},
		RuntimeCap: []byte{2, 1, 0, 0, 0, 0, 0},
	}
	if result.Server.ServerCompileTimeCaps == nil ||
		len(result.Server.ServerCompileTimeCaps) <= 37 ||
		result.Server.ServerCompileTimeCaps[37]&2 != 2 {
		result.CompileTimeCaps[37] = 0
		result.CompileTimeCaps[1] = 0
	}
	result.TypeAndRep[0] = 1
	for _, t := range supportedTypes {
		result.addTypeRep(t.dty, t.dty, t.rep)
	}
	if result.Server.ServerCompileTimeCaps != nil &&
		len(result.Server.ServerCompileTimeCaps) > 7 &&
		result.Server.ServerCompileTimeCaps[7] == 5 &&
		result.DataTypeRepFor1100 > 0 {
		result.RuntimeTypeAndRep = result.TypeAndRep[:result.DataTypeRepFor1100]
	} else {
		result.RuntimeTypeAndRep = result.TypeAndRep
	}
	session.ResetBuffer()
	session.PutBytes(result.bytes()...)
	err := session.Write()
	if err != nil {
		return nil, err
	}
	return &result, result.read(session)
}

func (nego *DataTypeNego) read(session *network.Session) error {
	msg, err := session.GetByte()
	if err != nil {
		return err
	}
	if msg != 2 {
		return fmt.Errorf("message code error: received code %d and expected code is 2", msg)
	}
	if nego.RuntimeCap[1] == 1 {
		nego.DBTimeZone, err = session.GetBytes(11)
		if err != nil {
			return err
		}
		if nego.CompileTimeCaps[37]&2 == 2 {
			if _, err = session.GetInt(4, false, false); err != nil {
				return err
			}
		}
	}
	// drain the echoed type table; the grammar nests three levels deep
	level := 0
	for {
		var num int
		if nego.CompileTimeCaps[27] == 0 {
			num, err = session.GetInt(1, false, false)
		} else {
			num, err = session.GetInt(2, false, true)
		}
		if err != nil {
			return err
		}
		if num == 0 && level == 0 {
			break
		}
		if num == 0 && level == 1 {
			level = 0
			continue
		}
		if level == 3 {
			level = 0
			continue
		}
		level++
	}
	return nil
}

func (nego *DataTypeNego) bytes() []byte {
	if nego.Server.ServerCompileTimeCaps == nil ||
		len(nego.Server.ServerCompileTimeCaps) <= 27 ||
		nego.Server.ServerCompileTimeCaps[27] == 0 {
		nego.CompileTimeCaps[27] = 0
	}
	result := make([]byte, 0, 0x200)
	result = append(result, nego.MessageCode, 0, 0, 0, 0, nego.Server.ServerFlags,
		uint8(len(nego.CompileTimeCaps)))
	result = append(result, nego.CompileTimeCaps...)
	result = append(result, uint8(len(nego.RuntimeCap)))
	result = append(result, nego.RuntimeCap...)
	if nego.RuntimeCap[1]&1 == 1 {
		result = append(result, tzBytes()...)
		if nego.CompileTimeCaps[37]&2 == 2 {
			result = append(result, 0, 0, 0, 0)
		}
	}
	temp := []byte{0, 0}
	binary.LittleEndian.PutUint16(temp, uint16(nego.Server.ServernCharset))
	result = append(result, temp...)
	size := nego.RuntimeTypeAndRep[0]
	if nego.CompileTimeCaps[27] == 0 {
		for _, x := range nego.RuntimeTypeAndRep[1:size] {
			result = append(result, uint8(x))
		}
		result = append(result, 0)
	} else {
		for _, x := range nego.RuntimeTypeAndRep[1:size] {
			binary.BigEndian.PutUint16(temp, uint16(x))
			result = append(result, temp...)
		}
		result = append(result, 0, 0)
	}
	return result
}

func tzBytes() []byte {
	_, offset := time.Now().Zone()
	hours := int8(offset / 3600)
	minutes := int8((offset / 60) % 60)
	seconds := int8(offset % 60)
	return []byte{128, 0, 0, 0, uint8(hours + 60), uint8(minutes + 60), uint8(seconds + 60), 128, 0, 0, 0}
}
