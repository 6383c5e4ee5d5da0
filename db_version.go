package orathin

import (
	"fmt"

	"github.com/orathin/orathin/network"
)

type DBVersion struct {
	Info            string
	Text            string
	Number          uint16
	MajorVersion    int
	MinorVersion    int
	PatchsetVersion int
}

func getDBVersion(session *network.Session) (*DBVersion, error) {
	session.ResetBuffer()
	session.PutBytes(3, 0x3B, 0)
	session.PutUint(1, 1, false, false)
	session.PutUint(0x100, 2, true, true)
	session.PutUint(1, 1, false, false)
	session.PutUint(1, 1, false, false)
	err := session.Write()
	if err != nil {
		return nil, err
	}
	msg, err := session.GetInt(1, false, false)
	if err != nil {
		return nil, err
	}
	if msg != 8 {
		return nil, fmt.Errorf("message code error: received code %d and expected code is 8", msg)
	}
	length, err := session.GetInt(2, true, true)
	if err != nil {
		return nil, err
	}
	info, err := session.GetBytes(length)
	if err != nil {
		return nil, err
	}
	number, err := session.GetInt(4, true, true)
	if err != nil {
		return nil, err
	}
	version := (number>>24&0xFF)*1000 + (number>>20&0xF)*100 + (number>>12&0xF)*10 + (number >> 8 & 0xF)
	text := fmt.Sprintf("%d.%d.%d.%d.%d", number>>24&0xFF, number>>20&0xF,
		number>>12&0xF, number>>8&0xF, number&0xFF)
	return &DBVersion{
		Info:            string(info),
		Text:            text,
		Number:          uint16(version),
		MajorVersion:    number >> 24 & 0xFF,
		MinorVersion:    number >> 20 & 0xF,
		PatchsetVersion: number >> 8 & 0xF,
	}, nil
}
