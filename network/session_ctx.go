package network

import (
	"github.com/orathin/orathin/configurations"
)

// accept packet capability flags (u32 at the tail of a >=315 ACCEPT)
const (
	AcceptFlagHasEndOfRequest uint32 = 0x02000000
	AcceptFlagTLSReneg        uint32 = 0x08000000
	AcceptFlagFastAuth        uint32 = 0x10000000
)

// negotiated option bits carried in the CONNECT/ACCEPT service options
const (
	optionHeaderChecksum uint16 = 1
	optionOOB            uint16 = 1024
	optionFullDuplex     uint16 = 2048
)

// SessionContext holds everything negotiated during phase one. It is
// mutated by the ACCEPT packet and the protocol message, then frozen
// for the life of the connection.
type SessionContext struct {
	connConfig        *configurations.ConnectionConfig
	SID               []byte
	Version           uint16
	LoVersion         uint16
	Options           uint16
	NegotiatedOptions uint16
	OurOne            uint16
	Histone           uint16
	ReconAddr         string
	handshakeComplete bool
	ACFL0             uint8
	ACFL1             uint8
	SessionDataUnit   uint32
	TransportDataUnit uint32
	AcceptFlags       uint32
	OnBreakReset      bool
	GotReset          bool
}

func NewSessionContext(config *configurations.ConnectionConfig) *SessionContext {
	ctx := &SessionContext{
		SessionDataUnit:   config.SessionDataUnitSize,
		TransportDataUnit: config.TransportDataUnitSize,
		Version:           319,
		LoVersion:         300,
		Options:           optionHeaderChecksum | optionFullDuplex,
		OurOne:            1,
		connConfig:        config,
	}
	if config.EnableOOB {
		ctx.Options |= optionOOB
	}
	return ctx
}

// UsesBigLength reports whether packet lengths are 32 bit wide; true
// once both ends have agreed on protocol version 315 or later.
func (ctx *SessionContext) UsesBigLength() bool {
	return ctx.handshakeComplete && ctx.Version >= 315
}

func (ctx *SessionContext) SupportsOOB() bool {
	return ctx.NegotiatedOptions&optionOOB != 0
}

func (ctx *SessionContext) SupportsEndOfRequest() bool {
	return ctx.AcceptFlags&AcceptFlagHasEndOfRequest != 0
}

func (ctx *SessionContext) SupportsFastAuth() bool {
	return ctx.AcceptFlags&AcceptFlagFastAuth != 0
}

func (ctx *SessionContext) WantsTLSRenegotiation() bool {
	return ctx.AcceptFlags&AcceptFlagTLSReneg != 0
}
