package trace

import (
	"fmt"
	"io"

	"github.com/rs/zerolog"
)

// Tracer is the protocol trace facade. The engine calls it on every
// packet and phase transition; the default is a nop so tracing costs
// nothing unless a writer is attached.
type Tracer interface {
	Print(v ...interface{})
	Printf(format string, v ...interface{})
	LogPacket(msg string, packet []byte)
	IsOn() bool
}

type nilTracer struct{}

func (nilTracer) Print(...interface{})          {}
func (nilTracer) Printf(string, ...interface{}) {}
func (nilTracer) LogPacket(string, []byte)      {}
func (nilTracer) IsOn() bool                    { return false }

func NilTracer() Tracer {
	return nilTracer{}
}

type tracer struct {
	log zerolog.Logger
}

// NewTracer builds a tracer that writes structured lines to w.
func NewTracer(w io.Writer) Tracer {
	return &tracer{
		log: zerolog.New(w).With().Timestamp().Str("component", "orathin").Logger(),
	}
}

func (t *tracer) IsOn() bool {
	return true
}

func (t *tracer) Print(v ...interface{}) {
	t.log.Debug().Msg(fmt.Sprint(v...))
}

func (t *tracer) Printf(format string, v ...interface{}) {
	t.log.Debug().Msgf(format, v...)
}

// LogPacket dumps a packet in 8-byte hex groups.
func (t *tracer) LogPacket(msg string, packet []byte) {
	if len(packet) == 0 {
		t.log.Debug().Msg(msg)
		return
	}
	t.log.Debug().Int("length", len(packet)).Str("dump", formatPacket(packet)).Msg(msg)
}

func formatPacket(packet []byte) string {
	output := ""
	for i, b := range packet {
		if i > 0 && i%8 == 0 {
			output += " |"
		}
		output += fmt.Sprintf(" %02X", b)
	}
	return output
}
