package converters

import (
	"encoding/binary"
	"strings"
	"unicode/utf16"
	"unicode/utf8"
)

// IStringConverter translates between Go strings and the connection's
// negotiated database charset. Outbound text is only ever UTF-8 or
// UTF-16 (the forms the server accepts from a modern client); inbound
// bytes may arrive in any 8-bit charset and pass through the
// replacement policy.
type IStringConverter interface {
	Encode(input string) []byte
	Decode(input []byte) string
	GetLangID() int
	SetLangID(langID int) int
}

const (
	CharsetUTF8     = 873
	CharsetAL32UTF8 = 871
	CharsetUTF16BE  = 2000
	CharsetUTF16LE  = 2002
)

type StringConverter struct {
	LangID  int
	replace rune
}

func NewStringConverter(langID int) *StringConverter {
	return &StringConverter{LangID: langID, replace: utf8.RuneError}
}

func (conv *StringConverter) GetLangID() int {
	return conv.LangID
}

func (conv *StringConverter) SetLangID(langID int) int {
	old := conv.LangID
	conv.LangID = langID
	return old
}

func (conv *StringConverter) Encode(input string) []byte {
	if len(input) == 0 {
		return nil
	}
	switch conv.LangID {
	case CharsetUTF16BE, CharsetUTF16LE:
		units := utf16.Encode([]rune(input))
		output := make([]byte, len(units)*2)
		for i, u := range units {
			if conv.LangID == CharsetUTF16LE {
				binary.LittleEndian.PutUint16(output[i*2:], u)
			} else {
				binary.BigEndian.PutUint16(output[i*2:], u)
			}
		}
		return output
	default:
		// UTF-8 and every single-byte superset the server understands
		return []byte(input)
	}
}

func (conv *StringConverter) Decode(input []byte) string {
	if len(input) == 0 {
		return ""
	}
	switch conv.LangID {
	case CharsetUTF16BE, CharsetUTF16LE:
		units := make([]uint16, len(input)/2)
		for i := range units {
			if conv.LangID == CharsetUTF16LE {
				units[i] = binary.LittleEndian.Uint16(input[i*2:])
			} else {
				units[i] = binary.BigEndian.Uint16(input[i*2:])
			}
		}
		return string(utf16.Decode(units))
	case CharsetUTF8, CharsetAL32UTF8:
		if utf8.Valid(input) {
			return string(input)
		}
		return strings.ToValidUTF8(string(input), string(conv.replace))
	default:
		// 8-bit charsets: pass bytes below 0x80 through, substitute the rest
		var sb strings.Builder
		for _, b := range input {
			if b < 0x80 {
				sb.WriteByte(b)
			} else {
				sb.WriteRune(conv.replace)
			}
		}
		return sb.String()
	}
}
