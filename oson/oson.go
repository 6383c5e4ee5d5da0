// Package oson encodes and decodes the binary JSON image Oracle stores
// for DB_TYPE_JSON columns: a three-byte magic, a version byte, a flag
// word, then a type-tagged value tree.
package oson

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"time"
)

const (
	magicByte1 = 0xFF
	magicByte2 = 0x4A // 'J'
	magicByte3 = 0x5A // 'Z'
	version    = 1
)

// image flags
const (
	flagInlineNames uint16 = 0x0001
)

// value type tags
const (
	typeNull        = 0x30
	typeTrue        = 0x31
	typeFalse       = 0x32
	typeInt         = 0x33
	typeDouble      = 0x34
	typeString8     = 0x35
	typeString16    = 0x36
	typeString32    = 0x37
	typeBinary      = 0x38
	typeDate        = 0x39
	typeTimestamp   = 0x3A
	typeTimestampTZ = 0x3B
	typeIntervalDS  = 0x3C
	typeObject      = 0x84
	typeArray       = 0xC0
)

// MaxDepth bounds nesting for both directions; deeper trees are
// rejected rather than overflowing the stack on hostile input.
const MaxDepth = 32

var ErrMalformed = errors.New("malformed OSON image")
var ErrTooDeep = fmt.Errorf("OSON tree exceeds maximum depth %d", MaxDepth)

// Encode renders a Go value tree (map[string]interface{}, []interface
// {}, string, int64, float64, bool, time.Time, time.Duration, []byte,
// nil) into an OSON image.
func Encode(value interface{}) ([]byte, error) {
	out := make([]byte, 0, 64)
	out = append(out, magicByte1, magicByte2, magicByte3, version)
	out = binary.BigEndian.AppendUint16(out, flagInlineNames)
	return encodeValue(out, value, 0)
}

func encodeValue(out []byte, value interface{}, depth int) ([]byte, error) {
	if depth > MaxDepth {
		return nil, ErrTooDeep
	}
	switch v := value.(type) {
	case nil:
		return append(out, typeNull), nil
	case bool:
		if v {
			return append(out, typeTrue), nil
		}
		return append(out, typeFalse), nil
	case int:
		return encodeInt(out, int64(v)), nil
	case int32:
		return encodeInt(out, int64(v)), nil
	case int64:
		return encodeInt(out, v), nil
	case float32:
		return encodeDouble(out, float64(v)), nil
	case float64:
		return encodeDouble(out, v), nil
	case string:
		return encodeString(out, v)
	case []byte:
		out = append(out, typeBinary)
		out = binary.BigEndian.AppendUint32(out, uint32(len(v)))
		return append(out, v...), nil
	case time.Time:
		return encodeTime(out, v), nil
	case time.Duration:
		out = append(out, typeIntervalDS)
		return append(out, encodeIntervalDS(v)...), nil
	case map[string]interface{}:
		out = append(out, typeObject)
		out = binary.BigEndian.AppendUint32(out, uint32(len(v)))
		// deterministic field order: objects round-trip by content, and
		// two encodes of the same tree produce the same image
		for _, key := range sortedKeys(v) {
			var err error
			out, err = encodeFieldName(out, key)
			if err != nil {
				return nil, err
			}
			out, err = encodeValue(out, v[key], depth+1)
			if err != nil {
				return nil, err
			}
		}
		return out, nil
	case []interface{}:
		out = append(out, typeArray)
		out = binary.BigEndian.AppendUint32(out, uint32(len(v)))
		for _, item := range v {
			var err error
			out, err = encodeValue(out, item, depth+1)
			if err != nil {
				return nil, err
			}
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unsupported OSON value type %T", value)
	}
}

func encodeInt(out []byte, v int64) []byte {
	out = append(out, typeInt)
	return binary.BigEndian.AppendUint64(out, uint64(v))
}

func encodeDouble(out []byte, v float64) []byte {
	out = append(out, typeDouble)
	return binary.BigEndian.AppendUint64(out, math.Float64bits(v))
}

func encodeString(out []byte, v string) ([]byte, error) {
	switch {
	case len(v) <= 0xFF:
		out = append(out, typeString8, uint8(len(v)))
	case len(v) <= 0xFFFF:
		out = append(out, typeString16)
		out = binary.BigEndian.AppendUint16(out, uint16(len(v)))
	case len(v) <= 0xFFFFFFF:
		out = append(out, typeString32)
		out = binary.BigEndian.AppendUint32(out, uint32(len(v)))
	default:
		return nil, errors.New("string exceeds OSON field limit")
	}
	return append(out, v...), nil
}

func encodeFieldName(out []byte, name string) ([]byte, error) {
	if len(name) > 0xFFFF {
		return nil, errors.New("field name exceeds OSON limit")
	}
	if len(name) <= 0xFF {
		out = append(out, uint8(1), uint8(len(name)))
	} else {
		out = append(out, uint8(2))
		out = binary.BigEndian.AppendUint16(out, uint16(len(name)))
	}
	return append(out, name...), nil
}

func encodeTime(out []byte, v time.Time) []byte {
	_, offset := v.Zone()
	if v.Nanosecond() == 0 && v.Hour() == 0 && v.Minute() == 0 && v.Second() == 0 && offset == 0 {
		out = append(out, typeDate)
		return append(out, encodeDate(v)...)
	}
	if offset == 0 && v.Location() == time.UTC {
		out = append(out, typeTimestamp)
		return append(out, encodeTimestamp(v)...)
	}
	out = append(out, typeTimestampTZ)
	data := encodeTimestamp(v)
	data = append(data, uint8(offset/3600+20), uint8((offset/60)%60+60))
	return append(out, data...)
}

func encodeDate(ti time.Time) []byte {
	return []byte{
		uint8(ti.Year()/100 + 100),
		uint8(ti.Year()%100 + 100),
		uint8(ti.Month()),
		uint8(ti.Day()),
		uint8(ti.Hour() + 1),
		uint8(ti.Minute() + 1),
		uint8(ti.Second() + 1),
	}
}

func encodeTimestamp(ti time.Time) []byte {
	out := encodeDate(ti)
	out = append(out, 0, 0, 0, 0)
	binary.BigEndian.PutUint32(out[7:], uint32(ti.Nanosecond()))
	return out
}

func encodeIntervalDS(d time.Duration) []byte {
	out := make([]byte, 11)
	days := int32(d / (time.Hour * 24))
	rem := d % (time.Hour * 24)
	binary.BigEndian.PutUint32(out, uint32(days)+0x80000000)
	out[4] = uint8(rem/time.Hour + 60)
	rem %= time.Hour
	out[5] = uint8(rem/time.Minute + 60)
	rem %= time.Minute
	out[6] = uint8(rem/time.Second + 60)
	rem %= time.Second
	binary.BigEndian.PutUint32(out[7:], uint32(rem)+0x80000000)
	return out
}

func sortedKeys(m map[string]interface{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	for i := 1; i < len(keys); i++ {
		for j := i; j > 0 && keys[j-1] > keys[j]; j-- {
			keys[j-1], keys[j] = keys[j], keys[j-1]
		}
	}
	return keys
}

// Decode parses an OSON image back into the Go value tree.
func Decode(data []byte) (interface{}, error) {
	if len(data) < 6 || data[0] != magicByte1 || data[1] != magicByte2 || data[2] != magicByte3 {
		return nil, ErrMalformed
	}
	if data[3] != version {
		return nil, fmt.Errorf("OSON version (%d) not supported", data[3])
	}
	d := &decoder{data: data, pos: 6}
	value, err := d.decodeValue(0)
	if err != nil {
		return nil, err
	}
	return value, nil
}

type decoder struct {
	data []byte
	pos  int
}

func (d *decoder) take(n int) ([]byte, error) {
	if d.pos+n > len(d.data) {
		return nil, ErrMalformed
	}
	out := d.data[d.pos : d.pos+n]
	d.pos += n
	return out, nil
}

func (d *decoder) decodeValue(depth int) (interface{}, error) {
	if depth > MaxDepth {
		return nil, ErrTooDeep
	}
	tag, err := d.take(1)
	if err != nil {
		return nil, err
	}
	switch tag[0] {
	case typeNull:
		return nil, nil
	case typeTrue:
		return true, nil
	case typeFalse:
		return false, nil
	case typeInt:
		raw, err := d.take(8)
		if err != nil {
			return nil, err
		}
		return int64(binary.BigEndian.Uint64(raw)), nil
	case typeDouble:
		raw, err := d.take(8)
		if err != nil {
			return nil, err
		}
		return math.Float64frombits(binary.BigEndian.Uint64(raw)), nil
	case typeString8, typeString16, typeString32:
		return d.decodeString(tag[0])
	case typeBinary:
		raw, err := d.take(4)
		if err != nil {
			return nil, err
		}
		payload, err := d.take(int(binary.BigEndian.Uint32(raw)))
		if err != nil {
			return nil, err
		}
		out := make([]byte, len(payload))
		copy(out, payload)
		return out, nil
	case typeDate:
		raw, err := d.take(7)
		if err != nil {
			return nil, err
		}
		return decodeDate(raw), nil
	case typeTimestamp:
		raw, err := d.take(11)
		if err != nil {
			return nil, err
		}
		return decodeTimestamp(raw, 0, 0), nil
	case typeTimestampTZ:
		raw, err := d.take(13)
		if err != nil {
			return nil, err
		}
		return decodeTimestamp(raw[:11], int(raw[11])-20, int(raw[12])-60), nil
	case typeIntervalDS:
		raw, err := d.take(11)
		if err != nil {
			return nil, err
		}
		return decodeIntervalDS(raw), nil
	case typeObject:
		raw, err := d.take(4)
		if err != nil {
			return nil, err
		}
		count := int(binary.BigEndian.Uint32(raw))
		out := make(map[string]interface{}, count)
		for i := 0; i < count; i++ {
			name, err := d.decodeFieldName()
			if err != nil {
				return nil, err
			}
			value, err := d.decodeValue(depth + 1)
			if err != nil {
				return nil, err
			}
			out[name] = value
		}
		return out, nil
	case typeArray:
		raw, err := d.take(4)
		if err != nil {
			return nil, err
		}
		count := int(binary.BigEndian.Uint32(raw))
		out := make([]interface{}, 0, count)
		for i := 0; i < count; i++ {
			value, err := d.decodeValue(depth + 1)
			if err != nil {
				return nil, err
			}
			out = append(out, value)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unknown OSON type tag 0x%02X", tag[0])
	}
}

func (d *decoder) decodeString(tag byte) (string, error) {
	var length int
	switch tag {
	case typeString8:
		raw, err := d.take(1)
		if err != nil {
			return "", err
		}
		length = int(raw[0])
	case typeString16:
		raw, err := d.take(2)
		if err != nil {
			return "", err
		}
		length = int(binary.BigEndian.Uint16(raw))
	default:
		raw, err := d.take(4)
		if err != nil {
			return "", err
		}
		length = int(binary.BigEndian.Uint32(raw))
	}
	payload, err := d.take(length)
	if err != nil {
		return "", err
	}
	return string(payload), nil
}

func (d *decoder) decodeFieldName() (string, error) {
	kind, err := d.take(1)
	if err != nil {
		return "", err
	}
	var length int
	switch kind[0] {
	case 1:
		raw, err := d.take(1)
		if err != nil {
			return "", err
		}
		length = int(raw[0])
	case 2:
		raw, err := d.take(2)
		if err != nil {
			return "", err
		}
		length = int(binary.BigEndian.Uint16(raw))
	default:
		return "", ErrMalformed
	}
	payload, err := d.take(length)
	if err != nil {
		return "", err
	}
	return string(payload), nil
}

func decodeDate(data []byte) time.Time {
	year := (int(data[0])-100)*100 + (int(data[1]) - 100)
	return time.Date(year, time.Month(data[2]), int(data[3]),
		int(data[4])-1, int(data[5])-1, int(data[6])-1, 0, time.UTC)
}

func decodeTimestamp(data []byte, tzHour, tzMin int) time.Time {
	year := (int(data[0])-100)*100 + (int(data[1]) - 100)
	nanos := int(binary.BigEndian.Uint32(data[7:11]))
	loc := time.UTC
	if tzHour != 0 || tzMin != 0 {
		loc = time.FixedZone("", tzHour*3600+tzMin*60)
	}
	return time.Date(year, time.Month(data[2]), int(data[3]),
		int(data[4])-1, int(data[5])-1, int(data[6])-1, nanos, loc)
}

func decodeIntervalDS(data []byte) time.Duration {
	days := int64(int32(binary.BigEndian.Uint32(data) - 0x80000000))
	nanos := int64(int32(binary.BigEndian.Uint32(data[7:]) - 0x80000000))
	return time.Duration(days)*24*time.Hour +
		time.Duration(int64(data[4])-60)*time.Hour +
		time.Duration(int64(data[5])-60)*time.Minute +
		time.Duration(int64(data[6])-60)*time.Second +
		time.Duration(nanos)
}
