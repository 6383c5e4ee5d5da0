package orathin

import (
	"database/sql/driver"
	"fmt"
	"strconv"

	"github.com/orathin/orathin/converters"
)

// Number carries an Oracle NUMBER in wire form so all 38 digits
// survive a fetch/bind round trip without float truncation.
type Number struct {
	data []byte
}

func (num Number) isZero() bool {
	return len(num.data) > 0 && num.data[0] == 0x80
}

func NewNumberFromString(val string) (*Number, error) {
	data, err := converters.EncodeNumberString(val)
	if err != nil {
		return nil, err
	}
	return &Number{data: data}, nil
}

func NewNumberFromInt64(val int64) *Number {
	return &Number{data: converters.EncodeInt64(val)}
}

func NewNumberFromUint64(val uint64) *Number {
	return &Number{data: converters.EncodeUint64(val)}
}

func NewNumberFromFloat(val float64) (*Number, error) {
	data, err := converters.EncodeDouble(val)
	if err != nil {
		return nil, err
	}
	return &Number{data: data}, nil
}

func NewNumber(n interface{}) (*Number, error) {
	switch value := n.(type) {
	case int:
		return NewNumberFromInt64(int64(value)), nil
	case int8:
		return NewNumberFromInt64(int64(value)), nil
	case int16:
		return NewNumberFromInt64(int64(value)), nil
	case int32:
		return NewNumberFromInt64(int64(value)), nil
	case int64:
		return NewNumberFromInt64(value), nil
	case uint:
		return NewNumberFromUint64(uint64(value)), nil
	case uint64:
		return NewNumberFromUint64(value), nil
	case float32:
		return NewNumberFromFloat(float64(value))
	case float64:
		return NewNumberFromFloat(value)
	case string:
		return NewNumberFromString(value)
	case Number:
		return &value, nil
	case *Number:
		return value, nil
	default:
		return nil, fmt.Errorf("cannot build NUMBER from %T", n)
	}
}

func (num *Number) Int64() (int64, error) {
	str, err := num.String()
	if err != nil {
		return 0, err
	}
	return strconv.ParseInt(str, 10, 64)
}

func (num *Number) Uint64() (uint64, error) {
	str, err := num.String()
	if err != nil {
		return 0, err
	}
	return strconv.ParseUint(str, 10, 64)
}

func (num *Number) Float64() (float64, error) {
	str, err := num.String()
	if err != nil {
		return 0, err
	}
	return strconv.ParseFloat(str, 64)
}

// String renders the exact decimal text of the number.
func (num *Number) String() (string, error) {
	return converters.DecodeNumberString(num.data)
}

// Bytes exposes the wire form; the statement binder uses it directly.
func (num *Number) Bytes() []byte {
	return num.data
}

func (num *Number) Scan(value interface{}) error {
	if value == nil {
		num.data = nil
		return nil
	}
	tmp, err := NewNumber(value)
	if err != nil {
		return err
	}
	*num = *tmp
	return nil
}

func (num Number) Value() (driver.Value, error) {
	return num, nil
}
