package orathin

import (
	"bytes"
	"database/sql/driver"
	"encoding/binary"
	"fmt"

	"github.com/orathin/orathin/converters"
)

// vector wire format markers
const (
	vectorMagic   = 219
	vectorVersion = 0

	vectorFormatFloat32 = 2
	vectorFormatFloat64 = 3
	vectorFormatInt8    = 4

	vectorFlagCount8    = 0x01
	vectorFlagCount32   = 0x02
	vectorFlagNormValue = 0x10
	vectorFlagNormalize = 0x20
)

// Vector carries a 23ai VECTOR value: f32, f64 or i8 payload with the
// optional L2-normalization flag.
type Vector struct {
	version int
	format  int
	flag    int
	Count   int
	Data    interface{}
}

// NewVector builds a vector from a supported array type: []uint8,
// []float32 or []float64.
func NewVector(array interface{}) (*Vector, error) {
	v := new(Vector)
	v.flag = vectorFlagCount32 | vectorFlagNormValue
	switch value := array.(type) {
	case []uint8:
		v.format = vectorFormatInt8
		v.Count = len(value)
		v.Data = value
	case *[]uint8:
		v.format = vectorFormatInt8
		v.Count = len(*value)
		v.Data = *value
	case []float32:
		v.format = vectorFormatFloat32
		v.Count = len(value)
		v.Data = value
	case *[]float32:
		v.format = vectorFormatFloat32
		v.Count = len(*value)
		v.Data = *value
	case []float64:
		v.format = vectorFormatFloat64
		v.Count = len(value)
		v.Data = value
	case *[]float64:
		v.format = vectorFormatFloat64
		v.Count = len(*value)
		v.Data = *value
	default:
		return nil, ErrInvalidVectorFormat
	}
	return v, nil
}

// IsNormalized reports whether the stored payload is L2 normalized.
func (v *Vector) IsNormalized() bool {
	return v.flag&vectorFlagNormalize != 0
}

func (v *Vector) decode(value []byte) error {
	if len(value) == 0 {
		v.setNil()
		return nil
	}
	magicNumber, index, err := v.read(value, 0, 1)
	if err != nil {
		return err
	}
	if magicNumber != vectorMagic {
		return ErrInvalidVectorFormat
	}
	v.version, index, err = v.read(value, index, 1)
	if err != nil {
		return err
	}
	if v.version != vectorVersion {
		return fmt.Errorf("vector version (%d) not supported", v.version)
	}
	v.flag, index, err = v.read(value, index, 2)
	if err != nil {
		return err
	}
	v.format, index, err = v.read(value, index, 1)
	if err != nil {
		return err
	}
	if v.flag&vectorFlagCount8 > 0 {
		v.Count, index, err = v.read(value, index, 1)
	} else if v.flag&vectorFlagCount32 > 0 {
		v.Count, index, err = v.read(value, index, 4)
	} else {
		v.Count, index, err = v.read(value, index, 2)
	}
	if err != nil {
		return err
	}
	if v.flag&vectorFlagNormValue > 0 {
		rem := len(value) - index
		cnt := 8
		if cnt > rem {
			cnt = rem
		}
		index += cnt
	}
	switch v.format {
	case vectorFormatFloat32:
		elementSize := 4
		if index+v.Count*elementSize > len(value) {
			return ErrInvalidVectorFormat
		}
		data := make([]float32, 0, v.Count)
		for i := 0; i < v.Count; i++ {
			data = append(data, converters.DecodeFloat32(value[index:index+elementSize]))
			index += elementSize
		}
		v.Data = data
	case vectorFormatFloat64:
		elementSize := 8
		if index+v.Count*elementSize > len(value) {
			return ErrInvalidVectorFormat
		}
		data := make([]float64, 0, v.Count)
		for i := 0; i < v.Count; i++ {
			data = append(data, converters.DecodeFloat64(value[index:index+elementSize]))
			index += elementSize
		}
		v.Data = data
	case vectorFormatInt8:
		if index+v.Count > len(value) {
			return ErrInvalidVectorFormat
		}
		data := make([]uint8, 0, v.Count)
		for i := 0; i < v.Count; i++ {
			data = append(data, value[index])
			index++
		}
		v.Data = data
	default:
		return fmt.Errorf("unsupported vector format (%d)", v.format)
	}
	return nil
}

func (v *Vector) encode() ([]byte, error) {
	if v.flag == 0 || v.format == 0 || v.Data == nil {
		return nil, nil
	}
	buffer := new(bytes.Buffer)
	buffer.Write([]byte{vectorMagic, vectorVersion})
	if err := binary.Write(buffer, binary.BigEndian, uint16(v.flag)); err != nil {
		return nil, err
	}
	buffer.WriteByte(byte(v.format))
	if err := binary.Write(buffer, binary.BigEndian, uint32(v.Count)); err != nil {
		return nil, err
	}
	if v.flag&vectorFlagNormValue > 0 {
		buffer.Write(bytes.Repeat([]byte{0}, 8))
	}
	switch value := v.Data.(type) {
	case []uint8:
		buffer.Write(value)
	case []float32:
		for _, val := range value {
			buffer.Write(converters.EncodeFloat32(val))
		}
	case []float64:
		for _, val := range value {
			buffer.Write(converters.EncodeFloat64(val))
		}
	default:
		return nil, ErrInvalidVectorFormat
	}
	return buffer.Bytes(), nil
}

func (v *Vector) read(buffer []byte, index, length int) (result, idx int, err error) {
	result = -1
	idx = index + length
	if index+length > len(buffer) {
		err = ErrInvalidVectorFormat
		return
	}
	switch length {
	case 1:
		result = int(buffer[index])
	case 2:
		result = int(binary.BigEndian.Uint16(buffer[index : index+2]))
	case 4:
		result = int(binary.BigEndian.Uint32(buffer[index : index+4]))
	default:
		err = ErrInvalidVectorFormat
	}
	return
}

func (v *Vector) setNil() {
	v.format = 0
	v.flag = 0
	v.Count = 0
	v.Data = nil
}

func (v *Vector) Scan(input interface{}) error {
	if input == nil {
		v.setNil()
		return nil
	}
	switch value := input.(type) {
	case Vector:
		*v = value
	case *Vector:
		*v = *value
	case []byte:
		return v.decode(value)
	default:
		temp, err := NewVector(value)
		if err != nil {
			return err
		}
		*v = *temp
	}
	return nil
}

func (v Vector) Value() (driver.Value, error) {
	return v, nil
}
