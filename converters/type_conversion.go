package converters

import (
	"encoding/binary"
	"errors"
	"math"
	"strconv"
	"strings"
	"time"
)

// Oracle NUMBER wire form: 1 exponent byte (excess-64, high bit set for
// positive, one-complemented for negative) then up to 20 mantissa bytes,
// each a base-100 digit pair + 1. Negative numbers shorter than 21 bytes
// end with the 0x66 terminator. Zero is the single byte 0x80.

func encodeSign(input []byte, neg bool) []byte {
	if !neg {
		input[0] = uint8(int(input[0]) + 0x80 + 0x40 + 1)
		for x := 1; x < len(input); x++ {
			input[x] = input[x] + 1
		}
	} else {
		input[0] = 0xFF - uint8(int(input[0])+0x80+0x40+1)
		for x := 1; x < len(input); x++ {
			input[x] = uint8(101 - input[x])
		}
		if len(input) <= 20 {
			input = append(input, 102)
		}
	}
	return input
}

func decodeSign(input []byte) (out []byte, length int, neg bool) {
	if input[0] > 0x80 {
		length = int(input[0]) - 0x80 - 0x40
		for x := 1; x < len(input); x++ {
			input[x] = input[x] - 1
		}
		neg = false
	} else {
		length = 0xFF - int(input[0]) - 0x80 - 0x40
		if len(input) <= 21 && input[len(input)-1] == 102 {
			input = input[:len(input)-1]
		}
		for x := 1; x < len(input); x++ {
			input[x] = uint8(101 - input[x])
		}
		neg = true
	}
	out = input
	return
}

// DecodeInt decodes an integral NUMBER. Digits past the decimal point
// are discarded.
func DecodeInt(inputData []byte) int64 {
	input := make([]byte, len(inputData))
	copy(input, inputData)
	if len(input) == 0 || input[0] == 0x80 {
		return 0
	}
	input, length, neg := decodeSign(input)
	if length <= 0 {
		return 0
	}
	if length > len(input[1:]) {
		input = append(input, make([]byte, length-len(input[1:]))...)
	}
	data := input[1 : 1+length]
	var ret int64
	for x := 0; x < len(data); x++ {
		ret = (ret * 100) + int64(data[x])
	}
	if neg {
		return -ret
	}
	return ret
}

func EncodeInt64(val int64) []byte {
	if val == 0 {
		return []byte{0x80}
	}
	neg := val < 0
	output := make([]byte, 0, 20)
	for val != 0 {
		digit := val % 100
		if digit < 0 {
			digit = -digit
		}
		output = append(output, uint8(digit))
		val = val / 100
	}
	for i, j := 0, len(output)-1; i < j; i, j = i+1, j-1 {
		output[i], output[j] = output[j], output[i]
	}
	exp := uint8(len(output) - 1)
	length := len(output)
	for length > 1 && output[length-1] == 0 {
		length--
	}
	output = append([]byte{exp}, output[:length]...)
	return encodeSign(output, neg)
}

func EncodeInt(val int) []byte {
	return EncodeInt64(int64(val))
}

func EncodeUint64(val uint64) []byte {
	if val <= math.MaxInt64 {
		return EncodeInt64(int64(val))
	}
	return encodeDecimalDigits([]byte(strconv.FormatUint(val, 10)), 19, false)
}

// encodeDecimalDigits packs decimal digits whose first digit sits at
// base-10 position exp (so value = 0.digits * 10^(exp+1)).
func encodeDecimalDigits(mantissa []byte, exp int, negative bool) []byte {
	for len(mantissa) > 0 && mantissa[0] == '0' {
		mantissa = mantissa[1:]
		exp--
	}
	for len(mantissa) > 0 && mantissa[len(mantissa)-1] == '0' {
		mantissa = mantissa[:len(mantissa)-1]
	}
	if len(mantissa) == 0 {
		return []byte{0x80}
	}
	if exp%2 == 0 {
		mantissa = append([]byte{'0'}, mantissa...)
	}
	mantissaLen := len(mantissa)
	size := 1 + (mantissaLen+1)/2
	if negative && (mantissaLen+1)/2 < 20 {
		size++
	}
	data := make([]byte, size)
	for i := 0; i < mantissaLen; i += 2 {
		b := 10 * (mantissa[i] - '0')
		if i < mantissaLen-1 {
			b += mantissa[i+1] - '0'
		}
		if negative {
			b = 100 - b
		}
		data[1+i/2] = b + 1
	}
	if negative && (mantissaLen+1)/2 < 20 {
		data[len(data)-1] = 0x66
	}
	if exp < 0 {
		exp--
	}
	exp = (exp / 2) + 1
	if negative {
		data[0] = byte(exp+64) ^ 0x7F
	} else {
		data[0] = byte(exp+64) | 0x80
	}
	return data
}

// EncodeNumberString encodes a decimal literal (optional sign and
// fraction, optional e-notation) without a float64 round trip, so all
// 38 digits of precision survive.
func EncodeNumberString(val string) ([]byte, error) {
	mantissa := val
	if len(mantissa) == 0 {
		return nil, errors.New("empty number literal")
	}
	negative := mantissa[0] == '-'
	if negative || mantissa[0] == '+' {
		mantissa = mantissa[1:]
	}
	exp := 0
	if i := strings.IndexAny(mantissa, "eE"); i >= 0 {
		e, err := strconv.Atoi(mantissa[i+1:])
		if err != nil {
			return nil, errors.New("malformed exponent")
		}
		exp = e
		mantissa = mantissa[:i]
	}
	if i := strings.IndexByte(mantissa, '.'); i >= 0 {
		mantissa = mantissa[:i] + mantissa[i+1:]
		exp += i - 1
	} else {
		exp += len(mantissa) - 1
	}
	for _, c := range mantissa {
		if c < '0' || c > '9' {
			return nil, errors.New("malformed number literal")
		}
	}
	return encodeDecimalDigits([]byte(mantissa), exp, negative), nil
}

// DecodeNumberString renders a NUMBER payload as exact decimal text.
func DecodeNumberString(inputData []byte) (string, error) {
	input := make([]byte, len(inputData))
	copy(input, inputData)
	if len(input) == 0 {
		return "", errors.New("empty NUMBER payload")
	}
	if input[0] == 0x80 {
		return "0", nil
	}
	input, length, neg := decodeSign(input)
	data := input[1:]
	digits := make([]byte, 0, 40)
	for _, pair := range data {
		digits = append(digits, pair/10+'0', pair%10+'0')
	}
	exp := (length - len(data)) * 2
	out := string(digits)
	if len(out) > 1 {
		out = strings.TrimLeft(out, "0")
		if out == "" {
			out = "0"
		}
	}
	if exp > 0 {
		out += strings.Repeat("0", exp)
	} else if exp < 0 {
		pos := len(out) + exp
		if pos <= 0 {
			out = "0." + strings.Repeat("0", -pos) + out
		} else {
			out = out[:pos] + "." + out[pos:]
		}
		out = strings.TrimRight(out, "0")
		out = strings.TrimSuffix(out, ".")
	}
	if neg {
		out = "-" + out
	}
	return out, nil
}

// DecodeDouble converts a NUMBER to float64.
func DecodeDouble(inputData []byte) float64 {
	str, err := DecodeNumberString(inputData)
	if err != nil {
		return math.NaN()
	}
	ret, err := strconv.ParseFloat(str, 64)
	if err != nil {
		return math.NaN()
	}
	return ret
}

// EncodeDouble encodes a float64 via its shortest decimal form so that
// decode(encode(x)) == x for every representable x.
func EncodeDouble(num float64) ([]byte, error) {
	if num == 0.0 {
		return []byte{0x80}, nil
	}
	if math.IsNaN(num) || math.IsInf(num, 0) {
		return nil, errors.New("cannot encode NaN or Inf as NUMBER")
	}
	return EncodeNumberString(strconv.FormatFloat(num, 'e', -1, 64))
}

// DATE is 7 bytes: century+100, year%100+100, month, day, hour+1,
// minute+1, second+1. TIMESTAMP appends 4 bytes of nanoseconds.
// TIMESTAMP WITH TZ appends {tzHour+20, tzMin+60}, or a region id when
// the high bit of the tz hour byte is set.

func EncodeDate(ti time.Time) []byte {
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

func EncodeTimeStamp(ti time.Time, withTZ bool) []byte {
	output := EncodeDate(ti)
	output = append(output, 0, 0, 0, 0)
	binary.BigEndian.PutUint32(output[7:], uint32(ti.Nanosecond()))
	if withTZ {
		_, offset := ti.Zone()
		output = append(output,
			uint8(offset/3600+20),
			uint8((offset/60)%60+60))
	}
	return output
}

func DecodeDate(data []byte) (time.Time, error) {
	if len(data) < 7 {
		return time.Time{}, errors.New("abnormal DATE payload")
	}
	year := (int(data[0])-100)*100 + (int(data[1]) - 100)
	nanos := 0
	if len(data) >= 11 {
		nanos = int(binary.BigEndian.Uint32(data[7:11]))
	}
	if len(data) >= 13 {
		if data[11]&0x80 != 0 {
			// region-id zone; resolved by the session NLS layer, keep UTC here
			return time.Date(year, time.Month(data[2]), int(data[3]),
				int(data[4])-1, int(data[5])-1, int(data[6])-1, nanos, time.UTC), nil
		}
		tzHour := int(data[11]) - 20
		tzMin := int(data[12]) - 60
		loc := time.UTC
		if tzHour != 0 || tzMin != 0 {
			loc = time.FixedZone("", tzHour*3600+tzMin*60)
		}
		return time.Date(year, time.Month(data[2]), int(data[3]),
			int(data[4])-1, int(data[5])-1, int(data[6])-1, nanos, loc), nil
	}
	return time.Date(year, time.Month(data[2]), int(data[3]),
		int(data[4])-1, int(data[5])-1, int(data[6])-1, nanos, time.UTC), nil
}

// ConvertBinaryFloat decodes BINARY_FLOAT: IEEE-754 with the sign fold
// Oracle applies so byte order sorts numerically.
func ConvertBinaryFloat(bv []byte) float32 {
	u := binary.BigEndian.Uint32(bv)
	if u&0x80000000 != 0 {
		u &= 0x7FFFFFFF
	} else {
		u = ^u
	}
	return math.Float32frombits(u)
}

func ConvertBinaryDouble(bv []byte) float64 {
	u := binary.BigEndian.Uint64(bv)
	if u&0x8000000000000000 != 0 {
		u &= 0x7FFFFFFFFFFFFFFF
	} else {
		u = ^u
	}
	return math.Float64frombits(u)
}

func EncodeBinaryFloat(num float32) []byte {
	u := math.Float32bits(num)
	if u&0x80000000 == 0 {
		u |= 0x80000000
	} else {
		u = ^u
	}
	output := make([]byte, 4)
	binary.BigEndian.PutUint32(output, u)
	return output
}

func EncodeBinaryDouble(num float64) []byte {
	u := math.Float64bits(num)
	if u&0x8000000000000000 == 0 {
		u |= 0x8000000000000000
	} else {
		u = ^u
	}
	output := make([]byte, 8)
	binary.BigEndian.PutUint64(output, u)
	return output
}

// EncodeFloat32 / EncodeFloat64 carry plain big-endian IEEE floats; the
// VECTOR payload uses these, not the sign-folded forms.
func EncodeFloat32(num float32) []byte {
	output := make([]byte, 4)
	binary.BigEndian.PutUint32(output, math.Float32bits(num))
	return output
}

func EncodeFloat64(num float64) []byte {
	output := make([]byte, 8)
	binary.BigEndian.PutUint64(output, math.Float64bits(num))
	return output
}

func DecodeFloat32(bv []byte) float32 {
	return math.Float32frombits(binary.BigEndian.Uint32(bv))
}

func DecodeFloat64(bv []byte) float64 {
	return math.Float64frombits(binary.BigEndian.Uint64(bv))
}

// EncodeIntervalDS packs day-to-second intervals: days+0x80000000,
// hours/minutes/seconds +60, nanos+0x80000000.
func EncodeIntervalDS(d time.Duration) []byte {
	output := make([]byte, 11)
	days := int32(d / (time.Hour * 24))
	rem := d % (time.Hour * 24)
	binary.BigEndian.PutUint32(output, uint32(days)+0x80000000)
	output[4] = uint8(rem/time.Hour + 60)
	rem %= time.Hour
	output[5] = uint8(rem/time.Minute + 60)
	rem %= time.Minute
	output[6] = uint8(rem/time.Second + 60)
	rem %= time.Second
	binary.BigEndian.PutUint32(output[7:], uint32(rem)+0x80000000)
	return output
}

func DecodeIntervalDS(data []byte) (time.Duration, error) {
	if len(data) < 11 {
		return 0, errors.New("abnormal INTERVAL DS payload")
	}
	days := int64(int32(binary.BigEndian.Uint32(data) - 0x80000000))
	nanos := int64(int32(binary.BigEndian.Uint32(data[7:]) - 0x80000000))
	return time.Duration(days)*24*time.Hour +
		time.Duration(int64(data[4])-60)*time.Hour +
		time.Duration(int64(data[5])-60)*time.Minute +
		time.Duration(int64(data[6])-60)*time.Second +
		time.Duration(nanos), nil
}
