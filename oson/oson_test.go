package oson

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func roundTrip(t *testing.T, value interface{}) interface{} {
	t.Helper()
	data, err := Encode(value)
	require.NoError(t, err)
	out, err := Decode(data)
	require.NoError(t, err)
	return out
}

func TestScalarRoundTrip(t *testing.T) {
	assert.Nil(t, roundTrip(t, nil))
	assert.Equal(t, true, roundTrip(t, true))
	assert.Equal(t, false, roundTrip(t, false))
	assert.Equal(t, int64(42), roundTrip(t, int64(42)))
	assert.Equal(t, int64(-42), roundTrip(t, int64(-42)))
	assert.Equal(t, 3.5, roundTrip(t, 3.5))
	assert.Equal(t, "hello", roundTrip(t, "hello"))
	assert.Equal(t, []byte{1, 2, 3}, roundTrip(t, []byte{1, 2, 3}))
}

func TestStringSizes(t *testing.T) {
	for _, n := range []int{0, 1, 255, 256, 65535, 65536, 64 * 1024} {
		s := strings.Repeat("x", n)
		assert.Equal(t, s, roundTrip(t, s), "length %d", n)
	}
}

func TestTimeRoundTrip(t *testing.T) {
	date := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, date, roundTrip(t, date))

	ts := time.Date(2024, 3, 1, 13, 14, 15, 123456789, time.UTC)
	assert.Equal(t, ts, roundTrip(t, ts))

	loc := time.FixedZone("", 2*3600)
	tstz := time.Date(2024, 3, 1, 13, 14, 15, 0, loc)
	out := roundTrip(t, tstz).(time.Time)
	assert.True(t, tstz.Equal(out))
	_, wantOff := tstz.Zone()
	_, gotOff := out.Zone()
	assert.Equal(t, wantOff, gotOff)

	d := 26*time.Hour + 3*time.Minute + 4*time.Second + 5*time.Nanosecond
	assert.Equal(t, d, roundTrip(t, d))
}

func TestObjectArrayRoundTrip(t *testing.T) {
	value := map[string]interface{}{
		"name":   "widget",
		"count":  int64(3),
		"price":  19.99,
		"active": true,
		"tags":   []interface{}{"a", "b", nil},
		"nested": map[string]interface{}{
			"deep": []interface{}{int64(1), int64(2)},
		},
	}
	assert.Equal(t, value, roundTrip(t, value))
}

func TestDeepNesting(t *testing.T) {
	// depth 32 passes, deeper fails
	var build func(depth int) interface{}
	build = func(depth int) interface{} {
		if depth == 0 {
			return int64(1)
		}
		return []interface{}{build(depth - 1)}
	}
	v := build(MaxDepth)
	assert.Equal(t, v, roundTrip(t, v))

	_, err := Encode(build(MaxDepth + 1))
	assert.ErrorIs(t, err, ErrTooDeep)
}

func TestDeterministicEncoding(t *testing.T) {
	value := map[string]interface{}{"b": int64(2), "a": int64(1), "c": int64(3)}
	first, err := Encode(value)
	require.NoError(t, err)
	second, err := Encode(value)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestMalformedInputs(t *testing.T) {
	_, err := Decode(nil)
	assert.ErrorIs(t, err, ErrMalformed)
	_, err = Decode([]byte{0xFF, 0x4A, 0x5A, 9, 0, 0, typeNull})
	assert.Error(t, err) // unsupported version
	_, err = Decode([]byte{0xFF, 0x4A, 0x5A, 1, 0, 0, typeString32, 0xFF, 0xFF, 0xFF, 0xFF})
	assert.Error(t, err) // truncated payload
}
