package converters

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeInt64Canonical(t *testing.T) {
	// byte patterns fixed by the wire format
	assert.Equal(t, []byte{0x80}, EncodeInt64(0))
	assert.Equal(t, []byte{0xC1, 0x02}, EncodeInt64(1))
	assert.Equal(t, []byte{0xC1, 0x06}, EncodeInt64(5))
	assert.Equal(t, []byte{0xC2, 0x02}, EncodeInt64(100))
	assert.Equal(t, []byte{0x3D, 0x64, 0x66}, EncodeInt64(-100))
	assert.Equal(t, []byte{0x3E, 0x64, 0x66}, EncodeInt64(-1))
}

func TestIntRoundTrip(t *testing.T) {
	values := []int64{0, 1, -1, 7, -7, 99, 100, 101, -100, 9999, -9999,
		123456789, -123456789, 1<<62 - 1, -(1 << 62)}
	for _, v := range values {
		assert.Equal(t, v, DecodeInt(EncodeInt64(v)), "value %d", v)
	}
}

func TestNumberStringCanonical(t *testing.T) {
	data, err := EncodeNumberString("7.1")
	require.NoError(t, err)
	assert.Equal(t, []byte{0xC1, 0x08, 0x0B}, data)

	data, err = EncodeNumberString("0.01")
	require.NoError(t, err)
	assert.Equal(t, []byte{0xC0, 0x02}, data)

	data, err = EncodeNumberString("0.1")
	require.NoError(t, err)
	assert.Equal(t, []byte{0xC0, 0x0B}, data)
}

func TestNumberStringRoundTrip(t *testing.T) {
	values := []string{
		"0", "1", "-1", "7.1", "-7.1", "0.01", "-0.01", "100", "-100",
		"123.456", "-123.456", "0.000001234", "98765432109876543210",
		"-98765432109876543210", "3.14159265358979", "21.3",
	}
	for _, v := range values {
		data, err := EncodeNumberString(v)
		require.NoError(t, err, v)
		out, err := DecodeNumberString(data)
		require.NoError(t, err, v)
		assert.Equal(t, v, out, "value %s", v)
	}
}

func TestNumberPrecisionArithmetic(t *testing.T) {
	// 7.1 fetched as exact decimal text keeps 7.1 * 3 == 21.3 exact
	data, err := EncodeNumberString("7.1")
	require.NoError(t, err)
	str, err := DecodeNumberString(data)
	require.NoError(t, err)
	require.Equal(t, "7.1", str)
}

func TestDoubleRoundTrip(t *testing.T) {
	values := []float64{0, 1, -1, 0.5, -0.5, 3.25, 1e10, -1e10, 1.5e-10, 123456.789}
	for _, v := range values {
		data, err := EncodeDouble(v)
		require.NoError(t, err)
		assert.Equal(t, v, DecodeDouble(data), "value %v", v)
	}
}

func TestDateRoundTrip(t *testing.T) {
	values := []time.Time{
		time.Date(1, 1, 1, 0, 0, 0, 0, time.UTC),
		time.Date(1969, 7, 20, 20, 17, 40, 0, time.UTC),
		time.Date(2024, 2, 29, 23, 59, 59, 0, time.UTC),
		time.Date(9999, 12, 31, 23, 59, 59, 0, time.UTC),
	}
	for _, v := range values {
		data := EncodeDate(v)
		require.Len(t, data, 7)
		out, err := DecodeDate(data)
		require.NoError(t, err)
		assert.True(t, v.Equal(out), "value %v decoded %v", v, out)
	}
}

func TestTimeStampTZRoundTrip(t *testing.T) {
	loc := time.FixedZone("", 5*3600+30*60)
	values := []time.Time{
		time.Date(2020, 6, 15, 12, 30, 45, 123456789, loc),
		time.Date(2020, 6, 15, 12, 30, 45, 123456789, time.FixedZone("", -8*3600)),
		time.Date(1988, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	for _, v := range values {
		data := EncodeTimeStamp(v, true)
		require.Len(t, data, 13)
		out, err := DecodeDate(data)
		require.NoError(t, err)
		assert.True(t, v.Equal(out), "value %v decoded %v", v, out)
		_, wantOff := v.Zone()
		_, gotOff := out.Zone()
		assert.Equal(t, wantOff, gotOff)
	}
}

func TestBinaryFloatRoundTrip(t *testing.T) {
	for _, v := range []float32{0, 1.5, -1.5, 3.14, -1e10} {
		assert.Equal(t, v, ConvertBinaryFloat(EncodeBinaryFloat(v)))
	}
	for _, v := range []float64{0, 1.5, -2.25, 2.718281828, 1e300} {
		assert.Equal(t, v, ConvertBinaryDouble(EncodeBinaryDouble(v)))
	}
}

func TestIntervalDSRoundTrip(t *testing.T) {
	values := []time.Duration{
		0,
		time.Second,
		-time.Second,
		36*time.Hour + 12*time.Minute + 3*time.Second + 500*time.Millisecond,
		-(72*time.Hour + 1),
	}
	for _, v := range values {
		out, err := DecodeIntervalDS(EncodeIntervalDS(v))
		require.NoError(t, err)
		assert.Equal(t, v, out, "value %v", v)
	}
}
