package orathin

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNumberRoundTrip(t *testing.T) {
	for _, s := range []string{"0", "1", "-1", "7.1", "21.3", "0.001",
		"-99999999999999999999999999999999999999", "123456789.987654321"} {
		num, err := NewNumberFromString(s)
		require.NoError(t, err, s)
		out, err := num.String()
		require.NoError(t, err, s)
		assert.Equal(t, s, out)
	}
}

func TestNumberZeroEncoding(t *testing.T) {
	num := NewNumberFromInt64(0)
	assert.Equal(t, []byte{0x80}, num.Bytes())
}

func TestNumberConversions(t *testing.T) {
	num := NewNumberFromInt64(1234567890123456789)
	v, err := num.Int64()
	require.NoError(t, err)
	assert.Equal(t, int64(1234567890123456789), v)

	fnum, err := NewNumberFromFloat(2.5)
	require.NoError(t, err)
	f, err := fnum.Float64()
	require.NoError(t, err)
	assert.Equal(t, 2.5, f)

	unum := NewNumberFromUint64(18446744073709551615)
	u, err := unum.Uint64()
	require.NoError(t, err)
	assert.Equal(t, uint64(18446744073709551615), u)
}

func TestNumberScan(t *testing.T) {
	var num Number
	require.NoError(t, num.Scan("42.5"))
	s, err := num.String()
	require.NoError(t, err)
	assert.Equal(t, "42.5", s)
	require.NoError(t, num.Scan(int64(7)))
	v, err := num.Int64()
	require.NoError(t, err)
	assert.Equal(t, int64(7), v)
}
