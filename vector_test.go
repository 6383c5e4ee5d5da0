package orathin

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVectorFloat32RoundTrip(t *testing.T) {
	v, err := NewVector([]float32{1.5, -2.25, 0, 3.75})
	require.NoError(t, err)
	data, err := v.encode()
	require.NoError(t, err)
	assert.Equal(t, byte(vectorMagic), data[0])

	out := new(Vector)
	require.NoError(t, out.decode(data))
	assert.Equal(t, []float32{1.5, -2.25, 0, 3.75}, out.Data)
	assert.Equal(t, 4, out.Count)
}

func TestVectorFloat64RoundTrip(t *testing.T) {
	v, err := NewVector([]float64{3.141592653589793, -1e100})
	require.NoError(t, err)
	data, err := v.encode()
	require.NoError(t, err)
	out := new(Vector)
	require.NoError(t, out.decode(data))
	assert.Equal(t, []float64{3.141592653589793, -1e100}, out.Data)
}

func TestVectorInt8RoundTrip(t *testing.T) {
	v, err := NewVector([]uint8{0, 1, 127, 255})
	require.NoError(t, err)
	data, err := v.encode()
	require.NoError(t, err)
	out := new(Vector)
	require.NoError(t, out.decode(data))
	assert.Equal(t, []uint8{0, 1, 127, 255}, out.Data)
}

func TestVectorRejectsUnknownInput(t *testing.T) {
	_, err := NewVector("not a vector")
	assert.ErrorIs(t, err, ErrInvalidVectorFormat)
}

func TestVectorNilDecode(t *testing.T) {
	v := new(Vector)
	require.NoError(t, v.decode(nil))
	assert.Nil(t, v.Data)
	assert.Zero(t, v.Count)
}

func TestVectorBadMagic(t *testing.T) {
	v := new(Vector)
	assert.ErrorIs(t, v.decode([]byte{1, 2, 3}), ErrInvalidVectorFormat)
}

func TestVectorNormalizationFlag(t *testing.T) {
	v, err := NewVector([]float32{1, 0})
	require.NoError(t, err)
	v.flag |= vectorFlagNormalize
	data, err := v.encode()
	require.NoError(t, err)
	out := new(Vector)
	require.NoError(t, out.decode(data))
	assert.True(t, out.IsNormalized())
}
