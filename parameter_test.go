package orathin

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeValueTypeInference(t *testing.T) {
	conn := testConnection()
	cases := []struct {
		value interface{}
		want  OracleType
	}{
		{int64(5), NUMBER},
		{42, NUMBER},
		{3.5, NUMBER},
		{"text", NCHAR},
		{[]byte{1, 2}, RAW},
		{time.Now(), TimeStampTZ_DTY},
		{time.Minute, IntervalDS_DTY},
		{true, NUMBER},
	}
	for _, c := range cases {
		par := ParameterInfo{Direction: Input}
		require.NoError(t, par.encodeValue(c.value, 0, conn))
		assert.Equal(t, c.want, par.DataType, "%T", c.value)
		assert.NotNil(t, par.BValue)
	}
}

func TestEncodeValueNilKeepsInferredType(t *testing.T) {
	conn := testConnection()
	par := ParameterInfo{Direction: Input}
	require.NoError(t, par.encodeValue(int64(5), 0, conn))
	require.NoError(t, par.encodeValue(nil, 0, conn))
	assert.Equal(t, NUMBER, par.DataType)
	assert.Nil(t, par.BValue)
}

func TestEncodeValueWidening(t *testing.T) {
	conn := testConnection()
	par := ParameterInfo{Direction: Input}
	require.NoError(t, par.encodeValue("ab", 0, conn))
	firstMax := par.MaxCharLen
	par.widen(4000)
	assert.GreaterOrEqual(t, par.MaxCharLen, 4000)
	assert.GreaterOrEqual(t, par.MaxCharLen, firstMax)
}

func TestRowIDEncoding(t *testing.T) {
	// the textual rowid is 18 base64 characters
	out := encodeRowID(0x12345, 2, 0x200, 5)
	assert.Len(t, out, 18)
	assert.Equal(t, "AAASNF", out[:6])
}

type fakeReader struct {
	data []byte
	pos  int
}

func (f *fakeReader) GetByte() (uint8, error) {
	b := f.data[f.pos]
	f.pos++
	return b, nil
}

func (f *fakeReader) GetInt64(size int, compress bool, bigEndian bool) (int64, error) {
	if compress {
		n := int(f.data[f.pos])
		f.pos++
		var out int64
		for i := 0; i < n; i++ {
			out = out<<8 | int64(f.data[f.pos])
			f.pos++
		}
		return out, nil
	}
	var out int64
	for i := 0; i < size; i++ {
		out = out<<8 | int64(f.data[f.pos])
		f.pos++
	}
	return out, nil
}

func TestReadRowIDZeroIsEmpty(t *testing.T) {
	// all-zero physical rowid decodes to no rowid at all
	reader := &fakeReader{data: []byte{0, 0, 0, 0, 0}}
	out, err := readRowID(reader)
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestColumnTypeNames(t *testing.T) {
	assert.Equal(t, "NUMBER", columnTypeName(ParameterInfo{DataType: NUMBER}))
	assert.Equal(t, "VARCHAR2", columnTypeName(ParameterInfo{DataType: NCHAR, CharsetForm: 1}))
	assert.Equal(t, "NVARCHAR2", columnTypeName(ParameterInfo{DataType: NCHAR, CharsetForm: 2}))
	assert.Equal(t, "JSON", columnTypeName(ParameterInfo{DataType: OCIBlobLocator, IsJson: true}))
	assert.Equal(t, "BLOB", columnTypeName(ParameterInfo{DataType: OCIBlobLocator}))
	assert.Equal(t, "TIMESTAMP WITH TIME ZONE", columnTypeName(ParameterInfo{DataType: TimeStampTZ}))
	assert.Equal(t, "VECTOR", columnTypeName(ParameterInfo{DataType: VECTOR}))
}
