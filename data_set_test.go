package orathin

import (
	"database/sql/driver"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func bufferedDataSet(rows []Row, cols []ParameterInfo) *DataSet {
	ds := &DataSet{columnCount: len(cols)}
	ds.cols = &cols
	ds.rows = rows
	return ds
}

func TestDataSetNextDrainsBuffer(t *testing.T) {
	cols := []ParameterInfo{{Name: "X"}, {Name: "Y"}}
	ds := bufferedDataSet([]Row{
		{int64(1), "a"},
		{int64(2), "b"},
	}, cols)
	dest := make([]driver.Value, 2)
	require.NoError(t, ds.Next(dest))
	assert.Equal(t, int64(1), dest[0])
	require.NoError(t, ds.Next(dest))
	assert.Equal(t, "b", dest[1])
	assert.ErrorIs(t, ds.Next(dest), io.EOF)
}

func TestDataSetFetchHelpers(t *testing.T) {
	cols := []ParameterInfo{{Name: "X"}}
	ds := bufferedDataSet([]Row{{int64(1)}, {int64(2)}, {int64(3)}}, cols)
	row, err := ds.Fetchone()
	require.NoError(t, err)
	assert.Equal(t, Row{int64(1)}, row)
	rest, err := ds.Fetchmany(5)
	require.NoError(t, err)
	assert.Len(t, rest, 2)
	row, err = ds.Fetchone()
	require.NoError(t, err)
	assert.Nil(t, row)
}

func TestDataSetRowFactory(t *testing.T) {
	cols := []ParameterInfo{{Name: "X"}}
	ds := bufferedDataSet([]Row{{int64(21)}}, cols)
	ds.rowFactory = func(row Row) Row {
		out := make(Row, len(row))
		for i, v := range row {
			if n, ok := v.(int64); ok {
				out[i] = n * 2
			} else {
				out[i] = v
			}
		}
		return out
	}
	row, err := ds.Fetchone()
	require.NoError(t, err)
	assert.Equal(t, Row{int64(42)}, row)
}

func TestDataSetDescription(t *testing.T) {
	cols := []ParameterInfo{
		{Name: "ID", DataType: NUMBER, Precision: 5, Scale: 0, AllowNull: false},
		{Name: "NAME", DataType: NCHAR, CharsetForm: 1, MaxCharLen: 30, AllowNull: true},
		{Name: "RATIO", DataType: NUMBER, Precision: 38, Scale: 0xFF},
	}
	ds := bufferedDataSet(nil, cols)
	desc := ds.Description()
	require.Len(t, desc, 3)
	assert.Equal(t, "ID", desc[0].Name)
	assert.Equal(t, "NUMBER", desc[0].TypeName)
	assert.False(t, desc[0].Nullable)
	assert.Equal(t, "VARCHAR2", desc[1].TypeName)
	assert.True(t, desc[1].Nullable)
	// unconstrained scale surfaces as -127, the dictionary convention
	assert.Equal(t, -127, desc[2].Scale)
	assert.Equal(t, []string{"ID", "NAME", "RATIO"}, ds.Columns())
}

func TestDataSetBitVector(t *testing.T) {
	cols := []ParameterInfo{{}, {}, {}}
	ds := bufferedDataSet(nil, cols)
	ds.setBitVector([]byte{0b101})
	assert.True(t, cols[0].getDataFromServer)
	assert.False(t, cols[1].getDataFromServer)
	assert.True(t, cols[2].getDataFromServer)
	// empty vector means every column changed
	ds.setBitVector(nil)
	for i := range cols {
		assert.True(t, cols[i].getDataFromServer, "column %d", i)
	}
}
