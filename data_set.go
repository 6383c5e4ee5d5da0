package orathin

import (
	"database/sql/driver"
	"errors"
	"io"

	"github.com/orathin/orathin/network"
	"github.com/orathin/orathin/trace"
)

// compile-time interface checks
var _ = driver.Rows((*DataSet)(nil))
var _ = driver.RowsColumnTypeDatabaseTypeName((*DataSet)(nil))
var _ = driver.RowsColumnTypeLength((*DataSet)(nil))
var _ = driver.RowsColumnTypeNullable((*DataSet)(nil))
var _ = driver.RowsColumnTypePrecisionScale((*DataSet)(nil))

type Row []driver.Value

// RowFactory transforms each fetched row before delivery.
type RowFactory func(row Row) Row

// DataSet buffers fetched rows and feeds them out one at a time. It
// lives between the fetch arithmetic in Stmt and the application's
// scan loop.
type DataSet struct {
	columnCount     int
	rowCount        int
	uACBufferLength int
	maxRowSize      int
	cols            *[]ParameterInfo
	rows            []Row
	currentRow      Row
	lasterr         error
	index           int
	parent          *defaultStmt
	rowFactory      RowFactory
}

// load reads the row-header block (message 6): column count, row count
// and the bit vector naming which columns changed since the last row.
func (dataSet *DataSet) load(session *network.Session) error {
	if _, err := session.GetByte(); err != nil {
		return err
	}
	columnCount, err := session.GetInt(2, true, true)
	if err != nil {
		return err
	}
	num, err := session.GetInt(4, true, true)
	if err != nil {
		return err
	}
	columnCount += num * 0x100
	if columnCount > dataSet.columnCount {
		dataSet.columnCount = columnCount
	}
	if len(dataSet.currentRow) != dataSet.columnCount {
		dataSet.currentRow = make(Row, dataSet.columnCount)
	}
	dataSet.rowCount, err = session.GetInt(4, true, true)
	if err != nil {
		return err
	}
	dataSet.uACBufferLength, err = session.GetInt(2, true, true)
	if err != nil {
		return err
	}
	bitVector, err := session.GetDlc()
	if err != nil {
		return err
	}
	dataSet.setBitVector(bitVector)
	_, err = session.GetDlc()
	return err
}

// setBitVector marks which columns carry fresh data in the next row;
// an empty vector means all of them.
func (dataSet *DataSet) setBitVector(bitVector []byte) {
	if dataSet.cols == nil {
		return
	}
	cols := *dataSet.cols
	if len(bitVector) > 0 {
		for x := 0; x < len(bitVector); x++ {
			for i := 0; i < 8; i++ {
				if (x*8)+i < dataSet.columnCount && (x*8)+i < len(cols) {
					cols[(x*8)+i].getDataFromServer = bitVector[x]&(1<<i) > 0
				}
			}
		}
	} else {
		for x := 0; x < len(cols); x++ {
			cols[x].getDataFromServer = true
		}
	}
}

func (dataSet *DataSet) Close() error {
	if dataSet.parent != nil {
		return dataSet.parent.releaseDataSet(dataSet)
	}
	return nil
}

// Next implements driver.Rows: refill from the server when the local
// buffer drains and the cursor still has rows.
func (dataSet *DataSet) Next(dest []driver.Value) error {
	if dataSet.lasterr != nil {
		return dataSet.lasterr
	}
	if dataSet.index >= len(dataSet.rows) {
		if dataSet.parent == nil || !dataSet.parent.hasMoreRows() {
			return io.EOF
		}
		dataSet.rows = dataSet.rows[:0]
		dataSet.index = 0
		if err := dataSet.parent.fetch(dataSet); err != nil {
			dataSet.lasterr = err
			return err
		}
		if len(dataSet.rows) == 0 {
			return io.EOF
		}
	}
	row := dataSet.rows[dataSet.index]
	if dataSet.rowFactory != nil {
		row = dataSet.rowFactory(row)
	}
	for i := range dest {
		if i < len(row) {
			dest[i] = row[i]
		} else {
			dest[i] = nil
		}
	}
	dataSet.index++
	return nil
}

// Fetchone returns the next row, or nil at the end of the cursor.
func (dataSet *DataSet) Fetchone() (Row, error) {
	dest := make(Row, dataSet.columnCount)
	err := dataSet.Next(dest)
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return dest, nil
}

// Fetchmany returns up to count rows; fewer at the end of the cursor.
func (dataSet *DataSet) Fetchmany(count int) ([]Row, error) {
	var out []Row
	for count <= 0 || len(out) < count {
		row, err := dataSet.Fetchone()
		if err != nil {
			return out, err
		}
		if row == nil {
			break
		}
		out = append(out, row)
	}
	return out, nil
}

func (dataSet *DataSet) Fetchall() ([]Row, error) {
	return dataSet.Fetchmany(0)
}

func (dataSet *DataSet) Err() error {
	return dataSet.lasterr
}

func (dataSet *DataSet) Columns() []string {
	if dataSet.cols == nil || len(*dataSet.cols) == 0 {
		return nil
	}
	cols := *dataSet.cols
	ret := make([]string, len(cols))
	for i := range cols {
		ret[i] = cols[i].Name
	}
	return ret
}

// ColumnDescription mirrors the cursor description tuple: name, type,
// type name, internal size, precision, scale, nullable.
type ColumnDescription struct {
	Name      string
	Type      OracleType
	TypeName  string
	MaxLen    int
	Precision int
	Scale     int
	Nullable  bool
}

func (dataSet *DataSet) Description() []ColumnDescription {
	if dataSet.cols == nil {
		return nil
	}
	cols := *dataSet.cols
	out := make([]ColumnDescription, len(cols))
	for i, col := range cols {
		scale := int(col.Scale)
		if col.Scale == 0xFF {
			scale = -127
		}
		out[i] = ColumnDescription{
			Name:      col.Name,
			Type:      col.DataType,
			TypeName:  columnTypeName(col),
			MaxLen:    col.MaxLen,
			Precision: int(col.Precision),
			Scale:     scale,
			Nullable:  col.AllowNull,
		}
	}
	return out
}

func (dataSet *DataSet) Trace(t trace.Tracer) {
	for _, row := range dataSet.rows {
		if len(row) > 10 {
			row = row[:10]
		}
		t.Printf("Fetched Row: %v", row)
	}
}

func columnTypeName(col ParameterInfo) string {
	switch col.DataType {
	case NCHAR, CHAR:
		if col.CharsetForm == 2 {
			return "NVARCHAR2"
		}
		return "VARCHAR2"
	case NUMBER:
		return "NUMBER"
	case LONG, LongVarChar:
		return "LONG"
	case RAW, VarRaw:
		return "RAW"
	case LongRaw, LongVarRaw:
		return "LONG RAW"
	case DATE:
		return "DATE"
	case TIMESTAMP, TimeStampDTY:
		return "TIMESTAMP"
	case TimeStampTZ, TimeStampTZ_DTY:
		return "TIMESTAMP WITH TIME ZONE"
	case TimeStampeLTZ, TimeStampLTZ_DTY:
		return "TIMESTAMP WITH LOCAL TIME ZONE"
	case IntervalYM, IntervalYM_DTY:
		return "INTERVAL YEAR TO MONTH"
	case IntervalDS, IntervalDS_DTY:
		return "INTERVAL DAY TO SECOND"
	case OCIClobLocator:
		if col.CharsetForm == 2 {
			return "NCLOB"
		}
		return "CLOB"
	case OCIBlobLocator:
		if col.IsJson {
			return "JSON"
		}
		return "BLOB"
	case OCIFileLocator:
		return "BFILE"
	case IBFloat:
		return "BINARY_FLOAT"
	case IBDouble:
		return "BINARY_DOUBLE"
	case ROWID:
		return "ROWID"
	case UROWID:
		return "UROWID"
	case REFCURSOR:
		return "CURSOR"
	case XMLType:
		return col.TypeName
	case JSON:
		return "JSON"
	case VECTOR:
		return "VECTOR"
	case Boolean:
		return "BOOLEAN"
	default:
		return "OBJECT"
	}
}

func (dataSet *DataSet) ColumnTypeDatabaseTypeName(index int) string {
	if dataSet.cols == nil || index >= len(*dataSet.cols) {
		return ""
	}
	return columnTypeName((*dataSet.cols)[index])
}

func (dataSet *DataSet) ColumnTypeLength(index int) (int64, bool) {
	if dataSet.cols == nil || index >= len(*dataSet.cols) {
		return 0, false
	}
	col := (*dataSet.cols)[index]
	switch col.DataType {
	case NCHAR, CHAR, RAW:
		return int64(col.MaxCharLen), true
	}
	return 0, false
}

func (dataSet *DataSet) ColumnTypeNullable(index int) (nullable, ok bool) {
	if dataSet.cols == nil || index >= len(*dataSet.cols) {
		return false, false
	}
	return (*dataSet.cols)[index].AllowNull, true
}

func (dataSet *DataSet) ColumnTypePrecisionScale(index int) (int64, int64, bool) {
	if dataSet.cols == nil || index >= len(*dataSet.cols) {
		return 0, 0, false
	}
	col := (*dataSet.cols)[index]
	if col.DataType != NUMBER {
		return 0, 0, false
	}
	scale := int64(col.Scale)
	if col.Scale == 0xFF {
		scale = -127
	}
	return int64(col.Precision), scale, true
}
