package orathin

import (
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"time"

	"github.com/orathin/orathin/converters"
)

const (
	maxLenNumber  = 22
	maxLenDate    = 7
	maxLenTSTZ    = 13
	maxLenRowID   = 18
	defaultStrLen = 32767
)

func (par *ParameterInfo) setForNumber() {
	par.DataType = NUMBER
	par.MaxLen = maxLenNumber
	par.ContFlag = 0
	par.CharsetForm = 0
	par.CharsetID = 0
}

func (par *ParameterInfo) setForTime() {
	par.DataType = TimeStampTZ_DTY
	par.MaxLen = maxLenTSTZ
	par.ContFlag = 0
	par.CharsetForm = 0
	par.CharsetID = 0
}

func (par *ParameterInfo) setForString(conn *Connection, size int) {
	par.DataType = NCHAR
	par.ContFlag = 16
	par.CharsetForm = 1
	par.CharsetID = conn.getDefaultCharsetID()
	if size > par.MaxCharLen {
		par.MaxCharLen = size
	}
	if par.MaxCharLen == 0 {
		par.MaxCharLen = defaultStrLen
	}
}

func (par *ParameterInfo) setForRaw(size int) {
	par.DataType = RAW
	par.ContFlag = 0
	par.CharsetForm = 0
	par.CharsetID = 0
	if size > par.MaxLen {
		par.MaxLen = size
	}
}

func (par *ParameterInfo) setForRefCursor() {
	par.DataType = REFCURSOR
	par.BValue = nil
	par.MaxCharLen = 0
	par.MaxLen = 1
	par.CharsetForm = 0
}

func (par *ParameterInfo) encodeInt(value int64) {
	par.setForNumber()
	par.BValue = converters.EncodeInt64(value)
}

func (par *ParameterInfo) encodeFloat(value float64) error {
	par.setForNumber()
	temp, err := converters.EncodeDouble(value)
	if err != nil {
		return err
	}
	par.BValue = temp
	return nil
}

func (par *ParameterInfo) encodeString(conn *Connection, value string, size int) {
	converter := conn.getStrConv(par.CharsetID)
	par.BValue = converter.Encode(value)
	if size == 0 {
		size = len([]rune(value))
	}
	par.setForString(conn, size)
	if len(par.BValue) > par.MaxLen {
		par.MaxLen = len(par.BValue)
	}
	if par.MaxLen == 0 {
		par.MaxLen = 1
	}
}

func (par *ParameterInfo) encodeTime(value time.Time) {
	par.setForTime()
	par.BValue = converters.EncodeTimeStamp(value, true)
}

func (par *ParameterInfo) encodeRaw(value []byte, size int) {
	par.BValue = value
	par.setForRaw(len(value))
	if size > par.MaxLen {
		par.MaxLen = size
	}
	if par.MaxLen == 0 {
		par.MaxLen = 1
	}
}

// encodeValue infers the wire type from the Go value and encodes it.
// The first non-null element of a bind decides the type; later values
// must convert or the server rejects the batch.
func (par *ParameterInfo) encodeValue(val driver.Value, size int, conn *Connection) error {
	par.Value = val
	par.iPrimValue = val
	if val == nil {
		// keep a previously inferred type, a null NCHAR otherwise
		if par.DataType == 0 {
			par.DataType = NCHAR
			par.MaxCharLen = 1
			par.MaxLen = 1
			par.CharsetForm = 1
			par.CharsetID = conn.getDefaultCharsetID()
		}
		par.BValue = nil
		return nil
	}
	switch value := val.(type) {
	case int:
		par.encodeInt(int64(value))
	case int8:
		par.encodeInt(int64(value))
	case int16:
		par.encodeInt(int64(value))
	case int32:
		par.encodeInt(int64(value))
	case int64:
		par.encodeInt(value)
	case uint:
		par.setForNumber()
		par.BValue = converters.EncodeUint64(uint64(value))
	case uint64:
		par.setForNumber()
		par.BValue = converters.EncodeUint64(value)
	case float32:
		return par.encodeFloat(float64(value))
	case float64:
		return par.encodeFloat(value)
	case bool:
		// PL/SQL boolean rides as NUMBER 0/1 in the thin path
		if value {
			par.encodeInt(1)
		} else {
			par.encodeInt(0)
		}
	case string:
		par.encodeString(conn, value, size)
	case []byte:
		par.encodeRaw(value, size)
	case time.Time:
		par.encodeTime(value)
	case time.Duration:
		par.DataType = IntervalDS_DTY
		par.MaxLen = 11
		par.BValue = converters.EncodeIntervalDS(value)
	case Number:
		par.setForNumber()
		par.BValue = value.data
	case *Number:
		par.setForNumber()
		par.BValue = value.data
	case Vector:
		return par.encodeVector(conn, &value)
	case *Vector:
		return par.encodeVector(conn, value)
	case Json:
		return par.encodeJson(conn, &value)
	case *Json:
		return par.encodeJson(conn, value)
	case Clob:
		par.DataType = OCIClobLocator
		par.CharsetForm = 1
		par.CharsetID = conn.getDefaultCharsetID()
		par.MaxLen = len(value.locator)
		par.BValue = value.locator
	case Blob:
		par.DataType = OCIBlobLocator
		par.MaxLen = len(value.locator)
		par.BValue = value.locator
	case *RefCursor:
		par.setForRefCursor()
	case sql.NullString:
		if !value.Valid {
			return par.encodeValue(nil, size, conn)
		}
		par.encodeString(conn, value.String, size)
	case sql.NullInt64:
		if !value.Valid {
			return par.encodeValue(nil, size, conn)
		}
		par.encodeInt(value.Int64)
	case sql.NullFloat64:
		if !value.Valid {
			return par.encodeValue(nil, size, conn)
		}
		return par.encodeFloat(value.Float64)
	case sql.NullBool:
		if !value.Valid {
			return par.encodeValue(nil, size, conn)
		}
		return par.encodeValue(value.Bool, size, conn)
	case sql.NullTime:
		if !value.Valid {
			return par.encodeValue(nil, size, conn)
		}
		par.encodeTime(value.Time)
	case *DbObject:
		return par.encodeObject(conn, value)
	default:
		return fmt.Errorf("unsupported bind type %T", val)
	}
	return nil
}

func (par *ParameterInfo) encodeVector(conn *Connection, v *Vector) error {
	par.DataType = VECTOR
	par.MaxLen = 0x7FFFFFFF
	data, err := v.encode()
	if err != nil {
		return err
	}
	par.BValue = data
	return nil
}

func (par *ParameterInfo) encodeJson(conn *Connection, j *Json) error {
	par.DataType = JSON
	par.MaxLen = 0x7FFFFFFF
	data, err := j.encode()
	if err != nil {
		return err
	}
	par.BValue = data
	return nil
}

func (par *ParameterInfo) encodeObject(conn *Connection, obj *DbObject) error {
	if obj.objType == nil {
		return errors.New("object bind requires a resolved type")
	}
	par.DataType = XMLType
	par.cusType = &customType{objType: obj.objType}
	par.ToID = obj.objType.OID
	par.Version = obj.objType.Version
	data, err := obj.encode(conn)
	if err != nil {
		return err
	}
	par.BValue = data
	par.MaxLen = len(par.BValue)
	return nil
}

// decodeColumnValue reads one column of one row into oPrimValue.
func (par *ParameterInfo) decodeColumnValue(conn *Connection) error {
	session := conn.session
	if par.DataType == ROWID || par.DataType == UROWID {
		rowid, err := readRowID(session)
		if err != nil {
			return err
		}
		par.oPrimValue = rowid
		return nil
	}
	if par.DataType == OCIClobLocator || par.DataType == OCIBlobLocator {
		return par.decodeLobValue(conn)
	}
	if par.DataType == REFCURSOR {
		cursor := new(RefCursor)
		cursor.connection = conn
		cursor.autoClose = true
		if err := cursor.load(); err != nil {
			return err
		}
		par.oPrimValue = cursor
		return nil
	}
	maxSize := par.MaxLen
	if par.DataType == NCHAR || par.DataType == CHAR {
		maxSize = par.MaxCharLen
	}
	if maxSize == 0 {
		par.oPrimValue = nil
		par.IsNull = true
		return nil
	}
	data, err := session.GetClr()
	if err != nil {
		return err
	}
	return par.decodePrimValue(conn, data)
}

// decodePrimValue converts raw column bytes into the Go-side value per
// the column type and the NUMBER typing rule.
func (par *ParameterInfo) decodePrimValue(conn *Connection, data []byte) error {
	par.BValue = data
	if data == nil {
		par.oPrimValue = nil
		par.IsNull = true
		return nil
	}
	par.IsNull = false
	var err error
	switch par.DataType {
	case NCHAR, CHAR, LONG, LongVarChar, CHARZ, OCIString:
		converter := conn.getStrConv(par.CharsetID)
		par.oPrimValue = converter.Decode(data)
	case RAW, LongRaw, VarRaw:
		par.oPrimValue = data
	case NUMBER:
		par.oPrimValue, err = decodeNumberValue(data, par.Precision, par.Scale)
	case FLOAT, VarNum:
		par.oPrimValue = converters.DecodeDouble(data)
	case IBFloat:
		par.oPrimValue = converters.ConvertBinaryFloat(data)
	case IBDouble:
		par.oPrimValue = converters.ConvertBinaryDouble(data)
	case DATE, TIMESTAMP, TimeStampDTY, TimeStampLTZ_DTY, TimeStampeLTZ:
		par.oPrimValue, err = converters.DecodeDate(data)
	case TimeStampTZ, TimeStampTZ_DTY:
		par.oPrimValue, err = converters.DecodeDate(data)
	case IntervalDS, IntervalDS_DTY:
		par.oPrimValue, err = converters.DecodeIntervalDS(data)
	case VECTOR:
		v := new(Vector)
		if err = v.decode(data); err == nil {
			par.oPrimValue = v.Data
		}
	case JSON:
		j := new(Json)
		if err = j.decode(data); err == nil {
			par.oPrimValue = j.Value
		}
	case XMLType:
		if par.cusType != nil {
			obj := &DbObject{objType: par.cusType.objType}
			if err = obj.decode(conn, data); err == nil {
				par.oPrimValue = obj
			}
		} else {
			converter := conn.getStrConv(par.CharsetID)
			par.oPrimValue = converter.Decode(data)
		}
	case Boolean:
		par.oPrimValue = len(data) > 0 && data[len(data)-1] == 1
	default:
		par.oPrimValue = data
	}
	if err != nil {
		return err
	}
	if par.converter != nil {
		par.oPrimValue, err = par.converter(par.oPrimValue)
	}
	return err
}

func (par *ParameterInfo) decodeLobValue(conn *Connection) error {
	session := conn.session
	maxSize, err := session.GetInt(4, true, true)
	if err != nil {
		return err
	}
	if maxSize == 0 {
		par.oPrimValue = nil
		par.IsNull = true
		return nil
	}
	size, err := session.GetInt64(8, true, true)
	if err != nil {
		return err
	}
	chunkSize, err := session.GetInt(4, true, true)
	if err != nil {
		return err
	}
	locator, err := session.GetClr()
	if err != nil {
		return err
	}
	lob := Lob{
		connection:    conn,
		sourceLocator: locator,
		sourceLen:     len(locator),
		size:          size,
		chunkSize:     chunkSize,
		charsetID:     par.CharsetID,
	}
	if par.DataType == OCIClobLocator {
		par.oPrimValue = &Clob{locator: locator, lob: lob, Valid: true}
	} else {
		par.oPrimValue = &Blob{locator: locator, lob: lob, Valid: true}
	}
	return nil
}

// decodeNumberValue applies the precision/scale rule: scale 0 with
// precision up to 18 fetches int64; an unconstrained NUMBER holding an
// integral value inside the int64 range fetches int64; everything else
// float64.
func decodeNumberValue(data []byte, precision, scale uint8) (driver.Value, error) {
	if scale == 0 && precision <= 18 && precision != 0 {
		return converters.DecodeInt(data), nil
	}
	if scale == 0xFF {
		// unconstrained: integral values come back as int64 when exact
		str, err := converters.DecodeNumberString(data)
		if err != nil {
			return nil, err
		}
		digits, limit := str, "9223372036854775807"
		if len(digits) > 0 && digits[0] == '-' {
			digits = digits[1:]
		}
		if isIntegralLiteral(str) && (len(digits) < 19 || (len(digits) == 19 && digits <= limit)) {
			return converters.DecodeInt(data), nil
		}
		return converters.DecodeDouble(data), nil
	}
	return converters.DecodeDouble(data), nil
}

func isIntegralLiteral(str string) bool {
	for _, c := range str {
		if c == '.' || c == 'e' || c == 'E' {
			return false
		}
	}
	return true
}

func readRowID(session sessionReader) (string, error) {
	rba, err := session.GetInt64(4, true, true)
	if err != nil {
		return "", err
	}
	partitionID, err := session.GetInt64(2, true, true)
	if err != nil {
		return "", err
	}
	if _, err = session.GetByte(); err != nil {
		return "", err
	}
	blockNum, err := session.GetInt64(4, true, true)
	if err != nil {
		return "", err
	}
	slotNum, err := session.GetInt64(2, true, true)
	if err != nil {
		return "", err
	}
	if rba == 0 && partitionID == 0 && blockNum == 0 && slotNum == 0 {
		return "", nil
	}
	return encodeRowID(rba, partitionID, blockNum, slotNum), nil
}

const rowidAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789+/"

func base64RowID(val int64, size int) string {
	output := make([]byte, size)
	for i := size - 1; i >= 0; i-- {
		output[i] = rowidAlphabet[val&0x3F]
		val >>= 6
	}
	return string(output)
}

func encodeRowID(rba, partitionID, blockNum, slotNum int64) string {
	return base64RowID(rba, 6) + base64RowID(partitionID, 3) +
		base64RowID(blockNum, 6) + base64RowID(slotNum, 3)
}

// widen grows a char/raw buffer in place up to the negotiated maximum
// when a later array element exceeds the inferred size.
func (par *ParameterInfo) widen(size int) {
	if size > par.MaxCharLen {
		par.MaxCharLen = size
	}
	if size > par.MaxLen {
		par.MaxLen = size
	}
	if par.MaxLen > 0x7FFFFFFF {
		par.MaxLen = 0x7FFFFFFF
	}
}

// sessionReader is the subset of the session the rowid decoder needs;
// it keeps the codec testable without a socket.
type sessionReader interface {
	GetByte() (uint8, error)
	GetInt64(size int, compress bool, bigEndian bool) (int64, error)
}
