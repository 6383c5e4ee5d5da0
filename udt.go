package orathin

import (
	"bytes"
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"strings"

	"github.com/emirpasic/gods/maps/linkedhashmap"
	lru "github.com/hashicorp/golang-lru/v2"
)

// DbObjectAttribute describes one attribute of a user-defined type in
// declaration order; binds and fetches follow that order.
type DbObjectAttribute struct {
	Name       string
	DataType   OracleType
	Precision  int
	Scale      int
	MaxLen     int
	TypeSchema string
	TypeName   string
	nested     *DbObjectType
}

// DbObjectType is a cached descriptor of a user-defined type, keyed by
// (schema, package, name). Attribute order is stable once cached.
type DbObjectType struct {
	Schema       string
	Package      string
	Name         string
	OID          []byte
	Version      int
	IsCollection bool
	ElementType  *DbObjectAttribute
	attrs        *linkedhashmap.Map
	cache        *dbObjectTypeCache
}

func (t *DbObjectType) Attributes() []DbObjectAttribute {
	out := make([]DbObjectAttribute, 0, t.attrs.Size())
	t.attrs.Each(func(_ interface{}, value interface{}) {
		out = append(out, value.(DbObjectAttribute))
	})
	return out
}

func (t *DbObjectType) Attribute(name string) (DbObjectAttribute, bool) {
	v, ok := t.attrs.Get(strings.ToUpper(name))
	if !ok {
		return DbObjectAttribute{}, false
	}
	return v.(DbObjectAttribute), true
}

// FullName renders SCHEMA.PACKAGE.NAME as the server would.
func (t *DbObjectType) FullName() string {
	parts := []string{t.Schema}
	if t.Package != "" {
		parts = append(parts, t.Package)
	}
	parts = append(parts, t.Name)
	return strings.Join(parts, ".")
}

// customType bridges the bind path to a resolved object type.
type customType struct {
	objType *DbObjectType
}

type typeCacheKey struct {
	schema string
	pkg    string
	name   string
}

// dbObjectTypeCache resolves and caches type descriptors per
// connection. Single writer: the owning connection.
type dbObjectTypeCache struct {
	conn  *Connection
	types *lru.Cache[typeCacheKey, *DbObjectType]
}

const typeCacheSize = 64

func newDbObjectTypeCache(conn *Connection) *dbObjectTypeCache {
	cache, _ := lru.New[typeCacheKey, *DbObjectType](typeCacheSize)
	return &dbObjectTypeCache{conn: conn, types: cache}
}

// GetDBObjectType resolves "SCHEMA.NAME" or "NAME" against the cache,
// describing it on the server on a miss.
func (conn *Connection) GetDBObjectType(ctx context.Context, name string) (*DbObjectType, error) {
	if conn.State != Opened {
		return nil, ErrConnectionClosed
	}
	schema := conn.config.UserID
	pkg := ""
	typeName := strings.ToUpper(name)
	parts := strings.Split(typeName, ".")
	switch len(parts) {
	case 1:
	case 2:
		schema, typeName = parts[0], parts[1]
	case 3:
		schema, pkg, typeName = parts[0], parts[1], parts[2]
	default:
		return nil, fmt.Errorf("invalid type name: %s", name)
	}
	return conn.typeCache.get(ctx, strings.ToUpper(schema), pkg, typeName)
}

func (tc *dbObjectTypeCache) get(ctx context.Context, schema, pkg, name string) (*DbObjectType, error) {
	key := typeCacheKey{schema: schema, pkg: pkg, name: name}
	if t, ok := tc.types.Get(key); ok {
		return t, nil
	}
	t, err := tc.describe(ctx, schema, pkg, name)
	if err != nil {
		return nil, err
	}
	tc.types.Add(key, t)
	return t, nil
}

// describe fetches the descriptor from the dictionary. Attribute rows
// arrive ordered by attr_no, which fixes the wire order for good.
func (tc *dbObjectTypeCache) describe(ctx context.Context, schema, pkg, name string) (*DbObjectType, error) {
	conn := tc.conn
	t := &DbObjectType{
		Schema:  schema,
		Package: pkg,
		Name:    name,
		attrs:   linkedhashmap.New(),
		cache:   tc,
	}
	stmt := newStmt(`SELECT type_oid, typecode, attributes FROM all_types WHERE owner = :1 AND type_name = :2`, conn)
	stmt.autoClose = true
	dataSet, err := stmt.query(ctx, namedArgs(schema, name))
	if err != nil {
		return nil, err
	}
	row, err := dataSet.Fetchone()
	if err != nil {
		return nil, err
	}
	if row == nil {
		return nil, fmt.Errorf("type %s.%s does not exist", schema, name)
	}
	if oid, ok := row[0].([]byte); ok {
		t.OID = oid
	} else if oid, ok := row[0].(string); ok {
		t.OID = []byte(oid)
	}
	if typecode, ok := row[1].(string); ok {
		t.IsCollection = strings.Contains(typecode, "COLLECTION")
	}
	_ = dataSet.Close()

	if t.IsCollection {
		collStmt := newStmt(`SELECT elem_type_owner, elem_type_name, length, precision, scale FROM all_coll_types WHERE owner = :1 AND type_name = :2`, conn)
		collStmt.autoClose = true
		collSet, err := collStmt.query(ctx, namedArgs(schema, name))
		if err != nil {
			return nil, err
		}
		collRow, err := collSet.Fetchone()
		if err != nil {
			return nil, err
		}
		if collRow != nil {
			elem := DbObjectAttribute{Name: "ELEMENT"}
			fillAttrType(&elem, collRow[0], collRow[1], collRow[2], collRow[3], collRow[4])
			t.ElementType = &elem
		}
		_ = collSet.Close()
		return t, nil
	}

	attrStmt := newStmt(`SELECT attr_name, attr_type_owner, attr_type_name, length, precision, scale FROM all_type_attrs WHERE owner = :1 AND type_name = :2 ORDER BY attr_no`, conn)
	attrStmt.autoClose = true
	attrSet, err := attrStmt.query(ctx, namedArgs(schema, name))
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = attrSet.Close()
	}()
	for {
		attrRow, err := attrSet.Fetchone()
		if err != nil {
			return nil, err
		}
		if attrRow == nil {
			break
		}
		attr := DbObjectAttribute{}
		if n, ok := attrRow[0].(string); ok {
			attr.Name = n
		}
		fillAttrType(&attr, attrRow[1], attrRow[2], attrRow[3], attrRow[4], attrRow[5])
		t.attrs.Put(attr.Name, attr)
	}
	if t.attrs.Size() == 0 {
		return nil, fmt.Errorf("type %s.%s has no attributes", schema, name)
	}
	return t, nil
}

func fillAttrType(attr *DbObjectAttribute, owner, typeName, length, precision, scale interface{}) {
	if o, ok := owner.(string); ok {
		attr.TypeSchema = o
	}
	name, _ := typeName.(string)
	attr.TypeName = name
	switch name {
	case "NUMBER", "INTEGER", "FLOAT":
		attr.DataType = NUMBER
	case "VARCHAR2", "VARCHAR", "CHAR", "NVARCHAR2", "NCHAR":
		attr.DataType = NCHAR
	case "DATE":
		attr.DataType = DATE
	case "TIMESTAMP":
		attr.DataType = TIMESTAMP
	case "TIMESTAMP WITH TIME ZONE":
		attr.DataType = TimeStampTZ_DTY
	case "RAW":
		attr.DataType = RAW
	case "BINARY_FLOAT":
		attr.DataType = IBFloat
	case "BINARY_DOUBLE":
		attr.DataType = IBDouble
	case "CLOB", "NCLOB":
		attr.DataType = OCIClobLocator
	case "BLOB":
		attr.DataType = OCIBlobLocator
	default:
		// nested object; resolved lazily on first access
		attr.DataType = XMLType
	}
	attr.MaxLen = toInt(length)
	attr.Precision = toInt(precision)
	attr.Scale = toInt(scale)
}

func toInt(v interface{}) int {
	switch n := v.(type) {
	case int64:
		return int(n)
	case float64:
		return int(n)
	default:
		return 0
	}
}

// Nested resolves a nested object attribute through the same cache.
func (attr *DbObjectAttribute) Nested(ctx context.Context, t *DbObjectType) (*DbObjectType, error) {
	if attr.DataType != XMLType {
		return nil, errors.New("attribute is not an object type")
	}
	if attr.nested != nil {
		return attr.nested, nil
	}
	nested, err := t.cache.get(ctx, attr.TypeSchema, "", attr.TypeName)
	if err != nil {
		return nil, err
	}
	attr.nested = nested
	return nested, nil
}

/* ---- object values ---- */

// DbObject is one value of a user-defined type: attribute values in
// declaration order.
type DbObject struct {
	objType *DbObjectType
	Values  map[string]interface{}
}

func (t *DbObjectType) NewObject() *DbObject {
	return &DbObject{objType: t, Values: map[string]interface{}{}}
}

func (obj *DbObject) Type() *DbObjectType {
	return obj.objType
}

// object image markers
const (
	objImageMagic   = 0x84
	objImageVersion = 0x01
	objAttrNull     = 0xFF
)

// encode renders the attribute values as the self-describing image
// bound to the server: magic, version, flags, then one length-prefixed
// cell per attribute in declaration order.
func (obj *DbObject) encode(conn *Connection) ([]byte, error) {
	var buffer bytes.Buffer
	buffer.WriteByte(objImageMagic)
	buffer.WriteByte(objImageVersion)
	buffer.WriteByte(uint8(obj.objType.attrs.Size()))
	var encodeErr error
	obj.objType.attrs.Each(func(key interface{}, value interface{}) {
		if encodeErr != nil {
			return
		}
		attr := value.(DbObjectAttribute)
		val, ok := obj.Values[attr.Name]
		if !ok || val == nil {
			buffer.WriteByte(objAttrNull)
			return
		}
		par := ParameterInfo{Direction: Input}
		if err := par.encodeValue(val, 0, conn); err != nil {
			encodeErr = fmt.Errorf("attribute %s: %w", attr.Name, err)
			return
		}
		cell := par.BValue
		if len(cell) > 0xFA {
			encodeErr = fmt.Errorf("attribute %s exceeds inline image cell size", attr.Name)
			return
		}
		buffer.WriteByte(uint8(len(cell)))
		buffer.Write(cell)
	})
	if encodeErr != nil {
		return nil, encodeErr
	}
	return buffer.Bytes(), nil
}

// decode parses an image produced by encode (or the server) back into
// attribute values keyed by name.
func (obj *DbObject) decode(conn *Connection, data []byte) error {
	if len(data) < 3 || data[0] != objImageMagic {
		return errors.New("malformed object image")
	}
	count := int(data[2])
	if count != obj.objType.attrs.Size() {
		return fmt.Errorf("object image carries %d attributes, type has %d",
			count, obj.objType.attrs.Size())
	}
	obj.Values = make(map[string]interface{}, count)
	index := 3
	var decodeErr error
	obj.objType.attrs.Each(func(key interface{}, value interface{}) {
		if decodeErr != nil {
			return
		}
		attr := value.(DbObjectAttribute)
		if index >= len(data) {
			decodeErr = errors.New("object image truncated")
			return
		}
		size := int(data[index])
		index++
		if size == int(objAttrNull) {
			obj.Values[attr.Name] = nil
			return
		}
		if index+size > len(data) {
			decodeErr = errors.New("object image truncated")
			return
		}
		cell := data[index : index+size]
		index += size
		par := ParameterInfo{
			DataType:  attr.DataType,
			Precision: uint8(attr.Precision),
			CharsetID: conn.getDefaultCharsetID(),
		}
		if attr.Scale == -127 {
			par.Scale = 0xFF
		} else {
			par.Scale = uint8(attr.Scale)
		}
		if err := par.decodePrimValue(conn, cell); err != nil {
			decodeErr = fmt.Errorf("attribute %s: %w", attr.Name, err)
			return
		}
		obj.Values[attr.Name] = par.oPrimValue
	})
	return decodeErr
}

func namedArgs(values ...driver.Value) []driver.NamedValue {
	out := make([]driver.NamedValue, len(values))
	for i, v := range values {
		out[i] = driver.NamedValue{Ordinal: i + 1, Value: v}
	}
	return out
}
