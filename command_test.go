package orathin

import (
	"database/sql/driver"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orathin/orathin/configurations"
)

func testConnection() *Connection {
	conn, _ := NewConnectionFromConfig(configurations.DefaultConfig())
	conn.stmtCache = newStatementCache(conn, conn.config.StmtCacheSize)
	return conn
}

func TestStmtClassification(t *testing.T) {
	conn := testConnection()
	cases := []struct {
		text string
		want StmtType
	}{
		{"SELECT 1 FROM DUAL", SELECT},
		{"  select * from t", SELECT},
		{"WITH x AS (SELECT 1 FROM DUAL) SELECT * FROM x", SELECT},
		{"INSERT INTO t VALUES (:1)", DML},
		{"MERGE INTO t USING d ON (1=1) WHEN MATCHED THEN UPDATE SET x=1", DML},
		{"UPDATE t SET x = 1", DML},
		{"DELETE FROM t", DML},
		{"BEGIN NULL; END;", PLSQL},
		{"DECLARE x NUMBER; BEGIN NULL; END;", PLSQL},
		{"CREATE TABLE t (x NUMBER)", OTHERS},
		{"ALTER SESSION SET CURRENT_SCHEMA = x", OTHERS},
	}
	for _, c := range cases {
		stmt := newStmt(c.text, conn)
		assert.Equal(t, c.want, stmt.stmtType, c.text)
	}
}

func TestReturningClauseDetection(t *testing.T) {
	conn := testConnection()
	stmt := newStmt("DELETE FROM c WHERE p = :1 RETURNING id INTO :2", conn)
	assert.True(t, stmt._hasReturnClause)
	stmt = newStmt("INSERT INTO t VALUES (:1) RETURNING rowid INTO :2", conn)
	assert.True(t, stmt._hasReturnClause)
	stmt = newStmt("SELECT returning_date FROM into_table", conn)
	assert.False(t, stmt._hasReturnClause)
}

func TestValidateTextRejectsTerminators(t *testing.T) {
	assert.ErrorIs(t, validateText("SELECT 1 FROM DUAL;"), ErrTrailingTerminator)
	assert.ErrorIs(t, validateText("SELECT 1 FROM DUAL ;  "), ErrTrailingTerminator)
	assert.ErrorIs(t, validateText("SELECT 1 FROM DUAL\n/"), ErrTrailingTerminator)
	assert.NoError(t, validateText("SELECT 1 FROM DUAL"))
	// PL/SQL blocks keep their closing semicolon
	assert.NoError(t, validateText("BEGIN NULL; END;"))
	assert.NoError(t, validateText("DECLARE x NUMBER; BEGIN NULL; END;"))
}

func TestExeOptionBitmap(t *testing.T) {
	conn := testConnection()
	stmt := newStmt("SELECT 1 FROM DUAL", conn)
	op := stmt.getExeOption()
	assert.NotZero(t, op&execOptionParse)
	assert.NotZero(t, op&execOptionExecute)
	assert.NotZero(t, op&execOptionNotPLSQL)
	assert.Zero(t, op&execOptionReturning)

	stmt = newStmt("BEGIN proc(:1); END;", conn)
	stmt.Pars = make([]ParameterInfo, 1)
	op = stmt.getExeOption()
	assert.NotZero(t, op&execOptionReturning)
	assert.NotZero(t, op&execOptionBind)
	assert.NotZero(t, op&execOptionPLSQL)
	assert.Zero(t, op&execOptionNotPLSQL)

	// fetch-only call once parse and execute are done
	stmt = newStmt("SELECT 1 FROM DUAL", conn)
	stmt.parse = false
	stmt.execute = false
	op = stmt.getExeOption()
	assert.NotZero(t, op&execOptionFetch)

	stmt = newStmt("INSERT INTO t VALUES (:1)", conn)
	stmt.batchErrorMode = true
	stmt.arrayBindCount = 3
	op = stmt.getExeOption()
	assert.NotZero(t, op&execOptionBatchErrors)
	assert.NotZero(t, op&execOptionArrayBind)
}

func TestSetupBindsInference(t *testing.T) {
	conn := testConnection()
	stmt := newStmt("INSERT INTO t VALUES (:1, :2, :3)", conn)
	err := stmt.setupBinds(namedArgs(int64(42), "hello", 3.5))
	require.NoError(t, err)
	require.Len(t, stmt.Pars, 3)
	assert.Equal(t, NUMBER, stmt.Pars[0].DataType)
	assert.Equal(t, NCHAR, stmt.Pars[1].DataType)
	assert.Equal(t, NUMBER, stmt.Pars[2].DataType)
	assert.Equal(t, Input, stmt.Pars[0].Direction)
}

func TestSetupBindsOutDirection(t *testing.T) {
	conn := testConnection()
	stmt := newStmt("BEGIN :1 := 5; END;", conn)
	err := stmt.setupBinds(namedArgs(Out{Dest: int64(0), Size: 8}))
	require.NoError(t, err)
	require.Len(t, stmt.Pars, 1)
	assert.Equal(t, Output, stmt.Pars[0].Direction)
	assert.True(t, stmt.containOutputPars)
	assert.Nil(t, stmt.Pars[0].BValue)
}

func TestSetupArrayBinds(t *testing.T) {
	conn := testConnection()
	stmt := newStmt("INSERT INTO t VALUES (:1, :2)", conn)
	err := stmt.setupArrayBinds([][]driver.Value{
		{int64(70), "A"},
		{int64(70), "B"},
		{int64(80), "C"},
	})
	require.NoError(t, err)
	require.Len(t, stmt.Pars, 2)
	assert.Equal(t, 3, stmt.arrayBindCount)
	values, ok := stmt.Pars[0].iPrimValue.([][]byte)
	require.True(t, ok)
	assert.Len(t, values, 3)
	// first non-null inference chose NUMBER and NCHAR
	assert.Equal(t, NUMBER, stmt.Pars[0].DataType)
	assert.Equal(t, NCHAR, stmt.Pars[1].DataType)
}

func TestSetupArrayBindsAllNullColumn(t *testing.T) {
	conn := testConnection()
	stmt := newStmt("INSERT INTO t VALUES (:1)", conn)
	err := stmt.setupArrayBinds([][]driver.Value{{nil}, {nil}})
	assert.ErrorIs(t, err, ErrMissingTypeGuide)
}

func TestScrollRefused(t *testing.T) {
	conn := testConnection()
	stmt := newStmt("SELECT 1 FROM DUAL", conn)
	assert.ErrorIs(t, stmt.Scroll("absolute", 10), ErrNotSupported)
}

func TestNumberColumnTypingRule(t *testing.T) {
	// scale 0, precision <= 18: int64
	v, err := decodeNumberValue([]byte{0xC1, 0x08}, 5, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(7), v)
	// fractional under unconstrained precision: float64
	v, err = decodeNumberValue([]byte{0xC1, 0x08, 0x0B}, 38, 0xFF)
	require.NoError(t, err)
	assert.Equal(t, 7.1, v)
	// integral under unconstrained precision stays integral
	v, err = decodeNumberValue([]byte{0xC2, 0x02}, 38, 0xFF)
	require.NoError(t, err)
	assert.Equal(t, int64(100), v)
}
