package orathin

import (
	"context"
	"database/sql/driver"
	"encoding/binary"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/orathin/orathin/network"
)

type StmtType int

const (
	SELECT StmtType = 1
	DML    StmtType = 2
	PLSQL  StmtType = 3
	OTHERS StmtType = 4
)

// execute option bits for the bundled parse/bind/execute/fetch call
const (
	execOptionParse       = 0x1
	execOptionBind        = 0x8
	execOptionDefine      = 0x10
	execOptionExecute     = 0x20
	execOptionFetch       = 0x40
	execOptionCommit      = 0x100
	execOptionPLSQL       = 0x400
	execOptionNotPLSQL    = 0x8000
	execOptionBatchErrors = 0x20000
	execOptionReturning   = 0x40000
	execOptionArrayBind   = 0x80000
)

// server error raised when an array DML call had failing iterations
const errArrayDML = 24381

type defaultStmt struct {
	connection        *Connection
	text              string
	cursorID          int
	stmtType          StmtType
	queryID           uint64
	Pars              []ParameterInfo
	columns           []ParameterInfo
	scnForSnapshot    []int
	arrayBindCount    int
	containOutputPars bool
	autoClose         bool
	fromCursor        bool
	cached            bool
	tombstoned        bool
	_hasLONG          bool
	_hasBLOB          bool
	_hasMoreRows      bool
	_hasReturnClause  bool
	_noOfRowsToFetch  int
	prefetchRows      int
	batchErrorMode    bool
	wantRowCounts     bool
	batchErrors       []network.BatchError
	arrayDmlRowCounts []int64
	returningFrames   map[int][][]driver.Value
	temporaryLobs     [][]byte
	rowsAffected      int64
	lastRowID         string
	scrollable        bool
	implicitRS        []*RefCursor

	rowFactory        RowFactory
	outputTypeHandler DescribeColumnFunc
}

func (stmt *defaultStmt) hasMoreRows() bool {
	return stmt._hasMoreRows
}

// Stmt is one prepared statement binding; the cursor of the pipeline.
type Stmt struct {
	defaultStmt
	reSendParDef bool
	parse        bool // parse on the server; false when the cursor id is cached
	execute      bool
	define       bool
	bulkExec     bool
	inputSizes   []int
}

type QueryResult struct {
	lastInsertedID int64
	rowsAffected   int64
}

func (rs *QueryResult) LastInsertId() (int64, error) {
	return rs.lastInsertedID, nil
}

func (rs *QueryResult) RowsAffected() (int64, error) {
	return rs.rowsAffected, nil
}

var returningClauseRegexp = regexp.MustCompile(`(?i)(\bRETURNING\b|\bRETURN\b)\s+.*\s+\bINTO\b`)

// newStmt classifies the statement text; the wire call differs per
// kind so this happens up front.
func newStmt(text string, conn *Connection) *Stmt {
	ret := &Stmt{
		parse:   true,
		execute: true,
	}
	ret.connection = conn
	ret.text = text
	ret.scnForSnapshot = make([]int, 2)
	ret._noOfRowsToFetch = conn.config.PrefetchRows
	ret.prefetchRows = conn.config.PrefetchRows
	ret.returningFrames = map[int][][]driver.Value{}
	uCmdText := strings.ToUpper(strings.TrimSpace(text))
	for strings.HasPrefix(uCmdText, "(") {
		uCmdText = uCmdText[1:]
	}
	switch {
	case strings.HasPrefix(uCmdText, "SELECT"), strings.HasPrefix(uCmdText, "WITH"):
		ret.stmtType = SELECT
	case strings.HasPrefix(uCmdText, "INSERT"), strings.HasPrefix(uCmdText, "MERGE"):
		ret.stmtType = DML
		ret.bulkExec = true
	case strings.HasPrefix(uCmdText, "UPDATE"), strings.HasPrefix(uCmdText, "DELETE"):
		ret.stmtType = DML
	case strings.HasPrefix(uCmdText, "DECLARE"), strings.HasPrefix(uCmdText, "BEGIN"),
		strings.HasPrefix(uCmdText, "CALL"):
		ret.stmtType = PLSQL
	default:
		ret.stmtType = OTHERS
	}
	if ret.stmtType != PLSQL {
		ret._hasReturnClause = returningClauseRegexp.MatchString(uCmdText)
	}
	return ret
}

// validateText refuses trailing statement terminators; the server
// would reject them with a confusing parse error much later.
func validateText(text string) error {
	trimmed := strings.TrimRight(text, " \t\r\n")
	if strings.HasSuffix(trimmed, ";") || strings.HasSuffix(trimmed, "/") {
		// PL/SQL blocks legitimately end with END;
		upper := strings.ToUpper(strings.TrimSpace(text))
		if strings.HasPrefix(upper, "BEGIN") || strings.HasPrefix(upper, "DECLARE") {
			if strings.HasSuffix(trimmed, ";") {
				return nil
			}
		}
		return ErrTrailingTerminator
	}
	return nil
}

/* ---- request serialization ---- */

// basicWrite emits the full function 0x5E call: options, cursor, sql
// text, bind metadata, the al8i4 argument vector and bind descriptors.
func (stmt *defaultStmt) basicWrite(exeOp int, parse, define bool) error {
	session := stmt.connection.session
	strConv := stmt.connection.getStrConv(stmt.connection.tcpNego.ServerCharset)
	session.PutBytes(3, 0x5E, 0)
	session.PutUint(exeOp, 4, true, true)
	session.PutUint(stmt.cursorID, 2, true, true)
	if stmt.cursorID == 0 {
		session.PutBytes(1)
	} else {
		session.PutBytes(0)
	}
	if parse {
		session.PutUint(len(strConv.Encode(stmt.text)), 4, true, true)
		session.PutBytes(1)
	} else {
		session.PutBytes(0, 1)
	}
	session.PutUint(13, 2, true, true)
	session.PutBytes(0, 0)
	if exeOp&execOptionFetch == 0 && exeOp&execOptionExecute != 0 &&
		exeOp&execOptionParse != 0 && stmt.stmtType == SELECT {
		session.PutBytes(0)
		session.PutUint(stmt.prefetchRows, 4, true, true)
	} else {
		session.PutBytes(0, 0)
	}
	// max long fetch size
	if stmt.connection.config.Lob == 0 {
		session.PutInt(0x3FFFFFFF, 4, true, true)
	} else {
		session.PutUint(0x7FFFFFFF, 4, true, true)
	}
	if len(stmt.Pars) > 0 && !define {
		session.PutBytes(1)
		session.PutUint(len(stmt.Pars), 2, true, true)
	} else {
		session.PutBytes(0, 0)
	}
	session.PutBytes(0, 0, 0, 0, 0)
	if define {
		session.PutBytes(1)
		session.PutUint(len(stmt.columns), 2, true, true)
	} else {
		session.PutBytes(0, 0)
	}
	if session.TTCVersion >= 4 {
		session.PutBytes(0, 0, 1)
	}
	if session.TTCVersion >= 5 {
		session.PutBytes(0, 0, 0, 0, 0)
	}
	if session.TTCVersion >= 7 {
		if stmt.stmtType == DML && stmt.arrayBindCount > 0 {
			session.PutBytes(1)
			session.PutInt(stmt.arrayBindCount, 4, true, true)
			session.PutBytes(1)
		} else {
			session.PutBytes(0, 0, 0)
		}
	}
	if session.TTCVersion >= 8 {
		session.PutBytes(0, 0, 0, 0, 0)
	}
	if session.TTCVersion >= 9 {
		session.PutBytes(0, 0)
	}
	if parse {
		session.PutClr(strConv.Encode(stmt.text))
	}
	al8i4 := make([]int, 13)
	if exeOp&execOptionParse != 0 {
		al8i4[0] = 1
	}
	switch stmt.stmtType {
	case DML, PLSQL:
		if stmt.arrayBindCount > 0 {
			al8i4[1] = stmt.arrayBindCount
			if stmt.stmtType == DML {
				al8i4[9] = 0x4000
			}
		} else {
			al8i4[1] = 1
		}
	case OTHERS:
		al8i4[1] = 1
	default:
		al8i4[1] = stmt.prefetchRows
	}
	if len(stmt.scnForSnapshot) == 2 {
		al8i4[5] = stmt.scnForSnapshot[0]
		al8i4[6] = stmt.scnForSnapshot[1]
	}
	if stmt.stmtType == SELECT {
		al8i4[7] = 1
	}
	if exeOp&execOptionExecute != 0 {
		al8i4[9] |= 0x8000
	} else {
		al8i4[9] &= -0x8000
	}
	for x := 0; x < len(al8i4); x++ {
		session.PutUint(al8i4[x], 4, true, true)
	}
	if define {
		return stmt.writeDefine()
	}
	for i := range stmt.Pars {
		if err := stmt.Pars[i].write(session); err != nil {
			return err
		}
	}
	return nil
}

// writeDefine re-describes lob columns so their data arrives inline.
func (stmt *defaultStmt) writeDefine() error {
	session := stmt.connection.session
	num := 0x7FFFFFFF
	for index, col := range stmt.columns {
		col.oaccollid = 0
		col.Precision = 0
		col.Scale = 0
		col.MaxCharLen = 0
		if col.DataType == OCIBlobLocator || col.DataType == OCIClobLocator {
			num = 0
			if stmt.connection.config.Lob == 0 && !col.IsJson {
				num = 0x3FFFFFFF
				if col.DataType == OCIBlobLocator {
					col.DataType = LongRaw
					stmt.columns[index].DataType = LongRaw
				} else {
					col.DataType = LongVarChar
					stmt.columns[index].DataType = LongVarChar
				}
			} else {
				col.ContFlag |= 0x2000000
				col.MaxCharLen = 0x8000
			}
		} else {
			col.ContFlag = 0
		}
		col.Flag = 3
		col.MaxLen = num
		if err := col.write(session); err != nil {
			return err
		}
	}
	return nil
}

func (stmt *Stmt) getExeOption() int {
	op := 0
	if stmt.stmtType == PLSQL || stmt._hasReturnClause {
		op |= execOptionReturning
	}
	if stmt.arrayBindCount > 1 {
		op |= execOptionArrayBind
	}
	if stmt.batchErrorMode {
		op |= execOptionBatchErrors
	}
	if stmt.connection.autoCommit && (stmt.stmtType == DML || stmt.stmtType == PLSQL) {
		op |= execOptionCommit
	}
	if stmt.parse {
		op |= execOptionParse
	}
	if stmt.execute {
		op |= execOptionExecute
	}
	if !stmt.parse && !stmt.execute {
		op |= execOptionFetch
	}
	if len(stmt.Pars) > 0 && !stmt.define {
		op |= execOptionBind
		if stmt.stmtType == PLSQL || (stmt._hasReturnClause && !stmt.reSendParDef) {
			op |= execOptionPLSQL
		}
	}
	if stmt.stmtType != PLSQL && !stmt._hasReturnClause {
		op |= execOptionNotPLSQL
	}
	if stmt.define {
		op |= execOptionDefine
	}
	return op
}

// writePars emits the bind values; long types always go last.
func (stmt *Stmt) writePars() error {
	session := stmt.connection.session
	for _, par := range stmt.Pars {
		if par.Flag == 0x80 {
			continue
		}
		if !stmt.parse && par.Direction == Output && stmt.stmtType != PLSQL {
			continue
		}
		if par.isLongType() {
			continue
		}
		if par.DataType == REFCURSOR {
			session.PutBytes(1, 0)
		} else if par.Direction == Input && par.isLobType() {
			if len(par.BValue) > 0 {
				session.PutUint(len(par.BValue), 2, true, true)
			}
			session.PutClr(par.BValue)
		} else if par.cusType != nil {
			session.PutBytes(0, 0, 0, 0)
			session.PutUint(len(par.BValue), 4, true, true)
			session.PutBytes(1, 1)
			session.PutClr(par.BValue)
		} else {
			session.PutClr(par.BValue)
		}
	}
	for _, par := range stmt.Pars {
		if par.Flag == 0x80 {
			continue
		}
		if par.isLongType() {
			session.PutClr(par.BValue)
		}
	}
	return nil
}

// write serializes the execute request. A cached cursor re-executes
// through the short 0x4E/0x04 form; everything else goes through the
// full parse/describe call.
func (stmt *Stmt) write() error {
	session := stmt.connection.session
	if !stmt.parse && !stmt.reSendParDef {
		exeOf := 0
		execFlag := 0
		count := 1
		if stmt.arrayBindCount > 0 {
			count = stmt.arrayBindCount
		}
		if stmt.stmtType == SELECT {
			session.PutBytes(3, 0x4E, 0)
			count = stmt.prefetchRows
			exeOf = execOptionExecute
			if stmt._hasReturnClause || stmt.stmtType == PLSQL {
				exeOf |= execOptionReturning
			}
		} else {
			session.PutBytes(3, 4, 0)
		}
		if stmt.connection.autoCommit {
			execFlag = 1
		}
		session.PutUint(stmt.cursorID, 2, true, true)
		session.PutUint(count, 2, true, true)
		session.PutUint(exeOf, 2, true, true)
		session.PutUint(execFlag, 2, true, true)
		if err := stmt.writeBindValues(true); err != nil {
			return err
		}
	} else {
		if err := stmt.basicWrite(stmt.getExeOption(), stmt.parse, stmt.define); err != nil {
			return err
		}
		if err := stmt.writeBindValues(false); err != nil {
			return err
		}
		stmt.parse = false
		stmt.define = false
		stmt.reSendParDef = false
	}
	return session.Write()
}

// writeBindValues handles the array-bind fan-out: one bind frame per
// iteration, values swapped in from the per-parameter arrays.
func (stmt *Stmt) writeBindValues(markPrefix bool) error {
	session := stmt.connection.session
	if len(stmt.Pars) == 0 {
		return nil
	}
	if markPrefix {
		session.PutBytes(7)
	}
	if stmt.bulkExec && stmt.arrayBindCount > 0 {
		arrayValues := make([][][]byte, len(stmt.Pars))
		for x := 0; x < len(stmt.Pars); x++ {
			if stmt.Pars[x].Flag == 0x80 {
				continue
			}
			if tempVal, ok := stmt.Pars[x].iPrimValue.([][]byte); ok {
				arrayValues[x] = tempVal
			} else {
				return errors.New("array bind requires array values for every parameter")
			}
		}
		for valueIndex := 0; valueIndex < stmt.arrayBindCount; valueIndex++ {
			for parIndex, arrayValue := range arrayValues {
				if stmt.Pars[parIndex].Flag == 0x80 {
					continue
				}
				if valueIndex < len(arrayValue) {
					stmt.Pars[parIndex].BValue = arrayValue[valueIndex]
				}
			}
			if !markPrefix {
				session.PutBytes(7)
			}
			if err := stmt.writePars(); err != nil {
				return err
			}
			markPrefix = false
		}
		return nil
	}
	if !markPrefix {
		session.PutBytes(7)
	}
	return stmt.writePars()
}

/* ---- response processing ---- */

// read drives the TTC response loop: describe info, row headers, row
// data, bind accumulators, piggyback acknowledgements, summaries.
func (stmt *defaultStmt) read(dataSet *DataSet) error {
	loop := true
	dataSet.parent = stmt
	dataSet.cols = &stmt.columns
	session := stmt.connection.session
	defer func() {
		if session.Summary != nil {
			stmt.cursorID = session.Summary.CursorID
			stmt.rowsAffected = session.Summary.RowsAffected
			if len(session.Summary.RowID) > 0 {
				stmt.lastRowID = string(session.Summary.RowID)
			}
			if session.Summary.RetCode == 1403 {
				stmt._hasMoreRows = false
			}
		}
	}()
	for loop {
		msg, err := session.GetByte()
		if err != nil {
			return err
		}
		switch msg {
		case 4:
			session.Summary, err = network.NewSummary(session)
			if err != nil {
				return err
			}
			if session.HasError() {
				oraErr := session.GetError()
				if oraErr.ErrCode == 1403 {
					stmt._hasMoreRows = false
					session.Summary.RetCode = 0
					loop = false
					continue
				}
				if stmt.batchErrorMode && oraErr.ErrCode == errArrayDML {
					if err = stmt.readBatchErrors(); err != nil {
						return err
					}
					loop = false
					continue
				}
				if oraErr.IsSessionDead() {
					stmt.connection.setBad()
				}
				if oraErr.CanRetry() {
					stmt.tombstoned = true
				}
				return oraErr
			}
			loop = false
		case 6:
			if err = dataSet.load(session); err != nil {
				return err
			}
		case 7:
			if err = stmt.readRowData(dataSet); err != nil {
				return err
			}
		case 8:
			if err = stmt.readSnapshotBlock(); err != nil {
				return err
			}
		case 11:
			if err = dataSet.load(session); err != nil {
				return err
			}
			for x := 0; x < dataSet.columnCount && x < len(stmt.Pars); x++ {
				direction, err := session.GetByte()
				if err != nil {
					return err
				}
				switch direction {
				case 32:
					stmt.Pars[x].Direction = Input
				case 16:
					stmt.Pars[x].Direction = Output
					stmt.containOutputPars = true
				case 48:
					stmt.Pars[x].Direction = InOut
					stmt.containOutputPars = true
				}
			}
		case 16:
			if err = stmt.readDescribeInfo(dataSet); err != nil {
				return err
			}
		case 19:
			// end-of-request with withheld out binds: acknowledge and
			// keep decoding
			session.ResetBuffer()
			session.PutBytes(19)
			if err = session.Write(); err != nil {
				return err
			}
			continue
		case 21:
			if _, err = session.GetInt(2, true, true); err != nil { // columns sent
				return err
			}
			bitVectorLen := dataSet.columnCount / 8
			if dataSet.columnCount%8 > 0 {
				bitVectorLen++
			}
			bitVector := make([]byte, bitVectorLen)
			for x := 0; x < bitVectorLen; x++ {
				if bitVector[x], err = session.GetByte(); err != nil {
					return err
				}
			}
			dataSet.setBitVector(bitVector)
		case 27:
			if err = stmt.readImplicitResults(dataSet); err != nil {
				return err
			}
		default:
			if err = stmt.connection.readMsg(msg); err != nil {
				return err
			}
			if msg == 9 {
				loop = false
			}
		}
	}
	if stmt.connection.tracer.IsOn() {
		dataSet.Trace(stmt.connection.tracer)
	}
	return nil
}

// readRowData consumes one message-7 block: either OUT bind values
// (returning clause and PL/SQL) or one buffered row.
func (stmt *defaultStmt) readRowData(dataSet *DataSet) error {
	session := stmt.connection.session
	if stmt._hasReturnClause && stmt.containOutputPars {
		for x := 0; x < len(stmt.Pars); x++ {
			if stmt.Pars[x].Direction != Output {
				continue
			}
			num, err := session.GetInt(4, true, true)
			if err != nil {
				return err
			}
			frame := make([]driver.Value, 0, num)
			for i := 0; i < num; i++ {
				if err = stmt.Pars[x].decodeColumnValue(stmt.connection); err != nil {
					return err
				}
				frame = append(frame, stmt.Pars[x].oPrimValue)
			}
			stmt.returningFrames[x] = append(stmt.returningFrames[x], frame)
			if num > 0 {
				stmt.Pars[x].Value = frame[len(frame)-1]
			}
		}
		return nil
	}
	if stmt.containOutputPars {
		for x := 0; x < len(stmt.Pars); x++ {
			if stmt.Pars[x].DataType == REFCURSOR {
				cursor, ok := stmt.Pars[x].Value.(*RefCursor)
				if !ok {
					return errors.New("REFCURSOR parameter should contain pointer to RefCursor struct")
				}
				cursor.connection = stmt.connection
				cursor.autoClose = true
				if err := cursor.load(); err != nil {
					return err
				}
				if stmt.stmtType == PLSQL {
					if _, err := session.GetInt(2, true, true); err != nil {
						return err
					}
				}
			} else if stmt.Pars[x].Direction != Input {
				if err := stmt.Pars[x].decodeColumnValue(stmt.connection); err != nil {
					return err
				}
				stmt.Pars[x].Value = stmt.Pars[x].oPrimValue
			}
		}
		return nil
	}
	// plain row: only the columns named by the bit vector carry data,
	// the rest repeat the previous row's value
	newRow := make(Row, dataSet.columnCount)
	for index := range stmt.columns {
		if stmt.columns[index].getDataFromServer {
			if err := stmt.columns[index].decodeColumnValue(stmt.connection); err != nil {
				return err
			}
			if stmt.columns[index].isLongType() {
				if _, err := session.GetInt(4, true, true); err != nil {
					return err
				}
				if _, err := session.GetInt(4, true, true); err != nil {
					return err
				}
			}
		}
		newRow[index] = stmt.columns[index].oPrimValue
	}
	dataSet.rows = append(dataSet.rows, newRow)
	return nil
}

// readSnapshotBlock is message 8: SCN for snapshot re-execution, the
// session timezone, the query id, and per-iteration DML row counts.
func (stmt *defaultStmt) readSnapshotBlock() error {
	session := stmt.connection.session
	size, err := session.GetInt(2, true, true)
	if err != nil {
		return err
	}
	for x := 0; x < 2 && x < size; x++ {
		if stmt.scnForSnapshot[x], err = session.GetInt(4, true, true); err != nil {
			return err
		}
	}
	for x := 2; x < size; x++ {
		if _, err = session.GetInt(4, true, true); err != nil {
			return err
		}
	}
	if _, err = session.GetInt(2, true, true); err != nil {
		return err
	}
	size, err = session.GetInt(2, true, true)
	if err != nil {
		return err
	}
	for x := 0; x < size; x++ {
		_, val, num, err := session.GetKeyVal()
		if err != nil {
			return err
		}
		if num == 163 {
			session.TimeZone = val
		}
	}
	if session.TTCVersion >= 4 {
		size, err = session.GetInt(4, true, true)
		if err != nil {
			return err
		}
		if size > 0 {
			bty, err := session.GetBytes(size)
			if err != nil {
				return err
			}
			if len(bty) >= 8 {
				stmt.queryID = binary.LittleEndian.Uint64(bty[size-8:])
			}
		}
	}
	if session.TTCVersion >= 7 && stmt.stmtType == DML && stmt.arrayBindCount > 0 {
		length, err := session.GetInt(4, true, true)
		if err != nil {
			return err
		}
		counts := make([]int64, 0, length)
		for i := 0; i < length; i++ {
			count, err := session.GetInt64(8, true, true)
			if err != nil {
				return err
			}
			counts = append(counts, count)
		}
		if stmt.wantRowCounts {
			stmt.arrayDmlRowCounts = counts
		}
	}
	return nil
}

// readDescribeInfo is message 16: the column descriptors of a query.
// Output type handlers run here, once per column.
func (stmt *defaultStmt) readDescribeInfo(dataSet *DataSet) error {
	session := stmt.connection.session
	size, err := session.GetByte()
	if err != nil {
		return err
	}
	if _, err = session.GetBytes(int(size)); err != nil {
		return err
	}
	dataSet.maxRowSize, err = session.GetInt(4, true, true)
	if err != nil {
		return err
	}
	dataSet.columnCount, err = session.GetInt(4, true, true)
	if err != nil {
		return err
	}
	if dataSet.columnCount > 0 {
		if _, err = session.GetByte(); err != nil {
			return err
		}
	}
	stmt.columns = make([]ParameterInfo, dataSet.columnCount)
	stmt._hasLONG = false
	stmt._hasBLOB = false
	for x := 0; x < dataSet.columnCount; x++ {
		if err = stmt.columns[x].load(stmt.connection); err != nil {
			return err
		}
		if stmt.columns[x].isLongType() {
			stmt._hasLONG = true
		}
		if stmt.columns[x].isLobType() {
			stmt._hasBLOB = true
		}
		stmt.applyTypeHandler(&stmt.columns[x])
	}
	if _, err = session.GetDlc(); err != nil {
		return err
	}
	if session.TTCVersion >= 3 {
		if _, err = session.GetInt(4, true, true); err != nil {
			return err
		}
		if _, err = session.GetInt(4, true, true); err != nil {
			return err
		}
	}
	if session.TTCVersion >= 4 {
		if _, err = session.GetInt(4, true, true); err != nil {
			return err
		}
		if _, err = session.GetInt(4, true, true); err != nil {
			return err
		}
	}
	if session.TTCVersion >= 5 {
		if _, err = session.GetDlc(); err != nil {
			return err
		}
	}
	return nil
}

// applyTypeHandler runs the statement handler, then the connection
// handler, stopping at the first that claims the column.
func (stmt *defaultStmt) applyTypeHandler(col *ParameterInfo) {
	ctx := DescribeColumnContext{
		Name:      col.Name,
		Type:      col.DataType,
		Size:      col.MaxLen,
		Precision: int(col.Precision),
		Scale:     int(col.Scale),
	}
	if col.Scale == 0xFF {
		ctx.Scale = -127
	}
	for _, handler := range []DescribeColumnFunc{stmt.outputTypeHandler, stmt.connection.OutputTypeHandler} {
		if handler == nil {
			continue
		}
		if cfg := handler(ctx); cfg != nil {
			col.converter = cfg.Converter
			return
		}
	}
}

// readBatchErrors consumes the iteration-error list that follows an
// ORA-24381 summary when batch error collection is on.
func (stmt *defaultStmt) readBatchErrors() error {
	session := stmt.connection.session
	count, err := session.GetInt(2, true, true)
	if err != nil {
		return err
	}
	stmt.batchErrors = make([]network.BatchError, 0, count)
	for x := 0; x < count; x++ {
		offset, err := session.GetInt(4, true, true)
		if err != nil {
			return err
		}
		code, err := session.GetInt(2, true, true)
		if err != nil {
			return err
		}
		msg, err := session.GetClr()
		if err != nil {
			return err
		}
		stmt.batchErrors = append(stmt.batchErrors, network.BatchError{
			Offset:  offset,
			ErrCode: code,
			ErrMsg:  string(msg),
		})
	}
	if session.Summary != nil {
		session.Summary.RetCode = 0
	}
	return nil
}

// readImplicitResults drains cursors returned by DBMS_SQL.RETURN_RESULT.
func (stmt *defaultStmt) readImplicitResults(dataSet *DataSet) error {
	session := stmt.connection.session
	count, err := session.GetInt(4, true, true)
	if err != nil {
		return err
	}
	for x := 0; x < count; x++ {
		cursor := &RefCursor{}
		cursor.connection = stmt.connection
		cursor.autoClose = true
		if err = cursor.load(); err != nil {
			return err
		}
		stmt.implicitRS = append(stmt.implicitRS, cursor)
	}
	return nil
}

/* ---- fetch ---- */

// fetch asks for the next array-size batch of rows on the open cursor.
func (stmt *defaultStmt) fetch(dataSet *DataSet) error {
	stmt.calculateFetchSize()
	tracer := stmt.connection.tracer
	tracer.Printf("Fetch(%d)", stmt._noOfRowsToFetch)
	err := stmt.connection.processMessage(context.Background(), func() error {
		session := stmt.connection.session
		session.PutBytes(3, 5, 0)
		session.PutInt(stmt.cursorID, 2, true, true)
		session.PutInt(stmt._noOfRowsToFetch, 2, true, true)
		return session.Write()
	}, func() error {
		return stmt.read(dataSet)
	})
	if err != nil {
		if isBadConn(err) {
			tracer.Print("Error: ", err)
			return driver.ErrBadConn
		}
		return err
	}
	return nil
}

// calculateFetchSize sizes the fetch array from the observed row
// width when the application left the default in place.
func (stmt *defaultStmt) calculateFetchSize() {
	if stmt._noOfRowsToFetch == defaultPrefetch {
		maxRowSize := 0
		for _, col := range stmt.columns {
			if col.isLobType() {
				maxRowSize += 86
			} else if col.isLongType() {
				maxRowSize += 2
			} else {
				maxRowSize += col.MaxLen
			}
		}
		if maxRowSize > 0 {
			stmt._noOfRowsToFetch = (0x20000 / maxRowSize) + 1
			stmt.connection.tracer.Printf("Fetch Size Calculated: %d", stmt._noOfRowsToFetch)
		}
	}
}

const defaultPrefetch = 25

// releaseDataSet closes the cursor behind a dataset: uncached cursors
// schedule a server-side close piggyback.
func (stmt *defaultStmt) releaseDataSet(dataSet *DataSet) error {
	if stmt.autoClose || !stmt.cached {
		stmt.connection.scheduleCursorClose(stmt.cursorID)
		stmt.cursorID = 0
	}
	return nil
}

/* ---- public execution surface ---- */

// CheckNamedValue admits driver-native bind types through database/sql.
func (stmt *Stmt) CheckNamedValue(named *driver.NamedValue) error {
	switch named.Value.(type) {
	case Number, *Number, Vector, *Vector, Json, *Json, Clob, Blob,
		*RefCursor, Out, *DbObject:
		return nil
	}
	return driver.ErrSkip
}

func (stmt *Stmt) NumInput() int {
	return -1
}

func (stmt *Stmt) Close() error {
	if stmt.cached && !stmt.tombstoned {
		// cached statements keep their cursor open for reuse
		return nil
	}
	stmt.connection.scheduleCursorClose(stmt.cursorID)
	stmt.cursorID = 0
	return nil
}

// SetInputSizes presizes bind buffers ahead of execute, the same way
// an explicit size on Out does; zero entries keep inference.
func (stmt *Stmt) SetInputSizes(sizes ...int) {
	stmt.inputSizes = sizes
}

// SetArraySize controls rows per fetch round trip. The value is read at
// each fetch, so a change after execute applies to the next fetch of the
// open cursor.
func (stmt *Stmt) SetArraySize(size int) {
	if size > 0 {
		stmt._noOfRowsToFetch = size
	}
}

// SetPrefetchRows controls rows delivered with the execute response.
func (stmt *Stmt) SetPrefetchRows(rows int) {
	if rows > 0 {
		stmt.prefetchRows = rows
	}
}

func (stmt *Stmt) SetRowFactory(factory RowFactory) {
	stmt.rowFactory = factory
}

func (stmt *Stmt) SetOutputTypeHandler(handler DescribeColumnFunc) {
	stmt.outputTypeHandler = handler
}

// Scroll is accepted for negotiation symmetry only; the thin path has
// no server-side scrollable cursor support.
func (stmt *Stmt) Scroll(mode string, offset int) error {
	return ErrNotSupported
}

// GetBatchErrors returns the per-iteration errors of the last
// executemany call run with batch errors enabled.
func (stmt *Stmt) GetBatchErrors() []network.BatchError {
	return stmt.batchErrors
}

// GetArrayDMLRowCounts returns per-iteration affected row counts of
// the last executemany run with row counts enabled.
func (stmt *Stmt) GetArrayDMLRowCounts() []int64 {
	return stmt.arrayDmlRowCounts
}

// ReturningValues returns the per-iteration OUT frames accumulated by
// a DML RETURNING execution for the given bind position.
func (stmt *Stmt) ReturningValues(position int) [][]driver.Value {
	return stmt.returningFrames[position]
}

func (stmt *Stmt) LastRowID() string {
	return stmt.lastRowID
}

func (stmt *Stmt) ImplicitResults() []*RefCursor {
	return stmt.implicitRS
}

// setupBinds reconciles user values with bind metadata: infer the type
// from the first non-null value, widen buffers to the largest element.
func (stmt *Stmt) setupBinds(args []driver.NamedValue) error {
	stmt.Pars = make([]ParameterInfo, len(args))
	for i, arg := range args {
		par := &stmt.Pars[i]
		par.Direction = Input
		par.Name = arg.Name
		size := 0
		if i < len(stmt.inputSizes) {
			size = stmt.inputSizes[i]
		}
		val := arg.Value
		if out, ok := val.(Out); ok {
			par.Direction = Output
			if out.In {
				par.Direction = InOut
			}
			if out.Size > 0 {
				size = out.Size
			}
			if err := par.encodeValue(out.Dest, size, stmt.connection); err != nil {
				return err
			}
			if size > 0 {
				par.widen(size)
			}
			if par.Direction == Output {
				par.BValue = nil
			}
			stmt.containOutputPars = true
			continue
		}
		if err := par.encodeValue(val, size, stmt.connection); err != nil {
			return err
		}
		if size > 0 {
			par.widen(size)
		}
	}
	return nil
}

// setupArrayBinds encodes one [][]value batch: type inferred from the
// first non-null element per position, buffers widened in place.
func (stmt *Stmt) setupArrayBinds(rows [][]driver.Value) error {
	if len(rows) == 0 {
		return errors.New("executemany requires at least one row")
	}
	numPars := len(rows[0])
	stmt.Pars = make([]ParameterInfo, numPars)
	stmt.arrayBindCount = len(rows)
	stmt.bulkExec = true
	for parIndex := 0; parIndex < numPars; parIndex++ {
		par := &stmt.Pars[parIndex]
		par.Direction = Input
		// infer from first non-null
		inferred := false
		for _, row := range rows {
			if parIndex < len(row) && row[parIndex] != nil {
				if err := par.encodeValue(row[parIndex], 0, stmt.connection); err != nil {
					return err
				}
				inferred = true
				break
			}
		}
		if !inferred {
			return ErrMissingTypeGuide
		}
		values := make([][]byte, len(rows))
		maxSize := 0
		for rowIndex, row := range rows {
			var val driver.Value
			if parIndex < len(row) {
				val = row[parIndex]
			}
			probe := par.clone()
			probe.Direction = Input
			if err := probe.encodeValue(val, 0, stmt.connection); err != nil {
				return err
			}
			if probe.DataType != par.DataType && val != nil {
				return fmt.Errorf("bind position %d: mixed types %v and %v in array bind",
					parIndex+1, par.DataType, probe.DataType)
			}
			values[rowIndex] = probe.BValue
			if len(probe.BValue) > maxSize {
				maxSize = len(probe.BValue)
			}
			if probe.MaxCharLen > par.MaxCharLen {
				par.MaxCharLen = probe.MaxCharLen
			}
		}
		par.widen(maxSize)
		par.iPrimValue = values
		par.MaxNoOfArrayElements = 0
	}
	return nil
}

// reset clears per-execution state so a cached statement starts clean.
func (stmt *Stmt) reset() {
	stmt.batchErrors = nil
	stmt.arrayDmlRowCounts = nil
	stmt.returningFrames = map[int][][]driver.Value{}
	stmt.containOutputPars = false
	stmt._hasMoreRows = false
	stmt.rowsAffected = 0
	stmt.arrayBindCount = 0
	stmt.implicitRS = nil
}

// run executes the statement with bound parameters already in place.
func (stmt *Stmt) run(ctx context.Context) (*DataSet, error) {
	if err := validateText(stmt.text); err != nil {
		return nil, err
	}
	dataSet := new(DataSet)
	dataSet.rowFactory = stmt.rowFactory
	err := stmt.connection.processMessage(ctx, stmt.write, func() error {
		if stmt.stmtType == SELECT {
			stmt._hasMoreRows = true
		}
		return stmt.read(dataSet)
	})
	if err != nil {
		if stmt.tombstoned {
			// the cached cursor is poisoned: force a fresh parse on the
			// next use and close the server cursor lazily
			stmt.connection.stmtCache.invalidate(stmt)
		}
		return nil, err
	}
	stmt.connection.stmtCache.store(stmt)
	return dataSet, nil
}

// QueryContext executes a query and returns its row stream.
func (stmt *Stmt) QueryContext(ctx context.Context, args []driver.NamedValue) (driver.Rows, error) {
	dataSet, err := stmt.query(ctx, args)
	if err != nil {
		return nil, err
	}
	return dataSet, nil
}

func (stmt *Stmt) query(ctx context.Context, args []driver.NamedValue) (*DataSet, error) {
	stmt.reset()
	if err := stmt.setupBinds(args); err != nil {
		return nil, err
	}
	return stmt.run(ctx)
}

func (stmt *Stmt) Query(args []driver.Value) (driver.Rows, error) {
	named := make([]driver.NamedValue, len(args))
	for i, v := range args {
		named[i] = driver.NamedValue{Ordinal: i + 1, Value: v}
	}
	return stmt.QueryContext(context.Background(), named)
}

// ExecContext executes DML or PL/SQL.
func (stmt *Stmt) ExecContext(ctx context.Context, args []driver.NamedValue) (driver.Result, error) {
	stmt.reset()
	if err := stmt.setupBinds(args); err != nil {
		return nil, err
	}
	_, err := stmt.run(ctx)
	if err != nil {
		return nil, err
	}
	return &QueryResult{rowsAffected: stmt.rowsAffected}, nil
}

func (stmt *Stmt) Exec(args []driver.Value) (driver.Result, error) {
	named := make([]driver.NamedValue, len(args))
	for i, v := range args {
		named[i] = driver.NamedValue{Ordinal: i + 1, Value: v}
	}
	return stmt.ExecContext(context.Background(), named)
}

// ExecuteManyOptions tunes the array DML call.
type ExecuteManyOptions struct {
	BatchErrors       bool
	ArrayDMLRowCounts bool
}

// ExecuteMany runs one DML statement once per input row in a single
// round trip. With BatchErrors, failing iterations are collected via
// GetBatchErrors instead of aborting, and the transaction stays open
// for inspection even under autocommit.
func (stmt *Stmt) ExecuteMany(ctx context.Context, rows [][]driver.Value, opts *ExecuteManyOptions) (driver.Result, error) {
	if stmt.stmtType != DML {
		return nil, errors.New("executemany requires a DML statement")
	}
	stmt.reset()
	stmt.bulkExec = true
	if opts != nil {
		stmt.batchErrorMode = opts.BatchErrors
		stmt.wantRowCounts = opts.ArrayDMLRowCounts
	}
	savedAutoCommit := stmt.connection.autoCommit
	if stmt.batchErrorMode {
		// leave the transaction open so the caller can inspect errors
		stmt.connection.autoCommit = false
	}
	defer func() {
		stmt.connection.autoCommit = savedAutoCommit
	}()
	if err := stmt.setupArrayBinds(rows); err != nil {
		return nil, err
	}
	_, err := stmt.run(ctx)
	if err != nil {
		return nil, err
	}
	return &QueryResult{rowsAffected: stmt.rowsAffected}, nil
}
