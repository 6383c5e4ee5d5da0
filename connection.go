package orathin

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/orathin/orathin/configurations"
	"github.com/orathin/orathin/converters"
	"github.com/orathin/orathin/network"
	"github.com/orathin/orathin/trace"
)

const driverVersion = "1.0.0"

type ConnectionState int

const (
	Closed ConnectionState = 0
	Opened ConnectionState = 1
)

type LogonMode int

const (
	NoNewPass   LogonMode = 0x1
	PrelimAuth  LogonMode = 0x8
	SysDba      LogonMode = 0x20
	SysOper     LogonMode = 0x40
	UserAndPass LogonMode = 0x100
)

// Connection owns one socket, one protocol engine, one statement cache
// and one object type cache. All calls against it serialize on the
// protocol lock: the wire carries exactly one message at a time.
type Connection struct {
	State             ConnectionState
	LogonMode         LogonMode
	autoCommit        bool
	config            *configurations.ConnectionConfig
	session           *network.Session
	tcpNego           *TCPNego
	dataNego          *DataTypeNego
	authObject        *AuthObject
	SessionProperties map[string]string
	dBVersion         *DBVersion
	sessionID         int
	serialID          int
	sStrConv          converters.IStringConverter
	nStrConv          converters.IStringConverter
	tracer            trace.Tracer
	protoLock         sync.Mutex
	stmtCache         *statementCache
	cusTyp            map[string]customType
	typeCache         *dbObjectTypeCache
	cursorsToClose    []int
	tempLobsToFree    [][]byte
	cursorsLock       sync.Mutex
	bad               bool
	inTransaction     bool
	dbTimeZone        *time.Location

	// hooks the cursor pipeline consults at describe time
	OutputTypeHandler DescribeColumnFunc
}

// DescribeColumnContext is handed to an output type handler once per
// column; returning a non-nil VarConfig overrides the default mapping.
type DescribeColumnContext struct {
	Name      string
	Type      OracleType
	Size      int
	Precision int
	Scale     int
}

type VarConfig struct {
	Converter func(driver.Value) (driver.Value, error)
}

type DescribeColumnFunc func(ctx DescribeColumnContext) *VarConfig

// NewConnection parses an oracle:// url into an unopened connection.
func NewConnection(databaseURL string) (*Connection, error) {
	config, err := configurations.ParseConfig(databaseURL)
	if err != nil {
		return nil, err
	}
	return NewConnectionFromConfig(config)
}

func NewConnectionFromConfig(config *configurations.ConnectionConfig) (*Connection, error) {
	tracer, _ := config.Tracer.(trace.Tracer)
	if tracer == nil {
		tracer = trace.NilTracer()
	}
	return &Connection{
		State:      Closed,
		config:     config,
		tracer:     tracer,
		autoCommit: true,
		cusTyp:     map[string]customType{},
	}, nil
}

func (conn *Connection) Open() error {
	return conn.OpenWithContext(context.Background())
}

// OpenWithContext runs both connect phases: TNS handshake (with
// redirect and refuse-retry handling) then protocol, data type and auth
// exchange, collapsed onto the cookie fast path when available.
func (conn *Connection) OpenWithContext(ctx context.Context) error {
	tracer := conn.tracer
	switch conn.config.Privilege {
	case configurations.SYSDBA:
		conn.LogonMode |= SysDba
	case configurations.SYSOPER:
		conn.LogonMode |= SysOper
	case configurations.NONE:
		conn.LogonMode = 0
	default:
		conn.LogonMode |= LogonMode(conn.config.Privilege)
	}
	conn.session = network.NewSession(conn.config, tracer)

	// phase one; a failure carrying ORA-12564 (the code of a listener
	// REFUSE without a more specific one) is retried under the
	// description's retry budget with its configured delay; a REFUSE
	// carrying any other code surfaces at once
	policy := backoff.WithMaxRetries(
		backoff.NewConstantBackOff(conn.config.Description.RetryDelay),
		uint64(conn.config.Description.RetryCount))
	err := backoff.Retry(func() error {
		connErr := conn.session.Connect(ctx)
		if connErr == nil {
			return nil
		}
		var oraErr *network.OracleError
		if errors.As(connErr, &oraErr) && oraErr.ErrCode == 12564 {
			tracer.Print("listener refused connection, retrying")
			return connErr
		}
		return backoff.Permanent(connErr)
	}, backoff.WithContext(policy, ctx))
	if err != nil {
		return err
	}

	// phase two
	cookie := configurations.CookieFor(conn.config.EndpointKey())
	useCookie := cookie.Populated && conn.session.Context.SupportsFastAuth()
	if useCookie {
		tracer.Print("phase two from endpoint cookie")
		conn.tcpNego = negoFromCookie(cookie, conn.session)
	} else {
		conn.tcpNego, err = newTCPNego(conn.session)
		if err != nil {
			return err
		}
	}
	tracer.Print("server banner: ", conn.tcpNego.ProtocolServerString)
	conn.sStrConv = converters.NewStringConverter(conn.tcpNego.ServerCharset)
	conn.nStrConv = converters.NewStringConverter(conn.tcpNego.ServernCharset)
	conn.session.StrConv = conn.sStrConv

	conn.dataNego, err = buildTypeNego(conn.tcpNego, conn.session)
	if err != nil {
		if useCookie {
			// stale cookie; drop it and redo phase two from scratch
			configurations.DropCookie(conn.config.EndpointKey())
		}
		return err
	}
	if len(conn.dataNego.DBTimeZone) >= 7 {
		if tz, tzErr := converters.DecodeDate(conn.dataNego.DBTimeZone); tzErr == nil {
			conn.dbTimeZone = tz.Location()
		}
	}

	conn.session.TTCVersion = conn.dataNego.CompileTimeCaps[7]
	if len(conn.tcpNego.ServerCompileTimeCaps) > 7 &&
		conn.tcpNego.ServerCompileTimeCaps[7] < conn.session.TTCVersion {
		conn.session.TTCVersion = conn.tcpNego.ServerCompileTimeCaps[7]
	}
	if conn.session.TTCVersion >= 3 {
		conn.session.UseBigClrChunks = true
		conn.session.ClrChunkSize = 0x7FFF
	}
	tracer.Print("TTC version: ", conn.session.TTCVersion)

	err = conn.doAuth(ctx)
	if err != nil {
		return err
	}
	if !cookie.Populated {
		conn.tcpNego.saveCookie(cookie)
	}
	conn.State = Opened
	conn.stmtCache = newStatementCache(conn, conn.config.StmtCacheSize)
	conn.typeCache = newDbObjectTypeCache(conn)

	conn.dBVersion, err = getDBVersion(conn.session)
	if err != nil {
		return err
	}
	tracer.Print("database version: ", conn.dBVersion.Text)
	if sessionID, ok := conn.SessionProperties["AUTH_SESSION_ID"]; ok {
		conn.sessionID, _ = strconv.Atoi(sessionID)
	}
	if serialNum, ok := conn.SessionProperties["AUTH_SERIAL_NUM"]; ok {
		conn.serialID, _ = strconv.Atoi(serialNum)
	}
	return nil
}

// doAuth is the two-round-trip logon. Round one posts the username and
// auth options (function 0x76); the codec then sets resend and round two
// sends function 0x73 with the encrypted material.
func (conn *Connection) doAuth(ctx context.Context) error {
	conn.session.StartContext(ctx)
	defer conn.session.EndContext()
	session := conn.session
	session.ResetBuffer()
	session.PutBytes(3, 0x76, 0, 1)
	session.PutUint(len(conn.config.UserID), 4, true, true)
	conn.LogonMode = conn.LogonMode | NoNewPass
	session.PutUint(int(conn.LogonMode), 4, true, true)
	session.PutBytes(1, 1, 5, 1, 1)
	if len(conn.config.UserID) > 0 {
		session.PutBytes([]byte(conn.config.UserID)...)
	}
	session.PutKeyValString("AUTH_TERMINAL", conn.config.ClientInfo.HostName, 0)
	session.PutKeyValString("AUTH_PROGRAM_NM", conn.config.ClientInfo.ProgramName, 0)
	session.PutKeyValString("AUTH_MACHINE", conn.config.ClientInfo.HostName, 0)
	session.PutKeyValString("AUTH_PID", strconv.Itoa(conn.config.ClientInfo.PID), 0)
	session.PutKeyValString("AUTH_SID", conn.config.ClientInfo.UserName, 0)
	err := session.Write()
	if err != nil {
		return err
	}

	if conn.config.TokenAuth {
		return conn.doTokenAuth(ctx)
	}

	conn.authObject, err = newAuthObject(conn.config.UserID, conn.config.ClientInfo.Password, conn.tcpNego, conn)
	if err != nil {
		return err
	}
	// second round: function 0x73, now carrying the proof
	err = conn.authObject.write(conn, conn.LogonMode)
	if err != nil {
		return err
	}
	stop := false
	for !stop {
		msg, err := session.GetByte()
		if err != nil {
			return err
		}
		switch msg {
		case 4:
			if err = conn.readSummary(); err != nil {
				return err
			}
			stop = true
		case 8:
			dictLen, err := session.GetInt(4, true, true)
			if err != nil {
				return err
			}
			conn.SessionProperties = make(map[string]string, dictLen)
			for x := 0; x < dictLen; x++ {
				key, val, _, err := session.GetKeyVal()
				if err != nil {
					return err
				}
				conn.SessionProperties[string(key)] = string(val)
			}
		case 15:
			warning, err := network.NewWarningObject(session)
			if err != nil {
				return err
			}
			if warning != nil {
				conn.tracer.Print("logon warning: ", warning.Error())
			}
			stop = true
		default:
			return fmt.Errorf("message code error: received code %d and expected code is 8", msg)
		}
	}
	return nil
}

// doTokenAuth finishes a bearer-token logon; the token replaces the
// password challenge entirely.
func (conn *Connection) doTokenAuth(ctx context.Context) error {
	if conn.config.TokenCallback != nil {
		token, err := conn.config.TokenCallback()
		if err != nil {
			return err
		}
		conn.config.Token = token
	}
	session := conn.session
	session.ResetBuffer()
	session.PutBytes(3, 0x73, 0)
	session.PutBytes(0, 0)
	mode := conn.LogonMode | NoNewPass
	session.PutUint(int(mode), 4, true, true)
	session.PutUint(1, 1, false, false)
	session.PutUint(1, 4, true, true)
	session.PutBytes(1, 1)
	session.PutKeyValString("AUTH_TOKEN", conn.config.Token, 0)
	if err := session.Write(); err != nil {
		return err
	}
	return conn.readResponse()
}

// readSummary decodes the end-of-call block, classifies the error and
// force-closes the socket when the session cannot continue.
func (conn *Connection) readSummary() error {
	session := conn.session
	var err error
	session.Summary, err = network.NewSummary(session)
	if err != nil {
		return err
	}
	if session.HasError() {
		oraErr := session.GetError()
		if oraErr.IsSessionDead() {
			conn.setBad()
		}
		return oraErr
	}
	return nil
}

// readServerPiggyback drains a server-initiated piggyback (message 23).
func (conn *Connection) readServerPiggyback() error {
	session := conn.session
	opCode, err := session.GetByte()
	if err != nil {
		return err
	}
	switch opCode {
	case 4, 8:
		// session state or parameter refresh: a key/value dictionary
		dictLen, err := session.GetInt(2, true, true)
		if err != nil {
			return err
		}
		for x := 0; x < dictLen; x++ {
			if _, _, _, err = session.GetKeyVal(); err != nil {
				return err
			}
		}
		return nil
	default:
		_, err = session.GetDlc()
		return err
	}
}

// readMsg handles the TTC messages every response can carry; the
// statement reader layers row handling on top of it.
func (conn *Connection) readMsg(msg uint8) error {
	session := conn.session
	switch msg {
	case 4:
		return conn.readSummary()
	case 8:
		dictLen, err := session.GetInt(2, true, true)
		if err != nil {
			return err
		}
		for x := 0; x < dictLen; x++ {
			if _, _, _, err = session.GetKeyVal(); err != nil {
				return err
			}
		}
		return nil
	case 9:
		if session.HasEOSCapability {
			if session.Summary == nil {
				session.Summary = new(network.SummaryObject)
			}
			var err error
			session.Summary.EndOfCallStatus, err = session.GetInt(4, true, true)
			if err != nil {
				return err
			}
		}
		if session.HasFSAPCapability {
			if session.Summary == nil {
				session.Summary = new(network.SummaryObject)
			}
			var err error
			session.Summary.EndToEndECIDSequence, err = session.GetInt(2, true, true)
			if err != nil {
				return err
			}
		}
		return nil
	case 15:
		warning, err := network.NewWarningObject(session)
		if err != nil {
			return err
		}
		if warning != nil {
			conn.tracer.Print("warning: ", warning.Error())
		}
		return nil
	case 19:
		// end of request: acknowledge so the server releases withheld
		// out binds, then resume decoding
		session.ResetBuffer()
		session.PutBytes(19)
		return session.Write()
	case 23:
		return conn.readServerPiggyback()
	default:
		return fmt.Errorf("TTC error: received unsupported message code %d", msg)
	}
}

// readResponse loops readMsg until the end-of-call marker.
func (conn *Connection) readResponse() error {
	session := conn.session
	for {
		msg, err := session.GetByte()
		if err != nil {
			return err
		}
		if err = conn.readMsg(msg); err != nil {
			return err
		}
		if msg == 4 || msg == 9 {
			break
		}
	}
	if session.HasError() {
		return session.GetError()
	}
	return nil
}

// processMessage is the request/response engine: serialize under the
// protocol lock, send, decode, and keep the break/reset, retry, resend
// and timeout rules of the state machine in one place.
func (conn *Connection) processMessage(ctx context.Context, write func() error, read func() error) error {
	conn.protoLock.Lock()
	defer conn.protoLock.Unlock()
	if conn.State != Opened || conn.session == nil {
		return ErrConnectionClosed
	}
	session := conn.session
	session.StartContext(ctx)
	defer session.EndContext()

	run := func() error {
		session.ResetBuffer()
		conn.writePiggybacks()
		if err := write(); err != nil {
			return err
		}
		return read()
	}
	err := run()
	if err == nil {
		conn.trackTransaction()
		return nil
	}
	// codec-signaled retry: one transparent replay after an
	// invalidation the server says is recoverable
	if canRetry(err) {
		conn.tracer.Print("retrying call after: ", err)
		if err2 := run(); err2 == nil {
			conn.trackTransaction()
			return nil
		} else {
			err = err2
		}
	}
	return conn.recover(ctx, err)
}

// recover restores the connection to READY (or force-closes it) after
// a failed call, per the break/reset protocol.
func (conn *Connection) recover(ctx context.Context, err error) error {
	session := conn.session
	if errors.Is(err, network.ErrConnReset) {
		// server aborted the call; its error block was already decoded
		if session.HasError() {
			oraErr := session.GetError()
			if oraErr.IsSessionDead() {
				conn.setBad()
				conn.forceClose()
			}
			if session.BreakInProgress() || oraErr.ErrCode == 1013 {
				return ErrCallCancelled
			}
			return oraErr
		}
		return ErrCallCancelled
	}
	var oraErr *network.OracleError
	if errors.As(err, &oraErr) && oraErr.ErrCode == 12751 {
		// call timeout: break the in-flight call and drain to the reset
		// acknowledgement; a second timeout is unrecoverable
		conn.tracer.Print("call timeout, sending break")
		if breakErr := session.BreakConnection(); breakErr != nil {
			conn.setBad()
			conn.forceClose()
			return ErrCallTimeout
		}
		recoveryCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		session.StartContext(recoveryCtx)
		resetErr := session.ResetConnection()
		cancel()
		if resetErr != nil {
			conn.setBad()
			conn.forceClose()
			return ErrCallTimeout
		}
		return ErrCallTimeout
	}
	if isBadConn(err) {
		conn.setBad()
		conn.forceClose()
		return err
	}
	if errors.As(err, &oraErr) {
		// a server error that arrived with its summary leaves the
		// stream positioned at end of call; nothing to clean up
		return err
	}
	if errors.Is(err, ErrTrailingTerminator) || errors.Is(err, ErrMissingTypeGuide) {
		// refused before anything was written
		return err
	}
	// decode failure mid-stream after the request went out: break and
	// drain to the reset acknowledgement so the connection ends READY
	if breakErr := session.BreakConnection(); breakErr == nil {
		if resetErr := session.ResetConnection(); resetErr != nil {
			conn.setBad()
			conn.forceClose()
		}
	} else {
		conn.setBad()
		conn.forceClose()
	}
	return err
}

func (conn *Connection) trackTransaction() {
	if conn.session.Summary != nil {
		conn.inTransaction = conn.session.Summary.Flags&network.CallStatusInTransaction != 0
	}
}

// BreakExternal cancels the in-flight call from another goroutine. It
// writes the break outside the protocol lock on a dedicated path so a
// mid-write request is never interleaved.
func (conn *Connection) BreakExternal() error {
	if conn.session == nil || conn.State != Opened {
		return ErrConnectionClosed
	}
	return conn.session.BreakConnection()
}

// scheduleCursorClose tombstones a cursor id; the close rides piggyback
// on the next round trip.
func (conn *Connection) scheduleCursorClose(cursorID int) {
	if cursorID == 0 {
		return
	}
	conn.cursorsLock.Lock()
	conn.cursorsToClose = append(conn.cursorsToClose, cursorID)
	conn.cursorsLock.Unlock()
}

// writePiggybacks prepends pending piggyback function codes (cursor
// closes) to the outgoing request.
func (conn *Connection) writePiggybacks() {
	conn.cursorsLock.Lock()
	cursors := conn.cursorsToClose
	lobs := conn.tempLobsToFree
	conn.cursorsToClose = nil
	conn.tempLobsToFree = nil
	conn.cursorsLock.Unlock()
	if len(cursors) > 0 {
		session := conn.session
		session.PutBytes(0x11, 0x69, 0, 1)
		session.PutUint(len(cursors), 4, true, true)
		for _, cursorID := range cursors {
			session.PutUint(cursorID, 4, true, true)
		}
		conn.tracer.Printf("piggyback close for %d cursors", len(cursors))
	}
	if len(lobs) > 0 {
		conn.writeTempLobFreePiggyback(lobs)
	}
}

func (conn *Connection) Ping(ctx context.Context) error {
	return (&simpleObject{
		connection:  conn,
		operationID: 0x93,
	}).exec(ctx)
}

func (conn *Connection) Commit() error {
	return (&simpleObject{
		connection:  conn,
		operationID: 0xE,
	}).exec(context.Background())
}

func (conn *Connection) Rollback() error {
	return (&simpleObject{
		connection:  conn,
		operationID: 0xF,
	}).exec(context.Background())
}

func (conn *Connection) Begin() (driver.Tx, error) {
	if conn.State != Opened {
		return nil, ErrConnectionClosed
	}
	conn.autoCommit = false
	return &Transaction{conn: conn, ctx: context.Background()}, nil
}

func (conn *Connection) BeginTx(ctx context.Context, opts driver.TxOptions) (driver.Tx, error) {
	if conn.State != Opened {
		return nil, ErrConnectionClosed
	}
	conn.autoCommit = false
	return &Transaction{conn: conn, ctx: ctx}, nil
}

func (conn *Connection) InTransaction() bool {
	return conn.inTransaction
}

// sessionRelease returns a DRCP session to the broker; deauthenticate
// tears down the authentication too (standalone close path).
func (conn *Connection) sessionRelease(deauthenticate bool) error {
	session := conn.session
	session.ResetBuffer()
	flags := 0
	if deauthenticate {
		flags |= 0x2
	}
	session.PutBytes(3, 0x9B, 0)
	session.PutBytes(0, 0) // no tag
	session.PutUint(flags, 4, true, true)
	return session.Write()
}

// Logoff runs the user-logoff function then the final EOF data packet.
func (conn *Connection) Logoff() error {
	session := conn.session
	session.ResetBuffer()
	session.PutBytes(0x11, 0x87, 0, 0, 0, 0x2, 0x1, 0x11,
		0x1, 0, 0, 0, 0x1, 0, 0, 0,
		0, 0, 0x1, 0, 0, 0, 0, 0,
		3, 9, 0)
	err := session.Write()
	if err != nil {
		return err
	}
	if err = conn.readResponse(); err != nil {
		return err
	}
	return session.WriteFinalPacket()
}

func (conn *Connection) Close() error {
	conn.tracer.Print("Close")
	var err error
	if conn.session != nil {
		if conn.State == Opened && !conn.bad {
			if conn.stmtCache != nil {
				conn.stmtCache.purgeAll()
			}
			err = conn.Logoff()
		}
		conn.session.Disconnect()
		conn.session = nil
	}
	conn.State = Closed
	return err
}

func (conn *Connection) setBad() {
	conn.bad = true
}

func (conn *Connection) forceClose() {
	if conn.session != nil {
		conn.session.Disconnect()
	}
	conn.State = Closed
}

// IsBad reports whether the engine classified the session as dead.
func (conn *Connection) IsBad() bool {
	return conn.bad
}

func (conn *Connection) getStrConv(charsetID int) converters.IStringConverter {
	if charsetID != 0 && conn.sStrConv != nil && charsetID != conn.sStrConv.GetLangID() {
		if conn.nStrConv != nil && charsetID == conn.nStrConv.GetLangID() {
			return conn.nStrConv
		}
		return converters.NewStringConverter(charsetID)
	}
	if conn.sStrConv == nil {
		return converters.NewStringConverter(converters.CharsetUTF8)
	}
	return conn.sStrConv
}

func (conn *Connection) getDefaultCharsetID() int {
	if conn.tcpNego != nil {
		return conn.tcpNego.ServerCharset
	}
	return converters.CharsetUTF8
}

// Prepare implements driver.Conn.
func (conn *Connection) Prepare(query string) (driver.Stmt, error) {
	return conn.PrepareStmt(query, true)
}

// PrepareStmt builds a statement; cacheStatement false bypasses (and
// evicts from) the statement cache.
func (conn *Connection) PrepareStmt(query string, cacheStatement bool) (*Stmt, error) {
	if conn.State != Opened {
		return nil, ErrConnectionClosed
	}
	return conn.stmtCache.get(query, cacheStatement)
}

// Cursor returns a fresh uncached statement holder the way the
// cursor() surface of the driver API does.
func (conn *Connection) Cursor() *Stmt {
	stmt := newStmt("", conn)
	stmt.fromCursor = true
	return stmt
}

// Subscribe is part of the events surface; change notification needs
// the event channel the thin core does not open.
func (conn *Connection) Subscribe() error {
	return ErrNotSupported
}

func (conn *Connection) Properties() map[string]string {
	return conn.SessionProperties
}

func (conn *Connection) DBVersion() *DBVersion {
	return conn.dBVersion
}
