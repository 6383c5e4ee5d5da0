package network

import (
	"bufio"
	"bytes"
	"context"
	"crypto/tls"
	"encoding/binary"
	"errors"
	"fmt"
	"net"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/orathin/orathin/configurations"
	"github.com/orathin/orathin/converters"
	"github.com/orathin/orathin/trace"
)

// ErrConnReset is returned when the server aborts the in-flight call
// with a break/reset marker exchange; the error message that follows has
// already been decoded into Summary and the connection stays usable.
var ErrConnReset = errors.New("connection reset by break")

// ErrConnInterrupt names a call interrupted by a local break; no code
// path in this module returns it.
var ErrConnInterrupt = errors.New("call interrupted")

type Data interface {
	Write(session *Session) error
	Read(session *Session) error
}

type sessionState struct {
	summary   *SummaryObject
	sendPcks  []PacketInterface
	inBuffer  []byte
	outBuffer []byte
	index     int
}

// Session owns the socket and both byte streams. Outbound typed writes
// accumulate in outBuffer and are split into DATA packets bounded by
// the negotiated SDU on Write; inbound DATA payloads concatenate into
// inBuffer, which the typed readers consume and extend on demand.
type Session struct {
	mu         sync.Mutex
	conn       net.Conn
	sslConn    *tls.Conn
	connConfig *configurations.ConnectionConfig
	Context    *SessionContext
	sendPcks   []PacketInterface
	inBuffer   []byte
	outBuffer  bytes.Buffer
	index      int

	breakInProgress int32
	oobDisabled     bool
	deadline        time.Time

	TimeZone          []byte
	TTCVersion        uint8
	HasEOSCapability  bool
	HasFSAPCapability bool
	Summary           *SummaryObject
	states            []sessionState
	StrConv           converters.IStringConverter
	UseBigClrChunks   bool
	ClrChunkSize      int
	tracer            trace.Tracer
}

func NewSession(config *configurations.ConnectionConfig, tracer trace.Tracer) *Session {
	if tracer == nil {
		tracer = trace.NilTracer()
	}
	return &Session{
		connConfig:      config,
		Context:         NewSessionContext(config),
		UseBigClrChunks: false,
		ClrChunkSize:    0x40,
		tracer:          tracer,
	}
}

// SaveState pushes the decode cursor so a partially consumed message
// can be replayed after more packets arrive or after a resend.
func (session *Session) SaveState() {
	session.states = append(session.states, sessionState{
		summary:   session.Summary,
		sendPcks:  session.sendPcks,
		inBuffer:  session.inBuffer,
		outBuffer: session.outBuffer.Bytes(),
		index:     session.index,
	})
}

func (session *Session) LoadState() {
	index := len(session.states) - 1
	if index >= 0 {
		currentState := session.states[index]
		session.Summary = currentState.summary
		session.sendPcks = currentState.sendPcks
		session.inBuffer = currentState.inBuffer
		session.outBuffer.Reset()
		session.outBuffer.Write(currentState.outBuffer)
		session.index = currentState.index
		if index == 0 {
			session.states = nil
		} else {
			session.states = session.states[:index]
		}
	}
}

func (session *Session) DiscardState() {
	if index := len(session.states) - 1; index >= 0 {
		session.states = session.states[:index]
	}
}

// StartContext arms the socket deadline for one call. A zero call
// timeout leaves the session-level timeout in force.
func (session *Session) StartContext(ctx context.Context) {
	session.deadline = time.Time{}
	if d, ok := ctx.Deadline(); ok {
		session.deadline = d
	} else if session.connConfig.CallTimeout > 0 {
		session.deadline = time.Now().Add(session.connConfig.CallTimeout)
	}
	session.applyDeadline()
}

func (session *Session) EndContext() {
	session.deadline = time.Time{}
	session.applyDeadline()
}

func (session *Session) applyDeadline() {
	if session.conn != nil {
		_ = session.conn.SetDeadline(session.deadline)
	}
}

func (session *Session) IsClosed() bool {
	return session.conn == nil
}

// dial opens the TCP stream, optionally tunnelling through an HTTPS
// CONNECT proxy, and wraps TLS for tcps addresses.
func (session *Session) dial(ctx context.Context, addr configurations.Address) error {
	dialer := net.Dialer{Timeout: session.connConfig.Description.ConnectTO}
	target := net.JoinHostPort(addr.Host, strconv.Itoa(addr.Port))
	dialTo := target
	if addr.Proxy != "" {
		dialTo = addr.Proxy
	}
	conn, err := dialer.DialContext(ctx, "tcp", dialTo)
	if err != nil {
		return &OracleError{ErrCode: 12170, ErrMsg: fmt.Sprintf("ORA-12170: TNS:Connect timeout occurred: %v", err)}
	}
	if addr.Proxy != "" {
		if err = proxyHandshake(conn, target); err != nil {
			_ = conn.Close()
			return err
		}
	}
	session.conn = conn
	session.sslConn = nil
	if addr.IsTCPS() {
		session.oobDisabled = true
		session.wrapTLS(addr.Host)
	}
	session.applyDeadline()
	return nil
}

// proxyHandshake speaks the minimal CONNECT exchange and accepts any
// HTTP/1.x 200 status line.
func proxyHandshake(conn net.Conn, target string) error {
	_, err := fmt.Fprintf(conn, "CONNECT %s HTTP/1.0\r\n\r\n", target)
	if err != nil {
		return err
	}
	reader := bufio.NewReader(conn)
	status, err := reader.ReadString('\n')
	if err != nil {
		return err
	}
	if !strings.HasPrefix(status, "HTTP/1.") || !strings.Contains(status, " 200") {
		return fmt.Errorf("proxy refused CONNECT: %s", strings.TrimSpace(status))
	}
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			return err
		}
		if line == "\r\n" || line == "\n" {
			return nil
		}
	}
}

func (session *Session) wrapTLS(host string) {
	config := &tls.Config{ServerName: host}
	if !session.connConfig.SSLVerify {
		config.InsecureSkipVerify = true
	}
	session.sslConn = tls.Client(session.conn, config)
	session.tracer.Print("TLS handshake armed for ", host)
}

// renegotiateTLS re-wraps the stream when the server's ACCEPT requests
// a second handshake (server-driven mTLS after the first hello).
func (session *Session) renegotiateTLS() {
	host := ""
	if addr, ok := session.conn.RemoteAddr().(*net.TCPAddr); ok {
		host = addr.IP.String()
	}
	session.wrapTLS(host)
	session.tracer.Print("TLS renegotiation requested by server")
}

func (session *Session) netReader() net.Conn {
	if session.sslConn != nil {
		return session.sslConn
	}
	return session.conn
}

// Connect runs phase one against every address of the description until
// one accepts, following redirects. Each address is tried once; refuse
// retries under the description's retry budget are left to the caller.
func (session *Session) Connect(ctx context.Context) error {
	session.Disconnect()
	tracer := session.tracer
	tracer.Print("Connect")
	addresses := session.connConfig.Description.Flatten(int(time.Now().UnixNano() & 0x7FFF))
	if len(addresses) == 0 {
		return errors.New("connect string contains no addresses")
	}
	var lastErr error
	for _, addr := range addresses {
		lastErr = session.connectEndpoint(ctx, addr, false)
		if lastErr == nil {
			return nil
		}
		session.Disconnect()
	}
	return lastErr
}

func (session *Session) connectEndpoint(ctx context.Context, addr configurations.Address, redirect bool) error {
	if err := session.dial(ctx, addr); err != nil {
		return err
	}
	connectData := session.connConfig.ConnectionData(addr)
	session.tracer.Print("connect data: ", connectData)
	connectPacket := newConnectPacket(session.Context, connectData, redirect)
	if err := session.writePacket(connectPacket); err != nil {
		return err
	}
	if connectPacket.needsDataPacket() {
		session.PutBytes(connectPacket.buffer...)
		if err := session.Write(); err != nil {
			return err
		}
	}
	pck, err := session.readPacket()
	if err != nil {
		return err
	}
	switch pck := pck.(type) {
	case *AcceptPacket:
		session.Context.handshakeComplete = true
		if session.Context.WantsTLSRenegotiation() && session.sslConn != nil {
			session.renegotiateTLS()
		}
		if !session.Context.SupportsOOB() {
			session.oobDisabled = true
		}
		session.tracer.Print("Handshake Complete")
		return nil
	case *RedirectPacket:
		session.tracer.Print("Redirect")
		return session.followRedirect(ctx, pck)
	case *RefusePacket:
		session.tracer.Printf("connection refused: user reason %d; system reason %d; message: %s",
			pck.UserReason, pck.SystemReason, pck.message)
		return &pck.Err
	}
	return errors.New("connection refused by the server due to unknown reason")
}

var redirectHostRegexp = regexp.MustCompile(`(?i)\(\s*HOST\s*=\s*([^)\s]+)\s*\)`)
var redirectPortRegexp = regexp.MustCompile(`(?i)\(\s*PORT\s*=\s*([0-9]+)\s*\)`)
var redirectProtoRegexp = regexp.MustCompile(`(?i)\(\s*PROTOCOL\s*=\s*([^)\s]+)\s*\)`)

func (session *Session) followRedirect(ctx context.Context, pck *RedirectPacket) error {
	// the redirect payload may ride in the packet or in a follow-up DATA
	var data string
	if uint16(pck.length) <= pck.dataOffset {
		follow, err := session.readPacket()
		if err != nil {
			return err
		}
		dataPck, ok := follow.(*DataPacket)
		if !ok {
			return errors.New("redirect without address payload")
		}
		data = string(dataPck.buffer)
	} else {
		data = pck.redirectAddr
	}
	if idx := strings.Index(data, "\x00"); pck.flag&2 != 0 && idx > 0 {
		pck.redirectAddr = data[:idx]
		pck.reconnectData = data[idx+1:]
	} else {
		pck.redirectAddr = data
	}
	addr := configurations.Address{Protocol: "tcp"}
	if m := redirectProtoRegexp.FindStringSubmatch(pck.redirectAddr); len(m) == 2 {
		addr.Protocol = strings.ToLower(m[1])
	}
	if m := redirectHostRegexp.FindStringSubmatch(pck.redirectAddr); len(m) == 2 {
		addr.Host = m[1]
	}
	if m := redirectPortRegexp.FindStringSubmatch(pck.redirectAddr); len(m) == 2 {
		addr.Port, _ = strconv.Atoi(m[1])
	}
	if addr.Host == "" {
		return errors.New("redirect packet with no host")
	}
	if len(pck.reconnectData) > 0 {
		session.connConfig.UpdateDescription(pck.reconnectData)
	}
	session.tracer.Printf("redirected to %s:%d", addr.Host, addr.Port)
	session.Disconnect()
	session.connConfig.Description.Lists = []configurations.AddressList{
		{Addresses: []configurations.Address{addr}},
	}
	return session.connectEndpoint(ctx, addr, true)
}

func (session *Session) Disconnect() {
	session.ResetBuffer()
	session.states = nil
	if session.conn != nil {
		_ = session.conn.Close()
		session.conn = nil
		session.sslConn = nil
	}
}

func (session *Session) ResetBuffer() {
	session.Summary = nil
	session.sendPcks = nil
	session.inBuffer = nil
	session.outBuffer.Reset()
	session.index = 0
}

// Write splits the pending output buffer into DATA packets no larger
// than SDU and sends them in order.
func (session *Session) Write() error {
	outputBytes := session.outBuffer.Bytes()
	size := session.outBuffer.Len()
	if size == 0 {
		return session.writePacket(newDataPacket(nil, session.Context))
	}
	segmentLen := int(session.Context.SessionDataUnit - 20)
	offset := 0
	for size > segmentLen {
		pck := newDataPacket(outputBytes[offset:offset+segmentLen], session.Context)
		if err := session.writePacket(pck); err != nil {
			session.outBuffer.Reset()
			return err
		}
		size -= segmentLen
		offset += segmentLen
	}
	if size != 0 {
		pck := newDataPacket(outputBytes[offset:], session.Context)
		if err := session.writePacket(pck); err != nil {
			session.outBuffer.Reset()
			return err
		}
	}
	// sent packets are tracked in sendPcks for RESEND replay; the byte
	// buffer itself must not be re-sent by a later Write
	session.outBuffer.Reset()
	return nil
}

// WriteFinalPacket sends the empty EOF-flagged DATA packet that closes
// the conversation after logoff.
func (session *Session) WriteFinalPacket() error {
	pck := newDataPacket(nil, session.Context)
	pck.dataFlag = dataFlagEOF
	return session.writePacket(pck)
}

func (session *Session) writePacket(pck PacketInterface) error {
	session.mu.Lock()
	defer session.mu.Unlock()
	if session.conn == nil {
		return NewOracleError(3114)
	}
	session.sendPcks = append(session.sendPcks, pck)
	tmp := pck.bytes()
	session.tracer.LogPacket("Write packet:", tmp)
	var err error
	if session.sslConn != nil {
		_, err = session.sslConn.Write(tmp)
	} else {
		_, err = session.conn.Write(tmp)
	}
	return err
}

// BreakConnection interrupts the in-flight call: a single urgent byte
// followed by a break marker when out-of-band is negotiated, otherwise
// the in-band break marker alone.
// Guarded so concurrent breaks collapse into one.
func (session *Session) BreakConnection() error {
	if !atomic.CompareAndSwapInt32(&session.breakInProgress, 0, 1) {
		return nil
	}
	session.Context.OnBreakReset = true
	session.tracer.Print("Break")
	if session.oobEnabled() {
		if err := session.sendOOB(); err == nil {
			// the marker after OOB carries the attention-only data byte
			return session.writePacket(newMarkerPacket(markerTypeBreak, session.Context))
		}
		session.oobDisabled = true
	}
	return session.writePacket(newMarkerPacket(markerTypeBreak, session.Context))
}

func (session *Session) oobEnabled() bool {
	return !session.oobDisabled && session.Context.SupportsOOB() && session.sslConn == nil
}

// BreakInProgress reports whether an external break awaits its reset.
func (session *Session) BreakInProgress() bool {
	return atomic.LoadInt32(&session.breakInProgress) == 1
}

// ResetConnection drains the stream until the server echoes the reset
// marker, skips any extra markers, then consumes the error message that
// follows so the next call starts on a clean stream.
func (session *Session) ResetConnection() error {
	defer atomic.StoreInt32(&session.breakInProgress, 0)
	if err := session.writePacket(newMarkerPacket(markerTypeReset, session.Context)); err != nil {
		return err
	}
	session.Context.OnBreakReset = true
	for {
		packetData, err := session.readPacketData()
		if err != nil {
			return err
		}
		if PacketType(packetData[4]) != MARKER {
			continue
		}
		pck := newMarkerPacketFromData(packetData, session.Context)
		if pck != nil && pck.isReset() {
			break
		}
	}
	session.Context.OnBreakReset = false
	session.Context.GotReset = true
	session.ResetBuffer()
	// some servers emit extra markers before the error payload
	for {
		packetData, err := session.readPacketData()
		if err != nil {
			return err
		}
		if PacketType(packetData[4]) == MARKER {
			continue
		}
		dataPck, err := newDataPacketFromData(packetData, session.Context)
		if err != nil {
			return err
		}
		session.inBuffer = dataPck.buffer
		session.index = 0
		break
	}
	msg, err := session.GetByte()
	if err != nil {
		return err
	}
	if msg == 4 {
		session.Summary, err = NewSummary(session)
		if err != nil {
			return err
		}
	}
	session.ResetBuffer()
	return nil
}

// read returns numBytes from the inbound stream, pulling more DATA
// packets as needed. This is the resume point: in cooperative use the
// caller's goroutine parks inside readPacket until bytes arrive.
func (session *Session) read(numBytes int) ([]byte, error) {
	for session.index+numBytes > len(session.inBuffer) {
		pck, err := session.readPacket()
		if err != nil {
			return nil, err
		}
		if dataPck, ok := pck.(*DataPacket); ok {
			session.inBuffer = append(session.inBuffer, dataPck.buffer...)
		} else {
			return nil, errors.New("the packet received is not data packet")
		}
	}
	ret := session.inBuffer[session.index : session.index+numBytes]
	session.index += numBytes
	return ret, nil
}

// readPacketData reads exactly one framed packet off the wire.
func (session *Session) readPacketData() ([]byte, error) {
	conn := session.netReader()
	if conn == nil {
		return nil, NewOracleError(3114)
	}
	trials := 0
	for {
		if trials > 3 {
			return nil, errors.New("abnormal response")
		}
		trials++
		head := make([]byte, 8)
		if _, err := fullRead(conn, head); err != nil {
			return nil, session.convertNetErr(err)
		}
		pckType := PacketType(head[4])
		length := packetLength(head, session.Context)
		if length < 8 {
			return nil, errors.New("packet length smaller than header")
		}
		length -= 8
		body := make([]byte, length)
		if length > 0 {
			if _, err := fullRead(conn, body); err != nil {
				return nil, session.convertNetErr(err)
			}
		}
		if pckType == RESEND {
			// the server wants the previous packets replayed unchanged,
			// renegotiating TLS first when the stream is wrapped
			if session.sslConn != nil {
				session.renegotiateTLS()
				conn = session.netReader()
			}
			for _, pck := range session.sendPcks {
				var err error
				if session.sslConn != nil {
					_, err = session.sslConn.Write(pck.bytes())
				} else {
					_, err = session.conn.Write(pck.bytes())
				}
				if err != nil {
					return nil, err
				}
			}
			continue
		}
		ret := append(head, body...)
		session.tracer.LogPacket("Read packet:", ret)
		return ret, nil
	}
}

func fullRead(conn net.Conn, buffer []byte) (int, error) {
	index := 0
	for index < len(buffer) {
		n, err := conn.Read(buffer[index:])
		index += n
		if err != nil {
			if e, ok := err.(net.Error); ok && e.Timeout() && n != 0 {
				continue
			}
			return index, err
		}
	}
	return index, nil
}

func (session *Session) convertNetErr(err error) error {
	if e, ok := err.(net.Error); ok && e.Timeout() {
		return &OracleError{ErrCode: 12751, ErrMsg: "ORA-12751: call timeout occurred"}
	}
	if errors.Is(err, net.ErrClosed) {
		return NewOracleError(3114)
	}
	return &OracleError{ErrCode: 3113, ErrMsg: fmt.Sprintf("ORA-03113: end-of-file on communication channel: %v", err)}
}

// readPacket reads and classifies a packet. Marker packets short-
// circuit into the break/reset recovery dance and surface ErrConnReset.
func (session *Session) readPacket() (PacketInterface, error) {
	packetData, err := session.readPacketData()
	if err != nil {
		return nil, err
	}
	pckType := PacketType(packetData[4])
	switch pckType {
	case ACCEPT:
		pck := newAcceptPacketFromData(packetData, session.Context)
		if pck == nil {
			return nil, errors.New("malformed accept packet")
		}
		return pck, nil
	case REFUSE:
		pck := newRefusePacketFromData(packetData)
		if pck == nil {
			return nil, errors.New("malformed refuse packet")
		}
		return pck, nil
	case REDIRECT:
		pck := newRedirectPacketFromData(packetData)
		if pck == nil {
			return nil, errors.New("malformed redirect packet")
		}
		if uint16(pck.length) > pck.dataOffset {
			dataLen := binary.BigEndian.Uint16(packetData[8:])
			if 10+int(dataLen) <= len(packetData) {
				pck.redirectAddr = string(packetData[10 : 10+dataLen])
			}
		}
		return pck, nil
	case DATA:
		return newDataPacketFromData(packetData, session.Context)
	case MARKER:
		return nil, session.handleMarker(packetData)
	default:
		return nil, fmt.Errorf("unsupported packet type %d", pckType)
	}
}

// handleMarker consumes a server break: drain any further break
// markers, echo reset, wait for the reset echo, then hand back control
// with ErrConnReset so the engine reads the pending error message.
func (session *Session) handleMarker(packetData []byte) error {
	pck := newMarkerPacketFromData(packetData, session.Context)
	if pck == nil {
		return errors.New("unknown marker type")
	}
	resetSeen := pck.isReset()
	breakSeen := !resetSeen
	trials := 0
	for breakSeen && !resetSeen {
		if trials > 3 {
			return errors.New("connection break")
		}
		trials++
		data, err := session.readPacketData()
		if err != nil {
			return err
		}
		if PacketType(data[4]) != MARKER {
			// interleaved data during a break is discarded
			continue
		}
		pck = newMarkerPacketFromData(data, session.Context)
		if pck == nil {
			return errors.New("unknown marker type")
		}
		if pck.isReset() {
			resetSeen = true
		}
	}
	session.ResetBuffer()
	if err := session.writePacket(newMarkerPacket(markerTypeReset, session.Context)); err != nil {
		return err
	}
	// some servers emit extra markers before the error payload
	for {
		data, err := session.readPacketData()
		if err != nil {
			return err
		}
		if PacketType(data[4]) == MARKER {
			continue
		}
		dataPck, err := newDataPacketFromData(data, session.Context)
		if err != nil {
			return err
		}
		session.inBuffer = dataPck.buffer
		session.index = 0
		break
	}
	atomic.StoreInt32(&session.breakInProgress, 0)
	session.Context.GotReset = true
	msg, err := session.GetByte()
	if err != nil {
		return err
	}
	if msg == 4 {
		session.Summary, err = NewSummary(session)
		if err != nil {
			return err
		}
		if session.HasError() {
			return session.GetError()
		}
	}
	return ErrConnReset
}

func (session *Session) HasError() bool {
	return session.Summary != nil && session.Summary.RetCode != 0
}

func (session *Session) GetError() *OracleError {
	if session.Summary != nil && session.Summary.RetCode != 0 {
		return session.Summary.Err(session.StrConv)
	}
	return nil
}

/* ---- typed writers ---- */

func (session *Session) PutString(data string) {
	session.PutClr([]byte(data))
}

func (session *Session) PutBytes(data ...byte) {
	session.outBuffer.Write(data)
}

func (session *Session) PutUint(number interface{}, size uint8, bigEndian bool, compress bool) {
	var num uint64
	switch number := number.(type) {
	case int64:
		num = uint64(number)
	case int32:
		num = uint64(number)
	case int16:
		num = uint64(number)
	case int8:
		num = uint64(number)
	case uint64:
		num = number
	case uint32:
		num = uint64(number)
	case uint16:
		num = uint64(number)
	case uint8:
		num = uint64(number)
	case uint:
		num = uint64(number)
	case int:
		num = uint64(number)
	default:
		panic("you need to pass an integer to this function")
	}
	if size == 1 {
		session.outBuffer.WriteByte(uint8(num))
		return
	}
	if compress {
		temp := make([]byte, 8)
		binary.BigEndian.PutUint64(temp, num)
		temp = bytes.TrimLeft(temp, "\x00")
		if size > uint8(len(temp)) {
			size = uint8(len(temp))
		}
		if size == 0 {
			session.outBuffer.WriteByte(0)
		} else {
			session.outBuffer.WriteByte(size)
			session.outBuffer.Write(temp[:size])
		}
	} else {
		temp := make([]byte, size)
		if bigEndian {
			switch size {
			case 2:
				binary.BigEndian.PutUint16(temp, uint16(num))
			case 4:
				binary.BigEndian.PutUint32(temp, uint32(num))
			case 8:
				binary.BigEndian.PutUint64(temp, num)
			}
		} else {
			switch size {
			case 2:
				binary.LittleEndian.PutUint16(temp, uint16(num))
			case 4:
				binary.LittleEndian.PutUint32(temp, uint32(num))
			case 8:
				binary.LittleEndian.PutUint64(temp, num)
			}
		}
		session.outBuffer.Write(temp)
	}
}

func (session *Session) PutInt(number interface{}, size uint8, bigEndian bool, compress bool) {
	var num int64
	switch number := number.(type) {
	case int64:
		num = number
	case int32:
		num = int64(number)
	case int16:
		num = int64(number)
	case int8:
		num = int64(number)
	case uint64:
		num = int64(number)
	case uint32:
		num = int64(number)
	case uint16:
		num = int64(number)
	case uint8:
		num = int64(number)
	case uint:
		num = int64(number)
	case int:
		num = int64(number)
	default:
		panic("you need to pass an integer to this function")
	}
	if compress {
		neg := num < 0
		if neg {
			num = -num
		}
		temp := make([]byte, 8)
		binary.BigEndian.PutUint64(temp, uint64(num))
		temp = bytes.TrimLeft(temp, "\x00")
		if size > uint8(len(temp)) {
			size = uint8(len(temp))
		}
		if size == 0 {
			session.outBuffer.WriteByte(0)
		} else {
			if neg {
				session.outBuffer.WriteByte(size | 0x80)
			} else {
				session.outBuffer.WriteByte(size)
			}
			session.outBuffer.Write(temp[:size])
		}
	} else {
		if size == 1 {
			session.outBuffer.WriteByte(uint8(num))
		} else {
			temp := make([]byte, size)
			if bigEndian {
				switch size {
				case 2:
					binary.BigEndian.PutUint16(temp, uint16(num))
				case 4:
					binary.BigEndian.PutUint32(temp, uint32(num))
				case 8:
					binary.BigEndian.PutUint64(temp, uint64(num))
				}
			} else {
				switch size {
				case 2:
					binary.LittleEndian.PutUint16(temp, uint16(num))
				case 4:
					binary.LittleEndian.PutUint32(temp, uint32(num))
				case 8:
					binary.LittleEndian.PutUint64(temp, uint64(num))
				}
			}
			session.outBuffer.Write(temp)
		}
	}
}

// PutClr writes a length-prefixed byte string: one length byte up to
// 0xFC, the chunked 0xFE form beyond that.
func (session *Session) PutClr(data []byte) {
	dataLen := len(data)
	if dataLen > 0xFC {
		session.outBuffer.WriteByte(0xFE)
		start := 0
		for start < dataLen {
			end := start + session.ClrChunkSize
			if end > dataLen {
				end = dataLen
			}
			temp := data[start:end]
			if session.UseBigClrChunks {
				session.PutInt(len(temp), 4, true, true)
			} else {
				session.outBuffer.WriteByte(uint8(len(temp)))
			}
			session.outBuffer.Write(temp)
			start += session.ClrChunkSize
		}
		session.outBuffer.WriteByte(0)
	} else if dataLen == 0 {
		session.outBuffer.WriteByte(0)
	} else {
		session.outBuffer.WriteByte(uint8(dataLen))
		session.outBuffer.Write(data)
	}
}

func (session *Session) PutKeyValString(key string, val string, num uint8) {
	session.PutKeyVal([]byte(key), []byte(val), num)
}

func (session *Session) PutKeyVal(key []byte, val []byte, num uint8) {
	if len(key) == 0 {
		session.outBuffer.WriteByte(0)
	} else {
		session.PutUint(len(key), 4, true, true)
		session.PutClr(key)
	}
	if len(val) == 0 {
		session.outBuffer.WriteByte(0)
	} else {
		session.PutUint(len(val), 4, true, true)
		session.PutClr(val)
	}
	session.PutInt(num, 4, true, true)
}

func (session *Session) PutData(data Data) error {
	return data.Write(session)
}

/* ---- typed readers ---- */

func (session *Session) GetData(data Data) error {
	return data.Read(session)
}

func (session *Session) GetByte() (uint8, error) {
	rb, err := session.read(1)
	if err != nil {
		return 0, err
	}
	return rb[0], nil
}

func (session *Session) GetInt64(size int, compress bool, bigEndian bool) (int64, error) {
	var ret int64
	negFlag := false
	if compress {
		rb, err := session.read(1)
		if err != nil {
			return 0, err
		}
		size = int(rb[0])
		if size&0x80 > 0 {
			negFlag = true
			size = size & 0x7F
		}
		bigEndian = true
	}
	if size == 0 {
		return 0, nil
	}
	if size > 8 {
		return 0, fmt.Errorf("oversized integer field: %d bytes", size)
	}
	rb, err := session.read(size)
	if err != nil {
		return 0, err
	}
	temp := make([]byte, 8)
	if bigEndian {
		copy(temp[8-size:], rb)
		ret = int64(binary.BigEndian.Uint64(temp))
	} else {
		copy(temp[:size], rb)
		ret = int64(binary.LittleEndian.Uint64(temp))
	}
	if negFlag {
		ret = ret * -1
	}
	return ret, nil
}

func (session *Session) GetInt(size int, compress bool, bigEndian bool) (int, error) {
	temp, err := session.GetInt64(size, compress, bigEndian)
	if err != nil {
		return 0, err
	}
	return int(temp), nil
}

func (session *Session) GetNullTermString(maxSize int) (result string, err error) {
	oldIndex := session.index
	temp, err := session.read(maxSize)
	if err != nil {
		return
	}
	find := bytes.Index(temp, []byte{0})
	if find > 0 {
		result = string(temp[:find])
		session.index = oldIndex + find + 1
	} else {
		result = string(temp)
	}
	return
}

// GetClr reads the length-prefixed byte string form written by PutClr.
// 0 and 0xFF both mean null; 0xFE introduces the chunked encoding.
func (session *Session) GetClr() (output []byte, err error) {
	var size uint8
	var rb []byte
	size, err = session.GetByte()
	if err != nil {
		return
	}
	if size == 0 || size == 0xFF {
		output = nil
		return
	}
	if size != 0xFE {
		output, err = session.read(int(size))
		return
	}
	var tempBuffer bytes.Buffer
	for {
		var size1 int
		if session.UseBigClrChunks {
			size1, err = session.GetInt(4, true, true)
		} else {
			size1, err = session.GetInt(1, false, false)
		}
		if err != nil || size1 == 0 {
			break
		}
		rb, err = session.read(size1)
		if err != nil {
			return
		}
		tempBuffer.Write(rb)
	}
	output = tempBuffer.Bytes()
	return
}

// GetDlc reads a 4-byte-length-prefixed CLR ("described length clause").
func (session *Session) GetDlc() (output []byte, err error) {
	var length int
	length, err = session.GetInt(4, true, true)
	if err != nil {
		return
	}
	if length > 0 {
		output, err = session.GetClr()
		if len(output) > length {
			output = output[:length]
		}
	}
	return
}

func (session *Session) GetBytes(length int) ([]byte, error) {
	return session.read(length)
}

func (session *Session) GetKeyVal() (key []byte, val []byte, num int, err error) {
	key, err = session.GetDlc()
	if err != nil {
		return
	}
	val, err = session.GetDlc()
	if err != nil {
		return
	}
	num, err = session.GetInt(4, true, true)
	return
}
