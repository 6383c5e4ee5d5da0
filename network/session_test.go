package network

import (
	"context"
	"encoding/binary"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orathin/orathin/configurations"
	"github.com/orathin/orathin/trace"
)

// fakeListener speaks just enough TNS framing to exercise phase one.
type fakeListener struct {
	listener net.Listener
	t        *testing.T
	handler  func(conn net.Conn)
}

func newFakeListener(t *testing.T, handler func(conn net.Conn)) *fakeListener {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	fl := &fakeListener{listener: listener, t: t, handler: handler}
	go func() {
		for {
			conn, err := listener.Accept()
			if err != nil {
				return
			}
			go func(c net.Conn) {
				defer func() {
					_ = c.Close()
				}()
				fl.handler(c)
			}(conn)
		}
	}()
	t.Cleanup(func() {
		_ = listener.Close()
	})
	return fl
}

func (fl *fakeListener) addr() configurations.Address {
	tcpAddr := fl.listener.Addr().(*net.TCPAddr)
	return configurations.Address{Protocol: "tcp", Host: "127.0.0.1", Port: tcpAddr.Port}
}

// readClientPacket reads one framed packet (pre-capability u16 length).
func readClientPacket(conn net.Conn) ([]byte, error) {
	head := make([]byte, 8)
	if _, err := fullRead(conn, head); err != nil {
		return nil, err
	}
	length := int(binary.BigEndian.Uint16(head))
	body := make([]byte, length-8)
	if len(body) > 0 {
		if _, err := fullRead(conn, body); err != nil {
			return nil, err
		}
	}
	return append(head, body...), nil
}

// acceptBytes builds a minimal ACCEPT with version 312 (u16 framing).
func acceptBytes(options uint16) []byte {
	out := make([]byte, 32)
	binary.BigEndian.PutUint16(out, 32)
	out[4] = uint8(ACCEPT)
	binary.BigEndian.PutUint16(out[8:], 312)
	binary.BigEndian.PutUint16(out[10:], options)
	binary.BigEndian.PutUint16(out[12:], 8192) // SDU
	binary.BigEndian.PutUint16(out[14:], 8192) // TDU
	binary.BigEndian.PutUint16(out[18:], 0)    // no accept data
	binary.BigEndian.PutUint16(out[20:], 32)   // data offset
	return out
}

func refuseBytes(message string) []byte {
	out := make([]byte, 12)
	out[4] = uint8(REFUSE)
	out[8] = 34
	out[9] = 4
	binary.BigEndian.PutUint16(out[10:], uint16(len(message)))
	out = append(out, message...)
	binary.BigEndian.PutUint16(out, uint16(len(out)))
	return out
}

func redirectBytes(host string, port int) []byte {
	payload := fmt.Sprintf("(ADDRESS=(PROTOCOL=tcp)(HOST=%s)(PORT=%d))", host, port)
	out := make([]byte, 10)
	out[4] = uint8(REDIRECT)
	binary.BigEndian.PutUint16(out[8:], uint16(len(payload)))
	out = append(out, payload...)
	binary.BigEndian.PutUint16(out, uint16(len(out)))
	return out
}

func testConfig(addr configurations.Address) *configurations.ConnectionConfig {
	config := configurations.DefaultConfig()
	config.Description.ServiceName = "orclpdb1"
	config.Description.ConnectTO = 5 * time.Second
	config.Description.Lists = []configurations.AddressList{{
		Addresses: []configurations.Address{addr},
	}}
	return config
}

func TestConnectAccept(t *testing.T) {
	fl := newFakeListener(t, func(conn net.Conn) {
		_, err := readClientPacket(conn)
		if err != nil {
			return
		}
		_, _ = conn.Write(acceptBytes(optionOOB))
	})
	session := NewSession(testConfig(fl.addr()), trace.NilTracer())
	err := session.Connect(context.Background())
	require.NoError(t, err)
	defer session.Disconnect()
	assert.Equal(t, uint16(312), session.Context.Version)
	assert.Equal(t, uint32(8192), session.Context.SessionDataUnit)
	assert.True(t, session.Context.SupportsOOB())
	assert.False(t, session.Context.UsesBigLength())
}

func TestConnectRefuse(t *testing.T) {
	fl := newFakeListener(t, func(conn net.Conn) {
		_, err := readClientPacket(conn)
		if err != nil {
			return
		}
		_, _ = conn.Write(refuseBytes("(DESCRIPTION=(ERR=12514))"))
	})
	session := NewSession(testConfig(fl.addr()), trace.NilTracer())
	err := session.Connect(context.Background())
	require.Error(t, err)
	var oraErr *OracleError
	require.ErrorAs(t, err, &oraErr)
	assert.Equal(t, 12514, oraErr.ErrCode)
}

func TestConnectRedirect(t *testing.T) {
	target := newFakeListener(t, func(conn net.Conn) {
		pck, err := readClientPacket(conn)
		if err != nil {
			return
		}
		// the replayed connect must carry the redirect flag
		if pck[5]&2 == 0 {
			return
		}
		_, _ = conn.Write(acceptBytes(0))
	})
	targetAddr := target.addr()
	first := newFakeListener(t, func(conn net.Conn) {
		_, err := readClientPacket(conn)
		if err != nil {
			return
		}
		_, _ = conn.Write(redirectBytes(targetAddr.Host, targetAddr.Port))
	})
	session := NewSession(testConfig(first.addr()), trace.NilTracer())
	err := session.Connect(context.Background())
	require.NoError(t, err)
	defer session.Disconnect()
	// the config now points at the redirect target
	require.Len(t, session.connConfig.Description.Lists, 1)
	addrs := session.connConfig.Description.Lists[0].Addresses
	require.Len(t, addrs, 1)
	assert.Equal(t, targetAddr.Host, addrs[0].Host)
	assert.Equal(t, targetAddr.Port, addrs[0].Port)
	assert.False(t, session.Context.SupportsOOB())
}

func TestConnectLargeConnectData(t *testing.T) {
	var gotData []byte
	done := make(chan struct{})
	fl := newFakeListener(t, func(conn net.Conn) {
		pck, err := readClientPacket(conn)
		if err != nil {
			return
		}
		if len(pck) == 58 {
			// header only: the connect data overflowed into a DATA packet
			data, err := readClientPacket(conn)
			if err != nil {
				return
			}
			gotData = data[10:]
		}
		close(done)
		_, _ = conn.Write(acceptBytes(0))
	})
	config := testConfig(fl.addr())
	config.Description.InstanceName = string(bytesOfLen(250))
	session := NewSession(config, trace.NilTracer())
	err := session.Connect(context.Background())
	require.NoError(t, err)
	defer session.Disconnect()
	<-done
	assert.NotEmpty(t, gotData)
}

func bytesOfLen(n int) []byte {
	out := make([]byte, n)
	for i := range out {
		out[i] = 'x'
	}
	return out
}

/* ---- typed buffer round trips (no socket) ---- */

func newLoopbackSession() *Session {
	return NewSession(configurations.DefaultConfig(), trace.NilTracer())
}

// loadOutput moves everything written into the read stream, as if it
// had arrived in DATA packets.
func (session *Session) loadOutput() {
	session.inBuffer = append([]byte{}, session.outBuffer.Bytes()...)
	session.outBuffer.Reset()
	session.index = 0
}

func TestClrRoundTripShort(t *testing.T) {
	session := newLoopbackSession()
	payload := []byte("hello oracle")
	session.PutClr(payload)
	session.loadOutput()
	out, err := session.GetClr()
	require.NoError(t, err)
	assert.Equal(t, payload, out)
}

func TestClrRoundTripChunked(t *testing.T) {
	session := newLoopbackSession()
	payload := bytesOfLen(1000)
	session.PutClr(payload)
	session.loadOutput()
	// chunked form starts with the long-length indicator
	assert.Equal(t, uint8(0xFE), session.inBuffer[0])
	out, err := session.GetClr()
	require.NoError(t, err)
	assert.Equal(t, payload, out)
}

func TestClrRoundTripBigChunks(t *testing.T) {
	session := newLoopbackSession()
	session.UseBigClrChunks = true
	session.ClrChunkSize = 0x7FFF
	payload := bytesOfLen(70000)
	session.PutClr(payload)
	session.loadOutput()
	out, err := session.GetClr()
	require.NoError(t, err)
	assert.Equal(t, payload, out)
}

func TestCompressedIntRoundTrip(t *testing.T) {
	session := newLoopbackSession()
	values := []int{0, 1, 0xFF, 0x100, 0xFFFF, 0x10000, 0x7FFFFFFF}
	for _, v := range values {
		session.PutUint(v, 4, true, true)
	}
	session.PutInt(-5, 4, true, true)
	session.loadOutput()
	for _, v := range values {
		out, err := session.GetInt(4, true, true)
		require.NoError(t, err)
		assert.Equal(t, v, out, "value %d", v)
	}
	out, err := session.GetInt(4, true, true)
	require.NoError(t, err)
	assert.Equal(t, -5, out)
}

func TestKeyValRoundTrip(t *testing.T) {
	session := newLoopbackSession()
	session.PutKeyValString("AUTH_TERMINAL", "unknown", 1)
	session.PutKeyVal(nil, nil, 0)
	session.loadOutput()
	key, val, num, err := session.GetKeyVal()
	require.NoError(t, err)
	assert.Equal(t, "AUTH_TERMINAL", string(key))
	assert.Equal(t, "unknown", string(val))
	assert.Equal(t, 1, num)
	key, val, num, err = session.GetKeyVal()
	require.NoError(t, err)
	assert.Nil(t, key)
	assert.Nil(t, val)
	assert.Equal(t, 0, num)
}

func TestSaveLoadState(t *testing.T) {
	session := newLoopbackSession()
	session.PutBytes(1, 2, 3)
	session.loadOutput()
	session.SaveState()
	b, err := session.GetByte()
	require.NoError(t, err)
	assert.Equal(t, uint8(1), b)
	session.LoadState()
	// the rewound cursor replays the same byte
	b, err = session.GetByte()
	require.NoError(t, err)
	assert.Equal(t, uint8(1), b)
}

func TestUncompressedEndianness(t *testing.T) {
	session := newLoopbackSession()
	session.PutUint(0x1234, 2, true, false)
	session.PutUint(0x1234, 2, false, false)
	session.loadOutput()
	assert.Equal(t, []byte{0x12, 0x34, 0x34, 0x12}, session.inBuffer)
}

/* ---- marker recovery ---- */

func markerBytes(markerType, markerData uint8) []byte {
	return []byte{0, 0xB, 0, 0, 0xC, 0x20, 0, 0, markerType, 0, markerData}
}

func zeroSummaryBytes() []byte {
	// every summary field zero: 19 compressed/plain zero bytes after
	// the message-type byte
	payload := make([]byte, 20)
	payload[0] = 4
	out := make([]byte, 10)
	out[4] = uint8(DATA)
	out = append(out, payload...)
	binary.BigEndian.PutUint16(out, uint16(len(out)))
	return out
}

func TestMarkerBreakResetRecovery(t *testing.T) {
	client, server := net.Pipe()
	defer func() {
		_ = client.Close()
	}()
	session := newLoopbackSession()
	session.conn = client
	go func() {
		defer func() {
			_ = server.Close()
		}()
		// break marker, reset marker, then the pending error payload
		_, _ = server.Write(markerBytes(1, markerTypeBreak))
		_, _ = server.Write(markerBytes(1, markerTypeReset))
		// client echoes its reset marker
		echo := make([]byte, 11)
		if _, err := fullRead(server, echo); err != nil {
			return
		}
		_, _ = server.Write(zeroSummaryBytes())
	}()
	_, err := session.readPacket()
	require.ErrorIs(t, err, ErrConnReset)
	assert.True(t, session.Context.GotReset)
	require.NotNil(t, session.Summary)
	assert.Equal(t, 0, session.Summary.RetCode)
}
