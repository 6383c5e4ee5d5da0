package orathin

import (
	"bytes"
	"context"
	"database/sql/driver"
	"errors"
	"fmt"

	"github.com/orathin/orathin/network"
)

// LOB operation codes for function 0x60
const (
	lobOpGetLength    = 0x0001
	lobOpRead         = 0x0002
	lobOpTrim         = 0x0020
	lobOpWrite        = 0x0040
	lobOpGetChunkSize = 0x4000
	lobOpCreateTemp   = 0x0110
	lobOpFreeTemp     = 0x0111
	lobOpOpen         = 0x8000
	lobOpClose        = 0x10000
	lobOpIsOpen       = 0x11000
)

// Clob carries a character LOB locator; String is populated once the
// value is read.
type Clob struct {
	locator []byte
	lob     Lob
	String  string
	Valid   bool
}

type Blob struct {
	locator []byte
	lob     Lob
	Data    []byte
	Valid   bool
}

// Lob drives server-side locator operations. A fetched row carries the
// locator only; bytes move on demand, which needs the owning
// connection idle and open.
type Lob struct {
	connection    *Connection
	sourceLocator []byte
	destLocator   []byte
	scn           []byte
	sourceOffset  int64
	destOffset    int64
	sourceLen     int
	destLen       int
	charsetID     int
	chunkSize     int
	size          int64
	sizeValid     bool
	data          bytes.Buffer
	bNullO2U      bool
	isNull        bool
	moreData      bool
}

func newLob(connection *Connection) *Lob {
	return &Lob{connection: connection}
}

// variableWidthChar reports whether the clob stores variable width
// characters; bit 7 of locator byte 6.
func (lob *Lob) variableWidthChar() bool {
	return len(lob.sourceLocator) > 6 && lob.sourceLocator[6]&128 == 128
}

func (lob *Lob) isTemporary() bool {
	if len(lob.sourceLocator) > 7 {
		if lob.sourceLocator[7]&1 == 1 || lob.sourceLocator[4]&64 == 64 {
			return true
		}
	}
	return false
}

// GetLength asks the server for the current length; cached until the
// next operation on the locator.
func (lob *Lob) GetLength(ctx context.Context) (int64, error) {
	if lob.sizeValid {
		return lob.size, nil
	}
	err := lob.exec(ctx, lobOpGetLength, nil)
	if err != nil {
		return 0, err
	}
	lob.sizeValid = true
	return lob.size, nil
}

// Read returns up to amount bytes from offset (1-based, in characters
// for CLOB) and whether more data remains.
func (lob *Lob) Read(ctx context.Context, offset, amount int64) ([]byte, bool, error) {
	lob.data.Reset()
	lob.sourceOffset = offset
	lob.size = amount
	err := lob.exec(ctx, lobOpRead, nil)
	if err != nil {
		return nil, false, err
	}
	return lob.data.Bytes(), lob.moreData, nil
}

// GetData reads the whole value in one operation.
func (lob *Lob) GetData(ctx context.Context) ([]byte, error) {
	lob.data.Reset()
	lob.sourceOffset = 1
	lob.size = 0
	err := lob.exec(ctx, lobOpRead, nil)
	if err != nil {
		return nil, err
	}
	return lob.data.Bytes(), nil
}

// Write replaces amount bytes at offset; invalidates the cached length.
func (lob *Lob) Write(ctx context.Context, offset int64, data []byte) error {
	lob.sourceOffset = offset
	lob.size = int64(len(data))
	lob.sizeValid = false
	return lob.exec(ctx, lobOpWrite, data)
}

// Trim shortens the value to newLength; invalidates the cached length.
func (lob *Lob) Trim(ctx context.Context, newLength int64) error {
	lob.size = newLength
	lob.sizeValid = false
	return lob.exec(ctx, lobOpTrim, nil)
}

func (lob *Lob) Open(ctx context.Context) error {
	lob.size = 1 // open mode: read/write
	return lob.exec(ctx, lobOpOpen, nil)
}

func (lob *Lob) Close(ctx context.Context) error {
	return lob.exec(ctx, lobOpClose, nil)
}

func (lob *Lob) GetChunkSize(ctx context.Context) (int, error) {
	if lob.chunkSize > 0 {
		return lob.chunkSize, nil
	}
	err := lob.exec(ctx, lobOpGetChunkSize, nil)
	if err != nil {
		return 0, err
	}
	lob.chunkSize = int(lob.size)
	return lob.chunkSize, nil
}

// CreateTemporary allocates a temporary locator server-side; isClob
// selects the charset-bearing form.
func (lob *Lob) CreateTemporary(ctx context.Context, isClob bool) error {
	lob.sourceLocator = make([]byte, 40)
	lob.sourceLen = len(lob.sourceLocator)
	if isClob {
		lob.charsetID = lob.connection.getDefaultCharsetID()
	}
	lob.sourceOffset = 110 // duration: session
	lob.bNullO2U = true
	lob.destOffset = 10
	if isClob {
		lob.destLen = 1
	} else {
		lob.destLen = 0
	}
	lob.size = 10
	err := lob.exec(ctx, lobOpCreateTemp, []byte("LOB"))
	lob.bNullO2U = false
	lob.destOffset = 0
	lob.destLen = 0
	return err
}

func (lob *Lob) FreeTemporary(ctx context.Context) error {
	if !lob.isTemporary() {
		return nil
	}
	return lob.exec(ctx, lobOpFreeTemp, nil)
}

func (lob *Lob) exec(ctx context.Context, operationID int, data []byte) error {
	if lob.connection == nil || lob.connection.State != Opened {
		return ErrConnectionClosed
	}
	if operationID != lobOpGetLength {
		// size doubles as the request amount and the reply value
		lob.sizeValid = false
	}
	return lob.connection.processMessage(ctx, func() error {
		lob.writeOp(operationID)
		if data != nil && operationID == lobOpWrite {
			lob.connection.session.PutBytes(0xE)
			lob.connection.session.PutClr(data)
		}
		return lob.connection.session.Write()
	}, lob.read)
}

// writeOp emits the 0x60 LOB call header for the given operation.
func (lob *Lob) writeOp(operationID int) {
	session := lob.connection.session
	session.PutBytes(3, 0x60, 0)
	if len(lob.sourceLocator) == 0 {
		session.PutBytes(0)
	} else {
		session.PutBytes(1)
	}
	session.PutUint(lob.sourceLen, 4, true, true)
	if len(lob.destLocator) == 0 {
		session.PutBytes(0)
	} else {
		session.PutBytes(1)
	}
	session.PutUint(lob.destLen, 4, true, true)
	if session.TTCVersion < 3 {
		session.PutUint(lob.sourceOffset, 4, true, true)
		session.PutUint(lob.destOffset, 4, true, true)
	} else {
		session.PutBytes(0, 0)
	}
	if lob.charsetID != 0 {
		session.PutBytes(1)
	} else {
		session.PutBytes(0)
	}
	if session.TTCVersion < 3 {
		session.PutBytes(1)
	} else {
		session.PutBytes(0)
	}
	if lob.bNullO2U {
		session.PutBytes(1)
	} else {
		session.PutBytes(0)
	}
	session.PutInt(operationID, 4, true, true)
	if len(lob.scn) == 0 {
		session.PutBytes(0)
	} else {
		session.PutBytes(1)
	}
	session.PutUint(len(lob.scn), 4, true, true)
	if session.TTCVersion >= 3 {
		session.PutUint(lob.sourceOffset, 8, true, true)
		session.PutInt(lob.destOffset, 8, true, true)
		session.PutBytes(1) // send amount
	}
	if session.TTCVersion >= 4 {
		session.PutBytes(0, 0, 0, 0, 0, 0)
	}
	if len(lob.sourceLocator) > 0 {
		session.PutBytes(lob.sourceLocator...)
	}
	if len(lob.destLocator) > 0 {
		session.PutBytes(lob.destLocator...)
	}
	if lob.charsetID != 0 {
		session.PutUint(lob.charsetID, 2, true, true)
	}
	if session.TTCVersion < 3 {
		session.PutUint(lob.size, 4, true, true)
	}
	for x := 0; x < len(lob.scn); x++ {
		session.PutUint(lob.scn[x], 4, true, true)
	}
	if session.TTCVersion >= 3 {
		session.PutUint(lob.size, 8, true, true)
	}
}

// read walks the LOB response: locator echo, size, data chunks,
// warnings, summary.
func (lob *Lob) read() error {
	session := lob.connection.session
	lob.moreData = false
	loop := true
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
				if session.Summary.RetCode == 1403 {
					session.Summary = nil
				} else {
					return session.GetError()
				}
			}
			loop = false
		case 8:
			if len(lob.sourceLocator) != 0 {
				lob.sourceLocator, err = session.GetBytes(len(lob.sourceLocator))
				if err != nil {
					return err
				}
				lob.sourceLen = len(lob.sourceLocator)
			} else {
				lob.sourceLen = 0
			}
			if len(lob.destLocator) != 0 {
				lob.destLocator, err = session.GetBytes(len(lob.destLocator))
				if err != nil {
					return err
				}
				lob.destLen = len(lob.destLocator)
			} else {
				lob.destLen = 0
			}
			if lob.charsetID != 0 {
				lob.charsetID, err = session.GetInt(2, true, true)
				if err != nil {
					return err
				}
			}
			if session.TTCVersion < 3 {
				lob.size, err = session.GetInt64(4, true, true)
			} else {
				lob.size, err = session.GetInt64(8, true, true)
			}
			if err != nil {
				return err
			}
			if lob.bNullO2U {
				temp, err := session.GetInt(2, true, true)
				if err != nil {
					return err
				}
				if temp != 0 {
					lob.isNull = true
				}
			}
		case 9:
			if err = lob.connection.readMsg(msg); err != nil {
				return err
			}
			loop = false
		case 14:
			if err = lob.readData(); err != nil {
				return err
			}
		case 15:
			warning, err := network.NewWarningObject(session)
			if err != nil {
				return err
			}
			if warning != nil {
				lob.connection.tracer.Print("lob warning: ", warning.Error())
			}
		case 19:
			session.ResetBuffer()
			session.PutBytes(19)
			if err = session.Write(); err != nil {
				return err
			}
		case 23:
			if err = lob.connection.readServerPiggyback(); err != nil {
				return err
			}
		default:
			return fmt.Errorf("TTC error: received code %d during LOB reading", msg)
		}
	}
	return nil
}

// readData appends one data message worth of chunks; a continuation
// flag 1 chunk means the server has more to send.
func (lob *Lob) readData() error {
	session := lob.connection.session
	chunk, err := session.GetClr()
	if err != nil {
		return err
	}
	lob.data.Write(chunk)
	flag, err := session.GetByte()
	if err != nil {
		return err
	}
	lob.moreData = flag == 1
	return nil
}

/* ---- public wrappers ---- */

// CreateClob builds a temporary CLOB populated with data.
func (conn *Connection) CreateClob(ctx context.Context, data string) (*Clob, error) {
	lob := newLob(conn)
	if err := lob.CreateTemporary(ctx, true); err != nil {
		return nil, err
	}
	if len(data) > 0 {
		encoded := conn.getStrConv(lob.charsetID).Encode(data)
		if err := lob.Write(ctx, 1, encoded); err != nil {
			return nil, err
		}
	}
	return &Clob{locator: lob.sourceLocator, lob: *lob, String: data, Valid: true}, nil
}

// CreateBlob builds a temporary BLOB populated with data.
func (conn *Connection) CreateBlob(ctx context.Context, data []byte) (*Blob, error) {
	lob := newLob(conn)
	if err := lob.CreateTemporary(ctx, false); err != nil {
		return nil, err
	}
	if len(data) > 0 {
		if err := lob.Write(ctx, 1, data); err != nil {
			return nil, err
		}
	}
	return &Blob{locator: lob.sourceLocator, lob: *lob, Data: data, Valid: true}, nil
}

// Load pulls the full CLOB value through the open connection.
func (c *Clob) Load(ctx context.Context) error {
	if c.lob.connection == nil {
		return errors.New("clob has no owning connection")
	}
	data, err := c.lob.GetData(ctx)
	if err != nil {
		return err
	}
	c.String = c.lob.connection.getStrConv(c.lob.charsetID).Decode(data)
	return nil
}

func (c *Clob) Lob() *Lob {
	return &c.lob
}

func (c Clob) Value() (driver.Value, error) {
	return c, nil
}

// Load pulls the full BLOB value through the open connection.
func (b *Blob) Load(ctx context.Context) error {
	if b.lob.connection == nil {
		return errors.New("blob has no owning connection")
	}
	data, err := b.lob.GetData(ctx)
	if err != nil {
		return err
	}
	b.Data = data
	return nil
}

func (b *Blob) Lob() *Lob {
	return &b.lob
}

func (b Blob) Value() (driver.Value, error) {
	return b, nil
}

// scheduleTempLobFree queues a temporary locator for the array-free
// piggyback on the next round trip.
func (conn *Connection) scheduleTempLobFree(locator []byte) {
	if len(locator) == 0 {
		return
	}
	conn.cursorsLock.Lock()
	conn.tempLobsToFree = append(conn.tempLobsToFree, locator)
	conn.cursorsLock.Unlock()
}

// writeTempLobFreePiggyback emits the 0x60 array-free call for every
// queued temporary locator.
func (conn *Connection) writeTempLobFreePiggyback(locators [][]byte) {
	session := conn.session
	totalLen := 0
	for _, locator := range locators {
		totalLen += len(locator)
	}
	session.PutBytes(0x11, 0x60, 0, 1)
	session.PutUint(totalLen, 4, true, true)
	session.PutBytes(0, 0, 0, 0, 0, 0, 0)
	session.PutUint(0x80111, 4, true, true)
	session.PutBytes(0, 0, 0, 0, 0)
	for _, locator := range locators {
		session.PutBytes(locator...)
	}
	conn.tracer.Printf("piggyback free for %d temporary lobs", len(locators))
}
