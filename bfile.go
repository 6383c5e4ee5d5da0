package orathin

import (
	"context"
	"encoding/binary"
	"errors"
)

// BFILE-only operation codes
const (
	lobOpFileOpen   = 0x0100
	lobOpFileClose  = 0x0200
	lobOpFileIsOpen = 0x0400
	lobOpFileExists = 0x0800
)

// BFile reads server-filesystem files through a directory-object
// locator. The locator packs the directory and file names after a
// fixed 16-byte header.
type BFile struct {
	lob    Lob
	isOpen bool
	Valid  bool
}

// NewBFile builds a locator for dir/fileName; the file is validated on
// open, not here.
func NewBFile(conn *Connection, dir, fileName string) (*BFile, error) {
	if conn.State != Opened {
		return nil, ErrConnectionClosed
	}
	dirBytes := []byte(dir)
	fileBytes := []byte(fileName)
	locator := make([]byte, 16, 16+2+len(dirBytes)+2+len(fileBytes))
	locator[1] = 0x4 // directory-access form
	locator = binary.BigEndian.AppendUint16(locator, uint16(len(dirBytes)))
	locator = append(locator, dirBytes...)
	locator = binary.BigEndian.AppendUint16(locator, uint16(len(fileBytes)))
	locator = append(locator, fileBytes...)
	file := &BFile{Valid: true}
	file.lob = Lob{
		connection:    conn,
		sourceLocator: locator,
		sourceLen:     len(locator),
	}
	return file, nil
}

// DirFile unpacks the directory and file names from the locator.
func (file *BFile) DirFile() (dir, fileName string, err error) {
	locator := file.lob.sourceLocator
	if len(locator) < 18 {
		return "", "", errors.New("malformed BFILE locator")
	}
	dirLen := int(binary.BigEndian.Uint16(locator[16:]))
	if 18+dirLen+2 > len(locator) {
		return "", "", errors.New("malformed BFILE locator")
	}
	dir = string(locator[18 : 18+dirLen])
	fileLen := int(binary.BigEndian.Uint16(locator[18+dirLen:]))
	start := 18 + dirLen + 2
	if start+fileLen > len(locator) {
		return "", "", errors.New("malformed BFILE locator")
	}
	fileName = string(locator[start : start+fileLen])
	return dir, fileName, nil
}

func (file *BFile) Open(ctx context.Context) error {
	if file.isOpen {
		return nil
	}
	file.lob.size = 11 // read-only mode
	if err := file.lob.exec(ctx, lobOpFileOpen, nil); err != nil {
		return err
	}
	file.isOpen = true
	return nil
}

func (file *BFile) Close(ctx context.Context) error {
	if !file.isOpen {
		return nil
	}
	if err := file.lob.exec(ctx, lobOpFileClose, nil); err != nil {
		return err
	}
	file.isOpen = false
	return nil
}

// Exists asks the server whether the file is reachable through the
// directory object.
func (file *BFile) Exists(ctx context.Context) (bool, error) {
	if err := file.lob.exec(ctx, lobOpFileExists, nil); err != nil {
		return false, err
	}
	return file.lob.size != 0, nil
}

func (file *BFile) GetLength(ctx context.Context) (int64, error) {
	if !file.isOpen {
		return 0, errors.New("BFILE must be open before reading")
	}
	return file.lob.GetLength(ctx)
}

func (file *BFile) Read(ctx context.Context, offset, amount int64) ([]byte, bool, error) {
	if !file.isOpen {
		return nil, false, errors.New("BFILE must be open before reading")
	}
	return file.lob.Read(ctx, offset, amount)
}
