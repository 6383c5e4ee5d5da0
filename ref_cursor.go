package orathin

import (
	"context"
)

// RefCursor is a server-opened cursor returned through an OUT bind or
// an implicit result set; it fetches through the normal row pipeline.
type RefCursor struct {
	defaultStmt
	MaxRowSize int
	parent     *defaultStmt
	loaded     bool
}

// load reads the nested cursor description the server appends to the
// carrying response: column descriptors plus the cursor id.
func (cursor *RefCursor) load() error {
	session := cursor.connection.session
	cursor.stmtType = SELECT
	cursor._hasMoreRows = true
	cursor._noOfRowsToFetch = cursor.connection.config.PrefetchRows
	cursor.prefetchRows = cursor.connection.config.PrefetchRows
	cursor.scnForSnapshot = make([]int, 2)
	length, err := session.GetByte()
	if err != nil {
		return err
	}
	if length > 0 {
		// the describe block mirrors message 16 without its preamble
		if _, err = session.GetBytes(1); err != nil {
			return err
		}
		cursor.MaxRowSize, err = session.GetInt(4, true, true)
		if err != nil {
			return err
		}
		columnCount, err := session.GetInt(4, true, true)
		if err != nil {
			return err
		}
		if columnCount > 0 {
			if _, err = session.GetByte(); err != nil {
				return err
			}
			cursor.columns = make([]ParameterInfo, columnCount)
			for x := 0; x < columnCount; x++ {
				if err = cursor.columns[x].load(cursor.connection); err != nil {
					return err
				}
				if cursor.columns[x].isLongType() {
					cursor._hasLONG = true
				}
				if cursor.columns[x].isLobType() {
					cursor._hasBLOB = true
				}
			}
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
	}
	cursor.cursorID, err = session.GetInt(2, true, true)
	if err != nil {
		return err
	}
	cursor.loaded = true
	return nil
}

// Query starts fetching from the server-opened cursor.
func (cursor *RefCursor) Query() (*DataSet, error) {
	return cursor.QueryContext(context.Background())
}

func (cursor *RefCursor) QueryContext(ctx context.Context) (*DataSet, error) {
	if !cursor.loaded {
		return nil, ErrFetchBeforeExecute
	}
	dataSet := new(DataSet)
	dataSet.parent = &cursor.defaultStmt
	dataSet.cols = &cursor.columns
	dataSet.columnCount = len(cursor.columns)
	if err := cursor.fetch(dataSet); err != nil {
		return nil, err
	}
	return dataSet, nil
}

func (cursor *RefCursor) Close() error {
	cursor.connection.scheduleCursorClose(cursor.cursorID)
	cursor.cursorID = 0
	return nil
}
