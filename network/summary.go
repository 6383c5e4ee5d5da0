package network

// call status bits reported in the end-of-call summary
const (
	CallStatusInTransaction = 0x2
)

// BatchError is one failed iteration of an array DML call.
type BatchError struct {
	Offset  int
	ErrCode int
	ErrMsg  string
}

// SummaryObject is the TTC error/status block (message type 4) that
// terminates nearly every server response. RetCode 0 means success;
// 1403 means the fetch ran off the end of the cursor.
type SummaryObject struct {
	EndOfCallStatus      int
	EndToEndECIDSequence int
	CurRowNumber         int
	RetCode              int
	ArrayElmWError       int
	ArrayElmErrno        int
	CursorID             int
	ErrorPos             int
	SqlType              int
	Fatal                int
	Flags                int
	RowsAffected         int64
	ErrorMessage         []byte
	RowID                []byte
	BatchErrors          []BatchError
}

// NewSummary decodes the error block. The same field sequence is read
// whatever TTC version the session negotiated.
func NewSummary(session *Session) (*SummaryObject, error) {
	result := new(SummaryObject)
	var err error
	result.EndOfCallStatus, err = session.GetInt(4, true, true)
	if err != nil {
		return nil, err
	}
	result.EndToEndECIDSequence, err = session.GetInt(2, true, true)
	if err != nil {
		return nil, err
	}
	result.CurRowNumber, err = session.GetInt(4, true, true)
	if err != nil {
		return nil, err
	}
	result.RetCode, err = session.GetInt(2, true, true)
	if err != nil {
		return nil, err
	}
	result.ArrayElmWError, err = session.GetInt(2, true, true)
	if err != nil {
		return nil, err
	}
	result.ArrayElmErrno, err = session.GetInt(2, true, true)
	if err != nil {
		return nil, err
	}
	result.CursorID, err = session.GetInt(2, true, true)
	if err != nil {
		return nil, err
	}
	result.ErrorPos, err = session.GetInt(2, true, true)
	if err != nil {
		return nil, err
	}
	result.SqlType, err = session.GetInt(1, false, false)
	if err != nil {
		return nil, err
	}
	result.Fatal, err = session.GetInt(1, false, false)
	if err != nil {
		return nil, err
	}
	result.Flags, err = session.GetInt(2, true, true)
	if err != nil {
		return nil, err
	}
	// user cursor options + upi parameter, both discarded
	if _, err = session.GetInt(2, true, true); err != nil {
		return nil, err
	}
	if _, err = session.GetInt(1, false, false); err != nil {
		return nil, err
	}
	result.RowID, err = session.GetDlc()
	if err != nil {
		return nil, err
	}
	// OS error and stmt number
	if _, err = session.GetInt(4, true, true); err != nil {
		return nil, err
	}
	if _, err = session.GetInt(2, true, true); err != nil {
		return nil, err
	}
	// call number, padding, success iters
	if _, err = session.GetInt(2, true, true); err != nil {
		return nil, err
	}
	rows, err := session.GetInt64(8, true, true)
	if err != nil {
		return nil, err
	}
	result.RowsAffected = rows
	result.ErrorMessage, err = session.GetClr()
	if err != nil {
		return nil, err
	}
	return result, nil
}

// NewWarningObject reads the warning block (message type 15). A zero
// code means no warning is attached.
func NewWarningObject(session *Session) (*OracleError, error) {
	errCode, err := session.GetInt(2, true, true)
	if err != nil {
		return nil, err
	}
	length, err := session.GetInt(2, true, true)
	if err != nil {
		return nil, err
	}
	// warning flags
	if _, err = session.GetInt(2, true, true); err != nil {
		return nil, err
	}
	if errCode == 0 || length == 0 {
		return nil, nil
	}
	msg, err := session.GetBytes(length)
	if err != nil {
		return nil, err
	}
	return &OracleError{ErrCode: errCode, ErrMsg: string(msg), IsWarning: true}, nil
}

// Err converts a non-zero summary into an OracleError.
func (summary *SummaryObject) Err(strConv interface{ Decode([]byte) string }) *OracleError {
	if summary.RetCode == 0 {
		return nil
	}
	msg := string(summary.ErrorMessage)
	if strConv != nil {
		msg = strConv.Decode(summary.ErrorMessage)
	}
	if len(msg) == 0 {
		return NewOracleError(summary.RetCode)
	}
	return &OracleError{
		ErrCode: summary.RetCode,
		ErrMsg:  msg,
		ErrPos:  summary.ErrorPos,
	}
}
