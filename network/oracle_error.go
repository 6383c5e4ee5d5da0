package network

import "fmt"

// ErrorKind classifies a server or driver error per the DB-API style
// taxonomy the rest of the driver exposes.
type ErrorKind int

const (
	KindInterface ErrorKind = iota
	KindDatabase
	KindOperational
	KindIntegrity
	KindData
	KindNotSupported
)

type OracleError struct {
	ErrCode   int
	ErrMsg    string
	ErrPos    int
	IsWarning bool
}

func (err *OracleError) Error() string {
	if len(err.ErrMsg) == 0 {
		err.translate()
	}
	return err.ErrMsg
}

func NewOracleError(errCode int) *OracleError {
	result := &OracleError{ErrCode: errCode}
	result.translate()
	return result
}

func (err *OracleError) translate() {
	switch err.ErrCode {
	case 1:
		err.ErrMsg = "ORA-00001: unique constraint violated"
	case 900:
		err.ErrMsg = "ORA-00900: invalid SQL statement"
	case 942:
		err.ErrMsg = "ORA-00942: table or view does not exist"
	case 1000:
		err.ErrMsg = "ORA-01000: maximum open cursors exceeded"
	case 1013:
		err.ErrMsg = "ORA-01013: user requested cancel of current operation"
	case 1017:
		err.ErrMsg = "ORA-01017: invalid username/password; logon denied"
	case 1403:
		err.ErrMsg = "ORA-01403: no data found"
	case 1400:
		err.ErrMsg = "ORA-01400: cannot insert NULL"
	case 2291:
		err.ErrMsg = "ORA-02291: integrity constraint violated - parent key not found"
	case 2292:
		err.ErrMsg = "ORA-02292: integrity constraint violated - child record found"
	case 3113:
		err.ErrMsg = "ORA-03113: end-of-file on communication channel"
	case 3114:
		err.ErrMsg = "ORA-03114: not connected to ORACLE"
	case 3135:
		err.ErrMsg = "ORA-03135: connection lost contact"
	case 4068:
		err.ErrMsg = "ORA-04068: existing state of packages has been discarded"
	case 12170:
		err.ErrMsg = "ORA-12170: TNS:Connect timeout occurred"
	case 12514:
		err.ErrMsg = "ORA-12514: TNS:listener does not currently know of service requested in connect descriptor"
	case 12564:
		err.ErrMsg = "ORA-12564: TNS connection refused"
	case 12571:
		err.ErrMsg = "ORA-12571: TNS:packet writer failure"
	case 12751:
		err.ErrMsg = "ORA-12751: cpu time or run time policy violation"
	case 24338:
		err.ErrMsg = "ORA-24338: statement handle not executed"
	default:
		err.ErrMsg = fmt.Sprintf("ORA-%05d", err.ErrCode)
	}
}

// sessionDeadCodes are the server codes after which the socket cannot
// carry another call; the engine force-closes on any of them.
var sessionDeadCodes = map[int]bool{
	22:    true,
	28:    true,
	31:    true,
	45:    true,
	378:   true,
	600:   true,
	602:   true,
	603:   true,
	609:   true,
	1012:  true,
	1041:  true,
	1043:  true,
	1089:  true,
	1092:  true,
	2396:  true,
	3113:  true,
	3114:  true,
	3122:  true,
	3135:  true,
	12153: true,
	12537: true,
	12547: true,
	12570: true,
	12571: true,
	12583: true,
	12751: true,
	27146: true,
	28511: true,
}

// IsSessionDead reports whether the error leaves the connection unusable.
func (err *OracleError) IsSessionDead() bool {
	return sessionDeadCodes[err.ErrCode]
}

// Kind buckets the server code into the exposed taxonomy.
func (err *OracleError) Kind() ErrorKind {
	switch {
	case err.ErrCode == 0:
		return KindInterface
	case err.IsSessionDead(), err.ErrCode == 12170, err.ErrCode == 12514,
		err.ErrCode == 12564:
		return KindOperational
	case err.ErrCode == 1, err.ErrCode == 1400, err.ErrCode == 2291,
		err.ErrCode == 2292:
		return KindIntegrity
	case err.ErrCode == 1401, err.ErrCode == 1406, err.ErrCode == 1426,
		err.ErrCode == 1438, err.ErrCode == 1458, err.ErrCode == 1476,
		err.ErrCode == 1839, err.ErrCode == 22814:
		return KindData
	case err.ErrCode == 22318, err.ErrCode == 30188:
		return KindNotSupported
	case err.ErrCode == 1000, err.ErrCode == 24338:
		return KindInterface
	default:
		return KindDatabase
	}
}

// CanRetry reports whether the engine may transparently re-execute the
// failed call; limited to parse invalidations.
func (err *OracleError) CanRetry() bool {
	switch err.ErrCode {
	case 2393, 4061, 4065, 4068:
		return true
	}
	return false
}
