package orathin

import (
	"database/sql/driver"
	"errors"

	"github.com/orathin/orathin/network"
)

// Driver-side failures; server failures surface as *network.OracleError.
var (
	ErrConnectionClosed    = errors.New("connection is closed")
	ErrTrailingTerminator  = errors.New("statement text ends with a terminator; remove the trailing ';' or '/'")
	ErrCallTimeout         = errors.New("call timeout exceeded")
	ErrCallCancelled       = errors.New("call cancelled by break")
	ErrNotSupported        = errors.New("operation not supported in thin mode")
	ErrPoolExhausted       = errors.New("connection pool exhausted")
	ErrPoolClosed          = errors.New("connection pool is closed")
	ErrMissingTypeGuide    = errors.New("cannot infer bind type: all values are nil; call setinputsizes or bind a typed zero value")
	ErrScrollableNotOpen   = errors.New("cursor is not open for scrolling")
	ErrFetchBeforeExecute  = errors.New("fetch called before a query was executed")
	ErrInvalidVectorFormat = errors.New("unexpected data for vector type")
)

// Kind exposes the taxonomy of an error: interface misuse, server
// database error, transient operational failure, or the classified
// subsets of a database error.
func Kind(err error) network.ErrorKind {
	var oraErr *network.OracleError
	if errors.As(err, &oraErr) {
		return oraErr.Kind()
	}
	switch {
	case errors.Is(err, ErrCallTimeout), errors.Is(err, ErrCallCancelled),
		errors.Is(err, ErrConnectionClosed), errors.Is(err, driver.ErrBadConn):
		return network.KindOperational
	case errors.Is(err, ErrNotSupported):
		return network.KindNotSupported
	default:
		return network.KindInterface
	}
}

// isBadConn reports whether the session behind the error cannot carry
// another call; the caller force-closes the socket so later operations
// fail fast instead of hanging.
func isBadConn(err error) bool {
	var oraErr *network.OracleError
	if errors.As(err, &oraErr) {
		return oraErr.IsSessionDead()
	}
	return errors.Is(err, driver.ErrBadConn)
}

// canRetry reports whether a codec marked the message replayable after
// a recoverable parse invalidation.
func canRetry(err error) bool {
	var oraErr *network.OracleError
	if errors.As(err, &oraErr) {
		return oraErr.CanRetry()
	}
	return false
}
