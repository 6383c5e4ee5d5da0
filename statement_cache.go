package orathin

import (
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
)

// statementCache keeps parsed cursors alive keyed by statement text
// plus the execution properties that change the parsed shape (returning
// clause, array DML). Eviction tombstones the server cursor; the close
// rides piggyback on the next round trip. Size 0 disables caching and
// every statement closes on release.
type statementCache struct {
	conn    *Connection
	cache   *lru.Cache[string, *Stmt]
	maxSize int
}

func newStatementCache(conn *Connection, size int) *statementCache {
	sc := &statementCache{conn: conn, maxSize: size}
	if size > 0 {
		sc.cache, _ = lru.NewWithEvict[string, *Stmt](size, func(key string, stmt *Stmt) {
			conn.scheduleCursorClose(stmt.cursorID)
			stmt.cursorID = 0
			stmt.cached = false
		})
	}
	return sc
}

func cacheKey(stmt *Stmt) string {
	return fmt.Sprintf("%s|%t|%t", stmt.text, stmt._hasReturnClause, stmt.bulkExec)
}

// get returns a cached statement for the text, or a fresh one. With
// cacheStatement false any existing entry is dropped first, so the
// server reparses from scratch.
func (sc *statementCache) get(query string, cacheStatement bool) (*Stmt, error) {
	probe := newStmt(query, sc.conn)
	key := cacheKey(probe)
	if sc.cache == nil {
		probe.autoClose = true
		return probe, nil
	}
	if !cacheStatement {
		sc.cache.Remove(key)
		probe.autoClose = true
		return probe, nil
	}
	if stmt, ok := sc.cache.Get(key); ok && !stmt.tombstoned {
		// reuse the open cursor: skip the parse on the next execute
		if stmt.cursorID != 0 {
			stmt.parse = false
		}
		return stmt, nil
	}
	probe.cached = true
	return probe, nil
}

// store inserts a statement after its first successful execute.
func (sc *statementCache) store(stmt *Stmt) {
	if sc.cache == nil || !stmt.cached || stmt.tombstoned {
		return
	}
	sc.cache.Add(cacheKey(stmt), stmt)
}

// invalidate drops a poisoned statement: the server-side plan is gone
// (ORA-4068 and friends) so the cursor closes and the text reparses.
func (sc *statementCache) invalidate(stmt *Stmt) {
	if sc.cache != nil {
		sc.cache.Remove(cacheKey(stmt))
	}
	sc.conn.scheduleCursorClose(stmt.cursorID)
	stmt.cursorID = 0
	stmt.parse = true
	stmt.tombstoned = false
}

// purgeAll closes every cached cursor; used at connection close.
func (sc *statementCache) purgeAll() {
	if sc.cache == nil {
		return
	}
	for _, key := range sc.cache.Keys() {
		if stmt, ok := sc.cache.Peek(key); ok {
			sc.conn.scheduleCursorClose(stmt.cursorID)
			stmt.cursorID = 0
		}
	}
	sc.cache.Purge()
}

func (sc *statementCache) len() int {
	if sc.cache == nil {
		return 0
	}
	return sc.cache.Len()
}
