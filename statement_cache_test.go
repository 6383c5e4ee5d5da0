package orathin

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatementCacheLRU(t *testing.T) {
	conn := testConnection()
	cache := newStatementCache(conn, 3)
	// five distinct statements through a size-3 cache
	var stmts []*Stmt
	for i := 0; i < 5; i++ {
		stmt, err := cache.get(fmt.Sprintf("SELECT %d FROM DUAL", i), true)
		require.NoError(t, err)
		stmt.cursorID = 100 + i
		cache.store(stmt)
		stmts = append(stmts, stmt)
	}
	assert.Equal(t, 3, cache.len())
	// the three most recently used survive
	for i := 2; i < 5; i++ {
		got, err := cache.get(fmt.Sprintf("SELECT %d FROM DUAL", i), true)
		require.NoError(t, err)
		assert.Equal(t, stmts[i], got, "statement %d should be cached", i)
	}
	// evicted cursors are tombstoned for the next round trip
	conn.cursorsLock.Lock()
	closing := append([]int{}, conn.cursorsToClose...)
	conn.cursorsLock.Unlock()
	assert.ElementsMatch(t, []int{100, 101}, closing)
}

func TestStatementCacheHitSkipsParse(t *testing.T) {
	conn := testConnection()
	cache := newStatementCache(conn, 2)
	stmt, err := cache.get("SELECT 1 FROM DUAL", true)
	require.NoError(t, err)
	stmt.cursorID = 7
	cache.store(stmt)
	got, err := cache.get("SELECT 1 FROM DUAL", true)
	require.NoError(t, err)
	assert.Same(t, stmt, got)
	assert.False(t, got.parse)
}

func TestStatementCacheDisabled(t *testing.T) {
	conn := testConnection()
	cache := newStatementCache(conn, 0)
	stmt, err := cache.get("SELECT 1 FROM DUAL", true)
	require.NoError(t, err)
	assert.True(t, stmt.autoClose)
	cache.store(stmt)
	assert.Equal(t, 0, cache.len())
}

func TestStatementCacheUncachedPrepareEvicts(t *testing.T) {
	conn := testConnection()
	cache := newStatementCache(conn, 2)
	stmt, err := cache.get("SELECT 1 FROM DUAL", true)
	require.NoError(t, err)
	stmt.cursorID = 9
	cache.store(stmt)
	// prepare with caching off drops the existing entry
	fresh, err := cache.get("SELECT 1 FROM DUAL", true)
	require.NoError(t, err)
	require.Same(t, stmt, fresh)
	uncached, err := cache.get("SELECT 1 FROM DUAL", false)
	require.NoError(t, err)
	assert.NotSame(t, stmt, uncached)
	assert.Equal(t, 0, cache.len())
}

func TestStatementCacheInvalidate(t *testing.T) {
	conn := testConnection()
	cache := newStatementCache(conn, 2)
	stmt, err := cache.get("SELECT 1 FROM DUAL", true)
	require.NoError(t, err)
	stmt.cursorID = 11
	cache.store(stmt)
	stmt.tombstoned = true
	cache.invalidate(stmt)
	assert.True(t, stmt.parse)
	assert.False(t, stmt.tombstoned)
	assert.Zero(t, stmt.cursorID)
	conn.cursorsLock.Lock()
	closing := append([]int{}, conn.cursorsToClose...)
	conn.cursorsLock.Unlock()
	assert.Contains(t, closing, 11)
}

func TestCacheKeySeparatesShapes(t *testing.T) {
	conn := testConnection()
	a := newStmt("INSERT INTO t VALUES (:1)", conn)
	b := newStmt("INSERT INTO t VALUES (:1) RETURNING id INTO :2", conn)
	assert.NotEqual(t, cacheKey(a), cacheKey(b))
}
