package orathin

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orathin/orathin/configurations"
)

// stubPool builds a pool whose connections never touch the network.
func stubPool(t *testing.T, opts PoolOptions) *Pool {
	t.Helper()
	config := configurations.DefaultConfig()
	config.Description.ServiceName = "stub"
	p, err := CreatePoolFromConfig(config, opts)
	require.NoError(t, err)
	p.dialFn = func(ctx context.Context) (*Connection, error) {
		conn, err := NewConnectionFromConfig(config)
		if err != nil {
			return nil, err
		}
		conn.State = Opened
		return conn, nil
	}
	t.Cleanup(p.Close)
	return p
}

func TestPoolBound(t *testing.T) {
	p := stubPool(t, PoolOptions{Max: 2, GetMode: PoolNoWait})
	a, err := p.Acquire(context.Background())
	require.NoError(t, err)
	b, err := p.Acquire(context.Background())
	require.NoError(t, err)
	stat := p.Stat()
	assert.Equal(t, 2, stat.Busy)
	assert.Equal(t, 0, stat.Free)
	assert.LessOrEqual(t, stat.Busy+stat.Free, stat.Max)

	// NOWAIT with everything busy fails immediately
	_, err = p.Acquire(context.Background())
	assert.ErrorIs(t, err, ErrPoolExhausted)

	require.NoError(t, a.Release())
	require.NoError(t, b.Release())
	stat = p.Stat()
	assert.Equal(t, 0, stat.Busy)
	assert.Equal(t, 2, stat.Free)
}

func TestPoolForceGetExceedsMax(t *testing.T) {
	p := stubPool(t, PoolOptions{Max: 1, GetMode: PoolForceGet})
	a, err := p.Acquire(context.Background())
	require.NoError(t, err)
	// the second acquire overflows past max with an unpooled connection
	b, err := p.Acquire(context.Background())
	require.NoError(t, err)
	assert.True(t, b.overflow)
	require.NoError(t, b.Release())
	require.NoError(t, a.Release())
}

func TestPoolTimedWait(t *testing.T) {
	p := stubPool(t, PoolOptions{Max: 1, GetMode: PoolTimedWait, WaitTimeout: 50 * time.Millisecond})
	a, err := p.Acquire(context.Background())
	require.NoError(t, err)
	start := time.Now()
	_, err = p.Acquire(context.Background())
	require.Error(t, err)
	assert.Less(t, time.Since(start), 2*time.Second)
	require.NoError(t, a.Release())
}

func TestPoolLIFOReuse(t *testing.T) {
	p := stubPool(t, PoolOptions{Max: 3})
	a, err := p.Acquire(context.Background())
	require.NoError(t, err)
	first := a.Connection
	require.NoError(t, a.Release())
	b, err := p.Acquire(context.Background())
	require.NoError(t, err)
	assert.Same(t, first, b.Connection)
	require.NoError(t, b.Release())
}

func TestPoolDoubleReleaseIsIdempotent(t *testing.T) {
	p := stubPool(t, PoolOptions{Max: 1})
	a, err := p.Acquire(context.Background())
	require.NoError(t, err)
	require.NoError(t, a.Release())
	require.NoError(t, a.Release())
	assert.Equal(t, 1, p.Stat().Free)
}

func TestPoolBadConnectionsNotReused(t *testing.T) {
	p := stubPool(t, PoolOptions{Max: 1})
	a, err := p.Acquire(context.Background())
	require.NoError(t, err)
	a.Connection.setBad()
	require.NoError(t, a.Release())
	b, err := p.Acquire(context.Background())
	require.NoError(t, err)
	assert.NotSame(t, a.Connection, b.Connection)
	require.NoError(t, b.Release())
}

func TestPoolClosedAcquireFails(t *testing.T) {
	p := stubPool(t, PoolOptions{Max: 1})
	p.Close()
	_, err := p.Acquire(context.Background())
	assert.ErrorIs(t, err, ErrPoolClosed)
}

func TestPoolMetricsCollector(t *testing.T) {
	p := stubPool(t, PoolOptions{Max: 2})
	registry := prometheus.NewRegistry()
	require.NoError(t, registry.Register(p))
	a, err := p.Acquire(context.Background())
	require.NoError(t, err)
	families, err := registry.Gather()
	require.NoError(t, err)
	found := map[string]float64{}
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			if m.GetGauge() != nil {
				found[mf.GetName()] = m.GetGauge().GetValue()
			} else if m.GetCounter() != nil {
				found[mf.GetName()] = m.GetCounter().GetValue()
			}
		}
	}
	assert.Equal(t, float64(2), found["orathin_pool_size_max"])
	assert.Equal(t, float64(1), found["orathin_pool_connections_busy"])
	assert.Equal(t, float64(1), found["orathin_pool_acquired_total"])
	require.NoError(t, a.Release())
}
