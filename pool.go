package orathin

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/puddle/v2"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/orathin/orathin/configurations"
)

// GetMode selects the acquire behavior when every connection is busy.
type GetMode int

const (
	PoolWait GetMode = iota
	PoolNoWait
	PoolForceGet
	PoolTimedWait
)

// PoolOptions tune pool sizing and lifecycle.
type PoolOptions struct {
	Min             int
	Max             int
	Increment       int
	GetMode         GetMode
	WaitTimeout     time.Duration
	PingInterval    time.Duration
	Homogeneous     bool
	StmtCacheSize   int
	SessionCallback func(conn *Connection, tag string) error
}

type pooledConn struct {
	id   uuid.UUID
	conn *Connection
	tag  string
}

// Pool is a bounded set of authenticated connections. The free list is
// LIFO so hot connections stay hot and idle ones age out; acquire
// transfers exclusive use to the caller.
type Pool struct {
	config  *configurations.ConnectionConfig
	opts    PoolOptions
	pool    *puddle.Pool[*pooledConn]
	closed  atomic.Bool
	mu      sync.Mutex
	metrics poolMetrics

	// dialFn lets tests stand in for the network dial
	dialFn func(ctx context.Context) (*Connection, error)
}

type poolMetrics struct {
	acquired  atomic.Int64
	released  atomic.Int64
	pings     atomic.Int64
	overflows atomic.Int64
}

// CreatePool opens min connections eagerly and hands the rest out on
// demand up to max.
func CreatePool(databaseURL string, opts PoolOptions) (*Pool, error) {
	config, err := configurations.ParseConfig(databaseURL)
	if err != nil {
		return nil, err
	}
	return CreatePoolFromConfig(config, opts)
}

func CreatePoolFromConfig(config *configurations.ConnectionConfig, opts PoolOptions) (*Pool, error) {
	if opts.Max <= 0 {
		opts.Max = 1
	}
	if opts.Min > opts.Max {
		opts.Min = opts.Max
	}
	if opts.StmtCacheSize > 0 {
		config.StmtCacheSize = opts.StmtCacheSize
	}
	p := &Pool{config: config, opts: opts}
	constructor := func(ctx context.Context) (*pooledConn, error) {
		conn, err := p.connect(ctx)
		if err != nil {
			return nil, err
		}
		return &pooledConn{id: uuid.New(), conn: conn, tag: config.Tag}, nil
	}
	destructor := func(pc *pooledConn) {
		_ = pc.conn.Close()
	}
	pool, err := puddle.NewPool(&puddle.Config[*pooledConn]{
		Constructor: constructor,
		Destructor:  destructor,
		MaxSize:     int32(opts.Max),
	})
	if err != nil {
		return nil, err
	}
	p.pool = pool
	ctx, cancel := context.WithTimeout(context.Background(), config.Description.ConnectTO)
	defer cancel()
	for i := 0; i < opts.Min; i++ {
		if err = pool.CreateResource(ctx); err != nil {
			pool.Close()
			return nil, err
		}
	}
	return p, nil
}

func (p *Pool) connect(ctx context.Context) (*Connection, error) {
	if p.dialFn != nil {
		return p.dialFn(ctx)
	}
	conn, err := NewConnectionFromConfig(p.config)
	if err != nil {
		return nil, err
	}
	if err = conn.OpenWithContext(ctx); err != nil {
		return nil, err
	}
	return conn, nil
}

// PooledConnection wraps an acquired connection; Release returns it,
// Close destroys it.
type PooledConnection struct {
	*Connection
	pool     *Pool
	res      *puddle.Resource[*pooledConn]
	overflow bool
	released atomic.Bool
}

// Acquire hands out a free connection (validating it when the ping
// interval elapsed), creates one below max, or applies the get mode.
func (p *Pool) Acquire(ctx context.Context) (*PooledConnection, error) {
	if p.closed.Load() {
		return nil, ErrPoolClosed
	}
	switch p.opts.GetMode {
	case PoolNoWait:
		stat := p.pool.Stat()
		if stat.IdleResources() == 0 && int(stat.TotalResources()) >= p.opts.Max {
			return nil, ErrPoolExhausted
		}
	case PoolForceGet:
		stat := p.pool.Stat()
		if stat.IdleResources() == 0 && int(stat.TotalResources()) >= p.opts.Max {
			// exceed max temporarily with an unpooled connection
			conn, err := p.connect(ctx)
			if err != nil {
				return nil, err
			}
			p.metrics.overflows.Add(1)
			p.metrics.acquired.Add(1)
			return &PooledConnection{Connection: conn, pool: p, overflow: true}, nil
		}
	case PoolTimedWait:
		if p.opts.WaitTimeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, p.opts.WaitTimeout)
			defer cancel()
		}
	}
	for {
		res, err := p.pool.Acquire(ctx)
		if err != nil {
			return nil, err
		}
		pc := res.Value()
		if pc.conn.IsBad() {
			res.Destroy()
			continue
		}
		if p.opts.PingInterval > 0 && res.IdleDuration() >= p.opts.PingInterval {
			p.metrics.pings.Add(1)
			if pingErr := pc.conn.Ping(ctx); pingErr != nil {
				res.Destroy()
				continue
			}
		}
		if p.opts.SessionCallback != nil {
			if cbErr := p.opts.SessionCallback(pc.conn, pc.tag); cbErr != nil {
				res.Destroy()
				return nil, cbErr
			}
		}
		p.metrics.acquired.Add(1)
		return &PooledConnection{Connection: pc.conn, pool: p, res: res}, nil
	}
}

// Release rolls back any open transaction, releases a DRCP session,
// and returns the connection to the free list.
func (pc *PooledConnection) Release() error {
	if !pc.released.CompareAndSwap(false, true) {
		return nil
	}
	pc.pool.metrics.released.Add(1)
	if pc.overflow {
		return pc.Connection.Close()
	}
	conn := pc.Connection
	if conn.IsBad() {
		pc.res.Destroy()
		return nil
	}
	if conn.InTransaction() {
		if err := conn.Rollback(); err != nil {
			pc.res.Destroy()
			return nil
		}
	}
	if conn.config.Purity != configurations.PurityDefault {
		// DRCP: give the broker its session back without deauthenticating
		if err := conn.sessionRelease(false); err != nil {
			pc.res.Destroy()
			return nil
		}
	}
	conn.autoCommit = true
	pc.res.Release()
	return nil
}

// Close destroys the underlying connection instead of pooling it.
func (pc *PooledConnection) Close() error {
	if !pc.released.CompareAndSwap(false, true) {
		return nil
	}
	if pc.overflow {
		return pc.Connection.Close()
	}
	pc.res.Destroy()
	return nil
}

// Stat mirrors the pool invariants: busy + free never exceeds max
// outside a FORCEGET window.
type PoolStat struct {
	Max  int
	Busy int
	Free int
}

func (p *Pool) Stat() PoolStat {
	stat := p.pool.Stat()
	return PoolStat{
		Max:  p.opts.Max,
		Busy: int(stat.AcquiredResources()),
		Free: int(stat.IdleResources()),
	}
}

// PruneIdle destroys idle connections beyond keep, oldest first.
func (p *Pool) PruneIdle(keep int) {
	idle := p.pool.AcquireAllIdle()
	for i, res := range idle {
		if i < len(idle)-keep {
			res.Destroy()
		} else {
			res.Release()
		}
	}
}

func (p *Pool) Close() {
	if p.closed.CompareAndSwap(false, true) {
		p.pool.Close()
	}
}

/* ---- prometheus collector ---- */

var (
	poolMaxDesc = prometheus.NewDesc("orathin_pool_size_max",
		"Configured maximum number of pooled connections.", nil, nil)
	poolBusyDesc = prometheus.NewDesc("orathin_pool_connections_busy",
		"Connections currently handed out.", nil, nil)
	poolFreeDesc = prometheus.NewDesc("orathin_pool_connections_free",
		"Connections idle on the free list.", nil, nil)
	poolAcquiredDesc = prometheus.NewDesc("orathin_pool_acquired_total",
		"Total successful acquires.", nil, nil)
	poolPingsDesc = prometheus.NewDesc("orathin_pool_validation_pings_total",
		"Validation pings issued on acquire.", nil, nil)
	poolOverflowDesc = prometheus.NewDesc("orathin_pool_forceget_overflows_total",
		"Connections created past max under FORCEGET.", nil, nil)
)

func (p *Pool) Describe(ch chan<- *prometheus.Desc) {
	prometheus.DescribeByCollect(p, ch)
}

func (p *Pool) Collect(ch chan<- prometheus.Metric) {
	stat := p.Stat()
	ch <- prometheus.MustNewConstMetric(poolMaxDesc, prometheus.GaugeValue, float64(stat.Max))
	ch <- prometheus.MustNewConstMetric(poolBusyDesc, prometheus.GaugeValue, float64(stat.Busy))
	ch <- prometheus.MustNewConstMetric(poolFreeDesc, prometheus.GaugeValue, float64(stat.Free))
	ch <- prometheus.MustNewConstMetric(poolAcquiredDesc, prometheus.CounterValue, float64(p.metrics.acquired.Load()))
	ch <- prometheus.MustNewConstMetric(poolPingsDesc, prometheus.CounterValue, float64(p.metrics.pings.Load()))
	ch <- prometheus.MustNewConstMetric(poolOverflowDesc, prometheus.CounterValue, float64(p.metrics.overflows.Load()))
}

var _ prometheus.Collector = (*Pool)(nil)
