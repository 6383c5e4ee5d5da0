package orathin

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"sync"

	"github.com/orathin/orathin/configurations"
)

// OracleDriver registers the thin driver with database/sql; the native
// surface (Connection, Stmt, Pool) is available alongside it.
type OracleDriver struct {
	mu sync.Mutex
}

type OracleConnector struct {
	drv    *OracleDriver
	config *configurations.ConnectionConfig
}

func init() {
	sql.Register("oracle", &OracleDriver{})
}

func (drv *OracleDriver) Open(name string) (driver.Conn, error) {
	conn, err := NewConnection(name)
	if err != nil {
		return nil, err
	}
	return conn, conn.Open()
}

func (drv *OracleDriver) OpenConnector(name string) (driver.Connector, error) {
	config, err := configurations.ParseConfig(name)
	if err != nil {
		return nil, err
	}
	return &OracleConnector{drv: drv, config: config}, nil
}

func (connector *OracleConnector) Connect(ctx context.Context) (driver.Conn, error) {
	conn, err := NewConnectionFromConfig(connector.config)
	if err != nil {
		return nil, err
	}
	if err = conn.OpenWithContext(ctx); err != nil {
		return nil, err
	}
	return conn, nil
}

func (connector *OracleConnector) Driver() driver.Driver {
	return connector.drv
}

// NewConnector builds a connector from an already parsed config; pools
// built by database/sql reuse it per connection.
func NewConnector(config *configurations.ConnectionConfig) driver.Connector {
	return &OracleConnector{drv: &OracleDriver{}, config: config}
}

var _ driver.Conn = (*Connection)(nil)
var _ driver.ConnBeginTx = (*Connection)(nil)
var _ driver.Pinger = (*Connection)(nil)
var _ driver.Stmt = (*Stmt)(nil)
var _ driver.StmtQueryContext = (*Stmt)(nil)
var _ driver.StmtExecContext = (*Stmt)(nil)
var _ driver.NamedValueChecker = (*Stmt)(nil)
