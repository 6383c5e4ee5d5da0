package orathin

import (
	"context"
	"database/sql/driver"
	"errors"
)

// Pipeline batches several operations into one outbound packet stream;
// the server executes them in order and the responses come back tagged
// by position. Per-operation errors are collected, not raised, so one
// failed step does not abort the batch. Requires the end-of-request
// capability; servers without it process one call per round trip only.
type Pipeline struct {
	conn *Connection
	ops  []pipelineOp
}

type pipelineOp struct {
	stmt *Stmt
	args []driver.NamedValue
}

// PipelineResult is the outcome of one pipelined operation, in the
// order the operations were added.
type PipelineResult struct {
	Index        int
	Err          error
	RowsAffected int64
	Rows         *DataSet
}

func (conn *Connection) NewPipeline() *Pipeline {
	return &Pipeline{conn: conn}
}

// Add queues a statement with its binds.
func (p *Pipeline) Add(text string, args ...driver.Value) {
	stmt := newStmt(text, p.conn)
	stmt.autoClose = true
	p.ops = append(p.ops, pipelineOp{stmt: stmt, args: namedArgs(args...)})
}

// Run sends every queued operation in one write and drains the tagged
// responses. The returned error covers transport failure only;
// per-operation failures live in the results.
func (p *Pipeline) Run(ctx context.Context) ([]PipelineResult, error) {
	if len(p.ops) == 0 {
		return nil, nil
	}
	if p.conn.State != Opened {
		return nil, ErrConnectionClosed
	}
	if !p.conn.session.Context.SupportsEndOfRequest() {
		return nil, ErrNotSupported
	}
	results := make([]PipelineResult, len(p.ops))
	dataSets := make([]*DataSet, len(p.ops))
	err := p.conn.processMessage(ctx, func() error {
		for _, op := range p.ops {
			op.stmt.reset()
			if err := op.stmt.setupBinds(op.args); err != nil {
				return err
			}
			if err := op.stmt.write(); err != nil {
				return err
			}
		}
		return nil
	}, func() error {
		for i, op := range p.ops {
			dataSets[i] = new(DataSet)
			if op.stmt.stmtType == SELECT {
				op.stmt._hasMoreRows = true
			}
			opErr := op.stmt.read(dataSets[i])
			results[i] = PipelineResult{
				Index:        i,
				Err:          opErr,
				RowsAffected: op.stmt.rowsAffected,
				Rows:         dataSets[i],
			}
			if opErr != nil && isBadConn(opErr) {
				return opErr
			}
		}
		return nil
	})
	if err != nil {
		// a transport-level failure poisons the whole batch
		var oraErr error = err
		if !errors.Is(err, ErrCallTimeout) && !errors.Is(err, ErrCallCancelled) {
			for i := range results {
				if results[i].Err == nil && results[i].Rows == nil {
					results[i].Err = oraErr
				}
			}
		}
		return results, err
	}
	p.ops = nil
	return results, nil
}
