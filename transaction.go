package orathin

import "context"

type Transaction struct {
	conn *Connection
	ctx  context.Context
}

func (tx *Transaction) Commit() error {
	tx.conn.autoCommit = true
	return (&simpleObject{
		connection:  tx.conn,
		operationID: 0xE,
	}).exec(tx.ctx)
}

func (tx *Transaction) Rollback() error {
	tx.conn.autoCommit = true
	return (&simpleObject{
		connection:  tx.conn,
		operationID: 0xF,
	}).exec(tx.ctx)
}
