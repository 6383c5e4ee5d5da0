package orathin

import "context"

// simpleObject is a one-opcode round trip with no payload decoding
// beyond the standard response messages: ping, commit, rollback and
// friends all ride through here.
type simpleObject struct {
	connection  *Connection
	operationID uint8
	data        []byte
}

func (obj *simpleObject) write() error {
	session := obj.connection.session
	session.PutBytes(3, obj.operationID, 0)
	if obj.data != nil {
		session.PutBytes(obj.data...)
	}
	return session.Write()
}

func (obj *simpleObject) read() error {
	return obj.connection.readResponse()
}

func (obj *simpleObject) exec(ctx context.Context) error {
	return obj.connection.processMessage(ctx, obj.write, obj.read)
}
