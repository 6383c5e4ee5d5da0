//go:build !windows

package network

import (
	"errors"
	"net"
	"syscall"
)

// sendOOB pushes the single urgent byte (TCP MSG_OOB) the server reads
// as an attention signal ahead of the in-band stream.
func (session *Session) sendOOB() error {
	tcpConn, ok := session.conn.(*net.TCPConn)
	if !ok {
		return errors.New("out-of-band data needs a raw TCP connection")
	}
	raw, err := tcpConn.SyscallConn()
	if err != nil {
		return err
	}
	var sendErr error
	err = raw.Control(func(fd uintptr) {
		sendErr = syscall.Sendto(int(fd), []byte{33}, syscall.MSG_OOB, nil)
	})
	if err != nil {
		return err
	}
	return sendErr
}
