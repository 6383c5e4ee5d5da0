//go:build windows

package network

import "errors"

// Urgent data delivery is unreliable through the Winsock stack, so the
// break path always falls back to the in-band marker there.
func (session *Session) sendOOB() error {
	return errors.New("out-of-band break not supported on this platform")
}
