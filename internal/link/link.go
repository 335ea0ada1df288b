// Package link abstracts the byte-level transport to one device, over
// either a TCP connection or a serial port.
package link

import "errors"

// ErrClosed is returned by Write once the underlying transport has been
// closed, either explicitly or by the peer.
var ErrClosed = errors.New("link: closed")

// Link is a bidirectional byte stream to exactly one device. It is owned
// by exactly one device session for its lifetime.
type Link interface {
	// Write enqueues bytes for transmission. It returns ErrClosed once
	// the transport is down.
	Write(p []byte) (int, error)

	// Read yields the next available bytes. It returns io.EOF (or a
	// wrapped close reason) once the transport has terminated.
	Read(p []byte) (int, error)

	// Close releases OS resources. Idempotent.
	Close() error

	// Identity is the stable string naming this link's endpoint: for
	// TCP, remote address:port; for serial, the port path.
	Identity() string
}
