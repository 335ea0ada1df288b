package link

import (
	"io"
	"sync"

	"github.com/tarm/serial"
)

// SerialLink wraps an open serial port. Identity is the port path.
type SerialLink struct {
	path string
	port io.ReadWriteCloser

	mu     sync.Mutex
	closed bool
}

// OpenSerialLink opens path at baud, mirroring the gobot Firmata adaptor's
// default connect func (serial.OpenPort with a *serial.Config).
func OpenSerialLink(path string, baud int) (*SerialLink, error) {
	port, err := serial.OpenPort(&serial.Config{Name: path, Baud: baud})
	if err != nil {
		return nil, err
	}
	return &SerialLink{path: path, port: port}, nil
}

func (l *SerialLink) Write(p []byte) (int, error) {
	l.mu.Lock()
	closed := l.closed
	l.mu.Unlock()
	if closed {
		return 0, ErrClosed
	}
	n, err := l.port.Write(p)
	if err != nil {
		return n, ErrClosed
	}
	return n, nil
}

func (l *SerialLink) Read(p []byte) (int, error) {
	return l.port.Read(p)
}

func (l *SerialLink) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil
	}
	l.closed = true
	return l.port.Close()
}

func (l *SerialLink) Identity() string {
	return l.path
}
