// Package listener accepts new device connections, over a TCP socket and
// over serial ports, and hands each one off as a new device.Session.
package listener

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"
	"go.bug.st/serial/enumerator"

	"github.com/daftfox/rev/internal/device"
	"github.com/daftfox/rev/internal/link"
)

const serialPollInterval = 5 * time.Second

// Listener owns the TCP and serial intake for a gateway process. Every
// accepted connection becomes a device.Session registered against the
// same roster.
type Listener struct {
	Roster device.RosterHandle
	Log    *logrus.Logger

	sessionOpts device.Options

	seenMu sync.Mutex
	seen   map[string]bool
}

// New builds a Listener. opts seeds every session it creates; callers
// typically leave timing fields at their zero value so sessions use the
// spec's production defaults.
func New(roster device.RosterHandle, log *logrus.Logger, opts device.Options) *Listener {
	return &Listener{Roster: roster, Log: log, sessionOpts: opts, seen: make(map[string]bool)}
}

// ServeTCP accepts connections on addr until ctx is cancelled. Listener
// setup itself is retried with exponential backoff, since a port already
// in use at startup often frees up moments later.
func (l *Listener) ServeTCP(ctx context.Context, addr string) error {
	var ln net.Listener
	setup := func() error {
		var err error
		ln, err = net.Listen("tcp", addr)
		return err
	}
	bo := backoff.WithContext(backoff.NewExponentialBackOff(), ctx)
	if err := backoff.Retry(setup, bo); err != nil {
		return err
	}
	l.Log.WithField("addr", addr).Info("listening for TCP connections")

	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				l.Log.WithError(err).Warn("tcp accept failed")
				continue
			}
		}
		l.spawn(link.NewTCPLink(conn))
	}
}

// ServeSerial polls the local serial port list every serialPollInterval
// and spawns a session for any USB port not already owned by a live
// session this Listener started. If portPath is non-empty, only that port is
// opened, bypassing enumeration entirely — the autodetect scan is
// useful only when the caller hasn't pinned a specific path.
//
// A port stays excluded from future polls only while its session is
// alive: once that session fails identification (spec §4.8's 10 s
// release) or otherwise disconnects, the port is released so the next
// poll retries it.
func (l *Listener) ServeSerial(ctx context.Context, baud int, portPath string) error {
	ticker := time.NewTicker(serialPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if portPath != "" {
				l.tryOpenSerial(portPath, baud)
				continue
			}
			ports, err := enumerator.GetDetailedPortsList()
			if err != nil {
				l.Log.WithError(err).Warn("serial enumeration failed")
				continue
			}
			for _, p := range ports {
				if p.IsUSB {
					l.tryOpenSerial(p.Name, baud)
				}
			}
		}
	}
}

func (l *Listener) tryOpenSerial(path string, baud int) {
	l.seenMu.Lock()
	already := l.seen[path]
	l.seenMu.Unlock()
	if already {
		return
	}

	lnk, err := link.OpenSerialLink(path, baud)
	if err != nil {
		l.Log.WithError(err).WithField("port", path).Debug("failed to open serial port")
		return
	}

	l.seenMu.Lock()
	l.seen[path] = true
	l.seenMu.Unlock()

	l.spawnSerial(lnk, path)
}

func (l *Listener) releaseSeen(path string) {
	l.seenMu.Lock()
	delete(l.seen, path)
	l.seenMu.Unlock()
}

// spawnSerial starts a session for a serial port, wrapping any caller-
// supplied OnConnectFailure so a port that fails identification is
// released back into the poll instead of staying excluded forever.
func (l *Listener) spawnSerial(lnk link.Link, path string) {
	opts := l.sessionOpts
	userFailure := opts.OnConnectFailure
	opts.OnConnectFailure = func(identity string, err error) {
		l.releaseSeen(path)
		if userFailure != nil {
			userFailure(identity, err)
		}
	}
	s := device.NewSession(lnk, l.Roster, opts, l.Log)
	l.Log.WithField("identity", lnk.Identity()).Info("new device connection")
	s.Start()
	// Release the port whenever the session ends, so the next poll can
	// reopen it after any disconnect, not only a failed identification.
	go func() {
		<-s.Done()
		l.releaseSeen(path)
	}()
}

func (l *Listener) spawn(lnk link.Link) {
	s := device.NewSession(lnk, l.Roster, l.sessionOpts, l.Log)
	l.Log.WithField("identity", lnk.Identity()).Info("new device connection")
	s.Start()
}
