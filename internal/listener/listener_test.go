package listener

import (
	"context"
	"io"
	"net"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/daftfox/rev/internal/device"
	"github.com/daftfox/rev/internal/firmata"
)

type fakeRoster struct {
	registered chan string
}

func (r *fakeRoster) Register(s *device.Session)    { r.registered <- s.Identity() }
func (r *fakeRoster) Deregister(s *device.Session)  {}
func (r *fakeRoster) NotifyUpdated(identity string) {}

// respondAsDevice plays the firmware side of identification over conn:
// answer the firmware query, the capability query, and the analog
// mapping query, enough to drive a session to READY.
func respondAsDevice(t *testing.T, conn net.Conn) {
	t.Helper()
	dec := firmata.NewDecoder(conn)
	for i := 0; i < 3; i++ {
		msg, err := dec.Next()
		if err != nil {
			t.Logf("responder decode error: %v", err)
			return
		}
		switch msg.Command {
		case firmata.FirmwareQuery:
			conn.Write(firmata.EncodeSysex(append([]byte{firmata.FirmwareQuery, 2, 5}, []byte("StandardFirmata.ino")...)))
		case firmata.CapabilityQuery:
			payload := append([]byte{firmata.CapabilityResponse}, firmata.ModeInput, 0x01, firmata.ModeOutput, 0x01, 0x7F)
			conn.Write(firmata.EncodeSysex(payload))
		case firmata.AnalogMappingQuery:
			conn.Write(firmata.EncodeSysex([]byte{firmata.AnalogMappingResponse, 127}))
		}
	}
}

func TestServeTCPSpawnsSessionOnAccept(t *testing.T) {
	log := logrus.New()
	log.SetOutput(io.Discard)
	roster := &fakeRoster{registered: make(chan string, 1)}

	l := New(roster, log, device.Options{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	probe, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("probe listen: %v", err)
	}
	addr := probe.Addr().String()
	probe.Close()

	go l.ServeTCP(ctx, addr)

	var conn net.Conn
	for i := 0; i < 50; i++ {
		conn, err = net.Dial("tcp", addr)
		if err == nil {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	go respondAsDevice(t, conn)

	select {
	case identity := <-roster.registered:
		if identity == "" {
			t.Fatal("expected non-empty identity on registration")
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for spawned session to register")
	}
}
