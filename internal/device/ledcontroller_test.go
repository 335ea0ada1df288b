package device

import (
	"bytes"
	"testing"
	"time"

	"github.com/daftfox/rev/internal/firmata"
)

// identifyLedControllerOverPipe drives identification for the
// LedController_01.ino firmware, then drains enterReady's writes: sampling
// interval, one REPORT_DIGITAL for the shared port, one REPORT_ANALOG for
// the analog-capable pin, and the LedController-specific SERIAL_CONFIG that
// configureLedSerial issues on entering READY.
func identifyLedControllerOverPipe(t *testing.T, lnk *pipeLink) {
	t.Helper()
	identifyOverPipe(t, lnk, "LedController_01.ino")
	for i := 0; i < 4; i++ {
		lnk.nextWrite(t)
	}
}

func TestLedControllerSetColorEmitsSerialWriteFrame(t *testing.T) {
	lnk := newPipeLink("test:led1")
	roster := newFakeRoster()
	s := NewSession(lnk, roster, Options{}, testLogger())
	s.Start()

	identifyLedControllerOverPipe(t, lnk)
	waitForState(t, s, StateReady)

	if s.Snapshot().Type != string(VariantLedController) {
		t.Fatalf("expected LedController variant, got %s", s.Snapshot().Type)
	}

	errCh := make(chan error, 1)
	go func() { errCh <- s.ExecuteAction("SETCOLOR", []string{"255", "128", "64"}) }()

	frame := lnk.nextWrite(t)
	want := firmata.EncodeSerialWrite(ledSerialPort, []byte{'[', 'C', 255, 128, 64, ']'})
	if !bytes.Equal(frame, want) {
		t.Fatalf("expected % x, got % x", want, frame)
	}
	if err := <-errCh; err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestLedControllerSetColorRejectsOutOfRangeParam(t *testing.T) {
	lnk := newPipeLink("test:led2")
	roster := newFakeRoster()
	s := NewSession(lnk, roster, Options{}, testLogger())
	s.Start()

	identifyLedControllerOverPipe(t, lnk)
	waitForState(t, s, StateReady)

	if err := s.ExecuteAction("SETCOLOR", []string{"300", "128", "64"}); err != ErrActionMalformed {
		t.Fatalf("expected ErrActionMalformed, got %v", err)
	}

	select {
	case extra := <-lnk.outbound:
		t.Fatalf("expected no write for a malformed action, got % x", extra)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestLedControllerRainbowKittAndPulseColor(t *testing.T) {
	lnk := newPipeLink("test:led3")
	roster := newFakeRoster()
	s := NewSession(lnk, roster, Options{}, testLogger())
	s.Start()

	identifyLedControllerOverPipe(t, lnk)
	waitForState(t, s, StateReady)

	errCh := make(chan error, 1)
	go func() { errCh <- s.ExecuteAction("RAINBOW", nil) }()
	frame := lnk.nextWrite(t)
	want := firmata.EncodeSerialWrite(ledSerialPort, []byte{'[', 'R', ']'})
	if !bytes.Equal(frame, want) {
		t.Fatalf("expected % x, got % x", want, frame)
	}
	if err := <-errCh; err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	go func() { errCh <- s.ExecuteAction("KITT", []string{"1", "2", "3"}) }()
	frame = lnk.nextWrite(t)
	want = firmata.EncodeSerialWrite(ledSerialPort, []byte{'[', 'K', 1, 2, 3, ']'})
	if !bytes.Equal(frame, want) {
		t.Fatalf("expected % x, got % x", want, frame)
	}
	if err := <-errCh; err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	go func() { errCh <- s.ExecuteAction("PULSECOLOR", []string{"10", "20"}) }()
	frame = lnk.nextWrite(t)
	want = firmata.EncodeSerialWrite(ledSerialPort, []byte{'[', 'P', 10, 20, ']'})
	if !bytes.Equal(frame, want) {
		t.Fatalf("expected % x, got % x", want, frame)
	}
	if err := <-errCh; err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	go func() { errCh <- s.ExecuteAction("SETBRIGHTNESS", []string{"200"}) }()
	frame = lnk.nextWrite(t)
	want = firmata.EncodeSerialWrite(ledSerialPort, []byte{'[', 'B', 200, ']'})
	if !bytes.Equal(frame, want) {
		t.Fatalf("expected % x, got % x", want, frame)
	}
	if err := <-errCh; err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestSetRelayEmitsPinValueForRelayExtendedGeneric(t *testing.T) {
	lnk := newPipeLink("test:relay1")
	roster := newFakeRoster()
	s := NewSession(lnk, roster, Options{}, testLogger())
	s.Start()

	identifyOverPipe(t, lnk, "RelayController_01.ino")
	for i := 0; i < 3; i++ {
		lnk.nextWrite(t)
	}
	waitForState(t, s, StateReady)

	errCh := make(chan error, 1)
	go func() { errCh <- s.ExecuteAction("SETRELAY", []string{"2", "1"}) }()

	frame := lnk.nextWrite(t)
	want := []byte{0x90, 0x04, 0x00}
	if !bytes.Equal(frame, want) {
		t.Fatalf("expected % x, got % x", want, frame)
	}
	if err := <-errCh; err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := s.ExecuteAction("SETRELAY", []string{"2", "5"}); err != ErrActionMalformed {
		t.Fatalf("expected ErrActionMalformed for out-of-range relay state, got %v", err)
	}
}
