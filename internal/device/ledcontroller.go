package device

import (
	"strconv"

	"github.com/daftfox/rev/internal/firmata"
)

// LedController addresses an LED strip through the device's software
// serial port 0, configured at 9600 baud on entering READY.
const (
	ledSerialPort = 0
	ledSerialBaud = 9600
)

// Command letters the firmware-side sketch understands, each prefixed
// with '[' and suffixed with ']' in the byte stream written over the
// serial passthrough.
const (
	cmdSetColor     = 'C'
	cmdPulseColor   = 'P'
	cmdSetBrightness = 'B'
	cmdRainbow      = 'R'
	cmdKITT         = 'K'
)

func ledControllerActionTable() ActionTable {
	return ActionTable{
		"RAINBOW":       {Arity: 0, Handler: actRainbow},
		"KITT":          {Arity: 3, Handler: actKITT},
		"PULSECOLOR":    {Arity: 2, Handler: actPulseColor},
		"SETCOLOR":      {Arity: 3, Handler: actSetColor},
		"SETBRIGHTNESS": {Arity: 1, Handler: actSetBrightness},
	}
}

func actRainbow(s *Session, params []string) error {
	if len(params) != 0 {
		return ErrActionMalformed
	}
	return s.writeLedCommand(cmdRainbow)
}

func actKITT(s *Session, params []string) error {
	args, err := parse8BitParams(params, 3)
	if err != nil {
		return err
	}
	return s.writeLedCommand(cmdKITT, args...)
}

func actPulseColor(s *Session, params []string) error {
	args, err := parse8BitParams(params, 2)
	if err != nil {
		return err
	}
	return s.writeLedCommand(cmdPulseColor, args...)
}

func actSetColor(s *Session, params []string) error {
	args, err := parse8BitParams(params, 3)
	if err != nil {
		return err
	}
	return s.writeLedCommand(cmdSetColor, args...)
}

func actSetBrightness(s *Session, params []string) error {
	args, err := parse8BitParams(params, 1)
	if err != nil {
		return err
	}
	return s.writeLedCommand(cmdSetBrightness, args...)
}

// parse8BitParams validates params holds exactly n integers, each in
// [0,255] (spec §4.6's 8-bit parameter rule).
func parse8BitParams(params []string, n int) ([]byte, error) {
	if len(params) != n {
		return nil, ErrActionMalformed
	}
	out := make([]byte, 0, n)
	for _, p := range params {
		v, err := strconv.Atoi(p)
		if err != nil || v < 0 || v > 255 {
			return nil, ErrActionMalformed
		}
		out = append(out, byte(v))
	}
	return out, nil
}

// writeLedCommand builds the ['[', cmd, params..., ']'] payload and
// writes it through the Firmata SERIAL_WRITE passthrough.
func (s *Session) writeLedCommand(cmd byte, params ...byte) error {
	payload := make([]byte, 0, len(params)+3)
	payload = append(payload, '[')
	payload = append(payload, cmd)
	payload = append(payload, params...)
	payload = append(payload, ']')
	return s.writeFrame(firmata.EncodeSerialWrite(ledSerialPort, payload))
}

// configureLedSerial runs once, on entering READY, for an LedController
// session: it configures the device's software serial port at 9600 baud.
func (s *Session) configureLedSerial() error {
	return s.writeFrame(firmata.EncodeSerialConfig(ledSerialPort, ledSerialBaud))
}
