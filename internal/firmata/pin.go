package firmata

// Pin is the host-side cache of one hardware pin's capabilities and last
// observed value.
type Pin struct {
	Index          int
	SupportedModes map[byte]bool
	AnalogChannel  int // NotAnalogChannel if the pin carries no analog channel
	Mode           byte
	Value          int
}

// SupportsMode reports whether mode is present in the pin's capability set.
func (p Pin) SupportsMode(mode byte) bool {
	return p.SupportedModes[mode]
}

// IsDigital matches spec's derived predicate: analogChannel==127,
// supportedModes non-empty, ANALOG not among them.
func (p Pin) IsDigital() bool {
	return p.AnalogChannel == NotAnalogChannel &&
		len(p.SupportedModes) > 0 &&
		!p.SupportsMode(ModeAnalog)
}

// IsAnalog matches spec's derived predicate: ANALOG is a supported mode.
func (p Pin) IsAnalog() bool {
	return p.SupportsMode(ModeAnalog)
}

// PinMap names the conventional pins of a board architecture, used by
// handlers that refer to pins symbolically instead of by raw index.
type PinMap struct {
	LED int
	RX  int
	TX  int
}

// UnoPinMap is the pinout of the Arduino Uno and its common clones, the
// conventional default when a variant does not override it.
var UnoPinMap = PinMap{LED: 13, RX: 0, TX: 1}
