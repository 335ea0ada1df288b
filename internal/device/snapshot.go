package device

import "github.com/daftfox/rev/internal/firmata"

// PinSnapshot is the value-typed projection of one pin's current state.
type PinSnapshot struct {
	Index  int
	Mode   byte
	Value  int
	Analog bool
}

// Snapshot is the discrete, value-typed projection of a session shipped
// to external subscribers (spec §3). It is derived on demand and never
// mutated; callers never receive a reference into session state.
type Snapshot struct {
	ID             string
	Name           string
	VendorID       string
	ProductID      string
	Type           string
	CurrentProgram string
	Online         bool
	Commands       []string
	Pins           []PinSnapshot
}

func newSnapshot(identity, name, vendorID, productID string, variant Variant, online bool, program string, actions ActionTable, pins []firmata.Pin) Snapshot {
	commands := make([]string, 0, len(actions))
	for name := range actions {
		commands = append(commands, name)
	}

	pinSnaps := make([]PinSnapshot, len(pins))
	for i, p := range pins {
		pinSnaps[i] = PinSnapshot{
			Index:  p.Index,
			Mode:   p.Mode,
			Value:  p.Value,
			Analog: p.IsAnalog(),
		}
	}

	return Snapshot{
		ID:             identity,
		Name:           name,
		VendorID:       vendorID,
		ProductID:      productID,
		Type:           string(variant),
		CurrentProgram: program,
		Online:         online,
		Commands:       commands,
		Pins:           pinSnaps,
	}
}
