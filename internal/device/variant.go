package device

import "strings"

// Variant is a session's specialization, fixed for its lifetime once
// resolved. It is a plain tagged value, not a subtype: specialization is
// expressed through the action table a variant contributes, never
// through polymorphism (spec §9).
type Variant string

// Known variants. Any firmware name that matches none of these resolves
// to VariantGeneric.
const (
	VariantGeneric       Variant = "Generic"
	VariantLedController Variant = "LedController"
	VariantMajorTom      Variant = "MajorTom"
)

// ResolveVariant chooses a variant tag from a firmware name, the sole
// point where strings become variant identity. Any trailing ".ino" token
// is stripped first.
func ResolveVariant(firmwareName string) Variant {
	lower := strings.ToLower(stripIno(firmwareName))
	switch {
	case strings.HasPrefix(lower, "majortom"):
		return VariantMajorTom
	case strings.HasPrefix(lower, "ledcontroller"):
		return VariantLedController
	default:
		return VariantGeneric
	}
}

// hasRelayExtension reports whether a Generic-resolved firmware name
// additionally carries the relaycontroller_* prefix implied by the
// original device-type list (see SPEC_FULL §4.5); it only ever widens
// the Generic action table, it never changes the resolved Variant.
func hasRelayExtension(firmwareName string) bool {
	return strings.HasPrefix(strings.ToLower(stripIno(firmwareName)), "relaycontroller")
}

func stripIno(name string) string {
	return strings.TrimSuffix(name, ".ino")
}

// buildActionTable assembles the action table a session swaps in once
// its variant is resolved during IDENTIFYING.
func buildActionTable(v Variant, firmwareName string) ActionTable {
	table := genericActionTable()

	switch v {
	case VariantLedController:
		for name, action := range ledControllerActionTable() {
			table[name] = action
		}
	case VariantMajorTom:
		// The MajorTom action set beyond the generic table is not fully
		// visible in the retrieved sources; treat it as generic plus
		// whatever extensions a future variant package contributes.
	default:
		if hasRelayExtension(firmwareName) {
			table["SETRELAY"] = Action{Arity: 2, Handler: actSetRelay}
		}
	}
	return table
}

func actSetRelay(s *Session, params []string) error {
	pin, state, err := parseIntPair(params)
	if err != nil {
		return err
	}
	if state != 0 && state != 1 {
		return ErrActionMalformed
	}
	return s.setPinValue(pin, state)
}
