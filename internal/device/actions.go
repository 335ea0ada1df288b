package device

import "strconv"

// Action is one named, dispatchable operation. Handler runs on the
// session's own goroutine, so it may freely touch session state.
type Action struct {
	Arity   int
	Handler func(s *Session, params []string) error
}

// ActionTable maps an uppercase action name to its Action. Each variant
// contributes its own table; names are looked up case-sensitively on the
// uppercased input (see Session.ExecuteAction).
type ActionTable map[string]Action

// genericActionTable is the baseline every variant starts from.
func genericActionTable() ActionTable {
	return ActionTable{
		"BLINKON":     {Arity: 0, Handler: actBlinkOn},
		"BLINKOFF":    {Arity: 0, Handler: actBlinkOff},
		"TOGGLELED":   {Arity: 0, Handler: actToggleLED},
		"SETPINVALUE": {Arity: 2, Handler: actSetPinValue},
	}
}

func actBlinkOn(s *Session, _ []string) error {
	return s.startBlink()
}

func actBlinkOff(s *Session, _ []string) error {
	return s.stopBlink()
}

func actToggleLED(s *Session, _ []string) error {
	return s.toggleLED()
}

func actSetPinValue(s *Session, params []string) error {
	pin, value, err := parseIntPair(params)
	if err != nil {
		return err
	}
	return s.setPinValue(pin, value)
}

// parseIntPair validates that params holds exactly two parseable
// integers, the shape SETPINVALUE and SETRELAY share.
func parseIntPair(params []string) (int, int, error) {
	if len(params) != 2 {
		return 0, 0, ErrActionMalformed
	}
	a, err1 := strconv.Atoi(params[0])
	b, err2 := strconv.Atoi(params[1])
	if err1 != nil || err2 != nil {
		return 0, 0, ErrActionMalformed
	}
	return a, b, nil
}
