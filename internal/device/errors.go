package device

import "errors"

// Command-level errors. These are surfaced to the executeAction caller
// and never terminate the session.
var (
	ErrActionUnavailable = errors.New("device: action unavailable")
	ErrActionMalformed   = errors.New("device: action malformed")
)

// Link-level and deadline errors. These terminate the session: all
// timers and listeners are released, and the Roster is notified.
var (
	ErrConnectionTimeout = errors.New("device: identification not completed within timeout")
	ErrHeartbeatTimeout  = errors.New("device: heartbeat reply not received within deadline")
)
