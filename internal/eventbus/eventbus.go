// Package eventbus is the outward snapshot feed consumed by subscribers
// external to the core (the WebSocket/HTTP surface, the program engine).
// It is kept deliberately separate from a session's internal codec event
// stream (pin values, firmware replies), which never leaves the session
// that owns it — see spec §9's event-emitter split.
package eventbus

import "github.com/hybridgroup/gobot"

// Event names published on the Bus.
const (
	Joined  = "joined"
	Updated = "updated"
	Left    = "left"
)

// Bus wraps gobot's channel-based Eventer, the same event plumbing the
// Firmata adaptor already depends on via github.com/hybridgroup/gobot.
type Bus struct {
	gobot.Eventer
}

// New returns a Bus with the three outward events pre-registered.
func New() *Bus {
	b := &Bus{Eventer: gobot.NewEventer()}
	b.AddEvent(Joined)
	b.AddEvent(Updated)
	b.AddEvent(Left)
	return b
}

// OnJoined registers a long-lived subscriber for device-joined events.
// data is always a device.Snapshot value.
func (b *Bus) OnJoined(f func(data interface{})) error {
	return gobot.On(b.Event(Joined), f)
}

// OnUpdated registers a long-lived subscriber for snapshot updates.
func (b *Bus) OnUpdated(f func(data interface{})) error {
	return gobot.On(b.Event(Updated), f)
}

// OnLeft registers a long-lived subscriber for device-left events. data
// is always the departed device's identity string.
func (b *Bus) OnLeft(f func(data interface{})) error {
	return gobot.On(b.Event(Left), f)
}

// Publish broadcasts data to every subscriber of the named event.
func (b *Bus) Publish(name string, data interface{}) {
	gobot.Publish(b.Event(name), data)
}
