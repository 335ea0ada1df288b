// Package device implements the per-device connection engine: the state
// machine that brings a device from raw link to identified, sampling,
// heartbeat-monitored operation, and the action-dispatch table that
// makes it uniformly controllable.
package device

import (
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/daftfox/rev/internal/firmata"
	"github.com/daftfox/rev/internal/link"
)

// State is one of the session's lifecycle states (spec §4.3). There is
// no separate HEARTBEAT_WAIT constant: it is modeled as READY with a
// non-nil heartbeat deadline timer, not a distinct state value.
type State int

const (
	StateOpening State = iota
	StateIdentifying
	StateReady
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateOpening:
		return "OPENING"
	case StateIdentifying:
		return "IDENTIFYING"
	case StateReady:
		return "READY"
	case StateClosing:
		return "CLOSING"
	case StateClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

// Policy constants from spec §4.3 and §5.
const (
	DefaultHeartbeatInterval = 3 * time.Second
	DefaultHeartbeatDeadline = 2 * time.Second
	DefaultIdentifyTimeout   = 10 * time.Second
	samplingIntervalMS       = 1000
	blinkInterval            = 500 * time.Millisecond
)

var errOrderlyClose = errors.New("device: orderly disconnect requested")

// RosterHandle is the subset of Roster a session needs: registering
// itself on reaching READY, deregistering on CLOSING, and asking the
// roster to republish its outward snapshot when something changes. The
// roster's own pub/sub emitter never doubles as the session's internal
// codec event stream (spec §9).
type RosterHandle interface {
	Register(s *Session)
	Deregister(s *Session)
	NotifyUpdated(identity string)
}

// Options configures a new Session. Zero values fall back to the spec's
// policy constants; only tests should override the timing fields.
type Options struct {
	HeartbeatInterval time.Duration
	HeartbeatDeadline time.Duration
	IdentifyTimeout   time.Duration
	PinMap            firmata.PinMap
	VendorID          string
	ProductID         string
	OnConnectFailure  func(identity string, err error)
}

type actionRequest struct {
	name   string
	params []string
	result chan error
}

// Session is the per-device connection engine described in spec §4.3. A
// single goroutine (run) owns every mutable field below; all other
// exported methods cross into that goroutine over a channel, giving the
// session the "single-threaded cooperative event loop" the concurrency
// model calls for.
type Session struct {
	sessionID string // log-correlation only, never part of the identity or snapshot
	identity  string
	link      link.Link
	decoder   *firmata.Decoder
	roster    RosterHandle
	log       *logrus.Entry

	heartbeatInterval time.Duration
	heartbeatDeadline time.Duration
	identifyTimeout   time.Duration
	pinMap            firmata.PinMap
	vendorID          string
	productID         string
	onConnectFailure  func(identity string, err error)

	state          State
	variant        Variant
	firmwareName   string
	firmwareMajor  byte
	firmwareMinor  byte
	actions        ActionTable
	pins           []firmata.Pin
	previousAnalog map[int]int
	currentProgram string
	online         bool

	identTimerC    <-chan time.Time
	heartbeatTickC <-chan time.Time
	heartbeatDeadC <-chan time.Time
	blinkTickC     <-chan time.Time
	timers         *timerSet

	msgCh     chan firmata.Message
	actionCh  chan actionRequest
	readErrCh chan error
	closeCh   chan struct{}
	done      chan struct{}

	snapshotCache atomic.Value // Snapshot
}

// NewSession builds a session OPENING over lnk. Call Start to begin the
// identification handshake; the returned Session is otherwise inert.
func NewSession(lnk link.Link, roster RosterHandle, opts Options, logger *logrus.Logger) *Session {
	if opts.HeartbeatInterval <= 0 {
		opts.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if opts.HeartbeatDeadline <= 0 {
		opts.HeartbeatDeadline = DefaultHeartbeatDeadline
	}
	if opts.IdentifyTimeout <= 0 {
		opts.IdentifyTimeout = DefaultIdentifyTimeout
	}
	if opts.PinMap == (firmata.PinMap{}) {
		opts.PinMap = firmata.UnoPinMap
	}

	identity := lnk.Identity()
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	sessionID := uuid.NewString()
	s := &Session{
		sessionID:         sessionID,
		identity:          identity,
		link:              lnk,
		decoder:           firmata.NewDecoder(lnk),
		roster:            roster,
		log:               logger.WithFields(logrus.Fields{"identity": identity, "session": sessionID}),
		heartbeatInterval: opts.HeartbeatInterval,
		heartbeatDeadline: opts.HeartbeatDeadline,
		identifyTimeout:   opts.IdentifyTimeout,
		pinMap:            opts.PinMap,
		vendorID:          opts.VendorID,
		productID:         opts.ProductID,
		onConnectFailure:  opts.OnConnectFailure,
		state:             StateOpening,
		variant:           VariantGeneric,
		currentProgram:    "idle",
		actions:           genericActionTable(),
		previousAnalog:    make(map[int]int),
		timers:            newTimerSet(),
		msgCh:             make(chan firmata.Message),
		actionCh:          make(chan actionRequest),
		readErrCh:         make(chan error, 1),
		closeCh:           make(chan struct{}, 1),
		done:              make(chan struct{}),
	}
	s.updateSnapshotCache()
	return s
}

// Identity returns the session's stable link identity.
func (s *Session) Identity() string { return s.identity }

// Done is closed once the session reaches CLOSED.
func (s *Session) Done() <-chan struct{} { return s.done }

// Start launches the read loop and the session's own event loop.
func (s *Session) Start() {
	s.identTimerC = s.timers.armTimer("identification", s.identifyTimeout)
	go s.readLoop()
	go s.run()
}

// Disconnect requests an orderly close from outside the session's
// goroutine.
func (s *Session) Disconnect() {
	select {
	case s.closeCh <- struct{}{}:
	case <-s.done:
	}
}

// ExecuteAction dispatches a named action with string-encoded params,
// crossing into the session's own goroutine so that action dispatch,
// pin-change emissions, and heartbeat handling stay totally ordered
// (spec §5).
func (s *Session) ExecuteAction(name string, params []string) error {
	req := actionRequest{name: strings.ToUpper(name), params: params, result: make(chan error, 1)}
	select {
	case s.actionCh <- req:
	case <-s.done:
		return ErrActionUnavailable
	}
	select {
	case err := <-req.result:
		return err
	case <-s.done:
		return ErrActionUnavailable
	}
}

// Snapshot returns the current discrete projection, a value copy safe to
// hand to any goroutine.
func (s *Session) Snapshot() Snapshot {
	if v := s.snapshotCache.Load(); v != nil {
		return v.(Snapshot)
	}
	return Snapshot{ID: s.identity, CurrentProgram: "idle"}
}

// -- the event loop -- //

func (s *Session) run() {
	defer close(s.done)

	if err := s.writeFrame(firmata.EncodeReportFirmwareQuery()); err != nil {
		return
	}

	for s.state != StateClosed {
		select {
		case msg := <-s.msgCh:
			s.handleMessage(msg)
		case req := <-s.actionCh:
			req.result <- s.dispatch(req.name, req.params)
		case <-s.identTimerC:
			s.closeSession(ErrConnectionTimeout)
		case <-s.heartbeatTickC:
			s.sendHeartbeat()
		case <-s.heartbeatDeadC:
			s.closeSession(ErrHeartbeatTimeout)
		case <-s.blinkTickC:
			s.toggleBlinkPin()
		case err := <-s.readErrCh:
			s.closeSession(err)
		case <-s.closeCh:
			s.closeSession(errOrderlyClose)
		}
	}
}

func (s *Session) readLoop() {
	for {
		msg, err := s.decoder.Next()
		if err != nil {
			var codecErr *firmata.CodecError
			if errors.As(err, &codecErr) {
				s.log.WithField("byte", fmt.Sprintf("%#x", codecErr.Byte)).Debug("discarding unrecognised frame byte")
				if rerr := s.decoder.Resync(); rerr != nil {
					s.sendReadErr(rerr)
					return
				}
				continue
			}
			s.sendReadErr(err)
			return
		}
		select {
		case s.msgCh <- msg:
		case <-s.done:
			return
		}
	}
}

func (s *Session) sendReadErr(err error) {
	select {
	case s.readErrCh <- err:
	case <-s.done:
	}
}

func (s *Session) handleMessage(msg firmata.Message) {
	switch {
	case msg.Command == firmata.FirmwareQuery:
		s.handleFirmwareReply(msg)
	case msg.Command == firmata.CapabilityResponse:
		s.handleCapabilityResponse(msg)
	case msg.Command == firmata.AnalogMappingResponse:
		s.handleAnalogMappingResponse(msg)
	case msg.Command == firmata.DigitalMessage:
		s.handleDigitalMessage(msg)
	case msg.Command == firmata.AnalogMessage:
		s.handleAnalogMessage(msg)
	case msg.Command == firmata.StringData:
		s.log.WithField("text", firmata.DecodeStringData(msg.Payload)).Debug("string data received")
	}
}

func (s *Session) handleFirmwareReply(msg firmata.Message) {
	major, minor, name, err := firmata.DecodeFirmwareReply(msg.Payload)
	if err != nil {
		s.log.WithError(err).Debug("malformed firmware reply, discarding")
		return
	}
	s.firmwareMajor, s.firmwareMinor, s.firmwareName = major, minor, name

	if s.state == StateOpening {
		s.state = StateIdentifying
		s.variant = ResolveVariant(name)
		s.actions = buildActionTable(s.variant, name)
		s.log.WithFields(logrus.Fields{"firmware": name, "variant": s.variant}).Info("identifying device")
		s.writeFrame(firmata.EncodeCapabilityQuery())
		return
	}

	// A firmware reply while already READY is a heartbeat response.
	s.timers.stopTimer("heartbeatDeadline")
	s.heartbeatDeadC = nil
}

func (s *Session) handleCapabilityResponse(msg firmata.Message) {
	if s.state != StateIdentifying {
		return
	}
	pins, err := firmata.DecodeCapabilityResponse(msg.Payload)
	if err != nil {
		s.log.WithError(err).Debug("malformed capability response, discarding")
		return
	}
	s.pins = pins
	s.previousAnalog = make(map[int]int, len(pins))
	s.writeFrame(firmata.EncodeAnalogMappingQuery())
}

func (s *Session) handleAnalogMappingResponse(msg firmata.Message) {
	if s.state != StateIdentifying {
		return
	}
	channels := firmata.DecodeAnalogMappingResponse(msg.Payload)
	for i := range s.pins {
		if i < len(channels) {
			s.pins[i].AnalogChannel = channels[i]
		}
	}
	s.enterReady()
}

// enterReady implements the READY transition: sampling interval, digital
// and analog reporting on every eligible pin, and the heartbeat arm.
func (s *Session) enterReady() {
	s.timers.stopTimer("identification")
	s.identTimerC = nil

	if err := s.writeFrame(firmata.EncodeSamplingInterval(samplingIntervalMS)); err != nil {
		return
	}

	reportedPorts := make(map[int]bool)
	for i, p := range s.pins {
		switch {
		case p.IsDigital() && p.SupportsMode(firmata.ModeInput):
			port := i / 8
			if reportedPorts[port] {
				continue
			}
			reportedPorts[port] = true
			if err := s.writeFrame(firmata.EncodeReportDigital(port, true)); err != nil {
				return
			}
		case p.IsAnalog() && p.AnalogChannel != firmata.NotAnalogChannel:
			if err := s.writeFrame(firmata.EncodeReportAnalog(p.AnalogChannel, true)); err != nil {
				return
			}
		}
	}

	if s.variant == VariantLedController {
		if err := s.configureLedSerial(); err != nil {
			return
		}
	}

	s.state = StateReady
	s.online = true
	s.currentProgram = "idle"
	s.heartbeatTickC = s.timers.armTicker("heartbeat", s.heartbeatInterval)
	s.log.WithField("variant", s.variant).Info("device ready")

	s.updateSnapshotCache()
	if s.roster != nil {
		s.roster.Register(s)
	}
}

func (s *Session) handleDigitalMessage(msg firmata.Message) {
	portValue := firmata.DecodeDigitalMessage(msg)
	base := msg.Port * 8
	changed := false
	for i := 0; i < 8; i++ {
		idx := base + i
		if idx >= len(s.pins) {
			break
		}
		if s.pins[idx].Mode != firmata.ModeInput {
			continue
		}
		bit := int((portValue >> uint(i)) & 0x01)
		s.pins[idx].Value = bit
		changed = true
	}
	if changed {
		// Digital callbacks always emit, unconditionally (spec §4.3).
		s.emitUpdate()
	}
}

func (s *Session) handleAnalogMessage(msg firmata.Message) {
	value := firmata.DecodeAnalogMessage(msg)
	pin := s.analogPinByChannel(msg.Port)
	if pin < 0 {
		return
	}
	if prev, ok := s.previousAnalog[pin]; ok && prev == value {
		return // transitions only (spec §3 invariant)
	}
	s.previousAnalog[pin] = value
	s.pins[pin].Value = value
	s.emitUpdate()
}

func (s *Session) analogPinByChannel(channel int) int {
	for i, p := range s.pins {
		if p.AnalogChannel == channel {
			return i
		}
	}
	return -1
}

func (s *Session) sendHeartbeat() {
	if s.heartbeatDeadC != nil {
		// A probe is already outstanding; the deadline governs liveness.
		return
	}
	if err := s.writeFrame(firmata.EncodeReportFirmwareQuery()); err != nil {
		return
	}
	s.heartbeatDeadC = s.timers.armTimer("heartbeatDeadline", s.heartbeatDeadline)
}

func (s *Session) dispatch(name string, params []string) error {
	action, ok := s.actions[name]
	if !ok {
		return ErrActionUnavailable
	}
	if len(params) != action.Arity {
		return ErrActionMalformed
	}
	if err := action.Handler(s, params); err != nil {
		return err
	}
	s.emitUpdate()
	return nil
}

func (s *Session) setPinValue(pin, value int) error {
	if pin < 0 || pin >= len(s.pins) {
		return ErrActionMalformed
	}
	p := s.pins[pin]

	if p.IsDigital() {
		if value != firmata.Low && value != firmata.High {
			s.log.WithFields(logrus.Fields{"pin": pin, "value": value}).Warn("ignoring out-of-range digital value")
			return nil
		}
		if p.Mode != firmata.ModeOutput {
			if err := s.writeFrame(firmata.EncodeSetPinMode(pin, firmata.ModeOutput)); err != nil {
				return err
			}
			s.pins[pin].Mode = firmata.ModeOutput
		}
		s.pins[pin].Value = value
		return s.writeDigitalPort(pin / 8)
	}

	s.pins[pin].Value = value
	return s.writeFrame(firmata.EncodeAnalogWrite(pin, value))
}

func (s *Session) writeDigitalPort(port int) error {
	var portValue byte
	base := port * 8
	for i := 0; i < 8; i++ {
		idx := base + i
		if idx >= len(s.pins) {
			break
		}
		if s.pins[idx].Value != 0 {
			portValue |= 1 << uint(i)
		}
	}
	return s.writeFrame(firmata.EncodeDigitalMessage(port, portValue))
}

func (s *Session) startBlink() error {
	if s.blinkTickC != nil {
		s.log.Warn("blink already running, ignoring BLINKON")
		return nil
	}
	s.blinkTickC = s.timers.armTicker("blink", blinkInterval)
	s.currentProgram = "blink"
	return nil
}

func (s *Session) stopBlink() error {
	s.timers.stopTicker("blink")
	s.blinkTickC = nil
	s.currentProgram = "idle"
	return nil
}

func (s *Session) toggleBlinkPin() {
	_ = s.toggleLED()
}

func (s *Session) toggleLED() error {
	led := s.pinMap.LED
	if led < 0 || led >= len(s.pins) {
		return ErrActionMalformed
	}
	next := firmata.High
	if s.pins[led].Value == firmata.High {
		next = firmata.Low
	}
	return s.setPinValue(led, next)
}

func (s *Session) emitUpdate() {
	s.updateSnapshotCache()
	if s.roster != nil {
		s.roster.NotifyUpdated(s.identity)
	}
}

func (s *Session) updateSnapshotCache() {
	s.snapshotCache.Store(newSnapshot(
		s.identity, s.firmwareName, s.vendorID, s.productID,
		s.variant, s.online, s.currentProgram, s.actions, s.pins,
	))
}

func (s *Session) writeFrame(frame []byte) error {
	if _, err := s.link.Write(frame); err != nil {
		s.closeSession(err)
		return err
	}
	return nil
}

// closeSession implements the CLOSING transition: cancel all timers,
// mark offline, close the link, and notify the roster. Idempotent.
func (s *Session) closeSession(reason error) {
	if s.state == StateClosing || s.state == StateClosed {
		return
	}
	s.state = StateClosing
	s.log.WithError(reason).Warn("session closing")

	s.timers.stopAll()
	s.identTimerC = nil
	s.heartbeatTickC = nil
	s.heartbeatDeadC = nil
	s.blinkTickC = nil

	s.online = false
	s.currentProgram = "idle"
	s.updateSnapshotCache()

	_ = s.link.Close()

	if s.roster != nil {
		s.roster.Deregister(s)
	}
	if errors.Is(reason, ErrConnectionTimeout) && s.onConnectFailure != nil {
		s.onConnectFailure(s.identity, reason)
	}

	s.state = StateClosed
}
