// Package logic contains the button and power state machine.
// This package has NO hardware dependencies: time is the tick counter, and
// every peripheral is reached through the small interfaces below.
package logic

import (
	"github.com/sweeney/onoff/internal/led"
)

// ButtonMode is the press/hold/cancel state.
type ButtonMode uint8

const (
	Released ButtonMode = iota
	Delaying
	Active
	Cancelled
)

func (m ButtonMode) String() string {
	switch m {
	case Released:
		return "RELEASED"
	case Delaying:
		return "DELAYING"
	case Active:
		return "ACTIVE"
	case Cancelled:
		return "CANCELLED"
	}
	return "UNKNOWN"
}

// Timing holds every threshold in ticks.
type Timing struct {
	// Button input ignored until this long after boot.
	MinDelay uint32
	// Off signal ignored until this long after boot.
	MinOffDelay uint32
	// Hold time before a press counts.
	ButtonPress uint32
	// Hold time after which a press is cancelled.
	ButtonCancel uint32
}

// Clock reads the tick counter without tearing.
type Clock interface {
	Ticks() uint32
}

// Inputs are the debounced signals.
type Inputs interface {
	Button() bool
	Off() bool
}

// LEDs accepts channel modes.
type LEDs interface {
	SetMode(ch led.Channel, m led.Mode)
}

// Relay switches the load.
type Relay interface {
	SetPower(on bool)
}

// Persister remembers the power status across a power failure.
type Persister interface {
	StorePower(on bool)
}

// Notifier receives events. It is called from the control loop and must
// not block.
type Notifier interface {
	Notify(Event)
}

// Hardware bundles the ports the controller drives. Persister and Notifier
// may be nil.
type Hardware struct {
	Clock     Clock
	Inputs    Inputs
	LEDs      LEDs
	Relay     Relay
	Persister Persister
	Notifier  Notifier
}

// EventType identifies a state change worth reporting.
type EventType string

const (
	EventPowerOn        EventType = "POWER_ON"
	EventPowerOff       EventType = "POWER_OFF"
	EventPressCancelled EventType = "PRESS_CANCELLED"
)

// Reason says what caused an event.
type Reason string

const (
	ReasonButton    Reason = "BUTTON"
	ReasonHold      Reason = "HOLD"
	ReasonOffSignal Reason = "OFF_SIGNAL"
)

// Event is a state change.
type Event struct {
	Tick   uint32
	Type   EventType
	Reason Reason
	Power  bool
}

// Session is the controller's private state.
type Session struct {
	Mode      ButtonMode
	PressedAt uint32
	Power     bool

	DelayArmed bool
	OffArmed   bool
	LastOff    bool

	// Tick at which the loop started.
	Boot uint32
	// Button LED flashing after a power failure, until the next press.
	Attention bool
}
