// Package gpio connects the controller to discrete I/O lines.
// The real implementation uses the Linux GPIO character device.
// The fakes allow testing without hardware.
package gpio

import (
	"sync/atomic"

	log "github.com/sirupsen/logrus"
)

// Reader samples the raw electrical level of both inputs (true = high).
// Levels is called from the tick interrupt and must not block.
type Reader interface {
	Levels() (button, off bool)

	// Close releases GPIO resources.
	Close() error
}

// Output drives one line.
type Output interface {
	SetValue(high bool) error
	Close() error
}

// Relay maps the logical power state onto an output line.
type Relay struct {
	out       Output
	activeLow bool
	on        atomic.Bool
}

// NewRelay returns a relay in the off state. The line is not touched until
// the first SetPower.
func NewRelay(out Output, activeLow bool) *Relay {
	return &Relay{out: out, activeLow: activeLow}
}

// SetPower switches the load. A failed write is logged; the logical state
// still follows the request so the LEDs and status agree with the intent.
func (r *Relay) SetPower(on bool) {
	r.on.Store(on)
	if err := r.out.SetValue(on != r.activeLow); err != nil {
		log.WithError(err).WithField("on", on).Error("gpio: drive relay")
	}
}

// Power returns the last requested state.
func (r *Relay) Power() bool { return r.on.Load() }
