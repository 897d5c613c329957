// Package pwm maps the LED engine's logical duty values onto physical PWM
// outputs.
package pwm

import (
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/sweeney/onoff/internal/led"
)

// Pin is one PWM output taking a physical duty in 0..led.Max.
type Pin interface {
	Set(duty uint8) error
}

// Output implements led.DutyWriter over three pins, inverting the duty for
// channels wired active low. Unchanged duties are not rewritten.
type Output struct {
	pins      [led.NumChannels]Pin
	activeLow [led.NumChannels]bool

	mu      sync.Mutex
	last    [led.NumChannels]int
	failing [led.NumChannels]bool
}

// NewOutput returns an Output. Nothing is written until the first SetDuty.
func NewOutput(pins [led.NumChannels]Pin, activeLow [led.NumChannels]bool) *Output {
	o := &Output{pins: pins, activeLow: activeLow}
	for i := range o.last {
		o.last[i] = -1
	}
	return o
}

func (o *Output) toPhys(ch led.Channel, duty uint8) uint8 {
	if o.activeLow[ch] {
		return led.Max - duty
	}
	return duty
}

// SetDuty writes a logical duty. A failing pin is logged once until it
// recovers.
func (o *Output) SetDuty(ch led.Channel, duty uint8) {
	if ch >= led.NumChannels || o.pins[ch] == nil {
		return
	}
	phys := o.toPhys(ch, duty)

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.last[ch] == int(phys) {
		return
	}
	if err := o.pins[ch].Set(phys); err != nil {
		if !o.failing[ch] {
			log.WithError(err).WithField("channel", ch.String()).Error("pwm: set duty")
			o.failing[ch] = true
		}
		o.last[ch] = -1
		return
	}
	o.failing[ch] = false
	o.last[ch] = int(phys)
}

// Fake records the physical duty of each channel.
type Fake struct {
	mu     sync.Mutex
	Duties [led.NumChannels]uint8
	Writes int
}

// Pins returns a Pin per channel backed by f.
func (f *Fake) Pins() [led.NumChannels]Pin {
	var p [led.NumChannels]Pin
	for ch := range p {
		p[ch] = fakePin{f: f, ch: led.Channel(ch)}
	}
	return p
}

// Duty returns the last physical duty written to ch.
func (f *Fake) Duty(ch led.Channel) uint8 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Duties[ch]
}

type fakePin struct {
	f  *Fake
	ch led.Channel
}

func (p fakePin) Set(duty uint8) error {
	p.f.mu.Lock()
	defer p.f.mu.Unlock()
	p.f.Duties[p.ch] = duty
	p.f.Writes++
	return nil
}
