package logic

import (
	"context"

	"github.com/sweeney/onoff/internal/led"
)

// Options configures a Controller.
type Options struct {
	Timing Timing
	// PowerFailed is set when the persisted status says the load was on
	// when the supply last went away. The stale status is always cleared.
	PowerFailed bool
	// Attention flashes the button LED after a power failure, until the
	// next press.
	Attention bool
}

// Waiter parks the loop until the next interrupt.
type Waiter interface {
	Wait(ctx context.Context) error
}

// Controller runs the button/power state machine. All of its state is
// touched only from the loop that calls Step.
type Controller struct {
	hw          Hardware
	t           Timing
	powerFailed bool
	attention   bool
	s           Session
}

// NewController starts a session with power off and every LED dark.
func NewController(hw Hardware, opts Options) *Controller {
	c := &Controller{
		hw:          hw,
		t:           opts.Timing,
		powerFailed: opts.PowerFailed,
		attention:   opts.PowerFailed && opts.Attention,
	}
	c.s = Session{Mode: Released, Boot: hw.Clock.Ticks()}

	for ch := led.Channel(0); ch < led.NumChannels; ch++ {
		hw.LEDs.SetMode(ch, led.Off)
	}
	hw.Relay.SetPower(false)

	// The load is off now, whatever was recorded before the failure.
	if c.powerFailed && hw.Persister != nil {
		hw.Persister.StorePower(false)
	}
	return c
}

// Session returns a copy of the current state.
func (c *Controller) Session() Session { return c.s }

// elapsed is wraparound-safe.
func elapsed(now, since uint32) uint32 { return now - since }

// Step runs one iteration of the control loop.
func (c *Controller) Step() {
	s := &c.s
	now := c.hw.Clock.Ticks()
	button := c.hw.Inputs.Button()

	// Let the debounce filter settle after power is applied.
	if !s.DelayArmed {
		if elapsed(now, s.Boot) < c.t.MinDelay {
			return
		}
		s.DelayArmed = true
		c.setPowerLEDInit(s.Power)
		c.setButtonLED(button)
		if button {
			// Held since power-up: must be released before it counts.
			s.Mode = Cancelled
		} else {
			s.Mode = Released
			if c.attention {
				s.Attention = true
				c.hw.LEDs.SetMode(led.Green, led.Flash)
			}
		}
	}

	if !button {
		if s.Mode != Released {
			switch {
			case s.Mode == Active && elapsed(now, s.PressedAt) >= c.t.ButtonCancel:
				// Released after the cancel time, without a step in between.
				c.cancelHold(now)
			case s.Mode == Active:
				c.toggle(now)
			}
			c.setButtonLED(false)
			s.Mode = Released
		}
	} else {
		hold := elapsed(now, s.PressedAt)
		switch s.Mode {
		case Released:
			s.PressedAt = now
			s.Attention = false
			c.setButtonLED(true)
			s.Mode = Delaying
		case Delaying:
			// Steps may be missed, so the cancel time can pass here.
			if hold >= c.t.ButtonCancel {
				c.setButtonLED(false)
				s.Mode = Cancelled
				c.notify(Event{Tick: now, Type: EventPressCancelled, Reason: ReasonHold, Power: s.Power})
			} else if hold >= c.t.ButtonPress {
				// Show what releasing now would do.
				c.setPowerLED(!s.Power)
				s.Mode = Active
			}
		case Active:
			if hold >= c.t.ButtonCancel {
				c.cancelHold(now)
				c.setButtonLED(false)
				s.Mode = Cancelled
			}
		}
	}

	off := c.hw.Inputs.Off()
	if !s.OffArmed {
		// The host board may glitch its off line while it boots.
		if elapsed(now, s.Boot) < c.t.MinOffDelay {
			s.LastOff = off
			return
		}
		s.OffArmed = true
	}

	if off && !s.LastOff {
		c.forceOff(now)
	}
	s.LastOff = off
}

// Run steps forever, parking between iterations, until ctx is done.
func (c *Controller) Run(ctx context.Context, w Waiter) error {
	for {
		c.Step()
		if err := w.Wait(ctx); err != nil {
			return err
		}
	}
}

// cancelHold undoes the preview of an ACTIVE press that was held too long.
func (c *Controller) cancelHold(now uint32) {
	c.setPowerLED(c.s.Power)
	c.notify(Event{Tick: now, Type: EventPressCancelled, Reason: ReasonHold, Power: c.s.Power})
}

func (c *Controller) toggle(now uint32) {
	s := &c.s
	s.Power = !s.Power
	c.hw.Relay.SetPower(s.Power)
	c.setPowerLED(s.Power)
	c.persist(s.Power)

	typ := EventPowerOff
	if s.Power {
		typ = EventPowerOn
	}
	c.notify(Event{Tick: now, Type: typ, Reason: ReasonButton, Power: s.Power})
}

// forceOff handles a power-off request from the host board. A press in
// progress is cancelled so its release cannot switch the power back on.
func (c *Controller) forceOff(now uint32) {
	s := &c.s
	wasOn := s.Power
	s.Power = false
	c.hw.Relay.SetPower(false)
	c.setPowerLED(false)
	if wasOn {
		c.persist(false)
		c.notify(Event{Tick: now, Type: EventPowerOff, Reason: ReasonOffSignal})
	}

	if s.Mode != Released {
		s.Mode = Cancelled
		c.setButtonLED(false)
		c.notify(Event{Tick: now, Type: EventPressCancelled, Reason: ReasonOffSignal})
	}
}

func (c *Controller) setButtonLED(on bool) {
	m := led.Off
	if on {
		m = led.On
	}
	c.hw.LEDs.SetMode(led.Green, m)
}

// setPowerLED shows red for off and blue for on.
func (c *Controller) setPowerLED(power bool) {
	if power {
		c.hw.LEDs.SetMode(led.Red, led.Off)
		c.hw.LEDs.SetMode(led.Blue, led.On)
		return
	}
	c.hw.LEDs.SetMode(led.Red, led.On)
	c.hw.LEDs.SetMode(led.Blue, led.Off)
}

// setPowerLEDInit is setPowerLED with a breathing red for standby.
func (c *Controller) setPowerLEDInit(power bool) {
	if power {
		c.setPowerLED(true)
		return
	}
	c.hw.LEDs.SetMode(led.Red, led.Flash)
	c.hw.LEDs.SetMode(led.Blue, led.Off)
}

func (c *Controller) persist(on bool) {
	if c.hw.Persister != nil {
		c.hw.Persister.StorePower(on)
	}
}

func (c *Controller) notify(e Event) {
	if c.hw.Notifier != nil {
		c.hw.Notifier.Notify(e)
	}
}
