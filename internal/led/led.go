// Package led drives the three status LEDs from a per-channel mode.
//
// The controller only ever sets modes. Once per PWM period Handle turns each
// mode into a duty value and advances the triangle waveform that all
// flashing channels share, so flashing LEDs stay in step with each other.
package led

import (
	"fmt"

	"github.com/sweeney/onoff/internal/mcu"
)

// Max is the full-scale duty value.
const Max = 255

// Channel identifies one LED.
type Channel uint8

const (
	Red Channel = iota
	Green
	Blue

	NumChannels = 3
)

func (c Channel) String() string {
	switch c {
	case Red:
		return "red"
	case Green:
		return "green"
	case Blue:
		return "blue"
	}
	return fmt.Sprintf("channel(%d)", uint8(c))
}

// Mode is a bit field: bit 0 inverts the intensity, bit 1 selects the flash
// waveform. FlashInverted is therefore On|Flash.
type Mode uint8

const (
	Off           Mode = 0
	On            Mode = 1
	Flash         Mode = 2
	FlashInverted Mode = 3
)

func (m Mode) String() string {
	switch m {
	case Off:
		return "OFF"
	case On:
		return "ON"
	case Flash:
		return "FLASH"
	case FlashInverted:
		return "FLASH_INVERTED"
	}
	return fmt.Sprintf("MODE(%d)", uint8(m))
}

// DutyWriter is the PWM compare output for all channels. Duty is logical:
// Max means fully lit, whatever the electrical polarity.
type DutyWriter interface {
	SetDuty(ch Channel, duty uint8)
}

// Duty derives the output for a mode at the given waveform level.
func Duty(m Mode, level uint8) uint8 {
	var v uint8
	if m&Flash != 0 {
		v = level
	}
	if m&On != 0 {
		v = Max - v
	}
	return v
}

// Engine holds the channel modes and the flash waveform.
type Engine struct {
	out  DutyWriter
	mode [NumChannels]mcu.Reg8

	// flash divisor, written by the foreground
	speed mcu.Reg8

	// waveform; handler only
	level uint8
	dir   int8
	ctr   uint8
}

// DefaultFlashSpeed is the number of PWM periods per waveform step.
const DefaultFlashSpeed = 8

// New returns an engine with every channel off.
func New(out DutyWriter) *Engine {
	e := &Engine{out: out, dir: 1}
	e.speed.Store(DefaultFlashSpeed)
	return e
}

// SetMode changes a channel's mode; the next PWM period picks it up.
func (e *Engine) SetMode(ch Channel, m Mode) { e.mode[ch].Store(uint8(m)) }

// Mode returns a channel's current mode.
func (e *Engine) Mode(ch Channel) Mode { return Mode(e.mode[ch].Load()) }

// SetAll puts every channel in the same mode.
func (e *Engine) SetAll(m Mode) {
	for i := range e.mode {
		e.mode[i].Store(uint8(m))
	}
}

// SetFlashSpeed sets the waveform step divisor in PWM periods. Zero is
// treated as one.
func (e *Engine) SetFlashSpeed(divisor uint8) { e.speed.Store(divisor) }

// Level returns the waveform level. Only meaningful between handler runs.
func (e *Engine) Level() uint8 { return e.level }

// Direction returns the waveform direction, +1 or -1.
func (e *Engine) Direction() int8 { return e.dir }

// Handle is the PWM period interrupt.
func (e *Engine) Handle() {
	for ch := Channel(0); ch < NumChannels; ch++ {
		e.out.SetDuty(ch, Duty(Mode(e.mode[ch].Load()), e.level))
	}

	if e.ctr > 1 {
		e.ctr--
		return
	}
	e.ctr = e.speed.Load()
	if e.ctr == 0 {
		e.ctr = 1
	}

	e.level = uint8(int16(e.level) + int16(e.dir))
	if e.level == 0 {
		e.dir = 1
	} else if e.level >= Max {
		e.dir = -1
	}
}
