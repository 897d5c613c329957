// Package tick implements the fixed-rate system tick and the input deglitch
// filter that runs on it.
//
// Handle is the timer interrupt body. Everything else is an accessor for the
// foreground loop.
package tick

import (
	"sync/atomic"

	"github.com/sweeney/onoff/internal/mcu"
)

// DefaultDeglitch is the number of consecutive disagreeing ticks before a
// debounced input changes (256 ticks ≈ 65 ms at 256 µs per tick).
const DefaultDeglitch = 256

// Sampler reads the raw electrical level of both inputs.
// It is called from interrupt context and must not block.
type Sampler interface {
	Levels() (button, off bool)
}

// Config controls input polarity and filter length.
type Config struct {
	ButtonActiveLow bool
	OffActiveLow    bool
	ButtonDeglitch  uint16
	OffDeglitch     uint16
}

// DefaultConfig matches the reference board: both inputs are pulled up and
// switched to ground.
func DefaultConfig() Config {
	return Config{
		ButtonActiveLow: true,
		OffActiveLow:    true,
		ButtonDeglitch:  DefaultDeglitch,
		OffDeglitch:     DefaultDeglitch,
	}
}

// Input is one debounced signal.
type Input struct {
	raw       bool
	ctr       uint16
	threshold uint16
	stable    mcu.Flag
}

// update applies one raw sample.
func (in *Input) update(asserted bool) {
	in.raw = asserted
	if asserted == in.stable.Load() {
		in.ctr = 0
		return
	}
	in.ctr++
	if in.ctr >= in.threshold {
		in.stable.Store(asserted)
		in.ctr = 0
	}
}

// State returns the debounced value.
func (in *Input) State() bool { return in.stable.Load() }

// Engine owns the tick counter and both debounced inputs.
type Engine struct {
	cpu     *mcu.CPU
	sampler Sampler

	buttonLow bool
	offLow    bool

	tick   atomic.Uint32
	button Input
	off    Input
}

// New returns an engine at tick zero with both inputs released.
func New(cpu *mcu.CPU, sampler Sampler, cfg Config) *Engine {
	e := &Engine{
		cpu:       cpu,
		sampler:   sampler,
		buttonLow: cfg.ButtonActiveLow,
		offLow:    cfg.OffActiveLow,
	}
	e.button.threshold = max1(cfg.ButtonDeglitch)
	e.off.threshold = max1(cfg.OffDeglitch)
	return e
}

func max1(v uint16) uint16 {
	if v == 0 {
		return 1
	}
	return v
}

// Handle is the tick interrupt: advance the counter, sample and filter.
func (e *Engine) Handle() {
	e.tick.Add(1)

	b, o := e.sampler.Levels()
	e.button.update(b != e.buttonLow)
	e.off.update(o != e.offLow)
}

// Ticks returns the full 32-bit counter. The read is done with interrupts
// disabled so it can never observe a half-updated value.
func (e *Engine) Ticks() uint32 {
	restore := e.cpu.Disable()
	v := e.tick.Load()
	restore()
	return v
}

// Ticks16 returns the low 16 bits without masking interrupts: sample the low
// byte, then the high byte, then the low byte again, and retry if a tick
// landed in between.
func (e *Engine) Ticks16() uint16 {
	for {
		lo := uint8(e.tick.Load())
		hi := uint8(e.tick.Load() >> 8)
		if uint8(e.tick.Load()) == lo {
			return uint16(hi)<<8 | uint16(lo)
		}
	}
}

// Ticks8 returns the low byte. Single-byte reads need no protection.
func (e *Engine) Ticks8() uint8 { return uint8(e.tick.Load()) }

// Button reports the debounced button state (true = pressed).
func (e *Engine) Button() bool { return e.button.State() }

// Off reports the debounced power-off request from the host board.
func (e *Engine) Off() bool { return e.off.State() }

// Elapsed returns now-since in wrapping arithmetic. Correct across a single
// wrap of the counter, for intervals below half its range.
func Elapsed(now, since uint32) uint32 { return now - since }
