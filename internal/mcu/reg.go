package mcu

import "sync/atomic"

// Reg8 is an 8-bit cell shared between a handler and the foreground.
// Byte loads and stores are indivisible on the target, so no critical
// section is needed around them.
type Reg8 struct {
	v atomic.Uint32
}

// Load returns the current value.
func (r *Reg8) Load() uint8 { return uint8(r.v.Load()) }

// Store sets the value.
func (r *Reg8) Store(v uint8) { r.v.Store(uint32(v)) }

// Flag is a single shared boolean.
type Flag struct {
	v atomic.Bool
}

// Load returns the current value.
func (f *Flag) Load() bool { return f.v.Load() }

// Store sets the value.
func (f *Flag) Store(v bool) { f.v.Store(v) }
