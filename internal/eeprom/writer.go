// Package eeprom keeps a small record in non-volatile memory up to date one
// byte at a time, writing only the bytes that changed.
//
// Two copies of the record live in RAM: the desired copy, written by the
// foreground, and the programmed copy, which mirrors the device and is only
// touched by the ready handler.
package eeprom

import (
	"context"
	"io"

	"github.com/sweeney/onoff/internal/mcu"
)

// Device is a byte-addressable non-volatile store. Program starts a single
// byte write; the device is Busy until it completes and then signals Ready.
type Device interface {
	io.ReaderAt
	Size() int
	Program(addr int, v byte)
	Busy() bool
	Ready() <-chan struct{}
}

// Writer reconciles the desired copy against the device.
type Writer struct {
	dev  Device
	cpu  *mcu.CPU
	base int

	desired    []mcu.Reg8
	programmed []byte

	offset  int // guarded by cpu
	enabled mcu.Flag
	kick    chan struct{}
}

// NewWriter returns a writer for the record at base whose current device
// contents are programmed. The desired copy starts equal to it.
func NewWriter(dev Device, cpu *mcu.CPU, base int, programmed []byte) *Writer {
	w := &Writer{
		dev:        dev,
		cpu:        cpu,
		base:       base,
		desired:    make([]mcu.Reg8, len(programmed)),
		programmed: append([]byte(nil), programmed...),
		kick:       make(chan struct{}, 1),
	}
	for i, v := range programmed {
		w.desired[i].Store(v)
	}
	return w
}

// Len returns the record size.
func (w *Writer) Len() int { return len(w.programmed) }

// Set updates one byte of the desired copy. It does not start a write.
func (w *Writer) Set(i int, v byte) { w.desired[i].Store(v) }

// Desired returns one byte of the desired copy.
func (w *Writer) Desired(i int) byte { return w.desired[i].Load() }

// Programmed returns one byte of the programmed copy. Only safe while no
// write is pending, or from the handler.
func (w *Writer) Programmed(i int) byte { return w.programmed[i] }

// Pending reports whether the ready interrupt is enabled.
func (w *Writer) Pending() bool { return w.enabled.Load() }

// Done reports whether nothing is pending and the last physical write has
// finished.
func (w *Writer) Done() bool { return !w.enabled.Load() && !w.dev.Busy() }

// RequestWrite restarts the scan from the first byte and enables the ready
// interrupt. Calling it again while a write is pending is harmless.
func (w *Writer) RequestWrite() {
	restore := w.cpu.Disable()
	w.offset = 0
	w.enabled.Store(true)
	restore()

	select {
	case w.kick <- struct{}{}:
	default:
	}
}

// Handle is the ready interrupt. It skips matching bytes, programs the
// first mismatching one and returns; the cursor stays on that byte so the
// next notification confirms it before moving on. When the cursor passes
// the end of the record the interrupt is disabled.
func (w *Writer) Handle() {
	for w.offset < len(w.programmed) {
		o := w.offset
		v := w.desired[o].Load()
		if v != w.programmed[o] {
			w.dev.Program(w.base+o, v)
			w.programmed[o] = v
			return
		}
		w.offset++
	}
	w.enabled.Store(false)
}

// Run dispatches the ready interrupt while a write is pending and the
// device is idle, until ctx is done.
func (w *Writer) Run(ctx context.Context) {
	for {
		for w.enabled.Load() && !w.dev.Busy() {
			w.cpu.Interrupt(w.serviceReady)
		}
		select {
		case <-ctx.Done():
			return
		case <-w.kick:
		case <-w.dev.Ready():
		}
	}
}

// Flush services the record until nothing is pending and the device is
// idle, or ctx is done. It must not run alongside Run.
func (w *Writer) Flush(ctx context.Context) error {
	for {
		for w.enabled.Load() && !w.dev.Busy() {
			w.cpu.Interrupt(w.serviceReady)
		}
		if w.Done() {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-w.dev.Ready():
		}
	}
}

// serviceReady re-checks the level-triggered condition with interrupts
// masked before running the handler.
func (w *Writer) serviceReady() {
	if w.enabled.Load() && !w.dev.Busy() {
		w.Handle()
	}
}
