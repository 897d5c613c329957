// Package mcu models the small amount of processor behaviour the control core
// depends on: the global interrupt-enable flag, the sleep instruction and
// single-byte shared registers.
//
// On the chip a handler runs with interrupts disabled and the foreground loop
// only ever competes with it for multi-byte values. The hosted model keeps
// that contract: Interrupt and Disable exclude each other, and nothing else
// in the process takes the same lock.
package mcu

import (
	"context"
	"sync"
)

// CPU is the interrupt controller and sleep state of one core.
type CPU struct {
	// irq held means "interrupts disabled".
	irq  sync.Mutex
	wake chan struct{}
}

// NewCPU returns a CPU with interrupts enabled and nothing pending.
func NewCPU() *CPU {
	return &CPU{wake: make(chan struct{}, 1)}
}

// Disable enters a critical section and returns the function that restores
// the previous interrupt state. Foreground only: calling it from inside a
// handler deadlocks, just as re-enabling inside an ISR_BLOCK handler would
// be a bug on the chip.
func (c *CPU) Disable() (restore func()) {
	c.irq.Lock()
	return c.irq.Unlock
}

// Interrupt runs h as an interrupt handler: masked against other handlers
// and against foreground critical sections. The parked foreground is woken
// once h returns.
func (c *CPU) Interrupt(h func()) {
	c.irq.Lock()
	h()
	c.irq.Unlock()

	select {
	case c.wake <- struct{}{}:
	default:
	}
}

// Wait parks the foreground until the next interrupt or until ctx is done.
func (c *CPU) Wait(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-c.wake:
		return nil
	}
}
