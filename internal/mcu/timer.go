package mcu

import (
	"context"
	"errors"
	"time"
)

// ErrPeriod is returned for a timer with no period.
var ErrPeriod = errors.New("mcu: timer period must be positive")

// Timer is a fixed-period interrupt source.
type Timer struct {
	cpu     *CPU
	period  time.Duration
	handler func()
}

// NewTimer returns a timer that runs handler on cpu once per period.
func NewTimer(cpu *CPU, period time.Duration, handler func()) (*Timer, error) {
	if period <= 0 {
		return nil, ErrPeriod
	}
	return &Timer{cpu: cpu, period: period, handler: handler}, nil
}

// Period returns the configured period.
func (t *Timer) Period() time.Duration { return t.period }

// Run dispatches the handler every period until ctx is done.
// Overruns are dropped by the ticker, the same way a timer overflow flag
// set twice before service counts once.
func (t *Timer) Run(ctx context.Context) {
	tk := time.NewTicker(t.period)
	defer tk.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-tk.C:
			t.cpu.Interrupt(t.handler)
		}
	}
}
