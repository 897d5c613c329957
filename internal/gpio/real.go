//go:build linux

package gpio

import (
	"fmt"
	"sync/atomic"

	"github.com/warthog618/go-gpiocdev"
)

const consumer = "onoff"

// RealReader watches the button and off lines for edges and caches their
// levels, so Levels never makes a syscall.
type RealReader struct {
	chip   *gpiocdev.Chip
	button *gpiocdev.Line
	off    *gpiocdev.Line

	buttonOffset int
	buttonHigh   atomic.Bool
	offHigh      atomic.Bool
}

// NewRealReader requests both lines as inputs with pull-ups, matching
// switches and open-collector outputs that pull to ground.
func NewRealReader(chipName string, buttonLine, offLine int) (*RealReader, error) {
	chip, err := gpiocdev.NewChip(chipName, gpiocdev.WithConsumer(consumer))
	if err != nil {
		return nil, fmt.Errorf("open gpio chip %s: %w", chipName, err)
	}
	r := &RealReader{chip: chip, buttonOffset: buttonLine}

	r.button, err = chip.RequestLine(buttonLine, gpiocdev.AsInput, gpiocdev.WithPullUp,
		gpiocdev.WithBothEdges, gpiocdev.WithEventHandler(r.handle))
	if err != nil {
		chip.Close()
		return nil, fmt.Errorf("request button line %d: %w", buttonLine, err)
	}

	r.off, err = chip.RequestLine(offLine, gpiocdev.AsInput, gpiocdev.WithPullUp,
		gpiocdev.WithBothEdges, gpiocdev.WithEventHandler(r.handle))
	if err != nil {
		r.button.Close()
		chip.Close()
		return nil, fmt.Errorf("request off line %d: %w", offLine, err)
	}

	if err := r.prime(); err != nil {
		r.Close()
		return nil, err
	}
	return r, nil
}

// prime seeds the cached levels. An edge racing with this read is also
// delivered to handle, which wins.
func (r *RealReader) prime() error {
	v, err := r.button.Value()
	if err != nil {
		return fmt.Errorf("read button line: %w", err)
	}
	r.buttonHigh.Store(v != 0)

	v, err = r.off.Value()
	if err != nil {
		return fmt.Errorf("read off line: %w", err)
	}
	r.offHigh.Store(v != 0)
	return nil
}

func (r *RealReader) handle(evt gpiocdev.LineEvent) {
	high := evt.Type == gpiocdev.LineEventRisingEdge
	if evt.Offset == r.buttonOffset {
		r.buttonHigh.Store(high)
		return
	}
	r.offHigh.Store(high)
}

// Levels returns the cached raw levels.
func (r *RealReader) Levels() (button, off bool) {
	return r.buttonHigh.Load(), r.offHigh.Load()
}

// Close releases GPIO resources.
func (r *RealReader) Close() error {
	var errs []error
	for name, l := range map[string]*gpiocdev.Line{"button": r.button, "off": r.off} {
		if l == nil {
			continue
		}
		if err := l.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s line: %w", name, err))
		}
	}
	if r.chip != nil {
		if err := r.chip.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close chip: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}

// RealOutput drives a single output line.
type RealOutput struct {
	chip *gpiocdev.Chip
	line *gpiocdev.Line
}

// NewRealOutput requests offset as an output at the given initial level.
func NewRealOutput(chipName string, offset int, high bool) (*RealOutput, error) {
	chip, err := gpiocdev.NewChip(chipName, gpiocdev.WithConsumer(consumer))
	if err != nil {
		return nil, fmt.Errorf("open gpio chip %s: %w", chipName, err)
	}
	line, err := chip.RequestLine(offset, gpiocdev.AsOutput(level(high)))
	if err != nil {
		chip.Close()
		return nil, fmt.Errorf("request output line %d: %w", offset, err)
	}
	return &RealOutput{chip: chip, line: line}, nil
}

// SetValue drives the line.
func (o *RealOutput) SetValue(high bool) error {
	return o.line.SetValue(level(high))
}

// Close returns the line to an input so the load's own pull resistor decides
// its state while nothing drives it.
func (o *RealOutput) Close() error {
	var errs []error
	if err := o.line.Reconfigure(gpiocdev.AsInput); err != nil {
		errs = append(errs, fmt.Errorf("reconfigure line: %w", err))
	}
	if err := o.line.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close line: %w", err))
	}
	if err := o.chip.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close chip: %w", err))
	}
	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}

func level(high bool) int {
	if high {
		return 1
	}
	return 0
}
