// Package config holds the persisted configuration record and the daemon's
// own settings file.
//
// Non-volatile image layout:
//
//	0  polarity, 1 = active low
//	     bit 0 blue LED
//	     bit 1 green LED
//	     bit 2 relay
//	     bit 3 button input
//	     bit 4 red LED
//	     bit 5 off signal from the host board
//	1  flash speed minus 1, in PWM periods per waveform step
//	2  time after power is applied before the button is trusted
//	3  time after boot before an off signal is trusted
//	4  time the button must be held before a press counts
//	5  time after which a held press is cancelled
//	6  last power status
//	7  spare
//
// Bytes 2 to 5 are in units of CoarseTicks.
package config

import (
	"errors"
	"fmt"
	"io"
)

// Image offsets and sizes.
const (
	RecordOffset = 0
	RecordSize   = 6
	StateOffset  = 6
	StateSize    = 1
	ImageSize    = 8
)

// CoarseTicks is the unit of the delay fields: 256 ticks, about 65.5 ms at
// 256 µs per tick.
const CoarseTicks = 256

// Polarity is the per-signal active-low bit mask.
type Polarity uint8

const (
	PolBlue   Polarity = 1 << 0
	PolGreen  Polarity = 1 << 1
	PolRelay  Polarity = 1 << 2
	PolButton Polarity = 1 << 3
	PolRed    Polarity = 1 << 4
	PolOff    Polarity = 1 << 5
)

// ActiveLow reports whether every bit in mask is set.
func (p Polarity) ActiveLow(mask Polarity) bool { return p&mask == mask }

// Record is the persisted configuration.
type Record struct {
	Polarity     Polarity
	FlashSpeed   uint8
	MinDelay     uint8
	MinOffDelay  uint8
	ButtonPress  uint8
	ButtonCancel uint8
}

// Defaults is the record shipped with the image: common-anode LEDs, an
// active-high relay and both inputs switched to ground.
func Defaults() Record {
	return Record{
		Polarity:     PolBlue | PolGreen | PolButton | PolRed | PolOff, // 0x3b
		FlashSpeed:   7,
		MinDelay:     2,
		MinOffDelay:  32,
		ButtonPress:  4,
		ButtonCancel: 48,
	}
}

// ErrShortRecord is returned when decoding fewer than RecordSize bytes.
var ErrShortRecord = errors.New("config: short record")

// MarshalBinary encodes the record in image order.
func (r Record) MarshalBinary() ([]byte, error) {
	return []byte{
		byte(r.Polarity),
		r.FlashSpeed,
		r.MinDelay,
		r.MinOffDelay,
		r.ButtonPress,
		r.ButtonCancel,
	}, nil
}

// UnmarshalBinary decodes a record.
func (r *Record) UnmarshalBinary(b []byte) error {
	if len(b) < RecordSize {
		return ErrShortRecord
	}
	*r = Record{
		Polarity:     Polarity(b[0]),
		FlashSpeed:   b[1],
		MinDelay:     b[2],
		MinOffDelay:  b[3],
		ButtonPress:  b[4],
		ButtonCancel: b[5],
	}
	return nil
}

// FlashDivisor returns the waveform divisor in PWM periods. The top
// stored value would mean 256 and is clamped to 255, the most the 8-bit
// divisor counter holds.
func (r Record) FlashDivisor() uint8 {
	if r.FlashSpeed == 0xff {
		return 0xff
	}
	return r.FlashSpeed + 1
}

// Timing holds the delay fields converted to ticks.
type Timing struct {
	MinDelay     uint32
	MinOffDelay  uint32
	ButtonPress  uint32
	ButtonCancel uint32
}

// Timing converts the coarse delay fields to ticks.
func (r Record) Timing() Timing {
	return Timing{
		MinDelay:     uint32(r.MinDelay) * CoarseTicks,
		MinOffDelay:  uint32(r.MinOffDelay) * CoarseTicks,
		ButtonPress:  uint32(r.ButtonPress) * CoarseTicks,
		ButtonCancel: uint32(r.ButtonCancel) * CoarseTicks,
	}
}

// State is the small record rewritten at runtime.
type State struct {
	PowerOn bool
}

// MarshalBinary encodes the state.
func (s State) MarshalBinary() ([]byte, error) {
	if s.PowerOn {
		return []byte{1}, nil
	}
	return []byte{0}, nil
}

// UnmarshalBinary decodes the state. Only 1 means on, so an erased cell
// reads as off.
func (s *State) UnmarshalBinary(b []byte) error {
	if len(b) < StateSize {
		return ErrShortRecord
	}
	s.PowerOn = b[0] == 1
	return nil
}

// DefaultImage returns the full non-volatile image shipped with the firmware.
func DefaultImage() []byte {
	img := make([]byte, ImageSize)
	rec, _ := Defaults().MarshalBinary()
	copy(img[RecordOffset:], rec)
	st, _ := State{}.MarshalBinary()
	copy(img[StateOffset:], st)
	img[ImageSize-1] = 0xff
	return img
}

// Load reads the configuration and state records. A configuration record
// that was never written (all cells erased) yields Defaults.
func Load(r io.ReaderAt) (Record, State, error) {
	buf := make([]byte, StateOffset+StateSize)
	if _, err := r.ReadAt(buf, RecordOffset); err != nil {
		return Record{}, State{}, fmt.Errorf("config: read image: %w", err)
	}

	var rec Record
	if erased(buf[RecordOffset : RecordOffset+RecordSize]) {
		rec = Defaults()
	} else if err := rec.UnmarshalBinary(buf[RecordOffset:]); err != nil {
		return Record{}, State{}, err
	}

	var st State
	if err := st.UnmarshalBinary(buf[StateOffset:]); err != nil {
		return Record{}, State{}, err
	}
	return rec, st, nil
}

func erased(b []byte) bool {
	for _, v := range b {
		if v != 0xff {
			return false
		}
	}
	return true
}
