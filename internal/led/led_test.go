package led

import (
	"context"
	"errors"
	"testing"
	"time"
)

// recorder keeps the last duty written per channel.
type recorder struct {
	duty   [NumChannels]uint8
	writes int
}

func (r *recorder) SetDuty(ch Channel, d uint8) {
	r.duty[ch] = d
	r.writes++
}

func TestDuty(t *testing.T) {
	tests := []struct {
		mode  Mode
		level uint8
		want  uint8
	}{
		{Off, 0, 0},
		{Off, 200, 0},
		{On, 0, Max},
		{On, 200, Max},
		{Flash, 0, 0},
		{Flash, 100, 100},
		{Flash, 255, 255},
		{FlashInverted, 0, 255},
		{FlashInverted, 100, 155},
		{FlashInverted, 255, 0},
	}
	for _, tt := range tests {
		if got := Duty(tt.mode, tt.level); got != tt.want {
			t.Errorf("Duty(%s, %d): got %d, want %d", tt.mode, tt.level, got, tt.want)
		}
	}
}

func TestModesReachOutputsNextPeriod(t *testing.T) {
	rec := &recorder{}
	e := New(rec)

	e.SetMode(Red, On)
	e.SetMode(Blue, Off)
	e.SetMode(Green, FlashInverted)
	if rec.writes != 0 {
		t.Fatal("SetMode must not write outputs")
	}

	e.Handle()
	if rec.duty[Red] != Max {
		t.Errorf("red: got %d, want %d", rec.duty[Red], Max)
	}
	if rec.duty[Blue] != 0 {
		t.Errorf("blue: got %d, want 0", rec.duty[Blue])
	}
	// The waveform is at 0 for the first period.
	if rec.duty[Green] != Max {
		t.Errorf("green: got %d, want %d", rec.duty[Green], Max)
	}
	if e.Mode(Green) != FlashInverted {
		t.Errorf("Mode(green): got %s", e.Mode(Green))
	}
}

func TestSetAll(t *testing.T) {
	e := New(&recorder{})
	e.SetAll(Flash)
	for ch := Channel(0); ch < NumChannels; ch++ {
		if e.Mode(ch) != Flash {
			t.Errorf("%s: got %s, want FLASH", ch, e.Mode(ch))
		}
	}
}

func TestWaveformBoundsAndPeriod(t *testing.T) {
	for _, divisor := range []uint8{1, 3, 8} {
		e := New(&recorder{})
		e.SetFlashSpeed(divisor)

		var zeros []int
		prev := e.Level()
		for i := 1; i <= 3*2*Max*int(divisor)+1; i++ {
			e.Handle()
			if d := e.Direction(); d != 1 && d != -1 {
				t.Fatalf("divisor %d: direction %d", divisor, d)
			}
			if e.Level() == 0 && prev != 0 {
				zeros = append(zeros, i)
			}
			prev = e.Level()
		}
		if len(zeros) < 2 {
			t.Fatalf("divisor %d: waveform never returned to zero", divisor)
		}
		want := 2 * Max * int(divisor)
		for k := 1; k < len(zeros); k++ {
			if got := zeros[k] - zeros[k-1]; got != want {
				t.Errorf("divisor %d: period %d, want %d", divisor, got, want)
			}
		}
	}
}

func TestWaveformPeaksAtMax(t *testing.T) {
	e := New(&recorder{})
	e.SetFlashSpeed(1)
	peak := uint8(0)
	for i := 0; i < 2*Max; i++ {
		e.Handle()
		if e.Level() > peak {
			peak = e.Level()
		}
		if e.Level() == Max && e.Direction() != -1 {
			t.Fatal("direction must turn down at the top")
		}
	}
	if peak != Max {
		t.Errorf("peak: got %d, want %d", peak, Max)
	}
}

func TestFlashChannelsStayInStep(t *testing.T) {
	rec := &recorder{}
	e := New(rec)
	e.SetFlashSpeed(1)
	e.SetMode(Red, Flash)
	e.SetMode(Blue, Flash)
	e.SetMode(Green, FlashInverted)

	for i := 0; i < 700; i++ {
		e.Handle()
		if rec.duty[Red] != rec.duty[Blue] {
			t.Fatalf("period %d: red %d != blue %d", i, rec.duty[Red], rec.duty[Blue])
		}
		if rec.duty[Red]+rec.duty[Green] != Max {
			t.Fatalf("period %d: inverted channel out of step", i)
		}
	}
}

func TestZeroFlashSpeedStepsEveryPeriod(t *testing.T) {
	e := New(&recorder{})
	e.SetFlashSpeed(0)
	for i := 1; i <= 10; i++ {
		e.Handle()
		if e.Level() != uint8(i) {
			t.Fatalf("period %d: level %d", i, e.Level())
		}
	}
}

func TestSelfTestWalksWheel(t *testing.T) {
	rec := &recorder{}
	if err := SelfTest(context.Background(), rec, time.Microsecond, 1); err != nil {
		t.Fatalf("SelfTest: %v", err)
	}
	// 8 legs of 255 steps; the last leg drives three channels, plus the
	// three initial clears.
	want := 3 + 7*Max + 3*Max
	if rec.writes != want {
		t.Errorf("writes: got %d, want %d", rec.writes, want)
	}
	for ch := Channel(0); ch < NumChannels; ch++ {
		if rec.duty[ch] != 0 {
			t.Errorf("%s: ends at %d, want 0", ch, rec.duty[ch])
		}
	}
}

func TestSelfTestCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := SelfTest(ctx, &recorder{}, time.Millisecond, 8)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}
