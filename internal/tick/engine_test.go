package tick

import (
	"math"
	"testing"

	"github.com/sweeney/onoff/internal/mcu"
)

// levels is a scripted sampler holding raw electrical levels.
type levels struct {
	button, off bool
}

func (l *levels) Levels() (bool, bool) { return l.button, l.off }

// newEngine returns an active-high engine with the given thresholds so tests
// can talk in asserted terms directly.
func newEngine(button, off uint16) (*Engine, *levels) {
	in := &levels{}
	e := New(mcu.NewCPU(), in, Config{ButtonDeglitch: button, OffDeglitch: off})
	return e, in
}

func run(e *Engine, n int) {
	for i := 0; i < n; i++ {
		e.Handle()
	}
}

func TestTickCounts(t *testing.T) {
	e, _ := newEngine(4, 4)
	run(e, 1000)
	if got := e.Ticks(); got != 1000 {
		t.Errorf("Ticks: got %d, want 1000", got)
	}
	if got := e.Ticks16(); got != 1000 {
		t.Errorf("Ticks16: got %d, want 1000", got)
	}
	if got := e.Ticks8(); got != uint8(1000%256) {
		t.Errorf("Ticks8: got %d, want %d", got, 1000%256)
	}
}

func TestTickWraps(t *testing.T) {
	e, _ := newEngine(4, 4)
	e.tick.Store(math.MaxUint32 - 1)
	start := e.Ticks()
	run(e, 5)

	now := e.Ticks()
	if now != 3 {
		t.Errorf("after wrap: got %d, want 3", now)
	}
	if el := Elapsed(now, start); el != 5 {
		t.Errorf("Elapsed across wrap: got %d, want 5", el)
	}
}

func TestDebounceFlipsOnThresholdTick(t *testing.T) {
	e, in := newEngine(8, 8)
	in.button = true

	run(e, 7)
	if e.Button() {
		t.Fatal("button flipped before threshold")
	}
	run(e, 1)
	if !e.Button() {
		t.Fatal("button did not flip on 8th disagreeing tick")
	}

	in.button = false
	run(e, 7)
	if !e.Button() {
		t.Fatal("button released before threshold")
	}
	run(e, 1)
	if e.Button() {
		t.Fatal("button did not release on 8th disagreeing tick")
	}
}

func TestDebounceRejectsBounce(t *testing.T) {
	e, in := newEngine(8, 8)

	// Seven ticks asserted, one tick agreeing, repeated: never eight in a row.
	for cycle := 0; cycle < 50; cycle++ {
		in.button = true
		run(e, 7)
		in.button = false
		run(e, 1)
		if e.Button() {
			t.Fatalf("cycle %d: bounce accepted as press", cycle)
		}
	}
}

func TestDebounceInputsIndependent(t *testing.T) {
	e, in := newEngine(4, 16)
	in.button = true
	in.off = true

	run(e, 4)
	if !e.Button() {
		t.Error("button should be asserted after 4 ticks")
	}
	if e.Off() {
		t.Error("off should still be released after 4 ticks")
	}
	run(e, 12)
	if !e.Off() {
		t.Error("off should be asserted after 16 ticks")
	}
}

func TestDebounceChangesAtMostOncePerWindow(t *testing.T) {
	const threshold = 5
	e, in := newEngine(threshold, threshold)

	// Pseudo-random level stream; count flips and the disagreement run
	// length that preceded each one.
	seed := uint32(12345)
	prev := e.Button()
	streak := 0
	for i := 0; i < 20000; i++ {
		seed = seed*1103515245 + 12345
		in.button = seed&(1<<16) != 0
		if in.button != prev {
			streak++
		} else {
			streak = 0
		}
		e.Handle()
		if cur := e.Button(); cur != prev {
			if streak < threshold {
				t.Fatalf("tick %d: flipped after %d disagreeing ticks", i, streak)
			}
			prev = cur
			streak = 0
		}
	}
}

func TestActiveLowPolarity(t *testing.T) {
	in := &levels{button: true, off: true} // pulled up, released
	e := New(mcu.NewCPU(), in, DefaultConfig())

	run(e, DefaultDeglitch*2)
	if e.Button() || e.Off() {
		t.Fatal("high levels must read as released when active low")
	}

	in.button = false
	run(e, DefaultDeglitch)
	if !e.Button() {
		t.Error("low level must read as pressed when active low")
	}
}

func TestZeroThresholdBehavesAsOne(t *testing.T) {
	e, in := newEngine(0, 0)
	in.button = true
	e.Handle()
	if !e.Button() {
		t.Error("zero threshold should flip on the first disagreeing tick")
	}
}

func TestTicks16AcrossLowByteRollover(t *testing.T) {
	e, _ := newEngine(4, 4)
	e.tick.Store(0x00fe)

	run(e, 1)
	if got := e.Ticks16(); got != 0x00ff {
		t.Errorf("before rollover: got %#x, want 0xff", got)
	}
	run(e, 1)
	if got := e.Ticks16(); got != 0x0100 {
		t.Errorf("after rollover: got %#x, want 0x100", got)
	}
	if got := e.Ticks8(); got != 0 {
		t.Errorf("Ticks8 after rollover: got %d, want 0", got)
	}
}

func TestTicks16DropsHighBits(t *testing.T) {
	e, _ := newEngine(4, 4)
	e.tick.Store(0x0001ffff)
	if got := e.Ticks16(); got != 0xffff {
		t.Errorf("got %#x, want 0xffff", got)
	}
	run(e, 1)
	if got := e.Ticks16(); got != 0 {
		t.Errorf("after 16-bit wrap: got %#x, want 0", got)
	}
	if got := e.Ticks(); got != 0x00020000 {
		t.Errorf("Ticks: got %#x, want 0x20000", got)
	}
}
