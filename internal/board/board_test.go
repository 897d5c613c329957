package board

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sweeney/onoff/internal/config"
	"github.com/sweeney/onoff/internal/eeprom"
	"github.com/sweeney/onoff/internal/gpio"
	"github.com/sweeney/onoff/internal/led"
	"github.com/sweeney/onoff/internal/logic"
	"github.com/sweeney/onoff/internal/mcu"
	"github.com/sweeney/onoff/internal/pwm"
)

func testConfig() Config {
	cfg := NewConfig(config.Defaults(), 100*time.Microsecond, 200*time.Microsecond)
	cfg.ButtonDeglitch = 2
	cfg.OffDeglitch = 2
	return cfg
}

func fakeOut() *pwm.Output {
	return pwm.NewOutput((&pwm.Fake{}).Pins(), [led.NumChannels]bool{})
}

type rig struct {
	board  *Board
	reader *gpio.FakeReader
	dev    *eeprom.Mem
	duty   *pwm.Fake
}

func newRig(t *testing.T, cfg Config, image []byte) *rig {
	t.Helper()
	r := &rig{
		reader: gpio.NewFakeReader(),
		dev:    eeprom.NewMem(image),
		duty:   &pwm.Fake{},
	}
	out := pwm.NewOutput(r.duty.Pins(), [led.NumChannels]bool{true, true, true})
	b, err := New(cfg, r.reader, out, r.dev)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	r.board = b
	return r
}

func TestNewRejectsZeroPeriods(t *testing.T) {
	cfg := testConfig()
	cfg.TickPeriod = 0
	_, err := New(cfg, gpio.NewFakeReader(), fakeOut(), eeprom.NewMem(config.DefaultImage()))
	if !errors.Is(err, mcu.ErrPeriod) {
		t.Errorf("expected ErrPeriod, got %v", err)
	}
}

func TestNewRejectsShortDevice(t *testing.T) {
	_, err := New(testConfig(), gpio.NewFakeReader(), fakeOut(), eeprom.NewMem([]byte{1, 2}))
	if err == nil {
		t.Error("expected error for a device without a state record")
	}
}

func TestNewReadsStateRecord(t *testing.T) {
	img := config.DefaultImage()
	img[config.StateOffset] = 1
	r := newRig(t, testConfig(), img)
	if got := r.board.NV.Programmed(0); got != 1 {
		t.Errorf("programmed state: got %d, want 1", got)
	}
}

func TestStorePowerWritesOnlyStateByte(t *testing.T) {
	r := newRig(t, testConfig(), config.DefaultImage())

	r.board.StorePower(true)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := r.board.NV.Flush(ctx); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if got := r.dev.Bytes()[config.StateOffset]; got != 1 {
		t.Errorf("state byte: got %d, want 1", got)
	}
	if n := r.dev.TotalWrites(); n != 1 {
		t.Errorf("physical writes: got %d, want 1", n)
	}

	// Same value again costs nothing.
	r.board.StorePower(true)
	if err := r.board.NV.Flush(ctx); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if n := r.dev.TotalWrites(); n != 1 {
		t.Errorf("physical writes after repeat: got %d, want 1", n)
	}
}

func TestInputPolarityFromRecord(t *testing.T) {
	r := newRig(t, testConfig(), config.DefaultImage())

	// Pulled-up idle lines read as released.
	for i := 0; i < 4; i++ {
		r.board.Tick.Handle()
	}
	if r.board.Tick.Button() || r.board.Tick.Off() {
		t.Fatal("idle-high lines must read as released")
	}

	r.reader.Set(false, true)
	for i := 0; i < 2; i++ {
		r.board.Tick.Handle()
	}
	if !r.board.Tick.Button() {
		t.Error("button pulled low should read pressed")
	}
	if !r.board.ButtonHeldAtBoot() {
		t.Error("ButtonHeldAtBoot should see the low line")
	}
}

func TestLEDPolarityAndSpeed(t *testing.T) {
	rec := config.Defaults()
	rec.FlashSpeed = 0
	r := newRig(t, NewConfig(rec, time.Millisecond, time.Millisecond), config.DefaultImage())

	r.board.LEDs.SetMode(led.Green, led.On)
	r.board.LEDs.SetMode(led.Red, led.Flash)
	r.board.LEDs.Handle()
	r.board.LEDs.Handle()

	if got := r.duty.Duty(led.Green); got != 0 {
		t.Errorf("lit active-low green: got %d, want 0", got)
	}
	// Divisor 1: the waveform moved one step per period.
	if got := r.duty.Duty(led.Red); got != led.Max-1 {
		t.Errorf("red after one step: got %d, want %d", got, led.Max-1)
	}

	s := r.board.Snapshot()
	if s.LEDs[led.Green] != led.On || s.LEDs[led.Red] != led.Flash {
		t.Errorf("snapshot modes: got %v", s.LEDs)
	}
}

func TestSelfTestCancelled(t *testing.T) {
	r := newRig(t, testConfig(), config.DefaultImage())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := r.board.SelfTest(ctx, time.Millisecond, 1); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestRunTogglesAndPersists(t *testing.T) {
	r := newRig(t, testConfig(), config.DefaultImage())
	relayOut := &gpio.FakeOutput{}
	relay := gpio.NewRelay(relayOut, false)
	ctrl := logic.NewController(r.board.Hardware(relay, nil), logic.Options{
		Timing: logic.Timing{ButtonPress: 3, ButtonCancel: 1 << 30},
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.board.Run(ctx, ctrl) }()

	waitFor := func(what string, cond func() bool) {
		t.Helper()
		deadline := time.Now().Add(3 * time.Second)
		for !cond() {
			if time.Now().After(deadline) {
				cancel()
				t.Fatalf("timed out waiting for %s", what)
			}
			time.Sleep(time.Millisecond)
		}
	}

	r.reader.Set(false, true)
	waitFor("press", func() bool { return r.board.Tick.Button() })
	start := r.board.Tick.Ticks()
	waitFor("hold", func() bool { return r.board.Tick.Ticks()-start > 20 })
	r.reader.Set(true, true)

	waitFor("relay on", relay.Power)
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run: %v", err)
	}

	if got := r.dev.Bytes()[config.StateOffset]; got != 1 {
		t.Errorf("persisted state: got %d, want 1", got)
	}
	if high, ok := relayOut.Last(); !ok || !high {
		t.Error("relay line not driven high")
	}
}
