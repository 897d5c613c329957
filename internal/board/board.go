// Package board wires the control core to its interrupt sources: the tick
// timer, the PWM period timer and the non-volatile ready notification.
// Everything shared between those handlers and the control loop is owned
// here.
package board

import (
	"context"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/sweeney/onoff/internal/config"
	"github.com/sweeney/onoff/internal/eeprom"
	"github.com/sweeney/onoff/internal/led"
	"github.com/sweeney/onoff/internal/logic"
	"github.com/sweeney/onoff/internal/mcu"
	"github.com/sweeney/onoff/internal/tick"
)

// FlushTimeout bounds how long Run waits for a pending state write after
// it is asked to stop.
const FlushTimeout = 2 * time.Second

// Config holds the timing and polarity the board is built with.
type Config struct {
	TickPeriod time.Duration
	PWMPeriod  time.Duration

	Polarity     config.Polarity
	FlashDivisor uint8

	ButtonDeglitch uint16
	OffDeglitch    uint16
}

// NewConfig derives a board config from the persisted record.
func NewConfig(rec config.Record, tickPeriod, pwmPeriod time.Duration) Config {
	return Config{
		TickPeriod:     tickPeriod,
		PWMPeriod:      pwmPeriod,
		Polarity:       rec.Polarity,
		FlashDivisor:   rec.FlashDivisor(),
		ButtonDeglitch: tick.DefaultDeglitch,
		OffDeglitch:    tick.DefaultDeglitch,
	}
}

// Board is one controller's worth of hardware state.
type Board struct {
	CPU  *mcu.CPU
	Tick *tick.Engine
	LEDs *led.Engine
	NV   *eeprom.Writer

	cfg       Config
	sampler   tick.Sampler
	out       led.DutyWriter
	tickTimer *mcu.Timer
	pwmTimer  *mcu.Timer
}

// New builds a board. The state record is read back from dev so that the
// writer starts with an accurate programmed copy.
func New(cfg Config, sampler tick.Sampler, out led.DutyWriter, dev eeprom.Device) (*Board, error) {
	cur := make([]byte, config.StateSize)
	if _, err := dev.ReadAt(cur, config.StateOffset); err != nil {
		return nil, fmt.Errorf("board: read state record: %w", err)
	}

	cpu := mcu.NewCPU()
	b := &Board{
		CPU: cpu,
		Tick: tick.New(cpu, sampler, tick.Config{
			ButtonActiveLow: cfg.Polarity.ActiveLow(config.PolButton),
			OffActiveLow:    cfg.Polarity.ActiveLow(config.PolOff),
			ButtonDeglitch:  cfg.ButtonDeglitch,
			OffDeglitch:     cfg.OffDeglitch,
		}),
		LEDs:    led.New(out),
		NV:      eeprom.NewWriter(dev, cpu, config.StateOffset, cur),
		cfg:     cfg,
		sampler: sampler,
		out:     out,
	}
	b.LEDs.SetFlashSpeed(cfg.FlashDivisor)

	var err error
	if b.tickTimer, err = mcu.NewTimer(cpu, cfg.TickPeriod, b.Tick.Handle); err != nil {
		return nil, fmt.Errorf("board: tick timer: %w", err)
	}
	if b.pwmTimer, err = mcu.NewTimer(cpu, cfg.PWMPeriod, b.LEDs.Handle); err != nil {
		return nil, fmt.Errorf("board: pwm timer: %w", err)
	}
	return b, nil
}

// Hardware returns the controller ports backed by this board.
func (b *Board) Hardware(relay logic.Relay, n logic.Notifier) logic.Hardware {
	return logic.Hardware{
		Clock:     b.Tick,
		Inputs:    b.Tick,
		LEDs:      b.LEDs,
		Relay:     relay,
		Persister: b,
		Notifier:  n,
	}
}

// StorePower records the power status and schedules the write.
func (b *Board) StorePower(on bool) {
	st, _ := config.State{PowerOn: on}.MarshalBinary()
	for i, v := range st {
		b.NV.Set(i, v)
	}
	b.NV.RequestWrite()
}

// ButtonHeldAtBoot samples the raw button level once. The tick engine is
// not running yet, so there is no debounced value to ask.
func (b *Board) ButtonHeldAtBoot() bool {
	level, _ := b.sampler.Levels()
	return level != b.cfg.Polarity.ActiveLow(config.PolButton)
}

// SelfTest runs the LED colour wheel. Call it before Run.
func (b *Board) SelfTest(ctx context.Context, step time.Duration, cycles int) error {
	return led.SelfTest(ctx, b.out, step, cycles)
}

// Run starts the interrupt sources and runs ctrl until ctx is done, then
// lets a pending state write finish.
func (b *Board) Run(ctx context.Context, ctrl *logic.Controller) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { b.tickTimer.Run(gctx); return nil })
	g.Go(func() error { b.pwmTimer.Run(gctx); return nil })
	g.Go(func() error { b.NV.Run(gctx); return nil })
	g.Go(func() error { return ctrl.Run(gctx, b.CPU) })

	err := g.Wait()
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		err = nil
	}

	fctx, cancel := context.WithTimeout(context.Background(), FlushTimeout)
	defer cancel()
	if ferr := b.NV.Flush(fctx); ferr != nil {
		log.WithError(ferr).Warn("board: state write still pending at shutdown")
	}
	return err
}

// Snapshot is a race-free view of the shared state.
type Snapshot struct {
	Ticks     uint32
	Button    bool
	Off       bool
	LEDs      [led.NumChannels]led.Mode
	NVPending bool
}

// Snapshot reads the shared state the way the control loop would.
func (b *Board) Snapshot() Snapshot {
	s := Snapshot{
		Ticks:     b.Tick.Ticks(),
		Button:    b.Tick.Button(),
		Off:       b.Tick.Off(),
		NVPending: b.NV.Pending(),
	}
	for ch := led.Channel(0); ch < led.NumChannels; ch++ {
		s.LEDs[ch] = b.LEDs.Mode(ch)
	}
	return s
}
