// Command onoff runs the power-button and relay controller: it debounces the
// button and the host's off signal, drives the status LEDs and the relay, and
// remembers the power state across a power failure.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/sweeney/onoff/internal/board"
	"github.com/sweeney/onoff/internal/config"
	"github.com/sweeney/onoff/internal/eeprom"
	"github.com/sweeney/onoff/internal/gpio"
	"github.com/sweeney/onoff/internal/led"
	"github.com/sweeney/onoff/internal/logic"
	"github.com/sweeney/onoff/internal/mqtt"
	"github.com/sweeney/onoff/internal/pwm"
	"github.com/sweeney/onoff/internal/status"
	"github.com/sweeney/onoff/internal/web"
)

// selfTestStep is the duration of one colour step of the LED test.
const selfTestStep = 2 * time.Millisecond

// statusRefresh is how often the status page's hardware view is updated.
const statusRefresh = time.Second

func main() {
	configPath := flag.String("config", "/etc/onoff/onoff.yaml", "Daemon config file")
	broker := flag.String("broker", "", "MQTT broker address (overrides config, empty disables)")
	httpAddr := flag.String("http", "", "HTTP status address (overrides config, empty disables)")
	heartbeat := flag.Duration("heartbeat", 0, "Heartbeat interval (overrides config, 0 to disable)")
	printState := flag.Bool("print-state", false, "Print input levels and persisted state, then exit")
	selfTest := flag.Bool("self-test", false, "Run the LED test at start even if the button is not held")
	logLevel := flag.String("log-level", "info", "Log level")

	flag.Parse()

	level, err := log.ParseLevel(*logLevel)
	if err != nil {
		log.Fatalf("fatal: %v", err)
	}
	log.SetLevel(level)

	cfg, err := config.LoadDaemon(*configPath)
	if err != nil {
		log.Fatalf("fatal: %v", err)
	}
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "broker":
			cfg.MQTT.Broker = *broker
		case "http":
			cfg.HTTP = *httpAddr
		case "heartbeat":
			cfg.Heartbeat = *heartbeat
		}
	})
	if err := cfg.Validate(); err != nil {
		log.Fatalf("fatal: %v", err)
	}

	if err := run(cfg, *printState, *selfTest); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}

func run(cfg *config.Daemon, printState, forceSelfTest bool) error {
	dev, err := eeprom.OpenFile(cfg.EEPROM.Path, config.ImageSize, config.DefaultImage(), cfg.EEPROM.WriteTime)
	if err != nil {
		return fmt.Errorf("init eeprom: %w", err)
	}
	defer dev.Close()

	rec, st, err := config.Load(dev)
	if err != nil {
		return fmt.Errorf("load config record: %w", err)
	}

	reader, err := gpio.NewRealReader(cfg.Chip, cfg.Lines.Button, cfg.Lines.Off)
	if err != nil {
		return fmt.Errorf("init gpio: %w", err)
	}
	defer reader.Close()

	if printState {
		button, off := reader.Levels()
		fmt.Printf("button: %s, off: %s, persisted power: %s\n",
			levelString(button, rec.Polarity.ActiveLow(config.PolButton)),
			levelString(off, rec.Polarity.ActiveLow(config.PolOff)),
			mqtt.PowerString(st.PowerOn))
		return nil
	}

	relayLow := rec.Polarity.ActiveLow(config.PolRelay)
	relayOut, err := gpio.NewRealOutput(cfg.Chip, cfg.Lines.Relay, relayLow)
	if err != nil {
		return fmt.Errorf("init relay: %w", err)
	}
	defer relayOut.Close()
	relay := gpio.NewRelay(relayOut, relayLow)

	pins, err := pwm.OpenPeriph([led.NumChannels]string{cfg.LEDs.Red, cfg.LEDs.Green, cfg.LEDs.Blue}, cfg.LEDs.FreqHz)
	if err != nil {
		return fmt.Errorf("init leds: %w", err)
	}
	defer func() {
		for _, p := range pins {
			if p != nil {
				p.Close()
			}
		}
	}()
	out := pwm.NewOutput(pwm.AsPins(pins), [led.NumChannels]bool{
		led.Red:   rec.Polarity.ActiveLow(config.PolRed),
		led.Green: rec.Polarity.ActiveLow(config.PolGreen),
		led.Blue:  rec.Polarity.ActiveLow(config.PolBlue),
	})

	bcfg := board.NewConfig(rec, cfg.TickPeriod, cfg.PWMPeriod)
	bcfg.ButtonDeglitch = cfg.Deglitch.Button
	bcfg.OffDeglitch = cfg.Deglitch.Off
	b, err := board.New(bcfg, reader, out, dev)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if forceSelfTest || b.ButtonHeldAtBoot() {
		log.Info("running LED self test")
		if err := b.SelfTest(ctx, selfTestStep, 1); err != nil {
			return fmt.Errorf("self test: %w", err)
		}
	}

	var publisher mqtt.Publisher = nopPublisher{}
	var mqttStatus mqtt.ConnectionStatus
	if cfg.MQTT.Broker != "" {
		p, err := mqtt.NewRealPublisher(cfg.MQTT.Broker, cfg.MQTT.ClientID)
		if err != nil {
			return fmt.Errorf("init mqtt: %w", err)
		}
		defer p.Close()
		publisher, mqttStatus = p, p
	}

	timing := logic.Timing(rec.Timing())
	tracker := status.NewTracker(time.Now(), status.Config{
		TickUs:       cfg.TickPeriod.Microseconds(),
		PWMUs:        cfg.PWMPeriod.Microseconds(),
		HeartbeatMs:  cfg.Heartbeat.Milliseconds(),
		Broker:       cfg.MQTT.Broker,
		HTTPPort:     cfg.HTTP,
		Polarity:     uint8(rec.Polarity),
		FlashDivisor: rec.FlashDivisor(),
		Timing:       timing,
	})
	tracker.UpdateBoard(b.Snapshot())

	// Publish startup event with full status snapshot
	snap := tracker.Snapshot()
	startupEvent := mqtt.SystemEvent{
		Timestamp:  snap.Now,
		Event:      "STARTUP",
		Retained:   true,
		RawPayload: status.FormatStatusEvent(snap, "STARTUP", ""),
	}
	if err := publisher.PublishSystem(startupEvent); err != nil {
		log.WithError(err).Warn("failed to publish startup event")
	}

	if cfg.HTTP != "" {
		srv := web.New(cfg.HTTP, tracker)
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.WithError(err).Error("http server error")
			}
		}()
		defer srv.Shutdown(context.Background())
		log.WithField("addr", cfg.HTTP).Info("http status server listening")
	}

	queue := newEventQueue(64)
	ctrl := logic.NewController(b.Hardware(relay, queue), logic.Options{
		Timing:      timing,
		PowerFailed: st.PowerOn,
		Attention:   cfg.PowerFailAttention,
	})
	if st.PowerOn {
		log.Warn("power was on when the supply last failed")
	}

	done := make(chan error, 1)
	go func() { done <- b.Run(ctx, ctrl) }()

	log.WithFields(log.Fields{
		"tick":      cfg.TickPeriod,
		"pwm":       cfg.PWMPeriod,
		"polarity":  fmt.Sprintf("0x%02x", uint8(rec.Polarity)),
		"press":     timing.ButtonPress,
		"cancel":    timing.ButtonCancel,
		"broker":    cfg.MQTT.Broker,
		"heartbeat": cfg.Heartbeat,
	}).Info("started")

	refresh := time.NewTicker(statusRefresh)
	defer refresh.Stop()
	var hb <-chan time.Time
	if cfg.Heartbeat > 0 {
		t := time.NewTicker(cfg.Heartbeat)
		defer t.Stop()
		hb = t.C
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	loopErr := runLoop(loop{
		events:     queue.ch,
		publisher:  publisher,
		mqttStatus: mqttStatus,
		tracker:    tracker,
		snapshot:   b.Snapshot,
		now:        time.Now,
		refresh:    refresh.C,
		heartbeat:  hb,
		sig:        sigCh,
	})

	cancel()
	if err := <-done; err != nil {
		return err
	}
	if n := queue.dropped.Load(); n > 0 {
		log.WithField("dropped", n).Warn("events dropped while the loop was busy")
	}
	return loopErr
}

// loop holds runLoop's inputs. publisher must not be nil; mqttStatus may be.
type loop struct {
	events     <-chan logic.Event
	publisher  mqtt.Publisher
	mqttStatus mqtt.ConnectionStatus
	tracker    *status.Tracker
	snapshot   func() board.Snapshot
	now        func() time.Time
	refresh    <-chan time.Time
	heartbeat  <-chan time.Time
	sig        <-chan os.Signal
}

func (l loop) update() {
	l.tracker.UpdateBoard(l.snapshot())
	if l.mqttStatus != nil {
		l.tracker.SetMQTTConnected(l.mqttStatus.IsConnected())
	}
}

// runLoop reports controller events until a signal arrives.
func runLoop(l loop) error {
	for {
		select {
		case s := <-l.sig:
			name := signalName(s)
			log.WithField("signal", name).Info("shutting down")
			l.update()
			snap := l.tracker.Snapshot()
			event := mqtt.SystemEvent{
				Timestamp:  l.now(),
				Event:      "SHUTDOWN",
				Reason:     name,
				Retained:   true,
				RawPayload: status.FormatStatusEvent(snap, "SHUTDOWN", name),
			}
			if err := l.publisher.PublishSystem(event); err != nil {
				log.WithError(err).Warn("failed to publish shutdown event")
			}
			return nil

		case e := <-l.events:
			log.WithFields(log.Fields{
				"event":  e.Type,
				"reason": e.Reason,
				"power":  mqtt.PowerString(e.Power),
				"tick":   e.Tick,
			}).Info("event")
			l.tracker.Record(e)
			l.update()
			if err := l.publisher.Publish(mqtt.Event{Timestamp: l.now(), Event: e}); err != nil {
				// Don't crash on publish failure
				log.WithError(err).Warn("publish error")
			}

		case <-l.refresh:
			l.update()

		case <-l.heartbeat:
			l.update()
			snap := l.tracker.Snapshot()
			log.WithFields(log.Fields{
				"uptime":    snap.Uptime().Truncate(time.Second),
				"power":     mqtt.PowerString(snap.Power),
				"power_on":  snap.Counts.PowerOn,
				"power_off": snap.Counts.PowerOff,
			}).Info("heartbeat")
			hbEvent := mqtt.SystemEvent{
				Timestamp:  l.now(),
				Event:      "HEARTBEAT",
				RawPayload: status.FormatStatusEvent(snap, "HEARTBEAT", ""),
			}
			if err := l.publisher.PublishSystem(hbEvent); err != nil {
				log.WithError(err).Warn("heartbeat publish error")
			}
		}
	}
}

// eventQueue hands events from the control loop to runLoop without ever
// blocking the control loop.
type eventQueue struct {
	ch      chan logic.Event
	dropped atomic.Uint64
}

func newEventQueue(n int) *eventQueue {
	return &eventQueue{ch: make(chan logic.Event, n)}
}

func (q *eventQueue) Notify(e logic.Event) {
	select {
	case q.ch <- e:
	default:
		q.dropped.Add(1)
	}
}

// nopPublisher stands in when no broker is configured.
type nopPublisher struct{}

func (nopPublisher) Publish(mqtt.Event) error             { return nil }
func (nopPublisher) PublishSystem(mqtt.SystemEvent) error { return nil }
func (nopPublisher) Close() error                         { return nil }

func signalName(s os.Signal) string {
	switch s {
	case syscall.SIGINT:
		return "SIGINT"
	case syscall.SIGTERM:
		return "SIGTERM"
	}
	return "UNKNOWN"
}

// levelString names a raw input level given its polarity.
func levelString(high, activeLow bool) string {
	if high != activeLow {
		return "ASSERTED"
	}
	return "RELEASED"
}
