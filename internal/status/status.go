// Package status provides a thread-safe status tracker for the onoff daemon.
// It is written by the event loop and read by HTTP handlers and heartbeats.
package status

import (
	"sync"
	"time"

	"github.com/sweeney/onoff/internal/board"
	"github.com/sweeney/onoff/internal/logic"
)

// Config contains daemon configuration for display.
type Config struct {
	TickUs       int64
	PWMUs        int64
	HeartbeatMs  int64
	Broker       string
	HTTPPort     string
	Polarity     uint8
	FlashDivisor uint8
	Timing       logic.Timing
}

// Counts tallies controller events since start.
type Counts struct {
	PowerOn   int
	PowerOff  int
	Cancelled int
	OffSignal int
}

// Snapshot is a point-in-time view of daemon state.
// It is a value type, safe to use after the lock is released.
type Snapshot struct {
	Power         bool
	LastEvent     *logic.Event
	Counts        Counts
	Board         board.Snapshot
	StartTime     time.Time
	Now           time.Time
	MQTTConnected bool
	Config        Config
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Tracker holds mutable daemon state behind an RWMutex.
type Tracker struct {
	mu   sync.RWMutex
	snap Snapshot
}

// NewTracker creates a Tracker with the given start time and config.
func NewTracker(startTime time.Time, cfg Config) *Tracker {
	return &Tracker{
		snap: Snapshot{
			StartTime: startTime,
			Config:    cfg,
		},
	}
}

// Record applies a controller event.
func (t *Tracker) Record(e logic.Event) {
	t.mu.Lock()
	defer t.mu.Unlock()

	switch e.Type {
	case logic.EventPowerOn:
		t.snap.Counts.PowerOn++
	case logic.EventPowerOff:
		t.snap.Counts.PowerOff++
	case logic.EventPressCancelled:
		t.snap.Counts.Cancelled++
	}
	if e.Reason == logic.ReasonOffSignal {
		t.snap.Counts.OffSignal++
	}
	if e.Type != logic.EventPressCancelled {
		t.snap.Power = e.Power
	}
	last := e
	t.snap.LastEvent = &last
}

// UpdateBoard stores the latest hardware view.
func (t *Tracker) UpdateBoard(b board.Snapshot) {
	t.mu.Lock()
	t.snap.Board = b
	t.mu.Unlock()
}

// SetMQTTConnected sets the MQTT connection status.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	t.snap.MQTTConnected = connected
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the daemon state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	t.mu.RUnlock()
	s.Now = time.Now()
	return s
}
