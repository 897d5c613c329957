// Package mqtt announces controller events to an MQTT broker. It only
// publishes; nothing is subscribed and the controller never depends on it.
package mqtt

import (
	"encoding/json"
	"time"

	"github.com/sweeney/onoff/internal/logic"
)

// Topic is the MQTT topic for power events.
const Topic = "home/onoff/events"

// TopicSystem is the MQTT topic for system lifecycle events.
const TopicSystem = "home/onoff/system"

// Publisher sends announcements. A publish error is for logging only; the
// controller carries on without the broker.
type Publisher interface {
	Publish(event Event) error
	PublishSystem(event SystemEvent) error
	Close() error
}

// ConnectionStatus reports whether the MQTT connection is active.
type ConnectionStatus interface {
	IsConnected() bool
}

// Event is a controller event stamped with wall-clock time on its way out.
type Event struct {
	Timestamp time.Time
	logic.Event
}

// SystemEvent is a daemon lifecycle message: STARTUP, SHUTDOWN or
// HEARTBEAT. The daemon sends a status snapshot as RawPayload; the broker
// will carries only the short form.
type SystemEvent struct {
	Timestamp  time.Time
	Event      string
	Reason     string
	RawPayload []byte
	Retained   bool
}

// Payload represents the MQTT message payload structure.
type Payload struct {
	OnOff OnOffPayload `json:"onoff"`
}

// OnOffPayload contains the event details.
type OnOffPayload struct {
	Timestamp string `json:"timestamp"`
	Event     string `json:"event"`
	Reason    string `json:"reason"`
	Power     string `json:"power"`
	Tick      uint32 `json:"tick"`
}

// PowerString renders a power state the way payloads and the status page
// show it.
func PowerString(on bool) string {
	if on {
		return "ON"
	}
	return "OFF"
}

// FormatPayload creates the JSON payload for a power event.
func FormatPayload(event Event) ([]byte, error) {
	payload := Payload{
		OnOff: OnOffPayload{
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
			Event:     string(event.Type),
			Reason:    string(event.Reason),
			Power:     PowerString(event.Power),
			Tick:      event.Tick,
		},
	}
	return json.Marshal(payload)
}

// SystemPayload is the short form of a system event, used for the will.
type SystemPayload struct {
	System SystemPayloadInner `json:"system"`
}

// SystemPayloadInner contains the system event details.
type SystemPayloadInner struct {
	Timestamp string `json:"timestamp"`
	Event     string `json:"event"`
	Reason    string `json:"reason,omitempty"`
}

// FormatSystemPayload returns RawPayload when set, otherwise the short form.
func FormatSystemPayload(event SystemEvent) ([]byte, error) {
	if event.RawPayload != nil {
		return event.RawPayload, nil
	}
	payload := SystemPayload{
		System: SystemPayloadInner{
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
			Event:     event.Event,
			Reason:    event.Reason,
		},
	}
	return json.Marshal(payload)
}
