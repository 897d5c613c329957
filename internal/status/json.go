package status

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/sweeney/onoff/internal/led"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Event         string         `json:"event,omitempty"`
	Reason        string         `json:"reason,omitempty"`
	Power         string         `json:"power"`
	Button        string         `json:"button"`
	OffSignal     bool           `json:"off_signal"`
	LEDs          LEDsJSON       `json:"leds"`
	Ticks         uint32         `json:"ticks"`
	NVPending     bool           `json:"nv_pending"`
	LastEvent     *LastEventJSON `json:"last_event,omitempty"`
	UptimeSeconds int64          `json:"uptime_seconds"`
	StartTime     string         `json:"start_time"`
	Timestamp     string         `json:"timestamp"`
	MQTT          MQTTStatus     `json:"mqtt"`
	Counts        CountsJSON     `json:"event_counts"`
	Config        ConfigJSON     `json:"config"`
}

// LEDsJSON shows each channel's mode.
type LEDsJSON struct {
	Red   string `json:"red"`
	Green string `json:"green"`
	Blue  string `json:"blue"`
}

// LastEventJSON is the most recent controller event.
type LastEventJSON struct {
	Type   string `json:"type"`
	Reason string `json:"reason"`
	Tick   uint32 `json:"tick"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
}

// CountsJSON is the JSON representation of event counts.
type CountsJSON struct {
	PowerOn   int `json:"power_on"`
	PowerOff  int `json:"power_off"`
	Cancelled int `json:"cancelled"`
	OffSignal int `json:"off_signal"`
}

// ConfigJSON is the JSON representation of daemon config.
type ConfigJSON struct {
	TickUs       int64  `json:"tick_us"`
	PWMUs        int64  `json:"pwm_us"`
	HeartbeatMs  int64  `json:"heartbeat_ms"`
	Broker       string `json:"broker"`
	HTTPPort     string `json:"http_port"`
	Polarity     string `json:"polarity"`
	FlashDivisor uint8  `json:"flash_divisor"`
	MinDelay     uint32 `json:"min_delay_ticks"`
	MinOffDelay  uint32 `json:"min_off_delay_ticks"`
	ButtonPress  uint32 `json:"button_press_ticks"`
	ButtonCancel uint32 `json:"button_cancel_ticks"`
}

func onOff(on bool) string {
	if on {
		return "ON"
	}
	return "OFF"
}

func buildInner(snap Snapshot) StatusInner {
	button := "RELEASED"
	if snap.Board.Button {
		button = "PRESSED"
	}

	inner := StatusInner{
		Power:     onOff(snap.Power),
		Button:    button,
		OffSignal: snap.Board.Off,
		LEDs: LEDsJSON{
			Red:   snap.Board.LEDs[led.Red].String(),
			Green: snap.Board.LEDs[led.Green].String(),
			Blue:  snap.Board.LEDs[led.Blue].String(),
		},
		Ticks:         snap.Board.Ticks,
		NVPending:     snap.Board.NVPending,
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		MQTT:          MQTTStatus{Connected: snap.MQTTConnected, Broker: snap.Config.Broker},
		Counts: CountsJSON{
			PowerOn:   snap.Counts.PowerOn,
			PowerOff:  snap.Counts.PowerOff,
			Cancelled: snap.Counts.Cancelled,
			OffSignal: snap.Counts.OffSignal,
		},
		Config: ConfigJSON{
			TickUs:       snap.Config.TickUs,
			PWMUs:        snap.Config.PWMUs,
			HeartbeatMs:  snap.Config.HeartbeatMs,
			Broker:       snap.Config.Broker,
			HTTPPort:     snap.Config.HTTPPort,
			Polarity:     fmt.Sprintf("0x%02x", snap.Config.Polarity),
			FlashDivisor: snap.Config.FlashDivisor,
			MinDelay:     snap.Config.Timing.MinDelay,
			MinOffDelay:  snap.Config.Timing.MinOffDelay,
			ButtonPress:  snap.Config.Timing.ButtonPress,
			ButtonCancel: snap.Config.Timing.ButtonCancel,
		},
	}
	if e := snap.LastEvent; e != nil {
		inner.LastEvent = &LastEventJSON{Type: string(e.Type), Reason: string(e.Reason), Tick: e.Tick}
	}
	return inner
}

// FormatJSON returns the JSON status for the web endpoint (no event/reason).
func FormatJSON(snap Snapshot) []byte {
	data, _ := json.MarshalIndent(StatusJSON{Status: buildInner(snap)}, "", "  ")
	return data
}

// FormatStatusEvent returns the JSON status for an MQTT system event.
func FormatStatusEvent(snap Snapshot, event, reason string) []byte {
	inner := buildInner(snap)
	inner.Event = event
	inner.Reason = reason

	data, _ := json.Marshal(StatusJSON{Status: inner})
	return data
}
