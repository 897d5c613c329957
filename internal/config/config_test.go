package config

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultsMatchShippedImage(t *testing.T) {
	d := Defaults()
	if d.Polarity != 0x3b {
		t.Errorf("polarity: got %#x, want 0x3b", d.Polarity)
	}
	b, err := d.MarshalBinary()
	if err != nil {
		t.Fatalf("MarshalBinary: %v", err)
	}
	want := []byte{0x3b, 7, 2, 32, 4, 48}
	if !bytes.Equal(b, want) {
		t.Errorf("encoding: got %v, want %v", b, want)
	}

	img := DefaultImage()
	if len(img) != ImageSize {
		t.Fatalf("image size: got %d, want %d", len(img), ImageSize)
	}
	if !bytes.Equal(img[:RecordSize], want) {
		t.Errorf("image record: got %v", img[:RecordSize])
	}
	if img[StateOffset] != 0 {
		t.Errorf("image state: got %d, want 0", img[StateOffset])
	}
}

func TestTimingDefaults(t *testing.T) {
	tm := Defaults().Timing()
	want := Timing{MinDelay: 512, MinOffDelay: 8192, ButtonPress: 1024, ButtonCancel: 12288}
	if tm != want {
		t.Errorf("timing: got %+v, want %+v", tm, want)
	}
	if d := Defaults().FlashDivisor(); d != 8 {
		t.Errorf("flash divisor: got %d, want 8", d)
	}
}

func TestPolarityBits(t *testing.T) {
	p := Defaults().Polarity
	tests := []struct {
		name string
		bit  Polarity
		low  bool
	}{
		{"blue", PolBlue, true},
		{"green", PolGreen, true},
		{"relay", PolRelay, false},
		{"button", PolButton, true},
		{"red", PolRed, true},
		{"off", PolOff, true},
	}
	for _, tt := range tests {
		if got := p.ActiveLow(tt.bit); got != tt.low {
			t.Errorf("%s: active low %v, want %v", tt.name, got, tt.low)
		}
	}
}

func TestFlashDivisorRange(t *testing.T) {
	tests := []struct {
		stored uint8
		want   uint8
	}{
		{0, 1},
		{7, 8},
		{0xfe, 0xff},
		// 256 does not fit the 8-bit waveform counter.
		{0xff, 0xff},
	}
	for _, tt := range tests {
		r := Defaults()
		r.FlashSpeed = tt.stored
		if got := r.FlashDivisor(); got != tt.want {
			t.Errorf("stored %d: got %d, want %d", tt.stored, got, tt.want)
		}
	}
}

func TestUnmarshalShort(t *testing.T) {
	var r Record
	if err := r.UnmarshalBinary([]byte{1, 2}); !errors.Is(err, ErrShortRecord) {
		t.Errorf("expected ErrShortRecord, got %v", err)
	}
}

func TestLoadErasedUsesDefaults(t *testing.T) {
	img := bytes.Repeat([]byte{0xff}, ImageSize)
	rec, st, err := Load(bytes.NewReader(img))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if rec != Defaults() {
		t.Errorf("record: got %+v, want defaults", rec)
	}
	if st.PowerOn {
		t.Error("erased state must read as off")
	}
}

func TestLoadStoredRecord(t *testing.T) {
	img := []byte{0x04, 0, 1, 2, 3, 5, 1, 0xff}
	rec, st, err := Load(bytes.NewReader(img))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	want := Record{Polarity: PolRelay, FlashSpeed: 0, MinDelay: 1, MinOffDelay: 2, ButtonPress: 3, ButtonCancel: 5}
	if rec != want {
		t.Errorf("record: got %+v, want %+v", rec, want)
	}
	if !st.PowerOn {
		t.Error("state: expected power on")
	}
	if rec.FlashDivisor() != 1 {
		t.Errorf("flash divisor: got %d, want 1", rec.FlashDivisor())
	}
}

func TestLoadShortImage(t *testing.T) {
	if _, _, err := Load(bytes.NewReader([]byte{1, 2, 3})); err == nil {
		t.Error("expected error for short image")
	}
}

func TestLoadDaemonMissingFile(t *testing.T) {
	cfg, err := LoadDaemon(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("LoadDaemon: %v", err)
	}
	if cfg.TickPeriod != 256*time.Microsecond {
		t.Errorf("tick period: got %v", cfg.TickPeriod)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

func TestLoadDaemonOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "onoff.yaml")
	data := []byte(`
chip: gpiochip4
lines:
  button: 5
  off: 6
  relay: 7
tick_period: 1ms
heartbeat: 0s
mqtt:
  broker: tcp://broker:1883
`)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadDaemon(path)
	if err != nil {
		t.Fatalf("LoadDaemon: %v", err)
	}
	if cfg.Chip != "gpiochip4" {
		t.Errorf("chip: got %q", cfg.Chip)
	}
	if cfg.Lines != (Lines{Button: 5, Off: 6, Relay: 7}) {
		t.Errorf("lines: got %+v", cfg.Lines)
	}
	if cfg.TickPeriod != time.Millisecond {
		t.Errorf("tick period: got %v", cfg.TickPeriod)
	}
	if cfg.Heartbeat != 0 {
		t.Errorf("heartbeat: got %v", cfg.Heartbeat)
	}
	if cfg.MQTT.Broker != "tcp://broker:1883" {
		t.Errorf("broker: got %q", cfg.MQTT.Broker)
	}
	// Untouched fields keep their defaults.
	if cfg.PWMPeriod != 510*time.Microsecond {
		t.Errorf("pwm period: got %v", cfg.PWMPeriod)
	}
	if cfg.MQTT.ClientID != "onoff" {
		t.Errorf("client id: got %q", cfg.MQTT.ClientID)
	}
}

func TestLoadDaemonUnknownField(t *testing.T) {
	path := filepath.Join(t.TempDir(), "onoff.yaml")
	if err := os.WriteFile(path, []byte("bogus: 1\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadDaemon(path); err == nil {
		t.Error("expected error for unknown field")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Daemon)
	}{
		{"zero tick", func(d *Daemon) { d.TickPeriod = 0 }},
		{"zero pwm", func(d *Daemon) { d.PWMPeriod = 0 }},
		{"negative line", func(d *Daemon) { d.Lines.Relay = -1 }},
		{"shared line", func(d *Daemon) { d.Lines.Off = d.Lines.Button }},
		{"zero freq", func(d *Daemon) { d.LEDs.FreqHz = 0 }},
		{"no eeprom", func(d *Daemon) { d.EEPROM.Path = "" }},
		{"negative heartbeat", func(d *Daemon) { d.Heartbeat = -time.Second }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := NewDaemon()
			tt.modify(d)
			if err := d.Validate(); !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("expected ErrInvalidConfig, got %v", err)
			}
		})
	}
}
