package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"gopkg.in/yaml.v2"
)

// ErrInvalidConfig wraps every validation failure.
var ErrInvalidConfig = errors.New("invalid config")

// Daemon holds the settings of the hosted controller. Everything that the
// firmware keeps in its non-volatile record stays there; this file only maps
// the logical signals onto the host's peripherals.
type Daemon struct {
	Chip  string `yaml:"chip"`
	Lines Lines  `yaml:"lines"`
	LEDs  LEDs   `yaml:"leds"`

	TickPeriod time.Duration `yaml:"tick_period"`
	PWMPeriod  time.Duration `yaml:"pwm_period"`
	Deglitch   Deglitch      `yaml:"deglitch"`

	EEPROM EEPROM `yaml:"eeprom"`

	PowerFailAttention bool `yaml:"power_fail_attention"`

	MQTT      MQTT          `yaml:"mqtt"`
	HTTP      string        `yaml:"http"`
	Heartbeat time.Duration `yaml:"heartbeat"`
}

// Lines are GPIO character device line offsets.
type Lines struct {
	Button int `yaml:"button"`
	Off    int `yaml:"off"`
	Relay  int `yaml:"relay"`
}

// LEDs are PWM-capable pin names as known to the host driver registry.
type LEDs struct {
	Red    string `yaml:"red"`
	Green  string `yaml:"green"`
	Blue   string `yaml:"blue"`
	FreqHz int    `yaml:"freq_hz"`
}

// Deglitch thresholds in ticks.
type Deglitch struct {
	Button uint16 `yaml:"button"`
	Off    uint16 `yaml:"off"`
}

// EEPROM locates the image file that stands in for the non-volatile store.
type EEPROM struct {
	Path      string        `yaml:"path"`
	WriteTime time.Duration `yaml:"write_time"`
}

// MQTT configures the optional event announcements. No broker disables them.
type MQTT struct {
	Broker   string `yaml:"broker"`
	ClientID string `yaml:"client_id"`
}

// NewDaemon returns the defaults for the reference wiring.
func NewDaemon() *Daemon {
	return &Daemon{
		Chip: "gpiochip0",
		Lines: Lines{
			Button: 27,
			Off:    17,
			Relay:  22,
		},
		LEDs: LEDs{
			Red:    "GPIO12",
			Green:  "GPIO13",
			Blue:   "GPIO18",
			FreqHz: 2000,
		},
		TickPeriod: 256 * time.Microsecond,
		PWMPeriod:  510 * time.Microsecond,
		Deglitch:   Deglitch{Button: 256, Off: 256},
		EEPROM: EEPROM{
			Path:      "/var/lib/onoff/eeprom.bin",
			WriteTime: 3400 * time.Microsecond,
		},
		PowerFailAttention: true,
		MQTT:               MQTT{ClientID: "onoff"},
		HTTP:               ":8080",
		Heartbeat:          15 * time.Minute,
	}
}

// LoadDaemon reads path over the defaults. A missing file is not an error.
func LoadDaemon(path string) (*Daemon, error) {
	cfg := NewDaemon()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.UnmarshalStrict(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks the settings that would otherwise fail deep inside the
// hardware setup.
func (d *Daemon) Validate() error {
	if d.TickPeriod <= 0 {
		return fmt.Errorf("%w: tick_period must be positive", ErrInvalidConfig)
	}
	if d.PWMPeriod <= 0 {
		return fmt.Errorf("%w: pwm_period must be positive", ErrInvalidConfig)
	}
	if d.Lines.Button < 0 || d.Lines.Off < 0 || d.Lines.Relay < 0 {
		return fmt.Errorf("%w: line offsets must not be negative", ErrInvalidConfig)
	}
	if d.Lines.Button == d.Lines.Off || d.Lines.Button == d.Lines.Relay || d.Lines.Off == d.Lines.Relay {
		return fmt.Errorf("%w: button, off and relay lines must differ", ErrInvalidConfig)
	}
	if d.LEDs.FreqHz <= 0 {
		return fmt.Errorf("%w: leds.freq_hz must be positive", ErrInvalidConfig)
	}
	if d.EEPROM.Path == "" {
		return fmt.Errorf("%w: eeprom.path is required", ErrInvalidConfig)
	}
	if d.Heartbeat < 0 {
		return fmt.Errorf("%w: heartbeat must not be negative", ErrInvalidConfig)
	}
	return nil
}
