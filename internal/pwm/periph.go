package pwm

import (
	"fmt"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/host/v3"

	"github.com/sweeney/onoff/internal/led"
)

// PeriphPin drives a hardware PWM pin through periph.
type PeriphPin struct {
	pin  gpio.PinIO
	freq physic.Frequency
}

// Set scales duty onto the driver's range.
func (p *PeriphPin) Set(duty uint8) error {
	d := gpio.Duty(int64(duty) * int64(gpio.DutyMax) / led.Max)
	return p.pin.PWM(d, p.freq)
}

// Close stops the PWM output.
func (p *PeriphPin) Close() error {
	return p.pin.Halt()
}

// OpenPeriph initialises the host drivers and looks up one pin per channel
// by name, e.g. "GPIO12". Channels left blank are skipped.
func OpenPeriph(names [led.NumChannels]string, freqHz int) ([led.NumChannels]*PeriphPin, error) {
	var pins [led.NumChannels]*PeriphPin
	if _, err := host.Init(); err != nil {
		return pins, fmt.Errorf("init host drivers: %w", err)
	}
	freq := physic.Frequency(freqHz) * physic.Hertz
	for ch, name := range names {
		if name == "" {
			continue
		}
		p := gpioreg.ByName(name)
		if p == nil {
			return pins, fmt.Errorf("pwm: no pin named %q for %s", name, led.Channel(ch))
		}
		pins[ch] = &PeriphPin{pin: p, freq: freq}
	}
	return pins, nil
}

// AsPins converts opened periph pins for NewOutput.
func AsPins(pp [led.NumChannels]*PeriphPin) [led.NumChannels]Pin {
	var pins [led.NumChannels]Pin
	for ch, p := range pp {
		if p != nil {
			pins[ch] = p
		}
	}
	return pins
}
