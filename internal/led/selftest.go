package led

import (
	"context"
	"time"
)

// ramp is one leg of the self-test colour wheel: the listed channels ramp
// up (1..255) or down (254..0) together.
type ramp struct {
	channels []Channel
	up       bool
}

// wheel walks black, red, yellow, green, cyan, blue, magenta, white and back
// to black.
var wheel = []ramp{
	{[]Channel{Red}, true},
	{[]Channel{Green}, true},
	{[]Channel{Red}, false},
	{[]Channel{Blue}, true},
	{[]Channel{Green}, false},
	{[]Channel{Red}, true},
	{[]Channel{Green}, true},
	{[]Channel{Red, Green, Blue}, false},
}

// SelfTest runs the power-on LED test directly against the outputs. It must
// run before the PWM engine is started, since both write the same outputs.
func SelfTest(ctx context.Context, w DutyWriter, step time.Duration, cycles int) error {
	for ch := Channel(0); ch < NumChannels; ch++ {
		w.SetDuty(ch, 0)
	}
	if step <= 0 {
		step = time.Millisecond
	}
	tk := time.NewTicker(step)
	defer tk.Stop()

	for n := 0; n < cycles; n++ {
		for _, r := range wheel {
			for i := 1; i <= Max; i++ {
				v := uint8(i)
				if !r.up {
					v = uint8(Max - i)
				}
				for _, ch := range r.channels {
					w.SetDuty(ch, v)
				}
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-tk.C:
				}
			}
		}
	}
	return nil
}
