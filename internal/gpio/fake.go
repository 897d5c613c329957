package gpio

import (
	"sync"
)

// FakeReader is a test double returning scripted levels. It is safe to use
// from the tick interrupt and the test goroutine at once.
type FakeReader struct {
	mu sync.Mutex

	// Samples contains scripted levels. Each call to Levels consumes the
	// next sample; the last one repeats.
	Samples []Sample
	index   int

	// Calls counts Levels calls.
	Calls int

	// Closed tracks if Close was called
	Closed bool
}

// Sample is one pair of raw levels.
type Sample struct {
	Button bool
	Off    bool
}

// NewFakeReader creates a FakeReader with the given samples. With no samples
// both lines read high, the idle level of pulled-up inputs.
func NewFakeReader(samples ...Sample) *FakeReader {
	if len(samples) == 0 {
		samples = []Sample{{Button: true, Off: true}}
	}
	return &FakeReader{Samples: samples}
}

// Levels returns the next scripted sample.
func (f *FakeReader) Levels() (button, off bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls++
	s := f.Samples[f.index]
	if f.index < len(f.Samples)-1 {
		f.index++
	}
	return s.Button, s.Off
}

// Set replaces the script with a single constant sample.
func (f *FakeReader) Set(button, off bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Samples = []Sample{{Button: button, Off: off}}
	f.index = 0
}

// Close marks the reader as closed.
func (f *FakeReader) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Closed = true
	return nil
}

// FakeOutput records every level written.
type FakeOutput struct {
	mu     sync.Mutex
	Values []bool
	Err    error
	Closed bool
}

// SetValue records high, or returns Err if set.
func (f *FakeOutput) SetValue(high bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return f.Err
	}
	f.Values = append(f.Values, high)
	return nil
}

// Last returns the most recent level and whether any was written.
func (f *FakeOutput) Last() (high, ok bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.Values) == 0 {
		return false, false
	}
	return f.Values[len(f.Values)-1], true
}

// Close marks the output as closed.
func (f *FakeOutput) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Closed = true
	return nil
}
