package eeprom

import (
	"fmt"
	"sync"
)

// Mem is an in-memory device. Programming completes immediately and every
// physical write is counted per address.
type Mem struct {
	mu     sync.Mutex
	data   []byte
	writes map[int]int
	ready  chan struct{}
}

// NewMem returns a device holding a copy of image.
func NewMem(image []byte) *Mem {
	return &Mem{
		data:   append([]byte(nil), image...),
		writes: map[int]int{},
		ready:  make(chan struct{}, 1),
	}
}

// Size returns the device size in bytes.
func (m *Mem) Size() int { return len(m.data) }

// ReadAt implements io.ReaderAt.
func (m *Mem) ReadAt(p []byte, off int64) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if off < 0 || off+int64(len(p)) > int64(len(m.data)) {
		return 0, fmt.Errorf("eeprom: read %d bytes at %d: out of range", len(p), off)
	}
	return copy(p, m.data[off:]), nil
}

// Program writes one byte.
func (m *Mem) Program(addr int, v byte) {
	m.mu.Lock()
	m.data[addr] = v
	m.writes[addr]++
	m.mu.Unlock()

	select {
	case m.ready <- struct{}{}:
	default:
	}
}

// Busy is always false: writes complete synchronously.
func (m *Mem) Busy() bool { return false }

// Ready is signalled after each write.
func (m *Mem) Ready() <-chan struct{} { return m.ready }

// Writes returns the number of physical writes to addr.
func (m *Mem) Writes(addr int) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writes[addr]
}

// TotalWrites returns the number of physical writes to any address.
func (m *Mem) TotalWrites() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.writes {
		n += c
	}
	return n
}

// Bytes returns a copy of the device contents.
func (m *Mem) Bytes() []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]byte(nil), m.data...)
}
