package eeprom

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"sync"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"
)

// Erased is the value of a never-programmed cell.
const Erased = 0xff

// DefaultWriteTime is the physical programming time of one byte.
const DefaultWriteTime = 3400 * time.Microsecond

// File is a device backed by an image file on disk.
type File struct {
	f         *os.File
	size      int
	writeTime time.Duration

	busy  atomic.Bool
	ready chan struct{}
	wg    sync.WaitGroup
}

// OpenFile opens the image at path. A missing file is created from image
// padded with erased cells, the way a programmer would load the EEPROM
// section shipped with the firmware. An existing file shorter than size is
// extended with erased cells.
func OpenFile(path string, size int, image []byte, writeTime time.Duration) (*File, error) {
	if len(image) > size {
		return nil, fmt.Errorf("eeprom: image of %d bytes exceeds device size %d", len(image), size)
	}
	if writeTime < 0 {
		writeTime = 0
	}

	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if errors.Is(err, fs.ErrNotExist) {
		f, err = create(path, size, image)
	}
	if err != nil {
		return nil, fmt.Errorf("eeprom: open %s: %w", path, err)
	}

	st, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("eeprom: stat %s: %w", path, err)
	}
	if n := st.Size(); n < int64(size) {
		pad := bytes.Repeat([]byte{Erased}, size-int(n))
		if _, err := f.WriteAt(pad, n); err != nil {
			f.Close()
			return nil, fmt.Errorf("eeprom: extend %s: %w", path, err)
		}
	}

	return &File{
		f:         f,
		size:      size,
		writeTime: writeTime,
		ready:     make(chan struct{}, 1),
	}, nil
}

func create(path string, size int, image []byte) (*os.File, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return nil, err
	}
	buf := bytes.Repeat([]byte{Erased}, size)
	copy(buf, image)
	if _, err := f.WriteAt(buf, 0); err != nil {
		f.Close()
		return nil, err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return nil, err
	}
	log.WithField("path", path).Info("eeprom: created image from defaults")
	return f, nil
}

// Size returns the device size in bytes.
func (d *File) Size() int { return d.size }

// ReadAt implements io.ReaderAt.
func (d *File) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 || off+int64(len(p)) > int64(d.size) {
		return 0, io.ErrUnexpectedEOF
	}
	return d.f.ReadAt(p, off)
}

// Program starts writing one byte. The device stays busy for the write time.
// A failed write is logged and otherwise looks like a successful one: the
// hardware gives no feedback beyond "ready".
func (d *File) Program(addr int, v byte) {
	d.busy.Store(true)
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		if d.writeTime > 0 {
			time.Sleep(d.writeTime)
		}
		if addr < 0 || addr >= d.size {
			log.WithField("addr", addr).Error("eeprom: program out of range")
		} else if _, err := d.f.WriteAt([]byte{v}, int64(addr)); err != nil {
			log.WithFields(log.Fields{"addr": addr, "error": err}).Error("eeprom: program failed")
		} else if err := d.f.Sync(); err != nil {
			log.WithFields(log.Fields{"addr": addr, "error": err}).Error("eeprom: sync failed")
		}
		d.busy.Store(false)
		select {
		case d.ready <- struct{}{}:
		default:
		}
	}()
}

// Busy reports whether a byte is being programmed.
func (d *File) Busy() bool { return d.busy.Load() }

// Ready is signalled when a byte write completes.
func (d *File) Ready() <-chan struct{} { return d.ready }

// Close waits for an in-flight write and closes the image.
func (d *File) Close() error {
	d.wg.Wait()
	return d.f.Close()
}
