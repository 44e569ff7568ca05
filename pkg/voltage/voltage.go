// Package voltage reads the battery bank voltage from a Victron VE.Direct
// serial interface. The device streams text frames of tab-separated
// key/value lines; only the V record (bank voltage in millivolts) is used.
package voltage

import (
	"bufio"
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/battsentry/battsentry/pkg/log"
	"go.bug.st/serial"
)

// Source produces voltage readings.
type Source interface {
	// Read returns the bank voltage in volts. It blocks until a reading
	// arrives, the attempt budget is spent, or ctx is done.
	Read(ctx context.Context) (float64, error)
	Close() error
}

// maxFrameLines bounds how many lines one Read will scan before giving up.
// A full VE.Direct frame is under 30 lines, so this covers joining the
// stream mid-frame.
const maxFrameLines = 64

// VEDirect reads from a VE.Direct serial port. The port is opened lazily
// and reopened once per Read after an I/O error, which recovers from USB
// re-enumeration without restarting the process.
type VEDirect struct {
	device      string
	readTimeout time.Duration

	mu     sync.Mutex
	port   serial.Port
	reader *bufio.Reader
}

var _ Source = &VEDirect{}

// NewVEDirect returns a source reading from the given serial device.
func NewVEDirect(device string, readTimeout time.Duration) *VEDirect {
	return &VEDirect{device: device, readTimeout: readTimeout}
}

func (v *VEDirect) open() error {
	if v.port != nil {
		return nil
	}
	port, err := serial.Open(v.device, &serial.Mode{
		BaudRate: 19200,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return fmt.Errorf("opening %s: %w", v.device, err)
	}
	if err := port.SetReadTimeout(v.readTimeout); err != nil {
		port.Close()
		return fmt.Errorf("setting read timeout on %s: %w", v.device, err)
	}
	v.port = port
	v.reader = bufio.NewReader(port)
	return nil
}

func (v *VEDirect) closeLocked() {
	if v.port != nil {
		v.port.Close()
		v.port = nil
		v.reader = nil
	}
}

// Read implements Source. On a serial error the port is closed and opened
// once more before the error is returned, so a transient USB drop costs a
// single cycle.
func (v *VEDirect) Read(ctx context.Context) (float64, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	volts, err := v.readOnce(ctx)
	if err == nil || ctx.Err() != nil {
		return volts, err
	}

	log.Ctx(ctx).Warn("serial read failed, reopening port", "device", v.device, "error", err)
	v.closeLocked()
	return v.readOnce(ctx)
}

func (v *VEDirect) readOnce(ctx context.Context) (float64, error) {
	if err := v.open(); err != nil {
		return 0, err
	}
	for i := 0; i < maxFrameLines; i++ {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		line, err := v.reader.ReadString('\n')
		if err != nil {
			v.closeLocked()
			return 0, fmt.Errorf("reading from %s: %w", v.device, err)
		}
		if mv, ok := parseVoltageLine(line); ok {
			return mv / 1000, nil
		}
	}
	return 0, fmt.Errorf("no voltage record in %d lines from %s", maxFrameLines, v.device)
}

func (v *VEDirect) Close() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.closeLocked()
	return nil
}

// parseVoltageLine extracts the millivolt value from a "V\t<mv>" record.
func parseVoltageLine(line string) (float64, bool) {
	line = strings.TrimRight(line, "\r\n")
	key, value, found := strings.Cut(line, "\t")
	if !found || key != "V" {
		return 0, false
	}
	mv, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return 0, false
	}
	return mv, true
}
