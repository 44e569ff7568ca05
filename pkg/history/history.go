// Package history keeps a bounded window of voltage samples for trend
// analysis. The buffer holds enough samples to cover the analysis window at
// the configured sampling interval and drops the oldest on overflow.
package history

import (
	"sync"
	"time"

	"github.com/battsentry/battsentry/pkg/types"
)

// Buffer is a fixed-capacity ring of voltage samples. Safe for concurrent
// use; the monitor appends while the status endpoint reads.
type Buffer struct {
	mu    sync.RWMutex
	buf   []types.VoltageSample
	start int
	n     int
}

// New returns a Buffer sized to cover window at the given interval. The
// capacity is always at least 1.
func New(window, interval time.Duration) *Buffer {
	capacity := 1
	if interval > 0 && window >= interval {
		capacity = int(window / interval)
	}
	return &Buffer{buf: make([]types.VoltageSample, capacity)}
}

// Append adds a sample, evicting the oldest when full.
func (b *Buffer) Append(s types.VoltageSample) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.n < len(b.buf) {
		b.buf[(b.start+b.n)%len(b.buf)] = s
		b.n++
		return
	}
	b.buf[b.start] = s
	b.start = (b.start + 1) % len(b.buf)
}

// Len returns the number of samples currently held.
func (b *Buffer) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.n
}

// Latest returns the most recent sample, or false if the buffer is empty.
func (b *Buffer) Latest() (types.VoltageSample, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.n == 0 {
		return types.VoltageSample{}, false
	}
	return b.buf[(b.start+b.n-1)%len(b.buf)], true
}

// Recent returns up to n of the newest samples in chronological order.
func (b *Buffer) Recent(n int) []types.VoltageSample {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if n > b.n {
		n = b.n
	}
	out := make([]types.VoltageSample, n)
	for i := 0; i < n; i++ {
		out[i] = b.buf[(b.start+b.n-n+i)%len(b.buf)]
	}
	return out
}

// All returns every held sample in chronological order.
func (b *Buffer) All() []types.VoltageSample {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]types.VoltageSample, b.n)
	for i := 0; i < b.n; i++ {
		out[i] = b.buf[(b.start+i)%len(b.buf)]
	}
	return out
}

// Since returns samples with At >= cutoff, in chronological order.
func (b *Buffer) Since(cutoff time.Time) []types.VoltageSample {
	all := b.All()
	for i, s := range all {
		if !s.At.Before(cutoff) {
			return all[i:]
		}
	}
	return nil
}
