package history

import (
	"testing"
	"time"

	"github.com/battsentry/battsentry/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sample(at time.Time, v float64) types.VoltageSample {
	return types.VoltageSample{At: at, Volts: v, Valid: true}
}

func TestBuffer(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("capacity from window", func(t *testing.T) {
		b := New(time.Hour, time.Minute)
		assert.Equal(t, 60, len(b.buf))
		b = New(0, time.Minute)
		assert.Equal(t, 1, len(b.buf))
	})

	t.Run("append and latest", func(t *testing.T) {
		b := New(5*time.Minute, time.Minute)
		_, ok := b.Latest()
		assert.False(t, ok)
		b.Append(sample(base, 23.1))
		b.Append(sample(base.Add(time.Minute), 23.2))
		latest, ok := b.Latest()
		require.True(t, ok)
		assert.Equal(t, 23.2, latest.Volts)
		assert.Equal(t, 2, b.Len())
	})

	t.Run("evicts oldest when full", func(t *testing.T) {
		b := New(3*time.Minute, time.Minute)
		for i := 0; i < 5; i++ {
			b.Append(sample(base.Add(time.Duration(i)*time.Minute), 23.0+float64(i)*0.1))
		}
		assert.Equal(t, 3, b.Len())
		all := b.All()
		require.Len(t, all, 3)
		assert.InDelta(t, 23.2, all[0].Volts, 0.001)
		assert.InDelta(t, 23.4, all[2].Volts, 0.001)
	})

	t.Run("recent returns newest in order", func(t *testing.T) {
		b := New(10*time.Minute, time.Minute)
		for i := 0; i < 6; i++ {
			b.Append(sample(base.Add(time.Duration(i)*time.Minute), float64(i)))
		}
		got := b.Recent(3)
		require.Len(t, got, 3)
		assert.Equal(t, 3.0, got[0].Volts)
		assert.Equal(t, 5.0, got[2].Volts)
		assert.Len(t, b.Recent(100), 6)
	})

	t.Run("since filters by cutoff", func(t *testing.T) {
		b := New(10*time.Minute, time.Minute)
		for i := 0; i < 6; i++ {
			b.Append(sample(base.Add(time.Duration(i)*time.Minute), float64(i)))
		}
		got := b.Since(base.Add(3 * time.Minute))
		require.Len(t, got, 3)
		assert.Equal(t, 3.0, got[0].Volts)
		assert.Nil(t, b.Since(base.Add(time.Hour)))
	})
}
