package alert

import (
	"context"
	"testing"
	"time"

	"github.com/battsentry/battsentry/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestEngine(t *testing.T) (*Engine, *MockSink, *time.Time) {
	t.Helper()
	settings := types.DefaultSettings()
	sink := &MockSink{}
	e := New(&settings, sink)
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	e.nowFn = func() time.Time { return now }
	return e, sink, &now
}

func TestEvaluateVoltage(t *testing.T) {
	ctx := context.Background()

	t.Run("low voltage alerts once per cooldown", func(t *testing.T) {
		e, sink, now := newTestEngine(t)
		e.EvaluateVoltage(ctx, 20.9, VoltageContext{})
		assert.Equal(t, 1, sink.Count())

		// repeat inside the cooldown is suppressed
		*now = now.Add(10 * time.Minute)
		e.EvaluateVoltage(ctx, 20.9, VoltageContext{})
		assert.Equal(t, 1, sink.Count())

		// past the cooldown it repeats
		*now = now.Add(25 * time.Minute)
		e.EvaluateVoltage(ctx, 20.9, VoltageContext{})
		assert.Equal(t, 2, sink.Count())
	})

	t.Run("critical bands are independent", func(t *testing.T) {
		e, sink, _ := newTestEngine(t)
		e.EvaluateVoltage(ctx, 20.7, VoltageContext{})
		require.Equal(t, 1, sink.Count())
		last, ok := sink.Last()
		require.True(t, ok)
		assert.True(t, last.Critical)
		assert.Contains(t, last.Subject, "CRITICAL")
	})

	t.Run("critical high fires alongside high", func(t *testing.T) {
		e, sink, _ := newTestEngine(t)
		e.EvaluateVoltage(ctx, 25.1, VoltageContext{Connected: false, SolarActive: true})
		assert.Equal(t, 2, sink.Count())
	})

	t.Run("recovery sends once and rearms alerts", func(t *testing.T) {
		e, sink, now := newTestEngine(t)
		e.EvaluateVoltage(ctx, 20.9, VoltageContext{})
		require.Equal(t, 1, sink.Count())

		e.EvaluateVoltage(ctx, 21.8, VoltageContext{})
		require.Equal(t, 2, sink.Count())
		last, _ := sink.Last()
		assert.Contains(t, last.Subject, "recovered")

		// further healthy readings don't repeat the recovery notice
		e.EvaluateVoltage(ctx, 22.0, VoltageContext{})
		assert.Equal(t, 2, sink.Count())

		// a new dip alerts immediately, no cooldown carryover
		*now = now.Add(time.Minute)
		e.EvaluateVoltage(ctx, 20.9, VoltageContext{})
		assert.Equal(t, 3, sink.Count())
	})

	t.Run("no recovery notice without a prior alert", func(t *testing.T) {
		e, sink, _ := newTestEngine(t)
		e.EvaluateVoltage(ctx, 22.0, VoltageContext{})
		assert.Equal(t, 0, sink.Count())
	})

	t.Run("failed send retries next evaluation", func(t *testing.T) {
		e, sink, _ := newTestEngine(t)
		sink.Fail = true
		e.EvaluateVoltage(ctx, 20.9, VoltageContext{})
		assert.Equal(t, 0, sink.Count())

		sink.Fail = false
		e.EvaluateVoltage(ctx, 20.9, VoltageContext{})
		assert.Equal(t, 1, sink.Count())
	})

	t.Run("nil sink is a no-op", func(t *testing.T) {
		settings := types.DefaultSettings()
		e := New(&settings, nil)
		e.EvaluateVoltage(ctx, 20.0, VoltageContext{})
		assert.False(t, e.Raise(ctx, CategoryCommFailure, "s", "b", false, time.Hour))
	})
}

func TestRaiseResolve(t *testing.T) {
	ctx := context.Background()

	t.Run("raise respects cooldown", func(t *testing.T) {
		e, sink, now := newTestEngine(t)
		assert.True(t, e.Raise(ctx, CategoryCommFailure, "comm down", "b", false, 30*time.Minute))
		assert.False(t, e.Raise(ctx, CategoryCommFailure, "comm down", "b", false, 30*time.Minute))
		*now = now.Add(31 * time.Minute)
		assert.True(t, e.Raise(ctx, CategoryCommFailure, "comm down", "b", false, 30*time.Minute))
		assert.Equal(t, 2, sink.Count())
	})

	t.Run("resolve only after raise", func(t *testing.T) {
		e, sink, _ := newTestEngine(t)
		assert.False(t, e.Resolve(ctx, CategoryCommFailure, "comm back", "b"))
		require.True(t, e.Raise(ctx, CategoryCommFailure, "comm down", "b", false, time.Hour))
		assert.True(t, e.Resolve(ctx, CategoryCommFailure, "comm back", "b"))
		assert.False(t, e.Resolve(ctx, CategoryCommFailure, "comm back", "b"))
		assert.Equal(t, 2, sink.Count())

		// resolved category alerts again immediately
		assert.True(t, e.Raise(ctx, CategoryCommFailure, "comm down", "b", false, time.Hour))
	})

	t.Run("categories are independent", func(t *testing.T) {
		e, sink, _ := newTestEngine(t)
		assert.True(t, e.Raise(ctx, CategoryCommFailure, "a", "b", false, time.Hour))
		assert.True(t, e.Raise(ctx, CategoryRapidToggle, "c", "d", false, time.Hour))
		assert.Equal(t, 2, sink.Count())
	})
}
