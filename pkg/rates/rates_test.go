package rates

import (
	"testing"
	"time"

	"github.com/battsentry/battsentry/pkg/types"
	"github.com/stretchr/testify/assert"
)

// at builds a local time on the given date at hour h. July 15 2026 is a
// Wednesday, January 14 2026 is a Wednesday, July 18 2026 is a Saturday.
func at(year int, month time.Month, day, h int) time.Time {
	return time.Date(year, month, day, h, 30, 0, 0, time.UTC)
}

func TestSchedule(t *testing.T) {
	settings := types.DefaultSettings()
	s := New(&settings)

	t.Run("summer weekday tiers", func(t *testing.T) {
		info := s.Rate(at(2026, time.July, 15, 10))
		assert.Equal(t, types.TierOffPeak, info.Tier)
		assert.Equal(t, 15.05, info.RateCents)
		assert.False(t, info.HasEVCredit)

		info = s.Rate(at(2026, time.July, 15, 14))
		assert.Equal(t, types.TierMidPeak, info.Tier)
		assert.Equal(t, 20.77, info.RateCents)

		info = s.Rate(at(2026, time.July, 15, 18))
		assert.Equal(t, types.TierPeak, info.Tier)
		assert.Equal(t, 36.55, info.RateCents)
	})

	t.Run("winter weekday has no mid-peak", func(t *testing.T) {
		info := s.Rate(at(2026, time.January, 14, 14))
		assert.Equal(t, types.TierOffPeak, info.Tier)
		assert.Equal(t, 12.48, info.RateCents)

		info = s.Rate(at(2026, time.January, 14, 18))
		assert.Equal(t, types.TierPeak, info.Tier)
		assert.Equal(t, 17.24, info.RateCents)
	})

	t.Run("weekend is off-peak all day", func(t *testing.T) {
		info := s.Rate(at(2026, time.July, 18, 18))
		assert.Equal(t, types.TierOffPeakWeekend, info.Tier)
		assert.Equal(t, 15.05, info.RateCents)
	})

	t.Run("ev credit applies overnight", func(t *testing.T) {
		info := s.Rate(at(2026, time.July, 15, 2))
		assert.True(t, info.HasEVCredit)
		assert.InDelta(t, 15.05-1.50, info.RateCents, 0.001)

		info = s.Rate(at(2026, time.July, 18, 2))
		assert.True(t, info.HasEVCredit)
		assert.Equal(t, types.TierOffPeakWeekend, info.Tier)
	})

	t.Run("preferred windows", func(t *testing.T) {
		assert.True(t, s.IsPreferred(at(2026, time.July, 15, 3)))
		assert.True(t, s.IsPreferred(at(2026, time.July, 15, 12)))
		assert.False(t, s.IsPreferred(at(2026, time.July, 15, 18)))
		// weekends only count the EV window
		assert.True(t, s.IsPreferred(at(2026, time.July, 18, 3)))
		assert.False(t, s.IsPreferred(at(2026, time.July, 18, 12)))
	})

	t.Run("avoid windows skip weekends", func(t *testing.T) {
		assert.True(t, s.IsAvoid(at(2026, time.July, 15, 18)))
		assert.False(t, s.IsAvoid(at(2026, time.July, 15, 10)))
		assert.False(t, s.IsAvoid(at(2026, time.July, 18, 18)))
	})
}
