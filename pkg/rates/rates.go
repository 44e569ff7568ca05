// Package rates models the utility's time-of-use tariff. The schedule is
// static per season: summer weekdays carry a mid-peak shoulder, winter
// weekdays only a peak block, and weekends are off-peak all day. An EV
// program credit applies overnight regardless of season.
package rates

import (
	"time"

	"github.com/battsentry/battsentry/pkg/types"
)

// Schedule answers rate and timing questions for the decision engine.
type Schedule struct {
	settings *types.Settings
}

// New returns a Schedule over the given settings.
func New(s *types.Settings) *Schedule {
	return &Schedule{settings: s}
}

// Rate returns the tariff in effect at now.
func (s *Schedule) Rate(now time.Time) types.RateInfo {
	season := s.settings.SeasonFor(now)
	hour := now.Hour()

	var info types.RateInfo
	switch {
	case types.IsWeekend(now):
		info.Tier = types.TierOffPeakWeekend
		info.RateCents = s.offPeak(season)
	case s.settings.PeakWindow.Contains(hour):
		info.Tier = types.TierPeak
		if season == types.SeasonSummer {
			info.RateCents = s.settings.SummerPeak
		} else {
			info.RateCents = s.settings.WinterPeak
		}
	case season == types.SeasonSummer && s.settings.SummerMidWindow.Contains(hour):
		info.Tier = types.TierMidPeak
		info.RateCents = s.settings.SummerMidPeak
	default:
		info.Tier = types.TierOffPeak
		info.RateCents = s.offPeak(season)
	}

	if s.settings.EVCreditWindow.Contains(hour) {
		info.HasEVCredit = true
		info.RateCents += s.settings.EVCreditCents
	}
	return info
}

func (s *Schedule) offPeak(season types.Season) float64 {
	if season == types.SeasonSummer {
		return s.settings.SummerOffPeak
	}
	return s.settings.WinterOffPeak
}

// IsPreferred reports whether now falls in a preferred charging window. On
// weekends every hour is off-peak, so only the EV credit window counts as
// truly preferred; weekdays use the configured windows.
func (s *Schedule) IsPreferred(now time.Time) bool {
	if types.IsWeekend(now) {
		return s.settings.EVCreditWindow.Contains(now.Hour())
	}
	return types.InAnyRange(s.settings.PreferredHours, now.Hour())
}

// IsAvoid reports whether now falls in an avoid window. Weekends never
// have peak rates.
func (s *Schedule) IsAvoid(now time.Time) bool {
	if types.IsWeekend(now) {
		return false
	}
	return types.InAnyRange(s.settings.AvoidHours, now.Hour())
}
