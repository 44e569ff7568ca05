package decision

import (
	"context"
	"testing"
	"time"

	"github.com/battsentry/battsentry/pkg/rates"
	"github.com/battsentry/battsentry/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// July 15 2026 is a Wednesday, July 18 a Saturday, January 14 a Wednesday.
func at(month time.Month, day, hour int) time.Time {
	return time.Date(2026, month, day, hour, 30, 0, 0, time.UTC)
}

func newEngine(s *types.Settings) *Engine {
	return New(s, rates.New(s))
}

func TestDecideCascade(t *testing.T) {
	ctx := context.Background()
	settings := types.DefaultSettings()

	tests := []struct {
		name    string
		in      Input
		connect bool
		reason  types.ReasonCode
	}{
		{
			name:    "safety high wins over everything",
			in:      Input{Volts: 24.9, Now: at(time.July, 15, 2), Connected: true, SolarActive: true},
			connect: false,
			reason:  types.ReasonSafetyHighVoltage,
		},
		{
			name:    "critical inverter protection",
			in:      Input{Volts: 20.5, Now: at(time.July, 15, 18), Connected: false},
			connect: true,
			reason:  types.ReasonCriticalInverter,
		},
		{
			name:    "emergency low",
			in:      Input{Volts: 20.9, Now: at(time.July, 15, 18), Connected: false},
			connect: true,
			reason:  types.ReasonEmergencyLowVoltage,
		},
		{
			name:    "ev credit charges overnight",
			in:      Input{Volts: 22.5, Now: at(time.July, 15, 2), Connected: false},
			connect: true,
			reason:  types.ReasonEVCreditPriority,
		},
		{
			name:    "ev credit stops when full",
			in:      Input{Volts: 23.5, Now: at(time.July, 15, 2), Connected: true},
			connect: false,
			reason:  types.ReasonEVCreditVoltageHigh,
		},
		{
			name:    "solar charges",
			in:      Input{Volts: 22.8, Now: at(time.July, 15, 13), Connected: false, SolarActive: true},
			connect: true,
			reason:  types.ReasonSolarActive,
		},
		{
			name:    "solar stops when full",
			in:      Input{Volts: 23.6, Now: at(time.July, 15, 13), Connected: true, SolarActive: true},
			connect: false,
			reason:  types.ReasonSolarVoltageHigh,
		},
		{
			name:    "morning low voltage charges",
			in:      Input{Volts: 21.1, Now: at(time.July, 15, 7), Connected: false},
			connect: true,
			reason:  types.ReasonMorningLowVoltage,
		},
		{
			name:    "morning high voltage waits for solar",
			in:      Input{Volts: 22.6, Now: at(time.July, 15, 7), Connected: true},
			connect: false,
			reason:  types.ReasonMorningWaitForSolar,
		},
		{
			name:    "morning band holds connected state",
			in:      Input{Volts: 21.8, Now: at(time.July, 15, 7), Connected: true},
			connect: true,
			reason:  types.ReasonMorningLowVoltage,
		},
		{
			name:    "morning band holds disconnected state",
			in:      Input{Volts: 21.8, Now: at(time.July, 15, 7), Connected: false},
			connect: false,
			reason:  types.ReasonMorningWaitForSolar,
		},
		{
			name:    "evening low voltage charges",
			in:      Input{Volts: 20.4, Now: at(time.July, 15, 21), Connected: false},
			connect: true,
			reason:  types.ReasonEveningLowVoltage,
		},
		{
			name:    "evening waits for ev credit",
			in:      Input{Volts: 22.0, Now: at(time.July, 15, 21), Connected: true},
			connect: false,
			reason:  types.ReasonWaitingForEVCredit,
		},
		{
			name:    "low voltage priority off peak",
			in:      Input{Volts: 21.1, Now: at(time.July, 15, 11), Connected: false},
			connect: true,
			reason:  types.ReasonLowVoltagePriority,
		},
		{
			name:    "low voltage avoids peak when not dire",
			in:      Input{Volts: 21.1, Now: at(time.July, 15, 18), Connected: false},
			connect: false,
			reason:  types.ReasonLowVoltagePeakAvoid,
		},
		{
			name:    "low voltage peak avoidance yields to solar",
			in:      Input{Volts: 21.1, Now: at(time.July, 15, 18), Connected: false, SolarActive: true},
			connect: true,
			reason:  types.ReasonSolarActive,
		},
		{
			name:    "weekend holds charge while connected",
			in:      Input{Volts: 21.9, Now: at(time.July, 18, 14), Connected: true},
			connect: true,
			reason:  types.ReasonWeekendLowVoltage,
		},
		{
			name:    "weekend waits while disconnected",
			in:      Input{Volts: 21.9, Now: at(time.July, 18, 14), Connected: false},
			connect: false,
			reason:  types.ReasonWeekendWaitForCredit,
		},
		{
			name:    "preferred hours charge a healthy bank",
			in:      Input{Volts: 22.3, Now: at(time.July, 15, 11), Connected: false},
			connect: true,
			reason:  types.ReasonPreferredHours,
		},
		{
			name:    "preferred hours skip a full bank",
			in:      Input{Volts: 23.2, Now: at(time.July, 15, 11), Connected: false},
			connect: false,
			reason:  types.ReasonVoltageHighSkipPref,
		},
		{
			name:    "preferred hours keep charging until the ceiling",
			in:      Input{Volts: 23.2, Now: at(time.July, 15, 11), Connected: true},
			connect: true,
			reason:  types.ReasonPreferredHours,
		},
		{
			name:    "daylight charges during peak window in summer",
			in:      Input{Volts: 22.9, Now: at(time.July, 15, 18), Connected: false},
			connect: true,
			reason:  types.ReasonDaylightHours,
		},
		{
			name:    "winter peak avoidance after dark",
			in:      Input{Volts: 22.0, Now: at(time.January, 14, 17), Connected: false},
			connect: false,
			reason:  types.ReasonPeakRateAvoidance,
		},
		{
			name:    "charged stop outside preferred hours",
			in:      Input{Volts: 22.6, Now: at(time.July, 15, 18), Connected: true},
			connect: false,
			reason:  types.ReasonLowVoltageCharged,
		},
		{
			name:    "fallback preferred hours",
			in:      Input{Volts: 21.4, Now: at(time.July, 15, 11), Connected: false},
			connect: true,
			reason:  types.ReasonFallbackPreferred,
		},
		{
			name:    "maintain state when nothing applies",
			in:      Input{Volts: 21.4, Now: at(time.January, 14, 18), Connected: true},
			connect: true,
			reason:  types.ReasonMaintainState,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newEngine(&settings)
			e.first = false
			d := e.Decide(ctx, tt.in)
			assert.Equal(t, tt.connect, d.Connect)
			assert.Equal(t, tt.reason, d.Reason)
		})
	}
}

func TestDecideLowVoltagePeakOverride(t *testing.T) {
	// With the stock thresholds the emergency rule catches a sagging bank
	// before the peak override does; narrow the emergency band to exercise
	// the override itself.
	ctx := context.Background()
	settings := types.DefaultSettings()
	settings.EmergencyLowVolts = 20.8

	e := newEngine(&settings)
	d := e.Decide(ctx, Input{Volts: 21.0, Now: at(time.July, 15, 18), Connected: false})
	assert.True(t, d.Connect)
	assert.Equal(t, types.ReasonLowVoltageOverridePk, d.Reason)
}

func TestDecideHighVoltageRecovery(t *testing.T) {
	// A bank held high by solar must stay disconnected until voltage falls
	// below the hysteresis bound, then resume on the next applicable rule.
	ctx := context.Background()
	settings := types.DefaultSettings()
	settings.HighSafetyVolts = 24.8
	settings.LowSafetyVolts = 24.5
	settings.NormalCeilVolts = 24.6
	e := newEngine(&settings)

	now := at(time.July, 15, 2)
	connected := true
	steps := []struct {
		volts   float64
		connect bool
		reason  types.ReasonCode
	}{
		{24.9, false, types.ReasonSafetyHighVoltage},
		{24.9, false, types.ReasonSafetyHighVoltage},
		{24.6, false, types.ReasonSafetyHighHysteresis},
		{24.4, true, types.ReasonEVCreditPriority},
	}
	for i, step := range steps {
		d := e.Decide(ctx, Input{Volts: step.volts, Now: now, Connected: connected})
		require.Equal(t, step.connect, d.Connect, "step %d", i)
		require.Equal(t, step.reason, d.Reason, "step %d", i)
		connected = d.Connect
		now = now.Add(time.Minute)
	}
}

func TestDecideEveningFirstDecision(t *testing.T) {
	// Inside the evening hysteresis band the first decision after startup
	// must not trust the reported charger state.
	ctx := context.Background()
	settings := types.DefaultSettings()

	e := newEngine(&settings)
	d := e.Decide(ctx, Input{Volts: 21.0, Now: at(time.July, 15, 21), Connected: true})
	assert.False(t, d.Connect)
	assert.Equal(t, types.ReasonWaitingForEVCredit, d.Reason)

	// subsequent decisions in the band hold state
	d = e.Decide(ctx, Input{Volts: 21.0, Now: at(time.July, 15, 21), Connected: true})
	assert.True(t, d.Connect)
	assert.Equal(t, types.ReasonEveningLowVoltage, d.Reason)
}

func TestDecideCamping(t *testing.T) {
	ctx := context.Background()
	settings := types.DefaultSettings()
	settings.CampingPeriods = []types.CampingPeriod{
		{Start: "bad-date", End: "2026-07-20", VoltageThreshold: 24.0},
		{Start: "2026-07-10", End: "2026-07-20", VoltageThreshold: 24.0},
	}

	t.Run("overrides cascade inside period", func(t *testing.T) {
		e := newEngine(&settings)
		// 21.0V would be EMERGENCY_LOW_VOLTAGE in normal mode
		d := e.Decide(ctx, Input{Volts: 21.0, Now: at(time.July, 15, 21), Connected: false})
		assert.True(t, d.Connect)
		assert.Equal(t, types.ReasonCampingAllowCharging, d.Reason)
	})

	t.Run("disconnects at threshold", func(t *testing.T) {
		e := newEngine(&settings)
		d := e.Decide(ctx, Input{Volts: 24.1, Now: at(time.July, 15, 12), Connected: true})
		assert.False(t, d.Connect)
		assert.Equal(t, types.ReasonCampingHighVoltage, d.Reason)
	})

	t.Run("band holds state", func(t *testing.T) {
		e := newEngine(&settings)
		d := e.Decide(ctx, Input{Volts: 23.7, Now: at(time.July, 15, 12), Connected: true})
		assert.True(t, d.Connect)
		d = e.Decide(ctx, Input{Volts: 23.7, Now: at(time.July, 15, 12), Connected: false})
		assert.False(t, d.Connect)
		assert.Equal(t, types.ReasonCampingHysteresis, d.Reason)
	})

	t.Run("inactive outside period", func(t *testing.T) {
		e := newEngine(&settings)
		d := e.Decide(ctx, Input{Volts: 21.0, Now: at(time.July, 25, 12), Connected: false})
		assert.Equal(t, types.ReasonEmergencyLowVoltage, d.Reason)
	})

	t.Run("default threshold when unset", func(t *testing.T) {
		s := settings
		s.CampingPeriods = []types.CampingPeriod{{Start: "2026-07-10", End: "2026-07-20"}}
		e := newEngine(&s)
		d := e.Decide(ctx, Input{Volts: 24.7, Now: at(time.July, 15, 12), Connected: true})
		assert.False(t, d.Connect)
		assert.Equal(t, types.ReasonCampingHighVoltage, d.Reason)
	})
}
