// Package decision holds the charging policy. The policy is an ordered list
// of named rules walked from hard safety limits down to rate-driven
// preferences; the first rule that applies wins, so safety rules can never
// be shadowed by cost optimizations.
package decision

import (
	"context"
	"time"

	"github.com/battsentry/battsentry/pkg/log"
	"github.com/battsentry/battsentry/pkg/rates"
	"github.com/battsentry/battsentry/pkg/types"
)

// Input is the state a decision is made from.
type Input struct {
	Volts       float64
	Now         time.Time
	Connected   bool
	SolarActive bool
}

// Decision is the outcome: the desired charger state and the rule that
// produced it.
type Decision struct {
	Connect bool
	Reason  types.ReasonCode
}

func connect(reason types.ReasonCode) *Decision {
	return &Decision{Connect: true, Reason: reason}
}

func disconnect(reason types.ReasonCode) *Decision {
	return &Decision{Connect: false, Reason: reason}
}

// Engine applies the charging policy. Not safe for concurrent use.
type Engine struct {
	settings *types.Settings
	sched    *rates.Schedule

	// first is true until the first decision after startup. Inside the
	// evening hysteresis band the strict threshold applies then, since the
	// prior charger state is not trustworthy.
	first bool
}

// New returns an Engine over the given settings and rate schedule.
func New(s *types.Settings, sched *rates.Schedule) *Engine {
	return &Engine{settings: s, sched: sched, first: true}
}

// rule is one step of the cascade. eval returns nil when the rule does not
// apply and the next rule should be consulted.
type rule struct {
	name string
	eval func(e *Engine, ctx context.Context, in Input) *Decision
}

var cascade = []rule{
	{"camping", (*Engine).camping},
	{"safety_high", (*Engine).safetyHigh},
	{"safety_high_hysteresis", (*Engine).safetyHighHysteresis},
	{"critical_inverter", (*Engine).criticalInverter},
	{"emergency_low", (*Engine).emergencyLow},
	{"ev_credit", (*Engine).evCredit},
	{"solar", (*Engine).solarActive},
	{"morning", (*Engine).morning},
	{"evening", (*Engine).evening},
	{"low_voltage", (*Engine).lowVoltage},
	{"charged_stop", (*Engine).chargedStop},
	{"weekend", (*Engine).weekend},
	{"healthy_rates", (*Engine).healthyRates},
	{"state_hysteresis", (*Engine).stateHysteresis},
	{"fallback_preferred", (*Engine).fallbackPreferred},
}

// Decide returns the desired charger state for the given input.
func (e *Engine) Decide(ctx context.Context, in Input) Decision {
	defer func() { e.first = false }()
	for _, r := range cascade {
		if d := r.eval(e, ctx, in); d != nil {
			log.Ctx(ctx).Debug("decision rule matched",
				"rule", r.name,
				"connect", d.Connect,
				"reason", d.Reason,
				"volts", in.Volts)
			return *d
		}
	}
	return Decision{Connect: in.Connected, Reason: types.ReasonMaintainState}
}

// camping overrides the entire cascade with a simple hysteresis band
// around the period's threshold. While in the band the current state holds.
func (e *Engine) camping(ctx context.Context, in Input) *Decision {
	period, ok := types.ActivePeriod(e.settings.CampingPeriods, in.Now, func(p types.CampingPeriod, err error) {
		log.Ctx(ctx).Warn("skipping malformed camping period",
			"start", p.Start, "end", p.End, "error", err)
	})
	if !ok {
		return nil
	}
	threshold := period.VoltageThreshold
	if threshold == 0 {
		threshold = e.settings.DefaultCampingV
	}
	switch {
	case in.Volts >= threshold:
		return disconnect(types.ReasonCampingHighVoltage)
	case in.Volts <= threshold-0.5:
		return connect(types.ReasonCampingAllowCharging)
	case in.Connected:
		return connect(types.ReasonCampingAllowCharging)
	default:
		return disconnect(types.ReasonCampingHysteresis)
	}
}

func (e *Engine) safetyHigh(_ context.Context, in Input) *Decision {
	if in.Volts >= e.settings.HighSafetyVolts {
		return disconnect(types.ReasonSafetyHighVoltage)
	}
	return nil
}

// safetyHighHysteresis keeps a disconnected charger off until voltage has
// fallen well clear of the safety limit.
func (e *Engine) safetyHighHysteresis(_ context.Context, in Input) *Decision {
	if !in.Connected && in.Volts >= e.settings.LowSafetyVolts {
		return disconnect(types.ReasonSafetyHighHysteresis)
	}
	return nil
}

func (e *Engine) criticalInverter(_ context.Context, in Input) *Decision {
	if in.Volts <= e.settings.CriticalLowVolts {
		return connect(types.ReasonCriticalInverter)
	}
	return nil
}

func (e *Engine) emergencyLow(_ context.Context, in Input) *Decision {
	if in.Volts <= e.settings.EmergencyLowVolts {
		return connect(types.ReasonEmergencyLowVoltage)
	}
	return nil
}

// evCredit charges through the overnight EV credit window, the cheapest
// rates of the day, unless the bank is already full.
func (e *Engine) evCredit(_ context.Context, in Input) *Decision {
	if !e.settings.EVCreditWindow.Contains(in.Now.Hour()) {
		return nil
	}
	if in.Volts >= e.settings.NormalCeilVolts {
		return disconnect(types.ReasonEVCreditVoltageHigh)
	}
	return connect(types.ReasonEVCreditPriority)
}

// solarActive takes free energy while the sun is out.
func (e *Engine) solarActive(_ context.Context, in Input) *Decision {
	if !in.SolarActive {
		return nil
	}
	if in.Volts >= e.settings.NormalCeilVolts {
		return disconnect(types.ReasonSolarVoltageHigh)
	}
	return connect(types.ReasonSolarActive)
}

// morning stops buying off-peak power after the EV window when solar is
// about to take over.
func (e *Engine) morning(_ context.Context, in Input) *Decision {
	s := e.settings
	if !s.MorningWindow.Contains(in.Now.Hour()) {
		return nil
	}
	switch {
	case in.Volts <= s.LowPriorityVolts:
		return connect(types.ReasonMorningLowVoltage)
	case in.Volts >= s.LowPriorityVolts+s.MorningStopDelta:
		return disconnect(types.ReasonMorningWaitForSolar)
	case in.Connected:
		return connect(types.ReasonMorningLowVoltage)
	default:
		return disconnect(types.ReasonMorningWaitForSolar)
	}
}

// evening holds out for the EV credit window unless the bank sags. This
// outranks low-voltage priority on purpose.
func (e *Engine) evening(_ context.Context, in Input) *Decision {
	s := e.settings
	if !s.EveningWindow.Contains(in.Now.Hour()) {
		return nil
	}
	switch {
	case in.Volts <= s.EveningWaitVolts:
		return connect(types.ReasonEveningLowVoltage)
	case in.Volts >= s.EveningWaitVolts+s.EveningStopDelta:
		return disconnect(types.ReasonWaitingForEVCredit)
	case e.first:
		return disconnect(types.ReasonWaitingForEVCredit)
	case in.Connected:
		return connect(types.ReasonEveningLowVoltage)
	default:
		return disconnect(types.ReasonWaitingForEVCredit)
	}
}

// lowVoltage prefers charging a sagging bank, with a carve-out for peak
// rates unless it is sagging badly.
func (e *Engine) lowVoltage(_ context.Context, in Input) *Decision {
	s := e.settings
	if in.Volts > s.LowPriorityVolts {
		return nil
	}
	if e.sched.IsAvoid(in.Now) && !in.SolarActive {
		if in.Volts <= s.LowPriorityVolts-s.PeakOverrideDelta {
			return connect(types.ReasonLowVoltageOverridePk)
		}
		return disconnect(types.ReasonLowVoltagePeakAvoid)
	}
	return connect(types.ReasonLowVoltagePriority)
}

func (e *Engine) chargedStop(_ context.Context, in Input) *Decision {
	s := e.settings
	if in.Volts >= s.LowPriorityVolts+s.ChargedStopDelta && in.Connected && !e.sched.IsPreferred(in.Now) {
		return disconnect(types.ReasonLowVoltageCharged)
	}
	return nil
}

// weekend is off-peak all day, so hold for the EV credit window with wider
// hysteresis.
func (e *Engine) weekend(_ context.Context, in Input) *Decision {
	s := e.settings
	if !types.IsWeekend(in.Now) {
		return nil
	}
	if in.Connected {
		if in.Volts < s.LowPriorityVolts+s.WeekendStopDelta {
			return connect(types.ReasonWeekendLowVoltage)
		}
		return disconnect(types.ReasonWeekendWaitForCredit)
	}
	if in.Volts <= s.LowPriorityVolts+s.WeekendStartDelta {
		return connect(types.ReasonWeekendLowVoltage)
	}
	return disconnect(types.ReasonWeekendWaitForCredit)
}

// healthyRates is purely rate-driven steering for a healthy bank.
func (e *Engine) healthyRates(_ context.Context, in Input) *Decision {
	s := e.settings
	if in.Volts <= s.RecoveryVolts {
		return nil
	}

	if e.sched.IsPreferred(in.Now) {
		if in.Connected {
			if in.Volts < s.NormalCeilVolts {
				return connect(types.ReasonPreferredHours)
			}
			return disconnect(types.ReasonVoltageHighSkipPref)
		}
		if in.Volts <= s.LowPriorityVolts+s.PreferredStartDelta {
			return connect(types.ReasonPreferredHours)
		}
		return disconnect(types.ReasonVoltageHighSkipPref)
	}

	month := s.MonthFor(in.Now)
	hour := in.Now.Hour()
	if hour >= month.DaylightStart && hour < month.DaylightEnd {
		if in.Connected {
			if in.Volts < s.NormalCeilVolts {
				return connect(types.ReasonDaylightHours)
			}
			return disconnect(types.ReasonVoltageHighSkipDay)
		}
		if in.Volts <= s.HealthyVolts {
			return connect(types.ReasonDaylightHours)
		}
		return disconnect(types.ReasonVoltageHighSkipDay)
	}

	if e.sched.IsAvoid(in.Now) {
		return disconnect(types.ReasonPeakRateAvoidance)
	}

	if in.Volts > s.HealthyVolts {
		return disconnect(types.ReasonHealthyWaitForCredit)
	}
	return nil
}

// stateHysteresis stops state flapping when no other rule claimed the
// reading.
func (e *Engine) stateHysteresis(_ context.Context, in Input) *Decision {
	if in.Volts <= e.settings.LowSafetyVolts {
		return nil
	}
	if in.Connected {
		return disconnect(types.ReasonHysteresisDisconnect)
	}
	return disconnect(types.ReasonHysteresisStayOff)
}

func (e *Engine) fallbackPreferred(_ context.Context, in Input) *Decision {
	if e.sched.IsPreferred(in.Now) {
		return connect(types.ReasonFallbackPreferred)
	}
	return nil
}
