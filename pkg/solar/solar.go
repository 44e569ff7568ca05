// Package solar infers whether the panels are contributing from voltage
// behavior alone; there is no dedicated generation sensor. Four detectors
// run each cycle and solar is considered active if any of them fires.
package solar

import (
	"context"
	"time"

	"github.com/battsentry/battsentry/pkg/history"
	"github.com/battsentry/battsentry/pkg/log"
	"github.com/battsentry/battsentry/pkg/types"
)

// Result is the outcome of one evaluation. Methods names the detectors
// that fired, in evaluation order.
type Result struct {
	Active  bool
	Methods []string
}

// Engine evaluates solar activity over the voltage history. Not safe for
// concurrent use; the monitor calls it from a single goroutine.
type Engine struct {
	settings *types.Settings
	active   bool
}

// New returns an Engine over the given settings.
func New(s *types.Settings) *Engine {
	return &Engine{settings: s}
}

// Active returns the result of the most recent evaluation.
func (e *Engine) Active() bool {
	return e.active
}

// Evaluate runs the detectors against the history and records the combined
// result. With fewer than 5 samples only time-of-day detection runs, since
// the trend detectors would be working from noise.
func (e *Engine) Evaluate(ctx context.Context, hist *history.Buffer, now time.Time) Result {
	if !e.settings.SolarDetection {
		e.active = false
		return Result{}
	}

	var res Result
	if hist.Len() < 5 {
		if e.byTime(now) {
			res = Result{Active: true, Methods: []string{"daylight_hours"}}
		}
	} else {
		if e.byTrend(hist, now) {
			res.Methods = append(res.Methods, "voltage_trend")
		}
		if e.byTime(now) {
			res.Methods = append(res.Methods, "daylight_hours")
		}
		if e.byPlateau(hist, now) {
			res.Methods = append(res.Methods, "voltage_plateau")
		}
		if e.loadCompensated(hist, now) {
			res.Methods = append(res.Methods, "load_compensated")
		}
		res.Active = len(res.Methods) > 0
	}

	if res.Active != e.active {
		latest, _ := hist.Latest()
		log.Ctx(ctx).Info("solar status changed",
			"active", res.Active,
			"methods", res.Methods,
			"volts", latest.Volts)
	}
	e.active = res.Active
	return res
}

// byTime checks the monthly daylight window. In deep-winter months the
// window is narrowed by 2 hours on each side since morning and evening sun
// contributes almost nothing.
func (e *Engine) byTime(now time.Time) bool {
	month := e.settings.MonthFor(now)
	hour := now.Hour()
	inDaylight := hour >= month.DaylightStart && hour < month.DaylightEnd
	if month.SolarFactor < 0.3 {
		start, end := month.DaylightStart+2, month.DaylightEnd-2
		if start < end {
			return inDaylight && hour >= start && hour < end
		}
	}
	return inDaylight
}

// byTrend fires when voltage is rising faster than the configured rate
// during daylight, regardless of the absolute level.
func (e *Engine) byTrend(hist *history.Buffer, now time.Time) bool {
	recent := hist.Recent(e.settings.TrendSamples)
	if len(recent) < 5 {
		return false
	}
	rate, ok := voltsPerHour(recent)
	return ok && rate > e.settings.RiseRateVoltsPerHour && e.byTime(now)
}

// byPlateau fires when voltage has held at or above the plateau threshold
// for the minimum duration during daylight. Only the newest contiguous run
// counts; a brief dip resets it.
func (e *Engine) byPlateau(hist *history.Buffer, now time.Time) bool {
	latest, ok := hist.Latest()
	if !ok || latest.Volts < e.settings.PlateauVolts {
		return false
	}
	all := hist.All()
	runStart := latest.At
	for i := len(all) - 1; i >= 0; i-- {
		if all[i].Volts < e.settings.PlateauVolts {
			break
		}
		runStart = all[i].At
	}
	return latest.At.Sub(runStart) >= e.settings.PlateauMinDuration && e.byTime(now)
}

// loadCompensated compares the observed voltage slope to the drop the
// house load would cause on its own. A bank that holds steady under load
// during daylight is being backfilled by the panels.
func (e *Engine) loadCompensated(hist *history.Buffer, now time.Time) bool {
	recent := hist.Recent(20)
	if len(recent) < 20 || !e.byTime(now) {
		return false
	}
	rate, ok := voltsPerHour(recent)
	if !ok {
		return false
	}
	if rate > 0.05 {
		return true
	}
	latest := recent[len(recent)-1]
	switch {
	case latest.Volts > e.settings.StrongGenVolts:
		return rate > -e.settings.LightLoadDrop
	case latest.Volts > e.settings.PlateauVolts:
		return rate > -e.settings.TypicalLoadDrop*0.5
	default:
		return rate > -e.settings.TypicalLoadDrop*0.6
	}
}

// voltsPerHour returns the first-to-last slope of the samples.
func voltsPerHour(samples []types.VoltageSample) (float64, bool) {
	first, last := samples[0], samples[len(samples)-1]
	dt := last.At.Sub(first.At)
	if dt <= 0 {
		return 0, false
	}
	return (last.Volts - first.Volts) / dt.Hours(), true
}

// LoadLevel estimates the overnight house load from the voltage drop rate.
// Only meaningful outside daylight hours; returns "unknown" otherwise.
func (e *Engine) LoadLevel(hist *history.Buffer, now time.Time) string {
	recent := hist.Recent(10)
	if len(recent) < 10 || e.byTime(now) {
		return "unknown"
	}
	rate, ok := voltsPerHour(recent)
	if !ok {
		return "unknown"
	}
	switch {
	case rate <= -e.settings.HeavyLoadDrop:
		return "heavy"
	case rate <= -e.settings.TypicalLoadDrop:
		return "typical"
	case rate <= -e.settings.LightLoadDrop:
		return "light"
	default:
		return "minimal"
	}
}
