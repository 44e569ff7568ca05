// Package alert sends operator notifications with per-category cooldowns so
// a stuck condition emails once per cooldown instead of once per sample.
package alert

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/battsentry/battsentry/pkg/log"
	"github.com/battsentry/battsentry/pkg/types"
)

// Category identifies an alert stream with independent cooldown state.
type Category string

const (
	CategoryCriticalHighVoltage Category = "critical_high_voltage"
	CategoryCriticalLowVoltage  Category = "critical_low_voltage"
	CategoryLowVoltage          Category = "low_voltage"
	CategoryHighVoltage         Category = "high_voltage"
	CategoryCommFailure         Category = "comm_failure"
	CategoryRapidToggle         Category = "rapid_toggle"
	CategoryChargingFailure     Category = "charging_failure"
	CategoryVoltageStall        Category = "voltage_stall"
	CategoryInternetFailure     Category = "internet_failure"
)

// Sink delivers a single notification. Implementations must be safe for
// concurrent use.
type Sink interface {
	Send(ctx context.Context, subject, body string, critical bool) error
}

// VoltageContext carries charger state for alert message bodies.
type VoltageContext struct {
	Connected   bool
	SolarActive bool
}

type state struct {
	sent     bool
	lastSent time.Time
}

// Engine tracks which alerts are outstanding and enforces cooldowns. A
// failed send does not advance the cooldown clock, so delivery is retried
// on the next evaluation.
type Engine struct {
	settings *types.Settings
	sink     Sink
	nowFn    func() time.Time

	mu           sync.Mutex
	states       map[Category]*state
	recoverySent bool
}

// New returns an Engine delivering through sink. A nil sink disables
// notifications entirely.
func New(s *types.Settings, sink Sink) *Engine {
	return &Engine{
		settings: s,
		sink:     sink,
		nowFn:    time.Now,
		states:   map[Category]*state{},
	}
}

// SetNowFunc overrides the clock, for tests.
func (e *Engine) SetNowFunc(fn func() time.Time) {
	e.nowFn = fn
}

func (e *Engine) state(cat Category) *state {
	st, ok := e.states[cat]
	if !ok {
		st = &state{}
		e.states[cat] = st
	}
	return st
}

// send delivers if the category is due. Caller holds e.mu.
func (e *Engine) send(ctx context.Context, cat Category, subject, body string, critical bool, cooldown time.Duration) bool {
	st := e.state(cat)
	now := e.nowFn()
	if st.sent && now.Sub(st.lastSent) <= cooldown {
		return false
	}
	if err := e.sink.Send(ctx, subject, body, critical); err != nil {
		log.Ctx(ctx).Error("failed to send alert", "category", cat, "error", err)
		return false
	}
	st.sent = true
	st.lastSent = now
	log.Ctx(ctx).Info("alert sent", "category", cat, "subject", subject)
	return true
}

// Raise sends a notification for cat, respecting the configured cooldown.
// Returns true if a notification went out.
func (e *Engine) Raise(ctx context.Context, cat Category, subject, body string, critical bool, cooldown time.Duration) bool {
	if e.sink == nil {
		return false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.send(ctx, cat, subject, body, critical, cooldown)
}

// Resolve sends a one-time all-clear for cat if it was raised, and resets
// its state so the next occurrence alerts immediately.
func (e *Engine) Resolve(ctx context.Context, cat Category, subject, body string) bool {
	if e.sink == nil {
		return false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	st := e.state(cat)
	if !st.sent {
		return false
	}
	if err := e.sink.Send(ctx, subject, body, false); err != nil {
		log.Ctx(ctx).Error("failed to send resolution", "category", cat, "error", err)
		return false
	}
	st.sent = false
	st.lastSent = time.Time{}
	log.Ctx(ctx).Info("alert resolved", "category", cat, "subject", subject)
	return true
}

// EvaluateVoltage classifies the reading into alert bands and sends
// whatever is due. Both critical bands are checked unconditionally; the
// lesser bands and the recovery notice are mutually exclusive.
func (e *Engine) EvaluateVoltage(ctx context.Context, volts float64, vc VoltageContext) {
	if e.sink == nil {
		return
	}
	s := e.settings
	e.mu.Lock()
	defer e.mu.Unlock()

	if volts >= s.CriticalHighVolts {
		subject := fmt.Sprintf("CRITICAL HIGH VOLTAGE: battery at %.2fV", volts)
		body := fmt.Sprintf(
			"Battery voltage reached %.2fV, above the critical threshold of %.2fV.\n\n"+
				"The charger has been disconnected. Check the solar charge controller\n"+
				"settings and the battery for cell imbalance.\n\n%s",
			volts, s.CriticalHighVolts, e.statusLines(vc))
		if e.send(ctx, CategoryCriticalHighVoltage, subject, body, true, s.AlertCooldown) {
			e.recoverySent = false
		}
	}

	switch {
	case volts <= s.AlertCriticalVolts:
		minutes := (volts - s.InverterCutoff) / s.HeavyLoadDrop * 60
		subject := fmt.Sprintf("CRITICAL: battery at %.2fV", volts)
		body := fmt.Sprintf(
			"Battery voltage dropped to %.2fV, close to the inverter cutoff of %.2fV.\n\n"+
				"Reduce load immediately. Roughly %.0f minutes to shutdown at a heavy load.\n\n%s",
			volts, s.InverterCutoff, minutes, e.statusLines(vc))
		if e.send(ctx, CategoryCriticalLowVoltage, subject, body, true, s.AlertCooldown) {
			e.recoverySent = false
		}
	case volts <= s.AlertLowVolts:
		subject := fmt.Sprintf("Low battery: %.2fV", volts)
		body := fmt.Sprintf(
			"Battery voltage dropped to %.2fV.\n\nCritical threshold: %.2fV, inverter cutoff: %.2fV.\n\n%s",
			volts, s.AlertCriticalVolts, s.InverterCutoff, e.statusLines(vc))
		if e.send(ctx, CategoryLowVoltage, subject, body, false, s.AlertCooldown) {
			e.recoverySent = false
		}
	case volts >= s.HighSafetyVolts:
		subject := fmt.Sprintf("High voltage: battery at %.2fV, charger disconnected", volts)
		body := fmt.Sprintf(
			"Battery voltage reached %.2fV, above the safety threshold of %.2fV.\n\n"+
				"The charger was disconnected and reconnects below %.2fV. This is normal\n"+
				"when solar is generating into a full bank.\n\n%s",
			volts, s.HighSafetyVolts, s.LowSafetyVolts, e.statusLines(vc))
		if e.send(ctx, CategoryHighVoltage, subject, body, false, s.AlertCooldown) {
			e.recoverySent = false
		}
	case volts >= s.RecoveryVolts:
		e.recover(ctx, volts)
	}
}

// recover sends a single recovery notice once every outstanding voltage
// alert has cleared. Caller holds e.mu.
func (e *Engine) recover(ctx context.Context, volts float64) {
	if e.recoverySent {
		return
	}
	outstanding := false
	for _, cat := range []Category{
		CategoryCriticalHighVoltage, CategoryCriticalLowVoltage,
		CategoryLowVoltage, CategoryHighVoltage,
	} {
		if e.state(cat).sent {
			outstanding = true
			break
		}
	}
	if !outstanding {
		return
	}
	subject := fmt.Sprintf("Battery recovered: %.2fV", volts)
	body := fmt.Sprintf("Battery voltage is back to %.2fV, inside the normal range.", volts)
	if err := e.sink.Send(ctx, subject, body, false); err != nil {
		log.Ctx(ctx).Error("failed to send recovery notice", "error", err)
		return
	}
	for _, cat := range []Category{
		CategoryCriticalHighVoltage, CategoryCriticalLowVoltage,
		CategoryLowVoltage, CategoryHighVoltage,
	} {
		st := e.state(cat)
		st.sent = false
		st.lastSent = time.Time{}
	}
	e.recoverySent = true
	log.Ctx(ctx).Info("voltage recovery notice sent", "volts", volts)
}

func (e *Engine) statusLines(vc VoltageContext) string {
	charger := "DISCONNECTED"
	if vc.Connected {
		charger = "Connected"
	}
	solar := "Inactive"
	if vc.SolarActive {
		solar = "Active"
	}
	return fmt.Sprintf("Charger: %s\nSolar: %s", charger, solar)
}
