// Package toggle watches charger state changes for relay-destroying
// oscillation. Rapid toggling usually means two rules are fighting over a
// hysteresis band, so the guard alerts the operator instead of intervening.
package toggle

import (
	"context"
	"fmt"
	"time"

	"github.com/battsentry/battsentry/pkg/alert"
	"github.com/battsentry/battsentry/pkg/log"
	"github.com/battsentry/battsentry/pkg/types"
)

const maxTracked = 10

// Guard detects bursts of charger state changes. Not safe for concurrent
// use; the monitor records from a single goroutine.
type Guard struct {
	settings *types.Settings
	alerts   *alert.Engine
	nowFn    func() time.Time

	events    []types.ToggleEvent
	lastAlert time.Time
}

// New returns a Guard reporting through alerts.
func New(s *types.Settings, alerts *alert.Engine) *Guard {
	return &Guard{settings: s, alerts: alerts, nowFn: time.Now}
}

// Record notes a charger state change and alerts if the recent rate is
// excessive. Returns true when an alert went out.
func (g *Guard) Record(ctx context.Context, connected bool, reason types.ReasonCode) bool {
	now := g.nowFn()
	g.events = append(g.events, types.ToggleEvent{At: now, Connected: connected, Reason: reason})
	if len(g.events) > maxTracked {
		g.events = g.events[len(g.events)-maxTracked:]
	}

	recent := 0
	cutoff := now.Add(-g.settings.RapidToggleWindow)
	for _, ev := range g.events {
		if !ev.At.Before(cutoff) {
			recent++
		}
	}
	if recent < g.settings.RapidToggleCount {
		return false
	}
	if !g.lastAlert.IsZero() && now.Sub(g.lastAlert) < g.settings.RapidToggleCooldown {
		return false
	}

	log.Ctx(ctx).Warn("rapid charger toggling detected",
		"count", recent,
		"window", g.settings.RapidToggleWindow,
		"lastReason", reason)
	subject := fmt.Sprintf("Rapid charger toggling: %d changes in %s", recent, g.settings.RapidToggleWindow)
	body := fmt.Sprintf(
		"The charger changed state %d times within %s, last reason %s.\n\n"+
			"Two decision rules are likely fighting over a hysteresis band.\n"+
			"Review the recent decision log and threshold configuration.",
		recent, g.settings.RapidToggleWindow, reason)
	if g.alerts.Raise(ctx, alert.CategoryRapidToggle, subject, body, false, g.settings.RapidToggleCooldown) {
		g.lastAlert = now
		return true
	}
	return false
}

// RecentCount returns the number of state changes inside the watch window.
func (g *Guard) RecentCount() int {
	cutoff := g.nowFn().Add(-g.settings.RapidToggleWindow)
	n := 0
	for _, ev := range g.events {
		if !ev.At.Before(cutoff) {
			n++
		}
	}
	return n
}
