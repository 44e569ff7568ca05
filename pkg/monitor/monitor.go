// Package monitor runs the supervisory control loop: sample the bank
// voltage, infer solar, decide the charger state, drive the relay, and
// fan out alerts, persistence, and metrics. One loop, one writer of
// charger state; side tasks feed back through channels.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/battsentry/battsentry/pkg/alert"
	"github.com/battsentry/battsentry/pkg/decision"
	"github.com/battsentry/battsentry/pkg/history"
	"github.com/battsentry/battsentry/pkg/log"
	"github.com/battsentry/battsentry/pkg/rates"
	"github.com/battsentry/battsentry/pkg/relay"
	"github.com/battsentry/battsentry/pkg/solar"
	"github.com/battsentry/battsentry/pkg/storage"
	"github.com/battsentry/battsentry/pkg/toggle"
	"github.com/battsentry/battsentry/pkg/types"
	"github.com/battsentry/battsentry/pkg/voltage"
)

const chargingFailureCooldown = time.Hour

// Config carries the monitor's collaborators. Settings, Source, and Relay
// are required; the rest may be nil to disable the concern.
type Config struct {
	Settings   *types.Settings
	Source     voltage.Source
	Relay      relay.Output
	Store      storage.PersistentLog
	Alerts     *alert.Engine
	Supervisor Supervisor
	Registerer prometheus.Registerer
}

// Status is a point-in-time snapshot for the HTTP status endpoint.
type Status struct {
	At          time.Time          `json:"at"`
	Volts       float64            `json:"volts"`
	Charger     types.ChargerState `json:"charger"`
	SolarActive bool               `json:"solarActive"`
	Rate        types.RateInfo     `json:"rate"`
	Samples     int                `json:"samples"`
	CommFailing bool               `json:"commFailing"`
}

// Monitor owns the control loop. Construct with New, drive with Run.
type Monitor struct {
	settings *types.Settings
	source   voltage.Source
	relay    relay.Output
	store    storage.PersistentLog
	alerts   *alert.Engine
	sup      Supervisor

	sched    *rates.Schedule
	solarEng *solar.Engine
	decider  *decision.Engine
	guard    *toggle.Guard
	hist     *history.Buffer
	metrics  *metrics

	nowFn      func() time.Time
	internetCh chan bool

	mu          sync.RWMutex
	charger     types.ChargerState
	lastSample  types.VoltageSample
	solarActive bool

	firstFailureAt   time.Time
	chargeStartAt    time.Time
	chargeStartVolts float64
	internetFailures int
	lastRebootDate   string
	lastInvResetDate string
	lastStatusLog    time.Time
}

// New wires a Monitor from its collaborators.
func New(cfg Config) *Monitor {
	s := cfg.Settings
	sched := rates.New(s)
	reg := cfg.Registerer
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	sup := cfg.Supervisor
	if sup == nil {
		sup = &ExecSupervisor{}
	}
	alerts := cfg.Alerts
	if alerts == nil {
		alerts = alert.New(s, nil)
	}
	store := cfg.Store
	if store == nil {
		store = storage.NewMultiLog()
	}
	return &Monitor{
		settings:   s,
		source:     cfg.Source,
		relay:      cfg.Relay,
		store:      store,
		alerts:     alerts,
		sup:        sup,
		sched:      sched,
		solarEng:   solar.New(s),
		decider:    decision.New(s, sched),
		guard:      toggle.New(s, alerts),
		hist:       history.New(s.AnalysisWindow, s.SampleInterval),
		metrics:    newMetrics(reg),
		nowFn:      time.Now,
		internetCh: make(chan bool, 1),
	}
}

// Run drives the control loop until ctx is canceled or the relay becomes
// unresponsive. On any exit the relay is forced into the fail-safe
// connected state.
func (m *Monitor) Run(ctx context.Context) error {
	defer m.failSafe()

	m.mu.Lock()
	m.charger = types.ChargerState{Connected: m.relay.Connected(), LastChange: m.nowFn()}
	m.mu.Unlock()
	log.Ctx(ctx).Info("monitor started",
		"chargerConnected", m.charger.Connected,
		"sampleInterval", m.settings.SampleInterval)

	if m.settings.InternetCheckEnabled {
		go m.probeInternet(ctx)
	}

	if err := m.cycle(ctx); err != nil {
		return err
	}
	ticker := time.NewTicker(m.settings.SampleInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case up := <-m.internetCh:
			m.handleInternetResult(ctx, up)
		case <-ticker.C:
			if err := m.cycle(ctx); err != nil {
				return err
			}
		}
	}
}

// failSafe reconnects the charger unconditionally. Runs on every exit
// path; a dead controller must never strand the bank without charge.
func (m *Monitor) failSafe() {
	ctx := context.Background()
	if err := m.relay.SetConnected(ctx, true); err != nil {
		log.Ctx(ctx).Error("fail-safe relay reconnect failed", "error", err)
		return
	}
	log.Ctx(ctx).Info("relay forced to fail-safe connected state on exit")
}

func (m *Monitor) cycle(ctx context.Context) error {
	now := m.nowFn()
	m.metrics.cycles.Inc()

	volts, ok := m.readVoltage(ctx)
	if !ok {
		m.handleReadFailure(ctx, now)
		return nil
	}
	m.handleReadRecovery(ctx, now)

	sample := types.VoltageSample{At: now, Volts: volts, Valid: true}
	m.hist.Append(sample)

	res := m.solarEng.Evaluate(ctx, m.hist, now)
	m.mu.Lock()
	m.lastSample = sample
	m.solarActive = res.Active
	connected := m.charger.Connected
	m.mu.Unlock()

	d := m.decider.Decide(ctx, decision.Input{
		Volts:       volts,
		Now:         now,
		Connected:   connected,
		SolarActive: res.Active,
	})
	m.metrics.decisions.WithLabelValues(string(d.Reason)).Inc()
	if err := m.apply(ctx, d, volts, now); err != nil {
		return err
	}

	m.alerts.EvaluateVoltage(ctx, volts, alert.VoltageContext{
		Connected:   m.Connected(),
		SolarActive: res.Active,
	})
	m.checkChargingFailure(ctx, volts, now)
	m.checkVoltageStall(ctx, volts, now)
	m.maintenance(ctx, now)
	m.persist(ctx, sample, d, res.Active, now)

	rate := m.sched.Rate(now)
	m.metrics.volts.Set(volts)
	m.metrics.connected.Set(boolGauge(m.Connected()))
	m.metrics.solarActive.Set(boolGauge(res.Active))
	m.metrics.rateCents.Set(rate.RateCents)

	m.statusLog(ctx, now, volts, res, rate)
	return nil
}

// readVoltage spends the per-cycle retry budget. A failed cycle is
// absorbed; escalation happens on duration, not attempt count.
func (m *Monitor) readVoltage(ctx context.Context) (float64, bool) {
	var volts float64
	bo := backoff.WithMaxRetries(
		backoff.NewConstantBackOff(m.settings.ReadRetryDelay),
		uint64(m.settings.ReadRetries-1))
	err := backoff.Retry(func() error {
		v, err := m.source.Read(ctx)
		if err != nil {
			return err
		}
		volts = v
		return nil
	}, backoff.WithContext(bo, ctx))
	if err != nil {
		m.metrics.readFailures.Inc()
		log.Ctx(ctx).Warn("voltage read failed for cycle", "error", err)
		return 0, false
	}
	return volts, true
}

func (m *Monitor) handleReadFailure(ctx context.Context, now time.Time) {
	m.mu.Lock()
	if m.firstFailureAt.IsZero() {
		m.firstFailureAt = now
	}
	m.lastSample.Valid = false
	m.mu.Unlock()

	elapsed := now.Sub(m.firstFailureAt)
	if elapsed < m.settings.CommFailureWarn {
		return
	}
	critical := elapsed >= m.settings.CommFailureCritical
	subject := fmt.Sprintf("Voltage sensor unreachable for %s", elapsed.Round(time.Minute))
	body := fmt.Sprintf(
		"No voltage reading since %s. The charger holds its last state (%s)\n"+
			"until communication recovers.",
		m.firstFailureAt.Format(time.RFC3339), m.chargerStateWord())
	if critical {
		subject = "CRITICAL: " + subject
		body += "\n\nThe outage has passed the critical threshold. The controller is\nflying blind; check the serial cable and the meter."
	}
	m.alerts.Raise(ctx, alert.CategoryCommFailure, subject, body, critical, m.settings.AlertCooldown)
}

func (m *Monitor) handleReadRecovery(ctx context.Context, now time.Time) {
	if m.firstFailureAt.IsZero() {
		return
	}
	outage := now.Sub(m.firstFailureAt)
	m.mu.Lock()
	m.firstFailureAt = time.Time{}
	m.mu.Unlock()
	log.Ctx(ctx).Info("voltage readings recovered", "outage", outage)
	m.alerts.Resolve(ctx, alert.CategoryCommFailure,
		"Voltage sensor recovered",
		fmt.Sprintf("Readings resumed after an outage of %s.", outage.Round(time.Second)))
}

// apply is the single writer of charger state. A relay write failure
// forces the fail-safe connected state; if that too fails, the error is
// fatal.
func (m *Monitor) apply(ctx context.Context, d decision.Decision, volts float64, now time.Time) error {
	m.mu.Lock()
	current := m.charger.Connected
	m.mu.Unlock()

	if d.Connect == current {
		m.mu.Lock()
		m.charger.LastReason = d.Reason
		m.mu.Unlock()
		return nil
	}

	if err := m.relay.SetConnected(ctx, d.Connect); err != nil {
		log.Ctx(ctx).Error("relay write failed, forcing fail-safe state",
			"wanted", d.Connect, "reason", d.Reason, "error", err)
		if fsErr := m.relay.SetConnected(ctx, true); fsErr != nil {
			return fmt.Errorf("relay unresponsive after write failure: %w", fsErr)
		}
		m.setCharger(true, d.Reason, now)
		return nil
	}

	m.setCharger(d.Connect, d.Reason, now)
	m.metrics.toggles.Inc()
	if d.Connect {
		m.chargeStartAt = now
		m.chargeStartVolts = volts
	} else {
		m.chargeStartAt = time.Time{}
	}
	log.Ctx(ctx).Info("charger state changed",
		"connected", d.Connect, "reason", d.Reason, "volts", volts)
	m.guard.Record(ctx, d.Connect, d.Reason)
	return nil
}

func (m *Monitor) setCharger(connected bool, reason types.ReasonCode, now time.Time) {
	m.mu.Lock()
	m.charger = types.ChargerState{Connected: connected, LastChange: now, LastReason: reason}
	m.mu.Unlock()
}

// checkChargingFailure alerts when the charger has been connected long
// enough that voltage should have risen but has not, then power-cycles the
// inverter as a recovery attempt.
func (m *Monitor) checkChargingFailure(ctx context.Context, volts float64, now time.Time) {
	s := m.settings
	if !s.ChargeCheckEnabled || m.chargeStartAt.IsZero() {
		return
	}
	if now.Sub(m.chargeStartAt) < s.ChargeCheckAfter || volts >= s.ChargeCheckMaxVolts {
		return
	}
	rise := volts - m.chargeStartVolts
	if rise >= s.ChargeCheckMinRise {
		return
	}
	subject := fmt.Sprintf("Charging failure: only %+.2fV after %s connected", rise, now.Sub(m.chargeStartAt).Round(time.Minute))
	body := fmt.Sprintf(
		"The charger has been connected since %s but voltage moved %+.2fV\n"+
			"(now %.2fV). The charger, breaker, or inverter pass-through may have\n"+
			"failed. Attempting an inverter reset.",
		m.chargeStartAt.Format(time.RFC3339), rise, volts)
	if m.alerts.Raise(ctx, alert.CategoryChargingFailure, subject, body, true, chargingFailureCooldown) {
		if err := m.relay.ResetInverter(ctx, s.InverterResetHold); err != nil {
			log.Ctx(ctx).Error("inverter reset failed", "error", err)
		}
	}
}

// checkVoltageStall is the slower sibling of checkChargingFailure: a
// small-but-nonzero rise over a longer horizon usually means a weak
// charger rather than a dead one.
func (m *Monitor) checkVoltageStall(ctx context.Context, volts float64, now time.Time) {
	s := m.settings
	if !s.StallCheckEnabled || m.chargeStartAt.IsZero() {
		return
	}
	if now.Sub(m.chargeStartAt) < s.StallCheckAfter || volts >= s.StallCheckMaxVolts {
		return
	}
	rise := volts - m.chargeStartVolts
	if rise >= s.StallCheckMinRise {
		return
	}
	subject := fmt.Sprintf("Voltage stalled at %.2fV while charging", volts)
	body := fmt.Sprintf(
		"Voltage has risen only %+.2fV in %s of charging. The bank may be\n"+
			"sulfated, the charger undersized for the present load, or a cell is\n"+
			"dragging the pack down.",
		rise, now.Sub(m.chargeStartAt).Round(time.Minute))
	m.alerts.Raise(ctx, alert.CategoryVoltageStall, subject, body, false, s.StallCooldown)
}

// maintenance performs the once-a-day escalations inside their scheduled
// five minute windows.
func (m *Monitor) maintenance(ctx context.Context, now time.Time) {
	s := m.settings
	today := now.Format("2006-01-02")

	if s.DailyRebootEnabled && now.Hour() == s.DailyRebootHour && now.Minute() < 5 && m.lastRebootDate != today {
		m.lastRebootDate = today
		log.Ctx(ctx).Info("requesting scheduled daily reboot")
		if err := m.sup.Reboot(ctx); err != nil {
			log.Ctx(ctx).Error("scheduled reboot failed, continuing", "error", err)
		}
	}

	if s.InverterResetEnabled && now.Hour() == s.InverterResetHour && now.Minute() < 5 && m.lastInvResetDate != today {
		m.lastInvResetDate = today
		log.Ctx(ctx).Info("performing scheduled inverter reset")
		if err := m.relay.ResetInverter(ctx, s.InverterResetHold); err != nil {
			log.Ctx(ctx).Error("scheduled inverter reset failed", "error", err)
		}
	}
}

func (m *Monitor) persist(ctx context.Context, sample types.VoltageSample, d decision.Decision, solarActive bool, now time.Time) {
	month := m.settings.MonthFor(now)
	row := storage.Row{
		At:          sample.At,
		Volts:       sample.Volts,
		Connected:   m.Connected(),
		SolarActive: solarActive,
		InPreferred: m.sched.IsPreferred(now),
		InAvoid:     m.sched.IsAvoid(now),
		Reason:      d.Reason,
		Rate:        m.sched.Rate(now),
		Season:      m.settings.SeasonFor(now),
		MonthName:   month.Name,
		SolarFactor: month.SolarFactor,
		Weekend:     types.IsWeekend(now),
	}
	if err := m.store.AppendRow(ctx, row); err != nil {
		log.Ctx(ctx).Warn("failed to persist cycle row", "error", err)
	}
}

func (m *Monitor) statusLog(ctx context.Context, now time.Time, volts float64, res solar.Result, rate types.RateInfo) {
	if !m.lastStatusLog.IsZero() && now.Sub(m.lastStatusLog) < m.settings.StatusLogEvery {
		return
	}
	m.lastStatusLog = now
	log.Ctx(ctx).Info("status",
		"volts", volts,
		"chargerConnected", m.Connected(),
		"chargerReason", m.charger.LastReason,
		"solarActive", res.Active,
		"solarMethods", res.Methods,
		"rateTier", rate.Tier,
		"rateCents", rate.RateCents,
		"evCredit", rate.HasEVCredit,
		"loadLevel", m.solarEng.LoadLevel(m.hist, now),
		"samples", m.hist.Len(),
		"toggleCount", m.guard.RecentCount())
}

// probeInternet checks connectivity on its own ticker and reports results
// into the control loop. It never touches monitor state directly.
func (m *Monitor) probeInternet(ctx context.Context) {
	ticker := time.NewTicker(m.settings.InternetCheckEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		up := m.checkInternet(ctx)
		select {
		case m.internetCh <- up:
		case <-ctx.Done():
			return
		}
	}
}

// checkInternet tries a TCP dial to each configured host's DNS port; one
// success means connectivity.
func (m *Monitor) checkInternet(ctx context.Context) bool {
	dialer := net.Dialer{Timeout: m.settings.InternetCheckTimeout}
	for _, host := range m.settings.InternetCheckHosts {
		conn, err := dialer.DialContext(ctx, "tcp", net.JoinHostPort(host, "53"))
		if err == nil {
			conn.Close()
			return true
		}
	}
	return false
}

func (m *Monitor) handleInternetResult(ctx context.Context, up bool) {
	if up {
		if m.internetFailures >= m.settings.InternetResetThreshold {
			m.alerts.Resolve(ctx, alert.CategoryInternetFailure,
				"Internet connectivity restored",
				"Connectivity checks are passing again.")
		}
		m.internetFailures = 0
		return
	}
	m.internetFailures++
	log.Ctx(ctx).Warn("internet check failed", "consecutive", m.internetFailures)
	if m.internetFailures != m.settings.InternetResetThreshold {
		return
	}
	subject := fmt.Sprintf("Internet down: %d consecutive check failures", m.internetFailures)
	body := "Connectivity checks have been failing; requesting a network reset.\nAlerts may not have been delivered during the outage."
	m.alerts.Raise(ctx, alert.CategoryInternetFailure, subject, body, false, m.settings.AlertCooldown)
	if err := m.sup.ResetInternet(ctx); err != nil {
		log.Ctx(ctx).Error("internet reset failed", "error", err)
	}
}

// Connected returns the current charger state.
func (m *Monitor) Connected() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.charger.Connected
}

func (m *Monitor) chargerStateWord() string {
	if m.Connected() {
		return "connected"
	}
	return "disconnected"
}

// Status returns a snapshot for the HTTP status endpoint.
func (m *Monitor) Status() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	now := m.nowFn()
	return Status{
		At:          now,
		Volts:       m.lastSample.Volts,
		Charger:     m.charger,
		SolarActive: m.solarActive,
		Rate:        m.sched.Rate(now),
		Samples:     m.hist.Len(),
		CommFailing: !m.firstFailureAt.IsZero(),
	}
}

// History returns the buffered voltage samples, oldest first.
func (m *Monitor) History() []types.VoltageSample {
	return m.hist.All()
}

// Close releases the storage sinks and hardware handles. Call after Run
// returns; closing the relay drives it back to the fail-safe state.
func (m *Monitor) Close() error {
	var errs []error
	if m.store != nil {
		errs = append(errs, m.store.Close())
	}
	if m.source != nil {
		errs = append(errs, m.source.Close())
	}
	if m.relay != nil {
		errs = append(errs, m.relay.Close())
	}
	return errors.Join(errs...)
}
