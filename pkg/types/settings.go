package types

import (
	"fmt"
	"time"
)

// Settings is the full runtime configuration for the monitor. Every threshold
// and window in the decision cascade is configurable; the defaults describe a
// 24V 6S bank with an 18kWh capacity and up to 1kW of load.
type Settings struct {
	// Sampling
	SampleInterval  time.Duration `json:"sampleInterval"`
	AnalysisWindow  time.Duration `json:"analysisWindow"`
	StatusLogEvery  time.Duration `json:"statusLogEvery"`
	ReadRetries     int           `json:"readRetries"`
	ReadRetryDelay  time.Duration `json:"readRetryDelay"`

	// Safety thresholds (volts)
	HighSafetyVolts   float64 `json:"highSafetyVolts"`   // disconnect at or above
	LowSafetyVolts    float64 `json:"lowSafetyVolts"`    // reconnect hysteresis bound
	CriticalLowVolts  float64 `json:"criticalLowVolts"`  // inverter protection
	EmergencyLowVolts float64 `json:"emergencyLowVolts"` // always charge below
	LowPriorityVolts  float64 `json:"lowPriorityVolts"`  // prefer charging below, even at peak
	NormalCeilVolts   float64 `json:"normalCeilVolts"`   // stop opportunistic charging above
	HealthyVolts      float64 `json:"healthyVolts"`      // wait for better rates above
	RecoveryVolts     float64 `json:"recoveryVolts"`     // healthy-logic gate / alert recovery
	InverterCutoff    float64 `json:"inverterCutoff"`

	// Cascade band offsets (volts, relative to LowPriorityVolts unless noted)
	MorningStopDelta    float64 `json:"morningStopDelta"`    // morning band upper = low priority + delta
	EveningWaitVolts    float64 `json:"eveningWaitVolts"`    // evening band lower bound
	EveningStopDelta    float64 `json:"eveningStopDelta"`    // evening band upper = wait + delta
	PeakOverrideDelta   float64 `json:"peakOverrideDelta"`   // charge at peak below low priority - delta
	ChargedStopDelta    float64 `json:"chargedStopDelta"`    // stop after charge at low priority + delta
	WeekendStopDelta    float64 `json:"weekendStopDelta"`    // weekend disconnect at low priority + delta
	WeekendStartDelta   float64 `json:"weekendStartDelta"`   // weekend reconnect at low priority + delta
	PreferredStartDelta float64 `json:"preferredStartDelta"` // preferred-hours reconnect bound
	EveningHealthyDelta float64 `json:"eveningHealthyDelta"` // healthy evening wait bound

	// Time windows (hour of day, half-open)
	EVCreditWindow HourRange   `json:"evCreditWindow"`
	MorningWindow  HourRange   `json:"morningWindow"`
	EveningWindow  HourRange   `json:"eveningWindow"`
	PreferredHours []HourRange `json:"preferredHours"`
	AvoidHours     []HourRange `json:"avoidHours"`

	// Rates (cents per kWh)
	SummerMonths     HourRange `json:"summerMonths"` // months, not hours: [Start, End] inclusive
	SummerOffPeak    float64   `json:"summerOffPeak"`
	SummerMidPeak    float64   `json:"summerMidPeak"`
	SummerPeak       float64   `json:"summerPeak"`
	WinterOffPeak    float64   `json:"winterOffPeak"`
	WinterPeak       float64   `json:"winterPeak"`
	EVCreditCents    float64   `json:"evCreditCents"`
	SummerMidWindow  HourRange `json:"summerMidWindow"`
	PeakWindow       HourRange `json:"peakWindow"`

	// Solar inference
	SolarDetection       bool          `json:"solarDetection"`
	RiseRateVoltsPerHour float64       `json:"riseRateVoltsPerHour"`
	TrendSamples         int           `json:"trendSamples"`
	PlateauVolts         float64       `json:"plateauVolts"`
	PlateauMinDuration   time.Duration `json:"plateauMinDuration"`
	StrongGenVolts       float64       `json:"strongGenVolts"`
	LightLoadDrop        float64       `json:"lightLoadDrop"`   // V/hour
	TypicalLoadDrop      float64       `json:"typicalLoadDrop"` // V/hour
	HeavyLoadDrop        float64       `json:"heavyLoadDrop"`   // V/hour
	Months               [12]MonthProfile `json:"months"`

	// Alerts
	AlertCooldown        time.Duration `json:"alertCooldown"`
	CriticalHighVolts    float64       `json:"criticalHighVolts"`
	AlertLowVolts        float64       `json:"alertLowVolts"`
	AlertCriticalVolts   float64       `json:"alertCriticalVolts"`
	CommFailureWarn      time.Duration `json:"commFailureWarn"`
	CommFailureCritical  time.Duration `json:"commFailureCritical"`
	RapidToggleCooldown  time.Duration `json:"rapidToggleCooldown"`
	RapidToggleWindow    time.Duration `json:"rapidToggleWindow"`
	RapidToggleCount     int           `json:"rapidToggleCount"`

	// Charging verification
	ChargeCheckEnabled     bool          `json:"chargeCheckEnabled"`
	ChargeCheckAfter       time.Duration `json:"chargeCheckAfter"`
	ChargeCheckMinRise     float64       `json:"chargeCheckMinRise"`
	ChargeCheckMaxVolts    float64       `json:"chargeCheckMaxVolts"`
	StallCheckEnabled      bool          `json:"stallCheckEnabled"`
	StallCheckAfter        time.Duration `json:"stallCheckAfter"`
	StallCheckMinRise      float64       `json:"stallCheckMinRise"`
	StallCheckMaxVolts     float64       `json:"stallCheckMaxVolts"`
	StallCooldown          time.Duration `json:"stallCooldown"`

	// Maintenance escalations
	DailyRebootEnabled   bool          `json:"dailyRebootEnabled"`
	DailyRebootHour      int           `json:"dailyRebootHour"`
	InverterResetEnabled bool          `json:"inverterResetEnabled"`
	InverterResetHour    int           `json:"inverterResetHour"`
	InverterResetHold    time.Duration `json:"inverterResetHold"`

	// Internet health
	InternetCheckEnabled   bool          `json:"internetCheckEnabled"`
	InternetCheckEvery     time.Duration `json:"internetCheckEvery"`
	InternetCheckHosts     []string      `json:"internetCheckHosts"`
	InternetCheckTimeout   time.Duration `json:"internetCheckTimeout"`
	InternetResetThreshold int           `json:"internetResetThreshold"`

	// Camping overrides
	CampingPeriods  []CampingPeriod `json:"campingPeriods"`
	DefaultCampingV float64         `json:"defaultCampingVolts"`
}

// DefaultSettings returns the stock configuration for a 24V bank.
func DefaultSettings() Settings {
	return Settings{
		SampleInterval: time.Minute,
		AnalysisWindow: time.Hour,
		StatusLogEvery: 5 * time.Minute,
		ReadRetries:    3,
		ReadRetryDelay: 2 * time.Second,

		HighSafetyVolts:   24.8,
		LowSafetyVolts:    23.5,
		CriticalLowVolts:  20.6,
		EmergencyLowVolts: 21.0,
		LowPriorityVolts:  21.2,
		NormalCeilVolts:   23.5,
		HealthyVolts:      23.0,
		RecoveryVolts:     21.5,
		InverterCutoff:    20.3,

		MorningStopDelta:    1.3,
		EveningWaitVolts:    20.5,
		EveningStopDelta:    1.0,
		PeakOverrideDelta:   0.2,
		ChargedStopDelta:    1.3,
		WeekendStopDelta:    1.0,
		WeekendStartDelta:   0.2,
		PreferredStartDelta: 1.8,
		EveningHealthyDelta: 1.2,

		EVCreditWindow: HourRange{Start: 0, End: 6},
		MorningWindow:  HourRange{Start: 6, End: 10},
		EveningWindow:  HourRange{Start: 20, End: 24},
		PreferredHours: []HourRange{{Start: 0, End: 6}, {Start: 10, End: 17}},
		AvoidHours:     []HourRange{{Start: 17, End: 20}},

		SummerMonths:    HourRange{Start: 6, End: 9},
		SummerOffPeak:   15.05,
		SummerMidPeak:   20.77,
		SummerPeak:      36.55,
		WinterOffPeak:   12.48,
		WinterPeak:      17.24,
		EVCreditCents:   -1.50,
		SummerMidWindow: HourRange{Start: 12, End: 17},
		PeakWindow:      HourRange{Start: 17, End: 20},

		SolarDetection:       true,
		RiseRateVoltsPerHour: 0.1,
		TrendSamples:         10,
		PlateauVolts:         23.8,
		PlateauMinDuration:   30 * time.Minute,
		StrongGenVolts:       24.2,
		LightLoadDrop:        0.03,
		TypicalLoadDrop:      0.08,
		HeavyLoadDrop:        0.15,
		Months: [12]MonthProfile{
			{Name: "Deep Winter", SolarFactor: 0.25, DaylightStart: 8, DaylightEnd: 17},
			{Name: "Late Winter", SolarFactor: 0.35, DaylightStart: 7, DaylightEnd: 18},
			{Name: "Early Spring", SolarFactor: 0.55, DaylightStart: 7, DaylightEnd: 18},
			{Name: "Mid Spring", SolarFactor: 0.75, DaylightStart: 6, DaylightEnd: 19},
			{Name: "Late Spring", SolarFactor: 0.90, DaylightStart: 6, DaylightEnd: 20},
			{Name: "Early Summer", SolarFactor: 1.00, DaylightStart: 5, DaylightEnd: 20},
			{Name: "Peak Summer", SolarFactor: 1.00, DaylightStart: 5, DaylightEnd: 20},
			{Name: "Late Summer", SolarFactor: 0.95, DaylightStart: 6, DaylightEnd: 19},
			{Name: "Early Fall", SolarFactor: 0.80, DaylightStart: 7, DaylightEnd: 18},
			{Name: "Mid Fall", SolarFactor: 0.60, DaylightStart: 7, DaylightEnd: 17},
			{Name: "Late Fall", SolarFactor: 0.40, DaylightStart: 8, DaylightEnd: 17},
			{Name: "Early Winter", SolarFactor: 0.20, DaylightStart: 8, DaylightEnd: 17},
		},

		AlertCooldown:       30 * time.Minute,
		CriticalHighVolts:   25.0,
		AlertLowVolts:       21.0,
		AlertCriticalVolts:  20.8,
		CommFailureWarn:     10 * time.Minute,
		CommFailureCritical: 30 * time.Minute,
		RapidToggleCooldown: time.Hour,
		RapidToggleWindow:   5 * time.Minute,
		RapidToggleCount:    4,

		ChargeCheckEnabled:  true,
		ChargeCheckAfter:    30 * time.Minute,
		ChargeCheckMinRise:  0.2,
		ChargeCheckMaxVolts: 24.0,
		StallCheckEnabled:   true,
		StallCheckAfter:     45 * time.Minute,
		StallCheckMinRise:   0.1,
		StallCheckMaxVolts:  24.0,
		StallCooldown:       4 * time.Hour,

		DailyRebootEnabled:   false,
		DailyRebootHour:      4,
		InverterResetEnabled: false,
		InverterResetHour:    5,
		InverterResetHold:    5 * time.Second,

		InternetCheckEnabled:   false,
		InternetCheckEvery:     5 * time.Minute,
		InternetCheckHosts:     []string{"8.8.8.8", "1.1.1.1"},
		InternetCheckTimeout:   5 * time.Second,
		InternetResetThreshold: 6,

		DefaultCampingV: 24.6,
	}
}

// MonthFor returns the solar profile for the month of t.
func (s *Settings) MonthFor(t time.Time) MonthProfile {
	return s.Months[int(t.Month())-1]
}

// SeasonFor returns the utility billing season for the month of t.
func (s *Settings) SeasonFor(t time.Time) Season {
	m := int(t.Month())
	if m >= s.SummerMonths.Start && m <= s.SummerMonths.End {
		return SeasonSummer
	}
	return SeasonWinter
}

// IsWeekend reports whether t falls on a Saturday or Sunday.
func IsWeekend(t time.Time) bool {
	wd := t.Weekday()
	return wd == time.Saturday || wd == time.Sunday
}

// Validate checks the required fields. Thresholds that would make the
// history capacity non-positive or invert the safety bands are fatal;
// camping periods are only checked lazily since a bad optional entry must
// not stop the monitor.
func (s *Settings) Validate() error {
	if s.SampleInterval <= 0 {
		return fmt.Errorf("sampleInterval must be positive, got %s", s.SampleInterval)
	}
	if s.AnalysisWindow < s.SampleInterval {
		return fmt.Errorf("analysisWindow %s shorter than sampleInterval %s", s.AnalysisWindow, s.SampleInterval)
	}
	if s.HighSafetyVolts <= s.LowSafetyVolts {
		return fmt.Errorf("highSafetyVolts %.2f must exceed lowSafetyVolts %.2f", s.HighSafetyVolts, s.LowSafetyVolts)
	}
	if s.CriticalLowVolts > s.EmergencyLowVolts {
		return fmt.Errorf("criticalLowVolts %.2f must not exceed emergencyLowVolts %.2f", s.CriticalLowVolts, s.EmergencyLowVolts)
	}
	if s.ReadRetries < 1 {
		return fmt.Errorf("readRetries must be at least 1, got %d", s.ReadRetries)
	}
	for i, m := range s.Months {
		if m.SolarFactor < 0 || m.SolarFactor > 1 {
			return fmt.Errorf("month %d solarFactor %.2f outside [0,1]", i+1, m.SolarFactor)
		}
	}
	return nil
}
