package types

import "time"

// VoltageSample is a single battery voltage reading. Immutable once created.
type VoltageSample struct {
	At    time.Time `json:"at"`
	Volts float64   `json:"volts"`
	Valid bool      `json:"valid"`
}

// ChargerState tracks whether the shore charger is electrically connected.
// It has a single writer: the monitor loop's relay-apply step.
type ChargerState struct {
	Connected  bool       `json:"connected"`
	LastChange time.Time  `json:"lastChange"`
	LastReason ReasonCode `json:"lastReason"`
}

// ToggleEvent records one charger state transition.
type ToggleEvent struct {
	At        time.Time  `json:"at"`
	Connected bool       `json:"connected"`
	Reason    ReasonCode `json:"reason"`
}

// RateTier identifies the cost tier of the current time-of-use period.
type RateTier string

const (
	TierOffPeak        RateTier = "off_peak"
	TierMidPeak        RateTier = "mid_peak"
	TierPeak           RateTier = "peak"
	TierOffPeakWeekend RateTier = "off_peak_weekend"
)

// RateInfo is the derived cost context for a single instant. Never stored.
type RateInfo struct {
	Tier        RateTier `json:"tier"`
	RateCents   float64  `json:"rateCents"`
	HasEVCredit bool     `json:"hasEVCredit"`
}

// Season identifies the utility billing season.
type Season string

const (
	SeasonSummer Season = "summer"
	SeasonWinter Season = "winter"
)

// ReasonCode identifies which cascade rule produced a charge decision.
type ReasonCode string

const (
	ReasonCampingHighVoltage    ReasonCode = "CAMPING_HIGH_VOLTAGE"
	ReasonCampingAllowCharging  ReasonCode = "CAMPING_ALLOW_CHARGING"
	ReasonCampingHysteresis     ReasonCode = "CAMPING_HYSTERESIS"
	ReasonSafetyHighVoltage     ReasonCode = "SAFETY_HIGH_VOLTAGE"
	ReasonSafetyHighHysteresis  ReasonCode = "SAFETY_HIGH_VOLTAGE_HYSTERESIS"
	ReasonCriticalInverter      ReasonCode = "CRITICAL_INVERTER_PROTECTION"
	ReasonEmergencyLowVoltage   ReasonCode = "EMERGENCY_LOW_VOLTAGE"
	ReasonEVCreditPriority      ReasonCode = "EV_CREDIT_PRIORITY"
	ReasonEVCreditVoltageHigh   ReasonCode = "EV_CREDIT_VOLTAGE_HIGH"
	ReasonSolarActive           ReasonCode = "SOLAR_ACTIVE"
	ReasonSolarVoltageHigh      ReasonCode = "SOLAR_VOLTAGE_HIGH"
	ReasonMorningLowVoltage     ReasonCode = "MORNING_LOW_VOLTAGE_CHARGE"
	ReasonMorningWaitForSolar   ReasonCode = "MORNING_WAIT_FOR_SOLAR"
	ReasonEveningLowVoltage     ReasonCode = "EVENING_LOW_VOLTAGE_CHARGE"
	ReasonWaitingForEVCredit    ReasonCode = "WAITING_FOR_EV_CREDIT_PERIOD"
	ReasonLowVoltagePriority    ReasonCode = "LOW_VOLTAGE_PRIORITY"
	ReasonLowVoltageOverridePk  ReasonCode = "LOW_VOLTAGE_OVERRIDE_PEAK"
	ReasonLowVoltagePeakAvoid   ReasonCode = "LOW_VOLTAGE_PEAK_AVOIDANCE"
	ReasonLowVoltageCharged     ReasonCode = "LOW_VOLTAGE_CHARGED"
	ReasonWeekendLowVoltage     ReasonCode = "WEEKEND_LOW_VOLTAGE"
	ReasonWeekendWaitForCredit  ReasonCode = "WEEKEND_WAIT_FOR_EV_CREDIT"
	ReasonPreferredHours        ReasonCode = "PREFERRED_HOURS"
	ReasonVoltageHighSkipPref   ReasonCode = "VOLTAGE_HIGH_SKIP_PREFERRED"
	ReasonDaylightHours         ReasonCode = "DAYLIGHT_HOURS_POTENTIAL_SOLAR"
	ReasonVoltageHighSkipDay    ReasonCode = "VOLTAGE_HIGH_SKIP_DAYLIGHT"
	ReasonPeakRateAvoidance     ReasonCode = "PEAK_RATE_AVOIDANCE"
	ReasonHealthyWaitForCredit  ReasonCode = "VOLTAGE_HEALTHY_WAIT_FOR_EV_CREDIT"
	ReasonHysteresisDisconnect  ReasonCode = "HYSTERESIS_DISCONNECT"
	ReasonHysteresisStayOff     ReasonCode = "HYSTERESIS_STAY_DISCONNECTED"
	ReasonFallbackPreferred     ReasonCode = "FALLBACK_PREFERRED_HOURS"
	ReasonMaintainState         ReasonCode = "MAINTAIN_STATE"
)

// MaintenanceAction is an escalation the monitor hands to its supervisor
// instead of executing process control itself.
type MaintenanceAction string

const (
	MaintenanceNone          MaintenanceAction = ""
	MaintenanceDailyReboot   MaintenanceAction = "dailyReboot"
	MaintenanceInternetReset MaintenanceAction = "internetReset"
	MaintenanceInverterReset MaintenanceAction = "inverterReset"
)

// HourRange is a half-open [Start, End) hour-of-day window. Ranges where
// Start > End wrap past midnight.
type HourRange struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Contains reports whether the hour falls inside the window.
func (r HourRange) Contains(hour int) bool {
	if r.Start <= r.End {
		return hour >= r.Start && hour < r.End
	}
	return hour >= r.Start || hour < r.End
}

// InAnyRange reports whether the hour falls inside any of the windows.
func InAnyRange(ranges []HourRange, hour int) bool {
	for _, r := range ranges {
		if r.Contains(hour) {
			return true
		}
	}
	return false
}

// MonthProfile describes expected solar behavior for one calendar month.
type MonthProfile struct {
	Name          string  `json:"name"`
	SolarFactor   float64 `json:"solarFactor"`
	DaylightStart int     `json:"daylightStart"`
	DaylightEnd   int     `json:"daylightEnd"`
}

// CampingPeriod disables the smart cascade between two dates in favor of a
// single voltage threshold. Dates are inclusive, formatted YYYY-MM-DD.
type CampingPeriod struct {
	Start            string  `json:"start"`
	End              string  `json:"end"`
	VoltageThreshold float64 `json:"voltageThreshold"`
}

// CampingDateLayout is the date format camping periods are configured in.
const CampingDateLayout = "2006-01-02"

// ActivePeriod returns the first camping period containing the given day, in
// configuration order. Malformed periods are reported through onInvalid and
// skipped.
func ActivePeriod(periods []CampingPeriod, now time.Time, onInvalid func(p CampingPeriod, err error)) (CampingPeriod, bool) {
	day := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	for _, p := range periods {
		start, err := time.ParseInLocation(CampingDateLayout, p.Start, now.Location())
		if err != nil {
			if onInvalid != nil {
				onInvalid(p, err)
			}
			continue
		}
		end, err := time.ParseInLocation(CampingDateLayout, p.End, now.Location())
		if err != nil {
			if onInvalid != nil {
				onInvalid(p, err)
			}
			continue
		}
		if !day.Before(start) && !day.After(end) {
			return p, true
		}
	}
	return CampingPeriod{}, false
}
