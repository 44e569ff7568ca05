// Package storage persists one row per sampling cycle so charging behavior
// can be audited and graphed after the fact. Rows fan out to a local CSV
// file, an InfluxDB bucket, and an MQTT topic; any subset can be enabled.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/battsentry/battsentry/pkg/types"
)

// Row is one sampling cycle's record.
type Row struct {
	At          time.Time        `json:"timestamp"`
	Volts       float64          `json:"voltage"`
	Connected   bool             `json:"chargerConnected"`
	SolarActive bool             `json:"solarDetected"`
	InPreferred bool             `json:"inPreferredHours"`
	InAvoid     bool             `json:"inAvoidHours"`
	Reason      types.ReasonCode `json:"chargingDecision"`
	Rate        types.RateInfo   `json:"rate"`
	Season      types.Season     `json:"utilitySeason"`
	MonthName   string           `json:"monthlySeason"`
	SolarFactor float64          `json:"solarFactor"`
	Weekend     bool             `json:"isWeekend"`
}

// PersistentLog receives one Row per cycle.
type PersistentLog interface {
	AppendRow(ctx context.Context, row Row) error
	Close() error
}

// MultiLog fans rows out to every sink. A failing sink does not stop the
// others; the joined error is returned for logging.
type MultiLog struct {
	sinks []PersistentLog
}

var _ PersistentLog = &MultiLog{}

// NewMultiLog returns a log writing to all the given sinks.
func NewMultiLog(sinks ...PersistentLog) *MultiLog {
	return &MultiLog{sinks: sinks}
}

func (m *MultiLog) AppendRow(ctx context.Context, row Row) error {
	var errs []error
	for _, s := range m.sinks {
		if err := s.AppendRow(ctx, row); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m *MultiLog) Close() error {
	var errs []error
	for _, s := range m.sinks {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
