package storage

import (
	"context"
	"fmt"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
)

// InfluxConfig configures the InfluxDB sink.
type InfluxConfig struct {
	URL         string `json:"url"`
	Token       string `json:"token"`
	Org         string `json:"org"`
	Bucket      string `json:"bucket"`
	Measurement string `json:"measurement"`
}

// InfluxLog writes one point per row to an InfluxDB bucket.
type InfluxLog struct {
	client      influxdb2.Client
	writeAPI    api.WriteAPIBlocking
	measurement string
}

var _ PersistentLog = &InfluxLog{}

// NewInfluxLog connects to the given InfluxDB instance.
func NewInfluxLog(cfg InfluxConfig) (*InfluxLog, error) {
	if cfg.URL == "" || cfg.Token == "" || cfg.Org == "" || cfg.Bucket == "" {
		return nil, fmt.Errorf("influx config incomplete")
	}
	measurement := cfg.Measurement
	if measurement == "" {
		measurement = "battery_status"
	}
	client := influxdb2.NewClient(cfg.URL, cfg.Token)
	return &InfluxLog{
		client:      client,
		writeAPI:    client.WriteAPIBlocking(cfg.Org, cfg.Bucket),
		measurement: measurement,
	}, nil
}

func (l *InfluxLog) AppendRow(ctx context.Context, row Row) error {
	tags := map[string]string{
		"decision":       string(row.Reason),
		"rate_type":      string(row.Rate.Tier),
		"utility_season": string(row.Season),
		"monthly_season": row.MonthName,
	}
	fields := map[string]interface{}{
		"voltage":            row.Volts,
		"charger_connected":  row.Connected,
		"solar_detected":     row.SolarActive,
		"in_preferred_hours": row.InPreferred,
		"in_avoid_hours":     row.InAvoid,
		"current_rate_cents": row.Rate.RateCents,
		"has_ev_credit":      row.Rate.HasEVCredit,
		"solar_factor":       row.SolarFactor,
		"is_weekend":         row.Weekend,
	}
	point := influxdb2.NewPoint(l.measurement, tags, fields, row.At)
	if err := l.writeAPI.WritePoint(ctx, point); err != nil {
		return fmt.Errorf("writing influx point: %w", err)
	}
	return nil
}

func (l *InfluxLog) Close() error {
	l.client.Close()
	return nil
}
