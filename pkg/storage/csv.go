package storage

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"sync"
	"time"
)

var csvHeader = []string{
	"timestamp", "voltage", "charger_connected", "solar_detected",
	"in_preferred_hours", "in_avoid_hours", "charging_decision",
	"rate_type", "current_rate_cents", "has_ev_credit", "utility_season",
	"monthly_season", "solar_factor", "is_weekend",
}

// CSVLog appends rows to a local file, writing the header when the file is
// new. The file stays open across rows and every row is flushed, so a power
// cut loses at most the row being written.
type CSVLog struct {
	mu     sync.Mutex
	file   *os.File
	writer *csv.Writer
}

var _ PersistentLog = &CSVLog{}

// NewCSVLog opens or creates the log at path.
func NewCSVLog(path string) (*CSVLog, error) {
	info, err := os.Stat(path)
	fresh := os.IsNotExist(err) || (err == nil && info.Size() == 0)

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	l := &CSVLog{file: f, writer: csv.NewWriter(f)}
	if fresh {
		if err := l.writer.Write(csvHeader); err != nil {
			f.Close()
			return nil, fmt.Errorf("writing header to %s: %w", path, err)
		}
		l.writer.Flush()
		if err := l.writer.Error(); err != nil {
			f.Close()
			return nil, fmt.Errorf("flushing header to %s: %w", path, err)
		}
	}
	return l, nil
}

func (l *CSVLog) AppendRow(_ context.Context, row Row) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	record := []string{
		row.At.Format(time.RFC3339),
		strconv.FormatFloat(row.Volts, 'f', 3, 64),
		strconv.FormatBool(row.Connected),
		strconv.FormatBool(row.SolarActive),
		strconv.FormatBool(row.InPreferred),
		strconv.FormatBool(row.InAvoid),
		string(row.Reason),
		string(row.Rate.Tier),
		strconv.FormatFloat(row.Rate.RateCents, 'f', 2, 64),
		strconv.FormatBool(row.Rate.HasEVCredit),
		string(row.Season),
		row.MonthName,
		strconv.FormatFloat(row.SolarFactor, 'f', 2, 64),
		strconv.FormatBool(row.Weekend),
	}
	if err := l.writer.Write(record); err != nil {
		return fmt.Errorf("writing csv row: %w", err)
	}
	l.writer.Flush()
	if err := l.writer.Error(); err != nil {
		return fmt.Errorf("flushing csv row: %w", err)
	}
	return nil
}

func (l *CSVLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.writer.Flush()
	return l.file.Close()
}
