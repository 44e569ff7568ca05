package monitor

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/levenlabs/go-lflag"
	"periph.io/x/host/v3"

	"github.com/battsentry/battsentry/pkg/alert"
	"github.com/battsentry/battsentry/pkg/relay"
	"github.com/battsentry/battsentry/pkg/storage"
	"github.com/battsentry/battsentry/pkg/types"
	"github.com/battsentry/battsentry/pkg/voltage"
)

// Runner is the monitor surface the cmd wires together: the control loop
// plus the snapshot accessors the HTTP layer serves.
type Runner interface {
	Run(ctx context.Context) error
	Status() Status
	History() []types.VoltageSample
	Close() error
}

// Configured sets up the Monitor based on flags. The GPIO pins, storage
// sinks, and mail sink are opened when flags are parsed; the serial port
// opens lazily on first read.
func Configured() Runner {
	settings := types.DefaultSettings()
	lflag.JSON(&settings, "settings", settings, "JSON overrides for the controller settings")

	device := lflag.String("voltage-device", "/dev/ttyUSB0", "Serial device carrying the VE.Direct feed")
	readTimeout := lflag.Duration("voltage-read-timeout", 5*time.Second, "Per-read timeout on the serial device")
	relayPin := lflag.String("relay-pin", "GPIO17", "Pin driving the charger relay (low means connected)")
	inverterPin := lflag.String("inverter-pin", "GPIO27", "Pin driving the inverter power control (low means on)")
	csvPath := lflag.String("csv-path", "battery_log.csv", "Path of the CSV status log (empty disables it)")

	var influxCfg storage.InfluxConfig
	lflag.JSON(&influxCfg, "influx", influxCfg, "InfluxDB connection as JSON (empty URL disables it)")
	var mqttCfg storage.MQTTConfig
	lflag.JSON(&mqttCfg, "mqtt", mqttCfg, "MQTT broker as JSON (empty host disables it)")
	var smtpCfg alert.SMTPConfig
	lflag.JSON(&smtpCfg, "smtp", smtpCfg, "SMTP relay for alert email as JSON (empty host disables email)")

	rebootCmd := lflag.String("reboot-command", "sudo reboot", "Command run for the scheduled daily reboot")
	internetResetCmd := lflag.String("internet-reset-command", "", "Command run when the connectivity check trips")

	var p struct{ Runner }

	lflag.Do(func() {
		if err := settings.Validate(); err != nil {
			panic(fmt.Sprintf("invalid settings: %v", err))
		}
		if _, err := host.Init(); err != nil {
			panic(fmt.Sprintf("gpio host init failed: %v", err))
		}
		out, err := relay.NewGPIO(*relayPin, *inverterPin)
		if err != nil {
			panic(fmt.Sprintf("opening relay pins: %v", err))
		}

		var sinks []storage.PersistentLog
		if *csvPath != "" {
			csvLog, err := storage.NewCSVLog(*csvPath)
			if err != nil {
				panic(fmt.Sprintf("opening csv log: %v", err))
			}
			sinks = append(sinks, csvLog)
		}
		if influxCfg.URL != "" {
			influxLog, err := storage.NewInfluxLog(influxCfg)
			if err != nil {
				panic(fmt.Sprintf("connecting to influxdb: %v", err))
			}
			sinks = append(sinks, influxLog)
		}
		if mqttCfg.Host != "" {
			mqttLog, err := storage.NewMQTTLog(context.Background(), mqttCfg)
			if err != nil {
				panic(fmt.Sprintf("connecting to mqtt broker: %v", err))
			}
			sinks = append(sinks, mqttLog)
		}

		var sink alert.Sink
		if smtpCfg.Host != "" {
			sink = alert.NewEmailSink(smtpCfg)
		}

		p.Runner = New(Config{
			Settings: &settings,
			Source:   voltage.NewVEDirect(*device, *readTimeout),
			Relay:    out,
			Store:    storage.NewMultiLog(sinks...),
			Alerts:   alert.New(&settings, sink),
			Supervisor: &ExecSupervisor{
				RebootCommand:        strings.Fields(*rebootCmd),
				InternetResetCommand: strings.Fields(*internetResetCmd),
			},
		})
	})

	return &p
}
