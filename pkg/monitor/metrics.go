package monitor

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type metrics struct {
	volts        prometheus.Gauge
	connected    prometheus.Gauge
	solarActive  prometheus.Gauge
	cycles       prometheus.Counter
	readFailures prometheus.Counter
	toggles      prometheus.Counter
	decisions    *prometheus.CounterVec
	rateCents    prometheus.Gauge
}

func newMetrics(reg prometheus.Registerer) *metrics {
	factory := promauto.With(reg)
	return &metrics{
		volts: factory.NewGauge(prometheus.GaugeOpts{
			Name: "battsentry_battery_volts",
			Help: "Most recent battery bank voltage.",
		}),
		connected: factory.NewGauge(prometheus.GaugeOpts{
			Name: "battsentry_charger_connected",
			Help: "Whether the charger relay is connected (1) or not (0).",
		}),
		solarActive: factory.NewGauge(prometheus.GaugeOpts{
			Name: "battsentry_solar_active",
			Help: "Whether solar generation is currently inferred (1) or not (0).",
		}),
		cycles: factory.NewCounter(prometheus.CounterOpts{
			Name: "battsentry_cycles_total",
			Help: "Sampling cycles completed.",
		}),
		readFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "battsentry_read_failures_total",
			Help: "Voltage read attempts that exhausted their retry budget.",
		}),
		toggles: factory.NewCounter(prometheus.CounterOpts{
			Name: "battsentry_charger_toggles_total",
			Help: "Charger relay state changes.",
		}),
		decisions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "battsentry_decisions_total",
			Help: "Decisions made, by reason.",
		}, []string{"reason"}),
		rateCents: factory.NewGauge(prometheus.GaugeOpts{
			Name: "battsentry_rate_cents",
			Help: "Current electricity rate in cents per kWh, including EV credit.",
		}),
	}
}

func boolGauge(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
