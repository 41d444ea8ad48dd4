package metrics

import (
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// EngineMetrics tracks the rental engine's capacity and oracle health.
type EngineMetrics struct {
	rentedUnits    prometheus.Gauge
	maxUnits       prometheus.Gauge
	rentalsTotal   *prometheus.CounterVec
	unitsTotal     *prometheus.CounterVec
	oracleRefresh  *prometheus.CounterVec
	withdrawnTotal prometheus.Counter
}

var (
	engineMetricsOnce sync.Once
	engineMetrics     *EngineMetrics
)

func Engine() *EngineMetrics {
	return EngineWithConfig(Config{})
}

func EngineWithConfig(cfg Config) *EngineMetrics {
	engineMetricsOnce.Do(func() {
		engineMetrics = newEngineMetrics(prometheus.DefaultRegisterer, cfg)
	})
	return engineMetrics
}

func ResetEngineMetricsForTest() {
	engineMetricsOnce = sync.Once{}
	engineMetrics = nil
}

func newEngineMetrics(registerer prometheus.Registerer, cfg Config) *EngineMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	serviceName := strings.TrimSpace(cfg.ServiceName)
	if serviceName == "" {
		serviceName = "rentd"
	}
	environment := strings.TrimSpace(cfg.Environment)
	if environment == "" {
		environment = "unknown"
	}

	constLabels := prometheus.Labels{
		"service": serviceName,
		"env":     environment,
	}

	rentedUnits := prometheus.NewGauge(prometheus.GaugeOpts{
		Name:        "rentd_capacity_rented_units",
		Help:        "Total units currently reserved against the global ceiling.",
		ConstLabels: constLabels,
	})
	maxUnits := prometheus.NewGauge(prometheus.GaugeOpts{
		Name:        "rentd_capacity_max_units",
		Help:        "Configured global unit ceiling.",
		ConstLabels: constLabels,
	})
	rentalsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "rentd_rentals_total",
		Help:        "Completed rental operations by payer kind.",
		ConstLabels: constLabels,
	}, []string{"kind"})
	unitsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "rentd_rented_units_total",
		Help:        "Units reserved by payer kind.",
		ConstLabels: constLabels,
	}, []string{"kind"})
	oracleRefresh := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "rentd_oracle_refresh_total",
		Help:        "Oracle refresh attempts by outcome.",
		ConstLabels: constLabels,
	}, []string{"outcome"})
	withdrawnTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name:        "rentd_withdrawals_total",
		Help:        "Completed treasury withdrawals.",
		ConstLabels: constLabels,
	})

	for _, collector := range []prometheus.Collector{
		rentedUnits, maxUnits, rentalsTotal, unitsTotal, oracleRefresh, withdrawnTotal,
	} {
		if err := registerer.Register(collector); err != nil {
			if already, ok := err.(prometheus.AlreadyRegisteredError); ok {
				_ = already
				continue
			}
		}
	}

	return &EngineMetrics{
		rentedUnits:    rentedUnits,
		maxUnits:       maxUnits,
		rentalsTotal:   rentalsTotal,
		unitsTotal:     unitsTotal,
		oracleRefresh:  oracleRefresh,
		withdrawnTotal: withdrawnTotal,
	}
}

func (m *EngineMetrics) SetCapacity(rented, max uint64) {
	if m == nil {
		return
	}
	m.rentedUnits.Set(float64(rented))
	m.maxUnits.Set(float64(max))
}

func (m *EngineMetrics) IncRental(kind string, units uint64) {
	if m == nil {
		return
	}
	m.rentalsTotal.WithLabelValues(kind).Inc()
	m.unitsTotal.WithLabelValues(kind).Add(float64(units))
}

func (m *EngineMetrics) IncOracleRefresh(outcome string) {
	if m == nil {
		return
	}
	m.oracleRefresh.WithLabelValues(outcome).Inc()
}

func (m *EngineMetrics) IncWithdrawal() {
	if m == nil {
		return
	}
	m.withdrawnTotal.Inc()
}
