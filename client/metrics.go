package client

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	statusOK          = "ok"
	statusError       = "error"
	statusServerError = "server_error"

	poolIdle  = "idle"
	poolInUse = "in_use"
)

// metrics is nil when no Registerer was configured, every method is safe to
// call on a nil receiver.
type metrics struct {
	commands *prometheus.CounterVec
	retries  *prometheus.CounterVec
	duration *prometheus.HistogramVec
	pool     *prometheus.GaugeVec
}

func newMetrics(reg prometheus.Registerer) *metrics {
	if reg == nil {
		return nil
	}

	return &metrics{
		commands: register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gredis_commands_total",
			Help: "Commands executed, by command and outcome.",
		}, []string{"command", "status"})),

		retries: register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gredis_command_retries_total",
			Help: "Commands that were sent a second time after a timeout or transport failure.",
		}, []string{"command"})),

		duration: register(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "gredis_command_duration_seconds",
			Help:    "Time from checkout to decoded reply.",
			Buckets: prometheus.DefBuckets,
		}, []string{"command"})),

		pool: register(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "gredis_pool_connections",
			Help: "Pooled connections by state.",
		}, []string{"state"})),
	}
}

// register returns the collector already registered under the same
// descriptor if there is one, so several clients can share a registry.
func register[T prometheus.Collector](reg prometheus.Registerer, c T) T {
	if err := reg.Register(c); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			if existing, ok := already.ExistingCollector.(T); ok {
				return existing
			}
		}

		panic(err)
	}

	return c
}

func (m *metrics) observe(command, status string, elapsed time.Duration) {
	if m == nil {
		return
	}

	m.commands.WithLabelValues(command, status).Inc()
	m.duration.WithLabelValues(command).Observe(elapsed.Seconds())
}

func (m *metrics) retried(command string) {
	if m == nil {
		return
	}

	m.retries.WithLabelValues(command).Inc()
}

func (m *metrics) poolAdd(state string, delta float64) {
	if m == nil {
		return
	}

	m.pool.WithLabelValues(state).Add(delta)
}
