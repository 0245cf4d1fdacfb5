package dispatcher

import (
	"errors"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/dyluth/signboard/pkg/signboard"
)

const metricsNamespace = "signboard"

// Metrics holds the dispatcher's Prometheus collectors. A nil *Metrics
// records nothing.
type Metrics struct {
	commands       *prometheus.CounterVec
	duration       *prometheus.HistogramVec
	signboards     prometheus.Gauge
	decodeFailures prometheus.Counter
}

// NewMetrics creates the collectors and registers them on registerer.
// Collectors that are already registered are reused.
func NewMetrics(registerer prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "commands_total",
			Help:      "Commands handled, by action and response code.",
		}, []string{"action", "code"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "command_duration_seconds",
			Help:      "Time to execute a command, including the store write.",
			Buckets:   []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25, .5, 1},
		}, []string{"action"}),
		signboards: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "signboards",
			Help:      "Signboards currently in the registry.",
		}),
		decodeFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "decode_failures_total",
			Help:      "Command envelopes that could not be decoded.",
		}),
	}

	if err := register(registerer, &m.commands); err != nil {
		return nil, err
	}
	if err := register(registerer, &m.duration); err != nil {
		return nil, err
	}
	if err := register(registerer, &m.signboards); err != nil {
		return nil, err
	}
	if err := register(registerer, &m.decodeFailures); err != nil {
		return nil, err
	}
	return m, nil
}

// register registers *c, swapping in the existing collector when an
// identical one is already registered.
func register[C prometheus.Collector](registerer prometheus.Registerer, c *C) error {
	if err := registerer.Register(*c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if !errors.As(err, &are) {
			return err
		}
		existing, ok := are.ExistingCollector.(C)
		if !ok {
			return err
		}
		*c = existing
	}
	return nil
}

func (m *Metrics) observeCommand(action signboard.Action, code int, elapsed time.Duration) {
	if m == nil {
		return
	}
	label := string(action)
	if !action.Known() {
		label = "unknown"
	}
	m.commands.WithLabelValues(label, strconv.Itoa(code)).Inc()
	m.duration.WithLabelValues(label).Observe(elapsed.Seconds())
}

func (m *Metrics) setSignboards(n int) {
	if m == nil {
		return
	}
	m.signboards.Set(float64(n))
}

func (m *Metrics) decodeFailed() {
	if m == nil {
		return
	}
	m.decodeFailures.Inc()
}
