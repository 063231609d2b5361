package imap

import "github.com/prometheus/client_golang/prometheus"

// Metrics is the set of Prometheus collectors the Connection Actor updates.
// A nil *Metrics is safe to use: every method is a no-op. The collectors of
// a Metrics built by NewMetrics are updated whether or not Register is
// called; Register only exports them to a Registerer.
type Metrics struct {
	commandLatency *prometheus.HistogramVec
	inFlight       prometheus.Gauge
	bytesRead      prometheus.Counter
	bytesWritten   prometheus.Counter
	parseErrors    prometheus.Counter
}

// NewMetrics builds an unregistered Metrics instance.
func NewMetrics() *Metrics {
	return &Metrics{
		commandLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "imapkit",
			Name:      "command_duration_seconds",
			Help:      "Time to complete one IMAP command, by verb.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"verb"}),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "imapkit",
			Name:      "commands_in_flight",
			Help:      "Number of commands currently awaiting a tagged response (0 or 1; the actor serializes commands).",
		}),
		bytesRead: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "imapkit",
			Name:      "bytes_read_total",
			Help:      "Total bytes read from the server connection.",
		}),
		bytesWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "imapkit",
			Name:      "bytes_written_total",
			Help:      "Total bytes written to the server connection.",
		}),
		parseErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "imapkit",
			Name:      "parse_errors_total",
			Help:      "Total responses the parser could not make sense of and discarded.",
		}),
	}
}

// Register adds every collector to reg. It is safe to call with nil, in
// which case Metrics stays usable but unexported to Prometheus.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	if m == nil || reg == nil {
		return nil
	}
	for _, c := range []prometheus.Collector{m.commandLatency, m.inFlight, m.bytesRead, m.bytesWritten, m.parseErrors} {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

func (m *Metrics) observeCommand(verb string, seconds float64) {
	if m == nil {
		return
	}
	m.commandLatency.WithLabelValues(verb).Observe(seconds)
}

func (m *Metrics) setInFlight(v float64) {
	if m == nil {
		return
	}
	m.inFlight.Set(v)
}

func (m *Metrics) addBytesRead(n int) {
	if m == nil {
		return
	}
	m.bytesRead.Add(float64(n))
}

func (m *Metrics) addBytesWritten(n int) {
	if m == nil {
		return
	}
	m.bytesWritten.Add(float64(n))
}

func (m *Metrics) incParseErrors() {
	if m == nil {
		return
	}
	m.parseErrors.Inc()
}
