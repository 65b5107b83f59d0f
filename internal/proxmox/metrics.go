package proxmox

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics instruments authentication and polls. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	authAttempts   *prometheus.CounterVec
	polls          *prometheus.CounterVec
	pollDuration   *prometheus.HistogramVec
	fetchFailures  *prometheus.CounterVec
	hypervisors    *prometheus.GaugeVec
	guestsObserved *prometheus.GaugeVec
}

// NewMetrics creates the collectors and registers them with reg
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		authAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pvemap_auth_attempts_total",
			Help: "Ticket requests against the cluster, by result",
		}, []string{"cluster", "result"}),
		polls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pvemap_polls_total",
			Help: "Topology polls, by result",
		}, []string{"cluster", "result"}),
		pollDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "pvemap_poll_duration_seconds",
			Help:    "Duration of a full topology poll",
			Buckets: prometheus.DefBuckets,
		}, []string{"cluster"}),
		fetchFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pvemap_guest_fetch_failures_total",
			Help: "Per-node guest listings that failed and were reported empty",
		}, []string{"cluster", "node", "kind"}),
		hypervisors: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "pvemap_hypervisors",
			Help: "Hypervisors in the last successful poll",
		}, []string{"cluster"}),
		guestsObserved: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "pvemap_guests",
			Help: "Guests in the last successful poll",
		}, []string{"cluster"}),
	}

	if reg != nil {
		reg.MustRegister(m.authAttempts, m.polls, m.pollDuration, m.fetchFailures, m.hypervisors, m.guestsObserved)
	}
	return m
}

func resultLabel(ok bool) string {
	if ok {
		return "success"
	}
	return "failure"
}

func (m *Metrics) observeAuth(cluster string, ok bool) {
	if m == nil {
		return
	}
	m.authAttempts.WithLabelValues(cluster, resultLabel(ok)).Inc()
}

func (m *Metrics) observeFetchFailure(cluster, node string, kind GuestKind) {
	if m == nil {
		return
	}
	m.fetchFailures.WithLabelValues(cluster, node, string(kind)).Inc()
}

func (m *Metrics) observePoll(cluster string, started time.Time, hypervisors, guests int, err error) {
	if m == nil {
		return
	}
	m.pollDuration.WithLabelValues(cluster).Observe(time.Since(started).Seconds())
	m.polls.WithLabelValues(cluster, resultLabel(err == nil)).Inc()
	if err == nil {
		m.hypervisors.WithLabelValues(cluster).Set(float64(hypervisors))
		m.guestsObserved.WithLabelValues(cluster).Set(float64(guests))
	}
}
