package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Résultats d'un commit de commande.
const (
	CommitCreated           = "created"
	CommitDuplicate         = "duplicate"
	CommitRejected          = "rejected"
	CommitPersistenceFailed = "persistence_failed"
)

type Metrics struct {
	Requests  *prometheus.CounterVec
	LatencyMS *prometheus.HistogramVec
	Commits   *prometheus.CounterVec
	Intents   *prometheus.CounterVec
	gatherer  prometheus.Gatherer
}

// New enregistre les collecteurs dans un registre propre au service.
func New(service string) *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		Requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cedra",
			Subsystem: service,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests.",
		}, []string{"handler", "status"}),
		LatencyMS: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "cedra",
			Subsystem: service,
			Name:      "http_request_duration_ms",
			Help:      "HTTP request latency in milliseconds.",
			Buckets:   []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
		}, []string{"handler"}),
		Commits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cedra",
			Subsystem: service,
			Name:      "order_commits_total",
			Help:      "Order commit attempts by result.",
		}, []string{"method", "result"}),
		Intents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cedra",
			Subsystem: service,
			Name:      "payment_intents_total",
			Help:      "Payment intents created, by provider and outcome.",
		}, []string{"provider", "outcome"}),
		gatherer: reg,
	}
	reg.MustRegister(m.Requests, m.LatencyMS, m.Commits, m.Intents)
	return m
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

// Middleware compte les requêtes par route gin.
func (m *Metrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.Requests.WithLabelValues(route, strconv.Itoa(c.Writer.Status())).Inc()
		m.LatencyMS.WithLabelValues(route).Observe(float64(time.Since(start).Milliseconds()))
	}
}

// ObserveCommit tolère un *Metrics nil (tests, outils CLI).
func (m *Metrics) ObserveCommit(method, result string) {
	if m == nil {
		return
	}
	m.Commits.WithLabelValues(method, result).Inc()
}

func (m *Metrics) ObserveIntent(provider, outcome string) {
	if m == nil {
		return
	}
	m.Intents.WithLabelValues(provider, outcome).Inc()
}
