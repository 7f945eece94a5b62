// Package metrics exposes Prometheus counters for generation and gallery activity.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder is what services report to. Nop satisfies it for tests.
type Recorder interface {
	RecordGeneration(result string, duration time.Duration)
	RecordDesignAppended()
	RecordDesignRemoved()
	SubscriberAdded()
	SubscriberRemoved()
}

// Generation results used as label values.
const (
	ResultSuccess      = "success"
	ResultHTTPError    = "http_error"
	ResultEmptyResult  = "empty_result"
	ResultNetworkError = "network_error"
)

type Collector struct {
	generations       *prometheus.CounterVec
	generationLatency prometheus.Histogram
	designsAppended   prometheus.Counter
	designsRemoved    prometheus.Counter
	subscribers       prometheus.Gauge
}

func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		generations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dreamhome_generations_total",
			Help: "Image generation attempts by result.",
		}, []string{"result"}),
		generationLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "dreamhome_generation_latency_seconds",
			Help:    "Latency of upstream image generation calls.",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 20, 40, 60},
		}),
		designsAppended: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dreamhome_designs_appended_total",
			Help: "Designs persisted to galleries.",
		}),
		designsRemoved: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dreamhome_designs_removed_total",
			Help: "Design delete requests.",
		}),
		subscribers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "dreamhome_gallery_subscribers",
			Help: "Live gallery subscriptions.",
		}),
	}

	reg.MustRegister(
		c.generations,
		c.generationLatency,
		c.designsAppended,
		c.designsRemoved,
		c.subscribers,
	)

	return c
}

func (c *Collector) RecordGeneration(result string, duration time.Duration) {
	c.generations.WithLabelValues(result).Inc()
	c.generationLatency.Observe(duration.Seconds())
}

func (c *Collector) RecordDesignAppended() { c.designsAppended.Inc() }
func (c *Collector) RecordDesignRemoved()  { c.designsRemoved.Inc() }
func (c *Collector) SubscriberAdded()      { c.subscribers.Inc() }
func (c *Collector) SubscriberRemoved()    { c.subscribers.Dec() }

// Handler serves the registry in the Prometheus text format.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

type Nop struct{}

func (Nop) RecordGeneration(string, time.Duration) {}
func (Nop) RecordDesignAppended()                  {}
func (Nop) RecordDesignRemoved()                   {}
func (Nop) SubscriberAdded()                       {}
func (Nop) SubscriberRemoved()                     {}

var (
	_ Recorder = (*Collector)(nil)
	_ Recorder = Nop{}
)
