// Package metrics exposes tracker metrics in the Prometheus format.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector defines the interface for tracker metrics collection
type Collector interface {
	// Node metrics
	NodeConnected()
	NodeDisconnected()

	// File index metrics
	FilesIndexed(count int)

	// Signaling metrics
	MessageReceived(kind string, sizeBytes int)
	MessageSent(kind string, sizeBytes int)
	MessageError(kind, errorType string)
	MessageRelayed(kind string, delivered bool)

	// Handler returns an HTTP handler for the metrics endpoint
	Handler() http.Handler
}

// PrometheusCollector implements Collector on a private registry.
type PrometheusCollector struct {
	registry *prometheus.Registry

	activeNodes    prometheus.Gauge
	nodeConnects   prometheus.Counter
	nodeDisconnect prometheus.Counter

	indexedFiles prometheus.Gauge

	messagesReceived *prometheus.CounterVec
	messagesSent     *prometheus.CounterVec
	messageErrors    *prometheus.CounterVec
	relays           *prometheus.CounterVec
	messageSize      *prometheus.HistogramVec
}

func NewPrometheusCollector() *PrometheusCollector {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	factory := promauto.With(reg)

	return &PrometheusCollector{
		registry: reg,

		activeNodes: factory.NewGauge(prometheus.GaugeOpts{
			Name: "tracker_active_nodes",
			Help: "Number of nodes connected to the tracker",
		}),
		nodeConnects: factory.NewCounter(prometheus.CounterOpts{
			Name: "tracker_node_connections_total",
			Help: "Total number of node connections",
		}),
		nodeDisconnect: factory.NewCounter(prometheus.CounterOpts{
			Name: "tracker_node_disconnects_total",
			Help: "Total number of node disconnections",
		}),

		indexedFiles: factory.NewGauge(prometheus.GaugeOpts{
			Name: "tracker_indexed_files",
			Help: "Number of distinct files currently indexed",
		}),

		messagesReceived: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tracker_messages_received_total",
				Help: "Total number of signaling messages received",
			},
			[]string{"type"},
		),
		messagesSent: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tracker_messages_sent_total",
				Help: "Total number of signaling messages sent",
			},
			[]string{"type"},
		),
		messageErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tracker_message_errors_total",
				Help: "Total number of rejected signaling messages",
			},
			[]string{"type", "error_type"},
		),
		relays: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tracker_relays_total",
				Help: "Total number of offer, answer and candidate relays",
			},
			[]string{"type", "result"},
		),
		messageSize: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tracker_message_size_bytes",
				Help:    "Size of received signaling messages",
				Buckets: prometheus.ExponentialBuckets(64, 4, 6),
			},
			[]string{"type"},
		),
	}
}

func (c *PrometheusCollector) NodeConnected() {
	c.activeNodes.Inc()
	c.nodeConnects.Inc()
}

func (c *PrometheusCollector) NodeDisconnected() {
	c.activeNodes.Dec()
	c.nodeDisconnect.Inc()
}

func (c *PrometheusCollector) FilesIndexed(count int) {
	c.indexedFiles.Set(float64(count))
}

func (c *PrometheusCollector) MessageReceived(kind string, sizeBytes int) {
	c.messagesReceived.WithLabelValues(kind).Inc()
	c.messageSize.WithLabelValues(kind).Observe(float64(sizeBytes))
}

func (c *PrometheusCollector) MessageSent(kind string, _ int) {
	c.messagesSent.WithLabelValues(kind).Inc()
}

func (c *PrometheusCollector) MessageError(kind, errorType string) {
	c.messageErrors.WithLabelValues(kind, errorType).Inc()
}

func (c *PrometheusCollector) MessageRelayed(kind string, delivered bool) {
	result := "delivered"
	if !delivered {
		result = "target_missing"
	}
	c.relays.WithLabelValues(kind, result).Inc()
}

func (c *PrometheusCollector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry, mainly for tests.
func (c *PrometheusCollector) Registry() *prometheus.Registry {
	return c.registry
}

// Nop discards every metric.
type Nop struct{}

func (Nop) NodeConnected()              {}
func (Nop) NodeDisconnected()           {}
func (Nop) FilesIndexed(int)            {}
func (Nop) MessageReceived(string, int) {}
func (Nop) MessageSent(string, int)     {}
func (Nop) MessageError(string, string) {}
func (Nop) MessageRelayed(string, bool) {}
func (Nop) Handler() http.Handler       { return http.NotFoundHandler() }
