// Package metrics exposes Prometheus metrics for the chat service.
package metrics

import (
	"context"
	"errors"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nfrund/relay/internal/hub"
	"github.com/nfrund/relay/internal/pubsub"
)

// Collector records hub and gateway activity.
type Collector struct {
	connectionsActive   prometheus.Gauge
	connectionsOpened   prometheus.Counter
	connectionsClosed   *prometheus.CounterVec
	connectionsRejected *prometheus.CounterVec
	messagesBroadcast   prometheus.Counter
	broadcastRecipients prometheus.Histogram
	persistenceFailures prometheus.Counter
	logins              *prometheus.CounterVec
}

// NewCollector creates a Collector and registers its metrics with reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		connectionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "relay_connections_active",
			Help: "Number of Active websocket connections.",
		}),
		connectionsOpened: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "relay_connections_opened_total",
			Help: "Connections that passed authentication.",
		}),
		connectionsClosed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "relay_connections_closed_total",
			Help: "Connections removed from the registry, by reason.",
		}, []string{"reason"}),
		connectionsRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "relay_connections_rejected_total",
			Help: "Handshakes rejected, by error code.",
		}, []string{"code"}),
		messagesBroadcast: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "relay_messages_broadcast_total",
			Help: "Messages fanned out by the hub.",
		}),
		broadcastRecipients: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "relay_broadcast_recipients",
			Help:    "Connections reached per broadcast.",
			Buckets: prometheus.ExponentialBuckets(1, 2, 10),
		}),
		persistenceFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "relay_persistence_failures_total",
			Help: "Ledger appends that failed.",
		}),
		logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "relay_logins_total",
			Help: "Login attempts, by result.",
		}, []string{"result"}),
	}

	reg.MustRegister(
		c.connectionsActive,
		c.connectionsOpened,
		c.connectionsClosed,
		c.connectionsRejected,
		c.messagesBroadcast,
		c.broadcastRecipients,
		c.persistenceFailures,
		c.logins,
	)

	return c
}

// RecordLogin counts a login attempt. result is "success" or an error code.
func (c *Collector) RecordLogin(result string) {
	c.logins.WithLabelValues(result).Inc()
}

// Subscribe feeds the collector from hub events on s.
func (c *Collector) Subscribe(ctx context.Context, s pubsub.Subscriber) error {
	return errors.Join(
		pubsub.On(ctx, s, hub.ConnectionOpened, func(_ context.Context, e hub.ConnectionEvent) error {
			c.connectionsOpened.Inc()
			c.connectionsActive.Inc()
			return nil
		}),
		pubsub.On(ctx, s, hub.ConnectionClosed, func(_ context.Context, e hub.ConnectionEvent) error {
			c.connectionsClosed.WithLabelValues(e.Reason).Inc()
			c.connectionsActive.Dec()
			return nil
		}),
		pubsub.On(ctx, s, hub.ConnectionRejected, func(_ context.Context, e hub.RejectedEvent) error {
			c.connectionsRejected.WithLabelValues(e.Code).Inc()
			return nil
		}),
		pubsub.On(ctx, s, hub.MessageBroadcast, func(_ context.Context, e hub.BroadcastEvent) error {
			c.messagesBroadcast.Inc()
			c.broadcastRecipients.Observe(float64(e.Recipients))
			return nil
		}),
		pubsub.On(ctx, s, hub.PersistenceFailed, func(_ context.Context, e hub.PersistenceFailedEvent) error {
			c.persistenceFailures.Inc()
			return nil
		}),
	)
}

// Handler returns the Prometheus scrape handler for gatherer.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
