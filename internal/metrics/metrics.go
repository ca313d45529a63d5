// Package metrics exposes prometheus collectors for the match authority.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "caro"

const (
	resultAccepted  = "accepted"
	resultRefused   = "refused"
	resultInvalid   = "invalid"
	resultMalformed = "malformed"

	reasonWin       = "win"
	reasonAbandoned = "abandoned"
)

type Metrics struct {
	connections       *prometheus.CounterVec
	activeConnections prometheus.Gauge
	moves             *prometheus.CounterVec
	matchesStarted    prometheus.Counter
	matchesFinished   *prometheus.CounterVec
}

// New registers every collector on registerer. Use a fresh prometheus.NewRegistry() per process or test.
func New(registerer prometheus.Registerer) *Metrics {
	factory := promauto.With(registerer)

	return &Metrics{
		connections: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connections_total",
			Help:      "Connections handled by the authority, by admission result.",
		}, []string{"result"}),
		activeConnections: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connections_active",
			Help:      "Connections currently holding a slot.",
		}),
		moves: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "moves_total",
			Help:      "Move requests, by outcome.",
		}, []string{"result"}),
		matchesStarted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "matches_started_total",
			Help:      "Matches that reached the in-progress state.",
		}),
		matchesFinished: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "matches_finished_total",
			Help:      "Finished matches, by reason.",
		}, []string{"reason"}),
	}
}

func (that *Metrics) ConnectionAccepted() {
	that.connections.WithLabelValues(resultAccepted).Inc()
	that.activeConnections.Inc()
}

func (that *Metrics) ConnectionRefused() {
	that.connections.WithLabelValues(resultRefused).Inc()
}

// ConnectionClosed must be called once for every accepted connection.
func (that *Metrics) ConnectionClosed() {
	that.activeConnections.Dec()
}

func (that *Metrics) MoveAccepted() {
	that.moves.WithLabelValues(resultAccepted).Inc()
}

func (that *Metrics) MoveInvalid() {
	that.moves.WithLabelValues(resultInvalid).Inc()
}

func (that *Metrics) MoveMalformed() {
	that.moves.WithLabelValues(resultMalformed).Inc()
}

func (that *Metrics) MatchStarted() {
	that.matchesStarted.Inc()
}

func (that *Metrics) MatchWon() {
	that.matchesFinished.WithLabelValues(reasonWin).Inc()
}

func (that *Metrics) MatchAbandoned() {
	that.matchesFinished.WithLabelValues(reasonAbandoned).Inc()
}
