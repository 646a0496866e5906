package server

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	sessionsGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "trellis",
		Name:      "sessions",
		Help:      "Connected WebSocket sessions.",
	})

	roomsGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "trellis",
		Name:      "rooms",
		Help:      "Graphs with at least one subscriber.",
	})

	operationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "trellis",
		Name:      "operations_total",
		Help:      "Operations by type and result.",
	}, []string{"type", "result"})

	broadcastDrops = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "trellis",
		Name:      "broadcast_drops_total",
		Help:      "Sessions dropped because their outbound queue was full.",
	})

	persistTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "trellis",
		Name:      "persist_total",
		Help:      "Graph snapshot writes by result.",
	}, []string{"result"})

	resetsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "trellis",
		Name:      "progress_resets_total",
		Help:      "Periodic progress resets applied on subscribe.",
	})
)
