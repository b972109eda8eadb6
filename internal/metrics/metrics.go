package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ActiveConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "chat_ws_active_connections",
		Help: "Open websocket connections",
	})

	OnlineStaff = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "chat_online_staff",
		Help: "Staff members with at least one live connection",
	})

	MessagesPersisted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chat_messages_persisted_total",
		Help: "Messages committed to the store",
	}, []string{"type"})

	FramesBroadcast = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chat_frames_broadcast_total",
		Help: "Frames queued to connections",
	}, []string{"event"})

	FramesDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chat_frames_dropped_total",
		Help: "Frames dropped because a connection buffer was full",
	}, []string{"event"})

	WorkerPoolInflight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "chat_worker_pool_inflight",
		Help: "Persistence tasks currently running",
	})

	WorkerPoolWaiting = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "chat_worker_pool_waiting",
		Help: "Persistence tasks waiting for a slot",
	})

	RelayDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chat_relay_dropped_total",
		Help: "Chat events not relayed because the relay queue was full",
	})

	RelayFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chat_relay_failures_total",
		Help: "Relay publish failures by sink",
	}, []string{"sink"})
)
