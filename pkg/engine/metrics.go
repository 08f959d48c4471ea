package engine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	tracksStarted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "onair",
		Name:      "tracks_started_total",
		Help:      "Tracks whose playback session was started.",
	})
	trackFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "onair",
		Name:      "track_failures_total",
		Help:      "Tracks skipped because they could not be opened or read.",
	})
	bytesBroadcast = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "onair",
		Name:      "broadcast_bytes_total",
		Help:      "Paced audio bytes handed to the listener registry.",
	})
	stateGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "onair",
		Name:      "playback_state",
		Help:      "Playback state: 0 idle, 1 playing, 2 paused.",
	})
)
