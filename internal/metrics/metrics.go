package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Connection metrics
	ConnectAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "voicechat_ws_connect_attempts_total",
			Help: "Total websocket connect attempts",
		},
		[]string{"result"}, // "ok" or "error"
	)

	Reconnects = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "voicechat_ws_reconnects_scheduled_total",
			Help: "Total reconnect attempts scheduled after a close",
		},
	)

	Frames = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "voicechat_ws_frames_total",
			Help: "Total websocket frames",
		},
		[]string{"direction", "outcome"}, // in/out, ok/dropped/rejected/error
	)

	// Speech output metrics
	SynthesisRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "voicechat_tts_requests_total",
			Help: "Total synthesis requests",
		},
		[]string{"outcome"}, // ok, error, canceled
	)

	SynthesisLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "voicechat_tts_latency_seconds",
			Help:    "Synthesis request latency",
			Buckets: []float64{.05, .1, .25, .5, 1, 2, 5, 10},
		},
	)

	PlaybackSessions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "voicechat_playback_sessions_total",
			Help: "Total playback sessions by how they ended",
		},
		[]string{"outcome"}, // ended, stopped, superseded, failed
	)

	// Speech input metrics
	RecognitionSessions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "voicechat_recognition_sessions_total",
			Help: "Total listening sessions by how they ended",
		},
		[]string{"outcome"}, // final, error, end, stopped
	)

	// Dev server metrics
	DevMessages = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "voicechat_devserver_messages_total",
			Help: "Total messages handled by the development backend",
		},
		[]string{"role"},
	)
)
