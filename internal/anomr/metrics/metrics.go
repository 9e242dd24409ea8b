package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// LinesRead counts log lines consumed, by pipeline mode (batch, realtime).
	LinesRead = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "anomr_lines_read_total",
			Help: "Log lines read",
		},
		[]string{"mode"},
	)

	EventsParsed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "anomr_events_parsed_total",
			Help: "Events extracted from log lines",
		},
		[]string{"mode", "event_type"},
	)

	LinesSkipped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "anomr_lines_skipped_total",
			Help: "Log lines that did not match the log grammar",
		},
		[]string{"mode"},
	)

	Polls = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "anomr_realtime_polls_total",
			Help: "Realtime poll cycles",
		},
	)

	Anomalies = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "anomr_anomalies_total",
			Help: "Buckets flagged as anomalous",
		},
		[]string{"mode", "severity"},
	)

	LastScore = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "anomr_realtime_last_score",
			Help: "Anomaly score of the most recent realtime bucket",
		},
	)

	CursorOffset = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "anomr_realtime_cursor_offset_bytes",
			Help: "Byte offset of the realtime cursor",
		},
	)
)

func Handler() http.Handler { return promhttp.Handler() }
