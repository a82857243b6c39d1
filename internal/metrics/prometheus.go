package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all Prometheus metrics for the Mirror Play client
type Metrics struct {
	// Recording metrics
	RecordingsStarted     prometheus.Counter
	RecordingsCompleted   prometheus.Counter
	RecordingsAutoStopped prometheus.Counter
	RecordingsCancelled   prometheus.Counter
	RecordingDuration     prometheus.Histogram
	ActiveRecording       prometheus.Gauge

	// Transcription metrics
	TranscriptionRequests  prometheus.Counter
	TranscriptionSuccesses prometheus.Counter
	TranscriptionFailures  prometheus.Counter
	TranscriptionDuration  prometheus.Histogram

	// API metrics
	DailyLimitHits prometheus.Counter

	// Duo session metrics
	DuoMessagesSent      prometheus.Counter
	DuoRejectedOutOfTurn prometheus.Counter
	DuoSessionsCompleted prometheus.Counter

	// HTTP monitor metrics
	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics() *Metrics {
	return &Metrics{
		// Recording metrics
		RecordingsStarted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "mirrorplay_recordings_started_total",
			Help: "Total number of recordings started",
		}),
		RecordingsCompleted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "mirrorplay_recordings_completed_total",
			Help: "Total number of recordings finalized",
		}),
		RecordingsAutoStopped: promauto.NewCounter(prometheus.CounterOpts{
			Name: "mirrorplay_recordings_auto_stopped_total",
			Help: "Total number of recordings stopped by silence detection",
		}),
		RecordingsCancelled: promauto.NewCounter(prometheus.CounterOpts{
			Name: "mirrorplay_recordings_cancelled_total",
			Help: "Total number of recordings discarded without submission",
		}),
		RecordingDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "mirrorplay_recording_duration_seconds",
			Help:    "Duration of finalized recordings",
			Buckets: prometheus.ExponentialBuckets(1, 2, 8), // 1s to ~2 minutes
		}),
		ActiveRecording: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "mirrorplay_active_recording",
			Help: "Whether a recording is currently in progress (0 or 1)",
		}),

		// Transcription metrics
		TranscriptionRequests: promauto.NewCounter(prometheus.CounterOpts{
			Name: "mirrorplay_transcription_requests_total",
			Help: "Total number of transcription requests sent",
		}),
		TranscriptionSuccesses: promauto.NewCounter(prometheus.CounterOpts{
			Name: "mirrorplay_transcription_successes_total",
			Help: "Total number of successful transcription requests",
		}),
		TranscriptionFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "mirrorplay_transcription_failures_total",
			Help: "Total number of failed transcription requests",
		}),
		TranscriptionDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "mirrorplay_transcription_duration_seconds",
			Help:    "Duration of transcription requests",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10), // 100ms to ~2 minutes
		}),

		// API metrics
		DailyLimitHits: promauto.NewCounter(prometheus.CounterOpts{
			Name: "mirrorplay_daily_limit_hits_total",
			Help: "Total number of requests rejected by the daily usage cap",
		}),

		// Duo session metrics
		DuoMessagesSent: promauto.NewCounter(prometheus.CounterOpts{
			Name: "mirrorplay_duo_messages_sent_total",
			Help: "Total number of duo messages accepted by the server",
		}),
		DuoRejectedOutOfTurn: promauto.NewCounter(prometheus.CounterOpts{
			Name: "mirrorplay_duo_rejected_out_of_turn_total",
			Help: "Total number of duo messages rejected locally for being out of turn",
		}),
		DuoSessionsCompleted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "mirrorplay_duo_sessions_completed_total",
			Help: "Total number of duo sessions completed",
		}),

		// HTTP monitor metrics
		HTTPRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "mirrorplay_http_requests_total",
			Help: "Total number of HTTP requests to the monitor server",
		}, []string{"method", "endpoint", "status_code"}),
		HTTPRequestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "mirrorplay_http_request_duration_seconds",
			Help:    "Duration of HTTP requests to the monitor server",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "endpoint"}),
	}
}

// RecordRecordingStarted increments the recordings started counter and marks
// the recording gauge active
func (m *Metrics) RecordRecordingStarted() {
	m.RecordingsStarted.Inc()
	m.ActiveRecording.Set(1)
}

// RecordRecordingCompleted records a finalized recording
func (m *Metrics) RecordRecordingCompleted(durationSeconds float64, autoStopped bool) {
	m.RecordingsCompleted.Inc()
	m.RecordingDuration.Observe(durationSeconds)
	m.ActiveRecording.Set(0)
	if autoStopped {
		m.RecordingsAutoStopped.Inc()
	}
}

// RecordRecordingCancelled records a discarded recording
func (m *Metrics) RecordRecordingCancelled() {
	m.RecordingsCancelled.Inc()
	m.ActiveRecording.Set(0)
}

// RecordTranscriptionRequest increments transcription requests counter
func (m *Metrics) RecordTranscriptionRequest() {
	m.TranscriptionRequests.Inc()
}

// RecordTranscriptionSuccess records a successful transcription
func (m *Metrics) RecordTranscriptionSuccess(durationSeconds float64) {
	m.TranscriptionSuccesses.Inc()
	m.TranscriptionDuration.Observe(durationSeconds)
}

// RecordTranscriptionFailure records a failed transcription
func (m *Metrics) RecordTranscriptionFailure(durationSeconds float64) {
	m.TranscriptionFailures.Inc()
	m.TranscriptionDuration.Observe(durationSeconds)
}

// RecordDailyLimitHit increments the daily limit counter
func (m *Metrics) RecordDailyLimitHit() {
	m.DailyLimitHits.Inc()
}

// RecordDuoMessageSent increments the duo messages sent counter
func (m *Metrics) RecordDuoMessageSent() {
	m.DuoMessagesSent.Inc()
}

// RecordDuoRejectedOutOfTurn increments the out-of-turn rejection counter
func (m *Metrics) RecordDuoRejectedOutOfTurn() {
	m.DuoRejectedOutOfTurn.Inc()
}

// RecordDuoSessionCompleted increments the completed sessions counter
func (m *Metrics) RecordDuoSessionCompleted() {
	m.DuoSessionsCompleted.Inc()
}

// RecordHTTPRequest records an HTTP request to the monitor server
func (m *Metrics) RecordHTTPRequest(method, endpoint, statusCode string, durationSeconds float64) {
	m.HTTPRequests.WithLabelValues(method, endpoint, statusCode).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(durationSeconds)
}
