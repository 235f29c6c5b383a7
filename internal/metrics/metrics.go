// Package metrics exposes the Prometheus collectors of the dispatch engine.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"bulksender/internal/models"
)

var (
	MessagesProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "campaign_messages_processed_total",
			Help: "Messages processed by campaign controllers",
		},
		[]string{"channel", "status"},
	)

	SendDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "campaign_send_duration_seconds",
			Help:    "Latency of a single provider send",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"channel"},
	)

	LongPauses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "campaign_long_pauses_total",
			Help: "Long pauses inserted between bursts",
		},
	)

	LongPauseDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "campaign_long_pause_seconds",
			Help:    "Length of long pauses",
			Buckets: []float64{30, 60, 120, 300, 600, 900},
		},
	)

	CampaignEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "campaign_events_total",
			Help: "Campaign events emitted by type",
		},
		[]string{"type"},
	)

	ActiveCampaigns = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "campaigns_active",
			Help: "Campaigns that are running or paused",
		},
	)

	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "HTTP requests by method, route and status",
		},
		[]string{"method", "route", "status"},
	)

	HTTPDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
)

// Recorder implements dispatch.Observer on the package collectors
type Recorder struct{}

// NewRecorder returns a recorder
func NewRecorder() *Recorder {
	return &Recorder{}
}

// MessageProcessed counts one message outcome and its send latency
func (Recorder) MessageProcessed(campaignID, channelID string, status models.MessageStatus, latency time.Duration) {
	if channelID == "" {
		channelID = "none"
	}
	MessagesProcessed.WithLabelValues(channelID, string(status)).Inc()
	if latency > 0 {
		SendDuration.WithLabelValues(channelID).Observe(latency.Seconds())
	}
}

// LongPause counts a long pause
func (Recorder) LongPause(campaignID string, d time.Duration) {
	LongPauses.Inc()
	LongPauseDuration.Observe(d.Seconds())
}

// RecordEvent counts an emitted campaign event
func RecordEvent(event models.Event) {
	CampaignEvents.WithLabelValues(string(event.Type)).Inc()
}
