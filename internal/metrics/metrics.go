package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RequestsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "meg_requests_created_total",
		Help: "Service requests created",
	})

	StatusTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "meg_request_transitions_total",
		Help: "Service request status transitions by target status",
	}, []string{"status"})

	PhotoUploads = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "meg_photo_uploads_total",
		Help: "Photo uploads by outcome",
	}, []string{"outcome"})

	UploadLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "meg_photo_upload_seconds",
		Help:    "Latency of a single photo upload",
		Buckets: prometheus.DefBuckets,
	})

	ActiveSubscriptions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "meg_feed_subscriptions",
		Help: "Open live feed subscriptions",
	})

	SignIns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "meg_sign_ins_total",
		Help: "Sign-in attempts by method and result",
	}, []string{"method", "result"})
)
