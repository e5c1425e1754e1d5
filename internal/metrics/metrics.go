package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Scan outcomes are labelled with the classifier result so the dashboard can
// separate real arrivals from rejected or unknown scans.
var (
	ScansTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hadirku_scans_total",
		Help: "Scan classifications by outcome.",
	}, []string{"outcome"})

	NotificationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hadirku_notifications_total",
		Help: "Parent notifications by channel and result.",
	}, []string{"channel", "result"})

	SyncPushTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hadirku_sync_push_total",
		Help: "Mirror pushes of attendance records by result.",
	}, []string{"result"})
)
