package services

import "github.com/prometheus/client_golang/prometheus"

var (
	checkInsCreated = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "devradar_checkins_created_total",
		Help: "Check-ins successfully inserted.",
	})

	quotaRejections = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "devradar_quota_rejections_total",
		Help: "Check-in attempts refused because the quota was used up.",
	})

	quotaBookkeepingFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "devradar_quota_bookkeeping_failures_total",
		Help: "Quota count updates that failed after a successful check-in.",
	})

	rosterReloads = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "devradar_roster_reloads_total",
		Help: "Live roster reloads by outcome.",
	}, []string{"outcome"})
)

func init() {
	prometheus.MustRegister(checkInsCreated, quotaRejections, quotaBookkeepingFailures, rosterReloads)
}
