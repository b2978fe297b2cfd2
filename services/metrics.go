package services

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	quotaDeniedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "review_quota_denied_total",
		Help: "Quota checks that did not allow the call.",
	})
	usageRecordedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "review_usage_recorded_total",
		Help: "Usage events appended to the key usage log.",
	})
	jobTransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "review_jobs_total",
		Help: "Job status transitions by resulting status.",
	}, []string{"status"})
	submissionsExpiredTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "review_submissions_expired_total",
		Help: "Submissions moved to expired by the overdue sweep.",
	})
)
