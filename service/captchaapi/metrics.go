package captchaapi

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Verification and subscription outcomes used as metric labels.
const (
	outcomeAccepted = "accepted"
	outcomeRejected = "rejected"

	outcomeCreated   = "created"
	outcomeDuplicate = "duplicate"
	outcomeInvalid   = "invalid"
	outcomeCaptcha   = "captcha_rejected"
	outcomeError     = "error"
)

type metrics struct {
	issued        prometheus.Counter
	issueFailures prometheus.Counter
	verifications *prometheus.CounterVec
	subscriptions *prometheus.CounterVec
}

func newMetrics(reg prometheus.Registerer) *metrics {
	factory := promauto.With(reg)
	return &metrics{
		issued: factory.NewCounter(prometheus.CounterOpts{
			Name: "captcha_issued_total",
			Help: "The total number of captcha challenges issued",
		}),
		issueFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "captcha_issue_failures_total",
			Help: "The total number of captcha challenges that could not be generated",
		}),
		verifications: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "captcha_verifications_total",
			Help: "The total number of captcha answer verifications by outcome",
		}, []string{"outcome"}),
		subscriptions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "subscriptions_total",
			Help: "The total number of subscription requests by outcome",
		}, []string{"outcome"}),
	}
}
