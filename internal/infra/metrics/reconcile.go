package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func init() {
	register(
		reconcileOutcomes,
		reconcileDuration,
		provisioningAttempts,
		referralCredits,
	)
}

var (
	reconcileOutcomes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reconcile_outcomes_total",
			Help: "Completion signals by rail and outcome (provisioned/already_completed/failed/error).",
		},
		[]string{"rail", "outcome"},
	)

	reconcileDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "reconcile_duration_seconds",
			Help:    "Time to reconcile one completion signal, including provisioning.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 20},
		},
		[]string{"rail"},
	)

	// op: create|update|lookup|access_url ; result: ok|conflict|not_found|unavailable|error
	provisioningAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "provisioning_attempts_total",
			Help: "Account panel calls made while provisioning entitlements.",
		},
		[]string{"op", "result"},
	)

	referralCredits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "referral_credits_total",
			Help: "Referral credit attempts by result (granted/no_referrer/already_granted/no_account/error).",
		},
		[]string{"result"},
	)
)

func ObserveReconcile(rail, outcome string, took time.Duration) {
	reconcileOutcomes.WithLabelValues(norm(rail), norm(outcome)).Inc()
	reconcileDuration.WithLabelValues(norm(rail)).Observe(took.Seconds())
}

func IncProvisioning(op, result string) {
	provisioningAttempts.WithLabelValues(norm(op), norm(result)).Inc()
}

func IncReferralCredit(result string) {
	referralCredits.WithLabelValues(norm(result)).Inc()
}
