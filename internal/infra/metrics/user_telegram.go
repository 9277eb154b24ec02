package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(
		accountsCreatedTotal,
		telegramCommandsReceivedTotal,
		telegramRateLimitTriggeredTotal,
		remindersSentTotal,
	)
}

var (
	accountsCreatedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "accounts_created_total",
			Help: "Total number of bot users seen for the first time.",
		},
	)

	telegramCommandsReceivedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "telegram_commands_received_total",
			Help: "Counts incoming commands and callbacks from users.",
		},
		[]string{"command"},
	)

	telegramRateLimitTriggeredTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "telegram_rate_limit_triggered_total",
			Help: "Total number of times users have been rate-limited.",
		},
	)

	remindersSentTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "expiry_reminders_sent_total",
			Help: "Expiry reminders delivered, by threshold in days.",
		},
		[]string{"threshold_days"},
	)
)

func IncAccountsCreated() {
	accountsCreatedTotal.Inc()
}

func IncTelegramCommand(command string) {
	telegramCommandsReceivedTotal.WithLabelValues(norm(command)).Inc()
}

func IncRateLimitTriggered() {
	telegramRateLimitTriggeredTotal.Inc()
}

func IncReminderSent(thresholdDays string) {
	remindersSentTotal.WithLabelValues(thresholdDays).Inc()
}
