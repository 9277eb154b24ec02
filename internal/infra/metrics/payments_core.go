package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(
		paymentsTotal,
		paymentsRevenueTotal,
		invoicesIssuedTotal,
	)
}

var (
	paymentsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payments_total",
			Help: "Payment status transitions by rail (pending/completed/failed).",
		},
		[]string{"rail", "status"},
	)

	paymentsRevenueTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payments_revenue_total",
			Help: "The total minor-unit value of completed payments, labeled by currency.",
		},
		[]string{"currency"},
	)

	invoicesIssuedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "invoices_issued_total",
			Help: "Invoice issuance attempts by rail and result.",
		},
		[]string{"rail", "result"}, // ok | invalid_duration | promo_invalid | provider_unavailable | error
	)
)

func IncPayment(rail, status string) {
	paymentsTotal.WithLabelValues(norm(rail), norm(status)).Inc()
}

func AddPaymentRevenue(currency string, amount int64) {
	paymentsRevenueTotal.WithLabelValues(norm(currency)).Add(float64(amount))
}

func IncInvoice(rail, result string) {
	invoicesIssuedTotal.WithLabelValues(norm(rail), norm(result)).Inc()
}
