package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(
		subscriptionsActivatedTotal,
		subscriptionRenewalsTotal,
		subscriptionsExpiredTotal,
		orphanLinksTotal,
	)
}

var (
	subscriptionsActivatedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "subscriptions_activated_total",
			Help: "Subscription activations by plan tier.",
		},
		[]string{"tier"},
	)

	subscriptionRenewalsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "subscription_renewals_total",
			Help: "Renewal audit rows written, by direction (upgrade/downgrade/renewal).",
		},
		[]string{"direction"},
	)

	subscriptionsExpiredTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "subscriptions_expired_total",
			Help: "Total number of subscriptions deactivated by the expiry worker.",
		},
	)

	orphanLinksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orphan_links_total",
			Help: "Orphan purchases processed by the linker, by outcome.",
		},
		[]string{"outcome"}, // activated|unconfirmed|trusted_ledger|skipped|failed
	)
)

func IncSubscriptionActivated(tier string) {
	subscriptionsActivatedTotal.WithLabelValues(norm(tier)).Inc()
}

func IncRenewal(direction string) {
	subscriptionRenewalsTotal.WithLabelValues(norm(direction)).Inc()
}

func IncSubscriptionsExpired(count int) {
	subscriptionsExpiredTotal.Add(float64(count))
}

func IncOrphanLink(outcome string) {
	orphanLinksTotal.WithLabelValues(norm(outcome)).Inc()
}
