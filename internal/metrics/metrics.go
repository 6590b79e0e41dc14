package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics covers the pipeline's observable outcomes. Poison drops get their
// own counter: acknowledging a bad message is a policy choice that must be
// visible, not silent loss.
type Metrics struct {
	OrdersCreated  prometheus.Counter
	Transitions    *prometheus.CounterVec
	TasksProcessed *prometheus.CounterVec
	PoisonMessages prometheus.Counter
	Notifications  *prometheus.CounterVec
}

func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		OrdersCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "quickbite",
			Name:      "orders_created_total",
			Help:      "Orders successfully persisted.",
		}),
		Transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "quickbite",
			Name:      "status_transitions_total",
			Help:      "Applied status transitions by target status.",
		}, []string{"to_status"}),
		TasksProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "quickbite",
			Name:      "queue_tasks_total",
			Help:      "Queue task handling outcomes.",
		}, []string{"type", "result"}),
		PoisonMessages: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "quickbite",
			Name:      "poison_messages_total",
			Help:      "Malformed queue messages dropped after bounded retries.",
		}),
		Notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "quickbite",
			Name:      "notifications_total",
			Help:      "Notification channel attempts by outcome.",
		}, []string{"channel", "result"}),
	}
	reg.MustRegister(m.OrdersCreated, m.Transitions, m.TasksProcessed, m.PoisonMessages, m.Notifications)
	return m
}

func Handler() http.Handler {
	return promhttp.Handler()
}
