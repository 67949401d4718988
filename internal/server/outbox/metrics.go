package outbox

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	emailsSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "onepass_outbox_emails_sent_total",
		Help: "Emails delivered from the outbox.",
	}, []string{"template"})

	emailsFailed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "onepass_outbox_send_failures_total",
		Help: "Failed email delivery attempts.",
	}, []string{"template"})

	emailsDead = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "onepass_outbox_emails_dead_total",
		Help: "Emails given up on after the maximum number of attempts.",
	}, []string{"template"})
)
