package auth

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	tokensIssued = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "onepass_tokens_issued_total",
		Help: "Total number of tokens issued by kind",
	}, []string{"kind"})

	tokenRejections = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "onepass_token_rejections_total",
		Help: "Total number of rejected tokens by expected kind and reason",
	}, []string{"kind", "reason"})
)
