package metrics

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
)

var (
	TokensIssuedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "soauth_tokens_issued_total",
		Help: "Total number of access tokens issued, by grant.",
	}, []string{"grant"})
	TokenRequestErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "soauth_token_request_errors_total",
		Help: "Total number of failed token endpoint requests, by OAuth error code.",
	}, []string{"error"})
	AuthCodesIssuedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "soauth_auth_codes_issued_total",
		Help: "Total number of authorization codes issued.",
	})
	AuthCodesExchangedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "soauth_auth_codes_exchanged_total",
		Help: "Total number of authorization codes exchanged for tokens.",
	})
	TokensRefreshedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "soauth_tokens_refreshed_total",
		Help: "Total number of refresh token rotations.",
	})
	TokensRevokedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "soauth_tokens_revoked_total",
		Help: "Total number of tokens revoked, by token type.",
	}, []string{"type"})
	FederatedLoginsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "soauth_federated_logins_total",
		Help: "Total number of federated logins, by strategy and outcome.",
	}, []string{"strategy", "outcome"})
	LoginFailureTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "soauth_logins_failure_total",
		Help: "Total number of failed end-user logins.",
	})
)

// collectors returns every custom metric of the package.
func collectors() []prometheus.Collector {
	return []prometheus.Collector{
		TokensIssuedTotal,
		TokenRequestErrorsTotal,
		AuthCodesIssuedTotal,
		AuthCodesExchangedTotal,
		TokensRefreshedTotal,
		TokensRevokedTotal,
		FederatedLoginsTotal,
		LoginFailureTotal,
	}
}

// InitCustomMetrics registers the custom Prometheus metrics.
// It should be called once at application startup.
func InitCustomMetrics(reg prometheus.Registerer) {
	if reg == nil {
		log.Error().Msg("Prometheus registry is nil, cannot register custom metrics.")
		return
	}

	for _, c := range collectors() {
		if err := reg.Register(c); err != nil {
			var already prometheus.AlreadyRegisteredError
			if errors.As(err, &already) {
				continue
			}
			log.Warn().Err(err).Msg("Failed to register metric")
		}
	}

	log.Info().Msg("Custom Prometheus metrics registered.")
}
