package service

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	loginTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "auth_login_total",
		Help: "Login attempts by result",
	}, []string{"result"}) // success|no_match|locked|inactive|error

	lockoutsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "auth_lockouts_total",
		Help: "Accounts locked after reaching the failed attempt threshold",
	})

	refreshTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "auth_refresh_total",
		Help: "Refresh token rotations by result",
	}, []string{"result"}) // success|invalid|reuse|rejected|error

	recoveryRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "auth_recovery_requests_total",
		Help: "Password recovery requests by result",
	}, []string{"result"}) // issued|unknown|error

	notificationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "auth_notifications_total",
		Help: "Outgoing notifications by kind and result",
	}, []string{"kind", "result"})

	sweptTokensTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "auth_swept_tokens_total",
		Help: "Expired tokens deleted by the sweeper",
	}, []string{"kind"}) // refresh|recovery
)

// RegisterMetrics registers the auth collectors on reg (default registry if
// nil). Registering twice is not an error.
func RegisterMetrics(reg prometheus.Registerer) error {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	collectors := []prometheus.Collector{
		loginTotal,
		lockoutsTotal,
		refreshTotal,
		recoveryRequestsTotal,
		notificationsTotal,
		sweptTokensTotal,
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			var already prometheus.AlreadyRegisteredError
			if !errors.As(err, &already) {
				return err
			}
		}
	}
	return nil
}
