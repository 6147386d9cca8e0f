// Package metrics exposes Prometheus collectors for account lifecycle
// instrumentation. The account service increments them; hosts scrape a
// promhttp endpoint wired up in cmd.
package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// Options configures the account metrics collectors.
type Options struct {
	Registerer prometheus.Registerer
	Namespace  string
}

// AccountMetrics exposes Prometheus collectors for account operations.
type AccountMetrics struct {
	AccountsCreated  prometheus.Counter
	AccountsRemoved  prometheus.Counter
	Logins           *prometheus.CounterVec
	Lockouts         prometheus.Counter
	VerificationKeys *prometheus.CounterVec
}

// New constructs collectors and registers them with the provided registerer.
func New(opts Options) (*AccountMetrics, error) {
	namespace := opts.Namespace
	if namespace == "" {
		namespace = "accounts"
	}

	reg := opts.Registerer
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	created := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "created_total",
		Help:      "Total number of accounts created.",
	})
	removed := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "removed_total",
		Help:      "Total number of accounts hard-deleted.",
	})
	logins := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "logins_total",
		Help:      "Total number of authentication attempts partitioned by outcome.",
	}, []string{"outcome"})
	lockouts := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "lockouts_total",
		Help:      "Total number of attempts rejected by the failed-login lockout.",
	})
	keys := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "verification_keys_issued_total",
		Help:      "Total number of verification keys issued partitioned by purpose.",
	}, []string{"purpose"})

	for _, c := range []prometheus.Collector{created, removed, logins, lockouts, keys} {
		if err := register(reg, c); err != nil {
			return nil, err
		}
	}

	return &AccountMetrics{
		AccountsCreated:  created,
		AccountsRemoved:  removed,
		Logins:           logins,
		Lockouts:         lockouts,
		VerificationKeys: keys,
	}, nil
}

func register(reg prometheus.Registerer, c prometheus.Collector) error {
	if err := reg.Register(c); err != nil {
		if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
			return nil
		}
		return fmt.Errorf("register collector: %w", err)
	}
	return nil
}

// RecordLogin counts an authentication attempt by outcome. Nil-safe so the
// service can run without metrics.
func (m *AccountMetrics) RecordLogin(outcome string) {
	if m == nil {
		return
	}
	m.Logins.WithLabelValues(outcome).Inc()
}

// RecordLockout counts a lockout rejection.
func (m *AccountMetrics) RecordLockout() {
	if m == nil {
		return
	}
	m.Lockouts.Inc()
}

// RecordAccountCreated counts a successful create.
func (m *AccountMetrics) RecordAccountCreated() {
	if m == nil {
		return
	}
	m.AccountsCreated.Inc()
}

// RecordAccountRemoved counts a hard delete.
func (m *AccountMetrics) RecordAccountRemoved() {
	if m == nil {
		return
	}
	m.AccountsRemoved.Inc()
}

// RecordVerificationKey counts an issued verification key by purpose.
func (m *AccountMetrics) RecordVerificationKey(purpose string) {
	if m == nil {
		return
	}
	m.VerificationKeys.WithLabelValues(purpose).Inc()
}
