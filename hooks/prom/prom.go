// Package promhooks counts flashguard Hooks events as Prometheus metrics.
package promhooks

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/unkn0wn-root/flashguard"
)

type Hooks struct {
	NegativeCachedTotal   prometheus.Counter
	RebuildScheduledTotal prometheus.Counter
	RebuildSkippedTotal   *prometheus.CounterVec // reason=lock_held|pool_full|lock_error|gen_moved|closed
	RebuildFailedTotal    prometheus.Counter
	SelfHealTotal         *prometheus.CounterVec // reason=corrupt|value_decode
	AdmissionTotal        *prometheus.CounterVec // outcome=ok|insufficient_stock|duplicate_request|not_started|ended|error
	OrderCommittedTotal   *prometheus.CounterVec // duplicate=true|false
	OrderFailedTotal      prometheus.Counter
	PendingRecoveredTotal prometheus.Counter
}

var _ flashguard.Hooks = (*Hooks)(nil)

// New registers the counters on reg (prometheus.DefaultRegisterer when nil).
func New(reg prometheus.Registerer) (*Hooks, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	h := &Hooks{
		NegativeCachedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "flashguard_cache_negative_cached_total",
			Help: "Negative markers written for keys with no backing record",
		}),
		RebuildScheduledTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "flashguard_cache_rebuild_scheduled_total",
			Help: "Async rebuilds submitted for logically expired entries",
		}),
		RebuildSkippedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "flashguard_cache_rebuild_skipped_total",
				Help: "Rebuilds not performed, by reason",
			},
			[]string{"reason"},
		),
		RebuildFailedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "flashguard_cache_rebuild_failed_total",
			Help: "Rebuilds whose loader or write-back failed",
		}),
		SelfHealTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "flashguard_cache_self_heal_total",
				Help: "Entries deleted on read, by reason",
			},
			[]string{"reason"},
		),
		AdmissionTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "flashguard_admission_total",
				Help: "Admission script runs by outcome",
			},
			[]string{"outcome"},
		),
		OrderCommittedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "flashguard_order_committed_total",
				Help: "Reservations acknowledged after durable commit",
			},
			[]string{"duplicate"},
		),
		OrderFailedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "flashguard_order_failed_total",
			Help: "Reservation processing failures",
		}),
		PendingRecoveredTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "flashguard_order_pending_recovered_total",
			Help: "Reservations committed from the pending list",
		}),
	}

	for _, c := range []prometheus.Collector{
		h.NegativeCachedTotal,
		h.RebuildScheduledTotal,
		h.RebuildSkippedTotal,
		h.RebuildFailedTotal,
		h.SelfHealTotal,
		h.AdmissionTotal,
		h.OrderCommittedTotal,
		h.OrderFailedTotal,
		h.PendingRecoveredTotal,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return h, nil
}

func (h *Hooks) NegativeCached(string)   { h.NegativeCachedTotal.Inc() }
func (h *Hooks) RebuildScheduled(string) { h.RebuildScheduledTotal.Inc() }
func (h *Hooks) RebuildSkipped(_ string, reason string) {
	h.RebuildSkippedTotal.WithLabelValues(reason).Inc()
}
func (h *Hooks) RebuildFailed(string, error)       { h.RebuildFailedTotal.Inc() }
func (h *Hooks) SelfHeal(_ string, reason string)  { h.SelfHealTotal.WithLabelValues(reason).Inc() }
func (h *Hooks) Admission(_ int64, outcome string) { h.AdmissionTotal.WithLabelValues(outcome).Inc() }
func (h *Hooks) OrderFailed(string, error)         { h.OrderFailedTotal.Inc() }
func (h *Hooks) PendingRecovered(n int)            { h.PendingRecoveredTotal.Add(float64(n)) }
func (h *Hooks) OrderCommitted(_ int64, dup bool) {
	h.OrderCommittedTotal.WithLabelValues(strconv.FormatBool(dup)).Inc()
}
