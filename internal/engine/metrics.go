package engine

import "github.com/prometheus/client_golang/prometheus"

var (
	metricTransitions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "playtrader_transitions_total",
		Help: "Completed play status transitions by destination status",
	}, []string{"to"})
	metricIllegalTransitions = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "playtrader_illegal_transitions_total",
		Help: "Rejected transition attempts not in the transition table",
	})
	metricRiskRejections = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "playtrader_risk_rejections_total",
		Help: "Short-play submissions rejected by the risk gate, by reason",
	}, []string{"reason"})
	metricRiskApprovals = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "playtrader_risk_approvals_total",
		Help: "Short-play submissions approved by the risk gate",
	})
	metricCorruptSkipped = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "playtrader_corrupt_records_skipped_total",
		Help: "Corrupt play records skipped during bulk scans",
	})
)

func init() {
	prometheus.MustRegister(
		metricTransitions, metricIllegalTransitions,
		metricRiskRejections, metricRiskApprovals,
		metricCorruptSkipped,
	)
}
