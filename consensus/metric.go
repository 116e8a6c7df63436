package consensus

import (
	metrics "github.com/rcrowley/go-metrics"

	"guardbft/libs/metric"
)

// MetricLabel is the label of the consensus metrics in a metric.MetricSet.
const MetricLabel = "consensus"

type consensusMetric struct {
	registry metrics.Registry

	height   metrics.Gauge
	round    metrics.Gauge
	isLeader metrics.Gauge
	pending  metrics.Gauge

	bundleVotes  metrics.Counter
	certificates metrics.Counter
	prePreposes  metrics.Counter
	proposals    metrics.Counter
	commits      metrics.Counter
	nilRounds    metrics.Counter
	relays       metrics.Counter
	evidence     metrics.Counter
	dropped      metrics.Counter

	// 从NewHeight到Committed的耗时
	heightTime metrics.Timer
}

func newConsensusMetric() *consensusMetric {
	r := metrics.NewRegistry()
	return &consensusMetric{
		registry:     r,
		height:       metrics.NewRegisteredGauge("height", r),
		round:        metrics.NewRegisteredGauge("round", r),
		isLeader:     metrics.NewRegisteredGauge("is_leader", r),
		pending:      metrics.NewRegisteredGauge("pending_bundles", r),
		bundleVotes:  metrics.NewRegisteredCounter("bundle_votes", r),
		certificates: metrics.NewRegisteredCounter("bundle_certificates", r),
		prePreposes:  metrics.NewRegisteredCounter("pre_proposes", r),
		proposals:    metrics.NewRegisteredCounter("proposals", r),
		commits:      metrics.NewRegisteredCounter("commits", r),
		nilRounds:    metrics.NewRegisteredCounter("nil_rounds", r),
		relays:       metrics.NewRegisteredCounter("relay_submissions", r),
		evidence:     metrics.NewRegisteredCounter("evidence", r),
		dropped:      metrics.NewRegisteredCounter("dropped_messages", r),
		heightTime:   metrics.NewRegisteredTimer("height_commit_time", r),
	}
}

func (cm *consensusMetric) MarkRound(height uint64, round uint32, isLeader bool) {
	cm.height.Update(int64(height))
	cm.round.Update(int64(round))
	if isLeader {
		cm.isLeader.Update(1)
	} else {
		cm.isLeader.Update(0)
	}
}

// Item returns the metrics as a metric.MetricItem.
func (cm *consensusMetric) Item() metric.MetricItem {
	return metric.NewRegistryItem(cm.registry)
}

func (cm *consensusMetric) JSONString() string {
	return cm.Item().JSONString()
}
