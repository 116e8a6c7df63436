package rpc

import (
	"fmt"
	"strings"

	rpctypes "github.com/tendermint/tendermint/rpc/jsonrpc/types"
)

// ResultMetrics carries the JSON dump of each requested metric group.
type ResultMetrics struct {
	Labels  []string          `json:"labels"`
	Metrics map[string]string `json:"metrics"`
}

// JSONMetrics returns the metric groups named in labels, a comma separated
// list, or every group when labels is empty.
func JSONMetrics(ctx *rpctypes.Context, labels string) (*ResultMetrics, error) {
	snapshot := env.MetricSet.Snapshot()
	if labels == "" {
		return &ResultMetrics{Labels: env.MetricSet.GetAllLabels(), Metrics: snapshot}, nil
	}

	result := &ResultMetrics{Metrics: make(map[string]string)}
	for _, l := range strings.Split(labels, ",") {
		l = strings.TrimSpace(l)
		item, ok := snapshot[l]
		if !ok {
			return nil, fmt.Errorf("unknown metric group %q", l)
		}
		if _, dup := result.Metrics[l]; dup {
			continue
		}
		result.Labels = append(result.Labels, l)
		result.Metrics[l] = item
	}
	return result, nil
}
