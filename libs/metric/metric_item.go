package metric

import (
	jsoniter "github.com/json-iterator/go"
	metrics "github.com/rcrowley/go-metrics"
)

// MetricItem - 一个独立的metric模块对应一个MetricItem
// 实现时要使用
type MetricItem interface {
	JSONString() string
}

// RegistryItem exposes a go-metrics registry as a MetricItem.
type RegistryItem struct {
	Registry metrics.Registry
}

func NewRegistryItem(r metrics.Registry) *RegistryItem {
	return &RegistryItem{Registry: r}
}

// JSONString returns a snapshot of every metric in the registry.
func (ri *RegistryItem) JSONString() string {
	s, err := jsoniter.MarshalToString(ri.Registry.GetAll())
	if err != nil {
		return "{}"
	}
	return s
}

type mockMetricItem struct {
	name string
}

func (mock *mockMetricItem) JSONString() string {
	return mock.name
}
