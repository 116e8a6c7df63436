package rpc

import (
	jsoniter "github.com/json-iterator/go"

	"guardbft/consensus"
	"guardbft/libs/metric"
	"guardbft/store"
	"guardbft/types"
)

var (
	env  *Environment
	json = jsoniter.ConfigCompatibleWithStandardLibrary
)

func SetEnvironment(e *Environment) {
	env = e
}

type Environment struct {
	Consensus *consensus.Core
	Store     *store.KVStore
	Guards    *types.GuardSet

	MetricSet *metric.MetricSet
}
