package consensus

import (
	ethtypes "github.com/ethereum/go-ethereum/core/types"

	"guardbft/types"
)

// RoundRobin selects the leader of a height by rotating over the ordered
// guard set. Every guard computes the same leader without communication.
type RoundRobin struct {
	guards    *types.GuardSet
	lastBlock uint64
}

func NewRoundRobin(guards *types.GuardSet) *RoundRobin {
	return &RoundRobin{guards: guards}
}

// Leader returns guards[(height + round) mod N]. It returns false when the
// guard set is empty.
func (rr *RoundRobin) Leader(height uint64, round uint32) (types.GuardIdentity, bool) {
	g := rr.guards.GetProposer(height, round)
	if g == nil {
		return types.GuardIdentity{}, false
	}
	return g.Address, true
}

// OnNewBlock records the block number and returns the round 0 leader for it.
func (rr *RoundRobin) OnNewBlock(header *ethtypes.Header) (types.GuardIdentity, bool) {
	number := header.Number.Uint64()
	rr.lastBlock = number
	return rr.Leader(number, 0)
}

// LastBlock returns the number of the last block seen by OnNewBlock.
func (rr *RoundRobin) LastBlock() uint64 {
	return rr.lastBlock
}
