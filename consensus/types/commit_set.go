package types

import (
	"errors"

	"github.com/ethereum/go-ethereum/common"

	"guardbft/types"
)

var (
	ErrDuplicateVote  = errors.New("duplicate vote")
	ErrDuplicateVoter = errors.New("guard has already voted")
)

// CommitSet tallies proposal commits of one round, one per guard.
type CommitSet struct {
	commits map[types.GuardIdentity]*types.ProposalCommit
	order   []types.GuardIdentity
}

func NewCommitSet() *CommitSet {
	return &CommitSet{
		commits: make(map[types.GuardIdentity]*types.ProposalCommit),
	}
}

// AddCommit records the commit of guard id.
func (cs *CommitSet) AddCommit(id types.GuardIdentity, c *types.ProposalCommit) error {
	if _, ok := cs.commits[id]; ok {
		return ErrDuplicateVoter
	}
	cs.commits[id] = c
	cs.order = append(cs.order, id)
	return nil
}

func (cs *CommitSet) Size() int {
	return len(cs.commits)
}

// CountFor returns the number of non-nil commits for the proposal hash.
func (cs *CommitSet) CountFor(hash common.Hash) int {
	n := 0
	for _, c := range cs.commits {
		if !c.Nil && c.ProposalHash == hash {
			n++
		}
	}
	return n
}

func (cs *CommitSet) CountNil() int {
	n := 0
	for _, c := range cs.commits {
		if c.Nil {
			n++
		}
	}
	return n
}

// HasTwoThirdsFor reports whether more than 2/3 of total guards committed to hash.
func (cs *CommitSet) HasTwoThirdsFor(hash common.Hash, total int) bool {
	return types.HasTwoThirds(cs.CountFor(hash), total)
}

func (cs *CommitSet) HasTwoThirdsNil(total int) bool {
	return types.HasTwoThirds(cs.CountNil(), total)
}

// Commits returns the non-nil commits for hash in arrival order.
func (cs *CommitSet) Commits(hash common.Hash) []types.ProposalCommit {
	out := make([]types.ProposalCommit, 0, len(cs.order))
	for _, id := range cs.order {
		c := cs.commits[id]
		if !c.Nil && c.ProposalHash == hash {
			out = append(out, *c)
		}
	}
	return out
}

// HasCommit reports whether guard id already committed this round.
func (cs *CommitSet) HasCommit(id types.GuardIdentity) bool {
	_, ok := cs.commits[id]
	return ok
}
