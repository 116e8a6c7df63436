package types

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"guardbft/types"
)

//-----------------------------------------------------------------------------
// RoundStepType enum type

// RoundStepType enumerates the state of the consensus state machine
type RoundStepType uint8

// RoundStepType
const (
	RoundStepAwaitingBlock = RoundStepType(0x01) // 等待下一个链上区块
	RoundStepPrePropose    = RoundStepType(0x02) // 新高度开始，收集pre-propose
	RoundStepProposed      = RoundStepType(0x03) // 收到leader的提案
	RoundStepCommitted     = RoundStepType(0x04) // 提案获得2/3 commit
)

// String returns a string
func (rs RoundStepType) String() string {
	switch rs {
	case RoundStepAwaitingBlock:
		return "RoundStepAwaitingBlock"
	case RoundStepPrePropose:
		return "RoundStepPrePropose"
	case RoundStepProposed:
		return "RoundStepProposed"
	case RoundStepCommitted:
		return "RoundStepCommitted"
	default:
		return "RoundStepUnknown" // Cannot panic.
	}
}

var ErrInvalidTransition = errors.New("invalid round step transition")

// RoundState - definitions of the guard consensus state machine.
// NOTE: not goroutine safe, owned by the consensus receive routine.
type RoundState struct {
	Height   uint64
	Round    uint32
	Step     RoundStepType
	Leader   types.GuardIdentity
	IsLeader bool

	// 本轮我们自己锁定的下界
	LockedPrePropose *types.PreProposeBundle
	// 本轮收到的合法提案
	Proposal *types.LeaderProposal
	// 本轮收到的pre-propose，按guard去重
	PrePreposes map[types.GuardIdentity]*types.PreProposeBundle
	Commits     *CommitSet

	// 本高度第一次投出非nil commit时锁定的bundle，换轮不清除。
	// CommitLockBundle为nil表示锁定在空提案上
	CommitLocked     bool
	CommitLockRound  uint32
	CommitLockBundle *types.ValidatedFinalizedBundle
}

// NewRoundState returns the initial state, awaiting the block after genesis.
func NewRoundState(genesisHeight uint64) RoundState {
	return RoundState{
		Height:      genesisHeight,
		Step:        RoundStepAwaitingBlock,
		PrePreposes: make(map[types.GuardIdentity]*types.PreProposeBundle),
		Commits:     NewCommitSet(),
	}
}

func (rs *RoundState) CurrentHeight() uint64 {
	return rs.Height
}

// NewHeight moves the state to the given block number. The number must be
// exactly one above the current height; a gap panics since the round robin
// leader and every tally become undefined across it.
func (rs *RoundState) NewHeight(number uint64, leader types.GuardIdentity, isLeader bool) {
	if number != rs.Height+1 {
		panic(fmt.Sprintf("have a gap in blocks which will break the round robin algo: height %d, got block %d", rs.Height, number))
	}

	rs.Height = number
	rs.Round = 0
	rs.CommitLocked = false
	rs.CommitLockRound = 0
	rs.CommitLockBundle = nil
	rs.enterRound(leader, isLeader)
}

// NextRound moves to the next round of the current height.
func (rs *RoundState) NextRound(leader types.GuardIdentity, isLeader bool) error {
	if rs.Step == RoundStepAwaitingBlock {
		return fmt.Errorf("%w: next round from %v", ErrInvalidTransition, rs.Step)
	}
	rs.Round++
	rs.enterRound(leader, isLeader)
	return nil
}

func (rs *RoundState) enterRound(leader types.GuardIdentity, isLeader bool) {
	rs.Step = RoundStepPrePropose
	rs.Leader = leader
	rs.IsLeader = isLeader
	rs.LockedPrePropose = nil
	rs.Proposal = nil
	rs.PrePreposes = make(map[types.GuardIdentity]*types.PreProposeBundle)
	rs.Commits = NewCommitSet()
}

// SetProposal records the leader proposal of the round.
func (rs *RoundState) SetProposal(p *types.LeaderProposal) error {
	if rs.Step != RoundStepPrePropose {
		return fmt.Errorf("%w: set proposal at %v", ErrInvalidTransition, rs.Step)
	}
	if p.Height != rs.Height || p.Round != rs.Round {
		return fmt.Errorf("proposal for %d/%d, current %d/%d", p.Height, p.Round, rs.Height, rs.Round)
	}
	rs.Proposal = p
	rs.Step = RoundStepProposed
	return nil
}

// Commit marks the proposal of the round as committed by 2/3 of the guards.
func (rs *RoundState) Commit() error {
	if rs.Step != RoundStepProposed {
		return fmt.Errorf("%w: commit at %v", ErrInvalidTransition, rs.Step)
	}
	rs.Step = RoundStepCommitted
	return nil
}

// LockCommit locks the height on bundle, nil meaning the empty proposal.
func (rs *RoundState) LockCommit(bundle *types.ValidatedFinalizedBundle) {
	rs.CommitLocked = true
	rs.CommitLockRound = rs.Round
	rs.CommitLockBundle = bundle
}

// CommitLockHash returns the hash of the locked bundle, zero for the empty
// proposal or when not locked.
func (rs *RoundState) CommitLockHash() common.Hash {
	if rs.CommitLockBundle == nil {
		return common.Hash{}
	}
	return rs.CommitLockBundle.Votes.Hash
}

// AddPrePropose keeps the first pre-propose of each guard. It returns false
// if the guard already has one recorded.
func (rs *RoundState) AddPrePropose(id types.GuardIdentity, pp *types.PreProposeBundle) bool {
	if _, ok := rs.PrePreposes[id]; ok {
		return false
	}
	rs.PrePreposes[id] = pp
	return true
}

// String returns the H/R/S of the RoundState as a string.
func (rs *RoundState) String() string {
	return fmt.Sprintf("%d/%d/%v", rs.Height, rs.Round, rs.Step)
}

// RoundStateSummary is a read-only view of the round state.
type RoundStateSummary struct {
	Height      uint64              `json:"height"`
	Round       uint32              `json:"round"`
	Step        string              `json:"step"`
	Leader      types.GuardIdentity `json:"leader"`
	IsLeader    bool                `json:"is_leader"`
	Locked      bool                `json:"locked"`
	PrePreposes int                 `json:"pre_proposes"`
	Commits     int                 `json:"commits"`
}

func (rs *RoundState) Summary() RoundStateSummary {
	return RoundStateSummary{
		Height:      rs.Height,
		Round:       rs.Round,
		Step:        rs.Step.String(),
		Leader:      rs.Leader,
		IsLeader:    rs.IsLeader,
		Locked:      rs.LockedPrePropose != nil,
		PrePreposes: len(rs.PrePreposes),
		Commits:     rs.Commits.Size(),
	}
}
