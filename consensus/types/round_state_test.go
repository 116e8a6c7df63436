package types

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"guardbft/types"
)

func TestRoundStateTransitions(t *testing.T) {
	gs, privs := types.RandGuardSet(4)
	rs := NewRoundState(9)
	assert.Equal(t, RoundStepAwaitingBlock, rs.Step)
	assert.EqualValues(t, 9, rs.CurrentHeight())

	// proposal before any block is illegal
	assert.ErrorIs(t, rs.SetProposal(&types.LeaderProposal{Height: 9}), ErrInvalidTransition)
	assert.ErrorIs(t, rs.NextRound(types.GuardIdentity{}, false), ErrInvalidTransition)

	leader := gs.GetProposer(10, 0).Address
	rs.NewHeight(10, leader, privs[0].IsUs(leader))
	assert.Equal(t, RoundStepPrePropose, rs.Step)
	assert.EqualValues(t, 10, rs.Height)
	assert.EqualValues(t, 0, rs.Round)
	assert.Equal(t, leader, rs.Leader)

	assert.ErrorIs(t, rs.Commit(), ErrInvalidTransition)
	assert.Error(t, rs.SetProposal(&types.LeaderProposal{Height: 11}))

	require.NoError(t, rs.SetProposal(&types.LeaderProposal{Height: 10}))
	assert.Equal(t, RoundStepProposed, rs.Step)
	assert.ErrorIs(t, rs.SetProposal(&types.LeaderProposal{Height: 10}), ErrInvalidTransition)

	require.NoError(t, rs.Commit())
	assert.Equal(t, RoundStepCommitted, rs.Step)

	rs.NewHeight(11, gs.GetProposer(11, 0).Address, false)
	assert.Equal(t, RoundStepPrePropose, rs.Step)
	assert.Nil(t, rs.Proposal)
	assert.Equal(t, "11/0/RoundStepPrePropose", rs.String())
}

func TestRoundStateHeightGap(t *testing.T) {
	rs := NewRoundState(9)
	rs.NewHeight(10, types.GuardIdentity{}, false)

	assert.Panics(t, func() {
		rs.NewHeight(12, types.GuardIdentity{}, false)
	})
	assert.Panics(t, func() {
		rs.NewHeight(10, types.GuardIdentity{}, false)
	})
}

func TestRoundStateNextRound(t *testing.T) {
	gs, _ := types.RandGuardSet(4)
	rs := NewRoundState(0)
	rs.NewHeight(1, gs.GetProposer(1, 0).Address, false)

	pp := &types.PreProposeBundle{Height: 1}
	assert.True(t, rs.AddPrePropose(gs.GetProposer(1, 0).Address, pp))
	assert.False(t, rs.AddPrePropose(gs.GetProposer(1, 0).Address, pp))
	rs.LockedPrePropose = pp

	require.NoError(t, rs.NextRound(gs.GetProposer(1, 1).Address, true))
	assert.EqualValues(t, 1, rs.Round)
	assert.True(t, rs.IsLeader)
	assert.Equal(t, gs.GetProposer(1, 1).Address, rs.Leader)
	assert.Nil(t, rs.LockedPrePropose)
	assert.Empty(t, rs.PrePreposes)
	assert.Equal(t, 0, rs.Commits.Size())
}

func TestRoundStateCommitLock(t *testing.T) {
	gs, _ := types.RandGuardSet(4)
	rs := NewRoundState(0)
	rs.NewHeight(1, gs.GetProposer(1, 0).Address, false)
	assert.False(t, rs.CommitLocked)
	assert.Equal(t, common.Hash{}, rs.CommitLockHash())

	vb := &types.ValidatedFinalizedBundle{Votes: types.FinalizedBundleVotes{Hash: common.HexToHash("0x01")}}
	require.NoError(t, rs.NextRound(gs.GetProposer(1, 1).Address, false))
	rs.LockCommit(vb)
	require.NoError(t, rs.NextRound(gs.GetProposer(1, 2).Address, false))
	assert.True(t, rs.CommitLocked)
	assert.EqualValues(t, 1, rs.CommitLockRound)
	assert.Equal(t, vb.Votes.Hash, rs.CommitLockHash())

	// 空提案也会锁
	rs.NewHeight(2, gs.GetProposer(2, 0).Address, false)
	assert.False(t, rs.CommitLocked)
	assert.Nil(t, rs.CommitLockBundle)
	rs.LockCommit(nil)
	assert.True(t, rs.CommitLocked)
	assert.Equal(t, common.Hash{}, rs.CommitLockHash())
}

func TestVoteSetDedup(t *testing.T) {
	gs, privs := types.RandGuardSet(4)
	hash := types.Digest([]byte("bundle"))

	vs := NewVoteSet(hash, 10, 0, gs.Size())
	votes := make([]*types.BundleVote, 4)
	for i, pv := range privs {
		votes[i] = &types.BundleVote{Hash: hash, Height: 10}
		require.NoError(t, pv.SignBundleVote(votes[i]))
	}

	require.NoError(t, vs.AddVote(0, votes[0]))
	assert.ErrorIs(t, vs.AddVote(0, votes[0]), ErrDuplicateVote)

	// same guard re-signing is not counted twice
	resigned := *votes[0]
	resigned.Signature = append([]byte(nil), votes[1].Signature...)
	resigned.Signature[0] ^= 0xff
	assert.ErrorIs(t, vs.AddVote(0, &resigned), ErrDuplicateVoter)
	assert.Equal(t, 1, vs.Count())

	require.NoError(t, vs.AddVote(2, votes[2]))
	assert.False(t, vs.HasTwoThirds())
	require.NoError(t, vs.AddVote(1, votes[1]))
	assert.True(t, vs.HasTwoThirds())

	cert := vs.MakeCertificate()
	assert.Equal(t, [][]byte{votes[0].Signature, votes[1].Signature, votes[2].Signature}, cert.Signatures)
	assert.NoError(t, cert.VerifySignatures(gs))
}

func TestCommitSet(t *testing.T) {
	gs, privs := types.RandGuardSet(4)
	hash := types.Digest([]byte("proposal"))
	cs := NewCommitSet()

	for i, pv := range privs[:3] {
		c := &types.ProposalCommit{Height: 1, ProposalHash: hash, Nil: i == 2}
		require.NoError(t, pv.SignCommit(c))
		require.NoError(t, cs.AddCommit(pv.GetAddress(), c))
	}
	assert.ErrorIs(t, cs.AddCommit(privs[0].GetAddress(), &types.ProposalCommit{}), ErrDuplicateVoter)

	assert.Equal(t, 2, cs.CountFor(hash))
	assert.Equal(t, 1, cs.CountNil())
	assert.False(t, cs.HasTwoThirdsFor(hash, gs.Size()))
	assert.False(t, cs.HasTwoThirdsNil(gs.Size()))

	c := &types.ProposalCommit{Height: 1, ProposalHash: hash}
	require.NoError(t, privs[3].SignCommit(c))
	require.NoError(t, cs.AddCommit(privs[3].GetAddress(), c))
	assert.True(t, cs.HasTwoThirdsFor(hash, gs.Size()))
	assert.Len(t, cs.Commits(hash), 3)
}
