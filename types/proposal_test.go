package types

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func makeProposal(t *testing.T, gs *GuardSet, privs []PrivValidator, height uint64) (*LeaderProposal, PrivValidator) {
	b := randBundle(height, 20)
	pps := make([]PreProposeBundle, 0, len(privs))
	for i, pv := range privs {
		pp := PreProposeBundle{Height: height, Round: 0, LowerBound: big.NewInt(int64(i)), BundleHash: b.Hash()}
		require.NoError(t, pv.SignPrePropose(&pp))
		pps = append(pps, pp)
	}

	leader := gs.GetProposer(height, 0)
	var leaderPV PrivValidator
	for _, pv := range privs {
		if pv.IsUs(leader.Address) {
			leaderPV = pv
		}
	}
	require.NotNil(t, leaderPV)

	p := &LeaderProposal{
		Height: height,
		Round:  0,
		Bundle: &ValidatedFinalizedBundle{
			Votes:  NewFinalizedBundleVotes(b.Hash(), height, 0, signVotes(t, privs, b, 0)),
			Bundle: *b,
		},
		LowerBound:  big.NewInt(int64(len(privs) - 1)),
		PrePreposes: pps,
	}
	require.NoError(t, leaderPV.SignProposal(p))
	return p, leaderPV
}

func TestPreProposeSignature(t *testing.T) {
	_, pv := RandGuard()
	pp := &PreProposeBundle{Height: 1, LowerBound: big.NewInt(5)}
	require.NoError(t, pv.SignPrePropose(pp))
	require.NoError(t, pp.ValidateBasic())

	id, err := pp.RecoverGuard()
	require.NoError(t, err)
	assert.Equal(t, pv.GetAddress(), id)

	other := *pp
	other.LowerBound = big.NewInt(6)
	assert.NotEqual(t, pp.Digest(), other.Digest())

	pp.LowerBound = big.NewInt(-1)
	assert.Error(t, pp.ValidateBasic())
}

func TestLeaderProposal(t *testing.T) {
	gs, privs := RandGuardSet(4)
	p, leader := makeProposal(t, gs, privs, 9)

	require.NoError(t, p.ValidateBasic())
	id, err := p.RecoverGuard()
	require.NoError(t, err)
	assert.Equal(t, leader.GetAddress(), id)
	assert.Equal(t, p.Bundle.Bundle.Hash(), p.BundleHash())
	assert.EqualValues(t, 20, p.Score().Int64())

	// hash covers the included pre-proposes
	h := p.Hash()
	p.PrePreposes = p.PrePreposes[:3]
	assert.NotEqual(t, h, p.Hash())

	empty := &LeaderProposal{Height: 9}
	require.NoError(t, leader.SignProposal(empty))
	assert.NoError(t, empty.ValidateBasic())
	assert.Equal(t, 0, empty.Score().Sign())

	p.Bundle.Bundle.Height = 10
	assert.Error(t, p.ValidateBasic())
}

func TestSubmissionBundleVerify(t *testing.T) {
	gs, privs := RandGuardSet(4)
	p, _ := makeProposal(t, gs, privs, 9)

	commits := make([]ProposalCommit, 0, 4)
	for _, pv := range privs {
		c := ProposalCommit{Height: 9, Round: 0, ProposalHash: p.Hash()}
		require.NoError(t, pv.SignCommit(&c))
		commits = append(commits, c)
	}

	sb := &SubmissionBundle{Proposal: *p, Commits: commits[:3]}
	assert.EqualValues(t, 9, sb.Height())
	assert.NoError(t, sb.Verify(gs))

	sb.Commits = commits[:2]
	assert.ErrorIs(t, sb.Verify(gs), ErrNotEnoughGuards)

	sb.Commits = []ProposalCommit{commits[0], commits[1], commits[1]}
	assert.ErrorIs(t, sb.Verify(gs), ErrDuplicateGuardSig)

	nilCommit := ProposalCommit{Height: 9, Round: 0, Nil: true}
	require.NoError(t, privs[2].SignCommit(&nilCommit))
	sb.Commits = []ProposalCommit{commits[0], commits[1], nilCommit}
	assert.Error(t, sb.Verify(gs))
}
