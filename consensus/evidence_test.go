package consensus

import (
	"errors"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"guardbft/types"
)

type memEvidenceStore struct {
	err   error
	saved []*types.Evidence
}

func (s *memEvidenceStore) SaveEvidence(ev *types.Evidence) error {
	if s.err != nil {
		return s.err
	}
	s.saved = append(s.saved, ev)
	return nil
}

func signPrePropose(t *testing.T, pv types.PrivValidator, height uint64, round uint32, lowerBound int64) *types.PreProposeBundle {
	pp := &types.PreProposeBundle{Height: height, Round: round, LowerBound: big.NewInt(lowerBound)}
	require.NoError(t, pv.SignPrePropose(pp))
	return pp
}

func TestEvidenceConflictingPrePropose(t *testing.T) {
	pv := types.NewMockPV()
	store := &memEvidenceStore{}
	ec := NewEvidenceCollector(store)

	first := signPrePropose(t, pv, 5, 0, 10)
	ev, err := ec.ObservePrePropose(pv.GetAddress(), first)
	assert.NoError(t, err)
	assert.Nil(t, ev)

	// the same statement again is fine
	ev, err = ec.ObservePrePropose(pv.GetAddress(), first)
	assert.NoError(t, err)
	assert.Nil(t, ev)

	ev, err = ec.ObservePrePropose(pv.GetAddress(), signPrePropose(t, pv, 5, 0, 20))
	require.NoError(t, err)
	require.NotNil(t, ev)
	assert.Equal(t, types.PreProposeEvidence, ev.Kind)
	assert.Equal(t, pv.GetAddress(), ev.Guard)
	assert.EqualValues(t, 5, ev.Height)
	assert.Equal(t, first.Digest(), ev.First.Digest)

	// recorded once per (kind, guard, height, round)
	ev, err = ec.ObservePrePropose(pv.GetAddress(), signPrePropose(t, pv, 5, 0, 30))
	assert.NoError(t, err)
	assert.Nil(t, ev)

	// another round is unrelated
	ev, _ = ec.ObservePrePropose(pv.GetAddress(), signPrePropose(t, pv, 5, 1, 30))
	assert.Nil(t, ev)

	assert.Len(t, ec.Evidence(), 1)
	assert.Len(t, store.saved, 1)
}

func TestEvidenceConflictingCommit(t *testing.T) {
	pv := types.NewMockPV()
	ec := NewEvidenceCollector(nil)

	yes := &types.ProposalCommit{Height: 3, Round: 2, ProposalHash: [32]byte{1}}
	no := &types.ProposalCommit{Height: 3, Round: 2, Nil: true}
	require.NoError(t, pv.SignCommit(yes))
	require.NoError(t, pv.SignCommit(no))

	ev, err := ec.ObserveCommit(pv.GetAddress(), yes)
	assert.NoError(t, err)
	assert.Nil(t, ev)
	ev, err = ec.ObserveCommit(pv.GetAddress(), no)
	assert.NoError(t, err)
	require.NotNil(t, ev)
	assert.Equal(t, types.CommitEvidence, ev.Kind)
	assert.Equal(t, no.Digest(), ev.Second.Digest)
}

func TestEvidenceConflictingProposal(t *testing.T) {
	pv := types.NewMockPV()
	store := &memEvidenceStore{}
	ec := NewEvidenceCollector(store)

	first := &types.LeaderProposal{Height: 4, Round: 1, LowerBound: big.NewInt(10)}
	second := &types.LeaderProposal{Height: 4, Round: 1, LowerBound: big.NewInt(20)}
	other := &types.LeaderProposal{Height: 4, Round: 2, LowerBound: big.NewInt(20)}
	for _, p := range []*types.LeaderProposal{first, second, other} {
		require.NoError(t, pv.SignProposal(p))
	}

	ev, err := ec.ObserveProposal(pv.GetAddress(), first)
	assert.NoError(t, err)
	assert.Nil(t, ev)
	ev, _ = ec.ObserveProposal(pv.GetAddress(), first)
	assert.Nil(t, ev, "same proposal twice")

	ev, err = ec.ObserveProposal(pv.GetAddress(), second)
	require.NoError(t, err)
	require.NotNil(t, ev)
	assert.Equal(t, types.ProposalEvidence, ev.Kind)
	assert.Equal(t, pv.GetAddress(), ev.Guard)
	assert.EqualValues(t, 4, ev.Height)
	assert.EqualValues(t, 1, ev.Round)
	assert.Equal(t, first.Hash(), ev.First.Digest)
	assert.Equal(t, second.Hash(), ev.Second.Digest)
	assert.Equal(t, second.LeaderSignature, ev.Second.Signature)

	ev, _ = ec.ObserveProposal(pv.GetAddress(), other)
	assert.Nil(t, ev)
	assert.Len(t, store.saved, 1)
}

func TestEvidenceStoreError(t *testing.T) {
	pv := types.NewMockPV()
	failure := errors.New("disk full")
	ec := NewEvidenceCollector(&memEvidenceStore{err: failure})

	ec.ObservePrePropose(pv.GetAddress(), signPrePropose(t, pv, 5, 0, 10))
	ev, err := ec.ObservePrePropose(pv.GetAddress(), signPrePropose(t, pv, 5, 0, 20))
	require.NotNil(t, ev)
	require.Error(t, err)
	assert.ErrorIs(t, err, failure)

	var evErr *EvidenceError
	require.True(t, errors.As(err, &evErr))
	assert.Equal(t, ev, evErr.Evidence)
	assert.Len(t, ec.Evidence(), 1, "evidence is kept even when it was not persisted")
}

func TestEvidencePrune(t *testing.T) {
	pv := types.NewMockPV()
	ec := NewEvidenceCollector(nil)

	ec.ObservePrePropose(pv.GetAddress(), signPrePropose(t, pv, 5, 0, 10))
	ec.Prune(6)
	ev, _ := ec.ObservePrePropose(pv.GetAddress(), signPrePropose(t, pv, 5, 0, 20))
	assert.Nil(t, ev, "first statement was pruned")
}
