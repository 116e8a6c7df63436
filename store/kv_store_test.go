package store

import (
	"errors"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendermint/tendermint/libs/log"
	"github.com/tendermint/tm-db/memdb"

	"guardbft/types"
)

func newMemStore() *KVStore {
	return NewKVStoreWithDB(memdb.NewDB(), log.TestingLogger())
}

func testEvidence(pv types.PrivValidator, height uint64, round uint32) *types.Evidence {
	return &types.Evidence{
		Kind:   types.CommitEvidence,
		Guard:  pv.GetAddress(),
		Height: height,
		Round:  round,
		First:  types.SignedArtifact{Digest: [32]byte{1}, Signature: []byte{1}},
		Second: types.SignedArtifact{Digest: [32]byte{2}, Signature: []byte{2}},
	}
}

func testSubmission(t *testing.T, height uint64) *types.SubmissionBundle {
	guards, privs := types.RandGuardSet(4)
	p := &types.LeaderProposal{Height: height, LowerBound: big.NewInt(0)}
	require.NoError(t, privs[int(height)%4].SignProposal(p))

	sb := &types.SubmissionBundle{Proposal: *p}
	for i := 0; i < 3; i++ {
		c := types.ProposalCommit{Height: height, ProposalHash: p.Hash()}
		require.NoError(t, privs[i].SignCommit(&c))
		sb.Commits = append(sb.Commits, c)
	}
	require.NoError(t, sb.Verify(guards))
	return sb
}

func TestEvidenceRoundTrip(t *testing.T) {
	kv := newMemStore()
	pv := types.NewMockPV()

	for _, h := range []uint64{3, 12, 100} {
		require.NoError(t, kv.SaveEvidence(testEvidence(pv, h, 1)))
	}

	all, err := kv.Evidence(0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	// ordered by height, not lexically
	assert.EqualValues(t, 3, all[0].Height)
	assert.EqualValues(t, 12, all[1].Height)
	assert.EqualValues(t, 100, all[2].Height)
	assert.Equal(t, pv.GetAddress(), all[0].Guard)
	assert.Equal(t, types.CommitEvidence, all[0].Kind)

	recent, err := kv.Evidence(12)
	require.NoError(t, err)
	assert.Len(t, recent, 2)
}

func TestFinalizedRoundTrip(t *testing.T) {
	kv := newMemStore()

	_, err := kv.LatestFinalizedHeight()
	assert.True(t, errors.Is(err, ErrNotFound))
	_, err = kv.LoadFinalized(5)
	assert.True(t, errors.Is(err, ErrNotFound))

	sb := testSubmission(t, 5)
	require.NoError(t, kv.SaveFinalized(sb))
	require.NoError(t, kv.SaveFinalized(testSubmission(t, 3)))

	latest, err := kv.LatestFinalizedHeight()
	require.NoError(t, err)
	assert.EqualValues(t, 5, latest, "older heights do not move latest back")

	loaded, err := kv.LoadFinalized(5)
	require.NoError(t, err)
	assert.Equal(t, sb.Proposal.Hash(), loaded.Proposal.Hash())
	assert.Len(t, loaded.Commits, 3)
	id, err := loaded.Commits[0].RecoverGuard()
	require.NoError(t, err)
	orig, _ := sb.Commits[0].RecoverGuard()
	assert.Equal(t, orig, id)
}

func TestLevelDBStore(t *testing.T) {
	kv, err := NewKVStore("guard", t.TempDir(), log.TestingLogger())
	require.NoError(t, err)
	defer kv.Close()

	require.NoError(t, kv.SaveFinalized(testSubmission(t, 1)))
	latest, err := kv.LatestFinalizedHeight()
	require.NoError(t, err)
	assert.EqualValues(t, 1, latest)
}

func TestMockStore(t *testing.T) {
	mock := NewMockStore(nil)
	pv := types.NewMockPV()
	require.NoError(t, mock.SaveEvidence(testEvidence(pv, 1, 0)))
	require.NoError(t, mock.SaveFinalized(testSubmission(t, 1)))
	assert.Len(t, mock.SavedEvidence(), 1)
	assert.Len(t, mock.SavedFinalized(), 1)

	failure := errors.New("boom")
	mock.Err = failure
	assert.Equal(t, failure, mock.SaveEvidence(testEvidence(pv, 2, 0)))
	assert.Equal(t, failure, mock.SaveFinalized(testSubmission(t, 2)))
	assert.Len(t, mock.SavedEvidence(), 1)
}
