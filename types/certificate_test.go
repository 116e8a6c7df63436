package types

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func randBundle(height uint64, bribe int64) *Bundle {
	return &Bundle{
		Height:            height,
		Trades:            [][]byte{[]byte("trade-a"), []byte("trade-b")},
		Settlement:        big.NewInt(bribe).Bytes(),
		CumulativeLPBribe: big.NewInt(bribe),
	}
}

func signVotes(t *testing.T, privs []PrivValidator, b *Bundle, round uint32) [][]byte {
	sigs := make([][]byte, 0, len(privs))
	for _, pv := range privs {
		vote := &BundleVote{Hash: b.Hash(), Height: b.Height, Round: round}
		require.NoError(t, pv.SignBundleVote(vote))
		sigs = append(sigs, vote.Signature)
	}
	return sigs
}

func TestBundleHash(t *testing.T) {
	a := randBundle(1, 10)
	b := randBundle(1, 10)
	assert.Equal(t, a.Hash(), b.Hash())

	b.Height = 2
	assert.NotEqual(t, a.Hash(), b.Hash())

	// 修改bribe会改变hash，证书因此同时约束分数
	c := randBundle(1, 10)
	c.CumulativeLPBribe = big.NewInt(99)
	assert.NotEqual(t, a.Hash(), c.Hash())

	// nil和0的bribe等价
	d, e := randBundle(1, 0), randBundle(1, 0)
	d.CumulativeLPBribe = nil
	assert.Equal(t, d.Hash(), e.Hash())

	assert.Error(t, (&Bundle{CumulativeLPBribe: big.NewInt(-1)}).ValidateBasic())
	assert.Equal(t, 0, (&Bundle{}).GetCumulativeLPBribe().Sign())
}

func TestBundleVoteRecover(t *testing.T) {
	_, pv := RandGuard()
	b := randBundle(5, 1)

	vote := &BundleVote{Hash: b.Hash(), Height: 5, Round: 0}
	require.NoError(t, pv.SignBundleVote(vote))
	require.NoError(t, vote.ValidateBasic())

	id, err := vote.RecoverGuard()
	require.NoError(t, err)
	assert.Equal(t, pv.GetAddress(), id)
	assert.True(t, pv.IsUs(id))

	// a tampered statement recovers to somebody else
	vote.Height = 6
	id, err = vote.RecoverGuard()
	if err == nil {
		assert.NotEqual(t, pv.GetAddress(), id)
	}

	vote.Signature = vote.Signature[:10]
	assert.ErrorIs(t, vote.ValidateBasic(), ErrInvalidSignature)
	_, err = vote.RecoverGuard()
	assert.ErrorIs(t, err, ErrInvalidSignature)
}

func TestFinalizedBundleVotesVerify(t *testing.T) {
	gs, privs := RandGuardSet(4)
	b := randBundle(3, 7)

	sigs := signVotes(t, privs, b, 0)

	cert := NewFinalizedBundleVotes(b.Hash(), 3, 0, sigs[:3])
	assert.NoError(t, cert.VerifySignatures(gs))
	assert.True(t, cert.HasSignature(sigs[1]))
	assert.False(t, cert.HasSignature(sigs[3]))
	assert.Len(t, cert.Votes(), 3)

	// 2 of 4 is not a quorum
	cert = NewFinalizedBundleVotes(b.Hash(), 3, 0, sigs[:2])
	assert.ErrorIs(t, cert.VerifySignatures(gs), ErrNotEnoughGuards)

	// the same guard twice does not count twice
	cert = NewFinalizedBundleVotes(b.Hash(), 3, 0, [][]byte{sigs[0], sigs[1], sigs[0]})
	assert.ErrorIs(t, cert.VerifySignatures(gs), ErrDuplicateGuardSig)

	// outsiders are rejected
	_, outsider := RandGuard()
	extra := signVotes(t, []PrivValidator{outsider}, b, 0)
	cert = NewFinalizedBundleVotes(b.Hash(), 3, 0, append(sigs[:2:2], extra[0]))
	assert.ErrorIs(t, cert.VerifySignatures(gs), ErrGuardNotFound)

	// signatures over a different round do not recover to the guards
	cert = NewFinalizedBundleVotes(b.Hash(), 3, 1, sigs[:3])
	assert.Error(t, cert.VerifySignatures(gs))
}

func TestValidatedFinalizedBundle(t *testing.T) {
	_, privs := RandGuardSet(4)
	b := randBundle(3, 7)
	vb := &ValidatedFinalizedBundle{
		Votes:  NewFinalizedBundleVotes(b.Hash(), 3, 0, signVotes(t, privs, b, 0)),
		Bundle: *b,
	}
	assert.NoError(t, vb.ValidateBasic())

	vb.Bundle.Trades = append(vb.Bundle.Trades, []byte("trade-c"))
	assert.Error(t, vb.ValidateBasic())
}
