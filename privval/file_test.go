package privval

import (
	"io/ioutil"
	"math/big"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"guardbft/types"
)

func TestGenLoadFilePV(t *testing.T) {
	keyFilePath := filepath.Join(t.TempDir(), "guard_key.json")

	pv, err := GenFilePV(keyFilePath)
	require.NoError(t, err)
	require.NoError(t, pv.Save())

	loaded, err := LoadFilePV(keyFilePath)
	require.NoError(t, err)
	assert.Equal(t, pv.GetAddress(), loaded.GetAddress())
	assert.True(t, loaded.IsUs(pv.GetAddress()))

	again, err := LoadOrGenFilePV(keyFilePath)
	require.NoError(t, err)
	assert.Equal(t, pv.GetAddress(), again.GetAddress())
}

func TestLoadOrGenFilePV(t *testing.T) {
	keyFilePath := filepath.Join(t.TempDir(), "guard_key.json")

	pv, err := LoadOrGenFilePV(keyFilePath)
	require.NoError(t, err)

	loaded, err := LoadFilePV(keyFilePath)
	require.NoError(t, err)
	assert.Equal(t, pv.GetAddress(), loaded.GetAddress())
}

func TestLoadFilePVErrors(t *testing.T) {
	dir := t.TempDir()

	_, err := LoadFilePV(filepath.Join(dir, "missing.json"))
	assert.Error(t, err)

	bad := filepath.Join(dir, "bad.json")
	require.NoError(t, ioutil.WriteFile(bad, []byte(`{"priv_key":"0x1234"}`), 0600))
	_, err = LoadFilePV(bad)
	assert.Error(t, err)

	pv, err := GenFilePV(filepath.Join(dir, "a.json"))
	require.NoError(t, err)
	require.NoError(t, pv.Save())
	other, err := GenFilePV(filepath.Join(dir, "a.json"))
	require.NoError(t, err)
	// a key file whose address does not match its key is rejected
	other.Key.Address = pv.GetAddress()
	require.NoError(t, other.Save())
	_, err = LoadFilePV(filepath.Join(dir, "a.json"))
	assert.Error(t, err)

	assert.Error(t, NewFilePV(pv.Key.PrivKey, "").Save())
}

func TestFilePVSignatures(t *testing.T) {
	pv, err := GenFilePV("")
	require.NoError(t, err)

	vote := &types.BundleVote{Height: 1}
	require.NoError(t, pv.SignBundleVote(vote))
	id, err := vote.RecoverGuard()
	require.NoError(t, err)
	assert.Equal(t, pv.GetAddress(), id)

	pp := &types.PreProposeBundle{Height: 1, LowerBound: big.NewInt(3)}
	require.NoError(t, pv.SignPrePropose(pp))
	id, err = pp.RecoverGuard()
	require.NoError(t, err)
	assert.Equal(t, pv.GetAddress(), id)

	p := &types.LeaderProposal{Height: 1}
	require.NoError(t, pv.SignProposal(p))
	id, err = p.RecoverGuard()
	require.NoError(t, err)
	assert.Equal(t, pv.GetAddress(), id)

	c := &types.ProposalCommit{Height: 1, ProposalHash: p.Hash()}
	require.NoError(t, pv.SignCommit(c))
	id, err = c.RecoverGuard()
	require.NoError(t, err)
	assert.Equal(t, pv.GetAddress(), id)
}
