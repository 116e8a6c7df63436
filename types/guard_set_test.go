package types

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGuardSetBasic(t *testing.T) {
	gs := NewGuardSet([]*Guard{})
	assert.True(t, gs.IsNilOrEmpty())
	assert.Nil(t, gs.GetProposer(1, 0))
	assert.Error(t, gs.ValidateBasic())

	var nilSet *GuardSet
	assert.True(t, nilSet.IsNilOrEmpty())

	gs, privs := RandGuardSet(4)
	require.NoError(t, gs.ValidateBasic())
	assert.Equal(t, 4, gs.Size())

	for i, pv := range privs {
		idx, g := gs.GetByAddress(pv.GetAddress())
		assert.EqualValues(t, i, idx)
		assert.Equal(t, pv.GetAddress(), g.Address)
		assert.True(t, gs.HasAddress(pv.GetAddress()))
	}

	other, _ := RandGuard()
	idx, g := gs.GetByAddress(other.Address)
	assert.EqualValues(t, -1, idx)
	assert.Nil(t, g)
	assert.False(t, gs.HasAddress(other.Address))

	addr, g := gs.GetByIndex(4)
	assert.Nil(t, g)
	assert.Equal(t, GuardIdentity{}, addr)
}

func TestGuardSetDuplicates(t *testing.T) {
	g, _ := RandGuard()
	assert.Panics(t, func() {
		NewGuardSet([]*Guard{g, g})
	})

	gs, _ := RandGuardSet(2)
	err := gs.Update([]*Guard{g, g.Copy()})
	assert.ErrorIs(t, err, ErrDuplicateGuard)
	// 失败的更新不改变原集合
	assert.Equal(t, 2, gs.Size())

	assert.ErrorIs(t, gs.Update(nil), ErrEmptyGuardSet)
}

func TestGuardSetRoundRobin(t *testing.T) {
	gs, privs := RandGuardSet(4)

	for h := uint64(0); h < 12; h++ {
		p := gs.GetProposer(h, 0)
		assert.Equal(t, privs[h%4].GetAddress(), p.Address, "height %d", h)
	}

	// every guard leads exactly once in N consecutive heights
	seen := map[GuardIdentity]int{}
	for h := uint64(100); h < 104; h++ {
		seen[gs.GetProposer(h, 0).Address]++
	}
	assert.Len(t, seen, 4)

	// round moves the leader forward in the same order
	assert.Equal(t, privs[3].GetAddress(), gs.GetProposer(1, 2).Address)
	assert.Equal(t, gs.GetProposer(2, 0).Address, gs.GetProposer(1, 1).Address)
}

func TestGuardSetHashAndCopy(t *testing.T) {
	gs, _ := RandGuardSet(3)
	cp := gs.Copy()
	assert.Equal(t, gs.Hash(), cp.Hash())

	g, _ := RandGuard()
	require.NoError(t, cp.Update([]*Guard{g}))
	assert.NotEqual(t, gs.Hash(), cp.Hash())
	assert.Equal(t, 3, gs.Size())
	assert.Contains(t, gs.String(), "GuardSet{")
}

func TestGuardSetDocRoundTrip(t *testing.T) {
	gs, _ := RandGuardSet(4)
	doc := &GuardSetDoc{Epoch: 7}
	gs.Iterate(func(i int, g *Guard) bool {
		doc.Guards = append(doc.Guards, NewGuardDoc("guard", g))
		return false
	})

	file := filepath.Join(t.TempDir(), "guard_set.json")
	require.NoError(t, doc.SaveAs(file))

	loaded, err := GuardSetDocFromFile(file)
	require.NoError(t, err)
	assert.EqualValues(t, 7, loaded.Epoch)

	gs2, err := loaded.GuardSet()
	require.NoError(t, err)
	assert.Equal(t, gs.Hash(), gs2.Hash())

	loaded.Guards[0].Address = loaded.Guards[1].Address
	_, err = loaded.GuardSet()
	assert.Error(t, err)

	_, err = GuardSetDocFromFile(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}
