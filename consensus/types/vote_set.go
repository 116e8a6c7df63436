package types

import (
	"bytes"

	"github.com/bits-and-blooms/bitset"
	"github.com/ethereum/go-ethereum/common"

	"guardbft/types"
)

// VoteSet collects bundle votes on one (hash, height, round). A guard is
// counted at most once, tracked by its index in the guard set.
type VoteSet struct {
	Hash   common.Hash
	Height uint64
	Round  uint32

	size   int
	voters *bitset.BitSet
	// 按guard index保存签名
	sigs map[uint]*types.BundleVote
}

func NewVoteSet(hash common.Hash, height uint64, round uint32, size int) *VoteSet {
	return &VoteSet{
		Hash:   hash,
		Height: height,
		Round:  round,
		size:   size,
		voters: bitset.New(uint(size)),
		sigs:   make(map[uint]*types.BundleVote, size),
	}
}

// AddVote records the vote of the guard at index idx. A byte-identical
// signature returns ErrDuplicateVote, any other second vote of the same
// guard returns ErrDuplicateVoter.
func (vs *VoteSet) AddVote(idx int32, vote *types.BundleVote) error {
	for _, v := range vs.sigs {
		if bytes.Equal(v.Signature, vote.Signature) {
			return ErrDuplicateVote
		}
	}
	i := uint(idx)
	if vs.voters.Test(i) {
		return ErrDuplicateVoter
	}
	vs.voters.Set(i)
	vs.sigs[i] = vote
	return nil
}

// Count returns the number of distinct guards which voted.
func (vs *VoteSet) Count() int {
	return int(vs.voters.Count())
}

func (vs *VoteSet) HasTwoThirds() bool {
	return types.HasTwoThirds(vs.Count(), vs.size)
}

// MakeCertificate returns the collected signatures as a certificate,
// ordered by guard index.
func (vs *VoteSet) MakeCertificate() types.FinalizedBundleVotes {
	sigs := make([][]byte, 0, vs.Count())
	for i, ok := vs.voters.NextSet(0); ok; i, ok = vs.voters.NextSet(i + 1) {
		sigs = append(sigs, vs.sigs[i].Signature)
	}
	return types.NewFinalizedBundleVotes(vs.Hash, vs.Height, vs.Round, sigs)
}
