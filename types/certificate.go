package types

import (
	"bytes"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// FinalizedBundleVotes is the 2/3 certificate of a bundle: proof that more
// than two thirds of the guard set signed the same (hash, height, round).
type FinalizedBundleVotes struct {
	Hash       common.Hash `json:"hash"`
	Height     uint64      `json:"height"`
	Round      uint32      `json:"round"`
	Signatures [][]byte    `json:"signatures"`
}

func NewFinalizedBundleVotes(hash common.Hash, height uint64, round uint32, signatures [][]byte) FinalizedBundleVotes {
	sigs := make([][]byte, len(signatures))
	for i, sig := range signatures {
		sigs[i] = append([]byte(nil), sig...)
	}
	return FinalizedBundleVotes{
		Hash:       hash,
		Height:     height,
		Round:      round,
		Signatures: sigs,
	}
}

// Votes expands the certificate back into the individual votes.
func (fv *FinalizedBundleVotes) Votes() []*BundleVote {
	votes := make([]*BundleVote, len(fv.Signatures))
	for i, sig := range fv.Signatures {
		votes[i] = &BundleVote{
			Hash:      fv.Hash,
			Height:    fv.Height,
			Round:     fv.Round,
			Signature: sig,
		}
	}
	return votes
}

// VerifySignatures checks that every signature recovers to a distinct guard
// of the set and that the signers are more than two thirds of it.
func (fv *FinalizedBundleVotes) VerifySignatures(guards *GuardSet) error {
	seen := make(map[GuardIdentity]struct{}, len(fv.Signatures))
	for i, vote := range fv.Votes() {
		id, err := vote.RecoverGuard()
		if err != nil {
			return fmt.Errorf("signature #%d: %w", i, err)
		}
		if !guards.HasAddress(id) {
			return fmt.Errorf("signature #%d from %v: %w", i, id.Hex(), ErrGuardNotFound)
		}
		if _, ok := seen[id]; ok {
			return fmt.Errorf("signature #%d from %v: %w", i, id.Hex(), ErrDuplicateGuardSig)
		}
		seen[id] = struct{}{}
	}

	if !HasTwoThirds(len(seen), guards.Size()) {
		return fmt.Errorf("%w: got %d, needed %d", ErrNotEnoughGuards, len(seen), QuorumSize(guards.Size()))
	}
	return nil
}

// HasSignature reports whether sig is part of the certificate.
func (fv *FinalizedBundleVotes) HasSignature(sig []byte) bool {
	for _, s := range fv.Signatures {
		if bytes.Equal(s, sig) {
			return true
		}
	}
	return false
}

func (fv *FinalizedBundleVotes) String() string {
	return fmt.Sprintf("Bundle23Votes{%v %d/%d sigs:%d}", fv.Hash.TerminalString(), fv.Height, fv.Round, len(fv.Signatures))
}
