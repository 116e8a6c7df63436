package types

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// BundleVote - a guard's signed attestation to a bundle at (height, round).
// The voter is not carried; it is recovered from the signature.
type BundleVote struct {
	Hash      common.Hash `json:"hash"`
	Height    uint64      `json:"height"`
	Round     uint32      `json:"round"`
	Signature []byte      `json:"signature"`
}

func (vote *BundleVote) ValidateBasic() error {
	if vote == nil {
		return errors.New("nil vote")
	}
	if len(vote.Signature) != SignatureLength {
		return ErrInvalidSignature
	}
	return nil
}

// RecoverGuard returns the identity that signed the vote.
func (vote *BundleVote) RecoverGuard() (GuardIdentity, error) {
	return RecoverGuard(BundleVoteSignBytes(vote), vote.Signature)
}

func (vote *BundleVote) String() string {
	if vote == nil {
		return "nil-Vote"
	}
	return fmt.Sprintf("Vote{%v %d/%d}", vote.Hash.TerminalString(), vote.Height, vote.Round)
}
