package types

import (
	"bytes"
	"crypto/ecdsa"
	"fmt"

	"github.com/ethereum/go-ethereum/crypto"
)

// PrivValidator defines the functionality of a local guard that signs
// consensus artifacts and knows its own identity.
type PrivValidator interface {
	GetAddress() GuardIdentity
	GetPubKey() *ecdsa.PublicKey

	// IsUs reports whether id is this guard.
	IsUs(id GuardIdentity) bool

	SignBundleVote(vote *BundleVote) error
	SignPrePropose(pp *PreProposeBundle) error
	SignProposal(proposal *LeaderProposal) error
	SignCommit(commit *ProposalCommit) error
}

type PrivValidatorsByAddress []PrivValidator

func (pvs PrivValidatorsByAddress) Len() int {
	return len(pvs)
}

func (pvs PrivValidatorsByAddress) Less(i, j int) bool {
	return bytes.Compare(pvs[i].GetAddress().Bytes(), pvs[j].GetAddress().Bytes()) == -1
}

func (pvs PrivValidatorsByAddress) Swap(i, j int) {
	pvs[i], pvs[j] = pvs[j], pvs[i]
}

//----------------------------------------
// MockPV

// MockPV implements PrivValidator without any safety or persistence.
// Only use it for testing.
type MockPV struct {
	PrivKey *ecdsa.PrivateKey
}

func NewMockPV() MockPV {
	priv, err := crypto.GenerateKey()
	if err != nil {
		panic(err)
	}
	return MockPV{PrivKey: priv}
}

func (pv MockPV) GetAddress() GuardIdentity {
	return crypto.PubkeyToAddress(pv.PrivKey.PublicKey)
}

func (pv MockPV) GetPubKey() *ecdsa.PublicKey {
	return &pv.PrivKey.PublicKey
}

func (pv MockPV) IsUs(id GuardIdentity) bool {
	return pv.GetAddress() == id
}

func (pv MockPV) SignBundleVote(vote *BundleVote) error {
	sig, err := Sign(pv.PrivKey, BundleVoteSignBytes(vote))
	if err != nil {
		return err
	}
	vote.Signature = sig
	return nil
}

func (pv MockPV) SignPrePropose(pp *PreProposeBundle) error {
	sig, err := Sign(pv.PrivKey, PreProposeSignBytes(pp))
	if err != nil {
		return err
	}
	pp.Signature = sig
	return nil
}

func (pv MockPV) SignProposal(proposal *LeaderProposal) error {
	sig, err := Sign(pv.PrivKey, ProposalSignBytes(proposal))
	if err != nil {
		return err
	}
	proposal.LeaderSignature = sig
	return nil
}

func (pv MockPV) SignCommit(commit *ProposalCommit) error {
	sig, err := Sign(pv.PrivKey, CommitSignBytes(commit))
	if err != nil {
		return err
	}
	commit.Signature = sig
	return nil
}

func (pv MockPV) String() string {
	return fmt.Sprintf("MockPV{%v}", pv.GetAddress().Hex())
}
