package types

import (
	"crypto/ecdsa"
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"
)

// SignatureLength is the size of a recoverable secp256k1 signature [R || S || V].
const SignatureLength = crypto.SignatureLength

var ErrInvalidSignature = errors.New("invalid signature")

// tags keep the sign bytes of different artifacts disjoint
const (
	bundleVoteTag = "guardbft/bundle_vote"
	preProposeTag = "guardbft/pre_propose"
	proposalTag   = "guardbft/proposal"
	commitTag     = "guardbft/commit"
)

// BundleVoteSignBytes returns the canonical encoding of (hash, height, round).
func BundleVoteSignBytes(vote *BundleVote) []byte {
	return mustEncode(bundleVoteTag, vote.Hash, vote.Height, vote.Round)
}

// PreProposeSignBytes returns the canonical encoding of a pre-propose lock.
func PreProposeSignBytes(pp *PreProposeBundle) []byte {
	return mustEncode(preProposeTag, pp.Height, pp.Round, bigOrZero(pp.LowerBound), pp.BundleHash)
}

// ProposalSignBytes returns the canonical encoding of a leader proposal:
// (height | round | hash(bundle) | lower bound | hash(pre-proposes)).
func ProposalSignBytes(p *LeaderProposal) []byte {
	return mustEncode(proposalTag, p.Height, p.Round, p.BundleHash(), bigOrZero(p.LowerBound), p.PrePreposesHash())
}

// CommitSignBytes returns the canonical encoding of a proposal commit.
func CommitSignBytes(c *ProposalCommit) []byte {
	return mustEncode(commitTag, c.Height, c.Round, c.ProposalHash, c.Nil)
}

func mustEncode(fields ...interface{}) []byte {
	bz, err := rlp.EncodeToBytes(fields)
	if err != nil {
		panic(err)
	}
	return bz
}

func bigOrZero(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v
}

// Sign signs keccak256(signBytes) with priv.
func Sign(priv *ecdsa.PrivateKey, signBytes []byte) ([]byte, error) {
	return crypto.Sign(crypto.Keccak256(signBytes), priv)
}

// RecoverGuard recovers the identity which produced sig over signBytes.
func RecoverGuard(signBytes, sig []byte) (GuardIdentity, error) {
	if len(sig) != SignatureLength {
		return GuardIdentity{}, ErrInvalidSignature
	}
	pub, err := crypto.SigToPub(crypto.Keccak256(signBytes), sig)
	if err != nil {
		return GuardIdentity{}, err
	}
	return crypto.PubkeyToAddress(*pub), nil
}

// Digest returns keccak256 of the sign bytes. Two artifacts with the same
// digest carry the same statement.
func Digest(signBytes []byte) common.Hash {
	return crypto.Keccak256Hash(signBytes)
}
