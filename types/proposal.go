package types

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/tendermint/tendermint/crypto/merkle"
)

// PreProposeBundle is a guard's locked lower bound for (height, round).
type PreProposeBundle struct {
	Height     uint64      `json:"height"`
	Round      uint32      `json:"round"`
	LowerBound *big.Int    `json:"lower_bound"`
	BundleHash common.Hash `json:"bundle_hash"`
	Signature  []byte      `json:"signature"`
}

func (pp *PreProposeBundle) ValidateBasic() error {
	if pp == nil {
		return errors.New("nil pre-propose")
	}
	if pp.LowerBound != nil && pp.LowerBound.Sign() < 0 {
		return fmt.Errorf("negative lower bound: %v", pp.LowerBound)
	}
	if len(pp.Signature) != SignatureLength {
		return ErrInvalidSignature
	}
	return nil
}

func (pp *PreProposeBundle) RecoverGuard() (GuardIdentity, error) {
	return RecoverGuard(PreProposeSignBytes(pp), pp.Signature)
}

func (pp *PreProposeBundle) Digest() common.Hash {
	return Digest(PreProposeSignBytes(pp))
}

func (pp *PreProposeBundle) String() string {
	return fmt.Sprintf("PrePropose{%d/%d lb:%v %v}", pp.Height, pp.Round, bigOrZero(pp.LowerBound), pp.BundleHash.TerminalString())
}

// LeaderProposal is sent by the leader of (height, round): the best finalized
// bundle it knows (nil for an empty proposal) and the lower bound commit
// built from the pre-proposes it collected.
type LeaderProposal struct {
	Height          uint64                    `json:"height"`
	Round           uint32                    `json:"round"`
	Bundle          *ValidatedFinalizedBundle `json:"bundle"`
	LowerBound      *big.Int                  `json:"lower_bound"`
	PrePreposes     []PreProposeBundle        `json:"pre_proposes"`
	LeaderSignature []byte                    `json:"leader_signature"`
}

func (p *LeaderProposal) ValidateBasic() error {
	if p == nil {
		return errors.New("nil proposal")
	}
	if p.Bundle != nil {
		if err := p.Bundle.ValidateBasic(); err != nil {
			return fmt.Errorf("proposal bundle: %w", err)
		}
		if p.Bundle.Bundle.Height != p.Height {
			return fmt.Errorf("proposal bundle height %d, expected %d", p.Bundle.Bundle.Height, p.Height)
		}
	}
	if len(p.LeaderSignature) != SignatureLength {
		return ErrInvalidSignature
	}
	return nil
}

// BundleHash returns the hash of the proposed bundle, zero when empty.
func (p *LeaderProposal) BundleHash() common.Hash {
	if p.Bundle == nil {
		return common.Hash{}
	}
	return p.Bundle.Votes.Hash
}

// Score returns the proposed bundle's cumulative LP bribe, zero when empty.
func (p *LeaderProposal) Score() *big.Int {
	if p.Bundle == nil {
		return new(big.Int)
	}
	return p.Bundle.Bundle.GetCumulativeLPBribe()
}

// PrePreposesHash is the merkle root over the included pre-proposes.
func (p *LeaderProposal) PrePreposesHash() []byte {
	bzs := make([][]byte, len(p.PrePreposes))
	for i := range p.PrePreposes {
		pp := &p.PrePreposes[i]
		bzs[i] = append(pp.Digest().Bytes(), pp.Signature...)
	}
	return merkle.HashFromByteSlices(bzs)
}

// Hash identifies the proposal; commits refer to it.
func (p *LeaderProposal) Hash() common.Hash {
	return Digest(ProposalSignBytes(p))
}

func (p *LeaderProposal) RecoverGuard() (GuardIdentity, error) {
	return RecoverGuard(ProposalSignBytes(p), p.LeaderSignature)
}

func (p *LeaderProposal) String() string {
	return fmt.Sprintf("Proposal{%d/%d %v lb:%v pp:%d}", p.Height, p.Round, p.BundleHash().TerminalString(), bigOrZero(p.LowerBound), len(p.PrePreposes))
}

// ProposalCommit is a commit vote on a proposal, or a nil vote.
type ProposalCommit struct {
	Height       uint64      `json:"height"`
	Round        uint32      `json:"round"`
	ProposalHash common.Hash `json:"proposal_hash"`
	Nil          bool        `json:"nil"`
	Signature    []byte      `json:"signature"`
}

func (c *ProposalCommit) ValidateBasic() error {
	if c == nil {
		return errors.New("nil commit")
	}
	if len(c.Signature) != SignatureLength {
		return ErrInvalidSignature
	}
	return nil
}

func (c *ProposalCommit) RecoverGuard() (GuardIdentity, error) {
	return RecoverGuard(CommitSignBytes(c), c.Signature)
}

func (c *ProposalCommit) Digest() common.Hash {
	return Digest(CommitSignBytes(c))
}

func (c *ProposalCommit) String() string {
	if c.Nil {
		return fmt.Sprintf("Commit{%d/%d nil}", c.Height, c.Round)
	}
	return fmt.Sprintf("Commit{%d/%d %v}", c.Height, c.Round, c.ProposalHash.TerminalString())
}

// SubmissionBundle is what the leader relays once its proposal committed.
type SubmissionBundle struct {
	Proposal LeaderProposal   `json:"proposal"`
	Commits  []ProposalCommit `json:"commits"`
}

func (sb *SubmissionBundle) Height() uint64 {
	return sb.Proposal.Height
}

// Verify checks the leader signature and that more than two thirds of the
// guards committed (non-nil) to the proposal.
func (sb *SubmissionBundle) Verify(guards *GuardSet) error {
	if err := sb.Proposal.ValidateBasic(); err != nil {
		return err
	}
	leader, err := sb.Proposal.RecoverGuard()
	if err != nil {
		return err
	}
	if !guards.HasAddress(leader) {
		return fmt.Errorf("proposal leader %v: %w", leader.Hex(), ErrGuardNotFound)
	}

	hash := sb.Proposal.Hash()
	seen := make(map[GuardIdentity]struct{}, len(sb.Commits))
	for i := range sb.Commits {
		c := &sb.Commits[i]
		if c.Nil || c.ProposalHash != hash || c.Height != sb.Proposal.Height || c.Round != sb.Proposal.Round {
			return fmt.Errorf("commit #%d does not commit to the proposal", i)
		}
		id, err := c.RecoverGuard()
		if err != nil {
			return fmt.Errorf("commit #%d: %w", i, err)
		}
		if !guards.HasAddress(id) {
			return fmt.Errorf("commit #%d from %v: %w", i, id.Hex(), ErrGuardNotFound)
		}
		if _, ok := seen[id]; ok {
			return fmt.Errorf("commit #%d from %v: %w", i, id.Hex(), ErrDuplicateGuardSig)
		}
		seen[id] = struct{}{}
	}
	if !HasTwoThirds(len(seen), guards.Size()) {
		return fmt.Errorf("%w: got %d commits, needed %d", ErrNotEnoughGuards, len(seen), QuorumSize(guards.Size()))
	}
	return nil
}
