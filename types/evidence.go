package types

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

type EvidenceKind uint8

const (
	PreProposeEvidence = EvidenceKind(1)
	ProposalEvidence   = EvidenceKind(2)
	CommitEvidence     = EvidenceKind(3)
)

func (k EvidenceKind) String() string {
	switch k {
	case PreProposeEvidence:
		return "PrePropose"
	case ProposalEvidence:
		return "Proposal"
	case CommitEvidence:
		return "Commit"
	default:
		return "UnknownEvidence"
	}
}

// SignedArtifact is one signed statement: the digest of its sign bytes and
// the signature over them.
type SignedArtifact struct {
	Digest    common.Hash `json:"digest"`
	Signature []byte      `json:"signature"`
}

// Evidence - two conflicting statements from the same guard at the same
// (height, round). Punishment is decided outside consensus.
type Evidence struct {
	Kind   EvidenceKind   `json:"kind"`
	Guard  GuardIdentity  `json:"guard"`
	Height uint64         `json:"height"`
	Round  uint32         `json:"round"`
	First  SignedArtifact `json:"first"`
	Second SignedArtifact `json:"second"`
}

func (ev *Evidence) String() string {
	return fmt.Sprintf("Evidence{%v %v %d/%d %v!=%v}",
		ev.Kind, ev.Guard.Hex(), ev.Height, ev.Round,
		ev.First.Digest.TerminalString(), ev.Second.Digest.TerminalString())
}
