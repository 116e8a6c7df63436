package consensus

import (
	"fmt"

	"github.com/tendermint/tendermint/libs/log"

	"guardbft/types"
)

// EvidenceStore persists recorded evidence.
type EvidenceStore interface {
	SaveEvidence(ev *types.Evidence) error
}

// EvidenceError is returned when recorded evidence could not be handled.
type EvidenceError struct {
	Evidence *types.Evidence
	Err      error
}

func (e *EvidenceError) Error() string {
	return fmt.Sprintf("evidence %v: %v", e.Evidence, e.Err)
}

func (e *EvidenceError) Unwrap() error {
	return e.Err
}

type evidenceKey struct {
	kind   types.EvidenceKind
	guard  types.GuardIdentity
	height uint64
	round  uint32
}

// EvidenceCollector remembers the first signed statement of each guard per
// (kind, height, round) and records evidence when a different one shows up.
// NOTE: not goroutine safe, owned by the consensus receive routine.
type EvidenceCollector struct {
	logger log.Logger
	store  EvidenceStore

	seen     map[evidenceKey]types.SignedArtifact
	recorded map[evidenceKey]struct{}
	evidence []*types.Evidence
}

func NewEvidenceCollector(store EvidenceStore) *EvidenceCollector {
	return &EvidenceCollector{
		logger:   log.NewNopLogger(),
		store:    store,
		seen:     make(map[evidenceKey]types.SignedArtifact),
		recorded: make(map[evidenceKey]struct{}),
	}
}

func (ec *EvidenceCollector) SetLogger(logger log.Logger) {
	ec.logger = logger
}

func (ec *EvidenceCollector) ObservePrePropose(id types.GuardIdentity, pp *types.PreProposeBundle) (*types.Evidence, error) {
	return ec.observe(evidenceKey{types.PreProposeEvidence, id, pp.Height, pp.Round},
		types.SignedArtifact{Digest: pp.Digest(), Signature: pp.Signature})
}

func (ec *EvidenceCollector) ObserveProposal(id types.GuardIdentity, p *types.LeaderProposal) (*types.Evidence, error) {
	return ec.observe(evidenceKey{types.ProposalEvidence, id, p.Height, p.Round},
		types.SignedArtifact{Digest: p.Hash(), Signature: p.LeaderSignature})
}

func (ec *EvidenceCollector) ObserveCommit(id types.GuardIdentity, c *types.ProposalCommit) (*types.Evidence, error) {
	return ec.observe(evidenceKey{types.CommitEvidence, id, c.Height, c.Round},
		types.SignedArtifact{Digest: c.Digest(), Signature: c.Signature})
}

// observe returns the new evidence, if any. The error is non nil only
// when the evidence could not be persisted.
func (ec *EvidenceCollector) observe(key evidenceKey, art types.SignedArtifact) (*types.Evidence, error) {
	first, ok := ec.seen[key]
	if !ok {
		ec.seen[key] = art
		return nil, nil
	}
	if first.Digest == art.Digest {
		return nil, nil
	}
	if _, ok := ec.recorded[key]; ok {
		return nil, nil
	}

	ev := &types.Evidence{
		Kind:   key.kind,
		Guard:  key.guard,
		Height: key.height,
		Round:  key.round,
		First:  first,
		Second: art,
	}
	ec.recorded[key] = struct{}{}
	ec.evidence = append(ec.evidence, ev)
	ec.logger.Error("conflicting statements from guard", "evidence", ev)

	if ec.store != nil {
		if err := ec.store.SaveEvidence(ev); err != nil {
			return ev, &EvidenceError{Evidence: ev, Err: err}
		}
	}
	return ev, nil
}

// Evidence returns all evidence recorded so far.
func (ec *EvidenceCollector) Evidence() []*types.Evidence {
	out := make([]*types.Evidence, len(ec.evidence))
	copy(out, ec.evidence)
	return out
}

// Prune drops first-seen statements below height. Recorded evidence is kept.
func (ec *EvidenceCollector) Prune(height uint64) {
	for key := range ec.seen {
		if key.height < height {
			delete(ec.seen, key)
		}
	}
	for key := range ec.recorded {
		if key.height < height {
			delete(ec.recorded, key)
		}
	}
}
