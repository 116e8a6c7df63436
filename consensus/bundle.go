package consensus

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/tendermint/tendermint/libs/log"

	cstypes "guardbft/consensus/types"
	"guardbft/types"
)

// 只接受当前高度和下一个高度的bundle
const maxFutureHeights = 1

type voteKey struct {
	hash   common.Hash
	height uint64
	round  uint32
}

// BundleVoteManager tracks candidate bundles and their vote tallies, and
// promotes a tally to a finalized bundle once 2/3 of the guards signed it.
// NOTE: not goroutine safe, owned by the consensus receive routine.
type BundleVoteManager struct {
	logger log.Logger
	guards *types.GuardSet
	self   types.GuardIdentity

	// bundles outside [height, height+maxFutureHeights] are dropped
	height uint64

	pending map[common.Hash]*types.Bundle
	tallies map[voteKey]*cstypes.VoteSet
	// certified hash -> height, late votes for them are ignored
	certified map[common.Hash]uint64
	// certificates which arrived before their bundle
	orphans map[common.Hash]*types.FinalizedBundleVotes
	// hashes this guard voted on
	voted map[common.Hash]uint64
	best  map[uint64]*types.ValidatedFinalizedBundle
}

// NewBundleVoteManager returns a manager accepting bundles from height on.
func NewBundleVoteManager(guards *types.GuardSet, self types.GuardIdentity, height uint64) *BundleVoteManager {
	return &BundleVoteManager{
		logger:    log.NewNopLogger(),
		guards:    guards,
		self:      self,
		height:    height,
		pending:   make(map[common.Hash]*types.Bundle),
		tallies:   make(map[voteKey]*cstypes.VoteSet),
		certified: make(map[common.Hash]uint64),
		orphans:   make(map[common.Hash]*types.FinalizedBundleVotes),
		voted:     make(map[common.Hash]uint64),
		best:      make(map[uint64]*types.ValidatedFinalizedBundle),
	}
}

func (bm *BundleVoteManager) SetLogger(logger log.Logger) {
	bm.logger = logger
}

// SubmitBundle registers a candidate bundle. Only the first sighting of a
// hash returns a SignAndPropagate.
func (bm *BundleVoteManager) SubmitBundle(bundle *types.Bundle) *types.SignAndPropagate {
	if err := bundle.ValidateBasic(); err != nil {
		bm.logger.Error("invalid bundle", "err", err)
		return nil
	}
	if !bm.inWindow(bundle.Height) {
		bm.logger.Debug("bundle out of height window", "bundle", bundle, "height", bm.height)
		return nil
	}

	hash := bundle.Hash()
	if _, ok := bm.pending[hash]; ok {
		return nil
	}

	// 证书先于bundle到达，直接补全
	if cert, ok := bm.orphans[hash]; ok {
		delete(bm.orphans, hash)
		bm.pending[hash] = bundle
		bm.attach(cert, bundle)
		return nil
	}
	if _, ok := bm.certified[hash]; ok {
		return nil
	}

	bm.pending[hash] = bundle
	return &types.SignAndPropagate{Hash: hash}
}

// SubmitVote tallies a bundle vote. When the tally of (hash, height, round)
// crosses 2/3 of the guard set it is removed and returned as a certificate.
// Invalid, unknown and duplicate votes are dropped.
func (bm *BundleVoteManager) SubmitVote(vote *types.BundleVote) *types.FinalizedBundleVotes {
	if err := vote.ValidateBasic(); err != nil {
		bm.logger.Debug("invalid bundle vote", "err", err)
		return nil
	}
	if !bm.inWindow(vote.Height) {
		return nil
	}
	if _, ok := bm.certified[vote.Hash]; ok {
		return nil
	}

	id, err := vote.RecoverGuard()
	if err != nil {
		bm.logger.Debug("can not recover bundle vote signer", "vote", vote, "err", err)
		return nil
	}
	idx, _ := bm.guards.GetByAddress(id)
	if idx < 0 {
		bm.logger.Debug("bundle vote from unknown guard", "guard", id.Hex(), "vote", vote)
		return nil
	}

	key := voteKey{vote.Hash, vote.Height, vote.Round}
	vs, ok := bm.tallies[key]
	if !ok {
		vs = cstypes.NewVoteSet(vote.Hash, vote.Height, vote.Round, bm.guards.Size())
		bm.tallies[key] = vs
	}
	if err := vs.AddVote(idx, vote); err != nil {
		bm.logger.Debug("drop bundle vote", "vote", vote, "guard", id.Hex(), "err", err)
		return nil
	}
	if id == bm.self {
		bm.voted[vote.Hash] = vote.Height
	}

	if !vs.HasTwoThirds() {
		return nil
	}

	delete(bm.tallies, key)
	bm.certified[vote.Hash] = vote.Height
	cert := vs.MakeCertificate()
	bm.logger.Info("bundle reached 2/3", "cert", &cert)
	return &cert
}

// Finalize23 verifies a certificate and attaches it to its bundle. It
// returns true when the certificate was attached. A certificate whose bundle
// is unknown is remembered until the bundle arrives.
func (bm *BundleVoteManager) Finalize23(cert *types.FinalizedBundleVotes) bool {
	if !bm.inWindow(cert.Height) {
		return false
	}
	if err := cert.VerifySignatures(bm.guards); err != nil {
		bm.logger.Error("invalid 2/3 certificate", "cert", cert, "err", err)
		return false
	}
	bm.certified[cert.Hash] = cert.Height

	bundle, ok := bm.pending[cert.Hash]
	if !ok {
		bm.logger.Info("no bundle for 2/3 certificate yet", "cert", cert)
		if _, exist := bm.orphans[cert.Hash]; !exist {
			bm.orphans[cert.Hash] = cert
		}
		return false
	}
	return bm.attach(cert, bundle)
}

func (bm *BundleVoteManager) inWindow(height uint64) bool {
	return height >= bm.height && height <= bm.height+maxFutureHeights
}

func (bm *BundleVoteManager) attach(cert *types.FinalizedBundleVotes, bundle *types.Bundle) bool {
	if cert.Height != bundle.Height {
		bm.logger.Error("certificate height does not match bundle", "cert", cert, "bundle", bundle)
		return false
	}

	vb := &types.ValidatedFinalizedBundle{Votes: *cert, Bundle: *bundle}
	cur, ok := bm.best[bundle.Height]
	switch {
	case !ok:
		bm.best[bundle.Height] = vb
	case cur.Votes.Hash == cert.Hash:
		// 已经是当前最优
		return true
	case bundle.GetCumulativeLPBribe().Cmp(cur.Bundle.GetCumulativeLPBribe()) > 0:
		bm.best[bundle.Height] = vb
	default:
		return true
	}
	bm.logger.Info("new best finalized bundle", "bundle", bundle)
	return true
}

// HasVoted reports whether this guard's own vote for hash was recorded.
func (bm *BundleVoteManager) HasVoted(hash common.Hash) bool {
	_, ok := bm.voted[hash]
	return ok
}

// Best returns the most profitable finalized bundle of height, or nil.
func (bm *BundleVoteManager) Best(height uint64) *types.ValidatedFinalizedBundle {
	return bm.best[height]
}

// Pending returns the number of bundles waiting for a certificate.
func (bm *BundleVoteManager) Pending() int {
	n := 0
	for hash := range bm.pending {
		if _, ok := bm.certified[hash]; !ok {
			n++
		}
	}
	return n
}

// Prune drops everything below height.
func (bm *BundleVoteManager) Prune(height uint64) {
	bm.height = height
	for hash, b := range bm.pending {
		if b.Height < height {
			delete(bm.pending, hash)
		}
	}
	for key := range bm.tallies {
		if key.height < height {
			delete(bm.tallies, key)
		}
	}
	for hash, h := range bm.certified {
		if h < height {
			delete(bm.certified, hash)
		}
	}
	for hash, cert := range bm.orphans {
		if cert.Height < height {
			delete(bm.orphans, hash)
		}
	}
	for hash, h := range bm.voted {
		if h < height {
			delete(bm.voted, hash)
		}
	}
	for h := range bm.best {
		if h < height {
			delete(bm.best, h)
		}
	}
}
