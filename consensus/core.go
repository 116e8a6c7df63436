package consensus

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sort"
	"sync/atomic"
	"time"

	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/tendermint/tendermint/libs/log"
	"github.com/tendermint/tendermint/libs/service"

	"guardbft/config"
	cstypes "guardbft/consensus/types"
	"guardbft/libs/metric"
	"guardbft/types"
)

var ErrCoreStopped = errors.New("consensus core stopped")

// ConsensusError is delivered on the core stream when the core could not
// handle something the application must know about.
type ConsensusError struct {
	Err error
}

func (e *ConsensusError) Error() string {
	return fmt.Sprintf("consensus error: %v", e.Err)
}

func (e *ConsensusError) Unwrap() error {
	return e.Err
}

// FinalizedStore persists committed submissions.
type FinalizedStore interface {
	SaveFinalized(sb *types.SubmissionBundle) error
}

// Core - 共识状态机，负责共识逻辑的推进
// 所有状态只由receiveRoutine修改，外部通过channel投递事件，通过Next拉取输出
type Core struct {
	service.BaseService

	config *config.ConsensusConfig

	privVal types.PrivValidator
	guards  *types.GuardSet

	leaders  *RoundRobin
	bundles  *BundleVoteManager
	evidence *EvidenceCollector

	finalizedStore FinalizedStore
	evidenceStore  EvidenceStore

	// 共识内部状态
	rs cstypes.RoundState
	// 本地引擎给出的最优bundle
	bestSolved  *types.BestSolvedBundleData
	heightStart time.Time
	// 供RPC读取的round state快照
	summary atomic.Value
	// 未来轮次的消息，进入对应轮次后重放
	future []futureMsg

	// 通信管道
	peerMsgQueue     chan msgInfo // 处理来自其他节点的消息
	internalMsgQueue chan msgInfo // 本节点的区块、bundle等事件
	timeoutTicker    TimeoutTicker

	// 输出队列，receiveRoutine通过outboundCh交给Next
	outQueue   []outbound
	outboundCh chan outbound

	metrics *consensusMetric
}

type CoreOption func(*Core)

// WithEvidenceStore persists recorded evidence.
func WithEvidenceStore(store EvidenceStore) CoreOption {
	return func(cs *Core) {
		cs.evidenceStore = store
	}
}

// WithFinalizedStore persists committed submissions.
func WithFinalizedStore(store FinalizedStore) CoreOption {
	return func(cs *Core) {
		cs.finalizedStore = store
	}
}

// WithTimeoutTicker replaces the default ticker.
func WithTimeoutTicker(tt TimeoutTicker) CoreOption {
	return func(cs *Core) {
		cs.timeoutTicker = tt
	}
}

func NewCore(
	config *config.ConsensusConfig,
	privVal types.PrivValidator,
	guards *types.GuardSet,
	options ...CoreOption,
) (*Core, error) {
	if err := guards.ValidateBasic(); err != nil {
		return nil, err
	}

	cs := &Core{
		config:           config,
		privVal:          privVal,
		guards:           guards,
		leaders:          NewRoundRobin(guards),
		bundles:          NewBundleVoteManager(guards, privVal.GetAddress(), config.GenesisHeight+1),
		rs:               cstypes.NewRoundState(config.GenesisHeight),
		peerMsgQueue:     make(chan msgInfo, config.PeerQueueSize),
		internalMsgQueue: make(chan msgInfo),
		timeoutTicker:    NewTimeoutTicker(),
		outboundCh:       make(chan outbound),
		metrics:          newConsensusMetric(),
	}
	cs.BaseService = *service.NewBaseService(nil, "CONSENSUS", cs)

	for _, opt := range options {
		opt(cs)
	}
	cs.evidence = NewEvidenceCollector(cs.evidenceStore)
	cs.summary.Store(cs.rs.Summary())

	if !guards.HasAddress(privVal.GetAddress()) {
		cs.Logger.Info("this node is not a guard, running as observer", "address", privVal.GetAddress().Hex())
	}

	return cs, nil
}

func (cs *Core) SetLogger(logger log.Logger) {
	cs.Logger = logger
	cs.bundles.SetLogger(logger.With("module", "bundles"))
	cs.evidence.SetLogger(logger.With("module", "evidence"))
	cs.timeoutTicker.SetLogger(logger.With("module", "ticker"))
}

// Metrics returns the consensus metrics.
func (cs *Core) Metrics() metric.MetricItem {
	return cs.metrics.Item()
}

func (cs *Core) OnStart() error {
	if err := cs.timeoutTicker.Start(); err != nil {
		return err
	}
	go cs.receiveRoutine()
	cs.Logger.Info("consensus receive routine started.", "height", cs.rs.Height)
	return nil
}

func (cs *Core) OnStop() {
	if err := cs.timeoutTicker.Stop(); err != nil {
		cs.Logger.Error("failed trying to stop timeoutTicker", "error", err)
	}
	cs.Logger.Info("consensus core stopped.")
}

// ------ inbound ------

// NewBlock hands the next chain block to the core. Blocks must be handed
// in order with no gap.
func (cs *Core) NewBlock(header *ethtypes.Header) error {
	return cs.send(cs.internalMsgQueue, &newBlockMessage{Header: header})
}

// NewSimmedBundle hands a bundle the local engine simulated.
func (cs *Core) NewSimmedBundle(bundle *types.Bundle) error {
	return cs.send(cs.internalMsgQueue, &simmedBundleMessage{Bundle: bundle})
}

// BetterBundle hands the local engine's best bundle and the lower bound
// this guard locks for it.
func (cs *Core) BetterBundle(data *types.BestSolvedBundleData) error {
	return cs.send(cs.internalMsgQueue, &betterBundleMessage{Data: data})
}

func (cs *Core) NewBundleVote(vote *types.BundleVote) error {
	return cs.send(cs.peerMsgQueue, &BundleVoteMessage{Vote: vote})
}

func (cs *Core) NewBundle23(votes *types.FinalizedBundleVotes) error {
	return cs.send(cs.peerMsgQueue, &Bundle23Message{Votes: votes})
}

func (cs *Core) NewPrePropose(pp *types.PreProposeBundle) error {
	return cs.send(cs.peerMsgQueue, &PreProposeMessage{PrePropose: pp})
}

func (cs *Core) Proposal(p *types.LeaderProposal) error {
	return cs.send(cs.peerMsgQueue, &ProposalMessage{Proposal: p})
}

func (cs *Core) ProposalCommit(c *types.ProposalCommit) error {
	return cs.send(cs.peerMsgQueue, &CommitMessage{Commit: c})
}

// HandleMessage hands a message received from another guard.
func (cs *Core) HandleMessage(msg ConsensusMessage) error {
	return cs.send(cs.peerMsgQueue, msg)
}

// 阻塞写入，保证同一来源的消息按顺序处理
func (cs *Core) send(queue chan msgInfo, msg Message) error {
	select {
	case queue <- msgInfo{Msg: msg}:
		return nil
	case <-cs.Quit():
		return ErrCoreStopped
	}
}

// ------ outbound ------

// Next blocks until the next outbound message or error is ready. It returns
// ctx.Err() when ctx is done and ErrCoreStopped once the core stopped.
func (cs *Core) Next(ctx context.Context) (ConsensusMessage, error) {
	select {
	case out := <-cs.outboundCh:
		return out.Msg, out.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-cs.Quit():
		return nil, ErrCoreStopped
	}
}

func (cs *Core) emit(msg ConsensusMessage) {
	cs.Logger.Debug("emit", "msg", msg)
	cs.outQueue = append(cs.outQueue, outbound{Msg: msg})
}

func (cs *Core) emitError(err error) {
	cs.Logger.Error("consensus error", "err", err)
	cs.outQueue = append(cs.outQueue, outbound{Err: &ConsensusError{Err: err}})
}

// ------ receive routine ------

// receiveRoutine负责接收所有的消息，并把输出队列交给Next
func (cs *Core) receiveRoutine() {
	cs.Logger.Debug("consensus receive routine starts.")
	for {
		var (
			outCh chan<- outbound
			next  outbound
		)
		if len(cs.outQueue) > 0 {
			outCh = cs.outboundCh
			next = cs.outQueue[0]
		}

		select {
		case <-cs.Quit():
			cs.Logger.Info("receiveRoutine quit.", "dropped", len(cs.outQueue))
			return

		case mi := <-cs.internalMsgQueue:
			cs.handleMsg(mi)
			cs.summary.Store(cs.rs.Summary())

		case mi := <-cs.peerMsgQueue:
			// 接收到其他节点的消息
			cs.handleMsg(mi)
			cs.summary.Store(cs.rs.Summary())

		case ti := <-cs.timeoutTicker.Chan():
			cs.handleTimeout(ti)
			cs.summary.Store(cs.rs.Summary())

		case outCh <- next:
			cs.outQueue[0] = outbound{}
			cs.outQueue = cs.outQueue[1:]
		}
	}
}

// handleMsg 根据不同的消息类型进行操作
func (cs *Core) handleMsg(mi msgInfo) {
	msg := mi.Msg
	if err := msg.ValidateBasic(); err != nil {
		cs.Logger.Debug("drop invalid message", "msg", msg, "err", err)
		cs.metrics.dropped.Inc(1)
		return
	}

	switch msg := msg.(type) {
	case *newBlockMessage:
		cs.handleNewBlock(msg.Header)
	case *simmedBundleMessage:
		cs.handleSimmedBundle(msg.Bundle)
	case *betterBundleMessage:
		cs.handleBetterBundle(msg.Data)
	case *BundleVoteMessage:
		cs.handleBundleVote(msg.Vote)
	case *Bundle23Message:
		cs.bundles.Finalize23(msg.Votes)
	case *PreProposeMessage:
		cs.handlePrePropose(msg.PrePropose)
	case *ProposalMessage:
		cs.handleProposal(msg.Proposal)
	case *CommitMessage:
		cs.handleCommit(msg.Commit)
	case *RelaySubmissionMessage:
		// 由leader发给外部，这里只做记录
		cs.Logger.Debug("ignore relay submission from peer", "msg", msg)
	default:
		cs.Logger.Error("unknown msg type", "type", fmt.Sprintf("%T", msg))
	}
	cs.metrics.pending.Update(int64(cs.bundles.Pending()))
}

func (cs *Core) handleNewBlock(header *ethtypes.Header) {
	number := header.Number.Uint64()
	leader, _ := cs.leaders.OnNewBlock(header)

	// 高度不连续时直接panic
	cs.rs.NewHeight(number, leader, cs.privVal.IsUs(leader))
	cs.heightStart = time.Now()
	cs.Logger.Info("enter new height", "height", number, "leader", leader.Hex(), "isLeader", cs.rs.IsLeader)

	cs.bundles.Prune(number)
	cs.evidence.Prune(number)
	cs.enterRound()
}

// enterRound runs once the round state moved to a new (height, round).
func (cs *Core) enterRound() {
	cs.metrics.MarkRound(cs.rs.Height, cs.rs.Round, cs.rs.IsLeader)
	cs.timeoutTicker.ScheduleTimeout(timeoutInfo{
		Duration: cs.config.TimeoutPropose,
		Height:   cs.rs.Height,
		Round:    cs.rs.Round,
		Step:     cstypes.RoundStepPrePropose,
	})

	if cs.bestSolved != nil && cs.bestSolved.Bundle.Height == cs.rs.Height {
		cs.lockLowerBound(cs.bestSolved)
	}
	cs.replayFuture()
}

// futureMsg is a signed statement of guard from, kept for a later round.
type futureMsg struct {
	from types.GuardIdentity
	msg  Message
}

func isFuture(rs *cstypes.RoundState, height uint64, round uint32) bool {
	return (height == rs.Height && round > rs.Round) || height == rs.Height+1
}

// deferFuture keeps a message of a later round of this height, or of the
// next height, until the core gets there. from must already be a verified
// guard. Each guard gets an equal share of the buffer.
func (cs *Core) deferFuture(from types.GuardIdentity, msg Message) {
	share := cs.config.PeerQueueSize / cs.guards.Size()
	if share < 1 {
		share = 1
	}
	n := 0
	for _, fm := range cs.future {
		if fm.from == from {
			n++
		}
	}
	if n >= share || len(cs.future) >= cs.config.PeerQueueSize {
		cs.metrics.dropped.Inc(1)
		cs.Logger.Debug("future buffer full", "guard", from.Hex(), "kept", n)
		return
	}
	cs.future = append(cs.future, futureMsg{from: from, msg: msg})
}

func (cs *Core) replayFuture() {
	if len(cs.future) == 0 {
		return
	}
	pending := cs.future
	cs.future = nil
	for _, fm := range pending {
		height, round := roundOf(fm.msg)
		switch {
		case height < cs.rs.Height || (height == cs.rs.Height && round < cs.rs.Round):
			// 已经过期
		case height == cs.rs.Height && round == cs.rs.Round:
			cs.handleMsg(msgInfo{Msg: fm.msg})
		default:
			cs.future = append(cs.future, fm)
		}
	}
}

func roundOf(msg Message) (uint64, uint32) {
	switch msg := msg.(type) {
	case *PreProposeMessage:
		return msg.PrePropose.Height, msg.PrePropose.Round
	case *ProposalMessage:
		return msg.Proposal.Height, msg.Proposal.Round
	case *CommitMessage:
		return msg.Commit.Height, msg.Commit.Round
	}
	return 0, 0
}

func (cs *Core) handleTimeout(ti timeoutInfo) {
	if ti.Height != cs.rs.Height || ti.Round != cs.rs.Round {
		cs.Logger.Debug("ignore expired timeout", "ti", ti, "state", cs.rs.String())
		return
	}

	switch ti.Step {
	case cstypes.RoundStepPrePropose:
		if cs.rs.Step != cstypes.RoundStepPrePropose {
			return
		}
		// 没有收到leader的提案，投nil
		cs.Logger.Info("timeout waiting for proposal", "height", cs.rs.Height, "round", cs.rs.Round)
		cs.signCommit(nil)
		cs.timeoutTicker.ScheduleTimeout(timeoutInfo{
			Duration: cs.config.TimeoutCommit,
			Height:   cs.rs.Height,
			Round:    cs.rs.Round,
			Step:     cstypes.RoundStepProposed,
		})
	case cstypes.RoundStepProposed:
		// commit分裂或者丢失，任何一方都没有到2/3
		if cs.rs.Step == cstypes.RoundStepCommitted {
			return
		}
		cs.Logger.Info("timeout waiting for 2/3 commits", "height", cs.rs.Height, "round", cs.rs.Round, "commits", cs.rs.Commits.Size())
		cs.enterNextRound()
	}
}

func (cs *Core) enterNextRound() {
	round := cs.rs.Round + 1
	leader, _ := cs.leaders.Leader(cs.rs.Height, round)
	if err := cs.rs.NextRound(leader, cs.privVal.IsUs(leader)); err != nil {
		cs.Logger.Error("can not enter next round", "err", err)
		return
	}
	cs.metrics.nilRounds.Inc(1)
	cs.Logger.Info("enter next round", "height", cs.rs.Height, "round", cs.rs.Round, "leader", leader.Hex())
	cs.enterRound()
}

// ------ bundles ------

func (cs *Core) handleSimmedBundle(bundle *types.Bundle) {
	sp := cs.bundles.SubmitBundle(bundle)
	if sp == nil || cs.bundles.HasVoted(sp.Hash) {
		return
	}
	if !cs.guards.HasAddress(cs.privVal.GetAddress()) {
		return
	}

	vote := &types.BundleVote{Hash: sp.Hash, Height: bundle.Height}
	if bundle.Height == cs.rs.Height {
		vote.Round = cs.rs.Round
	}
	if err := cs.privVal.SignBundleVote(vote); err != nil {
		cs.Logger.Error("sign bundle vote failed.", "err", err)
		return
	}

	cs.emit(&BundleVoteMessage{Vote: vote})
	cs.handleBundleVote(vote)
}

func (cs *Core) handleBundleVote(vote *types.BundleVote) {
	cs.metrics.bundleVotes.Inc(1)
	cert := cs.bundles.SubmitVote(vote)
	if cert == nil {
		return
	}

	// 本节点凑齐2/3，广播证书
	cs.metrics.certificates.Inc(1)
	cs.emit(&Bundle23Message{Votes: cert})
	cs.bundles.Finalize23(cert)
}

// ------ pre-propose ------

func (cs *Core) handleBetterBundle(data *types.BestSolvedBundleData) {
	if data.Bundle.Height < cs.rs.Height {
		cs.Logger.Debug("drop stale best bundle", "data", data.Bundle.String(), "height", cs.rs.Height)
		return
	}
	cs.bestSolved = data

	if data.Bundle.Height == cs.rs.Height {
		cs.lockLowerBound(data)
	}
}

// lockLowerBound locks the lower bound once per round and broadcasts it.
func (cs *Core) lockLowerBound(data *types.BestSolvedBundleData) {
	if cs.rs.Step != cstypes.RoundStepPrePropose || cs.rs.LockedPrePropose != nil {
		return
	}
	if !cs.guards.HasAddress(cs.privVal.GetAddress()) {
		return
	}

	lowerBound := new(big.Int)
	if data.LowerBound != nil {
		lowerBound.Set(data.LowerBound)
	}
	pp := &types.PreProposeBundle{
		Height:     cs.rs.Height,
		Round:      cs.rs.Round,
		LowerBound: lowerBound,
		BundleHash: data.Bundle.Hash(),
	}
	if err := cs.privVal.SignPrePropose(pp); err != nil {
		cs.Logger.Error("sign pre-propose failed.", "err", err)
		return
	}

	cs.rs.LockedPrePropose = pp
	cs.Logger.Info("lock lower bound", "pp", pp)
	cs.emit(&PreProposeMessage{PrePropose: pp})
	cs.applyPrePropose(cs.privVal.GetAddress(), pp)
}

func (cs *Core) handlePrePropose(pp *types.PreProposeBundle) {
	current := pp.Height == cs.rs.Height && pp.Round == cs.rs.Round
	if !current && !isFuture(&cs.rs, pp.Height, pp.Round) {
		cs.Logger.Debug("pre-propose for another round", "pp", pp, "state", cs.rs.String())
		return
	}
	id, err := pp.RecoverGuard()
	if err != nil || !cs.guards.HasAddress(id) {
		cs.Logger.Debug("pre-propose from unknown guard", "pp", pp, "err", err)
		return
	}
	if !current {
		cs.deferFuture(id, &PreProposeMessage{PrePropose: pp})
		return
	}
	cs.applyPrePropose(id, pp)
}

func (cs *Core) applyPrePropose(id types.GuardIdentity, pp *types.PreProposeBundle) {
	if !cs.observe(cs.evidence.ObservePrePropose(id, pp)) {
		return
	}
	if !cs.rs.AddPrePropose(id, pp) {
		return
	}
	cs.metrics.prePreposes.Inc(1)
	cs.tryPropose()
}

// observe handles the result of an evidence check and reports whether the
// statement may be used.
func (cs *Core) observe(ev *types.Evidence, err error) bool {
	if err != nil {
		cs.emitError(err)
	}
	if ev != nil {
		cs.metrics.evidence.Inc(1)
		return false
	}
	return true
}

// ------ proposal ------

// tryPropose 如果本节点是leader且收到超过2/3的pre-propose，发出提案
func (cs *Core) tryPropose() {
	if !cs.rs.IsLeader || cs.rs.Step != cstypes.RoundStepPrePropose {
		return
	}
	if !types.HasTwoThirds(len(cs.rs.PrePreposes), cs.guards.Size()) {
		return
	}

	pps := make([]types.PreProposeBundle, 0, len(cs.rs.PrePreposes))
	lowerBound := new(big.Int)
	for _, pp := range cs.rs.PrePreposes {
		pps = append(pps, *pp)
		if pp.LowerBound.Cmp(lowerBound) > 0 {
			lowerBound.Set(pp.LowerBound)
		}
	}
	// 按guard顺序排列，保证提案hash确定
	sort.Slice(pps, func(i, j int) bool {
		idI, _ := pps[i].RecoverGuard()
		idJ, _ := pps[j].RecoverGuard()
		ii, _ := cs.guards.GetByAddress(idI)
		ij, _ := cs.guards.GetByAddress(idJ)
		return ii < ij
	})

	// 之前的轮次已经commit过，只能再提同一个bundle
	bundle := cs.bundles.Best(cs.rs.Height)
	if cs.rs.CommitLocked {
		bundle = cs.rs.CommitLockBundle
	}
	proposal := &types.LeaderProposal{
		Height:      cs.rs.Height,
		Round:       cs.rs.Round,
		Bundle:      bundle,
		LowerBound:  lowerBound,
		PrePreposes: pps,
	}
	if err := cs.privVal.SignProposal(proposal); err != nil {
		cs.Logger.Error("sign proposal failed", "err", err)
		return
	}

	cs.Logger.Info("I'm leader, propose.", "proposal", proposal)
	cs.emit(&ProposalMessage{Proposal: proposal})
	cs.applyProposal(cs.privVal.GetAddress(), proposal)
}

func (cs *Core) handleProposal(p *types.LeaderProposal) {
	current := p.Height == cs.rs.Height && p.Round == cs.rs.Round
	if !current && !isFuture(&cs.rs, p.Height, p.Round) {
		cs.Logger.Debug("proposal for another round", "proposal", p, "state", cs.rs.String())
		return
	}
	id, err := p.RecoverGuard()
	if err != nil {
		cs.Logger.Debug("can not recover proposer", "proposal", p, "err", err)
		return
	}
	leader, _ := cs.leaders.Leader(p.Height, p.Round)
	if id != leader {
		cs.Logger.Error("proposal not from the round leader", "proposer", id.Hex(), "leader", leader.Hex())
		return
	}
	if !current {
		cs.deferFuture(id, &ProposalMessage{Proposal: p})
		return
	}
	cs.applyProposal(id, p)
}

func (cs *Core) applyProposal(id types.GuardIdentity, p *types.LeaderProposal) {
	if !cs.observe(cs.evidence.ObserveProposal(id, p)) {
		return
	}
	if err := cs.rs.SetProposal(p); err != nil {
		cs.Logger.Debug("set proposal failed.", "err", err)
		return
	}
	cs.metrics.proposals.Inc(1)
	cs.Logger.Info("set proposal success.", "proposal", p)

	if err := cs.validateProposal(p); err != nil {
		cs.Logger.Info("reject proposal, commit nil", "err", err)
		cs.signCommit(nil)
	} else {
		cs.signCommit(p)
	}
	cs.timeoutTicker.ScheduleTimeout(timeoutInfo{
		Duration: cs.config.TimeoutCommit,
		Height:   cs.rs.Height,
		Round:    cs.rs.Round,
		Step:     cstypes.RoundStepProposed,
	})
	// 提案之前可能已经收到了commit
	cs.checkCommits()
}

// validateProposal checks everything a guard commits to: the included
// pre-proposes carry 2/3 of the guards, the lower bound is their maximum and
// not below our own lock, and the bundle is certified and scores at least
// the lower bound.
func (cs *Core) validateProposal(p *types.LeaderProposal) error {
	if !types.HasTwoThirds(len(p.PrePreposes), cs.guards.Size()) {
		return fmt.Errorf("proposal carries %d pre-proposes, need %d", len(p.PrePreposes), types.QuorumSize(cs.guards.Size()))
	}

	seen := make(map[types.GuardIdentity]struct{}, len(p.PrePreposes))
	maxBound := new(big.Int)
	for i := range p.PrePreposes {
		pp := &p.PrePreposes[i]
		if err := pp.ValidateBasic(); err != nil {
			return fmt.Errorf("pre-propose #%d: %w", i, err)
		}
		if pp.Height != p.Height || pp.Round != p.Round {
			return fmt.Errorf("pre-propose #%d for %d/%d", i, pp.Height, pp.Round)
		}
		id, err := pp.RecoverGuard()
		if err != nil {
			return fmt.Errorf("pre-propose #%d: %w", i, err)
		}
		if !cs.guards.HasAddress(id) {
			return fmt.Errorf("pre-propose #%d from %v: %w", i, id.Hex(), types.ErrGuardNotFound)
		}
		if _, ok := seen[id]; ok {
			return fmt.Errorf("pre-propose #%d from %v: %w", i, id.Hex(), types.ErrDuplicateGuardSig)
		}
		seen[id] = struct{}{}
		if pp.LowerBound != nil && pp.LowerBound.Cmp(maxBound) > 0 {
			maxBound = pp.LowerBound
		}
	}

	lowerBound := lowerBoundOf(p.LowerBound)
	if lowerBound.Cmp(maxBound) != 0 {
		return fmt.Errorf("lower bound %v is not the max locked bound %v", lowerBound, maxBound)
	}
	if cs.rs.LockedPrePropose != nil && lowerBound.Cmp(lowerBoundOf(cs.rs.LockedPrePropose.LowerBound)) < 0 {
		return fmt.Errorf("lower bound %v below our lock %v", lowerBound, cs.rs.LockedPrePropose.LowerBound)
	}

	if p.Bundle != nil {
		// 证书只认hash，bundle内容（包括bribe）必须与hash一致
		if err := p.Bundle.ValidateBasic(); err != nil {
			return err
		}
		if p.Bundle.Votes.Height != p.Height {
			return fmt.Errorf("bundle certified for height %d", p.Bundle.Votes.Height)
		}
		if err := p.Bundle.Votes.VerifySignatures(cs.guards); err != nil {
			return err
		}
	}
	if cs.rs.CommitLocked && p.BundleHash() != cs.rs.CommitLockHash() {
		return fmt.Errorf("locked on bundle %v since round %d", cs.rs.CommitLockHash().TerminalString(), cs.rs.CommitLockRound)
	}
	if p.Score().Cmp(lowerBound) < 0 {
		return fmt.Errorf("bundle score %v below lower bound %v", p.Score(), lowerBound)
	}
	return nil
}

func lowerBoundOf(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v
}

// ------ commit ------

// signCommit signs a commit on p, or a nil commit when p is nil. A guard
// commits at most once per round.
func (cs *Core) signCommit(p *types.LeaderProposal) {
	self := cs.privVal.GetAddress()
	if !cs.guards.HasAddress(self) || cs.rs.Commits.HasCommit(self) {
		return
	}

	commit := &types.ProposalCommit{Height: cs.rs.Height, Round: cs.rs.Round}
	if p == nil {
		commit.Nil = true
	} else {
		commit.ProposalHash = p.Hash()
	}
	if err := cs.privVal.SignCommit(commit); err != nil {
		cs.Logger.Error("sign commit failed.", "err", err)
		return
	}
	if p != nil && !cs.rs.CommitLocked {
		cs.rs.LockCommit(p.Bundle)
		cs.Logger.Info("lock on committed bundle", "height", cs.rs.Height, "round", cs.rs.Round, "bundle", p.BundleHash().TerminalString())
	}

	cs.emit(&CommitMessage{Commit: commit})
	cs.applyCommit(self, commit)
}

func (cs *Core) handleCommit(c *types.ProposalCommit) {
	current := c.Height == cs.rs.Height && c.Round == cs.rs.Round
	if !current && !isFuture(&cs.rs, c.Height, c.Round) {
		cs.Logger.Debug("commit for another round", "commit", c, "state", cs.rs.String())
		return
	}
	id, err := c.RecoverGuard()
	if err != nil || !cs.guards.HasAddress(id) {
		cs.Logger.Debug("commit from unknown guard", "commit", c, "err", err)
		return
	}
	if !current {
		cs.deferFuture(id, &CommitMessage{Commit: c})
		return
	}
	cs.applyCommit(id, c)
}

func (cs *Core) applyCommit(id types.GuardIdentity, c *types.ProposalCommit) {
	if !cs.observe(cs.evidence.ObserveCommit(id, c)) {
		return
	}
	if err := cs.rs.Commits.AddCommit(id, c); err != nil {
		return
	}
	cs.metrics.commits.Inc(1)
	cs.checkCommits()
}

// checkCommits moves the round forward once 2/3 of the guards agree.
func (cs *Core) checkCommits() {
	if cs.rs.Step == cstypes.RoundStepCommitted || cs.rs.Step == cstypes.RoundStepAwaitingBlock {
		return
	}
	total := cs.guards.Size()

	if cs.rs.Commits.HasTwoThirdsNil(total) {
		cs.Logger.Info("2/3 nil commits", "height", cs.rs.Height, "round", cs.rs.Round)
		cs.enterNextRound()
		return
	}

	if cs.rs.Proposal == nil || cs.rs.Step != cstypes.RoundStepProposed {
		return
	}
	hash := cs.rs.Proposal.Hash()
	if !cs.rs.Commits.HasTwoThirdsFor(hash, total) {
		return
	}

	if err := cs.rs.Commit(); err != nil {
		cs.Logger.Error("commit failed", "err", err)
		return
	}
	cs.metrics.heightTime.UpdateSince(cs.heightStart)
	cs.Logger.Info("proposal committed", "height", cs.rs.Height, "round", cs.rs.Round, "proposal", cs.rs.Proposal)

	submission := &types.SubmissionBundle{
		Proposal: *cs.rs.Proposal,
		Commits:  cs.rs.Commits.Commits(hash),
	}
	if cs.finalizedStore != nil {
		if err := cs.finalizedStore.SaveFinalized(submission); err != nil {
			cs.emitError(err)
		}
	}
	if cs.rs.IsLeader {
		cs.metrics.relays.Inc(1)
		cs.emit(&RelaySubmissionMessage{Submission: submission})
	}
}

// ------ queries ------

// RoundState returns the round state as of the last handled event.
func (cs *Core) RoundState() cstypes.RoundStateSummary {
	return cs.summary.Load().(cstypes.RoundStateSummary)
}

// Evidence returns the evidence recorded so far. Only safe to call when
// the core is not running.
func (cs *Core) Evidence() []*types.Evidence {
	return cs.evidence.Evidence()
}
