package consensus

import (
	"context"
	"errors"
	"fmt"

	"github.com/tendermint/tendermint/libs/cmap"
	"github.com/tendermint/tendermint/p2p"
)

const (
	ConsensusChannel = byte(0x20) // pre-propose, proposal, commit, relay
	BundleChannel    = byte(0x21) // bundle votes and 2/3 certificates

	maxMsgSize = 1048576 // 1MB
)

// Broadcaster receives every message the core emits, e.g. a websocket feed.
type Broadcaster interface {
	Broadcast(msg ConsensusMessage)
}

// ------- Reactor ------
// Reactor connects the consensus core to the p2p switch. Inbound peer
// messages are decoded and handed to the core, and a relay routine pulls
// the core stream and broadcasts it to every peer.
type Reactor struct {
	p2p.BaseReactor

	peers *cmap.CMap

	core       *Core
	listeners  []Broadcaster
	cancel     context.CancelFunc
	relayDone  chan struct{}
	errHandler func(error)
}

type ReactorOption func(*Reactor)

// WithBroadcaster adds a listener of the core stream.
func WithBroadcaster(b Broadcaster) ReactorOption {
	return func(conR *Reactor) {
		conR.listeners = append(conR.listeners, b)
	}
}

// WithErrorHandler is called for every error the core reports.
func WithErrorHandler(fn func(error)) ReactorOption {
	return func(conR *Reactor) {
		conR.errHandler = fn
	}
}

func NewReactor(core *Core, options ...ReactorOption) *Reactor {
	conR := &Reactor{
		peers: cmap.NewCMap(),
		core:  core,
	}
	conR.BaseReactor = *p2p.NewBaseReactor("Consensus", conR)

	for _, option := range options {
		option(conR)
	}
	return conR
}

func (conR *Reactor) OnStart() error {
	if !conR.core.IsRunning() {
		if err := conR.core.Start(); err != nil {
			return err
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	conR.cancel = cancel
	conR.relayDone = make(chan struct{})
	go conR.relayRoutine(ctx)

	conR.Logger.Info("Consensus Reactor started.")
	return nil
}

func (conR *Reactor) OnStop() {
	conR.cancel()
	<-conR.relayDone
	if err := conR.core.Stop(); err != nil {
		conR.Logger.Error("stop consensus core failed", "err", err)
	}
}

func (conR *Reactor) GetChannels() []*p2p.ChannelDescriptor {
	return []*p2p.ChannelDescriptor{
		{
			ID:                  ConsensusChannel,
			Priority:            10,
			SendQueueCapacity:   100,
			RecvBufferCapacity:  maxMsgSize,
			RecvMessageCapacity: maxMsgSize,
		},
		{
			ID:                  BundleChannel,
			Priority:            5,
			SendQueueCapacity:   100,
			RecvBufferCapacity:  maxMsgSize,
			RecvMessageCapacity: maxMsgSize,
		},
	}
}

func (conR *Reactor) AddPeer(peer p2p.Peer) {
	conR.Logger.Info("add peer", "peer", peer.ID())
	conR.peers.Set(string(peer.ID()), peer)
}

func (conR *Reactor) RemovePeer(peer p2p.Peer, reason interface{}) {
	conR.Logger.Info("remove peer", "peer", peer.ID(), "reason", reason)
	conR.peers.Delete(string(peer.ID()))
}

// NumPeers returns the number of connected peers.
func (conR *Reactor) NumPeers() int {
	return conR.peers.Size()
}

func (conR *Reactor) Receive(chID byte, src p2p.Peer, msgBytes []byte) {
	if !conR.IsRunning() {
		conR.Logger.Debug("Receive", "src", src, "chID", chID, "bytes", msgBytes)
		return
	}

	msg, err := DecodeMessage(msgBytes)
	if err != nil {
		conR.Logger.Error("decode consensus message failed", "src", src, "chID", chID, "err", err)
		conR.Switch.StopPeerForError(src, err)
		return
	}
	if want := channelOf(msg); want != chID {
		err := fmt.Errorf("message %v on channel %X, want %X", msg, chID, want)
		conR.Logger.Error("wrong channel", "src", src, "err", err)
		conR.Switch.StopPeerForError(src, err)
		return
	}

	conR.Logger.Debug(fmt.Sprintf("Receive msg from #{%v}", src.ID()), "msg", msg)
	if err := conR.core.HandleMessage(msg); err != nil {
		conR.Logger.Debug("core rejected message", "msg", msg, "err", err)
	}
}

// relayRoutine 把core输出的消息广播给所有邻居
func (conR *Reactor) relayRoutine(ctx context.Context) {
	defer close(conR.relayDone)
	for {
		msg, err := conR.core.Next(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, ErrCoreStopped) {
				return
			}
			conR.Logger.Error("consensus core reported an error", "err", err)
			if conR.errHandler != nil {
				conR.errHandler(err)
			}
			continue
		}
		conR.broadcast(msg)
	}
}

func (conR *Reactor) broadcast(msg ConsensusMessage) {
	for _, l := range conR.listeners {
		l.Broadcast(msg)
	}

	// submissions leave the guard network
	if _, ok := msg.(*RelaySubmissionMessage); ok {
		return
	}

	bz, err := EncodeMessage(msg)
	if err != nil {
		conR.Logger.Error("encode consensus message failed.", "msg", msg, "err", err)
		return
	}
	conR.Logger.Debug("ready to broadcast", "msg", msg)
	if conR.Switch != nil {
		conR.Switch.Broadcast(channelOf(msg), bz)
	}
}

func channelOf(msg ConsensusMessage) byte {
	switch msg.(type) {
	case *BundleVoteMessage, *Bundle23Message:
		return BundleChannel
	default:
		return ConsensusChannel
	}
}
