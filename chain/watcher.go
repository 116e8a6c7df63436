package chain

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/pkg/errors"
	"github.com/tendermint/tendermint/libs/service"
)

// HeaderSource is the part of ethclient.Client the watcher needs.
type HeaderSource interface {
	HeaderByNumber(ctx context.Context, number *big.Int) (*ethtypes.Header, error)
	SubscribeNewHead(ctx context.Context, ch chan<- *ethtypes.Header) (ethereum.Subscription, error)
}

// BlockSink receives every block in order, e.g. consensus.Core.
type BlockSink interface {
	NewBlock(header *ethtypes.Header) error
}

var _ HeaderSource = (*ethclient.Client)(nil)

// Dial connects to an ethereum node. Head subscriptions need a websocket or
// ipc endpoint.
func Dial(ctx context.Context, url string) (*ethclient.Client, error) {
	client, err := ethclient.DialContext(ctx, url)
	if err != nil {
		return nil, errors.Wrapf(err, "dial %s", url)
	}
	return client, nil
}

// HeadWatcher follows the chain head and hands every block after
// lastHeight to the sink with no gap. Heads missed by the subscription are
// fetched by number. Reorgs below the delivered height are not replayed.
type HeadWatcher struct {
	service.BaseService

	source HeaderSource
	sink   BlockSink
	delay  time.Duration

	// next block number to deliver
	next uint64

	cancel context.CancelFunc
	done   chan struct{}
}

func NewHeadWatcher(source HeaderSource, sink BlockSink, lastHeight uint64, resubscribeDelay time.Duration) *HeadWatcher {
	hw := &HeadWatcher{
		source: source,
		sink:   sink,
		delay:  resubscribeDelay,
		next:   lastHeight + 1,
	}
	hw.BaseService = *service.NewBaseService(nil, "HeadWatcher", hw)
	return hw
}

func (hw *HeadWatcher) OnStart() error {
	ctx, cancel := context.WithCancel(context.Background())
	hw.cancel = cancel
	hw.done = make(chan struct{})
	go hw.watchRoutine(ctx)
	return nil
}

func (hw *HeadWatcher) OnStop() {
	hw.cancel()
	<-hw.done
}

// Next returns the next block number to be delivered. Only meaningful once
// the watcher stopped.
func (hw *HeadWatcher) Next() uint64 {
	return hw.next
}

func (hw *HeadWatcher) watchRoutine(ctx context.Context) {
	defer close(hw.done)
	for {
		err := hw.follow(ctx)
		if ctx.Err() != nil {
			return
		}
		hw.Logger.Error("head subscription failed, resubscribe", "err", err, "delay", hw.delay)

		select {
		case <-time.After(hw.delay):
		case <-ctx.Done():
			return
		}
	}
}

func (hw *HeadWatcher) follow(ctx context.Context) error {
	heads := make(chan *ethtypes.Header, 16)
	sub, err := hw.source.SubscribeNewHead(ctx, heads)
	if err != nil {
		return errors.Wrap(err, "subscribe new head")
	}
	defer sub.Unsubscribe()
	hw.Logger.Info("subscribed to chain head", "next", hw.next)

	for {
		select {
		case head := <-heads:
			if err := hw.deliverUpTo(ctx, head); err != nil {
				return err
			}
		case err := <-sub.Err():
			return err
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// deliverUpTo delivers every block from next up to head.
func (hw *HeadWatcher) deliverUpTo(ctx context.Context, head *ethtypes.Header) error {
	if head == nil || head.Number == nil {
		return nil
	}
	number := head.Number.Uint64()
	if number < hw.next {
		hw.Logger.Debug("ignore old head", "number", number, "next", hw.next)
		return nil
	}

	for hw.next < number {
		missed, err := hw.source.HeaderByNumber(ctx, new(big.Int).SetUint64(hw.next))
		if err != nil {
			return errors.Wrapf(err, "fetch header %d", hw.next)
		}
		if err := hw.deliver(missed); err != nil {
			return err
		}
	}
	return hw.deliver(head)
}

func (hw *HeadWatcher) deliver(header *ethtypes.Header) error {
	if err := hw.sink.NewBlock(header); err != nil {
		return errors.Wrapf(err, "deliver block %d", hw.next)
	}
	hw.Logger.Debug("block delivered", "number", hw.next, "hash", header.Hash().TerminalString())
	hw.next++
	return nil
}
