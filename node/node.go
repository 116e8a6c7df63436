package node

import (
	"context"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/tendermint/tendermint/libs/log"
	"github.com/tendermint/tendermint/libs/service"
	"github.com/tendermint/tendermint/p2p"
	"github.com/tendermint/tendermint/p2p/conn"
	"github.com/tendermint/tendermint/version"
	"github.com/tendermint/tm-db/memdb"
	"github.com/tendermint/tm-db/metadb"

	"guardbft/chain"
	"guardbft/config"
	"guardbft/consensus"
	"guardbft/libs/metric"
	"guardbft/privval"
	"guardbft/rpc"
	"guardbft/store"
	"guardbft/types"
)

type Provider func(*config.Config, log.Logger) (*Node, error)

type Node struct {
	service.BaseService

	// config
	config *config.Config

	// network
	transport *p2p.MultiplexTransport
	sw        *p2p.Switch // p2p connections
	nodeInfo  p2p.NodeInfo
	nodeKey   *p2p.NodeKey // our node privkey

	// guard
	privVal types.PrivValidator
	guards  *types.GuardSet

	// service
	store            *store.KVStore
	consensus        *consensus.Core
	consensusReactor *consensus.Reactor
	feed             *rpc.Hub
	metricSet        *metric.MetricSet
	headSource       chain.HeaderSource
	watcher          *chain.HeadWatcher
	rpcListener      net.Listener
}

type Option func(*Node)

// WithHeaderSource follows the chain through source instead of dialing
// the configured eth_url.
func WithHeaderSource(source chain.HeaderSource) Option {
	return func(n *Node) {
		n.headSource = source
	}
}

// DefaultNewNode loads the guard key, guard set and node key from the
// locations in config.
func DefaultNewNode(config *config.Config, logger log.Logger) (*Node, error) {
	nodeKey, err := p2p.LoadOrGenNodeKey(config.NodeKeyFile())
	if err != nil {
		return nil, fmt.Errorf("failed to load or gen node key %s: %w", config.NodeKeyFile(), err)
	}
	pv, err := privval.LoadFilePV(config.GuardKeyFile())
	if err != nil {
		return nil, err
	}
	doc, err := types.GuardSetDocFromFile(config.GuardSetFile())
	if err != nil {
		return nil, err
	}
	guards, err := doc.GuardSet()
	if err != nil {
		return nil, err
	}

	return NewNode(config, pv, guards, nodeKey, logger)
}

func createTransport(
	nodeInfo p2p.NodeInfo,
	nodeKey *p2p.NodeKey,
	config *config.Config,
) *p2p.MultiplexTransport {
	var (
		mConnConfig = conn.DefaultMConnConfig()
		transport   = p2p.NewMultiplexTransport(nodeInfo, *nodeKey, mConnConfig)
	)

	// Limit the number of incoming connections.
	p2p.MultiplexTransportMaxIncomingConnections(config.P2P.MaxNumInboundPeers)(transport)

	return transport
}

func createSwitch(config *config.Config,
	transport p2p.Transport,
	consensusReactor *consensus.Reactor,
	nodeInfo p2p.NodeInfo,
	nodeKey *p2p.NodeKey,
	p2pLogger log.Logger) *p2p.Switch {

	sw := p2p.NewSwitch(
		config.P2P,
		transport,
	)
	sw.SetLogger(p2pLogger)
	sw.AddReactor("CONSENSUS", consensusReactor)

	sw.SetNodeInfo(nodeInfo)
	sw.SetNodeKey(nodeKey)

	p2pLogger.Info("P2P Node ID", "ID", nodeKey.ID(), "file", config.NodeKeyFile())
	return sw
}

// makeNodeInfo - nodes only connect when they run the same guard set
func makeNodeInfo(
	config *config.Config,
	nodeKey *p2p.NodeKey,
	guards *types.GuardSet,
) (p2p.NodeInfo, error) {
	nodeInfo := p2p.DefaultNodeInfo{
		ProtocolVersion: p2p.NewProtocolVersion(
			8, // global
			11,
			0,
		),
		DefaultNodeID: nodeKey.ID(),
		Network:       fmt.Sprintf("guardbft-%X", guards.Hash()[:6]),
		Version:       version.TMCoreSemVer,
		Channels: []byte{
			consensus.ConsensusChannel,
			consensus.BundleChannel,
		},
		Moniker: config.Moniker,
		Other: p2p.DefaultNodeInfoOther{
			TxIndex:    "off",
			RPCAddress: config.RPC.ListenAddress,
		},
	}

	lAddr := config.P2P.ExternalAddress

	if lAddr == "" {
		lAddr = config.P2P.ListenAddress
	}

	nodeInfo.ListenAddr = lAddr

	err := nodeInfo.Validate()
	return nodeInfo, err
}

func openStore(config *config.Config, logger log.Logger) (*store.KVStore, error) {
	if config.DBBackend == string(metadb.MemDBBackend) {
		return store.NewKVStoreWithDB(memdb.NewDB(), logger), nil
	}
	return store.NewKVStore("guard", config.DBDir(), logger)
}

func NewNode(config *config.Config,
	privVal types.PrivValidator,
	guards *types.GuardSet,
	nodeKey *p2p.NodeKey,
	logger log.Logger,
	options ...Option,
) (*Node, error) {
	if !guards.HasAddress(privVal.GetAddress()) {
		logger.Info("guard key is not in the guard set, running as observer", "address", privVal.GetAddress().Hex())
	}

	kvStore, err := openStore(config, logger.With("module", "store"))
	if err != nil {
		return nil, err
	}

	core, err := consensus.NewCore(config.Consensus, privVal, guards,
		consensus.WithEvidenceStore(kvStore),
		consensus.WithFinalizedStore(kvStore),
	)
	if err != nil {
		return nil, err
	}
	core.SetLogger(logger.With("module", "consensus"))

	metricSet := metric.NewMetricSet()
	if err := metricSet.SetMetrics(consensus.MetricLabel, core.Metrics()); err != nil {
		return nil, err
	}

	reactorOptions := []consensus.ReactorOption{
		consensus.WithErrorHandler(func(err error) {
			logger.Error("consensus error", "err", err)
		}),
	}
	var feed *rpc.Hub
	if config.Feed.Path != "" {
		feed = rpc.NewHub(config.Feed)
		feed.SetLogger(logger.With("module", "feed"))
		reactorOptions = append(reactorOptions, consensus.WithBroadcaster(feed))
	}
	consensusReactor := consensus.NewReactor(core, reactorOptions...)
	consensusReactor.SetLogger(logger.With("module", "consensus"))

	p2pLogger := logger.With("module", "p2p")

	// setup node identity
	nodeinfo, err := makeNodeInfo(config, nodeKey, guards)
	if err != nil {
		return nil, err
	}

	// Setup Transport.
	transport := createTransport(nodeinfo, nodeKey, config)

	// Setup Switch.
	sw := createSwitch(
		config, transport, consensusReactor, nodeinfo, nodeKey, p2pLogger,
	)

	node := &Node{
		config:           config,
		transport:        transport,
		sw:               sw,
		nodeInfo:         nodeinfo,
		nodeKey:          nodeKey,
		privVal:          privVal,
		guards:           guards,
		store:            kvStore,
		consensus:        core,
		consensusReactor: consensusReactor,
		feed:             feed,
		metricSet:        metricSet,
	}

	node.BaseService = *service.NewBaseService(logger, "Node", node)
	for _, option := range options {
		option(node)
	}

	return node, nil
}

func (n *Node) Switch() *p2p.Switch {
	return n.sw
}

func (n *Node) NodeInfo() p2p.NodeInfo {
	return n.nodeInfo
}

func (n *Node) Consensus() *consensus.Core {
	return n.consensus
}

func (n *Node) Store() *store.KVStore {
	return n.store
}

// RPCAddr returns the address the rpc server listens on, nil if it is off.
func (n *Node) RPCAddr() net.Addr {
	if n.rpcListener == nil {
		return nil
	}
	return n.rpcListener.Addr()
}

func (n *Node) OnStart() error {
	if err := n.startRPC(); err != nil {
		return err
	}

	// start the transport
	addr, err := p2p.NewNetAddressString(p2p.IDAddressString(n.nodeKey.ID(), n.config.P2P.ListenAddress))
	if err != nil {
		return err
	}
	if err := n.transport.Listen(*addr); err != nil {
		return err
	}

	// start the Switch, which starts the consensus reactor and core
	err = n.sw.Start()
	if err != nil {
		return err
	}

	n.Logger.Info("dial persistent peers", "peers", n.config.P2P.PersistentPeers)
	err = n.sw.DialPeersAsync(splitAndTrimEmpty(n.config.P2P.PersistentPeers, ",", " "))
	if err != nil {
		return fmt.Errorf("could not dial peers from persistent_peers field: %w", err)
	}

	return n.startWatcher()
}

func (n *Node) startRPC() error {
	rpc.SetEnvironment(&rpc.Environment{
		Consensus: n.consensus,
		Store:     n.store,
		Guards:    n.guards,
		MetricSet: n.metricSet,
	})

	if n.feed != nil {
		if err := n.feed.Start(); err != nil {
			return err
		}
	}
	if n.config.RPC.ListenAddress == "" {
		return nil
	}

	mux := rpc.NewServeMux(n.feed, n.config.Feed.Path, n.Logger.With("module", "rpc-server"))
	listener, err := rpc.StartServer(n.config.RPC, mux, n.Logger.With("module", "rpc-server"))
	if err != nil {
		return err
	}
	n.rpcListener = listener
	n.Logger.Info("rpc server started", "addr", listener.Addr())
	return nil
}

func (n *Node) startWatcher() error {
	source := n.headSource
	if source == nil {
		if n.config.Chain.EthURL == "" {
			n.Logger.Info("no eth_url configured, blocks must be fed by hand")
			return nil
		}
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		client, err := chain.Dial(ctx, n.config.Chain.EthURL)
		if err != nil {
			return err
		}
		source = client
	}

	n.watcher = chain.NewHeadWatcher(source, n.consensus, n.config.Consensus.GenesisHeight, n.config.Chain.ResubscribeDelay)
	n.watcher.SetLogger(n.Logger.With("module", "chain"))
	return n.watcher.Start()
}

func (n *Node) OnStop() {
	if n.watcher != nil {
		if err := n.watcher.Stop(); err != nil {
			n.Logger.Error("error while stopping head watcher", "err", err)
		}
	}

	if err := n.sw.Stop(); err != nil {
		n.Logger.Error("error while stopping switch", "err", err)
	}
	if err := n.transport.Close(); err != nil {
		n.Logger.Error("error while closing transport", "err", err)
	}

	if n.rpcListener != nil {
		if err := n.rpcListener.Close(); err != nil {
			n.Logger.Error("error closing rpc listener", "err", err)
		}
	}
	if n.feed != nil && n.feed.IsRunning() {
		if err := n.feed.Stop(); err != nil {
			n.Logger.Error("error while stopping feed", "err", err)
		}
	}

	if err := n.store.Close(); err != nil {
		n.Logger.Error("error while closing store", "err", err)
	}
}

// splitAndTrimEmpty slices s into all subslices separated by sep and returns a
// slice of the string s with all leading and trailing Unicode code points
// contained in cutset removed. If sep is empty, SplitAndTrim splits after each
// UTF-8 sequence. First part is equivalent to strings.SplitN with a count of
// -1.  also filter out empty strings, only return non-empty strings.
func splitAndTrimEmpty(s, sep, cutset string) []string {
	if s == "" {
		return []string{}
	}

	spl := strings.Split(s, sep)
	nonEmptyStrings := make([]string, 0, len(spl))
	for i := 0; i < len(spl); i++ {
		element := strings.Trim(spl[i], cutset)
		if element != "" {
			nonEmptyStrings = append(nonEmptyStrings, element)
		}
	}
	return nonEmptyStrings
}
