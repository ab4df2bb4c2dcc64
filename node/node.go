package node

import (
	"context"

	"github.com/jonboulle/clockwork"

	"chainkv/block"
	"chainkv/blockstore"
	"chainkv/config"
	"chainkv/events"
	"chainkv/gossip"
	"chainkv/interfaces"
	"chainkv/jsonx"
	"chainkv/kv"
	"chainkv/logx"
)

// Node assembles a chainkv participant: the local block log, the transport,
// the gossip/reconciliation protocol, and the key-value surface.
type Node struct {
	name      string
	store     *blockstore.Store
	transport interfaces.Transport
	bus       *events.EventBus

	coordinator *gossip.Coordinator
	reconciler  *gossip.Reconciler
	router      *gossip.Router
	accessor    *kv.Accessor
}

func New(name string, transport interfaces.Transport, gossipCfg *config.GossipConfig, readCfg *config.ReadConfig, clock clockwork.Clock) *Node {
	store := blockstore.NewStore(name)
	bus := events.NewEventBus()

	reconciler := gossip.NewReconciler(store, transport, bus, gossipCfg, clock)
	coordinator := gossip.NewCoordinator(store, transport, reconciler, gossipCfg, clock)
	router := gossip.NewRouter(store, transport, bus)
	accessor := kv.NewAccessor(store, transport, bus, readCfg, clock)

	return &Node{
		name:        name,
		store:       store,
		transport:   transport,
		bus:         bus,
		coordinator: coordinator,
		reconciler:  reconciler,
		router:      router,
		accessor:    accessor,
	}
}

// Start registers every protocol handler. The router handlers go first so a
// peer that connects mid-startup never hits an unserved request channel.
func (n *Node) Start() {
	n.router.Start()
	n.reconciler.Start()
	n.coordinator.Start()
	logx.Info("NODE", "Node ", n.name, " started")
}

func (n *Node) Stop() {
	n.coordinator.Stop()
	n.reconciler.Stop()
	if err := n.transport.Close(); err != nil {
		logx.Warn("NODE", "Transport close: ", err)
	}
	logx.Info("NODE", "Node ", n.name, " stopped")
}

func (n *Node) Name() string {
	return n.name
}

func (n *Node) Store() interfaces.BlockStore {
	return n.store
}

func (n *Node) Events() *events.EventBus {
	return n.bus
}

func (n *Node) Put(key string, value string) *block.Block {
	return n.accessor.Put(key, value)
}

func (n *Node) Get(ctx context.Context, key string) (block.Data, bool) {
	return n.accessor.Get(ctx, key)
}

func (n *Node) GetHistory(key string) []block.Data {
	return n.accessor.GetHistory(key)
}

func (n *Node) GetAll() []block.Data {
	return n.accessor.GetAll()
}

func (n *Node) ReadErrors() []error {
	return n.accessor.Errors()
}

// PublishChain broadcasts the whole local chain; receivers union it into
// their own log.
func (n *Node) PublishChain() error {
	payload, err := jsonx.Marshal(gossip.ChainMessage{Blocks: n.store.Blocks()})
	if err != nil {
		return err
	}
	return n.transport.Broadcast(gossip.ChannelChain, payload)
}
