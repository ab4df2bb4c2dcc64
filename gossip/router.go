package gossip

import (
	"chainkv/block"
	"chainkv/events"
	"chainkv/interfaces"
	"chainkv/jsonx"
	"chainkv/logx"
	"chainkv/utils"
)

// Router serves inbound replication traffic from the local store: block-map
// and block-by-id requests from reconciling peers, key requests from remote
// reads, and unsolicited new-block and whole-chain broadcasts.
//
// Lookups answer with the block or stay silent; silence is the miss signal.
// Nothing here ever waits for a response.
type Router struct {
	store     interfaces.BlockStore
	transport interfaces.Transport
	bus       *events.EventBus
}

func NewRouter(store interfaces.BlockStore, transport interfaces.Transport, bus *events.EventBus) *Router {
	return &Router{
		store:     store,
		transport: transport,
		bus:       bus,
	}
}

func (rt *Router) Start() {
	rt.transport.Listen(ChannelBlockMapRequest, rt.onBlockMapRequest)
	rt.transport.Listen(ChannelBlockRequest, rt.onBlockRequest)
	rt.transport.Listen(ChannelKeyRequest, rt.onKeyRequest)
	rt.transport.Listen(ChannelNewBlock, rt.onNewBlock)
	rt.transport.Listen(ChannelChain, rt.onChain)
}

func (rt *Router) onBlockMapRequest(payload []byte, peerID string, peerName string) {
	var msg BlockMapRequest
	if err := jsonx.Unmarshal(payload, &msg); err != nil || msg.Request != RequestBlockMap {
		logx.Warn("ROUTER", "Dropping malformed block map request from ", peerName)
		return
	}

	reply, err := jsonx.Marshal(BlockMapReply{BlockMap: rt.store.Inventory()})
	if err != nil {
		logx.Error("ROUTER", "Failed to marshal block map: ", err)
		return
	}
	if err := rt.transport.Send(peerID, ChannelBlockMapReply, reply); err != nil {
		logx.Warn("ROUTER", "Failed to send block map to ", peerName, ": ", err)
	}
}

func (rt *Router) onBlockRequest(payload []byte, peerID string, peerName string) {
	var msg BlockRequest
	if err := jsonx.Unmarshal(payload, &msg); err != nil {
		logx.Warn("ROUTER", "Dropping malformed block request from ", peerName, ": ", err)
		return
	}

	blocks := rt.store.Blocks()
	for i := len(blocks) - 1; i >= 0; i-- {
		if blocks[i].ID == msg.BlockID {
			rt.reply(peerID, peerName, blocks[i])
			return
		}
	}
	// Absent: stay silent.
}

func (rt *Router) onKeyRequest(payload []byte, peerID string, peerName string) {
	var msg KeyRequest
	if err := jsonx.Unmarshal(payload, &msg); err != nil {
		logx.Warn("ROUTER", "Dropping malformed key request from ", peerName, ": ", err)
		return
	}

	blocks := rt.store.Blocks()
	for i := len(blocks) - 1; i >= 0; i-- {
		if blocks[i].Data.Key == msg.Key {
			rt.reply(peerID, peerName, blocks[i])
			return
		}
	}
}

func (rt *Router) reply(peerID string, peerName string, blk *block.Block) {
	payload, err := jsonx.Marshal(BlockReply{Block: blk})
	if err != nil {
		return
	}
	if err := rt.transport.Send(peerID, ChannelBlockReply, payload); err != nil {
		logx.Warn("ROUTER", "Failed to send block ", utils.ShortID(blk.ID), " to ", peerName, ": ", err)
	}
}

func (rt *Router) onNewBlock(payload []byte, peerID string, peerName string) {
	// A node must not re-process its own broadcast.
	if peerName == rt.transport.SelfName() {
		return
	}

	var msg NewBlockMessage
	if err := jsonx.Unmarshal(payload, &msg); err != nil {
		logx.Warn("ROUTER", "Dropping malformed block broadcast from ", peerName, ": ", err)
		return
	}
	if msg.Block == nil {
		return
	}

	if rt.store.Add(msg.Block) {
		rt.bus.Publish(events.NewBlockReplicated(msg.Block.ID, peerID))
		logx.Debug("ROUTER", "Incorporated broadcast block ", utils.ShortID(msg.Block.ID), " from ", peerName)
	}
}

func (rt *Router) onChain(payload []byte, peerID string, peerName string) {
	if peerName == rt.transport.SelfName() {
		return
	}

	var msg ChainMessage
	if err := jsonx.Unmarshal(payload, &msg); err != nil {
		logx.Warn("ROUTER", "Dropping malformed chain broadcast from ", peerName, ": ", err)
		return
	}

	logx.Info("ROUTER", "Merging chain broadcast of ", len(msg.Blocks), " blocks from ", peerName)
	rt.store.Merge(msg.Blocks)
}
