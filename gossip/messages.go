package gossip

import "chainkv/block"

// ChainLengthMessage announces the sender's chain length. Sent to a peer on
// connect and rebroadcast on the announce interval.
type ChainLengthMessage struct {
	Length int `json:"length"`
}

// BlockMapRequest asks a peer for its block inventory.
type BlockMapRequest struct {
	Request string `json:"request"`
}

const RequestBlockMap = "block_map"

// BlockMapReply carries a peer's inventory back to the requester.
type BlockMapReply struct {
	BlockMap block.Map `json:"block_map"`
}

// BlockRequest asks a peer for one block by id.
type BlockRequest struct {
	BlockID string `json:"block_id"`
}

// BlockReply delivers one requested block. It travels on its own channel,
// distinct from unsolicited new-block broadcasts, so a node never reprocesses
// its own broadcast traffic as a reconciliation response.
type BlockReply struct {
	Block *block.Block `json:"block"`
}

// NewBlockMessage is the unsolicited broadcast of a freshly appended block.
type NewBlockMessage struct {
	Block *block.Block `json:"block"`
}

// ChainMessage broadcasts a whole chain for merging.
type ChainMessage struct {
	Blocks []*block.Block `json:"blocks"`
}

// KeyRequest asks all peers for the newest block holding a key.
type KeyRequest struct {
	Key string `json:"key"`
}
