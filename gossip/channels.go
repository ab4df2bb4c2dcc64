package gossip

// Message channels of the replication protocol. The transport carries each as
// a named channel; which ones are peer-addressed and which broadcast is up to
// the sender.
const (
	ChannelChainLength     = "chain-length"
	ChannelBlockMapRequest = "block-map/request"
	ChannelBlockMapReply   = "block-map/response"
	ChannelBlockRequest    = "block/request"
	ChannelBlockReply      = "block/response"
	ChannelNewBlock        = "blocks"
	ChannelChain           = "chain"
	ChannelKeyRequest      = "key/request"
)
