package interfaces

// MessageHandler consumes one inbound message on a channel.
type MessageHandler func(payload []byte, peerID string, peerName string)

// Transport is the peer messaging collaborator. Delivery is best-effort and
// fire-and-forget on both the direct and broadcast paths.
type Transport interface {
	SelfID() string
	SelfName() string
	// OnConnect registers a handler fired once per new peer connection.
	OnConnect(handler func(peerID string, peerName string))
	// Send delivers a payload on a named channel to one peer.
	Send(target string, channel string, payload []byte) error
	// Broadcast delivers a payload on a named channel to every connected peer.
	Broadcast(channel string, payload []byte) error
	// Listen registers the handler for a named channel. One handler per
	// channel; a later registration replaces the earlier one.
	Listen(channel string, handler MessageHandler)
	// Peers returns the connected-peer directory, id -> name.
	Peers() map[string]string
	Close() error
}
