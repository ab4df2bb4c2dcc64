package p2p

const (
	DirectProtocol = "/chainkv/direct/1.0.0"

	TopicPrefix   = "chainkv/"
	AdvertiseName = "chainkv"

	// ChannelHello is transport-internal: the name exchange that turns a raw
	// libp2p connection into a named peer directory entry.
	ChannelHello = "hello"
)
