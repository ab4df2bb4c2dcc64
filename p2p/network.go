package p2p

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/libp2p/go-libp2p"
	pubsub "github.com/libp2p/go-libp2p-pubsub"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/network"
	"github.com/libp2p/go-libp2p/core/peer"
	ma "github.com/multiformats/go-multiaddr"

	"chainkv/exception"
	"chainkv/interfaces"
	"chainkv/jsonx"
	"chainkv/logx"
	"chainkv/monitoring"
)

// Libp2pTransport carries chainkv channels over a libp2p host: gossipsub
// topics for broadcast channels and direct streams for peer-addressed sends.
type Libp2pTransport struct {
	host        host.Host
	pubsub      *pubsub.PubSub
	name        string
	sendTimeout time.Duration

	ctx    context.Context
	cancel context.CancelFunc

	peersMu sync.RWMutex
	peers   map[peer.ID]string // peer id -> announced name

	handlersMu sync.RWMutex
	handlers   map[string]interfaces.MessageHandler

	topicsMu sync.Mutex
	topics   map[string]*pubsub.Topic

	connectMu        sync.RWMutex
	onConnectHandler func(peerID string, peerName string)
}

func NewTransport(parent context.Context, name string, listenAddr string, bootstrapPeers []string, sendTimeout time.Duration) (*Libp2pTransport, error) {
	ctx, cancel := context.WithCancel(parent)

	h, err := libp2p.New(
		libp2p.ListenAddrStrings(listenAddr),
	)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to create libp2p host: %w", err)
	}

	ps, err := pubsub.NewGossipSub(ctx, h)
	if err != nil {
		h.Close()
		cancel()
		return nil, fmt.Errorf("failed to create gossipsub: %w", err)
	}

	t := &Libp2pTransport{
		host:        h,
		pubsub:      ps,
		name:        name,
		sendTimeout: sendTimeout,
		ctx:         ctx,
		cancel:      cancel,
		peers:       make(map[peer.ID]string),
		handlers:    make(map[string]interfaces.MessageHandler),
		topics:      make(map[string]*pubsub.Topic),
	}

	h.SetStreamHandler(DirectProtocol, t.handleDirectStream)
	h.Network().Notify(&network.NotifyBundle{
		ConnectedF:    t.onPeerConnected,
		DisconnectedF: t.onPeerDisconnected,
	})

	for _, addr := range bootstrapPeers {
		if addr == "" {
			continue
		}
		if err := t.connectBootstrap(addr); err != nil {
			logx.Warn("NETWORK", "Failed to connect bootstrap peer ", addr, ": ", err)
		}
	}

	logx.Info("NETWORK", "Transport up: id=", h.ID().String(), ", name=", name, ", listen=", listenAddr)
	return t, nil
}

func (t *Libp2pTransport) connectBootstrap(addr string) error {
	maddr, err := ma.NewMultiaddr(addr)
	if err != nil {
		return err
	}
	info, err := peer.AddrInfoFromP2pAddr(maddr)
	if err != nil {
		return err
	}
	return t.host.Connect(t.ctx, *info)
}

func (t *Libp2pTransport) SelfID() string {
	return t.host.ID().String()
}

func (t *Libp2pTransport) SelfName() string {
	return t.name
}

func (t *Libp2pTransport) OnConnect(handler func(peerID string, peerName string)) {
	t.connectMu.Lock()
	defer t.connectMu.Unlock()
	t.onConnectHandler = handler
}

func (t *Libp2pTransport) Listen(channel string, handler interfaces.MessageHandler) {
	t.handlersMu.Lock()
	t.handlers[channel] = handler
	t.handlersMu.Unlock()

	// Broadcasts for this channel arrive over its gossipsub topic.
	t.subscribeTopic(channel)
}

func (t *Libp2pTransport) Send(target string, channel string, payload []byte) error {
	pid, err := peer.Decode(target)
	if err != nil {
		return fmt.Errorf("invalid target peer id %s: %w", target, err)
	}

	env := Envelope{
		Channel:  channel,
		From:     t.SelfID(),
		FromName: t.name,
		Payload:  payload,
	}

	ctx := t.ctx
	if t.sendTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(t.ctx, t.sendTimeout)
		defer cancel()
	}

	s, err := t.host.NewStream(ctx, pid, DirectProtocol)
	if err != nil {
		return fmt.Errorf("failed to open stream to %s: %w", target, err)
	}
	defer s.Close()
	if t.sendTimeout > 0 {
		_ = s.SetWriteDeadline(time.Now().Add(t.sendTimeout))
	}

	encoder := jsonx.NewEncoder(s)
	if err := encoder.Encode(env); err != nil {
		return fmt.Errorf("failed to send on channel %s: %w", channel, err)
	}
	return nil
}

func (t *Libp2pTransport) Broadcast(channel string, payload []byte) error {
	env := Envelope{
		Channel:  channel,
		From:     t.SelfID(),
		FromName: t.name,
		Payload:  payload,
	}
	data, err := jsonx.Marshal(env)
	if err != nil {
		return err
	}

	topic, err := t.joinTopic(channel)
	if err != nil {
		return err
	}
	return topic.Publish(t.ctx, data)
}

func (t *Libp2pTransport) Peers() map[string]string {
	t.peersMu.RLock()
	defer t.peersMu.RUnlock()

	out := make(map[string]string, len(t.peers))
	for id, name := range t.peers {
		out[id.String()] = name
	}
	return out
}

func (t *Libp2pTransport) Close() error {
	t.cancel()
	return t.host.Close()
}

func (t *Libp2pTransport) joinTopic(channel string) (*pubsub.Topic, error) {
	t.topicsMu.Lock()
	defer t.topicsMu.Unlock()

	if topic, exists := t.topics[channel]; exists {
		return topic, nil
	}
	topic, err := t.pubsub.Join(TopicPrefix + channel)
	if err != nil {
		return nil, fmt.Errorf("failed to join topic for channel %s: %w", channel, err)
	}
	t.topics[channel] = topic
	return topic, nil
}

func (t *Libp2pTransport) subscribeTopic(channel string) {
	topic, err := t.joinTopic(channel)
	if err != nil {
		logx.Error("NETWORK", "Failed to join topic for channel ", channel, ": ", err)
		return
	}
	sub, err := topic.Subscribe()
	if err != nil {
		logx.Error("NETWORK", "Failed to subscribe channel ", channel, ": ", err)
		return
	}

	exception.SafeGo("topic:"+channel, func() {
		for {
			msg, err := sub.Next(t.ctx)
			if err != nil {
				return
			}
			if msg.ReceivedFrom == t.host.ID() {
				continue
			}
			var env Envelope
			if err := jsonx.Unmarshal(msg.Data, &env); err != nil {
				logx.Warn("NETWORK", "Dropping malformed broadcast on ", channel, ": ", err)
				continue
			}
			t.dispatch(env)
		}
	})
}

func (t *Libp2pTransport) handleDirectStream(s network.Stream) {
	defer s.Close()

	var env Envelope
	decoder := jsonx.NewDecoder(s)
	if err := decoder.Decode(&env); err != nil {
		logx.Warn("NETWORK", "Dropping malformed direct message: ", err)
		return
	}

	if env.Channel == ChannelHello {
		t.recordPeer(s.Conn().RemotePeer(), env.FromName)
		return
	}
	t.dispatch(env)
}

func (t *Libp2pTransport) dispatch(env Envelope) {
	t.handlersMu.RLock()
	handler := t.handlers[env.Channel]
	t.handlersMu.RUnlock()

	if handler == nil {
		logx.Debug("NETWORK", "No handler for channel ", env.Channel, ", dropping")
		return
	}
	handler(env.Payload, env.From, env.FromName)
}

func (t *Libp2pTransport) onPeerConnected(_ network.Network, conn network.Conn) {
	remote := conn.RemotePeer()
	logx.Info("NETWORK", "Peer connected: ", remote.String())

	// Announce our name so the remote can fill its peer directory; its hello
	// travels on its own connection event.
	exception.SafeGo("hello:"+remote.String(), func() {
		env := Envelope{
			Channel:  ChannelHello,
			From:     t.SelfID(),
			FromName: t.name,
		}
		s, err := t.host.NewStream(t.ctx, remote, DirectProtocol)
		if err != nil {
			logx.Warn("NETWORK", "Failed to open hello stream to ", remote.String(), ": ", err)
			return
		}
		defer s.Close()
		if err := jsonx.NewEncoder(s).Encode(env); err != nil {
			logx.Warn("NETWORK", "Failed to send hello to ", remote.String(), ": ", err)
		}
	})
}

func (t *Libp2pTransport) onPeerDisconnected(_ network.Network, conn network.Conn) {
	remote := conn.RemotePeer()

	t.peersMu.Lock()
	delete(t.peers, remote)
	count := len(t.peers)
	t.peersMu.Unlock()

	monitoring.SetPeerCount(count)
	logx.Info("NETWORK", "Peer disconnected: ", remote.String())
}

func (t *Libp2pTransport) recordPeer(id peer.ID, name string) {
	t.peersMu.Lock()
	_, known := t.peers[id]
	t.peers[id] = name
	count := len(t.peers)
	t.peersMu.Unlock()

	monitoring.SetPeerCount(count)
	if known {
		return
	}

	t.connectMu.RLock()
	handler := t.onConnectHandler
	t.connectMu.RUnlock()
	if handler != nil {
		handler(id.String(), name)
	}
}
