package p2p

import (
	"fmt"
	"sync"

	"github.com/google/uuid"

	"chainkv/exception"
	"chainkv/interfaces"
	"chainkv/logx"
)

// InprocNetwork is an in-process message fabric implementing the same
// Transport contract as the libp2p path. Delivery is asynchronous and
// unordered, like the real network, but loss-free.
type InprocNetwork struct {
	mu    sync.RWMutex
	nodes map[string]*InprocTransport
}

func NewInprocNetwork() *InprocNetwork {
	return &InprocNetwork{
		nodes: make(map[string]*InprocTransport),
	}
}

func (n *InprocNetwork) NewTransport(name string) *InprocTransport {
	t := &InprocTransport{
		net:      n,
		id:       uuid.NewString(),
		name:     name,
		peers:    make(map[string]string),
		handlers: make(map[string]interfaces.MessageHandler),
	}

	n.mu.Lock()
	n.nodes[t.id] = t
	n.mu.Unlock()
	return t
}

// Connect wires two transports together and fires both connect handlers.
func (n *InprocNetwork) Connect(a *InprocTransport, b *InprocTransport) {
	a.addPeer(b.id, b.name)
	b.addPeer(a.id, a.name)
}

func (n *InprocNetwork) lookup(id string) *InprocTransport {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.nodes[id]
}

type InprocTransport struct {
	net  *InprocNetwork
	id   string
	name string

	mu               sync.RWMutex
	peers            map[string]string
	handlers         map[string]interfaces.MessageHandler
	onConnectHandler func(peerID string, peerName string)
	closed           bool
}

func (t *InprocTransport) SelfID() string {
	return t.id
}

func (t *InprocTransport) SelfName() string {
	return t.name
}

func (t *InprocTransport) OnConnect(handler func(peerID string, peerName string)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onConnectHandler = handler
}

func (t *InprocTransport) Listen(channel string, handler interfaces.MessageHandler) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.handlers[channel] = handler
}

func (t *InprocTransport) Send(target string, channel string, payload []byte) error {
	remote := t.net.lookup(target)
	if remote == nil {
		return fmt.Errorf("unknown peer %s", target)
	}

	data := make([]byte, len(payload))
	copy(data, payload)
	exception.SafeGo("inproc-send:"+channel, func() {
		remote.deliver(channel, data, t.id, t.name)
	})
	return nil
}

func (t *InprocTransport) Broadcast(channel string, payload []byte) error {
	t.mu.RLock()
	targets := make([]string, 0, len(t.peers))
	for id := range t.peers {
		targets = append(targets, id)
	}
	t.mu.RUnlock()

	for _, target := range targets {
		if err := t.Send(target, channel, payload); err != nil {
			logx.Warn("INPROC", "Broadcast to ", target, " failed: ", err)
		}
	}
	return nil
}

func (t *InprocTransport) Peers() map[string]string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make(map[string]string, len(t.peers))
	for id, name := range t.peers {
		out[id] = name
	}
	return out
}

func (t *InprocTransport) Close() error {
	t.mu.Lock()
	t.closed = true
	t.mu.Unlock()
	return nil
}

func (t *InprocTransport) addPeer(id string, name string) {
	t.mu.Lock()
	t.peers[id] = name
	handler := t.onConnectHandler
	closed := t.closed
	t.mu.Unlock()

	if handler != nil && !closed {
		handler(id, name)
	}
}

func (t *InprocTransport) deliver(channel string, payload []byte, fromID string, fromName string) {
	t.mu.RLock()
	handler := t.handlers[channel]
	closed := t.closed
	t.mu.RUnlock()

	if closed {
		return
	}
	if handler == nil {
		logx.Debug("INPROC", "No handler for channel ", channel, ", dropping")
		return
	}
	handler(payload, fromID, fromName)
}
