package gossip

import (
	"sync"
	"time"

	"chainkv/interfaces"
)

const (
	waitFor = 2 * time.Second
	tick    = 10 * time.Millisecond
)

type sentMessage struct {
	target  string
	channel string
	payload []byte
}

// stubTransport records outbound traffic and lets tests drive inbound
// handlers directly, so protocol state machines can be stepped one message
// at a time.
type stubTransport struct {
	mu        sync.Mutex
	name      string
	peers     map[string]string
	sends     []sentMessage
	handlers  map[string]interfaces.MessageHandler
	onConnect func(peerID string, peerName string)
}

func newStubTransport(name string, peers map[string]string) *stubTransport {
	if peers == nil {
		peers = make(map[string]string)
	}
	return &stubTransport{
		name:     name,
		peers:    peers,
		handlers: make(map[string]interfaces.MessageHandler),
	}
}

func (t *stubTransport) SelfID() string   { return "self-id" }
func (t *stubTransport) SelfName() string { return t.name }

func (t *stubTransport) OnConnect(handler func(peerID string, peerName string)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onConnect = handler
}

func (t *stubTransport) Send(target string, channel string, payload []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sends = append(t.sends, sentMessage{target: target, channel: channel, payload: payload})
	return nil
}

func (t *stubTransport) Broadcast(channel string, payload []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sends = append(t.sends, sentMessage{target: "", channel: channel, payload: payload})
	return nil
}

func (t *stubTransport) Listen(channel string, handler interfaces.MessageHandler) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.handlers[channel] = handler
}

func (t *stubTransport) Peers() map[string]string {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make(map[string]string, len(t.peers))
	for id, name := range t.peers {
		out[id] = name
	}
	return out
}

func (t *stubTransport) Close() error { return nil }

func (t *stubTransport) deliver(channel string, payload []byte, peerID string, peerName string) {
	t.mu.Lock()
	handler := t.handlers[channel]
	t.mu.Unlock()
	if handler != nil {
		handler(payload, peerID, peerName)
	}
}

func (t *stubTransport) fireConnect(peerID string, peerName string) {
	t.mu.Lock()
	handler := t.onConnect
	t.peers[peerID] = peerName
	t.mu.Unlock()
	if handler != nil {
		handler(peerID, peerName)
	}
}

func (t *stubTransport) sentOn(channel string) []sentMessage {
	t.mu.Lock()
	defer t.mu.Unlock()

	var out []sentMessage
	for _, msg := range t.sends {
		if msg.channel == channel {
			out = append(out, msg)
		}
	}
	return out
}
