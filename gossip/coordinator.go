package gossip

import (
	"fmt"
	"sync"

	"github.com/jonboulle/clockwork"

	"chainkv/config"
	"chainkv/exception"
	"chainkv/interfaces"
	"chainkv/jsonx"
	"chainkv/logx"
	"chainkv/utils"
)

// Syncer starts one reconciliation cycle against a peer believed to hold a
// longer chain.
type Syncer interface {
	Reconcile(peerID string)
}

// Coordinator runs the post-connect gossip round: announce the local chain
// length to every new peer, collect the lengths peers announce back, and once
// a full round of reports is in, hand every longer peer to the Syncer.
//
// Reacting to the first longer report would re-trigger reconciliation as the
// remaining reports trickle in, so evaluation is gated on a quorum equal to
// the current peer count.
type Coordinator struct {
	store     interfaces.BlockStore
	transport interfaces.Transport
	syncer    Syncer
	cfg       *config.GossipConfig
	clock     clockwork.Clock

	mu      sync.Mutex
	reports map[string]int // peer id -> reported chain length

	stopOnce sync.Once
	stop     chan struct{}
}

func NewCoordinator(store interfaces.BlockStore, transport interfaces.Transport, syncer Syncer, cfg *config.GossipConfig, clock clockwork.Clock) *Coordinator {
	return &Coordinator{
		store:     store,
		transport: transport,
		syncer:    syncer,
		cfg:       cfg,
		clock:     clock,
		reports:   make(map[string]int),
		stop:      make(chan struct{}),
	}
}

func (c *Coordinator) Start() {
	c.transport.OnConnect(c.onPeerConnect)
	c.transport.Listen(ChannelChainLength, c.onChainLength)

	if c.cfg.AnnounceInterval() > 0 {
		exception.SafeGo("gossip-announce", c.announceLoop)
	}
}

func (c *Coordinator) Stop() {
	c.stopOnce.Do(func() {
		close(c.stop)
	})
}

func (c *Coordinator) onPeerConnect(peerID string, peerName string) {
	logx.Info("GOSSIP", "New peer ", peerName, " (", utils.ShortID(peerID), "), announcing chain length")
	c.announceTo(peerID)
}

func (c *Coordinator) announceTo(peerID string) {
	payload, err := jsonx.Marshal(ChainLengthMessage{Length: c.store.Length()})
	if err != nil {
		logx.Error("GOSSIP", "Failed to marshal chain length: ", err)
		return
	}
	if err := c.transport.Send(peerID, ChannelChainLength, payload); err != nil {
		logx.Warn("GOSSIP", "Failed to announce length to ", utils.ShortID(peerID), ": ", err)
	}
}

// announceLoop periodically rebroadcasts the local chain length so peers that
// missed a round, or abandoned a stalled session, get another chance to sync.
func (c *Coordinator) announceLoop() {
	ticker := c.clock.NewTicker(c.cfg.AnnounceInterval())
	defer ticker.Stop()

	for {
		select {
		case <-c.stop:
			return
		case <-ticker.Chan():
			payload, err := jsonx.Marshal(ChainLengthMessage{Length: c.store.Length()})
			if err != nil {
				continue
			}
			if err := c.transport.Broadcast(ChannelChainLength, payload); err != nil {
				logx.Warn("GOSSIP", "Failed to broadcast chain length: ", err)
			}
		}
	}
}

func (c *Coordinator) onChainLength(payload []byte, peerID string, peerName string) {
	var msg ChainLengthMessage
	if err := jsonx.Unmarshal(payload, &msg); err != nil {
		logx.Warn("GOSSIP", "Dropping malformed chain length from ", peerName, ": ", err)
		return
	}

	c.mu.Lock()
	c.reports[peerID] = msg.Length
	collected := len(c.reports)
	c.mu.Unlock()

	quorum := len(c.transport.Peers())
	logx.Debug("GOSSIP", fmt.Sprintf("Chain length report from %s: %d (%d/%d collected)", peerName, msg.Length, collected, quorum))

	if collected >= quorum {
		c.evaluateReports()
	}
}

// evaluateReports selects every peer whose reported chain is longer than the
// local one and starts reconciliation with it. The report set is cleared so a
// stale round never re-triggers the next evaluation.
func (c *Coordinator) evaluateReports() {
	c.mu.Lock()
	round := c.reports
	c.reports = make(map[string]int)
	c.mu.Unlock()

	local := c.store.Length()
	for peerID, length := range round {
		if length <= local {
			continue
		}
		logx.Info("GOSSIP", fmt.Sprintf("Peer %s reports %d blocks, local has %d; reconciling", utils.ShortID(peerID), length, local))
		c.syncer.Reconcile(peerID)
	}
}
