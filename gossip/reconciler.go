package gossip

import (
	"fmt"
	"sync"

	"github.com/jonboulle/clockwork"

	"chainkv/config"
	"chainkv/events"
	"chainkv/interfaces"
	"chainkv/jsonx"
	"chainkv/logx"
	"chainkv/monitoring"
	"chainkv/utils"
)

// session tracks one outstanding diff-and-fetch cycle against a peer. Both
// sides are identity sets, so a redelivered block can never double-count
// toward completion.
type session struct {
	peerID   string
	missing  map[string]struct{}
	received map[string]struct{}
	timer    clockwork.Timer
}

// Reconciler drives the request/response cycle that brings the local chain up
// to date with a longer peer: request the peer's block map, diff it against
// the local inventory, fetch every missing block by id, and re-sort the chain
// once the batch is complete. Sessions are keyed by peer and expire after the
// configured timeout; an abandoned session is retried by a later gossip round.
type Reconciler struct {
	store     interfaces.BlockStore
	transport interfaces.Transport
	bus       *events.EventBus
	cfg       *config.GossipConfig
	clock     clockwork.Clock

	mu       sync.Mutex
	sessions map[string]*session
}

func NewReconciler(store interfaces.BlockStore, transport interfaces.Transport, bus *events.EventBus, cfg *config.GossipConfig, clock clockwork.Clock) *Reconciler {
	return &Reconciler{
		store:     store,
		transport: transport,
		bus:       bus,
		cfg:       cfg,
		clock:     clock,
		sessions:  make(map[string]*session),
	}
}

func (r *Reconciler) Start() {
	r.transport.Listen(ChannelBlockMapReply, r.onBlockMap)
	r.transport.Listen(ChannelBlockReply, r.onBlockReply)
}

func (r *Reconciler) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for peerID, s := range r.sessions {
		if s.timer != nil {
			s.timer.Stop()
		}
		delete(r.sessions, peerID)
	}
	monitoring.SetOpenSyncSessions(0)
}

// Reconcile asks a peer for its block map. The rest of the cycle is driven by
// the replies.
func (r *Reconciler) Reconcile(peerID string) {
	r.mu.Lock()
	_, inFlight := r.sessions[peerID]
	r.mu.Unlock()
	if inFlight {
		logx.Debug("SYNC", "Session with ", utils.ShortID(peerID), " already open, skipping")
		return
	}

	payload, err := jsonx.Marshal(BlockMapRequest{Request: RequestBlockMap})
	if err != nil {
		logx.Error("SYNC", "Failed to marshal block map request: ", err)
		return
	}
	if err := r.transport.Send(peerID, ChannelBlockMapRequest, payload); err != nil {
		logx.Warn("SYNC", "Failed to request block map from ", utils.ShortID(peerID), ": ", err)
	}
}

// OpenSessions reports the number of in-flight sessions.
func (r *Reconciler) OpenSessions() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

func (r *Reconciler) onBlockMap(payload []byte, peerID string, peerName string) {
	var msg BlockMapReply
	if err := jsonx.Unmarshal(payload, &msg); err != nil {
		logx.Warn("SYNC", "Dropping malformed block map from ", peerName, ": ", err)
		return
	}

	missing := r.store.Diff(msg.BlockMap)
	if len(missing) == 0 {
		logx.Info("SYNC", "Block map from ", peerName, " holds nothing new")
		return
	}

	s := &session{
		peerID:   peerID,
		missing:  make(map[string]struct{}, len(missing)),
		received: make(map[string]struct{}, len(missing)),
	}
	for _, id := range missing {
		s.missing[id] = struct{}{}
	}

	r.mu.Lock()
	if _, inFlight := r.sessions[peerID]; inFlight {
		// A block map for an open session re-diffs nothing; the running
		// session finishes or times out first.
		r.mu.Unlock()
		logx.Debug("SYNC", "Ignoring block map from ", peerName, " while session open")
		return
	}
	if r.cfg.SessionTimeout() > 0 {
		s.timer = r.clock.AfterFunc(r.cfg.SessionTimeout(), func() {
			r.abandon(peerID)
		})
	}
	r.sessions[peerID] = s
	open := len(r.sessions)
	r.mu.Unlock()

	monitoring.SetOpenSyncSessions(open)
	r.bus.Publish(events.NewSyncStarted(peerID, len(missing)))
	logx.Info("SYNC", fmt.Sprintf("Session open with %s: %d blocks missing", peerName, len(missing)))

	for _, id := range missing {
		req, err := jsonx.Marshal(BlockRequest{BlockID: id})
		if err != nil {
			continue
		}
		if err := r.transport.Send(peerID, ChannelBlockRequest, req); err != nil {
			logx.Warn("SYNC", "Failed to request block ", utils.ShortID(id), " from ", peerName, ": ", err)
		}
	}
}

func (r *Reconciler) onBlockReply(payload []byte, peerID string, peerName string) {
	var msg BlockReply
	if err := jsonx.Unmarshal(payload, &msg); err != nil {
		logx.Warn("SYNC", "Dropping malformed block reply from ", peerName, ": ", err)
		return
	}
	if msg.Block == nil {
		return
	}

	// Adding is idempotent, and happens whether or not a session asked for
	// this block: key-request replies arrive on the same channel.
	if r.store.Add(msg.Block) {
		r.bus.Publish(events.NewBlockReplicated(msg.Block.ID, peerID))
	}

	r.mu.Lock()
	s := r.sessions[peerID]
	if s == nil {
		r.mu.Unlock()
		return
	}
	if _, wanted := s.missing[msg.Block.ID]; wanted {
		s.received[msg.Block.ID] = struct{}{}
	}
	complete := len(s.received) >= len(s.missing)
	if complete {
		if s.timer != nil {
			s.timer.Stop()
		}
		delete(r.sessions, peerID)
	}
	open := len(r.sessions)
	r.mu.Unlock()

	if !complete {
		return
	}

	// Blocks arrived in whatever order the network delivered them; restore
	// canonical order now that the batch is whole.
	r.store.CanonicalSort()
	monitoring.SetOpenSyncSessions(open)
	monitoring.IncreaseSyncCompletedCount()
	r.bus.Publish(events.NewSyncCompleted(peerID, len(s.received)))
	logx.Info("SYNC", fmt.Sprintf("Session with %s complete: %d blocks received, chain re-sorted to %d blocks", peerName, len(s.received), r.store.Length()))
}

// abandon clears a session whose blocks never fully arrived. The shortfall is
// reported and the tracking state dropped so the next gossip round can re-diff
// from scratch.
func (r *Reconciler) abandon(peerID string) {
	r.mu.Lock()
	s := r.sessions[peerID]
	if s == nil {
		r.mu.Unlock()
		return
	}
	delete(r.sessions, peerID)
	open := len(r.sessions)
	shortfall := len(s.missing) - len(s.received)
	r.mu.Unlock()

	monitoring.SetOpenSyncSessions(open)
	monitoring.RecordSyncAbandoned(monitoring.SyncTimeout)
	r.bus.Publish(events.NewSyncAbandoned(peerID, shortfall))
	logx.Warn("SYNC", fmt.Sprintf("Session with %s timed out: %d of %d blocks never arrived", utils.ShortID(peerID), shortfall, len(s.missing)))
}
