package events

import (
	"time"
)

// EventType is an enum-like string type for node events
type EventType string

const (
	EventBlockAppended   EventType = "BlockAppended"
	EventBlockReplicated EventType = "BlockReplicated"
	EventSyncStarted     EventType = "SyncStarted"
	EventSyncCompleted   EventType = "SyncCompleted"
	EventSyncAbandoned   EventType = "SyncAbandoned"
)

// NodeEvent represents any observable transition in the node
type NodeEvent interface {
	Type() EventType
	Timestamp() time.Time
}

// BlockAppended fires when a local put appends a block
type BlockAppended struct {
	blockID   string
	key       string
	timestamp time.Time
}

func NewBlockAppended(blockID string, key string) *BlockAppended {
	return &BlockAppended{
		blockID:   blockID,
		key:       key,
		timestamp: time.Now(),
	}
}

func (e *BlockAppended) Type() EventType {
	return EventBlockAppended
}

func (e *BlockAppended) Timestamp() time.Time {
	return e.timestamp
}

func (e *BlockAppended) BlockID() string {
	return e.blockID
}

func (e *BlockAppended) Key() string {
	return e.key
}

// BlockReplicated fires when a remote block is incorporated into the store
type BlockReplicated struct {
	blockID   string
	peerID    string
	timestamp time.Time
}

func NewBlockReplicated(blockID string, peerID string) *BlockReplicated {
	return &BlockReplicated{
		blockID:   blockID,
		peerID:    peerID,
		timestamp: time.Now(),
	}
}

func (e *BlockReplicated) Type() EventType {
	return EventBlockReplicated
}

func (e *BlockReplicated) Timestamp() time.Time {
	return e.timestamp
}

func (e *BlockReplicated) BlockID() string {
	return e.blockID
}

func (e *BlockReplicated) PeerID() string {
	return e.peerID
}

// SyncStarted fires when a reconciliation session opens against a peer
type SyncStarted struct {
	peerID    string
	missing   int
	timestamp time.Time
}

func NewSyncStarted(peerID string, missing int) *SyncStarted {
	return &SyncStarted{
		peerID:    peerID,
		missing:   missing,
		timestamp: time.Now(),
	}
}

func (e *SyncStarted) Type() EventType {
	return EventSyncStarted
}

func (e *SyncStarted) Timestamp() time.Time {
	return e.timestamp
}

func (e *SyncStarted) PeerID() string {
	return e.peerID
}

func (e *SyncStarted) Missing() int {
	return e.missing
}

// SyncCompleted fires when every missing block of a session has arrived
type SyncCompleted struct {
	peerID    string
	received  int
	timestamp time.Time
}

func NewSyncCompleted(peerID string, received int) *SyncCompleted {
	return &SyncCompleted{
		peerID:    peerID,
		received:  received,
		timestamp: time.Now(),
	}
}

func (e *SyncCompleted) Type() EventType {
	return EventSyncCompleted
}

func (e *SyncCompleted) Timestamp() time.Time {
	return e.timestamp
}

func (e *SyncCompleted) PeerID() string {
	return e.peerID
}

func (e *SyncCompleted) Received() int {
	return e.received
}

// SyncAbandoned fires when a stalled session hits its deadline
type SyncAbandoned struct {
	peerID    string
	shortfall int
	timestamp time.Time
}

func NewSyncAbandoned(peerID string, shortfall int) *SyncAbandoned {
	return &SyncAbandoned{
		peerID:    peerID,
		shortfall: shortfall,
		timestamp: time.Now(),
	}
}

func (e *SyncAbandoned) Type() EventType {
	return EventSyncAbandoned
}

func (e *SyncAbandoned) Timestamp() time.Time {
	return e.timestamp
}

func (e *SyncAbandoned) PeerID() string {
	return e.peerID
}

func (e *SyncAbandoned) Shortfall() int {
	return e.shortfall
}
