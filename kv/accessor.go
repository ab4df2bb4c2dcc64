package kv

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"chainkv/block"
	"chainkv/config"
	"chainkv/events"
	"chainkv/gossip"
	"chainkv/interfaces"
	"chainkv/jsonx"
	"chainkv/logx"
	"chainkv/monitoring"
	"chainkv/utils"
)

// Accessor is the key-value surface over the local block log. Writes append
// and broadcast; reads scan locally and, on a miss, pull from peers with a
// bounded, linearly backed-off retry. Retry state lives inside each Get call,
// so concurrent reads never share a counter.
type Accessor struct {
	store     interfaces.BlockStore
	transport interfaces.Transport
	bus       *events.EventBus
	clock     clockwork.Clock

	maxAttempts int
	backoffStep time.Duration

	errMu  sync.Mutex
	errLog []error
}

func NewAccessor(store interfaces.BlockStore, transport interfaces.Transport, bus *events.EventBus, cfg *config.ReadConfig, clock clockwork.Clock) *Accessor {
	return &Accessor{
		store:       store,
		transport:   transport,
		bus:         bus,
		clock:       clock,
		maxAttempts: cfg.MaxAttempts,
		backoffStep: cfg.BackoffStep(),
	}
}

// Put appends a block for key/value and broadcasts it. The write succeeds
// locally no matter what the network does; replication is best-effort.
func (a *Accessor) Put(key string, value string) *block.Block {
	blk := a.store.Append(key, value)
	a.bus.Publish(events.NewBlockAppended(blk.ID, key))

	payload, err := jsonx.Marshal(gossip.NewBlockMessage{Block: blk})
	if err != nil {
		a.recordError(fmt.Errorf("marshal block broadcast: %w", err))
		return blk
	}
	if err := a.transport.Broadcast(gossip.ChannelNewBlock, payload); err != nil {
		a.recordError(fmt.Errorf("broadcast block %s: %w", utils.ShortID(blk.ID), err))
	}
	return blk
}

// Get returns the newest data for key. On a local miss it broadcasts a key
// request and retries after attempt*backoffStep, up to maxAttempts requests;
// exhaustion returns ok=false, never an error. Cancelling ctx stops the
// retry chain early.
func (a *Accessor) Get(ctx context.Context, key string) (block.Data, bool) {
	attempts := 0
	for {
		if blk := a.newestFor(key); blk != nil {
			return blk.Data, true
		}
		if attempts >= a.maxAttempts {
			monitoring.IncreaseReadMissCount()
			logx.Info("KV", "Key ", key, " not found after ", attempts, " attempts")
			return block.Data{}, false
		}

		attempts++
		a.requestKey(key)
		monitoring.IncreaseReadRetryCount()

		backoff := time.Duration(attempts) * a.backoffStep
		logx.Debug("KV", fmt.Sprintf("Key %s missing locally, retry %d/%d in %s", key, attempts, a.maxAttempts, backoff))
		select {
		case <-ctx.Done():
			return block.Data{}, false
		case <-a.clock.After(backoff):
		}
	}
}

// GetHistory returns every value written for key in chain order, oldest
// first. No remote fetch: history reflects exactly what the local chain holds.
func (a *Accessor) GetHistory(key string) []block.Data {
	var history []block.Data
	for _, blk := range a.store.Blocks() {
		if blk.Data.Key == key {
			history = append(history, blk.Data)
		}
	}
	return history
}

// GetAll returns the latest data per distinct key, newest first.
func (a *Accessor) GetAll() []block.Data {
	blocks := a.store.Blocks()
	seen := make(map[string]struct{})
	var out []block.Data
	for i := len(blocks) - 1; i >= 0; i-- {
		key := blocks[i].Data.Key
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, blocks[i].Data)
	}
	return out
}

// Errors drains the accessor's in-memory error log. Network and store faults
// land here instead of surfacing to Put/Get callers.
func (a *Accessor) Errors() []error {
	a.errMu.Lock()
	defer a.errMu.Unlock()

	out := make([]error, len(a.errLog))
	copy(out, a.errLog)
	a.errLog = nil
	return out
}

func (a *Accessor) newestFor(key string) *block.Block {
	blocks := a.store.Blocks()
	for i := len(blocks) - 1; i >= 0; i-- {
		if blocks[i].Data.Key == key {
			return blocks[i]
		}
	}
	return nil
}

func (a *Accessor) requestKey(key string) {
	payload, err := jsonx.Marshal(gossip.KeyRequest{Key: key})
	if err != nil {
		a.recordError(fmt.Errorf("marshal key request: %w", err))
		return
	}
	if err := a.transport.Broadcast(gossip.ChannelKeyRequest, payload); err != nil {
		a.recordError(fmt.Errorf("broadcast key request for %s: %w", key, err))
		return
	}
	monitoring.IncreaseKeyRequestCount()
}

func (a *Accessor) recordError(err error) {
	a.errMu.Lock()
	a.errLog = append(a.errLog, err)
	a.errMu.Unlock()
	logx.Error("KV", err.Error())
}
