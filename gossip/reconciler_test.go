package gossip

import (
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chainkv/block"
	"chainkv/blockstore"
	"chainkv/config"
	"chainkv/events"
	"chainkv/jsonx"
)

func newTestReconciler(t *testing.T, store *blockstore.Store, clock clockwork.Clock) (*Reconciler, *stubTransport) {
	t.Helper()
	tr := newStubTransport("node1", map[string]string{"p1": "peer1"})
	r := NewReconciler(store, tr, events.NewEventBus(), config.DefaultGossipConfig(), clock)
	r.Start()
	return r, tr
}

func blockMapReply(t *testing.T, blocks ...*block.Block) []byte {
	t.Helper()
	m := make(block.Map, len(blocks))
	for _, blk := range blocks {
		m[blk.ID] = blk.Height
	}
	payload, err := jsonx.Marshal(BlockMapReply{BlockMap: m})
	require.NoError(t, err)
	return payload
}

func blockReply(t *testing.T, blk *block.Block) []byte {
	t.Helper()
	payload, err := jsonx.Marshal(BlockReply{Block: blk})
	require.NoError(t, err)
	return payload
}

func TestReconcileRequestsBlockMap(t *testing.T) {
	store := blockstore.NewStore("node1")
	r, tr := newTestReconciler(t, store, clockwork.NewFakeClock())
	defer r.Stop()

	r.Reconcile("p1")

	sends := tr.sentOn(ChannelBlockMapRequest)
	require.Len(t, sends, 1)
	assert.Equal(t, "p1", sends[0].target)

	var msg BlockMapRequest
	require.NoError(t, jsonx.Unmarshal(sends[0].payload, &msg))
	assert.Equal(t, RequestBlockMap, msg.Request)
}

func TestSessionRequestsEveryMissingBlock(t *testing.T) {
	store := blockstore.NewStore("node1")
	store.Append("local", "1")
	r, tr := newTestReconciler(t, store, clockwork.NewFakeClock())
	defer r.Stop()

	b1 := block.NewBlock(0, "node2", "a", "1")
	b2 := block.NewBlock(1, "node2", "b", "2")
	tr.deliver(ChannelBlockMapReply, blockMapReply(t, b1, b2), "p1", "peer1")

	assert.Equal(t, 1, r.OpenSessions())

	requests := tr.sentOn(ChannelBlockRequest)
	require.Len(t, requests, 2)
	var ids []string
	for _, req := range requests {
		var msg BlockRequest
		require.NoError(t, jsonx.Unmarshal(req.payload, &msg))
		assert.Equal(t, "p1", req.target)
		ids = append(ids, msg.BlockID)
	}
	assert.ElementsMatch(t, []string{b1.ID, b2.ID}, ids)
}

func TestSessionCompletesAndResorts(t *testing.T) {
	store := blockstore.NewStore("node1")
	store.Append("local", "1")
	r, tr := newTestReconciler(t, store, clockwork.NewFakeClock())
	defer r.Stop()

	b1 := block.NewBlock(0, "node2", "a", "1")
	b2 := block.NewBlock(1, "node2", "b", "2")
	tr.deliver(ChannelBlockMapReply, blockMapReply(t, b1, b2), "p1", "peer1")

	// Deliver out of order; the chain is re-sorted on completion.
	tr.deliver(ChannelBlockReply, blockReply(t, b2), "p1", "peer1")
	assert.Equal(t, 1, r.OpenSessions())

	tr.deliver(ChannelBlockReply, blockReply(t, b1), "p1", "peer1")
	assert.Equal(t, 0, r.OpenSessions())
	assert.Equal(t, 3, store.Length())

	blocks := store.Blocks()
	for i := 1; i < len(blocks); i++ {
		assert.True(t, blocks[i-1].Less(blocks[i]), "chain not canonical at %d", i)
	}
}

func TestRedeliveredBlockNeverDoubleCounts(t *testing.T) {
	store := blockstore.NewStore("node1")
	r, tr := newTestReconciler(t, store, clockwork.NewFakeClock())
	defer r.Stop()

	b1 := block.NewBlock(0, "node2", "a", "1")
	b2 := block.NewBlock(1, "node2", "b", "2")
	tr.deliver(ChannelBlockMapReply, blockMapReply(t, b1, b2), "p1", "peer1")

	tr.deliver(ChannelBlockReply, blockReply(t, b1), "p1", "peer1")
	tr.deliver(ChannelBlockReply, blockReply(t, b1), "p1", "peer1")
	tr.deliver(ChannelBlockReply, blockReply(t, b1), "p1", "peer1")

	// b2 is still outstanding: duplicates of b1 must not complete the session.
	assert.Equal(t, 1, r.OpenSessions())
	assert.Equal(t, 1, store.Length())
}

func TestNothingMissingOpensNoSession(t *testing.T) {
	store := blockstore.NewStore("node1")
	held := store.Append("a", "1")
	r, tr := newTestReconciler(t, store, clockwork.NewFakeClock())
	defer r.Stop()

	tr.deliver(ChannelBlockMapReply, blockMapReply(t, held), "p1", "peer1")

	assert.Equal(t, 0, r.OpenSessions())
	assert.Empty(t, tr.sentOn(ChannelBlockRequest))
}

func TestStalledSessionTimesOut(t *testing.T) {
	store := blockstore.NewStore("node1")
	clock := clockwork.NewFakeClock()
	r, tr := newTestReconciler(t, store, clock)
	defer r.Stop()

	b1 := block.NewBlock(0, "node2", "a", "1")
	tr.deliver(ChannelBlockMapReply, blockMapReply(t, b1), "p1", "peer1")
	require.Equal(t, 1, r.OpenSessions())

	clock.Advance(config.DefaultGossipConfig().SessionTimeout() + time.Millisecond)

	require.Eventually(t, func() bool {
		return r.OpenSessions() == 0
	}, waitFor, tick)

	// The abandoned session no longer blocks a later round.
	r.Reconcile("p1")
	assert.Len(t, tr.sentOn(ChannelBlockMapRequest), 1)
}

func TestBlockReplyOutsideSessionStillFillsStore(t *testing.T) {
	store := blockstore.NewStore("node1")
	r, tr := newTestReconciler(t, store, clockwork.NewFakeClock())
	defer r.Stop()

	// A key-request reply arrives on the same channel with no open session.
	blk := block.NewBlock(0, "node2", "wanted", "42")
	tr.deliver(ChannelBlockReply, blockReply(t, blk), "p1", "peer1")

	assert.Equal(t, 1, store.Length())
	assert.Equal(t, "wanted", store.Blocks()[0].Data.Key)
}
