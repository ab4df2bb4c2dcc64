package gossip

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chainkv/block"
	"chainkv/blockstore"
	"chainkv/events"
	"chainkv/jsonx"
)

func newTestRouter(t *testing.T, store *blockstore.Store) (*Router, *stubTransport) {
	t.Helper()
	tr := newStubTransport("node1", map[string]string{"p1": "peer1"})
	rt := NewRouter(store, tr, events.NewEventBus())
	rt.Start()
	return rt, tr
}

func decodeBlockReply(t *testing.T, payload []byte) *block.Block {
	t.Helper()
	var msg BlockReply
	require.NoError(t, jsonx.Unmarshal(payload, &msg))
	return msg.Block
}

func TestServesBlockMapRequest(t *testing.T) {
	store := blockstore.NewStore("node1")
	b1 := store.Append("a", "1")
	b2 := store.Append("b", "2")
	_, tr := newTestRouter(t, store)

	payload, err := jsonx.Marshal(BlockMapRequest{Request: RequestBlockMap})
	require.NoError(t, err)
	tr.deliver(ChannelBlockMapRequest, payload, "p1", "peer1")

	replies := tr.sentOn(ChannelBlockMapReply)
	require.Len(t, replies, 1)
	assert.Equal(t, "p1", replies[0].target)

	var msg BlockMapReply
	require.NoError(t, jsonx.Unmarshal(replies[0].payload, &msg))
	assert.Len(t, msg.BlockMap, 2)
	assert.Contains(t, msg.BlockMap, b1.ID)
	assert.Contains(t, msg.BlockMap, b2.ID)
}

func TestServesBlockByID(t *testing.T) {
	store := blockstore.NewStore("node1")
	blk := store.Append("a", "1")
	_, tr := newTestRouter(t, store)

	payload, err := jsonx.Marshal(BlockRequest{BlockID: blk.ID})
	require.NoError(t, err)
	tr.deliver(ChannelBlockRequest, payload, "p1", "peer1")

	replies := tr.sentOn(ChannelBlockReply)
	require.Len(t, replies, 1)
	assert.Equal(t, blk.ID, decodeBlockReply(t, replies[0].payload).ID)
}

func TestUnknownBlockRequestStaysSilent(t *testing.T) {
	store := blockstore.NewStore("node1")
	store.Append("a", "1")
	_, tr := newTestRouter(t, store)

	payload, err := jsonx.Marshal(BlockRequest{BlockID: "no-such-block"})
	require.NoError(t, err)
	tr.deliver(ChannelBlockRequest, payload, "p1", "peer1")

	assert.Empty(t, tr.sentOn(ChannelBlockReply))
}

func TestKeyRequestReturnsNewestMatch(t *testing.T) {
	store := blockstore.NewStore("node1")
	store.Append("x", "old")
	newest := store.Append("x", "new")
	store.Append("y", "other")
	_, tr := newTestRouter(t, store)

	payload, err := jsonx.Marshal(KeyRequest{Key: "x"})
	require.NoError(t, err)
	tr.deliver(ChannelKeyRequest, payload, "p1", "peer1")

	replies := tr.sentOn(ChannelBlockReply)
	require.Len(t, replies, 1)
	got := decodeBlockReply(t, replies[0].payload)
	assert.Equal(t, newest.ID, got.ID)
	assert.Equal(t, "new", got.Data.Value)
}

func TestUnknownKeyRequestStaysSilent(t *testing.T) {
	store := blockstore.NewStore("node1")
	_, tr := newTestRouter(t, store)

	payload, err := jsonx.Marshal(KeyRequest{Key: "missing"})
	require.NoError(t, err)
	tr.deliver(ChannelKeyRequest, payload, "p1", "peer1")

	assert.Empty(t, tr.sentOn(ChannelBlockReply))
}

func TestNewBlockBroadcastIncorporated(t *testing.T) {
	store := blockstore.NewStore("node1")
	_, tr := newTestRouter(t, store)

	blk := block.NewBlock(0, "node2", "a", "1")
	payload, err := jsonx.Marshal(NewBlockMessage{Block: blk})
	require.NoError(t, err)
	tr.deliver(ChannelNewBlock, payload, "p1", "peer2")

	assert.Equal(t, 1, store.Length())
}

func TestOwnBroadcastIgnored(t *testing.T) {
	store := blockstore.NewStore("node1")
	_, tr := newTestRouter(t, store)

	blk := block.NewBlock(0, "node1", "a", "1")
	payload, err := jsonx.Marshal(NewBlockMessage{Block: blk})
	require.NoError(t, err)

	// Sender name matches our own: the broadcast looped back.
	tr.deliver(ChannelNewBlock, payload, "self-id", "node1")

	assert.Equal(t, 0, store.Length())
}

func TestChainBroadcastMergesByUnion(t *testing.T) {
	store := blockstore.NewStore("node1")
	shared := store.Append("a", "1")
	_, tr := newTestRouter(t, store)

	foreign := []*block.Block{
		shared,
		block.NewBlock(1, "node2", "b", "2"),
		block.NewBlock(2, "node2", "c", "3"),
	}
	payload, err := jsonx.Marshal(ChainMessage{Blocks: foreign})
	require.NoError(t, err)
	tr.deliver(ChannelChain, payload, "p1", "peer2")

	assert.Equal(t, 3, store.Length())
}
