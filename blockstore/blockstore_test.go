package blockstore

import (
	"fmt"
	"math/rand"
	"testing"

	fuzz "github.com/google/gofuzz"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chainkv/block"
)

func TestAppendGrowsChainByOne(t *testing.T) {
	s := NewStore("node1")

	for i := 0; i < 10; i++ {
		before := s.Length()
		blk := s.Append(fmt.Sprintf("key-%d", i), fmt.Sprintf("value-%d", i))
		require.NotNil(t, blk)
		assert.Equal(t, before+1, s.Length())
	}
}

func TestAppendNeverMutatesExistingBlocks(t *testing.T) {
	s := NewStore("node1")

	first := s.Append("x", "1")
	snapshot := *first

	s.Append("x", "2")
	s.Append("y", "3")

	assert.Equal(t, snapshot, *s.Blocks()[0])
}

func TestAddIsIdempotent(t *testing.T) {
	s := NewStore("node1")
	blk := block.NewBlock(0, "node2", "x", "1")

	require.True(t, s.Add(blk))
	assert.Equal(t, 1, s.Length())

	// Re-adding a held block id is a no-op, not a duplicate.
	require.False(t, s.Add(blk))
	assert.Equal(t, 1, s.Length())
	assert.Equal(t, blk.Data, s.Blocks()[0].Data)
}

func TestDiffFindsBlocksAbsentLocally(t *testing.T) {
	local := NewStore("node1")
	remote := NewStore("node2")

	shared := remote.Append("a", "1")
	local.Add(shared)
	onlyRemote1 := remote.Append("b", "2")
	onlyRemote2 := remote.Append("c", "3")
	local.Append("d", "4")

	missing := local.Diff(remote.Inventory())
	assert.ElementsMatch(t, []string{onlyRemote1.ID, onlyRemote2.ID}, missing)
}

func TestDiffEmptyWhenNothingMissing(t *testing.T) {
	local := NewStore("node1")
	remote := NewStore("node2")

	blk := remote.Append("a", "1")
	local.Add(blk)

	assert.Empty(t, local.Diff(remote.Inventory()))
}

func TestMergeUnionsByBlockID(t *testing.T) {
	local := NewStore("node1")
	remote := NewStore("node2")

	shared := remote.Append("a", "1")
	local.Add(shared)
	remote.Append("b", "2")
	remote.Append("c", "3")
	local.Append("d", "4")

	local.Merge(remote.Blocks())

	assert.Equal(t, 4, local.Length())
	// Merging again changes nothing.
	local.Merge(remote.Blocks())
	assert.Equal(t, 4, local.Length())
}

func TestCanonicalSortConvergesAcrossArrivalOrders(t *testing.T) {
	f := fuzz.New().NilChance(0)
	rng := rand.New(rand.NewSource(42))

	var blocks []*block.Block
	for i := 0; i < 30; i++ {
		var key, value string
		f.Fuzz(&key)
		f.Fuzz(&value)
		blocks = append(blocks, block.NewBlock(uint64(i), "origin", key, value))
	}

	a := NewStore("node-a")
	b := NewStore("node-b")
	for _, blk := range blocks {
		a.Add(blk)
	}
	scrambled := make([]*block.Block, len(blocks))
	copy(scrambled, blocks)
	rng.Shuffle(len(scrambled), func(i, j int) {
		scrambled[i], scrambled[j] = scrambled[j], scrambled[i]
	})
	for _, blk := range scrambled {
		b.Add(blk)
	}

	a.CanonicalSort()
	b.CanonicalSort()

	require.Equal(t, a.Length(), b.Length())
	aBlocks := a.Blocks()
	bBlocks := b.Blocks()
	for i := range aBlocks {
		assert.Equal(t, aBlocks[i].ID, bBlocks[i].ID, "position %d differs", i)
	}
}

func TestBlocksReturnsSnapshot(t *testing.T) {
	s := NewStore("node1")
	s.Append("a", "1")

	snapshot := s.Blocks()
	s.Append("b", "2")

	assert.Len(t, snapshot, 1)
	assert.Equal(t, 2, s.Length())
}
