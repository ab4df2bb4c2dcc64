package blockstore

import (
	"fmt"
	"sort"
	"sync"

	"chainkv/block"
	"chainkv/logx"
	"chainkv/monitoring"
	"chainkv/utils"
)

// Store is the in-memory block log. The chain may hold blocks out of causal
// order while a reconciliation is in flight; CanonicalSort restores order
// once a batch completes.
type Store struct {
	mu     sync.RWMutex
	origin string
	blocks []*block.Block
	index  map[string]*block.Block
}

func NewStore(origin string) *Store {
	return &Store{
		origin: origin,
		index:  make(map[string]*block.Block),
	}
}

func (s *Store) Append(key string, value string) *block.Block {
	s.mu.Lock()
	defer s.mu.Unlock()

	blk := block.NewBlock(uint64(len(s.blocks)), s.origin, key, value)
	s.blocks = append(s.blocks, blk)
	s.index[blk.ID] = blk

	monitoring.IncreaseAppendedBlockCount()
	monitoring.SetChainLength(len(s.blocks))
	logx.Debug("BLOCKSTORE", fmt.Sprintf("Appended block %s at height %d for key %s", utils.ShortID(blk.ID), blk.Height, key))
	return blk
}

func (s *Store) Add(blk *block.Block) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addLocked(blk)
}

func (s *Store) addLocked(blk *block.Block) bool {
	if _, exists := s.index[blk.ID]; exists {
		monitoring.IncreaseDuplicateBlockCount()
		return false
	}
	s.blocks = append(s.blocks, blk)
	s.index[blk.ID] = blk

	monitoring.IncreaseReplicatedBlockCount()
	monitoring.SetChainLength(len(s.blocks))
	logx.Debug("BLOCKSTORE", fmt.Sprintf("Added remote block %s from %s", utils.ShortID(blk.ID), blk.Origin))
	return true
}

func (s *Store) Inventory() block.Map {
	s.mu.RLock()
	defer s.mu.RUnlock()

	inv := make(block.Map, len(s.blocks))
	for _, blk := range s.blocks {
		inv[blk.ID] = blk.Height
	}
	return inv
}

func (s *Store) Diff(remote block.Map) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var missing []string
	for id := range remote {
		if _, exists := s.index[id]; !exists {
			missing = append(missing, id)
		}
	}
	return missing
}

// Merge unions a foreign chain into the local one by block id. Blocks are
// immutable and uniquely identified, so union is conflict-free.
func (s *Store) Merge(chain []*block.Block) {
	s.mu.Lock()
	added := 0
	for _, blk := range chain {
		if s.addLocked(blk) {
			added++
		}
	}
	s.mu.Unlock()

	if added > 0 {
		s.CanonicalSort()
	}
	logx.Info("BLOCKSTORE", fmt.Sprintf("Merged foreign chain of %d blocks, %d new", len(chain), added))
}

func (s *Store) CanonicalSort() {
	s.mu.Lock()
	defer s.mu.Unlock()

	sort.SliceStable(s.blocks, func(i, j int) bool {
		return s.blocks[i].Less(s.blocks[j])
	})
}

func (s *Store) Length() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.blocks)
}

// Blocks returns a snapshot of the chain in its current order, oldest first.
func (s *Store) Blocks() []*block.Block {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*block.Block, len(s.blocks))
	copy(out, s.blocks)
	return out
}
