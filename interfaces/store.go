package interfaces

import "chainkv/block"

// BlockStore is the append-only block log a node holds locally. All mutations
// are serialized by the implementation; Blocks returns a consistent snapshot
// safe to scan while appends continue.
type BlockStore interface {
	// Append creates a block for a local put and stores it.
	Append(key string, value string) *block.Block
	// Add incorporates a remote block. Re-adding a held block id is a no-op;
	// the return reports whether the block was new.
	Add(b *block.Block) bool
	// Inventory snapshots held block identities for diffing.
	Inventory() block.Map
	// Diff returns ids present in the remote inventory but absent locally.
	Diff(remote block.Map) []string
	// Merge unions an entire foreign chain into the local one.
	Merge(chain []*block.Block)
	// CanonicalSort reorders held blocks into canonical order.
	CanonicalSort()
	Length() int
	Blocks() []*block.Block
}
