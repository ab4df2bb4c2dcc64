package block

// Map is a compact inventory of held blocks, id -> height. It is produced for
// diffing against a peer's inventory and never stored.
type Map map[string]uint64
