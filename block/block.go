package block

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"time"
)

// Data is the single key/value write a block carries.
type Data struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// Block is one immutable record of the replicated log. Blocks are created by
// the local store on a put, or incorporated verbatim from a remote peer.
// They are never mutated after creation.
type Block struct {
	ID        string `json:"block_id"`
	Height    uint64 `json:"height"`
	Origin    string `json:"origin"`
	Timestamp int64  `json:"timestamp"`
	Data      Data   `json:"data"`
}

func NewBlock(height uint64, origin string, key string, value string) *Block {
	b := &Block{
		Height:    height,
		Origin:    origin,
		Timestamp: time.Now().UnixNano(),
		Data:      Data{Key: key, Value: value},
	}
	b.ID = b.computeID()
	return b
}

func (b *Block) computeID() string {
	h := sha256.New()
	buf := make([]byte, 8)
	// Height
	binary.BigEndian.PutUint64(buf, b.Height)
	h.Write(buf)
	// Origin
	h.Write([]byte(b.Origin))
	// Timestamp (UnixNano)
	binary.BigEndian.PutUint64(buf, uint64(b.Timestamp))
	h.Write(buf)
	// Data
	h.Write([]byte(b.Data.Key))
	h.Write([]byte(b.Data.Value))
	return hex.EncodeToString(h.Sum(nil))
}

// Less reports whether b sorts before other in canonical chain order.
// Height first, then timestamp, then id as the final tie break, so every
// replica converges on the same ordering regardless of arrival order.
func (b *Block) Less(other *Block) bool {
	if b.Height != other.Height {
		return b.Height < other.Height
	}
	if b.Timestamp != other.Timestamp {
		return b.Timestamp < other.Timestamp
	}
	return b.ID < other.ID
}
