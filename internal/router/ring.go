package router

import (
	"hash/fnv"
	"sort"
)

// HashRing assigns logical keys to shards using consistent hashing over a
// 32-bit ring of virtual_nodes_per_shard × shard_count tokens (spec
// §4.12). Using many virtual nodes per shard spreads a shard's key range
// across the ring instead of one contiguous arc, which keeps the
// distribution even as shards are excluded for health reasons.
type HashRing struct {
	shardCount int
	tokens     []ringToken
}

type ringToken struct {
	hash  uint32
	shard int
}

// NewHashRing builds a ring with shardCount shards, each owning
// vnodesPerShard tokens. Both must be positive.
func NewHashRing(shardCount, vnodesPerShard int) *HashRing {
	if shardCount <= 0 {
		shardCount = 1
	}
	if vnodesPerShard <= 0 {
		vnodesPerShard = 1
	}

	tokens := make([]ringToken, 0, shardCount*vnodesPerShard)
	for shard := 0; shard < shardCount; shard++ {
		for v := 0; v < vnodesPerShard; v++ {
			tokens = append(tokens, ringToken{hash: ringHash(shard, v), shard: shard})
		}
	}
	sort.Slice(tokens, func(i, j int) bool { return tokens[i].hash < tokens[j].hash })

	return &HashRing{shardCount: shardCount, tokens: tokens}
}

// ShardCount returns the number of distinct shards on the ring.
func (r *HashRing) ShardCount() int { return r.shardCount }

// Shard returns the shard owning key: the first token at or after
// hash(key), wrapping to the first token if key's hash exceeds every
// token (standard consistent-hashing lookup).
func (r *HashRing) Shard(key string) int {
	h := keyHash(key)
	idx := sort.Search(len(r.tokens), func(i int) bool { return r.tokens[i].hash >= h })
	if idx == len(r.tokens) {
		idx = 0
	}
	return r.tokens[idx].shard
}

// ShardExcluding walks the ring clockwise from key's owning position,
// skipping any shard present in excluded, and returns the first healthy
// shard along with true. Returns (0, false) if every shard is excluded.
func (r *HashRing) ShardExcluding(key string, excluded map[int]bool) (int, bool) {
	if len(excluded) >= r.shardCount {
		return 0, false
	}

	h := keyHash(key)
	start := sort.Search(len(r.tokens), func(i int) bool { return r.tokens[i].hash >= h })

	for i := 0; i < len(r.tokens); i++ {
		tok := r.tokens[(start+i)%len(r.tokens)]
		if !excluded[tok.shard] {
			return tok.shard, true
		}
	}
	return 0, false
}

func keyHash(key string) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return h.Sum32()
}

func ringHash(shard, vnode int) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte{byte(shard), byte(shard >> 8), byte(shard >> 16), byte(shard >> 24)})
	_, _ = h.Write([]byte{byte(vnode), byte(vnode >> 8), byte(vnode >> 16), byte(vnode >> 24)})
	return h.Sum32()
}
