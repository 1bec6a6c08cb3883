// Package merkle computes content-derived identifiers and the shard
// permutation that routes sliver pairs to shards, hashing throughout
// with BLAKE3.
package merkle

import (
	"encoding/binary"

	"github.com/zeebo/blake3"

	"walrus/internal/types"
)

// hashPair returns BLAKE3(primary || secondary) for one sliver pair.
func hashPair(p types.SliverPair) [32]byte {
	h := blake3.New()
	h.Write(p.Primary)
	h.Write(p.Secondary)

	var out [32]byte
	h.Sum(out[:0])

	return out
}

// SliverPairsRoot computes the Merkle root over the hashes of a blob's
// sliver pairs, in pair-index order: a balanced binary tree with
// odd-node duplication.
func SliverPairsRoot(pairs []types.SliverPair) [32]byte {
	if len(pairs) == 0 {
		return blake3.Sum256(nil)
	}

	level := make([][32]byte, len(pairs))
	for i, p := range pairs {
		level[i] = hashPair(p)
	}

	for len(level) > 1 {
		next := make([][32]byte, 0, (len(level)+1)/2)
		for i := 0; i < len(level); i += 2 {
			if i+1 < len(level) {
				next = append(next, hashNode(level[i], level[i+1]))
			} else {
				next = append(next, hashNode(level[i], level[i]))
			}
		}
		level = next
	}

	return level[0]
}

func hashNode(a, b [32]byte) [32]byte {
	h := blake3.New()
	h.Write(a[:])
	h.Write(b[:])

	var out [32]byte
	h.Sum(out[:0])

	return out
}

// ComputeBlobID derives the BlobId from the root hash of a blob's encoded
// slivers, its unencoded length, and the shard count it was encoded over.
// Binding nShards into the hash means a given byte slice maps to a
// different BlobId under a different shard count, as required by (I1)'s
// "for a given (BlobId, n_shards)" qualifier.
func ComputeBlobID(rootHash [32]byte, unencodedLength uint64, nShards int) types.BlobID {
	h := blake3.New()
	h.Write(rootHash[:])

	var lenBuf [8]byte
	binary.LittleEndian.PutUint64(lenBuf[:], unencodedLength)
	h.Write(lenBuf[:])

	var nBuf [4]byte
	binary.LittleEndian.PutUint32(nBuf[:], uint32(nShards))
	h.Write(nBuf[:])

	var out types.BlobID
	h.Sum(out[:0])

	return out
}

// permutation returns a deterministic permutation of [0, n) seeded from
// blobID, via a Fisher-Yates shuffle driven by a BLAKE3 keyed stream.
func permutation(blobID types.BlobID, n int) []int {
	perm := make([]int, n)
	for i := range perm {
		perm[i] = i
	}

	if n <= 1 {
		return perm
	}

	counter := uint64(0)
	nextRand := func(bound uint32) uint32 {
		var ctrBuf [8]byte
		binary.LittleEndian.PutUint64(ctrBuf[:], counter)
		counter++

		h := blake3.New()
		h.Write(blobID[:])
		h.Write([]byte("walrus-shard-permutation"))
		h.Write(ctrBuf[:])

		var out [32]byte
		h.Sum(out[:0])

		return uint32(binary.LittleEndian.Uint64(out[:8]) % uint64(bound))
	}

	for i := n - 1; i > 0; i-- {
		j := nextRand(uint32(i + 1))
		perm[i], perm[j] = perm[j], perm[i]
	}

	return perm
}

// ShardOfPair implements toShardIndex: the shard that pair-index p belongs
// to, for a blob with the given BlobId and nShards.
func ShardOfPair(pairIndex int, blobID types.BlobID, nShards int) int {
	return permutation(blobID, nShards)[pairIndex]
}

// PairIndexOfShard implements toPairIndex, the inverse of ShardOfPair.
func PairIndexOfShard(shard int, blobID types.BlobID, nShards int) int {
	perm := permutation(blobID, nShards)
	for pairIndex, s := range perm {
		if s == shard {
			return pairIndex
		}
	}
	return -1
}
