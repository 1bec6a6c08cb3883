// Package codec implements erasure coding and metadata derivation for
// blobs: splitting a blob into primary and secondary slivers across a
// shard count, and reconstructing the original bytes from any
// sufficiently large subset of primary slivers. Encoding is a
// non-systematic Reed-Solomon code over GF(256) built from Vandermonde
// rows, so any k of n shards suffice for reconstruction.
package codec

import (
	"errors"
	"math"
	"math/bits"
	"sort"

	"walrus/internal/merkle"
	"walrus/internal/types"
)

var (
	errNotSquare = errors.New("codec: matrix is not square")
	errSingular  = errors.New("codec: matrix is singular")
)

// ErrNotEnoughShards is returned by DecodePrimarySlivers when fewer than
// PrimarySymbols(nShards) distinct-shard slivers are supplied.
var ErrNotEnoughShards = errors.New("codec: not enough distinct primary slivers to decode")

// PrimarySymbols returns k, the minimum number of distinct primary slivers
// needed to reconstruct a blob encoded across nShards shards.
func PrimarySymbols(nShards int) int {
	return nShards/3 + 1
}

// EncodedBlobLength returns the total on-wire size (primary + secondary
// slivers, across all shards) of a blob of unencodedLength bytes encoded
// over nShards shards. Deterministic given (size, nShards); used by
// storage-cost calculations. Saturates at math.MaxUint64 when the encoded
// size does not fit in a uint64.
func EncodedBlobLength(unencodedLength uint64, nShards int) uint64 {
	k := uint64(PrimarySymbols(nShards))
	shardLen := unencodedLength / k
	if unencodedLength%k != 0 {
		shardLen++
	}
	hi, total := bits.Mul64(shardLen, uint64(nShards)*2)
	if hi != 0 {
		return math.MaxUint64
	}
	return total
}

// EncodedBlob is the result of encode_blob: the blob's identity, its
// metadata, and one sliver pair per shard.
type EncodedBlob struct {
	BlobID   types.BlobID
	Metadata types.BlobMetadata
	Slivers  []types.SliverPair // len == nShards, ordered by pair index
}

// EncodeBlob erasure-codes data across nShards shards and derives the
// resulting BlobId from the Merkle root of the encoded sliver pairs.
func EncodeBlob(nShards int, data []byte) (*EncodedBlob, error) {
	if nShards <= 0 {
		return nil, errors.New("codec: nShards must be positive")
	}

	k := PrimarySymbols(nShards)
	if k > nShards {
		return nil, errors.New("codec: nShards too small for primary symbol count")
	}

	dataShards, shardLen := splitIntoShards(data, k)

	pairs := make([]types.SliverPair, nShards)
	for i := 0; i < nShards; i++ {
		primary := encodeRow(dataShards, shardLen, k, i)
		secondary := encodeRow(dataShards, shardLen, k, i+nShards)
		pairs[i] = types.SliverPair{PairIndex: i, Primary: primary, Secondary: secondary}
	}

	rootHash := merkle.SliverPairsRoot(pairs)
	blobID := merkle.ComputeBlobID(rootHash, uint64(len(data)), nShards)

	return &EncodedBlob{
		BlobID: blobID,
		Metadata: types.BlobMetadata{
			BlobID:          blobID,
			UnencodedLength: uint64(len(data)),
			RootHash:        rootHash,
		},
		Slivers: pairs,
	}, nil
}

// ComputeMetadata re-derives the metadata (and hence BlobId) that encoding
// data over nShards shards would produce, without returning the sliver
// pairs. Used by the read path to re-hash decoded bytes and by the write
// path to size a registration transaction.
func ComputeMetadata(nShards int, data []byte) (*types.BlobMetadata, error) {
	encoded, err := EncodeBlob(nShards, data)
	if err != nil {
		return nil, err
	}
	return &encoded.Metadata, nil
}

// DecodePrimarySlivers reconstructs the original bytes from a set of
// primary slivers keyed by pair index (the encoding row EncodeBlob
// produced each sliver from). At least PrimarySymbols(nShards) distinct
// pair indices must be present.
func DecodePrimarySlivers(nShards int, unencodedLength uint64, primarySlivers map[int][]byte) ([]byte, error) {
	k := PrimarySymbols(nShards)
	if len(primarySlivers) < k {
		return nil, ErrNotEnoughShards
	}

	allIdxs := make([]int, 0, len(primarySlivers))
	for idx := range primarySlivers {
		allIdxs = append(allIdxs, idx)
	}
	sort.Ints(allIdxs)
	shardIdxs := allIdxs[:k]

	enc := newGFMatrix(k, k)
	for r, shard := range shardIdxs {
		row := vandermondeRow(shard, k)
		for c := 0; c < k; c++ {
			enc.set(r, c, row[c])
		}
	}

	inv, err := enc.invert()
	if err != nil {
		return nil, err
	}

	var shardLen int
	for _, idx := range shardIdxs {
		if l := len(primarySlivers[idx]); l > shardLen {
			shardLen = l
		}
	}

	dataShards := make([][]byte, k)
	for j := range dataShards {
		dataShards[j] = make([]byte, shardLen)
	}

	input := make([]byte, k)
	for p := 0; p < shardLen; p++ {
		for r, idx := range shardIdxs {
			b := primarySlivers[idx]
			if p < len(b) {
				input[r] = b[p]
			} else {
				input[r] = 0
			}
		}
		for j := 0; j < k; j++ {
			var sum byte
			for r := 0; r < k; r++ {
				sum = gfAdd(sum, gfMul(inv.at(j, r), input[r]))
			}
			dataShards[j][p] = sum
		}
	}

	out := make([]byte, 0, int(unencodedLength))
	for _, ds := range dataShards {
		out = append(out, ds...)
	}
	if uint64(len(out)) < unencodedLength {
		return nil, errors.New("codec: decoded data shorter than declared length")
	}

	return out[:unencodedLength], nil
}

// splitIntoShards splits data into k equal-length shards, zero-padded.
func splitIntoShards(data []byte, k int) ([][]byte, int) {
	shardLen := (len(data) + k - 1) / k
	if shardLen == 0 {
		shardLen = 1
	}

	shards := make([][]byte, k)
	for i := 0; i < k; i++ {
		shards[i] = make([]byte, shardLen)
		start := i * shardLen
		end := start + shardLen
		if start < len(data) {
			if end > len(data) {
				end = len(data)
			}
			copy(shards[i], data[start:end])
		}
	}

	return shards, shardLen
}

// encodeRow computes the GF(256) linear combination for output row
// rowIndex given the k input data shards.
func encodeRow(dataShards [][]byte, shardLen, k, rowIndex int) []byte {
	row := vandermondeRow(rowIndex, k)
	out := make([]byte, shardLen)

	for p := 0; p < shardLen; p++ {
		var sum byte
		for j := 0; j < k; j++ {
			sum = gfAdd(sum, gfMul(row[j], dataShards[j][p]))
		}
		out[p] = sum
	}

	return out
}
