package chain

import (
	"math"
	"math/bits"

	"walrus/internal/codec"
)

// safeMul returns a * b, capping at MaxUint64 on overflow rather than
// wrapping — a storage quote built from attacker-influenced sizes and
// epoch counts must never wrap into a tiny fee.
func safeMul(a, b uint64) uint64 {
	if a == 0 || b == 0 {
		return 0
	}
	hi, _ := bits.Mul64(a, b)
	if hi > 0 {
		return math.MaxUint64
	}
	return a * b
}

func safeAdd(a, b uint64) uint64 {
	sum := a + b
	if sum < a {
		return math.MaxUint64
	}
	return sum
}

// Cost is the storage/write/total breakdown of a blob's on-chain
// reservation price, in WAL.
type Cost struct {
	StorageCost uint64
	WriteCost   uint64
	TotalCost   uint64
}

// StorageCost computes the cost in WAL of storing a blob of
// unencodedLength bytes across nShards shards for epochs epochs, given
// the current system's per-unit storage and write prices:
// storage_cost = encoded_size * storage_price_per_unit * epochs
// write_cost   = encoded_size * write_price_per_unit
// total        = storage_cost + write_cost
func StorageCost(unencodedLength uint64, nShards int, epochs uint32, storagePricePerUnit, writePricePerUnit uint64) Cost {
	encodedSize := codec.EncodedBlobLength(unencodedLength, nShards)

	storageCost := safeMul(safeMul(encodedSize, storagePricePerUnit), uint64(epochs))
	writeCost := safeMul(encodedSize, writePricePerUnit)

	return Cost{StorageCost: storageCost, WriteCost: writeCost, TotalCost: safeAdd(storageCost, writeCost)}
}
