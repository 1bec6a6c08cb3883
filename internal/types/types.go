// Package types holds the Walrus data model: blobs, slivers, committees,
// blob status, and confirmations. It has no behavior beyond small value
// methods — the algorithms live in the packages that consume these types.
package types

// BlobID is the 32-byte content-derived identifier of a blob.
type BlobID [32]byte

// NodeID identifies a storage node, derived from its BLS public key.
type NodeID [32]byte

// BLSPublicKeySize is the size of a compressed BLS12-381 min-pk public key.
const BLSPublicKeySize = 48

// BLSPublicKey is a compressed BLS12-381 min-pk public key.
type BLSPublicKey [BLSPublicKeySize]byte

// Node describes one member of a committee.
type Node struct {
	NodeID        NodeID       // NodeID identifies the node
	PublicKey     BLSPublicKey // PublicKey is the node's BLS min-pk public key
	NetworkAddress string      // NetworkAddress is the node's HTTP base address
	ShardIndices  []int        // ShardIndices are the shards this node owns, in assignment order
}

// Weight is the voting weight of a node: the number of shards it owns.
func (n *Node) Weight() int { return len(n.ShardIndices) }

// EpochState mirrors the on-chain staking/system object's epoch_state.
type EpochState int

const (
	EpochStateNormal EpochState = iota
	EpochStateEpochChangeSync
)

// SystemState is the subset of on-chain staking/system state the client
// core needs.
type SystemState struct {
	Epoch              uint64
	NShards            int
	EpochState         EpochState
	StoragePricePerUnit uint64 // price per encoded byte-epoch, in WAL
	WritePricePerUnit   uint64 // one-time price per encoded byte, in WAL
}

// Committee is an ordered, immutable list of nodes for one epoch, plus its
// reverse shard->node index. Committee values are never mutated after
// NewCommittee returns one; a new epoch produces a new value.
type Committee struct {
	Epoch        uint64
	Nodes        []Node
	byShardIndex []int // byShardIndex[shard] = index into Nodes
}

// NewCommittee builds a Committee from an ordered node list, validating
// that the shard assignment partitions [0, nShards).
func NewCommittee(epoch uint64, nodes []Node, nShards int) (*Committee, error) {
	byShard := make([]int, nShards)
	for i := range byShard {
		byShard[i] = -1
	}

	total := 0
	for nodeIdx, n := range nodes {
		for _, shard := range n.ShardIndices {
			if shard < 0 || shard >= nShards {
				return nil, &shardRangeError{shard: shard, nShards: nShards}
			}
			if byShard[shard] != -1 {
				return nil, &shardConflictError{shard: shard}
			}
			byShard[shard] = nodeIdx
		}
		total += len(n.ShardIndices)
	}

	if total != nShards {
		return nil, &shardPartitionError{got: total, want: nShards}
	}

	return &Committee{Epoch: epoch, Nodes: nodes, byShardIndex: byShard}, nil
}

// NShards returns the number of shards partitioned by this committee.
func (c *Committee) NShards() int { return len(c.byShardIndex) }

// TotalWeight returns n_shards, the total votable weight of the committee.
func (c *Committee) TotalWeight() int { return len(c.byShardIndex) }

// ShardOwner returns the node index that owns the given shard.
func (c *Committee) ShardOwner(shard int) int { return c.byShardIndex[shard] }

// NodeByIndex returns a pointer to the node at the given committee index.
func (c *Committee) NodeByIndex(i int) *Node { return &c.Nodes[i] }

type shardRangeError struct {
	shard, nShards int
}

func (e *shardRangeError) Error() string {
	return "shard index out of range"
}

type shardConflictError struct{ shard int }

func (e *shardConflictError) Error() string {
	return "shard assigned to more than one node"
}

type shardPartitionError struct{ got, want int }

func (e *shardPartitionError) Error() string {
	return "shard assignment does not partition n_shards"
}

// SliverPair is one erasure-coded pair produced for a blob, at a given
// pair index (which maps to a shard via merkle.ShardOfPair).
type SliverPair struct {
	PairIndex int
	Primary   []byte
	Secondary []byte
}

// BlobMetadata carries the information needed to decode a blob without the
// blob's raw bytes.
type BlobMetadata struct {
	BlobID          BlobID
	UnencodedLength uint64
	RootHash        [32]byte
}

// BlobLifecycle ranks the BlobStatus variants for tie-breaking: later
// lifecycle states outrank earlier ones.
type BlobLifecycle int

const (
	LifecycleNonexistent BlobLifecycle = iota
	LifecycleInvalid
	LifecyclePermanent
	LifecycleDeletable
)

// BlobStatus is a node's reported view of a blob's on-chain lifecycle.
type BlobStatus struct {
	Lifecycle           BlobLifecycle
	InitialCertifiedEpoch *uint64 // set for Permanent/Deletable
	ObjectID            *[32]byte // set for Deletable
}

// BlobType distinguishes permanent from deletable blobs in the canonical
// certification message.
type BlobType int

const (
	BlobTypePermanent BlobType = iota
	BlobTypeDeletable
)

// Confirmation is a node-signed BLS signature over the canonical
// StorageConfirmation message.
type Confirmation struct {
	NodeIndex          int
	SerializedMessage  []byte
	Signature          []byte
}
