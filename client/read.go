package client

import (
	"context"
	"sort"

	"walrus/internal/codec"
	"walrus/internal/dispatch"
	"walrus/internal/merkle"
	"walrus/internal/types"
	"walrus/walruserrors"
)

// ReadBlob reconstructs a blob's bytes from the storage committee. It
// wraps the single-attempt read with a reset-and-retry-once policy: any
// Retryable failure (the client's committee view turned out to be a
// stale epoch behind) clears the committee cache and tries exactly one
// more time before giving up.
func (c *Client) ReadBlob(ctx context.Context, blobID types.BlobID) ([]byte, error) {
	data, err := c.readBlobOnce(ctx, blobID)
	if err == nil {
		return data, nil
	}
	if !walruserrors.IsRetryable(err) {
		return nil, err
	}

	c.reset()

	return c.readBlobOnce(ctx, blobID)
}

func (c *Client) readBlobOnce(ctx context.Context, blobID types.BlobID) ([]byte, error) {
	state, err := c.chain.SystemState(ctx)
	if err != nil {
		return nil, err
	}
	nShards := state.NShards

	cm, err := c.readCommitteeFor(ctx, state, blobID)
	if err != nil {
		return nil, err
	}
	if err := c.committees.CheckEpoch(state.Epoch); err != nil {
		return nil, err
	}

	meta, err := c.getBlobMetadata(ctx, cm, blobID)
	if err != nil {
		return nil, err
	}

	primarySlivers, err := c.getSlivers(ctx, cm, blobID, nShards)
	if err != nil {
		return nil, err
	}

	data, err := codec.DecodePrimarySlivers(nShards, meta.UnencodedLength, primarySlivers)
	if err != nil {
		if err == codec.ErrNotEnoughShards {
			return nil, &walruserrors.NotEnoughSliversReceived{Received: len(primarySlivers), Required: codec.PrimarySymbols(nShards)}
		}
		return nil, err
	}

	rehashed, err := codec.ComputeMetadata(nShards, data)
	if err != nil {
		return nil, err
	}
	if rehashed.BlobID != blobID {
		return nil, &walruserrors.InconsistentBlob{Requested: blobID, Reconstructed: rehashed.BlobID}
	}

	return data, nil
}

// readCommitteeFor picks the committee that should serve a read: the
// active one, unless the system is mid epoch-change-sync and the blob
// predates it, in which case a one-time status lookup is paid for to
// learn which epoch the blob was actually certified at.
func (c *Client) readCommitteeFor(ctx context.Context, state *types.SystemState, blobID types.BlobID) (*types.Committee, error) {
	if state.EpochState != types.EpochStateEpochChangeSync {
		return c.committees.ActiveCommittee(ctx)
	}

	status, err := c.GetBlobStatus(ctx, blobID)
	if err != nil {
		return c.committees.ActiveCommittee(ctx)
	}

	return c.committees.ReadCommittee(ctx, state, status.InitialCertifiedEpoch)
}

// getBlobMetadata fetches a blob's metadata from whichever node answers
// first, trying nodes in order of decreasing shard weight before falling
// back to a wider fan-out.
func (c *Client) getBlobMetadata(ctx context.Context, cm *types.Committee, blobID types.BlobID) (types.BlobMetadata, error) {
	var zero types.BlobMetadata

	order := make([]int, len(cm.Nodes))
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(a, b int) bool { return cm.Nodes[order[a]].Weight() > cm.Nodes[order[b]].Weight() })

	tasks := make([]dispatch.Task[types.BlobMetadata], len(order))
	for pos, nodeIdx := range order {
		nodeIdx := nodeIdx
		node := cm.Nodes[nodeIdx]
		tasks[pos] = dispatch.Task[types.BlobMetadata]{
			Weight:    node.Weight(),
			NodeIndex: nodeIdx,
			Run: func(ctx context.Context) (types.BlobMetadata, error) {
				if c.cache != nil {
					if cached, ok, err := c.cache.GetMetadata(blobID); err == nil && ok {
						return cached, nil
					}
				}

				nc, err := c.nodeClient(node)
				if err != nil {
					return zero, err
				}
				meta, err := nc.GetMetadata(ctx, blobID)
				if err != nil {
					return zero, err
				}
				if meta.BlobID != blobID {
					return zero, &walruserrors.WalrusClient{Reason: "node returned metadata for a different blob id"}
				}
				if c.cache != nil {
					_ = c.cache.PutMetadata(blobID, meta.RootHash, meta.UnencodedLength)
				}
				return *meta, nil
			},
		}
	}

	results, err := dispatch.RunFirstSuccessOrdered(ctx, tasks, c.concurrency, dispatch.Options[types.BlobMetadata]{
		NShards:                 cm.NShards(),
		Classify:                classifyTransportError,
		Accept:                  func(types.BlobMetadata, []types.BlobMetadata) dispatch.Decision { return dispatch.Done },
		RequiredWeight:          1,
		FailOnNotFoundOrBlocked: true,
		InsufficientErr:         func() error { return &walruserrors.NoBlobMetadataReceived{BlobID: blobID} },
	})
	if err != nil {
		return zero, err
	}
	if len(results) == 0 {
		return zero, &walruserrors.NoBlobMetadataReceived{BlobID: blobID}
	}

	return results[0], nil
}

type sliverResult struct {
	shard int
	data  []byte
}

// getSlivers collects primary slivers column-wise (each round tries one
// shard from every row of k consecutive shards) until
// PrimarySymbols(nShards) distinct shards have answered, or the
// not-found/blocked quorum check gives up first. The result is keyed by
// pair index, as DecodePrimarySlivers expects.
func (c *Client) getSlivers(ctx context.Context, cm *types.Committee, blobID types.BlobID, nShards int) (map[int][]byte, error) {
	k := codec.PrimarySymbols(nShards)

	tasks := make([]dispatch.Task[sliverResult], nShards)
	for shard := 0; shard < nShards; shard++ {
		shard := shard
		pairIndex := merkle.PairIndexOfShard(shard, blobID, nShards)
		nodeIdx := cm.ShardOwner(shard)
		node := *cm.NodeByIndex(nodeIdx)

		tasks[shard] = dispatch.Task[sliverResult]{
			Weight:    1,
			NodeIndex: nodeIdx,
			Run: func(ctx context.Context) (sliverResult, error) {
				if c.cache != nil {
					if data, ok, err := c.cache.GetSliver(blobID, pairIndex, true); err == nil && ok {
						return sliverResult{shard: shard, data: data}, nil
					}
				}

				nc, err := c.nodeClient(node)
				if err != nil {
					return sliverResult{}, err
				}
				data, err := nc.GetSliver(ctx, blobID, pairIndex, true)
				if err != nil {
					return sliverResult{}, err
				}
				if c.cache != nil {
					_ = c.cache.PutSliver(blobID, pairIndex, true, data)
				}
				return sliverResult{shard: shard, data: data}, nil
			},
		}
	}

	results, err := dispatch.RunColumnWise(ctx, tasks, k, dispatch.Options[sliverResult]{
		NShards:                 nShards,
		Classify:                classifyTransportError,
		Accept:                  func(r sliverResult, acceptedSoFar []sliverResult) dispatch.Decision { return decideSliverDone(acceptedSoFar, k) },
		RequiredWeight:          k,
		FailOnNotFoundOrBlocked: true,
		InsufficientErr:         func() error { return &walruserrors.NotEnoughSliversReceived{Required: k} },
	})
	if err != nil {
		return nil, err
	}

	out := make(map[int][]byte, len(results))
	for _, r := range results {
		out[merkle.PairIndexOfShard(r.shard, blobID, nShards)] = r.data
	}

	return out, nil
}

func decideSliverDone(acceptedSoFar []sliverResult, k int) dispatch.Decision {
	if len(acceptedSoFar)+1 >= k {
		return dispatch.Done
	}
	return dispatch.Keep
}
