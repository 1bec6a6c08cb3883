package client

import (
	"bytes"
	"context"
	"sync"

	"walrus/internal/blssig"
	"walrus/internal/chain"
	"walrus/internal/codec"
	"walrus/internal/dispatch"
	"walrus/internal/merkle"
	"walrus/internal/types"
	"walrus/internal/voting"
	"walrus/internal/wire"
	"walrus/walruserrors"
)

// WriteBlob encodes data, registers it on chain, distributes its
// slivers to the committee, and certifies it once a quorum of verified
// confirmations comes back. It returns the blob's content-derived ID and
// the on-chain object ID the confirmation and any later delete/extend
// calls need.
func (c *Client) WriteBlob(ctx context.Context, data []byte, epochs uint32, deletable bool) (types.BlobID, [32]byte, error) {
	var noObject [32]byte

	state, err := c.chain.SystemState(ctx)
	if err != nil {
		return types.BlobID{}, noObject, err
	}
	nShards := state.NShards

	encoded, err := codec.EncodeBlob(nShards, data)
	if err != nil {
		return types.BlobID{}, noObject, err
	}

	cm, err := c.committees.ActiveCommittee(ctx)
	if err != nil {
		return types.BlobID{}, noObject, err
	}

	sliversByNode := routeSlivers(cm, encoded.BlobID, encoded.Slivers, nShards)

	objectID, err := c.registerOnChain(ctx, encoded.Metadata, nShards, epochs, deletable)
	if err != nil {
		return types.BlobID{}, noObject, err
	}

	blobType := types.BlobTypePermanent
	var objectIDForMessage *[32]byte
	if deletable {
		blobType = types.BlobTypeDeletable
		objectIDForMessage = &objectID
	}
	message := wire.BuildConfirmationMessage(uint32(state.Epoch), encoded.BlobID, blobType, objectIDForMessage)

	confirmations, err := c.distributeAndConfirm(ctx, cm, encoded.BlobID, encoded.Metadata, sliversByNode, message)
	if err != nil {
		return types.BlobID{}, noObject, err
	}

	if err := c.certify(ctx, encoded.BlobID, objectID, confirmations, len(cm.Nodes)); err != nil {
		return types.BlobID{}, noObject, err
	}

	return encoded.BlobID, objectID, nil
}

// routeSlivers groups a blob's sliver pairs by the committee-index of
// the node that owns the shard each pair maps to.
func routeSlivers(cm *types.Committee, blobID types.BlobID, pairs []types.SliverPair, nShards int) map[int][]types.SliverPair {
	byNode := make(map[int][]types.SliverPair)
	for _, pair := range pairs {
		shard := merkle.ShardOfPair(pair.PairIndex, blobID, nShards)
		nodeIdx := cm.ShardOwner(shard)
		byNode[nodeIdx] = append(byNode[nodeIdx], pair)
	}
	return byNode
}

// registerOnChain reserves storage space and registers the blob's
// metadata, returning the digest of the registration transaction as the
// blob object's identifier. Deriving the actual created-object ID from
// transaction effects is a consensus-layer concern this package doesn't
// own; the digest stands in as the object's address for every later
// call that needs one (certify, extend, delete, attribute writes).
func (c *Client) registerOnChain(ctx context.Context, meta types.BlobMetadata, nShards int, epochs uint32, deletable bool) ([32]byte, error) {
	var zero [32]byte

	encodedSize := codec.EncodedBlobLength(meta.UnencodedLength, nShards)

	if _, err := c.chain.SubmitTransaction(ctx, chain.CreateStorage(encodedSize, epochs)); err != nil {
		return zero, err
	}

	blobType := types.BlobTypePermanent
	if deletable {
		blobType = types.BlobTypeDeletable
	}

	objectID, err := c.chain.SubmitTransaction(ctx, chain.RegisterBlob(meta.BlobID, meta.UnencodedLength, nShards, meta.RootHash, blobType, deletable))
	if err != nil {
		return zero, err
	}

	return objectID, nil
}

// distributeAndConfirm pushes metadata and slivers to every committee
// node in parallel and collects the signed confirmations that verify
// against the expected message. The underlying dispatcher's exhaustion
// check (wOK + remaining < required, with required set to the quorum
// weight) serves as the failure abort: it fires once failed weight
// exceeds n - QuorumWeight(n), when no remaining subset of successes can
// still reach quorum, and the dispatcher cancels the rest on its own.
// That is the point where failure weight crosses validity (more than a
// third), except when n is a multiple of 3, where it fires at exactly n/3.
func (c *Client) distributeAndConfirm(ctx context.Context, cm *types.Committee, blobID types.BlobID, meta types.BlobMetadata, sliversByNode map[int][]types.SliverPair, message []byte) ([]types.Confirmation, error) {
	tasks := make([]dispatch.Task[types.Confirmation], len(cm.Nodes))
	for i, node := range cm.Nodes {
		i, node := i, node
		tasks[i] = dispatch.Task[types.Confirmation]{
			Weight:    node.Weight(),
			NodeIndex: i,
			Run: func(ctx context.Context) (types.Confirmation, error) {
				return c.pushToNode(ctx, node, i, blobID, meta, sliversByNode[i], message)
			},
		}
	}

	required := voting.QuorumWeight(cm.NShards())

	confirmations, err := dispatch.RunAllFanout(ctx, tasks, dispatch.Options[types.Confirmation]{
		NShards:                 cm.NShards(),
		Classify:                classifyTransportError,
		Accept:                  func(types.Confirmation, []types.Confirmation) dispatch.Decision { return dispatch.Keep },
		RequiredWeight:          required,
		FailOnNotFoundOrBlocked: false,
		InsufficientErr:         func() error { return &walruserrors.NotEnoughBlobConfirmations{RequiredWeight: required} },
	})
	if err != nil {
		if insufficient, ok := err.(*walruserrors.NotEnoughBlobConfirmations); ok {
			insufficient.ValidWeight = confirmedWeight(cm, confirmations)
			return nil, insufficient
		}
		return nil, err
	}

	return confirmations, nil
}

func confirmedWeight(cm *types.Committee, confirmations []types.Confirmation) int {
	total := 0
	for _, conf := range confirmations {
		total += cm.NodeByIndex(conf.NodeIndex).Weight()
	}
	return total
}

// pushToNode uploads metadata and every sliver pair a node owns, then
// requests and verifies a signed confirmation. Verification failure is
// surfaced as a task error so an unverifiable confirmation contributes
// no weight toward quorum, exactly like a transport failure would.
func (c *Client) pushToNode(ctx context.Context, node types.Node, nodeIndex int, blobID types.BlobID, meta types.BlobMetadata, pairs []types.SliverPair, message []byte) (types.Confirmation, error) {
	var zero types.Confirmation

	nc, err := c.nodeClient(node)
	if err != nil {
		return zero, err
	}

	if err := nc.PutMetadata(ctx, blobID, meta); err != nil {
		return zero, err
	}

	if err := pushSlivers(ctx, nc, blobID, pairs); err != nil {
		return zero, err
	}

	conf, err := nc.RequestConfirmation(ctx, blobID, message)
	if err != nil {
		return zero, err
	}

	if !bytes.Equal(conf.SerializedMessage, message) {
		return zero, &walruserrors.WalrusClient{Reason: "node confirmed a different message than requested"}
	}
	if !blssig.Verify(conf.Signature, conf.SerializedMessage, node.PublicKey[:]) {
		return zero, &walruserrors.WalrusClient{Reason: "confirmation signature failed verification"}
	}

	conf.NodeIndex = nodeIndex
	return *conf, nil
}

type sliverPusher interface {
	PutSliver(ctx context.Context, blobID types.BlobID, pairIndex int, primary bool, data []byte) error
}

func pushSlivers(ctx context.Context, nc sliverPusher, blobID types.BlobID, pairs []types.SliverPair) error {
	var wg sync.WaitGroup
	errs := make(chan error, len(pairs)*2)

	for _, p := range pairs {
		p := p
		wg.Add(2)
		go func() {
			defer wg.Done()
			errs <- nc.PutSliver(ctx, blobID, p.PairIndex, true, p.Primary)
		}()
		go func() {
			defer wg.Done()
			errs <- nc.PutSliver(ctx, blobID, p.PairIndex, false, p.Secondary)
		}()
	}

	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

// certify aggregates every verified confirmation's signature and submits
// the certify_blob transaction that finalizes the blob's on-chain state.
func (c *Client) certify(ctx context.Context, blobID types.BlobID, objectID [32]byte, confirmations []types.Confirmation, committeeSize int) error {
	sigs := make([][]byte, len(confirmations))
	indices := make([]int, len(confirmations))
	for i, conf := range confirmations {
		sigs[i] = conf.Signature
		indices[i] = conf.NodeIndex
	}

	aggSig, err := blssig.Aggregate(sigs)
	if err != nil {
		return err
	}
	bitmap := blssig.BuildSignerBitmap(indices, committeeSize)

	_, err = c.chain.SubmitTransaction(ctx, chain.CertifyBlob(blobID, objectID, aggSig, bitmap))
	return err
}
