package client

import (
	"context"

	"walrus/internal/chain"
	"walrus/internal/codec"
)

// StorageCost returns the storage/write/total price breakdown, in WAL,
// of storing a blob of unencodedLength bytes for epochs epochs under the
// system's current per-unit prices.
func (c *Client) StorageCost(ctx context.Context, unencodedLength uint64, epochs uint32) (chain.Cost, error) {
	state, err := c.chain.SystemState(ctx)
	if err != nil {
		return chain.Cost{}, err
	}
	return chain.StorageCost(unencodedLength, state.NShards, epochs, state.StoragePricePerUnit, state.WritePricePerUnit), nil
}

// EncodedSize returns the on-wire size a blob of unencodedLength bytes
// would occupy across the system's current shard count.
func (c *Client) EncodedSize(ctx context.Context, unencodedLength uint64) (uint64, error) {
	state, err := c.chain.SystemState(ctx)
	if err != nil {
		return 0, err
	}
	return codec.EncodedBlobLength(unencodedLength, state.NShards), nil
}

// DeleteBlob deletes a deletable blob object, triggering its storage-fee
// refund.
func (c *Client) DeleteBlob(ctx context.Context, objectID [32]byte) error {
	_, err := c.chain.SubmitTransaction(ctx, chain.DeleteBlob(objectID))
	return err
}

// ExtendBlob extends a blob's storage period so it expires at
// targetEpoch instead of currentExpiryEpoch. If targetEpoch is no later
// than the current expiry, this is a no-op: no transaction is submitted,
// and submitted reports false.
func (c *Client) ExtendBlob(ctx context.Context, objectID [32]byte, currentExpiryEpoch, targetEpoch uint64) (submitted bool, err error) {
	if targetEpoch <= currentExpiryEpoch {
		return false, nil
	}

	delta := targetEpoch - currentExpiryEpoch
	if _, err := c.chain.SubmitTransaction(ctx, chain.ExtendBlob(objectID, uint32(delta))); err != nil {
		return false, err
	}

	return true, nil
}

// WriteBlobAttribute sets one key/value pair on a blob's dynamic
// attribute set, adding the attribute set first if the blob doesn't
// have one yet.
func (c *Client) WriteBlobAttribute(ctx context.Context, objectID [32]byte, key, value string, firstAttribute bool) error {
	if firstAttribute {
		if _, err := c.chain.SubmitTransaction(ctx, chain.AddMetadata(objectID)); err != nil {
			return err
		}
	}
	_, err := c.chain.SubmitTransaction(ctx, chain.InsertOrUpdateMetadataPair(objectID, key, value))
	return err
}

// RemoveBlobAttribute deletes one key from a blob's dynamic attribute
// set.
func (c *Client) RemoveBlobAttribute(ctx context.Context, objectID [32]byte, key string) error {
	_, err := c.chain.SubmitTransaction(ctx, chain.RemoveMetadataPair(objectID, key))
	return err
}

// ReadBlobAttributes returns the full key/value map attached to a blob
// object, or nil if it has none.
func (c *Client) ReadBlobAttributes(ctx context.Context, objectID [32]byte) (map[string]string, error) {
	return c.chain.ReadBlobAttributes(ctx, objectID)
}
