package chain

import (
	"encoding/hex"
	"encoding/json"

	"walrus/internal/types"
)

// systemModule is the bare module name; HTTPClient.SubmitTransaction
// qualifies it with the caller's configured package ID before it ever
// reaches the wire.
const systemModule = "system"

// CreateStorage builds the Move call that reserves storage space for
// epochs epochs, sized to hold a blob of encodedSize bytes.
func CreateStorage(encodedSize uint64, epochs uint32) MoveCall {
	args, _ := json.Marshal(struct {
		EncodedSize uint64 `json:"encodedSize,string"`
		Epochs      uint32 `json:"epochs"`
	}{encodedSize, epochs})

	return MoveCall{Module: systemModule, Function: "reserve_space", ArgsJSON: args}
}

// RegisterBlob builds the Move call that registers a blob's metadata
// against a previously reserved storage resource, producing the Blob
// object that write confirmations get certified onto.
func RegisterBlob(blobID types.BlobID, unencodedLength uint64, nShards int, rootHash [32]byte, blobType types.BlobType, deletable bool) MoveCall {
	args, _ := json.Marshal(struct {
		BlobID          string `json:"blobId"`
		UnencodedLength uint64 `json:"unencodedLength,string"`
		NShards         int    `json:"nShards"`
		RootHash        string `json:"rootHash"`
		Deletable       bool   `json:"deletable"`
	}{
		hex.EncodeToString(blobID[:]),
		unencodedLength,
		nShards,
		hex.EncodeToString(rootHash[:]),
		deletable,
	})

	return MoveCall{Module: systemModule, Function: "register_blob", ArgsJSON: args}
}

// CertifyBlob builds the Move call that submits the aggregated BLS
// signature and signer bitmap proving a storage quorum confirmed the
// blob, transitioning it to the Certified lifecycle.
func CertifyBlob(blobID types.BlobID, objectID [32]byte, aggregatedSignature []byte, signerBitmap []byte) MoveCall {
	args, _ := json.Marshal(struct {
		BlobID       string `json:"blobId"`
		ObjectID     string `json:"objectId"`
		Signature    string `json:"signature"`
		SignerBitmap string `json:"signerBitmap"`
	}{
		hex.EncodeToString(blobID[:]),
		hex.EncodeToString(objectID[:]),
		hex.EncodeToString(aggregatedSignature),
		hex.EncodeToString(signerBitmap),
	})

	return MoveCall{Module: systemModule, Function: "certify_blob", ArgsJSON: args}
}

// DeleteBlob builds the Move call that deletes a deletable blob object,
// triggering the storage-fee refund.
func DeleteBlob(objectID [32]byte) MoveCall {
	args, _ := json.Marshal(struct {
		ObjectID string `json:"objectId"`
	}{hex.EncodeToString(objectID[:])})

	return MoveCall{Module: systemModule, Function: "delete_blob", ArgsJSON: args}
}

// ExtendBlob builds the Move call that extends a blob's storage period
// by additional epochs.
func ExtendBlob(objectID [32]byte, additionalEpochs uint32) MoveCall {
	args, _ := json.Marshal(struct {
		ObjectID         string `json:"objectId"`
		AdditionalEpochs uint32 `json:"additionalEpochs"`
	}{hex.EncodeToString(objectID[:]), additionalEpochs})

	return MoveCall{Module: systemModule, Function: "extend_blob", ArgsJSON: args}
}

// AddMetadata builds the Move call that attaches an empty metadata
// dynamic field to a blob object, a precondition for writing any
// key/value pair onto it.
func AddMetadata(objectID [32]byte) MoveCall {
	args, _ := json.Marshal(struct {
		ObjectID string `json:"objectId"`
	}{hex.EncodeToString(objectID[:])})

	return MoveCall{Module: systemModule, Function: "add_metadata", ArgsJSON: args}
}

// InsertOrUpdateMetadataPair builds the Move call that sets a key/value
// pair on a blob's dynamic attribute set, overwriting any existing value
// for that key.
func InsertOrUpdateMetadataPair(objectID [32]byte, key, value string) MoveCall {
	args, _ := json.Marshal(struct {
		ObjectID string `json:"objectId"`
		Key      string `json:"key"`
		Value    string `json:"value"`
	}{hex.EncodeToString(objectID[:]), key, value})

	return MoveCall{Module: systemModule, Function: "insert_or_update_metadata_pair", ArgsJSON: args}
}

// RemoveMetadataPair builds the Move call that deletes a single key from
// a blob's dynamic attribute set.
func RemoveMetadataPair(objectID [32]byte, key string) MoveCall {
	args, _ := json.Marshal(struct {
		ObjectID string `json:"objectId"`
		Key      string `json:"key"`
	}{hex.EncodeToString(objectID[:]), key})

	return MoveCall{Module: systemModule, Function: "remove_metadata_pair", ArgsJSON: args}
}

// ReadBlobAttributeParams are the parameters for a read-only attribute
// lookup — exposed as a value type rather than a MoveCall since reading
// a dynamic field doesn't require submitting a transaction.
type ReadBlobAttributeParams struct {
	ObjectID [32]byte
	Key      string
}
