package wire

import (
	"encoding/binary"
	"errors"

	"walrus/internal/types"
)

// IntentBlobCert is the BLOB_CERT_MSG intent byte for the canonical
// StorageConfirmation message.
const IntentBlobCert byte = 1

const (
	blobTypeTagPermanent byte = 0
	blobTypeTagDeletable byte = 1
)

var (
	errShortBuffer = errors.New("wire: buffer too short")
	errMalformed   = errors.New("wire: malformed envelope")
)

// BuildConfirmationMessage serializes the canonical StorageConfirmation
// message the way the on-chain verifier reproduces it:
// { intent: u8 = BLOB_CERT_MSG, epoch: u32, blobId: [u8;32],
//   blobType: Permanent | Deletable{objectId} }. The layout is fixed-width
// and byte-exact, deliberately not FlatBuffers — a verifier on another
// implementation must be able to reproduce these exact bytes.
func BuildConfirmationMessage(epoch uint32, blobID types.BlobID, blobType types.BlobType, objectID *[32]byte) []byte {
	size := 1 + 4 + 32 + 1
	if blobType == types.BlobTypeDeletable {
		size += 32
	}

	buf := make([]byte, size)
	buf[0] = IntentBlobCert
	binary.LittleEndian.PutUint32(buf[1:5], epoch)
	copy(buf[5:37], blobID[:])

	switch blobType {
	case types.BlobTypePermanent:
		buf[37] = blobTypeTagPermanent
	case types.BlobTypeDeletable:
		buf[37] = blobTypeTagDeletable
		if objectID != nil {
			copy(buf[38:70], objectID[:])
		}
	}

	return buf
}

// ParsedConfirmationMessage is the decoded form of BuildConfirmationMessage's
// output.
type ParsedConfirmationMessage struct {
	Epoch    uint32
	BlobID   types.BlobID
	BlobType types.BlobType
	ObjectID *[32]byte
}

// ParseConfirmationMessage reverses BuildConfirmationMessage, returning an
// error if the buffer is shorter than the canonical layout or the intent
// byte doesn't match; trailing bytes past the layout are not checked.
func ParseConfirmationMessage(data []byte) (*ParsedConfirmationMessage, error) {
	if len(data) < 38 {
		return nil, errShortBuffer
	}
	if data[0] != IntentBlobCert {
		return nil, errMalformed
	}

	msg := &ParsedConfirmationMessage{
		Epoch: binary.LittleEndian.Uint32(data[1:5]),
	}
	copy(msg.BlobID[:], data[5:37])

	switch data[37] {
	case blobTypeTagPermanent:
		msg.BlobType = types.BlobTypePermanent
	case blobTypeTagDeletable:
		if len(data) < 70 {
			return nil, errShortBuffer
		}
		msg.BlobType = types.BlobTypeDeletable
		var objID [32]byte
		copy(objID[:], data[38:70])
		msg.ObjectID = &objID
	default:
		return nil, errMalformed
	}

	return msg, nil
}
