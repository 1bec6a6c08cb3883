package wire

import (
	flatbuffers "github.com/google/flatbuffers/go"

	"walrus/internal/types"
)

// MetadataEnvelope is the FlatBuffers-encoded form of BlobMetadata, used as
// the response body for GET /metadata/{blobId}.
type MetadataEnvelope struct {
	tab flatbuffers.Table
}

// GetRootAsMetadataEnvelope initializes a MetadataEnvelope from its
// serialized bytes.
func GetRootAsMetadataEnvelope(buf []byte) *MetadataEnvelope {
	n := flatbuffers.GetUOffsetT(buf)
	e := &MetadataEnvelope{}
	e.tab.Bytes = buf
	e.tab.Pos = n
	return e
}

func (e *MetadataEnvelope) BlobID() []byte {
	o := flatbuffers.UOffsetT(e.tab.Offset(4))
	if o != 0 {
		return e.tab.ByteVector(o + e.tab.Pos)
	}
	return nil
}

func (e *MetadataEnvelope) UnencodedLength() uint64 {
	o := flatbuffers.UOffsetT(e.tab.Offset(6))
	if o != 0 {
		return e.tab.GetUint64(o + e.tab.Pos)
	}
	return 0
}

func (e *MetadataEnvelope) RootHash() []byte {
	o := flatbuffers.UOffsetT(e.tab.Offset(8))
	if o != 0 {
		return e.tab.ByteVector(o + e.tab.Pos)
	}
	return nil
}

func metadataEnvelopeStart(b *flatbuffers.Builder) {
	b.StartObject(3)
}

func metadataEnvelopeAddBlobID(b *flatbuffers.Builder, blobID flatbuffers.UOffsetT) {
	b.PrependUOffsetTSlot(0, blobID, 0)
}

func metadataEnvelopeAddUnencodedLength(b *flatbuffers.Builder, v uint64) {
	b.PrependUint64Slot(1, v, 0)
}

func metadataEnvelopeAddRootHash(b *flatbuffers.Builder, rootHash flatbuffers.UOffsetT) {
	b.PrependUOffsetTSlot(2, rootHash, 0)
}

func metadataEnvelopeEnd(b *flatbuffers.Builder) flatbuffers.UOffsetT {
	return b.EndObject()
}

// EncodeMetadata builds the FlatBuffers envelope for a BlobMetadata value.
func EncodeMetadata(meta types.BlobMetadata) []byte {
	b := flatbuffers.NewBuilder(128)

	rootHashOff := b.CreateByteVector(meta.RootHash[:])
	blobIDOff := b.CreateByteVector(meta.BlobID[:])

	metadataEnvelopeStart(b)
	metadataEnvelopeAddBlobID(b, blobIDOff)
	metadataEnvelopeAddUnencodedLength(b, meta.UnencodedLength)
	metadataEnvelopeAddRootHash(b, rootHashOff)
	env := metadataEnvelopeEnd(b)

	b.Finish(env)
	return b.FinishedBytes()
}

// DecodeMetadata parses a FlatBuffers-encoded BlobMetadata envelope.
func DecodeMetadata(buf []byte) (types.BlobMetadata, error) {
	if len(buf) < 4 {
		return types.BlobMetadata{}, errShortBuffer
	}
	e := GetRootAsMetadataEnvelope(buf)

	var meta types.BlobMetadata
	b := e.BlobID()
	if len(b) != 32 {
		return types.BlobMetadata{}, errMalformed
	}
	copy(meta.BlobID[:], b)

	rh := e.RootHash()
	if len(rh) != 32 {
		return types.BlobMetadata{}, errMalformed
	}
	copy(meta.RootHash[:], rh)

	meta.UnencodedLength = e.UnencodedLength()

	return meta, nil
}

// ConfirmationEnvelope is the FlatBuffers-encoded form of a storage node's
// signed confirmation response: the canonical message it signed plus the
// BLS signature over it.
type ConfirmationEnvelope struct {
	tab flatbuffers.Table
}

func GetRootAsConfirmationEnvelope(buf []byte) *ConfirmationEnvelope {
	n := flatbuffers.GetUOffsetT(buf)
	e := &ConfirmationEnvelope{}
	e.tab.Bytes = buf
	e.tab.Pos = n
	return e
}

func (e *ConfirmationEnvelope) SerializedMessage() []byte {
	o := flatbuffers.UOffsetT(e.tab.Offset(4))
	if o != 0 {
		return e.tab.ByteVector(o + e.tab.Pos)
	}
	return nil
}

func (e *ConfirmationEnvelope) Signature() []byte {
	o := flatbuffers.UOffsetT(e.tab.Offset(6))
	if o != 0 {
		return e.tab.ByteVector(o + e.tab.Pos)
	}
	return nil
}

func confirmationEnvelopeStart(b *flatbuffers.Builder) {
	b.StartObject(2)
}

func confirmationEnvelopeAddSerializedMessage(b *flatbuffers.Builder, msg flatbuffers.UOffsetT) {
	b.PrependUOffsetTSlot(0, msg, 0)
}

func confirmationEnvelopeAddSignature(b *flatbuffers.Builder, sig flatbuffers.UOffsetT) {
	b.PrependUOffsetTSlot(1, sig, 0)
}

func confirmationEnvelopeEnd(b *flatbuffers.Builder) flatbuffers.UOffsetT {
	return b.EndObject()
}

// EncodeConfirmation builds the FlatBuffers envelope for a storage node's
// signed confirmation response.
func EncodeConfirmation(serializedMessage, signature []byte) []byte {
	b := flatbuffers.NewBuilder(256)

	sigOff := b.CreateByteVector(signature)
	msgOff := b.CreateByteVector(serializedMessage)

	confirmationEnvelopeStart(b)
	confirmationEnvelopeAddSerializedMessage(b, msgOff)
	confirmationEnvelopeAddSignature(b, sigOff)
	env := confirmationEnvelopeEnd(b)

	b.Finish(env)
	return b.FinishedBytes()
}

// DecodeConfirmation parses a FlatBuffers-encoded confirmation envelope.
func DecodeConfirmation(buf []byte) (serializedMessage, signature []byte, err error) {
	if len(buf) < 4 {
		return nil, nil, errShortBuffer
	}
	e := GetRootAsConfirmationEnvelope(buf)

	msg := e.SerializedMessage()
	sig := e.Signature()
	if msg == nil || sig == nil {
		return nil, nil, errMalformed
	}

	return msg, sig, nil
}

// SliverEnvelope is the FlatBuffers-encoded form of one sliver transferred
// over the wire: which half of the pair it is, and its raw symbol bytes.
type SliverEnvelope struct {
	tab flatbuffers.Table
}

func GetRootAsSliverEnvelope(buf []byte) *SliverEnvelope {
	n := flatbuffers.GetUOffsetT(buf)
	e := &SliverEnvelope{}
	e.tab.Bytes = buf
	e.tab.Pos = n
	return e
}

func (e *SliverEnvelope) PairIndex() uint32 {
	o := flatbuffers.UOffsetT(e.tab.Offset(4))
	if o != 0 {
		return e.tab.GetUint32(o + e.tab.Pos)
	}
	return 0
}

func (e *SliverEnvelope) IsPrimary() bool {
	o := flatbuffers.UOffsetT(e.tab.Offset(6))
	if o != 0 {
		return e.tab.GetBool(o + e.tab.Pos)
	}
	return false
}

func (e *SliverEnvelope) Data() []byte {
	o := flatbuffers.UOffsetT(e.tab.Offset(8))
	if o != 0 {
		return e.tab.ByteVector(o + e.tab.Pos)
	}
	return nil
}

func sliverEnvelopeStart(b *flatbuffers.Builder) {
	b.StartObject(3)
}

func sliverEnvelopeAddPairIndex(b *flatbuffers.Builder, v uint32) {
	b.PrependUint32Slot(0, v, 0)
}

func sliverEnvelopeAddIsPrimary(b *flatbuffers.Builder, v bool) {
	b.PrependBoolSlot(1, v, false)
}

func sliverEnvelopeAddData(b *flatbuffers.Builder, data flatbuffers.UOffsetT) {
	b.PrependUOffsetTSlot(2, data, 0)
}

func sliverEnvelopeEnd(b *flatbuffers.Builder) flatbuffers.UOffsetT {
	return b.EndObject()
}

// EncodeSliver builds the FlatBuffers envelope for one primary or
// secondary sliver of a pair.
func EncodeSliver(pairIndex uint32, isPrimary bool, data []byte) []byte {
	b := flatbuffers.NewBuilder(256 + len(data))

	dataOff := b.CreateByteVector(data)

	sliverEnvelopeStart(b)
	sliverEnvelopeAddPairIndex(b, pairIndex)
	sliverEnvelopeAddIsPrimary(b, isPrimary)
	sliverEnvelopeAddData(b, dataOff)
	env := sliverEnvelopeEnd(b)

	b.Finish(env)
	return b.FinishedBytes()
}

// DecodeSliver parses a FlatBuffers-encoded sliver envelope.
func DecodeSliver(buf []byte) (pairIndex uint32, isPrimary bool, data []byte, err error) {
	if len(buf) < 4 {
		return 0, false, nil, errShortBuffer
	}
	e := GetRootAsSliverEnvelope(buf)
	d := e.Data()
	if d == nil {
		return 0, false, nil, errMalformed
	}
	return e.PairIndex(), e.IsPrimary(), d, nil
}
