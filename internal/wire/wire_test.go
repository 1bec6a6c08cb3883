package wire

import (
	"bytes"
	"testing"

	"walrus/internal/types"
)

func TestBuildParseConfirmationMessagePermanent(t *testing.T) {
	var blobID types.BlobID
	blobID[0] = 0xAB

	msg := BuildConfirmationMessage(7, blobID, types.BlobTypePermanent, nil)

	parsed, err := ParseConfirmationMessage(msg)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if parsed.Epoch != 7 {
		t.Errorf("epoch = %d, want 7", parsed.Epoch)
	}
	if parsed.BlobID != blobID {
		t.Error("blobId mismatch")
	}
	if parsed.BlobType != types.BlobTypePermanent {
		t.Errorf("blobType = %v, want Permanent", parsed.BlobType)
	}
	if parsed.ObjectID != nil {
		t.Error("permanent blob should have no objectId")
	}
}

func TestBuildParseConfirmationMessageDeletable(t *testing.T) {
	var blobID types.BlobID
	blobID[1] = 0xCD
	var objectID [32]byte
	objectID[2] = 0xEF

	msg := BuildConfirmationMessage(3, blobID, types.BlobTypeDeletable, &objectID)

	parsed, err := ParseConfirmationMessage(msg)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if parsed.BlobType != types.BlobTypeDeletable {
		t.Errorf("blobType = %v, want Deletable", parsed.BlobType)
	}
	if parsed.ObjectID == nil || *parsed.ObjectID != objectID {
		t.Error("objectId mismatch")
	}
}

func TestParseConfirmationMessageRejectsShort(t *testing.T) {
	if _, err := ParseConfirmationMessage([]byte{1, 2, 3}); err == nil {
		t.Error("expected error for a too-short buffer")
	}
}

func TestParseConfirmationMessageRejectsWrongIntent(t *testing.T) {
	var blobID types.BlobID
	msg := BuildConfirmationMessage(0, blobID, types.BlobTypePermanent, nil)
	msg[0] = 0xFF

	if _, err := ParseConfirmationMessage(msg); err == nil {
		t.Error("expected error for a non-BLOB_CERT_MSG intent byte")
	}
}

func TestMetadataEnvelopeRoundTrip(t *testing.T) {
	meta := types.BlobMetadata{
		UnencodedLength: 123456,
	}
	meta.BlobID[0] = 1
	meta.RootHash[0] = 2

	buf := EncodeMetadata(meta)

	got, err := DecodeMetadata(buf)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got != meta {
		t.Errorf("got %+v, want %+v", got, meta)
	}
}

func TestSliverEnvelopeRoundTrip(t *testing.T) {
	data := []byte("a sliver's worth of encoded bytes")
	buf := EncodeSliver(42, true, data)

	pairIndex, isPrimary, got, err := DecodeSliver(buf)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if pairIndex != 42 {
		t.Errorf("pairIndex = %d, want 42", pairIndex)
	}
	if !isPrimary {
		t.Error("isPrimary should be true")
	}
	if !bytes.Equal(got, data) {
		t.Errorf("data mismatch: got %q, want %q", got, data)
	}
}

func TestConfirmationEnvelopeRoundTrip(t *testing.T) {
	message := []byte("serialized confirmation message")
	signature := []byte("a signature")

	buf := EncodeConfirmation(message, signature)

	gotMsg, gotSig, err := DecodeConfirmation(buf)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !bytes.Equal(gotMsg, message) {
		t.Error("message mismatch")
	}
	if !bytes.Equal(gotSig, signature) {
		t.Error("signature mismatch")
	}
}
