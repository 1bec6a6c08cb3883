// Package blssig wraps BLS12-381 min-pk signing, verification, and
// aggregation, plus the little-endian signer bitmap used to encode which
// committee members contributed to an aggregated signature over a
// storage confirmation.
package blssig

import (
	"crypto/rand"
	"fmt"

	blst "github.com/supranational/blst/bindings/go"
)

const (
	// PublicKeySize is the size of a compressed BLS12-381 min-pk public key.
	PublicKeySize = 48

	// SignatureSize is the size of a compressed BLS12-381 G2 signature.
	SignatureSize = 96
)

// dst is the domain separation tag for BLOB_CERT_MSG signatures.
var dst = []byte("BLS_SIG_BLS12381G2_XMD:SHA-256_SSWU_RO_NUL_")

// KeyPair holds a BLS private/public key pair.
type KeyPair struct {
	secret *blst.SecretKey
	public *blst.P1Affine
}

// GenerateKey creates a new BLS key pair from a random seed.
func GenerateKey() (*KeyPair, error) {
	var ikm [32]byte
	if _, err := rand.Read(ikm[:]); err != nil {
		return nil, fmt.Errorf("generate random seed:\n%w", err)
	}
	return GenerateKeyFromSeed(ikm[:])
}

// GenerateKeyFromSeed creates a BLS key pair from a deterministic seed of
// at least 32 bytes.
func GenerateKeyFromSeed(seed []byte) (*KeyPair, error) {
	if len(seed) < 32 {
		return nil, fmt.Errorf("blssig: seed must be at least 32 bytes")
	}

	secret := blst.KeyGen(seed)
	if secret == nil {
		return nil, fmt.Errorf("blssig: failed to generate key")
	}

	return &KeyPair{secret: secret, public: new(blst.P1Affine).From(secret)}, nil
}

// Sign signs message with the node's secret key.
func (k *KeyPair) Sign(message []byte) []byte {
	sig := new(blst.P2Affine).Sign(k.secret, message, dst)
	return sig.Compress()
}

// PublicKeyBytes returns the compressed public key.
func (k *KeyPair) PublicKeyBytes() []byte {
	return k.public.Compress()
}

// Verify checks a single signature against a message and public key.
func Verify(signature, message, publicKey []byte) bool {
	if len(signature) != SignatureSize || len(publicKey) != PublicKeySize {
		return false
	}

	sig := new(blst.P2Affine).Uncompress(signature)
	if sig == nil {
		return false
	}

	pk := new(blst.P1Affine).Uncompress(publicKey)
	if pk == nil {
		return false
	}

	return sig.Verify(true, pk, true, message, dst)
}

// Aggregate combines multiple BLS signatures, all over the same message,
// into one.
func Aggregate(signatures [][]byte) ([]byte, error) {
	if len(signatures) == 0 {
		return nil, fmt.Errorf("blssig: no signatures to aggregate")
	}

	sigs := make([]*blst.P2Affine, len(signatures))
	for i, b := range signatures {
		if len(b) != SignatureSize {
			return nil, fmt.Errorf("blssig: invalid signature size at index %d", i)
		}
		sig := new(blst.P2Affine).Uncompress(b)
		if sig == nil {
			return nil, fmt.Errorf("blssig: invalid signature at index %d", i)
		}
		sigs[i] = sig
	}

	agg := new(blst.P2Aggregate)
	if !agg.Aggregate(sigs, true) {
		return nil, fmt.Errorf("blssig: aggregation failed")
	}

	return agg.ToAffine().Compress(), nil
}

// VerifyAggregated verifies an aggregated signature against a message and
// the public keys of every signer.
func VerifyAggregated(signature, message []byte, publicKeys [][]byte) bool {
	if len(signature) != SignatureSize || len(publicKeys) == 0 {
		return false
	}

	sig := new(blst.P2Affine).Uncompress(signature)
	if sig == nil {
		return false
	}

	pks := make([]*blst.P1Affine, len(publicKeys))
	for i, b := range publicKeys {
		if len(b) != PublicKeySize {
			return false
		}
		pk := new(blst.P1Affine).Uncompress(b)
		if pk == nil {
			return false
		}
		pks[i] = pk
	}

	aggPk := new(blst.P1Aggregate)
	if !aggPk.Aggregate(pks, true) {
		return false
	}

	return sig.Verify(true, aggPk.ToAffine(), true, message, dst)
}

// BuildSignerBitmap encodes signer indices into a bitmap of
// ceil(total/8) bytes, bit i set iff node index i signed, little-endian
// bit order within each byte — exactly the encoding the on-chain verifier
// expects.
func BuildSignerBitmap(indices []int, total int) []byte {
	bitmap := make([]byte, (total+7)/8)
	for _, idx := range indices {
		if idx >= 0 && idx < total {
			bitmap[idx/8] |= 1 << (idx % 8)
		}
	}
	return bitmap
}

// ParseSignerBitmap extracts the set bit indices from a signer bitmap.
func ParseSignerBitmap(bitmap []byte) []int {
	var indices []int
	for byteIdx, b := range bitmap {
		for bit := 0; bit < 8; bit++ {
			if b&(1<<bit) != 0 {
				indices = append(indices, byteIdx*8+bit)
			}
		}
	}
	return indices
}
