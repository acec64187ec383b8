// Package cryptoid provides the hash and signature primitives the ledger
// core treats as external: a BLAKE3-class 32-byte digest and an
// Ed25519-class signature over that digest.
package cryptoid

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/binary"
	"fmt"

	"github.com/hdevalence/ed25519consensus"
	"github.com/mr-tron/base58"
	"lukechampine.com/blake3"
)

// DigestSize is the fixed width of a Digest in bytes.
const DigestSize = 32

// SignatureSize is the fixed width of a Signature in bytes.
const SignatureSize = 64

// Digest is an opaque 32-byte identity: a transaction id, a block hash, or
// a wallet address (which doubles as an Ed25519 verifying key).
type Digest [DigestSize]byte

// Signature is a 64-byte Ed25519 signature over a Digest.
type Signature [SignatureSize]byte

// ZeroDigest is the all-zero digest used as a coinbase's synthetic input
// txid and as genesis's previous_hash.
var ZeroDigest Digest

func (d Digest) String() string {
	return base58.Encode(d[:])
}

// Bytes returns the digest's underlying bytes.
func (d Digest) Bytes() []byte { return d[:] }

func (s Signature) Bytes() []byte { return s[:] }

// DigestFromBytes copies exactly DigestSize bytes into a Digest.
func DigestFromBytes(b []byte) (Digest, error) {
	var d Digest
	if len(b) != DigestSize {
		return d, fmt.Errorf("cryptoid: digest must be %d bytes, got %d", DigestSize, len(b))
	}
	copy(d[:], b)
	return d, nil
}

// ParseAddress decodes a base58-encoded address back into a Digest.
func ParseAddress(s string) (Digest, error) {
	raw, err := base58.Decode(s)
	if err != nil {
		return Digest{}, fmt.Errorf("cryptoid: invalid base58 address: %w", err)
	}
	return DigestFromBytes(raw)
}

// Hasher accumulates bytes and produces a Digest. Order-sensitive, matching
// the txid/block-hash preimage contracts; callers outside this package
// (block.ComputeTxID, block.PowPreimage) drive it directly.
type Hasher struct {
	h *blake3.Hasher
}

// NewHasher starts a fresh BLAKE3 accumulator producing DigestSize bytes.
func NewHasher() *Hasher {
	return &Hasher{h: blake3.New(DigestSize, nil)}
}

func (h *Hasher) WriteDigest(d Digest)       { h.h.Write(d[:]) }
func (h *Hasher) WriteSignature(s Signature) { h.h.Write(s[:]) }

func (h *Hasher) WriteU64(v uint64) {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], v)
	h.h.Write(buf[:])
}

func (h *Hasher) WriteU32(v uint32) {
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], v)
	h.h.Write(buf[:])
}

// Sum finalizes the hasher into a Digest.
func (h *Hasher) Sum() Digest {
	var d Digest
	copy(d[:], h.h.Sum(nil))
	return d
}

// KeyPair is an Ed25519 signing identity. The address is the verifying key
// itself, matching the spec's "address = verifying_key_bytes(signing_key)".
type KeyPair struct {
	Address Digest
	private ed25519.PrivateKey
}

// GenerateKeyPair creates a fresh Ed25519 keypair. Key generation has no
// third-party equivalent among the example pack's chains (all secp256k1);
// stdlib crypto/ed25519 is the external primitive the spec calls for.
func GenerateKeyPair() (*KeyPair, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("cryptoid: generate key: %w", err)
	}
	addr, err := DigestFromBytes(pub)
	if err != nil {
		return nil, err
	}
	return &KeyPair{Address: addr, private: priv}, nil
}

// Sign signs a digest (typically a txid) with the keypair's private key.
func (k *KeyPair) Sign(msg Digest) Signature {
	var sig Signature
	copy(sig[:], ed25519.Sign(k.private, msg[:]))
	return sig
}

// PrivateKeyBytes returns the raw Ed25519 private key, for encrypted
// persistence by pkg/walletstore.
func (k *KeyPair) PrivateKeyBytes() []byte {
	return append([]byte(nil), k.private...)
}

// KeyPairFromPrivateKeyBytes reconstructs a KeyPair from a raw Ed25519
// private key previously returned by PrivateKeyBytes.
func KeyPairFromPrivateKeyBytes(b []byte) (*KeyPair, error) {
	if len(b) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("cryptoid: private key must be %d bytes, got %d", ed25519.PrivateKeySize, len(b))
	}
	priv := ed25519.PrivateKey(append([]byte(nil), b...))
	addr, err := DigestFromBytes(priv.Public().(ed25519.PublicKey))
	if err != nil {
		return nil, err
	}
	return &KeyPair{Address: addr, private: priv}, nil
}

// Verify reports whether sig is a valid signature by address over msg.
// Verification uses the cofactored, consensus-safe Ed25519 check rather
// than stdlib's, matching how the example pack verifies Ed25519 signatures
// at the protocol layer.
func Verify(address Digest, sig Signature, msg Digest) bool {
	return ed25519consensus.Verify(address[:], msg[:], sig[:])
}

// RandomSignature returns 64 random bytes, used for a coinbase's synthetic
// input signature (it exists only to make coinbase txids unique per block;
// nothing ever verifies it).
func RandomSignature() (Signature, error) {
	var sig Signature
	if _, err := rand.Read(sig[:]); err != nil {
		return sig, fmt.Errorf("cryptoid: random signature: %w", err)
	}
	return sig, nil
}

// RandomNonce returns a random 64-bit nonce for proof-of-work search.
func RandomNonce() (uint64, error) {
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return 0, fmt.Errorf("cryptoid: random nonce: %w", err)
	}
	return binary.BigEndian.Uint64(buf[:]), nil
}

// LeadingU64 interprets the first 8 bytes of a digest as a big-endian
// uint64, the quantity proof-of-work compares against a target.
func LeadingU64(d Digest) uint64 {
	return binary.BigEndian.Uint64(d[:8])
}
