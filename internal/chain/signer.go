package chain

import (
	"context"
	"crypto/ed25519"
	"encoding/base64"
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/blake2b"
)

// ed25519SchemeFlag prefixes both signatures and the address derivation
// preimage for ed25519 keys.
const ed25519SchemeFlag byte = 0x00

// Signer is the sign-and-execute capability a wallet session carries. No
// orchestrator operation submits a transaction except through this interface.
type Signer interface {
	Address() string
	SignAndExecute(ctx context.Context, tx *Transaction) (*ExecutionResult, error)
}

// LocalSigner signs with an in-process ed25519 key and submits through a
// Submitter. It stands in for the browser wallet in service and CLI use.
type LocalSigner struct {
	key     ed25519.PrivateKey
	address string
	exec    Submitter
}

// NewLocalSigner wraps a raw ed25519 private key.
func NewLocalSigner(key ed25519.PrivateKey, exec Submitter) (*LocalSigner, error) {
	if len(key) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("invalid ed25519 private key length %d", len(key))
	}
	if exec == nil {
		return nil, fmt.Errorf("submitter is required")
	}
	pub := key.Public().(ed25519.PublicKey)
	return &LocalSigner{key: key, address: deriveAddress(pub), exec: exec}, nil
}

// NewLocalSignerFromSeed wraps a 32-byte seed, hex-encoded with optional 0x
// prefix.
func NewLocalSignerFromSeed(seedHex string, exec Submitter) (*LocalSigner, error) {
	if len(seedHex) >= 2 && seedHex[:2] == "0x" {
		seedHex = seedHex[2:]
	}
	seed, err := hex.DecodeString(seedHex)
	if err != nil {
		return nil, fmt.Errorf("decode key seed: %w", err)
	}
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("key seed must be %d bytes, got %d", ed25519.SeedSize, len(seed))
	}
	return NewLocalSigner(ed25519.NewKeyFromSeed(seed), exec)
}

// Address returns the account address derived from the public key.
func (s *LocalSigner) Address() string {
	return s.address
}

// SignAndExecute serializes, signs and submits the transaction in one step.
func (s *LocalSigner) SignAndExecute(ctx context.Context, tx *Transaction) (*ExecutionResult, error) {
	raw, err := tx.Bytes()
	if err != nil {
		return nil, err
	}
	digest := blake2b.Sum256(raw)
	sig := ed25519.Sign(s.key, digest[:])

	// Serialized signature: scheme flag || signature || public key.
	pub := s.key.Public().(ed25519.PublicKey)
	serialized := make([]byte, 0, 1+len(sig)+len(pub))
	serialized = append(serialized, ed25519SchemeFlag)
	serialized = append(serialized, sig...)
	serialized = append(serialized, pub...)

	return s.exec.ExecuteTransaction(ctx, raw, base64.StdEncoding.EncodeToString(serialized))
}

// deriveAddress hashes the scheme flag and public key into the 32-byte
// account address.
func deriveAddress(pub ed25519.PublicKey) string {
	h, _ := blake2b.New256(nil)
	h.Write([]byte{ed25519SchemeFlag})
	h.Write(pub)
	return "0x" + hex.EncodeToString(h.Sum(nil))
}
