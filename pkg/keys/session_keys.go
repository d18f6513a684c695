// Package keys provides signing credentials for the settlement session.
// The user's primary key authorizes the session during the auth handshake;
// a derived ephemeral session key signs routine protocol messages.
// Uses secp256k1 (same curve as Ethereum) for wallet compatibility.
package keys

import (
	"crypto/ecdsa"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"golang.org/x/crypto/hkdf"
)

// Signer wraps a secp256k1 private key and signs protocol payloads
// with the EIP-191 personal-message prefix.
type Signer struct {
	key     *ecdsa.PrivateKey
	address common.Address
}

// NewSigner creates a signer from a hex-encoded 32-byte private key.
func NewSigner(privateKeyHex string) (*Signer, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(privateKeyHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("invalid private key: %w", err)
	}
	return &Signer{
		key:     key,
		address: crypto.PubkeyToAddress(key.PublicKey),
	}, nil
}

// Address returns the signer's EVM address.
func (s *Signer) Address() common.Address {
	return s.address
}

// Sign signs a message with the EIP-191 personal-message prefix and
// returns the 65-byte signature hex-encoded with a 0x prefix. The
// recovery id is normalized to 27/28 as wallets produce it.
func (s *Signer) Sign(message []byte) (string, error) {
	prefixed := fmt.Sprintf("\x19Ethereum Signed Message:\n%d%s", len(message), message)
	hash := crypto.Keccak256Hash([]byte(prefixed))

	sig, err := crypto.Sign(hash.Bytes(), s.key)
	if err != nil {
		return "", fmt.Errorf("failed to sign message: %w", err)
	}
	if sig[64] < 27 {
		sig[64] += 27
	}
	return "0x" + hex.EncodeToString(sig), nil
}

// DeriveSessionSigner deterministically derives the ephemeral session
// signer from the user's primary key. The session key is distinct from
// the primary key but reproducible across reconnects, so the network
// sees a stable session identity per user. Uses HKDF with SHA-256.
func DeriveSessionSigner(primary *Signer) (*Signer, error) {
	seed := crypto.FromECDSA(primary.key)

	info := []byte("settlement-session-" + primary.address.Hex())
	hkdfReader := hkdf.New(sha256.New, seed, nil, info)

	// secp256k1 private key is 32 bytes
	sessionKeyBytes := make([]byte, 32)
	if _, err := io.ReadFull(hkdfReader, sessionKeyBytes); err != nil {
		return nil, fmt.Errorf("failed to derive session key: %w", err)
	}

	sessionKey, err := crypto.ToECDSA(sessionKeyBytes)
	if err != nil {
		return nil, fmt.Errorf("failed to create session key: %w", err)
	}

	return &Signer{
		key:     sessionKey,
		address: crypto.PubkeyToAddress(sessionKey.PublicKey),
	}, nil
}
