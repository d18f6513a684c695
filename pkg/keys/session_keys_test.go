package keys

import (
	"encoding/hex"
	"fmt"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/crypto"
)

func newPrimarySigner(t *testing.T) *Signer {
	t.Helper()
	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey() failed: %v", err)
	}
	signer, err := NewSigner(hex.EncodeToString(crypto.FromECDSA(key)))
	if err != nil {
		t.Fatalf("NewSigner() failed: %v", err)
	}
	return signer
}

func TestNewSigner_RejectsInvalidKey(t *testing.T) {
	if _, err := NewSigner("not-a-key"); err == nil {
		t.Fatal("expected error for invalid private key, got nil")
	}
}

func TestSigner_Sign_RecoversAddress(t *testing.T) {
	signer := newPrimarySigner(t)
	message := []byte("auth challenge 12345")

	sigHex, err := signer.Sign(message)
	if err != nil {
		t.Fatalf("Sign() failed: %v", err)
	}

	sig, err := hex.DecodeString(strings.TrimPrefix(sigHex, "0x"))
	if err != nil {
		t.Fatalf("signature is not valid hex: %v", err)
	}
	if len(sig) != 65 {
		t.Fatalf("expected 65-byte signature, got %d", len(sig))
	}
	if sig[64] != 27 && sig[64] != 28 {
		t.Errorf("expected wallet-style recovery id 27/28, got %d", sig[64])
	}

	// recover and compare
	sig[64] -= 27
	prefixed := fmt.Sprintf("\x19Ethereum Signed Message:\n%d%s", len(message), message)
	hash := crypto.Keccak256Hash([]byte(prefixed))
	pubKey, err := crypto.SigToPub(hash.Bytes(), sig)
	if err != nil {
		t.Fatalf("SigToPub() failed: %v", err)
	}
	if got := crypto.PubkeyToAddress(*pubKey); got != signer.Address() {
		t.Errorf("recovered address %s, want %s", got.Hex(), signer.Address().Hex())
	}
}

func TestDeriveSessionSigner_DeterministicAndDistinct(t *testing.T) {
	primary := newPrimarySigner(t)

	first, err := DeriveSessionSigner(primary)
	if err != nil {
		t.Fatalf("DeriveSessionSigner() failed: %v", err)
	}
	second, err := DeriveSessionSigner(primary)
	if err != nil {
		t.Fatalf("second DeriveSessionSigner() failed: %v", err)
	}

	if first.Address() != second.Address() {
		t.Errorf("derivation must be deterministic: %s != %s",
			first.Address().Hex(), second.Address().Hex())
	}
	if first.Address() == primary.Address() {
		t.Error("session key must be distinct from the primary key")
	}

	other := newPrimarySigner(t)
	otherSession, err := DeriveSessionSigner(other)
	if err != nil {
		t.Fatalf("DeriveSessionSigner() failed: %v", err)
	}
	if otherSession.Address() == first.Address() {
		t.Error("different primaries must derive different session keys")
	}
}
