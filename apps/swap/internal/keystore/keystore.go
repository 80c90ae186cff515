package keystore

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/ecdsa"
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"github.com/ethereum/go-ethereum/crypto"
)

// Keystore resolves a wallet's encrypted key handle into a signing key.
// Handles are AES-256-GCM ciphertexts of the raw private key bytes, hex
// encoded, sealed with a process-wide master key. Decrypted key material is
// scoped to the settlement call that needs it and is never logged or persisted.
type Keystore struct {
	aead cipher.AEAD
}

func New(masterKeyHex string) (*Keystore, error) {
	masterKey, err := hex.DecodeString(masterKeyHex)
	if err != nil {
		return nil, fmt.Errorf("failed to decode master key: %w", err)
	}
	if len(masterKey) != 32 {
		return nil, fmt.Errorf("master key must be 32 bytes, got %d", len(masterKey))
	}

	block, err := aes.NewCipher(masterKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	return &Keystore{aead: aead}, nil
}

// Decrypt opens a key handle and returns the wallet's signing key.
func (k *Keystore) Decrypt(handle string) (*ecdsa.PrivateKey, error) {
	ciphertext, err := hex.DecodeString(handle)
	if err != nil {
		return nil, fmt.Errorf("failed to decode key handle: %w", err)
	}

	if len(ciphertext) < k.aead.NonceSize() {
		return nil, fmt.Errorf("key handle too short")
	}

	nonce, sealed := ciphertext[:k.aead.NonceSize()], ciphertext[k.aead.NonceSize():]
	keyBytes, err := k.aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt key handle: %w", err)
	}

	key, err := crypto.ToECDSA(keyBytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse signing key: %w", err)
	}

	return key, nil
}

// Encrypt seals a raw private key into a handle. Used by wallet provisioning
// tooling, not by the settlement path.
func (k *Keystore) Encrypt(key *ecdsa.PrivateKey) (string, error) {
	nonce := make([]byte, k.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	sealed := k.aead.Seal(nonce, nonce, crypto.FromECDSA(key), nil)
	return hex.EncodeToString(sealed), nil
}
