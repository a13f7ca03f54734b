package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"
)

const keySize = 32

// ErrNoKey is returned when a Sealer is built without key material
var ErrNoKey = errors.New("encryption key not configured")

// Sealer encrypts gateway API keys at rest with AES-256-GCM.
// Ciphertexts are base64 of nonce||sealed.
type Sealer struct {
	aead cipher.AEAD
}

// NewSealer creates a Sealer from a 32-byte key
func NewSealer(key []byte) (*Sealer, error) {
	if len(key) == 0 {
		return nil, ErrNoKey
	}
	if len(key) != keySize {
		return nil, fmt.Errorf("encryption key must be %d bytes, got %d", keySize, len(key))
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return &Sealer{aead: aead}, nil
}

// LoadSealer resolves the key and builds a Sealer. Priority:
// 1. ENCRYPTION_KEY environment variable (development/testing)
// 2. System keychain, generating and storing a key on first use
func LoadSealer(log *zap.Logger) (*Sealer, error) {
	if log == nil {
		log = zap.NewNop()
	}

	if keyString := os.Getenv("ENCRYPTION_KEY"); keyString != "" {
		log.Debug("Using encryption key from environment")
		return NewSealer(DeriveKey(keyString))
	}

	key, err := GenerateOrLoadKey(log)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize encryption from keystore: %w", err)
	}
	return NewSealer(key)
}

// DeriveKey turns a configured key string into 32 bytes. A base64 string that decodes
// to exactly 32 bytes is used as is; anything else is hashed with SHA-256.
func DeriveKey(keyString string) []byte {
	if decoded, err := base64.StdEncoding.DecodeString(keyString); err == nil {
		if len(decoded) == keySize {
			return decoded
		}
		hash := sha256.Sum256(decoded)
		return hash[:]
	}
	hash := sha256.Sum256([]byte(keyString))
	return hash[:]
}

// Encrypt seals plaintext and returns base64 ciphertext
func (s *Sealer) Encrypt(plaintext string) (string, error) {
	nonce := make([]byte, s.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	sealed := s.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt opens base64 ciphertext produced by Encrypt
func (s *Sealer) Decrypt(ciphertextB64 string) (string, error) {
	ciphertext, err := base64.StdEncoding.DecodeString(ciphertextB64)
	if err != nil {
		return "", fmt.Errorf("failed to decode base64: %w", err)
	}

	nonceSize := s.aead.NonceSize()
	if len(ciphertext) < nonceSize {
		return "", errors.New("ciphertext too short")
	}

	nonce, sealed := ciphertext[:nonceSize], ciphertext[nonceSize:]
	plaintext, err := s.aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", fmt.Errorf("failed to decrypt: %w", err)
	}
	return string(plaintext), nil
}
