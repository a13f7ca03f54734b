package crypto

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"runtime"

	"github.com/zalando/go-keyring"
	"go.uber.org/zap"
)

const (
	keystoreService = "brigadas-analytics"
	keystoreUser    = "profile-encryption-key"
)

// GenerateOrLoadKey loads the key from the system keychain, generating and storing
// a new one when none exists. The key is kept base64-encoded in the keychain.
func GenerateOrLoadKey(log *zap.Logger) ([]byte, error) {
	stored, err := keyring.Get(keystoreService, keystoreUser)
	if err == nil && stored != "" {
		key, decodeErr := base64.StdEncoding.DecodeString(stored)
		if decodeErr == nil && len(key) == keySize {
			return key, nil
		}
		return nil, fmt.Errorf("keychain entry %s/%s is not a valid key", keystoreService, keystoreUser)
	}

	if err != nil && !errors.Is(err, keyring.ErrNotFound) {
		log.Warn("Keystore lookup failed", zap.Error(err))
	}

	key := make([]byte, keySize)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("failed to generate random key: %w", err)
	}

	if err := keyring.Set(keystoreService, keystoreUser, base64.StdEncoding.EncodeToString(key)); err != nil {
		// Headless Linux often has no secret service; profiles then need ENCRYPTION_KEY
		// to survive a restart.
		log.Warn("Failed to store key in keychain; key will be regenerated on next launch", zap.Error(err))

		if runtime.GOOS == "darwin" || runtime.GOOS == "windows" {
			return nil, fmt.Errorf("keychain storage required on %s: %w", runtime.GOOS, err)
		}
	}

	return key, nil
}

// DeleteKey removes the encryption key from the keychain
func DeleteKey() error {
	return keyring.Delete(keystoreService, keystoreUser)
}

// IsKeyStored checks if an encryption key exists in the keychain
func IsKeyStored() bool {
	_, err := keyring.Get(keystoreService, keystoreUser)
	return err == nil
}
