// Package credential encrypts profile secrets and manages the master key.
package credential

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/zalando/go-keyring"
)

const (
	keyringService = "tablemoins"
	masterKeyUser  = "master-key"
	keySize        = 32
)

// KeyStore loads the AES-256 master key from the OS keyring, creating it on
// first use. When the keyring is unavailable the key lives in FallbackPath
// with 0600 permissions.
type KeyStore struct {
	FallbackPath string
}

// NewKeyStore creates a key store that falls back to fallbackPath.
func NewKeyStore(fallbackPath string) *KeyStore {
	return &KeyStore{FallbackPath: fallbackPath}
}

// MasterKey returns the 32-byte master key.
func (k *KeyStore) MasterKey() ([]byte, error) {
	encoded, err := keyring.Get(keyringService, masterKeyUser)
	switch {
	case err == nil:
		key, decErr := decodeKey(encoded)
		if decErr == nil {
			return key, nil
		}
		return nil, fmt.Errorf("stored master key is corrupt: %w", decErr)
	case errors.Is(err, keyring.ErrNotFound):
		key, found, err := k.readKeyFile()
		if err != nil {
			return nil, err
		}
		if !found {
			if key, err = newKey(); err != nil {
				return nil, err
			}
		}
		if err := keyring.Set(keyringService, masterKeyUser, encodeKey(key)); err != nil {
			log.Warn().Err(err).Msg("OS keyring rejected master key, using key file")
			return k.fileKey()
		}
		return key, nil
	default:
		log.Warn().Err(err).Msg("OS keyring unavailable, using key file")
		return k.fileKey()
	}
}

// Delete removes the master key from the keyring and the fallback file.
func (k *KeyStore) Delete() error {
	err := keyring.Delete(keyringService, masterKeyUser)
	if err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return err
	}
	if k.FallbackPath != "" {
		if err := os.Remove(k.FallbackPath); err != nil && !os.IsNotExist(err) {
			return err
		}
	}
	return nil
}

func (k *KeyStore) fileKey() ([]byte, error) {
	if k.FallbackPath == "" {
		return nil, errors.New("no keyring and no key file configured")
	}
	if key, found, err := k.readKeyFile(); err != nil || found {
		return key, err
	}

	key, err := newKey()
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(k.FallbackPath), 0700); err != nil {
		return nil, fmt.Errorf("failed to create key directory: %w", err)
	}
	if err := os.WriteFile(k.FallbackPath, []byte(encodeKey(key)), 0600); err != nil {
		return nil, fmt.Errorf("failed to write key file: %w", err)
	}
	return key, nil
}

// readKeyFile loads the fallback key file. A missing file is not an error.
func (k *KeyStore) readKeyFile() ([]byte, bool, error) {
	if k.FallbackPath == "" {
		return nil, false, nil
	}
	data, err := os.ReadFile(k.FallbackPath)
	if os.IsNotExist(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read key file: %w", err)
	}
	key, err := decodeKey(strings.TrimSpace(string(data)))
	if err != nil {
		return nil, false, fmt.Errorf("key file is corrupt: %w", err)
	}
	return key, true, nil
}

func newKey() ([]byte, error) {
	key := make([]byte, keySize)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("failed to generate encryption key: %w", err)
	}
	return key, nil
}

func encodeKey(key []byte) string {
	return base64.StdEncoding.EncodeToString(key)
}

func decodeKey(s string) ([]byte, error) {
	key, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, err
	}
	if len(key) != keySize {
		return nil, fmt.Errorf("invalid key length %d", len(key))
	}
	return key, nil
}
