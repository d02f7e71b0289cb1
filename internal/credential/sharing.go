package credential

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"time"
)

const (
	bundleApp     = "tablemoins"
	bundleVersion = 1
)

// ShareBundle is the envelope for exported connection profiles. Data is
// sealed with a one-off key that travels separately from the bundle.
type ShareBundle struct {
	Version int    `json:"v"`
	App     string `json:"app"`
	Time    string `json:"ts"`
	Nonce   string `json:"nonce"`
	Data    string `json:"data"`
}

// GenerateSharingKey returns a random AES-256 key, base64url encoded.
func GenerateSharingKey() (string, error) {
	key, err := newKey()
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(key), nil
}

// EncryptForSharing seals data under a fresh key and returns the bundle JSON
// together with the key.
func EncryptForSharing(data []byte) (bundle string, key string, err error) {
	key, err = GenerateSharingKey()
	if err != nil {
		return "", "", err
	}
	bundle, err = EncryptForSharingWithKey(data, key)
	if err != nil {
		return "", "", err
	}
	return bundle, key, nil
}

// EncryptForSharingWithKey seals data under an existing base64url key.
func EncryptForSharingWithKey(data []byte, keyStr string) (string, error) {
	c, err := sharingCipher(keyStr)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, c.gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	bundle := ShareBundle{
		Version: bundleVersion,
		App:     bundleApp,
		Time:    time.Now().UTC().Format(time.RFC3339),
		Nonce:   base64.RawURLEncoding.EncodeToString(nonce),
		Data:    base64.RawURLEncoding.EncodeToString(c.gcm.Seal(nil, nonce, data, nil)),
	}
	out, err := json.Marshal(bundle)
	if err != nil {
		return "", fmt.Errorf("failed to marshal bundle: %w", err)
	}
	return string(out), nil
}

// DecryptFromSharing opens a bundle produced by EncryptForSharing.
func DecryptFromSharing(bundleJSON, keyStr string) ([]byte, error) {
	var bundle ShareBundle
	if err := json.Unmarshal([]byte(bundleJSON), &bundle); err != nil {
		return nil, fmt.Errorf("invalid bundle format: %w", err)
	}
	if bundle.App != bundleApp {
		return nil, fmt.Errorf("not a tablemoins export bundle")
	}
	if bundle.Version != bundleVersion {
		return nil, fmt.Errorf("unsupported bundle version %d", bundle.Version)
	}

	c, err := sharingCipher(keyStr)
	if err != nil {
		return nil, err
	}
	nonce, err := base64.RawURLEncoding.DecodeString(bundle.Nonce)
	if err != nil || len(nonce) != c.gcm.NonceSize() {
		return nil, fmt.Errorf("corrupted bundle: invalid nonce")
	}
	sealed, err := base64.RawURLEncoding.DecodeString(bundle.Data)
	if err != nil {
		return nil, fmt.Errorf("corrupted bundle: invalid data")
	}

	plaintext, err := c.gcm.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, fmt.Errorf("decryption failed, check that the key matches the bundle")
	}
	return plaintext, nil
}

func sharingCipher(keyStr string) (*Cipher, error) {
	key, err := base64.RawURLEncoding.DecodeString(keyStr)
	if err != nil {
		return nil, fmt.Errorf("invalid key format: %w", err)
	}
	return NewCipher(key)
}
