package credential

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/zalando/go-keyring"
)

func testKey() []byte {
	return bytes.Repeat([]byte{7}, 32)
}

func TestCipher_RoundTrip(t *testing.T) {
	c, err := NewCipher(testKey())
	if err != nil {
		t.Fatalf("NewCipher: %v", err)
	}

	for _, plain := range []string{"secret", "p@ss w0rd!", "ünïcödé", strings.Repeat("x", 4096)} {
		enc, err := c.Encrypt(plain)
		if err != nil {
			t.Fatalf("Encrypt(%q): %v", plain, err)
		}
		if enc == plain || strings.Contains(enc, plain) {
			t.Errorf("ciphertext leaks plaintext for %q", plain)
		}
		dec, err := c.Decrypt(enc)
		if err != nil {
			t.Fatalf("Decrypt: %v", err)
		}
		if dec != plain {
			t.Errorf("round trip mismatch: got %q, want %q", dec, plain)
		}
	}
}

func TestCipher_NonceIsRandom(t *testing.T) {
	c, _ := NewCipher(testKey())
	a, _ := c.Encrypt("same")
	b, _ := c.Encrypt("same")
	if a == b {
		t.Error("two encryptions of the same plaintext should differ")
	}
}

func TestCipher_Empty(t *testing.T) {
	c, _ := NewCipher(testKey())
	enc, err := c.Encrypt("")
	if err != nil || enc != "" {
		t.Errorf("Encrypt(\"\") = %q, %v; want empty", enc, err)
	}
	dec, err := c.Decrypt("")
	if err != nil || dec != "" {
		t.Errorf("Decrypt(\"\") = %q, %v; want empty", dec, err)
	}
}

func TestCipher_WrongKeyAndCorruption(t *testing.T) {
	c1, _ := NewCipher(testKey())
	c2, _ := NewCipher(bytes.Repeat([]byte{9}, 32))

	enc, _ := c1.Encrypt("secret")
	if _, err := c2.Decrypt(enc); err == nil {
		t.Error("expected error decrypting with the wrong key")
	}
	if _, err := c1.Decrypt("not base64!!"); err == nil {
		t.Error("expected error for invalid base64")
	}
	if _, err := c1.Decrypt("AAAA"); err == nil {
		t.Error("expected error for truncated ciphertext")
	}
}

func TestNewCipher_BadKey(t *testing.T) {
	if _, err := NewCipher([]byte("short")); err == nil {
		t.Error("expected error for short key")
	}
}

func TestCipher_GenerateID(t *testing.T) {
	c, _ := NewCipher(testKey())
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := c.GenerateID()
		if len(id) != 36 {
			t.Fatalf("unexpected id format %q", id)
		}
		if seen[id] {
			t.Fatalf("duplicate id %q", id)
		}
		seen[id] = true
	}
}

func TestKeyStore_Keyring(t *testing.T) {
	keyring.MockInit()
	ks := NewKeyStore(filepath.Join(t.TempDir(), "master.key"))

	k1, err := ks.MasterKey()
	if err != nil {
		t.Fatalf("MasterKey: %v", err)
	}
	k2, err := ks.MasterKey()
	if err != nil {
		t.Fatalf("MasterKey: %v", err)
	}
	if !bytes.Equal(k1, k2) {
		t.Error("master key should be stable across calls")
	}
	if _, err := os.Stat(ks.FallbackPath); !os.IsNotExist(err) {
		t.Error("key file should not be written while the keyring works")
	}

	if err := ks.Delete(); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	k3, _ := ks.MasterKey()
	if bytes.Equal(k1, k3) {
		t.Error("a new key should be created after Delete")
	}
}

func TestKeyStore_FileFallback(t *testing.T) {
	keyring.MockInitWithError(errors.New("no secret service"))
	defer keyring.MockInit()

	path := filepath.Join(t.TempDir(), "keys", "master.key")
	ks := NewKeyStore(path)

	k1, err := ks.MasterKey()
	if err != nil {
		t.Fatalf("MasterKey: %v", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("key file not written: %v", err)
	}
	if info.Mode().Perm() != 0600 {
		t.Errorf("key file mode = %o, want 600", info.Mode().Perm())
	}

	k2, err := ks.MasterKey()
	if err != nil || !bytes.Equal(k1, k2) {
		t.Error("fallback key should be reloaded from the file")
	}

	c, err := NewCipherFromStore(ks)
	if err != nil {
		t.Fatalf("NewCipherFromStore: %v", err)
	}
	enc, _ := c.Encrypt("pw")
	c2, _ := NewCipher(k1)
	if dec, err := c2.Decrypt(enc); err != nil || dec != "pw" {
		t.Errorf("cipher from store should use the master key")
	}
}

func TestKeyStore_AdoptsKeyFileWhenKeyringReturns(t *testing.T) {
	path := filepath.Join(t.TempDir(), "master.key")
	ks := NewKeyStore(path)

	keyring.MockInitWithError(errors.New("no secret service"))
	fileKey, err := ks.MasterKey()
	if err != nil {
		t.Fatalf("MasterKey without keyring: %v", err)
	}
	c1, _ := NewCipher(fileKey)
	enc, _ := c1.Encrypt("pw")

	keyring.MockInit()
	key, err := ks.MasterKey()
	if err != nil {
		t.Fatalf("MasterKey with empty keyring: %v", err)
	}
	if !bytes.Equal(fileKey, key) {
		t.Fatal("existing key file should be adopted instead of minting a new key")
	}
	c2, _ := NewCipher(key)
	if dec, err := c2.Decrypt(enc); err != nil || dec != "pw" {
		t.Errorf("secret written under the key file no longer decrypts: %q, %v", dec, err)
	}

	stored, err := keyring.Get(keyringService, masterKeyUser)
	if err != nil || stored != encodeKey(fileKey) {
		t.Errorf("adopted key should be stored in the keyring, got %q, %v", stored, err)
	}
}

func TestKeyStore_CorruptKeyFile(t *testing.T) {
	keyring.MockInit()
	path := filepath.Join(t.TempDir(), "master.key")
	if err := os.WriteFile(path, []byte("not base64!"), 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := NewKeyStore(path).MasterKey(); err == nil {
		t.Error("expected an error for a corrupt key file")
	}
}
