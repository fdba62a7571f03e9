package vault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"
	"strings"
)

// encPrefix marks values encrypted by this package. Values without the
// prefix are treated as legacy plaintext and passed through on decrypt.
const encPrefix = "enc:v1:"

// Config holds configuration for credential encryption.
type Config struct {
	// Key is the secret used to derive the AES-256 key. Empty disables
	// encryption; values pass through unchanged.
	Key string `mapstructure:"key" default:""`
}

// Vault encrypts and decrypts opaque credential strings.
type Vault struct {
	key []byte
}

// New creates a vault from the configured key. The key material is run
// through SHA-256 so any string length is accepted.
func New(cfg Config) *Vault {
	if cfg.Key == "" {
		return &Vault{}
	}
	sum := sha256.Sum256([]byte(cfg.Key))
	return &Vault{key: sum[:]}
}

// Encrypt seals the value with AES-GCM and prepends the format prefix.
// Already-encrypted values are returned unchanged so re-saving a record
// never double-encrypts.
func (v *Vault) Encrypt(value string) (string, error) {
	if v.key == nil || value == "" || strings.HasPrefix(value, encPrefix) {
		return value, nil
	}

	gcm, err := v.cipher()
	if err != nil {
		return "", err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	sealed := gcm.Seal(nonce, nonce, []byte(value), nil)
	return encPrefix + base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt opens a value sealed by Encrypt. Values without the format prefix
// are legacy plaintext and are returned as-is.
func (v *Vault) Decrypt(value string) (string, error) {
	if !strings.HasPrefix(value, encPrefix) {
		return value, nil
	}
	if v.key == nil {
		return "", fmt.Errorf("encrypted value present but no vault key configured")
	}

	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(value, encPrefix))
	if err != nil {
		return "", fmt.Errorf("failed to decode encrypted value: %w", err)
	}

	gcm, err := v.cipher()
	if err != nil {
		return "", err
	}
	if len(raw) < gcm.NonceSize() {
		return "", fmt.Errorf("encrypted value too short")
	}

	plain, err := gcm.Open(nil, raw[:gcm.NonceSize()], raw[gcm.NonceSize():], nil)
	if err != nil {
		return "", fmt.Errorf("failed to decrypt value: %w", err)
	}
	return string(plain), nil
}

func (v *Vault) cipher() (cipher.AEAD, error) {
	block, err := aes.NewCipher(v.key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create gcm: %w", err)
	}
	return gcm, nil
}
