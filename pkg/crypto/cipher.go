package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
)

// DefaultAssociatedData binds ciphertexts to their purpose. It is not secret.
const DefaultAssociatedData = "securelogin:sensitive-id:v1"

const (
	nonceSize = 12
	tagSize   = 16
)

var (
	// ErrEncryption covers malformed input and an unusable cipher.
	ErrEncryption = errors.New("crypto: encryption failed")
	// ErrDecryption is returned for every decrypt failure; the cause is
	// deliberately not distinguished.
	ErrDecryption = errors.New("crypto: decryption failed")
)

// EncryptedField is the hex encoded (ciphertext, iv, authTag) triple of one
// AES-GCM encryption. The three parts are only meaningful together.
type EncryptedField struct {
	Ciphertext string `json:"ciphertext"`
	IV         string `json:"iv"`
	AuthTag    string `json:"authTag"`
}

// IsZero reports whether no part is set.
func (f EncryptedField) IsZero() bool {
	return f.Ciphertext == "" && f.IV == "" && f.AuthTag == ""
}

// Complete reports whether all three parts are set.
func (f EncryptedField) Complete() bool {
	return f.Ciphertext != "" && f.IV != "" && f.AuthTag != ""
}

// FieldCipher performs AES-256-GCM on single string values. It holds only
// immutable key material and is safe for concurrent use.
type FieldCipher struct {
	aead cipher.AEAD
	aad  []byte
	rand io.Reader
}

// CipherOption customises a FieldCipher.
type CipherOption func(*FieldCipher)

// WithAssociatedData overrides DefaultAssociatedData.
func WithAssociatedData(aad string) CipherOption {
	return func(c *FieldCipher) {
		c.aad = []byte(aad)
	}
}

// WithRandom replaces the nonce source. Intended for tests.
func WithRandom(r io.Reader) CipherOption {
	return func(c *FieldCipher) {
		if r != nil {
			c.rand = r
		}
	}
}

// NewFieldCipher derives the key from secret and prepares the AEAD.
func NewFieldCipher(secret string, opts ...CipherOption) (*FieldCipher, error) {
	key, err := DeriveKey(secret)
	if err != nil {
		return nil, err
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("crypto: init cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("crypto: init gcm: %w", err)
	}
	c := &FieldCipher{
		aead: gcm,
		aad:  []byte(DefaultAssociatedData),
		rand: rand.Reader,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Encrypt seals plaintext under a fresh random IV.
func (c *FieldCipher) Encrypt(plaintext string) (EncryptedField, error) {
	if c == nil || c.aead == nil {
		return EncryptedField{}, fmt.Errorf("%w: %w", ErrEncryption, ErrMissingKey)
	}
	if plaintext == "" {
		return EncryptedField{}, fmt.Errorf("%w: empty plaintext", ErrEncryption)
	}
	nonce := make([]byte, nonceSize)
	if _, err := io.ReadFull(c.rand, nonce); err != nil {
		return EncryptedField{}, fmt.Errorf("%w: read nonce: %w", ErrEncryption, err)
	}
	sealed := c.aead.Seal(nil, nonce, []byte(plaintext), c.aad)
	body, tag := sealed[:len(sealed)-tagSize], sealed[len(sealed)-tagSize:]
	return EncryptedField{
		Ciphertext: hex.EncodeToString(body),
		IV:         hex.EncodeToString(nonce),
		AuthTag:    hex.EncodeToString(tag),
	}, nil
}

// Decrypt opens a triple produced by Encrypt. Any missing part, bad encoding,
// wrong key or tampering yields ErrDecryption and an empty string.
func (c *FieldCipher) Decrypt(field EncryptedField) (string, error) {
	if c == nil || c.aead == nil {
		return "", fmt.Errorf("%w: %w", ErrDecryption, ErrMissingKey)
	}
	if !field.Complete() {
		return "", fmt.Errorf("%w: incomplete field", ErrDecryption)
	}
	body, err := hex.DecodeString(field.Ciphertext)
	if err != nil {
		return "", fmt.Errorf("%w: malformed ciphertext", ErrDecryption)
	}
	nonce, err := hex.DecodeString(field.IV)
	if err != nil || len(nonce) != nonceSize {
		return "", fmt.Errorf("%w: malformed iv", ErrDecryption)
	}
	tag, err := hex.DecodeString(field.AuthTag)
	if err != nil || len(tag) != tagSize {
		return "", fmt.Errorf("%w: malformed auth tag", ErrDecryption)
	}
	sealed := make([]byte, 0, len(body)+len(tag))
	sealed = append(sealed, body...)
	sealed = append(sealed, tag...)
	plain, err := c.aead.Open(nil, nonce, sealed, c.aad)
	if err != nil {
		return "", fmt.Errorf("%w: authentication failed", ErrDecryption)
	}
	return string(plain), nil
}
