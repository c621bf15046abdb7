package credential

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

const (
	keyLength = 32
	ivLength  = 16
	tagLength = 16
)

var (
	// ErrKeyMissing is returned when no encryption key was configured.
	ErrKeyMissing = errors.New("credential: encryption key missing")
	// ErrKeyLength is returned when the configured key is not 256 bits.
	ErrKeyLength = errors.New("credential: encryption key must be 32 bytes")
	// ErrIntegrity is returned when decryption detects tampered or corrupted input.
	ErrIntegrity = errors.New("credential: payload failed integrity check")
)

// Error marks a failure inside the credential subsystem. Callers treat it as
// fatal for the current operation; the account has to reconnect its calendar.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("credential: %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// EncryptedPayload holds one AEAD-protected value. The three fields always
// travel together; splitting them breaks the integrity guarantee.
type EncryptedPayload struct {
	Ciphertext []byte `json:"ciphertext"`
	IV         []byte `json:"iv"`
	AuthTag    []byte `json:"auth_tag"`
}

// Cipher encrypts and decrypts long-lived secrets with AES-256-GCM using a
// 128-bit IV freshly drawn per call and a 128-bit authentication tag.
type Cipher struct {
	aead cipher.AEAD
}

// NewCipher validates the key and prepares the AEAD primitive.
func NewCipher(key []byte) (*Cipher, error) {
	if len(key) == 0 {
		return nil, &Error{Op: "init", Err: ErrKeyMissing}
	}
	if len(key) != keyLength {
		return nil, &Error{Op: "init", Err: ErrKeyLength}
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, &Error{Op: "init", Err: err}
	}

	aead, err := cipher.NewGCMWithNonceSize(block, ivLength)
	if err != nil {
		return nil, &Error{Op: "init", Err: err}
	}

	return &Cipher{aead: aead}, nil
}

// Encrypt seals the plaintext under a fresh random IV.
func (c *Cipher) Encrypt(plaintext []byte) (EncryptedPayload, error) {
	if c == nil || c.aead == nil {
		return EncryptedPayload{}, &Error{Op: "encrypt", Err: ErrKeyMissing}
	}

	iv := make([]byte, ivLength)
	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return EncryptedPayload{}, &Error{Op: "encrypt", Err: err}
	}

	sealed := c.aead.Seal(nil, iv, plaintext, nil)
	split := len(sealed) - tagLength

	return EncryptedPayload{
		Ciphertext: sealed[:split],
		IV:         iv,
		AuthTag:    sealed[split:],
	}, nil
}

// Decrypt opens a payload, failing loudly when any of its parts was altered.
func (c *Cipher) Decrypt(payload EncryptedPayload) ([]byte, error) {
	if c == nil || c.aead == nil {
		return nil, &Error{Op: "decrypt", Err: ErrKeyMissing}
	}
	if len(payload.IV) != ivLength || len(payload.AuthTag) != tagLength {
		return nil, &Error{Op: "decrypt", Err: ErrIntegrity}
	}

	sealed := make([]byte, 0, len(payload.Ciphertext)+tagLength)
	sealed = append(sealed, payload.Ciphertext...)
	sealed = append(sealed, payload.AuthTag...)

	plaintext, err := c.aead.Open(nil, payload.IV, sealed, nil)
	if err != nil {
		// Never include ciphertext or plaintext fragments in the error.
		return nil, &Error{Op: "decrypt", Err: ErrIntegrity}
	}

	return plaintext, nil
}

// EncryptJSON serializes the value and seals the resulting document.
func (c *Cipher) EncryptJSON(value any) (EncryptedPayload, error) {
	raw, err := json.Marshal(value)
	if err != nil {
		return EncryptedPayload{}, &Error{Op: "encrypt", Err: err}
	}
	return c.Encrypt(raw)
}

// DecryptJSON opens a payload and deserializes the document into out.
func (c *Cipher) DecryptJSON(payload EncryptedPayload, out any) error {
	raw, err := c.Decrypt(payload)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return &Error{Op: "decrypt", Err: err}
	}
	return nil
}
