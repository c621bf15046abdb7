package credential

import (
	"encoding/hex"
	"strings"

	"golang.org/x/crypto/argon2"
)

// Argon2idParams tunes the key derivation used when the deployment supplies a
// passphrase instead of raw key material.
type Argon2idParams struct {
	Memory      uint32
	Iterations  uint32
	Parallelism uint8
}

// DefaultArgon2idParams matches the interactive-use recommendations.
var DefaultArgon2idParams = Argon2idParams{
	Memory:      64 * 1024,
	Iterations:  3,
	Parallelism: 2,
}

// KeyFromHex decodes a hex encoded 256-bit key.
func KeyFromHex(value string) ([]byte, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, &Error{Op: "key", Err: ErrKeyMissing}
	}
	key, err := hex.DecodeString(value)
	if err != nil {
		return nil, &Error{Op: "key", Err: err}
	}
	if len(key) != keyLength {
		return nil, &Error{Op: "key", Err: ErrKeyLength}
	}
	return key, nil
}

// DeriveKey stretches a passphrase into a 256-bit key with argon2id. The salt
// must stay stable for the lifetime of the stored credentials.
func DeriveKey(passphrase, salt string, params Argon2idParams) ([]byte, error) {
	if strings.TrimSpace(passphrase) == "" || strings.TrimSpace(salt) == "" {
		return nil, &Error{Op: "key", Err: ErrKeyMissing}
	}
	return argon2.IDKey([]byte(passphrase), []byte(salt), params.Iterations, params.Memory, params.Parallelism, keyLength), nil
}
