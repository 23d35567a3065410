package hints

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
)

var ErrBlobTooShort = errors.New("sealed blob too short")

// Sealer encrypts the cached token blob so the hint store never holds credentials in clear text.
type Sealer struct {
	key []byte
}

// NewSealer takes a 32 byte key.
func NewSealer(key []byte) (*Sealer, error) {
	if len(key) != chacha20poly1305.KeySize {
		return nil, fmt.Errorf("[NewSealer] key must be %d bytes, got %d", chacha20poly1305.KeySize, len(key))
	}
	return &Sealer{key: append([]byte(nil), key...)}, nil
}

// NewSealerFromHex decodes a hex key, e.g. from HINT_SEAL_KEY.
func NewSealerFromHex(hexKey string) (*Sealer, error) {
	key, err := hex.DecodeString(hexKey)
	if err != nil {
		return nil, fmt.Errorf("[NewSealerFromHex] %w", err)
	}
	return NewSealer(key)
}

// Seal marshals v to JSON and encrypts it with XChaCha20-Poly1305. The nonce is prepended.
func (s *Sealer) Seal(v any) ([]byte, error) {
	plain, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("[Sealer.Seal] marshal: %w", err)
	}
	aead, err := chacha20poly1305.NewX(s.key)
	if err != nil {
		return nil, fmt.Errorf("[Sealer.Seal] %w", err)
	}
	nonce := make([]byte, aead.NonceSize(), aead.NonceSize()+len(plain)+aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("[Sealer.Seal] nonce: %w", err)
	}
	return aead.Seal(nonce, nonce, plain, nil), nil
}

// Open decrypts a blob produced by Seal into v.
func (s *Sealer) Open(blob []byte, v any) error {
	aead, err := chacha20poly1305.NewX(s.key)
	if err != nil {
		return fmt.Errorf("[Sealer.Open] %w", err)
	}
	if len(blob) < aead.NonceSize()+aead.Overhead() {
		return ErrBlobTooShort
	}
	nonce, sealed := blob[:aead.NonceSize()], blob[aead.NonceSize():]
	plain, err := aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return fmt.Errorf("[Sealer.Open] %w", err)
	}
	return json.Unmarshal(plain, v)
}
