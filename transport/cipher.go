package transport

import (
	"crypto/rand"
	"io"

	"github.com/pkg/errors"
	"golang.org/x/crypto/chacha20poly1305"
)

// aeadCipher authenticated-encrypts frame payloads with a cluster-wide,
// pre-shared 32-character key: the optional symmetric cipher is installed
// iff such a key is configured. A fresh random nonce is prepended to
// every sealed payload.
type aeadCipher struct {
	aead chacha20poly1305.AEAD
}

// NewCipher builds a Cipher from a 32-byte cluster key, or returns
// (nil, nil) when key is empty — callers then run the session unencrypted.
func NewCipher(key []byte) (Cipher, error) {
	if len(key) == 0 {
		return nil, nil
	}
	if len(key) != chacha20poly1305.KeySize {
		return nil, errors.Errorf("cluster key must be %d bytes, got %d", chacha20poly1305.KeySize, len(key))
	}
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, errors.Wrap(err, "failed to initialize cipher")
	}
	return &aeadCipher{aead: aead}, nil
}

func (c *aeadCipher) Seal(plaintext []byte) ([]byte, error) {
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, errors.Wrap(err, "failed to generate nonce")
	}
	out := make([]byte, 0, len(nonce)+len(plaintext)+c.aead.Overhead())
	out = append(out, nonce...)
	return c.aead.Seal(out, nonce, plaintext, nil), nil
}

func (c *aeadCipher) Open(ciphertext []byte) ([]byte, error) {
	ns := c.aead.NonceSize()
	if len(ciphertext) < ns {
		return nil, errors.New("ciphertext too short to contain a nonce")
	}
	nonce, sealed := ciphertext[:ns], ciphertext[ns:]
	plain, err := c.aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, errors.Wrap(err, "authentication failed")
	}
	return plain, nil
}
