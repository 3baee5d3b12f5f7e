// Package cryptox obscures stored message bodies with AES-256-GCM. The
// encoded form is hex(nonce) ":" hex(ciphertext).
package cryptox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

const keySize = 32

// Message keys are process-local, so a fixed application salt is enough to
// make passphrase-derived keys stable across restarts of the same deploy.
var appSalt = []byte("server-chat/message-key/v1")

var ErrMalformedCiphertext = errors.New("cryptox: malformed ciphertext")

type Cipher struct {
	aead cipher.AEAD
}

func New(key []byte) (*Cipher, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return &Cipher{aead: aead}, nil
}

// NewRandom builds a cipher with a random per-process key.
func NewRandom() (*Cipher, error) {
	key := make([]byte, keySize)
	if _, err := rand.Read(key); err != nil {
		return nil, err
	}
	return New(key)
}

// NewFromPassphrase derives the key from a configured passphrase.
func NewFromPassphrase(passphrase string) (*Cipher, error) {
	return New(DeriveKey([]byte(passphrase), appSalt))
}

// DeriveKey stretches a passphrase into an AES-256 key with argon2id.
func DeriveKey(passphrase, salt []byte) []byte {
	return argon2.IDKey(passphrase, salt, 1, 64*1024, 4, keySize)
}

func (c *Cipher) Encrypt(plaintext string) (string, error) {
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", err
	}
	ciphertext := c.aead.Seal(nil, nonce, []byte(plaintext), nil)
	return hex.EncodeToString(nonce) + ":" + hex.EncodeToString(ciphertext), nil
}

func (c *Cipher) Decrypt(encoded string) (string, error) {
	nonceHex, ciphertextHex, ok := strings.Cut(encoded, ":")
	if !ok {
		return "", ErrMalformedCiphertext
	}
	nonce, err := hex.DecodeString(nonceHex)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformedCiphertext, err)
	}
	if len(nonce) != c.aead.NonceSize() {
		return "", ErrMalformedCiphertext
	}
	ciphertext, err := hex.DecodeString(ciphertextHex)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformedCiphertext, err)
	}
	plaintext, err := c.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", err
	}
	return string(plaintext), nil
}
