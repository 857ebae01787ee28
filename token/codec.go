// Package token seals short strings into self-contained, tamper-evident
// tokens that can be handed to untrusted clients.
//
// A token is the standard (padded) base64 encoding of
//
//	nonce (12 bytes) || AES-256-GCM ciphertext || tag (16 bytes)
//
// There is no version byte and no algorithm identifier: a deployment uses a
// single key and a single algorithm. Tokens carry no expiry. Decoding is
// strict: non-canonical padding bits and embedded CR or LF characters are
// rejected.
package token

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/DiegoEnriquezSerrano/api.newslt.rs/secret"
	"golang.org/x/xerrors"
)

const (
	// NonceSize is the length of the random GCM nonce prefixed to each token.
	NonceSize = 12

	// TagSize is the length of the GCM authentication tag.
	TagSize = 16
)

var encoding = base64.StdEncoding.Strict()

// Codec encodes and decodes tokens with a fixed key. A Codec is immutable and
// safe for concurrent use provided its random source is.
type Codec struct {
	key  *secret.Key
	rand io.Reader
}

// NewCodec returns a Codec that seals tokens with key and draws nonces from
// crypto/rand.
func NewCodec(key *secret.Key) *Codec {
	return &Codec{key: key, rand: rand.Reader}
}

// WithRandom returns a copy of c that draws nonces from r.
func (c *Codec) WithRandom(r io.Reader) *Codec {
	return &Codec{key: c.key, rand: r}
}

// Encode seals plaintext into a token using a fresh random nonce.
func Encode(plaintext string, key *secret.Key) (string, error) {
	return NewCodec(key).Encode(plaintext)
}

// Decode opens a token produced by Encode with the same key.
func Decode(tok string, key *secret.Key) (string, error) {
	return NewCodec(key).Decode(tok)
}

// Encode seals plaintext into a token using a fresh random nonce.
func (c *Codec) Encode(plaintext string) (string, error) {
	aead, err := c.aead()
	if err != nil {
		return "", xerrors.Errorf("%v: %w", err, ErrEncryptionFailed)
	}

	// Seal appends to the nonce so the output is nonce || ciphertext || tag.
	out := make([]byte, NonceSize, NonceSize+len(plaintext)+TagSize)
	if _, err := io.ReadFull(c.rand, out); err != nil {
		return "", xerrors.Errorf("read nonce: %v: %w", err, ErrEncryptionFailed)
	}
	out = aead.Seal(out, out[:NonceSize], []byte(plaintext), nil)

	return encoding.EncodeToString(out), nil
}

// Decode opens tok and returns the original plaintext. Failures are reported
// as ErrMalformedToken, ErrDecryptionFailed or ErrInvalidPlaintext.
func (c *Codec) Decode(tok string) (string, error) {
	// The base64 decoder silently skips line breaks.
	if strings.ContainsAny(tok, "\r\n") {
		return "", xerrors.Errorf("line break in token: %w", ErrMalformedToken)
	}

	data, err := encoding.DecodeString(tok)
	if err != nil {
		return "", xerrors.Errorf("invalid base64: %w", ErrMalformedToken)
	}
	if len(data) < NonceSize {
		return "", xerrors.Errorf("token is %d bytes long: %w", len(data), ErrMalformedToken)
	}

	aead, err := c.aead()
	if err != nil {
		return "", ErrDecryptionFailed
	}

	plaintext, err := aead.Open(nil, data[:NonceSize], data[NonceSize:], nil)
	if err != nil {
		return "", ErrDecryptionFailed
	}
	if !utf8.Valid(plaintext) {
		return "", ErrInvalidPlaintext
	}

	return string(plaintext), nil
}

func (c *Codec) aead() (cipher.AEAD, error) {
	if c.key == nil {
		return nil, xerrors.New("no key configured")
	}

	block, err := aes.NewCipher(c.key.Expose())
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}
