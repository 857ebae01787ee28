// Package secret holds the symmetric key used to seal captcha answers.
//
// A Key never renders its material through fmt, logrus fields or JSON; every
// one of those paths prints a fixed placeholder instead. The raw bytes are
// only reachable through Expose.
package secret

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"

	"golang.org/x/xerrors"
)

// KeySize is the exact length in bytes of an AES-256 key.
const KeySize = 32

const redacted = "[REDACTED]"

// Encodings accepted by Load.
const (
	EncodingRaw    = "raw"
	EncodingBase64 = "base64"
)

// Key wraps a 32-byte symmetric key. The material sits behind a pointer so
// that printing a struct embedding a Key by value shows an address, never
// the bytes.
type Key struct {
	b *[KeySize]byte
}

// NewKey returns a Key holding a private copy of b. It fails with
// ErrInvalidKeyLength unless len(b) == KeySize; the material is never padded
// or truncated.
func NewKey(b []byte) (*Key, error) {
	if len(b) != KeySize {
		return nil, xerrors.Errorf("got %d bytes: %w", len(b), ErrInvalidKeyLength)
	}

	k := &Key{b: new([KeySize]byte)}
	copy(k.b[:], b)
	return k, nil
}

// KeyFromString uses the UTF-8 bytes of s as key material.
func KeyFromString(s string) (*Key, error) {
	return NewKey([]byte(s))
}

// KeyFromBase64 decodes s using the standard base64 alphabet and uses the
// result as key material.
func KeyFromBase64(s string) (*Key, error) {
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, xerrors.Errorf("key is not valid base64: %w", ErrInvalidKeyLength)
	}
	defer zero(b)

	return NewKey(b)
}

// Load builds a Key from configuration. The raw encoding (the default)
// uses the UTF-8 bytes of s; base64 expects the standard encoding of 32 raw
// bytes. An empty s fails with ErrNoKey. Errors never quote s.
func Load(s, encoding string) (*Key, error) {
	if s == "" {
		return nil, ErrNoKey
	}

	switch encoding {
	case "", EncodingRaw:
		return KeyFromString(s)
	case EncodingBase64:
		return KeyFromBase64(s)
	default:
		return nil, xerrors.Errorf("unsupported key encoding %q: %w", encoding, ErrUnsupportedEncoding)
	}
}

// Generate returns a Key filled from crypto/rand.
func Generate() (*Key, error) {
	b := make([]byte, KeySize)
	defer zero(b)

	if _, err := io.ReadFull(rand.Reader, b); err != nil {
		return nil, xerrors.Errorf("generate key: %w", err)
	}
	return NewKey(b)
}

// Expose returns the raw key material. The returned slice aliases the key and
// must not be retained, modified or logged by callers.
func (k *Key) Expose() []byte {
	if k == nil || k.b == nil {
		return nil
	}
	return k.b[:]
}

// Zero overwrites the key material and detaches it. Afterwards Expose
// returns nil, so codecs holding the key fail instead of sealing with an
// all-zero key.
func (k *Key) Zero() {
	if k == nil || k.b == nil {
		return
	}
	zero(k.b[:])
	k.b = nil
}

// String implements fmt.Stringer.
func (k Key) String() string { return redacted }

// GoString implements fmt.GoStringer.
func (k Key) GoString() string { return redacted }

// Format implements fmt.Formatter so that every verb, including %x and %#v,
// prints the placeholder.
func (k Key) Format(f fmt.State, _ rune) { _, _ = io.WriteString(f, redacted) }

// MarshalJSON implements json.Marshaler.
func (k Key) MarshalJSON() ([]byte, error) { return []byte(`"` + redacted + `"`), nil }

// MarshalText implements encoding.TextMarshaler.
func (k Key) MarshalText() ([]byte, error) { return []byte(redacted), nil }

func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
