package captcha

import (
	"crypto/subtle"

	"github.com/DiegoEnriquezSerrano/api.newslt.rs/secret"
	"github.com/DiegoEnriquezSerrano/api.newslt.rs/token"
)

// Verifier checks answer attempts against issued tokens.
type Verifier struct {
	codec *token.Codec
}

// NewVerifier returns a Verifier that opens tokens sealed with key.
func NewVerifier(key *secret.Key) (*Verifier, error) {
	if err := checkKey(key); err != nil {
		return nil, err
	}
	return &Verifier{codec: token.NewCodec(key)}, nil
}

// Verify returns nil if attempt matches the answer sealed in tok exactly.
// Otherwise it returns one of the token package errors or ErrAnswerMismatch.
// The same token may be verified any number of times.
func (v *Verifier) Verify(tok, attempt string) error {
	answer, err := v.codec.Decode(tok)
	if err != nil {
		return err
	}

	if subtle.ConstantTimeEq(int32(len(answer)), int32(len(attempt))) == 0 {
		return ErrAnswerMismatch
	}
	if subtle.ConstantTimeCompare([]byte(attempt), []byte(answer)) != 1 {
		return ErrAnswerMismatch
	}
	return nil
}
