package token

import "golang.org/x/xerrors"

var (
	// ErrMalformedToken is returned when a token is not valid base64 or is
	// too short to contain a nonce.
	ErrMalformedToken = xerrors.New("malformed token")

	// ErrDecryptionFailed is returned when a token fails authentication. It
	// deliberately covers tampering, corruption and the use of a different
	// key alike.
	ErrDecryptionFailed = xerrors.New("token decryption failed")

	// ErrInvalidPlaintext is returned when an authenticated token decrypts to
	// bytes that are not valid UTF-8.
	ErrInvalidPlaintext = xerrors.New("token plaintext is not valid UTF-8")

	// ErrEncryptionFailed is returned when a token could not be produced.
	ErrEncryptionFailed = xerrors.New("token encryption failed")
)
