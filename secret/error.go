package secret

import "golang.org/x/xerrors"

var (
	// ErrInvalidKeyLength is returned when attempting to build a Key from
	// material that is not exactly KeySize bytes long.
	ErrInvalidKeyLength = xerrors.New("secret key must be exactly 32 bytes")

	// ErrNoKey is returned by Load when no key material was configured.
	ErrNoKey = xerrors.New("no secret key provided")

	// ErrUnsupportedEncoding is returned by Load for an unknown encoding.
	ErrUnsupportedEncoding = xerrors.New("unsupported key encoding")
)
